package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/models"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		configPath string
		limit      int
		offset     int
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "history <project>",
		Short: "Show a project's block history",
		Long:  "Lists the project's blocks newest first: prompt, outcome, checkpoint hash, and workflow actions.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, configPath, args[0], limit, offset, verbose)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to BeeSwarm config file")
	cmd.Flags().IntVar(&limit, "limit", 20, "max blocks to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "blocks to skip")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show workflow actions per block")
	return cmd
}

func runHistory(cmd *cobra.Command, configPath, project string, limit, offset int, verbose bool) error {
	_, st, err := storeFromConfig(configPath)
	if err != nil {
		return err
	}
	p, err := resolveProject(st, project)
	if err != nil {
		return err
	}

	blocks, err := st.History(p.ID, limit, offset)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(blocks) == 0 {
		fmt.Fprintf(out, "No blocks for %s\n", p.Name)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tPROMPT\tTYPE\tSTATE\tCHECKPOINT\tCOST")
	for _, b := range blocks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			humanize.Time(b.CreatedAt),
			truncate(strings.ReplaceAll(b.Prompt, "\n", " "), 40),
			b.InteractionType,
			blockState(b),
			shortHash(b.CommitHash),
			costColumn(b.CostUSD))
	}
	w.Flush()

	if !verbose {
		return nil
	}
	for _, b := range blocks {
		if len(b.Actions) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n%s — %s\n", shortBlockID(b.ID), truncate(b.Prompt, 60))
		for _, a := range b.Actions {
			fmt.Fprintf(out, "  [%s] %s: %s\n", a.Status, a.Type, a.Message)
		}
	}
	return nil
}

// blockState renders a block's lifecycle column.
func blockState(b models.Block) string {
	switch {
	case b.IsInterrupted:
		return "interrupted"
	case b.IsComplete:
		return "complete"
	default:
		return "running"
	}
}

func shortHash(hash string) string {
	if hash == "" {
		return "-"
	}
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}

func shortBlockID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func costColumn(cost float64) string {
	if cost == 0 {
		return "-"
	}
	return fmt.Sprintf("$%.2f", cost)
}

func newLocksCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "locks <project>",
		Short: "Show a project's lock queue",
		Long:  "Shows which operation holds the project's mutation lock and the operations queued behind it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocks(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to BeeSwarm config file")
	return cmd
}

func runLocks(cmd *cobra.Command, configPath, project string) error {
	cfg, st, err := storeFromConfig(configPath)
	if err != nil {
		return err
	}
	p, err := resolveProject(st, project)
	if err != nil {
		return err
	}

	var status struct {
		Locked bool     `json:"locked"`
		Queue  []string `json:"queue"`
	}
	client := newDaemonClient(cfg)
	if err := client.get("/api/projects/"+p.ID, &status); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !status.Locked || len(status.Queue) == 0 {
		fmt.Fprintf(out, "%s: lock free\n", p.Name)
		return nil
	}
	fmt.Fprintf(out, "%s: held by %s\n", p.Name, status.Queue[0])
	for i, name := range status.Queue[1:] {
		fmt.Fprintf(out, "  %d. %s\n", i+1, name)
	}
	return nil
}

func newStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status <project>",
		Short: "Show a project's live status",
		Long:  "Shows session, dev-server, and lock state from the running daemon.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to BeeSwarm config file")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath, project string) error {
	cfg, st, err := storeFromConfig(configPath)
	if err != nil {
		return err
	}
	p, err := resolveProject(st, project)
	if err != nil {
		return err
	}

	var status struct {
		Session   string   `json:"session"`
		DevServer string   `json:"dev_server"`
		DevPort   int      `json:"dev_port"`
		Locked    bool     `json:"locked"`
		Queue     []string `json:"queue"`
	}
	client := newDaemonClient(cfg)
	if err := client.get("/api/projects/"+p.ID, &status); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Project:    %s\n", p.Name)
	fmt.Fprintf(out, "Session:    %s\n", status.Session)
	if status.DevPort > 0 {
		fmt.Fprintf(out, "Dev server: %s (port %d)\n", status.DevServer, status.DevPort)
	} else {
		fmt.Fprintf(out, "Dev server: %s\n", status.DevServer)
	}
	if status.Locked && len(status.Queue) > 0 {
		fmt.Fprintf(out, "Lock:       held by %s\n", status.Queue[0])
		if len(status.Queue) > 1 {
			fmt.Fprintf(out, "Waiting:    %s\n", strings.Join(status.Queue[1:], ", "))
		}
	} else {
		fmt.Fprintln(out, "Lock:       free")
	}
	return nil
}
