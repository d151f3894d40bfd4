package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSendCmd() *cobra.Command {
	var (
		configPath      string
		interactionType string
	)

	cmd := &cobra.Command{
		Use:   "send <project> <prompt...>",
		Short: "Send a prompt to a project's assistant",
		Long:  "Queues an assistant run through the daemon. The run serializes behind any work already in flight for the project; follow progress with `beeswarm status` or the event stream.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, configPath, args[0], strings.Join(args[1:], " "), interactionType)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to BeeSwarm config file")
	cmd.Flags().StringVar(&interactionType, "type", "", "interaction type (default user_message)")
	return cmd
}

func runSend(cmd *cobra.Command, configPath, project, prompt, interactionType string) error {
	cfg, st, err := storeFromConfig(configPath)
	if err != nil {
		return err
	}
	p, err := resolveProject(st, project)
	if err != nil {
		return err
	}

	client := newDaemonClient(cfg)
	body := map[string]string{"prompt": prompt}
	if interactionType != "" {
		body["interaction_type"] = interactionType
	}
	if err := client.post("/api/projects/"+p.ID+"/send", body, nil); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Queued prompt for %s\n", p.Name)
	return nil
}

func newCancelCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cancel <project>",
		Short: "Stop the project's active assistant run",
		Long:  "Interrupts the active run. If the run already changed files, the project is reverted to its last checkpoint.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCancel(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to BeeSwarm config file")
	return cmd
}

func runCancel(cmd *cobra.Command, configPath, project string) error {
	cfg, st, err := storeFromConfig(configPath)
	if err != nil {
		return err
	}
	p, err := resolveProject(st, project)
	if err != nil {
		return err
	}

	client := newDaemonClient(cfg)
	if err := client.post("/api/projects/"+p.ID+"/cancel", nil, nil); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cancelled active run for %s\n", p.Name)
	return nil
}

func newRestoreCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "restore <project> <commit-hash>",
		Short: "Restore a project to a checkpoint",
		Long:  "Checks the project out at a prior checkpoint commit and restarts its dev server if one was running.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(cmd, configPath, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to BeeSwarm config file")
	return cmd
}

func runRestore(cmd *cobra.Command, configPath, project, hash string) error {
	cfg, st, err := storeFromConfig(configPath)
	if err != nil {
		return err
	}
	p, err := resolveProject(st, project)
	if err != nil {
		return err
	}

	client := newDaemonClient(cfg)
	if err := client.post("/api/projects/"+p.ID+"/restore", map[string]string{"hash": hash}, nil); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Restored %s to %s\n", p.Name, hash)
	return nil
}
