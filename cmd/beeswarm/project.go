package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/models"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project management commands",
	}

	cmd.AddCommand(newProjectCreateCmd())
	cmd.AddCommand(newProjectListCmd())
	cmd.AddCommand(newProjectShowCmd())
	return cmd
}

func newProjectCreateCmd() *cobra.Command {
	var (
		configPath string
		path       string
		devCommand string
		githubRepo string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a project",
		Long:  "Registers a local project directory. The path defaults to <workspace>/<name>.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjectCreate(cmd, configPath, args[0], path, devCommand, githubRepo)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to BeeSwarm config file")
	cmd.Flags().StringVar(&path, "path", "", "project directory (default: <workspace>/<name>)")
	cmd.Flags().StringVar(&devCommand, "dev-command", "", "dev server command override")
	cmd.Flags().StringVar(&githubRepo, "github-repo", "", "GitHub target as name or owner/name")
	return cmd
}

func runProjectCreate(cmd *cobra.Command, configPath, name, path, devCommand, githubRepo string) error {
	cfg, st, err := storeFromConfig(configPath)
	if err != nil {
		return err
	}
	if path == "" {
		path = filepath.Join(cfg.Workspace, name)
	}

	p := &models.Project{
		Name:       name,
		Path:       path,
		DevCommand: devCommand,
		GitHubRepo: githubRepo,
	}
	if err := st.CreateProject(p); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created project %s\n", p.Name)
	fmt.Fprintf(out, "ID:   %s\n", p.ID)
	fmt.Fprintf(out, "Path: %s\n", p.Path)
	return nil
}

func newProjectListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjectList(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to BeeSwarm config file")
	return cmd
}

func runProjectList(cmd *cobra.Command, configPath string) error {
	_, st, err := storeFromConfig(configPath)
	if err != nil {
		return err
	}

	projects, err := st.ListProjects()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(projects) == 0 {
		fmt.Fprintln(out, "No projects registered.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPATH\tCREATED")
	for _, p := range projects {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, p.Path, humanize.Time(p.CreatedAt))
	}
	w.Flush()
	return nil
}

func newProjectShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show project details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjectShow(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to BeeSwarm config file")
	return cmd
}

func runProjectShow(cmd *cobra.Command, configPath, name string) error {
	_, st, err := storeFromConfig(configPath)
	if err != nil {
		return err
	}

	p, err := resolveProject(st, name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Name:        %s\n", p.Name)
	fmt.Fprintf(out, "ID:          %s\n", p.ID)
	fmt.Fprintf(out, "Path:        %s\n", p.Path)
	if p.DevCommand != "" {
		fmt.Fprintf(out, "Dev command: %s\n", p.DevCommand)
	}
	if p.GitHubRepo != "" {
		fmt.Fprintf(out, "GitHub:      %s\n", p.GitHubRepo)
	}
	fmt.Fprintf(out, "Created:     %s\n", p.CreatedAt.Format("2006-01-02 15:04:05"))

	if b, err := st.LatestBlock(p.ID); err == nil {
		fmt.Fprintf(out, "Last block:  %s (%s)\n", truncate(b.Prompt, 50), humanize.Time(b.CreatedAt))
	}
	return nil
}
