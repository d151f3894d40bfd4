package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/github"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/gitops"
	"github.com/spf13/cobra"
)

func newGitHubCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "github",
		Short: "GitHub publishing commands",
	}

	cmd.AddCommand(newGitHubConnectCmd())
	cmd.AddCommand(newGitHubPublishCmd())
	return cmd
}

// githubConfigDir is where the token file lives.
func githubConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".beeswarm"), nil
}

func newGitHubConnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Store a GitHub personal access token",
		Long:  "Prompts for a personal access token (repo scope) without echoing it and stores it with owner-only permissions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGitHubConnect(cmd)
		},
	}
	return cmd
}

func runGitHubConnect(cmd *cobra.Command) error {
	dir, err := githubConfigDir()
	if err != nil {
		return err
	}

	token, err := github.PromptToken(os.Stdin, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err := github.SaveToken(dir, token); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Token saved to %s\n", github.TokenPath(dir))
	return nil
}

func newGitHubPublishCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "publish <project>",
		Short: "Push a project to GitHub",
		Long:  "Creates the GitHub repository if needed and pushes the project's current branch. Run `beeswarm github connect` first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGitHubPublish(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to BeeSwarm config file")
	return cmd
}

func runGitHubPublish(cmd *cobra.Command, configPath, project string) error {
	_, st, err := storeFromConfig(configPath)
	if err != nil {
		return err
	}
	p, err := resolveProject(st, project)
	if err != nil {
		return err
	}

	dir, err := githubConfigDir()
	if err != nil {
		return err
	}
	token, err := github.LoadToken(dir)
	if err != nil {
		return fmt.Errorf("%w (run `beeswarm github connect` first)", err)
	}

	svc, err := github.NewService(github.ServiceOpts{Token: token, Git: gitops.NewClient()})
	if err != nil {
		return err
	}

	url, err := svc.Publish(cmd.Context(), p)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Published %s to %s\n", p.Name, url)
	return nil
}
