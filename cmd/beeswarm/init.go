package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// starterConfig is the commented template `beeswarm init` writes.
const starterConfig = `# BeeSwarm configuration.
workspace: ~/beeswarm

storage:
  driver: sqlite
  # sqlite_path: ~/.beeswarm/beeswarm.db
  # driver: mysql
  # mysql:
  #   host: 127.0.0.1
  #   port: 3306
  #   database: beeswarm
  #   user: beeswarm
  #   password: ""

claude:
  binary: claude
  # model: claude-sonnet-4-5

dev_server:
  command: npm run dev
  port_range_from: 3100
  port_range_to: 3199
  settle_millis: 800

server:
  port: 4777

# Git-tracked log files reset before a checkpoint restore.
ephemeral_paths:
  - dev-server.log
  - logs/dev.log

notifications:
  slack:
    bot_token: ""
    channel_id: ""
  discord:
    bot_token: ""
    channel_id: ""
  digest:
    # 5-field cron expressions; empty disables.
    daily: "0 18 * * *"
    weekly: "0 9 * * 1"
`

func newInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long:  "Writes a commented beeswarm.yaml template to the given path. Refuses to overwrite an existing file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to write the config file")
	return cmd
}

func runInit(cmd *cobra.Command, configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}
	if err := os.WriteFile(configPath, []byte(starterConfig), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", configPath, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
	return nil
}
