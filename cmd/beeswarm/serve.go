package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/actionlog"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/claude"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/config"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/devserver"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/gitops"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/lock"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/notify"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/notify/discord"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/notify/slack"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/orchestrator"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/server"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/store"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/tracker"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the BeeSwarm daemon",
		Long:  "Starts the daemon: assistant sessions, per-project serialization, the checkpoint workflow, and the HTTP API the UI and CLI talk to.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to BeeSwarm config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, gdb, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	st := store.New(gdb)

	hub := notify.NewHub()
	defer hub.Close()
	registerAdapters(cmd, cfg, hub)

	tr := tracker.New(st, hub)
	sessions := claude.NewManager(claude.ManagerOpts{
		Binary: cfg.Claude.Binary,
		Model:  cfg.Claude.Model,
	})
	dev := devserver.NewManager(devserver.ManagerOpts{
		Command:  cfg.DevServer.Command,
		PortFrom: cfg.DevServer.PortRangeFrom,
		PortTo:   cfg.DevServer.PortRangeTo,
	})
	locks := lock.New()

	orch := orchestrator.New(orchestrator.Opts{
		Store:          st,
		Locks:          locks,
		Tracker:        tr,
		Actions:        actionlog.New(st, tr, hub),
		Sessions:       sessions,
		Git:            gitops.NewClient(),
		Dev:            dev,
		Notifier:       hub,
		SettleDelay:    time.Duration(cfg.DevServer.SettleMillis) * time.Millisecond,
		EphemeralPaths: cfg.EphemeralPaths,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go orch.Run(ctx)

	if cfg.Notifications.Digest.Daily != "" || cfg.Notifications.Digest.Weekly != "" {
		digest := notify.NewDigest(notify.DigestOpts{
			Store:  st,
			Hub:    hub,
			Daily:  cfg.Notifications.Digest.Daily,
			Weekly: cfg.Notifications.Digest.Weekly,
		})
		go digest.Run(ctx)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "BeeSwarm daemon starting (storage: %s)\n", cfg.Storage.Driver)

	err = server.Start(ctx, server.StartOpts{
		Store: st,
		Orch:  orch,
		Hub:   hub,
		Port:  cfg.Server.Port,
		Out:   out,
	})

	// Waiters blocked on project locks must not outlive the daemon.
	orch.ReleaseAllLocks()
	fmt.Fprintln(out, "BeeSwarm daemon stopped.")
	return err
}

// registerAdapters wires the configured chat platforms into the hub.
// A misconfigured adapter is reported and skipped, not fatal.
func registerAdapters(cmd *cobra.Command, cfg *config.Config, hub *notify.Hub) {
	out := cmd.OutOrStdout()

	if cfg.Notifications.Slack.BotToken != "" {
		a, err := slack.New(slack.AdapterOpts{
			BotToken:  cfg.Notifications.Slack.BotToken,
			ChannelID: cfg.Notifications.Slack.ChannelID,
		})
		if err != nil {
			fmt.Fprintf(out, "Slack adapter disabled: %v\n", err)
		} else {
			hub.RegisterAdapter(a)
			fmt.Fprintln(out, "Slack notifications enabled.")
		}
	}

	if cfg.Notifications.Discord.BotToken != "" {
		a, err := discord.New(discord.AdapterOpts{
			BotToken:  cfg.Notifications.Discord.BotToken,
			ChannelID: cfg.Notifications.Discord.ChannelID,
		})
		if err != nil {
			fmt.Fprintf(out, "Discord adapter disabled: %v\n", err)
		} else {
			hub.RegisterAdapter(a)
			fmt.Fprintln(out, "Discord notifications enabled.")
		}
	}
}
