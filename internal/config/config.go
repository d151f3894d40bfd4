// Package config provides YAML-based configuration loading for BeeSwarm.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level BeeSwarm configuration, loaded from beeswarm.yaml.
type Config struct {
	Workspace     string              `yaml:"workspace"` // root directory for projects
	Storage       StorageConfig       `yaml:"storage"`
	Claude        ClaudeConfig        `yaml:"claude"`
	DevServer     DevServerConfig     `yaml:"dev_server"`
	Server        ServerConfig        `yaml:"server"`
	Notifications NotificationsConfig `yaml:"notifications"`

	// Git-tracked runtime log paths reset to their committed state before a
	// checkpoint restore, so stale logs never block the checkout.
	EphemeralPaths []string `yaml:"ephemeral_paths"`
}

// StorageConfig selects the block-store backend. SQLite is the default;
// MySQL is for a shared server.
type StorageConfig struct {
	Driver     string      `yaml:"driver"` // "sqlite" or "mysql"
	SQLitePath string      `yaml:"sqlite_path"`
	MySQL      MySQLConfig `yaml:"mysql"`
}

// MySQLConfig holds connection settings for a MySQL block store.
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// ClaudeConfig holds assistant CLI settings.
type ClaudeConfig struct {
	Binary string `yaml:"binary"`
	Model  string `yaml:"model"`
}

// DevServerConfig holds development-server process settings.
type DevServerConfig struct {
	Command       string `yaml:"command"`
	PortRangeFrom int    `yaml:"port_range_from"`
	PortRangeTo   int    `yaml:"port_range_to"`
	SettleMillis  int    `yaml:"settle_millis"` // delay between stop and start on restart
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// NotificationsConfig holds outbound chat notification settings.
type NotificationsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Digest  DigestConfig  `yaml:"digest"`
}

// SlackConfig holds Slack bot settings.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig holds Discord bot settings.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DigestConfig holds cron expressions for periodic activity digests.
type DigestConfig struct {
	Daily  string `yaml:"daily"`  // 5-field cron, empty disables
	Weekly string `yaml:"weekly"` // 5-field cron, empty disables
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with all defaults applied and no file input.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	home, _ := os.UserHomeDir()
	if c.Workspace == "" && home != "" {
		c.Workspace = filepath.Join(home, "beeswarm")
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.SQLitePath == "" && home != "" {
		c.Storage.SQLitePath = filepath.Join(home, ".beeswarm", "beeswarm.db")
	}
	if c.Storage.MySQL.Host == "" {
		c.Storage.MySQL.Host = "127.0.0.1"
	}
	if c.Storage.MySQL.Port == 0 {
		c.Storage.MySQL.Port = 3306
	}
	if c.Claude.Binary == "" {
		c.Claude.Binary = "claude"
	}
	if c.DevServer.Command == "" {
		c.DevServer.Command = "npm run dev"
	}
	if c.DevServer.PortRangeFrom == 0 {
		c.DevServer.PortRangeFrom = 3100
	}
	if c.DevServer.PortRangeTo == 0 {
		c.DevServer.PortRangeTo = 3199
	}
	if c.DevServer.SettleMillis == 0 {
		c.DevServer.SettleMillis = 800
	}
	if c.Server.Port == 0 {
		c.Server.Port = 4777
	}
	if len(c.EphemeralPaths) == 0 {
		c.EphemeralPaths = []string{"dev-server.log", "logs/dev.log"}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Storage.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("storage.driver %q is not supported (sqlite or mysql)", c.Storage.Driver))
	}
	if c.Storage.Driver == "mysql" && c.Storage.MySQL.Database == "" {
		errs = append(errs, "storage.mysql.database is required")
	}
	if c.DevServer.PortRangeFrom > c.DevServer.PortRangeTo {
		errs = append(errs, "dev_server port range is inverted")
	}
	if c.Notifications.Slack.BotToken != "" && c.Notifications.Slack.ChannelID == "" {
		errs = append(errs, "notifications.slack.channel_id is required when a token is set")
	}
	if c.Notifications.Discord.BotToken != "" && c.Notifications.Discord.ChannelID == "" {
		errs = append(errs, "notifications.discord.channel_id is required when a token is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
