package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/config"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/db"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/models"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/store"
	"gorm.io/gorm"
)

// defaultConfigPath is the config file commands look for by default.
const defaultConfigPath = "beeswarm.yaml"

// loadConfig reads the config file, falling back to defaults when the
// default path does not exist.
func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

// connectFromConfig loads config and opens the configured block store.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	var gdb *gorm.DB
	switch cfg.Storage.Driver {
	case "mysql":
		m := cfg.Storage.MySQL
		gdb, err = db.OpenMySQL(m.Host, m.Port, m.Database, m.User, m.Password)
	default:
		gdb, err = db.OpenSQLite(cfg.Storage.SQLitePath)
	}
	if err != nil {
		return nil, nil, err
	}
	if err := db.AutoMigrate(gdb); err != nil {
		return nil, nil, err
	}
	return cfg, gdb, nil
}

// storeFromConfig is connectFromConfig wrapped as a Store.
func storeFromConfig(configPath string) (*config.Config, *store.Store, error) {
	cfg, gdb, err := connectFromConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store.New(gdb), nil
}

// resolveProject accepts a project name or id.
func resolveProject(st *store.Store, nameOrID string) (*models.Project, error) {
	if p, err := st.ProjectByName(nameOrID); err == nil {
		return p, nil
	}
	return st.GetProject(nameOrID)
}

// daemonClient talks to a running `beeswarm serve` over its local API.
// Runtime operations (send, cancel, restore) have to reach the process that
// owns the sessions and locks.
type daemonClient struct {
	base string
	http *http.Client
}

func newDaemonClient(cfg *config.Config) *daemonClient {
	return &daemonClient{
		base: fmt.Sprintf("http://localhost:%d", cfg.Server.Port),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// post sends a JSON body and decodes the JSON reply. A connection failure
// gets a "daemon not running" hint.
func (d *daemonClient) post(path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	resp, err := d.http.Post(d.base+path, "application/json", &buf)
	if err != nil {
		return fmt.Errorf("cannot reach daemon at %s (is `beeswarm serve` running?): %w", d.base, err)
	}
	defer resp.Body.Close()
	return decodeReply(resp, out)
}

// get fetches and decodes a JSON reply.
func (d *daemonClient) get(path string, out any) error {
	resp, err := d.http.Get(d.base + path)
	if err != nil {
		return fmt.Errorf("cannot reach daemon at %s (is `beeswarm serve` running?): %w", d.base, err)
	}
	defer resp.Body.Close()
	return decodeReply(resp, out)
}

// decodeReply decodes a success body into out, or surfaces the API error.
func decodeReply(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
