package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolateHome(t *testing.T) {
	t.Helper()
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpHome, ".config"))
}

func TestLoadDefault(t *testing.T) {
	isolateHome(t)

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Expected logging.level = 'info', got %q", cfg.Logging.Level)
	}
	if cfg.Monitor.PollInterval != time.Minute {
		t.Errorf("Expected monitor.poll_interval = 1m, got %s", cfg.Monitor.PollInterval)
	}
	if cfg.Monitor.KillMode {
		t.Error("Expected kill mode to be off by default")
	}
	if cfg.Console.Encoding != "cp866" {
		t.Errorf("Expected console.encoding = 'cp866', got %q", cfg.Console.Encoding)
	}
	if cfg.Redis.Enabled() {
		t.Error("Expected redis to be disabled by default")
	}
	if !strings.HasSuffix(cfg.DatabasePath(), "sessionmanager.db") {
		t.Errorf("unexpected database path %q", cfg.DatabasePath())
	}
}

func TestLoadFromFile(t *testing.T) {
	isolateHome(t)
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	configContent := `
logging:
  level: debug
  format: json
console:
  path: /usr/local/bin/rac
  host: srv1c:1545
  cluster_user: admin
  command_timeout: 10s
monitor:
  poll_interval: 30s
  kill_mode: true
redis:
  addr: localhost:6379
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging not overridden: %+v", cfg.Logging)
	}
	if cfg.Console.Host != "srv1c:1545" || cfg.Console.ClusterUser != "admin" {
		t.Errorf("console not overridden: %+v", cfg.Console)
	}
	if cfg.Console.CommandTimeout != 10*time.Second {
		t.Errorf("Expected command timeout 10s, got %s", cfg.Console.CommandTimeout)
	}
	if cfg.Monitor.PollInterval != 30*time.Second || !cfg.Monitor.KillMode {
		t.Errorf("monitor not overridden: %+v", cfg.Monitor)
	}
	if !cfg.Redis.Enabled() || cfg.Redis.Prefix != "sessionmanager" {
		t.Errorf("redis not merged with defaults: %+v", cfg.Redis)
	}
	if cfg.Database.MaxConnections != 10 {
		t.Errorf("Expected default database.max_connections = 10, got %d", cfg.Database.MaxConnections)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	isolateHome(t)

	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for explicit missing config file")
	}
}

func TestEnvironmentOverride(t *testing.T) {
	isolateHome(t)
	t.Setenv("SESSIONMANAGER_LOGGING_LEVEL", "warn")
	t.Setenv("SESSIONMANAGER_CONSOLE_HOST", "envhost:1545")
	t.Setenv("SESSIONMANAGER_MONITOR_KILL_MODE", "true")

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}

	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected logging.level = 'warn' from env, got %q", cfg.Logging.Level)
	}
	if cfg.Console.Host != "envhost:1545" {
		t.Errorf("Expected console.host from env, got %q", cfg.Console.Host)
	}
	if !cfg.Monitor.KillMode {
		t.Error("Expected kill mode from env")
	}
}

func TestLoaderSetOverridesEverything(t *testing.T) {
	isolateHome(t)
	t.Setenv("SESSIONMANAGER_CONSOLE_HOST", "envhost:1545")

	loader := NewLoader()
	loader.Set("console.host", "flaghost:1545")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Console.Host != "flaghost:1545" {
		t.Errorf("Expected flag value to win, got %q", cfg.Console.Host)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"missing console", func(c *Config) { c.Console.Path = " " }, "console.path"},
		{"missing host", func(c *Config) { c.Console.Host = "" }, "console.host"},
		{"zero timeout", func(c *Config) { c.Console.CommandTimeout = 0 }, "console.command_timeout"},
		{"bad encoding", func(c *Config) { c.Console.Encoding = "koi8-r" }, "console.encoding"},
		{"interval too short", func(c *Config) { c.Monitor.PollInterval = 4 * time.Second }, "monitor.poll_interval"},
		{"interval too long", func(c *Config) { c.Monitor.PollInterval = 3601 * time.Second }, "monitor.poll_interval"},
		{"min interval", func(c *Config) { c.Monitor.PollInterval = 5 * time.Second; c.Console.CommandTimeout = 5 * time.Second }, ""},
		{"timeout over interval", func(c *Config) { c.Console.CommandTimeout = 2 * time.Minute }, "must not exceed"},
		{"no parallelism", func(c *Config) { c.Monitor.MaxParallelKills = 0 }, "max_parallel_kills"},
		{"retention without age", func(c *Config) { c.EventRetention.MaxAge = 0 }, "event_retention.max_age"},
		{"retention disabled", func(c *Config) { c.EventRetention.Enabled = false; c.EventRetention.MaxAge = 0 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
