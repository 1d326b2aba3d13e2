// Package config handles session manager configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Poll interval bounds accepted by Validate.
const (
	MinPollInterval = 5 * time.Second
	MaxPollInterval = time.Hour
)

// Config is the root configuration structure.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Console is the cluster administration console connection.
	Console ConsoleConfig `yaml:"console" mapstructure:"console"`

	// Monitor controls the enforcement loop.
	Monitor MonitorConfig `yaml:"monitor" mapstructure:"monitor"`

	// Redis optionally mirrors cluster statistics.
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`

	// EventRetention settings
	EventRetention EventRetentionConfig `yaml:"event_retention" mapstructure:"event_retention"`
}

// GlobalConfig contains global settings.
type GlobalConfig struct {
	// DataDir is where the database lives (default: ~/.local/share/sessionmanager).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/sessionmanager).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// MaxConnections is the maximum number of database connections.
	MaxConnections int `yaml:"max_connections" mapstructure:"max_connections"`

	// BusyTimeoutMs is how long to wait for a locked database.
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// ConsoleConfig describes how to reach the cluster administration console.
type ConsoleConfig struct {
	// Path is the console executable.
	Path string `yaml:"path" mapstructure:"path"`

	// Host is the administration server address, passed last on every call.
	Host string `yaml:"host" mapstructure:"host"`

	// ClusterUser is the optional cluster administrator.
	ClusterUser string `yaml:"cluster_user" mapstructure:"cluster_user"`

	// ClusterPassword is the optional cluster administrator password.
	ClusterPassword string `yaml:"cluster_password" mapstructure:"cluster_password"`

	// CommandTimeout bounds a single console invocation.
	CommandTimeout time.Duration `yaml:"command_timeout" mapstructure:"command_timeout"`

	// Encoding is the console output code page (cp866, cp1251, utf-8).
	Encoding string `yaml:"encoding" mapstructure:"encoding"`
}

// MonitorConfig controls the enforcement loop. PollInterval and KillMode
// can be overridden at runtime through stored settings.
type MonitorConfig struct {
	// PollInterval is the delay between cycles.
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`

	// KillMode enables session termination.
	KillMode bool `yaml:"kill_mode" mapstructure:"kill_mode"`

	// KillMessageBlocked is shown to users of blocked clients.
	KillMessageBlocked string `yaml:"kill_message_blocked" mapstructure:"kill_message_blocked"`

	// KillMessageQuota is shown to users disconnected for quota excess.
	KillMessageQuota string `yaml:"kill_message_quota" mapstructure:"kill_message_quota"`

	// MaxParallelKills bounds how many clients are enforced at once.
	MaxParallelKills int `yaml:"max_parallel_kills" mapstructure:"max_parallel_kills"`
}

// RedisConfig configures the statistics mirror. Empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr" mapstructure:"addr"`
	Password string        `yaml:"password" mapstructure:"password"`
	DB       int           `yaml:"db" mapstructure:"db"`
	Prefix   string        `yaml:"prefix" mapstructure:"prefix"`
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

// EventRetentionConfig contains event retention policy settings.
type EventRetentionConfig struct {
	// Enabled controls whether retention cleanup runs.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// MaxAge is the maximum age of events and statistics to keep.
	MaxAge time.Duration `yaml:"max_age" mapstructure:"max_age"`

	// CleanupInterval is how often the cleanup runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`

	// BatchSize bounds how many events one delete statement removes.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`

	// ArchiveBeforeDelete writes expired events to daily JSONL files first.
	ArchiveBeforeDelete bool `yaml:"archive_before_delete" mapstructure:"archive_before_delete"`

	// ArchiveDir is where archives go (default: DataDir/archives).
	ArchiveDir string `yaml:"archive_dir" mapstructure:"archive_dir"`
}

// DefaultConsolePath is the conventional console location for the platform.
func DefaultConsolePath() string {
	if runtime.GOOS == "windows" {
		return `C:\Program Files\1cv8\current\bin\rac.exe`
	}
	return "/opt/1cv8/current/rac"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "sessionmanager"),
			ConfigDir: filepath.Join(homeDir, ".config", "sessionmanager"),
		},
		Database: DatabaseConfig{
			Path:           "", // DataDir/sessionmanager.db
			MaxConnections: 10,
			BusyTimeoutMs:  5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Console: ConsoleConfig{
			Path:           DefaultConsolePath(),
			Host:           "localhost:1545",
			CommandTimeout: 30 * time.Second,
			Encoding:       "cp866",
		},
		Monitor: MonitorConfig{
			PollInterval:       60 * time.Second,
			KillMode:           false,
			KillMessageBlocked: "Access blocked by administrator",
			KillMessageQuota:   "Session limit for your organization exceeded",
			MaxParallelKills:   4,
		},
		Redis: RedisConfig{
			Prefix: "sessionmanager",
			TTL:    10 * time.Minute,
		},
		EventRetention: EventRetentionConfig{
			Enabled:         true,
			MaxAge:          30 * 24 * time.Hour,
			CleanupInterval: time.Hour,
			BatchSize:       1000,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Global.DataDir) == "" {
		return fmt.Errorf("global.data_dir is required")
	}

	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database.max_connections must be at least 1")
	}
	if c.Database.BusyTimeoutMs < 0 {
		return fmt.Errorf("database.busy_timeout_ms must be zero or greater")
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be one of console, json")
	}

	if strings.TrimSpace(c.Console.Path) == "" {
		return fmt.Errorf("console.path is required")
	}
	if strings.TrimSpace(c.Console.Host) == "" {
		return fmt.Errorf("console.host is required")
	}
	if c.Console.CommandTimeout <= 0 {
		return fmt.Errorf("console.command_timeout must be greater than 0")
	}
	switch strings.ToLower(strings.TrimSpace(c.Console.Encoding)) {
	case "cp866", "ibm866", "cp1251", "windows-1251", "utf-8", "utf8":
	default:
		return fmt.Errorf("console.encoding must be one of cp866, cp1251, utf-8")
	}

	if c.Monitor.PollInterval < MinPollInterval || c.Monitor.PollInterval > MaxPollInterval {
		return fmt.Errorf("monitor.poll_interval must be between %s and %s", MinPollInterval, MaxPollInterval)
	}
	if c.Console.CommandTimeout > c.Monitor.PollInterval {
		return fmt.Errorf("console.command_timeout must not exceed monitor.poll_interval")
	}
	if c.Monitor.MaxParallelKills < 1 {
		return fmt.Errorf("monitor.max_parallel_kills must be at least 1")
	}

	if c.Redis.Enabled() && c.Redis.TTL < 0 {
		return fmt.Errorf("redis.ttl must be zero or positive")
	}

	if c.EventRetention.Enabled {
		if c.EventRetention.MaxAge <= 0 {
			return fmt.Errorf("event_retention.max_age must be greater than 0 when enabled")
		}
		if c.EventRetention.CleanupInterval < time.Minute {
			return fmt.Errorf("event_retention.cleanup_interval must be at least 1 minute")
		}
		if c.EventRetention.BatchSize < 1 {
			return fmt.Errorf("event_retention.batch_size must be at least 1")
		}
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Global.DataDir, c.Global.ConfigDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the full database path.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Global.DataDir, "sessionmanager.db")
}
