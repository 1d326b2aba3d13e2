package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SESSIONMANAGER_CONSOLE_HOST.
const EnvPrefix = "SESSIONMANAGER"

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// Load loads configuration with precedence
// defaults < config file < env vars < CLI flags.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func expandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

func expandPaths(cfg *Config) {
	cfg.Global.DataDir = expandTilde(cfg.Global.DataDir)
	cfg.Global.ConfigDir = expandTilde(cfg.Global.ConfigDir)
	cfg.Database.Path = expandTilde(cfg.Database.Path)
	cfg.Console.Path = expandTilde(cfg.Console.Path)
	cfg.EventRetention.ArchiveDir = expandTilde(cfg.EventRetention.ArchiveDir)
}

func (l *Loader) setupViper(cfg *Config) {
	v := l.v

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		v.AddConfigPath(filepath.Join(xdgConfig, "sessionmanager"))
	}
	if homeDir, _ := os.UserHomeDir(); homeDir != "" {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "sessionmanager"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	l.setDefaults(cfg)
}

// setDefaults registers every key so AutomaticEnv can override it.
func (l *Loader) setDefaults(cfg *Config) {
	for key, value := range defaultValues(cfg) {
		l.v.SetDefault(key, value)
	}
}

func defaultValues(cfg *Config) map[string]any {
	return map[string]any{
		"global.data_dir":   cfg.Global.DataDir,
		"global.config_dir": cfg.Global.ConfigDir,

		"database.path":            cfg.Database.Path,
		"database.max_connections": cfg.Database.MaxConnections,
		"database.busy_timeout_ms": cfg.Database.BusyTimeoutMs,

		"logging.level":         cfg.Logging.Level,
		"logging.format":        cfg.Logging.Format,
		"logging.enable_caller": cfg.Logging.EnableCaller,

		"console.path":             cfg.Console.Path,
		"console.host":             cfg.Console.Host,
		"console.cluster_user":     cfg.Console.ClusterUser,
		"console.cluster_password": cfg.Console.ClusterPassword,
		"console.command_timeout":  cfg.Console.CommandTimeout,
		"console.encoding":         cfg.Console.Encoding,

		"monitor.poll_interval":        cfg.Monitor.PollInterval,
		"monitor.kill_mode":            cfg.Monitor.KillMode,
		"monitor.kill_message_blocked": cfg.Monitor.KillMessageBlocked,
		"monitor.kill_message_quota":   cfg.Monitor.KillMessageQuota,
		"monitor.max_parallel_kills":   cfg.Monitor.MaxParallelKills,

		"redis.addr":     cfg.Redis.Addr,
		"redis.password": cfg.Redis.Password,
		"redis.db":       cfg.Redis.DB,
		"redis.prefix":   cfg.Redis.Prefix,
		"redis.ttl":      cfg.Redis.TTL,

		"event_retention.enabled":               cfg.EventRetention.Enabled,
		"event_retention.max_age":               cfg.EventRetention.MaxAge,
		"event_retention.cleanup_interval":      cfg.EventRetention.CleanupInterval,
		"event_retention.batch_size":            cfg.EventRetention.BatchSize,
		"event_retention.archive_before_delete": cfg.EventRetention.ArchiveBeforeDelete,
		"event_retention.archive_dir":           cfg.EventRetention.ArchiveDir,
	}
}

// loadConfigFile reads the config file. A missing file is only an error
// when it was set explicitly.
func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && l.configFile == "" {
			return nil
		}
		return err
	}
	return nil
}

// ConfigFileUsed returns the config file that was loaded.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Set sets a Viper value by key, taking precedence over every other source.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}

// LoadDefault loads configuration with default search paths.
func LoadDefault() (*Config, error) {
	return NewLoader().Load()
}
