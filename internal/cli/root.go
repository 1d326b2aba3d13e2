// Package cli implements the sessionmanager command line.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/sdbsm/1CSessionManager-sub000/internal/config"
	"github.com/sdbsm/1CSessionManager-sub000/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	jsonOutput  bool
	jsonlOutput bool
	verbose     bool
	noColor     bool
	logLevel    string
	logFormat   string

	// Per-invocation overrides of the most commonly changed settings.
	consoleHost string
	consolePath string
	dbPath      string

	configLoader *config.Loader
	appConfig    *config.Config
	logger       zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sessionmanager",
	Short: "Session quota enforcement for a 1C:Enterprise cluster",
	Long: `sessionmanager watches the interactive sessions of a 1C:Enterprise
server cluster through the rac administration console and enforces
per-client session quotas.

Clients are organizations that own one or more infobases. Each cycle the
monitor counts the 1CV8, 1CV8C, WebClient and App sessions of every client.
With kill mode on it terminates every session of a blocked client and the
newest sessions of a client over quota.

Start with:
  sessionmanager migrate up
  sessionmanager clients add Acme --quota 10 --infobase acme_buh
  sessionmanager check
  sessionmanager run`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput && jsonlOutput {
			return errors.New("--json and --jsonl are mutually exclusive")
		}
		return nil
	},
}

// Execute runs the root command.
func Execute(version, commit, date string) error {
	cliVersion = version
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		return handleCLIError(err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $HOME/.config/sessionmanager/config.yaml)")
	flags.BoolVar(&jsonOutput, "json", false, "output in JSON format")
	flags.BoolVar(&jsonlOutput, "jsonl", false, "output in JSON Lines format")
	flags.BoolVarP(&verbose, "verbose", "v", false, "shorthand for --log-level debug")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	flags.StringVar(&logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "", "override logging format (json, console)")
	flags.StringVar(&consoleHost, "host", "", "override console.host (ras address, host[:port])")
	flags.StringVar(&consolePath, "rac", "", "override console.path (rac executable)")
	flags.StringVar(&dbPath, "db", "", "override database.path")
}

// initConfig loads configuration with precedence
// defaults < config file < SESSIONMANAGER_* env < flags.
func initConfig() {
	configLoader = config.NewLoader()
	if cfgFile != "" {
		configLoader.SetConfigFile(cfgFile)
	}

	var err error
	appConfig, err = configLoader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	applyFlagOverrides(rootCmd, appConfig)

	logging.Init(logging.Config{
		Level:        appConfig.Logging.Level,
		Format:       appConfig.Logging.Format,
		EnableCaller: appConfig.Logging.EnableCaller,
	})
	logger = logging.Component("cli")

	if err := appConfig.EnsureDirectories(); err != nil {
		logger.Warn().Err(err).Msg("failed to create directories")
	}
	if used := configLoader.ConfigFileUsed(); used != "" {
		logger.Debug().Str("config_file", used).Msg("loaded config file")
	}
}

// applyFlagOverrides copies explicitly set persistent flags into cfg.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.PersistentFlags()

	switch {
	case flags.Changed("log-level"):
		cfg.Logging.Level = logLevel
	case verbose:
		cfg.Logging.Level = "debug"
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = logFormat
	}
	if flags.Changed("host") {
		cfg.Console.Host = consoleHost
	}
	if flags.Changed("rac") {
		cfg.Console.Path = consolePath
	}
	if flags.Changed("db") {
		cfg.Database.Path = dbPath
	}
}

// IsJSONOutput reports whether --json is set.
func IsJSONOutput() bool {
	return jsonOutput
}

// IsJSONLOutput reports whether --jsonl is set.
func IsJSONLOutput() bool {
	return jsonlOutput
}
