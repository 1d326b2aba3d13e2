package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/sdbsm/1CSessionManager-sub000/internal/daemon"
	"github.com/sdbsm/1CSessionManager-sub000/internal/db"
	"github.com/sdbsm/1CSessionManager-sub000/internal/settings"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(settingsCmd)

	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsResetCmd)
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and change runtime settings",
	Long: `Inspect and change the settings the monitor re-reads at the start of
every cycle. Stored values override the configuration file.

Keys:
  monitor.poll_interval  delay between cycles (5s to 1h; "30s" or "30")
  monitor.kill_mode      terminate sessions (on/off)`,
}

// settingEntry is one row of settings output.
type settingEntry struct {
	Key        string `json:"key"`
	Value      string `json:"value"`
	Overridden bool   `json:"overridden"`
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Show effective settings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSettings(func(ctx context.Context, provider *settings.Provider, repo *db.SettingsRepository) error {
			effective, err := provider.MonitorSettings(ctx)
			if err != nil {
				return err
			}
			overrides, err := repo.All(ctx)
			if err != nil {
				return err
			}

			values := map[string]string{
				settings.KeyPollInterval: effective.PollInterval.String(),
				settings.KeyKillMode:     strconv.FormatBool(effective.KillMode),
			}
			keys := settings.Keys()
			if len(args) == 1 {
				if _, ok := values[args[0]]; !ok {
					_, err := settings.Normalize(args[0], "")
					return err
				}
				keys = []string{args[0]}
			}

			entries := make([]settingEntry, 0, len(keys))
			for _, key := range keys {
				_, overridden := overrides[key]
				entries = append(entries, settingEntry{Key: key, Value: values[key], Overridden: overridden})
			}
			return WriteOutput(cmd.OutOrStdout(), settingsTable(entries))
		})
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Override a setting; the monitor picks it up on its next cycle",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSettings(func(ctx context.Context, provider *settings.Provider, _ *db.SettingsRepository) error {
			value, err := provider.Set(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return writeSettingResult(cmd, settingEntry{Key: args[0], Value: value, Overridden: true})
		})
	},
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset <key>",
	Short: "Remove an override so the configured value applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSettings(func(ctx context.Context, provider *settings.Provider, _ *db.SettingsRepository) error {
			if err := provider.Reset(ctx, args[0]); err != nil {
				return err
			}
			return writeSettingResult(cmd, settingEntry{Key: args[0], Overridden: false})
		})
	},
}

func withSettings(fn func(ctx context.Context, provider *settings.Provider, repo *db.SettingsRepository) error) error {
	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	repo := db.NewSettingsRepository(database)
	provider := settings.NewProvider(daemon.DefaultSettings(appConfig), repo)
	return fn(context.Background(), provider, repo)
}

func writeSettingResult(cmd *cobra.Command, entry settingEntry) error {
	formatter := NewFormatter(cmd.OutOrStdout())
	if formatter.Structured() {
		return formatter.Write(entry)
	}
	if entry.Overridden {
		cmd.Printf("%s = %s\n", entry.Key, entry.Value)
	} else {
		cmd.Printf("%s reset to configured value\n", entry.Key)
	}
	return nil
}

type settingsTable []settingEntry

func (t settingsTable) RenderHuman(out io.Writer) error {
	w := newTable(out)
	fmt.Fprintln(w, "KEY\tVALUE\tSOURCE")
	for _, e := range t {
		source := "config"
		if e.Overridden {
			source = "stored"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Key, e.Value, colorize(source, styleMuted))
	}
	return w.Flush()
}
