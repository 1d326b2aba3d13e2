package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sdbsm/1CSessionManager-sub000/internal/db"
	"github.com/spf13/cobra"
)

var (
	migrateSteps   int
	migrateVersion int
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd, migrateVersionCmd)

	migrateUpCmd.Flags().IntVar(&migrateVersion, "to", 0, "stop at this schema version (0 = latest)")
	migrateDownCmd.Flags().IntVarP(&migrateSteps, "steps", "n", 1, "number of migrations to roll back")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the registry database schema",
	Long: `Manage the schema of the SQLite database holding the client registry,
the event log, statistics history and runtime settings.

Every other command applies pending migrations on open, so 'migrate up'
is only needed to prepare a database ahead of time.`,
}

// migrationChange reports the outcome of up or down.
type migrationChange struct {
	Direction string `json:"direction"`
	Count     int    `json:"count"`
	Version   int    `json:"version"`
}

func (c migrationChange) RenderHuman(out io.Writer) error {
	var err error
	switch {
	case c.Count == 0 && c.Direction == "up":
		_, err = fmt.Fprintf(out, "No pending migrations (schema version %d)\n", c.Version)
	case c.Count == 0:
		_, err = fmt.Fprintf(out, "No migrations to roll back (schema version %d)\n", c.Version)
	case c.Direction == "up":
		_, err = fmt.Fprintf(out, "Applied %d migration(s), schema version %d\n", c.Count, c.Version)
	default:
		_, err = fmt.Fprintf(out, "Rolled back %d migration(s), schema version %d\n", c.Count, c.Version)
	}
	return err
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSchema(cmd, func(ctx context.Context, database *db.DB) error {
			before := schemaVersion(ctx, database)

			if migrateVersion > 0 {
				if err := database.MigrateTo(ctx, migrateVersion); err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
			} else if _, err := database.MigrateUp(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			after := schemaVersion(ctx, database)
			change := migrationChange{Direction: "up", Version: after}
			if after > before {
				change.Count = after - before
			}
			return WriteOutput(cmd.OutOrStdout(), change)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the newest migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateSteps < 1 {
			return fmt.Errorf("invalid --steps %d: must be at least 1", migrateSteps)
		}
		return withSchema(cmd, func(ctx context.Context, database *db.DB) error {
			count, err := database.MigrateDown(ctx, migrateSteps)
			if err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
			return WriteOutput(cmd.OutOrStdout(), migrationChange{
				Direction: "down",
				Count:     count,
				Version:   schemaVersion(ctx, database),
			})
		})
	},
}

// migrationTable lists every known migration.
type migrationTable []db.MigrationStatus

func (t migrationTable) RenderHuman(out io.Writer) error {
	w := newTable(out)
	fmt.Fprintln(w, "VERSION\tDESCRIPTION\tSTATUS\tAPPLIED AT")
	for _, m := range t {
		state, appliedAt := "pending", "-"
		if m.Applied {
			state, appliedAt = "applied", m.AppliedAt
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", m.Version, m.Description, colorize(state, statusStyle(state)), appliedAt)
	}
	return w.Flush()
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSchema(cmd, func(ctx context.Context, database *db.DB) error {
			status, err := database.MigrationStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			return WriteOutput(cmd.OutOrStdout(), migrationTable(status))
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the current schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSchema(cmd, func(ctx context.Context, database *db.DB) error {
			version := schemaVersion(ctx, database)
			formatter := NewFormatter(cmd.OutOrStdout())
			if formatter.Structured() {
				return formatter.Write(map[string]int{"version": version})
			}
			cmd.Printf("Schema version: %d\n", version)
			return nil
		})
	},
}

// withSchema opens the database without applying migrations.
func withSchema(cmd *cobra.Command, fn func(ctx context.Context, database *db.DB) error) error {
	database, err := connect(false)
	if err != nil {
		return err
	}
	defer database.Close()
	return fn(commandContext(cmd), database)
}

// openDatabase opens the configured database and applies pending migrations.
func openDatabase() (*db.DB, error) {
	return connect(true)
}

func connect(migrate bool) (*db.DB, error) {
	if appConfig == nil {
		return nil, errors.New("configuration not loaded")
	}

	database, err := db.Open(db.Config{
		Path:          appConfig.DatabasePath(),
		MaxOpenConns:  appConfig.Database.MaxConnections,
		BusyTimeoutMs: appConfig.Database.BusyTimeoutMs,
	})
	if err != nil {
		return nil, err
	}
	if !migrate {
		return database, nil
	}

	ctx := context.Background()
	before := schemaVersion(ctx, database)
	applied, err := database.MigrateUp(ctx)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("auto-migrate failed: %w", err)
	}
	if applied > 0 {
		logger.Info().
			Str("path", database.Path()).
			Int("from_version", before).
			Int("to_version", schemaVersion(ctx, database)).
			Msg("database migrated")
	}
	return database, nil
}

// schemaVersion returns the applied schema version, 0 for a fresh database.
func schemaVersion(ctx context.Context, database *db.DB) int {
	version, err := database.SchemaVersion(ctx)
	if err != nil {
		if !strings.Contains(err.Error(), "no such table") {
			logger.Debug().Err(err).Msg("failed to read schema version")
		}
		return 0
	}
	return version
}
