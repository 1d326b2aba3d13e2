package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/sdbsm/1CSessionManager-sub000/internal/db"
	"github.com/sdbsm/1CSessionManager-sub000/internal/events"
	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
	"github.com/spf13/cobra"
)

var (
	eventsClient   string
	eventsSeverity string
	eventsSince    string
	eventsLimit    int
)

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringVar(&eventsClient, "client", "", "only events of this client (name or ID)")
	eventsCmd.Flags().StringVar(&eventsSeverity, "severity", "", "only events of this severity (info, warning, error)")
	eventsCmd.Flags().StringVar(&eventsSince, "since", "", "only events newer than this duration (e.g. 1h, 24h) or RFC3339 time")
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", db.DefaultEventLimit, "maximum number of events")

	eventsCmd.AddCommand(eventsPruneCmd)
	eventsPruneCmd.Flags().StringVar(&pruneOlderThan, "older-than", "", "override event_retention.max_age for this run (e.g. 720h)")
	eventsPruneCmd.Flags().BoolVar(&pruneArchive, "archive", false, "append pruned events to JSONL archives before deleting")
}

var (
	pruneOlderThan string
	pruneArchive   bool
)

var eventsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete events and statistics older than the retention age",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *appConfig
		if pruneOlderThan != "" {
			age, ok := parseDurationArg(pruneOlderThan)
			if !ok || age <= 0 {
				return fmt.Errorf("invalid --older-than %q: must be a positive duration", pruneOlderThan)
			}
			cfg.EventRetention.MaxAge = age
		}
		if pruneArchive {
			cfg.EventRetention.ArchiveBeforeDelete = true
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		svc := events.NewRetentionService(&cfg, db.NewEventRepository(database), db.NewStatsRepository(database))
		result, err := svc.RunCleanup(commandContext(cmd))
		if err != nil {
			return err
		}

		formatter := NewFormatter(cmd.OutOrStdout())
		if formatter.Structured() {
			return formatter.Write(result)
		}
		cmd.Printf("Removed %d events and %d statistics snapshots older than %s\n",
			result.EventsDeleted, result.SnapshotsDeleted, formatTimestamp(result.Cutoff))
		if result.EventsArchived > 0 {
			cmd.Printf("Archived %d events to %s\n", result.EventsArchived, svc.ArchiveDir())
		}
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the audit event log, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := db.EventQuery{Limit: eventsLimit}

		switch models.EventSeverity(eventsSeverity) {
		case "":
		case models.EventSeverityInfo, models.EventSeverityWarning, models.EventSeverityError:
			query.Severity = models.EventSeverity(eventsSeverity)
		default:
			return fmt.Errorf("invalid --severity %q: must be info, warning or error", eventsSeverity)
		}

		if eventsSince != "" {
			since, err := parseSince(eventsSince, time.Now())
			if err != nil {
				return err
			}
			query.Since = since
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		ctx := commandContext(cmd)
		if eventsClient != "" {
			client, err := findClient(ctx, db.NewClientRepository(database), eventsClient)
			if err != nil {
				return err
			}
			query.ClientID = client.ID
		}

		recent, err := db.NewEventRepository(database).ListRecent(ctx, query)
		if err != nil {
			return err
		}
		if recent == nil {
			recent = []*models.Event{}
		}
		return WriteOutput(cmd.OutOrStdout(), eventTable(recent))
	},
}

// parseSince accepts a lookback duration or an absolute RFC3339 time.
func parseSince(value string, now time.Time) (time.Time, error) {
	if d, ok := parseDurationArg(value); ok {
		if d < 0 {
			return time.Time{}, fmt.Errorf("invalid --since %q: must not be negative", value)
		}
		return now.Add(-d), nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid --since %q: expected duration or RFC3339 time", value)
}

type eventTable []*models.Event

func (t eventTable) RenderHuman(out io.Writer) error {
	if len(t) == 0 {
		fmt.Fprintln(out, colorize("No events", styleMuted))
		return nil
	}
	w := newTable(out)
	fmt.Fprintln(w, "TIME\tSEVERITY\tMESSAGE")
	for _, e := range t {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			formatTimestamp(e.Timestamp),
			colorize(string(e.Severity), statusStyle(string(e.Severity))),
			e.Message,
		)
	}
	return w.Flush()
}
