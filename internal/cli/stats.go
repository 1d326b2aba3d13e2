package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/sdbsm/1CSessionManager-sub000/internal/db"
	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
	"github.com/sdbsm/1CSessionManager-sub000/internal/redisstats"
	"github.com/spf13/cobra"
)

var statsFromRedis bool

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsFromRedis, "redis", false, "read the snapshot mirrored to Redis instead of the database")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the latest cluster statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)

		var (
			stats *models.ClusterStats
			err   error
		)
		if statsFromRedis {
			if !appConfig.Redis.Enabled() {
				return fmt.Errorf("redis.addr is required for --redis")
			}
			client, cerr := redisstats.NewUniversalClient(appConfig.Redis.Addr,
				redisstats.WithPassword(appConfig.Redis.Password),
				redisstats.WithDB(appConfig.Redis.DB),
			)
			if cerr != nil {
				return cerr
			}
			store := redisstats.NewStore(client, appConfig.Redis.Prefix, appConfig.Redis.TTL)
			defer store.Close()
			stats, err = store.Latest(ctx)
		} else {
			database, derr := openDatabase()
			if derr != nil {
				return derr
			}
			defer database.Close()
			stats, err = db.NewStatsRepository(database).Latest(ctx)
		}
		if err != nil {
			return err
		}
		return WriteOutput(cmd.OutOrStdout(), statsView{stats})
	},
}

type statsView struct {
	*models.ClusterStats
}

func (v statsView) RenderHuman(out io.Writer) error {
	s := v.ClusterStats
	state := "online"
	if !s.Online {
		state = "offline"
	}
	fmt.Fprintf(out, "%s %s\n", colorize("Cluster", styleTitle), colorize(state, statusStyle(state)))
	if s.ClusterID != "" {
		fmt.Fprintf(out, "  id:        %s\n", s.ClusterID)
	}
	fmt.Fprintf(out, "  sessions:  %d\n", s.TotalSessions)
	fmt.Fprintf(out, "  updated:   %s\n", formatTimestamp(s.UpdatedAt))

	if err := writeCounts(out, "INFOBASE", s.ByInfobase); err != nil {
		return err
	}
	return writeCounts(out, "APPLICATION", s.ByAppKind)
}

// writeCounts prints counts sorted by descending count, then name.
func writeCounts(out io.Writer, header string, counts map[string]int) error {
	if len(counts) == 0 {
		return nil
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	fmt.Fprintln(out)
	w := newTable(out)
	fmt.Fprintf(w, "%s\tSESSIONS\n", header)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%d\n", k, counts[k])
	}
	return w.Flush()
}
