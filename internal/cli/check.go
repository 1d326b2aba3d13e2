package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/sdbsm/1CSessionManager-sub000/internal/daemon"
	"github.com/sdbsm/1CSessionManager-sub000/internal/db"
	"github.com/sdbsm/1CSessionManager-sub000/internal/monitor"
	"github.com/spf13/cobra"
)

var checkCycle bool

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkCycle, "cycle", false, "also run one cycle with termination disabled to refresh session counters")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe the cluster without terminating sessions",
	Long: `Resolve the cluster through the administration console and list its
infobases and interactive sessions. Nothing is terminated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)

		var registry monitor.ClientRegistry
		if checkCycle {
			database, err := openDatabase()
			if err != nil {
				return err
			}
			defer database.Close()
			registry = db.NewClientRepository(database)
		}

		report, err := daemon.Check(ctx, appConfig, runnerOverride, registry, checkCycle)
		if err != nil && report == nil {
			return err
		}
		if werr := WriteOutput(cmd.OutOrStdout(), checkView{report}); werr != nil {
			return werr
		}
		return err
	},
}

type checkView struct {
	*daemon.CheckReport
}

func (v checkView) RenderHuman(out io.Writer) error {
	r := v.CheckReport
	fmt.Fprintf(out, "%s %s\n\n", colorize("Cluster", styleTitle), r.ClusterID)

	ids := make([]string, 0, len(r.Infobases))
	for id := range r.Infobases {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return r.Infobases[ids[i]] < r.Infobases[ids[j]] })

	counts := make(map[string]int, len(r.Infobases))
	for _, s := range r.Sessions {
		counts[s.InfobaseID]++
	}

	w := newTable(out)
	fmt.Fprintln(w, "INFOBASE\tID\tSESSIONS")
	for _, id := range ids {
		fmt.Fprintf(w, "%s\t%s\t%d\n", r.Infobases[id], id, counts[id])
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	w = newTable(out)
	fmt.Fprintln(w, "SESSION\tINFOBASE\tAPP\tUSER\tSTARTED")
	for _, s := range r.Sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.InfobaseName, s.AppID, orDash(s.UserName), formatTimestamp(s.StartedAt))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if r.Cycle != nil {
		fmt.Fprintln(out)
		return cycleView{r.Cycle}.RenderHuman(out)
	}
	return nil
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
