package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sdbsm/1CSessionManager-sub000/internal/daemon"
	"github.com/sdbsm/1CSessionManager-sub000/internal/logging"
	"github.com/sdbsm/1CSessionManager-sub000/internal/monitor"
	"github.com/sdbsm/1CSessionManager-sub000/internal/rac"
	"github.com/spf13/cobra"
)

var (
	runOnce bool

	// runnerOverride replaces the console runner in tests.
	runnerOverride rac.Runner

	cliVersion = "dev"
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single cycle and exit")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the session monitor",
	Long: `Start the session monitor. Every poll interval it resolves the cluster,
counts interactive sessions per client, and, when kill mode is on,
terminates the newest sessions of clients over quota and every session
of blocked clients. Stops on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := appConfig.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		d, err := daemon.New(appConfig, logging.Component("daemon"), daemon.Options{
			Database: database,
			Runner:   runnerOverride,
			Version:  cliVersion,
		})
		if err != nil {
			return err
		}
		defer d.Close()

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if runOnce {
			report, err := d.Monitor().RunCycle(ctx)
			if report != nil {
				if werr := WriteOutput(cmd.OutOrStdout(), cycleView{report}); werr != nil {
					return werr
				}
			}
			return err
		}

		return d.Run(ctx)
	},
}

// cycleView renders a cycle report.
type cycleView struct {
	*monitor.CycleReport
}

func (v cycleView) RenderHuman(out io.Writer) error {
	r := v.CycleReport
	fmt.Fprintf(out, "%s %s\n", colorize("Cycle", styleTitle), colorize(string(r.Outcome), statusStyle(string(r.Outcome))))
	if r.ClusterID != "" {
		fmt.Fprintf(out, "  cluster:      %s\n", r.ClusterID)
	}
	fmt.Fprintf(out, "  kill mode:    %t\n", r.KillMode)
	fmt.Fprintf(out, "  sessions:     %d (unattributed %d)\n", r.Sessions, r.Unattributed)
	fmt.Fprintf(out, "  terminated:   %d (failed %d)\n", r.Terminated, r.FailedKills)
	if r.Error != "" {
		fmt.Fprintf(out, "  error:        %s\n", colorize(r.Error, styleError))
	}
	if len(r.Clients) == 0 {
		return nil
	}

	w := newTable(out)
	fmt.Fprintln(w, "CLIENT\tSESSIONS\tDECISION\tTERMINATED\tFAILED")
	for _, c := range r.Clients {
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%d\n", c.ClientName, c.Sessions, c.Decision, c.Terminated, c.Failed)
	}
	return w.Flush()
}
