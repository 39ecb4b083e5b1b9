package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aristath/factorlab/internal/di"
	"github.com/aristath/factorlab/internal/scheduler"
	"github.com/aristath/factorlab/internal/work"
)

func newBatchCmd(a *app) *cobra.Command {
	var (
		tickers  []string
		windows  []int
		schedule bool
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Fit every ticker and window and write the CSV artifacts",
		Long: `batch runs whole-sample and rolling fits for every ticker (all instruments
when none are configured) and writes the artifacts to FACTORLAB_OUTPUT_DIR.
With --schedule it stays up and runs on FACTORLAB_SCHEDULE instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("tickers") {
				tickers = a.cfg.Tickers
			}
			if !cmd.Flags().Changed("windows") {
				windows = a.cfg.Windows
			}

			if schedule {
				a.cfg.Tickers, a.cfg.Windows = tickers, windows
				sched := scheduler.New(a.log)
				if _, err := di.RegisterJobs(a.container, a.cfg, sched, a.log); err != nil {
					return err
				}
				sched.Start()
				<-ctx.Done()
				sched.Stop()
				return nil
			}

			if err := a.loadStore(ctx); err != nil {
				return err
			}
			report, err := a.container.Runner.Run(ctx, tickers, windows)
			if report != nil {
				writeReport(cmd.OutOrStdout(), report)
			}
			return err
		},
	}

	cmd.Flags().StringSliceVar(&tickers, "tickers", nil, "tickers to fit (default FACTORLAB_TICKERS, empty means all)")
	cmd.Flags().IntSliceVar(&windows, "windows", nil, "rolling window lengths (default FACTORLAB_WINDOWS)")
	cmd.Flags().BoolVar(&schedule, "schedule", false, "run on FACTORLAB_SCHEDULE until interrupted")
	return cmd
}

func writeReport(w io.Writer, report *work.Report) {
	s := report.Stats
	fmt.Fprintf(w, "run %s: %d tasks, %d ok, %d skipped, %d failed, %d cancelled in %s\n",
		report.RunID, s.Tasks, s.Succeeded, s.Skipped, s.Failed, s.Cancelled, s.Duration)

	tw := newTable(w)
	header := false
	for _, o := range report.Outcomes {
		if o.Status == work.StatusOK {
			continue
		}
		if !header {
			row(tw, "task", "status", "kind", "error")
			header = true
		}
		row(tw, o.Task.ID(), string(o.Status), string(o.ErrorKind), o.Error)
	}
	_ = tw.Flush()

	for _, name := range report.Artifacts {
		fmt.Fprintf(w, "wrote %s\n", name)
	}
	if report.Published {
		fmt.Fprintln(w, "published")
	}
}
