package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/habitquest/duel-engine/internal/bootstrap"
	"github.com/habitquest/duel-engine/internal/infrastructure/scheduler/jobs"
)

// SweepCmd returns the sweep command, a one-shot run of the settlement job.
func SweepCmd(load ConfigLoader) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Settle every active challenge whose window has ended",
		Long: `Run the settlement sweep once, outside the worker's schedule.

Settlement is idempotent, so running this while the worker is up is safe:
challenges the worker settles first are counted as skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			log := bootstrap.NewLogger(cfg)
			rt, err := bootstrap.Open(ctx, cfg, log, bootstrap.Options{})
			if err != nil {
				return err
			}
			defer rt.Close()

			stats, err := rt.SweepJob().Sweep(ctx)
			printSweepStats(cmd, stats)
			return err
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Abort the sweep after this long")

	return cmd
}

func printSweepStats(cmd *cobra.Command, s jobs.SweepStats) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanned  %d in %d batch(es)\n", s.Scanned, s.Batches)
	fmt.Fprintf(out, "Settled  %s\n", color.New(color.FgGreen).Sprint(s.Settled))
	fmt.Fprintf(out, "Skipped  %d\n", s.Skipped)
	failed := fmt.Sprint(s.Failed)
	if s.Failed > 0 {
		failed = color.New(color.FgRed).Sprint(s.Failed)
	}
	fmt.Fprintf(out, "Failed   %s\n", failed)
}
