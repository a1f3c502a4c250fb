package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loomworks/loom/pipeline"
)

// NewWatchCmd creates the watch command, which rebuilds the workspace on a
// cron schedule until interrupted.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild the workspace on a cron schedule",
		Long: `Watch builds immediately and then rebuilds whenever the UTC cron schedule
fires. A failing build logs the failure and keeps the watch alive.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
	addBuildFlags(cmd)
	cmd.Flags().String("schedule", "", `UTC 5-field cron expression, e.g. "*/15 * * * *"`)
	_ = cmd.MarkFlagRequired("schedule")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	expr, _ := cmd.Flags().GetString("schedule")
	schedule, err := parseCronExpressionUTC(expr)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}

	runner, cleanup, err := buildRunner(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The first build runs immediately; later ones follow the schedule.
	watchBuild(ctx, cmd, runner)

	for {
		next := nextCronRunUTC(schedule, time.Now())
		fmt.Fprintf(cmd.OutOrStdout(), "next build at %s\n", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			watchBuild(ctx, cmd, runner)
		}
	}
}

func watchBuild(ctx context.Context, cmd *cobra.Command, runner *pipeline.Runner) {
	report, err := runner.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		runner.Logger.Error("build failed", "err", err)
		return
	}
	printReport(cmd, report)
}
