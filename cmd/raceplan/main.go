// Command raceplan generates a race plan locally, without the HTTP service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/raceday/pkg/logger"
)

var verbose bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "raceplan",
		Short: "Build triathlon race execution plans from the command line",
		Long: `raceplan runs the plan generator in-process against an in-memory store.
Course files may be GPX or FIT; weather can be static, fetched or off.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Logs go to stderr so stdout stays parseable.
			if err := logger.InitWithOptions(logger.Options{Output: cmd.ErrOrStderr()}); err != nil {
				return err
			}
			level := "warn"
			if verbose {
				level = "debug"
			}
			return logger.SetLevelString(level)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cohortCmd := &cobra.Command{
		Use:   "cohort",
		Short: "Inspect and export the cohort percentile table",
	}
	cohortCmd.AddCommand(newCohortExportCmd())

	root.AddCommand(newPlanCmd(), newGeometryCmd(), cohortCmd)
	return root
}
