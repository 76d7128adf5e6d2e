package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/raceday/internal/domain/cohort"
)

func newCohortExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the built-in cohort table as parquet",
		Long:  "Writes the built-in table in the layout cohort_path expects, as a starting point for a custom one.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := cohort.WriteParquet(cohort.DefaultTable())
			if err != nil {
				return fmt.Errorf("encode cohort table: %w", err)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(data), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "cohorts.parquet", "destination file")
	return cmd
}
