package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/raceday/internal/adapters/course"
	"github.com/okian/raceday/internal/domain/geometry"
)

func newGeometryCmd() *cobra.Command {
	var sample int
	cmd := &cobra.Command{
		Use:   "geometry <course-file>",
		Short: "Reduce a GPX or FIT course to distance, gain and terrain profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			pts, err := course.Parse(args[0], data)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			g := geometry.New(geometry.WithSampleSize(sample)).Reduce(pts)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(g)
		},
	}
	cmd.Flags().IntVar(&sample, "sample", 100, "number of points to keep in the sampled track")
	return cmd
}
