package main

import (
	"log/slog"

	"github.com/cheggaaa/pb"
	"github.com/spf13/cobra"

	"github.com/example/go-wavevoc/internal/feature"
)

func newStatsCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Compute feature mean/scale statistics over a corpus",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			files, err := feature.ResolveFiles(cfg.Paths.FeaturePath)
			if err != nil {
				return err
			}

			out := outPath
			if out == "" {
				out = cfg.Paths.StatsPath
			}

			acc := feature.NewStatsAccumulator()
			bar := pb.StartNew(len(files)).Prefix("Accumulating")

			for _, path := range files {
				if err := acc.AddFile(path); err != nil {
					return err
				}

				bar.Increment()
			}

			bar.Finish()

			if err := acc.WriteStats(out); err != nil {
				return err
			}

			slog.Info("wrote feature statistics",
				"out", out,
				"files", acc.Files(),
				"frames", acc.Frames(),
			)

			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "Stats output path (defaults to the configured stats path)")

	return cmd
}
