package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-wavevoc/internal/doctor"
	"github.com/example/go-wavevoc/internal/feature"
	"github.com/example/go-wavevoc/internal/vocoder"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local asset and environment checks",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			// Parse each asset once; the check closures reuse the results.
			mcfg, mErr := vocoder.ValidateCheckpoint(cfg.Paths.CheckpointPath)
			scaler, sErr := feature.LoadScaler(cfg.Paths.StatsPath)

			dcfg := doctor.Config{
				CheckpointInfo: func() (string, error) {
					if mErr != nil {
						return "", mErr
					}

					return fmt.Sprintf("%s (quantize=%d aux=%d layers=%d kernel=%d)",
						cfg.Paths.CheckpointPath,
						mcfg.Quantize,
						mcfg.Aux,
						mcfg.DilationDepth*mcfg.DilationRepeat,
						mcfg.KernelSize,
					), nil
				},
				StatsInfo: func() (string, error) {
					if sErr != nil {
						return "", sErr
					}

					return fmt.Sprintf("%s (dim=%d)", cfg.Paths.StatsPath, scaler.Dim()), nil
				},
				FeatureDir:    featureDirOf(cfg.Paths.FeaturePath),
				FeatureExt:    feature.FileExt,
				DecodeWorkers: cfg.Decode.Workers,
				ConvWorkers:   cfg.Runtime.ConvWorkers,
			}

			// Cross-check stats against the checkpoint when both loaded.
			if mErr == nil && sErr == nil {
				dcfg.StatsModelCheck = func() (string, error) {
					if int64(scaler.Dim()) > mcfg.Aux {
						return "", fmt.Errorf("stats dim %d exceeds model aux %d", scaler.Dim(), mcfg.Aux)
					}

					return "dimensions compatible", nil
				}
			}

			result := doctor.Run(dcfg, os.Stdout)

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(os.Stderr, "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(os.Stdout, "doctor checks passed")

			return nil
		},
	}

	return cmd
}

// featureDirOf returns the feature path when it is a directory, or empty so
// the directory check is skipped for list files.
func featureDirOf(path string) string {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return ""
	}

	return path
}
