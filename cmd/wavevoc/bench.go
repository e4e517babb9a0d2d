package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/go-wavevoc/internal/bench"
	"github.com/example/go-wavevoc/internal/runtime/tensor"
	"github.com/example/go-wavevoc/internal/vocoder"
)

func newBenchCmd() *cobra.Command {
	var (
		frames       int
		runs         int
		format       string
		rtfThreshold float64
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark generation throughput and realtime factor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if frames < 2 {
				return fmt.Errorf("--frames must be at least 2")
			}
			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			model, err := vocoder.LoadModel(cfg.Paths.CheckpointPath)
			if err != nil {
				return err
			}

			rng := rand.New(rand.NewSource(cfg.Decode.Seed))

			feats, err := randomFeatures(rng, frames, model.Config().Aux)
			if err != nil {
				return err
			}

			results := make([]bench.RunResult, 0, runs)

			for i := range runs {
				start := time.Now()

				samples, err := model.Generate(cmd.Context(), feats, rng, vocoder.GenerateOptions{
					Temperature: cfg.Decode.Temperature,
				}, nil)
				if err != nil {
					return fmt.Errorf("run %d failed: %w", i+1, err)
				}

				dur := time.Since(start)
				audioDur := bench.AudioDuration(len(samples), cfg.Decode.SampleRate)

				results = append(results, bench.RunResult{
					Index:         i,
					Cold:          i == 0,
					Duration:      dur,
					AudioDuration: audioDur,
					RTF:           bench.CalcRTF(dur, audioDur),
				})
			}

			durations := make([]time.Duration, len(results))
			for i, r := range results {
				durations[i] = r.Duration
			}
			stats := bench.ComputeStats(durations)

			switch format {
			case "json":
				bench.FormatJSON(results, stats, os.Stdout)
			default:
				bench.FormatTable(results, stats, os.Stdout)
			}

			return bench.CheckRTFThreshold(bench.MeanRTF(results), rtfThreshold)
		},
	}

	cmd.Flags().IntVar(&frames, "frames", 200, "Feature frames per run")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of generation runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&rtfThreshold, "rtf-threshold", 0, "Exit non-zero if mean RTF exceeds this value (0 = disabled)")

	return cmd
}

// randomFeatures draws a standard-normal [frames, aux] conditioning matrix,
// matching what normalized real features look like.
func randomFeatures(rng *rand.Rand, frames int, aux int64) (*tensor.Tensor, error) {
	data := make([]float32, int64(frames)*aux)
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}

	return tensor.New(data, []int64{int64(frames), aux})
}
