package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/cheggaaa/pb"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/go-wavevoc/internal/audio"
	"github.com/example/go-wavevoc/internal/config"
	"github.com/example/go-wavevoc/internal/feature"
	"github.com/example/go-wavevoc/internal/vocoder"
)

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode feature files into WAV waveforms",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			return runDecode(cmd, cfg)
		},
	}

	return cmd
}

func runDecode(cmd *cobra.Command, cfg config.Config) error {
	files, err := feature.ResolveFiles(cfg.Paths.FeaturePath)
	if err != nil {
		return err
	}

	model, err := vocoder.LoadModel(cfg.Paths.CheckpointPath)
	if err != nil {
		return err
	}

	scaler, err := feature.LoadScaler(cfg.Paths.StatsPath)
	if err != nil {
		return err
	}

	mcfg := model.Config()
	if int64(scaler.Dim()) > mcfg.Aux {
		return fmt.Errorf("stats cover %d dimensions but model conditions on %d", scaler.Dim(), mcfg.Aux)
	}

	if err := os.MkdirAll(cfg.Paths.OutDir, 0o755); err != nil {
		return fmt.Errorf("create output dir %s: %w", cfg.Paths.OutDir, err)
	}

	slog.Info("starting decode",
		"utterances", len(files),
		"checkpoint", cfg.Paths.CheckpointPath,
		"quantize", mcfg.Quantize,
		"aux", mcfg.Aux,
		"workers", cfg.Decode.Workers,
	)

	bar := pb.StartNew(len(files)).Prefix("Decoding")

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(cfg.Decode.Workers)

	for i, path := range files {
		g.Go(func() error {
			id := feature.UtteranceID(path)
			start := time.Now()

			// Each utterance gets its own random stream so results do not
			// depend on worker scheduling.
			rng := rand.New(rand.NewSource(cfg.Decode.Seed + int64(i)))

			feats, err := feature.Read(path, feature.ReadOptions{UseSpeakerCode: cfg.Decode.UseSpeakerCode})
			if err != nil {
				return err
			}

			if err := scaler.Transform(feats); err != nil {
				return fmt.Errorf("utterance %s: %w", id, err)
			}

			if dim := feats.Shape()[1]; dim != mcfg.Aux {
				return fmt.Errorf("utterance %s: features have %d dimensions, model conditions on %d", id, dim, mcfg.Aux)
			}

			samples, err := model.Generate(ctx, feats, rng, vocoder.GenerateOptions{
				Temperature: cfg.Decode.Temperature,
			}, nil)
			if err != nil {
				return fmt.Errorf("utterance %s: %w", id, err)
			}

			samples = audio.ApplyHooks(samples, decodeHooks(cfg)...)

			outPath := filepath.Join(cfg.Paths.OutDir, id+".wav")
			if err := audio.WriteWAVFile(outPath, samples, cfg.Decode.SampleRate); err != nil {
				return fmt.Errorf("utterance %s: %w", id, err)
			}

			slog.Info("decoded utterance",
				"id", id,
				"samples", len(samples),
				"out", outPath,
				"elapsed", time.Since(start).Round(time.Millisecond).String(),
			)
			bar.Increment()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	bar.Finish()

	return nil
}

// decodeHooks assembles the optional post-processing chain.
func decodeHooks(cfg config.Config) []audio.Hook {
	var hooks []audio.Hook

	if cfg.Decode.DCBlock {
		hooks = append(hooks, func(s []float32) []float32 {
			return audio.DCBlock(s, cfg.Decode.SampleRate)
		})
	}

	if cfg.Decode.PeakNormalize {
		hooks = append(hooks, audio.PeakNormalize)
	}

	if cfg.Decode.FadeMs > 0 {
		hooks = append(hooks, func(s []float32) []float32 {
			s = audio.FadeIn(s, cfg.Decode.SampleRate, cfg.Decode.FadeMs)
			return audio.FadeOut(s, cfg.Decode.SampleRate, cfg.Decode.FadeMs)
		})
	}

	return hooks
}
