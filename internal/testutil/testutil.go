// Package testutil provides fixture builders for end-to-end tests: tiny
// random checkpoints, feature files, and stats files in the on-disk formats
// the commands consume.
package testutil

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/example/go-wavevoc/internal/safetensors"
	"github.com/example/go-wavevoc/internal/vocoder"
)

// TinyConfig returns a model configuration small enough for fast tests.
func TinyConfig() vocoder.Config {
	return vocoder.Config{
		Quantize:       16,
		Aux:            3,
		ResChannels:    8,
		SkipChannels:   6,
		DilationDepth:  2,
		DilationRepeat: 1,
		KernelSize:     2,
	}
}

// WriteCheckpoint writes a complete random checkpoint for cfg to path.
func WriteCheckpoint(tb testing.TB, path string, cfg vocoder.Config, seed int64) {
	tb.Helper()

	rng := rand.New(rand.NewSource(seed))

	tensors := []safetensors.Tensor{
		cfg.HParamsTensor(),
		randTensor(rng, "causal.weight", cfg.ResChannels, cfg.Quantize, cfg.KernelSize),
		randTensor(rng, "causal.bias", cfg.ResChannels),
		randTensor(rng, "post.1.weight", cfg.SkipChannels, cfg.SkipChannels, 1),
		randTensor(rng, "post.1.bias", cfg.SkipChannels),
		randTensor(rng, "post.2.weight", cfg.Quantize, cfg.SkipChannels, 1),
		randTensor(rng, "post.2.bias", cfg.Quantize),
	}

	for i := range int(cfg.DilationDepth * cfg.DilationRepeat) {
		prefix := "layers." + strconv.Itoa(i) + "."

		tensors = append(tensors,
			randTensor(rng, prefix+"dil_sigmoid.weight", cfg.ResChannels, cfg.ResChannels, cfg.KernelSize),
			randTensor(rng, prefix+"dil_sigmoid.bias", cfg.ResChannels),
			randTensor(rng, prefix+"dil_tanh.weight", cfg.ResChannels, cfg.ResChannels, cfg.KernelSize),
			randTensor(rng, prefix+"dil_tanh.bias", cfg.ResChannels),
			randTensor(rng, prefix+"aux_sigmoid.weight", cfg.ResChannels, cfg.Aux, 1),
			randTensor(rng, prefix+"aux_sigmoid.bias", cfg.ResChannels),
			randTensor(rng, prefix+"aux_tanh.weight", cfg.ResChannels, cfg.Aux, 1),
			randTensor(rng, prefix+"aux_tanh.bias", cfg.ResChannels),
			randTensor(rng, prefix+"skip.weight", cfg.SkipChannels, cfg.ResChannels, 1),
			randTensor(rng, prefix+"skip.bias", cfg.SkipChannels),
			randTensor(rng, prefix+"res.weight", cfg.ResChannels, cfg.ResChannels, 1),
			randTensor(rng, prefix+"res.bias", cfg.ResChannels),
		)
	}

	if err := safetensors.WriteFile(path, tensors); err != nil {
		tb.Fatalf("write checkpoint %s: %v", path, err)
	}
}

// WriteFeatureFile writes a random [frames, dim] feature file. A non-nil
// speakerCode is stored alongside as the utterance speaker code vector.
func WriteFeatureFile(tb testing.TB, path string, frames, dim int, seed int64, speakerCode []float32) {
	tb.Helper()

	rng := rand.New(rand.NewSource(seed))

	data := make([]float32, frames*dim)
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}

	tensors := []safetensors.Tensor{
		{Name: "feat", Shape: []int64{int64(frames), int64(dim)}, Data: data},
	}

	if speakerCode != nil {
		tensors = append(tensors, safetensors.Tensor{
			Name:  "speaker_code",
			Shape: []int64{int64(len(speakerCode))},
			Data:  speakerCode,
		})
	}

	if err := safetensors.WriteFile(path, tensors); err != nil {
		tb.Fatalf("write feature file %s: %v", path, err)
	}
}

// WriteIdentityStats writes a stats file with zero mean and unit scale so
// normalization is the identity.
func WriteIdentityStats(tb testing.TB, path string, dim int) {
	tb.Helper()

	mean := make([]float32, dim)
	scale := make([]float32, dim)

	for i := range scale {
		scale[i] = 1
	}

	if err := safetensors.WriteFile(path, []safetensors.Tensor{
		{Name: "mean", Shape: []int64{int64(dim)}, Data: mean},
		{Name: "scale", Shape: []int64{int64(dim)}, Data: scale},
	}); err != nil {
		tb.Fatalf("write stats %s: %v", path, err)
	}
}

func randTensor(rng *rand.Rand, name string, shape ...int64) safetensors.Tensor {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}

	data := make([]float32, n)
	for i := range data {
		data[i] = float32(rng.Float64() - 0.5)
	}

	return safetensors.Tensor{Name: name, Shape: shape, Data: data}
}
