package feature

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-wavevoc/internal/safetensors"
)

// StatsAccumulator computes per-dimension mean and standard deviation over a
// feature corpus, one file at a time.
type StatsAccumulator struct {
	dim    int
	count  int64
	sum    []float64
	sumSq  []float64
	frames int64
}

func NewStatsAccumulator() *StatsAccumulator {
	return &StatsAccumulator{}
}

// AddFile accumulates one feature file. The first file fixes the feature
// dimension; later files must match it.
func (a *StatsAccumulator) AddFile(path string) error {
	feats, err := Read(path, ReadOptions{})
	if err != nil {
		return err
	}

	shape := feats.Shape()
	dim := int(shape[1])

	if a.dim == 0 {
		a.dim = dim
		a.sum = make([]float64, dim)
		a.sumSq = make([]float64, dim)
	} else if dim != a.dim {
		return fmt.Errorf("feature: %s has dimension %d, corpus has %d", path, dim, a.dim)
	}

	data := feats.RawData()

	for t := range int(shape[0]) {
		row := data[t*dim : (t+1)*dim]
		for i, v := range row {
			a.sum[i] += float64(v)
			a.sumSq[i] += float64(v) * float64(v)
		}
	}

	a.frames += shape[0]
	a.count++

	return nil
}

// Files returns how many files were accumulated.
func (a *StatsAccumulator) Files() int64 { return a.count }

// Frames returns how many feature frames were accumulated.
func (a *StatsAccumulator) Frames() int64 { return a.frames }

// Finalize returns the per-dimension mean and standard deviation. Dimensions
// with zero variance get scale 1 so normalization stays defined.
func (a *StatsAccumulator) Finalize() (mean, scale []float32, err error) {
	if a.frames == 0 {
		return nil, nil, errors.New("feature: no frames accumulated")
	}

	n := float64(a.frames)

	mean = make([]float32, a.dim)
	scale = make([]float32, a.dim)

	for i := range a.dim {
		m := a.sum[i] / n

		variance := a.sumSq[i]/n - m*m
		if variance < 0 {
			variance = 0
		}

		s := math.Sqrt(variance)
		if s == 0 {
			s = 1
		}

		mean[i] = float32(m)
		scale[i] = float32(s)
	}

	return mean, scale, nil
}

// WriteStats finalizes the accumulator and writes the stats file.
func (a *StatsAccumulator) WriteStats(path string) error {
	mean, scale, err := a.Finalize()
	if err != nil {
		return err
	}

	dim := int64(a.dim)

	return safetensors.WriteFile(path, []safetensors.Tensor{
		{Name: "mean", Shape: []int64{dim}, Data: mean},
		{Name: "scale", Shape: []int64{dim}, Data: scale},
	})
}
