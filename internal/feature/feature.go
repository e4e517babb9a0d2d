// Package feature loads per-utterance auxiliary acoustic features and the
// corpus statistics used to normalize them.
package feature

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/example/go-wavevoc/internal/runtime/tensor"
	"github.com/example/go-wavevoc/internal/safetensors"
)

const (
	// FileExt is the feature file extension scanned for in directories.
	FileExt = ".safetensors"

	featKey        = "feat"
	speakerCodeKey = "speaker_code"
)

// ResolveFiles turns the --feats argument into an ordered list of feature
// file paths. A directory is scanned for feature files and sorted lexically;
// a regular file is read as a newline-separated list of paths.
func ResolveFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("feature: stat %s: %w", path, err)
	}

	if info.IsDir() {
		return scanDir(path)
	}

	return readFileList(path)
}

func scanDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("feature: scan %s: %w", dir, err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), FileExt) {
			continue
		}

		files = append(files, filepath.Join(dir, entry.Name()))
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("feature: no %s files in %s", FileExt, dir)
	}

	sort.Strings(files)

	return files, nil
}

func readFileList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feature: open list %s: %w", path, err)
	}
	defer f.Close()

	var files []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		files = append(files, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("feature: read list %s: %w", path, err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("feature: list %s names no files", path)
	}

	return files, nil
}

// UtteranceID derives the utterance identifier from a feature file path: the
// base name without extension.
func UtteranceID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReadOptions controls feature loading.
type ReadOptions struct {
	// UseSpeakerCode appends the utterance speaker code, tiled over time, to
	// every feature frame.
	UseSpeakerCode bool
}

// Read loads the [T, aux] feature matrix from a feature file. With
// UseSpeakerCode set, the speaker_code vector [S] is tiled to [T, S] and
// concatenated along the feature dimension, yielding [T, aux+S].
func Read(path string, opts ReadOptions) (*tensor.Tensor, error) {
	store, err := safetensors.OpenStore(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	feat, err := store.Tensor(featKey)
	if err != nil {
		return nil, fmt.Errorf("feature: %s: %w", path, err)
	}

	if len(feat.Shape) != 2 {
		return nil, fmt.Errorf("feature: %s: feat has rank %d, want 2", path, len(feat.Shape))
	}

	feats, err := tensor.New(feat.Data, feat.Shape)
	if err != nil {
		return nil, fmt.Errorf("feature: %s: %w", path, err)
	}

	if !opts.UseSpeakerCode {
		return feats, nil
	}

	code, err := store.Tensor(speakerCodeKey)
	if err != nil {
		return nil, fmt.Errorf("feature: %s: %w", path, err)
	}

	if len(code.Shape) != 1 || code.Shape[0] < 1 {
		return nil, fmt.Errorf("feature: %s: speaker_code has shape %v, want [S]", path, code.Shape)
	}

	frames := feat.Shape[0]

	tiledData := make([]float32, frames*code.Shape[0])
	for t := range frames {
		copy(tiledData[t*code.Shape[0]:], code.Data)
	}

	tiled, err := tensor.New(tiledData, []int64{frames, code.Shape[0]})
	if err != nil {
		return nil, fmt.Errorf("feature: %s: %w", path, err)
	}

	out, err := tensor.Concat([]*tensor.Tensor{feats, tiled}, 1)
	if err != nil {
		return nil, fmt.Errorf("feature: %s: append speaker code: %w", path, err)
	}

	return out, nil
}

// Scaler normalizes feature matrices with per-dimension corpus statistics.
type Scaler struct {
	mean  []float32
	scale []float32
}

// LoadScaler reads the mean and scale vectors from a stats file.
func LoadScaler(path string) (*Scaler, error) {
	store, err := safetensors.OpenStore(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	mean, err := store.Tensor("mean")
	if err != nil {
		return nil, fmt.Errorf("feature: stats %s: %w", path, err)
	}

	scale, err := store.Tensor("scale")
	if err != nil {
		return nil, fmt.Errorf("feature: stats %s: %w", path, err)
	}

	if len(mean.Shape) != 1 || len(scale.Shape) != 1 || mean.Shape[0] != scale.Shape[0] {
		return nil, fmt.Errorf("feature: stats %s: mean %v and scale %v must be matching vectors", path, mean.Shape, scale.Shape)
	}

	return NewScaler(mean.Data, scale.Data)
}

// NewScaler builds a scaler from mean and scale vectors of equal length.
func NewScaler(mean, scale []float32) (*Scaler, error) {
	if len(mean) == 0 || len(mean) != len(scale) {
		return nil, fmt.Errorf("feature: scaler needs matching non-empty vectors, got %d and %d", len(mean), len(scale))
	}

	for i, s := range scale {
		if s == 0 {
			return nil, fmt.Errorf("feature: scale dimension %d is zero", i)
		}
	}

	return &Scaler{
		mean:  append([]float32(nil), mean...),
		scale: append([]float32(nil), scale...),
	}, nil
}

// Dim returns the feature dimension the scaler was built for.
func (s *Scaler) Dim() int {
	return len(s.mean)
}

// Transform normalizes the leading Dim() columns of a [T, aux] matrix in
// place as (h - mean) / scale. Trailing columns, such as an appended speaker
// code, pass through unchanged.
func (s *Scaler) Transform(feats *tensor.Tensor) error {
	if s == nil {
		return errors.New("feature: scaler is nil")
	}

	shape := feats.Shape()
	if len(shape) != 2 {
		return fmt.Errorf("feature: transform expects [T, aux], got %v", shape)
	}

	dim := len(s.mean)
	if shape[1] < int64(dim) {
		return fmt.Errorf("feature: matrix has %d dimensions but stats cover %d", shape[1], dim)
	}

	width := int(shape[1])
	data := feats.RawData()

	for t := range int(shape[0]) {
		row := data[t*width : t*width+dim]
		for i := range row {
			row[i] = (row[i] - s.mean[i]) / s.scale[i]
		}
	}

	return nil
}
