// Package doctor provides environment and asset preflight checks for wavevoc.
package doctor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// InfoFunc probes one asset and returns a one-line summary or an error.
type InfoFunc func() (string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// CheckpointInfo validates the model checkpoint and summarizes it.
	CheckpointInfo InfoFunc
	// StatsInfo validates the feature statistics file and summarizes it.
	StatsInfo InfoFunc
	// StatsModelCheck cross-checks the stats file against the checkpoint.
	// Nil skips the check, typically because one of the assets failed to
	// load on its own.
	StatsModelCheck InfoFunc
	// FeatureDir is checked for at least one feature file; empty skips the
	// check.
	FeatureDir string
	// FeatureExt is the feature file extension looked for in FeatureDir.
	FeatureExt string
	// DecodeWorkers and ConvWorkers are the configured parallelism knobs.
	DecodeWorkers int
	ConvWorkers   int
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	if cfg.CheckpointInfo != nil {
		info, err := cfg.CheckpointInfo()
		if err != nil {
			res.fail(fmt.Sprintf("checkpoint: %v", err))
			fmt.Fprintf(w, "%s checkpoint: %v\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s checkpoint: %s\n", PassMark, info)
		}
	}

	if cfg.StatsInfo != nil {
		info, err := cfg.StatsInfo()
		if err != nil {
			res.fail(fmt.Sprintf("feature stats: %v", err))
			fmt.Fprintf(w, "%s feature stats: %v\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s feature stats: %s\n", PassMark, info)
		}
	}

	if cfg.FeatureDir != "" {
		n, err := countFeatureFiles(cfg.FeatureDir, cfg.FeatureExt)

		switch {
		case err != nil:
			res.fail(fmt.Sprintf("feature dir %q: %v", cfg.FeatureDir, err))
			fmt.Fprintf(w, "%s feature dir %s: %v\n", FailMark, cfg.FeatureDir, err)
		case n == 0:
			res.fail(fmt.Sprintf("feature dir %q: no %s files", cfg.FeatureDir, cfg.FeatureExt))
			fmt.Fprintf(w, "%s feature dir %s: no %s files\n", FailMark, cfg.FeatureDir, cfg.FeatureExt)
		default:
			fmt.Fprintf(w, "%s feature dir: %s (%d files)\n", PassMark, cfg.FeatureDir, n)
		}
	}

	if cfg.StatsModelCheck != nil {
		info, err := cfg.StatsModelCheck()
		if err != nil {
			res.fail(fmt.Sprintf("stats/model: %v", err))
			fmt.Fprintf(w, "%s stats/model: %v\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s stats/model: %s\n", PassMark, info)
		}
	}

	fmt.Fprintf(w, "%s cpu: %s (%d cores, %s)\n", PassMark, cpuid.CPU.BrandName, runtime.NumCPU(), cpuFeatureSummary())

	if cfg.DecodeWorkers > 0 || cfg.ConvWorkers > 0 {
		fmt.Fprintf(w, "%s workers: decode=%d conv=%d\n", PassMark, cfg.DecodeWorkers, cfg.ConvWorkers)
	}

	return res
}

// cpuFeatureSummary reports the SIMD features that matter for the
// convolution inner loops.
func cpuFeatureSummary() string {
	var parts []string

	for _, f := range []struct {
		name string
		id   cpuid.FeatureID
	}{
		{"AVX2", cpuid.AVX2},
		{"FMA3", cpuid.FMA3},
		{"AVX512F", cpuid.AVX512F},
	} {
		if cpuid.CPU.Supports(f.id) {
			parts = append(parts, f.name)
		}
	}

	if len(parts) == 0 {
		return "no SIMD extensions detected"
	}

	return strings.Join(parts, " ")
}

func countFeatureFiles(dir, ext string) (int, error) {
	if ext == "" {
		ext = ".safetensors"
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	n := 0

	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ext {
			n++
		}
	}

	return n, nil
}
