package doctor

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunAllPass(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "u1.safetensors"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Config{
		CheckpointInfo: func() (string, error) { return "quantize=256 layers=30", nil },
		StatsInfo:      func() (string, error) { return "dim=28", nil },
		FeatureDir:     dir,
		FeatureExt:     ".safetensors",
		DecodeWorkers:  2,
		ConvWorkers:    4,
	}

	var buf bytes.Buffer

	res := Run(cfg, &buf)
	if res.Failed() {
		t.Fatalf("unexpected failures: %v", res.Failures())
	}

	out := buf.String()
	for _, want := range []string{"checkpoint: quantize=256", "feature stats: dim=28", "1 files", "cpu:", "decode=2 conv=4"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunCheckpointFailure(t *testing.T) {
	cfg := Config{
		CheckpointInfo: func() (string, error) { return "", errors.New("missing tensors") },
	}

	var buf bytes.Buffer

	res := Run(cfg, &buf)
	if !res.Failed() {
		t.Fatal("expected failure")
	}

	if got := res.Failures(); len(got) != 1 || !strings.Contains(got[0], "missing tensors") {
		t.Errorf("failures = %v", got)
	}

	if !strings.Contains(buf.String(), FailMark) {
		t.Errorf("output missing fail mark:\n%s", buf.String())
	}
}

func TestRunEmptyFeatureDir(t *testing.T) {
	cfg := Config{FeatureDir: t.TempDir()}

	var buf bytes.Buffer

	res := Run(cfg, &buf)
	if !res.Failed() {
		t.Fatal("expected failure for empty feature dir")
	}
}

func TestRunMissingFeatureDir(t *testing.T) {
	cfg := Config{FeatureDir: filepath.Join(t.TempDir(), "nope")}

	var buf bytes.Buffer

	if res := Run(cfg, &buf); !res.Failed() {
		t.Fatal("expected failure for missing feature dir")
	}
}

func TestRunStatsModelCheck(t *testing.T) {
	var buf bytes.Buffer

	res := Run(Config{
		StatsModelCheck: func() (string, error) { return "dimensions compatible", nil },
	}, &buf)
	if res.Failed() {
		t.Fatalf("unexpected failures: %v", res.Failures())
	}

	if !strings.Contains(buf.String(), "stats/model: dimensions compatible") {
		t.Errorf("output missing cross-check line:\n%s", buf.String())
	}

	buf.Reset()

	res = Run(Config{
		StatsModelCheck: func() (string, error) { return "", errors.New("stats dim 8 exceeds model aux 3") },
	}, &buf)
	if !res.Failed() {
		t.Fatal("expected failure from cross-check")
	}

	if got := res.Failures(); len(got) != 1 || !strings.Contains(got[0], "exceeds model aux") {
		t.Errorf("failures = %v", got)
	}
}

func TestRunCallsEachCheckOnce(t *testing.T) {
	var checkpoint, stats, cross int

	cfg := Config{
		CheckpointInfo:  func() (string, error) { checkpoint++; return "ok", nil },
		StatsInfo:       func() (string, error) { stats++; return "ok", nil },
		StatsModelCheck: func() (string, error) { cross++; return "ok", nil },
	}

	var buf bytes.Buffer

	if res := Run(cfg, &buf); res.Failed() {
		t.Fatalf("unexpected failures: %v", res.Failures())
	}

	if checkpoint != 1 || stats != 1 || cross != 1 {
		t.Errorf("check invocations = %d/%d/%d, want 1/1/1", checkpoint, stats, cross)
	}
}

func TestAddFailure(t *testing.T) {
	var res Result

	res.AddFailure("external problem")

	if !res.Failed() || res.Failures()[0] != "external problem" {
		t.Errorf("failures = %v", res.Failures())
	}
}
