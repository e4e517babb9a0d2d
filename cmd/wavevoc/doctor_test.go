package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-wavevoc/internal/testutil"
)

func TestDoctorAllAssetsPresent(t *testing.T) {
	dir := t.TempDir()
	cfg := testutil.TinyConfig()

	ckpt := filepath.Join(dir, "checkpoint.safetensors")
	stats := filepath.Join(dir, "stats.safetensors")
	featDir := filepath.Join(dir, "feats")

	testutil.WriteCheckpoint(t, ckpt, cfg, 1)
	testutil.WriteIdentityStats(t, stats, int(cfg.Aux))

	if err := os.MkdirAll(featDir, 0o755); err != nil {
		t.Fatal(err)
	}

	testutil.WriteFeatureFile(t, filepath.Join(featDir, "u1.safetensors"), 4, int(cfg.Aux), 1, nil)

	err := runCommand(t,
		"doctor",
		"--checkpoint", ckpt,
		"--stats", stats,
		"--feats", featDir,
	)
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}
}

func TestDoctorMissingCheckpointFails(t *testing.T) {
	dir := t.TempDir()

	stats := filepath.Join(dir, "stats.safetensors")
	testutil.WriteIdentityStats(t, stats, 3)

	err := runCommand(t,
		"doctor",
		"--checkpoint", filepath.Join(dir, "nope.safetensors"),
		"--stats", stats,
		"--feats", dir,
	)
	if err == nil {
		t.Fatal("expected doctor failure")
	}
}

func TestDoctorStatsDimensionMismatchFails(t *testing.T) {
	dir := t.TempDir()
	cfg := testutil.TinyConfig()

	ckpt := filepath.Join(dir, "checkpoint.safetensors")
	stats := filepath.Join(dir, "stats.safetensors")

	testutil.WriteCheckpoint(t, ckpt, cfg, 1)
	// Stats wider than the model conditioning dimension.
	testutil.WriteIdentityStats(t, stats, int(cfg.Aux)+5)

	featDir := filepath.Join(dir, "feats")
	if err := os.MkdirAll(featDir, 0o755); err != nil {
		t.Fatal(err)
	}

	testutil.WriteFeatureFile(t, filepath.Join(featDir, "u1.safetensors"), 4, int(cfg.Aux), 1, nil)

	err := runCommand(t,
		"doctor",
		"--checkpoint", ckpt,
		"--stats", stats,
		"--feats", featDir,
	)
	if err == nil {
		t.Fatal("expected doctor failure for dimension mismatch")
	}
}
