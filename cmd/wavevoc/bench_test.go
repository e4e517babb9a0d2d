package main

import (
	"path/filepath"
	"testing"

	"github.com/example/go-wavevoc/internal/testutil"
)

func benchCheckpoint(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "checkpoint.safetensors")
	testutil.WriteCheckpoint(t, path, testutil.TinyConfig(), 1)

	return path
}

func TestBenchEndToEnd(t *testing.T) {
	err := runCommand(t,
		"bench",
		"--checkpoint", benchCheckpoint(t),
		"--frames", "16",
		"--runs", "2",
		"--format", "json",
	)
	if err != nil {
		t.Fatalf("bench: %v", err)
	}
}

func TestBenchValidatesFlags(t *testing.T) {
	ckpt := benchCheckpoint(t)

	cases := []struct {
		name string
		args []string
	}{
		{"too few frames", []string{"--frames", "1"}},
		{"zero runs", []string{"--runs", "0"}},
		{"bad format", []string{"--format", "xml"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"bench", "--checkpoint", ckpt}, tc.args...)
			if err := runCommand(t, args...); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestBenchRTFThreshold(t *testing.T) {
	// An absurdly low threshold must trip the gate.
	err := runCommand(t,
		"bench",
		"--checkpoint", benchCheckpoint(t),
		"--frames", "16",
		"--runs", "1",
		"--rtf-threshold", "0.0000001",
	)
	if err == nil {
		t.Fatal("expected threshold failure")
	}
}
