package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"slidetiler/internal/background"
	"slidetiler/internal/config"
	"slidetiler/internal/segment"
	"slidetiler/internal/slide"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&config.Error{Field: "borders", Reason: "x"}, exitConfig},
		{fmt.Errorf("open: %w", &slide.UnreadableSlideError{Path: "a"}), exitUnreadable},
		{fmt.Errorf("mask: %w", &segment.Failure{Binary: "segment"}), exitSegmentation},
		{fmt.Errorf("background: %w", &background.EmptySampleError{Percentage: 0.1}), exitConfig},
		{fmt.Errorf("mask: %w", context.Canceled), exitOther},
		{fmt.Errorf("disk full"), exitOther},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRunRejectsBadConfigBeforeIO(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	code := run([]string{"-info", "silent", "-output", out, "-borders", "0000", "slide.png"})
	if code != exitConfig {
		t.Fatalf("exit = %d, want %d", code, exitConfig)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("output directory should not exist")
	}
}

func TestRunMissingSlide(t *testing.T) {
	dir := t.TempDir()
	code := run([]string{"-info", "silent", "-method", "otsu", "-output", dir, filepath.Join(dir, "nope.tif")})
	if code != exitUnreadable {
		t.Fatalf("exit = %d, want %d", code, exitUnreadable)
	}
}

func TestWriteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	if code := run([]string{"-patch-size", "256", "-write-config", path}); code != 0 {
		t.Fatalf("exit = %d", code)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PatchSize != 256 {
		t.Errorf("patch size = %d", cfg.PatchSize)
	}
}

func TestNewLogger(t *testing.T) {
	if newLogger(config.InfoSilent).Enabled(context.Background(), slog.LevelDebug) {
		t.Error("silent logger should drop debug")
	}
	if !newLogger(config.InfoVerbose).Enabled(context.Background(), slog.LevelDebug) {
		t.Error("verbose logger should keep debug")
	}
}
