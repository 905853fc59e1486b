package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"slidetiler/internal/config"
	"slidetiler/internal/output"
	"slidetiler/internal/segment"
	"slidetiler/internal/slide"
)

// writeSlide writes a 512x512 white PNG with a centered 256 px black square.
func writeSlide(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 512, 512))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(128, 128, 384, 384), image.NewUniform(color.Black), image.Point{}, draw.Src)

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Input = writeSlide(t, dir, "SAMPLE-1.png")
	cfg.Output = filepath.Join(dir, "out")
	cfg.PatchSize = 128
	cfg.OutputDownsample = 1
	cfg.MaskDownsample = 4
	cfg.TilecrossDownsample = 4
	cfg.SavePatches = true
	return cfg
}

func TestRunOtsu(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Method = "otsu"
	cfg.SaveTilecrossed = true
	cfg.SaveMask = true

	rep, err := Run(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.SampleID != "SAMPLE-1" {
		t.Errorf("sample = %q", rep.SampleID)
	}
	if rep.Selection.Kept != 4 || len(rep.Selection.Records) != 16 {
		t.Fatalf("kept %d of %d, want 4 of 16", rep.Selection.Kept, len(rep.Selection.Records))
	}

	for _, name := range []string{
		output.MetadataFile,
		output.ManifestFile,
		"tilecrossed_SAMPLE-1.png",
		"mask_SAMPLE-1.png",
	} {
		if _, err := os.Stat(filepath.Join(rep.Dir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}

	tiles, _ := os.ReadDir(output.TileDir(rep.Dir, rep.SampleID))
	if len(tiles) != 4 {
		t.Errorf("%d tiles on disk, want 4", len(tiles))
	}

	recs, err := output.ReadMetadata(output.MetadataPath(rep.Dir))
	if err != nil {
		t.Fatal(err)
	}
	if output.KeptCount(recs) != len(tiles) {
		t.Errorf("kept rows %d, tiles %d", output.KeptCount(recs), len(tiles))
	}

	man, err := output.LoadManifest(output.ManifestPath(rep.Dir))
	if err != nil {
		t.Fatal(err)
	}
	if man.Kept != 4 || man.Method != "otsu" || man.Metadata != output.MetadataFile {
		t.Errorf("manifest = %+v", man)
	}
	if got := rep.Manifest.Finished.Sub(rep.Manifest.Started); rep.Elapsed != got || got <= 0 {
		t.Errorf("elapsed = %v, manifest span %v", rep.Elapsed, got)
	}
}

func TestRunRandom(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Method = "randomsampling"
	cfg.PatchSize = 64
	cfg.NPatches = 5

	rep, err := Run(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Sample.Written != 5 {
		t.Fatalf("written %d, want 5", rep.Sample.Written)
	}
	if _, err := os.Stat(filepath.Join(output.TileDir(rep.Dir, rep.SampleID), "SAMPLE-1_0.png")); err != nil {
		t.Error(err)
	}
}

func TestRunGraphWithFakeSegmenter(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not available")
	}
	bin := filepath.Join(t.TempDir(), "segment")
	// Echo the edges back: black background with white contours, so the
	// borders sample black only.
	if err := os.WriteFile(bin, []byte("#!/bin/sh\ncp \"$4\" \"$5\"\n"), 0755); err != nil {
		t.Fatal(err)
	}

	cfg := baseConfig(t)
	cfg.SegmentBinary = bin
	rep, err := Run(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Background == nil || rep.Background.Canonical.String() != "(0,0,0)" {
		t.Fatalf("background = %+v", rep.Background)
	}
	// Intermediate files are removed without the save flags.
	for _, name := range []string{"edges_SAMPLE-1.ppm", "segmented_SAMPLE-1.ppm"} {
		if _, err := os.Stat(filepath.Join(rep.Dir, name)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s should be removed, stat err = %v", name, err)
		}
	}
}

func TestRunGraphTestMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not available")
	}
	bin := filepath.Join(t.TempDir(), "segment")
	os.WriteFile(bin, []byte("#!/bin/sh\ncp \"$4\" \"$5\"\n"), 0755)

	cfg := baseConfig(t)
	cfg.SegmentBinary = bin
	cfg.TestMode = true
	cfg.TestDownsample = 2
	cfg.SaveEdges = true

	rep, err := Run(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Selection != nil {
		t.Error("test mode must not select tiles")
	}
	if _, err := os.Stat(rep.TestImage); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(rep.Dir, "edges_SAMPLE-1.ppm")); err != nil {
		t.Errorf("edges should be kept: %v", err)
	}
	if _, err := os.Stat(output.MetadataPath(rep.Dir)); !errors.Is(err, os.ErrNotExist) {
		t.Error("test mode must not write the tile table")
	}
}

func TestRunErrorKinds(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		cfg := baseConfig(t)
		cfg.Borders = "0000"
		var ce *config.Error
		if _, err := Run(context.Background(), cfg, Options{}); !errors.As(err, &ce) {
			t.Fatalf("err = %v, want config.Error", err)
		}
		if _, err := os.Stat(cfg.Output); !errors.Is(err, os.ErrNotExist) {
			t.Error("no output may be created before validation passes")
		}
	})
	t.Run("unreadable", func(t *testing.T) {
		cfg := baseConfig(t)
		cfg.Input = filepath.Join(t.TempDir(), "missing.tif")
		var ue *slide.UnreadableSlideError
		if _, err := Run(context.Background(), cfg, Options{}); !errors.As(err, &ue) {
			t.Fatalf("err = %v, want UnreadableSlideError", err)
		}
	})
	t.Run("segmentation", func(t *testing.T) {
		cfg := baseConfig(t)
		cfg.SegmentBinary = filepath.Join(t.TempDir(), "no-such-segmenter")
		var sf *segment.Failure
		if _, err := Run(context.Background(), cfg, Options{}); !errors.As(err, &sf) {
			t.Fatalf("err = %v, want segment.Failure", err)
		}
	})
	t.Run("downsample", func(t *testing.T) {
		cfg := baseConfig(t)
		cfg.Method = "otsu"
		cfg.OutputDownsample = 1024
		var de *slide.UnsupportedDownsampleError
		if _, err := Run(context.Background(), cfg, Options{}); !errors.As(err, &de) {
			t.Fatalf("err = %v, want UnsupportedDownsampleError", err)
		}
	})
}
