package tissue

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"slidetiler/internal/method"
	"slidetiler/internal/segment"
	"slidetiler/internal/slide"
	"slidetiler/pkg/colorutil"
)

// square returns a white image with a black square in [lo, hi).
func square(size, lo, hi int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(lo, lo, hi, hi), image.NewUniform(color.Black), image.Point{}, draw.Src)
	return img
}

func TestMatRoundTrip(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.Set(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	mat, err := ImageToMat(img)
	if err != nil {
		t.Fatal(err)
	}
	defer mat.Close()
	if mat.Channels() != 3 || mat.Rows() != 2 || mat.Cols() != 3 {
		t.Fatalf("mat %dx%dx%d", mat.Cols(), mat.Rows(), mat.Channels())
	}

	m, err := MatToMask(mat)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.At(1, 1); got != (colorutil.RGB{10, 20, 30}) {
		t.Fatalf("At(1,1) = %v, want RGB order", got)
	}

	back, err := MatToImage(mat)
	if err != nil {
		t.Fatal(err)
	}
	if c := back.RGBAAt(1, 1); c.R != 10 || c.B != 30 {
		t.Fatalf("MatToImage = %v", c)
	}
}

func TestOtsu(t *testing.T) {
	m, err := Otsu(square(64, 16, 48))
	if err != nil {
		t.Fatal(err)
	}
	if m.Channels != 1 {
		t.Fatalf("channels = %d, want 1", m.Channels)
	}
	if !m.Equal(2, 2, colorutil.WhiteRGB) {
		t.Error("background corner should be white")
	}
	if m.Equal(32, 32, colorutil.WhiteRGB) {
		t.Error("tissue center should not be white")
	}
}

func TestAdaptive(t *testing.T) {
	m, err := Adaptive(square(64, 16, 48))
	if err != nil {
		t.Fatal(err)
	}
	if !m.Equal(2, 2, colorutil.WhiteRGB) {
		t.Error("flat background should be white")
	}
	if m.Equal(17, 32, colorutil.WhiteRGB) {
		t.Error("pixel just inside the tissue edge should be dark")
	}
}

func TestEdges(t *testing.T) {
	edges, err := Edges(square(64, 16, 48))
	if err != nil {
		t.Fatal(err)
	}
	defer edges.Close()
	if edges.Channels() != 3 {
		t.Fatalf("edge image has %d channels, want 3", edges.Channels())
	}
	m, err := MatToMask(edges)
	if err != nil {
		t.Fatal(err)
	}
	if m.Equal(2, 2, colorutil.WhiteRGB) {
		t.Error("flat region should have no edges")
	}
	if len(m.UniqueColors(m.Bounds())) != 2 {
		t.Error("edge image should be black with white edges")
	}
}

func TestBuildOtsuSavesMask(t *testing.T) {
	s, err := slide.NewImageSlide(square(256, 64, 192))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	res, err := Build(context.Background(), s, method.Otsu{}, Options{
		MaskDownsample: 4,
		Dir:            dir,
		SampleID:       "S1",
		Format:         "png",
		SaveMask:       true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Mask.Width != 64 || res.Mask.Height != 64 {
		t.Fatalf("mask %dx%d, want 64x64", res.Mask.Width, res.Mask.Height)
	}
	if _, err := os.Stat(filepath.Join(dir, "mask_S1.png")); err != nil {
		t.Fatalf("mask not saved: %v", err)
	}
}

func TestBuildRejectsRandom(t *testing.T) {
	s, _ := slide.NewImageSlide(square(32, 8, 24))
	if _, err := Build(context.Background(), s, method.Random{Patches: 1}, Options{MaskDownsample: 1}); err == nil {
		t.Fatal("random has no mask and should be rejected")
	}
}

func TestBuildGraphWithFakeSegmenter(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not available")
	}
	bin := filepath.Join(t.TempDir(), "segment")
	// Echo the edge image back as the segmentation.
	if err := os.WriteFile(bin, []byte("#!/bin/sh\ncp \"$4\" \"$5\"\n"), 0755); err != nil {
		t.Fatal(err)
	}

	s, _ := slide.NewImageSlide(square(128, 32, 96))
	dir := t.TempDir()
	res, err := Build(context.Background(), s, method.Graph{Sigma: 0.5, K: 100, MinSegmentSize: 10}, Options{
		MaskDownsample: 2,
		Dir:            dir,
		SampleID:       "G",
		Runner:         &segment.Runner{Binary: bin},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Mask.Channels != 3 || res.Mask.Width != 64 {
		t.Fatalf("segmented mask %dx%dx%d", res.Mask.Width, res.Mask.Height, res.Mask.Channels)
	}
	for _, p := range []string{res.EdgesPath, res.SegmentedPath} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s missing: %v", p, err)
		}
	}
}
