// Package slide adapts multi-resolution slide readers for tile extraction.
//
// A Reader exposes the pyramid of a whole-slide image: base dimensions,
// per-level dimensions and downsample factors, and random-access region
// reads. The helpers in this package select pyramid levels, produce
// downsampled whole-slide arrays and tile any level with a deep-zoom grid.
package slide

import (
	"fmt"
	"image"
	"math"

	"slidetiler/pkg/colorutil"

	"github.com/disintegration/imaging"
)

// levelEpsilon biases level selection toward the finer level when the
// requested downsample and a native downsample are nearly equal.
const levelEpsilon = 0.1

// Reader is a multi-resolution image.
type Reader interface {
	// Dimensions returns the level-0 pixel size.
	Dimensions() (width, height int)
	// LevelCount returns the number of pyramid levels.
	LevelCount() int
	// LevelDimensions returns the pixel size of a level.
	LevelDimensions(level int) (width, height int)
	// LevelDownsample returns the downsample of a level relative to level 0.
	LevelDownsample(level int) float64
	// ReadRegion reads a width x height block at the given level. The origin
	// is expressed in level-0 coordinates. Pixels outside the slide are
	// transparent.
	ReadRegion(x, y, level, width, height int) (image.Image, error)
	// Close releases the slide.
	Close() error
}

// UnreadableSlideError is returned when a slide cannot be opened.
type UnreadableSlideError struct {
	Path string
	Err  error
}

func (e *UnreadableSlideError) Error() string {
	return fmt.Sprintf("slide: cannot read %s: %v", e.Path, e.Err)
}

func (e *UnreadableSlideError) Unwrap() error { return e.Err }

// UnsupportedDownsampleError is returned for downsample factors the pyramid
// cannot serve.
type UnsupportedDownsampleError struct {
	Downsample float64
	Reason     string
}

func (e *UnsupportedDownsampleError) Error() string {
	return fmt.Sprintf("slide: unsupported downsample %g: %s", e.Downsample, e.Reason)
}

// BestLevelForDownsample returns the last level whose native downsample does
// not exceed d (plus a small epsilon). Levels are assumed to be ordered from
// finest to coarsest.
func BestLevelForDownsample(r Reader, d float64) (int, error) {
	if d < 1 || math.IsNaN(d) {
		return 0, &UnsupportedDownsampleError{Downsample: d, Reason: "must be >= 1"}
	}
	best := 0
	for i := 0; i < r.LevelCount(); i++ {
		if r.LevelDownsample(i) <= d+levelEpsilon {
			best = i
		}
	}
	return best, nil
}

// DownsampledImage reads the whole slide at the level best suited for d and
// resizes it to exactly floor(W0/d) x floor(H0/d). Transparent pixels are
// composited over white and the result is opaque. The selected level is
// returned alongside the image.
func DownsampledImage(r Reader, d float64) (*image.NRGBA, int, error) {
	level, err := BestLevelForDownsample(r, d)
	if err != nil {
		return nil, 0, err
	}

	w0, h0 := r.Dimensions()
	tw := int(math.Floor(float64(w0) / d))
	th := int(math.Floor(float64(h0) / d))
	if tw < 1 || th < 1 {
		return nil, level, &UnsupportedDownsampleError{
			Downsample: d,
			Reason:     fmt.Sprintf("slide %dx%d would be empty", w0, h0),
		}
	}

	lw, lh := r.LevelDimensions(level)
	region, err := r.ReadRegion(0, 0, level, lw, lh)
	if err != nil {
		return nil, level, fmt.Errorf("read level %d: %w", level, err)
	}

	flat := Flatten(region)
	if flat.Bounds().Dx() != tw || flat.Bounds().Dy() != th {
		flat = imaging.Resize(flat, tw, th, imaging.Linear)
	}
	return flat, level, nil
}

// Flatten composites img over an opaque white background.
func Flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), colorutil.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
