package slide

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/tiff"
)

// minLevelSide stops pyramid synthesis once a level would be smaller than
// this on its short side.
const minLevelSide = 256

// ImageSlide is an in-memory Reader over a decoded image. Levels are
// pre-rendered copies of the base image at the requested downsamples.
type ImageSlide struct {
	Path   string
	levels []imageLevel
}

type imageLevel struct {
	img        *image.NRGBA
	downsample float64
}

// NewImageSlide builds a slide from img with the given level downsamples.
// The base level (downsample 1) is always present; other factors need not be
// powers of two.
func NewImageSlide(img image.Image, downsamples ...float64) (*ImageSlide, error) {
	if img == nil {
		return nil, errors.New("slide: nil image")
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, errors.New("slide: empty image")
	}

	factors := []float64{1}
	for _, d := range downsamples {
		if d <= 1 {
			continue
		}
		factors = append(factors, d)
	}
	sort.Float64s(factors)

	s := &ImageSlide{}
	base := imaging.Clone(img)
	for i, d := range factors {
		if i > 0 && d == factors[i-1] {
			continue
		}
		if d == 1 {
			s.levels = append(s.levels, imageLevel{img: base, downsample: 1})
			continue
		}
		w := int(math.Floor(float64(b.Dx()) / d))
		h := int(math.Floor(float64(b.Dy()) / d))
		if w < 1 || h < 1 {
			break
		}
		s.levels = append(s.levels, imageLevel{
			img:        imaging.Resize(base, w, h, imaging.Box),
			downsample: d,
		})
	}
	return s, nil
}

// Open decodes an image file into a slide with synthesized factor-4 levels.
func Open(path string) (*ImageSlide, error) {
	if !IsSupportedFormat(path) {
		return nil, &UnreadableSlideError{Path: path, Err: fmt.Errorf("unsupported format %q", filepath.Ext(path))}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, &UnreadableSlideError{Path: path, Err: err}
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, &UnreadableSlideError{Path: path, Err: fmt.Errorf("decode: %w", err)}
	}

	b := img.Bounds()
	var factors []float64
	for d := 4.0; float64(min(b.Dx(), b.Dy()))/d >= minLevelSide; d *= 4 {
		factors = append(factors, d)
	}

	s, err := NewImageSlide(img, factors...)
	if err != nil {
		return nil, &UnreadableSlideError{Path: path, Err: err}
	}
	s.Path = path
	return s, nil
}

// Dimensions returns the base level size.
func (s *ImageSlide) Dimensions() (int, int) {
	return s.LevelDimensions(0)
}

// LevelCount returns the number of levels.
func (s *ImageSlide) LevelCount() int {
	return len(s.levels)
}

// LevelDimensions returns the size of a level, or 0x0 if out of range.
func (s *ImageSlide) LevelDimensions(level int) (int, int) {
	if level < 0 || level >= len(s.levels) {
		return 0, 0
	}
	b := s.levels[level].img.Bounds()
	return b.Dx(), b.Dy()
}

// LevelDownsample returns the nominal downsample of a level.
func (s *ImageSlide) LevelDownsample(level int) float64 {
	if level < 0 || level >= len(s.levels) {
		return 0
	}
	return s.levels[level].downsample
}

// ReadRegion reads a block of a level. Areas outside the level are left
// transparent.
func (s *ImageSlide) ReadRegion(x, y, level, width, height int) (image.Image, error) {
	if level < 0 || level >= len(s.levels) {
		return nil, fmt.Errorf("slide: level %d out of range [0,%d)", level, len(s.levels))
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("slide: invalid region size %dx%d", width, height)
	}

	lv := s.levels[level]
	lx := int(math.Floor(float64(x) / lv.downsample))
	ly := int(math.Floor(float64(y) / lv.downsample))
	want := image.Rect(lx, ly, lx+width, ly+height)

	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	inter := want.Intersect(lv.img.Bounds())
	if inter.Empty() {
		return dst, nil
	}
	crop := imaging.Crop(lv.img, inter)
	return imaging.Paste(dst, crop, inter.Min.Sub(want.Min)), nil
}

// Close releases the level images.
func (s *ImageSlide) Close() error {
	s.levels = nil
	return nil
}

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

// SampleID returns the file name of path without directory or extension.
func SampleID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
