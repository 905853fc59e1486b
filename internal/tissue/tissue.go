// Package tissue builds the low-resolution tissue mask of a slide.
package tissue

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"slidetiler/internal/mask"
	"slidetiler/internal/method"
	"slidetiler/internal/segment"
	"slidetiler/internal/slide"

	"gocv.io/x/gocv"
)

// Canny hysteresis thresholds for the edge image fed to the segmenter.
const (
	CannyLow  = 100
	CannyHigh = 200
)

// Adaptive threshold window.
const (
	AdaptiveBlockSize = 11
	AdaptiveC         = 2
)

// Options controls one mask build.
type Options struct {
	MaskDownsample float64
	Dir            string // per-sample output directory
	SampleID       string
	Format         string // png or jpg, for mask_{id}
	SaveMask       bool

	Runner *segment.Runner // required for graph
	Logger *slog.Logger
}

// Result is a built mask and the files produced on the way.
type Result struct {
	Mask  *mask.Mask
	Level int // slide level the downsample was read from

	EdgesPath     string
	SegmentedPath string
	MaskPath      string
}

// EdgesPath returns the edge image path for a sample.
func EdgesPath(dir, id string) string { return filepath.Join(dir, "edges_"+id+".ppm") }

// SegmentedPath returns the segmenter output path for a sample.
func SegmentedPath(dir, id string) string { return filepath.Join(dir, "segmented_"+id+".ppm") }

// MaskPath returns the saved threshold mask path for a sample.
func MaskPath(dir, id, format string) string {
	return filepath.Join(dir, "mask_"+id+"."+format)
}

// Build downsamples r at the mask factor and derives a mask with strategy m.
// Random has no mask and is rejected.
func Build(ctx context.Context, r slide.Reader, m method.Method, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if _, ok := m.(method.Random); ok {
		return nil, fmt.Errorf("tissue: %s builds no mask", m.Name())
	}

	img, level, err := slide.DownsampledImage(r, opts.MaskDownsample)
	if err != nil {
		return nil, fmt.Errorf("tissue: downsample: %w", err)
	}
	logger.Debug("mask downsample read",
		"level", level,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy())

	res := &Result{Level: level}
	switch m := m.(type) {
	case method.Graph:
		res.EdgesPath = EdgesPath(opts.Dir, opts.SampleID)
		res.SegmentedPath = SegmentedPath(opts.Dir, opts.SampleID)
		res.Mask, err = graph(ctx, img, m, opts.Runner, res.EdgesPath, res.SegmentedPath)
	case method.Otsu:
		res.Mask, err = Otsu(img)
	case method.Adaptive:
		res.Mask, err = Adaptive(img)
	default:
		err = fmt.Errorf("tissue: unknown method %T", m)
	}
	if err != nil {
		return nil, err
	}

	if opts.SaveMask && method.Thresholded(m) {
		res.MaskPath = MaskPath(opts.Dir, opts.SampleID, opts.Format)
		if err := SaveMask(res.Mask, res.MaskPath); err != nil {
			return nil, err
		}
		logger.Info("mask saved", "path", res.MaskPath)
	}
	return res, nil
}

func graph(ctx context.Context, img image.Image, m method.Graph, runner *segment.Runner, edgesPath, segPath string) (*mask.Mask, error) {
	if runner == nil {
		return nil, &segment.Failure{Err: segment.ErrNotFound}
	}
	if err := WriteEdges(img, edgesPath); err != nil {
		return nil, err
	}
	params := segment.Params{Sigma: m.Sigma, K: m.K, MinSegmentSize: m.MinSegmentSize}
	if err := runner.Run(ctx, params, edgesPath, segPath); err != nil {
		return nil, err
	}
	return ReadSegmented(segPath)
}

// Edges returns the three-channel Canny edge image of img.
func Edges(img image.Image) (gocv.Mat, error) {
	src, err := ImageToMat(img)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, CannyLow, CannyHigh)

	out := gocv.NewMat()
	gocv.CvtColor(edges, &out, gocv.ColorGrayToBGR)
	return out, nil
}

// WriteEdges writes the edge image of img as a PPM.
func WriteEdges(img image.Image, path string) error {
	edges, err := Edges(img)
	if err != nil {
		return err
	}
	defer edges.Close()
	if !gocv.IMWrite(path, edges) {
		return fmt.Errorf("tissue: write %s failed", path)
	}
	return nil
}

// ReadSegmented loads the colored segmenter output as an RGB mask.
func ReadSegmented(path string) (*mask.Mask, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &segment.Failure{Err: fmt.Errorf("read segmented mask: %w", err)}
	}
	mat := gocv.IMRead(path, gocv.IMReadColor)
	defer mat.Close()
	if mat.Empty() {
		return nil, &segment.Failure{Err: fmt.Errorf("decode segmented mask %s", path)}
	}
	return MatToMask(mat)
}

// Otsu blurs the grayscale image and applies a global Otsu threshold.
func Otsu(img image.Image) (*mask.Mask, error) {
	gray, err := grayscale(img)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{5, 5}, 0, 0, gocv.BorderDefault)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(blurred, &binary, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	return MatToMask(binary)
}

// Adaptive applies a Gaussian-weighted local threshold to the grayscale image.
func Adaptive(img image.Image) (*mask.Mask, error) {
	gray, err := grayscale(img)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.AdaptiveThreshold(gray, &binary, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, AdaptiveBlockSize, AdaptiveC)
	return MatToMask(binary)
}

// SaveMask encodes m to path; the extension picks the format.
func SaveMask(m *mask.Mask, path string) error {
	mat, err := MaskToMat(m)
	if err != nil {
		return fmt.Errorf("tissue: %w", err)
	}
	defer mat.Close()
	if !gocv.IMWrite(path, mat) {
		return fmt.Errorf("tissue: write %s failed", path)
	}
	return nil
}

func grayscale(img image.Image) (gocv.Mat, error) {
	src, err := ImageToMat(img)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer src.Close()
	gray := gocv.NewMat()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	return gray, nil
}
