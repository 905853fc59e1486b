// Package overview draws the tile-crossed overview of a slide and the graph
// segmentation test image.
package overview

import (
	"fmt"
	"image"
	"math"

	"slidetiler/internal/background"
	"slidetiler/internal/mask"
	"slidetiler/internal/output"
	"slidetiler/internal/tissue"
	"slidetiler/pkg/colorutil"

	"gocv.io/x/gocv"
)

const (
	crossThickness  = 3
	borderThickness = 2
)

// Pitch returns the overview pixel edge of one output tile.
func Pitch(patch, outputDownsample int, overviewDownsample float64) int {
	return int(math.Ceil(float64(patch) * float64(outputDownsample) / overviewDownsample))
}

// Canvas is a downsampled slide with the tile grid drawn on it. A blue cross
// is added over every kept tile.
type Canvas struct {
	mat   gocv.Mat
	pitch int
}

// NewCanvas copies img and draws a red grid line every pitch pixels.
func NewCanvas(img image.Image, pitch int) (*Canvas, error) {
	if pitch <= 0 {
		return nil, fmt.Errorf("overview: pitch must be positive, got %d", pitch)
	}
	mat, err := tissue.ImageToMat(img)
	if err != nil {
		return nil, fmt.Errorf("overview: %w", err)
	}
	drawGrid(&mat, pitch)
	return &Canvas{mat: mat, pitch: pitch}, nil
}

// Cross draws both diagonals of cell (col, row). Cells at the trailing edge
// are clipped to the canvas.
func (c *Canvas) Cross(col, row int) {
	w, h := c.mat.Cols(), c.mat.Rows()
	x0, y0 := col*c.pitch, row*c.pitch
	if x0 >= w || y0 >= h {
		return
	}
	cw := min(c.pitch, w-x0)
	ch := min(c.pitch, h-y0)

	gocv.Line(&c.mat, image.Pt(x0, y0), image.Pt(x0+cw, y0+ch), colorutil.Blue, crossThickness)
	gocv.Line(&c.mat, image.Pt(x0, y0+ch), image.Pt(x0+cw, y0), colorutil.Blue, crossThickness)
}

func (c *Canvas) snapshot() (*image.RGBA, error) {
	return tissue.MatToImage(c.mat)
}

// Save encodes the canvas with the tile encoder; the extension picks the
// format.
func (c *Canvas) Save(path string) error {
	img, err := c.snapshot()
	if err != nil {
		return fmt.Errorf("overview: %w", err)
	}
	return output.SaveImage(img, path)
}

// Close releases the canvas.
func (c *Canvas) Close() error {
	return c.mat.Close()
}

// RenderTestImage resizes the segmented mask to width x height, draws the
// tile grid at pitch and outlines the border band sampled for background
// identification at pct percent, then writes the result to path.
func RenderTestImage(m *mask.Mask, width, height, pitch int, pct float64, path string) error {
	if width <= 0 || height <= 0 || pitch <= 0 {
		return fmt.Errorf("overview: invalid test image geometry %dx%d pitch %d", width, height, pitch)
	}
	src, err := tissue.MaskToMat(m)
	if err != nil {
		return fmt.Errorf("overview: %w", err)
	}
	defer src.Close()

	if src.Channels() == 1 {
		gocv.CvtColor(src, &src, gocv.ColorGrayToBGR)
	}

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(src, &dst, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)

	drawGrid(&dst, pitch)
	for _, r := range borderBars(width, height, pct) {
		gocv.Rectangle(&dst, r, colorutil.Black, -1)
	}

	if !gocv.IMWrite(path, dst) {
		return fmt.Errorf("overview: write %s failed", path)
	}
	return nil
}

// borderBars returns the four filled bars outlining the inner edge of the
// border band.
func borderBars(w, h int, pct float64) []image.Rectangle {
	hl := background.Lines(h, pct)
	wl := background.Lines(w, pct)
	t := borderThickness
	return []image.Rectangle{
		image.Rect(wl, hl, w-wl, hl+t),     // top
		image.Rect(wl, h-hl-t, w-wl, h-hl), // bottom
		image.Rect(wl, hl, wl+t, h-hl),     // left
		image.Rect(w-wl-t, hl, w-wl, h-hl), // right
	}
}

func drawGrid(mat *gocv.Mat, pitch int) {
	w, h := mat.Cols(), mat.Rows()
	for x := 0; x < w; x += pitch {
		gocv.Line(mat, image.Pt(x, 0), image.Pt(x, h-1), colorutil.Red, 1)
	}
	for y := 0; y < h; y += pitch {
		gocv.Line(mat, image.Pt(0, y), image.Pt(w-1, y), colorutil.Red, 1)
	}
}
