// Package tiler aligns the output tile grid with the mask grid and decides,
// tile by tile, whether a tile holds enough tissue to keep.
package tiler

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"strconv"

	"slidetiler/internal/grid"
	"slidetiler/internal/mask"
	"slidetiler/internal/output"
	"slidetiler/pkg/colorutil"
)

// TileSource serves output tiles by grid cell.
type TileSource interface {
	Grid(level int) grid.Grid
	Tile(level, col, row int) (image.Image, error)
}

// TileSink persists a named tile.
type TileSink interface {
	Write(name string, img image.Image) error
}

// Marker records a kept cell on an overview.
type Marker interface {
	Cross(col, row int)
}

// Options controls tile selection.
type Options struct {
	PatchSize        int
	OutputDownsample int
	MaskDownsample   float64
	ContentThreshold float64 // minimum tissue share of a kept tile, in [0,1]

	SavePatches   bool
	SaveBlank     bool // also persist tiles that are not kept
	SaveNonSquare bool // keep edge tiles smaller than PatchSize x PatchSize

	SampleID string
	Logger   *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// MaskTileSize returns the mask-pixel edge of one output tile.
func MaskTileSize(patch, outputDownsample int, maskDownsample float64) int {
	return int(math.Ceil(float64(patch) * float64(outputDownsample) / maskDownsample))
}

// Classify keeps a tile whose background share does not exceed
// 1 - threshold.
func Classify(backgroundFraction, threshold float64) bool {
	return backgroundFraction <= 1-threshold
}

// Digits returns the zero-padding width for n names.
func Digits(n int) int {
	return len(strconv.Itoa(n))
}

// TileName returns the padded name of the i-th tile.
func TileName(sampleID string, i, digits int) string {
	return fmt.Sprintf("%s_%0*d", sampleID, digits, i)
}

// GridMismatch reports output and mask grids of different extent. It is a
// warning: selection proceeds on the shared bound.
type GridMismatch struct {
	FullCols, FullRows int
	MaskCols, MaskRows int
}

func (e *GridMismatch) Error() string {
	return fmt.Sprintf("tiler: output grid %dx%d and mask grid %dx%d disagree, using %dx%d",
		e.FullCols, e.FullRows, e.MaskCols, e.MaskRows,
		min(e.FullCols, e.MaskCols), min(e.FullRows, e.MaskRows))
}

// Selector classifies every cell of the shared grid.
type Selector struct {
	Source     TileSource
	Level      int // output deep-zoom level
	Mask       *mask.Mask
	Background colorutil.RGB

	Sink   TileSink // required when SavePatches is set
	Marker Marker   // optional

	Options
}

// Result summarizes one selection pass.
type Result struct {
	Records  []output.Record
	Bound    grid.Bound
	Mismatch *GridMismatch // nil when the grids agree
	Kept     int
	Written  int
}

// Run walks the shared grid in row-major order.
func (s *Selector) Run(ctx context.Context) (*Result, error) {
	logger := s.logger()
	if s.Mask == nil {
		return nil, fmt.Errorf("tiler: no mask")
	}
	if s.SavePatches && s.Sink == nil {
		return nil, fmt.Errorf("tiler: saving patches without a sink")
	}

	full := s.Source.Grid(s.Level)
	maskGrid, err := grid.New(s.Mask.Width, s.Mask.Height,
		MaskTileSize(s.PatchSize, s.OutputDownsample, s.MaskDownsample))
	if err != nil {
		return nil, fmt.Errorf("tiler: mask grid: %w", err)
	}

	bound, agree := grid.Shared(full, maskGrid)
	res := &Result{Bound: bound}
	if !agree {
		res.Mismatch = &GridMismatch{
			FullCols: full.Cols(), FullRows: full.Rows(),
			MaskCols: maskGrid.Cols(), MaskRows: maskGrid.Rows(),
		}
		logger.Warn("grid mismatch, ignoring the trailing border",
			"output", fmt.Sprintf("%dx%d", full.Cols(), full.Rows()),
			"mask", fmt.Sprintf("%dx%d", maskGrid.Cols(), maskGrid.Rows()),
			"bound", fmt.Sprintf("%dx%d", bound.Cols, bound.Rows))
	}
	logger.Debug("selecting tiles",
		"level", s.Level,
		"patch", s.PatchSize,
		"mask_patch", maskGrid.TileSize,
		"tiles", bound.Count())

	digits := Digits(full.Count())
	res.Records = make([]output.Record, 0, bound.Count())

	i := 0
	for row := 0; row < bound.Rows; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for col := 0; col < bound.Cols; col++ {
			frac := s.Mask.BackgroundFraction(maskGrid.Cell(col, row), s.Background)
			keep := Classify(frac, s.ContentThreshold)

			cell := full.Cell(col, row)
			name := TileName(s.SampleID, i, digits)

			if s.SavePatches {
				if !s.SaveNonSquare && !full.IsFull(col, row) {
					keep = false
				}
				if keep || s.SaveBlank {
					tile, err := s.Source.Tile(s.Level, col, row)
					if err != nil {
						return nil, fmt.Errorf("tiler: %s: %w", name, err)
					}
					if err := s.Sink.Write(name, tile); err != nil {
						return nil, fmt.Errorf("tiler: %s: %w", name, err)
					}
					res.Written++
				}
			}

			if keep {
				res.Kept++
				if s.Marker != nil {
					s.Marker.Cross(col, row)
				}
			}

			res.Records = append(res.Records, output.Record{
				Name:   name,
				Width:  cell.Dx(),
				Height: cell.Dy(),
				Keep:   keep,
				Row:    row,
				Column: col,
			})
			i++
		}
	}

	logger.Info("tiles selected", "kept", res.Kept, "visited", len(res.Records), "written", res.Written)
	return res, nil
}
