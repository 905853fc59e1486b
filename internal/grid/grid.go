// Package grid provides non-overlapping tile grid geometry.
//
// A Grid covers a pixel extent with square tiles of a fixed size. The last
// column and row hold the remainder when the extent is not a multiple of the
// tile size, so edge cells may be narrower or shorter than the tile size.
package grid

import (
	"fmt"
	"image"
)

// Grid is a tiling of a Width x Height pixel extent.
type Grid struct {
	Width    int
	Height   int
	TileSize int
}

// New returns a grid over the given extent.
func New(width, height, tileSize int) (Grid, error) {
	if tileSize <= 0 {
		return Grid{}, fmt.Errorf("grid: tile size must be positive, got %d", tileSize)
	}
	if width < 0 || height < 0 {
		return Grid{}, fmt.Errorf("grid: negative extent %dx%d", width, height)
	}
	return Grid{Width: width, Height: height, TileSize: tileSize}, nil
}

// Cols returns the number of tile columns.
func (g Grid) Cols() int {
	return ceilDiv(g.Width, g.TileSize)
}

// Rows returns the number of tile rows.
func (g Grid) Rows() int {
	return ceilDiv(g.Height, g.TileSize)
}

// Count returns the total number of cells.
func (g Grid) Count() int {
	return g.Cols() * g.Rows()
}

// Contains reports whether (col, row) is a valid cell.
func (g Grid) Contains(col, row int) bool {
	return col >= 0 && row >= 0 && col < g.Cols() && row < g.Rows()
}

// Cell returns the pixel bounds of cell (col, row), clipped to the extent.
// Out-of-range cells yield an empty rectangle.
func (g Grid) Cell(col, row int) image.Rectangle {
	if !g.Contains(col, row) {
		return image.Rectangle{}
	}
	x0 := col * g.TileSize
	y0 := row * g.TileSize
	x1 := min(x0+g.TileSize, g.Width)
	y1 := min(y0+g.TileSize, g.Height)
	return image.Rect(x0, y0, x1, y1)
}

// IsFull reports whether cell (col, row) is a full TileSize x TileSize square.
func (g Grid) IsFull(col, row int) bool {
	r := g.Cell(col, row)
	return r.Dx() == g.TileSize && r.Dy() == g.TileSize
}

// Bound is a clipped (cols, rows) iteration extent shared by two grids.
type Bound struct {
	Cols int
	Rows int
}

// Count returns the number of cells inside the bound.
func (b Bound) Count() int {
	return b.Cols * b.Rows
}

// Shared returns the smallest extent common to both grids, anchored at the
// origin. The second result is false when the grids disagree in either axis.
func Shared(a, b Grid) (Bound, bool) {
	bound := Bound{
		Cols: min(a.Cols(), b.Cols()),
		Rows: min(a.Rows(), b.Rows()),
	}
	agree := a.Cols() == b.Cols() && a.Rows() == b.Rows()
	return bound, agree
}

func ceilDiv(n, d int) int {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}
