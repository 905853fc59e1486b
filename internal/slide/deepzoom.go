package slide

import (
	"fmt"
	"image"
	"math"
	"math/bits"

	"slidetiler/internal/grid"

	"github.com/disintegration/imaging"
)

// DeepZoom tiles a slide on a power-of-two pyramid of its own.
//
// Level 0 is the 1x1 top of the pyramid and the last level is the full
// resolution slide. Each level halves the one below it, rounding up, so the
// deep-zoom levels need not coincide with the slide's native levels.
type DeepZoom struct {
	src      Reader
	tileSize int

	grids      []grid.Grid
	downsample []float64 // relative to slide level 0
	slideLevel []int     // native level read for each deep-zoom level
}

// NewDeepZoom builds the deep-zoom pyramid over r with square tiles.
func NewDeepZoom(r Reader, tileSize int) (*DeepZoom, error) {
	if tileSize <= 0 {
		return nil, fmt.Errorf("deepzoom: tile size must be positive, got %d", tileSize)
	}
	w, h := r.Dimensions()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("deepzoom: empty slide %dx%d", w, h)
	}

	dims := []image.Point{{X: w, Y: h}}
	for w > 1 || h > 1 {
		w = max(1, (w+1)/2)
		h = max(1, (h+1)/2)
		dims = append(dims, image.Point{X: w, Y: h})
	}

	n := len(dims)
	dz := &DeepZoom{
		src:        r,
		tileSize:   tileSize,
		grids:      make([]grid.Grid, n),
		downsample: make([]float64, n),
		slideLevel: make([]int, n),
	}
	for i := 0; i < n; i++ {
		d := dims[n-1-i]
		g, err := grid.New(d.X, d.Y, tileSize)
		if err != nil {
			return nil, err
		}
		dz.grids[i] = g
		dz.downsample[i] = math.Pow(2, float64(n-1-i))
		level, err := BestLevelForDownsample(r, dz.downsample[i])
		if err != nil {
			return nil, err
		}
		dz.slideLevel[i] = level
	}
	return dz, nil
}

// LevelCount returns the number of deep-zoom levels.
func (dz *DeepZoom) LevelCount() int {
	return len(dz.grids)
}

// TileSize returns the nominal tile edge.
func (dz *DeepZoom) TileSize() int {
	return dz.tileSize
}

// LevelForDownsample maps a power-of-two downsample to its deep-zoom level.
func (dz *DeepZoom) LevelForDownsample(d int) (int, error) {
	if d < 1 || d&(d-1) != 0 {
		return 0, &UnsupportedDownsampleError{Downsample: float64(d), Reason: "must be a power of two"}
	}
	k := bits.TrailingZeros(uint(d))
	level := len(dz.grids) - 1 - k
	if level < 0 {
		return 0, &UnsupportedDownsampleError{
			Downsample: float64(d),
			Reason:     fmt.Sprintf("pyramid has only %d deep-zoom levels", len(dz.grids)),
		}
	}
	return level, nil
}

// Grid returns the tile grid of a level.
func (dz *DeepZoom) Grid(level int) grid.Grid {
	if level < 0 || level >= len(dz.grids) {
		return grid.Grid{TileSize: dz.tileSize}
	}
	return dz.grids[level]
}

// LevelDimensions returns the pixel size of a deep-zoom level.
func (dz *DeepZoom) LevelDimensions(level int) (int, int) {
	g := dz.Grid(level)
	return g.Width, g.Height
}

// Tiles returns the (columns, rows) of a level.
func (dz *DeepZoom) Tiles(level int) (int, int) {
	g := dz.Grid(level)
	return g.Cols(), g.Rows()
}

// TileBounds returns the origin and clipped size of a tile in level pixels.
func (dz *DeepZoom) TileBounds(level, col, row int) image.Rectangle {
	return dz.Grid(level).Cell(col, row)
}

// Tile reads one tile of a level as an opaque image of exactly the size
// reported by TileBounds.
func (dz *DeepZoom) Tile(level, col, row int) (image.Image, error) {
	cell := dz.TileBounds(level, col, row)
	if cell.Empty() {
		return nil, fmt.Errorf("deepzoom: no tile (%d,%d) at level %d", col, row, level)
	}

	zds := dz.downsample[level]
	sl := dz.slideLevel[level]
	lds := dz.src.LevelDownsample(sl)

	x0 := int(float64(cell.Min.X) * zds)
	y0 := int(float64(cell.Min.Y) * zds)

	lw, lh := dz.src.LevelDimensions(sl)
	lx := int(float64(x0) / lds)
	ly := int(float64(y0) / lds)
	sw := int(math.Ceil(float64(cell.Dx()) * zds / lds))
	sh := int(math.Ceil(float64(cell.Dy()) * zds / lds))
	sw = max(1, min(sw, lw-lx))
	sh = max(1, min(sh, lh-ly))

	region, err := dz.src.ReadRegion(x0, y0, sl, sw, sh)
	if err != nil {
		return nil, fmt.Errorf("deepzoom: tile (%d,%d) level %d: %w", col, row, level, err)
	}

	tile := Flatten(region)
	if sw != cell.Dx() || sh != cell.Dy() {
		tile = imaging.Resize(tile, cell.Dx(), cell.Dy(), imaging.Lanczos)
	}
	return tile, nil
}
