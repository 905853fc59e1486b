package output

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"path/filepath"

	"slidetiler/pkg/colorutil"

	"github.com/disintegration/imaging"
)

// StitchResult is a reassembled slide.
type StitchResult struct {
	Image   *image.NRGBA
	Placed  int
	Missing int
}

// Layout returns the canvas size and the offset of every column and row.
// Width is the sum of the row-0 widths and height the sum of the column-0
// heights.
func Layout(records []Record) (size image.Point, colX, rowY map[int]int) {
	widths := map[int]int{}
	heights := map[int]int{}
	maxCol, maxRow := -1, -1
	for _, r := range records {
		if r.Row == 0 {
			widths[r.Column] = r.Width
		}
		if r.Column == 0 {
			heights[r.Row] = r.Height
		}
		maxCol = max(maxCol, r.Column)
		maxRow = max(maxRow, r.Row)
	}

	colX = make(map[int]int, maxCol+1)
	for c, x := 0, 0; c <= maxCol; c++ {
		colX[c] = x
		x += widths[c]
		size.X = x
	}
	rowY = make(map[int]int, maxRow+1)
	for r, y := 0, 0; r <= maxRow; r++ {
		rowY[r] = y
		y += heights[r]
		size.Y = y
	}
	return size, colX, rowY
}

// Stitch pastes the persisted tiles of records onto a white canvas. Tiles
// without a file are left white; discarded tiles are usually not on disk.
func Stitch(records []Record, tileDir, format string) (*StitchResult, error) {
	size, colX, rowY := Layout(records)
	if size.X == 0 || size.Y == 0 {
		return nil, fmt.Errorf("output: stitch: empty layout")
	}

	res := &StitchResult{Image: imaging.New(size.X, size.Y, colorutil.White)}
	for _, r := range records {
		path := filepath.Join(tileDir, r.Name+"."+format)
		tile, err := imaging.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				res.Missing++
				continue
			}
			return nil, fmt.Errorf("output: stitch %s: %w", r.Name, err)
		}
		res.Image = imaging.Paste(res.Image, tile, image.Pt(colX[r.Column], rowY[r.Row]))
		res.Placed++
	}
	return res, nil
}
