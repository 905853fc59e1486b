// Package colorutil provides shared color utilities for mask handling and overlays.
package colorutil

import (
	"fmt"
	"image/color"
	"sort"
)

// Common overlay colors used throughout the application.
var (
	Black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Red   = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	Blue  = color.RGBA{R: 0, G: 0, B: 255, A: 255}
)

// RGB is an 8-bit color triple as stored in a mask.
type RGB [3]uint8

// WhiteRGB is the background value produced by the threshold strategies.
var WhiteRGB = RGB{255, 255, 255}

// FromColor converts any color.Color to an RGB triple, ignoring alpha.
func FromColor(c color.Color) RGB {
	r, g, b, _ := c.RGBA()
	return RGB{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
}

// RGBA returns the triple as an opaque color.RGBA.
func (c RGB) RGBA() color.RGBA {
	return color.RGBA{R: c[0], G: c[1], B: c[2], A: 255}
}

// Less orders colors lexicographically on (R, G, B).
func (c RGB) Less(other RGB) bool {
	for i := 0; i < 3; i++ {
		if c[i] != other[i] {
			return c[i] < other[i]
		}
	}
	return false
}

func (c RGB) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c[0], c[1], c[2])
}

// SortUnique returns the distinct colors of cs in lexicographic order.
func SortUnique(cs []RGB) []RGB {
	seen := make(map[RGB]struct{}, len(cs))
	out := make([]RGB, 0, len(cs))
	for _, c := range cs {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
