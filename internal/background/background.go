// Package background identifies the background color of a tissue mask.
//
// Segmenters may label contiguous background as several regions. The colors
// found along the selected borders or corners are all treated as background
// and folded into the lexicographically smallest one before tiles are
// classified.
package background

import (
	"fmt"
	"image"
	"math"
	"strings"

	"slidetiler/internal/mask"
	"slidetiler/pkg/colorutil"
)

// Selector enables up to four image regions. For borders the bits are
// (left, bottom, right, top); for corners (top-left, bottom-left,
// bottom-right, top-right).
type Selector [4]bool

// ParseSelector parses a four-digit string of 0s and 1s such as "1010".
func ParseSelector(s string) (Selector, error) {
	var sel Selector
	if len(s) != 4 {
		return sel, fmt.Errorf("selector %q must have four digits", s)
	}
	for i, r := range s {
		switch r {
		case '0':
		case '1':
			sel[i] = true
		default:
			return sel, fmt.Errorf("selector %q: digit %q is not 0 or 1", s, r)
		}
	}
	return sel, nil
}

// Any reports whether at least one region is enabled.
func (s Selector) Any() bool {
	return s[0] || s[1] || s[2] || s[3]
}

func (s Selector) String() string {
	var b strings.Builder
	for _, on := range s {
		if on {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// SelectorError reports an invalid borders/corners combination.
type SelectorError struct {
	Borders Selector
	Corners Selector
}

func (e *SelectorError) Error() string {
	return fmt.Sprintf("background: exactly one of borders (%s) and corners (%s) must be non-zero", e.Borders, e.Corners)
}

// CheckExclusive returns a *SelectorError unless exactly one selector is set.
func CheckExclusive(borders, corners Selector) error {
	if borders.Any() == corners.Any() {
		return &SelectorError{Borders: borders, Corners: corners}
	}
	return nil
}

// EmptySampleError reports a border percentage too small to sample any
// pixel of the mask. It can only be detected once the mask size is known.
type EmptySampleError struct {
	Percentage    float64
	Width, Height int
}

func (e *EmptySampleError) Error() string {
	return fmt.Sprintf("background: no pixels sampled at %g%% of a %dx%d mask", e.Percentage, e.Width, e.Height)
}

// Result is the background found on a mask.
type Result struct {
	Canonical  colorutil.RGB
	Candidates []colorutil.RGB // sorted, Candidates[0] == Canonical
}

// Lines converts a border percentage into a strip thickness for an axis of
// the given length.
func Lines(length int, pct float64) int {
	return int(math.Round(float64(length) * pct / 100))
}

// Regions returns the rectangles sampled for the given selectors.
func Regions(w, h int, pct float64, borders, corners Selector) []image.Rectangle {
	hl := Lines(h, pct)
	wl := Lines(w, pct)

	var rs []image.Rectangle
	bordersRects := [4]image.Rectangle{
		image.Rect(0, 0, wl, h),   // left
		image.Rect(0, h-hl, w, h), // bottom
		image.Rect(w-wl, 0, w, h), // right
		image.Rect(0, 0, w, hl),   // top
	}
	cornerRects := [4]image.Rectangle{
		image.Rect(0, 0, wl, hl),     // top-left
		image.Rect(0, h-hl, wl, h),   // bottom-left
		image.Rect(w-wl, h-hl, w, h), // bottom-right
		image.Rect(w-wl, 0, w, hl),   // top-right
	}
	for i, on := range borders {
		if on {
			rs = append(rs, bordersRects[i])
		}
	}
	for i, on := range corners {
		if on {
			rs = append(rs, cornerRects[i])
		}
	}
	return rs
}

// Identify collects the colors present in the selected border or corner
// regions of m. The canonical background is the smallest collected color.
func Identify(m *mask.Mask, pct float64, borders, corners Selector) (Result, error) {
	if err := CheckExclusive(borders, corners); err != nil {
		return Result{}, err
	}
	if pct < 0 || pct > 100 {
		return Result{}, fmt.Errorf("background: percentage %g outside [0,100]", pct)
	}

	var all []colorutil.RGB
	for _, r := range Regions(m.Width, m.Height, pct, borders, corners) {
		all = append(all, m.UniqueColors(r)...)
	}
	cands := colorutil.SortUnique(all)
	if len(cands) == 0 {
		return Result{}, &EmptySampleError{Percentage: pct, Width: m.Width, Height: m.Height}
	}
	return Result{Canonical: cands[0], Candidates: cands}, nil
}

// Canonicalize rewrites every non-canonical candidate color in m to the
// canonical color and returns the number of pixels changed.
func Canonicalize(m *mask.Mask, res Result) int {
	n := 0
	for _, c := range res.Candidates {
		if c == res.Canonical {
			continue
		}
		n += m.Replace(c, res.Canonical)
	}
	return n
}
