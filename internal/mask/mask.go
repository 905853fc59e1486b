// Package mask holds the coarse tissue/background classification image.
package mask

import (
	"fmt"
	"image"
	"image/color"

	"slidetiler/pkg/colorutil"
)

// Mask is a packed 8-bit image with one or three channels per pixel.
// Single-channel pixels compare equal to a color triple only when every
// channel of the triple equals the pixel value.
type Mask struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// New allocates a zeroed mask.
func New(width, height, channels int) (*Mask, error) {
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("mask: unsupported channel count %d", channels)
	}
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("mask: negative size %dx%d", width, height)
	}
	return &Mask{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}, nil
}

// FromGray wraps single-channel pixel data.
func FromGray(width, height int, pix []uint8) (*Mask, error) {
	if len(pix) != width*height {
		return nil, fmt.Errorf("mask: %d bytes for %dx%d gray", len(pix), width, height)
	}
	return &Mask{Width: width, Height: height, Channels: 1, Pix: pix}, nil
}

// FromRGB wraps packed RGB pixel data.
func FromRGB(width, height int, pix []uint8) (*Mask, error) {
	if len(pix) != width*height*3 {
		return nil, fmt.Errorf("mask: %d bytes for %dx%d rgb", len(pix), width, height)
	}
	return &Mask{Width: width, Height: height, Channels: 3, Pix: pix}, nil
}

// FromImage converts an image to a three-channel mask.
func FromImage(img image.Image) *Mask {
	b := img.Bounds()
	m := &Mask{Width: b.Dx(), Height: b.Dy(), Channels: 3, Pix: make([]uint8, b.Dx()*b.Dy()*3)}
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			m.Set(x, y, colorutil.FromColor(img.At(b.Min.X+x, b.Min.Y+y)))
		}
	}
	return m
}

// Bounds returns the mask extent.
func (m *Mask) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

// At returns the color at (x, y). Gray pixels are expanded to a triple.
func (m *Mask) At(x, y int) colorutil.RGB {
	i := (y*m.Width + x) * m.Channels
	if m.Channels == 1 {
		v := m.Pix[i]
		return colorutil.RGB{v, v, v}
	}
	return colorutil.RGB{m.Pix[i], m.Pix[i+1], m.Pix[i+2]}
}

// Set writes c at (x, y). Gray masks store the first channel.
func (m *Mask) Set(x, y int, c colorutil.RGB) {
	i := (y*m.Width + x) * m.Channels
	if m.Channels == 1 {
		m.Pix[i] = c[0]
		return
	}
	m.Pix[i], m.Pix[i+1], m.Pix[i+2] = c[0], c[1], c[2]
}

// Equal reports whether the pixel at (x, y) equals c on every channel.
func (m *Mask) Equal(x, y int, c colorutil.RGB) bool {
	i := (y*m.Width + x) * m.Channels
	if m.Channels == 1 {
		v := m.Pix[i]
		return v == c[0] && v == c[1] && v == c[2]
	}
	return m.Pix[i] == c[0] && m.Pix[i+1] == c[1] && m.Pix[i+2] == c[2]
}

// Fill sets every pixel inside r to c.
func (m *Mask) Fill(r image.Rectangle, c colorutil.RGB) {
	r = r.Intersect(m.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.Set(x, y, c)
		}
	}
}

// UniqueColors returns the distinct colors inside r in lexicographic order.
func (m *Mask) UniqueColors(r image.Rectangle) []colorutil.RGB {
	r = r.Intersect(m.Bounds())
	seen := make(map[colorutil.RGB]struct{})
	var out []colorutil.RGB
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := m.At(x, y)
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return colorutil.SortUnique(out)
}

// Replace rewrites every pixel equal to from with to and returns the count
// of changed pixels.
func (m *Mask) Replace(from, to colorutil.RGB) int {
	if from == to {
		return 0
	}
	n := 0
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.Equal(x, y, from) {
				m.Set(x, y, to)
				n++
			}
		}
	}
	return n
}

// BackgroundFraction returns the share of pixels inside r equal to bg.
// An empty region reports a fraction of 1.
func (m *Mask) BackgroundFraction(r image.Rectangle, bg colorutil.RGB) float64 {
	r = r.Intersect(m.Bounds())
	total := r.Dx() * r.Dy()
	if total == 0 {
		return 1
	}
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if m.Equal(x, y, bg) {
				n++
			}
		}
	}
	return float64(n) / float64(total)
}

// Image renders the mask as an RGBA image.
func (m *Mask) Image() *image.RGBA {
	img := image.NewRGBA(m.Bounds())
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			c := m.At(x, y)
			img.SetRGBA(x, y, color.RGBA{R: c[0], G: c[1], B: c[2], A: 255})
		}
	}
	return img
}
