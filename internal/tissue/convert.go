package tissue

import (
	"fmt"
	"image"
	"runtime"
	"sync"

	"slidetiler/internal/mask"

	"gocv.io/x/gocv"
)

// ImageToMat converts an opaque image to a BGR gocv.Mat. Rows are filled in
// parallel stripes.
func ImageToMat(img image.Image) (gocv.Mat, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return gocv.NewMat(), fmt.Errorf("tissue: empty image %dx%d", w, h)
	}

	buf := make([]byte, w*h*3)
	stripes(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			off := y * w * 3
			for x := 0; x < w; x++ {
				r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				buf[off+x*3+0] = uint8(bl >> 8)
				buf[off+x*3+1] = uint8(g >> 8)
				buf[off+x*3+2] = uint8(r >> 8)
			}
		}
	})
	return gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, buf)
}

// MatToImage converts a one- or three-channel 8-bit Mat to an RGBA image.
func MatToImage(mat gocv.Mat) (*image.RGBA, error) {
	h, w, ch := mat.Rows(), mat.Cols(), mat.Channels()
	if ch != 1 && ch != 3 {
		return nil, fmt.Errorf("tissue: unsupported channel count %d", ch)
	}
	data := mat.ToBytes()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	stripes(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			row := y * img.Stride
			for x := 0; x < w; x++ {
				p := row + x*4
				if ch == 1 {
					v := data[y*w+x]
					img.Pix[p+0], img.Pix[p+1], img.Pix[p+2] = v, v, v
				} else {
					s := (y*w + x) * 3
					img.Pix[p+0] = data[s+2]
					img.Pix[p+1] = data[s+1]
					img.Pix[p+2] = data[s+0]
				}
				img.Pix[p+3] = 255
			}
		}
	})
	return img, nil
}

// MatToMask copies a one- or three-channel 8-bit Mat into a Mask. BGR is
// reordered to RGB.
func MatToMask(mat gocv.Mat) (*mask.Mask, error) {
	h, w := mat.Rows(), mat.Cols()
	data := mat.ToBytes()
	switch mat.Channels() {
	case 1:
		pix := make([]uint8, len(data))
		copy(pix, data)
		return mask.FromGray(w, h, pix)
	case 3:
		pix := make([]uint8, len(data))
		for i := 0; i+2 < len(data); i += 3 {
			pix[i], pix[i+1], pix[i+2] = data[i+2], data[i+1], data[i]
		}
		return mask.FromRGB(w, h, pix)
	default:
		return nil, fmt.Errorf("tissue: unsupported channel count %d", mat.Channels())
	}
}

// MaskToMat converts a Mask to an 8-bit Mat. Three-channel masks become BGR.
func MaskToMat(m *mask.Mask) (gocv.Mat, error) {
	if m.Channels == 1 {
		return gocv.NewMatFromBytes(m.Height, m.Width, gocv.MatTypeCV8UC1, m.Pix)
	}
	buf := make([]byte, len(m.Pix))
	for i := 0; i+2 < len(m.Pix); i += 3 {
		buf[i], buf[i+1], buf[i+2] = m.Pix[i+2], m.Pix[i+1], m.Pix[i]
	}
	return gocv.NewMatFromBytes(m.Height, m.Width, gocv.MatTypeCV8UC3, buf)
}

// stripes runs fn over horizontal bands of [0, h) on every CPU.
func stripes(h int, fn func(y0, y1 int)) {
	workers := runtime.NumCPU()
	per := (h + workers - 1) / workers
	var wg sync.WaitGroup
	for y0 := 0; y0 < h; y0 += per {
		y1 := min(y0+per, h)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(y0, y1)
		}()
	}
	wg.Wait()
}
