// Package tensor provides the pixel tensor type exchanged between the
// tiling engine and the inference backend: planar CHW float32 with values
// in [0,1], the layout super-resolution ONNX models expect (the batch
// dimension is always 1 and is implied).
package tensor

import (
	"fmt"
	"image"
)

// Channels is the number of color planes. Models in the catalog are RGB.
const Channels = 3

// Tensor is a single-image CHW float32 pixel grid.
type Tensor struct {
	// Data holds Channels*Height*Width values, plane by plane, rows
	// within a plane top to bottom.
	Data []float32

	// Width and Height are the spatial dimensions in pixels.
	Width  int
	Height int
}

// New allocates a zero tensor of the given dimensions.
func New(width, height int) Tensor {
	return Tensor{
		Data:   make([]float32, Channels*height*width),
		Width:  width,
		Height: height,
	}
}

// At returns the value of channel c at (x, y). No bounds checking beyond
// the slice's own.
func (t Tensor) At(c, x, y int) float32 {
	return t.Data[(c*t.Height+y)*t.Width+x]
}

// Set stores v into channel c at (x, y).
func (t Tensor) Set(c, x, y int, v float32) {
	t.Data[(c*t.Height+y)*t.Width+x] = v
}

// Validate checks that the data length matches the declared dimensions.
func (t Tensor) Validate() error {
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("invalid tensor dimensions %dx%d", t.Width, t.Height)
	}
	if want := Channels * t.Height * t.Width; len(t.Data) != want {
		return fmt.Errorf("tensor data length %d, want %d for %dx%d", len(t.Data), want, t.Width, t.Height)
	}
	return nil
}

// FromImage converts a decoded image into a [0,1] RGB tensor.
// Alpha is dropped; color is premultiplied-alpha-corrected by the stdlib
// RGBA() accessor.
func FromImage(img image.Image) Tensor {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	t := New(w, h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// RGBA returns 16-bit values.
			t.Set(0, x, y, float32(r)/65535.0)
			t.Set(1, x, y, float32(g)/65535.0)
			t.Set(2, x, y, float32(b)/65535.0)
		}
	}
	return t
}

// ToImage converts the tensor back to an 8-bit image, clamping values
// outside [0,1]. Model outputs routinely overshoot slightly.
func (t Tensor) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, t.Width, t.Height))
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			i := img.PixOffset(x, y)
			img.Pix[i+0] = clampByte(t.At(0, x, y))
			img.Pix[i+1] = clampByte(t.At(1, x, y))
			img.Pix[i+2] = clampByte(t.At(2, x, y))
			img.Pix[i+3] = 0xff
		}
	}
	return img
}

func clampByte(v float32) uint8 {
	s := v*255.0 + 0.5
	if s <= 0 {
		return 0
	}
	if s >= 255 {
		return 255
	}
	return uint8(s)
}
