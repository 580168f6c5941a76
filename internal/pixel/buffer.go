package pixel

import (
	"errors"
	"fmt"
	"image"
)

// Common errors
var (
	ErrInvalidDimensions = errors.New("pixel buffer dimensions must be positive")
	ErrDataLength        = errors.New("pixel buffer data length does not match dimensions")
)

// Buffer is a rectangular RGBA pixel buffer, row-major, top-to-bottom,
// 4 bytes per pixel.
type Buffer struct {
	Width  int
	Height int
	Data   []byte
}

// New creates a zeroed buffer with the given dimensions.
func New(width, height int) *Buffer {
	return &Buffer{
		Width:  width,
		Height: height,
		Data:   make([]byte, width*height*4),
	}
}

// Validate checks the buffer invariants.
func (b *Buffer) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, b.Width, b.Height)
	}
	if len(b.Data) != b.Width*b.Height*4 {
		return fmt.Errorf("%w: have %d, want %d", ErrDataLength, len(b.Data), b.Width*b.Height*4)
	}
	return nil
}

// Clone returns a deep copy. Buffers handed to the diff engine are consumed
// by that call; callers that need the data afterwards keep a clone.
func (b *Buffer) Clone() *Buffer {
	data := make([]byte, len(b.Data))
	copy(data, b.Data)
	return &Buffer{Width: b.Width, Height: b.Height, Data: data}
}

// SameSize reports whether two buffers are diff-comparable.
func (b *Buffer) SameSize(other *Buffer) bool {
	return other != nil && b.Width == other.Width && b.Height == other.Height
}

// ToImage converts the buffer to an image.RGBA.
func (b *Buffer) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	copy(img.Pix, b.Data)
	return img
}

// FromImage creates a buffer from an image.
func FromImage(img image.Image) *Buffer {
	bounds := img.Bounds()
	buf := New(bounds.Dx(), bounds.Dy())

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			buf.Data[i+0] = byte(r >> 8)
			buf.Data[i+1] = byte(g >> 8)
			buf.Data[i+2] = byte(bl >> 8)
			buf.Data[i+3] = byte(a >> 8)
			i += 4
		}
	}

	return buf
}
