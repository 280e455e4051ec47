package raster

import (
	"encoding/binary"
	"fmt"
	"image"
)

// ChannelOrder is the in-memory byte layout of a packed preview pixel. The
// display surface decides which layout it wants; neither is canonical.
type ChannelOrder int

const (
	// OrderRGBX lays each pixel out as bytes {v, v, v, 255}.
	OrderRGBX ChannelOrder = iota
	// OrderXRGB lays each pixel out as bytes {255, v, v, v}.
	OrderXRGB
)

func (c ChannelOrder) String() string {
	switch c {
	case OrderRGBX:
		return "rgbx"
	case OrderXRGB:
		return "xrgb"
	default:
		return fmt.Sprintf("ChannelOrder(%d)", int(c))
	}
}

// ParseChannelOrder parses "rgbx" or "xrgb".
func ParseChannelOrder(s string) (ChannelOrder, error) {
	switch s {
	case "rgbx":
		return OrderRGBX, nil
	case "xrgb":
		return OrderXRGB, nil
	default:
		return 0, fmt.Errorf("unknown channel order %q (want rgbx or xrgb)", s)
	}
}

// Frame is a packed 32-bit preview buffer. Each uint32 holds the four
// pixel bytes in little-endian memory order, so writing Pix to a
// little-endian surface reproduces the ChannelOrder layout byte for byte.
type Frame struct {
	Width  int
	Height int
	Order  ChannelOrder
	Depth  float64
	Pix    []uint32
}

// Pack replicates every intensity of img into a packed frame.
func Pack(img *image.Gray, order ChannelOrder) Frame {
	b := img.Bounds()
	f := Frame{
		Width:  b.Dx(),
		Height: b.Dy(),
		Order:  order,
		Pix:    make([]uint32, b.Dx()*b.Dy()),
	}
	for y := 0; y < f.Height; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		row := img.Pix[off : off+f.Width]
		for x, v := range row {
			f.Pix[y*f.Width+x] = packPixel(v, order)
		}
	}
	return f
}

func packPixel(v uint8, order ChannelOrder) uint32 {
	var px [4]byte
	if order == OrderXRGB {
		px = [4]byte{255, v, v, v}
	} else {
		px = [4]byte{v, v, v, 255}
	}
	return binary.LittleEndian.Uint32(px[:])
}

// Bytes returns the frame in surface memory order (4 bytes per pixel).
func (f Frame) Bytes() []byte {
	out := make([]byte, 0, 4*len(f.Pix))
	for _, p := range f.Pix {
		out = binary.LittleEndian.AppendUint32(out, p)
	}
	return out
}

// RGBA unpacks the frame into an image that the standard encoders accept.
func (f Frame) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, p := range f.Pix {
		var px [4]byte
		binary.LittleEndian.PutUint32(px[:], p)
		o := i * 4
		if f.Order == OrderXRGB {
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = px[1], px[2], px[3], px[0]
		} else {
			copy(img.Pix[o:o+4], px[:])
		}
	}
	return img
}

// Gray recovers the intensity plane of the frame.
func (f Frame) Gray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	for i, p := range f.Pix {
		var px [4]byte
		binary.LittleEndian.PutUint32(px[:], p)
		if f.Order == OrderXRGB {
			img.Pix[i] = px[1]
		} else {
			img.Pix[i] = px[0]
		}
	}
	return img
}
