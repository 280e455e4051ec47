package raster

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/MeKo-Tech/noysway/internal/noise"
)

// ErrNegativeSize is returned when a render is requested with a negative extent.
var ErrNegativeSize = errors.New("raster: negative width or height")

// Render samples the composited field at every integer cell of a
// width x height grid at the given depth. The returned image is row-major
// with Stride == width and belongs to the caller.
func Render(s noise.Sampler, width, height int, depth float64, o noise.Octaves) (*image.Gray, error) {
	return RenderRegion(s, 0, 0, 1, width, height, depth, o)
}

// RenderRegion renders a width x height window whose top-left cell sits at
// (originX, originY) in field space, stepping scale units per pixel.
func RenderRegion(s noise.Sampler, originX, originY, scale float64, width, height int, depth float64, o noise.Octaves) (*image.Gray, error) {
	if width < 0 || height < 0 {
		return nil, ErrNegativeSize
	}
	if width > 0 && height > math.MaxInt32/width {
		return nil, fmt.Errorf("raster: %dx%d exceeds %d pixels", width, height, math.MaxInt32)
	}

	img := image.NewGray(image.Rect(0, 0, width, height))
	if width == 0 || height == 0 {
		return img, nil
	}

	for py := 0; py < height; py++ {
		y := originY + float64(py)*scale
		row := img.Pix[py*img.Stride : py*img.Stride+width]
		for px := range row {
			v, err := noise.Composite(s, originX+float64(px)*scale, y, depth, o)
			if err != nil {
				return nil, err
			}
			row[px] = Quantize(v)
		}
	}
	return img, nil
}

// Quantize maps a sample in [-1, 1] onto [0, 255], rounding half away from
// zero and clamping anything outside the range.
func Quantize(s float64) uint8 {
	v := math.Round((s*0.5 + 0.5) * 255)
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
