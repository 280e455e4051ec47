package raster

import (
	"image"

	"github.com/disintegration/gift"
)

// Smooth applies a Gaussian blur with the given sigma. A non-positive sigma
// returns img unchanged.
func Smooth(img *image.Gray, sigma float32) *image.Gray {
	if sigma <= 0 || img.Bounds().Empty() {
		return img
	}
	g := gift.New(gift.GaussianBlur(sigma))
	dst := image.NewGray(g.Bounds(img.Bounds()))
	g.Draw(dst, img)
	return dst
}

// Resize scales img to width x height with linear resampling. It is used
// for preview frames that are smaller than the rendered field.
func Resize(img *image.Gray, width, height int) *image.Gray {
	b := img.Bounds()
	if width <= 0 || height <= 0 || b.Empty() || (b.Dx() == width && b.Dy() == height) {
		return img
	}
	g := gift.New(gift.Resize(width, height, gift.LinearResampling))
	dst := image.NewGray(g.Bounds(b))
	g.Draw(dst, img)
	return dst
}
