package background

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// White is the background every agency asks for.
var White = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// Flatten composites img onto an opaque white canvas.
func Flatten(img image.Image) *image.NRGBA {
	return FlattenOn(img, White)
}

// FlattenOn composites img onto an opaque canvas of the given color using
// alpha blending, so soft matting edges fade into the background instead
// of being cut off. The result is fully opaque.
func FlattenOn(img image.Image, bg color.Color) *image.NRGBA {
	b := img.Bounds()
	r, g, bl, _ := bg.RGBA()
	canvas := imaging.New(b.Dx(), b.Dy(), color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8), A: 255})
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}
