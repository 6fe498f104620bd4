package imaging

import (
	"image"

	"github.com/disintegration/imaging"
)

// Composite alpha-blends sprite onto a copy of background with the sprite's
// top-left corner at at.
//
// The result always has the background's size. Parts of the sprite that fall
// outside the canvas are clipped, and fully transparent sprite pixels leave
// the background untouched. background itself is never modified.
func Composite(background, sprite image.Image, at image.Point) *image.NRGBA {
	return imaging.Overlay(background, sprite, at, 1.0)
}

// Flatten composites img onto an opaque white canvas. JPEG output has no
// alpha channel, so transparent regions would otherwise come out black.
func Flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	white := imaging.New(b.Dx(), b.Dy(), image.White)
	return imaging.Overlay(white, img, image.Point{}, 1.0)
}
