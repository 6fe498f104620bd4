package imaging

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Transform scales sprite by scale and then rotates it counter-clockwise by
// degrees, expanding the canvas so every rotated corner stays inside it.
//
// Newly exposed corners are fully transparent, so compositing the result
// never overwrites background pixels outside the rotated sprite. The output
// is at least 1x1 for any scale, including zero or negative values.
//
// The returned size is the one placement and visibility must be computed
// with; the pre-rotation size is not a valid substitute.
func Transform(sprite image.Image, scale, degrees float64) *image.NRGBA {
	b := sprite.Bounds()
	w := max(1, int(float64(b.Dx())*scale))
	h := max(1, int(float64(b.Dy())*scale))

	var out *image.NRGBA
	if w == b.Dx() && h == b.Dy() {
		out = imaging.Clone(sprite)
	} else {
		out = imaging.Resize(sprite, w, h, imaging.Lanczos)
	}

	angle := math.Mod(degrees, 360)
	if angle != 0 {
		out = imaging.Rotate(out, angle, color.Transparent)
	}

	if out.Bounds().Dx() < 1 || out.Bounds().Dy() < 1 {
		return image.NewNRGBA(image.Rect(0, 0, 1, 1))
	}
	return out
}

// ScaleBounds returns the usable scale range for a spriteW x spriteH sprite
// on a bgW x bgH background.
//
// The range starts as [minScale, maxScale]. With clampToBackground the upper
// bound is lowered so the scaled sprite cannot exceed the background in
// either dimension. With clampToArea it is further lowered to
// sqrt(bgArea*minVisible/spriteArea), the largest scale at which minVisible of
// the sprite could still fit. ok is false when the resulting range is empty;
// callers skip the pair with a warning.
func ScaleBounds(minScale, maxScale float64, spriteW, spriteH, bgW, bgH int, minVisible float64, clampToBackground, clampToArea bool) (lo, hi float64, ok bool) {
	if spriteW <= 0 || spriteH <= 0 || bgW <= 0 || bgH <= 0 {
		return 0, 0, false
	}

	lo, hi = minScale, maxScale
	if clampToBackground {
		hi = min(hi, float64(bgW)/float64(spriteW), float64(bgH)/float64(spriteH))
	}
	if clampToArea && minVisible > 0 {
		bgArea := float64(bgW) * float64(bgH)
		spriteArea := float64(spriteW) * float64(spriteH)
		hi = min(hi, math.Sqrt(bgArea*minVisible/spriteArea))
	}

	if hi < lo {
		return lo, hi, false
	}
	return lo, hi, true
}
