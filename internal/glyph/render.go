package glyph

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Font sizes tried by Render: start at InitialSize and grow by SizeStep
// until the glyph is at least MinGlyphSide pixels each way or MaxSize is hit.
const (
	InitialSize  = 100
	SizeStep     = 10
	MaxSize      = 500
	MinGlyphSide = 20
)

// Render draws digit in black on a white canvas that fits the glyph's ink
// bounds plus padding on every side.
func Render(f *Font, digit, padding int) (*image.NRGBA, error) {
	if digit < 0 || digit > 9 {
		return nil, fmt.Errorf("digit out of range: %d", digit)
	}
	r := rune('0' + digit)

	var face font.Face
	var bounds fixed.Rectangle26_6
	for size := InitialSize; ; size += SizeStep {
		if face != nil {
			face.Close()
		}
		var err error
		face, err = opentype.NewFace(f.font, &opentype.FaceOptions{Size: float64(size), DPI: 72, Hinting: font.HintingNone})
		if err != nil {
			return nil, fmt.Errorf("font %s: %w", f.Name, err)
		}

		var ok bool
		bounds, _, ok = face.GlyphBounds(r)
		if !ok {
			face.Close()
			return nil, fmt.Errorf("font %s has no glyph for %q", f.Name, r)
		}
		w, h := inkSize(bounds)
		if (w >= MinGlyphSide && h >= MinGlyphSide) || size >= MaxSize {
			break
		}
	}
	defer face.Close()

	w, h := inkSize(bounds)
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("font %s renders %q empty", f.Name, r)
	}

	img := imaging.New(w+2*padding, h+2*padding, color.White)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(padding - bounds.Min.X.Floor()), Y: fixed.I(padding - bounds.Min.Y.Floor())},
	}
	d.DrawString(string(r))

	return img, nil
}

func inkSize(b fixed.Rectangle26_6) (int, int) {
	return b.Max.X.Ceil() - b.Min.X.Floor(), b.Max.Y.Ceil() - b.Min.Y.Floor()
}

// AddUnderline returns img extended downward by width+gap pixels with a
// black line of the given width drawn gap pixels below the glyph, inset by
// padding from the left and right edges.
func AddUnderline(img image.Image, padding, width, gap int) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	out := imaging.New(w, h+width+gap, color.White)
	out = imaging.Paste(out, img, image.Pt(0, 0))

	y := h - padding + gap
	line := image.Rect(padding, y, w-padding, y+width).Intersect(out.Bounds())
	draw.Draw(out, line, image.NewUniform(color.Black), image.Point{}, draw.Src)
	return out
}

// Thin applies morphological erosion then dilation with the given radii.
// On dark glyphs over a light background erosion thickens strokes and
// dilation thins them, so dilate > erode gives a net thinner digit. A zero
// radius skips that pass.
func Thin(img image.Image, erode, dilate float64) *image.NRGBA {
	var out image.Image = img
	if erode > 0 {
		out = effect.Erode(out, erode)
	}
	if dilate > 0 {
		out = effect.Dilate(out, dilate)
	}
	return imaging.Clone(out)
}

// Allocate splits total samples across numDigits digits, giving the
// remainder to the first digits.
func Allocate(numDigits, total int) []int {
	if numDigits <= 0 {
		return nil
	}
	counts := make([]int, numDigits)
	base, rem := total/numDigits, total%numDigits
	for i := range counts {
		counts[i] = base
		if i < rem {
			counts[i]++
		}
	}
	return counts
}
