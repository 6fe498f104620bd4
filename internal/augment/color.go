package augment

import (
	"image"
	"image/color"
	"math"
	"math/rand/v2"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/dataset-synth/internal/labels"
)

// BrightnessContrast scales brightness and contrast by factors drawn from
// the given ranges. Both ranges are normalized changes, e.g. {-0.3, 0.3}.
type BrightnessContrast struct {
	P          float64
	Brightness [2]float64
	Contrast   [2]float64
}

func (s *BrightnessContrast) Name() string         { return "brightness_contrast" }
func (s *BrightnessContrast) Probability() float64 { return s.P }

func (s *BrightnessContrast) Apply(rng *rand.Rand, img *image.NRGBA, boxes []labels.Box) (*image.NRGBA, []labels.Box) {
	b := between(rng, s.Brightness[0], s.Brightness[1])
	c := between(rng, s.Contrast[0], s.Contrast[1])

	out := adjust.Brightness(img, b)
	out = adjust.Contrast(out, c)
	return imaging.Clone(out), boxes
}

// HueSaturationValue shifts hue by up to Hue degrees and saturation and
// value by up to Saturation and Value units on a 0-255 scale, each drawn
// uniformly from [-limit, limit].
type HueSaturationValue struct {
	P          float64
	Hue        float64
	Saturation float64
	Value      float64
}

func (s *HueSaturationValue) Name() string         { return "hue_saturation_value" }
func (s *HueSaturationValue) Probability() float64 { return s.P }

func (s *HueSaturationValue) Apply(rng *rand.Rand, img *image.NRGBA, boxes []labels.Box) (*image.NRGBA, []labels.Box) {
	dh := between(rng, -s.Hue, s.Hue)
	ds := between(rng, -s.Saturation, s.Saturation) / 255
	dv := between(rng, -s.Value, s.Value) / 255

	out := adjust.Apply(img, func(c color.RGBA) color.RGBA {
		return ShiftHSV(c, dh, ds, dv)
	})
	return imaging.Clone(out), boxes
}

// ShiftHSV shifts a premultiplied color in HSV space. Hue wraps around;
// saturation and value are clamped to [0,1]. Fully transparent colors are
// returned unchanged.
func ShiftHSV(c color.RGBA, dh, ds, dv float64) color.RGBA {
	if c.A == 0 {
		return c
	}
	col, _ := colorful.MakeColor(c)
	h, sat, val := col.Hsv()

	h = math.Mod(h+dh, 360)
	if h < 0 {
		h += 360
	}
	shifted := colorful.Hsv(h, clamp(sat+ds, 0, 1), clamp(val+dv, 0, 1)).Clamped()

	r, g, b := shifted.RGB255()
	if c.A == 255 {
		return color.RGBA{r, g, b, 255}
	}
	a := uint32(c.A)
	return color.RGBA{uint8(uint32(r) * a / 255), uint8(uint32(g) * a / 255), uint8(uint32(b) * a / 255), c.A}
}

// RGBShift adds an independent offset in [-limit, limit] to each channel.
type RGBShift struct {
	P       float64
	R, G, B float64
}

func (s *RGBShift) Name() string         { return "rgb_shift" }
func (s *RGBShift) Probability() float64 { return s.P }

func (s *RGBShift) Apply(rng *rand.Rand, img *image.NRGBA, boxes []labels.Box) (*image.NRGBA, []labels.Box) {
	dr := between(rng, -s.R, s.R)
	dg := between(rng, -s.G, s.G)
	db := between(rng, -s.B, s.B)

	out := image.NewNRGBA(img.Bounds())
	for i := 0; i+3 < len(img.Pix); i += 4 {
		out.Pix[i] = clampByte(float64(img.Pix[i]) + dr)
		out.Pix[i+1] = clampByte(float64(img.Pix[i+1]) + dg)
		out.Pix[i+2] = clampByte(float64(img.Pix[i+2]) + db)
		out.Pix[i+3] = img.Pix[i+3]
	}
	return out, boxes
}
