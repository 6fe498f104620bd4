package augment

import (
	"image"
	"math"
	"math/rand/v2"

	"github.com/anthonynsimon/bild/transform"
	"github.com/disintegration/imaging"

	"github.com/ironsheep/dataset-synth/internal/labels"
)

// Rotate turns the image by an angle in [-Limit, Limit] degrees about its
// center, keeping the canvas size. Exposed corners are transparent. Each
// box is replaced by the axis-aligned bounds of its rotated corners.
type Rotate struct {
	P     float64
	Limit float64
}

func (s *Rotate) Name() string         { return "rotate" }
func (s *Rotate) Probability() float64 { return s.P }

func (s *Rotate) Apply(rng *rand.Rand, img *image.NRGBA, boxes []labels.Box) (*image.NRGBA, []labels.Box) {
	angle := between(rng, -s.Limit, s.Limit)
	return RotateFixed(img, boxes, angle)
}

// RotateFixed rotates img clockwise by degrees about its center without
// resizing the canvas, and moves boxes to match.
func RotateFixed(img *image.NRGBA, boxes []labels.Box, degrees float64) (*image.NRGBA, []labels.Box) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	pivot := image.Pt(w/2, h/2)
	out := transform.Rotate(img, degrees, &transform.RotationOptions{ResizeBounds: false, Pivot: &pivot})
	return imaging.Clone(out), RotateBoxes(boxes, w, h, degrees)
}

// RotateBoxes rotates boxes clockwise by degrees about the image center and
// returns the axis-aligned bounds of each rotated box.
func RotateBoxes(boxes []labels.Box, w, h int, degrees float64) []labels.Box {
	if boxes == nil {
		return nil
	}

	sin, cos := math.Sincos(degrees * math.Pi / 180)
	px, py := float64(w/2), float64(h/2)

	out := make([]labels.Box, len(boxes))
	for i, b := range boxes {
		x1, y1, x2, y2 := b.Corners(w, h)
		minX, minY := math.Inf(1), math.Inf(1)
		maxX, maxY := math.Inf(-1), math.Inf(-1)
		for _, p := range [4][2]float64{{x1, y1}, {x2, y1}, {x1, y2}, {x2, y2}} {
			dx, dy := p[0]-px, p[1]-py
			rx := px + cos*dx - sin*dy
			ry := py + sin*dx + cos*dy
			minX, maxX = math.Min(minX, rx), math.Max(maxX, rx)
			minY, maxY = math.Min(minY, ry), math.Max(maxY, ry)
		}
		out[i] = labels.FromCorners(b.Class, minX, minY, maxX, maxY, w, h)
	}
	return out
}

// FlipH mirrors the image left to right.
type FlipH struct {
	P float64
}

func (s *FlipH) Name() string         { return "flip_h" }
func (s *FlipH) Probability() float64 { return s.P }

func (s *FlipH) Apply(_ *rand.Rand, img *image.NRGBA, boxes []labels.Box) (*image.NRGBA, []labels.Box) {
	out := make([]labels.Box, len(boxes))
	for i, b := range boxes {
		b.CX = 1 - b.CX
		out[i] = b
	}
	if boxes == nil {
		out = nil
	}
	return imaging.FlipH(img), out
}

// FlipV mirrors the image top to bottom.
type FlipV struct {
	P float64
}

func (s *FlipV) Name() string         { return "flip_v" }
func (s *FlipV) Probability() float64 { return s.P }

func (s *FlipV) Apply(_ *rand.Rand, img *image.NRGBA, boxes []labels.Box) (*image.NRGBA, []labels.Box) {
	out := make([]labels.Box, len(boxes))
	for i, b := range boxes {
		b.CY = 1 - b.CY
		out[i] = b
	}
	if boxes == nil {
		out = nil
	}
	return imaging.FlipV(img), out
}
