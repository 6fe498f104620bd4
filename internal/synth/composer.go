package synth

import (
	"context"
	"fmt"
	"image"
	"math/rand/v2"
	"time"

	"github.com/ironsheep/dataset-synth/internal/geometry"
	"github.com/ironsheep/dataset-synth/internal/imaging"
	"github.com/ironsheep/dataset-synth/internal/labels"
	"github.com/ironsheep/dataset-synth/internal/placement"
)

// minShrinkAttempts is the floor for the attempt budget after halving.
const minShrinkAttempts = 10

// Composer places one sprite on one background.
type Composer struct {
	MinScale   float64
	MaxScale   float64
	MinVisible float64

	ClampToBackground bool
	ClampToArea       bool

	Rotate bool
	Center bool

	// Attempts is the attempt budget of the first round. Each shrink round
	// halves it, down to 10.
	Attempts int
	Mode     placement.Mode
	Margin   float64

	ShrinkFactor    float64
	MaxShrinkRounds int

	TimeBudget time.Duration
}

// Result is an accepted composite.
type Result struct {
	Image *image.NRGBA

	// Rect is the transformed sprite's bounding box in background coordinates.
	// It may extend past the background.
	Rect geometry.Rect

	// Object is the box around the sprite's opaque pixels, clipped to the
	// background. It is empty when no opaque pixel landed on the canvas.
	Object geometry.Rect

	Visible  float64
	Scale    float64
	Angle    float64
	Rounds   int
	Attempts int
}

// Label returns the YOLO box for the placed object.
func (r *Result) Label(class int) labels.Box {
	b := r.Image.Bounds()
	return labels.FromPixels(class, r.Object, b.Dx(), b.Dy())
}

// Place composites sprite onto a copy of bg within roi (the zero Rect means
// the whole background).
//
// It returns ErrInfeasibleScale when the clamped scale range is empty and
// ErrNoPlacement when every round failed or the time budget ran out. Both
// are expected outcomes for awkward inputs, not faults.
func (c *Composer) Place(ctx context.Context, rng *rand.Rand, bg, sprite image.Image, roi geometry.Rect) (*Result, error) {
	bgW, bgH := bg.Bounds().Dx(), bg.Bounds().Dy()
	sw, sh := sprite.Bounds().Dx(), sprite.Bounds().Dy()
	target := geometry.ClampROI(roi, bgW, bgH)

	lo, hi, ok := imaging.ScaleBounds(c.MinScale, c.MaxScale, sw, sh, bgW, bgH, c.MinVisible, c.ClampToBackground, c.ClampToArea)
	if !ok {
		return nil, fmt.Errorf("%w: sprite %dx%d, background %dx%d, max %.3f < min %.3f",
			ErrInfeasibleScale, sw, sh, bgW, bgH, hi, lo)
	}
	scale := lo + rng.Float64()*(hi-lo)

	if c.Center {
		return c.center(bg, sprite, scale, target), nil
	}

	angle := 0.0
	if c.Rotate {
		angle = rng.Float64() * 360
	}

	if c.TimeBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.TimeBudget)
		defer cancel()
	}

	attempts := c.Attempts
	if attempts == 0 {
		attempts = placement.DefaultMaxAttempts
	}
	total := 0

	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w after %d rounds: %v", ErrNoPlacement, round, err)
		}

		transformed := imaging.Transform(sprite, scale, angle)
		tw, th := transformed.Bounds().Dx(), transformed.Bounds().Dy()

		found, ok := placement.Search(rng, tw, th, target, placement.Options{
			MinVisible:  c.MinVisible,
			MaxAttempts: attempts,
			Mode:        c.Mode,
			Margin:      c.Margin,
		})
		total += found.Attempts
		if ok {
			res := compose(bg, transformed, found.Pos)
			res.Visible = found.Visible
			res.Scale = scale
			res.Angle = angle
			res.Rounds = round + 1
			res.Attempts = total
			return res, nil
		}

		if round >= c.MaxShrinkRounds {
			break
		}
		scale *= c.ShrinkFactor
		if scale < c.MinScale {
			break
		}
		attempts = max(minShrinkAttempts, attempts/2)
	}

	return nil, fmt.Errorf("%w: %d attempts, final scale %.3f", ErrNoPlacement, total, scale)
}

func (c *Composer) center(bg, sprite image.Image, scale float64, target geometry.Rect) *Result {
	transformed := imaging.Transform(sprite, scale, 0)
	tw, th := transformed.Bounds().Dx(), transformed.Bounds().Dy()
	pos := placement.Centered(tw, th, target)

	res := compose(bg, transformed, pos)
	res.Visible = geometry.VisibleFraction(tw, th, pos.X, pos.Y, target)
	res.Scale = scale
	res.Rounds = 1
	return res
}

func compose(bg image.Image, sprite *image.NRGBA, pos image.Point) *Result {
	out := imaging.Composite(bg, sprite, pos)
	b := sprite.Bounds()
	rect := geometry.Rect{X: pos.X, Y: pos.Y, W: b.Dx(), H: b.Dy()}

	object := geometry.FromImage(opaqueBounds(sprite).Add(pos.Sub(b.Min)))
	object = object.Intersect(geometry.Full(out.Bounds().Dx(), out.Bounds().Dy()))

	return &Result{Image: out, Rect: rect, Object: object}
}

// opaqueBounds returns the smallest rectangle holding every pixel of img
// with non-zero alpha.
func opaqueBounds(img *image.NRGBA) image.Rectangle {
	b := img.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			if row[(x-b.Min.X)*4+3] == 0 {
				continue
			}
			minX = min(minX, x)
			maxX = max(maxX, x)
			minY = min(minY, y)
			maxY = max(maxY, y)
		}
	}
	if maxX < minX {
		return image.Rectangle{}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}
