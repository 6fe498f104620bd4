// Package placement searches for positions at which a sprite can be pasted
// onto a target area while keeping a minimum share of it visible.
//
// The search is a bounded rejection sampler: candidates are drawn from a
// mode-specific distribution, measured with geometry.VisibleFraction, and the
// first candidate meeting the threshold is returned. There is no attempt to
// find the "best" position, which keeps placements spread across the whole
// allowed range instead of clustering at the most visible spots.
package placement

import (
	"fmt"
	"image"
	"math/rand/v2"

	"github.com/ironsheep/dataset-synth/internal/geometry"
)

// DefaultMaxAttempts is the per-scale attempt budget used when none is given.
const DefaultMaxAttempts = 100

// Mode selects how candidate positions are sampled.
type Mode int

const (
	// ModeEnvelope samples the top-left corner inside an envelope around the
	// target widened by Margin of the sprite size, so sprites may hang off
	// the target edges.
	ModeEnvelope Mode = iota
	// ModeCenter samples the sprite center inside the target shrunk by
	// MinVisible/2 of the sprite size on each side.
	ModeCenter
	// ModeInside samples only positions where the sprite fits entirely.
	ModeInside
)

func (m Mode) String() string {
	switch m {
	case ModeEnvelope:
		return "envelope"
	case ModeCenter:
		return "center"
	case ModeInside:
		return "inside"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode converts a mode name into a Mode. The empty string is ModeEnvelope.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "envelope":
		return ModeEnvelope, nil
	case "center":
		return ModeCenter, nil
	case "inside":
		return ModeInside, nil
	}
	return ModeEnvelope, fmt.Errorf("unknown placement mode: %s", s)
}

// Options configures a search.
type Options struct {
	// MinVisible is the visible fraction a placement must reach (0..1).
	MinVisible float64

	// MaxAttempts bounds the number of sampled candidates. Zero or negative
	// makes every search fail immediately.
	MaxAttempts int

	// Mode selects the sampling distribution.
	Mode Mode

	// Margin is the share of the sprite allowed to hang past the target edge
	// in ModeEnvelope. Zero selects 0.3.
	Margin float64

	// Inset is the share of the target that a sprite in ModeEnvelope must
	// reach into. Zero selects 0.15.
	Inset float64
}

// Result describes an accepted placement.
type Result struct {
	Pos      image.Point `json:"pos"`
	Visible  float64     `json:"visible"`
	Attempts int         `json:"attempts"`
}

// Search looks for a top-left position for a spriteW x spriteH sprite such
// that at least opts.MinVisible of its area lies within target.
//
// It returns ok=false when the attempt budget runs out or when no position
// could ever reach the threshold (for instance a sprite much larger than the
// target). In the second case nothing is sampled and Attempts is 0.
// Failure is an expected outcome and never an error.
func Search(rng *rand.Rand, spriteW, spriteH int, target geometry.Rect, opts Options) (Result, bool) {
	if opts.MaxAttempts <= 0 || spriteW <= 0 || spriteH <= 0 || target.Empty() {
		return Result{}, false
	}
	if bestCase(spriteW, spriteH, target) < opts.MinVisible {
		return Result{}, false
	}

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		pos, ok := sample(rng, spriteW, spriteH, target, opts)
		if !ok {
			continue
		}
		visible := geometry.VisibleFraction(spriteW, spriteH, pos.X, pos.Y, target)
		if visible >= opts.MinVisible {
			return Result{Pos: pos, Visible: visible, Attempts: attempt}, true
		}
	}

	return Result{Attempts: opts.MaxAttempts}, false
}

// Centered returns the position that centers the sprite on target.
func Centered(spriteW, spriteH int, target geometry.Rect) image.Point {
	return image.Pt(target.X+(target.W-spriteW)/2, target.Y+(target.H-spriteH)/2)
}

// bestCase is the largest visible fraction any placement can achieve.
func bestCase(spriteW, spriteH int, target geometry.Rect) float64 {
	w := min(spriteW, target.W)
	h := min(spriteH, target.H)
	return float64(w) * float64(h) / (float64(spriteW) * float64(spriteH))
}

func sample(rng *rand.Rand, w, h int, target geometry.Rect, opts Options) (image.Point, bool) {
	switch opts.Mode {
	case ModeCenter:
		return sampleCenter(rng, w, h, target, opts.MinVisible)
	case ModeInside:
		return sampleInside(rng, w, h, target)
	default:
		return sampleEnvelope(rng, w, h, target, opts.Margin, opts.Inset)
	}
}

func sampleEnvelope(rng *rand.Rand, w, h int, target geometry.Rect, margin, inset float64) (image.Point, bool) {
	if margin <= 0 {
		margin = 0.3
	}
	if inset <= 0 {
		inset = 0.15
	}
	xMin, xMax := envelope(w, target.W, margin, inset)
	yMin, yMax := envelope(h, target.H, margin, inset)
	return image.Pt(target.X+uniform(rng, xMin, xMax), target.Y+uniform(rng, yMin, yMax)), true
}

// envelope returns the inclusive offset range, relative to the target origin,
// for one axis of ModeEnvelope.
func envelope(size, span int, margin, inset float64) (int, int) {
	lo := max(-int(float64(size)*margin), -size+int(float64(span)*inset))
	hi := min(span-int(float64(size)*(1-margin)), span-int(float64(size)*inset))
	if lo > hi {
		return -size, span
	}
	return lo, hi
}

func sampleCenter(rng *rand.Rand, w, h int, target geometry.Rect, minVisible float64) (image.Point, bool) {
	cxMin := float64(target.X) + minVisible*float64(w)/2
	cxMax := float64(target.X+target.W) - minVisible*float64(w)/2
	cyMin := float64(target.Y) + minVisible*float64(h)/2
	cyMax := float64(target.Y+target.H) - minVisible*float64(h)/2
	if cxMin > cxMax || cyMin > cyMax {
		return image.Point{}, false
	}
	cx := cxMin + rng.Float64()*(cxMax-cxMin)
	cy := cyMin + rng.Float64()*(cyMax-cyMin)
	return image.Pt(int(cx-float64(w)/2), int(cy-float64(h)/2)), true
}

func sampleInside(rng *rand.Rand, w, h int, target geometry.Rect) (image.Point, bool) {
	if w > target.W || h > target.H {
		return image.Point{}, false
	}
	return image.Pt(uniform(rng, target.X, target.X+target.W-w), uniform(rng, target.Y, target.Y+target.H-h)), true
}

// uniform returns an integer in the inclusive range [lo, hi].
func uniform(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.IntN(hi-lo+1)
}
