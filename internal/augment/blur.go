package augment

import (
	"image"
	"math"
	"math/rand/v2"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/convolution"
	"github.com/disintegration/imaging"

	"github.com/ironsheep/dataset-synth/internal/labels"
)

// MotionBlur convolves with a line kernel of random odd length in
// [MinKernel, MaxKernel] at a random angle.
type MotionBlur struct {
	P         float64
	MinKernel int
	MaxKernel int
}

func (s *MotionBlur) Name() string         { return "motion_blur" }
func (s *MotionBlur) Probability() float64 { return s.P }

func (s *MotionBlur) Apply(rng *rand.Rand, img *image.NRGBA, boxes []labels.Box) (*image.NRGBA, []labels.Box) {
	size := oddBetween(rng, s.MinKernel, s.MaxKernel)
	if size < 3 {
		return img, boxes
	}
	k := MotionKernel(size, rng.Float64()*180)
	out := convolution.Convolve(img, k.Normalized(), &convolution.Options{KeepAlpha: true})
	return imaging.Clone(out), boxes
}

// MotionKernel returns an unnormalized size x size kernel with ones along a
// line through its center at the given angle in degrees.
func MotionKernel(size int, degrees float64) *convolution.Kernel {
	k := convolution.NewKernel(size, size)
	r := float64(size / 2)
	sin, cos := math.Sincos(degrees * math.Pi / 180)

	// Sample the line densely so steep angles leave no gaps.
	steps := size * 4
	for i := 0; i <= steps; i++ {
		t := -r + 2*r*float64(i)/float64(steps)
		x := int(math.Round(r + t*cos))
		y := int(math.Round(r + t*sin))
		if x >= 0 && x < size && y >= 0 && y < size {
			k.Matrix[y*size+x] = 1
		}
	}
	return k
}

// oddBetween returns a random odd integer in [lo, hi], or lo when the range
// holds no odd value.
func oddBetween(rng *rand.Rand, lo, hi int) int {
	if lo%2 == 0 {
		lo++
	}
	if hi < lo {
		return lo
	}
	n := (hi-lo)/2 + 1
	return lo + 2*rng.IntN(n)
}

// GaussianBlur blurs with a radius drawn from [MinRadius, MaxRadius].
type GaussianBlur struct {
	P         float64
	MinRadius float64
	MaxRadius float64
}

func (s *GaussianBlur) Name() string         { return "gaussian_blur" }
func (s *GaussianBlur) Probability() float64 { return s.P }

func (s *GaussianBlur) Apply(rng *rand.Rand, img *image.NRGBA, boxes []labels.Box) (*image.NRGBA, []labels.Box) {
	radius := between(rng, s.MinRadius, s.MaxRadius)
	if radius <= 0 {
		return img, boxes
	}
	return imaging.Clone(blur.Gaussian(img, radius)), boxes
}
