package augment

import (
	"image"
	"math/rand/v2"
	"sync"

	"github.com/anthonynsimon/bild/noise"

	"github.com/ironsheep/dataset-synth/internal/labels"
)

// GaussianNoise adds zero-mean Gaussian noise with standard deviation Sigma
// (0-255 scale) to every channel.
type GaussianNoise struct {
	P     float64
	Sigma float64
}

func (s *GaussianNoise) Name() string         { return "gaussian_noise" }
func (s *GaussianNoise) Probability() float64 { return s.P }

func (s *GaussianNoise) Apply(rng *rand.Rand, img *image.NRGBA, boxes []labels.Box) (*image.NRGBA, []labels.Box) {
	b := img.Bounds()
	field := noise.Generate(b.Dx(), b.Dy(), &noise.Options{NoiseFn: GaussianFn(rng, s.Sigma)})

	out := image.NewNRGBA(b)
	for i := 0; i+3 < len(img.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			out.Pix[i+c] = clampByte(float64(img.Pix[i+c]) + float64(field.Pix[i+c]) - 128)
		}
		out.Pix[i+3] = img.Pix[i+3]
	}
	return out, boxes
}

// GaussianFn returns a noise function centered on 128 drawing from rng.
// noise.Generate calls it from several goroutines, so access is serialized.
func GaussianFn(rng *rand.Rand, sigma float64) noise.Fn {
	var mu sync.Mutex
	return func() uint8 {
		mu.Lock()
		v := rng.NormFloat64()*sigma + 128
		mu.Unlock()
		return clampByte(v)
	}
}

// UniformFn returns a noise function uniform over 0..255 drawing from rng.
func UniformFn(rng *rand.Rand) noise.Fn {
	var mu sync.Mutex
	return func() uint8 {
		mu.Lock()
		defer mu.Unlock()
		return uint8(rng.IntN(256))
	}
}

// SaltPepper sets Amount of the pixels to pure black or white.
type SaltPepper struct {
	P      float64
	Amount float64
}

func (s *SaltPepper) Name() string         { return "salt_pepper" }
func (s *SaltPepper) Probability() float64 { return s.P }

func (s *SaltPepper) Apply(rng *rand.Rand, img *image.NRGBA, boxes []labels.Box) (*image.NRGBA, []labels.Box) {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	copy(out.Pix, img.Pix)

	n := int(s.Amount * float64(b.Dx()*b.Dy()))
	for i := 0; i < n; i++ {
		x, y := rng.IntN(b.Dx()), rng.IntN(b.Dy())
		var v uint8
		if rng.IntN(2) == 1 {
			v = 255
		}
		off := out.PixOffset(x+b.Min.X, y+b.Min.Y)
		out.Pix[off], out.Pix[off+1], out.Pix[off+2] = v, v, v
	}
	return out, boxes
}
