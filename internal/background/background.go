// Package background generates synthetic background images: uniform RGB
// noise, smoothed Gaussian noise, and plain white canvases with speckles.
package background

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math/rand/v2"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/noise"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/dataset-synth/internal/augment"
	synthimg "github.com/ironsheep/dataset-synth/internal/imaging"
	"github.com/ironsheep/dataset-synth/internal/storage"
)

// Kind selects a generator.
type Kind string

const (
	KindNoise    Kind = "noise"
	KindGaussian Kind = "gaussian"
	KindWhite    Kind = "white"
)

// DefaultSize matches the 224x224 input size of the detector.
const DefaultSize = 224

// DefaultDensity is the share of speckled pixels on a white background.
const DefaultDensity = 0.05

// ParseKind converts a kind name. The empty string is KindNoise.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindNoise:
		return KindNoise, nil
	case KindGaussian, KindWhite:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown background kind: %s", s)
}

// Options configures Generate.
type Options struct {
	Kind Kind

	// Density is the share of pixels turned into speckles (KindWhite only).
	Density float64

	// Speckle is the speckle color. Nil means black.
	Speckle color.Color

	// Sigma is the standard deviation of KindGaussian noise. Zero selects 48.
	Sigma float64
}

// ParseSpeckle parses a "#rrggbb" speckle color.
func ParseSpeckle(hex string) (color.Color, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return nil, fmt.Errorf("invalid speckle color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{r, g, b, 255}, nil
}

// Generate returns a w x h opaque background.
func Generate(rng *rand.Rand, w, h int, opts Options) (*image.NRGBA, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid background size %dx%d", w, h)
	}

	switch opts.Kind {
	case "", KindNoise:
		return imaging.Clone(noise.Generate(w, h, &noise.Options{NoiseFn: augment.UniformFn(rng)})), nil

	case KindGaussian:
		sigma := opts.Sigma
		if sigma <= 0 {
			sigma = 48
		}
		field := noise.Generate(w, h, &noise.Options{NoiseFn: augment.GaussianFn(rng, sigma)})
		out := imaging.Clone(blur.Gaussian(field, 1.5))
		// Blurring sums weighted alpha, which can round down to 254.
		for i := 3; i < len(out.Pix); i += 4 {
			out.Pix[i] = 255
		}
		return out, nil

	case KindWhite:
		if opts.Density < 0 || opts.Density > 1 {
			return nil, fmt.Errorf("speckle density must be in [0, 1], got %g", opts.Density)
		}
		return speckle(rng, w, h, opts.Density, opts.Speckle), nil
	}

	return nil, fmt.Errorf("unknown background kind: %s", opts.Kind)
}

func speckle(rng *rand.Rand, w, h int, density float64, c color.Color) *image.NRGBA {
	img := imaging.New(w, h, color.White)
	if density == 0 {
		return img
	}
	if c == nil {
		c = color.Black
	}
	dot := color.NRGBAModel.Convert(c).(color.NRGBA)
	dot.A = 255

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if rng.Float64() < density {
				img.SetNRGBA(x, y, dot)
			}
		}
	}
	return img
}

// GenerateSet writes n PNG backgrounds named "{kind}_bg_{i:04d}.png" to sink
// and returns their locations. seed makes the set reproducible.
func GenerateSet(ctx context.Context, sink storage.Sink, n, w, h int, opts Options, seed uint64) ([]string, error) {
	if n <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", n)
	}
	kind := opts.Kind
	if kind == "" {
		kind = KindNoise
	}

	locations := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return locations, err
		}

		img, err := Generate(rand.New(rand.NewPCG(seed, uint64(i))), w, h, opts)
		if err != nil {
			return locations, err
		}
		data, err := synthimg.Encode(img, synthimg.FormatPNG, 0)
		if err != nil {
			return locations, err
		}

		key := fmt.Sprintf("%s_bg_%04d.png", kind, i)
		if err := sink.Put(ctx, key, data); err != nil {
			return locations, err
		}
		locations = append(locations, sink.Location(key))
	}
	return locations, nil
}
