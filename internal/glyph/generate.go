package glyph

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"math/rand/v2"
	"path"

	"github.com/ironsheep/dataset-synth/internal/imaging"
	"github.com/ironsheep/dataset-synth/internal/ocr"
	"github.com/ironsheep/dataset-synth/internal/storage"
)

// maxFontAttempts bounds the fonts tried for one sample.
const maxFontAttempts = 3

// Tree names under the output root.
const (
	NormalDir     = "normal"
	UnderlinedDir = "underlined"
)

// Verifier checks that an image reads as the expected digit.
type Verifier interface {
	Verify(img image.Image, digit int) (*ocr.Verification, error)
}

// Config holds the parameters of a glyph generation run.
type Config struct {
	// FirstDigit and LastDigit bound the generated digits, inclusive.
	FirstDigit int
	LastDigit  int

	// Total is the number of samples per tree, split evenly across digits.
	Total int

	Padding        int
	Underlined     bool
	UnderlineWidth int
	UnderlineGap   int

	// Erode and Dilate are the Thin radii; both zero skips thinning.
	Erode  float64
	Dilate float64

	// Verifier, when set, rejects renders that do not read back as the digit.
	Verifier Verifier

	Seed uint64
}

// DefaultConfig generates 100 samples of each tree for digits 0..9.
func DefaultConfig() Config {
	return Config{
		FirstDigit:     0,
		LastDigit:      9,
		Total:          100,
		Padding:        2,
		Underlined:     true,
		UnderlineWidth: 2,
		UnderlineGap:   2,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.FirstDigit < 0 || c.LastDigit > 9 || c.FirstDigit > c.LastDigit {
		return fmt.Errorf("invalid digit range %d..%d", c.FirstDigit, c.LastDigit)
	}
	if c.Total < 1 {
		return fmt.Errorf("total must be positive, got %d", c.Total)
	}
	if c.Padding < 0 || c.UnderlineWidth < 0 || c.UnderlineGap < 0 {
		return errors.New("padding and underline sizes must not be negative")
	}
	if c.Erode < 0 || c.Dilate < 0 {
		return errors.New("morphology radii must not be negative")
	}
	return nil
}

// GenerateSummary counts the outcome of Generate.
type GenerateSummary struct {
	Generated int      `json:"generated"`
	Failed    int      `json:"failed"`
	Rejected  int      `json:"rejected"`
	Fonts     []string `json:"fonts_removed,omitempty"`
}

// Generate renders the digit trees into sink:
//
//	normal/{d}/{d}_{idx:04d}.png
//	underlined/{d}/{d}_{idx:04d}_U.png
//
// Each sample tries up to three random fonts. A font that fails to render is
// removed from the pool for the rest of the run; when the pool is empty the
// run stops with ErrNoFonts. A sample whose render the Verifier rejects is
// retried with another font.
func Generate(ctx context.Context, cfg Config, fonts []*Font, sink storage.Sink) (*GenerateSummary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(fonts) == 0 {
		return nil, ErrNoFonts
	}

	g := &generator{
		cfg:   cfg,
		fonts: append([]*Font(nil), fonts...),
		sink:  sink,
		rng:   rand.New(rand.NewPCG(cfg.Seed, 0x9e3779b9)),
	}

	trees := []string{NormalDir}
	if cfg.Underlined {
		trees = append(trees, UnderlinedDir)
	}

	counts := Allocate(cfg.LastDigit-cfg.FirstDigit+1, cfg.Total)
	for _, tree := range trees {
		for i, n := range counts {
			digit := cfg.FirstDigit + i
			for idx := 0; idx < n; idx++ {
				if err := ctx.Err(); err != nil {
					return &g.summary, err
				}
				if err := g.sample(ctx, tree, digit, idx); err != nil {
					return &g.summary, err
				}
			}
		}
	}

	log.Printf("Glyph generation complete: %d generated, %d failed, %d rejected by OCR",
		g.summary.Generated, g.summary.Failed, g.summary.Rejected)
	return &g.summary, nil
}

type generator struct {
	cfg     Config
	fonts   []*Font
	sink    storage.Sink
	rng     *rand.Rand
	summary GenerateSummary
}

// SampleKey returns the sink key of one sample.
func SampleKey(tree string, digit, idx int) string {
	name := fmt.Sprintf("%d_%04d.png", digit, idx)
	if tree == UnderlinedDir {
		name = fmt.Sprintf("%d_%04d_U.png", digit, idx)
	}
	return path.Join(tree, fmt.Sprint(digit), name)
}

// sample renders and stores one image. Only an exhausted font pool or a
// sink failure is returned as an error.
func (g *generator) sample(ctx context.Context, tree string, digit, idx int) error {
	for attempt := 0; attempt < maxFontAttempts; attempt++ {
		i := g.rng.IntN(len(g.fonts))
		f := g.fonts[i]

		img, err := g.render(f, digit, tree == UnderlinedDir)
		if err != nil {
			log.Printf("Removing font %s: %v", f.Name, err)
			g.fonts = append(g.fonts[:i], g.fonts[i+1:]...)
			g.summary.Fonts = append(g.summary.Fonts, f.Name)
			if len(g.fonts) == 0 {
				return fmt.Errorf("%w: every font failed to render", ErrNoFonts)
			}
			continue
		}

		if g.cfg.Verifier != nil {
			v, err := g.cfg.Verifier.Verify(img, digit)
			if err != nil {
				log.Printf("OCR failed for digit %d with font %s: %v", digit, f.Name, err)
				g.summary.Rejected++
				continue
			}
			if !v.Match {
				g.summary.Rejected++
				continue
			}
		}

		data, err := imaging.Encode(img, imaging.FormatPNG, 0)
		if err != nil {
			return err
		}
		if err := g.sink.Put(ctx, SampleKey(tree, digit, idx), data); err != nil {
			return err
		}
		g.summary.Generated++
		return nil
	}

	log.Printf("Warning: digit %d sample %d (%s) failed", digit, idx, tree)
	g.summary.Failed++
	return nil
}

func (g *generator) render(f *Font, digit int, underlined bool) (*image.NRGBA, error) {
	img, err := Render(f, digit, g.cfg.Padding)
	if err != nil {
		return nil, err
	}
	if g.cfg.Erode > 0 || g.cfg.Dilate > 0 {
		img = Thin(img, g.cfg.Erode, g.cfg.Dilate)
	}
	if underlined {
		img = AddUnderline(img, g.cfg.Padding, g.cfg.UnderlineWidth, g.cfg.UnderlineGap)
	}
	return img, nil
}
