// Package augment applies randomized color and geometric augmentations to
// images and, for detection datasets, to their YOLO bounding boxes.
//
// A Pipeline is an ordered list of stages. The pipeline as a whole runs with
// probability P, and each stage is then gated by its own probability. Stages
// never change the canvas size, so boxes stay normalized to the same image
// throughout; geometric stages move them, and after the last stage boxes
// that ended up mostly outside the image are dropped.
package augment

import (
	"fmt"
	"image"
	"math/rand/v2"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/dataset-synth/internal/labels"
)

// Augmenter transforms an image together with its boxes. boxes may be nil for
// plain image augmentation.
type Augmenter interface {
	Augment(rng *rand.Rand, img image.Image, boxes []labels.Box) (image.Image, []labels.Box)
}

// Stage is one probability-gated transform.
//
// Apply must return an image with the same bounds as img and exactly one box
// per input box, in order. Boxes may move partly or fully outside [0,1];
// clipping and filtering happen once in the Pipeline.
type Stage interface {
	Name() string
	Probability() float64
	Apply(rng *rand.Rand, img *image.NRGBA, boxes []labels.Box) (*image.NRGBA, []labels.Box)
}

// Pipeline runs its stages in order.
type Pipeline struct {
	Stages []Stage

	// P is the probability that any stage runs at all.
	P float64

	// MinVisibility drops boxes whose clipped area is below this fraction of
	// their area before augmentation.
	MinVisibility float64

	// MinArea drops boxes whose clipped area is below this many pixels.
	MinArea float64
}

// Augment implements Augmenter. The input image is never modified.
func (p *Pipeline) Augment(rng *rand.Rand, img image.Image, boxes []labels.Box) (image.Image, []labels.Box) {
	out := imaging.Clone(img)
	if len(p.Stages) == 0 || rng.Float64() >= p.P {
		return out, clipBoxes(boxes, out.Bounds().Dx(), out.Bounds().Dy(), boxes, 0, 0)
	}

	cur := append([]labels.Box(nil), boxes...)
	for _, s := range p.Stages {
		if rng.Float64() >= s.Probability() {
			continue
		}
		out, cur = s.Apply(rng, out, cur)
	}

	return out, clipBoxes(cur, out.Bounds().Dx(), out.Bounds().Dy(), boxes, p.MinVisibility, p.MinArea)
}

// StageNames lists the stage names in order, for logging and tool output.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		names[i] = s.Name()
	}
	return names
}

// clipBoxes clips boxes to the image and drops those that fail the
// visibility or area thresholds. orig holds the boxes before augmentation,
// index-aligned with boxes.
func clipBoxes(boxes []labels.Box, w, h int, orig []labels.Box, minVisibility, minArea float64) []labels.Box {
	if boxes == nil {
		return nil
	}

	kept := make([]labels.Box, 0, len(boxes))
	fw, fh := float64(w), float64(h)
	for i, b := range boxes {
		x1, y1, x2, y2 := b.Corners(w, h)
		cx1, cy1 := clamp(x1, 0, fw), clamp(y1, 0, fh)
		cx2, cy2 := clamp(x2, 0, fw), clamp(y2, 0, fh)
		if cx2 <= cx1 || cy2 <= cy1 {
			continue
		}

		area := (cx2 - cx1) * (cy2 - cy1)
		ox1, oy1, ox2, oy2 := orig[i].Corners(w, h)
		origArea := (ox2 - ox1) * (oy2 - oy1)
		if origArea <= 0 || area/origArea < minVisibility || area < minArea {
			continue
		}

		kept = append(kept, labels.FromCorners(b.Class, cx1, cy1, cx2, cy2, w, h))
	}
	return kept
}

// DefaultCompositePipeline is the color-only pipeline applied to composites
// after compositing: brightness/contrast, HSV and RGB shifts, blur, noise and
// elastic distortion. It carries no geometric stages, so composite labels
// stay exact.
func DefaultCompositePipeline() *Pipeline {
	return &Pipeline{
		P: 1.0,
		Stages: []Stage{
			&BrightnessContrast{P: 0.8, Brightness: [2]float64{-0.3, 0.3}, Contrast: [2]float64{-0.15, 0.15}},
			&HueSaturationValue{P: 0.4, Hue: 15, Saturation: 25, Value: 15},
			&RGBShift{P: 0.3, R: 15, G: 15, B: 15},
			&MotionBlur{P: 0.3, MinKernel: 3, MaxKernel: 7},
			&GaussianBlur{P: 0.2, MinRadius: 0.5, MaxRadius: 1.5},
			&GaussianNoise{P: 0.2, Sigma: 8},
			&ElasticTransform{P: 0.25, Alpha: 1.2, Sigma: 25},
		},
	}
}

// DefaultDetectionPipeline is the pipeline used to augment labeled detection
// datasets. Boxes that keep less than 40% of their area, or fewer than 8
// pixels, are dropped.
func DefaultDetectionPipeline() *Pipeline {
	return &Pipeline{
		P:             1.0,
		MinVisibility: 0.4,
		MinArea:       8,
		Stages: []Stage{
			&ElasticTransform{P: 0.25, Alpha: 1.2, Sigma: 25},
			&OpticalDistortion{P: 0.25, Limit: 0.25},
			&Rotate{P: 0.6, Limit: 15},
			&RGBShift{P: 0.3, R: 15, G: 15, B: 15},
			&BrightnessContrast{P: 0.8, Brightness: [2]float64{-0.3, 0.3}, Contrast: [2]float64{-0.15, 0.15}},
			&HueSaturationValue{P: 0.4, Hue: 15, Saturation: 25, Value: 15},
			&MotionBlur{P: 0.3, MinKernel: 3, MaxKernel: 9},
		},
	}
}

// DefaultImagePipeline flips, rotates, relights and adds noise. It suits
// classification crops where mirrored samples are still valid.
func DefaultImagePipeline() *Pipeline {
	return &Pipeline{
		P:             1.0,
		MinVisibility: 0.4,
		MinArea:       8,
		Stages: []Stage{
			&FlipH{P: 0.5},
			&FlipV{P: 0.2},
			&Rotate{P: 0.5, Limit: 30},
			&BrightnessContrast{P: 0.6, Brightness: [2]float64{-0.3, 0.3}, Contrast: [2]float64{-0.1, 0.1}},
			&GaussianNoise{P: 0.3, Sigma: 10},
			&SaltPepper{P: 0.3, Amount: 0.02},
		},
	}
}

// PipelineNames lists the names accepted by PipelineByName.
var PipelineNames = []string{"detection", "composite", "image"}

// PipelineByName returns a default pipeline by name. The empty name selects
// the detection pipeline.
func PipelineByName(name string) (*Pipeline, error) {
	switch name {
	case "", "detection":
		return DefaultDetectionPipeline(), nil
	case "composite":
		return DefaultCompositePipeline(), nil
	case "image":
		return DefaultImagePipeline(), nil
	default:
		return nil, fmt.Errorf("unknown pipeline %q (want one of %v)", name, PipelineNames)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// between returns a uniform float in [lo, hi).
func between(rng *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + rng.Float64()*(hi-lo)
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
