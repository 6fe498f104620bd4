// Package synth composites foreground sprites onto backgrounds to build
// synthetic detection datasets.
//
// A Composer handles one background/foreground pair: it picks a scale and a
// rotation, transforms the sprite, and searches for a position that keeps at
// least MinVisible of the sprite inside the target area, shrinking the sprite
// between rounds when the search fails. A Batch runs the Composer over the
// cross product of a background tree, a foreground tree and an augmentation
// count on a worker pool, and Watch does the same for sprites as they appear.
package synth

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/ironsheep/dataset-synth/internal/geometry"
	"github.com/ironsheep/dataset-synth/internal/imaging"
	"github.com/ironsheep/dataset-synth/internal/placement"
)

var (
	// ErrNoPlacement is returned when no acceptable position was found
	// within the attempt, round and time budgets.
	ErrNoPlacement = errors.New("no placement meets the visibility threshold")

	// ErrInfeasibleScale is returned when clamping leaves an empty scale range.
	ErrInfeasibleScale = errors.New("scale range is infeasible for this background")

	// ErrNoImages is returned when an input directory holds no images.
	ErrNoImages = errors.New("no images found")
)

// Config holds the named parameters of one batch run.
type Config struct {
	BackgroundsDir string
	ForegroundsDir string
	OutputDir      string

	MinScale   float64
	MaxScale   float64
	MinVisible float64

	// ClampToBackground caps the scale so the sprite fits the background;
	// ClampToArea further caps it so MinVisible of the sprite can fit at all.
	ClampToBackground bool
	ClampToArea       bool

	RotationEnabled bool

	// CenterMode pastes the scaled sprite, unrotated, at the center of the
	// target instead of searching.
	CenterMode bool

	// ROIs restrict placement. Task i uses ROIs[i%len(ROIs)]; none means the
	// full background.
	ROIs []geometry.Rect

	NumAugments     int
	AttemptBudget   int
	Mode            placement.Mode
	Margin          float64
	ShrinkFactor    float64
	MaxShrinkRounds int

	// TimeBudget bounds the search for a single pair, shrink rounds included.
	TimeBudget time.Duration

	// Augment runs the composite augmentation pipeline on every output.
	Augment bool

	// EmitLabels writes a YOLO label file next to every output. The class is
	// the numeric name of the sprite's directory when ClassFromDir is set and
	// the directory name is a number, otherwise Class.
	EmitLabels   bool
	ClassFromDir bool
	Class        int

	Workers int

	// Seed makes a run reproducible. Zero picks a random seed.
	Seed uint64

	Format  imaging.Format
	Quality int

	// Verbose logs every generated file.
	Verbose bool
}

// DefaultConfig returns the parameters used by the composite scripts this
// tool replaces: scale 0.3..1.7, 60% visibility, 3 outputs per pair.
func DefaultConfig() Config {
	return Config{
		MinScale:        0.3,
		MaxScale:        1.7,
		MinVisible:      0.6,
		RotationEnabled: true,
		NumAugments:     3,
		AttemptBudget:   placement.DefaultMaxAttempts,
		Mode:            placement.ModeEnvelope,
		Margin:          0.3,
		ShrinkFactor:    0.9,
		MaxShrinkRounds: 5,
		TimeBudget:      10 * time.Second,
		Augment:         true,
		Workers:         runtime.NumCPU(),
		Format:          imaging.FormatJPEG,
		Quality:         imaging.DefaultJPEGQuality,
	}
}

// Validate checks the configuration before any file is touched.
func (c *Config) Validate() error {
	if c.BackgroundsDir == "" {
		return errors.New("backgrounds directory is required")
	}
	if c.ForegroundsDir == "" {
		return errors.New("foregrounds directory is required")
	}
	if c.OutputDir == "" {
		return errors.New("output directory is required")
	}
	if c.MinScale <= 0 || c.MaxScale < c.MinScale {
		return fmt.Errorf("invalid scale range [%g, %g]", c.MinScale, c.MaxScale)
	}
	if c.MinVisible <= 0 || c.MinVisible > 1 {
		return fmt.Errorf("min visible must be in (0, 1], got %g", c.MinVisible)
	}
	if c.NumAugments < 1 {
		return fmt.Errorf("num augments must be at least 1, got %d", c.NumAugments)
	}
	if c.AttemptBudget < 0 {
		return fmt.Errorf("attempt budget must not be negative, got %d", c.AttemptBudget)
	}
	if c.ShrinkFactor <= 0 || c.ShrinkFactor >= 1 {
		return fmt.Errorf("shrink factor must be in (0, 1), got %g", c.ShrinkFactor)
	}
	if c.MaxShrinkRounds < 0 {
		return fmt.Errorf("max shrink rounds must not be negative, got %d", c.MaxShrinkRounds)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	for i, roi := range c.ROIs {
		if roi.Empty() {
			return fmt.Errorf("roi %d is empty: %v", i, roi)
		}
	}
	if _, err := imaging.ParseFormat(string(c.Format)); err != nil {
		return err
	}
	return nil
}

// Composer builds the pair-level composer described by the configuration.
func (c *Config) Composer() *Composer {
	return &Composer{
		MinScale:          c.MinScale,
		MaxScale:          c.MaxScale,
		MinVisible:        c.MinVisible,
		ClampToBackground: c.ClampToBackground,
		ClampToArea:       c.ClampToArea,
		Rotate:            c.RotationEnabled,
		Center:            c.CenterMode,
		Attempts:          c.AttemptBudget,
		Mode:              c.Mode,
		Margin:            c.Margin,
		ShrinkFactor:      c.ShrinkFactor,
		MaxShrinkRounds:   c.MaxShrinkRounds,
		TimeBudget:        c.TimeBudget,
	}
}

// ROIFor returns the region of interest for task i.
func (c *Config) ROIFor(i int) geometry.Rect {
	if len(c.ROIs) == 0 {
		return geometry.Rect{}
	}
	return c.ROIs[i%len(c.ROIs)]
}
