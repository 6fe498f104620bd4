package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/ironsheep/dataset-synth/internal/augment"
	"github.com/ironsheep/dataset-synth/internal/background"
	"github.com/ironsheep/dataset-synth/internal/config"
	"github.com/ironsheep/dataset-synth/internal/dataset"
	"github.com/ironsheep/dataset-synth/internal/geometry"
	"github.com/ironsheep/dataset-synth/internal/glyph"
	"github.com/ironsheep/dataset-synth/internal/imaging"
	"github.com/ironsheep/dataset-synth/internal/ocr"
	"github.com/ironsheep/dataset-synth/internal/placement"
	"github.com/ironsheep/dataset-synth/internal/storage"
	"github.com/ironsheep/dataset-synth/internal/synth"
)

// roiList collects repeated -roi x,y,w,h flags.
type roiList []geometry.Rect

func (r *roiList) String() string {
	parts := make([]string, len(*r))
	for i, roi := range *r {
		parts[i] = fmt.Sprintf("%d,%d,%d,%d", roi.X, roi.Y, roi.W, roi.H)
	}
	return strings.Join(parts, " ")
}

func (r *roiList) Set(value string) error {
	roi, err := parseROI(value)
	if err != nil {
		return err
	}
	*r = append(*r, roi)
	return nil
}

// parseROI parses "x,y,w,h".
func parseROI(s string) (geometry.Rect, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 4 {
		return geometry.Rect{}, fmt.Errorf("roi %q: want x,y,w,h", s)
	}
	var v [4]int
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return geometry.Rect{}, fmt.Errorf("roi %q: %w", s, err)
		}
		v[i] = n
	}
	roi := geometry.Rect{X: v[0], Y: v[1], W: v[2], H: v[3]}
	if roi.Empty() {
		return geometry.Rect{}, fmt.Errorf("roi %q is empty", s)
	}
	return roi, nil
}

func seedOrRandom(seed uint64) uint64 {
	if seed == 0 {
		seed = rand.Uint64()
		log.Printf("Using random seed %d", seed)
	}
	return seed
}

// compositeFlags binds the batch parameters shared by composite and watch.
type compositeFlags struct {
	cfg       synth.Config
	mode      string
	format    string
	rois      roiList
	noRotate  bool
	noAugment bool
}

func newCompositeFlags(fs *flag.FlagSet, env *config.Config) *compositeFlags {
	f := &compositeFlags{cfg: synth.DefaultConfig()}
	c := &f.cfg
	c.Workers = env.Workers
	c.Quality = env.JPEGQuality
	c.TimeBudget = env.TimeBudget
	c.Verbose = env.Debug()

	fs.StringVar(&c.BackgroundsDir, "backgrounds", "", "background image tree (required)")
	fs.StringVar(&c.ForegroundsDir, "foregrounds", "", "foreground sprite tree (required)")
	fs.StringVar(&c.OutputDir, "output", "", "output directory or S3 key prefix (required)")
	fs.Float64Var(&c.MinScale, "min-scale", c.MinScale, "smallest sprite scale")
	fs.Float64Var(&c.MaxScale, "max-scale", c.MaxScale, "largest sprite scale")
	fs.Float64Var(&c.MinVisible, "min-visible", c.MinVisible, "minimum visible fraction of the sprite")
	fs.BoolVar(&c.ClampToBackground, "clamp-bg", false, "cap the scale so the sprite fits the background")
	fs.BoolVar(&c.ClampToArea, "clamp-area", false, "cap the scale so min-visible of the sprite can fit")
	fs.BoolVar(&f.noRotate, "no-rotation", false, "do not rotate sprites")
	fs.BoolVar(&c.CenterMode, "center", false, "paste sprites unrotated at the target center")
	fs.Var(&f.rois, "roi", "region of interest x,y,w,h (repeatable, cycled per task)")
	fs.IntVar(&c.NumAugments, "augments", c.NumAugments, "outputs per background/foreground pair")
	fs.IntVar(&c.AttemptBudget, "attempts", c.AttemptBudget, "position attempts in the first round")
	fs.StringVar(&f.mode, "mode", "envelope", "placement mode: envelope, center or inside")
	fs.Float64Var(&c.Margin, "margin", c.Margin, "envelope margin as a share of the sprite size")
	fs.Float64Var(&c.ShrinkFactor, "shrink-factor", c.ShrinkFactor, "scale multiplier between rounds")
	fs.IntVar(&c.MaxShrinkRounds, "max-shrink-rounds", c.MaxShrinkRounds, "shrink rounds after the first")
	fs.DurationVar(&c.TimeBudget, "time-budget", c.TimeBudget, "placement time budget per pair")
	fs.BoolVar(&f.noAugment, "no-augment", false, "skip the augmentation pipeline")
	fs.BoolVar(&c.EmitLabels, "labels", false, "write a YOLO label file next to every output")
	fs.BoolVar(&c.ClassFromDir, "class-from-dir", false, "use the numeric sprite folder name as label class")
	fs.IntVar(&c.Class, "class", 0, "label class when -class-from-dir does not apply")
	fs.IntVar(&c.Workers, "workers", c.Workers, "worker goroutines")
	fs.Uint64Var(&c.Seed, "seed", 0, "random seed (0 picks one)")
	fs.StringVar(&f.format, "format", env.Format, "output format: jpg or png")
	fs.IntVar(&c.Quality, "quality", c.Quality, "JPEG quality")
	fs.BoolVar(&c.Verbose, "verbose", c.Verbose, "log every generated file")
	return f
}

// config finishes the batch configuration after flag parsing.
func (f *compositeFlags) config() (synth.Config, error) {
	c := f.cfg
	mode, err := placement.ParseMode(f.mode)
	if err != nil {
		return c, err
	}
	format, err := imaging.ParseFormat(f.format)
	if err != nil {
		return c, err
	}
	c.Mode = mode
	c.Format = format
	c.ROIs = f.rois
	c.RotationEnabled = !f.noRotate
	c.Augment = !f.noAugment
	return c, c.Validate()
}

func runComposite(ctx context.Context, env *config.Config, args []string) error {
	fs := flag.NewFlagSet("composite", flag.ExitOnError)
	flags := newCompositeFlags(fs, env)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := flags.config()
	if err != nil {
		return err
	}

	sink, err := storage.Open(ctx, env, cfg.OutputDir)
	if err != nil {
		return err
	}
	batch, err := synth.NewBatch(cfg, sink)
	if err != nil {
		return err
	}
	summary, err := batch.Run(ctx)
	if summary != nil {
		fmt.Printf("%s (seed %d)\n", summary, batch.Seed())
	}
	return err
}

func runWatch(ctx context.Context, env *config.Config, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	flags := newCompositeFlags(fs, env)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := flags.config()
	if err != nil {
		return err
	}

	sink, err := storage.Open(ctx, env, cfg.OutputDir)
	if err != nil {
		return err
	}

	log.Printf("Watching %s, press Ctrl+C to stop", cfg.ForegroundsDir)
	summary, err := synth.Watch(ctx, cfg, sink)
	if err != nil {
		return err
	}
	fmt.Println(summary)
	return nil
}

func runAugment(ctx context.Context, env *config.Config, args []string) error {
	fs := flag.NewFlagSet("augment", flag.ExitOnError)
	root := fs.String("root", "", "dataset root holding images/<split> and labels/<split> (required)")
	split := fs.String("split", "train", "split folder name")
	copies := fs.Int("copies", 3, "augmented copies per image in addition to copy 0")
	output := fs.String("output", "", "output root (default -root)")
	workers := fs.Int("workers", env.Workers, "worker goroutines")
	seed := fs.Uint64("seed", 0, "random seed (0 picks one)")
	pipelineName := fs.String("pipeline", "detection", "augmentation pipeline: detection, composite or image")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *root == "" {
		return errors.New("-root is required")
	}
	if *output == "" {
		*output = *root
	}
	pipeline, err := augment.PipelineByName(*pipelineName)
	if err != nil {
		return err
	}

	sink, err := storage.Open(ctx, env, *output)
	if err != nil {
		return err
	}
	summary, err := dataset.AugmentSplit(ctx, dataset.AugmentConfig{
		Root:     *root,
		Split:    *split,
		Copies:   *copies,
		Workers:  *workers,
		Seed:     seedOrRandom(*seed),
		Pipeline: pipeline,
	}, sink)
	if err != nil {
		return err
	}
	fmt.Printf("%d images, %d written, %d failed, %d boxes dropped\n",
		summary.Images, summary.Written, summary.Failed, summary.BoxesDropped)
	return nil
}

func runSplit(args []string) error {
	fs := flag.NewFlagSet("split", flag.ExitOnError)
	root := fs.String("root", "", "dataset root holding images/ and labels/ (required)")
	ratio := fs.Float64("ratio", 0.8, "share of samples assigned to train")
	copyFiles := fs.Bool("copy", false, "copy samples into train/ and val/ folders")
	seed := fs.Uint64("seed", 0, "shuffle seed (0 picks one)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *root == "" {
		return errors.New("-root is required")
	}

	result, err := dataset.Split(*root, *ratio, *copyFiles, seedOrRandom(*seed))
	if err != nil {
		return err
	}
	fmt.Printf("%d train, %d val (%s, %s)\n", result.TrainCount, result.ValCount, result.TrainIndex, result.ValIndex)
	return nil
}

func runDigits(ctx context.Context, env *config.Config, args []string) error {
	cfg := glyph.DefaultConfig()

	fs := flag.NewFlagSet("digits", flag.ExitOnError)
	fontsDir := fs.String("fonts", "", "folder of .ttf/.otf fonts (required)")
	output := fs.String("output", "", "output directory (required)")
	fs.IntVar(&cfg.FirstDigit, "first", cfg.FirstDigit, "first digit")
	fs.IntVar(&cfg.LastDigit, "last", cfg.LastDigit, "last digit")
	fs.IntVar(&cfg.Total, "total", cfg.Total, "samples per tree, split across digits")
	fs.IntVar(&cfg.Padding, "padding", cfg.Padding, "padding around the glyph")
	fs.BoolVar(&cfg.Underlined, "underlined", cfg.Underlined, "also write the underlined tree")
	fs.IntVar(&cfg.UnderlineWidth, "underline-width", cfg.UnderlineWidth, "underline thickness")
	fs.IntVar(&cfg.UnderlineGap, "underline-gap", cfg.UnderlineGap, "gap between glyph and underline")
	fs.Float64Var(&cfg.Erode, "erode", 0, "erode radius")
	fs.Float64Var(&cfg.Dilate, "dilate", 0, "dilate radius")
	verify := fs.Bool("verify", false, "reject renders that Tesseract does not read as the digit")
	lang := fs.String("lang", "eng", "Tesseract language")
	seed := fs.Uint64("seed", 0, "random seed (0 picks one)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *fontsDir == "" || *output == "" {
		return errors.New("-fonts and -output are required")
	}
	cfg.Seed = seedOrRandom(*seed)

	fonts, err := glyph.LoadFonts(*fontsDir)
	if err != nil {
		return err
	}
	if *verify {
		verifier, err := ocr.NewDigitVerifier(*lang, env.TessdataPrefix)
		if err != nil {
			return err
		}
		defer verifier.Close()
		cfg.Verifier = verifier
	}

	sink, err := storage.Open(ctx, env, *output)
	if err != nil {
		return err
	}
	summary, err := glyph.Generate(ctx, cfg, fonts, sink)
	if err != nil {
		return err
	}
	fmt.Printf("%d generated, %d failed, %d rejected\n", summary.Generated, summary.Failed, summary.Rejected)
	return nil
}

func runPairs(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pairs", flag.ExitOnError)
	digits := fs.String("digits", "", "folder containing digit folders 0..9 (required)")
	output := fs.String("output", "", "output directory (required)")
	count := fs.Int("count", 100, "number of pairs")
	seed := fs.Uint64("seed", 0, "random seed (0 picks one)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *digits == "" || *output == "" {
		return errors.New("-digits and -output are required")
	}

	summary, err := glyph.GeneratePairs(ctx, *digits, *output, *count, seedOrRandom(*seed))
	if err != nil {
		return err
	}
	fmt.Printf("%d generated, %d failed\n", summary.Generated, summary.Failed)
	return nil
}

func runBackgrounds(ctx context.Context, env *config.Config, args []string) error {
	fs := flag.NewFlagSet("backgrounds", flag.ExitOnError)
	output := fs.String("output", "", "output directory (required)")
	count := fs.Int("count", 10, "number of backgrounds")
	width := fs.Int("width", background.DefaultSize, "width in pixels")
	height := fs.Int("height", background.DefaultSize, "height in pixels")
	kind := fs.String("kind", string(background.KindNoise), "noise, gaussian or white")
	density := fs.Float64("density", background.DefaultDensity, "speckle density for white backgrounds")
	speckle := fs.String("speckle", "", "speckle color #rrggbb (default black)")
	seed := fs.Uint64("seed", 0, "random seed (0 picks one)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *output == "" {
		return errors.New("-output is required")
	}

	k, err := background.ParseKind(*kind)
	if err != nil {
		return err
	}
	opts := background.Options{Kind: k, Density: *density}
	if *speckle != "" {
		if opts.Speckle, err = background.ParseSpeckle(*speckle); err != nil {
			return err
		}
	}

	sink, err := storage.Open(ctx, env, *output)
	if err != nil {
		return err
	}
	locations, err := background.GenerateSet(ctx, sink, *count, *width, *height, opts, seedOrRandom(*seed))
	if err != nil {
		return err
	}
	fmt.Printf("%d backgrounds written to %s\n", len(locations), sink.Location(""))
	return nil
}

func runResize(args []string) error {
	fs := flag.NewFlagSet("resize", flag.ExitOnError)
	input := fs.String("input", "", "input directory tree (required)")
	output := fs.String("output", "", "output directory (default -input)")
	width := fs.Int("width", 96, "target width")
	height := fs.Int("height", 96, "target height")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return errors.New("-input is required")
	}
	if *output == "" {
		*output = *input
	}

	summary, err := imaging.ResizeTree(*input, *output, *width, *height)
	if err != nil {
		return err
	}
	fmt.Printf("%d resized, %d failed\n", summary.Processed, summary.Failed)
	return nil
}
