package synth

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ironsheep/dataset-synth/internal/augment"
	"github.com/ironsheep/dataset-synth/internal/imaging"
	"github.com/ironsheep/dataset-synth/internal/labels"
	"github.com/ironsheep/dataset-synth/internal/storage"
)

// Summary counts the outcome of a run.
type Summary struct {
	Generated int           `json:"generated"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
}

func (s Summary) String() string {
	return fmt.Sprintf("%d generated, %d skipped, %d failed in %s",
		s.Generated, s.Skipped, s.Failed, s.Elapsed.Round(time.Millisecond))
}

// task is one (background, foreground, augmentation index) combination.
type task struct {
	index  int
	bg     string
	fg     string
	augIdx int

	// bgRefs counts the unfinished tasks that use bg. The last one to
	// finish evicts bg from the cache. Nil keeps bg cached.
	bgRefs *atomic.Int64
}

// Batch composites every foreground onto every background.
type Batch struct {
	cfg      Config
	composer *Composer
	sink     storage.Sink
	cache    *imaging.ImageCache
	pipeline augment.Augmenter
	now      func() time.Time

	next      atomic.Int64
	generated atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

// NewBatch validates cfg and prepares a batch writing to sink.
func NewBatch(cfg Config, sink storage.Sink) (*Batch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Format == "" {
		cfg.Format = imaging.FormatJPEG
	}
	if cfg.Seed == 0 {
		cfg.Seed = rand.Uint64()
	}

	b := &Batch{
		cfg:      cfg,
		composer: cfg.Composer(),
		sink:     sink,
		cache:    imaging.NewImageCache(),
		now:      time.Now,
	}
	if cfg.Augment {
		b.pipeline = augment.DefaultCompositePipeline()
	}
	return b, nil
}

// Seed returns the seed in use, so a random run can be reproduced.
func (b *Batch) Seed() uint64 {
	return b.cfg.Seed
}

// Run processes the full cross product. Input directories without images
// fail before any output is written; per-pair failures are logged and
// counted. A cancelled ctx stops the run early and is reported as its error.
func (b *Batch) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	bgs, err := listImages(b.cfg.BackgroundsDir, "backgrounds")
	if err != nil {
		return nil, err
	}
	fgs, err := listImages(b.cfg.ForegroundsDir, "foregrounds")
	if err != nil {
		return nil, err
	}
	log.Printf("Found %d backgrounds and %d foregrounds (%d outputs, seed %d)",
		len(bgs), len(fgs), len(bgs)*len(fgs)*b.cfg.NumAugments, b.cfg.Seed)

	b.runPool(ctx, func(send func(task) bool) {
		for _, bg := range bgs {
			unsent := int64(len(fgs) * b.cfg.NumAugments)
			refs := new(atomic.Int64)
			refs.Store(unsent)
			for _, fg := range fgs {
				for aug := 1; aug <= b.cfg.NumAugments; aug++ {
					t := b.newTask(bg, fg, aug)
					t.bgRefs = refs
					if !send(t) {
						if refs.Add(-unsent) == 0 {
							b.cache.Evict(bg)
						}
						return
					}
					unsent--
				}
			}
		}
	})

	summary := b.summary(start)
	log.Printf("Batch complete: %s", summary)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// runPool starts cfg.Workers workers, feeds them the tasks produce sends and
// waits for all of them to finish. send reports false once ctx is done.
func (b *Batch) runPool(ctx context.Context, produce func(send func(task) bool)) {
	tasks := make(chan task)
	var wg sync.WaitGroup
	for range b.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				b.process(ctx, t)
			}
		}()
	}

	produce(func(t task) bool {
		select {
		case tasks <- t:
			return true
		case <-ctx.Done():
			return false
		}
	})
	close(tasks)
	wg.Wait()
}

// newTask numbers tasks in dispatch order; the number seeds the task's RNG
// and selects its ROI.
func (b *Batch) newTask(bg, fg string, augIdx int) task {
	return task{index: int(b.next.Add(1) - 1), bg: bg, fg: fg, augIdx: augIdx}
}

func (b *Batch) summary(start time.Time) *Summary {
	return &Summary{
		Generated: int(b.generated.Load()),
		Skipped:   int(b.skipped.Load()),
		Failed:    int(b.failed.Load()),
		Elapsed:   time.Since(start),
	}
}

// process runs one task and records its outcome.
func (b *Batch) process(ctx context.Context, t task) {
	defer b.release(t)
	if ctx.Err() != nil {
		return
	}

	key, err := b.compose(ctx, t)
	switch {
	case err == nil:
		b.generated.Add(1)
		if b.cfg.Verbose {
			log.Printf("Wrote %s", b.sink.Location(key))
		}
	case errors.Is(err, ErrNoPlacement), errors.Is(err, ErrInfeasibleScale):
		b.skipped.Add(1)
		log.Printf("Skipping %s on %s: %v", t.fg, t.bg, err)
	case errors.Is(err, context.Canceled):
	default:
		b.failed.Add(1)
		log.Printf("Error processing %s on %s: %v", t.fg, t.bg, err)
	}
}

// release drops t's hold on its background and evicts the background once
// no task needs it.
func (b *Batch) release(t task) {
	if t.bgRefs != nil && t.bgRefs.Add(-1) == 0 {
		b.cache.Evict(t.bg)
	}
}

// compose builds, encodes and stores one output, returning its key.
func (b *Batch) compose(ctx context.Context, t task) (string, error) {
	rng := rand.New(rand.NewPCG(b.cfg.Seed, uint64(t.index)))

	bg, err := b.cache.Load(t.bg)
	if err != nil {
		return "", err
	}
	sprite, err := b.cache.Load(t.fg)
	if err != nil {
		return "", err
	}

	res, err := b.composer.Place(ctx, rng, bg, sprite, b.cfg.ROIFor(t.index))
	if err != nil {
		return "", err
	}

	var boxes []labels.Box
	if b.cfg.EmitLabels && !res.Object.Empty() {
		boxes = []labels.Box{res.Label(classFor(t.fg, b.cfg.ClassFromDir, b.cfg.Class))}
	}

	var out image.Image = res.Image
	if b.pipeline != nil {
		out, boxes = b.pipeline.Augment(rng, out, boxes)
	}

	data, err := imaging.Encode(out, b.cfg.Format, b.cfg.Quality)
	if err != nil {
		return "", err
	}

	key := outputKey(b.cfg.ForegroundsDir, t.fg, OutputName(t.bg, t.fg, b.now(), t.augIdx, b.cfg.Format))
	if err := b.sink.Put(ctx, key, data); err != nil {
		return "", err
	}
	if b.cfg.EmitLabels {
		if err := b.sink.Put(ctx, labelKey(key), labels.Marshal(boxes)); err != nil {
			return "", err
		}
	}
	return key, nil
}

func listImages(dir, what string) ([]string, error) {
	paths, err := imaging.FindImages(dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s directory %s", ErrNoImages, what, dir)
	}
	return paths, nil
}
