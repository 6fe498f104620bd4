package synth

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/dataset-synth/internal/geometry"
	"github.com/ironsheep/dataset-synth/internal/imaging"
	"github.com/ironsheep/dataset-synth/internal/labels"
	"github.com/ironsheep/dataset-synth/internal/placement"
	"github.com/ironsheep/dataset-synth/internal/storage"
)

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 1))
}

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func fixedComposer() *Composer {
	return &Composer{
		MinScale:        1,
		MaxScale:        1,
		MinVisible:      1,
		Attempts:        100,
		ShrinkFactor:    0.9,
		MaxShrinkRounds: 5,
		TimeBudget:      5 * time.Second,
	}
}

func TestComposer_FullyVisiblePlacement(t *testing.T) {
	bg := solid(200, 200, color.White)
	sprite := solid(50, 50, color.Black)
	c := fixedComposer()

	for seed := uint64(0); seed < 50; seed++ {
		res, err := c.Place(context.Background(), newRNG(seed), bg, sprite, geometry.Rect{})
		require.NoError(t, err)

		assert.Equal(t, 50, res.Rect.W)
		assert.Equal(t, 50, res.Rect.H)
		assert.True(t, res.Rect.X >= 0 && res.Rect.X <= 150, "x=%d", res.Rect.X)
		assert.True(t, res.Rect.Y >= 0 && res.Rect.Y <= 150, "y=%d", res.Rect.Y)
		assert.Equal(t, 1.0, res.Visible)
		assert.Equal(t, bg.Bounds(), res.Image.Bounds())
	}
}

func TestComposer_SpriteLargerThanROIFails(t *testing.T) {
	bg := solid(100, 100, color.White)
	sprite := solid(100, 100, color.Black)
	roi := geometry.Rect{X: 0, Y: 0, W: 50, H: 50}

	tests := []struct {
		name     string
		minScale float64
	}{
		{"fixed scale", 1.0},
		{"shrinking scale", 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := fixedComposer()
			c.MinScale = tt.minScale
			c.MinVisible = 0.75

			done := make(chan error, 1)
			go func() {
				_, err := c.Place(context.Background(), newRNG(1), bg, sprite, roi)
				done <- err
			}()

			select {
			case err := <-done:
				assert.ErrorIs(t, err, ErrNoPlacement)
			case <-time.After(10 * time.Second):
				t.Fatal("placement search did not terminate")
			}
		})
	}
}

func TestComposer_ShrinksUntilSpriteFits(t *testing.T) {
	bg := solid(100, 100, color.White)
	sprite := solid(100, 100, color.Black)
	roi := geometry.Rect{X: 10, Y: 10, W: 50, H: 50}

	c := fixedComposer()
	c.MinScale = 0.4
	c.MaxScale = 0.6
	c.Mode = placement.ModeInside

	for seed := uint64(0); seed < 20; seed++ {
		res, err := c.Place(context.Background(), newRNG(seed), bg, sprite, roi)
		require.NoError(t, err)
		assert.True(t, roi.Contains(res.Rect), "rect %v outside roi", res.Rect)
		assert.GreaterOrEqual(t, res.Scale, c.MinScale)
	}
}

func TestComposer_InfeasibleScale(t *testing.T) {
	c := fixedComposer()
	c.MinScale = 0.5
	c.MaxScale = 1.0
	c.ClampToBackground = true

	_, err := c.Place(context.Background(), newRNG(1), solid(100, 100, color.White), solid(400, 400, color.Black), geometry.Rect{})
	assert.ErrorIs(t, err, ErrInfeasibleScale)
}

func TestComposer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fixedComposer().Place(ctx, newRNG(1), solid(100, 100, color.White), solid(10, 10, color.Black), geometry.Rect{})
	assert.ErrorIs(t, err, ErrNoPlacement)
}

func TestComposer_CenterMode(t *testing.T) {
	c := fixedComposer()
	c.Center = true
	c.Rotate = true

	res, err := c.Place(context.Background(), newRNG(1), solid(100, 100, color.White), solid(20, 20, color.Black), geometry.Rect{})
	require.NoError(t, err)

	assert.Equal(t, geometry.Rect{X: 40, Y: 40, W: 20, H: 20}, res.Rect)
	assert.Equal(t, geometry.Rect{X: 40, Y: 40, W: 20, H: 20}, res.Object)
	assert.Zero(t, res.Angle)
	assert.Equal(t, color.NRGBA{0, 0, 0, 255}, res.Image.NRGBAAt(50, 50))
	assert.Equal(t, color.NRGBA{255, 255, 255, 255}, res.Image.NRGBAAt(10, 10))

	box := res.Label(3)
	assert.Equal(t, 3, box.Class)
	assert.InDelta(t, 0.5, box.CX, 1e-9)
	assert.InDelta(t, 0.2, box.W, 1e-9)
}

func TestComposer_ROICycledFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ROIs = []geometry.Rect{{X: 0, Y: 0, W: 10, H: 10}, {X: 5, Y: 5, W: 10, H: 10}}

	assert.Equal(t, cfg.ROIs[0], cfg.ROIFor(0))
	assert.Equal(t, cfg.ROIs[1], cfg.ROIFor(1))
	assert.Equal(t, cfg.ROIs[0], cfg.ROIFor(4))

	cfg.ROIs = nil
	assert.Equal(t, geometry.Rect{}, cfg.ROIFor(3))
}

func TestOpaqueBounds(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 30, 20))
	img.SetNRGBA(5, 4, color.NRGBA{0, 0, 0, 255})
	img.SetNRGBA(12, 9, color.NRGBA{0, 0, 0, 10})

	assert.Equal(t, image.Rect(5, 4, 13, 10), opaqueBounds(img))
	assert.Equal(t, image.Rectangle{}, opaqueBounds(image.NewNRGBA(image.Rect(0, 0, 5, 5))))
}

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()
	valid.BackgroundsDir = "bg"
	valid.ForegroundsDir = "fg"
	valid.OutputDir = "out"
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing backgrounds", func(c *Config) { c.BackgroundsDir = "" }},
		{"missing output", func(c *Config) { c.OutputDir = "" }},
		{"inverted scale", func(c *Config) { c.MinScale, c.MaxScale = 2, 1 }},
		{"zero scale", func(c *Config) { c.MinScale = 0 }},
		{"visibility above one", func(c *Config) { c.MinVisible = 1.5 }},
		{"no augments", func(c *Config) { c.NumAugments = 0 }},
		{"shrink factor one", func(c *Config) { c.ShrinkFactor = 1 }},
		{"no workers", func(c *Config) { c.Workers = 0 }},
		{"empty roi", func(c *Config) { c.ROIs = []geometry.Rect{{X: 1, Y: 1}} }},
		{"bad format", func(c *Config) { c.Format = "tiff" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestOutputName(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 123_000_000, time.UTC)
	name := OutputName("/bg/street.jpg", "/fg/7/seven.png", now, 2, imaging.FormatJPEG)

	assert.Regexp(t, regexp.MustCompile(`^street_seven_20260102_030405\.123_[0-9a-f]{8}_aug2\.jpg$`), name)
	assert.NotEqual(t, name, OutputName("/bg/street.jpg", "/fg/7/seven.png", now, 2, imaging.FormatJPEG))
}

func TestOutputKeyAndClass(t *testing.T) {
	root := filepath.Join("data", "fg")

	assert.Equal(t, "7/x.jpg", outputKey(root, filepath.Join(root, "7", "a.png"), "x.jpg"))
	assert.Equal(t, "x.jpg", outputKey(root, filepath.Join(root, "a.png"), "x.jpg"))
	assert.Equal(t, "7/x.txt", labelKey("7/x.jpg"))

	assert.Equal(t, 7, classFor(filepath.Join(root, "7", "a.png"), true, 0))
	assert.Equal(t, 2, classFor(filepath.Join(root, "seven", "a.png"), true, 2))
	assert.Equal(t, 2, classFor(filepath.Join(root, "7", "a.png"), false, 2))
}

// batchFixture lays out two backgrounds and two sprites in class folders.
func batchFixture(t *testing.T) Config {
	t.Helper()
	root := t.TempDir()

	writePNG(t, filepath.Join(root, "bg", "a.png"), solid(200, 160, color.NRGBA{0, 128, 0, 255}))
	writePNG(t, filepath.Join(root, "bg", "b.png"), solid(180, 200, color.NRGBA{0, 0, 128, 255}))
	writePNG(t, filepath.Join(root, "fg", "3", "three.png"), solid(30, 30, color.NRGBA{255, 0, 0, 255}))
	writePNG(t, filepath.Join(root, "fg", "7", "seven.png"), solid(20, 40, color.NRGBA{255, 255, 0, 255}))

	cfg := DefaultConfig()
	cfg.BackgroundsDir = filepath.Join(root, "bg")
	cfg.ForegroundsDir = filepath.Join(root, "fg")
	cfg.OutputDir = filepath.Join(root, "out")
	cfg.NumAugments = 2
	cfg.MinVisible = 1
	cfg.Mode = placement.ModeInside
	cfg.Workers = 3
	cfg.Seed = 42
	return cfg
}

func countFiles(t *testing.T, dir, ext string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ext {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func TestBatch_Run(t *testing.T) {
	cfg := batchFixture(t)
	cfg.EmitLabels = true
	cfg.ClassFromDir = true

	b, err := NewBatch(cfg, storage.NewLocalSink(cfg.OutputDir))
	require.NoError(t, err)

	summary, err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, summary.Generated)
	assert.Zero(t, summary.Skipped)
	assert.Zero(t, summary.Failed)

	assert.Equal(t, 4, countFiles(t, filepath.Join(cfg.OutputDir, "3"), ".jpg"))
	assert.Equal(t, 4, countFiles(t, filepath.Join(cfg.OutputDir, "7"), ".jpg"))
	assert.Equal(t, 8, countFiles(t, cfg.OutputDir, ".txt"))

	labelFiles, err := filepath.Glob(filepath.Join(cfg.OutputDir, "7", "*.txt"))
	require.NoError(t, err)
	require.NotEmpty(t, labelFiles)
	for _, path := range labelFiles {
		boxes, err := labels.Read(path)
		require.NoError(t, err)
		for _, box := range boxes {
			assert.Equal(t, 7, box.Class)
			assert.True(t, box.Valid())
		}
	}
}

func TestBatch_RunEvictsFinishedBackgrounds(t *testing.T) {
	root := t.TempDir()
	for i := range 60 {
		writePNG(t, filepath.Join(root, "bg", fmt.Sprintf("bg%02d.png", i)), solid(64, 64, color.NRGBA{0, 128, 0, 255}))
	}
	writePNG(t, filepath.Join(root, "fg", "s.png"), solid(16, 16, color.NRGBA{255, 0, 0, 255}))

	cfg := DefaultConfig()
	cfg.BackgroundsDir = filepath.Join(root, "bg")
	cfg.ForegroundsDir = filepath.Join(root, "fg")
	cfg.OutputDir = filepath.Join(root, "out")
	cfg.NumAugments = 1
	cfg.Augment = false
	cfg.MinVisible = 1
	cfg.Mode = placement.ModeInside
	cfg.Workers = 8
	cfg.Seed = 9

	b, err := NewBatch(cfg, storage.NewLocalSink(cfg.OutputDir))
	require.NoError(t, err)

	summary, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 60, summary.Generated)
	assert.Equal(t, 1, b.cache.Len(), "only the sprite should stay cached")
}

func TestBatch_RunPNGWithoutAugmentation(t *testing.T) {
	cfg := batchFixture(t)
	cfg.Augment = false
	cfg.RotationEnabled = false
	cfg.NumAugments = 1
	cfg.Format = imaging.FormatPNG

	b, err := NewBatch(cfg, storage.NewLocalSink(cfg.OutputDir))
	require.NoError(t, err)

	summary, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Generated)
	assert.Equal(t, 4, countFiles(t, cfg.OutputDir, ".png"))
	assert.Zero(t, countFiles(t, cfg.OutputDir, ".txt"))
}

func TestBatch_SkipsAndFailuresContinue(t *testing.T) {
	cfg := batchFixture(t)
	cfg.NumAugments = 1
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ForegroundsDir, "3", "broken.png"), []byte("not a png"), 0644))
	writePNG(t, filepath.Join(cfg.ForegroundsDir, "huge.png"), solid(300, 300, color.Black))
	cfg.MinScale, cfg.MaxScale = 1, 1

	b, err := NewBatch(cfg, storage.NewLocalSink(cfg.OutputDir))
	require.NoError(t, err)

	summary, err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Generated)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 2, summary.Failed)
}

func TestBatch_EmptyInputsFailFast(t *testing.T) {
	cfg := batchFixture(t)
	empty := t.TempDir()

	for _, mutate := range []func(*Config){
		func(c *Config) { c.BackgroundsDir = empty },
		func(c *Config) { c.ForegroundsDir = empty },
	} {
		c := cfg
		mutate(&c)

		b, err := NewBatch(c, storage.NewLocalSink(c.OutputDir))
		require.NoError(t, err)

		_, err = b.Run(context.Background())
		assert.ErrorIs(t, err, ErrNoImages)
		assert.NoDirExists(t, c.OutputDir)
	}

	cfg.BackgroundsDir = filepath.Join(empty, "missing")
	b, err := NewBatch(cfg, storage.NewLocalSink(cfg.OutputDir))
	require.NoError(t, err)
	_, err = b.Run(context.Background())
	assert.Error(t, err)
}

func TestBatch_InvalidConfig(t *testing.T) {
	cfg := batchFixture(t)
	cfg.MinVisible = 0
	_, err := NewBatch(cfg, storage.NewLocalSink(cfg.OutputDir))
	assert.Error(t, err)
}

func TestBatch_Cancelled(t *testing.T) {
	cfg := batchFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b, err := NewBatch(cfg, storage.NewLocalSink(cfg.OutputDir))
	require.NoError(t, err)

	summary, err := b.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Zero(t, summary.Generated)
}

func TestBatch_RandomSeedIsRecorded(t *testing.T) {
	cfg := batchFixture(t)
	cfg.Seed = 0

	b, err := NewBatch(cfg, storage.NewLocalSink(cfg.OutputDir))
	require.NoError(t, err)
	assert.NotZero(t, b.Seed())
}

func TestWatcher_CompositesNewSprites(t *testing.T) {
	cfg := batchFixture(t)
	cfg.NumAugments = 1
	cfg.Augment = false

	w, err := NewWatcher(cfg, storage.NewLocalSink(cfg.OutputDir))
	require.NoError(t, err)
	w.settle = 50 * time.Millisecond

	processed := make(chan string, 4)
	w.processed = func(path string) { processed <- path }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan *Summary, 1)
	go func() { done <- w.Run(ctx) }()

	newDir := filepath.Join(cfg.ForegroundsDir, "5")
	require.NoError(t, os.MkdirAll(newDir, 0755))
	// Give the watcher a moment to register the new directory.
	time.Sleep(200 * time.Millisecond)
	writePNG(t, filepath.Join(newDir, "five.png"), solid(25, 25, color.Black))

	select {
	case path := <-processed:
		assert.Equal(t, "five.png", filepath.Base(path))
	case <-time.After(10 * time.Second):
		t.Fatal("sprite was not processed")
	}

	cancel()
	summary := <-done
	assert.Equal(t, 2, summary.Generated)
	assert.Equal(t, 2, countFiles(t, filepath.Join(cfg.OutputDir, "5"), ".jpg"))
}

func TestWatcher_KeepsDrainingEventsWhileCompositing(t *testing.T) {
	cfg := batchFixture(t)
	cfg.NumAugments = 1
	cfg.Augment = false

	w, err := NewWatcher(cfg, storage.NewLocalSink(cfg.OutputDir))
	require.NoError(t, err)
	w.settle = 50 * time.Millisecond

	queued := make(chan string, 4)
	w.queued = func(path string) { queued <- filepath.Base(path) }
	release := make(chan struct{})
	processed := make(chan string, 4)
	w.processed = func(path string) {
		if filepath.Base(path) == "first.png" {
			<-release
		}
		processed <- filepath.Base(path)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan *Summary, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor := func(ch chan string, want string) {
		t.Helper()
		select {
		case got := <-ch:
			assert.Equal(t, want, got)
		case <-time.After(10 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	writePNG(t, filepath.Join(cfg.ForegroundsDir, "3", "first.png"), solid(25, 25, color.Black))
	waitFor(queued, "first.png")

	// first.png is held in its processed hook; the loop must still pick up
	// the next sprite.
	writePNG(t, filepath.Join(cfg.ForegroundsDir, "3", "second.png"), solid(25, 25, color.White))
	waitFor(queued, "second.png")

	close(release)
	waitFor(processed, "first.png")
	waitFor(processed, "second.png")

	cancel()
	summary := <-done
	assert.Equal(t, 4, summary.Generated)
}

func TestWatch_MissingForegrounds(t *testing.T) {
	cfg := batchFixture(t)
	cfg.ForegroundsDir = filepath.Join(t.TempDir(), "missing")

	_, err := Watch(context.Background(), cfg, storage.NewLocalSink(cfg.OutputDir))
	assert.Error(t, err)
}
