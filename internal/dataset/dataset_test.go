package dataset

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/dataset-synth/internal/augment"
	"github.com/ironsheep/dataset-synth/internal/labels"
	"github.com/ironsheep/dataset-synth/internal/storage"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// labeledRoot creates n labeled 8x8 samples plus the given unlabeled ones.
func labeledRoot(t *testing.T, n int, unlabeled ...string) string {
	t.Helper()
	root := t.TempDir()
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("img_%03d", i)
		writePNG(t, filepath.Join(root, "images", name+".png"), 8, 8)
		require.NoError(t, labels.Write(filepath.Join(root, "labels", name+".txt"),
			[]labels.Box{{Class: i % 10, CX: 0.5, CY: 0.5, W: 0.25, H: 0.25}}))
	}
	for _, name := range unlabeled {
		writePNG(t, filepath.Join(root, "images", name+".png"), 8, 8)
	}
	return root
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		lines = append(lines, s.Text())
	}
	require.NoError(t, s.Err())
	return lines
}

func TestTrainCount(t *testing.T) {
	assert.Equal(t, 80, TrainCount(100, 0.8))
	assert.Equal(t, 8, TrainCount(10, 0.8))
	assert.Equal(t, 2, TrainCount(3, 0.8))
	assert.Equal(t, 0, TrainCount(0, 0.8))
}

func TestSplit_EightyTwenty(t *testing.T) {
	root := labeledRoot(t, 100)

	res, err := Split(root, 0.8, false, 42)
	require.NoError(t, err)
	assert.Equal(t, 80, res.TrainCount)
	assert.Equal(t, 20, res.ValCount)

	train := readLines(t, res.TrainIndex)
	val := readLines(t, res.ValIndex)
	require.Len(t, train, 80)
	require.Len(t, val, 20)

	seen := map[string]bool{}
	for _, l := range append(append([]string{}, train...), val...) {
		assert.False(t, seen[l], "duplicate %s", l)
		seen[l] = true
		assert.FileExists(t, l)
	}
	assert.Len(t, seen, 100)
	assert.NoDirExists(t, filepath.Join(root, "train"))
}

func TestPairs_OneImagePerLabel(t *testing.T) {
	root := labeledRoot(t, 4)
	writePNG(t, filepath.Join(root, "images", "img_001.jpg"), 8, 8)
	writePNG(t, filepath.Join(root, "images", "img_002.jpeg"), 8, 8)

	samples, missing, err := Pairs(root)
	require.NoError(t, err)
	assert.Empty(t, missing)
	require.Len(t, samples, 4)
	for _, s := range samples {
		assert.Equal(t, ".png", filepath.Ext(s.Image), "png wins for %s", s.Name)
	}

	res, err := Split(root, 0.5, false, 3)
	require.NoError(t, err)
	seen := make(map[string]bool)
	for _, s := range append(res.Train, res.Val...) {
		assert.False(t, seen[s.Name], "%s is in both splits", s.Name)
		seen[s.Name] = true
	}
}

func TestPairs_PrefersJPGOverJPEG(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "images", "x.jpeg"), 8, 8)
	writePNG(t, filepath.Join(root, "images", "x.jpg"), 8, 8)
	require.NoError(t, labels.Write(filepath.Join(root, "labels", "x.txt"), nil))

	samples, _, err := Pairs(root)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "x.jpg", filepath.Base(samples[0].Image))
}

func TestSplit_CopyFiles(t *testing.T) {
	root := labeledRoot(t, 10, "orphan")

	res, err := Split(root, 0.8, true, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"orphan"}, res.Missing)
	assert.Equal(t, 8, res.TrainCount)
	assert.Equal(t, 2, res.ValCount)

	for _, part := range []struct {
		name  string
		index string
		n     int
	}{
		{"train", res.TrainIndex, 8},
		{"val", res.ValIndex, 2},
	} {
		lines := readLines(t, part.index)
		require.Len(t, lines, part.n)
		for _, l := range lines {
			assert.Equal(t, filepath.Join(root, part.name, "images"), filepath.Dir(l))
			assert.FileExists(t, l)
			base := filepath.Base(l)
			assert.FileExists(t, filepath.Join(root, part.name, "labels", base[:len(base)-len(filepath.Ext(base))]+".txt"))
		}
	}
}

func TestSplit_Reproducible(t *testing.T) {
	root := labeledRoot(t, 20)

	a, err := Split(root, 0.5, false, 7)
	require.NoError(t, err)
	first := readLines(t, a.TrainIndex)

	b, err := Split(root, 0.5, false, 7)
	require.NoError(t, err)
	assert.Equal(t, first, readLines(t, b.TrainIndex))
}

func TestSplit_Errors(t *testing.T) {
	_, err := Split(labeledRoot(t, 5), 1.0, false, 1)
	assert.Error(t, err)

	_, err = Split(t.TempDir(), 0.8, false, 1)
	assert.ErrorContains(t, err, "does not exist")

	root := labeledRoot(t, 0, "a", "b")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "labels"), 0755))
	_, err = Split(root, 0.8, false, 1)
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestAugmentedName(t *testing.T) {
	assert.Equal(t, "x", AugmentedName("x", 0))
	assert.Equal(t, "x_aug3", AugmentedName("x", 3))
}

// identity keeps the image and boxes unchanged.
type identity struct{}

func (identity) Augment(rng *rand.Rand, img image.Image, boxes []labels.Box) (image.Image, []labels.Box) {
	return img, boxes
}

func augmentRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "images", "train", "a.png"), 64, 48)
	writePNG(t, filepath.Join(root, "images", "train", "b.png"), 64, 48)
	require.NoError(t, labels.Write(filepath.Join(root, "labels", "train", "a.txt"),
		[]labels.Box{{Class: 4, CX: 0.5, CY: 0.5, W: 0.3, H: 0.4}}))
	return root
}

func TestAugmentSplit(t *testing.T) {
	root := augmentRoot(t)
	out := t.TempDir()

	summary, err := AugmentSplit(context.Background(), AugmentConfig{
		Root:     root,
		Split:    "train",
		Copies:   2,
		Pipeline: identity{},
		Workers:  2,
	}, storage.NewLocalSink(out))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Images)
	assert.Equal(t, 6, summary.Written)
	assert.Zero(t, summary.Failed)

	for _, name := range []string{"a", "a_aug1", "a_aug2", "b", "b_aug1", "b_aug2"} {
		assert.FileExists(t, filepath.Join(out, "images", "train", name+".jpg"))
		assert.FileExists(t, filepath.Join(out, "labels", "train", name+".txt"))
	}

	boxes, err := labels.Read(filepath.Join(out, "labels", "train", "a_aug2.txt"))
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, 4, boxes[0].Class)

	data, err := os.ReadFile(filepath.Join(out, "labels", "train", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "4 0.500000 0.500000 0.300000 0.400000\n", string(data))

	empty, err := labels.Read(filepath.Join(out, "labels", "train", "b.txt"))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAugmentSplit_DefaultPipeline(t *testing.T) {
	root := augmentRoot(t)
	out := t.TempDir()

	summary, err := AugmentSplit(context.Background(), AugmentConfig{
		Root:   root,
		Split:  "train",
		Copies: 3,
		Seed:   11,
	}, storage.NewLocalSink(out))
	require.NoError(t, err)
	assert.Equal(t, 8, summary.Written)

	for k := 0; k <= 3; k++ {
		boxes, err := labels.Read(filepath.Join(out, "labels", "train", AugmentedName("a", k)+".txt"))
		require.NoError(t, err)
		assert.LessOrEqual(t, len(boxes), 1)
		for _, b := range boxes {
			assert.True(t, b.Valid())
		}
	}
}

func TestAugmentSplit_BadImageCounted(t *testing.T) {
	root := augmentRoot(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "images", "train", "broken.png"), []byte("x"), 0644))

	summary, err := AugmentSplit(context.Background(), AugmentConfig{
		Root:     root,
		Split:    "train",
		Copies:   1,
		Pipeline: identity{},
	}, storage.NewLocalSink(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 4, summary.Written)
}

func TestAugmentSplit_Errors(t *testing.T) {
	sink := storage.NewLocalSink(t.TempDir())

	_, err := AugmentSplit(context.Background(), AugmentConfig{Root: t.TempDir(), Split: "train"}, sink)
	assert.Error(t, err)

	_, err = AugmentSplit(context.Background(), AugmentConfig{Root: augmentRoot(t)}, sink)
	assert.Error(t, err)

	_, err = AugmentSplit(context.Background(), AugmentConfig{Root: augmentRoot(t), Split: "train", Copies: -1}, sink)
	assert.Error(t, err)
}

// Compile-time check that the detection pipeline satisfies the interface
// AugmentConfig expects.
var _ augment.Augmenter = augment.DefaultDetectionPipeline()
