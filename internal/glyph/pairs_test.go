package glyph

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDigit(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for y := h / 4; y < 3*h/4; y++ {
		img.SetNRGBA(w/2, y, color.NRGBA{0, 0, 0, 255})
	}

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func digitTree(t *testing.T) string {
	t.Helper()
	parent := t.TempDir()
	for d := 0; d <= 9; d++ {
		writeDigit(t, filepath.Join(parent, strconv.Itoa(d), "a.png"), 20, 30)
		writeDigit(t, filepath.Join(parent, strconv.Itoa(d), "b.png"), 10, 15)
	}
	return parent
}

func TestScanDigitDirs(t *testing.T) {
	parent := digitTree(t)
	digits, err := ScanDigitDirs(parent)
	require.NoError(t, err)
	for d := 0; d <= 9; d++ {
		assert.Len(t, digits[d], 2)
	}

	require.NoError(t, os.RemoveAll(filepath.Join(parent, "4")))
	_, err = ScanDigitDirs(parent)
	assert.ErrorContains(t, err, "digit folder 4")

	require.NoError(t, os.MkdirAll(filepath.Join(parent, "4"), 0755))
	_, err = ScanDigitDirs(parent)
	assert.ErrorContains(t, err, "no images")
}

func TestComposePair(t *testing.T) {
	tens := image.NewNRGBA(image.Rect(0, 0, 20, 30))
	ones := image.NewNRGBA(image.Rect(0, 0, 10, 15))

	tests := []struct {
		spacing   int
		wantWidth int
	}{
		{0, 40},
		{5, 45},
		{-5, 35},
	}
	for _, tt := range tests {
		out := ComposePair(tens, ones, tt.spacing)
		assert.Equal(t, tt.wantWidth, out.Bounds().Dx(), "spacing %d", tt.spacing)
		assert.Equal(t, 30, out.Bounds().Dy())
	}
}

func TestGeneratePairs(t *testing.T) {
	parent := digitTree(t)
	out := t.TempDir()

	summary, err := GeneratePairs(context.Background(), parent, out, 30, 5)
	require.NoError(t, err)
	assert.Equal(t, 30, summary.Generated)
	assert.Zero(t, summary.Failed)

	total := 0
	for number, n := range summary.PerNumber {
		for k := 1; k <= n; k++ {
			assert.FileExists(t, filepath.Join(out, number, number+"_"+strconv.Itoa(k)+".jpg"))
		}
		total += n
	}
	assert.Equal(t, 30, total)
}

func TestGeneratePairs_ContinuesNumbering(t *testing.T) {
	parent := digitTree(t)
	out := t.TempDir()

	first, err := GeneratePairs(context.Background(), parent, out, 40, 1)
	require.NoError(t, err)
	second, err := GeneratePairs(context.Background(), parent, out, 40, 1)
	require.NoError(t, err)

	for number, n := range first.PerNumber {
		assert.FileExists(t, filepath.Join(out, number, number+"_"+strconv.Itoa(n+second.PerNumber[number])+".jpg"))
	}
}

func TestGeneratePairs_Errors(t *testing.T) {
	_, err := GeneratePairs(context.Background(), digitTree(t), t.TempDir(), 0, 1)
	assert.Error(t, err)

	_, err = GeneratePairs(context.Background(), t.TempDir(), t.TempDir(), 5, 1)
	assert.Error(t, err)
}

func TestNextIndex(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"42_1.jpg", "42_7.jpg", "42_x.jpg", "43_9.jpg", "42_8.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	k, err := nextIndex(dir, "42")
	require.NoError(t, err)
	assert.Equal(t, 8, k)
}
