package glyph

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	synthimg "github.com/ironsheep/dataset-synth/internal/imaging"
)

// MaxSpacing bounds the random gap between the two digits; negative values
// overlap them.
const MaxSpacing = 5

// PairsSummary counts the outcome of GeneratePairs.
type PairsSummary struct {
	Generated int            `json:"generated"`
	Failed    int            `json:"failed"`
	PerNumber map[string]int `json:"per_number,omitempty"`
}

// ScanDigitDirs lists the images in parent/0 .. parent/9. A missing or empty
// digit folder is an error, since every two-digit number must be buildable.
func ScanDigitDirs(parent string) ([10][]string, error) {
	var digits [10][]string
	for d := 0; d <= 9; d++ {
		dir := filepath.Join(parent, strconv.Itoa(d))
		paths, err := synthimg.ListImages(dir)
		if err != nil {
			return digits, fmt.Errorf("digit folder %d: %w", d, err)
		}
		if len(paths) == 0 {
			return digits, fmt.Errorf("digit folder %d has no images: %s", d, dir)
		}
		digits[d] = paths
	}
	return digits, nil
}

// ComposePair places tens and ones side by side on a white canvas after
// resizing both to the taller height, separated by spacing pixels.
func ComposePair(tens, ones image.Image, spacing int) *image.NRGBA {
	height := max(tens.Bounds().Dy(), ones.Bounds().Dy())
	left := imaging.Resize(tens, 0, height, imaging.Lanczos)
	right := imaging.Resize(ones, 0, height, imaging.Lanczos)

	width := max(1, left.Bounds().Dx()+right.Bounds().Dx()+spacing)
	out := imaging.New(width, height, color.White)
	out = imaging.Paste(out, left, image.Pt(0, 0))
	out = imaging.Paste(out, right, image.Pt(left.Bounds().Dx()+spacing, 0))
	return out
}

// GeneratePairs writes n random two-digit images built from the digit
// folders under parent to out/{NN}/{NN}_{k}.jpg, where k continues after the
// files already in that folder. Unreadable digit images are logged and
// counted; the run continues.
func GeneratePairs(ctx context.Context, parent, out string, n int, seed uint64) (*PairsSummary, error) {
	if n < 1 {
		return nil, fmt.Errorf("count must be positive, got %d", n)
	}
	digits, err := ScanDigitDirs(parent)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(out, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	rng := rand.New(rand.NewPCG(seed, 99))
	cache := synthimg.NewImageCache()
	summary := &PairsSummary{PerNumber: map[string]int{}}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		tens, ones := rng.IntN(10), rng.IntN(10)
		number := fmt.Sprintf("%d%d", tens, ones)
		tensPath := digits[tens][rng.IntN(len(digits[tens]))]
		onesPath := digits[ones][rng.IntN(len(digits[ones]))]
		spacing := rng.IntN(2*MaxSpacing+1) - MaxSpacing

		path, err := writePair(cache, out, number, tensPath, onesPath, spacing)
		if err != nil {
			log.Printf("Error generating %s: %v", number, err)
			summary.Failed++
			continue
		}
		log.Printf("Generated %s", path)
		summary.Generated++
		summary.PerNumber[number]++
	}
	return summary, nil
}

func writePair(cache *synthimg.ImageCache, out, number, tensPath, onesPath string, spacing int) (string, error) {
	tens, err := cache.Load(tensPath)
	if err != nil {
		return "", err
	}
	ones, err := cache.Load(onesPath)
	if err != nil {
		return "", err
	}

	data, err := synthimg.Encode(ComposePair(tens, ones, spacing), synthimg.FormatJPEG, synthimg.DefaultJPEGQuality)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(out, number)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	k, err := nextIndex(dir, number)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%d.jpg", number, k))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// nextIndex returns one more than the highest k among dir's "{number}_{k}.jpg"
// files.
func nextIndex(dir, number string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	highest := 0
	prefix := number + "_"
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || filepath.Ext(name) != ".jpg" {
			continue
		}
		k, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".jpg"))
		if err == nil && k > highest {
			highest = k
		}
	}
	return highest + 1, nil
}
