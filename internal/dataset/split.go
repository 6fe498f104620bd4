// Package dataset organizes labeled YOLO datasets: splitting them into
// train and validation subsets and writing augmented copies of a split.
//
// A dataset root holds images/ and labels/ folders; an image X.jpg is
// labeled by labels/X.txt.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoSamples is returned when no image has a matching label file.
var ErrNoSamples = errors.New("no labeled samples found")

// splitExtensions are the image types considered by Split.
var splitExtensions = []string{".png", ".jpg", ".jpeg"}

// Sample is an image and its label file.
type Sample struct {
	Name  string `json:"name"`
	Image string `json:"image"`
	Label string `json:"label"`
}

// SplitResult describes a completed split.
type SplitResult struct {
	Train      []Sample `json:"-"`
	Val        []Sample `json:"-"`
	TrainCount int      `json:"train_count"`
	ValCount   int      `json:"val_count"`
	Missing    []string `json:"missing_labels,omitempty"`
	TrainIndex string   `json:"train_index"`
	ValIndex   string   `json:"val_index"`
}

// Pairs returns the labeled samples under root, sorted by name, and the
// names of images without a label file.
func Pairs(root string) ([]Sample, []string, error) {
	imgDir := filepath.Join(root, "images")
	labelDir := filepath.Join(root, "labels")
	for _, dir := range []string{imgDir, labelDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return nil, nil, fmt.Errorf("directory does not exist: %s", dir)
		}
	}

	entries, err := os.ReadDir(imgDir)
	if err != nil {
		return nil, nil, err
	}

	// One image per base name, preferring extensions in splitExtensions order.
	images := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !hasSplitExtension(e.Name()) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		keep, dup := images[name]
		if !dup {
			images[name] = e.Name()
			continue
		}
		drop := e.Name()
		if extRank(drop) < extRank(keep) {
			keep, drop = drop, keep
		}
		images[name] = keep
		log.Printf("Warning: %s and %s share label %s.txt; ignoring %s", keep, drop, name, drop)
	}

	var samples []Sample
	var missing []string
	for name, file := range images {
		label := filepath.Join(labelDir, name+".txt")
		if _, err := os.Stat(label); err != nil {
			log.Printf("Warning: missing label file %s.txt", name)
			missing = append(missing, name)
			continue
		}
		samples = append(samples, Sample{Name: name, Image: filepath.Join(imgDir, file), Label: label})
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].Name < samples[j].Name })
	sort.Strings(missing)
	return samples, missing, nil
}

func hasSplitExtension(name string) bool {
	return extRank(name) < len(splitExtensions)
}

// extRank is the position of name's extension in splitExtensions, or
// len(splitExtensions) when it is not listed.
func extRank(name string) int {
	ext := strings.ToLower(filepath.Ext(name))
	for i, e := range splitExtensions {
		if ext == e {
			return i
		}
	}
	return len(splitExtensions)
}

// TrainCount returns how many of n samples go to the training set.
func TrainCount(n int, ratio float64) int {
	return int(math.Round(float64(n) * ratio))
}

// Split shuffles the labeled samples under root with seed and assigns
// round(n*ratio) of them to train, the rest to val. It always writes
// root/train.txt and root/val.txt. With copyFiles the samples are also
// copied to root/{train,val}/{images,labels} and the index files list the
// copies; otherwise they list the original image paths.
func Split(root string, ratio float64, copyFiles bool, seed uint64) (*SplitResult, error) {
	if ratio <= 0 || ratio >= 1 {
		return nil, fmt.Errorf("train ratio must be in (0, 1), got %g", ratio)
	}

	samples, missing, err := Pairs(root)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSamples, root)
	}

	rng := rand.New(rand.NewPCG(seed, 0))
	rng.Shuffle(len(samples), func(i, j int) { samples[i], samples[j] = samples[j], samples[i] })

	nTrain := TrainCount(len(samples), ratio)
	res := &SplitResult{
		Train:      samples[:nTrain],
		Val:        samples[nTrain:],
		Missing:    missing,
		TrainIndex: filepath.Join(root, "train.txt"),
		ValIndex:   filepath.Join(root, "val.txt"),
	}
	res.TrainCount, res.ValCount = len(res.Train), len(res.Val)

	for _, part := range []struct {
		name    string
		samples []Sample
		index   string
	}{
		{"train", res.Train, res.TrainIndex},
		{"val", res.Val, res.ValIndex},
	} {
		lines := make([]string, 0, len(part.samples))
		for _, s := range part.samples {
			path := s.Image
			if copyFiles {
				if path, err = copySample(root, part.name, s); err != nil {
					return nil, err
				}
			}
			lines = append(lines, path)
		}
		if err := writeIndex(part.index, lines); err != nil {
			return nil, err
		}
	}

	log.Printf("Split %d samples: %d train, %d val", len(samples), res.TrainCount, res.ValCount)
	return res, nil
}

func copySample(root, part string, s Sample) (string, error) {
	imgDst := filepath.Join(root, part, "images", filepath.Base(s.Image))
	labelDst := filepath.Join(root, part, "labels", s.Name+".txt")
	if err := copyFile(s.Image, imgDst); err != nil {
		return "", err
	}
	if err := copyFile(s.Label, labelDst); err != nil {
		return "", err
	}
	return imgDst, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

func writeIndex(path string, lines []string) error {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write index %s: %w", path, err)
	}
	return nil
}
