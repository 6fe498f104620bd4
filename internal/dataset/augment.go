package dataset

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/ironsheep/dataset-synth/internal/augment"
	"github.com/ironsheep/dataset-synth/internal/imaging"
	"github.com/ironsheep/dataset-synth/internal/labels"
	"github.com/ironsheep/dataset-synth/internal/storage"
)

// AugmentConfig configures AugmentSplit.
type AugmentConfig struct {
	// Root holds images/<Split> and labels/<Split>.
	Root  string
	Split string

	// Copies is the number of augmented copies written per image in
	// addition to copy 0.
	Copies int

	// Pipeline defaults to augment.DefaultDetectionPipeline.
	Pipeline augment.Augmenter

	Workers int
	Seed    uint64
}

// AugmentSummary counts the outcome of AugmentSplit.
type AugmentSummary struct {
	Images       int `json:"images"`
	Written      int `json:"written"`
	Failed       int `json:"failed"`
	BoxesDropped int `json:"boxes_dropped"`
}

// AugmentSplit writes, for every image in Root/images/<Split>, copy 0
// ("{base}.jpg", pipeline applied once) and Copies augmented copies
// ("{base}_aug{k}.jpg"), each with its label file, to
// images/<Split>/ and labels/<Split>/ in sink. Images without a label file
// are augmented with no boxes. Unreadable images are logged and counted.
func AugmentSplit(ctx context.Context, cfg AugmentConfig, sink storage.Sink) (*AugmentSummary, error) {
	if cfg.Split == "" {
		return nil, fmt.Errorf("split name is required")
	}
	if cfg.Copies < 0 {
		return nil, fmt.Errorf("copies must not be negative, got %d", cfg.Copies)
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = augment.DefaultDetectionPipeline()
	}
	if p, ok := cfg.Pipeline.(*augment.Pipeline); ok {
		log.Printf("Augmenting %s with stages %v", cfg.Split, p.StageNames())
	}
	workers := max(1, cfg.Workers)

	imgDir := filepath.Join(cfg.Root, "images", cfg.Split)
	labelDir := filepath.Join(cfg.Root, "labels", cfg.Split)
	paths, err := imaging.ListImages(imgDir)
	if err != nil {
		return nil, err
	}

	var written, failed, dropped atomic.Int64
	jobs := make(chan int)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				n, d, err := augmentImage(ctx, cfg, sink, paths[i], labelDir, uint64(i))
				written.Add(int64(n))
				dropped.Add(int64(d))
				if err != nil {
					failed.Add(1)
					log.Printf("Error processing %s: %v", paths[i], err)
				}
			}
		}()
	}

feed:
	for i := range paths {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	summary := &AugmentSummary{
		Images:       len(paths),
		Written:      int(written.Load()),
		Failed:       int(failed.Load()),
		BoxesDropped: int(dropped.Load()),
	}
	log.Printf("Augmented %s: %d images, %d written, %d failed", cfg.Split, summary.Images, summary.Written, summary.Failed)
	return summary, ctx.Err()
}

// augmentImage writes all copies of one image and returns how many were
// written and how many boxes the pipeline dropped.
func augmentImage(ctx context.Context, cfg AugmentConfig, sink storage.Sink, imgPath, labelDir string, index uint64) (int, int, error) {
	img, err := imaging.Open(imgPath)
	if err != nil {
		return 0, 0, err
	}
	boxes, err := labels.Read(labels.PathFor(labelDir, imgPath))
	if err != nil {
		return 0, 0, err
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, index))
	base := imaging.BaseName(imgPath)
	written, dropped := 0, 0

	for k := 0; k <= cfg.Copies; k++ {
		if err := ctx.Err(); err != nil {
			return written, dropped, err
		}

		out, kept := cfg.Pipeline.Augment(rng, img, boxes)
		dropped += len(boxes) - len(kept)

		data, err := imaging.Encode(out, imaging.FormatJPEG, imaging.DefaultJPEGQuality)
		if err != nil {
			return written, dropped, err
		}

		name := AugmentedName(base, k)
		if err := sink.Put(ctx, path.Join("images", cfg.Split, name+".jpg"), data); err != nil {
			return written, dropped, err
		}
		if err := sink.Put(ctx, path.Join("labels", cfg.Split, name+".txt"), labels.Marshal(kept)); err != nil {
			return written, dropped, err
		}
		written++
	}
	return written, dropped, nil
}

// AugmentedName returns the base name of copy k: base itself for copy 0,
// "{base}_aug{k}" otherwise.
func AugmentedName(base string, k int) string {
	if k == 0 {
		return base
	}
	return fmt.Sprintf("%s_aug%d", base, k)
}
