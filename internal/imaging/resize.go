package imaging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// ResizeSummary counts the outcome of a ResizeTree run.
type ResizeSummary struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Outputs   []string `json:"outputs,omitempty"`
}

// ResizeTree resizes every image under in to exactly width x height with a
// Lanczos filter and writes it to the mirrored location under out as
// "{name}_resized{ext}", so in and out may be the same directory.
//
// The output keeps the source format except for WEBP, which has no encoder
// and is written as PNG. Per-file failures are logged and counted; only a
// missing input directory or invalid size is returned as an error.
func ResizeTree(in, out string, width, height int) (*ResizeSummary, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}

	paths, err := FindImages(in)
	if err != nil {
		return nil, err
	}

	summary := &ResizeSummary{}
	for _, src := range paths {
		// Outputs from an earlier run into the same tree are not resized again.
		if strings.HasSuffix(BaseName(src), "_resized") {
			continue
		}

		dst, err := resizedPath(in, out, src)
		if err != nil {
			log.Printf("Error processing %s: %v", src, err)
			summary.Failed++
			continue
		}

		if err := resizeFile(src, dst, width, height); err != nil {
			log.Printf("Error processing %s: %v", src, err)
			summary.Failed++
			continue
		}

		summary.Processed++
		summary.Outputs = append(summary.Outputs, dst)
	}

	return summary, nil
}

func resizedPath(in, out, src string) (string, error) {
	rel, err := filepath.Rel(in, src)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(rel)
	if strings.EqualFold(ext, ".webp") {
		ext = ".png"
	}
	name := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel)) + "_resized" + ext
	return filepath.Join(out, filepath.Dir(rel), name), nil
}

func resizeFile(src, dst string, width, height int) error {
	img, err := Open(src)
	if err != nil {
		return err
	}

	resized := imaging.Resize(img, width, height, imaging.Lanczos)

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := imaging.Save(resized, dst, imaging.JPEGQuality(DefaultJPEGQuality)); err != nil {
		return fmt.Errorf("failed to save %s: %w", dst, err)
	}
	return nil
}
