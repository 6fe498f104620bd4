// Package labels reads and writes object detection labels in the YOLO text
// format: one "class cx cy w h" line per object, coordinates normalized to
// [0,1] relative to the image size, stored next to the image as "<base>.txt".
package labels

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ironsheep/dataset-synth/internal/geometry"
)

// Box is one normalized YOLO bounding box.
type Box struct {
	Class int     `json:"class"`
	CX    float64 `json:"cx"`
	CY    float64 `json:"cy"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
}

// String formats the box as a label line with six decimal places.
func (b Box) String() string {
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", b.Class, b.CX, b.CY, b.W, b.H)
}

// FromPixels converts a pixel rectangle on an imgW x imgH image into a
// normalized box. The rectangle is clipped to the image first.
func FromPixels(class int, r geometry.Rect, imgW, imgH int) Box {
	r = r.Intersect(geometry.Full(imgW, imgH))
	if r.Empty() {
		return Box{Class: class}
	}
	fw, fh := float64(imgW), float64(imgH)
	return Box{
		Class: class,
		CX:    (float64(r.X) + float64(r.W)/2) / fw,
		CY:    (float64(r.Y) + float64(r.H)/2) / fh,
		W:     float64(r.W) / fw,
		H:     float64(r.H) / fh,
	}
}

// Corners returns the box edges in pixel coordinates as floats, which is the
// representation geometric augmentations work in.
func (b Box) Corners(imgW, imgH int) (x1, y1, x2, y2 float64) {
	fw, fh := float64(imgW), float64(imgH)
	x1 = (b.CX - b.W/2) * fw
	y1 = (b.CY - b.H/2) * fh
	x2 = (b.CX + b.W/2) * fw
	y2 = (b.CY + b.H/2) * fh
	return
}

// FromCorners builds a normalized box from pixel-space edges.
func FromCorners(class int, x1, y1, x2, y2 float64, imgW, imgH int) Box {
	fw, fh := float64(imgW), float64(imgH)
	return Box{
		Class: class,
		CX:    (x1 + x2) / 2 / fw,
		CY:    (y1 + y2) / 2 / fh,
		W:     (x2 - x1) / fw,
		H:     (y2 - y1) / fh,
	}
}

// Pixels returns the box as an integer pixel rectangle.
func (b Box) Pixels(imgW, imgH int) geometry.Rect {
	x1, y1, x2, y2 := b.Corners(imgW, imgH)
	return geometry.Rect{
		X: int(x1 + 0.5),
		Y: int(y1 + 0.5),
		W: int(x2+0.5) - int(x1+0.5),
		H: int(y2+0.5) - int(y1+0.5),
	}
}

// Valid reports whether the box has positive size and lies within [0,1].
func (b Box) Valid() bool {
	const eps = 1e-6
	if b.W <= 0 || b.H <= 0 || b.Class < 0 {
		return false
	}
	return b.CX-b.W/2 >= -eps && b.CY-b.H/2 >= -eps &&
		b.CX+b.W/2 <= 1+eps && b.CY+b.H/2 <= 1+eps
}

// Parse reads label lines from r. Blank lines are ignored; any other line
// that is not five numeric fields is an error naming the line number.
func Parse(r io.Reader) ([]Box, error) {
	var boxes []Box
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		fields := strings.Fields(text)
		if len(fields) != 5 {
			return nil, fmt.Errorf("line %d: expected 5 fields, got %d", line, len(fields))
		}

		var vals [5]float64
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid number %q: %w", line, f, err)
			}
			vals[i] = v
		}

		boxes = append(boxes, Box{Class: int(vals[0]), CX: vals[1], CY: vals[2], W: vals[3], H: vals[4]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	return boxes, nil
}

// Read loads a label file. A missing file yields no boxes and no error,
// matching images without any objects.
func Read(path string) ([]Box, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open labels: %w", err)
	}
	defer f.Close()

	boxes, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return boxes, nil
}

// Marshal formats boxes as label file content.
func Marshal(boxes []Box) []byte {
	var buf bytes.Buffer
	for _, b := range boxes {
		buf.WriteString(b.String())
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Write saves boxes to path, creating the parent directory. An empty slice
// writes an empty file.
func Write(path string, boxes []Box) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create label directory: %w", err)
	}
	if err := os.WriteFile(path, Marshal(boxes), 0644); err != nil {
		return fmt.Errorf("failed to write labels: %w", err)
	}
	return nil
}

// PathFor returns the label path for an image: same base name, ".txt"
// extension, inside labelDir.
func PathFor(labelDir, imagePath string) string {
	name := filepath.Base(imagePath)
	return filepath.Join(labelDir, strings.TrimSuffix(name, filepath.Ext(name))+".txt")
}
