// Package geometry provides the integer rectangle arithmetic used to decide
// how much of a placed sprite remains visible inside a target area.
//
// All coordinates follow the image convention used across this module:
// (0,0) is the top-left corner, X grows rightward and Y grows downward.
// A Rect covers the half-open ranges [X, X+W) and [Y, Y+H).
package geometry

import (
	"fmt"
	"image"
)

// Rect is an axis-aligned rectangle given by its top-left corner and size.
//
// Rect is used for both target areas (a background or a region of interest)
// and for placed sprites. A Rect with W <= 0 or H <= 0 is empty.
type Rect struct {
	X int `json:"x"` // Left edge (inclusive)
	Y int `json:"y"` // Top edge (inclusive)
	W int `json:"w"` // Width in pixels
	H int `json:"h"` // Height in pixels
}

// Full returns the rectangle covering a whole w x h canvas.
func Full(w, h int) Rect {
	return Rect{X: 0, Y: 0, W: w, H: h}
}

// FromImage converts an image.Rectangle into a Rect.
func FromImage(r image.Rectangle) Rect {
	return Rect{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Image converts the Rect into an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Empty reports whether the rectangle contains no pixels.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Area returns W*H, or 0 for an empty rectangle.
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return r.W * r.H
}

// Intersect returns the overlap of r and o. The result is the zero Rect when
// the two do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	x1 := max(r.X, o.X)
	y1 := max(r.Y, o.Y)
	x2 := min(r.X+r.W, o.X+o.W)
	y2 := min(r.Y+r.H, o.Y+o.H)
	if x2 <= x1 || y2 <= y1 {
		return Rect{}
	}
	return Rect{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// Contains reports whether o lies entirely inside r.
func (r Rect) Contains(o Rect) bool {
	return o.X >= r.X && o.Y >= r.Y && o.X+o.W <= r.X+r.W && o.Y+o.H <= r.Y+r.H
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.X, r.Y, r.W, r.H)
}

// ClampROI restricts roi to the canvas [0,w) x [0,h).
//
// The zero Rect means "no region of interest" and yields the full canvas, as
// does a region that falls completely outside the canvas.
func ClampROI(roi Rect, w, h int) Rect {
	full := Full(w, h)
	if roi == (Rect{}) {
		return full
	}
	clamped := roi.Intersect(full)
	if clamped.Empty() {
		return full
	}
	return clamped
}
