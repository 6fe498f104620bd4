package augment

import (
	"image"
	"math"
	"math/rand/v2"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/noise"

	"github.com/ironsheep/dataset-synth/internal/labels"
)

// ElasticTransform displaces pixels along a smooth random field. The field
// is uniform noise blurred with radius Sigma and rescaled so the largest
// displacement is Alpha pixels. Boxes are kept as they are, since the
// displacement is local and small.
type ElasticTransform struct {
	P     float64
	Alpha float64
	Sigma float64
}

func (s *ElasticTransform) Name() string         { return "elastic" }
func (s *ElasticTransform) Probability() float64 { return s.P }

func (s *ElasticTransform) Apply(rng *rand.Rand, img *image.NRGBA, boxes []labels.Box) (*image.NRGBA, []labels.Box) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 || s.Alpha == 0 {
		return img, boxes
	}

	// R and G channels hold independent x and y fields.
	field := noise.Generate(w, h, &noise.Options{NoiseFn: UniformFn(rng)})
	if s.Sigma > 0 {
		field = blur.Gaussian(field, s.Sigma)
	}

	dx := make([]float64, w*h)
	dy := make([]float64, w*h)
	maxAbs := 0.0
	for i := 0; i < w*h; i++ {
		dx[i] = float64(field.Pix[i*4]) - 127.5
		dy[i] = float64(field.Pix[i*4+1]) - 127.5
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(dx[i]), math.Abs(dy[i])))
	}
	if maxAbs == 0 {
		return img, boxes
	}
	scale := s.Alpha / maxAbs

	out := remap(img, func(x, y int) (float64, float64) {
		i := y*w + x
		return float64(x) + dx[i]*scale, float64(y) + dy[i]*scale
	}, true)
	return out, boxes
}

// OpticalDistortion applies radial barrel or pincushion distortion with a
// coefficient drawn from [-Limit, Limit]. Boxes follow the warp through
// DistortBoxes.
type OpticalDistortion struct {
	P     float64
	Limit float64
}

func (s *OpticalDistortion) Name() string         { return "optical_distortion" }
func (s *OpticalDistortion) Probability() float64 { return s.P }

func (s *OpticalDistortion) Apply(rng *rand.Rand, img *image.NRGBA, boxes []labels.Box) (*image.NRGBA, []labels.Box) {
	k := between(rng, -s.Limit, s.Limit)
	b := img.Bounds()
	return Distort(img, k), DistortBoxes(boxes, b.Dx(), b.Dy(), k)
}

// Distort applies radial distortion with coefficient k: each output pixel
// samples the source at center + d*(1 + k*r^2), where d is the offset from
// the center and r its length normalized to the half-size of the image.
func Distort(img *image.NRGBA, k float64) *image.NRGBA {
	b := img.Bounds()
	cx, cy := float64(b.Dx())/2, float64(b.Dy())/2
	if k == 0 || cx == 0 || cy == 0 {
		return remap(img, func(x, y int) (float64, float64) { return float64(x), float64(y) }, false)
	}

	return remap(img, func(x, y int) (float64, float64) {
		nx := (float64(x) + 0.5 - cx) / cx
		ny := (float64(y) + 0.5 - cy) / cy
		f := 1 + k*(nx*nx+ny*ny)
		return cx + nx*f*cx - 0.5, cy + ny*f*cy - 0.5
	}, false)
}

// edgeSamples is the number of points taken along each box edge when
// mapping a box through the distortion; edges bow, so corners alone are not
// enough.
const edgeSamples = 16

// DistortBoxes maps boxes on a w x h image through Distort with coefficient
// k and returns the axis-aligned envelope of each mapped outline. A box
// whose content Distort never samples comes back empty, so the pipeline
// drops it.
func DistortBoxes(boxes []labels.Box, w, h int, k float64) []labels.Box {
	if boxes == nil || k == 0 || w == 0 || h == 0 {
		return boxes
	}

	out := make([]labels.Box, len(boxes))
	for i, b := range boxes {
		x1, y1, x2, y2 := b.Corners(w, h)
		minX, minY := math.Inf(1), math.Inf(1)
		maxX, maxY := math.Inf(-1), math.Inf(-1)
		for j := 0; j <= edgeSamples; j++ {
			t := float64(j) / edgeSamples
			px, py := x1+t*(x2-x1), y1+t*(y2-y1)
			for _, pt := range [][2]float64{{px, y1}, {px, y2}, {x1, py}, {x2, py}} {
				ox, oy, ok := distortPoint(pt[0], pt[1], w, h, k)
				if !ok {
					continue
				}
				minX, maxX = math.Min(minX, ox), math.Max(maxX, ox)
				minY, maxY = math.Min(minY, oy), math.Max(maxY, oy)
			}
		}
		if minX > maxX || minY > maxY {
			out[i] = labels.Box{Class: b.Class}
			continue
		}
		out[i] = labels.FromCorners(b.Class, minX, minY, maxX, maxY, w, h)
	}
	return out
}

// distortPoint returns where the source point (x, y) lands in the output of
// Distort. Distort maps an output offset of normalized length rho to a
// source offset of length rho*(1+k*rho^2) along the same ray, so the
// output length is the root of that cubic. With k < 0 the cubic peaks at
// rho = 1/sqrt(-3k); source points beyond the peak value are never sampled
// and ok is false.
func distortPoint(x, y float64, w, h int, k float64) (float64, float64, bool) {
	cx, cy := float64(w)/2, float64(h)/2
	nx, ny := (x-cx)/cx, (y-cy)/cy
	rs := math.Hypot(nx, ny)
	if rs == 0 {
		return x, y, true
	}

	hi := rs
	if k < 0 {
		hi = 1 / math.Sqrt(-3*k)
		if hi*(1+k*hi*hi) < rs {
			return 0, 0, false
		}
	}
	lo := 0.0
	for range 50 {
		mid := (lo + hi) / 2
		if mid*(1+k*mid*mid) < rs {
			lo = mid
		} else {
			hi = mid
		}
	}
	f := (lo + hi) / 2 / rs
	return cx + nx*f*cx, cy + ny*f*cy, true
}

// remap builds a new image whose pixel (x, y) is sampled from src at the
// position returned by fn. Samples outside src are transparent.
func remap(src *image.NRGBA, fn func(x, y int) (float64, float64), bilinear bool) *image.NRGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := fn(x, y)
			var px [4]uint8
			if bilinear {
				px = sampleBilinear(src, sx, sy)
			} else {
				px = sampleNearest(src, sx, sy)
			}
			i := dst.PixOffset(x, y)
			copy(dst.Pix[i:i+4], px[:])
		}
	}
	return dst
}

func sampleNearest(src *image.NRGBA, fx, fy float64) [4]uint8 {
	b := src.Bounds()
	x, y := int(math.Round(fx)), int(math.Round(fy))
	if x < 0 || y < 0 || x >= b.Dx() || y >= b.Dy() {
		return [4]uint8{}
	}
	i := src.PixOffset(b.Min.X+x, b.Min.Y+y)
	return [4]uint8{src.Pix[i], src.Pix[i+1], src.Pix[i+2], src.Pix[i+3]}
}

// sampleBilinear interpolates between the four neighbours of (fx, fy),
// clamping coordinates to the image edge.
func sampleBilinear(src *image.NRGBA, fx, fy float64) [4]uint8 {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	fx = clamp(fx, 0, float64(w-1))
	fy = clamp(fy, 0, float64(h-1))

	x0, y0 := int(fx), int(fy)
	x1, y1 := min(x0+1, w-1), min(y0+1, h-1)
	tx, ty := fx-float64(x0), fy-float64(y0)

	at := func(x, y int) []uint8 {
		i := src.PixOffset(b.Min.X+x, b.Min.Y+y)
		return src.Pix[i : i+4]
	}
	p00, p10, p01, p11 := at(x0, y0), at(x1, y0), at(x0, y1), at(x1, y1)

	var out [4]uint8
	for c := 0; c < 4; c++ {
		top := float64(p00[c])*(1-tx) + float64(p10[c])*tx
		bottom := float64(p01[c])*(1-tx) + float64(p11[c])*tx
		out[c] = clampByte(top*(1-ty) + bottom*ty)
	}
	return out
}
