package annotate

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/vector"
	"gonum.org/v1/gonum/spatial/r2"
)

const (
	// StrokeWidth is the rendered line width in pixels.
	StrokeWidth = 3.0
	// DefaultHitTolerance is the eraser pick distance from a segment, in
	// pixels. It is wider than half the stroke so thin lines stay clickable.
	DefaultHitTolerance = 10.0

	capSegments = 8
)

var background = color.RGBA{R: 0x0b, G: 0x0e, B: 0x14, A: 0xff}

// Surface is the fixed-size drawing area. The base image is scaled to fill
// it once and is never a hit target.
type Surface struct {
	width, height int
	base          *image.RGBA
	tolerance     float64
}

// NewSurface prepares a surface of w×h pixels. When w or h is not positive
// the base image's own size is used. A nil base gives a plain background.
func NewSurface(base image.Image, w, h int) *Surface {
	if base != nil && (w <= 0 || h <= 0) {
		b := base.Bounds()
		w, h = b.Dx(), b.Dy()
	}
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	if base != nil {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), base, base.Bounds(), xdraw.Over, nil)
	}
	return &Surface{width: w, height: h, base: dst, tolerance: DefaultHitTolerance}
}

func (s *Surface) Width() int  { return s.width }
func (s *Surface) Height() int { return s.height }

// SetHitTolerance overrides DefaultHitTolerance. Non-positive values are
// ignored.
func (s *Surface) SetHitTolerance(px float64) {
	if px > 0 {
		s.tolerance = px
	}
}

// Compose draws the base image followed by every shape in paint order.
// Geometry is clipped to one surface size beyond each edge before it is
// rasterized, so far off-surface pointer positions still render.
func (s *Surface) Compose(shapes []Shape) *image.RGBA {
	dst := image.NewRGBA(s.base.Bounds())
	copy(dst.Pix, s.base.Pix)

	w, h := float64(s.width), float64(s.height)
	lo, hi := r2.Vec{X: -w, Y: -h}, r2.Vec{X: 2 * w, Y: 2 * h}

	z := vector.NewRasterizer(s.width, s.height)
	for _, sh := range shapes {
		a, b, ok := clipSegment(vec(sh.Start()), vec(sh.End()), lo, hi)
		if !ok {
			continue
		}
		z.Reset(s.width, s.height)
		z.DrawOp = draw.Over
		strokeCapsule(z, a, b, StrokeWidth/2)
		z.Draw(dst, dst.Bounds(), image.NewUniform(sh.Kind.Color()), image.Point{})
	}
	return dst
}

// HitTest returns the id of the topmost shape within the hit tolerance of p.
func (s *Surface) HitTest(shapes []Shape, p Point) (string, bool) {
	q := vec(p)
	for i := len(shapes) - 1; i >= 0; i-- {
		sh := shapes[i]
		if segmentDistance(q, vec(sh.Start()), vec(sh.End())) <= s.tolerance {
			return sh.ID, true
		}
	}
	return "", false
}

func vec(p Point) r2.Vec { return r2.Vec{X: p.X, Y: p.Y} }

func segmentDistance(p, a, b r2.Vec) float64 {
	ab := r2.Sub(b, a)
	l2 := r2.Dot(ab, ab)
	if l2 == 0 {
		return r2.Norm(r2.Sub(p, a))
	}
	t := r2.Dot(r2.Sub(p, a), ab) / l2
	t = math.Max(0, math.Min(1, t))
	closest := r2.Add(a, r2.Scale(t, ab))
	return r2.Norm(r2.Sub(p, closest))
}

// clipSegment clips a-b to the box [lo, hi] (Liang-Barsky). It reports false
// when nothing of the segment lies inside or a coordinate is not finite.
func clipSegment(a, b, lo, hi r2.Vec) (r2.Vec, r2.Vec, bool) {
	for _, v := range []float64{a.X, a.Y, b.X, b.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return a, b, false
		}
	}
	d := r2.Sub(b, a)
	t0, t1 := 0.0, 1.0
	clip := func(p, q float64) bool {
		if p == 0 {
			return q >= 0
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return false
			}
			t0 = math.Max(t0, r)
		} else {
			if r < t0 {
				return false
			}
			t1 = math.Min(t1, r)
		}
		return true
	}
	if !clip(-d.X, a.X-lo.X) || !clip(d.X, hi.X-a.X) ||
		!clip(-d.Y, a.Y-lo.Y) || !clip(d.Y, hi.Y-a.Y) {
		return a, b, false
	}
	return r2.Add(a, r2.Scale(t0, d)), r2.Add(a, r2.Scale(t1, d)), true
}

// strokeCapsule adds a closed round-capped outline of segment a-b to z.
// A degenerate segment becomes a dot.
func strokeCapsule(z *vector.Rasterizer, a, b r2.Vec, hw float64) {
	d := r2.Sub(b, a)
	phi := 0.0
	if d.X != 0 || d.Y != 0 {
		phi = math.Atan2(d.Y, d.X)
	}
	arc := func(c r2.Vec, from float64, first bool) {
		for i := 0; i <= capSegments; i++ {
			th := from + math.Pi*float64(i)/capSegments
			pt := r2.Add(c, r2.Scale(hw, r2.Vec{X: math.Cos(th), Y: math.Sin(th)}))
			if first && i == 0 {
				z.MoveTo(float32(pt.X), float32(pt.Y))
				continue
			}
			z.LineTo(float32(pt.X), float32(pt.Y))
		}
	}
	arc(b, phi-math.Pi/2, true)
	arc(a, phi+math.Pi/2, false)
	z.ClosePath()
}
