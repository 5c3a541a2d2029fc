package annotate

import (
	"image/color"

	"github.com/google/uuid"
)

// Kind identifies what a shape represents on the chart.
type Kind string

const (
	// KindTrend is a free two-point trend segment.
	KindTrend Kind = "trend"
	// KindRuler is a horizontal support/resistance line spanning the surface.
	KindRuler Kind = "snr"
)

var kindColors = map[Kind]color.RGBA{
	KindTrend: {R: 0x10, G: 0xb9, B: 0x81, A: 0xff},
	KindRuler: {R: 0x3b, G: 0x82, B: 0xf6, A: 0xff},
}

// Valid reports whether k is one of the known shape kinds.
func (k Kind) Valid() bool {
	_, ok := kindColors[k]
	return ok
}

// Color returns the fixed stroke colour for the kind.
func (k Kind) Color() color.RGBA {
	return kindColors[k]
}

// Hex returns the stroke colour as #rrggbb.
func (k Kind) Hex() string {
	c := k.Color()
	const digits = "0123456789abcdef"
	return string([]byte{'#',
		digits[c.R>>4], digits[c.R&0x0f],
		digits[c.G>>4], digits[c.G&0x0f],
		digits[c.B>>4], digits[c.B&0x0f],
	})
}

// Point is a pointer position in surface coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Shape is a single annotation. Points holds [x1, y1, x2, y2].
type Shape struct {
	ID     string     `json:"id"`
	Kind   Kind       `json:"kind"`
	Points [4]float64 `json:"points"`
	Color  string     `json:"color"`
}

// Start returns the first endpoint.
func (s Shape) Start() Point { return Point{X: s.Points[0], Y: s.Points[1]} }

// End returns the second endpoint.
func (s Shape) End() Point { return Point{X: s.Points[2], Y: s.Points[3]} }

func geometry(kind Kind, p Point, width float64) [4]float64 {
	if kind == KindRuler {
		return [4]float64{0, p.Y, width, p.Y}
	}
	return [4]float64{p.X, p.Y, p.X, p.Y}
}

// Collection is the ordered set of shapes on a canvas. Order is paint order.
// It is not safe for concurrent use; Session serializes access.
type Collection struct {
	shapes []Shape
}

// Create appends a new shape whose geometry is derived from the start point.
// A trend starts degenerate at p; a ruler spans [0, width] at p.Y.
func (c *Collection) Create(kind Kind, p Point, width float64) Shape {
	s := Shape{
		ID:    uuid.NewString(),
		Kind:  kind,
		Color: kind.Hex(),
	}
	s.Points = geometry(kind, p, width)
	c.shapes = append(c.shapes, s)
	return s
}

// Update recomputes the geometry of the shape with the given id from p.
// Trend segments move their second endpoint; rulers follow p.Y only.
func (c *Collection) Update(id string, p Point, width float64) (Shape, bool) {
	i := c.index(id)
	if i < 0 {
		return Shape{}, false
	}
	s := &c.shapes[i]
	if s.Kind == KindRuler {
		s.Points = geometry(KindRuler, p, width)
	} else {
		s.Points[2], s.Points[3] = p.X, p.Y
	}
	return *s, true
}

// Remove deletes the shape with the given id. Unknown ids are ignored.
func (c *Collection) Remove(id string) bool {
	i := c.index(id)
	if i < 0 {
		return false
	}
	c.shapes = append(c.shapes[:i], c.shapes[i+1:]...)
	return true
}

// Clear removes every shape and returns how many were dropped.
func (c *Collection) Clear() int {
	n := len(c.shapes)
	c.shapes = nil
	return n
}

// Get returns the shape with the given id.
func (c *Collection) Get(id string) (Shape, bool) {
	i := c.index(id)
	if i < 0 {
		return Shape{}, false
	}
	return c.shapes[i], true
}

// Shapes returns a copy of the collection in paint order.
func (c *Collection) Shapes() []Shape {
	out := make([]Shape, len(c.shapes))
	copy(out, c.shapes)
	return out
}

func (c *Collection) Len() int { return len(c.shapes) }

func (c *Collection) index(id string) int {
	for i := range c.shapes {
		if c.shapes[i].ID == id {
			return i
		}
	}
	return -1
}
