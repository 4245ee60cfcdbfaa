// Package geom provides the grid coordinates, rectangles, and 2D vector
// helpers shared by the board, the force model, and the generator.
// Continuous quantities use gonum's r2.Vec; grid cells use Point.
package geom

import (
	"math"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/spatial/r2"
)

// Point is an integer grid coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns p translated by q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Vec converts the point to a continuous vector.
func (p Point) Vec() r2.Vec {
	return r2.Vec{X: float64(p.X), Y: float64(p.Y)}
}

// Dist2 returns the squared Euclidean distance between two cells.
func (p Point) Dist2(q Point) int {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// Rect is an axis-aligned rectangle given by two corners, Min top-left and
// Max bottom-right, both inclusive.
type Rect struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

// NormalizeRect orders two arbitrary corners into a proper Rect.
func NormalizeRect(a, b Point) Rect {
	if a.X > b.X {
		a.X, b.X = b.X, a.X
	}
	if a.Y > b.Y {
		a.Y, b.Y = b.Y, a.Y
	}
	return Rect{Min: a, Max: b}
}

// StrictlyInside reports whether p lies inside r, excluding its edges.
func (r Rect) StrictlyInside(p Point) bool {
	return p.X > r.Min.X && p.X < r.Max.X && p.Y > r.Min.Y && p.Y < r.Max.Y
}

// Inset shrinks the rectangle by d on every side.
func (r Rect) Inset(d int) Rect {
	return Rect{
		Min: Point{X: r.Min.X + d, Y: r.Min.Y + d},
		Max: Point{X: r.Max.X - d, Y: r.Max.Y - d},
	}
}

// SquaredDistance returns (x1-x2)² + (y1-y2)².
func SquaredDistance(x1, y1, x2, y2 float64) float64 {
	dx := x1 - x2
	dy := y1 - y2
	return dx*dx + dy*dy
}

// PointsInCircle enumerates the cells whose squared distance from c is
// strictly below r². Cells may lie outside any board; callers filter.
func PointsInCircle(c Point, r int) []Point {
	if r <= 0 {
		return nil
	}
	out := make([]Point, 0, 4*r*r)
	limit := r * r
	for i := c.X - r; i <= c.X+r; i++ {
		for j := c.Y - r; j <= c.Y+r; j++ {
			p := Point{X: i, Y: j}
			if c.Dist2(p) < limit {
				out = append(out, p)
			}
		}
	}
	return out
}

// Limit scales v down to length max, preserving direction. Vectors already
// within the limit are returned unchanged.
func Limit(v r2.Vec, max float64) r2.Vec {
	n := r2.Norm(v)
	if n > max && n > 0 {
		return r2.Scale(max/n, v)
	}
	return v
}

// Unit returns v scaled to length 1, or the zero vector for zero input.
func Unit(v r2.Vec) r2.Vec {
	if v.X == 0 && v.Y == 0 {
		return r2.Vec{}
	}
	return r2.Unit(v)
}

// UnitToward returns the unit vector pointing from one cell to another.
// Identical cells yield the zero vector.
func UnitToward(from, to Point) r2.Vec {
	if from == to {
		return r2.Vec{}
	}
	return Unit(r2.Sub(to.Vec(), from.Vec()))
}

// Tangent rotates a vector by +90°.
func Tangent(n r2.Vec) r2.Vec {
	return r2.Vec{X: -n.Y, Y: n.X}
}

// Step converts a velocity over dt into the integer grid displacement the
// agent would make, rounding half away from zero.
func Step(v r2.Vec, dt float64) Point {
	return Point{X: int(math.Round(v.X * dt)), Y: int(math.Round(v.Y * dt))}
}

// Clamp bounds v to [lo, hi].
func Clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Abs returns |v|.
func Abs[T constraints.Signed | constraints.Float](v T) T {
	if v < 0 {
		return -v
	}
	return v
}
