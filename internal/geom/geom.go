// Package geom holds the edge geometry shared by hit-testing and drawing.
// Both sides call the same sampling function, so what is drawn is what is
// hit.
package geom

import "math"

// Point is a position in world or screen space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p+q.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Sub returns p-q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Scale returns p*k.
func (p Point) Scale(k float64) Point { return Point{p.X * k, p.Y * k} }

// Len returns the euclidean norm.
func (p Point) Len() float64 { return math.Hypot(p.X, p.Y) }

// Dist returns the distance between p and q.
func Dist(p, q Point) float64 { return p.Sub(q).Len() }

// Rect is an axis-aligned rectangle with its origin at the top-left.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"width"`
	H float64 `json:"height"`
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Center returns the midpoint of r.
func (r Rect) Center() Point { return Point{r.X + r.W/2, r.Y + r.H/2} }

// RightMid is where the link handle sits.
func (r Rect) RightMid() Point { return Point{r.X + r.W, r.Y + r.H/2} }

// Side names the edge of a rectangle an edge attaches to.
type Side int

const (
	Left Side = iota
	Right
	Top
	Bottom
)

// Normal is the outward unit vector of the side.
func (s Side) Normal() Point {
	switch s {
	case Left:
		return Point{-1, 0}
	case Right:
		return Point{1, 0}
	case Top:
		return Point{0, -1}
	default:
		return Point{0, 1}
	}
}

// Anchor returns the midpoint of side s of r.
func (r Rect) Anchor(s Side) Point {
	switch s {
	case Left:
		return Point{r.X, r.Y + r.H/2}
	case Right:
		return Point{r.X + r.W, r.Y + r.H/2}
	case Top:
		return Point{r.X + r.W/2, r.Y}
	default:
		return Point{r.X + r.W/2, r.Y + r.H}
	}
}

// MaxControlOffset caps how far control points are pushed out.
const MaxControlOffset = 100

// Curve is a cubic bezier from P0 to P3.
type Curve struct {
	P0, C1, C2, P3 Point
	From, To       Side
}

// Sides picks the attachment sides for an edge from src to dst. The
// connection is horizontal when the vertical ranges overlap or the
// horizontal distance dominates.
func Sides(src, dst Rect) (Side, Side) {
	sc, dc := src.Center(), dst.Center()
	dx, dy := dc.X-sc.X, dc.Y-sc.Y
	overlap := src.Y < dst.Y+dst.H && dst.Y < src.Y+src.H
	if overlap || math.Abs(dx) > math.Abs(dy) {
		if dx >= 0 {
			return Right, Left
		}
		return Left, Right
	}
	if dy >= 0 {
		return Bottom, Top
	}
	return Top, Bottom
}

// Connect builds the curve between two node rectangles.
func Connect(src, dst Rect) Curve {
	from, to := Sides(src, dst)
	return Between(src.Anchor(from), from, dst.Anchor(to), to)
}

// Between builds a curve from start to end leaving and entering along the
// given sides' normals.
func Between(start Point, from Side, end Point, to Side) Curve {
	off := math.Min(Dist(start, end)*0.5, MaxControlOffset)
	return Curve{
		P0:   start,
		C1:   start.Add(from.Normal().Scale(off)),
		C2:   end.Add(to.Normal().Scale(off)),
		P3:   end,
		From: from,
		To:   to,
	}
}

// At evaluates the curve at t in [0,1].
func (c Curve) At(t float64) Point {
	mt := 1 - t
	a := mt * mt * mt
	b := 3 * mt * mt * t
	d := 3 * mt * t * t
	e := t * t * t
	return Point{
		X: a*c.P0.X + b*c.C1.X + d*c.C2.X + e*c.P3.X,
		Y: a*c.P0.Y + b*c.C1.Y + d*c.C2.Y + e*c.P3.Y,
	}
}

// Tangent returns the unit direction of travel at t. Degenerate curves
// fall back to the chord, then to +X.
func (c Curve) Tangent(t float64) Point {
	mt := 1 - t
	d := c.C1.Sub(c.P0).Scale(3 * mt * mt).
		Add(c.C2.Sub(c.C1).Scale(6 * mt * t)).
		Add(c.P3.Sub(c.C2).Scale(3 * t * t))
	if l := d.Len(); l > 1e-9 {
		return d.Scale(1 / l)
	}
	chord := c.P3.Sub(c.P0)
	if l := chord.Len(); l > 1e-9 {
		return chord.Scale(1 / l)
	}
	return Point{1, 0}
}

// SampleStep is the parameter step used for both drawing and hit-testing.
const SampleStep = 0.04

// Samples returns the points drawn for the curve, from t=0 to t=1.
func (c Curve) Samples() []Point {
	n := int(math.Round(1 / SampleStep))
	out := make([]Point, n+1)
	for i := 0; i <= n; i++ {
		out[i] = c.At(float64(i) / float64(n))
	}
	return out
}

// Distance returns how far p is from the sampled polyline of the curve.
func (c Curve) Distance(p Point) float64 {
	pts := c.Samples()
	best := math.Inf(1)
	for i := 1; i < len(pts); i++ {
		if d := SegmentDistance(p, pts[i-1], pts[i]); d < best {
			best = d
		}
	}
	return best
}

// SegmentDistance returns the distance from p to segment ab.
func SegmentDistance(p, a, b Point) float64 {
	ab := b.Sub(a)
	l2 := ab.X*ab.X + ab.Y*ab.Y
	if l2 == 0 {
		return Dist(p, a)
	}
	t := ((p.X-a.X)*ab.X + (p.Y-a.Y)*ab.Y) / l2
	t = math.Max(0, math.Min(1, t))
	return Dist(p, a.Add(ab.Scale(t)))
}

// Arrow returns the three corners of an arrowhead whose tip is at tip and
// which points along dir.
func Arrow(tip, dir Point, size float64) [3]Point {
	back := tip.Sub(dir.Scale(size))
	perp := Point{-dir.Y, dir.X}.Scale(size / 2)
	return [3]Point{tip, back.Add(perp), back.Sub(perp)}
}
