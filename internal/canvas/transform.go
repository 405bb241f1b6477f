// Package canvas implements the interaction state machine of the graph
// view: pan/zoom transform, hit testing and the gesture modes. It never
// touches storage; mutations are returned as effects for the caller to
// apply.
package canvas

import (
	"math"

	"github.com/starford/marginalia/internal/geom"
)

// Zoom limits and the per-tick change: +10% in, -10% out.
const (
	MinScale = 0.1
	MaxScale = 5.0
	ZoomStep = 0.1
)

// Transform maps world coordinates to screen coordinates:
// screen = world*Scale + Offset.
type Transform struct {
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
	Scale   float64 `json:"scale"`
}

// Identity is the unpanned, unzoomed transform.
func Identity() Transform { return Transform{Scale: 1} }

// ScreenToWorld converts a screen point to world space.
func (t Transform) ScreenToWorld(p geom.Point) geom.Point {
	return geom.Point{X: (p.X - t.OffsetX) / t.Scale, Y: (p.Y - t.OffsetY) / t.Scale}
}

// WorldToScreen converts a world point to screen space.
func (t Transform) WorldToScreen(p geom.Point) geom.Point {
	return geom.Point{X: p.X*t.Scale + t.OffsetX, Y: p.Y*t.Scale + t.OffsetY}
}

// ZoomAt scales by one wheel tick around the screen point p, keeping the
// world point under p fixed. A negative deltaY zooms in.
func (t Transform) ZoomAt(p geom.Point, deltaY float64) Transform {
	if deltaY == 0 {
		return t
	}
	before := t.ScreenToWorld(p)
	scale := t.Scale * (1 + ZoomStep)
	if deltaY > 0 {
		scale = t.Scale * (1 - ZoomStep)
	}
	scale = math.Max(MinScale, math.Min(MaxScale, scale))
	return Transform{
		OffsetX: p.X - before.X*scale,
		OffsetY: p.Y - before.Y*scale,
		Scale:   scale,
	}
}

// Pan shifts the view by a screen-space delta.
func (t Transform) Pan(dx, dy float64) Transform {
	t.OffsetX += dx
	t.OffsetY += dy
	return t
}
