package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// hitThreshold mirrors the canvas default.
const hitThreshold = 20

var rectPairs = []struct {
	name     string
	src, dst Rect
}{
	{"right", Rect{0, 0, 200, 80}, Rect{400, 20, 200, 60}},
	{"left", Rect{500, 0, 200, 80}, Rect{0, 30, 200, 80}},
	{"below", Rect{0, 0, 200, 80}, Rect{50, 400, 200, 80}},
	{"above", Rect{0, 500, 200, 80}, Rect{30, 0, 200, 80}},
	{"overlapping rows far below", Rect{0, 0, 200, 300}, Rect{10, 250, 200, 100}},
	{"diagonal wide", Rect{0, 0, 200, 80}, Rect{900, 300, 200, 80}},
	{"touching", Rect{0, 0, 200, 80}, Rect{200, 0, 200, 80}},
	{"same", Rect{10, 10, 200, 80}, Rect{10, 10, 200, 80}},
}

func TestSides(t *testing.T) {
	cases := []struct {
		src, dst Rect
		from, to Side
	}{
		{Rect{0, 0, 100, 50}, Rect{300, 10, 100, 50}, Right, Left},
		{Rect{300, 0, 100, 50}, Rect{0, 10, 100, 50}, Left, Right},
		{Rect{0, 0, 100, 50}, Rect{0, 300, 100, 50}, Bottom, Top},
		{Rect{0, 300, 100, 50}, Rect{0, 0, 100, 50}, Top, Bottom},
		// Vertical ranges overlap: horizontal even though dy > dx.
		{Rect{0, 0, 100, 400}, Rect{10, 300, 100, 50}, Right, Left},
		// No overlap but dx dominates.
		{Rect{0, 0, 100, 50}, Rect{500, 100, 100, 50}, Right, Left},
	}
	for _, c := range cases {
		from, to := Sides(c.src, c.dst)
		assert.Equal(t, c.from, from)
		assert.Equal(t, c.to, to)
	}
}

func TestConnect_ControlOffsetCapped(t *testing.T) {
	c := Connect(Rect{0, 0, 100, 50}, Rect{1000, 0, 100, 50})
	assert.Equal(t, Point{100, 25}, c.P0)
	assert.Equal(t, Point{200, 25}, c.C1)
	assert.Equal(t, Point{900, 25}, c.C2)
	assert.Equal(t, Point{1000, 25}, c.P3)

	short := Connect(Rect{0, 0, 100, 50}, Rect{160, 0, 100, 50})
	assert.Equal(t, Point{130, 25}, short.C1)
	assert.Equal(t, Point{130, 25}, short.C2)
}

func TestCurve_TipEqualsTargetAnchor(t *testing.T) {
	for _, p := range rectPairs {
		c := Connect(p.src, p.dst)
		_, to := Sides(p.src, p.dst)
		samples := c.Samples()
		assert.Equal(t, p.dst.Anchor(to), samples[len(samples)-1], p.name)
		assert.Equal(t, p.dst.Anchor(to), c.At(1), p.name)
	}
}

func TestCurve_MidpointWithinHitThreshold(t *testing.T) {
	for _, p := range rectPairs {
		c := Connect(p.src, p.dst)
		assert.LessOrEqual(t, c.Distance(c.At(0.5)), float64(hitThreshold), p.name)
	}
}

func TestCurve_SamplesShape(t *testing.T) {
	c := Connect(Rect{0, 0, 100, 50}, Rect{400, 0, 100, 50})
	s := c.Samples()
	assert.Len(t, s, 26)
	assert.Equal(t, c.P0, s[0])
	assert.Equal(t, c.P3, s[25])
}

func TestCurve_DistanceFarPoint(t *testing.T) {
	c := Connect(Rect{0, 0, 100, 50}, Rect{400, 0, 100, 50})
	assert.Greater(t, c.Distance(Point{250, 300}), float64(hitThreshold))
	assert.Less(t, c.Distance(Point{250, 27}), float64(hitThreshold))
}

func TestTangent_EndPointsAlongTargetApproach(t *testing.T) {
	c := Connect(Rect{0, 0, 100, 50}, Rect{400, 0, 100, 50})
	tan := c.Tangent(1)
	assert.InDelta(t, 1, tan.X, 1e-9)
	assert.InDelta(t, 0, tan.Y, 1e-9)
}

func TestTangent_DegenerateCurve(t *testing.T) {
	c := Curve{}
	assert.Equal(t, Point{1, 0}, c.Tangent(1))
	line := Curve{P0: Point{0, 0}, C1: Point{0, 0}, C2: Point{0, 10}, P3: Point{0, 10}}
	tan := line.Tangent(1)
	assert.InDelta(t, 1, tan.Len(), 1e-9)
}

func TestSegmentDistance(t *testing.T) {
	assert.InDelta(t, 5, SegmentDistance(Point{5, 5}, Point{0, 0}, Point{10, 0}), 1e-9)
	assert.InDelta(t, 5, SegmentDistance(Point{-3, 4}, Point{0, 0}, Point{10, 0}), 1e-9)
	assert.InDelta(t, 5, SegmentDistance(Point{3, 4}, Point{0, 0}, Point{0, 0}), 1e-9)
}

func TestArrow(t *testing.T) {
	a := Arrow(Point{10, 0}, Point{1, 0}, 10)
	assert.Equal(t, Point{10, 0}, a[0])
	assert.Equal(t, Point{0, 5}, a[1])
	assert.Equal(t, Point{0, -5}, a[2])
	assert.False(t, math.IsNaN(a[1].X))
}

func TestRect_Contains(t *testing.T) {
	r := Rect{10, 10, 100, 50}
	assert.True(t, r.Contains(Point{10, 10}))
	assert.True(t, r.Contains(Point{110, 60}))
	assert.False(t, r.Contains(Point{111, 30}))
	assert.Equal(t, Point{110, 35}, r.RightMid())
}
