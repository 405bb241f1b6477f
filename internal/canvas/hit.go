package canvas

import (
	"math"

	"github.com/starford/marginalia/internal/geom"
	"github.com/starford/marginalia/internal/graph"
)

// hitNode returns the topmost node under world, and whether the point is
// on its link handle. Handles are tested before bodies on each node so the
// part of the handle outside the box still counts.
func (c *Controller) hitNode(world geom.Point) (*graph.Node, bool) {
	for i := len(c.order) - 1; i >= 0; i-- {
		n := c.order[i]
		if geom.Dist(world, n.Rect.RightMid()) <= HandleRadius {
			return n, true
		}
		if n.Rect.Contains(world) {
			return n, false
		}
	}
	return nil, false
}

// hitEdge returns the closest edge within the threshold of world. The
// distance is measured against the same samples the renderer strokes.
func (c *Controller) hitEdge(world geom.Point) *graph.Edge {
	var best *graph.Edge
	bestDist := math.Inf(1)
	for i := range c.g.Edges {
		e := &c.g.Edges[i]
		curve, ok := c.g.Curve(*e)
		if !ok {
			continue
		}
		if d := curve.Distance(world); d <= c.threshold && d < bestDist {
			best, bestDist = e, d
		}
	}
	return best
}

func (c *Controller) edgeByKey(key string) *graph.Edge {
	if key == "" || c.g == nil {
		return nil
	}
	for i := range c.g.Edges {
		if c.g.Edges[i].Key() == key {
			return &c.g.Edges[i]
		}
	}
	return nil
}
