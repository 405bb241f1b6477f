// Package graph derives the node/edge graph shown on the canvas from the
// annotation store, and persists node positions per document.
package graph

import (
	"github.com/starford/marginalia/internal/geom"
	"github.com/starford/marginalia/internal/models"
)

// Kind discriminates the three node variants.
type Kind string

const (
	KindLocal    Kind = "local"
	KindExternal Kind = "external"
	KindDocRef   Kind = "docref"
)

// Node ids for synthesized nodes.
const (
	externalPrefix = "ext-"
	docRefPrefix   = "doc-ref-"
)

// ExternalID is the node id of the external highlight (filePath, id).
func ExternalID(filePath, id string) string { return externalPrefix + filePath + "-" + id }

// DocRefID is the node id of the document reference for filePath.
func DocRefID(filePath string) string { return docRefPrefix + filePath }

// Node is one box on the canvas.
type Node struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	// Annotation is nil for document reference nodes.
	Annotation *models.Annotation `json:"annotation,omitempty"`
	FilePath   string             `json:"filePath"`
	FileName   string             `json:"fileName"`
	Rect       geom.Rect          `json:"rect"`
	// LinkedCount is the number of local links into a DocRef's document.
	LinkedCount int `json:"linkedCount,omitempty"`
}

// ReadOnly reports whether the node wraps data from another document.
func (n *Node) ReadOnly() bool { return n.Kind != KindLocal }

// AnnotationID returns the wrapped annotation's own id, empty for DocRefs.
func (n *Node) AnnotationID() string {
	if n.Annotation == nil {
		return ""
	}
	return n.Annotation.ID
}

// Color is the strip color of the node.
func (n *Node) Color() models.Color {
	if n.Annotation == nil {
		return models.DefaultColor
	}
	return n.Annotation.Color.OrDefault()
}

// Edge connects two nodes by id.
type Edge struct {
	Source         string `json:"source"`
	Target         string `json:"target"`
	IsDocumentLink bool   `json:"isDocumentLink"`
	// LinkID is the target annotation id of the LinkRef behind the edge.
	LinkID string `json:"linkId,omitempty"`
	// Synthetic marks external-highlight to document-reference edges.
	Synthetic bool `json:"synthetic,omitempty"`
}

// Key identifies an edge within one graph.
func (e Edge) Key() string { return e.Source + "\x00" + e.Target + "\x00" + e.LinkID }

// Graph is an immutable snapshot produced by Builder.Build. The canvas
// controller reorders Nodes for z-order but never mutates node content
// other than Rect positions.
type Graph struct {
	DocPath string  `json:"docPath"`
	Nodes   []*Node `json:"nodes"`
	Edges   []Edge  `json:"edges"`

	byID map[string]*Node
}

// New assembles a graph and indexes its nodes.
func New(docPath string, nodes []*Node, edges []Edge) *Graph {
	g := &Graph{DocPath: docPath, Nodes: nodes, Edges: edges}
	g.reindex()
	return g
}

func (g *Graph) reindex() {
	g.byID = make(map[string]*Node, len(g.Nodes))
	for _, n := range g.Nodes {
		g.byID[n.ID] = n
	}
}

// Node returns the node with id, or nil.
func (g *Graph) Node(id string) *Node {
	if g == nil {
		return nil
	}
	if g.byID == nil {
		g.reindex()
	}
	return g.byID[id]
}

// Positions maps every node id to its top-left corner.
func (g *Graph) Positions() map[string]geom.Point {
	out := make(map[string]geom.Point, len(g.Nodes))
	if g == nil {
		return out
	}
	for _, n := range g.Nodes {
		out[n.ID] = geom.Point{X: n.Rect.X, Y: n.Rect.Y}
	}
	return out
}

// Count returns how many nodes of kind k the graph holds.
func (g *Graph) Count(k Kind) int {
	c := 0
	for _, n := range g.Nodes {
		if n.Kind == k {
			c++
		}
	}
	return c
}

// Curve returns the geometry of e, false if an endpoint is missing.
func (g *Graph) Curve(e Edge) (geom.Curve, bool) {
	src, dst := g.Node(e.Source), g.Node(e.Target)
	if src == nil || dst == nil {
		return geom.Curve{}, false
	}
	return geom.Connect(src.Rect, dst.Rect), true
}
