package graph

import (
	"log/slog"
	"time"

	"github.com/tidwall/btree"

	"github.com/starford/marginalia/internal/annotations"
	"github.com/starford/marginalia/internal/geom"
	"github.com/starford/marginalia/internal/metrics"
	"github.com/starford/marginalia/internal/models"
)

// Source is the read side of the annotation store the builder needs.
type Source interface {
	CurrentPath() string
	Current() *models.Collection
	GetForDocument(path string) *models.Collection
	ResolveKey(path string) (string, bool)
}

// Grid placement for nodes that have no position yet.
const (
	gridGapX      = 60.0
	gridGapY      = 40.0
	groupGap      = 160.0
	localColumns  = 5
	remoteColumns = 3
)

// Builder turns store state into a Graph.
type Builder struct {
	src    Source
	layout *LayoutStore
	sizing Sizing
	logger *slog.Logger
}

// NewBuilder creates a Builder. layout may be nil, in which case only the
// previous graph supplies positions.
func NewBuilder(src Source, layout *LayoutStore, sizing Sizing, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{src: src, layout: layout, sizing: sizing.OrDefault(), logger: logger}
}

// Sizing returns the node sizing in use.
func (b *Builder) Sizing() Sizing { return b.sizing }

// highlightEntry indexes a foreign highlight by (filePath, id).
type highlightEntry struct {
	filePath string
	id       string
	a        *models.Annotation
}

func highlightLess(x, y highlightEntry) bool {
	if x.filePath != y.filePath {
		return x.filePath < y.filePath
	}
	return x.id < y.id
}

// Build recomputes every node and edge for the current document. Positions
// come from prev, then the persisted layout, then the grid.
func (b *Builder) Build(prev *Graph) *Graph {
	start := time.Now()
	docPath := b.src.CurrentPath()

	locals := b.src.Current().All()
	annotations.SortNewestFirst(locals)

	isLocal := func(fp string) bool {
		if fp == docPath {
			return true
		}
		key, ok := b.src.ResolveKey(fp)
		return ok && key == docPath
	}

	// Pass 1: index every highlight of every referenced foreign document.
	index := btree.NewBTreeG[highlightEntry](highlightLess)
	loaded := make(map[string]bool)
	for _, a := range locals {
		for _, l := range a.Links {
			key := models.Normalize(l, docPath)
			if isLocal(key.FilePath) || loaded[key.FilePath] {
				continue
			}
			loaded[key.FilePath] = true
			for _, h := range b.src.GetForDocument(key.FilePath).Highlights {
				index.Set(highlightEntry{filePath: key.FilePath, id: h.ID, a: h})
			}
		}
	}

	localByID := make(map[string]*Node, len(locals))
	var nodes, externals, docRefs []*Node
	for _, a := range locals {
		n := &Node{ID: a.ID, Kind: KindLocal, Annotation: a, FilePath: docPath, FileName: models.FileNameOf(docPath)}
		localByID[a.ID] = n
		nodes = append(nodes, n)
	}

	// Pass 2: keep only foreign highlights that a link actually reaches.
	extByID := make(map[string]*Node)
	docByID := make(map[string]*Node)
	docRef := func(fp string) *Node {
		id := DocRefID(fp)
		if n, ok := docByID[id]; ok {
			return n
		}
		n := &Node{ID: id, Kind: KindDocRef, FilePath: fp, FileName: models.FileNameOf(fp)}
		docByID[id] = n
		docRefs = append(docRefs, n)
		return n
	}

	var edges []Edge
	seen := make(map[string]bool)
	addEdge := func(e Edge) {
		if k := e.Key(); !seen[k] {
			seen[k] = true
			edges = append(edges, e)
		}
	}

	for _, a := range locals {
		for _, l := range a.Links {
			key := models.Normalize(l, docPath)
			if isLocal(key.FilePath) {
				if _, ok := localByID[key.ID]; ok && key.ID != a.ID {
					addEdge(Edge{Source: a.ID, Target: key.ID, LinkID: key.ID})
				}
				continue
			}
			if hit, ok := index.Get(highlightEntry{filePath: key.FilePath, id: key.ID}); ok {
				id := ExternalID(key.FilePath, key.ID)
				if _, exists := extByID[id]; !exists {
					n := &Node{ID: id, Kind: KindExternal, Annotation: hit.a, FilePath: key.FilePath, FileName: models.FileNameOf(key.FilePath)}
					extByID[id] = n
					externals = append(externals, n)
				}
				addEdge(Edge{Source: a.ID, Target: id, IsDocumentLink: true, LinkID: key.ID})
			} else {
				addEdge(Edge{Source: a.ID, Target: docRef(key.FilePath).ID, IsDocumentLink: true, LinkID: key.ID})
			}
			docRef(key.FilePath).LinkedCount++
		}
	}

	for _, ext := range externals {
		addEdge(Edge{Source: ext.ID, Target: docRef(ext.FilePath).ID, IsDocumentLink: true, Synthetic: true})
	}

	nodes = append(nodes, externals...)
	nodes = append(nodes, docRefs...)
	b.place(docPath, nodes, prev)

	g := New(docPath, nodes, edges)
	metrics.GraphRebuildDuration.Observe(time.Since(start).Seconds())
	for _, k := range []Kind{KindLocal, KindExternal, KindDocRef} {
		metrics.GraphNodes.WithLabelValues(string(k)).Set(float64(g.Count(k)))
	}
	b.logger.Debug("graph: rebuilt",
		slog.String("path", docPath),
		slog.Int("nodes", len(nodes)),
		slog.Int("edges", len(edges)))
	return g
}

// place sizes every node and assigns its position.
func (b *Builder) place(docPath string, nodes []*Node, prev *Graph) {
	var prevPos map[string]geom.Point
	if prev != nil && prev.DocPath == docPath {
		prevPos = prev.Positions()
	}
	var saved map[string]geom.Point
	if b.layout != nil {
		saved = b.layout.Load(docPath)
	}

	counters := map[Kind]int{}
	for _, n := range nodes {
		n.Rect.W = b.sizing.NodeWidth
		n.Rect.H = b.sizing.Height(nodeText(n))

		slot := counters[n.Kind]
		counters[n.Kind]++

		if p, ok := prevPos[n.ID]; ok {
			n.Rect.X, n.Rect.Y = p.X, p.Y
			continue
		}
		if p, ok := saved[n.ID]; ok {
			n.Rect.X, n.Rect.Y = p.X, p.Y
			continue
		}
		p := b.gridSlot(n.Kind, slot)
		n.Rect.X, n.Rect.Y = p.X, p.Y
	}
}

func (b *Builder) gridSlot(k Kind, slot int) geom.Point {
	cellW := b.sizing.NodeWidth + gridGapX
	cellH := b.sizing.MaxHeight() + gridGapY
	cols, originX := localColumns, 0.0
	switch k {
	case KindExternal:
		cols = remoteColumns
		originX = localColumns*cellW + groupGap
	case KindDocRef:
		cols = remoteColumns
		originX = localColumns*cellW + groupGap + remoteColumns*cellW + groupGap
	}
	return geom.Point{
		X: originX + float64(slot%cols)*cellW,
		Y: float64(slot/cols) * cellH,
	}
}

// nodeText is the body the node displays, which also drives its height.
func nodeText(n *Node) string {
	if n.Annotation == nil {
		return n.FileName
	}
	return n.Annotation.Text
}

// BodyText exposes nodeText to the renderer.
func BodyText(n *Node) string { return nodeText(n) }
