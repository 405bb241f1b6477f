package render

import (
	"bytes"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/marginalia/internal/canvas"
	"github.com/starford/marginalia/internal/geom"
	"github.com/starford/marginalia/internal/graph"
	"github.com/starford/marginalia/internal/models"
)

func sampleGraph() *graph.Graph {
	created := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	nodes := []*graph.Node{
		{
			ID: "n1", Kind: graph.KindLocal, FilePath: "/a.pdf", FileName: "a.pdf",
			Annotation: &models.Annotation{ID: "n1", Type: models.KindNote, Text: "check Q3 source", Color: models.ColorBlue, CreatedAt: created},
			Rect:       geom.Rect{X: 0, Y: 0, W: 200, H: 80},
		},
		{
			ID: "ext-/b.pdf-h2", Kind: graph.KindExternal, FilePath: "/b.pdf", FileName: "b.pdf",
			Annotation: &models.Annotation{ID: "h2", Type: models.KindHighlight, Text: "B side", Color: models.ColorPink},
			Rect:       geom.Rect{X: 400, Y: 200, W: 200, H: 80},
		},
		{
			ID: "doc-ref-/b.pdf", Kind: graph.KindDocRef, FilePath: "/b.pdf", FileName: "b.pdf", LinkedCount: 2,
			Rect: geom.Rect{X: 800, Y: 200, W: 200, H: 64},
		},
	}
	edges := []graph.Edge{
		{Source: "n1", Target: "ext-/b.pdf-h2", IsDocumentLink: true, LinkID: "h2"},
		{Source: "ext-/b.pdf-h2", Target: "doc-ref-/b.pdf", IsDocumentLink: true, Synthetic: true},
	}
	return graph.New("/a.pdf", nodes, edges)
}

func byLayer(cmds []Command, layer string) []Command {
	var out []Command
	for _, c := range cmds {
		if c.Layer == layer {
			out = append(out, c)
		}
	}
	return out
}

func texts(cmds []Command) []string {
	var out []string
	for _, c := range cmds {
		if c.Op == OpText {
			out = append(out, c.Text)
		}
	}
	return out
}

func TestBodyLines_MatchNodeHeight(t *testing.T) {
	sizing := graph.DefaultSizing
	texts := []string{
		"short",
		strings.Repeat("a", 24) + " " + strings.Repeat("b", 26),
		"Highlights are snapshots of the text and may no longer match the document they came from",
		"one two three four five six seven eight nine ten eleven twelve thirteen",
	}
	for _, text := range texts {
		n := &graph.Node{
			ID: "n", Kind: graph.KindLocal,
			Annotation: &models.Annotation{ID: "n", Type: models.KindNote, Text: text},
			Rect:       geom.Rect{W: sizing.NodeWidth, H: sizing.Height(text)},
		}
		lines := BodyLines(n)
		assert.Len(t, lines, sizing.EstimateLines(text), "text %q", text)
		if sizing.EstimateLines(text) < sizing.MaxBodyLines {
			assert.False(t, strings.HasSuffix(lines[len(lines)-1], graph.Ellipsis), "text %q cut early", text)
		}
	}
}

func TestRender_ArrowTipIsTargetAnchor(t *testing.T) {
	g := sampleGraph()
	for _, tr := range []canvas.Transform{canvas.Identity(), {OffsetX: 35, OffsetY: -20, Scale: 1.7}} {
		cmds := Render(Frame{Graph: g, Transform: tr})
		edges := byLayer(cmds, LayerEdges)
		require.Len(t, edges, 4)
		for i, e := range g.Edges {
			src, dst := g.Node(e.Source), g.Node(e.Target)
			_, to := geom.Sides(src.Rect, dst.Rect)
			want := tr.WorldToScreen(dst.Rect.Anchor(to))
			head := edges[2*i+1]
			require.Equal(t, OpPolygon, head.Op)
			assert.InDelta(t, want.X, head.Points[0].X, 1e-9)
			assert.InDelta(t, want.Y, head.Points[0].Y, 1e-9)

			line := edges[2*i]
			assert.Len(t, line.Points, 26)
			assert.Equal(t, head.Points[0], line.Points[len(line.Points)-1])
		}
	}
}

func TestRender_EdgeStyles(t *testing.T) {
	plain := graph.Edge{Source: "a", Target: "b"}
	doc := graph.Edge{Source: "a", Target: "c", IsDocumentLink: true}

	s := EdgeStyle(plain, canvas.State{}, 1)
	assert.Empty(t, s.Dash)
	d := EdgeStyle(doc, canvas.State{}, 1)
	assert.NotEmpty(t, d.Dash)
	assert.NotEqual(t, s.Stroke, d.Stroke)

	hover := EdgeStyle(plain, canvas.State{HoveredEdge: plain.Key()}, 1)
	assert.Greater(t, hover.Width, s.Width)
	sel := EdgeStyle(doc, canvas.State{SelectedEdge: doc.Key()}, 1)
	assert.Greater(t, sel.Width, d.Width)
}

func TestRender_NodeVariants(t *testing.T) {
	g := sampleGraph()
	cmds := Render(Frame{Graph: g, Transform: canvas.Identity()})
	got := texts(byLayer(cmds, LayerNodes))
	assert.Contains(t, got, "Note")
	assert.Contains(t, got, "check Q3 source")
	assert.Contains(t, got, "2024-05-02")
	assert.Contains(t, got, "↗ Highlight")
	assert.Contains(t, got, "b.pdf")
	assert.Contains(t, got, "Document")
	assert.Contains(t, got, "2 links")

	var strips, handles int
	for _, c := range byLayer(cmds, LayerNodes) {
		if c.Op == OpRect {
			strips++
			if c.Rect.X == 0 && c.Rect.Y == 0 {
				assert.Equal(t, Hex(models.ColorBlue), c.Style.Fill)
			}
		}
		if c.Op == OpCircle {
			handles++
		}
	}
	assert.Equal(t, 3, strips)
	assert.Equal(t, 3, handles)
}

func TestRender_LinkPreview(t *testing.T) {
	g := sampleGraph()
	st := canvas.State{
		Mode: canvas.DraggingLinkHandle, LinkSource: "n1",
		LinkCursor: geom.Point{X: 300, Y: 300}, LinkStatus: canvas.LinkRemove,
	}
	cmds := byLayer(Render(Frame{Graph: g, Transform: canvas.Identity(), State: st}), LayerPreview)
	require.Len(t, cmds, 2)
	assert.Equal(t, geom.Point{X: 200, Y: 40}, cmds[0].Points[0])
	assert.Equal(t, geom.Point{X: 300, Y: 300}, cmds[0].Points[1])
	assert.NotEmpty(t, cmds[0].Style.Dash)
	assert.Equal(t, PreviewColor(canvas.LinkRemove), cmds[0].Style.Stroke)
	assert.Equal(t, geom.Point{X: 300, Y: 300}, cmds[1].Points[0])

	assert.Empty(t, byLayer(Render(Frame{Graph: g}), LayerPreview))
}

func TestPreviewColor(t *testing.T) {
	assert.Equal(t, "#16a34a", PreviewColor(canvas.LinkCreate))
	assert.Equal(t, "#dc2626", PreviewColor(canvas.LinkRemove))
	assert.Equal(t, "#9ca3af", PreviewColor(canvas.LinkNeutral))
}

func TestRender_GridScalesWithZoom(t *testing.T) {
	near := byLayer(Render(Frame{Transform: canvas.Transform{Scale: 2}, Width: 400, Height: 400}), LayerGrid)
	far := byLayer(Render(Frame{Transform: canvas.Transform{Scale: 0.5}, Width: 400, Height: 400}), LayerGrid)
	assert.Greater(t, len(far), len(near))
	assert.Empty(t, byLayer(Render(Frame{Transform: canvas.Transform{Scale: 0.1}, Width: 400, Height: 400}), LayerGrid))
}

func TestRender_IsPure(t *testing.T) {
	g := sampleGraph()
	before := g.Positions()
	f := Frame{Graph: g, Transform: canvas.Identity(), Width: 800, Height: 600}
	assert.Equal(t, Render(f), Render(f))
	assert.Equal(t, before, g.Positions())
}

func TestBuildMenu(t *testing.T) {
	g := sampleGraph()

	local := BuildMenu(canvas.MenuTarget{Kind: canvas.MenuNode, NodeID: "n1"}, g)
	var actions []Action
	for _, it := range local.Items {
		actions = append(actions, it.Action)
	}
	assert.Contains(t, actions, ActionEdit)
	assert.Contains(t, actions, ActionColor)
	assert.Contains(t, actions, ActionLink)
	assert.Contains(t, actions, ActionDelete)

	for _, id := range []string{"ext-/b.pdf-h2", "doc-ref-/b.pdf"} {
		m := BuildMenu(canvas.MenuTarget{Kind: canvas.MenuNode, NodeID: id}, g)
		require.Len(t, m.Items, 2, id)
		assert.Equal(t, ActionOpenSource, m.Items[0].Action)
		assert.Equal(t, ActionCancel, m.Items[1].Action)
	}

	edge := g.Edges[0]
	m := BuildMenu(canvas.MenuTarget{Kind: canvas.MenuEdge, Edge: &edge}, g)
	assert.Equal(t, ActionRemoveLink, m.Items[0].Action)

	syn := g.Edges[1]
	m = BuildMenu(canvas.MenuTarget{Kind: canvas.MenuEdge, Edge: &syn}, g)
	assert.Equal(t, ActionOpenSource, m.Items[0].Action)

	bg := BuildMenu(canvas.MenuTarget{Kind: canvas.MenuBackground}, g)
	assert.Equal(t, ActionAddNote, bg.Items[0].Action)
}

func TestWritePNG(t *testing.T) {
	g := sampleGraph()
	cmds := Render(Frame{Graph: g, Transform: canvas.Transform{OffsetX: 10, OffsetY: 10, Scale: 0.8}, Width: 900, Height: 300})

	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, cmds, 900, 300))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 900, img.Bounds().Dx())

	white := color.RGBAModel.Convert(color.White)
	painted := 0
	for y := 0; y < 300; y += 3 {
		for x := 0; x < 900; x += 3 {
			if color.RGBAModel.Convert(img.At(x, y)) != white {
				painted++
			}
		}
	}
	assert.Greater(t, painted, 100)

	assert.Error(t, WritePNG(&buf, nil, 0, 10))
}

func TestDashSegments(t *testing.T) {
	pts := []geom.Point{{X: 0, Y: 0}, {X: 20, Y: 0}}
	segs := dashSegments(pts, []float64{5, 5})
	require.Len(t, segs, 2)
	assert.Equal(t, [2]geom.Point{{X: 0, Y: 0}, {X: 5, Y: 0}}, segs[0])
	assert.Equal(t, [2]geom.Point{{X: 10, Y: 0}, {X: 15, Y: 0}}, segs[1])
	assert.Len(t, dashSegments(pts, nil), 1)
}

func TestClip(t *testing.T) {
	tri := []geom.Point{{X: -10, Y: 5}, {X: 20, Y: 5}, {X: 5, Y: 20}}
	for _, p := range clip(tri, 10, 10) {
		assert.GreaterOrEqual(t, p.X, 0.0)
		assert.LessOrEqual(t, p.X, 10.0)
		assert.LessOrEqual(t, p.Y, 10.0)
	}
	assert.Empty(t, clip([]geom.Point{{X: -5, Y: -5}, {X: -1, Y: -5}, {X: -1, Y: -1}}, 10, 10))
}
