package render

import (
	"fmt"
	"math"

	"github.com/starford/marginalia/internal/canvas"
	"github.com/starford/marginalia/internal/geom"
	"github.com/starford/marginalia/internal/graph"
)

// World-space metrics.
const (
	GridSpacing = 40.0
	StripWidth  = graph.StripWidth
	CornerR     = 6.0
	FontSize    = 12.0
	ArrowSize   = 10.0
	minGridStep = 6.0
)

// Frame is everything one draw needs.
type Frame struct {
	Graph *graph.Graph
	// Nodes is the draw order, bottom first. Nil means Graph.Nodes.
	Nodes     []*graph.Node
	Transform canvas.Transform
	State     canvas.State
	Width     float64
	Height    float64
}

// Render produces the draw commands for f.
func Render(f Frame) []Command {
	if f.Transform.Scale <= 0 {
		f.Transform = canvas.Identity()
	}
	var out []Command
	out = append(out, grid(f)...)
	if f.Graph == nil {
		return out
	}
	nodes := f.Nodes
	if nodes == nil {
		nodes = f.Graph.Nodes
	}
	for _, e := range f.Graph.Edges {
		out = append(out, edge(f, e)...)
	}
	for _, n := range nodes {
		out = append(out, node(f, n)...)
	}
	out = append(out, preview(f)...)
	return out
}

func grid(f Frame) []Command {
	step := GridSpacing * f.Transform.Scale
	if step < minGridStep || f.Width <= 0 || f.Height <= 0 {
		return nil
	}
	style := Style{Stroke: colorGrid, Width: 1}
	var out []Command
	for x := math.Mod(f.Transform.OffsetX, step); x <= f.Width; x += step {
		if x < 0 {
			continue
		}
		out = append(out, Command{Op: OpLine, Points: []geom.Point{{X: x, Y: 0}, {X: x, Y: f.Height}}, Style: style, Layer: LayerGrid})
	}
	for y := math.Mod(f.Transform.OffsetY, step); y <= f.Height; y += step {
		if y < 0 {
			continue
		}
		out = append(out, Command{Op: OpLine, Points: []geom.Point{{X: 0, Y: y}, {X: f.Width, Y: y}}, Style: style, Layer: LayerGrid})
	}
	return out
}

// EdgeStyle is the stroke for e given the interaction state.
func EdgeStyle(e graph.Edge, st canvas.State, scale float64) Style {
	s := Style{Stroke: colorEdge, Width: 1.5 * scale}
	if e.IsDocumentLink {
		s.Stroke = colorDocEdge
		s.Dash = []float64{6 * scale, 4 * scale}
	}
	if k := e.Key(); k == st.HoveredEdge || k == st.SelectedEdge {
		s.Stroke = colorEdgeActive
		s.Width = 3 * scale
	}
	return s
}

func edge(f Frame, e graph.Edge) []Command {
	curve, ok := f.Graph.Curve(e)
	if !ok {
		return nil
	}
	t := f.Transform
	samples := curve.Samples()
	pts := make([]geom.Point, len(samples))
	for i, p := range samples {
		pts[i] = t.WorldToScreen(p)
	}
	style := EdgeStyle(e, f.State, t.Scale)
	head := geom.Arrow(t.WorldToScreen(curve.At(1)), curve.Tangent(1), ArrowSize*t.Scale)
	return []Command{
		{Op: OpPolyline, Points: pts, Style: style, Layer: LayerEdges},
		{Op: OpPolygon, Points: head[:], Style: Style{Fill: style.Stroke}, Layer: LayerEdges},
	}
}

func nodeFill(k graph.Kind) string {
	switch k {
	case graph.KindExternal:
		return colorExtFill
	case graph.KindDocRef:
		return colorDocFill
	default:
		return colorLocalFill
	}
}

// Header is the fixed title line of a node.
func Header(n *graph.Node) string {
	switch n.Kind {
	case graph.KindExternal:
		return "↗ Highlight"
	case graph.KindDocRef:
		return "Document"
	}
	if n.Annotation != nil && n.Annotation.IsHighlight() {
		return "Highlight"
	}
	return "Note"
}

// Meta is the kind-specific footer line of a node.
func Meta(n *graph.Node) string {
	switch n.Kind {
	case graph.KindExternal:
		return n.FileName
	case graph.KindDocRef:
		if n.LinkedCount == 1 {
			return "1 link"
		}
		return fmt.Sprintf("%d links", n.LinkedCount)
	}
	if n.Annotation == nil || n.Annotation.CreatedAt.IsZero() {
		return ""
	}
	return n.Annotation.CreatedAt.Format("2006-01-02")
}

// BodyLines wraps a node's body text to fit its box, with the same budget
// the builder used to size it.
func BodyLines(n *graph.Node) []string {
	return graph.Wrap(graph.BodyText(n), graph.LineChars(n.Rect.W), graph.BodyLines(n.Rect.H))
}

func node(f Frame, n *graph.Node) []Command {
	t := f.Transform
	s := t.Scale
	tl := t.WorldToScreen(geom.Point{X: n.Rect.X, Y: n.Rect.Y})
	box := geom.Rect{X: tl.X, Y: tl.Y, W: n.Rect.W * s, H: n.Rect.H * s}

	border := Style{Stroke: colorNodeBorder, Fill: nodeFill(n.Kind), Width: 1}
	if n.ID == f.State.HoveredNode || n.ID == f.State.LinkTarget {
		border.Stroke = colorNodeActive
		border.Width = 2
	}
	if n.Kind != graph.KindLocal {
		border.Dash = []float64{4 * s, 3 * s}
	}

	font := FontSize * s
	pad := graph.Padding * s
	textX := box.X + (StripWidth+graph.Padding)*s

	out := []Command{
		{Op: OpRoundRect, Rect: box, Radius: CornerR * s, Style: border, Layer: LayerNodes},
		{Op: OpRect, Rect: geom.Rect{X: box.X, Y: box.Y, W: StripWidth * s, H: box.H}, Style: Style{Fill: Hex(n.Color())}, Layer: LayerNodes},
		{Op: OpText, Points: []geom.Point{{X: textX, Y: box.Y + pad + font}}, Text: Header(n),
			Style: Style{Fill: colorMuted, FontSize: font, Bold: true}, Layer: LayerNodes},
	}
	y := box.Y + graph.HeaderHeight*s
	for _, line := range BodyLines(n) {
		y += graph.LineHeight * s
		out = append(out, Command{Op: OpText, Points: []geom.Point{{X: textX, Y: y}}, Text: line,
			Style: Style{Fill: colorText, FontSize: font}, Layer: LayerNodes})
	}
	if meta := Meta(n); meta != "" {
		out = append(out, Command{Op: OpText, Points: []geom.Point{{X: textX, Y: box.Y + box.H - pad}}, Text: meta,
			Style: Style{Fill: colorMuted, FontSize: font * 0.85}, Layer: LayerNodes})
	}
	return append(out, handle(t, n)...)
}

// handle draws the link affordance: a circle with an arrow glyph.
func handle(t canvas.Transform, n *graph.Node) []Command {
	c := t.WorldToScreen(n.Rect.RightMid())
	r := canvas.HandleRadius * t.Scale
	glyph := geom.Arrow(c.Add(geom.Point{X: r * 0.5}), geom.Point{X: 1}, r)
	return []Command{
		{Op: OpCircle, Points: []geom.Point{c}, Radius: r, Style: Style{Fill: colorLocalFill, Stroke: colorHandle, Width: 1}, Layer: LayerNodes},
		{Op: OpPolygon, Points: glyph[:], Style: Style{Fill: colorHandle}, Layer: LayerNodes},
	}
}

// PreviewColor maps the link drag status to a stroke color.
func PreviewColor(s canvas.LinkStatus) string {
	switch s {
	case canvas.LinkCreate:
		return colorPreviewNew
	case canvas.LinkRemove:
		return colorPreviewDrop
	default:
		return colorPreviewNone
	}
}

func preview(f Frame) []Command {
	st := f.State
	if st.Mode != canvas.DraggingLinkHandle {
		return nil
	}
	src := f.Graph.Node(st.LinkSource)
	if src == nil {
		return nil
	}
	t := f.Transform
	from := src.Rect.RightMid()
	to := st.LinkCursor
	dir := to.Sub(from)
	if l := dir.Len(); l > 0 {
		dir = dir.Scale(1 / l)
	} else {
		dir = geom.Point{X: 1}
	}
	color := PreviewColor(st.LinkStatus)
	head := geom.Arrow(t.WorldToScreen(to), dir, ArrowSize*t.Scale)
	return []Command{
		{Op: OpLine, Points: []geom.Point{t.WorldToScreen(from), t.WorldToScreen(to)},
			Style: Style{Stroke: color, Width: 2, Dash: []float64{6, 4}}, Layer: LayerPreview},
		{Op: OpPolygon, Points: head[:], Style: Style{Fill: color}, Layer: LayerPreview},
	}
}
