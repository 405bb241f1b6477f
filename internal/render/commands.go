// Package render turns a graph snapshot, a view transform and the
// interaction state into screen-space draw commands. It is pure: nothing
// here mutates the graph.
package render

import (
	"github.com/starford/marginalia/internal/geom"
	"github.com/starford/marginalia/internal/models"
)

// Op is a drawing primitive.
type Op string

const (
	OpLine      Op = "line"
	OpPolyline  Op = "polyline"
	OpPolygon   Op = "polygon"
	OpRoundRect Op = "roundrect"
	OpRect      Op = "rect"
	OpCircle    Op = "circle"
	OpText      Op = "text"
)

// Style carries stroke and fill attributes. Colors are #rrggbb strings.
type Style struct {
	Stroke   string    `json:"stroke,omitempty"`
	Fill     string    `json:"fill,omitempty"`
	Width    float64   `json:"width,omitempty"`
	Dash     []float64 `json:"dash,omitempty"`
	FontSize float64   `json:"fontSize,omitempty"`
	Bold     bool      `json:"bold,omitempty"`
}

// Command is one draw call in screen coordinates.
type Command struct {
	Op     Op           `json:"op"`
	Points []geom.Point `json:"points,omitempty"`
	Rect   geom.Rect    `json:"rect,omitempty"`
	Radius float64      `json:"radius,omitempty"`
	Text   string       `json:"text,omitempty"`
	Style  Style        `json:"style"`
	// Layer groups commands for hosts that redraw selectively.
	Layer string `json:"layer"`
}

// Layers, in draw order.
const (
	LayerGrid    = "grid"
	LayerEdges   = "edges"
	LayerNodes   = "nodes"
	LayerPreview = "preview"
)

// Theme colors.
const (
	colorGrid        = "#eceff3"
	colorEdge        = "#5b6b7b"
	colorDocEdge     = "#9aa5b1"
	colorEdgeActive  = "#2563eb"
	colorNodeBorder  = "#cbd5e1"
	colorNodeActive  = "#64748b"
	colorLocalFill   = "#ffffff"
	colorExtFill     = "#f3f4f6"
	colorDocFill     = "#eef2ff"
	colorText        = "#1f2937"
	colorMuted       = "#6b7280"
	colorHandle      = "#94a3b8"
	colorPreviewNew  = "#16a34a"
	colorPreviewDrop = "#dc2626"
	colorPreviewNone = "#9ca3af"
)

var paletteHex = map[models.Color]string{
	models.ColorYellow: "#facc15",
	models.ColorGreen:  "#4ade80",
	models.ColorBlue:   "#60a5fa",
	models.ColorPink:   "#f472b6",
	models.ColorPurple: "#a78bfa",
	models.ColorOrange: "#fb923c",
}

// Hex returns the strip color for c.
func Hex(c models.Color) string { return paletteHex[c.OrDefault()] }
