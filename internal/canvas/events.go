package canvas

import (
	"github.com/starford/marginalia/internal/geom"
	"github.com/starford/marginalia/internal/graph"
)

// EventKind names an input event.
type EventKind string

const (
	PointerDown EventKind = "pointerdown"
	PointerMove EventKind = "pointermove"
	PointerUp   EventKind = "pointerup"
	Wheel       EventKind = "wheel"
	DoubleClick EventKind = "dblclick"
	MenuClosed  EventKind = "menuclosed"
)

// Button identifies the pressed pointer button.
type Button int

const (
	ButtonPrimary   Button = 0
	ButtonSecondary Button = 2
)

// Event is one input event in screen coordinates.
type Event struct {
	Kind   EventKind `json:"kind"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	Button Button    `json:"button"`
	DeltaY float64   `json:"deltaY,omitempty"`
}

// Screen returns the event position.
func (e Event) Screen() geom.Point { return geom.Point{X: e.X, Y: e.Y} }

// Effect is a side effect requested by the controller.
type Effect interface {
	EffectName() string
}

// ToggleLink asks the link resolver to toggle source → target.
type ToggleLink struct {
	SourceID       string `json:"sourceId"`
	TargetID       string `json:"targetId"`
	TargetFilePath string `json:"targetFilePath"`
}

// PersistPosition asks the layout store to save a node position.
type PersistPosition struct {
	NodeID   string     `json:"nodeId"`
	Position geom.Point `json:"position"`
}

// Rebuild asks for a graph refresh.
type Rebuild struct{}

// OpenDocument asks the host to open another document.
type OpenDocument struct {
	Path         string `json:"path"`
	AnnotationID string `json:"annotationId,omitempty"`
}

// EditNode asks the host to show the edit dialog for a local node.
type EditNode struct {
	NodeID string `json:"nodeId"`
}

// MenuKind names what a context menu was opened on.
type MenuKind string

const (
	MenuNode       MenuKind = "node"
	MenuEdge       MenuKind = "edge"
	MenuBackground MenuKind = "background"
)

// MenuTarget describes a context menu request.
type MenuTarget struct {
	Kind   MenuKind    `json:"kind"`
	NodeID string      `json:"nodeId,omitempty"`
	Edge   *graph.Edge `json:"edge,omitempty"`
	World  geom.Point  `json:"world"`
	Screen geom.Point  `json:"screen"`
}

// ContextMenu asks the host to show a menu for Target.
type ContextMenu struct {
	Target MenuTarget `json:"target"`
}

func (ToggleLink) EffectName() string      { return "toggleLink" }
func (PersistPosition) EffectName() string { return "persistPosition" }
func (Rebuild) EffectName() string         { return "rebuild" }
func (OpenDocument) EffectName() string    { return "openDocument" }
func (EditNode) EffectName() string        { return "editNode" }
func (ContextMenu) EffectName() string     { return "contextMenu" }
