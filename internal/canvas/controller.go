package canvas

import (
	"github.com/starford/marginalia/internal/geom"
	"github.com/starford/marginalia/internal/graph"
)

// Mode is the exclusive gesture mode.
type Mode int

const (
	Idle Mode = iota
	DraggingNode
	PanningCanvas
	DraggingLinkHandle
	AwaitingContextMenu
)

func (m Mode) String() string {
	switch m {
	case DraggingNode:
		return "dragging-node"
	case PanningCanvas:
		return "panning"
	case DraggingLinkHandle:
		return "dragging-link"
	case AwaitingContextMenu:
		return "context-menu"
	default:
		return "idle"
	}
}

// LinkStatus colors the link drag preview.
type LinkStatus string

const (
	LinkNeutral LinkStatus = "neutral"
	LinkCreate  LinkStatus = "create"
	LinkRemove  LinkStatus = "remove"
)

// Hit-test defaults, in world units.
const (
	DefaultEdgeHitThreshold = 20.0
	HandleRadius            = 8.0
)

// LinkQuery reports whether source already links to the target.
type LinkQuery func(sourceID, targetID, targetFilePath string) bool

// State is the read-only interaction snapshot handed to the renderer.
type State struct {
	Mode         Mode
	HoveredNode  string
	HoveredEdge  string
	SelectedEdge string
	LinkSource   string
	LinkTarget   string
	LinkCursor   geom.Point
	LinkStatus   LinkStatus
}

// Controller reduces input events to state changes and effects.
type Controller struct {
	g         *graph.Graph
	order     []*graph.Node
	t         Transform
	threshold float64
	exists    LinkQuery

	mode         Mode
	hoveredNode  string
	hoveredEdge  string
	selectedEdge string

	dragID   string
	grab     geom.Point
	lastPan  geom.Point
	linkFrom string
	linkTo   string
	cursor   geom.Point
	status   LinkStatus
}

// Option configures a Controller.
type Option func(*Controller)

// WithEdgeHitThreshold overrides the edge hover distance.
func WithEdgeHitThreshold(d float64) Option {
	return func(c *Controller) {
		if d > 0 {
			c.threshold = d
		}
	}
}

// WithTransform sets the initial transform.
func WithTransform(t Transform) Option {
	return func(c *Controller) { c.t = t }
}

// New creates a controller. exists may be nil, in which case every drop
// previews as a creation.
func New(exists LinkQuery, opts ...Option) *Controller {
	c := &Controller{
		t:         Identity(),
		threshold: DefaultEdgeHitThreshold,
		exists:    exists,
		status:    LinkNeutral,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetGraph swaps in a rebuilt graph. Nodes keep their z-order; new nodes
// go underneath in graph order.
func (c *Controller) SetGraph(g *graph.Graph) {
	rank := make(map[string]int, len(c.order))
	for i, n := range c.order {
		rank[n.ID] = i
	}
	var fresh, known []*graph.Node
	for _, n := range g.Nodes {
		if _, ok := rank[n.ID]; ok {
			known = append(known, n)
		} else {
			fresh = append(fresh, n)
		}
	}
	sortByRank(known, rank)

	c.g = g
	c.order = append(fresh, known...)

	if c.dragID != "" && g.Node(c.dragID) == nil {
		c.reset()
	}
	if c.linkFrom != "" && g.Node(c.linkFrom) == nil {
		c.reset()
	}
	if c.hoveredNode != "" && g.Node(c.hoveredNode) == nil {
		c.hoveredNode = ""
	}
	if c.edgeByKey(c.hoveredEdge) == nil {
		c.hoveredEdge = ""
	}
	if c.edgeByKey(c.selectedEdge) == nil {
		c.selectedEdge = ""
	}
}

func sortByRank(nodes []*graph.Node, rank map[string]int) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && rank[nodes[j].ID] < rank[nodes[j-1].ID]; j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}

// Graph returns the current graph.
func (c *Controller) Graph() *graph.Graph { return c.g }

// Nodes returns nodes in draw order, bottom first.
func (c *Controller) Nodes() []*graph.Node { return c.order }

// Transform returns the current view transform.
func (c *Controller) Transform() Transform { return c.t }

// Mode returns the active gesture mode.
func (c *Controller) Mode() Mode { return c.mode }

// State snapshots the interaction state.
func (c *Controller) State() State {
	return State{
		Mode:         c.mode,
		HoveredNode:  c.hoveredNode,
		HoveredEdge:  c.hoveredEdge,
		SelectedEdge: c.selectedEdge,
		LinkSource:   c.linkFrom,
		LinkTarget:   c.linkTo,
		LinkCursor:   c.cursor,
		LinkStatus:   c.status,
	}
}

// Cursor returns the CSS cursor name for the current state.
func (c *Controller) Cursor() string {
	switch c.mode {
	case DraggingNode, PanningCanvas:
		return "grabbing"
	case DraggingLinkHandle:
		return "crosshair"
	case AwaitingContextMenu:
		return "default"
	}
	if c.hoveredNode != "" {
		return "grab"
	}
	if c.hoveredEdge != "" {
		return "pointer"
	}
	return "default"
}

func (c *Controller) reset() {
	c.mode = Idle
	c.dragID = ""
	c.linkFrom = ""
	c.linkTo = ""
	c.status = LinkNeutral
}

// Handle applies one event and returns the effects it produced.
func (c *Controller) Handle(ev Event) []Effect {
	if c.g == nil {
		return nil
	}
	screen := ev.Screen()
	world := c.t.ScreenToWorld(screen)

	switch ev.Kind {
	case Wheel:
		c.t = c.t.ZoomAt(screen, ev.DeltaY)
		return nil
	case PointerDown:
		return c.down(ev.Button, screen, world)
	case PointerMove:
		c.move(screen, world)
		return nil
	case PointerUp:
		return c.up(world)
	case DoubleClick:
		return c.doubleClick(world)
	case MenuClosed:
		if c.mode == AwaitingContextMenu {
			c.mode = Idle
			c.selectedEdge = ""
		}
		return nil
	}
	return nil
}

func (c *Controller) down(b Button, screen, world geom.Point) []Effect {
	if c.mode == AwaitingContextMenu {
		// A press anywhere dismisses the menu and does nothing else.
		c.mode = Idle
		c.selectedEdge = ""
		return nil
	}
	if c.mode != Idle {
		return nil
	}

	if b == ButtonSecondary {
		return c.contextMenu(screen, world)
	}

	n, onHandle := c.hitNode(world)
	switch {
	case n != nil && onHandle && !n.ReadOnly():
		c.mode = DraggingLinkHandle
		c.linkFrom = n.ID
		c.linkTo = ""
		c.cursor = world
		c.status = LinkNeutral
	case n != nil:
		c.mode = DraggingNode
		c.dragID = n.ID
		c.grab = world.Sub(geom.Point{X: n.Rect.X, Y: n.Rect.Y})
		c.bringToFront(n)
	default:
		c.mode = PanningCanvas
		c.lastPan = screen
	}
	return nil
}

func (c *Controller) move(screen, world geom.Point) {
	switch c.mode {
	case DraggingNode:
		if n := c.g.Node(c.dragID); n != nil {
			n.Rect.X = world.X - c.grab.X
			n.Rect.Y = world.Y - c.grab.Y
		}
	case PanningCanvas:
		c.t = c.t.Pan(screen.X-c.lastPan.X, screen.Y-c.lastPan.Y)
		c.lastPan = screen
	case DraggingLinkHandle:
		c.cursor = world
		c.linkTo = ""
		c.status = LinkNeutral
		if target := c.dropTarget(world); target != nil {
			c.linkTo = target.ID
			c.status = LinkCreate
			src := c.g.Node(c.linkFrom)
			id, fp := linkTarget(target)
			if c.exists != nil && src != nil && c.exists(src.AnnotationID(), id, fp) {
				c.status = LinkRemove
			}
		}
	case Idle:
		c.hoveredNode, c.hoveredEdge = "", ""
		if n, _ := c.hitNode(world); n != nil {
			c.hoveredNode = n.ID
		} else if e := c.hitEdge(world); e != nil {
			c.hoveredEdge = e.Key()
		}
	}
}

func (c *Controller) up(world geom.Point) []Effect {
	var effects []Effect
	switch c.mode {
	case DraggingNode:
		if n := c.g.Node(c.dragID); n != nil {
			effects = append(effects, PersistPosition{NodeID: n.ID, Position: geom.Point{X: n.Rect.X, Y: n.Rect.Y}})
		}
	case DraggingLinkHandle:
		src := c.g.Node(c.linkFrom)
		if target := c.dropTarget(world); target != nil && src != nil {
			id, fp := linkTarget(target)
			effects = append(effects,
				ToggleLink{SourceID: src.AnnotationID(), TargetID: id, TargetFilePath: fp},
				Rebuild{})
		}
	case AwaitingContextMenu:
		// The release of the button that opened the menu.
		return nil
	}
	c.reset()
	return effects
}

func (c *Controller) doubleClick(world geom.Point) []Effect {
	if c.mode != Idle {
		return nil
	}
	n, _ := c.hitNode(world)
	if n == nil {
		return nil
	}
	switch n.Kind {
	case graph.KindDocRef:
		return []Effect{OpenDocument{Path: n.FilePath}}
	case graph.KindExternal:
		return []Effect{OpenDocument{Path: n.FilePath, AnnotationID: n.AnnotationID()}}
	default:
		return []Effect{EditNode{NodeID: n.ID}}
	}
}

func (c *Controller) contextMenu(screen, world geom.Point) []Effect {
	target := MenuTarget{Kind: MenuBackground, World: world, Screen: screen}
	if n, _ := c.hitNode(world); n != nil {
		target.Kind = MenuNode
		target.NodeID = n.ID
	} else if e := c.hitEdge(world); e != nil {
		edge := *e
		target.Kind = MenuEdge
		target.Edge = &edge
		c.selectedEdge = e.Key()
	}
	c.mode = AwaitingContextMenu
	return []Effect{ContextMenu{Target: target}}
}

// linkTarget returns what ToggleLink should receive for a drop on n.
// A document node yields a coarse link: no annotation id, only the file.
func linkTarget(n *graph.Node) (string, string) {
	if n.Kind == graph.KindDocRef {
		return "", n.FilePath
	}
	return n.AnnotationID(), n.FilePath
}

func (c *Controller) dropTarget(world geom.Point) *graph.Node {
	n, _ := c.hitNode(world)
	if n == nil || n.ID == c.linkFrom {
		return nil
	}
	return n
}

// bringToFront moves n to the top of the z-order.
func (c *Controller) bringToFront(n *graph.Node) {
	for i, m := range c.order {
		if m == n {
			c.order = append(append(c.order[:i:i], c.order[i+1:]...), n)
			return
		}
	}
}

// SetTransform replaces the view transform, e.g. when a host restores a
// saved viewport.
func (c *Controller) SetTransform(t Transform) {
	if t.Scale <= 0 {
		t.Scale = 1
	}
	c.t = t
}
