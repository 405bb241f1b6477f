package workspace

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/starford/marginalia/internal/annotations"
	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/canvas"
	"github.com/starford/marginalia/internal/geom"
	"github.com/starford/marginalia/internal/graph"
	"github.com/starford/marginalia/internal/models"
	"github.com/starford/marginalia/internal/render"
)

// InputResult is what the host needs after feeding one event.
type InputResult struct {
	Effects []canvas.Effect `json:"-"`
	// Names mirrors Effects for JSON consumers.
	Names  []string     `json:"effects"`
	Menu   *render.Menu `json:"menu,omitempty"`
	Edit   *Fields      `json:"edit,omitempty"`
	State  canvas.State `json:"state"`
	Cursor string       `json:"cursor"`
}

// HandleInput feeds ev to the canvas controller and carries out the
// effects the core owns: link toggles, layout persistence, rebuilds and
// cross-document opens. Menus and edit requests are returned to the host.
func (s *Session) HandleInput(ev canvas.Event) InputResult {
	s.Graph()

	var res InputResult
	var opens []canvas.OpenDocument
	s.do(func() bool {
		rebuilt := false
		res.Effects = s.ctrl.Handle(ev)
		for _, eff := range res.Effects {
			res.Names = append(res.Names, eff.EffectName())
			switch e := eff.(type) {
			case canvas.ToggleLink:
				s.resolver.ToggleLink(e.SourceID, e.TargetID, e.TargetFilePath)
			case canvas.PersistPosition:
				s.layout.SetPosition(s.g.DocPath, e.NodeID, e.Position)
			case canvas.Rebuild:
				s.refresh()
				rebuilt = true
			case canvas.OpenDocument:
				opens = append(opens, e)
			case canvas.ContextMenu:
				m := render.BuildMenu(e.Target, s.g)
				res.Menu = &m
			case canvas.EditNode:
				if f, err := s.fields(e.NodeID); err == nil {
					res.Edit = &f
				}
			}
		}
		res.State = s.ctrl.State()
		res.Cursor = s.ctrl.Cursor()
		return rebuilt
	})

	for _, o := range opens {
		s.open(o.Path, o.AnnotationID)
	}
	return res
}

func (s *Session) open(path, annotationID string) {
	if s.opener == nil {
		s.logger.Info("workspace: open document requested",
			slog.String("path", path), slog.String("id", annotationID))
		return
	}
	s.opener(path, annotationID)
}

// Fields are the editable parts of a local node.
type Fields struct {
	NodeID string       `json:"nodeId"`
	Text   string       `json:"text"`
	Note   string       `json:"note"`
	Color  models.Color `json:"color"`
	Tags   []models.Tag `json:"tags"`
}

// EditableFields returns the current values for the edit dialog.
func (s *Session) EditableFields(nodeID string) (Fields, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields(nodeID)
}

func (s *Session) fields(nodeID string) (Fields, error) {
	n := s.g.Node(nodeID)
	if n == nil {
		return Fields{}, apperr.ErrNotFound
	}
	if n.ReadOnly() {
		return Fields{}, ErrReadOnly
	}
	a := n.Annotation
	return Fields{NodeID: n.ID, Text: a.Text, Note: a.Note, Color: a.Color.OrDefault(), Tags: a.Tags}, nil
}

// ApplyEdit writes the edit dialog back to the store.
func (s *Session) ApplyEdit(f Fields) (*models.Annotation, error) {
	s.mu.Lock()
	if _, err := s.fields(f.NodeID); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	patch := annotations.Patch{Text: &f.Text, Note: &f.Note}
	if f.Color != "" {
		c := f.Color
		patch.Color = &c
	}
	if f.Tags != nil {
		tags := f.Tags
		patch.Tags = &tags
	}
	a, ok := s.UpdateAnnotation(f.NodeID, patch)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return a, nil
}

// ApplyMenu performs a context menu choice. The menu is closed afterwards.
func (s *Session) ApplyMenu(target canvas.MenuTarget, item render.MenuItem) (InputResult, error) {
	var err error
	switch item.Action {
	case render.ActionCancel:
	case render.ActionEdit:
		f, ferr := s.EditableFields(target.NodeID)
		if ferr != nil {
			err = ferr
			break
		}
		res := s.HandleInput(canvas.Event{Kind: canvas.MenuClosed})
		res.Edit = &f
		return res, nil
	case render.ActionColor:
		c := item.Color
		if !c.Valid() {
			err = fmt.Errorf("workspace: color %q: %w", c, apperr.ErrInvalidInput)
			break
		}
		if _, ok := s.UpdateAnnotation(target.NodeID, annotations.Patch{Color: &c}); !ok {
			err = apperr.ErrNotFound
		}
	case render.ActionDelete:
		if !s.DeleteAnnotation(target.NodeID) {
			err = apperr.ErrNotFound
		}
	case render.ActionRemoveLink:
		err = s.removeEdge(target.Edge)
	case render.ActionOpenSource:
		err = s.openSource(target)
	case render.ActionAddNote:
		err = s.addNoteAt(target.World)
	case render.ActionLink:
		// Linking is done by dragging the node's handle; nothing to apply.
	default:
		err = fmt.Errorf("workspace: menu action %q: %w", item.Action, apperr.ErrInvalidInput)
	}
	res := s.HandleInput(canvas.Event{Kind: canvas.MenuClosed})
	return res, err
}

func (s *Session) removeEdge(e *graph.Edge) error {
	if e == nil || e.Synthetic {
		return apperr.ErrInvalidInput
	}
	s.mu.Lock()
	src, dst := s.g.Node(e.Source), s.g.Node(e.Target)
	s.mu.Unlock()
	if src == nil || dst == nil {
		return apperr.ErrNotFound
	}
	if !s.RemoveLink(src.AnnotationID(), e.LinkID, dst.FilePath) {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *Session) openSource(target canvas.MenuTarget) error {
	s.mu.Lock()
	id := target.NodeID
	if target.Edge != nil {
		id = target.Edge.Target
	}
	n := s.g.Node(id)
	s.mu.Unlock()
	if n == nil || !n.ReadOnly() {
		return apperr.ErrInvalidInput
	}
	s.open(n.FilePath, n.AnnotationID())
	return nil
}

func (s *Session) addNoteAt(world geom.Point) error {
	a, err := s.AddNote("", 0)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if n := s.g.Node(a.ID); n != nil {
		n.Rect.X, n.Rect.Y = world.X, world.Y
		s.layout.SetPosition(s.g.DocPath, a.ID, world)
	}
	s.mu.Unlock()
	return nil
}

// fitPadding is the screen margin kept around the graph by fit.
const fitPadding = 40.0

func fit(g *graph.Graph, width, height float64) canvas.Transform {
	if g == nil || len(g.Nodes) == 0 || width <= 0 || height <= 0 {
		return canvas.Identity()
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, n := range g.Nodes {
		minX = math.Min(minX, n.Rect.X)
		minY = math.Min(minY, n.Rect.Y)
		maxX = math.Max(maxX, n.Rect.X+n.Rect.W)
		maxY = math.Max(maxY, n.Rect.Y+n.Rect.H)
	}
	w, h := maxX-minX, maxY-minY
	scale := math.Min((width-2*fitPadding)/w, (height-2*fitPadding)/h)
	scale = math.Max(canvas.MinScale, math.Min(scale, 1))
	return canvas.Transform{
		OffsetX: (width-w*scale)/2 - minX*scale,
		OffsetY: (height-h*scale)/2 - minY*scale,
		Scale:   scale,
	}
}
