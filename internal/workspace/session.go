// Package workspace wires the annotation store, link resolver, graph
// builder, canvas controller and renderer into one session object. All
// access is serialized by the session, so HTTP handlers, MCP tools and the
// storage watcher observe one logical thread.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/starford/marginalia/internal/annotations"
	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/canvas"
	"github.com/starford/marginalia/internal/graph"
	"github.com/starford/marginalia/internal/index"
	"github.com/starford/marginalia/internal/links"
	"github.com/starford/marginalia/internal/models"
	"github.com/starford/marginalia/internal/render"
	"github.com/starford/marginalia/internal/storage"
	"github.com/starford/marginalia/internal/textsource"
)

// ErrReadOnly is returned when editing a node that belongs to another
// document.
var ErrReadOnly = errors.New("workspace: node is read-only")

// TextProvider supplies extracted document text.
type TextProvider interface {
	GetFullText(path string) (textsource.Text, error)
}

// Opener is called when the user asks to open another document.
type Opener func(path, annotationID string)

// Session is the explicit context object for one application session.
type Session struct {
	mu sync.Mutex

	store    *annotations.Store
	resolver *links.Resolver
	layout   *graph.LayoutStore
	builder  *graph.Builder
	ctrl     *canvas.Controller
	text     TextProvider
	opener   Opener
	logger   *slog.Logger

	// indexMu orders index syncs; it is taken before mu, never after.
	indexMu sync.Mutex
	index   index.AnnotationIndex

	g       *graph.Graph
	pending []annotations.Change

	changeListeners []func(annotations.Change)
	graphListeners  []func(*graph.Graph)
}

type settings struct {
	logger    *slog.Logger
	text      TextProvider
	opener    Opener
	sizing    graph.Sizing
	threshold float64
	storeOpts []annotations.Option
	index     index.AnnotationIndex
}

// Option configures a Session.
type Option func(*settings)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option { return func(s *settings) { s.logger = l } }

// WithTextProvider sets where highlight pages are computed from.
func WithTextProvider(p TextProvider) Option { return func(s *settings) { s.text = p } }

// WithOpener sets the cross-document open callback.
func WithOpener(o Opener) Option { return func(s *settings) { s.opener = o } }

// WithSizing overrides node sizing.
func WithSizing(z graph.Sizing) Option { return func(s *settings) { s.sizing = z } }

// WithEdgeHitThreshold overrides the edge hover distance.
func WithEdgeHitThreshold(d float64) Option { return func(s *settings) { s.threshold = d } }

// WithSearchIndex keeps idx in step with stored annotations and serves
// Search from it.
func WithSearchIndex(idx index.AnnotationIndex) Option {
	return func(s *settings) { s.index = idx }
}

// WithStoreOptions passes options through to the annotation store.
func WithStoreOptions(opts ...annotations.Option) Option {
	return func(s *settings) { s.storeOpts = append(s.storeOpts, opts...) }
}

// New builds a session over backend. Nothing is open until Open is called.
func New(backend storage.Backend, opts ...Option) *Session {
	cfg := settings{logger: slog.Default(), sizing: graph.DefaultSizing}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.text == nil {
		cfg.text = textsource.NewProvider(cfg.logger)
	}

	store := annotations.New(backend, append([]annotations.Option{annotations.WithLogger(cfg.logger)}, cfg.storeOpts...)...)
	resolver := links.New(store, cfg.logger)
	layout := graph.NewLayoutStore(backend, cfg.logger)

	s := &Session{
		store:    store,
		resolver: resolver,
		layout:   layout,
		builder:  graph.NewBuilder(store, layout, cfg.sizing, cfg.logger),
		ctrl:     canvas.New(resolver.LinkExists, canvas.WithEdgeHitThreshold(cfg.threshold)),
		text:     cfg.text,
		opener:   cfg.opener,
		logger:   cfg.logger,
		index:    cfg.index,
	}
	store.OnChange(func(c annotations.Change) { s.pending = append(s.pending, c) })
	s.syncIndex()
	return s
}

// OnAnnotationsChanged registers fn for changes to the current document's
// annotations. Listeners run after the session lock is released and may
// call back into the session.
func (s *Session) OnAnnotationsChanged(fn func(annotations.Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changeListeners = append(s.changeListeners, fn)
}

// OnGraphUpdated registers fn for every rebuilt graph.
func (s *Session) OnGraphUpdated(fn func(*graph.Graph)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graphListeners = append(s.graphListeners, fn)
}

// do runs fn under the lock, then dispatches queued notifications.
func (s *Session) do(fn func() bool) {
	s.mu.Lock()
	rebuilt := fn()
	changes := s.pending
	s.pending = nil
	g := s.g
	cl := append([]func(annotations.Change){}, s.changeListeners...)
	gl := append([]func(*graph.Graph){}, s.graphListeners...)
	s.mu.Unlock()

	if len(changes) > 0 {
		s.syncIndex()
	}
	for _, c := range changes {
		for _, fn := range cl {
			fn(c)
		}
	}
	if rebuilt {
		for _, fn := range gl {
			fn(g)
		}
	}
}

// refresh rebuilds the graph; the caller holds the lock.
func (s *Session) refresh() {
	s.g = s.builder.Build(s.g)
	s.ctrl.SetGraph(s.g)
}

// Open makes path the current document and rebuilds the graph.
func (s *Session) Open(path string) *models.Collection {
	var c *models.Collection
	s.do(func() bool {
		c = s.store.LoadForDocument(path)
		s.refresh()
		return true
	})
	return c
}

// CurrentPath returns the open document.
func (s *Session) CurrentPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.CurrentPath()
}

// RefreshGraph rebuilds nodes and edges from the store. Calling it twice
// without a mutation in between yields the same graph.
func (s *Session) RefreshGraph() *graph.Graph {
	var g *graph.Graph
	s.do(func() bool {
		s.refresh()
		g = s.g
		return true
	})
	return g
}

// Graph returns the last built graph, building it on first use.
func (s *Session) Graph() *graph.Graph {
	s.mu.Lock()
	g := s.g
	fresh := g != nil && g.DocPath == s.store.CurrentPath()
	s.mu.Unlock()
	if fresh {
		return g
	}
	return s.RefreshGraph()
}

// Reload re-reads the backing store after an external change.
func (s *Session) Reload() bool {
	var changed bool
	s.do(func() bool {
		changed = s.store.Reload()
		if changed {
			s.refresh()
		}
		return changed
	})
	return changed
}

// Degraded reports whether persistence has been given up for the session.
func (s *Session) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Degraded()
}

// AddNote creates a note in the current document.
func (s *Session) AddNote(text string, page int) (*models.Annotation, error) {
	var a *models.Annotation
	var err error
	s.do(func() bool {
		a, err = s.store.AddNote(text, page)
		if err != nil {
			return false
		}
		s.refresh()
		return true
	})
	return a, err
}

// AddHighlight creates a highlight in the current document. When offsets
// are given the page is derived from them; otherwise the text is located
// best-effort and a miss keeps the given page.
func (s *Session) AddHighlight(in annotations.HighlightInput) (*models.Annotation, error) {
	var a *models.Annotation
	var err error
	s.do(func() bool {
		if p, ok := s.pageFor(s.store.CurrentPath(), in); ok {
			in.Page = p
		}
		a, err = s.store.AddHighlight(in)
		if err != nil {
			return false
		}
		s.refresh()
		return true
	})
	return a, err
}

func (s *Session) pageFor(path string, in annotations.HighlightInput) (int, bool) {
	if path == "" || s.text == nil {
		return 0, false
	}
	txt, err := s.text.GetFullText(path)
	if err != nil {
		s.logger.Debug("workspace: no text for page assignment",
			slog.String("path", path), slog.String("error", err.Error()))
		return 0, false
	}
	probe := &models.Annotation{Text: in.Text, StartOffset: in.StartOffset, EndOffset: in.EndOffset}
	loc, ok := txt.Locate(probe)
	if !ok {
		return 0, false
	}
	return loc.Page, true
}

// Locate reports where an annotation of the current document sits in its
// text.
func (s *Session) Locate(id string) (textsource.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.store.CurrentPath()
	a := s.store.GetByID(id, path)
	if a == nil {
		return textsource.Location{}, apperr.ErrNotFound
	}
	txt, err := s.text.GetFullText(path)
	if err != nil {
		return textsource.Location{}, err
	}
	loc, ok := txt.Locate(a)
	if !ok {
		return textsource.Location{}, fmt.Errorf("workspace: %q not found in text: %w", id, apperr.ErrNotFound)
	}
	return loc, nil
}

// UpdateAnnotation applies patch to a current-document annotation.
func (s *Session) UpdateAnnotation(id string, patch annotations.Patch) (*models.Annotation, bool) {
	var a *models.Annotation
	var ok bool
	s.do(func() bool {
		a, ok = s.store.UpdateAnnotation(id, patch)
		if ok {
			s.refresh()
		}
		return ok
	})
	return a, ok
}

// DeleteAnnotation removes a current-document annotation. Links pointing
// at it become broken rather than being removed.
func (s *Session) DeleteAnnotation(id string) bool {
	var ok bool
	s.do(func() bool {
		ok = s.store.DeleteAnnotation(id)
		if ok {
			s.refresh()
		}
		return ok
	})
	return ok
}

// AddTag labels an annotation of the current document.
func (s *Session) AddTag(id, name string, color models.Color) bool {
	var ok bool
	s.do(func() bool {
		ok = s.store.AddTag(id, name, color)
		return false
	})
	return ok
}

// RemoveTag drops a label.
func (s *Session) RemoveTag(id, name string) bool {
	var ok bool
	s.do(func() bool {
		ok = s.store.RemoveTag(id, name)
		return false
	})
	return ok
}

// ToggleLink creates or removes source → target and rebuilds the graph.
func (s *Session) ToggleLink(sourceID, targetID, targetFilePath string) links.Result {
	var res links.Result
	s.do(func() bool {
		res = s.resolver.ToggleLink(sourceID, targetID, targetFilePath)
		if res == links.NoOp {
			return false
		}
		s.refresh()
		return true
	})
	return res
}

// RemoveLink deletes source → target if present.
func (s *Session) RemoveLink(sourceID, targetID, targetFilePath string) bool {
	var ok bool
	s.do(func() bool {
		ok = s.resolver.RemoveLink(sourceID, targetID, targetFilePath)
		if ok {
			s.refresh()
		}
		return ok
	})
	return ok
}

// Get returns an annotation with its link views.
func (s *Session) Get(id, filePath string) (*models.Annotation, []links.View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.store.GetByID(id, filePath)
	if a == nil {
		return nil, nil, false
	}
	return a, s.resolver.Views(a), true
}

// List returns annotations of path (current when empty), newest first.
func (s *Session) List(path string, f annotations.Filter) []*models.Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.List(path, f)
}

// Documents lists every stored document path.
func (s *Session) Documents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Documents()
}

// Backlinks lists annotations linking to (id, path).
func (s *Session) Backlinks(id, path string) []*models.Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolver.Backlinks(id, path)
}

// BrokenLinks lists every unresolvable link in the store.
func (s *Session) BrokenLinks() []links.BrokenLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolver.Broken()
}

// Render draws the current graph into a width×height viewport.
func (s *Session) Render(width, height float64) []render.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return render.Render(render.Frame{
		Graph:     s.g,
		Nodes:     s.ctrl.Nodes(),
		Transform: s.ctrl.Transform(),
		State:     s.ctrl.State(),
		Width:     width,
		Height:    height,
	})
}

// RenderPNG writes the current view as a PNG image.
func (s *Session) RenderPNG(w io.Writer, width, height int) error {
	s.Graph()
	return render.WritePNG(w, s.Render(float64(width), float64(height)), width, height)
}

// FitTransform centers the graph in a width×height viewport, zoomed out
// as needed but never in past 1.
func (s *Session) FitTransform(width, height float64) canvas.Transform {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := fit(s.g, width, height)
	s.ctrl.SetTransform(t)
	return t
}

// Snapshot returns a copy of the current graph that may be read without
// holding the session.
func (s *Session) Snapshot() *graph.Graph {
	s.Graph()
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes := make([]*graph.Node, len(s.g.Nodes))
	for i, n := range s.g.Nodes {
		c := *n
		nodes[i] = &c
	}
	return graph.New(s.g.DocPath, nodes, append([]graph.Edge(nil), s.g.Edges...))
}

// Text returns the extracted text of the document at path.
func (s *Session) Text(path string) (textsource.Text, error) {
	if s.text == nil {
		return textsource.Text{}, textsource.ErrUnsupported
	}
	return s.text.GetFullText(path)
}
