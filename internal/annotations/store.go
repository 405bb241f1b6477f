// Package annotations implements the per-document Note/Highlight store.
//
// All documents live in one aggregate blob under StorageKey, a JSON object
// keyed by document path whose values are {notes, highlights}. The store
// keeps the decoded map in memory and writes it back synchronously after
// every mutation, so reads always observe the latest write.
package annotations

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/starford/marginalia/internal/checksum"
	"github.com/starford/marginalia/internal/metrics"
	"github.com/starford/marginalia/internal/models"
	"github.com/starford/marginalia/internal/storage"
)

// StorageKey is the single key holding every document's annotations.
const StorageKey = "annotations"

// ChangeKind names what happened to the current document's collection.
type ChangeKind string

const (
	ChangeLoaded   ChangeKind = "loaded"
	ChangeCreated  ChangeKind = "created"
	ChangeUpdated  ChangeKind = "updated"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeReloaded ChangeKind = "reloaded"
)

// Change is delivered to listeners registered with OnChange.
type Change struct {
	Kind ChangeKind
	Path string
	ID   string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for non-fatal failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides time.Now for createdAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the id source.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// Store owns the annotations of every known document and tracks which one
// is currently open.
type Store struct {
	backend storage.Backend
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string

	docs      map[string]*models.Collection
	current   string
	degraded  bool
	lastBlob  string
	listeners []func(Change)
}

// New creates a store over backend and loads the aggregate blob. Read or
// parse failures yield an empty store.
func New(backend storage.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  slog.Default(),
		now:     time.Now,
		newID:   timeOrderedID,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.docs, s.lastBlob = s.readAll()
	return s
}

func timeOrderedID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// readAll decodes the aggregate blob. It never fails: problems are logged
// and an empty map is returned.
func (s *Store) readAll() (map[string]*models.Collection, string) {
	docs := make(map[string]*models.Collection)
	raw, ok, err := s.backend.Get(StorageKey)
	if err != nil {
		s.logger.Warn("annotations: read failed", slog.String("error", err.Error()))
		return docs, ""
	}
	if !ok || raw == "" {
		return docs, ""
	}
	if err := json.Unmarshal([]byte(raw), &docs); err != nil {
		s.logger.Warn("annotations: corrupt store, starting empty", slog.String("error", err.Error()))
		return make(map[string]*models.Collection), ""
	}
	for path, c := range docs {
		if c == nil {
			docs[path] = &models.Collection{}
			continue
		}
		migrate(c)
	}
	return docs, checksum.Sum([]byte(raw))
}

// migrate fills fields that older blobs may lack.
func migrate(c *models.Collection) {
	if c.Notes == nil {
		c.Notes = []*models.Annotation{}
	}
	if c.Highlights == nil {
		c.Highlights = []*models.Annotation{}
	}
	for _, a := range c.All() {
		if a.Links == nil {
			a.Links = models.Links{}
		}
		a.Color = a.Color.OrDefault()
	}
}

// OnChange registers fn to be called whenever the current document's
// collection changes.
func (s *Store) OnChange(fn func(Change)) {
	s.listeners = append(s.listeners, fn)
}

func (s *Store) emit(kind ChangeKind, id string) {
	ch := Change{Kind: kind, Path: s.current, ID: id}
	for _, fn := range s.listeners {
		fn(ch)
	}
}

// CurrentPath returns the path of the open document, empty if none.
func (s *Store) CurrentPath() string { return s.current }

// Degraded reports whether persistence has been abandoned for this session.
func (s *Store) Degraded() bool { return s.degraded }

// ResolveKey maps a document path to the stored key holding its
// annotations: the exact path, else the newest stored path with the same
// trailing filename.
func (s *Store) ResolveKey(path string) (string, bool) {
	if _, ok := s.docs[path]; ok {
		return path, true
	}
	name := models.FileNameOf(path)
	if name == "" {
		return "", false
	}
	var best string
	var bestTime time.Time
	found := false
	for _, key := range s.sortedKeys() {
		if models.FileNameOf(key) != name {
			continue
		}
		t := s.docs[key].Newest()
		if !found || t.After(bestTime) {
			best, bestTime, found = key, t, true
		}
	}
	return best, found
}

func (s *Store) sortedKeys() []string {
	keys := make([]string, 0, len(s.docs))
	for k := range s.docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Documents lists every stored document path in ascending order.
func (s *Store) Documents() []string { return s.sortedKeys() }

// LoadForDocument makes path the current document and returns a copy of
// its annotations. A document found only by filename has its collection
// copied under the new path, so later saves land on the current path.
func (s *Store) LoadForDocument(path string) *models.Collection {
	s.current = path
	if _, ok := s.docs[path]; !ok {
		if key, found := s.ResolveKey(path); found {
			s.logger.Debug("annotations: filename fallback",
				slog.String("path", path), slog.String("matched", key))
			s.docs[path] = s.docs[key].Clone()
		} else {
			s.docs[path] = &models.Collection{Notes: []*models.Annotation{}, Highlights: []*models.Annotation{}}
		}
	}
	migrate(s.docs[path])
	s.emit(ChangeLoaded, "")
	return s.docs[path].Clone()
}

// GetForDocument returns a copy of path's annotations without changing the
// current document.
func (s *Store) GetForDocument(path string) *models.Collection {
	key, ok := s.ResolveKey(path)
	if !ok {
		return &models.Collection{Notes: []*models.Annotation{}, Highlights: []*models.Annotation{}}
	}
	return s.docs[key].Clone()
}

// Current returns a copy of the open document's annotations.
func (s *Store) Current() *models.Collection {
	c, ok := s.docs[s.current]
	if !ok {
		return &models.Collection{Notes: []*models.Annotation{}, Highlights: []*models.Annotation{}}
	}
	return c.Clone()
}

// Each calls fn for every stored document in path order. fn must not
// mutate the collection.
func (s *Store) Each(fn func(path string, c *models.Collection)) {
	for _, k := range s.sortedKeys() {
		fn(k, s.docs[k])
	}
}

// GetByID finds an annotation. When filePath names another document the
// lookup is read-only and uses filename fallback; otherwise the current
// document is searched. The result is a copy, nil when not found.
func (s *Store) GetByID(id, filePath string) *models.Annotation {
	if filePath != "" && filePath != s.current {
		key, ok := s.ResolveKey(filePath)
		if !ok {
			return nil
		}
		return s.docs[key].Find(id).Clone()
	}
	c, ok := s.docs[s.current]
	if !ok {
		return nil
	}
	return c.Find(id).Clone()
}

// HighlightInput carries the fields of a new Highlight.
type HighlightInput struct {
	Text                string
	Note                string
	Color               models.Color
	Page                int
	StartOffset         *int
	EndOffset           *int
	SourceView          string
	TranslationLanguage string
}

// ErrNoDocument is returned by creation when no document is open.
var ErrNoDocument = errors.New("annotations: no document open")

// AddHighlight creates a Highlight in the current document.
func (s *Store) AddHighlight(in HighlightInput) (*models.Annotation, error) {
	c, err := s.currentCollection()
	if err != nil {
		return nil, err
	}
	if in.Text == "" {
		return nil, fmt.Errorf("annotations: highlight text is empty")
	}
	a := s.newAnnotation(models.KindHighlight, in.Text, in.Page)
	a.Note = in.Note
	a.Color = in.Color.OrDefault()
	a.StartOffset, a.EndOffset = sanitizeOffsets(in.StartOffset, in.EndOffset)
	a.SourceView = in.SourceView
	a.TranslationLanguage = in.TranslationLanguage
	c.Highlights = append(c.Highlights, a)

	s.Save()
	s.emit(ChangeCreated, a.ID)
	return a.Clone(), nil
}

// AddNote creates a Note in the current document.
func (s *Store) AddNote(text string, page int) (*models.Annotation, error) {
	c, err := s.currentCollection()
	if err != nil {
		return nil, err
	}
	a := s.newAnnotation(models.KindNote, text, page)
	c.Notes = append(c.Notes, a)

	s.Save()
	s.emit(ChangeCreated, a.ID)
	return a.Clone(), nil
}

func (s *Store) currentCollection() (*models.Collection, error) {
	if s.current == "" {
		return nil, ErrNoDocument
	}
	c, ok := s.docs[s.current]
	if !ok {
		c = &models.Collection{Notes: []*models.Annotation{}, Highlights: []*models.Annotation{}}
		s.docs[s.current] = c
	}
	return c, nil
}

func (s *Store) newAnnotation(kind models.Kind, text string, page int) *models.Annotation {
	c := s.docs[s.current]
	id := s.newID()
	for c.Find(id) != nil {
		id = s.newID()
	}
	return &models.Annotation{
		ID:        id,
		Type:      kind,
		Text:      text,
		Color:     models.DefaultColor,
		Page:      page,
		CreatedAt: s.now(),
		Links:     models.Links{},
		FilePath:  s.current,
		FileName:  models.FileNameOf(s.current),
	}
}

// sanitizeOffsets keeps offsets only when both are present and ordered.
func sanitizeOffsets(start, end *int) (*int, *int) {
	if start == nil || end == nil || *start < 0 || *end < *start {
		return nil, nil
	}
	st, en := *start, *end
	return &st, &en
}

// DeleteAnnotation removes id from the current document. Links elsewhere
// that point at it are left alone and become broken.
func (s *Store) DeleteAnnotation(id string) bool {
	c, ok := s.docs[s.current]
	if !ok {
		return false
	}
	removed := false
	c.Notes, removed = without(c.Notes, id)
	var hl bool
	c.Highlights, hl = without(c.Highlights, id)
	if !removed && !hl {
		s.logger.Debug("annotations: delete of unknown id", slog.String("id", id))
		return false
	}
	s.Save()
	s.emit(ChangeDeleted, id)
	return true
}

func without(list []*models.Annotation, id string) ([]*models.Annotation, bool) {
	out := list[:0]
	found := false
	for _, a := range list {
		if a.ID == id {
			found = true
			continue
		}
		out = append(out, a)
	}
	return out, found
}

// Patch lists the editable fields; nil fields are left untouched.
type Patch struct {
	Text  *string       `json:"text,omitempty"`
	Note  *string       `json:"note,omitempty"`
	Color *models.Color `json:"color,omitempty"`
	Tags  *[]models.Tag `json:"tags,omitempty"`
}

// UpdateAnnotation merges patch into the annotation and persists.
func (s *Store) UpdateAnnotation(id string, patch Patch) (*models.Annotation, bool) {
	var out *models.Annotation
	ok := s.Mutate(id, func(a *models.Annotation) bool {
		if patch.Text != nil {
			a.Text = *patch.Text
		}
		if patch.Note != nil {
			a.Note = *patch.Note
		}
		if patch.Color != nil {
			a.Color = patch.Color.OrDefault()
		}
		if patch.Tags != nil {
			a.Tags = models.NormalizeTags(*patch.Tags)
		}
		out = a.Clone()
		return true
	})
	return out, ok
}

// Mutate applies fn to the live annotation id of the current document.
// When fn reports a change the store is saved and listeners notified.
func (s *Store) Mutate(id string, fn func(a *models.Annotation) bool) bool {
	c, ok := s.docs[s.current]
	if !ok {
		return false
	}
	a := c.Find(id)
	if a == nil {
		s.logger.Debug("annotations: mutate of unknown id", slog.String("id", id))
		return false
	}
	if !fn(a) {
		return true
	}
	s.Save()
	s.emit(ChangeUpdated, id)
	return true
}

// Reload re-reads the aggregate blob after an external change. It is a
// no-op in degraded mode, where memory is the only copy, and when the blob
// matches what this store last wrote.
func (s *Store) Reload() bool {
	if s.degraded {
		return false
	}
	raw, ok, err := s.backend.Get(StorageKey)
	if err != nil || !ok {
		return false
	}
	if checksum.Sum([]byte(raw)) == s.lastBlob {
		return false
	}
	docs, sum := s.readAll()
	s.docs, s.lastBlob = docs, sum
	if s.current != "" {
		if _, ok := s.docs[s.current]; !ok {
			s.docs[s.current] = &models.Collection{Notes: []*models.Annotation{}, Highlights: []*models.Annotation{}}
		}
	}
	s.emit(ChangeReloaded, "")
	return true
}

// Save writes every document back under StorageKey. On quota pressure the
// oldest other documents are evicted and the write retried once. If that
// fails too, the store stops persisting for the rest of the session.
func (s *Store) Save() {
	if s.degraded {
		return
	}
	if err := s.write(); err == nil {
		metrics.StoreSavesTotal.WithLabelValues("ok").Inc()
		return
	} else if !errors.Is(err, storage.ErrQuotaExceeded) {
		s.fail(err)
		return
	}

	evicted := s.evictOldest()
	if evicted == 0 {
		s.fail(storage.ErrQuotaExceeded)
		return
	}
	if err := s.write(); err != nil {
		s.fail(err)
		return
	}
	metrics.StoreSavesTotal.WithLabelValues("evicted_retry_ok").Inc()
}

func (s *Store) write() error {
	data, err := json.Marshal(s.docs)
	if err != nil {
		return fmt.Errorf("annotations: encode: %w", err)
	}
	if err := s.backend.Set(StorageKey, string(data)); err != nil {
		return err
	}
	s.lastBlob = checksum.Sum(data)
	return nil
}

func (s *Store) fail(err error) {
	s.degraded = true
	metrics.StoreSavesTotal.WithLabelValues("dropped").Inc()
	s.logger.Warn("annotations: save failed, continuing in memory only",
		slog.String("error", err.Error()))
}

// evictOldest drops the older half of the non-current documents, ranked by
// their newest annotation, and returns how many were removed.
func (s *Store) evictOldest() int {
	type entry struct {
		key    string
		newest time.Time
	}
	var candidates []entry
	for _, k := range s.sortedKeys() {
		if k == s.current {
			continue
		}
		candidates = append(candidates, entry{key: k, newest: s.docs[k].Newest()})
	}
	if len(candidates) == 0 {
		return 0
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].newest.Before(candidates[j].newest)
	})
	n := (len(candidates) + 1) / 2
	for _, e := range candidates[:n] {
		delete(s.docs, e.key)
		s.logger.Info("annotations: evicted document", slog.String("path", e.key))
	}
	metrics.StoreEvictionsTotal.Add(float64(n))
	return n
}
