package graph

import (
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/starford/marginalia/internal/geom"
	"github.com/starford/marginalia/internal/storage"
)

// LegacyLayoutKey held a single layout shared by every document.
const LegacyLayoutKey = "layout"

// LayoutKey is the per-document layout key.
func LayoutKey(docPath string) string { return "layout:" + docPath }

// Position is one persisted node position.
type Position struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// LayoutStore persists node positions per document.
type LayoutStore struct {
	backend storage.Backend
	logger  *slog.Logger
}

// NewLayoutStore creates a LayoutStore. A nil logger means slog.Default().
func NewLayoutStore(b storage.Backend, logger *slog.Logger) *LayoutStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LayoutStore{backend: b, logger: logger}
}

// Load returns the saved positions for docPath, falling back to the legacy
// global layout when the document has none. Failures yield an empty map.
func (l *LayoutStore) Load(docPath string) map[string]geom.Point {
	out := make(map[string]geom.Point)
	for _, key := range []string{LayoutKey(docPath), LegacyLayoutKey} {
		raw, ok, err := l.backend.Get(key)
		if err != nil {
			l.logger.Warn("layout: read failed", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		if !ok {
			continue
		}
		var list []Position
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			l.logger.Warn("layout: corrupt layout ignored", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		for _, p := range list {
			if p.ID != "" {
				out[p.ID] = geom.Point{X: p.X, Y: p.Y}
			}
		}
		return out
	}
	return out
}

// Save replaces the layout of docPath.
func (l *LayoutStore) Save(docPath string, positions map[string]geom.Point) {
	list := make([]Position, 0, len(positions))
	for id, p := range positions {
		list = append(list, Position{ID: id, X: p.X, Y: p.Y})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	data, err := json.Marshal(list)
	if err != nil {
		l.logger.Warn("layout: encode failed", slog.String("error", err.Error()))
		return
	}
	if err := l.backend.Set(LayoutKey(docPath), string(data)); err != nil {
		l.logger.Warn("layout: save failed", slog.String("path", docPath), slog.String("error", err.Error()))
	}
}

// SetPosition records one node's position, keeping the others.
func (l *LayoutStore) SetPosition(docPath, id string, p geom.Point) {
	positions := l.Load(docPath)
	positions[id] = p
	l.Save(docPath, positions)
}
