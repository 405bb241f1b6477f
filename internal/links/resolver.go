// Package links mutates and queries annotation links with cross-document
// awareness.
package links

import (
	"log/slog"

	"github.com/starford/marginalia/internal/annotations"
	"github.com/starford/marginalia/internal/metrics"
	"github.com/starford/marginalia/internal/models"
)

// Labels for links whose target cannot be resolved.
const (
	BrokenLabel          = "⚠ note not found"
	MissingDocumentLabel = "⚠ document not found"
)

// Result reports what ToggleLink did.
type Result string

const (
	Created Result = "created"
	Removed Result = "removed"
	NoOp    Result = "noop"
)

// Resolver owns every mutation of Annotation.Links.
type Resolver struct {
	store  *annotations.Store
	logger *slog.Logger
}

// New creates a Resolver over store. A nil logger means slog.Default().
func New(store *annotations.Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, logger: logger}
}

// targetKey normalizes the (targetID, targetFilePath) pair a caller passes.
// An omitted filePath means the source's own document.
func (r *Resolver) targetKey(targetID, targetFilePath string) models.LinkKey {
	if targetFilePath == "" {
		targetFilePath = r.store.CurrentPath()
	}
	return models.LinkKey{ID: targetID, FilePath: targetFilePath}
}

// ToggleLink removes the link from source to target if an equivalent one
// exists, otherwise appends it in canonical form. The source must belong to
// the current document. An empty targetID with a targetFilePath toggles a
// coarse reference to that document.
func (r *Resolver) ToggleLink(sourceID, targetID, targetFilePath string) Result {
	key := r.targetKey(targetID, targetFilePath)
	owner := r.store.CurrentPath()
	selfLink := sourceID == targetID && key.FilePath == owner
	if (key.Coarse() && r.sameDocument(key.FilePath, owner)) || selfLink {
		r.logger.Warn("links: invalid toggle",
			slog.String("source", sourceID), slog.String("target", targetID))
		metrics.LinkTogglesTotal.WithLabelValues(string(NoOp)).Inc()
		return NoOp
	}

	result := NoOp
	found := r.store.Mutate(sourceID, func(a *models.Annotation) bool {
		if i := a.Links.IndexOf(key, owner); i >= 0 {
			a.Links = append(a.Links[:i:i], a.Links[i+1:]...)
			result = Removed
			return true
		}
		a.Links = append(a.Links, models.NewCrossDocLink(key.ID, key.FilePath))
		result = Created
		return true
	})
	if !found {
		r.logger.Warn("links: toggle on unknown source", slog.String("source", sourceID))
	}
	metrics.LinkTogglesTotal.WithLabelValues(string(result)).Inc()
	return result
}

// RemoveLink deletes every link from source equal to the target. Removing a
// link that does not exist is a no-op.
func (r *Resolver) RemoveLink(sourceID, targetID, targetFilePath string) bool {
	key := r.targetKey(targetID, targetFilePath)
	owner := r.store.CurrentPath()
	removed := false
	r.store.Mutate(sourceID, func(a *models.Annotation) bool {
		kept := make(models.Links, 0, len(a.Links))
		for _, l := range a.Links {
			if models.Normalize(l, owner) == key {
				removed = true
				continue
			}
			kept = append(kept, l)
		}
		if removed {
			a.Links = kept
		}
		return removed
	})
	return removed
}

// LinkExists reports whether source already links to the target.
func (r *Resolver) LinkExists(sourceID, targetID, targetFilePath string) bool {
	a := r.store.GetByID(sourceID, "")
	if a == nil {
		return false
	}
	return a.Links.IndexOf(r.targetKey(targetID, targetFilePath), r.store.CurrentPath()) >= 0
}

// ResolveLinkRef normalizes ref against the document that owns it.
func (r *Resolver) ResolveLinkRef(ref models.LinkRef, owningDocPath string) models.LinkKey {
	return models.Normalize(ref, owningDocPath)
}

// Target returns the annotation ref points at, or nil. Coarse references
// have no target annotation.
func (r *Resolver) Target(ref models.LinkRef, owningDocPath string) *models.Annotation {
	key := models.Normalize(ref, owningDocPath)
	if key.Coarse() {
		return nil
	}
	return r.store.GetByID(key.ID, key.FilePath)
}

// IsBroken reports whether ref's target cannot be located. A coarse
// reference is broken only when its document is gone.
func (r *Resolver) IsBroken(ref models.LinkRef, owningDocPath string) bool {
	if key := models.Normalize(ref, owningDocPath); key.Coarse() {
		_, ok := r.store.ResolveKey(key.FilePath)
		return !ok
	}
	return r.Target(ref, owningDocPath) == nil
}
