package annotations

import (
	"sort"
	"strings"

	"github.com/starford/marginalia/internal/models"
)

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Kind       models.Kind
	Color      models.Color
	Tag        string
	SourceView string
}

func (f Filter) match(a *models.Annotation) bool {
	if f.Kind != "" && a.Type != f.Kind {
		return false
	}
	if f.Color != "" && a.Color != f.Color {
		return false
	}
	if f.SourceView != "" && a.SourceView != f.SourceView {
		return false
	}
	if f.Tag != "" {
		want := strings.ToLower(f.Tag)
		for _, t := range a.Tags {
			if t.Name == want {
				return true
			}
		}
		return false
	}
	return true
}

// List returns copies of path's annotations matching f, newest first.
// An empty path means the current document.
func (s *Store) List(path string, f Filter) []*models.Annotation {
	var c *models.Collection
	if path == "" || path == s.current {
		c = s.Current()
	} else {
		c = s.GetForDocument(path)
	}
	out := make([]*models.Annotation, 0, len(c.Notes)+len(c.Highlights))
	for _, a := range c.All() {
		if f.match(a) {
			out = append(out, a)
		}
	}
	SortNewestFirst(out)
	return out
}

// SortNewestFirst orders by createdAt descending, breaking ties by id.
func SortNewestFirst(list []*models.Annotation) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// AddTag attaches a tag to an annotation of the current document. Adding a
// name that is already present (case-insensitively) is a no-op.
func (s *Store) AddTag(id, name string, color models.Color) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	return s.Mutate(id, func(a *models.Annotation) bool {
		for _, t := range a.Tags {
			if t.Name == name {
				return false
			}
		}
		a.Tags = append(a.Tags, models.Tag{Name: name, Color: color.OrDefault()})
		return true
	})
}

// RemoveTag detaches a tag by name.
func (s *Store) RemoveTag(id, name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	return s.Mutate(id, func(a *models.Annotation) bool {
		for i, t := range a.Tags {
			if t.Name == name {
				a.Tags = append(a.Tags[:i], a.Tags[i+1:]...)
				return true
			}
		}
		return false
	})
}
