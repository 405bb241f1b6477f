package links

import (
	"github.com/starford/marginalia/internal/annotations"
	"github.com/starford/marginalia/internal/models"
)

// View is one outgoing link as shown in the annotation list.
type View struct {
	Ref    models.LinkRef     `json:"-"`
	Key    models.LinkKey     `json:"-"`
	ID     string             `json:"id"`
	Path   string             `json:"filePath"`
	Name   string             `json:"fileName"`
	Target *models.Annotation `json:"target,omitempty"`
	Broken bool               `json:"broken"`
	Label  string             `json:"label"`
	// External is set when the target lives in another document.
	External bool `json:"external"`
}

const labelRunes = 60

// Views resolves each link of a in stored order. Unresolvable targets,
// same-document ones included, are returned with Broken set. A coarse
// reference is labelled with its document name.
func (r *Resolver) Views(a *models.Annotation) []View {
	out := make([]View, 0, len(a.Links))
	for _, l := range a.Links {
		key := models.Normalize(l, a.FilePath)
		v := View{
			Ref:      l,
			Key:      key,
			ID:       key.ID,
			Path:     key.FilePath,
			Name:     models.FileNameOf(key.FilePath),
			External: !r.sameDocument(key.FilePath, a.FilePath),
		}
		switch {
		case key.Coarse():
			v.Broken = r.IsBroken(l, a.FilePath)
			v.Label = v.Name
			if v.Broken {
				v.Label = MissingDocumentLabel
			}
		default:
			if t := r.store.GetByID(key.ID, key.FilePath); t != nil {
				v.Target = t
				v.Label = Excerpt(t.Text, labelRunes)
			} else {
				v.Broken = true
				v.Label = BrokenLabel
			}
		}
		out = append(out, v)
	}
	return out
}

// sameDocument compares two paths through the store's key resolution so a
// moved document still counts as itself.
func (r *Resolver) sameDocument(a, b string) bool {
	if a == b {
		return true
	}
	ka, okA := r.store.ResolveKey(a)
	kb, okB := r.store.ResolveKey(b)
	return okA && okB && ka == kb
}

// Backlinks returns every stored annotation, in any document, with a link
// to (id, path). Results are newest first.
func (r *Resolver) Backlinks(id, path string) []*models.Annotation {
	var out []*models.Annotation
	r.store.Each(func(owner string, c *models.Collection) {
		for _, a := range c.All() {
			for _, l := range a.Links {
				key := models.Normalize(l, owner)
				if key.ID == id && r.sameDocument(key.FilePath, path) {
					out = append(out, a.Clone())
					break
				}
			}
		}
	})
	annotations.SortNewestFirst(out)
	return out
}

// Broken lists every link in every stored document whose target is gone.
func (r *Resolver) Broken() []BrokenLink {
	var out []BrokenLink
	r.store.Each(func(owner string, c *models.Collection) {
		for _, a := range c.All() {
			for _, l := range a.Links {
				if r.IsBroken(l, owner) {
					out = append(out, BrokenLink{Owner: owner, SourceID: a.ID, Key: models.Normalize(l, owner)})
				}
			}
		}
	})
	return out
}

// BrokenLink identifies one dangling link.
type BrokenLink struct {
	Owner    string
	SourceID string
	Key      models.LinkKey
}

// Excerpt shortens s to at most n runes, appending an ellipsis when cut.
func Excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
