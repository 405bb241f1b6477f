// Package models defines the domain types for Marginalia.
package models

import (
	"path"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Kind discriminates the two annotation variants.
type Kind string

const (
	KindNote      Kind = "note"
	KindHighlight Kind = "highlight"
)

// Color is one of the fixed highlight palette entries.
type Color string

const (
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
	ColorPink   Color = "pink"
	ColorPurple Color = "purple"
	ColorOrange Color = "orange"
)

// DefaultColor is used whenever a color is missing or unknown.
const DefaultColor = ColorYellow

// Palette lists every accepted color in display order.
var Palette = []Color{ColorYellow, ColorGreen, ColorBlue, ColorPink, ColorPurple, ColorOrange}

// Valid reports whether c belongs to the palette.
func (c Color) Valid() bool {
	for _, p := range Palette {
		if c == p {
			return true
		}
	}
	return false
}

// OrDefault returns c, or DefaultColor when c is not a palette entry.
func (c Color) OrDefault() Color {
	if c.Valid() {
		return c
	}
	return DefaultColor
}

// Validate implements validation.Validatable.
func (c Color) Validate() error {
	return validation.Validate(string(c), validation.Required, validation.In(paletteValues()...))
}

func paletteValues() []any {
	out := make([]any, len(Palette))
	for i, c := range Palette {
		out[i] = string(c)
	}
	return out
}

// Tag is a user label attached to an annotation.
type Tag struct {
	Name  string `json:"name"`
	Color Color  `json:"color"`
}

// Annotation is a Note or a Highlight owned by exactly one document.
type Annotation struct {
	ID                  string    `json:"id"`
	Type                Kind      `json:"type"`
	Text                string    `json:"text"`
	Note                string    `json:"note,omitempty"`
	Color               Color     `json:"color"`
	Page                int       `json:"page"`
	StartOffset         *int      `json:"startOffset,omitempty"`
	EndOffset           *int      `json:"endOffset,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	Links               Links     `json:"links"`
	Tags                []Tag     `json:"tags,omitempty"`
	FilePath            string    `json:"filePath"`
	FileName            string    `json:"fileName"`
	SourceView          string    `json:"sourceView,omitempty"`
	TranslationLanguage string    `json:"translationLanguage,omitempty"`
}

// IsHighlight reports whether a is a Highlight.
func (a *Annotation) IsHighlight() bool { return a.Type == KindHighlight }

// HasOffsets reports whether both character offsets are recorded.
func (a *Annotation) HasOffsets() bool {
	return a.StartOffset != nil && a.EndOffset != nil
}

// Clone returns a deep copy so callers can hand annotations across
// component boundaries without sharing slices.
func (a *Annotation) Clone() *Annotation {
	if a == nil {
		return nil
	}
	c := *a
	if a.StartOffset != nil {
		v := *a.StartOffset
		c.StartOffset = &v
	}
	if a.EndOffset != nil {
		v := *a.EndOffset
		c.EndOffset = &v
	}
	c.Links = append(Links{}, a.Links...)
	if a.Tags != nil {
		c.Tags = append([]Tag{}, a.Tags...)
	}
	return &c
}

// Validate checks the fields that must hold for any stored annotation.
func (a *Annotation) Validate() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.ID, validation.Required),
		validation.Field(&a.Type, validation.Required, validation.In(KindNote, KindHighlight)),
		validation.Field(&a.Color),
		validation.Field(&a.FilePath, validation.Required),
	)
}

// FileNameOf returns the trailing path element used for filename fallback
// matching. Both separators are accepted because paths may originate on
// another OS.
func FileNameOf(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// NormalizeTags lowercases names, drops empties and keeps the first
// occurrence of each name.
func NormalizeTags(tags []Tag) []Tag {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]Tag, 0, len(tags))
	for _, t := range tags {
		name := strings.ToLower(strings.TrimSpace(t.Name))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, Tag{Name: name, Color: t.Color.OrDefault()})
	}
	return out
}

// Collection holds the annotations of a single document. This is also the
// per-document value of the persisted aggregate blob.
type Collection struct {
	Notes      []*Annotation `json:"notes"`
	Highlights []*Annotation `json:"highlights"`
}

// All returns notes followed by highlights.
func (c *Collection) All() []*Annotation {
	out := make([]*Annotation, 0, len(c.Notes)+len(c.Highlights))
	out = append(out, c.Notes...)
	return append(out, c.Highlights...)
}

// Find returns the annotation with id, searching both arrays.
func (c *Collection) Find(id string) *Annotation {
	for _, a := range c.Notes {
		if a.ID == id {
			return a
		}
	}
	for _, a := range c.Highlights {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// Clone deep-copies the collection.
func (c *Collection) Clone() *Collection {
	out := &Collection{
		Notes:      make([]*Annotation, len(c.Notes)),
		Highlights: make([]*Annotation, len(c.Highlights)),
	}
	for i, a := range c.Notes {
		out.Notes[i] = a.Clone()
	}
	for i, a := range c.Highlights {
		out.Highlights[i] = a.Clone()
	}
	return out
}

// Newest returns the latest CreatedAt in the collection, zero if empty.
func (c *Collection) Newest() time.Time {
	var newest time.Time
	for _, a := range c.All() {
		if a.CreatedAt.After(newest) {
			newest = a.CreatedAt
		}
	}
	return newest
}
