// Package textsource extracts the full plain text of a document together
// with its page or section boundaries. Offsets are rune indexes into
// Text.Content, the same unit annotations store.
package textsource

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/starford/marginalia/internal/models"
)

// Boundary marks where a page or section starts.
type Boundary struct {
	Page  int    `json:"page"`
	Start int    `json:"start"`
	Label string `json:"label,omitempty"`
}

// Text is a document's extracted text. Boundaries are sorted by Start and
// the first one starts at 0.
type Text struct {
	Content    string     `json:"content"`
	Boundaries []Boundary `json:"boundaries"`
}

// Len is the length of Content in runes.
func (t Text) Len() int { return utf8.RuneCountInString(t.Content) }

// PageForOffset returns the page containing offset. Offsets past either
// end clamp to the first or last page; documents without boundaries are
// a single page 1.
func (t Text) PageForOffset(offset int) int {
	if len(t.Boundaries) == 0 {
		return 1
	}
	i := sort.Search(len(t.Boundaries), func(i int) bool { return t.Boundaries[i].Start > offset })
	if i == 0 {
		return t.Boundaries[0].Page
	}
	return t.Boundaries[i-1].Page
}

// Slice returns Content[start:end] in runes, clamped.
func (t Text) Slice(start, end int) string {
	r := []rune(t.Content)
	start = max(0, min(start, len(r)))
	end = max(start, min(end, len(r)))
	return string(r[start:end])
}

// PageRange returns the rune span of page p without the separator that
// follows it.
func (t Text) PageRange(p int) (start, end int, ok bool) {
	if len(t.Boundaries) == 0 {
		return 0, t.Len(), p == 1
	}
	for i, b := range t.Boundaries {
		if b.Page != p {
			continue
		}
		end = t.Len()
		if i+1 < len(t.Boundaries) {
			end = t.Boundaries[i+1].Start - 1
		}
		return b.Start, max(b.Start, end), true
	}
	return 0, 0, false
}

// Location is where an annotation sits in a document.
type Location struct {
	Page  int
	Start int
	End   int
	// Exact is false when the position was found by searching for the
	// annotation text rather than read from stored offsets.
	Exact bool
}

// Locate finds a. Stored offsets always win, even when the highlighted
// text also occurs earlier in the document. Without offsets the first
// occurrence of the text is used; ok is false when it does not occur.
func (t Text) Locate(a *models.Annotation) (Location, bool) {
	if a == nil {
		return Location{}, false
	}
	if a.HasOffsets() {
		s, e := *a.StartOffset, *a.EndOffset
		return Location{Page: t.PageForOffset(s), Start: s, End: e, Exact: true}, true
	}
	needle := strings.TrimSpace(a.Text)
	if needle == "" {
		return Location{}, false
	}
	i := strings.Index(t.Content, needle)
	if i < 0 {
		return Location{}, false
	}
	s := utf8.RuneCountInString(t.Content[:i])
	e := s + utf8.RuneCountInString(needle)
	return Location{Page: t.PageForOffset(s), Start: s, End: e}, true
}

// builder accumulates pages while tracking rune offsets.
type builder struct {
	sb     strings.Builder
	runes  int
	bounds []Boundary
}

// page starts a new page and appends its text. Pages are separated by a
// newline.
func (b *builder) page(n int, label, s string) {
	if b.runes > 0 || len(b.bounds) > 0 {
		b.write("\n")
	}
	b.bounds = append(b.bounds, Boundary{Page: n, Start: b.runes, Label: label})
	b.write(s)
}

func (b *builder) write(s string) {
	b.sb.WriteString(s)
	b.runes += utf8.RuneCountInString(s)
}

func (b *builder) text() Text {
	return Text{Content: b.sb.String(), Boundaries: b.bounds}
}
