package textsource

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/starford/marginalia/internal/parser"
)

// Loader reads one document format.
type Loader interface {
	Load(path string) (Text, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(path string) (Text, error)

func (f LoaderFunc) Load(path string) (Text, error) { return f(path) }

// PDFLoader extracts text page by page.
type PDFLoader struct{}

func (PDFLoader) Load(path string) (Text, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return Text{}, fmt.Errorf("textsource: open pdf: %w", err)
	}
	defer f.Close()

	var b builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			b.page(i, "", "")
			continue
		}
		s, err := p.GetPlainText(nil)
		if err != nil {
			return Text{}, fmt.Errorf("textsource: pdf page %d: %w", i, err)
		}
		b.page(i, "", s)
	}
	return b.text(), nil
}

// MarkdownLoader renders Markdown to plain text; each heading starts a
// new section. Text before the first heading is section 1.
type MarkdownLoader struct{}

func (MarkdownLoader) Load(path string) (Text, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Text{}, fmt.Errorf("textsource: read: %w", err)
	}
	res, err := parser.Parse(data)
	if err != nil {
		return Text{}, fmt.Errorf("textsource: parse markdown: %w", err)
	}
	t := Text{Content: res.Text}
	for _, s := range res.Sections {
		if len(t.Boundaries) == 0 && s.Start > 0 {
			t.Boundaries = append(t.Boundaries, Boundary{Page: 1, Start: 0})
		}
		t.Boundaries = append(t.Boundaries, Boundary{Page: len(t.Boundaries) + 1, Start: s.Start, Label: s.Title})
	}
	if len(t.Boundaries) == 0 {
		t.Boundaries = []Boundary{{Page: 1, Start: 0, Label: res.Title}}
	}
	return t, nil
}

// PlainLoader reads text files. Form feeds separate pages.
type PlainLoader struct{}

func (PlainLoader) Load(path string) (Text, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Text{}, fmt.Errorf("textsource: read: %w", err)
	}
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	var b builder
	for i, p := range strings.Split(string(data), "\f") {
		b.page(i+1, "", p)
	}
	return b.text(), nil
}
