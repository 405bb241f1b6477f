// Package parser turns Markdown into the plain text annotations are
// anchored against, with one section per heading.
package parser

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// Section is a heading and the rune offset where it starts in Text.
type Section struct {
	Title string
	Level int
	Start int
}

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	// Text is the rendered plain text: blocks separated by blank lines,
	// inline markup removed.
	Text     string
	Sections []Section
	Title    string
}

var md = goldmark.New()

// Parse extracts frontmatter and plain text from raw Markdown bytes.
func Parse(data []byte) (*Result, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	txt, sections := plainText([]byte(body))

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Text:        txt,
		Sections:    sections,
		Title:       deriveTitle(fm, sections),
	}, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: keep the whole file as body.
		return nil, string(data), nil
	}

	return fm, body, nil
}

type textWriter struct {
	sb    strings.Builder
	runes int
}

func (w *textWriter) block(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	if w.runes > 0 {
		w.write("\n\n")
	}
	w.write(s)
}

func (w *textWriter) write(s string) {
	w.sb.WriteString(s)
	w.runes += utf8.RuneCountInString(s)
}

// plainText walks the goldmark AST and flattens every text-bearing block.
func plainText(src []byte) (string, []Section) {
	doc := md.Parser().Parse(text.NewReader(src))
	var w textWriter
	var sections []Section

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch b := n.(type) {
		case *ast.Heading:
			title := strings.TrimSpace(inlineText(b, src))
			start := w.runes
			if start > 0 {
				start += 2
			}
			sections = append(sections, Section{Title: title, Level: b.Level, Start: start})
			w.block(title)
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.TextBlock:
			w.block(inlineText(b, src))
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			w.block(linesText(b, src))
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return w.sb.String(), sections
}

func inlineText(n ast.Node, src []byte) string {
	var sb strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch t := c.(type) {
			case *ast.Text:
				sb.Write(t.Segment.Value(src))
				if t.HardLineBreak() {
					sb.WriteByte('\n')
				} else if t.SoftLineBreak() {
					sb.WriteByte(' ')
				}
			case *ast.String:
				sb.Write(t.Value)
			case *ast.RawHTML:
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return sb.String()
}

func linesText(n ast.Node, src []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return sb.String()
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, sections []Section) string {
	if fm != nil {
		if t, ok := fm["title"]; ok {
			if s, ok := t.(string); ok && s != "" {
				return s
			}
		}
	}
	for _, s := range sections {
		if s.Level == 1 {
			return s.Title
		}
	}
	return ""
}
