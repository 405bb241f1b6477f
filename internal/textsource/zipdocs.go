package textsource

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func openMember(r *zip.ReadCloser, name string) (io.ReadCloser, error) {
	for _, f := range r.File {
		if f.Name == name {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("textsource: %s not found in archive", name)
}

// DocxLoader extracts paragraph text from word/document.xml. Explicit page
// breaks start a new page.
type DocxLoader struct{}

func (DocxLoader) Load(p string) (Text, error) {
	r, err := zip.OpenReader(p)
	if err != nil {
		return Text{}, fmt.Errorf("textsource: open docx: %w", err)
	}
	defer r.Close()

	rc, err := openMember(r, "word/document.xml")
	if err != nil {
		return Text{}, err
	}
	defer rc.Close()

	pages, err := docxPages(rc)
	if err != nil {
		return Text{}, fmt.Errorf("textsource: docx xml: %w", err)
	}
	var b builder
	for i, pg := range pages {
		b.page(i+1, "", pg)
	}
	return b.text(), nil
}

func docxPages(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var pages []string
	var page, para strings.Builder
	inText := false

	flushPara := func() {
		if s := strings.TrimSpace(para.String()); s != "" {
			if page.Len() > 0 {
				page.WriteString("\n")
			}
			page.WriteString(s)
		}
		para.Reset()
	}
	flushPage := func() {
		flushPara()
		pages = append(pages, page.String())
		page.Reset()
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br":
				if attr(el, "type") == "page" {
					flushPage()
				} else {
					para.WriteByte('\n')
				}
			}
		case xml.CharData:
			if inText {
				para.Write(el)
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				flushPara()
			}
		}
	}
	flushPage()
	return pages, nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// EpubLoader extracts each spine document as one section.
type EpubLoader struct{}

type epubContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type epubPackage struct {
	Manifest []struct {
		ID   string `xml:"id,attr"`
		Href string `xml:"href,attr"`
	} `xml:"manifest>item"`
	Spine []struct {
		IDRef string `xml:"idref,attr"`
	} `xml:"spine>itemref"`
}

func decodeMember(r *zip.ReadCloser, name string, v any) error {
	rc, err := openMember(r, name)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := xml.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("textsource: decode %s: %w", name, err)
	}
	return nil
}

func (EpubLoader) Load(p string) (Text, error) {
	r, err := zip.OpenReader(p)
	if err != nil {
		return Text{}, fmt.Errorf("textsource: open epub: %w", err)
	}
	defer r.Close()

	var c epubContainer
	if err := decodeMember(r, "META-INF/container.xml", &c); err != nil {
		return Text{}, err
	}
	if len(c.Rootfiles) == 0 {
		return Text{}, errors.New("textsource: epub has no rootfile")
	}
	opf := c.Rootfiles[0].FullPath
	var pkg epubPackage
	if err := decodeMember(r, opf, &pkg); err != nil {
		return Text{}, err
	}

	hrefs := make(map[string]string, len(pkg.Manifest))
	for _, it := range pkg.Manifest {
		hrefs[it.ID] = path.Join(path.Dir(opf), it.Href)
	}

	var b builder
	n := 0
	for _, ref := range pkg.Spine {
		name, ok := hrefs[ref.IDRef]
		if !ok {
			continue
		}
		rc, err := openMember(r, name)
		if err != nil {
			return Text{}, err
		}
		title, body, err := xhtmlText(rc)
		rc.Close()
		if err != nil {
			return Text{}, fmt.Errorf("textsource: %s: %w", name, err)
		}
		n++
		b.page(n, title, body)
	}
	return b.text(), nil
}

var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Blockquote: true, atom.Pre: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Tr: true, atom.Section: true, atom.Br: true,
}

// xhtmlText returns the first heading and the body text of a chapter with
// one line per block element.
func xhtmlText(r io.Reader) (string, string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}
	var title string
	var lines []string
	var cur strings.Builder
	flush := func() {
		if s := strings.Join(strings.Fields(cur.String()), " "); s != "" {
			lines = append(lines, s)
		}
		cur.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Head, atom.Script, atom.Style:
				return
			}
		}
		if n.Type == html.TextNode {
			cur.WriteString(n.Data)
		}
		block := n.Type == html.ElementNode && blockAtoms[n.DataAtom]
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			if title == "" && isHeading(n.DataAtom) {
				title = strings.Join(strings.Fields(cur.String()), " ")
			}
			flush()
		}
	}
	walk(doc)
	flush()
	return title, strings.Join(lines, "\n"), nil
}

func isHeading(a atom.Atom) bool {
	switch a {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return true
	}
	return false
}
