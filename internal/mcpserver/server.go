// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Marginalia tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/marginalia/internal/annotations"
	"github.com/starford/marginalia/internal/graph"
	"github.com/starford/marginalia/internal/links"
	"github.com/starford/marginalia/internal/models"
	"github.com/starford/marginalia/internal/workspace"
)

const contractURI = "marginalia://annotation-format"

// Server wraps the MCP server with Marginalia tools.
type Server struct {
	mcp     *server.MCPServer
	sess    *workspace.Session
	library string
}

// New creates a new MCP server with all Marginalia tools registered.
// library is the directory import_document saves into.
func New(sess *workspace.Session, library string) *Server {
	s := &Server{sess: sess, library: library}

	s.mcp = server.NewMCPServer(
		"Marginalia",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("open_document",
		mcp.WithDescription("Make a document current. Annotations are created in the current document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the document file")),
	), s.openDocument)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List every document that has stored annotations."),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("read_document_text",
		mcp.WithDescription("Return the extracted text of a document, or of one page. "+
			"Offsets in the result are the ones add_highlight expects."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the document file")),
		mcp.WithNumber("page", mcp.Description("Optional 1-based page")),
	), s.readDocumentText)

	s.mcp.AddTool(mcp.NewTool("list_annotations",
		mcp.WithDescription("List annotations newest first, optionally filtered."),
		mcp.WithString("path", mcp.Description("Document path (empty for the current document)")),
		mcp.WithString("kind", mcp.Description("note or highlight")),
		mcp.WithString("tag", mcp.Description("Only annotations with this tag")),
		mcp.WithString("color", mcp.Description("Only annotations with this color")),
	), s.listAnnotations)

	s.mcp.AddTool(mcp.NewTool("get_annotation",
		mcp.WithDescription("Read one annotation with its resolved links and backlinks."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Annotation id")),
		mcp.WithString("path", mcp.Description("Owning document (empty for the current document)")),
	), s.getAnnotation)

	s.mcp.AddTool(mcp.NewTool("add_note",
		mcp.WithDescription("Create a note in the current document. Read the contract first via "+
			"get_annotation_contract or the "+contractURI+" resource."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Note body")),
		mcp.WithNumber("page", mcp.Description("Optional page the note refers to")),
	), s.addNote)

	s.mcp.AddTool(mcp.NewTool("add_highlight",
		mcp.WithDescription("Highlight a passage of the current document."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Exact passage")),
		mcp.WithString("note", mcp.Description("Optional commentary")),
		mcp.WithString("color", mcp.Description("yellow, green, blue, pink, purple or orange")),
		mcp.WithNumber("start_offset", mcp.Description("Rune offset where the passage starts")),
		mcp.WithNumber("end_offset", mcp.Description("Rune offset where the passage ends")),
	), s.addHighlight)

	s.mcp.AddTool(mcp.NewTool("delete_annotation",
		mcp.WithDescription("Delete an annotation of the current document. Links pointing at it become broken."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Annotation id")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.deleteAnnotation)

	s.mcp.AddTool(mcp.NewTool("toggle_link",
		mcp.WithDescription("Link two annotations, or unlink them when the link exists."),
		mcp.WithString("source_id", mcp.Required(), mcp.Description("Annotation in the current document")),
		mcp.WithString("target_id", mcp.Description("Target annotation id (empty to link the whole target document)")),
		mcp.WithString("target_file_path", mcp.Description("Target document (empty for the current document)")),
	), s.toggleLink)

	s.mcp.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Return the canvas graph of the current document: local, external and document nodes with their edges."),
		mcp.WithString("path", mcp.Description("Open this document first")),
	), s.getGraph)

	s.mcp.AddTool(mcp.NewTool("search_annotations",
		mcp.WithDescription("Full-text search over the text, notes and tags of annotations in every document."),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
		mcp.WithString("query", mcp.Required(), mcp.Description("Words to look for")),
		mcp.WithNumber("limit", mcp.Description("Max hits (default 20)")),
	), s.searchAnnotations)

	s.mcp.AddTool(mcp.NewTool("check_links",
		mcp.WithDescription("Report links whose target annotation no longer exists."),
	), s.checkLinks)

	s.mcp.AddTool(mcp.NewTool("import_document",
		mcp.WithDescription("Download a document (pdf, epub, docx, md, txt) into the library from an http(s) URL or a base64 data URI."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data URI")),
		mcp.WithString("filename", mcp.Description("Optional file name to save as")),
	), s.importDocument)

	s.mcp.AddTool(mcp.NewTool("get_annotation_contract",
		mcp.WithDescription("Returns the annotation model contract. Call this before creating annotations or links."),
	), s.getContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Annotation Contract",
			mcp.WithResourceDescription("How annotations, offsets and links work."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func boolPtr(b bool) *bool { return &b }

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func optString(req mcp.CallToolRequest, key string) string {
	if v, ok := req.GetArguments()[key].(string); ok {
		return v
	}
	return ""
}

// optInt reads a numeric argument; JSON numbers arrive as float64.
func optInt(req mcp.CallToolRequest, key string) (int, bool) {
	switch v := req.GetArguments()[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

func (s *Server) openDocument(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c := s.sess.Open(path)
	return mcp.NewToolResultText(fmt.Sprintf("opened: %s (%d notes, %d highlights)", path, len(c.Notes), len(c.Highlights))), nil
}

func (s *Server) listDocuments(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs := s.sess.Documents()
	if len(docs) == 0 {
		return mcp.NewToolResultText("no documents"), nil
	}
	return mcp.NewToolResultText(strings.Join(docs, "\n")), nil
}

type pageText struct {
	Page  int    `json:"page"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

func (s *Server) readDocumentText(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	txt, err := s.sess.Text(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, ok := optInt(req, "page")
	if !ok {
		return jsonResult(pageText{Start: 0, End: txt.Len(), Text: txt.Content})
	}
	start, end, found := txt.PageRange(page)
	if !found {
		return mcp.NewToolResultError(fmt.Sprintf("page %d not found", page)), nil
	}
	return jsonResult(pageText{Page: page, Start: start, End: end, Text: txt.Slice(start, end)})
}

func (s *Server) listAnnotations(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := annotations.Filter{
		Kind:  models.Kind(optString(req, "kind")),
		Tag:   optString(req, "tag"),
		Color: models.Color(optString(req, "color")),
	}
	list := s.sess.List(optString(req, "path"), f)
	if len(list) == 0 {
		return mcp.NewToolResultText("no annotations found"), nil
	}
	return jsonResult(list)
}

func (s *Server) getAnnotation(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, views, ok := s.sess.Get(id, optString(req, "path"))
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return jsonResult(struct {
		*models.Annotation
		LinkViews []links.View         `json:"linkViews"`
		Backlinks []*models.Annotation `json:"backlinks"`
	}{a, views, s.sess.Backlinks(a.ID, a.FilePath)})
}

func (s *Server) addNote(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, _ := optInt(req, "page")
	a, err := s.sess.AddNote(text, page)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(a)
}

func (s *Server) addHighlight(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := annotations.HighlightInput{
		Text:  text,
		Note:  optString(req, "note"),
		Color: models.Color(optString(req, "color")),
	}
	if c := in.Color; c != "" && !c.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown color: %s", c)), nil
	}
	if start, ok := optInt(req, "start_offset"); ok {
		in.StartOffset = &start
	}
	if end, ok := optInt(req, "end_offset"); ok {
		in.EndOffset = &end
	}
	a, err := s.sess.AddHighlight(in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(a)
}

func (s *Server) deleteAnnotation(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !s.sess.DeleteAnnotation(id) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) toggleLink(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireString("source_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dst, file := optString(req, "target_id"), optString(req, "target_file_path")
	if dst == "" && file == "" {
		return mcp.NewToolResultError("target_id or target_file_path is required"), nil
	}
	res := s.sess.ToggleLink(src, dst, file)
	if res == links.NoOp {
		return mcp.NewToolResultError("source not found in the current document, or self link"), nil
	}
	return mcp.NewToolResultText(string(res)), nil
}

type graphSummary struct {
	DocPath string         `json:"docPath"`
	Nodes   []graphNode    `json:"nodes"`
	Edges   []graph.Edge   `json:"edges"`
	Counts  map[string]int `json:"counts"`
}

type graphNode struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	FilePath string `json:"filePath"`
	Label    string `json:"label"`
}

func (s *Server) getGraph(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if p := optString(req, "path"); p != "" && p != s.sess.CurrentPath() {
		s.sess.Open(p)
	}
	g := s.sess.Snapshot()
	out := graphSummary{DocPath: g.DocPath, Edges: g.Edges, Counts: map[string]int{}}
	for _, n := range g.Nodes {
		label := n.FileName
		if n.Annotation != nil {
			label = links.Excerpt(n.Annotation.Text, 60)
		}
		out.Nodes = append(out.Nodes, graphNode{ID: n.ID, Kind: string(n.Kind), FilePath: n.FilePath, Label: label})
		out.Counts[string(n.Kind)]++
	}
	return jsonResult(out)
}

func (s *Server) searchAnnotations(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit, _ := optInt(req, "limit")
	hits, err := s.sess.Search(query, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText("no matches"), nil
	}
	return jsonResult(hits)
}

func (s *Server) checkLinks(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	broken := s.sess.BrokenLinks()
	if len(broken) == 0 {
		return mcp.NewToolResultText("no broken links"), nil
	}
	lines := make([]string, 0, len(broken))
	for _, b := range broken {
		target := b.Key.ID
		if b.Key.Coarse() {
			target = "document"
		}
		lines = append(lines, fmt.Sprintf("%s: %s -> %s in %s", b.Owner, b.SourceID, target, b.Key.FilePath))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(AnnotationContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     AnnotationContract,
		},
	}, nil
}
