package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/marginalia/internal/models"
	"github.com/starford/marginalia/internal/storage"
	"github.com/starford/marginalia/internal/testutil"
	"github.com/starford/marginalia/internal/textsource"
	"github.com/starford/marginalia/internal/workspace"
)

const doc = "/library/report.pdf"

type fakeText map[string]textsource.Text

func (f fakeText) GetFullText(path string) (textsource.Text, error) {
	t, ok := f[path]
	if !ok {
		return textsource.Text{}, errors.New("no text")
	}
	return t, nil
}

var reportText = textsource.Text{
	Content: "revenue growth was flat\nlater, revenue growth doubled\nappendix",
	Boundaries: []textsource.Boundary{
		{Page: 1, Start: 0},
		{Page: 2, Start: 24},
		{Page: 3, Start: 54},
	},
}

func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	library := t.TempDir()
	sess := workspace.New(storage.NewMemory(),
		workspace.WithLogger(testutil.Logger()),
		workspace.WithTextProvider(fakeText{doc: reportText}),
	)
	return New(sess, library), library
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"open_document":           srv.openDocument,
		"list_documents":          srv.listDocuments,
		"read_document_text":      srv.readDocumentText,
		"list_annotations":        srv.listAnnotations,
		"get_annotation":          srv.getAnnotation,
		"add_note":                srv.addNote,
		"add_highlight":           srv.addHighlight,
		"delete_annotation":       srv.deleteAnnotation,
		"toggle_link":             srv.toggleLink,
		"get_graph":               srv.getGraph,
		"check_links":             srv.checkLinks,
		"search_annotations":      srv.searchAnnotations,
		"import_document":         srv.importDocument,
		"get_annotation_contract": srv.getContract,
	}
	h, ok := handlers[name]
	require.True(t, ok, "unknown tool: %s", name)
	result, err := h(ctx, req)
	require.NoError(t, err, name)
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func addHighlight(t *testing.T, srv *Server, args map[string]any) models.Annotation {
	t.Helper()
	r := callTool(t, srv, "add_highlight", args)
	require.False(t, r.IsError, resultText(r))
	var a models.Annotation
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &a))
	return a
}

func TestOpenAddAndList(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "open_document", map[string]any{"path": doc})
	assert.Equal(t, "opened: "+doc+" (0 notes, 0 highlights)", resultText(r))

	h := addHighlight(t, srv, map[string]any{
		"text": "revenue growth", "color": "green",
		"start_offset": float64(31), "end_offset": float64(45),
	})
	assert.Equal(t, 2, h.Page)
	assert.Equal(t, models.ColorGreen, h.Color)

	r = callTool(t, srv, "add_note", map[string]any{"text": "check the appendix", "page": float64(3)})
	require.False(t, r.IsError, resultText(r))

	r = callTool(t, srv, "list_annotations", map[string]any{"kind": "highlight"})
	var list []models.Annotation
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &list), resultText(r))
	require.Len(t, list, 1)
	assert.Equal(t, h.ID, list[0].ID)

	r = callTool(t, srv, "list_documents", map[string]any{})
	assert.Equal(t, doc, resultText(r))
}

func TestAddHighlight_WithoutOffsetsFindsFirstOccurrence(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "open_document", map[string]any{"path": doc})
	h := addHighlight(t, srv, map[string]any{"text": "revenue growth"})
	assert.Equal(t, 1, h.Page)
	assert.Equal(t, models.DefaultColor, h.Color)
}

func TestAddHighlight_Errors(t *testing.T) {
	srv, _ := testServer(t)
	assert.True(t, callTool(t, srv, "add_note", map[string]any{"text": "x"}).IsError, "no open document")
	callTool(t, srv, "open_document", map[string]any{"path": doc})
	assert.True(t, callTool(t, srv, "add_highlight", map[string]any{"text": "x", "color": "teal"}).IsError, "unknown color")
	assert.True(t, callTool(t, srv, "add_highlight", map[string]any{}).IsError, "missing text")
}

func TestToggleLinkAndCheckLinks(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "open_document", map[string]any{"path": doc})
	a := addHighlight(t, srv, map[string]any{"text": "revenue growth was flat"})
	b := addHighlight(t, srv, map[string]any{"text": "appendix"})

	r := callTool(t, srv, "toggle_link", map[string]any{"source_id": a.ID, "target_id": b.ID})
	require.Equal(t, "created", resultText(r))
	assert.True(t, callTool(t, srv, "toggle_link", map[string]any{"source_id": a.ID, "target_id": a.ID}).IsError,
		"self link should be rejected")
	assert.True(t, callTool(t, srv, "toggle_link", map[string]any{"source_id": a.ID}).IsError,
		"toggle without a target should be rejected")

	r = callTool(t, srv, "toggle_link", map[string]any{"source_id": b.ID, "target_file_path": "/docs/missing.pdf"})
	require.Equal(t, "created", resultText(r))
	r = callTool(t, srv, "check_links", map[string]any{})
	assert.Contains(t, resultText(r), b.ID+" -> document in /docs/missing.pdf")
	callTool(t, srv, "toggle_link", map[string]any{"source_id": b.ID, "target_file_path": "/docs/missing.pdf"})

	r = callTool(t, srv, "check_links", map[string]any{})
	assert.Equal(t, "no broken links", resultText(r))

	callTool(t, srv, "delete_annotation", map[string]any{"id": b.ID})
	r = callTool(t, srv, "check_links", map[string]any{})
	assert.Contains(t, resultText(r), a.ID+" -> "+b.ID)

	r = callTool(t, srv, "get_annotation", map[string]any{"id": a.ID})
	var got struct {
		LinkViews []struct {
			Broken bool   `json:"broken"`
			Label  string `json:"label"`
		} `json:"linkViews"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &got))
	require.Len(t, got.LinkViews, 1)
	assert.True(t, got.LinkViews[0].Broken)
}

func TestSearchAnnotations(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "open_document", map[string]any{"path": doc})
	h := addHighlight(t, srv, map[string]any{"text": "revenue growth was flat"})
	callTool(t, srv, "add_note", map[string]any{"text": "memo"})

	r := callTool(t, srv, "search_annotations", map[string]any{"query": "revenue"})
	var hits []struct {
		Path string `json:"path"`
		ID   string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &hits), resultText(r))
	require.Len(t, hits, 1)
	assert.Equal(t, h.ID, hits[0].ID)
	assert.Equal(t, doc, hits[0].Path)

	r = callTool(t, srv, "search_annotations", map[string]any{"query": "zebra"})
	assert.Equal(t, "no matches", resultText(r))
	assert.True(t, callTool(t, srv, "search_annotations", map[string]any{}).IsError, "missing query")
}

func TestGetGraph(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "open_document", map[string]any{"path": doc})
	addHighlight(t, srv, map[string]any{"text": "appendix"})
	callTool(t, srv, "add_note", map[string]any{"text": "memo"})

	r := callTool(t, srv, "get_graph", map[string]any{})
	var g graphSummary
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &g))
	assert.Equal(t, doc, g.DocPath)
	assert.Equal(t, 2, g.Counts["local"])
	assert.Empty(t, g.Edges)
}

func TestReadDocumentText(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "read_document_text", map[string]any{"path": doc, "page": float64(2)})
	var p pageText
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &p))
	assert.Equal(t, "later, revenue growth doubled", p.Text)
	assert.Equal(t, 24, p.Start)
	assert.Equal(t, 53, p.End)

	assert.True(t, callTool(t, srv, "read_document_text", map[string]any{"path": doc, "page": float64(9)}).IsError,
		"missing page")
	assert.True(t, callTool(t, srv, "read_document_text", map[string]any{"path": "/nope.pdf"}).IsError,
		"unknown document")
}

func TestGetAnnotationMissing(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "open_document", map[string]any{"path": doc})
	assert.True(t, callTool(t, srv, "get_annotation", map[string]any{"id": "nope"}).IsError)
	assert.True(t, callTool(t, srv, "delete_annotation", map[string]any{"id": "nope"}).IsError)
}

func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func TestImportDocument_DataURI(t *testing.T) {
	srv, library := testServer(t)
	pdf := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")

	r := callTool(t, srv, "import_document", map[string]any{
		"url":      dataURI("application/pdf", pdf),
		"filename": "annual report.pdf",
	})
	require.False(t, r.IsError, resultText(r))
	var res importResult
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &res))
	assert.Equal(t, "annual_report.pdf", filepath.Base(res.Path))
	assert.Equal(t, len(pdf), res.Size)
	data, err := os.ReadFile(filepath.Join(library, "annual_report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, pdf, data)

	r = callTool(t, srv, "import_document", map[string]any{
		"url":      dataURI("application/pdf", pdf),
		"filename": "annual report.pdf",
	})
	assert.True(t, r.IsError, "second import should fail: file exists")
}

func TestImportDocument_Rejected(t *testing.T) {
	srv, _ := testServer(t)
	cases := map[string]map[string]any{
		"content mismatch": {"url": dataURI("application/pdf", []byte("just text"))},
		"unknown mime":     {"url": dataURI("image/png", []byte("x"))},
		"not base64":       {"url": "data:text/plain,hello"},
		"bad scheme":       {"url": "ftp://example.com/a.pdf"},
		"loopback":         {"url": "http://127.0.0.1/a.pdf"},
	}
	for name, args := range cases {
		assert.True(t, callTool(t, srv, "import_document", args).IsError, name)
	}
}

func TestSanitizeFilename(t *testing.T) {
	for in, want := range map[string]string{
		"../../etc/passwd": "passwd",
		"my notes.md":      "my_notes.md",
		"ok-name_1.txt":    "ok-name_1.txt",
	} {
		assert.Equal(t, want, sanitizeFilename(in), in)
	}
}

func TestGetAnnotationContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_annotation_contract", map[string]any{})
	assert.Contains(t, resultText(r), "## Offsets")
	contents, err := srv.readContractResource(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	assert.Len(t, contents, 1)
}
