package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/marginalia/internal/annotations"
	"github.com/starford/marginalia/internal/graph"
	"github.com/starford/marginalia/internal/metrics"
	"github.com/starford/marginalia/internal/models"
	"github.com/starford/marginalia/internal/storage"
	"github.com/starford/marginalia/internal/testutil"
	"github.com/starford/marginalia/internal/textsource"
	"github.com/starford/marginalia/internal/workspace"
)

const (
	docA = "/library/A.pdf"
	docB = "/library/B.pdf"
)

type noText struct{}

func (noText) GetFullText(string) (textsource.Text, error) {
	return textsource.Text{}, errors.New("no text")
}

// testEnv sets up an in-memory session and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*workspace.Session, http.Handler) {
	t.Helper()
	sess, router, _ := testEnvWithLibrary(t, authToken != "", authToken, nil)
	return sess, router
}

func testEnvWithLibrary(t *testing.T, authEnabled bool, authToken string, sseHandler http.Handler) (*workspace.Session, http.Handler, string) {
	t.Helper()
	libDir := t.TempDir()
	sess := workspace.New(storage.NewMemory(),
		workspace.WithLogger(testutil.Logger()),
		workspace.WithTextProvider(noText{}),
	)
	return sess, NewRouter(sess, authEnabled, authToken, sseHandler, libDir), libDir
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func openDoc(t *testing.T, router http.Handler, path string) {
	t.Helper()
	w := do(t, router, http.MethodGet, "/documents?path="+path, nil)
	require.Equal(t, http.StatusOK, w.Code, "open %s", path)
}

func createHighlight(t *testing.T, router http.Handler, text string) models.Annotation {
	t.Helper()
	w := do(t, router, http.MethodPost, "/highlights", map[string]any{"text": text, "color": "green"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody[models.Annotation](t, w)
}

func TestCreateAndGetAnnotation(t *testing.T) {
	_, router := testEnv(t, "")
	openDoc(t, router, docA)

	h := createHighlight(t, router, "revenue growth")
	require.NotEmpty(t, h.ID)
	assert.Equal(t, models.ColorGreen, h.Color)
	assert.Equal(t, docA, h.FilePath)

	w := do(t, router, http.MethodGet, "/annotations/"+h.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("ETag"))
	got := decodeBody[map[string]any](t, w)
	assert.Equal(t, "revenue growth", got["text"])
	assert.Equal(t, []any{}, got["linkViews"])
}

func TestCreate_NoDocumentOpen(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/notes", map[string]any{"text": "orphan"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateHighlight_Validation(t *testing.T) {
	_, router := testEnv(t, "")
	openDoc(t, router, docA)

	for name, body := range map[string]map[string]any{
		"empty text":    {"text": ""},
		"unknown color": {"text": "x", "color": "teal"},
		"negative page": {"text": "x", "page": -1},
	} {
		w := do(t, router, http.MethodPost, "/highlights", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}

	req := httptest.NewRequest(http.MethodPost, "/highlights", bytes.NewReader([]byte("{")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, "invalid JSON")
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "")
	openDoc(t, router, docA)
	h := createHighlight(t, router, "draft")

	w := do(t, router, http.MethodGet, "/annotations/"+h.ID, nil)
	tag := w.Header().Get("ETag")

	patch := map[string]any{"note": "checked"}
	data, _ := json.Marshal(patch)
	req := httptest.NewRequest(http.MethodPatch, "/annotations/"+h.ID, bytes.NewReader(data))
	req.Header.Set("If-Match", `"stale"`)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusConflict, w.Code, "stale If-Match")

	req = httptest.NewRequest(http.MethodPatch, "/annotations/"+h.ID, bytes.NewReader(data))
	req.Header.Set("If-Match", tag)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decodeBody[models.Annotation](t, w)
	assert.Equal(t, "checked", got.Note)
	assert.Equal(t, "draft", got.Text)
	assert.NotEqual(t, tag, w.Header().Get("ETag"), "ETag should change after update")
}

func TestUpdate_InvalidColorAndMissing(t *testing.T) {
	_, router := testEnv(t, "")
	openDoc(t, router, docA)
	h := createHighlight(t, router, "x")

	w := do(t, router, http.MethodPatch, "/annotations/"+h.ID, map[string]any{"color": "teal"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, router, http.MethodPatch, "/annotations/nope", map[string]any{"note": "n"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteAnnotation(t *testing.T) {
	_, router := testEnv(t, "")
	openDoc(t, router, docA)
	h := createHighlight(t, router, "gone soon")

	w := do(t, router, http.MethodDelete, "/annotations/"+h.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, router, http.MethodDelete, "/annotations/"+h.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "second delete")
	w = do(t, router, http.MethodGet, "/annotations/"+h.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "get deleted")
}

func TestListAnnotations(t *testing.T) {
	_, router := testEnv(t, "")
	openDoc(t, router, docA)
	createHighlight(t, router, "one")
	createHighlight(t, router, "two")
	w := do(t, router, http.MethodPost, "/notes", map[string]any{"text": "memo"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, router, http.MethodGet, "/annotations", nil)
	all := decodeBody[AnnotationListResponse](t, w)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, docA, all.Path)

	w = do(t, router, http.MethodGet, "/annotations?kind=note", nil)
	notes := decodeBody[AnnotationListResponse](t, w)
	require.Equal(t, 1, notes.Total)
	assert.Equal(t, "memo", notes.Annotations[0].Text)

	w = do(t, router, http.MethodGet, "/annotations?kind=bookmark", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "bad kind")

	w = do(t, router, http.MethodGet, "/documents", nil)
	docs := decodeBody[map[string]any](t, w)
	assert.Equal(t, docA, docs["current"])
}

func TestLinksToggleAndRemove(t *testing.T) {
	_, router := testEnv(t, "")
	openDoc(t, router, docA)
	src := createHighlight(t, router, "source")
	dst := createHighlight(t, router, "target")

	link := LinkRequest{SourceID: src.ID, TargetID: dst.ID}
	w := do(t, router, http.MethodPost, "/links/toggle", link)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "created", decodeBody[LinkResponse](t, w).Result)

	w = do(t, router, http.MethodGet, "/annotations/"+src.ID, nil)
	got := decodeBody[map[string]any](t, w)
	assert.Len(t, got["linkViews"], 1)

	w = do(t, router, http.MethodPost, "/links/remove", link)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, router, http.MethodPost, "/links/remove", link)
	assert.Equal(t, http.StatusNotFound, w.Code, "second remove")
	w = do(t, router, http.MethodPost, "/links/toggle", LinkRequest{SourceID: src.ID, TargetID: src.ID})
	assert.Equal(t, http.StatusNotFound, w.Code, "self link")
	w = do(t, router, http.MethodPost, "/links/toggle", LinkRequest{SourceID: src.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing target")
}

func TestCrossDocumentGraphAndBacklinks(t *testing.T) {
	_, router := testEnv(t, "")
	openDoc(t, router, docA)
	a := createHighlight(t, router, "in A")
	openDoc(t, router, docB)
	b := createHighlight(t, router, "in B")

	w := do(t, router, http.MethodPost, "/links/toggle",
		LinkRequest{SourceID: b.ID, TargetID: a.ID, TargetFilePath: docA})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/graph?path="+docB, nil)
	require.Equal(t, http.StatusOK, w.Code)
	g := decodeBody[graph.Graph](t, w)
	var ids []string
	for _, n := range g.Nodes {
		ids = append(ids, n.ID)
	}
	assert.Subset(t, ids, []string{b.ID, graph.ExternalID(docA, a.ID), graph.DocRefID(docA)})
	assert.Len(t, g.Edges, 2)

	w = do(t, router, http.MethodGet, "/annotations/"+a.ID+"?path="+docA, nil)
	got := decodeBody[AnnotationResponse](t, w)
	require.Len(t, got.Backlinks, 1)
	assert.Equal(t, b.ID, got.Backlinks[0].ID)
}

func TestSearch(t *testing.T) {
	_, router := testEnv(t, "")
	openDoc(t, router, docA)
	h := createHighlight(t, router, "operating margin widened")
	createHighlight(t, router, "headcount flat")

	w := do(t, router, http.MethodGet, "/search?q=margin", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeBody[SearchResponse](t, w)
	assert.Equal(t, "margin", res.Query)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, h.ID, res.Hits[0].ID)
	assert.Equal(t, docA, res.Hits[0].Path)

	w = do(t, router, http.MethodGet, "/search?q=nothing-like-this", nil)
	res = decodeBody[SearchResponse](t, w)
	assert.NotNil(t, res.Hits, "empty search should encode an empty list")
	assert.Empty(t, res.Hits)

	for _, target := range []string{"/search", "/search?q=x&limit=0", "/search?q=x&limit=abc"} {
		w := do(t, router, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestBrokenLinks(t *testing.T) {
	_, router := testEnv(t, "")
	openDoc(t, router, docB)
	createHighlight(t, router, "in B")
	openDoc(t, router, docA)
	src := createHighlight(t, router, "source")
	do(t, router, http.MethodPost, "/links/toggle", LinkRequest{SourceID: src.ID, TargetID: "ghost"})

	// A link to document B as a whole resolves while B exists.
	w := do(t, router, http.MethodPost, "/links/toggle", LinkRequest{SourceID: src.ID, TargetFilePath: docB})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "created", decodeBody[LinkResponse](t, w).Result)

	w = do(t, router, http.MethodGet, "/links/broken", nil)
	got := decodeBody[map[string][]map[string]string](t, w)
	require.Len(t, got["broken"], 1)
	assert.Equal(t, "ghost", got["broken"][0]["targetId"])
}

func TestGraphPNG(t *testing.T) {
	_, router := testEnv(t, "")
	openDoc(t, router, docA)
	createHighlight(t, router, "drawn")

	w := do(t, router, http.MethodGet, "/graph.png?width=400&height=300&fit=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")), "body is not a PNG")

	w = do(t, router, http.MethodGet, "/graph.png?width=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "zero width")
}

func TestCanvasEvents(t *testing.T) {
	_, router := testEnv(t, "")
	openDoc(t, router, docA)

	w := do(t, router, http.MethodPost, "/canvas/events", map[string]any{
		"events": []map[string]any{
			{"kind": "pointermove", "x": 10, "y": 10},
			{"kind": "wheel", "x": 10, "y": 10, "deltaY": -100},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decodeBody[[]map[string]any](t, w), 2)

	w = do(t, router, http.MethodPost, "/canvas/events", map[string]any{"events": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code, "no events")
	w = do(t, router, http.MethodPost, "/canvas/events", map[string]any{
		"events": []map[string]any{{"kind": "tap"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "unknown kind")
}

func TestCanvasMenu_AddNote(t *testing.T) {
	sess, router := testEnv(t, "")
	openDoc(t, router, docA)

	w := do(t, router, http.MethodPost, "/canvas/menu", map[string]any{
		"target": map[string]any{"kind": "background", "world": map[string]any{"x": 500, "y": 700}},
		"item":   map[string]any{"action": "add-note"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	notes := sess.List("", annotations.Filter{Kind: models.KindNote})
	require.Len(t, notes, 1)
	n := sess.Snapshot().Node(notes[0].ID)
	require.NotNil(t, n)
	assert.Equal(t, 500.0, n.Rect.X)
	assert.Equal(t, 700.0, n.Rect.Y)

	w = do(t, router, http.MethodPost, "/canvas/menu", map[string]any{"item": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing action")
}

func TestMetricsMiddleware_CountsRoutes(t *testing.T) {
	_, router := testEnv(t, "")
	c := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/annotations/{id}", "404")
	before := promtest.ToFloat64(c)
	do(t, router, http.MethodGet, "/annotations/missing", nil)
	assert.Equal(t, before+1, promtest.ToFloat64(c))
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/annotations", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret")
	w := do(t, router, http.MethodGet, "/annotations", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/annotations", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/annotations", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request is cancelled.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router, _ := testEnvWithLibrary(t, true, "secret", blockingSSE)
	w := do(t, router, http.MethodGet, "/events", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router, _ := testEnvWithLibrary(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.NotEqual(t, http.StatusUnauthorized, w.Code)
}

// Library tests.

func uploadFile(t *testing.T, router http.Handler, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/library", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadListAndServeDocument(t *testing.T) {
	_, router, libDir := testEnvWithLibrary(t, false, "", nil)

	w := uploadFile(t, router, "paper.txt", []byte("plain words"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	item := decodeBody[LibraryItem](t, w)
	assert.Equal(t, "paper.txt", item.Name)
	assert.Equal(t, int64(len("plain words")), item.Size)
	data, err := os.ReadFile(filepath.Join(libDir, "paper.txt"))
	require.NoError(t, err)
	assert.Equal(t, "plain words", string(data))

	w = do(t, router, http.MethodGet, "/library", nil)
	list := decodeBody[map[string][]LibraryItem](t, w)
	assert.Len(t, list["documents"], 1)

	w = do(t, router, http.MethodGet, "/library/paper.txt", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "plain words", w.Body.String())
}

func TestUploadDocument_UnsupportedType(t *testing.T) {
	_, router, _ := testEnvWithLibrary(t, false, "", nil)
	w := uploadFile(t, router, "image.png", []byte("png"))
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestServeDocument_NotFound(t *testing.T) {
	lh := NewLibraryHandler(t.TempDir())
	r := chi.NewRouter()
	r.Get("/library/{filename}", lh.ServeFile)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/library/nope.pdf", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeDocument_TraversalBlocked(t *testing.T) {
	lh := NewLibraryHandler(t.TempDir())
	r := chi.NewRouter()
	r.Get("/library/{filename}", lh.ServeFile)

	for _, name := range []string{"../secret.md", "../../etc/passwd"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/library/"+name, nil))
		// chi may not route the traversal paths at all (404), or the handler rejects (400).
		assert.NotEqual(t, http.StatusOK, w.Code, name)
	}
}

func TestUploadDocument_AuthProtected(t *testing.T) {
	_, router, _ := testEnvWithLibrary(t, true, "secret", nil)
	w := uploadFile(t, router, "x.pdf", []byte("data"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
