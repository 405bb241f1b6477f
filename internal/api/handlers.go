package api

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/marginalia/internal/annotations"
	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/checksum"
	"github.com/starford/marginalia/internal/index"
	"github.com/starford/marginalia/internal/links"
	"github.com/starford/marginalia/internal/models"
	"github.com/starford/marginalia/internal/workspace"
)

// Handler holds API route handlers.
type Handler struct {
	sess *workspace.Session
}

// NewHandler creates a new Handler.
func NewHandler(sess *workspace.Session) *Handler {
	return &Handler{sess: sess}
}

// switchTo opens the document named by the path query parameter when it
// is not already current.
func (h *Handler) switchTo(r *http.Request) {
	if p := r.URL.Query().Get("path"); p != "" && p != h.sess.CurrentPath() {
		h.sess.Open(p)
	}
}

// etag is the checksum of an annotation's JSON form.
func etag(a *models.Annotation) string {
	return checksum.SumJSON(a)
}

// Documents handles GET /api/documents.
//
//	@Summary		Open a document, or list stored documents when path is empty
//	@Tags			documents
//	@Produce		json
//	@Param			path	query		string	false	"Document path"
//	@Success		200		{object}	DocumentResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) Documents(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"current":   h.sess.CurrentPath(),
			"documents": h.sess.Documents(),
		})
		return
	}
	c := h.sess.Open(path)
	writeJSON(w, http.StatusOK, DocumentResponse{
		Path:       path,
		Notes:      nonNil(c.Notes),
		Highlights: nonNil(c.Highlights),
		Degraded:   h.sess.Degraded(),
	})
}

func nonNil(list []*models.Annotation) []*models.Annotation {
	if list == nil {
		return []*models.Annotation{}
	}
	return list
}

// ListAnnotations handles GET /api/annotations.
//
//	@Summary		List annotations newest first
//	@Tags			annotations
//	@Produce		json
//	@Param			path	query		string	false	"Document path, current when empty"
//	@Param			kind	query		string	false	"note or highlight"
//	@Param			tag		query		string	false	"Filter by tag"
//	@Param			color	query		string	false	"Filter by color"
//	@Param			view	query		string	false	"Filter by source view"
//	@Success		200		{object}	AnnotationListResponse
//	@Security		BearerAuth
//	@Router			/annotations [get]
func (h *Handler) ListAnnotations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := annotations.Filter{
		Kind:       models.Kind(q.Get("kind")),
		Color:      models.Color(q.Get("color")),
		Tag:        q.Get("tag"),
		SourceView: q.Get("view"),
	}
	if f.Kind != "" && f.Kind != models.KindNote && f.Kind != models.KindHighlight {
		writeJSON(w, http.StatusBadRequest, errorBody("kind must be note or highlight"))
		return
	}
	path := q.Get("path")
	list := nonNil(h.sess.List(path, f))
	if path == "" {
		path = h.sess.CurrentPath()
	}
	writeJSON(w, http.StatusOK, AnnotationListResponse{Path: path, Annotations: list, Total: len(list)})
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a note in the current document
//	@Tags			annotations
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	models.Annotation
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !decode(w, r, &req) {
		return
	}
	a, err := h.sess.AddNote(req.Text, req.Page)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	w.Header().Set("ETag", checksum.ETag(etag(a)))
	writeJSON(w, http.StatusCreated, a)
}

// CreateHighlight handles POST /api/highlights.
//
//	@Summary		Create a highlight in the current document
//	@Tags			annotations
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateHighlightRequest	true	"Highlight to create"
//	@Success		201		{object}	models.Annotation
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/highlights [post]
func (h *Handler) CreateHighlight(w http.ResponseWriter, r *http.Request) {
	var req CreateHighlightRequest
	if !decode(w, r, &req) {
		return
	}
	a, err := h.sess.AddHighlight(req.input())
	if err != nil {
		writeError(w, "create highlight", err)
		return
	}
	w.Header().Set("ETag", checksum.ETag(etag(a)))
	writeJSON(w, http.StatusCreated, a)
}

// GetAnnotation handles GET /api/annotations/{id}.
//
//	@Summary		Get an annotation with its links and backlinks
//	@Tags			annotations
//	@Produce		json
//	@Param			id		path		string	true	"Annotation id"
//	@Param			path	query		string	false	"Owning document, current when empty"
//	@Success		200		{object}	AnnotationResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/annotations/{id} [get]
func (h *Handler) GetAnnotation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, views, ok := h.sess.Get(id, r.URL.Query().Get("path"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	if views == nil {
		views = []links.View{}
	}
	w.Header().Set("ETag", checksum.ETag(etag(a)))
	writeJSON(w, http.StatusOK, AnnotationResponse{
		Annotation: a,
		LinkViews:  views,
		Backlinks:  nonNil(h.sess.Backlinks(a.ID, a.FilePath)),
	})
}

// UpdateAnnotation handles PATCH /api/annotations/{id}.
//
//	@Summary		Update an annotation with optimistic concurrency
//	@Tags			annotations
//	@Accept			json
//	@Produce		json
//	@Param			id			path	string					true	"Annotation id"
//	@Param			If-Match	header	string					false	"ETag from a previous read"
//	@Param			body		body	UpdateAnnotationRequest	true	"Fields to change"
//	@Success		200		{object}	models.Annotation
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/annotations/{id} [patch]
func (h *Handler) UpdateAnnotation(w http.ResponseWriter, r *http.Request) {
	h.switchTo(r)
	id := chi.URLParam(r, "id")
	var req UpdateAnnotationRequest
	if !decode(w, r, &req) {
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	if ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`); ifMatch != "" {
		cur, _, ok := h.sess.Get(id, h.sess.CurrentPath())
		if !ok {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		if etag(cur) != ifMatch {
			writeError(w, "update annotation", apperr.ErrConflict)
			return
		}
	}

	a, ok := h.sess.UpdateAnnotation(id, req.Patch)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.Header().Set("ETag", checksum.ETag(etag(a)))
	writeJSON(w, http.StatusOK, a)
}

// DeleteAnnotation handles DELETE /api/annotations/{id}.
//
//	@Summary		Delete an annotation of the current document
//	@Tags			annotations
//	@Param			id		path	string	true	"Annotation id"
//	@Success		204		"Annotation deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/annotations/{id} [delete]
func (h *Handler) DeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	h.switchTo(r)
	if !h.sess.DeleteAnnotation(chi.URLParam(r, "id")) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleLink handles POST /api/links/toggle.
//
//	@Summary		Create the link if absent, remove it if present
//	@Tags			links
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LinkRequest	true	"Link endpoints"
//	@Success		200		{object}	LinkResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links/toggle [post]
func (h *Handler) ToggleLink(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if !decode(w, r, &req) {
		return
	}
	res := h.sess.ToggleLink(req.SourceID, req.TargetID, req.TargetFilePath)
	if res == links.NoOp {
		writeJSON(w, http.StatusNotFound, errorBody("source not found or self link"))
		return
	}
	writeJSON(w, http.StatusOK, LinkResponse{Result: res})
}

// RemoveLink handles POST /api/links/remove.
//
//	@Summary		Remove a link if present
//	@Tags			links
//	@Accept			json
//	@Param			body	body	LinkRequest	true	"Link endpoints"
//	@Success		204		"Link removed"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links/remove [post]
func (h *Handler) RemoveLink(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if !decode(w, r, &req) {
		return
	}
	if !h.sess.RemoveLink(req.SourceID, req.TargetID, req.TargetFilePath) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BrokenLinks handles GET /api/links/broken.
func (h *Handler) BrokenLinks(w http.ResponseWriter, _ *http.Request) {
	broken := h.sess.BrokenLinks()
	out := make([]map[string]string, 0, len(broken))
	for _, b := range broken {
		out = append(out, map[string]string{
			"owner":          b.Owner,
			"sourceId":       b.SourceID,
			"targetId":       b.Key.ID,
			"targetFilePath": b.Key.FilePath,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"broken": out})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across every document's annotations
//	@Tags			annotations
//	@Produce		json
//	@Param			q		query		string	true	"Query"
//	@Param			limit	query		int		false	"Max hits (default 20)"
//	@Success		200		{object}	SearchResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q is required"))
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be between 1 and 200"))
			return
		}
		limit = n
	}
	hits, err := h.sess.Search(q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	if hits == nil {
		hits = []index.Hit{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: q, Hits: hits})
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the canvas graph of a document
//	@Tags			graph
//	@Produce		json
//	@Param			path	query		string	false	"Document path, current when empty"
//	@Success		200		{object}	graph.Graph
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	h.switchTo(r)
	writeJSON(w, http.StatusOK, h.sess.Snapshot())
}

const (
	defaultPNGWidth  = 1200
	defaultPNGHeight = 800
	maxPNGSide       = 8192
)

func dimension(q string, def int) (int, bool) {
	if q == "" {
		return def, true
	}
	n, err := strconv.Atoi(q)
	if err != nil || n < 1 || n > maxPNGSide {
		return 0, false
	}
	return n, true
}

// GraphPNG handles GET /api/graph.png.
//
//	@Summary		Rasterize the canvas
//	@Tags			graph
//	@Produce		png
//	@Param			path	query	string	false	"Document path, current when empty"
//	@Param			width	query	int		false	"Image width"
//	@Param			height	query	int		false	"Image height"
//	@Param			fit		query	bool	false	"Fit the graph into the image first"
//	@Success		200
//	@Security		BearerAuth
//	@Router			/graph.png [get]
func (h *Handler) GraphPNG(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	width, okW := dimension(q.Get("width"), defaultPNGWidth)
	height, okH := dimension(q.Get("height"), defaultPNGHeight)
	if !okW || !okH {
		writeJSON(w, http.StatusBadRequest, errorBody("width and height must be between 1 and 8192"))
		return
	}
	h.switchTo(r)
	if fit, _ := strconv.ParseBool(q.Get("fit")); fit {
		h.sess.Graph()
		h.sess.FitTransform(float64(width), float64(height))
	}
	var buf bytes.Buffer
	if err := h.sess.RenderPNG(&buf, width, height); err != nil {
		writeError(w, "render png", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// CanvasEvents handles POST /api/canvas/events.
//
//	@Summary		Feed input events to the canvas controller
//	@Tags			canvas
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CanvasEventsRequest	true	"Events in order"
//	@Success		200		{array}		workspace.InputResult
//	@Security		BearerAuth
//	@Router			/canvas/events [post]
func (h *Handler) CanvasEvents(w http.ResponseWriter, r *http.Request) {
	var req CanvasEventsRequest
	if !decode(w, r, &req) {
		return
	}
	h.switchTo(r)
	out := make([]workspace.InputResult, 0, len(req.Events))
	for _, ev := range req.Events {
		out = append(out, h.sess.HandleInput(ev))
	}
	writeJSON(w, http.StatusOK, out)
}

// CanvasMenu handles POST /api/canvas/menu.
func (h *Handler) CanvasMenu(w http.ResponseWriter, r *http.Request) {
	var req MenuRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.sess.ApplyMenu(req.Target, req.Item)
	if err != nil {
		writeError(w, "canvas menu", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CanvasEdit handles POST /api/canvas/edit, the edit dialog's save.
func (h *Handler) CanvasEdit(w http.ResponseWriter, r *http.Request) {
	var f workspace.Fields
	if !decode(w, r, &f) {
		return
	}
	a, err := h.sess.ApplyEdit(f)
	if err != nil {
		writeError(w, "canvas edit", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
