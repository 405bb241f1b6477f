package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/marginalia/internal/workspace"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// libraryRoot is the directory document files are served from and uploaded to.
func NewRouter(sess *workspace.Session, authEnabled bool, token string, sseHandler http.Handler, libraryRoot string) chi.Router {
	h := NewHandler(sess)
	lh := NewLibraryHandler(libraryRoot)

	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Use(AuthMiddleware(authEnabled, token))

	// Documents and their files.
	r.Get("/documents", h.Documents)
	r.Get("/library", lh.List)
	r.Post("/library", lh.Upload)
	r.Get("/library/{filename}", lh.ServeFile)

	// Annotations.
	r.Get("/annotations", h.ListAnnotations)
	r.Post("/notes", h.CreateNote)
	r.Post("/highlights", h.CreateHighlight)
	r.Get("/annotations/{id}", h.GetAnnotation)
	r.Patch("/annotations/{id}", h.UpdateAnnotation)
	r.Delete("/annotations/{id}", h.DeleteAnnotation)
	r.Get("/search", h.Search)

	// Links.
	r.Post("/links/toggle", h.ToggleLink)
	r.Post("/links/remove", h.RemoveLink)
	r.Get("/links/broken", h.BrokenLinks)

	// Graph and canvas.
	r.Get("/graph", h.Graph)
	r.Get("/graph.png", h.GraphPNG)
	r.Post("/canvas/events", h.CanvasEvents)
	r.Post("/canvas/menu", h.CanvasMenu)
	r.Post("/canvas/edit", h.CanvasEdit)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
