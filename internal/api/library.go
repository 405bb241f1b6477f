package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
)

const maxUploadBytes = 200 << 20 // 200 MB

// supportedExt lists the document types the text extractors understand.
var supportedExt = map[string]bool{
	".pdf": true, ".md": true, ".markdown": true, ".docx": true,
	".epub": true, ".txt": true, ".text": true,
}

// LibraryHandler serves and accepts the document files annotations are
// made against.
type LibraryHandler struct {
	root string
}

// NewLibraryHandler creates a handler rooted at the library directory.
func NewLibraryHandler(root string) *LibraryHandler {
	return &LibraryHandler{root: root}
}

// safeName validates that the filename is a plain name (no path separators,
// no traversal) and returns the absolute path under the library root.
func (h *LibraryHandler) safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	root, err := filepath.Abs(h.root)
	if err != nil {
		return "", err
	}
	abs := filepath.Join(root, cleaned)
	if !strings.HasPrefix(abs, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes library directory")
	}
	return abs, nil
}

// LibraryItem describes one stored document file.
type LibraryItem struct {
	Name string `json:"name" example:"report.pdf"`
	Path string `json:"path" example:"/srv/library/report.pdf"`
	Size int64  `json:"size" example:"12345"`
	URL  string `json:"url" example:"/library/report.pdf"`
}

// List handles GET /api/library.
func (h *LibraryHandler) List(w http.ResponseWriter, _ *http.Request) {
	entries, err := os.ReadDir(h.root)
	if err != nil && !os.IsNotExist(err) {
		writeError(w, "list library", err)
		return
	}
	items := []LibraryItem{}
	for _, e := range entries {
		if e.IsDir() || !supportedExt[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		abs, err := h.safeName(e.Name())
		if err != nil {
			continue
		}
		items = append(items, LibraryItem{Name: e.Name(), Path: abs, Size: info.Size(), URL: "/library/" + e.Name()})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	writeJSON(w, http.StatusOK, map[string]any{"documents": items})
}

// ServeFile handles GET /api/library/{filename}.
func (h *LibraryHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.safeName(chi.URLParam(r, "filename"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if _, statErr := os.Stat(abs); os.IsNotExist(statErr) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	http.ServeFile(w, r, abs)
}

// Upload handles POST /api/library (multipart/form-data, field "file").
func (h *LibraryHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	abs, err := h.safeName(header.Filename)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if !supportedExt[strings.ToLower(filepath.Ext(abs))] {
		writeJSON(w, http.StatusUnsupportedMediaType, errorBody("unsupported document type"))
		return
	}

	if err := os.MkdirAll(h.root, 0o755); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to create library dir"))
		return
	}

	dst, err := os.Create(abs)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to create file"))
		return
	}
	defer dst.Close()

	written, err := io.Copy(dst, file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to write file"))
		return
	}

	writeJSON(w, http.StatusCreated, LibraryItem{
		Name: filepath.Base(abs),
		Path: abs,
		Size: written,
		URL:  "/library/" + filepath.Base(abs),
	})
}
