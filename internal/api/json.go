package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/marginalia/internal/annotations"
	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/workspace"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// decode reads a JSON body into v and validates it when v knows how.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if vv, ok := v.(validation.Validatable); ok {
		if err := vv.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return false
		}
	}
	return true
}

// writeError maps domain errors onto status codes. Anything unknown is
// logged and reported as an internal error.
func writeError(w http.ResponseWriter, op string, err error) {
	var verrs validation.Errors
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("already exists"))
	case errors.Is(err, annotations.ErrNoDocument):
		writeJSON(w, http.StatusConflict, errorBody("no document open"))
	case errors.Is(err, workspace.ErrReadOnly):
		writeJSON(w, http.StatusForbidden, errorBody("annotation belongs to another document"))
	case errors.Is(err, apperr.ErrInvalidInput), errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
