package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/SilentInt/HamsterWallet/internal/core"
)

// envelope is the uniform JSON response shape: {"success": true, "data": ...}
// on success, {"success": false, "message": ...} on failure.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func respondData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: true, Message: message})
}

func respondError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// respondServiceError maps domain sentinel errors to HTTP statuses. Anything
// not recognized is a 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var referenced *core.StillReferencedError
	switch {
	case errors.As(err, &referenced):
		writeJSON(w, http.StatusConflict, struct {
			Success  bool                 `json:"success"`
			Message  string               `json:"message"`
			Blocking []core.CategoryUsage `json:"blocking"`
		}{false, err.Error(), referenced.Blocking})
	case errors.Is(err, core.ErrConflict),
		errors.Is(err, core.ErrHasChildren):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrNothingToDo),
		errors.Is(err, core.ErrNotReady),
		errors.Is(err, core.ErrNotRunning),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrInvalidLevel),
		errors.Is(err, core.ErrMissingParent),
		errors.Is(err, core.ErrParentLevel),
		errors.Is(err, core.ErrDuplicateName),
		errors.Is(err, core.ErrDepthExceeded),
		errors.Is(err, core.ErrCycleDetected),
		errors.Is(err, core.ErrLevelMismatch),
		errors.Is(err, core.ErrSelfMerge):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Request failed", "method", r.Method, "url", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody decodes a JSON request body into dst. An empty body is allowed
// and leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
