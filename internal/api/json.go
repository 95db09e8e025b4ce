package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/pinenote/internal/apperr"
	"github.com/starford/pinenote/internal/dashboard"
)

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

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// writeError maps a domain error onto a status code.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrEmptyTitle), errors.Is(err, apperr.ErrEmptyComment):
		writeJSON(w, http.StatusBadRequest, errorBody(apperr.Message(err)))
	case errors.Is(err, apperr.ErrNoSession):
		writeJSON(w, http.StatusUnauthorized, errorBody("not signed in"))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrSessionChanged):
		writeJSON(w, http.StatusConflict, errorBody(apperr.Message(err)))
	case errors.Is(err, dashboard.ErrEditorOpen), errors.Is(err, dashboard.ErrEditorClosed):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, dashboard.ErrNotConfirmed):
		writeJSON(w, http.StatusPreconditionRequired, errorBody("confirmation required"))
	default:
		var opErr *apperr.OpError
		if errors.As(err, &opErr) {
			writeJSON(w, http.StatusBadGateway, errorBody(opErr.Message))
			return
		}
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
