package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/pinenote/internal/checksum"
	"github.com/starford/pinenote/internal/comments"
	"github.com/starford/pinenote/internal/dashboard"
)

// Refresher reloads the note cache.
type Refresher interface {
	List(ctx context.Context) error
}

// Handler holds the dashboard and note detail route handlers.
type Handler struct {
	dash     *dashboard.Controller
	notes    Refresher
	comments *comments.Service
}

// NewHandler creates a new Handler.
func NewHandler(dash *dashboard.Controller, notes Refresher, cs *comments.Service) *Handler {
	return &Handler{dash: dash, notes: notes, comments: cs}
}

// ListNotes handles GET /api/dashboard/notes.
//
//	@Summary	Cached notes filtered by an optional query, plus editor state
//	@Tags		dashboard
//	@Produce	json
//	@Param		q	query		string	false	"Case-insensitive match on title or content"
//	@Success	200	{object}	dashboard.View
//	@Success	304
//	@Failure	401	{object}	errResponse
//	@Router		/dashboard/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	view := h.dash.View(r.URL.Query().Get("q"))
	body, err := json.Marshal(view)
	if err != nil {
		slog.Error("encode view failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	etag := checksum.ETag(body)
	w.Header().Set("ETag", etag)
	if checksum.Match(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}

// Refresh handles POST /api/dashboard/refresh.
//
//	@Summary	Reload the note cache from the remote service
//	@Tags		dashboard
//	@Produce	json
//	@Success	200	{object}	dashboard.View
//	@Failure	502	{object}	errResponse
//	@Router		/dashboard/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.notes.List(r.Context()); err != nil {
		writeError(w, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, h.dash.View(""))
}

// DeleteNote handles DELETE /api/dashboard/notes/{id}?confirm=true.
//
//	@Summary	Delete a note after user confirmation
//	@Tags		dashboard
//	@Param		id		path	string	true	"Note id"
//	@Param		confirm	query	bool	true	"Must be true"
//	@Success	204
//	@Failure	428	{object}	errResponse
//	@Failure	502	{object}	errResponse
//	@Router		/dashboard/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	if err := h.dash.Delete(r.Context(), id, confirmed); err != nil {
		writeError(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Editor handles GET /api/dashboard/editor.
func (h *Handler) Editor(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.dash.Editor())
}

// OpenNew handles POST /api/dashboard/editor/new.
func (h *Handler) OpenNew(w http.ResponseWriter, _ *http.Request) {
	e, err := h.dash.CreateIntent()
	if err != nil {
		writeError(w, "open editor", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// OpenEdit handles POST /api/dashboard/editor/edit/{id}.
func (h *Handler) OpenEdit(w http.ResponseWriter, r *http.Request) {
	n, err := h.dash.Find(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "open editor", err)
		return
	}
	e, err := h.dash.EditIntent(n)
	if err != nil {
		writeError(w, "open editor", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// Save handles POST /api/dashboard/editor/save.
//
//	@Summary	Create or update the note open in the editor
//	@Tags		dashboard
//	@Accept		json
//	@Produce	json
//	@Param		body	body		SaveRequest	true	"Draft"
//	@Success	200		{object}	SaveResponse
//	@Failure	400		{object}	errResponse
//	@Failure	409		{object}	errResponse
//	@Failure	502		{object}	errResponse
//	@Router		/dashboard/editor/save [post]
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.dash.Save(r.Context(), req.Title, req.Content)
	if err != nil {
		writeError(w, "save note", err)
		return
	}
	writeJSON(w, http.StatusOK, SaveResponse{Note: n, Editor: h.dash.Editor()})
}

// Cancel handles POST /api/dashboard/editor/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.dash.Cancel())
}

// NoteDetail handles GET /api/notes/{id}.
//
//	@Summary	A note with its comments
//	@Tags		notes
//	@Produce	json
//	@Param		id	path		string	true	"Note id"
//	@Success	200	{object}	comments.Detail
//	@Failure	404	{object}	errResponse
//	@Router		/notes/{id} [get]
func (h *Handler) NoteDetail(w http.ResponseWriter, r *http.Request) {
	d, err := h.comments.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "note detail", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// AddComment handles POST /api/notes/{id}/comments.
//
//	@Summary	Append a comment to a note
//	@Tags		notes
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string			true	"Note id"
//	@Param		body	body		CommentRequest	true	"Comment"
//	@Success	201		{object}	models.Comment
//	@Failure	400		{object}	errResponse
//	@Router		/notes/{id}/comments [post]
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req CommentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.comments.AddComment(r.Context(), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeError(w, "add comment", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}
