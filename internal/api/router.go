package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/pinenote/internal/comments"
	"github.com/starford/pinenote/internal/dashboard"
)

// RouterConfig collects what the API routes are served from.
type RouterConfig struct {
	Sessions  Sessions
	Notes     Refresher
	Dashboard *dashboard.Controller
	Comments  *comments.Service

	// Events, if non-nil, is mounted at GET /events.
	Events http.Handler

	// Token, when non-empty, is required as a Bearer token on every route.
	Token string

	// PublicDetail leaves the note detail routes reachable without a session.
	PublicDetail bool
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(cfg RouterConfig) chi.Router {
	h := NewHandler(cfg.Dashboard, cfg.Notes, cfg.Comments)
	ah := NewAuthHandler(cfg.Sessions)

	r := chi.NewRouter()
	r.Use(RequireToken(cfg.Token))

	r.Route("/auth", func(r chi.Router) {
		r.Get("/session", ah.Session)
		r.Post("/signin", ah.SignIn)
		r.Post("/signup", ah.SignUp)
		r.Post("/signout", ah.SignOut)
	})

	r.Route("/dashboard", func(r chi.Router) {
		r.Use(RequireSession(cfg.Sessions))

		r.Get("/notes", h.ListNotes)
		r.Delete("/notes/{id}", h.DeleteNote)
		r.Post("/refresh", h.Refresh)

		r.Get("/editor", h.Editor)
		r.Post("/editor/new", h.OpenNew)
		r.Post("/editor/edit/{id}", h.OpenEdit)
		r.Post("/editor/save", h.Save)
		r.Post("/editor/cancel", h.Cancel)
	})

	r.Group(func(r chi.Router) {
		if !cfg.PublicDetail {
			r.Use(RequireSession(cfg.Sessions))
		}
		r.Get("/notes/{id}", h.NoteDetail)
		r.Post("/notes/{id}/comments", h.AddComment)
	})

	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}

	return r
}
