package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/starford/pinenote/internal/apperr"
	"github.com/starford/pinenote/internal/session"
)

// Sessions is the session provider surface the auth routes use.
type Sessions interface {
	Current() *session.Session
	SignIn(ctx context.Context, email, password string) (*session.Session, error)
	SignUp(ctx context.Context, email, password string) (*session.SignUpResult, error)
	SignOut(ctx context.Context) error
}

// AuthHandler holds the sign-in, sign-up and sign-out handlers.
type AuthHandler struct {
	sessions Sessions
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(sessions Sessions) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

func sessionResponse(s *session.Session) SessionResponse {
	if s == nil {
		return SessionResponse{}
	}
	resp := SessionResponse{Authenticated: true, User: &s.User}
	if !s.ExpiresAt.IsZero() {
		at := s.ExpiresAt
		resp.ExpiresAt = &at
	}
	return resp
}

// Session handles GET /api/auth/session.
func (h *AuthHandler) Session(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sessionResponse(h.sessions.Current()))
}

// SignIn handles POST /api/auth/signin.
//
//	@Summary	Sign in with e-mail and password
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Param		body	body		CredentialsRequest	true	"Credentials"
//	@Success	200		{object}	SessionResponse
//	@Failure	400		{object}	errResponse
//	@Failure	401		{object}	errResponse
//	@Router		/auth/signin [post]
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	s, err := h.sessions.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody(apperr.Message(err)))
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(s))
}

// SignUp handles POST /api/auth/signup.
//
//	@Summary	Register a new account
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Param		body	body		CredentialsRequest	true	"Credentials"
//	@Success	201		{object}	SignUpResponse
//	@Failure	400		{object}	errResponse
//	@Router		/auth/signup [post]
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	res, err := h.sessions.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(apperr.Message(err)))
		return
	}
	writeJSON(w, http.StatusCreated, SignUpResponse{User: res.User, ConfirmationRequired: res.ConfirmationRequired})
}

// SignOut handles POST /api/auth/signout.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.SignOut(r.Context()); err != nil {
		slog.Error("sign out failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
