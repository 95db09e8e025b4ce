package devbackend

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/pinenote/internal/apperr"
	"github.com/starford/pinenote/internal/models"
)

const (
	mediaObject        = "application/vnd.pgrst.object+json"
	minPasswordLength  = 6
	defaultTokenTTL    = time.Hour
	maxRequestBodySize = 1 << 20
)

// Server serves the emulated auth and table endpoints.
type Server struct {
	db          *DB
	anonKey     string
	tokenTTL    time.Duration
	autoConfirm bool
	bcryptCost  int
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithTokenTTL sets the lifetime of issued access tokens.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.tokenTTL = d }
}

// WithAutoConfirm makes sign-up return a session right away.
func WithAutoConfirm(v bool) Option {
	return func(s *Server) { s.autoConfirm = v }
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Server) { s.bcryptCost = cost }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates a server over db that accepts anonKey as its API key.
func NewServer(db *DB, anonKey string, opts ...Option) *Server {
	s := &Server{
		db:         db,
		anonKey:    anonKey,
		tokenTTL:   defaultTokenTTL,
		bcryptCost: bcrypt.DefaultCost,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying store.
func (s *Server) DB() *DB { return s.db }

// Handler returns the HTTP handler with /auth/v1 and /rest/v1 mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)

		r.Route("/auth/v1", func(r chi.Router) {
			r.Post("/signup", s.signUp)
			r.Post("/token", s.token)
			r.Post("/logout", s.logout)
		})

		r.Route("/rest/v1", func(r chi.Router) {
			r.Get("/notes", s.selectNotes)
			r.Post("/notes", s.insertNote)
			r.Patch("/notes", s.updateNote)
			r.Delete("/notes", s.deleteNote)
			r.Get("/comments", s.selectComments)
			r.Post("/comments", s.insertComment)
		})
	})
	return r
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != s.anonKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid API key"})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		next.ServeHTTP(w, r)
	})
}

// caller resolves the bearer token. A nil user with a nil error is the
// anonymous role.
func (s *Server) caller(r *http.Request) (*models.User, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" || token == s.anonKey {
		return nil, nil
	}
	u, err := s.db.UserForAccessToken(r.Context(), token, s.now())
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// --- auth ---

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionBody struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	RefreshToken string      `json:"refresh_token"`
	User         models.User `json:"user"`
}

func authError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"code": status, "error_code": code, "msg": msg})
}

func grantError(w http.ResponseWriter, description string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": description})
}

func (s *Server) issue(ctx context.Context, u models.User) (*sessionBody, error) {
	now := s.now()
	expires := now.Add(s.tokenTTL)
	access, refresh := uuid.NewString(), uuid.NewString()
	if err := s.db.InsertTokens(ctx, access, refresh, u.ID, expires); err != nil {
		return nil, err
	}
	return &sessionBody{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.tokenTTL / time.Second),
		ExpiresAt:    expires.Unix(),
		RefreshToken: refresh,
		User:         u,
	}, nil
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		authError(w, http.StatusBadRequest, "bad_json", "Could not parse request body as JSON")
		return
	}
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if err := validation.Validate(c.Email, validation.Required, is.EmailFormat); err != nil {
		authError(w, http.StatusUnprocessableEntity, "validation_failed", "Unable to validate email address: invalid format")
		return
	}
	if err := validation.Validate(c.Password, validation.Required, validation.RuneLength(minPasswordLength, 0)); err != nil {
		authError(w, http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters.")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), s.bcryptCost)
	if err != nil {
		s.internal(w, "hash password", err)
		return
	}
	u := models.User{ID: uuid.NewString(), Email: c.Email}
	now := s.now()
	if err := s.db.CreateUser(r.Context(), u.ID, u.Email, string(hash), s.autoConfirm, now); err != nil {
		if errors.Is(err, errEmailTaken) {
			authError(w, http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
			return
		}
		s.internal(w, "create user", err)
		return
	}
	s.logger.Info("user signed up", slog.String("user_id", u.ID), slog.Bool("confirmed", s.autoConfirm))

	if !s.autoConfirm {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":                   u.ID,
			"email":                u.Email,
			"confirmation_sent_at": now.UTC(),
		})
		return
	}
	sess, err := s.issue(r.Context(), u)
	if err != nil {
		s.internal(w, "issue tokens", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("grant_type") {
	case "password":
		s.passwordGrant(w, r)
	case "refresh_token":
		s.refreshGrant(w, r)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "unsupported_grant_type",
			"error_description": "grant_type must be password or refresh_token",
		})
	}
}

func (s *Server) passwordGrant(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		grantError(w, "Could not parse request body as JSON")
		return
	}
	u, hash, confirmed, err := s.db.UserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(c.Email)))
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		s.internal(w, "lookup user", err)
		return
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(hash), []byte(c.Password)) != nil {
		grantError(w, "Invalid login credentials")
		return
	}
	if !confirmed {
		grantError(w, "Email not confirmed")
		return
	}
	sess, err := s.issue(r.Context(), u)
	if err != nil {
		s.internal(w, "issue tokens", err)
		return
	}
	s.logger.Info("user signed in", slog.String("user_id", u.ID))
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) refreshGrant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		grantError(w, "Invalid Refresh Token: Refresh Token Not Found")
		return
	}
	now := s.now()
	expires := now.Add(s.tokenTTL)
	access, refresh := uuid.NewString(), uuid.NewString()
	u, err := s.db.RotateRefreshToken(r.Context(), body.RefreshToken, access, refresh, expires)
	if errors.Is(err, errInvalidToken) {
		grantError(w, "Invalid Refresh Token: Refresh Token Not Found")
		return
	}
	if err != nil {
		s.internal(w, "rotate refresh token", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionBody{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.tokenTTL / time.Second),
		ExpiresAt:    expires.Unix(),
		RefreshToken: refresh,
		User:         u,
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	u, err := s.caller(r)
	if err != nil || u == nil {
		authError(w, http.StatusUnauthorized, "bad_jwt", "invalid JWT: unable to parse or verify signature")
		return
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if err := s.db.RevokeAccessToken(r.Context(), token); err != nil {
		s.internal(w, "revoke token", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- tables ---

type restError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
	Hint    any    `json:"hint"`
}

func writeRestError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, restError{Code: code, Message: msg})
}

func rlsViolation(w http.ResponseWriter, anonymous bool, table string) {
	status := http.StatusForbidden
	if anonymous {
		status = http.StatusUnauthorized
	}
	writeRestError(w, status, "42501", `new row violates row-level security policy for table "`+table+`"`)
}

func wantsObject(r *http.Request) bool {
	return r.Header.Get("Accept") == mediaObject
}

func wantsRepresentation(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Prefer"), "return=representation")
}

// writeRows answers with the rows as an array, or as a single object when
// the client asked for one.
func writeRows[T any](w http.ResponseWriter, r *http.Request, status int, rows []T) {
	if !wantsObject(r) {
		writeJSON(w, status, rows)
		return
	}
	if len(rows) != 1 {
		writeRestError(w, http.StatusNotAcceptable, "PGRST116", "JSON object requested, multiple (or no) rows returned")
		return
	}
	writeJSON(w, status, rows[0])
}

func eqFilter(r *http.Request, column string) (string, bool) {
	v := r.URL.Query().Get(column)
	if v == "" {
		return "", false
	}
	return strings.CutPrefix(v, "eq.")
}

func parseOrder(r *http.Request, fallback Order, allowed ...string) (Order, bool) {
	raw := r.URL.Query().Get("order")
	if raw == "" {
		return fallback, true
	}
	col, dir, _ := strings.Cut(raw, ".")
	ok := false
	for _, a := range allowed {
		if col == a {
			ok = true
			break
		}
	}
	if !ok {
		return fallback, false
	}
	switch dir {
	case "", "asc":
		return Order{Column: col}, true
	case "desc":
		return Order{Column: col, Desc: true}, true
	default:
		return fallback, false
	}
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	u, err := s.caller(r)
	if err != nil {
		if errors.Is(err, errInvalidToken) {
			writeRestError(w, http.StatusUnauthorized, "PGRST301", "JWT expired")
		} else {
			s.internal(w, "resolve caller", err)
		}
		return nil, false
	}
	return u, true
}

func (s *Server) selectNotes(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authorize(w, r)
	if !ok {
		return
	}
	order, ok := parseOrder(r, Order{Column: "created_at"}, "created_at", "updated_at", "title")
	if !ok {
		writeRestError(w, http.StatusBadRequest, "PGRST100", "failed to parse order")
		return
	}
	if u == nil {
		writeRows(w, r, http.StatusOK, []models.Note{})
		return
	}
	if owner, ok := eqFilter(r, "user_id"); ok && owner != u.ID {
		writeRows(w, r, http.StatusOK, []models.Note{})
		return
	}

	if id, ok := eqFilter(r, "id"); ok {
		n, err := s.db.GetNote(r.Context(), id, u.ID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeRows(w, r, http.StatusOK, []models.Note{})
		case err != nil:
			s.internal(w, "get note", err)
		default:
			writeRows(w, r, http.StatusOK, []models.Note{*n})
		}
		return
	}

	rows, err := s.db.ListNotes(r.Context(), u.ID, order)
	if err != nil {
		s.internal(w, "list notes", err)
		return
	}
	writeRows(w, r, http.StatusOK, rows)
}

func (s *Server) insertNote(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authorize(w, r)
	if !ok {
		return
	}
	var body struct {
		Title   *string `json:"title"`
		Content string  `json:"content"`
		UserID  string  `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeRestError(w, http.StatusBadRequest, "PGRST102", "Empty or invalid json")
		return
	}
	if u == nil || body.UserID != u.ID {
		rlsViolation(w, u == nil, "notes")
		return
	}
	if body.Title == nil {
		writeRestError(w, http.StatusBadRequest, "23502", `null value in column "title" violates not-null constraint`)
		return
	}

	now := s.now().UTC()
	n := models.Note{
		ID:        uuid.NewString(),
		Title:     *body.Title,
		Content:   body.Content,
		UserID:    u.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.InsertNote(r.Context(), n); err != nil {
		s.internal(w, "insert note", err)
		return
	}
	stored, err := s.db.GetNote(r.Context(), n.ID, u.ID)
	if err != nil {
		s.internal(w, "read back note", err)
		return
	}
	s.logger.Debug("note inserted", slog.String("id", n.ID))

	if !wantsRepresentation(r) {
		w.WriteHeader(http.StatusCreated)
		return
	}
	writeRows(w, r, http.StatusCreated, []models.Note{*stored})
}

func (s *Server) updateNote(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authorize(w, r)
	if !ok {
		return
	}
	id, ok := eqFilter(r, "id")
	if !ok {
		writeRestError(w, http.StatusBadRequest, "21000", "UPDATE requires a WHERE clause")
		return
	}
	// updated_at from the client is ignored; the server stamps it.
	var body struct {
		Title   *string `json:"title"`
		Content *string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeRestError(w, http.StatusBadRequest, "PGRST102", "Empty or invalid json")
		return
	}

	var rows []models.Note
	if u != nil {
		n, err := s.db.UpdateNote(r.Context(), id, u.ID, body.Title, body.Content, s.now())
		switch {
		case errors.Is(err, apperr.ErrNotFound):
		case err != nil:
			s.internal(w, "update note", err)
			return
		default:
			rows = append(rows, *n)
		}
	}
	if rows == nil {
		rows = []models.Note{}
	}

	if !wantsRepresentation(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeRows(w, r, http.StatusOK, rows)
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authorize(w, r)
	if !ok {
		return
	}
	id, ok := eqFilter(r, "id")
	if !ok {
		writeRestError(w, http.StatusBadRequest, "21000", "DELETE requires a WHERE clause")
		return
	}
	if u != nil {
		if err := s.db.DeleteNote(r.Context(), id, u.ID); err != nil {
			s.internal(w, "delete note", err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) selectComments(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authorize(w, r)
	if !ok {
		return
	}
	noteID, ok := eqFilter(r, "note_id")
	if !ok {
		writeRestError(w, http.StatusBadRequest, "PGRST100", "note_id filter is required")
		return
	}
	order, ok := parseOrder(r, Order{Column: "created_at"}, "created_at")
	if !ok {
		writeRestError(w, http.StatusBadRequest, "PGRST100", "failed to parse order")
		return
	}
	if u == nil {
		writeRows(w, r, http.StatusOK, []models.Comment{})
		return
	}
	rows, err := s.db.ListComments(r.Context(), noteID, u.ID, order)
	if err != nil {
		s.internal(w, "list comments", err)
		return
	}
	writeRows(w, r, http.StatusOK, rows)
}

func (s *Server) insertComment(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authorize(w, r)
	if !ok {
		return
	}
	var body struct {
		NoteID  string `json:"note_id"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeRestError(w, http.StatusBadRequest, "PGRST102", "Empty or invalid json")
		return
	}
	if u == nil {
		rlsViolation(w, true, "comments")
		return
	}
	if _, err := s.db.GetNote(r.Context(), body.NoteID, u.ID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			rlsViolation(w, false, "comments")
			return
		}
		s.internal(w, "get note", err)
		return
	}
	if strings.TrimSpace(body.Content) == "" {
		writeRestError(w, http.StatusBadRequest, "23514", `new row for relation "comments" violates check constraint "comments_content_check"`)
		return
	}

	c := models.Comment{ID: uuid.NewString(), NoteID: body.NoteID, Content: body.Content}
	if err := s.db.InsertComment(r.Context(), c, s.now()); err != nil {
		s.internal(w, "insert comment", err)
		return
	}
	if !wantsRepresentation(r) {
		w.WriteHeader(http.StatusCreated)
		return
	}
	writeRows(w, r, http.StatusCreated, []models.Comment{c})
}

func (s *Server) internal(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, restError{Code: "XX000", Message: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}
