// Package comments serves the note detail view and its append-only comment
// thread.
package comments

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/starford/pinenote/internal/apperr"
	"github.com/starford/pinenote/internal/models"
	"github.com/starford/pinenote/internal/session"
)

// Store is the remote table API the service needs.
type Store interface {
	GetNote(ctx context.Context, token, id string) (*models.Note, error)
	ListComments(ctx context.Context, token, noteID string) ([]models.Comment, error)
	InsertComment(ctx context.Context, token string, in models.CommentInput) (*models.Comment, error)
}

// SessionSource yields the session to act as, if any.
type SessionSource interface {
	Current() *session.Session
}

// Detail is a note with its comments.
type Detail struct {
	Note     models.Note      `json:"note"`
	Comments []models.Comment `json:"comments"`
}

// Service reads note details and appends comments.
type Service struct {
	store    Store
	sessions SessionSource
	logger   *slog.Logger
}

// NewService creates a comment service. A nil logger uses slog.Default.
func NewService(store Store, sessions SessionSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, sessions: sessions, logger: logger}
}

// Detail fetches a note and its comments in server order. It uses the
// current session when there is one and goes anonymous otherwise, leaving
// visibility to the remote service.
func (s *Service) Detail(ctx context.Context, noteID string) (*Detail, error) {
	token := s.token()

	n, err := s.store.GetNote(ctx, token, noteID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Failed("detail", "Note not found", err)
		}
		s.logger.Error("load note failed", slog.String("id", noteID), slog.String("error", err.Error()))
		return nil, apperr.Failed("detail", "Failed to load note", err)
	}

	cs, err := s.store.ListComments(ctx, token, noteID)
	if err != nil {
		s.logger.Error("load comments failed", slog.String("id", noteID), slog.String("error", err.Error()))
		return nil, apperr.Failed("detail", "Failed to load comments", err)
	}
	return &Detail{Note: *n, Comments: cs}, nil
}

// AddComment appends a comment to a note and returns the stored row.
func (s *Service) AddComment(ctx context.Context, noteID, content string) (*models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Failed("add_comment", "Comment is required", apperr.ErrEmptyComment)
	}
	c, err := s.store.InsertComment(ctx, s.token(), models.CommentInput{NoteID: noteID, Content: content})
	if err != nil {
		s.logger.Error("add comment failed", slog.String("note_id", noteID), slog.String("error", err.Error()))
		return nil, apperr.Failed("add_comment", "Failed to add comment", err)
	}
	s.logger.Info("comment added", slog.String("note_id", noteID), slog.String("id", c.ID))
	return c, nil
}

func (s *Service) token() string {
	if sess := s.sessions.Current(); sess != nil {
		return sess.AccessToken
	}
	return ""
}
