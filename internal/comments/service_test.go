package comments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/pinenote/internal/apperr"
	"github.com/starford/pinenote/internal/models"
	"github.com/starford/pinenote/internal/session"
)

type fakeStore struct {
	tokens   []string
	note     *models.Note
	noteErr  error
	comments []models.Comment
	inserted []models.CommentInput
}

func (f *fakeStore) GetNote(_ context.Context, token, id string) (*models.Note, error) {
	f.tokens = append(f.tokens, token)
	if f.noteErr != nil {
		return nil, f.noteErr
	}
	return f.note, nil
}

func (f *fakeStore) ListComments(_ context.Context, token, _ string) ([]models.Comment, error) {
	f.tokens = append(f.tokens, token)
	return f.comments, nil
}

func (f *fakeStore) InsertComment(_ context.Context, token string, in models.CommentInput) (*models.Comment, error) {
	f.tokens = append(f.tokens, token)
	f.inserted = append(f.inserted, in)
	return &models.Comment{ID: "c9", NoteID: in.NoteID, Content: in.Content}, nil
}

type fixedSession struct{ s *session.Session }

func (f fixedSession) Current() *session.Session { return f.s }

func TestDetail_Anonymous(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{
		note:     &models.Note{ID: "n1", Title: "A", UserID: "u1", CreatedAt: now, UpdatedAt: now},
		comments: []models.Comment{{ID: "c1", NoteID: "n1", Content: "first"}, {ID: "c2", NoteID: "n1", Content: "second"}},
	}
	s := NewService(store, fixedSession{}, nil)

	d, err := s.Detail(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, "A", d.Note.Title)
	assert.Equal(t, []string{"c1", "c2"}, []string{d.Comments[0].ID, d.Comments[1].ID})
	assert.Equal(t, []string{"", ""}, store.tokens)
}

func TestDetail_UsesSessionToken(t *testing.T) {
	store := &fakeStore{note: &models.Note{ID: "n1"}, comments: []models.Comment{}}
	s := NewService(store, fixedSession{s: &session.Session{AccessToken: "tok"}}, nil)

	_, err := s.Detail(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tok", "tok"}, store.tokens)
}

func TestDetail_NotFound(t *testing.T) {
	store := &fakeStore{noteErr: apperr.ErrNotFound}
	s := NewService(store, fixedSession{}, nil)

	_, err := s.Detail(context.Background(), "gone")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "Note not found", apperr.Message(err))
}

func TestDetail_RemoteFailure(t *testing.T) {
	store := &fakeStore{noteErr: errors.New("timeout")}
	s := NewService(store, fixedSession{}, nil)

	_, err := s.Detail(context.Background(), "n1")
	assert.Equal(t, "Failed to load note", apperr.Message(err))
}

func TestAddComment_TrimsAndInserts(t *testing.T) {
	store := &fakeStore{}
	s := NewService(store, fixedSession{}, nil)

	c, err := s.AddComment(context.Background(), "n1", "  nice note \n")
	require.NoError(t, err)
	assert.Equal(t, "c9", c.ID)
	assert.Equal(t, []models.CommentInput{{NoteID: "n1", Content: "nice note"}}, store.inserted)
}

func TestAddComment_EmptyRejected(t *testing.T) {
	store := &fakeStore{}
	s := NewService(store, fixedSession{}, nil)

	_, err := s.AddComment(context.Background(), "n1", "   ")
	assert.ErrorIs(t, err, apperr.ErrEmptyComment)
	assert.Empty(t, store.inserted)
}
