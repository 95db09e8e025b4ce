package remote

import (
	"context"
	"net/http"
	"net/url"

	"github.com/starford/pinenote/internal/models"
)

const (
	notesPath    = "/rest/v1/notes"
	commentsPath = "/rest/v1/comments"

	returnRepresentation = "return=representation"
)

// ListNotes returns every note owned by ownerID, newest update first.
func (c *Client) ListNotes(ctx context.Context, token, ownerID string) ([]models.Note, error) {
	var out []models.Note
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   notesPath,
		query: url.Values{
			"select":  {"*"},
			"user_id": {eq(ownerID)},
			"order":   {"updated_at.desc"},
		},
		token: token,
	}, &out)
	if err != nil {
		return nil, err
	}
	for _, n := range out {
		if err := n.Validate(); err != nil {
			return nil, err
		}
	}
	if out == nil {
		out = []models.Note{}
	}
	return out, nil
}

// GetNote returns a single note by id.
func (c *Client) GetNote(ctx context.Context, token, id string) (*models.Note, error) {
	var out models.Note
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   notesPath,
		query:  url.Values{"select": {"*"}, "id": {eq(id)}},
		token:  token,
		accept: mediaObject,
	}, &out)
	if err != nil {
		return nil, err
	}
	return validNote(out)
}

// InsertNote inserts one note and returns the stored row.
func (c *Client) InsertNote(ctx context.Context, token string, in models.NoteInput) (*models.Note, error) {
	var out models.Note
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   notesPath,
		query:  url.Values{"select": {"*"}},
		token:  token,
		body:   in,
		accept: mediaObject,
		prefer: returnRepresentation,
	}, &out)
	if err != nil {
		return nil, err
	}
	return validNote(out)
}

// UpdateNote patches the note with the given id and returns the stored row.
func (c *Client) UpdateNote(ctx context.Context, token, id string, patch models.NotePatch) (*models.Note, error) {
	var out models.Note
	err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   notesPath,
		query:  url.Values{"select": {"*"}, "id": {eq(id)}},
		token:  token,
		body:   patch,
		accept: mediaObject,
		prefer: returnRepresentation,
	}, &out)
	if err != nil {
		return nil, err
	}
	return validNote(out)
}

// DeleteNote deletes the note with the given id.
func (c *Client) DeleteNote(ctx context.Context, token, id string) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   notesPath,
		query:  url.Values{"id": {eq(id)}},
		token:  token,
	}, nil)
}

// ListComments returns the comments of a note in server order.
func (c *Client) ListComments(ctx context.Context, token, noteID string) ([]models.Comment, error) {
	var out []models.Comment
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   commentsPath,
		query:  url.Values{"select": {"*"}, "note_id": {eq(noteID)}},
		token:  token,
	}, &out)
	if err != nil {
		return nil, err
	}
	for _, cm := range out {
		if err := cm.Validate(); err != nil {
			return nil, err
		}
	}
	if out == nil {
		out = []models.Comment{}
	}
	return out, nil
}

// InsertComment appends a comment and returns the stored row.
func (c *Client) InsertComment(ctx context.Context, token string, in models.CommentInput) (*models.Comment, error) {
	var out models.Comment
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   commentsPath,
		query:  url.Values{"select": {"*"}},
		token:  token,
		body:   in,
		accept: mediaObject,
		prefer: returnRepresentation,
	}, &out)
	if err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func validNote(n models.Note) (*models.Note, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}
