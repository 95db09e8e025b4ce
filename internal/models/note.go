// Package models defines the domain types for Pinenote.
package models

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/pinenote/internal/apperr"
)

// Note is a row of the remote notes table.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate rejects rows that do not carry the server-assigned fields.
func (n Note) Validate() error {
	err := validation.ValidateStruct(&n,
		validation.Field(&n.ID, validation.Required),
		validation.Field(&n.Title, validation.Required),
		validation.Field(&n.UserID, validation.Required),
		validation.Field(&n.CreatedAt, validation.Required),
		validation.Field(&n.UpdatedAt, validation.Required),
	)
	if err != nil {
		return fmt.Errorf("%w: note: %v", apperr.ErrInvalidRow, err)
	}
	return nil
}

// NoteInput is the payload of a note insert.
type NoteInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	UserID  string `json:"user_id"`
}

// NotePatch is the payload of a note update.
type NotePatch struct {
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Comment is a row of the remote comments table.
type Comment struct {
	ID      string `json:"id"`
	NoteID  string `json:"note_id"`
	Content string `json:"content"`
}

// Validate rejects comment rows with missing fields.
func (c Comment) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.NoteID, validation.Required),
		validation.Field(&c.Content, validation.Required),
	)
	if err != nil {
		return fmt.Errorf("%w: comment: %v", apperr.ErrInvalidRow, err)
	}
	return nil
}

// CommentInput is the payload of a comment insert.
type CommentInput struct {
	NoteID  string `json:"note_id"`
	Content string `json:"content"`
}

// User is the identity returned by the auth service.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
