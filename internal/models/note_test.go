package models

import (
	"errors"
	"testing"
	"time"

	"github.com/starford/pinenote/internal/apperr"
)

func TestNoteValidate(t *testing.T) {
	now := time.Now()
	valid := Note{ID: "1", Title: "A", UserID: "u1", CreatedAt: now, UpdatedAt: now}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid note rejected: %v", err)
	}

	cases := map[string]Note{
		"missing id":      {Title: "A", UserID: "u1", CreatedAt: now, UpdatedAt: now},
		"missing title":   {ID: "1", UserID: "u1", CreatedAt: now, UpdatedAt: now},
		"missing owner":   {ID: "1", Title: "A", CreatedAt: now, UpdatedAt: now},
		"zero created_at": {ID: "1", Title: "A", UserID: "u1", UpdatedAt: now},
		"zero updated_at": {ID: "1", Title: "A", UserID: "u1", CreatedAt: now},
	}
	for name, n := range cases {
		err := n.Validate()
		if err == nil {
			t.Errorf("%s: expected error", name)
			continue
		}
		if !errors.Is(err, apperr.ErrInvalidRow) {
			t.Errorf("%s: error %v is not ErrInvalidRow", name, err)
		}
	}
}

func TestNoteValidate_EmptyContentAllowed(t *testing.T) {
	now := time.Now()
	n := Note{ID: "1", Title: "A", Content: "", UserID: "u1", CreatedAt: now, UpdatedAt: now}
	if err := n.Validate(); err != nil {
		t.Errorf("empty content should be allowed: %v", err)
	}
}

func TestCommentValidate(t *testing.T) {
	if err := (Comment{ID: "c1", NoteID: "n1", Content: "hi"}).Validate(); err != nil {
		t.Fatalf("valid comment rejected: %v", err)
	}
	if err := (Comment{ID: "c1", NoteID: "n1"}).Validate(); !errors.Is(err, apperr.ErrInvalidRow) {
		t.Errorf("empty content: got %v, want ErrInvalidRow", err)
	}
	if err := (Comment{ID: "c1", Content: "hi"}).Validate(); err == nil {
		t.Error("missing note_id should fail")
	}
}
