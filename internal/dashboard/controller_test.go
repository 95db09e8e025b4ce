package dashboard

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/pinenote/internal/apperr"
	"github.com/starford/pinenote/internal/models"
)

type fakeNotes struct {
	notes   []models.Note
	created []string
	updated []string
	deleted []string
	failing bool

	// When set, Create signals started and waits for release.
	started chan struct{}
	release chan struct{}
}

func (f *fakeNotes) Notes() []models.Note { return f.notes }
func (f *fakeNotes) Loading() bool        { return false }

func (f *fakeNotes) Create(_ context.Context, title, content string) (*models.Note, error) {
	if f.release != nil {
		close(f.started)
		<-f.release
	}
	if title == "" {
		return nil, apperr.Failed("create", "Title is required", apperr.ErrEmptyTitle)
	}
	if f.failing {
		return nil, apperr.Failed("create", "Failed to create note", errors.New("offline"))
	}
	f.created = append(f.created, title+"|"+content)
	return &models.Note{ID: "new", Title: title, Content: content}, nil
}

func (f *fakeNotes) Update(_ context.Context, id, title, content string) (*models.Note, error) {
	if f.failing {
		return nil, apperr.Failed("update", "Failed to update note", errors.New("offline"))
	}
	f.updated = append(f.updated, id+"|"+title+"|"+content)
	return &models.Note{ID: id, Title: title, Content: content}, nil
}

func (f *fakeNotes) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func TestCreateThenSave(t *testing.T) {
	fn := &fakeNotes{}
	c := New(fn)

	e, err := c.CreateIntent()
	if err != nil || e.Mode != OpenNew {
		t.Fatalf("CreateIntent = %+v, %v", e, err)
	}
	if _, err := c.Save(context.Background(), "  Title  ", " body \n"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := c.Editor().Mode; got != Closed {
		t.Errorf("mode after save = %s, want closed", got)
	}
	if len(fn.created) != 1 || fn.created[0] != "Title|body" {
		t.Errorf("created = %v (want trimmed input)", fn.created)
	}
}

func TestEditThenSave(t *testing.T) {
	fn := &fakeNotes{}
	c := New(fn)

	e, err := c.EditIntent(models.Note{ID: "7", Title: "Old"})
	if err != nil || e.Mode != OpenEdit || e.Note == nil || e.Note.ID != "7" {
		t.Fatalf("EditIntent = %+v, %v", e, err)
	}
	if _, err := c.Save(context.Background(), "New", ""); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(fn.updated) != 1 || fn.updated[0] != "7|New|" {
		t.Errorf("updated = %v", fn.updated)
	}
	if c.Editor().Mode != Closed {
		t.Error("editor should close after a successful save")
	}
}

func TestSaveFailureKeepsEditorOpen(t *testing.T) {
	fn := &fakeNotes{failing: true}
	c := New(fn)
	_, _ = c.EditIntent(models.Note{ID: "7", Title: "Old"})

	if _, err := c.Save(context.Background(), "New", "draft"); err == nil {
		t.Fatal("expected error")
	}
	e := c.Editor()
	if e.Mode != OpenEdit || e.Note == nil || e.Note.ID != "7" {
		t.Errorf("editor = %+v, want still editing note 7", e)
	}
}

func TestSaveEmptyTitleKeepsEditorOpen(t *testing.T) {
	c := New(&fakeNotes{})
	_, _ = c.CreateIntent()

	_, err := c.Save(context.Background(), "   ", "x")
	if !errors.Is(err, apperr.ErrEmptyTitle) {
		t.Fatalf("err = %v, want ErrEmptyTitle", err)
	}
	if c.Editor().Mode != OpenNew {
		t.Error("editor should stay open")
	}
}

func TestIntentsWhileOpenRejected(t *testing.T) {
	c := New(&fakeNotes{})
	_, _ = c.CreateIntent()

	if _, err := c.CreateIntent(); !errors.Is(err, ErrEditorOpen) {
		t.Errorf("CreateIntent while open: %v", err)
	}
	if _, err := c.EditIntent(models.Note{ID: "1"}); !errors.Is(err, ErrEditorOpen) {
		t.Errorf("EditIntent while open: %v", err)
	}
	if c.Editor().Mode != OpenNew {
		t.Error("state must not change on a rejected intent")
	}
}

func TestCancel(t *testing.T) {
	fn := &fakeNotes{}
	c := New(fn)
	_, _ = c.EditIntent(models.Note{ID: "1"})

	if e := c.Cancel(); e.Mode != Closed || e.Note != nil {
		t.Errorf("Cancel = %+v", e)
	}
	if len(fn.updated) != 0 {
		t.Error("cancel must not save")
	}
}

func TestSaveDoesNotCloseReopenedEditor(t *testing.T) {
	fn := &fakeNotes{started: make(chan struct{}), release: make(chan struct{})}
	c := New(fn)
	_, _ = c.CreateIntent()

	done := make(chan error, 1)
	go func() {
		_, err := c.Save(context.Background(), "First", "")
		done <- err
	}()
	<-fn.started

	c.Cancel()
	if _, err := c.CreateIntent(); err != nil {
		t.Fatalf("CreateIntent after cancel: %v", err)
	}
	close(fn.release)
	if err := <-done; err != nil {
		t.Fatalf("Save: %v", err)
	}

	if got := c.Editor().Mode; got != OpenNew {
		t.Errorf("mode = %s, want the second new-note editor to stay open", got)
	}
}

func TestReset(t *testing.T) {
	c := New(&fakeNotes{})
	_, _ = c.EditIntent(models.Note{ID: "1", Title: "Private"})

	c.Reset()
	if e := c.Editor(); e.Mode != Closed || e.Note != nil {
		t.Errorf("editor after reset = %+v", e)
	}
	if _, err := c.CreateIntent(); err != nil {
		t.Errorf("CreateIntent after reset: %v", err)
	}
}

func TestSaveWhileClosed(t *testing.T) {
	c := New(&fakeNotes{})
	if _, err := c.Save(context.Background(), "A", ""); !errors.Is(err, ErrEditorClosed) {
		t.Errorf("err = %v", err)
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	fn := &fakeNotes{}
	c := New(fn)
	_, _ = c.EditIntent(models.Note{ID: "1"})

	if err := c.Delete(context.Background(), "2", false); !errors.Is(err, ErrNotConfirmed) {
		t.Errorf("unconfirmed delete: %v", err)
	}
	if len(fn.deleted) != 0 {
		t.Fatal("unconfirmed delete must not dispatch")
	}

	if err := c.Delete(context.Background(), "2", true); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(fn.deleted) != 1 || fn.deleted[0] != "2" {
		t.Errorf("deleted = %v", fn.deleted)
	}
	if c.Editor().Mode != OpenEdit {
		t.Error("delete must leave the editor state unchanged")
	}
}

func TestFilter(t *testing.T) {
	notes := []models.Note{
		{ID: "1", Title: "Groceries", Content: "milk"},
		{ID: "2", Title: "Work", Content: "Ship the MILKSHAKE feature"},
		{ID: "3", Title: "Ideas", Content: ""},
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"1", "2", "3"}},
		{"milk", []string{"1", "2"}},
		{"  IDEAS ", []string{"3"}},
		{"nothing", nil},
	}
	for _, tt := range tests {
		got := Filter(notes, tt.query)
		if len(got) != len(tt.want) {
			t.Errorf("Filter(%q) = %d notes, want %d", tt.query, len(got), len(tt.want))
			continue
		}
		for i, n := range got {
			if n.ID != tt.want[i] {
				t.Errorf("Filter(%q)[%d] = %s, want %s", tt.query, i, n.ID, tt.want[i])
			}
		}
	}
}

func TestFind(t *testing.T) {
	c := New(&fakeNotes{notes: []models.Note{{ID: "1", Title: "A"}}})
	if n, err := c.Find("1"); err != nil || n.Title != "A" {
		t.Errorf("Find(1) = %+v, %v", n, err)
	}
	if _, err := c.Find("2"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Find(2) err = %v", err)
	}
}
