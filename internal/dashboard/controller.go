// Package dashboard holds the editor state of the notes dashboard and the
// search-filtered view of the note cache.
package dashboard

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/starford/pinenote/internal/apperr"
	"github.com/starford/pinenote/internal/models"
)

// Mode is the editor state.
type Mode string

const (
	Closed   Mode = "closed"
	OpenNew  Mode = "new"
	OpenEdit Mode = "edit"
)

var (
	// ErrEditorOpen is returned for create and edit intents while the editor
	// is already open.
	ErrEditorOpen = errors.New("editor is already open")
	// ErrEditorClosed is returned for save while nothing is being edited.
	ErrEditorClosed = errors.New("editor is not open")
	// ErrNotConfirmed is returned for a delete intent the user did not confirm.
	ErrNotConfirmed = errors.New("delete not confirmed")
)

// Notes is the repository surface the controller drives.
type Notes interface {
	Notes() []models.Note
	Loading() bool
	Create(ctx context.Context, title, content string) (*models.Note, error)
	Update(ctx context.Context, id, title, content string) (*models.Note, error)
	Delete(ctx context.Context, id string) error
}

// Editor is a snapshot of the editor state. Note is set in OpenEdit mode.
type Editor struct {
	Mode Mode         `json:"mode"`
	Note *models.Note `json:"note,omitempty"`
}

// Controller is the editor state machine. It is safe for concurrent use.
type Controller struct {
	notes Notes

	mu      sync.Mutex
	mode    Mode
	editing *models.Note
	// gen changes on every editor transition, so a save can tell whether
	// the editor it was started from is still the one showing.
	gen     uint64
}

// New creates a controller with the editor closed.
func New(notes Notes) *Controller {
	return &Controller{notes: notes, mode: Closed}
}

// Editor returns the current editor state.
func (c *Controller) Editor() Editor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// CreateIntent opens the editor for a new note.
func (c *Controller) CreateIntent() (Editor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != Closed {
		return c.snapshotLocked(), ErrEditorOpen
	}
	c.mode = OpenNew
	c.editing = nil
	c.gen++
	return c.snapshotLocked(), nil
}

// EditIntent opens the editor on n.
func (c *Controller) EditIntent(n models.Note) (Editor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != Closed {
		return c.snapshotLocked(), ErrEditorOpen
	}
	c.mode = OpenEdit
	c.editing = &n
	c.gen++
	return c.snapshotLocked(), nil
}

// Cancel closes the editor without saving.
func (c *Controller) Cancel() Editor {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return c.snapshotLocked()
}

// Reset closes the editor and forgets its target. Saves still in flight
// will not touch the editor when they complete.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()
}

// Save creates or updates the note being edited. The editor closes only on
// success; on any failure it stays open on the same target.
func (c *Controller) Save(ctx context.Context, title, content string) (*models.Note, error) {
	c.mu.Lock()
	mode, gen := c.mode, c.gen
	var id string
	if c.editing != nil {
		id = c.editing.ID
	}
	c.mu.Unlock()

	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)

	var (
		saved *models.Note
		err   error
	)
	switch mode {
	case OpenNew:
		saved, err = c.notes.Create(ctx, title, content)
	case OpenEdit:
		saved, err = c.notes.Update(ctx, id, title, content)
	default:
		return nil, ErrEditorClosed
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.closeLocked()
	}
	c.mu.Unlock()
	return saved, nil
}

// Delete removes a note once the user has confirmed. The editor state is
// not changed.
func (c *Controller) Delete(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}
	return c.notes.Delete(ctx, id)
}

// View is the renderable dashboard state.
type View struct {
	Notes   []models.Note `json:"notes"`
	Loading bool          `json:"loading"`
	Editor  Editor        `json:"editor"`
}

// View returns the cache filtered by query together with the editor state.
func (c *Controller) View(query string) View {
	return View{
		Notes:   Filter(c.notes.Notes(), query),
		Loading: c.notes.Loading(),
		Editor:  c.Editor(),
	}
}

// Filter keeps the notes whose title or content contains query, ignoring
// case. An empty query keeps everything. Order is preserved.
func Filter(notes []models.Note, query string) []models.Note {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]models.Note, 0, len(notes))
	for _, n := range notes {
		if q == "" ||
			strings.Contains(strings.ToLower(n.Title), q) ||
			strings.Contains(strings.ToLower(n.Content), q) {
			out = append(out, n)
		}
	}
	return out
}

// Find returns the cached note with the given id.
func (c *Controller) Find(id string) (models.Note, error) {
	for _, n := range c.notes.Notes() {
		if n.ID == id {
			return n, nil
		}
	}
	return models.Note{}, apperr.ErrNotFound
}

func (c *Controller) closeLocked() {
	c.mode = Closed
	c.editing = nil
	c.gen++
}

func (c *Controller) snapshotLocked() Editor {
	e := Editor{Mode: c.mode}
	if c.editing != nil {
		n := *c.editing
		e.Note = &n
	}
	return e
}
