// Package notes holds the client-side note cache and is the only place that
// mutates it. Every change applied to the cache is a row returned by the
// remote service; nothing is synthesized locally.
package notes

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/starford/pinenote/internal/apperr"
	"github.com/starford/pinenote/internal/models"
	"github.com/starford/pinenote/internal/session"
)

// Store is the remote table API the repository needs.
type Store interface {
	ListNotes(ctx context.Context, token, ownerID string) ([]models.Note, error)
	InsertNote(ctx context.Context, token string, in models.NoteInput) (*models.Note, error)
	UpdateNote(ctx context.Context, token, id string, patch models.NotePatch) (*models.Note, error)
	DeleteNote(ctx context.Context, token, id string) error
}

// SessionSource yields the session to act as.
type SessionSource interface {
	Current() *session.Session
}

// Kind names a cache change.
type Kind string

const (
	Loaded  Kind = "notes.loaded"
	Created Kind = "note.created"
	Updated Kind = "note.updated"
	Deleted Kind = "note.deleted"
)

// Notifier receives user-facing notifications and cache change events.
type Notifier interface {
	Success(message string)
	Error(message string)
	NoteChanged(kind Kind, id string)
}

type nopNotifier struct{}

func (nopNotifier) Success(string)           {}
func (nopNotifier) Error(string)             {}
func (nopNotifier) NoteChanged(Kind, string) {}

// Repository is the server-confirmed note cache.
type Repository struct {
	store    Store
	sessions SessionSource
	notify   Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	notes   []models.Note
	loading bool
	// gen counts resets. A remote call started under an older generation
	// belongs to a previous session and must not touch the cache.
	gen     uint64
}

// Option configures a Repository.
type Option func(*Repository)

// WithNotifier sets where notifications go.
func WithNotifier(n Notifier) Option {
	return func(r *Repository) { r.notify = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// WithClock replaces time.Now for the updated_at sent with updates.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// New creates an empty repository. It reports Loading until the first List
// completes.
func New(store Store, sessions SessionSource, opts ...Option) *Repository {
	r := &Repository{
		store:    store,
		sessions: sessions,
		notify:   nopNotifier{},
		logger:   slog.Default(),
		now:      time.Now,
		notes:    []models.Note{},
		loading:  true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Notes returns a snapshot of the cache.
func (r *Repository) Notes() []models.Note {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Note, len(r.notes))
	copy(out, r.notes)
	return out
}

// Loading reports whether no list has completed since the last reset, or a
// list is in flight.
func (r *Repository) Loading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading
}

// Reset empties the cache. Results of calls still in flight are discarded.
func (r *Repository) Reset() {
	r.mu.Lock()
	r.notes = []models.Note{}
	r.loading = true
	r.gen++
	r.mu.Unlock()
}

// List replaces the cache with the current user's notes, newest update
// first. On failure the cache is left as it was.
func (r *Repository) List(ctx context.Context) error {
	gen, sess, err := r.begin("list")
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.gen == gen {
		r.loading = true
	}
	r.mu.Unlock()

	rows, err := r.store.ListNotes(ctx, sess.AccessToken, sess.User.ID)
	if err != nil {
		r.mu.Lock()
		stale := r.gen != gen
		if !stale {
			r.loading = false
		}
		r.mu.Unlock()
		if stale {
			return r.stale("list", sess)
		}
		return r.fail("list", "Failed to load notes", err)
	}

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return r.stale("list", sess)
	}
	r.notes = rows
	r.loading = false
	r.mu.Unlock()

	r.logger.Debug("notes loaded", slog.Int("count", len(rows)))
	r.notify.NoteChanged(Loaded, "")
	return nil
}

// Create inserts a note and prepends the stored row to the cache.
func (r *Repository) Create(ctx context.Context, title, content string) (*models.Note, error) {
	if strings.TrimSpace(title) == "" {
		return nil, apperr.Failed("create", "Title is required", apperr.ErrEmptyTitle)
	}
	gen, sess, err := r.begin("create")
	if err != nil {
		return nil, err
	}

	n, err := r.store.InsertNote(ctx, sess.AccessToken, models.NoteInput{
		Title:   title,
		Content: content,
		UserID:  sess.User.ID,
	})
	if err != nil {
		if !r.current(gen) {
			return nil, r.stale("create", sess)
		}
		return nil, r.fail("create", "Failed to create note", err)
	}

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return nil, r.stale("create", sess)
	}
	next := make([]models.Note, 0, len(r.notes)+1)
	next = append(next, *n)
	for _, existing := range r.notes {
		if existing.ID != n.ID {
			next = append(next, existing)
		}
	}
	r.notes = next
	r.mu.Unlock()

	r.logger.Info("note created", slog.String("id", n.ID))
	r.notify.Success("Note created successfully!")
	r.notify.NoteChanged(Created, n.ID)
	return n, nil
}

// Update rewrites a note and replaces its cache entry with the stored row.
func (r *Repository) Update(ctx context.Context, id, title, content string) (*models.Note, error) {
	if strings.TrimSpace(title) == "" {
		return nil, apperr.Failed("update", "Title is required", apperr.ErrEmptyTitle)
	}
	gen, sess, err := r.begin("update")
	if err != nil {
		return nil, err
	}

	n, err := r.store.UpdateNote(ctx, sess.AccessToken, id, models.NotePatch{
		Title:     title,
		Content:   content,
		UpdatedAt: r.now().UTC(),
	})
	if err != nil {
		if !r.current(gen) {
			return nil, r.stale("update", sess)
		}
		return nil, r.fail("update", "Failed to update note", err)
	}

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return nil, r.stale("update", sess)
	}
	next := make([]models.Note, len(r.notes))
	for i, existing := range r.notes {
		if existing.ID == id {
			existing = *n
		}
		next[i] = existing
	}
	r.notes = next
	r.mu.Unlock()

	r.logger.Info("note updated", slog.String("id", id))
	r.notify.Success("Note updated successfully!")
	r.notify.NoteChanged(Updated, id)
	return n, nil
}

// Delete removes a note remotely, then from the cache.
func (r *Repository) Delete(ctx context.Context, id string) error {
	gen, sess, err := r.begin("delete")
	if err != nil {
		return err
	}

	if err := r.store.DeleteNote(ctx, sess.AccessToken, id); err != nil {
		if !r.current(gen) {
			return r.stale("delete", sess)
		}
		return r.fail("delete", "Failed to delete note", err)
	}

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return r.stale("delete", sess)
	}
	next := make([]models.Note, 0, len(r.notes))
	for _, existing := range r.notes {
		if existing.ID != id {
			next = append(next, existing)
		}
	}
	r.notes = next
	r.mu.Unlock()

	r.logger.Info("note deleted", slog.String("id", id))
	r.notify.Success("Note deleted successfully!")
	r.notify.NoteChanged(Deleted, id)
	return nil
}

// begin reads the generation before the session. Resets follow session
// switches, so a current generation is never paired with an older session.
func (r *Repository) begin(op string) (uint64, *session.Session, error) {
	r.mu.RLock()
	gen := r.gen
	r.mu.RUnlock()

	sess := r.sessions.Current()
	if sess == nil {
		return 0, nil, apperr.Failed(op, "Not signed in", apperr.ErrNoSession)
	}
	return gen, sess, nil
}

func (r *Repository) current(gen uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gen == gen
}

func (r *Repository) stale(op string, sess *session.Session) error {
	r.logger.Debug("discarding result from previous session",
		slog.String("op", op), slog.String("user_id", sess.User.ID))
	return apperr.Failed(op, "Session changed", apperr.ErrSessionChanged)
}

func (r *Repository) fail(op, message string, err error) error {
	r.logger.Error("note operation failed", slog.String("op", op), slog.String("error", err.Error()))
	r.notify.Error(message)
	return apperr.Failed(op, message, err)
}
