package notes

import (
	"context"
	"log/slog"

	"github.com/starford/pinenote/internal/session"
)

// Subscriber delivers session changes.
type Subscriber interface {
	Subscribe() (<-chan session.Change, func())
}

// Follow keeps the cache in step with the session: the notes are listed when
// a user signs in and dropped when they sign out. Token refreshes for the
// same user do not trigger a reload. It returns when ctx is done or the
// subscription is closed.
func (r *Repository) Follow(ctx context.Context, sub Subscriber) error {
	changes, cancel := sub.Subscribe()
	defer cancel()

	var userID string
	apply := func() {
		sess := r.sessions.Current()
		switch {
		case sess == nil:
			if userID != "" {
				r.logger.Debug("session ended, clearing notes")
				r.Reset()
			}
			userID = ""
		case sess.User.ID != userID:
			userID = sess.User.ID
			r.Reset()
			if err := r.List(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("initial note load failed", slog.String("user_id", userID))
			}
		}
	}

	apply()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			apply()
		}
	}
}
