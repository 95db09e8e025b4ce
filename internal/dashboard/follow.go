package dashboard

import (
	"context"

	"github.com/starford/pinenote/internal/session"
)

// Sessions is the session provider surface Follow watches.
type Sessions interface {
	Current() *session.Session
	Subscribe() (<-chan session.Change, func())
}

// Follow closes the editor whenever the signed-in user changes or signs out,
// so one account never sees or saves into an editor opened by another.
// Token refreshes for the same user leave the editor alone. It returns when
// ctx is done or the subscription is closed.
func (c *Controller) Follow(ctx context.Context, sessions Sessions) error {
	changes, cancel := sessions.Subscribe()
	defer cancel()

	userID := userOf(sessions.Current())
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			// Changes can be dropped for a slow subscriber; Current is authoritative.
			if next := userOf(sessions.Current()); next != userID {
				c.Reset()
				userID = next
			}
		}
	}
}

func userOf(s *session.Session) string {
	if s == nil {
		return ""
	}
	return s.User.ID
}
