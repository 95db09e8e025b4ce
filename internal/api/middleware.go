// Package api implements the local Pinenote JSON API using chi.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/starford/pinenote/internal/session"
)

// RequireToken guards the local API with a static Bearer token. An empty
// token disables the check. The token protects the local API only and is
// unrelated to the user's session with the remote service.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		want := []byte(token)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CurrentSession is the part of the session provider route guards need.
type CurrentSession interface {
	Current() *session.Session
}

// RequireSession rejects requests while nobody is signed in. The session is
// looked up on every request, so a sign-out or expiry takes effect at once.
func RequireSession(sessions CurrentSession) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sessions.Current() == nil {
				writeJSON(w, http.StatusUnauthorized, errorBody("not signed in"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
