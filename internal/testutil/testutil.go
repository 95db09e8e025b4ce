// Package testutil provides shared test helpers for running the backend
// emulator and clients against it.
package testutil

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/starford/pinenote/internal/devbackend"
	"github.com/starford/pinenote/internal/remote"
)

// AnonKey is the API key used by test backends.
const AnonKey = "test-anon-key"

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *devbackend.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "pinenote-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := devbackend.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Backend is a running emulator.
type Backend struct {
	URL    string
	Server *devbackend.Server
	Client *remote.Client
}

// TestBackend starts the emulator on a temp database with auto-confirmed
// sign-ups and returns a remote client pointed at it.
func TestBackend(t *testing.T, opts ...devbackend.Option) *Backend {
	t.Helper()
	opts = append([]devbackend.Option{
		devbackend.WithAutoConfirm(true),
		devbackend.WithBcryptCost(bcrypt.MinCost),
	}, opts...)
	srv := devbackend.NewServer(TestDB(t), AnonKey, opts...)

	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	client, err := remote.NewClient(hs.URL, AnonKey)
	if err != nil {
		t.Fatal(err)
	}
	return &Backend{URL: hs.URL, Server: srv, Client: client}
}

// SignUp registers a user and returns its access token and id.
func (b *Backend) SignUp(t *testing.T, email, password string) (token, userID string) {
	t.Helper()
	resp, err := b.Client.SignUp(context.Background(), email, password)
	if err != nil {
		t.Fatalf("sign up %s: %v", email, err)
	}
	if resp.AccessToken == "" || resp.User == nil {
		t.Fatalf("sign up %s: no session returned", email)
	}
	return resp.AccessToken, resp.User.ID
}
