package dashboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/starford/pinenote/internal/models"
	"github.com/starford/pinenote/internal/remote"
	"github.com/starford/pinenote/internal/session"
)

type fakeAuth struct{}

func (fakeAuth) SignUp(context.Context, string, string) (*remote.AuthResponse, error) {
	return nil, nil
}

func (fakeAuth) SignInWithPassword(_ context.Context, email, _ string) (*remote.AuthResponse, error) {
	return &remote.AuthResponse{
		AccessToken:  "tok-" + email,
		RefreshToken: "ref-" + email,
		ExpiresIn:    3600,
		User:         &models.User{ID: email, Email: email},
	}, nil
}

func (fakeAuth) RefreshSession(context.Context, string) (*remote.AuthResponse, error) {
	return nil, nil
}

func (fakeAuth) SignOut(context.Context, string) error { return nil }

// watched reports when Follow has taken its first look at the session, which
// it does only after subscribing.
type watched struct {
	*session.Provider
	ready chan struct{}
	once  sync.Once
}

func watch(p *session.Provider) *watched {
	return &watched{Provider: p, ready: make(chan struct{})}
}

func (w *watched) Current() *session.Session {
	s := w.Provider.Current()
	w.once.Do(func() { close(w.ready) })
	return s
}

func waitMode(t *testing.T, c *Controller, want Mode) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for c.Editor().Mode != want {
		if time.Now().After(deadline) {
			t.Fatalf("mode = %s, want %s", c.Editor().Mode, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFollow_ClosesEditorWhenUserChanges(t *testing.T) {
	p := session.New(fakeAuth{})
	defer p.Close()
	c := New(&fakeNotes{})
	ctx := context.Background()

	if _, err := p.SignIn(ctx, "ada", "secret1"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	w := watch(p)
	followCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- c.Follow(followCtx, w) }()
	<-w.ready
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Follow: %v", err)
		}
	}()

	if _, err := c.EditIntent(models.Note{ID: "1", Title: "Ada's note"}); err != nil {
		t.Fatalf("EditIntent: %v", err)
	}

	if err := p.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	waitMode(t, c, Closed)

	if _, err := p.SignIn(ctx, "bob", "secret2"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if e := c.Editor(); e.Note != nil {
		t.Errorf("bob sees %+v", e.Note)
	}
	if _, err := c.CreateIntent(); err != nil {
		t.Errorf("CreateIntent for bob: %v", err)
	}
}

func TestFollow_SwitchWithoutSignOut(t *testing.T) {
	p := session.New(fakeAuth{})
	defer p.Close()
	c := New(&fakeNotes{})
	ctx := context.Background()

	if _, err := p.SignIn(ctx, "ada", "secret1"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	w := watch(p)
	followCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = c.Follow(followCtx, w) }()
	<-w.ready

	if _, err := c.CreateIntent(); err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if _, err := p.SignIn(ctx, "bob", "secret2"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	waitMode(t, c, Closed)
}

func TestFollow_StopsWhenProviderCloses(t *testing.T) {
	p := session.New(fakeAuth{})
	c := New(&fakeNotes{})

	done := make(chan error, 1)
	go func() { done <- c.Follow(context.Background(), p) }()
	// Close may run before Follow subscribes; a closed provider hands out
	// closed channels either way.
	p.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Follow: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Follow did not return after Close")
	}
}
