// Package session owns the authenticated identity of the running client.
//
// The Provider is passed explicitly to its dependents. They observe changes
// through Subscribe and re-read Current on every notification instead of
// keeping the session value they saw last.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/pinenote/internal/apperr"
	"github.com/starford/pinenote/internal/models"
	"github.com/starford/pinenote/internal/remote"
)

const subscriberBuffer = 8

// Session is the identity of the signed-in user.
type Session struct {
	User         models.User
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the access token is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Change is delivered to subscribers after every sign-in, refresh or
// sign-out. Session is nil when the user is signed out.
type Change struct {
	Session *Session
}

// SignUpResult describes the outcome of a registration.
type SignUpResult struct {
	User                 models.User
	ConfirmationRequired bool
}

// Authenticator is the subset of the remote auth API the provider needs.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string) (*remote.AuthResponse, error)
	SignInWithPassword(ctx context.Context, email, password string) (*remote.AuthResponse, error)
	RefreshSession(ctx context.Context, refreshToken string) (*remote.AuthResponse, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Provider holds the current session and notifies subscribers of changes.
type Provider struct {
	auth          Authenticator
	logger        *slog.Logger
	now           func() time.Time
	refreshMargin time.Duration

	mu            sync.Mutex
	current       *Session
	refreshFailed bool
	subs          map[chan Change]struct{}
	closed        bool

	kick chan struct{}
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithRefreshMargin sets how long before expiry Run refreshes the token.
func WithRefreshMargin(d time.Duration) Option {
	return func(p *Provider) { p.refreshMargin = d }
}

// New creates a signed-out provider.
func New(auth Authenticator, opts ...Option) *Provider {
	p := &Provider{
		auth:          auth,
		logger:        slog.Default(),
		now:           time.Now,
		refreshMargin: time.Minute,
		subs:          make(map[chan Change]struct{}),
		kick:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Current returns the live session or nil. An expired session is dropped
// here, which signs the user out.
func (p *Provider) Current() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil && p.current.Expired(p.now()) {
		p.logger.Info("session expired", slog.String("user_id", p.current.User.ID))
		p.setLocked(nil)
	}
	if p.current == nil {
		return nil
	}
	s := *p.current
	return &s
}

// SignIn authenticates with e-mail and password. The returned error message
// is fit for direct display.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	resp, err := p.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		p.logger.Warn("sign in failed", slog.String("email", email), slog.String("error", err.Error()))
		return nil, apperr.Failed("sign_in", displayMessage(err), err)
	}
	sess := p.fromResponse(resp)
	if sess == nil {
		return nil, apperr.Failed("sign_in", "Authentication failed", errors.New("session: no access token in response"))
	}
	p.set(sess)
	p.logger.Info("signed in", slog.String("user_id", sess.User.ID))
	return sess, nil
}

// SignUp registers a new identity. Whether a session starts right away is
// decided by the service configuration.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*SignUpResult, error) {
	resp, err := p.auth.SignUp(ctx, email, password)
	if err != nil {
		p.logger.Warn("sign up failed", slog.String("email", email), slog.String("error", err.Error()))
		return nil, apperr.Failed("sign_up", displayMessage(err), err)
	}
	res := &SignUpResult{}
	if resp.User != nil {
		res.User = *resp.User
	}
	sess := p.fromResponse(resp)
	if sess == nil {
		res.ConfirmationRequired = true
		p.logger.Info("signed up, confirmation required", slog.String("user_id", res.User.ID))
		return res, nil
	}
	p.set(sess)
	p.logger.Info("signed up", slog.String("user_id", sess.User.ID))
	return res, nil
}

// SignOut revokes the token remotely when possible and always clears the
// local session.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	sess := p.current
	p.mu.Unlock()
	if sess == nil {
		return nil
	}
	if err := p.auth.SignOut(ctx, sess.AccessToken); err != nil {
		p.logger.Warn("remote sign out failed", slog.String("error", err.Error()))
	}
	p.clearIf(sess.AccessToken)
	p.logger.Info("signed out", slog.String("user_id", sess.User.ID))
	return nil
}

// Subscribe registers for change notifications. Call cancel to stop.
func (p *Provider) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subscriberBuffer)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	p.subs[ch] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if _, ok := p.subs[ch]; ok {
				delete(p.subs, ch)
				close(ch)
			}
		})
	}
}

// Close closes every subscriber channel.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for ch := range p.subs {
		close(ch)
		delete(p.subs, ch)
	}
}

// Run refreshes the access token shortly before it expires and signs the
// user out once it can no longer be kept alive. It returns when ctx is done.
func (p *Provider) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		if d, ok := p.nextWake(); ok {
			timer.Reset(d)
		} else {
			timer.Stop()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-p.kick:
		case <-timer.C:
			p.refresh(ctx)
		}
	}
}

func (p *Provider) nextWake() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.current
	if s == nil || s.ExpiresAt.IsZero() {
		return 0, false
	}
	at := s.ExpiresAt
	if s.RefreshToken != "" && !p.refreshFailed {
		at = at.Add(-p.refreshMargin)
	}
	d := at.Sub(p.now())
	if d < 0 {
		d = 0
	}
	return d, true
}

func (p *Provider) refresh(ctx context.Context) {
	p.mu.Lock()
	sess := p.current
	failed := p.refreshFailed
	p.mu.Unlock()
	if sess == nil {
		return
	}

	if sess.RefreshToken == "" || failed {
		if sess.Expired(p.now()) {
			p.logger.Info("session expired", slog.String("user_id", sess.User.ID))
			p.clearIf(sess.AccessToken)
		}
		return
	}

	resp, err := p.auth.RefreshSession(ctx, sess.RefreshToken)
	if err == nil {
		if next := p.fromResponse(resp); next != nil {
			p.mu.Lock()
			if p.current != nil && p.current.AccessToken == sess.AccessToken {
				p.setLocked(next)
			}
			p.mu.Unlock()
			p.logger.Debug("session refreshed", slog.String("user_id", next.User.ID))
			return
		}
		err = errors.New("session: no access token in refresh response")
	}

	p.logger.Warn("session refresh failed", slog.String("error", err.Error()))
	p.mu.Lock()
	if p.current != nil && p.current.AccessToken == sess.AccessToken {
		p.refreshFailed = true
		if remote.IsUnauthorized(err) || sess.Expired(p.now()) {
			p.setLocked(nil)
		}
	}
	p.mu.Unlock()
}

func (p *Provider) fromResponse(resp *remote.AuthResponse) *Session {
	if resp == nil || resp.AccessToken == "" || resp.User == nil {
		return nil
	}
	return &Session{
		User:         *resp.User,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    resp.Expiry(p.now()),
	}
}

func (p *Provider) set(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setLocked(s)
}

func (p *Provider) clearIf(accessToken string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil && p.current.AccessToken == accessToken {
		p.setLocked(nil)
	}
}

// setLocked swaps the session and fans the change out. p.mu must be held.
func (p *Provider) setLocked(s *Session) {
	p.current = s
	p.refreshFailed = false

	var snapshot *Session
	if s != nil {
		c := *s
		snapshot = &c
	}
	for ch := range p.subs {
		select {
		case ch <- Change{Session: snapshot}:
		default:
			// Subscriber is behind; it re-reads Current on the pending ones.
		}
	}
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func displayMessage(err error) string {
	var re *remote.Error
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	return "Authentication failed"
}
