package remote

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/starford/pinenote/internal/models"
)

// AuthResponse is the session payload of the auth API. AccessToken is empty
// when sign-up requires e-mail confirmation first.
type AuthResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         *models.User `json:"user"`
}

// Expiry returns the absolute expiry of the access token.
func (a *AuthResponse) Expiry(now time.Time) time.Time {
	if a.ExpiresAt > 0 {
		return time.Unix(a.ExpiresAt, 0)
	}
	if a.ExpiresIn > 0 {
		return now.Add(time.Duration(a.ExpiresIn) * time.Second)
	}
	return time.Time{}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp registers a new identity.
func (c *Client) SignUp(ctx context.Context, email, password string) (*AuthResponse, error) {
	// Without auto-confirm the service answers with the bare user object.
	var raw struct {
		AuthResponse
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body:   credentials{Email: email, Password: password},
	}, &raw)
	if err != nil {
		return nil, err
	}
	out := raw.AuthResponse
	if out.User == nil && raw.ID != "" {
		out.User = &models.User{ID: raw.ID, Email: raw.Email}
	}
	return &out, nil
}

// SignInWithPassword exchanges e-mail and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   credentials{Email: email, Password: password},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshSession exchanges a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": refreshToken},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SignOut revokes the access token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		token:  accessToken,
	}, nil)
}
