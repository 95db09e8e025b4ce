package api

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/pinenote/internal/dashboard"
	"github.com/starford/pinenote/internal/models"
)

const minPasswordLength = 6

// CredentialsRequest is the request body for sign-in and sign-up.
type CredentialsRequest struct {
	Email    string `json:"email" example:"ada@example.com"`
	Password string `json:"password" example:"secret1"`
}

// Validate checks the e-mail format and the minimum password length.
func (r CredentialsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.Password, validation.Required, validation.RuneLength(minPasswordLength, 0)),
	)
}

// SessionResponse describes the signed-in user. Tokens never leave the process.
type SessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	User          *models.User `json:"user,omitempty"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
}

// SignUpResponse is returned after a registration.
type SignUpResponse struct {
	User                 models.User `json:"user"`
	ConfirmationRequired bool        `json:"confirmation_required"`
}

// SaveRequest is the request body of an editor save.
type SaveRequest struct {
	Title   string `json:"title" example:"Groceries"`
	Content string `json:"content" example:"milk, eggs"`
}

// SaveResponse carries the stored note and the editor state after the save.
type SaveResponse struct {
	Note   *models.Note     `json:"note"`
	Editor dashboard.Editor `json:"editor"`
}

// CommentRequest is the request body for adding a comment.
type CommentRequest struct {
	Content string `json:"content" example:"Looks good"`
}
