package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrNoSession      = errors.New("not signed in")
	ErrEmptyTitle     = errors.New("title is required")
	ErrEmptyComment   = errors.New("comment is required")
	ErrInvalidRow     = errors.New("invalid row")
	// ErrSessionChanged marks a result dropped because the user changed while
	// the call was in flight.
	ErrSessionChanged = errors.New("session changed")
)

// OpError is the single failure signal handed to callers of note and comment
// operations. Message is meant for direct display; Err keeps the cause for logs.
type OpError struct {
	Op      string
	Message string
	Err     error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Failed builds an OpError for op.
func Failed(op, message string, err error) *OpError {
	return &OpError{Op: op, Message: message, Err: err}
}

// Message returns the display message of err: the OpError message when there
// is one, the plain error text otherwise.
func Message(err error) string {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Message
	}
	return err.Error()
}
