// Package apperr defines the failure kinds surfaced by the core services.
//
// Every failure carries a kind sentinel and a caller-safe message. Kinds are
// matched with errors.Is; the message is what the boundary layer shows.
package apperr

import "errors"

// Kind sentinels.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// Error is a classified failure. It unwraps to its Kind.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// InvalidInput reports malformed input detected before any storage call.
func InvalidInput(msg string) error {
	return &Error{Kind: ErrInvalidInput, Message: msg}
}

// Conflict reports a uniqueness violation.
func Conflict(msg string) error {
	return &Error{Kind: ErrConflict, Message: msg}
}

// Unauthorized reports bad or missing credentials.
func Unauthorized(msg string) error {
	return &Error{Kind: ErrUnauthorized, Message: msg}
}

// Forbidden reports an authenticated caller acting on a resource it does not own.
func Forbidden(msg string) error {
	return &Error{Kind: ErrForbidden, Message: msg}
}

// NotFound reports an absent or soft-deleted resource.
func NotFound(msg string) error {
	return &Error{Kind: ErrNotFound, Message: msg}
}

// Message returns the caller-safe message of a classified error, or fallback
// when err carries no classification.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}

	return fallback
}
