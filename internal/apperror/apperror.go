// Package apperror defines the error taxonomy shared by every layer.
//
// Services return these errors (usually wrapped with %w); the HTTP layer
// maps them to status codes with errors.Is. A request that ends in any
// other error is reported to the client as a generic 500.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
)

type AppError struct {
	Err     error  // sentinel kind, one of the Err* values above
	Message string // human-readable, safe to show to clients
	Field   string // optional: field causing the error
	Cause   error  // optional: underlying error, never shown to clients
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the cause, so errors.Is matches
// either of them.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource string, id any) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %v", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Unauthorized reports a failed authentication. The cause is kept for logs;
// clients only ever see the message.
func Unauthorized(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
		Cause:   cause,
	}
}
