// Package apperror defines the domain error taxonomy.
//
// Services return these errors; only the HTTP layer knows how they map to
// status codes (see handler/response.go). Each constructor wraps one of the
// sentinels below so callers can classify with errors.Is.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrValidation           = errors.New("validation error")
	ErrConflict             = errors.New("conflict")
	ErrForbidden            = errors.New("forbidden")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInsufficientProgress = errors.New("insufficient progress")
	ErrAlreadyClaimed       = errors.New("already claimed")
)

type AppError struct {
	Err     error  // sentinel
	Message string // safe to show to the client
	Field   string // optional: offending input field
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, value string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s %s is already taken", resource, value),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized is returned for failed logins and missing sessions.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// InsufficientProgress is returned when a user tries to claim before
// watching enough ads.
func InsufficientProgress(watched, required int) *AppError {
	return &AppError{
		Err:     ErrInsufficientProgress,
		Message: fmt.Sprintf("Not enough ads watched: %d of %d", watched, required),
	}
}

// AlreadyClaimed is returned when a reward row already exists for the user.
func AlreadyClaimed() *AppError {
	return &AppError{
		Err:     ErrAlreadyClaimed,
		Message: "Reward already claimed",
	}
}
