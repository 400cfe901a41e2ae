package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{"NotFound wraps ErrNotFound", NotFound("reward", "u1"), ErrNotFound, true},
		{"ValidationFailed wraps ErrValidation", ValidationFailed("email", "bad"), ErrValidation, true},
		{"Conflict wraps ErrConflict", Conflict("username", "alice"), ErrConflict, true},
		{"Unauthorized wraps ErrUnauthorized", Unauthorized("nope"), ErrUnauthorized, true},
		{"InsufficientProgress wraps its sentinel", InsufficientProgress(1, 4), ErrInsufficientProgress, true},
		{"AlreadyClaimed wraps its sentinel", AlreadyClaimed(), ErrAlreadyClaimed, true},
		{"wrapped twice still matches", fmt.Errorf("service: %w", AlreadyClaimed()), ErrAlreadyClaimed, true},
		{"AlreadyClaimed is not a conflict", AlreadyClaimed(), ErrConflict, false},
		{"InsufficientProgress is not validation", InsufficientProgress(0, 4), ErrValidation, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{"NotFound", NotFound("reward", "u1"), "reward not found with id u1"},
		{"Conflict", Conflict("username", "alice"), "username alice is already taken"},
		{"InsufficientProgress", InsufficientProgress(3, 4), "Not enough ads watched: 3 of 4"},
		{"AlreadyClaimed", AlreadyClaimed(), "Reward already claimed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestAsExtractsMessageThroughWrapping(t *testing.T) {
	err := fmt.Errorf("claiming: %w", ValidationFailed("email", "Invalid email format"))

	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatal("errors.As() did not find *AppError")
	}
	if appErr.Field != "email" {
		t.Errorf("Field = %q, want %q", appErr.Field, "email")
	}
	if appErr.Message != "Invalid email format" {
		t.Errorf("Message = %q", appErr.Message)
	}
}
