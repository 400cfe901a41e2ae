// Package service holds the business rules of the rewards app.
//
// LAYERS:
//
//	Handler (HTTP)      → decodes requests, maps errors to status codes
//	Service (this one)  → validates input, enforces the reward rules
//	Repository (store)  → SQL; owns every concurrency guarantee
//
// Services take repository interfaces, never a concrete store, so the
// same code runs on SQLite, Postgres and the in-memory test double.
// Methods accept plain values (IDs, strings) instead of *http.Request, and
// return apperror values that the handler layer translates.
package service

import (
	"net/mail"
	"strings"

	"github.com/sakif/ad-rewards/internal/apperror"
)

// Caller identifies who is performing an operation and what they may do.
// Admin-only operations take a Caller explicitly; there is no ambient
// "current user" inside the service layer.
type Caller struct {
	UserID  string
	IsAdmin bool
}

func (c Caller) requireAdmin() error {
	if !c.IsAdmin {
		return apperror.Forbidden("Admin access required")
	}
	return nil
}

// validateEmail trims email and checks it is a bare address such as
// "a@b.example". Display-name forms ("Alice <a@b>") are rejected.
func validateEmail(field, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", apperror.ValidationFailed(field, "Email is required")
	}
	invalid := apperror.ValidationFailed(field, "Please provide a valid email address")

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid
	}
	domain := email[strings.LastIndex(email, "@")+1:]
	if !strings.Contains(domain, ".") {
		return "", invalid
	}
	return email, nil
}
