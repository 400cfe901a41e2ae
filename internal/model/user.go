// Package model defines the data structures shared by every layer:
// storage rows, service results and JSON response bodies.
package model

import "time"

// User is a registered account.
//
// Users sign up with a username/email/password, or through GitHub when
// OAuth is configured. GitHubID is zero for password-only accounts; the
// column is NULL in the database so the UNIQUE constraint only applies to
// linked accounts.
//
// WHY json:"-" ON PasswordHash?
// Every handler that returns a User encodes it straight to JSON. Tagging the
// hash with "-" means no response can leak it, even the admin listing.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	GitHubID     int64     `json:"githubId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
