package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/ad-rewards/internal/apperror"
	"github.com/sakif/ad-rewards/internal/model"
)

const userColumns = `id, username, email, password_hash, github_id, created_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u        model.User
		githubID sql.NullInt64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &githubID, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.GitHubID = githubID.Int64
	return &u, nil
}

// CreateUser inserts a new user and fills in ID and CreatedAt.
//
// Username and email uniqueness is enforced by the UNIQUE constraints, not
// by a lookup first: two concurrent registrations for the same name can
// both pass a lookup, but only one can pass the constraint.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = utc(time.Now())

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, github_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		nullableGitHubID(user.GitHubID),
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return userConflict(err, user)
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}
	return nil
}

// GetUserByID returns apperror.ErrNotFound if no user has that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? COLLATE NOCASE`, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("sqlite: getting user %q: %w", username, err)
	}
	return u, nil
}

// UpsertGitHubUser resolves a GitHub sign-in to an account: the account
// already linked to the GitHub ID, or else a new password-less account.
// Password accounts are never linked by email, since registration does not
// verify addresses; a taken email or username is a Conflict.
//
// The lookup and the write run in one transaction.
func (db *DB) UpsertGitHubUser(ctx context.Context, user *model.User) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE github_id = ?`, user.GitHubID))
		if err == nil {
			*user = *existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("sqlite: looking up github_id %d: %w", user.GitHubID, err)
		}

		user.ID = xid.New().String()
		user.CreatedAt = utc(time.Now())
		_, err = tx.ExecContext(ctx,
			`INSERT INTO users (id, username, email, password_hash, github_id, created_at)
			 VALUES (?, ?, ?, '', ?, ?)`,
			user.ID, user.Username, user.Email, user.GitHubID, user.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return userConflict(err, user)
			}
			return fmt.Errorf("sqlite: inserting github user %d: %w", user.GitHubID, err)
		}
		return nil
	})
}

// userConflict turns "UNIQUE constraint failed: users.email" into a
// Conflict naming the offending field.
func userConflict(err error, user *model.User) error {
	if strings.Contains(err.Error(), "users.email") {
		return apperror.Conflict("email", user.Email)
	}
	return apperror.Conflict("username", user.Username)
}
