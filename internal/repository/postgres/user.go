package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/sakif/ad-rewards/internal/apperror"
	"github.com/sakif/ad-rewards/internal/model"
)

const userColumns = `id, username, email, password_hash, github_id, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u        model.User
		githubID *int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &githubID, &u.CreatedAt); err != nil {
		return nil, err
	}
	if githubID != nil {
		u.GitHubID = *githubID
	}
	return &u, nil
}

func nullableGitHubID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = utc(time.Now())

	_, err := db.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, password_hash, github_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Username, user.Email, user.PasswordHash, nullableGitHubID(user.GitHubID), user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return userConflict(err, user)
		}
		return fmt.Errorf("postgres: inserting user %q: %w", user.Username, err)
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("postgres: getting user %s: %w", id, err)
	}
	return u, nil
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("postgres: getting user %q: %w", username, err)
	}
	return u, nil
}

// UpsertGitHubUser returns the account linked to user.GitHubID or creates
// a new one. It never links to a password account by email; an email or
// username already taken is a Conflict, and so is losing a race with a
// concurrent callback for the same GitHub user on UNIQUE(github_id).
func (db *DB) UpsertGitHubUser(ctx context.Context, user *model.User) error {
	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		existing, err := scanUser(tx.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE github_id = $1 FOR UPDATE`, user.GitHubID))
		if err == nil {
			*user = *existing
			return nil
		}
		if !isNoRows(err) {
			return fmt.Errorf("postgres: looking up github_id %d: %w", user.GitHubID, err)
		}

		user.ID = xid.New().String()
		user.CreatedAt = utc(time.Now())
		if _, err := tx.Exec(ctx,
			`INSERT INTO users (id, username, email, password_hash, github_id, created_at)
			 VALUES ($1, $2, $3, '', $4, $5)`,
			user.ID, user.Username, user.Email, user.GitHubID, user.CreatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return userConflict(err, user)
			}
			return fmt.Errorf("postgres: inserting github user %d: %w", user.GitHubID, err)
		}
		return nil
	})
}

func userConflict(err error, user *model.User) error {
	if pgErr := pgError(err); pgErr != nil && pgErr.ConstraintName == "users_email_key" {
		return apperror.Conflict("email", user.Email)
	}
	return apperror.Conflict("username", user.Username)
}
