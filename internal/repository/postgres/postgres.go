// Package postgres implements repository.Store on PostgreSQL via pgx.
//
// It runs the same statements as the sqlite package, translated to
// Postgres placeholders and types. Postgres executes statements from
// different connections in parallel, so the guarantees come entirely from
// the schema: UNIQUE(start_date), UNIQUE(competition_id, user_id),
// UNIQUE(user_id) on rewards, and single-statement upserts.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/ad-rewards/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// Postgres error codes we translate into domain errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

type DB struct {
	pool *pgxpool.Pool
}

// Config holds connection settings.
type Config struct {
	URL      string
	MaxConns int32
}

// New connects, verifies the connection and runs migrations.
func New(ctx context.Context, cfg Config) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	db := &DB{pool: pool}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

func (db *DB) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			github_id     BIGINT UNIQUE,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		// Usernames are unique regardless of case: admin rights are matched
		// on the lower-cased name.
		`CREATE UNIQUE INDEX IF NOT EXISTS users_username_lower_key ON users (lower(username))`,
		`CREATE TABLE IF NOT EXISTS ad_views (
			id        TEXT PRIMARY KEY,
			user_id   TEXT NOT NULL REFERENCES users(id),
			viewed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ad_views_user_viewed ON ad_views(user_id, viewed_at)`,
		`CREATE TABLE IF NOT EXISTS competitions (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			start_date TIMESTAMPTZ NOT NULL UNIQUE,
			end_date   TIMESTAMPTZ NOT NULL,
			is_active  BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_competitions_active_end ON competitions(is_active, end_date)`,
		`CREATE TABLE IF NOT EXISTS competition_participants (
			id             TEXT PRIMARY KEY,
			competition_id TEXT NOT NULL REFERENCES competitions(id),
			user_id        TEXT NOT NULL REFERENCES users(id),
			ads_watched    INTEGER NOT NULL DEFAULT 0,
			last_active    TIMESTAMPTZ NOT NULL,
			UNIQUE (competition_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_participants_rank
			ON competition_participants(competition_id, ads_watched DESC)`,
		`CREATE TABLE IF NOT EXISTS rewards (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL UNIQUE REFERENCES users(id),
			email      TEXT NOT NULL,
			claimed    BOOLEAN NOT NULL DEFAULT FALSE,
			claimed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// utc drops the monotonic clock reading and normalises the location.
func utc(t time.Time) time.Time {
	return t.UTC().Round(0)
}

func pgError(err error) *pgconn.PgError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr
	}
	return nil
}

func isUniqueViolation(err error) bool {
	pgErr := pgError(err)
	return pgErr != nil && pgErr.Code == codeUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	pgErr := pgError(err)
	return pgErr != nil && pgErr.Code == codeForeignKeyViolation
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
