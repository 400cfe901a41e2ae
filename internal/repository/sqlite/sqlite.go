// Package sqlite implements repository.Store on top of SQLite.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no CGo, no C toolchain, and the
// same binary runs everywhere. ":memory:" gives every test its own database.
//
// CONCURRENCY MODEL:
// SQLite allows one writer at a time. We cap the pool at a single
// connection, which serialises every statement issued by this process.
// That is plenty for this workload and removes SQLITE_BUSY retries from the
// picture. It also matters for ":memory:" databases, where each new
// connection would otherwise see its own empty database.
//
// Correctness under concurrent requests never depends on that
// serialisation alone: increments are single UPSERT statements, reward
// uniqueness is a UNIQUE constraint and competition creation is a
// conditional INSERT, so the same SQL is safe on Postgres too.
//
// TIMESTAMPS:
// All times are normalised to UTC before they are bound. The driver writes
// them in one fixed text layout, so range comparisons in SQL (end_date > ?)
// compare like with like.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/ad-rewards/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and implements every repository
// interface.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/rewards.db" → file-backed, persistent
//   - ":memory:"        → in-memory, used by tests
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// PRAGMAs are per connection. With a single pooled connection that
	// never expires, running them once here is enough.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. Every statement is idempotent, so it runs on
// every start.
func (db *DB) migrate() error {
	steps := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				username      TEXT NOT NULL UNIQUE COLLATE NOCASE,
				email         TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL DEFAULT '',
				github_id     INTEGER UNIQUE,
				created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_nocase ON users(username COLLATE NOCASE);`},
		{"ad_views", `
			CREATE TABLE IF NOT EXISTS ad_views (
				id        TEXT PRIMARY KEY,
				user_id   TEXT NOT NULL REFERENCES users(id),
				viewed_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_ad_views_user_viewed ON ad_views(user_id, viewed_at);`},
		// start_date is UNIQUE: weekly windows are deterministic, so two
		// racing bootstraps compute the same start and only one insert wins.
		{"competitions", `
			CREATE TABLE IF NOT EXISTS competitions (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL,
				start_date DATETIME NOT NULL UNIQUE,
				end_date   DATETIME NOT NULL,
				is_active  BOOLEAN NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_competitions_active_end ON competitions(is_active, end_date);`},
		{"competition_participants", `
			CREATE TABLE IF NOT EXISTS competition_participants (
				id             TEXT PRIMARY KEY,
				competition_id TEXT NOT NULL REFERENCES competitions(id),
				user_id        TEXT NOT NULL REFERENCES users(id),
				ads_watched    INTEGER NOT NULL DEFAULT 0,
				last_active    DATETIME NOT NULL,
				UNIQUE (competition_id, user_id)
			);
			CREATE INDEX IF NOT EXISTS idx_participants_rank
				ON competition_participants(competition_id, ads_watched DESC);`},
		{"rewards", `
			CREATE TABLE IF NOT EXISTS rewards (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL UNIQUE REFERENCES users(id),
				email      TEXT NOT NULL,
				claimed    BOOLEAN NOT NULL DEFAULT 0,
				claimed_at DATETIME,
				created_at DATETIME NOT NULL
			);`},
	}

	for _, step := range steps {
		if _, err := db.conn.Exec(step.sql); err != nil {
			return fmt.Errorf("creating %s table: %w", step.name, err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back on error or panic.
//
// fn must only use tx: the pool holds a single connection, so touching
// db.conn from inside fn would block forever.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// utc strips monotonic readings and location so every stored time has the
// same text form.
func utc(t time.Time) time.Time {
	return t.UTC().Round(0)
}

func nullableGitHubID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// errorCode returns the extended SQLite result code, or 0 for non-SQLite
// errors.
func errorCode(err error) int {
	var sqliteErr *moderncsqlite.Error
	if !errors.As(err, &sqliteErr) {
		return 0
	}
	return sqliteErr.Code()
}

func isUniqueViolation(err error) bool {
	code := errorCode(err)
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return true
	}
	return code == sqlite3.SQLITE_CONSTRAINT && strings.Contains(err.Error(), "UNIQUE")
}

func isForeignKeyViolation(err error) bool {
	code := errorCode(err)
	if code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return code == sqlite3.SQLITE_CONSTRAINT && strings.Contains(err.Error(), "FOREIGN KEY")
}
