package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakif/ad-rewards/internal/model"
)

// newTestDB opens a fresh in-memory database. Each call gets its own
// isolated schema, so tests never see each other's rows.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	require.NoError(t, err, "opening in-memory database")
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, username string) *model.User {
	t.Helper()
	u := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
	}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

func TestNew_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewards.db")

	first, err := New(path)
	require.NoError(t, err)
	createTestUser(t, first, "alice")
	require.NoError(t, first.Close())

	// Reopening runs every CREATE ... IF NOT EXISTS again and must keep
	// the existing rows.
	second, err := New(path)
	require.NoError(t, err)
	defer second.Close()

	u, err := second.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", u.Email)
}
