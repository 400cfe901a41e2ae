package postgres

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/ad-rewards/internal/apperror"
	"github.com/sakif/ad-rewards/internal/model"
)

// newTestDB connects to TEST_DATABASE_URL and empties every table. The
// tests are skipped when the variable is unset.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := New(ctx, Config{URL: url, MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.pool.Exec(ctx,
		`TRUNCATE rewards, competition_participants, competitions, ad_views, users`)
	require.NoError(t, err)
	return db
}

func TestPostgres_UserConflicts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &model.User{Username: "alice", Email: "alice@example.com"}))

	err := db.CreateUser(ctx, &model.User{Username: "alice", Email: "x@example.com"})
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	err = db.CreateUser(ctx, &model.User{Username: "alice2", Email: "alice@example.com"})
	assert.True(t, errors.Is(err, apperror.ErrConflict))
	assert.Contains(t, err.Error(), "email")

	err = db.CreateUser(ctx, &model.User{Username: "ALICE", Email: "upper@example.com"})
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	byName, err := db.GetUserByUsername(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", byName.Username)

	// GitHub sign-in never takes over a password account by email.
	gh := &model.User{Username: "alice-gh", Email: "alice@example.com", GitHubID: 7}
	err = db.UpsertGitHubUser(ctx, gh)
	assert.True(t, errors.Is(err, apperror.ErrConflict))
}

func TestPostgres_ConcurrentTracking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := &model.User{Username: "alice", Email: "alice@example.com"}
	require.NoError(t, db.CreateUser(ctx, u))

	now := time.Now().UTC()
	start := now.Add(-time.Hour)

	// Racing bootstraps for the same week create exactly one row.
	var created atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			c := &model.Competition{Name: "Weekly Competition", StartDate: start, EndDate: now.Add(24 * time.Hour)}
			ok, err := db.CreateCompetitionIfAbsent(ctx, c, now)
			if ok {
				created.Add(1)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), created.Load())

	c, err := db.GetCurrentCompetition(ctx, now)
	require.NoError(t, err)

	const n = 40
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := db.IncrementParticipant(ctx, c.ID, u.ID, time.Now())
			return err
		})
	}
	require.NoError(t, g.Wait())

	p, err := db.GetParticipant(ctx, c.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, n, p.AdsWatched)

	board, err := db.Leaderboard(ctx, c.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, "alice", board[0].Username)
}

func TestPostgres_OneRewardPerUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := &model.User{Username: "alice", Email: "alice@example.com"}
	require.NoError(t, db.CreateUser(ctx, u))

	var successes atomic.Int32
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			err := db.CreateReward(ctx, &model.Reward{UserID: u.ID, Email: "pay@example.com"})
			switch {
			case err == nil:
				successes.Add(1)
				return nil
			case errors.Is(err, apperror.ErrAlreadyClaimed):
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), successes.Load())

	paid, err := db.MarkRewardClaimed(ctx, u.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, paid.Claimed)
	assert.NotNil(t, paid.ClaimedAt)
}
