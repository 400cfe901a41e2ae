package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/ad-rewards/internal/apperror"
	"github.com/sakif/ad-rewards/internal/model"
)

func TestCreateReward(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "alice")

	r := &model.Reward{UserID: u.ID, Email: "payout@example.com"}
	require.NoError(t, db.CreateReward(ctx, r))
	assert.NotEmpty(t, r.ID)
	assert.False(t, r.Claimed)
	assert.Nil(t, r.ClaimedAt)

	stored, err := db.GetRewardByUserID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, stored.ID)
	assert.Equal(t, "payout@example.com", stored.Email)
	assert.Nil(t, stored.ClaimedAt)
}

func TestCreateReward_SecondClaimRejected(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "alice")

	require.NoError(t, db.CreateReward(ctx, &model.Reward{UserID: u.ID, Email: "a@example.com"}))

	err := db.CreateReward(ctx, &model.Reward{UserID: u.ID, Email: "b@example.com"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrAlreadyClaimed))

	stored, err := db.GetRewardByUserID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", stored.Email)
}

func TestCreateReward_UnknownUser(t *testing.T) {
	db := newTestDB(t)

	err := db.CreateReward(context.Background(), &model.Reward{UserID: "ghost", Email: "g@example.com"})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestGetRewardByUserID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetRewardByUserID(context.Background(), "nobody")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestMarkRewardClaimed_KeepsFirstTimestamp(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "alice")
	require.NoError(t, db.CreateReward(ctx, &model.Reward{UserID: u.ID, Email: "a@example.com"}))

	first := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	paid, err := db.MarkRewardClaimed(ctx, u.ID, first)
	require.NoError(t, err)
	assert.True(t, paid.Claimed)
	require.NotNil(t, paid.ClaimedAt)
	assert.True(t, paid.ClaimedAt.Equal(first))

	again, err := db.MarkRewardClaimed(ctx, u.ID, first.Add(48*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, again.ClaimedAt)
	assert.True(t, again.ClaimedAt.Equal(first), "claimed_at must not move on a repeat call")
}

func TestMarkRewardClaimed_NoReward(t *testing.T) {
	db := newTestDB(t)

	_, err := db.MarkRewardClaimed(context.Background(), "nobody", time.Now())
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}
