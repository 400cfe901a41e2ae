package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/ad-rewards/internal/apperror"
	"github.com/sakif/ad-rewards/internal/model"
)

func TestClaimReward_ThresholdBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")

	for watched := 0; watched < testThreshold; watched++ {
		_, err := f.rewards.ClaimReward(ctx, alice.ID, "alice@example.com")
		require.Error(t, err, "claim with %d views", watched)
		assert.True(t, errors.Is(err, apperror.ErrInsufficientProgress), "claim with %d views: %v", watched, err)

		f.watch(t, alice.ID, 1)
	}

	r, err := f.rewards.ClaimReward(ctx, alice.ID, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, r.UserID)
	assert.Equal(t, "alice@example.com", r.Email)
	assert.False(t, r.Claimed, "Claimed flips only when an admin pays out")
}

func TestClaimReward_InsufficientProgressMessage(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	f.watch(t, alice.ID, 3)

	_, err := f.rewards.ClaimReward(context.Background(), alice.ID, "alice@example.com")
	assert.EqualError(t, err, "Not enough ads watched: 3 of 4")
}

func TestClaimReward_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	f.watch(t, alice.ID, testThreshold)

	_, err := f.rewards.ClaimReward(ctx, alice.ID, "alice@example.com")
	require.NoError(t, err)

	_, err = f.rewards.ClaimReward(ctx, alice.ID, "other@example.com")
	assert.True(t, errors.Is(err, apperror.ErrAlreadyClaimed))

	r, err := f.rewards.GetReward(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", r.Email)
}

func TestClaimReward_InvalidEmail(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	f.watch(t, alice.ID, testThreshold)

	_, err := f.rewards.ClaimReward(context.Background(), alice.ID, "not-an-email")
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = f.rewards.GetReward(context.Background(), alice.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "a rejected claim stores nothing")
}

func TestClaimReward_ConcurrentClaimsOneWins(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	f.watch(t, alice.ID, testThreshold)

	const m = 20
	var won, rejected atomic.Int32
	var g errgroup.Group
	for i := 0; i < m; i++ {
		g.Go(func() error {
			_, err := f.rewards.ClaimReward(context.Background(), alice.ID, "alice@example.com")
			switch {
			case err == nil:
				won.Add(1)
			case errors.Is(err, apperror.ErrAlreadyClaimed):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), won.Load())
	assert.Equal(t, int32(m-1), rejected.Load())
}

func TestGetReward_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.rewards.GetReward(context.Background(), f.user(t, "alice").ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	assert.Equal(t, "No reward found", err.Error())
}

func TestProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")

	p, err := f.rewards.Progress(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Progress{Threshold: testThreshold, Remaining: testThreshold, State: model.StateWatching}, *p)

	f.watch(t, alice.ID, testThreshold)
	p, err = f.rewards.Progress(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateQualified, p.State)
	assert.Zero(t, p.Remaining)
	assert.Nil(t, p.Reward)

	_, err = f.rewards.ClaimReward(ctx, alice.ID, "alice@example.com")
	require.NoError(t, err)
	p, err = f.rewards.Progress(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateClaimed, p.State)
	require.NotNil(t, p.Reward)
	assert.Equal(t, "alice@example.com", p.Reward.Email)
}

func TestMarkRewardPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	f.watch(t, alice.ID, testThreshold)
	_, err := f.rewards.ClaimReward(ctx, alice.ID, "alice@example.com")
	require.NoError(t, err)

	_, err = f.rewards.MarkRewardPaid(ctx, Caller{UserID: alice.ID}, alice.ID)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	paid, err := f.rewards.MarkRewardPaid(ctx, admin, alice.ID)
	require.NoError(t, err)
	assert.True(t, paid.Claimed)
	require.NotNil(t, paid.ClaimedAt)
	assert.True(t, paid.ClaimedAt.Equal(f.clock.Now()))

	_, err = f.rewards.MarkRewardPaid(ctx, admin, "nobody")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestQualifiedUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	f.watch(t, alice.ID, testThreshold)
	f.watch(t, bob.ID, testThreshold-1)

	_, err := f.rewards.QualifiedUsers(ctx, Caller{UserID: bob.ID})
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	users, err := f.rewards.QualifiedUsers(ctx, admin)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)
}
