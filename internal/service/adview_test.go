package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/ad-rewards/internal/apperror"
	"github.com/sakif/ad-rewards/internal/model"
)

type failingTracker struct{ calls int }

func (f *failingTracker) TrackAdView(context.Context, *model.AdView) (*model.Participant, error) {
	f.calls++
	return nil, errors.New("competition store unavailable")
}

func TestRecordAdView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")

	v, err := f.ads.RecordAdView(ctx, alice.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)
	assert.True(t, v.ViewedAt.Equal(f.clock.Now()), "timestamp comes from the server clock")

	views, err := f.ads.ListAdViews(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, v.ID, views[0].ID)
}

func TestRecordAdView_UnknownUser(t *testing.T) {
	f := newFixture(t)

	// A session token can outlive its account.
	_, err := f.ads.RecordAdView(context.Background(), "ghost")
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))
	assert.False(t, errors.Is(err, apperror.ErrNotFound))

	_, err = f.ads.RecordAdView(context.Background(), "")
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))
}

func TestRecordAdView_TrackerFailureIsTolerated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")

	tracker := &failingTracker{}
	svc := NewAdViewService(f.store, tracker, testLogger())

	_, err := svc.RecordAdView(ctx, alice.ID)
	require.NoError(t, err, "the ledger write stands even when tracking fails")
	assert.Equal(t, 1, tracker.calls)

	n, err := svc.CountAdViews(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
