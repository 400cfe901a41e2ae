package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/ad-rewards/internal/auth"
	"github.com/sakif/ad-rewards/internal/model"
	"github.com/sakif/ad-rewards/internal/repository/memory"
)

const testThreshold = 4

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is shared by the store and the services so ad-view timestamps
// and competition windows agree.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fixture wires every service over one memory store. The clock starts on
// Wednesday 12 March 2025, 10:00 UTC; weeks reset on Sunday.
type fixture struct {
	store   *memory.Store
	clock   *fakeClock
	auth    *AuthService
	ads     *AdViewService
	comps   *CompetitionService
	rewards *RewardService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := testLogger()
	clock := &fakeClock{t: time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)}

	store := memory.New()
	store.Now = clock.Now

	comps, err := NewCompetitionService(store, CompetitionConfig{ResetDay: time.Sunday}, logger)
	require.NoError(t, err)
	comps.now = clock.Now

	rewards := NewRewardService(store, store, testThreshold, logger)
	rewards.now = clock.Now

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars", time.Hour)
	require.NoError(t, err)

	return &fixture{
		store:   store,
		clock:   clock,
		auth:    NewAuthService(store, tokens, auth.NewPasswordServiceWithCost(bcrypt.MinCost), []string{"Admin"}, logger),
		ads:     NewAdViewService(store, comps, logger),
		comps:   comps,
		rewards: rewards,
	}
}

func (f *fixture) user(t *testing.T, username string) *model.User {
	t.Helper()
	u := &model.User{Username: username, Email: username + "@example.com"}
	require.NoError(t, f.store.CreateUser(context.Background(), u))
	return u
}

func (f *fixture) watch(t *testing.T, userID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := f.ads.RecordAdView(context.Background(), userID)
		require.NoError(t, err)
	}
}

var admin = Caller{UserID: "admin-id", IsAdmin: true}
