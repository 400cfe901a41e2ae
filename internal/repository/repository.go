// Package repository declares the storage contracts used by the service
// layer. Implementations live in the sqlite, postgres and memory
// subpackages; services only ever see these interfaces.
//
// Every invariant that must hold under concurrent requests is pushed down to
// the store: participant increments are single upsert statements, reward
// uniqueness is a UNIQUE constraint, and competition creation is one
// conditional insert keyed on its start date.
package repository

import (
	"context"
	"time"

	"github.com/sakif/ad-rewards/internal/model"
)

type UserRepository interface {
	// CreateUser inserts a new user. Returns apperror.ErrConflict when the
	// username (compared ignoring case) or email is taken.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	// GetUserByUsername matches ignoring case.
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	// UpsertGitHubUser returns the account already linked to user.GitHubID
	// or creates a new one, filling in the stored ID and CreatedAt. It never
	// links an existing password account; a taken username or email is
	// apperror.ErrConflict.
	UpsertGitHubUser(ctx context.Context, user *model.User) error
}

type AdViewRepository interface {
	// CreateAdView appends a view; the store assigns ID and ViewedAt.
	CreateAdView(ctx context.Context, view *model.AdView) error
	ListAdViewsByUser(ctx context.Context, userID string) ([]model.AdView, error)
	CountAdViewsByUser(ctx context.Context, userID string) (int, error)
	// ListUsersWithMinAdViews returns users with at least min views,
	// ordered by username.
	ListUsersWithMinAdViews(ctx context.Context, min int) ([]model.User, error)
}

type CompetitionRepository interface {
	// CreateCompetitionIfAbsent inserts c only when no current competition
	// exists at now and no competition shares c.StartDate. It reports
	// whether a row was created.
	CreateCompetitionIfAbsent(ctx context.Context, c *model.Competition, now time.Time) (bool, error)
	// GetCurrentCompetition returns the active competition whose end date is
	// after now, or apperror.ErrNotFound.
	GetCurrentCompetition(ctx context.Context, now time.Time) (*model.Competition, error)
	// GetCompetitionAt returns the active competition whose window contains
	// at, or apperror.ErrNotFound.
	GetCompetitionAt(ctx context.Context, at time.Time) (*model.Competition, error)
	GetCompetitionByID(ctx context.Context, id string) (*model.Competition, error)
	EndCompetition(ctx context.Context, id string) (*model.Competition, error)

	// IncrementParticipant atomically creates the (competition, user) row
	// with AdsWatched = 1 or adds one to the existing row.
	IncrementParticipant(ctx context.Context, competitionID, userID string, at time.Time) (*model.Participant, error)
	GetParticipant(ctx context.Context, competitionID, userID string) (*model.Participant, error)
	// Leaderboard returns participants with at least minAds views, sorted by
	// AdsWatched descending then participant ID ascending.
	Leaderboard(ctx context.Context, competitionID string, limit, minAds int) ([]model.LeaderboardEntry, error)
	// RebuildParticipants recomputes every participant of the competition
	// from the ad-view ledger and returns the number of rows written.
	RebuildParticipants(ctx context.Context, c *model.Competition) (int, error)
}

type RewardRepository interface {
	// CreateReward inserts the user's reward. Returns
	// apperror.ErrAlreadyClaimed when one already exists.
	CreateReward(ctx context.Context, reward *model.Reward) error
	GetRewardByUserID(ctx context.Context, userID string) (*model.Reward, error)
	MarkRewardClaimed(ctx context.Context, userID string, at time.Time) (*model.Reward, error)
}

// Store is everything the server needs from a storage backend.
type Store interface {
	UserRepository
	AdViewRepository
	CompetitionRepository
	RewardRepository
	Close() error
}
