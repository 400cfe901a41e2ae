package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/sakif/ad-rewards/internal/apperror"
	"github.com/sakif/ad-rewards/internal/model"
	"github.com/sakif/ad-rewards/internal/repository"
)

const (
	DefaultLeaderboardLimit = 100
	MaxLeaderboardLimit     = 100

	competitionCacheSize = 64
)

// CompetitionConfig controls how weekly windows are cut and who shows up
// on the board.
type CompetitionConfig struct {
	ResetDay time.Weekday
	Location *time.Location // nil means UTC
	MinAds   int            // leaderboard entries need at least this many views
}

// CompetitionService runs the weekly competitions.
//
// WEEKLY ROLLOVER:
// There is no scheduler. Whenever a caller needs "the current
// competition" and none exists, EnsureWeeklyCompetition creates the one
// for this week. The store makes that creation idempotent, so any number
// of requests may race to do it.
type CompetitionService struct {
	repo     repository.CompetitionRepository
	resetDay time.Weekday
	loc      *time.Location
	minAds   int
	logger   *slog.Logger

	// byID caches competitions looked up by ID. Only EndCompetition and
	// Reconcile go through it, and EndCompetition evicts.
	byID *lru.Cache

	now func() time.Time
}

func NewCompetitionService(repo repository.CompetitionRepository, cfg CompetitionConfig, logger *slog.Logger) (*CompetitionService, error) {
	cache, err := lru.New(competitionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating competition cache: %w", err)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &CompetitionService{
		repo:     repo,
		resetDay: cfg.ResetDay,
		loc:      loc,
		minAds:   cfg.MinAds,
		logger:   logger,
		byID:     cache,
		now:      time.Now,
	}, nil
}

// WeekWindow returns the competition window containing now: from 00:00 on
// the most recent resetDay (today included) in loc, to one millisecond
// before the next one. Consecutive windows never overlap, so every
// instant belongs to exactly one week.
func WeekWindow(now time.Time, resetDay time.Weekday, loc *time.Location) (start, end time.Time) {
	local := now.In(loc)
	back := (int(local.Weekday()) - int(resetDay) + 7) % 7
	start = time.Date(local.Year(), local.Month(), local.Day()-back, 0, 0, 0, 0, loc)
	end = start.AddDate(0, 0, 7).Add(-time.Millisecond)
	return start, end
}

// EnsureWeeklyCompetition makes sure a current competition exists and
// returns it, reporting whether this call created it.
//
// If an admin ended this week's competition early, it is not recreated;
// the call returns ErrNotFound until next week's window opens.
func (s *CompetitionService) EnsureWeeklyCompetition(ctx context.Context) (*model.Competition, bool, error) {
	now := s.now()
	start, end := WeekWindow(now, s.resetDay, s.loc)

	c := &model.Competition{
		Name:      "Week of " + start.Format("Jan 2, 2006"),
		StartDate: start,
		EndDate:   end,
	}
	created, err := s.repo.CreateCompetitionIfAbsent(ctx, c, now)
	if err != nil {
		s.logger.Error("failed to create weekly competition", slog.String("error", err.Error()))
		return nil, false, fmt.Errorf("ensuring weekly competition: %w", err)
	}
	if created {
		s.logger.Info("weekly competition created",
			slog.String("competitionID", c.ID),
			slog.Time("start", c.StartDate),
			slog.Time("end", c.EndDate),
		)
		return c, true, nil
	}

	current, err := s.repo.GetCurrentCompetition(ctx, now)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// CurrentCompetition returns this week's competition, creating it first
// if needed.
func (s *CompetitionService) CurrentCompetition(ctx context.Context) (*model.Competition, error) {
	c, _, err := s.EnsureWeeklyCompetition(ctx)
	return c, err
}

// GetCompetition looks a competition up by ID through the cache.
func (s *CompetitionService) GetCompetition(ctx context.Context, id string) (*model.Competition, error) {
	if cached, ok := s.byID.Get(id); ok {
		c := *cached.(*model.Competition)
		return &c, nil
	}
	c, err := s.repo.GetCompetitionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stored := *c
	s.byID.Add(id, &stored)
	return c, nil
}

// RecordParticipation adds one view to userID's row in the competition,
// creating the row on first use.
func (s *CompetitionService) RecordParticipation(ctx context.Context, userID, competitionID string) (*model.Participant, error) {
	return s.recordParticipation(ctx, userID, competitionID, s.now())
}

func (s *CompetitionService) recordParticipation(ctx context.Context, userID, competitionID string, at time.Time) (*model.Participant, error) {
	if userID == "" || competitionID == "" {
		return nil, apperror.ValidationFailed("competitionId", "User and competition are required")
	}
	p, err := s.repo.IncrementParticipant(ctx, competitionID, userID, at)
	if err != nil {
		return nil, fmt.Errorf("recording participation of %s in %s: %w", userID, competitionID, err)
	}
	return p, nil
}

// TrackAdView credits view to the competition whose window contains its
// timestamp. It returns (nil, nil) when no competition covers the view,
// which happens after an admin ends the week early.
func (s *CompetitionService) TrackAdView(ctx context.Context, view *model.AdView) (*model.Participant, error) {
	c, err := s.repo.GetCompetitionAt(ctx, view.ViewedAt)
	if errors.Is(err, apperror.ErrNotFound) {
		if _, _, err := s.EnsureWeeklyCompetition(ctx); err != nil && !errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		c, err = s.repo.GetCompetitionAt(ctx, view.ViewedAt)
	}
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Info("no competition covers ad view",
				slog.String("viewID", view.ID),
				slog.Time("viewedAt", view.ViewedAt),
			)
			return nil, nil
		}
		return nil, fmt.Errorf("finding competition for view %s: %w", view.ID, err)
	}
	return s.recordParticipation(ctx, view.UserID, c.ID, view.ViewedAt)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		return MaxLeaderboardLimit
	}
	return limit
}

// Leaderboard ranks the competition's participants by views, most first.
// Ties keep the order in which users joined.
func (s *CompetitionService) Leaderboard(ctx context.Context, competitionID string, limit int) ([]model.LeaderboardEntry, error) {
	if _, err := s.GetCompetition(ctx, competitionID); err != nil {
		return nil, err
	}
	entries, err := s.repo.Leaderboard(ctx, competitionID, clampLimit(limit), s.minAds)
	if err != nil {
		return nil, fmt.Errorf("loading leaderboard for %s: %w", competitionID, err)
	}
	return entries, nil
}

// CurrentLeaderboard is the board of the current competition, or an empty
// list when there is none. It never creates a competition.
func (s *CompetitionService) CurrentLeaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	c, err := s.repo.GetCurrentCompetition(ctx, s.now())
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return []model.LeaderboardEntry{}, nil
		}
		return nil, fmt.Errorf("loading current competition: %w", err)
	}
	entries, err := s.repo.Leaderboard(ctx, c.ID, clampLimit(limit), s.minAds)
	if err != nil {
		return nil, fmt.Errorf("loading leaderboard for %s: %w", c.ID, err)
	}
	return entries, nil
}

// Standing returns userID's row in the current competition. A user who has
// not watched anything this week gets a zero row rather than an error.
func (s *CompetitionService) Standing(ctx context.Context, userID string) (*model.Participant, error) {
	c, err := s.CurrentCompetition(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.GetParticipant(ctx, c.ID, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return &model.Participant{CompetitionID: c.ID, UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading standing of %s: %w", userID, err)
	}
	return p, nil
}

// EndCompetition closes a competition early. Admin only.
func (s *CompetitionService) EndCompetition(ctx context.Context, caller Caller, id string) (*model.Competition, error) {
	if err := caller.requireAdmin(); err != nil {
		return nil, err
	}
	c, err := s.repo.EndCompetition(ctx, id)
	s.byID.Remove(id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("competition ended",
		slog.String("competitionID", id),
		slog.String("by", caller.UserID),
	)
	return c, nil
}

// Reconcile rebuilds every participant row of a competition from the
// ad-view ledger, repairing views whose tracking step failed. Admin only.
func (s *CompetitionService) Reconcile(ctx context.Context, caller Caller, id string) (int, error) {
	if err := caller.requireAdmin(); err != nil {
		return 0, err
	}
	c, err := s.GetCompetition(ctx, id)
	if err != nil {
		return 0, err
	}
	n, err := s.repo.RebuildParticipants(ctx, c)
	if err != nil {
		s.logger.Error("failed to reconcile competition",
			slog.String("competitionID", id),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("reconciling competition %s: %w", id, err)
	}
	s.logger.Info("competition reconciled",
		slog.String("competitionID", id),
		slog.Int("participants", n),
		slog.String("by", caller.UserID),
	)
	return n, nil
}
