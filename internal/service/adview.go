package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/ad-rewards/internal/apperror"
	"github.com/sakif/ad-rewards/internal/model"
	"github.com/sakif/ad-rewards/internal/repository"
)

// ParticipationTracker credits a recorded view to the competition it
// falls in. *CompetitionService implements it.
type ParticipationTracker interface {
	TrackAdView(ctx context.Context, view *model.AdView) (*model.Participant, error)
}

// AdViewService appends to the ad-view ledger and feeds the competition
// tracker.
type AdViewService struct {
	repo    repository.AdViewRepository
	tracker ParticipationTracker
	logger  *slog.Logger
}

func NewAdViewService(repo repository.AdViewRepository, tracker ParticipationTracker, logger *slog.Logger) *AdViewService {
	return &AdViewService{repo: repo, tracker: tracker, logger: logger}
}

// RecordAdView stores one completed ad for userID. There is no limit on
// how many views a user may record.
//
// The ledger insert is the source of truth. If crediting the competition
// fails afterwards the view still counts towards the reward; the error is
// logged and the competition can be rebuilt with Reconcile.
func (s *AdViewService) RecordAdView(ctx context.Context, userID string) (*model.AdView, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("Not authenticated")
	}

	view := &model.AdView{UserID: userID}
	if err := s.repo.CreateAdView(ctx, view); err != nil {
		// A valid session for an account that no longer exists.
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("Not authenticated")
		}
		return nil, fmt.Errorf("recording ad view for %s: %w", userID, err)
	}

	if s.tracker != nil {
		p, err := s.tracker.TrackAdView(ctx, view)
		switch {
		case err != nil:
			s.logger.Warn("ad view not credited to competition",
				slog.String("userID", userID),
				slog.String("viewID", view.ID),
				slog.String("error", err.Error()),
			)
		case p != nil:
			s.logger.Debug("ad view credited",
				slog.String("userID", userID),
				slog.String("competitionID", p.CompetitionID),
				slog.Int("adsWatched", p.AdsWatched),
			)
		}
	}

	return view, nil
}

func (s *AdViewService) ListAdViews(ctx context.Context, userID string) ([]model.AdView, error) {
	views, err := s.repo.ListAdViewsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing ad views for %s: %w", userID, err)
	}
	return views, nil
}

// CountAdViews is the authoritative lifetime count used for qualification.
func (s *AdViewService) CountAdViews(ctx context.Context, userID string) (int, error) {
	n, err := s.repo.CountAdViewsByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("counting ad views for %s: %w", userID, err)
	}
	return n, nil
}
