package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/ad-rewards/internal/apperror"
	"github.com/sakif/ad-rewards/internal/model"
	"github.com/sakif/ad-rewards/internal/repository"
)

// RewardService gates the one-time reward behind the view threshold.
//
// The lifetime ad-view count decides qualification, not the weekly
// competition count: a user qualifies once and stays qualified.
type RewardService struct {
	rewards   repository.RewardRepository
	views     repository.AdViewRepository
	threshold int
	logger    *slog.Logger
	now       func() time.Time
}

func NewRewardService(rewards repository.RewardRepository, views repository.AdViewRepository, threshold int, logger *slog.Logger) *RewardService {
	return &RewardService{
		rewards:   rewards,
		views:     views,
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
	}
}

// ClaimReward records the user's reward claim with the email the payout
// goes to.
//
// Checks run in this order: enough views, no earlier claim, valid email.
// The "no earlier claim" check is only a fast path for a friendlier
// error; two concurrent claims can both pass it, and the UNIQUE(user_id)
// constraint rejects the loser with the same AlreadyClaimed error.
func (s *RewardService) ClaimReward(ctx context.Context, userID, email string) (*model.Reward, error) {
	count, err := s.views.CountAdViewsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("counting ad views for %s: %w", userID, err)
	}
	if count < s.threshold {
		return nil, apperror.InsufficientProgress(count, s.threshold)
	}

	if _, err := s.rewards.GetRewardByUserID(ctx, userID); err == nil {
		return nil, apperror.AlreadyClaimed()
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("checking existing reward for %s: %w", userID, err)
	}

	email, err = validateEmail("email", email)
	if err != nil {
		return nil, err
	}

	reward := &model.Reward{UserID: userID, Email: email}
	if err := s.rewards.CreateReward(ctx, reward); err != nil {
		if errors.Is(err, apperror.ErrAlreadyClaimed) {
			return nil, err
		}
		s.logger.Error("failed to create reward",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating reward for %s: %w", userID, err)
	}

	s.logger.Info("reward claimed",
		slog.String("userID", userID),
		slog.String("rewardID", reward.ID),
		slog.Int("adsWatched", count),
	)
	return reward, nil
}

func (s *RewardService) GetReward(ctx context.Context, userID string) (*model.Reward, error) {
	r, err := s.rewards.GetRewardByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, &apperror.AppError{Err: apperror.ErrNotFound, Message: "No reward found"}
		}
		return nil, fmt.Errorf("loading reward for %s: %w", userID, err)
	}
	return r, nil
}

// Progress reports where the user stands. The count and the reward lookup
// are independent reads, so they run concurrently.
func (s *RewardService) Progress(ctx context.Context, userID string) (*model.Progress, error) {
	var (
		count  int
		reward *model.Reward
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.views.CountAdViewsByUser(gctx, userID)
		if err != nil {
			return fmt.Errorf("counting ad views for %s: %w", userID, err)
		}
		count = n
		return nil
	})
	g.Go(func() error {
		r, err := s.rewards.GetRewardByUserID(gctx, userID)
		switch {
		case err == nil:
			reward = r
		case !errors.Is(err, apperror.ErrNotFound):
			return fmt.Errorf("loading reward for %s: %w", userID, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &model.Progress{
		AdsWatched: count,
		Threshold:  s.threshold,
		Remaining:  remaining(count, s.threshold),
		State:      Qualify(count, s.threshold, reward != nil),
		Reward:     reward,
	}, nil
}

// MarkRewardPaid records that the payout for userID went out. Admin only.
func (s *RewardService) MarkRewardPaid(ctx context.Context, caller Caller, userID string) (*model.Reward, error) {
	if err := caller.requireAdmin(); err != nil {
		return nil, err
	}
	r, err := s.rewards.MarkRewardClaimed(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("reward marked paid",
		slog.String("userID", userID),
		slog.String("by", caller.UserID),
	)
	return r, nil
}

// QualifiedUsers lists everyone at or over the threshold. Admin only.
func (s *RewardService) QualifiedUsers(ctx context.Context, caller Caller) ([]model.User, error) {
	if err := caller.requireAdmin(); err != nil {
		return nil, err
	}
	users, err := s.views.ListUsersWithMinAdViews(ctx, s.threshold)
	if err != nil {
		return nil, fmt.Errorf("listing qualified users: %w", err)
	}
	return users, nil
}
