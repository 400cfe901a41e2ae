package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/ad-rewards/internal/apperror"
	"github.com/sakif/ad-rewards/internal/model"
)

func (db *DB) CreateReward(ctx context.Context, reward *model.Reward) error {
	reward.ID = xid.New().String()
	reward.Claimed = false
	reward.ClaimedAt = nil
	reward.CreatedAt = utc(time.Now())

	_, err := db.pool.Exec(ctx,
		`INSERT INTO rewards (id, user_id, email, claimed, claimed_at, created_at)
		 VALUES ($1, $2, $3, FALSE, NULL, $4)`,
		reward.ID, reward.UserID, reward.Email, reward.CreatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return apperror.AlreadyClaimed()
		case isForeignKeyViolation(err):
			return apperror.NotFound("user", reward.UserID)
		}
		return fmt.Errorf("postgres: inserting reward for user %s: %w", reward.UserID, err)
	}
	return nil
}

func (db *DB) GetRewardByUserID(ctx context.Context, userID string) (*model.Reward, error) {
	var r model.Reward
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, email, claimed, claimed_at, created_at
		 FROM rewards WHERE user_id = $1`,
		userID,
	).Scan(&r.ID, &r.UserID, &r.Email, &r.Claimed, &r.ClaimedAt, &r.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("reward", userID)
		}
		return nil, fmt.Errorf("postgres: getting reward for user %s: %w", userID, err)
	}
	return &r, nil
}

func (db *DB) MarkRewardClaimed(ctx context.Context, userID string, at time.Time) (*model.Reward, error) {
	var r model.Reward
	err := db.pool.QueryRow(ctx,
		`UPDATE rewards SET claimed = TRUE, claimed_at = COALESCE(claimed_at, $1)
		 WHERE user_id = $2
		 RETURNING id, user_id, email, claimed, claimed_at, created_at`,
		utc(at), userID,
	).Scan(&r.ID, &r.UserID, &r.Email, &r.Claimed, &r.ClaimedAt, &r.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("reward", userID)
		}
		return nil, fmt.Errorf("postgres: marking reward of user %s claimed: %w", userID, err)
	}
	return &r, nil
}
