package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/ad-rewards/internal/apperror"
	"github.com/sakif/ad-rewards/internal/model"
)

// CreateReward inserts the user's single reward row.
//
// The UNIQUE(user_id) constraint is the real guard against double claims.
// Services check first to give a friendly error, but two concurrent claims
// can both pass that check; only one of them gets past the constraint.
func (db *DB) CreateReward(ctx context.Context, reward *model.Reward) error {
	reward.ID = xid.New().String()
	reward.Claimed = false
	reward.ClaimedAt = nil
	reward.CreatedAt = utc(time.Now())

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO rewards (id, user_id, email, claimed, claimed_at, created_at)
		 VALUES (?, ?, ?, 0, NULL, ?)`,
		reward.ID, reward.UserID, reward.Email, reward.CreatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return apperror.AlreadyClaimed()
		case isForeignKeyViolation(err):
			return apperror.NotFound("user", reward.UserID)
		}
		return fmt.Errorf("sqlite: inserting reward for user %s: %w", reward.UserID, err)
	}
	return nil
}

func (db *DB) GetRewardByUserID(ctx context.Context, userID string) (*model.Reward, error) {
	var (
		r         model.Reward
		claimedAt sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, email, claimed, claimed_at, created_at
		 FROM rewards WHERE user_id = ?`,
		userID,
	).Scan(&r.ID, &r.UserID, &r.Email, &r.Claimed, &claimedAt, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("reward", userID)
		}
		return nil, fmt.Errorf("sqlite: getting reward for user %s: %w", userID, err)
	}
	if claimedAt.Valid {
		t := claimedAt.Time
		r.ClaimedAt = &t
	}
	return &r, nil
}

// MarkRewardClaimed records the payout. Repeating it keeps the first
// claimed_at.
func (db *DB) MarkRewardClaimed(ctx context.Context, userID string, at time.Time) (*model.Reward, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE rewards SET claimed = 1, claimed_at = COALESCE(claimed_at, ?)
		 WHERE user_id = ?`,
		utc(at), userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: marking reward of user %s claimed: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperror.NotFound("reward", userID)
	}
	return db.GetRewardByUserID(ctx, userID)
}
