package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/ad-rewards/internal/apperror"
	"github.com/sakif/ad-rewards/internal/model"
)

func (db *DB) CreateAdView(ctx context.Context, view *model.AdView) error {
	view.ID = xid.New().String()
	view.ViewedAt = utc(time.Now())

	_, err := db.pool.Exec(ctx,
		`INSERT INTO ad_views (id, user_id, viewed_at) VALUES ($1, $2, $3)`,
		view.ID, view.UserID, view.ViewedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("user", view.UserID)
		}
		return fmt.Errorf("postgres: inserting ad view for user %s: %w", view.UserID, err)
	}
	return nil
}

func (db *DB) ListAdViewsByUser(ctx context.Context, userID string) ([]model.AdView, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, viewed_at FROM ad_views
		 WHERE user_id = $1
		 ORDER BY viewed_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing ad views for user %s: %w", userID, err)
	}
	defer rows.Close()

	views := []model.AdView{}
	for rows.Next() {
		var v model.AdView
		if err := rows.Scan(&v.ID, &v.UserID, &v.ViewedAt); err != nil {
			return nil, fmt.Errorf("postgres: scanning ad view: %w", err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating ad views: %w", err)
	}
	return views, nil
}

func (db *DB) CountAdViewsByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM ad_views WHERE user_id = $1`, userID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: counting ad views for user %s: %w", userID, err)
	}
	return n, nil
}

func (db *DB) ListUsersWithMinAdViews(ctx context.Context, min int) ([]model.User, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE id IN (
			SELECT user_id FROM ad_views GROUP BY user_id HAVING COUNT(*) >= $1
		 )
		 ORDER BY username ASC`,
		min,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing users with %d+ ad views: %w", min, err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning user: %w", err)
		}
		u.PasswordHash = ""
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating users: %w", err)
	}
	return users, nil
}
