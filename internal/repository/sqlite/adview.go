package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/ad-rewards/internal/apperror"
	"github.com/sakif/ad-rewards/internal/model"
)

// CreateAdView appends a view to the ledger. The timestamp is assigned
// here, never taken from the client.
func (db *DB) CreateAdView(ctx context.Context, view *model.AdView) error {
	view.ID = xid.New().String()
	view.ViewedAt = utc(time.Now())

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO ad_views (id, user_id, viewed_at) VALUES (?, ?, ?)`,
		view.ID, view.UserID, view.ViewedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("user", view.UserID)
		}
		return fmt.Errorf("sqlite: inserting ad view for user %s: %w", view.UserID, err)
	}
	return nil
}

// ListAdViewsByUser returns the user's views, oldest first. An unknown user
// simply has no views.
func (db *DB) ListAdViewsByUser(ctx context.Context, userID string) ([]model.AdView, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, viewed_at FROM ad_views
		 WHERE user_id = ?
		 ORDER BY viewed_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing ad views for user %s: %w", userID, err)
	}
	defer rows.Close()

	views := []model.AdView{}
	for rows.Next() {
		var v model.AdView
		if err := rows.Scan(&v.ID, &v.UserID, &v.ViewedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning ad view: %w", err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating ad views: %w", err)
	}
	return views, nil
}

func (db *DB) CountAdViewsByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ad_views WHERE user_id = ?`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting ad views for user %s: %w", userID, err)
	}
	return n, nil
}

func (db *DB) ListUsersWithMinAdViews(ctx context.Context, min int) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE id IN (
			SELECT user_id FROM ad_views GROUP BY user_id HAVING COUNT(*) >= ?
		 )
		 ORDER BY username ASC`,
		min,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users with %d+ ad views: %w", min, err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		u.PasswordHash = ""
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}
