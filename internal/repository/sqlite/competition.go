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

const competitionColumns = `id, name, start_date, end_date, is_active, created_at`

func scanCompetition(row rowScanner) (*model.Competition, error) {
	var c model.Competition
	if err := row.Scan(&c.ID, &c.Name, &c.StartDate, &c.EndDate, &c.IsActive, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCompetitionIfAbsent inserts c unless a current competition already
// exists.
//
// CHECK-THEN-INSERT IN ONE STATEMENT:
// The NOT EXISTS guard and the INSERT are a single statement, so there is
// no window between the check and the write. ON CONFLICT(start_date)
// covers the remaining race on backends that run statements in parallel:
// two bootstraps for the same week compute the same start date.
func (db *DB) CreateCompetitionIfAbsent(ctx context.Context, c *model.Competition, now time.Time) (bool, error) {
	c.ID = xid.New().String()
	c.StartDate = utc(c.StartDate)
	c.EndDate = utc(c.EndDate)
	c.IsActive = true
	c.CreatedAt = utc(time.Now())

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO competitions (id, name, start_date, end_date, is_active, created_at)
		 SELECT ?, ?, ?, ?, 1, ?
		 WHERE NOT EXISTS (
			SELECT 1 FROM competitions WHERE is_active = 1 AND end_date > ?
		 )
		 ON CONFLICT(start_date) DO NOTHING`,
		c.ID, c.Name, c.StartDate, c.EndDate, c.CreatedAt, utc(now),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: creating competition %q: %w", c.Name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	return n == 1, nil
}

// GetCurrentCompetition orders by start_date so the answer is deterministic
// even if two current rows ever existed.
func (db *DB) GetCurrentCompetition(ctx context.Context, now time.Time) (*model.Competition, error) {
	c, err := scanCompetition(db.conn.QueryRowContext(ctx,
		`SELECT `+competitionColumns+` FROM competitions
		 WHERE is_active = 1 AND end_date > ?
		 ORDER BY start_date DESC
		 LIMIT 1`,
		utc(now),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("competition", "current")
		}
		return nil, fmt.Errorf("sqlite: getting current competition: %w", err)
	}
	return c, nil
}

func (db *DB) GetCompetitionAt(ctx context.Context, at time.Time) (*model.Competition, error) {
	at = utc(at)
	c, err := scanCompetition(db.conn.QueryRowContext(ctx,
		`SELECT `+competitionColumns+` FROM competitions
		 WHERE is_active = 1 AND start_date <= ? AND end_date >= ?
		 ORDER BY start_date DESC
		 LIMIT 1`,
		at, at,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("competition", at.Format(time.RFC3339))
		}
		return nil, fmt.Errorf("sqlite: getting competition at %s: %w", at, err)
	}
	return c, nil
}

func (db *DB) GetCompetitionByID(ctx context.Context, id string) (*model.Competition, error) {
	c, err := scanCompetition(db.conn.QueryRowContext(ctx,
		`SELECT `+competitionColumns+` FROM competitions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("competition", id)
		}
		return nil, fmt.Errorf("sqlite: getting competition %s: %w", id, err)
	}
	return c, nil
}

func (db *DB) EndCompetition(ctx context.Context, id string) (*model.Competition, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE competitions SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: ending competition %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperror.NotFound("competition", id)
	}
	return db.GetCompetitionByID(ctx, id)
}

// IncrementParticipant is the atomic "create or add one".
//
// WHY NOT SELECT, THEN UPDATE?
// Two tabs finishing an ad at the same moment would both read the old count
// and both write count+1, losing a view. The UPSERT evaluates
// ads_watched + 1 against the row as it is at write time.
func (db *DB) IncrementParticipant(ctx context.Context, competitionID, userID string, at time.Time) (*model.Participant, error) {
	p := &model.Participant{
		CompetitionID: competitionID,
		UserID:        userID,
		LastActive:    utc(at),
	}

	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO competition_participants (id, competition_id, user_id, ads_watched, last_active)
		 VALUES (?, ?, ?, 1, ?)
		 ON CONFLICT(competition_id, user_id) DO UPDATE SET
			ads_watched = competition_participants.ads_watched + 1,
			last_active = excluded.last_active
		 RETURNING id, ads_watched`,
		xid.New().String(), competitionID, userID, p.LastActive,
	).Scan(&p.ID, &p.AdsWatched)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, apperror.NotFound("competition or user", competitionID+"/"+userID)
		}
		return nil, fmt.Errorf("sqlite: incrementing participant %s in %s: %w", userID, competitionID, err)
	}
	return p, nil
}

func (db *DB) GetParticipant(ctx context.Context, competitionID, userID string) (*model.Participant, error) {
	var p model.Participant
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, competition_id, user_id, ads_watched, last_active
		 FROM competition_participants
		 WHERE competition_id = ? AND user_id = ?`,
		competitionID, userID,
	).Scan(&p.ID, &p.CompetitionID, &p.UserID, &p.AdsWatched, &p.LastActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("participant", userID)
		}
		return nil, fmt.Errorf("sqlite: getting participant %s in %s: %w", userID, competitionID, err)
	}
	return &p, nil
}

func (db *DB) Leaderboard(ctx context.Context, competitionID string, limit, minAds int) ([]model.LeaderboardEntry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT cp.user_id, u.username, cp.ads_watched, cp.last_active
		 FROM competition_participants cp
		 JOIN users u ON u.id = cp.user_id
		 WHERE cp.competition_id = ? AND cp.ads_watched >= ?
		 ORDER BY cp.ads_watched DESC, cp.id ASC
		 LIMIT ?`,
		competitionID, minAds, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading leaderboard for %s: %w", competitionID, err)
	}
	defer rows.Close()

	entries := []model.LeaderboardEntry{}
	for rows.Next() {
		e := model.LeaderboardEntry{Rank: len(entries) + 1}
		if err := rows.Scan(&e.UserID, &e.Username, &e.AdsWatched, &e.LastActive); err != nil {
			return nil, fmt.Errorf("sqlite: scanning leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating leaderboard: %w", err)
	}
	return entries, nil
}

// RebuildParticipants makes every participant row of c match the ad-view
// ledger again: counts are recomputed from views inside the window and
// rows for users with no such views are removed.
func (db *DB) RebuildParticipants(ctx context.Context, c *model.Competition) (int, error) {
	start, end := utc(c.StartDate), utc(c.EndDate)
	written := 0

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM competition_participants
			 WHERE competition_id = ? AND user_id NOT IN (
				SELECT user_id FROM ad_views WHERE viewed_at >= ? AND viewed_at <= ?
			 )`,
			c.ID, start, end,
		); err != nil {
			return fmt.Errorf("pruning participants: %w", err)
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT user_id, COUNT(*) FROM ad_views
			 WHERE viewed_at >= ? AND viewed_at <= ?
			 GROUP BY user_id`,
			start, end,
		)
		if err != nil {
			return fmt.Errorf("counting views in window: %w", err)
		}
		type tally struct {
			userID string
			count  int
		}
		var tallies []tally
		for rows.Next() {
			var t tally
			if err := rows.Scan(&t.userID, &t.count); err != nil {
				rows.Close()
				return fmt.Errorf("scanning tally: %w", err)
			}
			tallies = append(tallies, t)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating tallies: %w", err)
		}

		for _, t := range tallies {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO competition_participants (id, competition_id, user_id, ads_watched, last_active)
				 VALUES (?, ?, ?, ?, (
					SELECT MAX(viewed_at) FROM ad_views
					WHERE user_id = ? AND viewed_at >= ? AND viewed_at <= ?
				 ))
				 ON CONFLICT(competition_id, user_id) DO UPDATE SET
					ads_watched = excluded.ads_watched,
					last_active = excluded.last_active`,
				xid.New().String(), c.ID, t.userID, t.count,
				t.userID, start, end,
			)
			if err != nil {
				return fmt.Errorf("rebuilding participant %s: %w", t.userID, err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sqlite: rebuilding participants of %s: %w", c.ID, err)
	}
	return written, nil
}
