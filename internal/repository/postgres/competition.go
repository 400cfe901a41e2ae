package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/sakif/ad-rewards/internal/apperror"
	"github.com/sakif/ad-rewards/internal/model"
)

const competitionColumns = `id, name, start_date, end_date, is_active, created_at`

func scanCompetition(row pgx.Row) (*model.Competition, error) {
	var c model.Competition
	if err := row.Scan(&c.ID, &c.Name, &c.StartDate, &c.EndDate, &c.IsActive, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *DB) CreateCompetitionIfAbsent(ctx context.Context, c *model.Competition, now time.Time) (bool, error) {
	c.ID = xid.New().String()
	c.StartDate = utc(c.StartDate)
	c.EndDate = utc(c.EndDate)
	c.IsActive = true
	c.CreatedAt = utc(time.Now())

	tag, err := db.pool.Exec(ctx,
		`INSERT INTO competitions (id, name, start_date, end_date, is_active, created_at)
		 SELECT $1::text, $2::text, $3::timestamptz, $4::timestamptz, TRUE, $5::timestamptz
		 WHERE NOT EXISTS (
			SELECT 1 FROM competitions WHERE is_active AND end_date > $6::timestamptz
		 )
		 ON CONFLICT (start_date) DO NOTHING`,
		c.ID, c.Name, c.StartDate, c.EndDate, c.CreatedAt, utc(now),
	)
	if err != nil {
		return false, fmt.Errorf("postgres: creating competition %q: %w", c.Name, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (db *DB) GetCurrentCompetition(ctx context.Context, now time.Time) (*model.Competition, error) {
	c, err := scanCompetition(db.pool.QueryRow(ctx,
		`SELECT `+competitionColumns+` FROM competitions
		 WHERE is_active AND end_date > $1
		 ORDER BY start_date DESC
		 LIMIT 1`,
		utc(now),
	))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("competition", "current")
		}
		return nil, fmt.Errorf("postgres: getting current competition: %w", err)
	}
	return c, nil
}

func (db *DB) GetCompetitionAt(ctx context.Context, at time.Time) (*model.Competition, error) {
	at = utc(at)
	c, err := scanCompetition(db.pool.QueryRow(ctx,
		`SELECT `+competitionColumns+` FROM competitions
		 WHERE is_active AND start_date <= $1 AND end_date >= $1
		 ORDER BY start_date DESC
		 LIMIT 1`,
		at,
	))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("competition", at.Format(time.RFC3339))
		}
		return nil, fmt.Errorf("postgres: getting competition at %s: %w", at, err)
	}
	return c, nil
}

func (db *DB) GetCompetitionByID(ctx context.Context, id string) (*model.Competition, error) {
	c, err := scanCompetition(db.pool.QueryRow(ctx,
		`SELECT `+competitionColumns+` FROM competitions WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("competition", id)
		}
		return nil, fmt.Errorf("postgres: getting competition %s: %w", id, err)
	}
	return c, nil
}

func (db *DB) EndCompetition(ctx context.Context, id string) (*model.Competition, error) {
	c, err := scanCompetition(db.pool.QueryRow(ctx,
		`UPDATE competitions SET is_active = FALSE WHERE id = $1
		 RETURNING `+competitionColumns, id))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("competition", id)
		}
		return nil, fmt.Errorf("postgres: ending competition %s: %w", id, err)
	}
	return c, nil
}

func (db *DB) IncrementParticipant(ctx context.Context, competitionID, userID string, at time.Time) (*model.Participant, error) {
	var p model.Participant
	err := db.pool.QueryRow(ctx,
		`INSERT INTO competition_participants (id, competition_id, user_id, ads_watched, last_active)
		 VALUES ($1, $2, $3, 1, $4)
		 ON CONFLICT (competition_id, user_id) DO UPDATE SET
			ads_watched = competition_participants.ads_watched + 1,
			last_active = EXCLUDED.last_active
		 RETURNING id, competition_id, user_id, ads_watched, last_active`,
		xid.New().String(), competitionID, userID, utc(at),
	).Scan(&p.ID, &p.CompetitionID, &p.UserID, &p.AdsWatched, &p.LastActive)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, apperror.NotFound("competition or user", competitionID+"/"+userID)
		}
		return nil, fmt.Errorf("postgres: incrementing participant %s in %s: %w", userID, competitionID, err)
	}
	return &p, nil
}

func (db *DB) GetParticipant(ctx context.Context, competitionID, userID string) (*model.Participant, error) {
	var p model.Participant
	err := db.pool.QueryRow(ctx,
		`SELECT id, competition_id, user_id, ads_watched, last_active
		 FROM competition_participants
		 WHERE competition_id = $1 AND user_id = $2`,
		competitionID, userID,
	).Scan(&p.ID, &p.CompetitionID, &p.UserID, &p.AdsWatched, &p.LastActive)
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("participant", userID)
		}
		return nil, fmt.Errorf("postgres: getting participant %s in %s: %w", userID, competitionID, err)
	}
	return &p, nil
}

func (db *DB) Leaderboard(ctx context.Context, competitionID string, limit, minAds int) ([]model.LeaderboardEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT cp.user_id, u.username, cp.ads_watched, cp.last_active
		 FROM competition_participants cp
		 JOIN users u ON u.id = cp.user_id
		 WHERE cp.competition_id = $1 AND cp.ads_watched >= $2
		 ORDER BY cp.ads_watched DESC, cp.id ASC
		 LIMIT $3`,
		competitionID, minAds, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: loading leaderboard for %s: %w", competitionID, err)
	}
	defer rows.Close()

	entries := []model.LeaderboardEntry{}
	for rows.Next() {
		e := model.LeaderboardEntry{Rank: len(entries) + 1}
		if err := rows.Scan(&e.UserID, &e.Username, &e.AdsWatched, &e.LastActive); err != nil {
			return nil, fmt.Errorf("postgres: scanning leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating leaderboard: %w", err)
	}
	return entries, nil
}

// RebuildParticipants recomputes the competition from the ledger. The
// participant rows are locked for the duration so concurrent increments
// wait for the rebuild instead of being overwritten by it.
func (db *DB) RebuildParticipants(ctx context.Context, c *model.Competition) (int, error) {
	start, end := utc(c.StartDate), utc(c.EndDate)
	written := 0

	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`SELECT id FROM competition_participants WHERE competition_id = $1 FOR UPDATE`, c.ID); err != nil {
			return fmt.Errorf("locking participants: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM competition_participants
			 WHERE competition_id = $1 AND user_id NOT IN (
				SELECT user_id FROM ad_views WHERE viewed_at >= $2 AND viewed_at <= $3
			 )`,
			c.ID, start, end,
		); err != nil {
			return fmt.Errorf("pruning participants: %w", err)
		}

		rows, err := tx.Query(ctx,
			`SELECT user_id, COUNT(*), MAX(viewed_at) FROM ad_views
			 WHERE viewed_at >= $1 AND viewed_at <= $2
			 GROUP BY user_id`,
			start, end,
		)
		if err != nil {
			return fmt.Errorf("counting views in window: %w", err)
		}
		type tally struct {
			userID string
			count  int
			last   time.Time
		}
		tallies, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (tally, error) {
			var t tally
			err := row.Scan(&t.userID, &t.count, &t.last)
			return t, err
		})
		if err != nil {
			return fmt.Errorf("scanning tallies: %w", err)
		}

		for _, t := range tallies {
			if _, err := tx.Exec(ctx,
				`INSERT INTO competition_participants (id, competition_id, user_id, ads_watched, last_active)
				 VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (competition_id, user_id) DO UPDATE SET
					ads_watched = EXCLUDED.ads_watched,
					last_active = EXCLUDED.last_active`,
				xid.New().String(), c.ID, t.userID, t.count, t.last,
			); err != nil {
				return fmt.Errorf("rebuilding participant %s: %w", t.userID, err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("postgres: rebuilding participants of %s: %w", c.ID, err)
	}
	return written, nil
}
