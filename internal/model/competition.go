package model

import "time"

// Competition is one weekly leaderboard window.
//
// A competition is "current" while IsActive is set and EndDate lies in the
// future. Nothing flips IsActive when the window closes; expiry is always
// computed from EndDate. IsActive is only cleared by an explicit admin end.
type Competition struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsCurrent reports whether the competition accepts ad views at now.
func (c *Competition) IsCurrent(now time.Time) bool {
	return c.IsActive && c.EndDate.After(now)
}

// Contains reports whether t falls inside [StartDate, EndDate].
func (c *Competition) Contains(t time.Time) bool {
	return !t.Before(c.StartDate) && !t.After(c.EndDate)
}

// Participant is a user's aggregate row within one competition.
// There is at most one row per (CompetitionID, UserID).
type Participant struct {
	ID            string    `json:"id"`
	CompetitionID string    `json:"competitionId"`
	UserID        string    `json:"userId"`
	AdsWatched    int       `json:"adsWatched"`
	LastActive    time.Time `json:"lastActive"`
}

// LeaderboardEntry is a ranked participant as shown on the public board.
// The user's email is deliberately absent; only the username is joined in.
type LeaderboardEntry struct {
	Rank       int       `json:"rank"`
	UserID     string    `json:"userId"`
	Username   string    `json:"username"`
	AdsWatched int       `json:"adsWatched"`
	LastActive time.Time `json:"lastActive"`
}
