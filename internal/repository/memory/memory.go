// Package memory is an in-process repository.Store used as a test double.
//
// It mirrors the constraints of the SQL stores (usernames unique ignoring
// case, one reward per user, one participant per competition and user,
// foreign keys to users) so service tests exercise the same failure paths. A single mutex
// guards all maps; each method is one critical section, which gives it the
// same atomicity as the single SQL statement it stands in for.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/ad-rewards/internal/apperror"
	"github.com/sakif/ad-rewards/internal/model"
	"github.com/sakif/ad-rewards/internal/repository"
)

var _ repository.Store = (*Store)(nil)

type participantKey struct {
	competitionID string
	userID        string
}

type Store struct {
	mu sync.Mutex

	users        map[string]*model.User
	adViews      []model.AdView
	competitions map[string]*model.Competition
	participants map[participantKey]*model.Participant
	rewards      map[string]*model.Reward // keyed by user ID

	// Now is the clock used for store-assigned timestamps. Tests may
	// replace it before use.
	Now func() time.Time
}

func New() *Store {
	return &Store{
		users:        make(map[string]*model.User),
		competitions: make(map[string]*model.Competition),
		participants: make(map[participantKey]*model.Participant),
		rewards:      make(map[string]*model.Reward),
		Now:          time.Now,
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) now() time.Time { return s.Now().UTC() }

// ---- users ----

func (s *Store) CreateUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		switch {
		case strings.EqualFold(u.Username, user.Username):
			return apperror.Conflict("username", user.Username)
		case u.Email == user.Email:
			return apperror.Conflict("email", user.Email)
		case user.GitHubID != 0 && u.GitHubID == user.GitHubID:
			return apperror.Conflict("github account", user.Username)
		}
	}

	user.ID = xid.New().String()
	user.CreatedAt = s.now()
	stored := *user
	s.users[user.ID] = &stored
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", username)
}

func (s *Store) UpsertGitHubUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.GitHubID != 0 && u.GitHubID == user.GitHubID {
			*user = *u
			return nil
		}
	}
	for _, u := range s.users {
		switch {
		case strings.EqualFold(u.Username, user.Username):
			return apperror.Conflict("username", user.Username)
		case u.Email == user.Email:
			return apperror.Conflict("email", user.Email)
		}
	}

	user.ID = xid.New().String()
	user.PasswordHash = ""
	user.CreatedAt = s.now()
	stored := *user
	s.users[user.ID] = &stored
	return nil
}

// ---- ad views ----

func (s *Store) CreateAdView(_ context.Context, view *model.AdView) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[view.UserID]; !ok {
		return apperror.NotFound("user", view.UserID)
	}
	view.ID = xid.New().String()
	view.ViewedAt = s.now()
	s.adViews = append(s.adViews, *view)
	return nil
}

func (s *Store) ListAdViewsByUser(_ context.Context, userID string) ([]model.AdView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := []model.AdView{}
	for _, v := range s.adViews {
		if v.UserID == userID {
			views = append(views, v)
		}
	}
	return views, nil
}

func (s *Store) CountAdViewsByUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, v := range s.adViews {
		if v.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListUsersWithMinAdViews(_ context.Context, min int) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, v := range s.adViews {
		counts[v.UserID]++
	}

	users := []model.User{}
	for id, n := range counts {
		if n >= min {
			u := *s.users[id]
			u.PasswordHash = ""
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// ---- competitions ----

func (s *Store) CreateCompetitionIfAbsent(_ context.Context, c *model.Competition, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.competitions {
		if existing.IsCurrent(now) || existing.StartDate.Equal(c.StartDate) {
			return false, nil
		}
	}

	c.ID = xid.New().String()
	c.StartDate = c.StartDate.UTC()
	c.EndDate = c.EndDate.UTC()
	c.IsActive = true
	c.CreatedAt = s.now()
	stored := *c
	s.competitions[c.ID] = &stored
	return true, nil
}

// latest returns the matching competition with the latest start date.
func (s *Store) latest(match func(*model.Competition) bool) *model.Competition {
	var found *model.Competition
	for _, c := range s.competitions {
		if match(c) && (found == nil || c.StartDate.After(found.StartDate)) {
			found = c
		}
	}
	return found
}

func (s *Store) GetCurrentCompetition(_ context.Context, now time.Time) (*model.Competition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.latest(func(c *model.Competition) bool { return c.IsCurrent(now) })
	if c == nil {
		return nil, apperror.NotFound("competition", "current")
	}
	copied := *c
	return &copied, nil
}

func (s *Store) GetCompetitionAt(_ context.Context, at time.Time) (*model.Competition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.latest(func(c *model.Competition) bool { return c.IsActive && c.Contains(at) })
	if c == nil {
		return nil, apperror.NotFound("competition", at.UTC().Format(time.RFC3339))
	}
	copied := *c
	return &copied, nil
}

func (s *Store) GetCompetitionByID(_ context.Context, id string) (*model.Competition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.competitions[id]
	if !ok {
		return nil, apperror.NotFound("competition", id)
	}
	copied := *c
	return &copied, nil
}

func (s *Store) EndCompetition(_ context.Context, id string) (*model.Competition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.competitions[id]
	if !ok {
		return nil, apperror.NotFound("competition", id)
	}
	c.IsActive = false
	copied := *c
	return &copied, nil
}

func (s *Store) IncrementParticipant(_ context.Context, competitionID, userID string, at time.Time) (*model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.competitions[competitionID]; !ok {
		return nil, apperror.NotFound("competition", competitionID)
	}
	if _, ok := s.users[userID]; !ok {
		return nil, apperror.NotFound("user", userID)
	}

	key := participantKey{competitionID, userID}
	p, ok := s.participants[key]
	if !ok {
		p = &model.Participant{
			ID:            xid.New().String(),
			CompetitionID: competitionID,
			UserID:        userID,
		}
		s.participants[key] = p
	}
	p.AdsWatched++
	p.LastActive = at.UTC()

	copied := *p
	return &copied, nil
}

func (s *Store) GetParticipant(_ context.Context, competitionID, userID string) (*model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[participantKey{competitionID, userID}]
	if !ok {
		return nil, apperror.NotFound("participant", userID)
	}
	copied := *p
	return &copied, nil
}

func (s *Store) Leaderboard(_ context.Context, competitionID string, limit, minAds int) ([]model.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []*model.Participant
	for _, p := range s.participants {
		if p.CompetitionID == competitionID && p.AdsWatched >= minAds {
			rows = append(rows, p)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].AdsWatched != rows[j].AdsWatched {
			return rows[i].AdsWatched > rows[j].AdsWatched
		}
		return rows[i].ID < rows[j].ID
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}

	entries := make([]model.LeaderboardEntry, 0, len(rows))
	for i, p := range rows {
		entries = append(entries, model.LeaderboardEntry{
			Rank:       i + 1,
			UserID:     p.UserID,
			Username:   s.users[p.UserID].Username,
			AdsWatched: p.AdsWatched,
			LastActive: p.LastActive,
		})
	}
	return entries, nil
}

func (s *Store) RebuildParticipants(_ context.Context, c *model.Competition) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type tally struct {
		count int
		last  time.Time
	}
	tallies := make(map[string]*tally)
	for _, v := range s.adViews {
		if !c.Contains(v.ViewedAt) {
			continue
		}
		t, ok := tallies[v.UserID]
		if !ok {
			t = &tally{}
			tallies[v.UserID] = t
		}
		t.count++
		if v.ViewedAt.After(t.last) {
			t.last = v.ViewedAt
		}
	}

	for key := range s.participants {
		if key.competitionID == c.ID {
			if _, ok := tallies[key.userID]; !ok {
				delete(s.participants, key)
			}
		}
	}
	for userID, t := range tallies {
		key := participantKey{c.ID, userID}
		p, ok := s.participants[key]
		if !ok {
			p = &model.Participant{ID: xid.New().String(), CompetitionID: c.ID, UserID: userID}
			s.participants[key] = p
		}
		p.AdsWatched = t.count
		p.LastActive = t.last
	}
	return len(tallies), nil
}

// ---- rewards ----

func (s *Store) CreateReward(_ context.Context, reward *model.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[reward.UserID]; !ok {
		return apperror.NotFound("user", reward.UserID)
	}
	if _, ok := s.rewards[reward.UserID]; ok {
		return apperror.AlreadyClaimed()
	}

	reward.ID = xid.New().String()
	reward.Claimed = false
	reward.ClaimedAt = nil
	reward.CreatedAt = s.now()
	stored := *reward
	s.rewards[reward.UserID] = &stored
	return nil
}

func (s *Store) GetRewardByUserID(_ context.Context, userID string) (*model.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rewards[userID]
	if !ok {
		return nil, apperror.NotFound("reward", userID)
	}
	copied := *r
	return &copied, nil
}

func (s *Store) MarkRewardClaimed(_ context.Context, userID string, at time.Time) (*model.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rewards[userID]
	if !ok {
		return nil, apperror.NotFound("reward", userID)
	}
	if r.ClaimedAt == nil {
		t := at.UTC()
		r.ClaimedAt = &t
	}
	r.Claimed = true
	copied := *r
	return &copied, nil
}
