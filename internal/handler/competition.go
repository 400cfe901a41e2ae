package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/ad-rewards/internal/apperror"
	"github.com/sakif/ad-rewards/internal/model"
	"github.com/sakif/ad-rewards/internal/service"
)

// CompetitionHandler serves the weekly competition and its public
// leaderboard.
type CompetitionHandler struct {
	competitions *service.CompetitionService
	logger       *slog.Logger
}

func NewCompetitionHandler(competitions *service.CompetitionService, logger *slog.Logger) *CompetitionHandler {
	return &CompetitionHandler{competitions: competitions, logger: logger}
}

// HandleCurrent returns the running competition, or 404 between weeks.
//
// HTTP: GET /api/competition
func (h *CompetitionHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	c, err := h.competitions.CurrentCompetition(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleStanding returns the signed-in user's row this week.
//
// HTTP: GET /api/competition/me
// Auth: Required
func (h *CompetitionHandler) HandleStanding(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	p, err := h.competitions.Standing(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleLeaderboard returns the ranked participants.
//
// HTTP: GET /api/leaderboard?limit=N&competitionId=ID
//
// Without competitionId the current week is used, and an empty list comes
// back when no competition is running. limit defaults to and is capped at
// service.MaxLeaderboardLimit.
func (h *CompetitionHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, h.logger, apperror.ValidationFailed("limit", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	var (
		entries []model.LeaderboardEntry
		err     error
	)
	if id := q.Get("competitionId"); id != "" {
		entries, err = h.competitions.Leaderboard(r.Context(), id, limit)
	} else {
		entries, err = h.competitions.CurrentLeaderboard(r.Context(), limit)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
