package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/ad-rewards/internal/service"
)

// RewardHandler exposes the reward claim and the user's progress towards it.
type RewardHandler struct {
	rewards *service.RewardService
	logger  *slog.Logger
}

func NewRewardHandler(rewards *service.RewardService, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{rewards: rewards, logger: logger}
}

type claimRequest struct {
	Email string `json:"email"`
}

// HandleClaim claims the one-time reward.
//
// HTTP: POST /api/rewards
// Auth: Required
// REQUEST BODY: {"email": "alice@example.com"}
//
// Too few views and a repeated claim both answer 400 with a message the UI
// shows as is ("Not enough ads watched", "Reward already claimed").
func (h *RewardHandler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req claimRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	reward, err := h.rewards.ClaimReward(r.Context(), userID, req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, reward)
}

// HandleGet returns the user's reward, or 404 "No reward found".
//
// HTTP: GET /api/rewards
// Auth: Required
func (h *RewardHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	reward, err := h.rewards.GetReward(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

// HandleProgress returns views watched, the threshold and the reward state.
//
// HTTP: GET /api/progress
// Auth: Required
func (h *RewardHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	p, err := h.rewards.Progress(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
