package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/ad-rewards/internal/service"
)

// AdminHandler serves the operator endpoints. Every route resolves the
// caller's capabilities first; the services reject non-admins with 403.
type AdminHandler struct {
	auth         *service.AuthService
	rewards      *service.RewardService
	competitions *service.CompetitionService
	logger       *slog.Logger
}

func NewAdminHandler(
	authService *service.AuthService,
	rewards *service.RewardService,
	competitions *service.CompetitionService,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		auth:         authService,
		rewards:      rewards,
		competitions: competitions,
		logger:       logger,
	}
}

func (h *AdminHandler) caller(r *http.Request) (service.Caller, error) {
	userID, err := currentUser(r)
	if err != nil {
		return service.Caller{}, err
	}
	return h.auth.Caller(r.Context(), userID)
}

// HandleQualifiedUsers lists every user at or over the reward threshold.
//
// HTTP: GET /api/admin/qualified-users
func (h *AdminHandler) HandleQualifiedUsers(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	users, err := h.rewards.QualifiedUsers(r.Context(), caller)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleMarkPaid records that a user's reward was paid out.
//
// HTTP: POST /api/admin/rewards/{userID}/paid
func (h *AdminHandler) HandleMarkPaid(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	reward, err := h.rewards.MarkRewardPaid(r.Context(), caller, chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

// HandleEndCompetition closes a competition before its end date.
//
// HTTP: POST /api/admin/competitions/{id}/end
func (h *AdminHandler) HandleEndCompetition(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	c, err := h.competitions.EndCompetition(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleReconcile rebuilds a competition's participant rows from the
// ad-view ledger.
//
// HTTP: POST /api/admin/competitions/{id}/reconcile
func (h *AdminHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	n, err := h.competitions.Reconcile(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"participants": n})
}
