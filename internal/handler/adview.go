package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/ad-rewards/internal/service"
)

// AdViewHandler records completed ad playbacks and lists a user's history.
type AdViewHandler struct {
	ads    *service.AdViewService
	logger *slog.Logger
}

func NewAdViewHandler(ads *service.AdViewService, logger *slog.Logger) *AdViewHandler {
	return &AdViewHandler{ads: ads, logger: logger}
}

// HandleCreate appends one view for the signed-in user. The request has no
// body; the server stamps the time.
//
// HTTP: POST /api/ad-views
// Auth: Required
func (h *AdViewHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	view, err := h.ads.RecordAdView(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// HandleList returns the signed-in user's views, oldest first.
//
// HTTP: GET /api/ad-views
// Auth: Required
func (h *AdViewHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	views, err := h.ads.ListAdViews(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}
