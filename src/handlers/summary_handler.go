// backend/src/handlers/summary_handler.go
package handlers

import (
	"net/http"
	"time"

	"github.com/username/centsible/backend/src/logger"
	"github.com/username/centsible/backend/src/models"
	"github.com/username/centsible/backend/src/services"
	"github.com/username/centsible/backend/src/utils"
)

type SummaryHandler struct {
	summaryService   services.SummaryService
	reconcileService services.ReconcileService
}

func NewSummaryHandler(summary services.SummaryService, reconciler services.ReconcileService) *SummaryHandler {
	return &SummaryHandler{summaryService: summary, reconcileService: reconciler}
}

func (h *SummaryHandler) GetSummaryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}

	summary, err := h.summaryService.GetSummary(userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to build summary", "error", err)
		utils.SendJSONError(w, "Failed to build summary", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, summary, http.StatusOK)
}

// SweepHandler runs the full reconciliation pass over every account and budget
// of the caller. Heavier than the incremental recomputes; meant for recovery
// after suspected cache drift.
func (h *SummaryHandler) SweepHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}

	asOf := models.FormatDate(time.Now().UTC())
	if err := h.reconcileService.SweepOwner(userID, asOf); err != nil {
		respondServiceError(w, err)
		return
	}

	h.summaryService.Invalidate(userID)
	logger.FromContext(r.Context()).Info("Reconciliation sweep finished", "asOf", asOf)
	utils.SendJSON(w, map[string]string{"message": "Reconciliation sweep finished", "as_of": asOf}, http.StatusOK)
}
