// backend/src/handlers/recurring_handler.go
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/username/centsible/backend/src/database"
	"github.com/username/centsible/backend/src/logger"
	"github.com/username/centsible/backend/src/models"
	"github.com/username/centsible/backend/src/security/validation"
	"github.com/username/centsible/backend/src/services"
	"github.com/username/centsible/backend/src/utils"
)

type RecurringHandler struct {
	recurringService services.RecurringService
	pairingService   services.PairingService
	deletionService  services.DeletionService
	summaryService   services.SummaryService
}

func NewRecurringHandler(recurring services.RecurringService, pairing services.PairingService,
	deletion services.DeletionService, summary services.SummaryService) *RecurringHandler {
	return &RecurringHandler{
		recurringService: recurring,
		pairingService:   pairing,
		deletionService:  deletion,
		summaryService:   summary,
	}
}

// templateView adds the derived lifecycle state to the stored template row.
type templateView struct {
	models.RecurringTemplate
	State models.TemplateState `json:"state"`
}

func (h *RecurringHandler) CreateTemplateHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}

	var in services.TemplateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	in.Description = validation.CleanUserText(in.Description)

	created, err := h.recurringService.CreateTemplate(userID, in)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	logger.FromContext(r.Context()).Info("Recurring template created", "templateID", created.ID)
	utils.SendJSON(w, templateView{RecurringTemplate: *created, State: created.State()}, http.StatusCreated)
}

func (h *RecurringHandler) ListTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}

	rows, err := database.DB.Query(`SELECT id, user_id, account_id, category_id, flow_type, amount, description,
		frequency, interval, by_weekday, by_monthday, start_date, next_run_date, end_date,
		is_active, paired_template_id, deleted_at, created_at
		FROM recurring_templates WHERE user_id = ? AND deleted_at IS NULL ORDER BY next_run_date, id`, userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list recurring templates", "error", err)
		utils.SendJSONError(w, "Failed to list recurring templates", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	templates := []templateView{}
	for rows.Next() {
		var t models.RecurringTemplate
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.AccountID, &t.CategoryID, &t.FlowType, &t.Amount, &t.Description,
			&t.Frequency, &t.Interval, &t.ByWeekday, &t.ByMonthday, &t.StartDate, &t.NextRunDate, &t.EndDate,
			&t.IsActive, &t.PairedTemplateID, &t.DeletedAt, &t.CreatedAt); err != nil {
			utils.SendJSONError(w, "Failed to list recurring templates", http.StatusInternalServerError)
			return
		}
		templates = append(templates, templateView{RecurringTemplate: t, State: t.State()})
	}
	utils.SendJSON(w, templates, http.StatusOK)
}

func (h *RecurringHandler) PauseTemplateHandler(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *RecurringHandler) ResumeTemplateHandler(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *RecurringHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	templateID, err := parsePathID(r, "templateID")
	if err != nil {
		utils.SendJSONError(w, "Invalid template ID", http.StatusBadRequest)
		return
	}

	if err := h.recurringService.SetTemplateActive(userID, templateID, active); err != nil {
		respondServiceError(w, err)
		return
	}

	logger.FromContext(r.Context()).Info("Recurring template state changed", "templateID", templateID, "active", active)
	utils.SendJSON(w, map[string]any{"id": templateID, "is_active": active}, http.StatusOK)
}

// DeleteTemplateHandler soft-deletes a template. Materialized transactions are
// never touched. ?also_delete_pair=true takes the paired template down too;
// without it the pair survives single-legged.
func (h *RecurringHandler) DeleteTemplateHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	templateID, err := parsePathID(r, "templateID")
	if err != nil {
		utils.SendJSONError(w, "Invalid template ID", http.StatusBadRequest)
		return
	}
	alsoDeletePair := r.URL.Query().Get("also_delete_pair") == "true"

	result, err := h.deletionService.DeleteRecurringTemplate(userID, templateID, alsoDeletePair)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	logger.FromContext(r.Context()).Info("Recurring template deleted",
		"templateID", templateID, "pairDeleted", result.PairDeleted)
	utils.SendJSON(w, result, http.StatusOK)
}

// SyncHandler materializes all of the owner's due templates up to as_of
// (default: today). The endpoint is idempotent.
func (h *RecurringHandler) SyncHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}

	asOf := models.FormatDate(time.Now().UTC())
	if r.Body != nil && r.ContentLength != 0 {
		var payload struct {
			AsOf string `json:"as_of"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if payload.AsOf != "" {
			asOf = payload.AsOf
		}
	}

	result, err := h.recurringService.Sync(userID, asOf)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if result.TransactionsCreated > 0 {
		h.summaryService.Invalidate(userID)
	}
	logger.FromContext(r.Context()).Info("Recurring sync finished", "asOf", asOf,
		"templatesProcessed", result.TemplatesProcessed,
		"transactionsCreated", result.TransactionsCreated,
		"failures", len(result.Failures))
	utils.SendJSON(w, result, http.StatusOK)
}

func (h *RecurringHandler) CreateRecurringTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}

	var in services.RecurringTransferInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	in.Description = validation.CleanUserText(in.Description)

	outgoing, incoming, err := h.pairingService.CreateRecurringTransfer(userID, in)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	logger.FromContext(r.Context()).Info("Recurring transfer created",
		"outgoingTemplateID", outgoing.ID, "incomingTemplateID", incoming.ID)
	utils.SendJSON(w, map[string]any{
		"outgoing": templateView{RecurringTemplate: *outgoing, State: outgoing.State()},
		"incoming": templateView{RecurringTemplate: *incoming, State: incoming.State()},
	}, http.StatusCreated)
}

func (h *RecurringHandler) DeleteRecurringTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	templateID, err := parsePathID(r, "templateID")
	if err != nil {
		utils.SendJSONError(w, "Invalid template ID", http.StatusBadRequest)
		return
	}

	removed, err := h.pairingService.DeleteRecurringTransfer(userID, templateID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	logger.FromContext(r.Context()).Info("Recurring transfer deleted", "templateID", templateID, "templatesRemoved", removed)
	utils.SendJSON(w, map[string]any{"templates_removed": removed}, http.StatusOK)
}
