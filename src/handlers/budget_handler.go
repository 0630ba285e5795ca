// backend/src/handlers/budget_handler.go
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/centsible/backend/src/database"
	"github.com/username/centsible/backend/src/logger"
	"github.com/username/centsible/backend/src/models"
	"github.com/username/centsible/backend/src/security/validation"
	"github.com/username/centsible/backend/src/services"
	"github.com/username/centsible/backend/src/utils"
)

type BudgetHandler struct {
	reconcileService services.ReconcileService
	deletionService  services.DeletionService
	summaryService   services.SummaryService
}

func NewBudgetHandler(reconciler services.ReconcileService, deletion services.DeletionService, summary services.SummaryService) *BudgetHandler {
	return &BudgetHandler{reconcileService: reconciler, deletionService: deletion, summaryService: summary}
}

// budgetView pairs the budget row with its linked category ids and the current
// cycle window the cached consumption refers to.
type budgetView struct {
	models.Budget
	CategoryIDs []int64 `json:"category_ids"`
	CycleStart  string  `json:"cycle_start,omitempty"`
	CycleEnd    string  `json:"cycle_end,omitempty"`
}

func (h *BudgetHandler) CreateBudgetHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	ctxLogger := logger.FromContext(r.Context())

	var payload struct {
		Name        string           `json:"name"`
		LimitAmount decimal.Decimal  `json:"limit_amount"`
		Frequency   models.Frequency `json:"frequency"`
		Interval    int              `json:"interval"`
		StartDate   string           `json:"start_date"`
		EndDate     *string          `json:"end_date,omitempty"`
		CategoryIDs []int64          `json:"category_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	payload.Name = validation.CleanUserText(payload.Name)
	if err := validation.ValidateStringNotEmpty(payload.Name, "Name"); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !payload.LimitAmount.IsPositive() {
		utils.SendJSONError(w, "limit_amount must be positive", http.StatusBadRequest)
		return
	}
	if !payload.Frequency.ValidForBudget() {
		utils.SendJSONError(w, "Invalid budget frequency", http.StatusBadRequest)
		return
	}
	if payload.Interval < 1 {
		payload.Interval = 1
	}
	if _, err := models.ParseDate(payload.StartDate); err != nil {
		utils.SendJSONError(w, "Invalid start_date", http.StatusBadRequest)
		return
	}
	if payload.EndDate != nil {
		if _, err := models.ParseDate(*payload.EndDate); err != nil {
			utils.SendJSONError(w, "Invalid end_date", http.StatusBadRequest)
			return
		}
		if *payload.EndDate < payload.StartDate {
			utils.SendJSONError(w, "end_date must not precede start_date", http.StatusBadRequest)
			return
		}
	}
	if len(payload.CategoryIDs) == 0 {
		utils.SendJSONError(w, "At least one category is required", http.StatusBadRequest)
		return
	}

	tx, err := database.DB.Begin()
	if err != nil {
		ctxLogger.Error("Failed to start transaction", "error", err)
		utils.SendJSONError(w, "Failed to create budget", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO budgets (user_id, name, limit_amount, frequency, interval, start_date, end_date, is_active, cached_consumption)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, '0')`,
		userID, payload.Name, payload.LimitAmount, payload.Frequency, payload.Interval, payload.StartDate, payload.EndDate)
	if err != nil {
		ctxLogger.Error("Failed to create budget", "error", err)
		utils.SendJSONError(w, "Failed to create budget", http.StatusInternalServerError)
		return
	}
	budgetID, _ := res.LastInsertId()

	for _, categoryID := range payload.CategoryIDs {
		// Budgets measure spending, so only outcome categories may be linked.
		var id int64
		err := tx.QueryRow(
			"SELECT id FROM categories WHERE id = ? AND (user_id = ? OR user_id IS NULL) AND flow_type = ?",
			categoryID, userID, models.FlowOutcome,
		).Scan(&id)
		if err != nil {
			utils.SendJSONError(w, "Each category must exist, be usable by you, and have outcome flow", http.StatusBadRequest)
			return
		}
		if _, err := tx.Exec("INSERT INTO budget_categories (budget_id, category_id) VALUES (?, ?)", budgetID, categoryID); err != nil {
			ctxLogger.Error("Failed to link budget category", "budgetID", budgetID, "categoryID", categoryID, "error", err)
			utils.SendJSONError(w, "Failed to create budget", http.StatusInternalServerError)
			return
		}
	}

	budget := &models.Budget{
		Frequency: payload.Frequency,
		Interval:  payload.Interval,
		StartDate: payload.StartDate,
		EndDate:   payload.EndDate,
	}
	cycleStart, cycleEnd, err := budget.CycleWindow(time.Now().UTC())
	if err != nil {
		utils.SendJSONError(w, "Failed to create budget", http.StatusInternalServerError)
		return
	}
	if _, err := h.reconcileService.RecomputeBudgetConsumption(tx, userID, budgetID, cycleStart, cycleEnd); err != nil {
		ctxLogger.Error("Failed to compute initial consumption", "budgetID", budgetID, "error", err)
		utils.SendJSONError(w, "Failed to create budget", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(); err != nil {
		ctxLogger.Error("Failed to commit budget creation", "error", err)
		utils.SendJSONError(w, "Failed to create budget", http.StatusInternalServerError)
		return
	}

	h.summaryService.Invalidate(userID)
	view, err := h.loadBudgetView(userID, budgetID)
	if err != nil {
		utils.SendJSONError(w, "Failed to load budget", http.StatusInternalServerError)
		return
	}
	ctxLogger.Info("Budget created", "budgetID", budgetID)
	utils.SendJSON(w, view, http.StatusCreated)
}

func (h *BudgetHandler) ListBudgetsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}

	rows, err := database.DB.Query(`
		SELECT id, user_id, name, limit_amount, frequency, interval, start_date, end_date, is_active, cached_consumption, created_at
		FROM budgets WHERE user_id = ? AND deleted_at IS NULL ORDER BY name`, userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list budgets", "error", err)
		utils.SendJSONError(w, "Failed to list budgets", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	ids := []int64{}
	budgets := map[int64]*budgetView{}
	for rows.Next() {
		var b models.Budget
		if err := rows.Scan(&b.ID, &b.UserID, &b.Name, &b.LimitAmount, &b.Frequency, &b.Interval,
			&b.StartDate, &b.EndDate, &b.IsActive, &b.CachedConsumption, &b.CreatedAt); err != nil {
			utils.SendJSONError(w, "Failed to list budgets", http.StatusInternalServerError)
			return
		}
		view := &budgetView{Budget: b, CategoryIDs: []int64{}}
		if start, end, err := b.CycleWindow(time.Now().UTC()); err == nil {
			view.CycleStart, view.CycleEnd = start, end
		}
		budgets[b.ID] = view
		ids = append(ids, b.ID)
	}

	linkRows, err := database.DB.Query(`
		SELECT bc.budget_id, bc.category_id FROM budget_categories bc
		JOIN budgets b ON b.id = bc.budget_id
		WHERE b.user_id = ? AND b.deleted_at IS NULL`, userID)
	if err != nil {
		utils.SendJSONError(w, "Failed to list budgets", http.StatusInternalServerError)
		return
	}
	defer linkRows.Close()
	for linkRows.Next() {
		var budgetID, categoryID int64
		if err := linkRows.Scan(&budgetID, &categoryID); err != nil {
			utils.SendJSONError(w, "Failed to list budgets", http.StatusInternalServerError)
			return
		}
		if v, ok := budgets[budgetID]; ok {
			v.CategoryIDs = append(v.CategoryIDs, categoryID)
		}
	}

	out := make([]budgetView, 0, len(ids))
	for _, id := range ids {
		out = append(out, *budgets[id])
	}
	utils.SendJSON(w, out, http.StatusOK)
}

func (h *BudgetHandler) UpdateBudgetHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	budgetID, err := parsePathID(r, "budgetID")
	if err != nil {
		utils.SendJSONError(w, "Invalid budget ID", http.StatusBadRequest)
		return
	}

	var payload struct {
		Name        *string          `json:"name,omitempty"`
		LimitAmount *decimal.Decimal `json:"limit_amount,omitempty"`
		IsActive    *bool            `json:"is_active,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if payload.Name != nil {
		name := validation.CleanUserText(*payload.Name)
		if err := validation.ValidateStringNotEmpty(name, "Name"); err != nil {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		payload.Name = &name
	}
	if payload.LimitAmount != nil && !payload.LimitAmount.IsPositive() {
		utils.SendJSONError(w, "limit_amount must be positive", http.StatusBadRequest)
		return
	}

	res, err := database.DB.Exec(`UPDATE budgets SET
		name = COALESCE(?, name),
		limit_amount = COALESCE(?, limit_amount),
		is_active = COALESCE(?, is_active)
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		payload.Name, payload.LimitAmount, payload.IsActive, budgetID, userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to update budget", "budgetID", budgetID, "error", err)
		utils.SendJSONError(w, "Failed to update budget", http.StatusInternalServerError)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		utils.SendJSONError(w, "Not found", http.StatusNotFound)
		return
	}

	h.summaryService.Invalidate(userID)
	view, err := h.loadBudgetView(userID, budgetID)
	if err != nil {
		utils.SendJSONError(w, "Failed to load budget", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, view, http.StatusOK)
}

// SetBudgetCategoriesHandler replaces a budget's category links and recomputes
// the cached consumption for the new set.
func (h *BudgetHandler) SetBudgetCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	budgetID, err := parsePathID(r, "budgetID")
	if err != nil {
		utils.SendJSONError(w, "Invalid budget ID", http.StatusBadRequest)
		return
	}
	ctxLogger := logger.FromContext(r.Context())

	var payload struct {
		CategoryIDs []int64 `json:"category_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(payload.CategoryIDs) == 0 {
		utils.SendJSONError(w, "At least one category is required", http.StatusBadRequest)
		return
	}

	tx, err := database.DB.Begin()
	if err != nil {
		utils.SendJSONError(w, "Failed to update budget categories", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	_, cycleStart, cycleEnd, err := h.loadBudgetCycle(tx, userID, budgetID)
	if err != nil {
		utils.SendJSONError(w, "Not found", http.StatusNotFound)
		return
	}

	if _, err := tx.Exec("DELETE FROM budget_categories WHERE budget_id = ?", budgetID); err != nil {
		utils.SendJSONError(w, "Failed to update budget categories", http.StatusInternalServerError)
		return
	}
	for _, categoryID := range payload.CategoryIDs {
		var id int64
		err := tx.QueryRow(
			"SELECT id FROM categories WHERE id = ? AND (user_id = ? OR user_id IS NULL) AND flow_type = ?",
			categoryID, userID, models.FlowOutcome,
		).Scan(&id)
		if err != nil {
			utils.SendJSONError(w, "Each category must exist, be usable by you, and have outcome flow", http.StatusBadRequest)
			return
		}
		if _, err := tx.Exec("INSERT INTO budget_categories (budget_id, category_id) VALUES (?, ?)", budgetID, categoryID); err != nil {
			utils.SendJSONError(w, "Failed to update budget categories", http.StatusInternalServerError)
			return
		}
	}

	if _, err := h.reconcileService.RecomputeBudgetConsumption(tx, userID, budgetID, cycleStart, cycleEnd); err != nil {
		ctxLogger.Error("Failed to recompute consumption after relink", "budgetID", budgetID, "error", err)
		respondServiceError(w, err)
		return
	}
	if err := tx.Commit(); err != nil {
		utils.SendJSONError(w, "Failed to update budget categories", http.StatusInternalServerError)
		return
	}

	h.summaryService.Invalidate(userID)
	view, err := h.loadBudgetView(userID, budgetID)
	if err != nil {
		utils.SendJSONError(w, "Failed to load budget", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, view, http.StatusOK)
}

// RecomputeConsumptionHandler forces a reconciliation of the budget's cached
// consumption for its current cycle window.
func (h *BudgetHandler) RecomputeConsumptionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	budgetID, err := parsePathID(r, "budgetID")
	if err != nil {
		utils.SendJSONError(w, "Invalid budget ID", http.StatusBadRequest)
		return
	}

	_, cycleStart, cycleEnd, err := h.loadBudgetCycle(database.DB, userID, budgetID)
	if err != nil {
		utils.SendJSONError(w, "Not found", http.StatusNotFound)
		return
	}

	consumption, err := h.reconcileService.RecomputeBudgetConsumption(database.DB, userID, budgetID, cycleStart, cycleEnd)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	h.summaryService.Invalidate(userID)
	utils.SendJSON(w, map[string]any{
		"budget_id":          budgetID,
		"cycle_start":        cycleStart,
		"cycle_end":          cycleEnd,
		"cached_consumption": consumption,
	}, http.StatusOK)
}

func (h *BudgetHandler) DeleteBudgetHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	budgetID, err := parsePathID(r, "budgetID")
	if err != nil {
		utils.SendJSONError(w, "Invalid budget ID", http.StatusBadRequest)
		return
	}

	if err := h.deletionService.DeleteBudget(userID, budgetID); err != nil {
		respondServiceError(w, err)
		return
	}

	h.summaryService.Invalidate(userID)
	logger.FromContext(r.Context()).Info("Budget deleted", "budgetID", budgetID)
	utils.SendJSON(w, map[string]string{"message": "Budget deleted"}, http.StatusOK)
}

func (h *BudgetHandler) loadBudgetCycle(q services.Querier, userID, budgetID int64) (*models.Budget, string, string, error) {
	var b models.Budget
	err := q.QueryRow(
		"SELECT id, frequency, interval, start_date, end_date FROM budgets WHERE id = ? AND user_id = ? AND deleted_at IS NULL",
		budgetID, userID,
	).Scan(&b.ID, &b.Frequency, &b.Interval, &b.StartDate, &b.EndDate)
	if err != nil {
		return nil, "", "", err
	}
	start, end, err := b.CycleWindow(time.Now().UTC())
	if err != nil {
		return nil, "", "", err
	}
	return &b, start, end, nil
}

func (h *BudgetHandler) loadBudgetView(userID, budgetID int64) (*budgetView, error) {
	var b models.Budget
	err := database.DB.QueryRow(`
		SELECT id, user_id, name, limit_amount, frequency, interval, start_date, end_date, is_active, cached_consumption, created_at
		FROM budgets WHERE id = ? AND user_id = ? AND deleted_at IS NULL`, budgetID, userID,
	).Scan(&b.ID, &b.UserID, &b.Name, &b.LimitAmount, &b.Frequency, &b.Interval,
		&b.StartDate, &b.EndDate, &b.IsActive, &b.CachedConsumption, &b.CreatedAt)
	if err != nil {
		return nil, err
	}

	view := &budgetView{Budget: b, CategoryIDs: []int64{}}
	if start, end, err := b.CycleWindow(time.Now().UTC()); err == nil {
		view.CycleStart, view.CycleEnd = start, end
	}

	rows, err := database.DB.Query("SELECT category_id FROM budget_categories WHERE budget_id = ? ORDER BY category_id", budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var categoryID int64
		if err := rows.Scan(&categoryID); err != nil {
			return nil, err
		}
		view.CategoryIDs = append(view.CategoryIDs, categoryID)
	}
	return view, nil
}
