// backend/src/handlers/category_handler.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/centsible/backend/src/database"
	"github.com/username/centsible/backend/src/logger"
	"github.com/username/centsible/backend/src/models"
	"github.com/username/centsible/backend/src/security/validation"
	"github.com/username/centsible/backend/src/services"
	"github.com/username/centsible/backend/src/utils"
)

type CategoryHandler struct {
	deletionService services.DeletionService
	summaryService  services.SummaryService
}

func NewCategoryHandler(deletion services.DeletionService, summary services.SummaryService) *CategoryHandler {
	return &CategoryHandler{deletionService: deletion, summaryService: summary}
}

func (h *CategoryHandler) CreateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	ctxLogger := logger.FromContext(r.Context())

	var payload struct {
		Name     string          `json:"name"`
		FlowType models.FlowType `json:"flow_type"`
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
	if err := validation.ValidateStringMaxLength(payload.Name, 100, "Name"); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !payload.FlowType.Valid() {
		utils.SendJSONError(w, "flow_type must be 'income' or 'outcome'", http.StatusBadRequest)
		return
	}

	res, err := database.DB.Exec(
		"INSERT INTO categories (user_id, name, flow_type) VALUES (?, ?, ?)",
		userID, payload.Name, payload.FlowType)
	if err != nil {
		ctxLogger.Error("Failed to create category", "error", err)
		utils.SendJSONError(w, "Failed to create category", http.StatusInternalServerError)
		return
	}
	categoryID, _ := res.LastInsertId()

	category, err := getCategory(userID, categoryID)
	if err != nil {
		utils.SendJSONError(w, "Failed to load category", http.StatusInternalServerError)
		return
	}
	ctxLogger.Info("Category created", "categoryID", categoryID)
	utils.SendJSON(w, category, http.StatusCreated)
}

// ListCategoriesHandler returns the owner's categories plus the global system
// ones, optionally filtered by ?flow_type=.
func (h *CategoryHandler) ListCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}

	query := "SELECT id, user_id, name, flow_type, key, created_at FROM categories WHERE (user_id = ? OR user_id IS NULL)"
	args := []any{userID}
	if flow := models.FlowType(r.URL.Query().Get("flow_type")); flow != "" {
		if !flow.Valid() {
			utils.SendJSONError(w, "flow_type must be 'income' or 'outcome'", http.StatusBadRequest)
			return
		}
		query += " AND flow_type = ?"
		args = append(args, flow)
	}
	query += " ORDER BY user_id IS NULL, name"

	rows, err := database.DB.Query(query, args...)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list categories", "error", err)
		utils.SendJSONError(w, "Failed to list categories", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.FlowType, &c.Key, &c.CreatedAt); err != nil {
			utils.SendJSONError(w, "Failed to list categories", http.StatusInternalServerError)
			return
		}
		categories = append(categories, c)
	}
	utils.SendJSON(w, categories, http.StatusOK)
}

func (h *CategoryHandler) UpdateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	categoryID, err := parsePathID(r, "categoryID")
	if err != nil {
		utils.SendJSONError(w, "Invalid category ID", http.StatusBadRequest)
		return
	}

	var payload struct {
		Name string `json:"name"`
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

	category, err := getCategory(userID, categoryID)
	if err != nil {
		utils.SendJSONError(w, "Not found", http.StatusNotFound)
		return
	}
	if category.IsSystem() {
		utils.SendJSONError(w, "System categories cannot be modified or deleted", http.StatusForbidden)
		return
	}

	// Flow type is immutable: changing it would invalidate every transaction
	// already labelled with this category.
	_, err = database.DB.Exec(
		"UPDATE categories SET name = ? WHERE id = ? AND user_id = ?",
		payload.Name, categoryID, userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to update category", "categoryID", categoryID, "error", err)
		utils.SendJSONError(w, "Failed to update category", http.StatusInternalServerError)
		return
	}

	category.Name = payload.Name
	utils.SendJSON(w, category, http.StatusOK)
}

// DeleteCategoryHandler removes a user category, re-pointing its transactions
// and templates to an explicit fallback_category_id or to the system general
// category of the same flow type.
func (h *CategoryHandler) DeleteCategoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	categoryID, err := parsePathID(r, "categoryID")
	if err != nil {
		utils.SendJSONError(w, "Invalid category ID", http.StatusBadRequest)
		return
	}

	var payload struct {
		FallbackCategoryID *int64 `json:"fallback_category_id,omitempty"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	reassigned, err := h.deletionService.DeleteCategory(userID, categoryID, payload.FallbackCategoryID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	h.summaryService.Invalidate(userID)
	logger.FromContext(r.Context()).Info("Category deleted", "categoryID", categoryID, "reassigned", reassigned)
	utils.SendJSON(w, map[string]any{"transactions_reassigned": reassigned}, http.StatusOK)
}

func getCategory(userID, categoryID int64) (*models.Category, error) {
	var c models.Category
	err := database.DB.QueryRow(
		"SELECT id, user_id, name, flow_type, key, created_at FROM categories WHERE id = ? AND (user_id = ? OR user_id IS NULL)",
		categoryID, userID,
	).Scan(&c.ID, &c.UserID, &c.Name, &c.FlowType, &c.Key, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
