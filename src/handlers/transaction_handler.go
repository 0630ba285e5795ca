// backend/src/handlers/transaction_handler.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/username/centsible/backend/src/database"
	"github.com/username/centsible/backend/src/logger"
	"github.com/username/centsible/backend/src/models"
	"github.com/username/centsible/backend/src/security/validation"
	"github.com/username/centsible/backend/src/services"
	"github.com/username/centsible/backend/src/utils"
)

type TransactionHandler struct {
	ledgerService    services.LedgerService
	reconcileService services.ReconcileService
	summaryService   services.SummaryService
}

func NewTransactionHandler(ledger services.LedgerService, reconciler services.ReconcileService, summary services.SummaryService) *TransactionHandler {
	return &TransactionHandler{ledgerService: ledger, reconcileService: reconciler, summaryService: summary}
}

func (h *TransactionHandler) CreateTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}

	var in services.TransactionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	in.Description = validation.CleanUserText(in.Description)

	created, err := h.ledgerService.CreateTransaction(userID, in)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	h.summaryService.Invalidate(userID)
	logger.FromContext(r.Context()).Info("Transaction created", "transactionID", created.ID, "accountID", created.AccountID)
	utils.SendJSON(w, created, http.StatusCreated)
}

// ListTransactionsHandler returns the owner's non-deleted transactions, newest
// first, with optional account/category/date filters and limit/offset paging.
func (h *TransactionHandler) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}

	query := `SELECT id, user_id, account_id, category_id, flow_type, amount, date, description,
		invoice_id, paired_transaction_id, recurring_template_id, deleted_at, created_at
		FROM transactions WHERE user_id = ? AND deleted_at IS NULL`
	args := []any{userID}

	q := r.URL.Query()
	if v := q.Get("account_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			utils.SendJSONError(w, "Invalid account_id filter", http.StatusBadRequest)
			return
		}
		query += " AND account_id = ?"
		args = append(args, id)
	}
	if v := q.Get("category_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			utils.SendJSONError(w, "Invalid category_id filter", http.StatusBadRequest)
			return
		}
		query += " AND category_id = ?"
		args = append(args, id)
	}
	if v := q.Get("start_date"); v != "" {
		if _, err := models.ParseDate(v); err != nil {
			utils.SendJSONError(w, "Invalid start_date filter", http.StatusBadRequest)
			return
		}
		query += " AND date >= ?"
		args = append(args, v)
	}
	if v := q.Get("end_date"); v != "" {
		if _, err := models.ParseDate(v); err != nil {
			utils.SendJSONError(w, "Invalid end_date filter", http.StatusBadRequest)
			return
		}
		query += " AND date <= ?"
		args = append(args, v)
	}

	query += " ORDER BY date DESC, id DESC"

	limit := 100
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	query += " LIMIT ?"
	args = append(args, limit)
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			query += " OFFSET ?"
			args = append(args, n)
		}
	}

	rows, err := database.DB.Query(query, args...)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list transactions", "error", err)
		utils.SendJSONError(w, "Failed to list transactions", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.AccountID, &t.CategoryID, &t.FlowType, &t.Amount, &t.Date, &t.Description,
			&t.InvoiceID, &t.PairedTransactionID, &t.RecurringTemplateID, &t.DeletedAt, &t.CreatedAt); err != nil {
			utils.SendJSONError(w, "Failed to list transactions", http.StatusInternalServerError)
			return
		}
		transactions = append(transactions, t)
	}
	utils.SendJSON(w, transactions, http.StatusOK)
}

func (h *TransactionHandler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	transactionID, err := parsePathID(r, "transactionID")
	if err != nil {
		utils.SendJSONError(w, "Invalid transaction ID", http.StatusBadRequest)
		return
	}

	var t models.Transaction
	err = database.DB.QueryRow(`SELECT id, user_id, account_id, category_id, flow_type, amount, date, description,
		invoice_id, paired_transaction_id, recurring_template_id, deleted_at, created_at
		FROM transactions WHERE id = ? AND user_id = ? AND deleted_at IS NULL`, transactionID, userID,
	).Scan(
		&t.ID, &t.UserID, &t.AccountID, &t.CategoryID, &t.FlowType, &t.Amount, &t.Date, &t.Description,
		&t.InvoiceID, &t.PairedTransactionID, &t.RecurringTemplateID, &t.DeletedAt, &t.CreatedAt)
	if err != nil {
		utils.SendJSONError(w, "Not found", http.StatusNotFound)
		return
	}
	utils.SendJSON(w, t, http.StatusOK)
}

func (h *TransactionHandler) UpdateTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	transactionID, err := parsePathID(r, "transactionID")
	if err != nil {
		utils.SendJSONError(w, "Invalid transaction ID", http.StatusBadRequest)
		return
	}

	var upd services.TransactionUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if upd.Description != nil {
		cleaned := validation.CleanUserText(*upd.Description)
		upd.Description = &cleaned
	}

	updated, err := h.ledgerService.UpdateTransaction(userID, transactionID, upd)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	h.summaryService.Invalidate(userID)
	utils.SendJSON(w, updated, http.StatusOK)
}

func (h *TransactionHandler) DeleteTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	transactionID, err := parsePathID(r, "transactionID")
	if err != nil {
		utils.SendJSONError(w, "Invalid transaction ID", http.StatusBadRequest)
		return
	}

	if err := h.ledgerService.DeleteTransaction(userID, transactionID); err != nil {
		respondServiceError(w, err)
		return
	}

	h.summaryService.Invalidate(userID)
	logger.FromContext(r.Context()).Info("Transaction deleted", "transactionID", transactionID)
	utils.SendJSON(w, map[string]string{"message": "Transaction deleted"}, http.StatusOK)
}
