// backend/src/handlers/account_handler.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/username/centsible/backend/src/database"
	"github.com/username/centsible/backend/src/logger"
	"github.com/username/centsible/backend/src/models"
	"github.com/username/centsible/backend/src/security/validation"
	"github.com/username/centsible/backend/src/services"
	"github.com/username/centsible/backend/src/utils"
)

type AccountHandler struct {
	ledgerService    services.LedgerService
	deletionService  services.DeletionService
	reconcileService services.ReconcileService
	summaryService   services.SummaryService
}

func NewAccountHandler(ledger services.LedgerService, deletion services.DeletionService, reconciler services.ReconcileService, summary services.SummaryService) *AccountHandler {
	return &AccountHandler{
		ledgerService:    ledger,
		deletionService:  deletion,
		reconcileService: reconciler,
		summaryService:   summary,
	}
}

func parsePathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func (h *AccountHandler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	ctxLogger := logger.FromContext(r.Context())

	var payload struct {
		Name           string             `json:"name"`
		Currency       string             `json:"currency"`
		Type           models.AccountType `json:"type"`
		InitialBalance *decimal.Decimal   `json:"initial_balance,omitempty"`
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
	if payload.Currency == "" {
		payload.Currency = "EUR"
	}
	if !payload.Type.Valid() {
		utils.SendJSONError(w, "Invalid account type", http.StatusBadRequest)
		return
	}

	res, err := database.DB.Exec(
		"INSERT INTO accounts (user_id, name, currency, type, cached_balance) VALUES (?, ?, ?, ?, '0')",
		userID, payload.Name, payload.Currency, payload.Type)
	if err != nil {
		ctxLogger.Error("Failed to create account", "error", err)
		utils.SendJSONError(w, "Failed to create account", http.StatusInternalServerError)
		return
	}
	accountID, _ := res.LastInsertId()

	// A non-zero opening balance becomes a regular ledger entry under the
	// seeded initial_balance category, so the cached balance stays derivable
	// from transactions alone.
	if payload.InitialBalance != nil && !payload.InitialBalance.IsZero() {
		flow := models.FlowIncome
		amount := *payload.InitialBalance
		if amount.IsNegative() {
			flow = models.FlowOutcome
			amount = amount.Neg()
		}
		var categoryID int64
		err := database.DB.QueryRow(
			"SELECT id FROM categories WHERE user_id IS NULL AND key = ? AND flow_type = ?",
			models.CategoryKeyInitialBalance, flow,
		).Scan(&categoryID)
		if err != nil {
			ctxLogger.Error("Initial balance category missing", "flow", flow, "error", err)
			utils.SendJSONError(w, "Failed to record initial balance", http.StatusInternalServerError)
			return
		}
		_, err = h.ledgerService.CreateTransaction(userID, services.TransactionInput{
			AccountID:   accountID,
			CategoryID:  categoryID,
			FlowType:    flow,
			Amount:      amount,
			Date:        models.FormatDate(time.Now().UTC()),
			Description: "Initial balance",
		})
		if err != nil {
			ctxLogger.Error("Failed to record initial balance", "accountID", accountID, "error", err)
			respondServiceError(w, err)
			return
		}
	}

	h.summaryService.Invalidate(userID)
	account, err := getAccount(userID, accountID)
	if err != nil {
		ctxLogger.Error("Failed to reload created account", "accountID", accountID, "error", err)
		utils.SendJSONError(w, "Failed to load account", http.StatusInternalServerError)
		return
	}
	ctxLogger.Info("Account created", "accountID", accountID)
	utils.SendJSON(w, account, http.StatusCreated)
}

func (h *AccountHandler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}

	rows, err := database.DB.Query(
		"SELECT id, user_id, name, currency, type, cached_balance, created_at FROM accounts WHERE user_id = ? AND deleted_at IS NULL ORDER BY name",
		userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list accounts", "error", err)
		utils.SendJSONError(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Currency, &a.Type, &a.CachedBalance, &a.CreatedAt); err != nil {
			utils.SendJSONError(w, "Failed to list accounts", http.StatusInternalServerError)
			return
		}
		accounts = append(accounts, a)
	}
	utils.SendJSON(w, accounts, http.StatusOK)
}

func (h *AccountHandler) UpdateAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	accountID, err := parsePathID(r, "accountID")
	if err != nil {
		utils.SendJSONError(w, "Invalid account ID", http.StatusBadRequest)
		return
	}

	var payload struct {
		Name *string             `json:"name,omitempty"`
		Type *models.AccountType `json:"type,omitempty"`
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
	if payload.Type != nil && !payload.Type.Valid() {
		utils.SendJSONError(w, "Invalid account type", http.StatusBadRequest)
		return
	}

	res, err := database.DB.Exec(
		"UPDATE accounts SET name = COALESCE(?, name), type = COALESCE(?, type) WHERE id = ? AND user_id = ? AND deleted_at IS NULL",
		payload.Name, payload.Type, accountID, userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to update account", "accountID", accountID, "error", err)
		utils.SendJSONError(w, "Failed to update account", http.StatusInternalServerError)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		utils.SendJSONError(w, "Not found", http.StatusNotFound)
		return
	}

	h.summaryService.Invalidate(userID)
	account, err := getAccount(userID, accountID)
	if err != nil {
		utils.SendJSONError(w, "Failed to load account", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, account, http.StatusOK)
}

// DeleteAccountHandler removes an account with one of two explicit strategies.
// ?strategy=reassign re-points history to target_account_id; ?strategy=cascade
// soft-deletes the history with it. There is no default: the caller must pick.
func (h *AccountHandler) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	accountID, err := parsePathID(r, "accountID")
	if err != nil {
		utils.SendJSONError(w, "Invalid account ID", http.StatusBadRequest)
		return
	}
	ctxLogger := logger.FromContext(r.Context())

	var result *services.AccountDeletionResult
	switch strategy := r.URL.Query().Get("strategy"); strategy {
	case "reassign":
		var payload struct {
			TargetAccountID int64 `json:"target_account_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.TargetAccountID == 0 {
			utils.SendJSONError(w, "target_account_id is required for the reassign strategy", http.StatusBadRequest)
			return
		}
		result, err = h.deletionService.DeleteAccountReassign(userID, accountID, payload.TargetAccountID)
	case "cascade":
		result, err = h.deletionService.DeleteAccountCascade(userID, accountID)
	default:
		utils.SendJSONError(w, "strategy must be 'reassign' or 'cascade'", http.StatusBadRequest)
		return
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}

	h.summaryService.Invalidate(userID)
	ctxLogger.Info("Account deleted", "accountID", accountID,
		"transactionsAffected", result.TransactionsAffected, "templatesAffected", result.TemplatesAffected)
	utils.SendJSON(w, result, http.StatusOK)
}

// RecomputeBalanceHandler forces a reconciliation of one account's cached
// balance from its surviving transactions.
func (h *AccountHandler) RecomputeBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	accountID, err := parsePathID(r, "accountID")
	if err != nil {
		utils.SendJSONError(w, "Invalid account ID", http.StatusBadRequest)
		return
	}

	balance, err := h.reconcileService.RecomputeAccountBalance(database.DB, userID, accountID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	h.summaryService.Invalidate(userID)
	utils.SendJSON(w, map[string]any{"account_id": accountID, "cached_balance": balance}, http.StatusOK)
}

func getAccount(userID, accountID int64) (*models.Account, error) {
	var a models.Account
	err := database.DB.QueryRow(
		"SELECT id, user_id, name, currency, type, cached_balance, created_at FROM accounts WHERE id = ? AND user_id = ? AND deleted_at IS NULL",
		accountID, userID,
	).Scan(&a.ID, &a.UserID, &a.Name, &a.Currency, &a.Type, &a.CachedBalance, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
