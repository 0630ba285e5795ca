// backend/src/services/interfaces.go
package services

import (
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/username/centsible/backend/src/models"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx. The
// reconciler takes it as a parameter so mutating callers can recompute caches
// inside their own transaction.
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Define common service errors
var (
	ErrNotFound                = errors.New("entity not found")
	ErrInvalidAccounts         = errors.New("invalid accounts")
	ErrNotATransfer            = errors.New("transaction is not part of a transfer")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrInvalidSchedule         = errors.New("invalid schedule")
	ErrInvalidTarget           = errors.New("invalid target account")
	ErrInvalidRange            = errors.New("invalid date range")
	ErrSystemCategoryImmutable = errors.New("system categories cannot be modified or deleted")
	ErrPairedTransaction       = errors.New("transfer legs must be changed through the transfer operations")
	ErrOrphanPair              = errors.New("paired counterpart is missing")
)

// TransferInput creates a two-legged internal transfer.
type TransferInput struct {
	FromAccountID int64           `json:"from_account_id"`
	ToAccountID   int64           `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          string          `json:"date"`
	Description   string          `json:"description"`
}

// TransferUpdate carries the fields that may change on an existing transfer.
// Category, flow type and accounts are immutable on transfer legs.
type TransferUpdate struct {
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Date        *string          `json:"date,omitempty"`
	Description *string          `json:"description,omitempty"`
}

// ScheduleInput is the shared scheduling shape of recurring templates.
type ScheduleInput struct {
	Frequency  models.Frequency `json:"frequency"`
	Interval   int              `json:"interval"`
	ByWeekday  []int            `json:"by_weekday,omitempty"`
	ByMonthday []int            `json:"by_monthday,omitempty"`
	StartDate  string           `json:"start_date"`
	EndDate    *string          `json:"end_date,omitempty"`
}

// TemplateInput creates a single recurring template.
type TemplateInput struct {
	AccountID   int64           `json:"account_id"`
	CategoryID  int64           `json:"category_id"`
	FlowType    models.FlowType `json:"flow_type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	ScheduleInput
}

// RecurringTransferInput creates a paired pair of recurring templates.
type RecurringTransferInput struct {
	FromAccountID int64           `json:"from_account_id"`
	ToAccountID   int64           `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	ScheduleInput
}

// TransactionInput creates a plain (non-transfer) ledger entry.
type TransactionInput struct {
	AccountID   int64           `json:"account_id"`
	CategoryID  int64           `json:"category_id"`
	FlowType    models.FlowType `json:"flow_type"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	InvoiceID   *int64          `json:"invoice_id,omitempty"`
}

// TransactionUpdate mutates amount/date/description of a plain transaction.
type TransactionUpdate struct {
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Date        *string          `json:"date,omitempty"`
	Description *string          `json:"description,omitempty"`
	CategoryID  *int64           `json:"category_id,omitempty"`
}

// TemplateFailure reports one template the materializer had to skip.
type TemplateFailure struct {
	TemplateID int64  `json:"template_id"`
	Reason     string `json:"reason"`
}

// SyncResult aggregates one materializer run for one owner.
type SyncResult struct {
	TemplatesProcessed  int               `json:"templates_processed"`
	TransactionsCreated int               `json:"transactions_created"`
	Failures            []TemplateFailure `json:"failures,omitempty"`
}

// AccountDeletionResult reports what an account deletion touched.
type AccountDeletionResult struct {
	TransactionsAffected int64 `json:"transactions_affected"`
	TemplatesAffected    int64 `json:"templates_affected"`
	AccountDeleted       bool  `json:"account_deleted"`
}

// TemplateDeletionResult reports a recurring-template deletion.
type TemplateDeletionResult struct {
	DeletedAt   string `json:"deleted_at"`
	PairDeleted bool   `json:"pair_deleted"`
}

// OwnerSummary is the cached read model served by the summary endpoint.
type OwnerSummary struct {
	Accounts     []models.Account `json:"accounts"`
	TotalBalance decimal.Decimal  `json:"total_balance"`
	Budgets      []models.Budget  `json:"budgets"`
}

// PairingService is the only code path allowed to write both sides of a
// paired entity (transfer legs, recurring-transfer templates).
type PairingService interface {
	CreateTransfer(userID int64, in TransferInput) (*models.Transaction, *models.Transaction, error)
	UpdateTransfer(userID, legID int64, upd TransferUpdate) (*models.Transaction, *models.Transaction, error)
	DeleteTransfer(userID, legID int64) (int, error)
	CreateRecurringTransfer(userID int64, in RecurringTransferInput) (*models.RecurringTemplate, *models.RecurringTemplate, error)
	DeleteRecurringTransfer(userID, templateID int64) (int, error)
}

// RecurringService owns template lifecycle transitions and the materializer.
type RecurringService interface {
	CreateTemplate(userID int64, in TemplateInput) (*models.RecurringTemplate, error)
	SetTemplateActive(userID, templateID int64, active bool) error
	Sync(userID int64, asOf string) (*SyncResult, error)
}

// ReconcileService recomputes the derived aggregates. It is the sole writer
// of accounts.cached_balance and budgets.cached_consumption.
type ReconcileService interface {
	RecomputeAccountBalance(q Querier, userID, accountID int64) (decimal.Decimal, error)
	RecomputeBudgetConsumption(q Querier, userID, budgetID int64, periodStart, periodEnd string) (decimal.Decimal, error)
	// RecomputeBudgetsForCategory refreshes the current-cycle consumption of
	// every budget linked to the category, after a mutation touched one of
	// its transactions.
	RecomputeBudgetsForCategory(q Querier, userID, categoryID int64, asOf string) error
	// SweepOwner is the full self-healing recompute pass over every account
	// and budget of one owner, independent of the incremental callers.
	SweepOwner(userID int64, asOf string) error
}

// DeletionService enforces the cascade/reassignment rules so the ledger never
// keeps a dangling reference.
type DeletionService interface {
	DeleteAccountReassign(userID, accountID, targetAccountID int64) (*AccountDeletionResult, error)
	DeleteAccountCascade(userID, accountID int64) (*AccountDeletionResult, error)
	DeleteCategory(userID, categoryID int64, fallbackCategoryID *int64) (int64, error)
	DeleteInvoice(userID, invoiceID int64) (int64, error)
	DeleteRecurringTemplate(userID, templateID int64, alsoDeletePair bool) (*TemplateDeletionResult, error)
	DeleteBudget(userID, budgetID int64) error
}

// LedgerService handles plain transaction mutations with in-transaction
// balance reconciliation. Paired rows are rejected here by construction.
type LedgerService interface {
	CreateTransaction(userID int64, in TransactionInput) (*models.Transaction, error)
	UpdateTransaction(userID, transactionID int64, upd TransactionUpdate) (*models.Transaction, error)
	DeleteTransaction(userID, transactionID int64) error
}

// SummaryService serves the cached per-owner totals.
type SummaryService interface {
	GetSummary(userID int64) (*OwnerSummary, error)
	Invalidate(userID int64)
}
