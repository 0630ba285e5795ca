package models

import "github.com/shopspring/decimal"

// Transaction is a single ledger entry. Amount is always non-negative;
// FlowType carries the sign. PairedTransactionID links the two legs of an
// internal transfer; paired rows must stay symmetric (same amount and date,
// opposite flow) and are only ever written through the pairing service.
type Transaction struct {
	ID                  int64           `json:"id"`
	UserID              int64           `json:"user_id"`
	AccountID           int64           `json:"account_id"`
	CategoryID          int64           `json:"category_id"`
	FlowType            FlowType        `json:"flow_type"`
	Amount              decimal.Decimal `json:"amount"`
	Date                string          `json:"date"`
	Description         string          `json:"description"`
	InvoiceID           *int64          `json:"invoice_id,omitempty"`
	PairedTransactionID *int64          `json:"paired_transaction_id,omitempty"`
	RecurringTemplateID *int64          `json:"recurring_template_id,omitempty"`
	DeletedAt           *string         `json:"deleted_at,omitempty"`
	CreatedAt           string          `json:"created_at"`
}
