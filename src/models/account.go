package models

import "github.com/shopspring/decimal"

// Account groups transactions under one currency and kind.
// CachedBalance is derived; the reconciler is the only writer of it.
type Account struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	Name          string          `json:"name"`
	Currency      string          `json:"currency"`
	Type          AccountType     `json:"type"`
	CachedBalance decimal.Decimal `json:"cached_balance"`
	DeletedAt     *string         `json:"deleted_at,omitempty"`
	CreatedAt     string          `json:"created_at"`
}
