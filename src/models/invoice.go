package models

// Invoice statuses.
const (
	InvoicePending   = "pending"
	InvoiceCommitted = "committed"
)

// Invoice is the stored receipt a user uploaded. Committing an invoice turns
// its line items into ordinary transactions carrying InvoiceID for provenance.
type Invoice struct {
	ID           int64   `json:"id"`
	UserID       int64   `json:"user_id"`
	FilePath     string  `json:"-"`
	OriginalName string  `json:"original_name"`
	Status       string  `json:"status"`
	DeletedAt    *string `json:"deleted_at,omitempty"`
	CreatedAt    string  `json:"created_at"`
}
