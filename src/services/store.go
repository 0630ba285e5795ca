// backend/src/services/store.go
//
// Shared row helpers used by the services in this package. All reads filter
// on user_id so no service can touch another owner's rows.
package services

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/username/centsible/backend/src/models"
)

const transactionColumns = `id, user_id, account_id, category_id, flow_type, amount, date, description,
	invoice_id, paired_transaction_id, recurring_template_id, deleted_at, created_at`

const templateColumns = `id, user_id, account_id, category_id, flow_type, amount, description,
	frequency, interval, by_weekday, by_monthday, start_date, next_run_date, end_date,
	is_active, paired_template_id, deleted_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	var invoiceID, pairedID, templateID sql.NullInt64
	var deletedAt sql.NullString
	err := row.Scan(
		&t.ID, &t.UserID, &t.AccountID, &t.CategoryID, &t.FlowType, &t.Amount, &t.Date, &t.Description,
		&invoiceID, &pairedID, &templateID, &deletedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if invoiceID.Valid {
		t.InvoiceID = &invoiceID.Int64
	}
	if pairedID.Valid {
		t.PairedTransactionID = &pairedID.Int64
	}
	if templateID.Valid {
		t.RecurringTemplateID = &templateID.Int64
	}
	if deletedAt.Valid {
		t.DeletedAt = &deletedAt.String
	}
	return &t, nil
}

func scanTemplate(row rowScanner) (*models.RecurringTemplate, error) {
	var t models.RecurringTemplate
	var byWeekday, byMonthday, endDate, deletedAt sql.NullString
	var pairedID sql.NullInt64
	err := row.Scan(
		&t.ID, &t.UserID, &t.AccountID, &t.CategoryID, &t.FlowType, &t.Amount, &t.Description,
		&t.Frequency, &t.Interval, &byWeekday, &byMonthday, &t.StartDate, &t.NextRunDate, &endDate,
		&t.IsActive, &pairedID, &deletedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if byWeekday.Valid {
		t.ByWeekday = &byWeekday.String
	}
	if byMonthday.Valid {
		t.ByMonthday = &byMonthday.String
	}
	if endDate.Valid {
		t.EndDate = &endDate.String
	}
	if pairedID.Valid {
		t.PairedTemplateID = &pairedID.Int64
	}
	if deletedAt.Valid {
		t.DeletedAt = &deletedAt.String
	}
	return &t, nil
}

// getTransaction loads one non-deleted transaction owned by userID.
func getTransaction(q Querier, userID, id int64) (*models.Transaction, error) {
	row := q.QueryRow(
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ? AND user_id = ? AND deleted_at IS NULL", id, userID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// getTemplate loads one non-deleted recurring template owned by userID.
func getTemplate(q Querier, userID, id int64) (*models.RecurringTemplate, error) {
	row := q.QueryRow(
		"SELECT "+templateColumns+" FROM recurring_templates WHERE id = ? AND user_id = ? AND deleted_at IS NULL", id, userID)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// systemCategoryID resolves a seeded global category by key and flow type.
func systemCategoryID(q Querier, key string, flow models.FlowType) (int64, error) {
	var id int64
	err := q.QueryRow(
		"SELECT id FROM categories WHERE user_id IS NULL AND key = ? AND flow_type = ?", key, flow,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("system category %s/%s missing: %w", key, flow, err)
	}
	return id, nil
}

// accountOwned verifies the account exists, is not deleted, and belongs to
// userID.
func accountOwned(q Querier, userID, accountID int64) error {
	var id int64
	err := q.QueryRow(
		"SELECT id FROM accounts WHERE id = ? AND user_id = ? AND deleted_at IS NULL", accountID, userID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// loadBudgetCycleFields fetches just the columns needed to derive a budget's
// cycle window.
func loadBudgetCycleFields(q Querier, userID, budgetID int64) (*models.Budget, error) {
	var b models.Budget
	var endDate sql.NullString
	err := q.QueryRow(
		"SELECT id, frequency, interval, start_date, end_date FROM budgets WHERE id = ? AND user_id = ? AND deleted_at IS NULL",
		budgetID, userID,
	).Scan(&b.ID, &b.Frequency, &b.Interval, &b.StartDate, &endDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if endDate.Valid {
		b.EndDate = &endDate.String
	}
	return &b, nil
}

// mustParseDate is for dates produced by this codebase itself.
func mustParseDate(s string) time.Time {
	t, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// categoryUsable verifies the category is either owned by userID or a system
// category, and that its flow type matches.
func categoryUsable(q Querier, userID, categoryID int64, flow models.FlowType) error {
	var id int64
	err := q.QueryRow(
		"SELECT id FROM categories WHERE id = ? AND (user_id = ? OR user_id IS NULL) AND flow_type = ?",
		categoryID, userID, flow,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
