// backend/src/services/reconcile_service.go
package services

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/centsible/backend/src/logger"
	"github.com/username/centsible/backend/src/models"
)

type reconcileService struct {
	db *sql.DB
}

// NewReconcileService returns the cache reconciler. The db handle is only
// used by SweepOwner; the incremental entry points run on the caller's
// transaction via the Querier parameter.
func NewReconcileService(db *sql.DB) ReconcileService {
	return &reconcileService{db: db}
}

// RecomputeAccountBalance recalculates cached_balance as the signed sum of
// the account's non-deleted transactions (income positive, outcome negative)
// and writes it back. Pure function of current transaction state; safe to
// call redundantly.
func (s *reconcileService) RecomputeAccountBalance(q Querier, userID, accountID int64) (decimal.Decimal, error) {
	if err := accountOwned(q, userID, accountID); err != nil {
		return decimal.Zero, err
	}

	rows, err := q.Query(
		"SELECT flow_type, amount FROM transactions WHERE account_id = ? AND user_id = ? AND deleted_at IS NULL",
		accountID, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("querying transactions for account %d: %w", accountID, err)
	}
	defer rows.Close()

	// Sums are computed in Go with decimals; a SQL SUM over the text column
	// would go through floats and drift.
	balance := decimal.Zero
	for rows.Next() {
		var flow models.FlowType
		var amount decimal.Decimal
		if err := rows.Scan(&flow, &amount); err != nil {
			return decimal.Zero, err
		}
		if flow == models.FlowIncome {
			balance = balance.Add(amount)
		} else {
			balance = balance.Sub(amount)
		}
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, err
	}

	if _, err := q.Exec("UPDATE accounts SET cached_balance = ? WHERE id = ?", balance.String(), accountID); err != nil {
		return decimal.Zero, fmt.Errorf("writing cached_balance for account %d: %w", accountID, err)
	}
	return balance, nil
}

// RecomputeBudgetConsumption recalculates cached_consumption as the sum of
// non-deleted outcome transactions whose category is linked to the budget and
// whose date lies in [periodStart, periodEnd]. The caller derives the cycle
// window; this is a pure aggregator over an explicit range.
func (s *reconcileService) RecomputeBudgetConsumption(q Querier, userID, budgetID int64, periodStart, periodEnd string) (decimal.Decimal, error) {
	if _, err := models.ParseDate(periodStart); err != nil {
		return decimal.Zero, ErrInvalidRange
	}
	if _, err := models.ParseDate(periodEnd); err != nil {
		return decimal.Zero, ErrInvalidRange
	}
	if periodEnd < periodStart {
		return decimal.Zero, ErrInvalidRange
	}

	var id int64
	err := q.QueryRow(
		"SELECT id FROM budgets WHERE id = ? AND user_id = ? AND deleted_at IS NULL", budgetID, userID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}

	rows, err := q.Query(`
		SELECT t.amount
		FROM transactions t
		JOIN budget_categories bc ON bc.category_id = t.category_id
		WHERE bc.budget_id = ?
		  AND t.user_id = ?
		  AND t.flow_type = ?
		  AND t.deleted_at IS NULL
		  AND t.date >= ? AND t.date <= ?`,
		budgetID, userID, models.FlowOutcome, periodStart, periodEnd)
	if err != nil {
		return decimal.Zero, fmt.Errorf("querying consumption for budget %d: %w", budgetID, err)
	}
	defer rows.Close()

	consumption := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, err
		}
		consumption = consumption.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, err
	}

	if _, err := q.Exec("UPDATE budgets SET cached_consumption = ? WHERE id = ?", consumption.String(), budgetID); err != nil {
		return decimal.Zero, fmt.Errorf("writing cached_consumption for budget %d: %w", budgetID, err)
	}
	return consumption, nil
}

// RecomputeBudgetsForCategory refreshes the current-cycle consumption of
// every budget linked to categoryID. Called by mutating services so budget
// caches never stay stale across a completed request.
func (s *reconcileService) RecomputeBudgetsForCategory(q Querier, userID, categoryID int64, asOf string) error {
	asOfDate, err := models.ParseDate(asOf)
	if err != nil {
		return ErrInvalidRange
	}

	rows, err := q.Query(`
		SELECT b.id, b.frequency, b.interval, b.start_date, b.end_date
		FROM budgets b
		JOIN budget_categories bc ON bc.budget_id = b.id
		WHERE bc.category_id = ? AND b.user_id = ? AND b.deleted_at IS NULL`,
		categoryID, userID)
	if err != nil {
		return err
	}
	var budgets []models.Budget
	for rows.Next() {
		var b models.Budget
		var endDate sql.NullString
		if err := rows.Scan(&b.ID, &b.Frequency, &b.Interval, &b.StartDate, &endDate); err != nil {
			rows.Close()
			return err
		}
		if endDate.Valid {
			b.EndDate = &endDate.String
		}
		budgets = append(budgets, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range budgets {
		winStart, winEnd, err := budgets[i].CycleWindow(asOfDate)
		if err != nil {
			logger.L.Warn("Skipping budget with invalid cycle definition", "budgetID", budgets[i].ID, "error", err)
			continue
		}
		if _, err := s.RecomputeBudgetConsumption(q, userID, budgets[i].ID, winStart, winEnd); err != nil {
			return fmt.Errorf("recomputing budget %d: %w", budgets[i].ID, err)
		}
	}
	return nil
}

// SweepOwner recomputes every cached aggregate of one owner from scratch.
// Used as the periodic correctness sweep and after migrations.
func (s *reconcileService) SweepOwner(userID int64, asOf string) error {
	asOfDate, err := models.ParseDate(asOf)
	if err != nil {
		return ErrInvalidRange
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	accountIDs, err := collectIDs(tx, "SELECT id FROM accounts WHERE user_id = ? AND deleted_at IS NULL", userID)
	if err != nil {
		return err
	}
	for _, id := range accountIDs {
		if _, err := s.RecomputeAccountBalance(tx, userID, id); err != nil {
			return fmt.Errorf("sweeping account %d: %w", id, err)
		}
	}

	rows, err := tx.Query(
		"SELECT id, frequency, interval, start_date, end_date FROM budgets WHERE user_id = ? AND deleted_at IS NULL", userID)
	if err != nil {
		return err
	}
	type budgetRow struct {
		b models.Budget
	}
	var budgets []budgetRow
	for rows.Next() {
		var br budgetRow
		var endDate sql.NullString
		if err := rows.Scan(&br.b.ID, &br.b.Frequency, &br.b.Interval, &br.b.StartDate, &endDate); err != nil {
			rows.Close()
			return err
		}
		if endDate.Valid {
			br.b.EndDate = &endDate.String
		}
		budgets = append(budgets, br)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, br := range budgets {
		winStart, winEnd, err := br.b.CycleWindow(asOfDate)
		if err != nil {
			logger.L.Warn("Skipping budget with invalid cycle definition during sweep", "budgetID", br.b.ID, "error", err)
			continue
		}
		if _, err := s.RecomputeBudgetConsumption(tx, userID, br.b.ID, winStart, winEnd); err != nil {
			return fmt.Errorf("sweeping budget %d: %w", br.b.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logger.L.Info("Reconciliation sweep finished", "userID", userID, "accounts", len(accountIDs), "budgets", len(budgets))
	return nil
}

func collectIDs(q Querier, query string, args ...any) ([]int64, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// currentTimestamp is the soft-delete timestamp format used across services.
func currentTimestamp() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05")
}
