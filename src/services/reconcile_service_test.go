// backend/src/services/reconcile_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/centsible/backend/src/models"
)

func TestRecomputeAccountBalance(t *testing.T) {
	db := newTestDB(t)
	svc := NewReconcileService(db)
	userID := createTestUser(t, db, "ana")
	accountID := createTestAccount(t, db, userID, "Checking")
	income := createTestCategory(t, db, userID, "Salary", models.FlowIncome)
	outcome := createTestCategory(t, db, userID, "Groceries", models.FlowOutcome)

	insertTestTransaction(t, db, userID, accountID, income, models.FlowIncome, "1000.10", "2025-11-01")
	insertTestTransaction(t, db, userID, accountID, outcome, models.FlowOutcome, "250.01", "2025-11-02")
	insertTestTransaction(t, db, userID, accountID, outcome, models.FlowOutcome, "0.09", "2025-11-03")

	// Soft-deleted rows never count.
	deletedID := insertTestTransaction(t, db, userID, accountID, outcome, models.FlowOutcome, "999", "2025-11-04")
	_, err := db.Exec("UPDATE transactions SET deleted_at = '2025-11-05 00:00:00' WHERE id = ?", deletedID)
	require.NoError(t, err)

	balance, err := svc.RecomputeAccountBalance(db, userID, accountID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(t, "750")), "got %s", balance)
	assert.True(t, cachedBalance(t, db, accountID).Equal(dec(t, "750")))
}

func TestRecomputeAccountBalanceOwnership(t *testing.T) {
	db := newTestDB(t)
	svc := NewReconcileService(db)
	userID := createTestUser(t, db, "ana")
	intruder := createTestUser(t, db, "bruno")
	accountID := createTestAccount(t, db, userID, "Checking")

	_, err := svc.RecomputeAccountBalance(db, intruder, accountID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecomputeBudgetConsumption(t *testing.T) {
	db := newTestDB(t)
	svc := NewReconcileService(db)
	userID := createTestUser(t, db, "ana")
	accountID := createTestAccount(t, db, userID, "Checking")
	groceries := createTestCategory(t, db, userID, "Groceries", models.FlowOutcome)
	fuel := createTestCategory(t, db, userID, "Fuel", models.FlowOutcome)
	salary := createTestCategory(t, db, userID, "Salary", models.FlowIncome)

	res, err := db.Exec(`INSERT INTO budgets (user_id, name, limit_amount, frequency, interval, start_date)
		VALUES (?, 'Food', '400', 'monthly', 1, '2025-11-01')`, userID)
	require.NoError(t, err)
	budgetID, err := res.LastInsertId()
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO budget_categories (budget_id, category_id) VALUES (?, ?)", budgetID, groceries)
	require.NoError(t, err)

	insertTestTransaction(t, db, userID, accountID, groceries, models.FlowOutcome, "120.50", "2025-11-05") // counts
	insertTestTransaction(t, db, userID, accountID, groceries, models.FlowOutcome, "80", "2025-11-20")     // counts
	insertTestTransaction(t, db, userID, accountID, groceries, models.FlowOutcome, "60", "2025-12-01")     // outside window
	insertTestTransaction(t, db, userID, accountID, fuel, models.FlowOutcome, "55", "2025-11-06")          // unlinked category
	insertTestTransaction(t, db, userID, accountID, salary, models.FlowIncome, "2000", "2025-11-06")       // income never counts

	consumption, err := svc.RecomputeBudgetConsumption(db, userID, budgetID, "2025-11-01", "2025-11-30")
	require.NoError(t, err)
	assert.True(t, consumption.Equal(dec(t, "200.50")), "got %s", consumption)
	assert.True(t, cachedConsumption(t, db, budgetID).Equal(dec(t, "200.50")))
}

func TestRecomputeBudgetConsumptionRangeValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewReconcileService(db)
	userID := createTestUser(t, db, "ana")

	res, err := db.Exec(`INSERT INTO budgets (user_id, name, limit_amount, frequency, interval, start_date)
		VALUES (?, 'Food', '400', 'monthly', 1, '2025-11-01')`, userID)
	require.NoError(t, err)
	budgetID, err := res.LastInsertId()
	require.NoError(t, err)

	_, err = svc.RecomputeBudgetConsumption(db, userID, budgetID, "2025-11-30", "2025-11-01")
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = svc.RecomputeBudgetConsumption(db, userID, budgetID, "bad", "2025-11-30")
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = svc.RecomputeBudgetConsumption(db, userID, 9999, "2025-11-01", "2025-11-30")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSweepOwnerRepairsCorruptedCaches(t *testing.T) {
	db := newTestDB(t)
	svc := NewReconcileService(db)
	userID := createTestUser(t, db, "ana")
	accountID := createTestAccount(t, db, userID, "Checking")
	groceries := createTestCategory(t, db, userID, "Groceries", models.FlowOutcome)

	today := models.FormatDate(time.Now().UTC())
	monthStart := models.FormatDate(time.Now().UTC().AddDate(0, 0, -(time.Now().UTC().Day() - 1)))

	insertTestTransaction(t, db, userID, accountID, groceries, models.FlowOutcome, "40", today)

	res, err := db.Exec(`INSERT INTO budgets (user_id, name, limit_amount, frequency, interval, start_date)
		VALUES (?, 'Food', '400', 'monthly', 1, ?)`, userID, monthStart)
	require.NoError(t, err)
	budgetID, err := res.LastInsertId()
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO budget_categories (budget_id, category_id) VALUES (?, ?)", budgetID, groceries)
	require.NoError(t, err)

	// Corrupt both caches directly.
	_, err = db.Exec("UPDATE accounts SET cached_balance = '12345' WHERE id = ?", accountID)
	require.NoError(t, err)
	_, err = db.Exec("UPDATE budgets SET cached_consumption = '-1' WHERE id = ?", budgetID)
	require.NoError(t, err)

	require.NoError(t, svc.SweepOwner(userID, today))

	assert.True(t, cachedBalance(t, db, accountID).Equal(dec(t, "-40")))
	assert.True(t, cachedConsumption(t, db, budgetID).Equal(dec(t, "40")))
}
