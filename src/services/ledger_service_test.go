// backend/src/services/ledger_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/centsible/backend/src/models"
)

func TestCreateTransaction(t *testing.T) {
	db := newTestDB(t)
	svc := NewLedgerService(db, NewReconcileService(db))
	userID := createTestUser(t, db, "ana")
	accountID := createTestAccount(t, db, userID, "Checking")
	groceries := createTestCategory(t, db, userID, "Groceries", models.FlowOutcome)

	created, err := svc.CreateTransaction(userID, TransactionInput{
		AccountID:   accountID,
		CategoryID:  groceries,
		FlowType:    models.FlowOutcome,
		Amount:      dec(t, "42.90"),
		Date:        "2025-11-10",
		Description: "weekly shop",
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Nil(t, created.PairedTransactionID)

	assert.True(t, cachedBalance(t, db, accountID).Equal(dec(t, "-42.90")))
}

func TestCreateTransactionValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewLedgerService(db, NewReconcileService(db))
	userID := createTestUser(t, db, "ana")
	accountID := createTestAccount(t, db, userID, "Checking")
	groceries := createTestCategory(t, db, userID, "Groceries", models.FlowOutcome)

	base := TransactionInput{
		AccountID:  accountID,
		CategoryID: groceries,
		FlowType:   models.FlowOutcome,
		Amount:     dec(t, "10"),
		Date:       "2025-11-10",
	}

	t.Run("negative amount", func(t *testing.T) {
		in := base
		in.Amount = dec(t, "-1")
		_, err := svc.CreateTransaction(userID, in)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
	t.Run("bad date", func(t *testing.T) {
		in := base
		in.Date = "Nov 10"
		_, err := svc.CreateTransaction(userID, in)
		assert.ErrorIs(t, err, ErrInvalidRange)
	})
	t.Run("category flow mismatch", func(t *testing.T) {
		in := base
		in.FlowType = models.FlowIncome
		_, err := svc.CreateTransaction(userID, in)
		assert.ErrorIs(t, err, ErrNotFound)
	})
	t.Run("unknown invoice", func(t *testing.T) {
		in := base
		missing := int64(9999)
		in.InvoiceID = &missing
		_, err := svc.CreateTransaction(userID, in)
		assert.ErrorIs(t, err, ErrNotFound)
	})
	t.Run("system category is usable", func(t *testing.T) {
		in := base
		in.CategoryID = seededCategoryID(t, db, models.CategoryKeyGeneral, models.FlowOutcome)
		_, err := svc.CreateTransaction(userID, in)
		assert.NoError(t, err)
	})
}

func TestCreateTransactionUpdatesBudgetCache(t *testing.T) {
	db := newTestDB(t)
	reconciler := NewReconcileService(db)
	svc := NewLedgerService(db, reconciler)
	userID := createTestUser(t, db, "ana")
	accountID := createTestAccount(t, db, userID, "Checking")
	groceries := createTestCategory(t, db, userID, "Groceries", models.FlowOutcome)

	now := time.Now().UTC()
	monthStart := models.FormatDate(now.AddDate(0, 0, -(now.Day() - 1)))

	res, err := db.Exec(`INSERT INTO budgets (user_id, name, limit_amount, frequency, interval, start_date)
		VALUES (?, 'Food', '400', 'monthly', 1, ?)`, userID, monthStart)
	require.NoError(t, err)
	budgetID, err := res.LastInsertId()
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO budget_categories (budget_id, category_id) VALUES (?, ?)", budgetID, groceries)
	require.NoError(t, err)

	created, err := svc.CreateTransaction(userID, TransactionInput{
		AccountID:  accountID,
		CategoryID: groceries,
		FlowType:   models.FlowOutcome,
		Amount:     dec(t, "75.25"),
		Date:       models.FormatDate(now),
	})
	require.NoError(t, err)
	assert.True(t, cachedConsumption(t, db, budgetID).Equal(dec(t, "75.25")))

	// Deleting the transaction rolls the cache back in the same operation.
	require.NoError(t, svc.DeleteTransaction(userID, created.ID))
	assert.True(t, cachedConsumption(t, db, budgetID).IsZero())
	assert.True(t, cachedBalance(t, db, accountID).IsZero())
}

func TestUpdateTransaction(t *testing.T) {
	db := newTestDB(t)
	svc := NewLedgerService(db, NewReconcileService(db))
	userID := createTestUser(t, db, "ana")
	accountID := createTestAccount(t, db, userID, "Checking")
	groceries := createTestCategory(t, db, userID, "Groceries", models.FlowOutcome)
	fuel := createTestCategory(t, db, userID, "Fuel", models.FlowOutcome)
	salary := createTestCategory(t, db, userID, "Salary", models.FlowIncome)

	created, err := svc.CreateTransaction(userID, TransactionInput{
		AccountID:  accountID,
		CategoryID: groceries,
		FlowType:   models.FlowOutcome,
		Amount:     dec(t, "50"),
		Date:       "2025-11-10",
	})
	require.NoError(t, err)

	t.Run("amount and category change", func(t *testing.T) {
		amount := dec(t, "65")
		updated, err := svc.UpdateTransaction(userID, created.ID, TransactionUpdate{
			Amount:     &amount,
			CategoryID: &fuel,
		})
		require.NoError(t, err)
		assert.True(t, updated.Amount.Equal(amount))
		assert.Equal(t, fuel, updated.CategoryID)
		assert.True(t, cachedBalance(t, db, accountID).Equal(dec(t, "-65")))
	})

	t.Run("category with wrong flow rejected", func(t *testing.T) {
		_, err := svc.UpdateTransaction(userID, created.ID, TransactionUpdate{CategoryID: &salary})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("foreign transaction invisible", func(t *testing.T) {
		intruder := createTestUser(t, db, "bruno")
		desc := "mine now"
		_, err := svc.UpdateTransaction(intruder, created.ID, TransactionUpdate{Description: &desc})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestLedgerRejectsTransferLegs(t *testing.T) {
	db := newTestDB(t)
	reconciler := NewReconcileService(db)
	ledger := NewLedgerService(db, reconciler)
	pairing := NewPairingService(db, reconciler)
	userID := createTestUser(t, db, "ana")
	checking := createTestAccount(t, db, userID, "Checking")
	savings := createTestAccount(t, db, userID, "Savings")

	out, _, err := pairing.CreateTransfer(userID, TransferInput{
		FromAccountID: checking, ToAccountID: savings, Amount: dec(t, "100"), Date: "2025-11-10",
	})
	require.NoError(t, err)

	amount := dec(t, "1")
	_, err = ledger.UpdateTransaction(userID, out.ID, TransactionUpdate{Amount: &amount})
	assert.ErrorIs(t, err, ErrPairedTransaction)

	err = ledger.DeleteTransaction(userID, out.ID)
	assert.ErrorIs(t, err, ErrPairedTransaction)
}
