// backend/src/services/pairing_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/centsible/backend/src/models"
)

func TestCreateTransfer(t *testing.T) {
	db := newTestDB(t)
	svc := NewPairingService(db, NewReconcileService(db))
	userID := createTestUser(t, db, "ana")
	checking := createTestAccount(t, db, userID, "Checking")
	savings := createTestAccount(t, db, userID, "Savings")

	out, in, err := svc.CreateTransfer(userID, TransferInput{
		FromAccountID: checking,
		ToAccountID:   savings,
		Amount:        dec(t, "150.25"),
		Date:          "2025-11-10",
		Description:   "to savings",
	})
	require.NoError(t, err)

	// Legs are symmetric and mutually linked.
	assert.Equal(t, models.FlowOutcome, out.FlowType)
	assert.Equal(t, models.FlowIncome, in.FlowType)
	assert.True(t, out.Amount.Equal(in.Amount))
	assert.Equal(t, out.Date, in.Date)
	require.NotNil(t, out.PairedTransactionID)
	require.NotNil(t, in.PairedTransactionID)
	assert.Equal(t, in.ID, *out.PairedTransactionID)
	assert.Equal(t, out.ID, *in.PairedTransactionID)

	// Legs carry the system transfer categories of matching flow.
	assert.Equal(t, seededCategoryID(t, db, models.CategoryKeyTransfer, models.FlowOutcome), out.CategoryID)
	assert.Equal(t, seededCategoryID(t, db, models.CategoryKeyTransfer, models.FlowIncome), in.CategoryID)

	assert.True(t, cachedBalance(t, db, checking).Equal(dec(t, "-150.25")))
	assert.True(t, cachedBalance(t, db, savings).Equal(dec(t, "150.25")))
}

func TestCreateTransferValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewPairingService(db, NewReconcileService(db))
	userID := createTestUser(t, db, "ana")
	checking := createTestAccount(t, db, userID, "Checking")
	savings := createTestAccount(t, db, userID, "Savings")

	otherUser := createTestUser(t, db, "bruno")
	foreign := createTestAccount(t, db, otherUser, "Bruno Checking")

	base := TransferInput{FromAccountID: checking, ToAccountID: savings, Amount: dec(t, "10"), Date: "2025-11-10"}

	t.Run("same account both sides", func(t *testing.T) {
		in := base
		in.ToAccountID = checking
		_, _, err := svc.CreateTransfer(userID, in)
		assert.ErrorIs(t, err, ErrInvalidAccounts)
	})
	t.Run("foreign destination account", func(t *testing.T) {
		in := base
		in.ToAccountID = foreign
		_, _, err := svc.CreateTransfer(userID, in)
		assert.ErrorIs(t, err, ErrInvalidAccounts)
	})
	t.Run("non-positive amount", func(t *testing.T) {
		in := base
		in.Amount = dec(t, "-5")
		_, _, err := svc.CreateTransfer(userID, in)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
	t.Run("malformed date", func(t *testing.T) {
		in := base
		in.Date = "10/11/2025"
		_, _, err := svc.CreateTransfer(userID, in)
		assert.ErrorIs(t, err, ErrInvalidRange)
	})
}

func TestUpdateTransferKeepsLegsSymmetric(t *testing.T) {
	db := newTestDB(t)
	svc := NewPairingService(db, NewReconcileService(db))
	userID := createTestUser(t, db, "ana")
	checking := createTestAccount(t, db, userID, "Checking")
	savings := createTestAccount(t, db, userID, "Savings")

	_, in, err := svc.CreateTransfer(userID, TransferInput{
		FromAccountID: checking, ToAccountID: savings, Amount: dec(t, "100"), Date: "2025-11-10",
	})
	require.NoError(t, err)

	// Editing through the income leg still updates both.
	newAmount := dec(t, "175")
	updLeg, updPair, err := svc.UpdateTransfer(userID, in.ID, TransferUpdate{
		Amount: &newAmount,
		Date:   strPtr("2025-11-12"),
	})
	require.NoError(t, err)

	for _, txn := range []*models.Transaction{updLeg, updPair} {
		assert.True(t, txn.Amount.Equal(newAmount))
		assert.Equal(t, "2025-11-12", txn.Date)
	}
	// Flow types never change on update.
	assert.Equal(t, models.FlowIncome, updLeg.FlowType)
	assert.Equal(t, models.FlowOutcome, updPair.FlowType)

	assert.True(t, cachedBalance(t, db, checking).Equal(dec(t, "-175")))
	assert.True(t, cachedBalance(t, db, savings).Equal(dec(t, "175")))
}

func TestUpdateTransferRejectsPlainTransaction(t *testing.T) {
	db := newTestDB(t)
	svc := NewPairingService(db, NewReconcileService(db))
	userID := createTestUser(t, db, "ana")
	checking := createTestAccount(t, db, userID, "Checking")
	categoryID := createTestCategory(t, db, userID, "Groceries", models.FlowOutcome)
	txnID := insertTestTransaction(t, db, userID, checking, categoryID, models.FlowOutcome, "20", "2025-11-10")

	amount := dec(t, "30")
	_, _, err := svc.UpdateTransfer(userID, txnID, TransferUpdate{Amount: &amount})
	assert.ErrorIs(t, err, ErrNotATransfer)
}

func TestUpdateTransferOrphanPair(t *testing.T) {
	db := newTestDB(t)
	svc := NewPairingService(db, NewReconcileService(db))
	userID := createTestUser(t, db, "ana")
	checking := createTestAccount(t, db, userID, "Checking")
	savings := createTestAccount(t, db, userID, "Savings")

	out, in, err := svc.CreateTransfer(userID, TransferInput{
		FromAccountID: checking, ToAccountID: savings, Amount: dec(t, "100"), Date: "2025-11-10",
	})
	require.NoError(t, err)

	_, err = db.Exec("UPDATE transactions SET deleted_at = '2025-11-11 00:00:00' WHERE id = ?", in.ID)
	require.NoError(t, err)

	amount := dec(t, "120")
	_, _, err = svc.UpdateTransfer(userID, out.ID, TransferUpdate{Amount: &amount})
	assert.ErrorIs(t, err, ErrOrphanPair)
}

func TestDeleteTransferRemovesBothLegs(t *testing.T) {
	db := newTestDB(t)
	svc := NewPairingService(db, NewReconcileService(db))
	userID := createTestUser(t, db, "ana")
	checking := createTestAccount(t, db, userID, "Checking")
	savings := createTestAccount(t, db, userID, "Savings")

	out, _, err := svc.CreateTransfer(userID, TransferInput{
		FromAccountID: checking, ToAccountID: savings, Amount: dec(t, "100"), Date: "2025-11-10",
	})
	require.NoError(t, err)

	removed, err := svc.DeleteTransfer(userID, out.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, countLiveTransactions(t, db, userID))

	assert.True(t, cachedBalance(t, db, checking).IsZero())
	assert.True(t, cachedBalance(t, db, savings).IsZero())
}

func TestDeleteTransferHealsOrphanedLeg(t *testing.T) {
	db := newTestDB(t)
	svc := NewPairingService(db, NewReconcileService(db))
	userID := createTestUser(t, db, "ana")
	checking := createTestAccount(t, db, userID, "Checking")
	savings := createTestAccount(t, db, userID, "Savings")

	out, in, err := svc.CreateTransfer(userID, TransferInput{
		FromAccountID: checking, ToAccountID: savings, Amount: dec(t, "100"), Date: "2025-11-10",
	})
	require.NoError(t, err)

	// Counterpart vanished behind the service's back.
	_, err = db.Exec("UPDATE transactions SET deleted_at = '2025-11-11 00:00:00' WHERE id = ?", in.ID)
	require.NoError(t, err)

	removed, err := svc.DeleteTransfer(userID, out.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "only the surviving leg is removed")
	assert.Equal(t, 0, countLiveTransactions(t, db, userID))
	assert.True(t, cachedBalance(t, db, checking).IsZero())
}

func TestTransferOwnershipIsolation(t *testing.T) {
	db := newTestDB(t)
	svc := NewPairingService(db, NewReconcileService(db))
	userID := createTestUser(t, db, "ana")
	intruder := createTestUser(t, db, "bruno")
	checking := createTestAccount(t, db, userID, "Checking")
	savings := createTestAccount(t, db, userID, "Savings")

	out, _, err := svc.CreateTransfer(userID, TransferInput{
		FromAccountID: checking, ToAccountID: savings, Amount: dec(t, "100"), Date: "2025-11-10",
	})
	require.NoError(t, err)

	// Another owner sees the leg as nonexistent, never as forbidden.
	_, err = svc.DeleteTransfer(intruder, out.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
