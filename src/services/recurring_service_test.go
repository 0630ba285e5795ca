// backend/src/services/recurring_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/centsible/backend/src/models"
)

func TestCreateTemplateValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewRecurringService(db, NewReconcileService(db))
	userID := createTestUser(t, db, "ana")
	accountID := createTestAccount(t, db, userID, "Checking")
	categoryID := createTestCategory(t, db, userID, "Salary", models.FlowIncome)

	base := TemplateInput{
		AccountID:  accountID,
		CategoryID: categoryID,
		FlowType:   models.FlowIncome,
		Amount:     dec(t, "1200"),
		ScheduleInput: ScheduleInput{
			Frequency: models.FrequencyMonthly,
			Interval:  1,
			StartDate: "2025-11-01",
		},
	}

	t.Run("valid template starts with cursor at start date", func(t *testing.T) {
		tpl, err := svc.CreateTemplate(userID, base)
		require.NoError(t, err)
		assert.Equal(t, "2025-11-01", tpl.NextRunDate)
		assert.True(t, tpl.IsActive)
		assert.Equal(t, models.TemplateScheduled, tpl.State())
	})

	t.Run("non-positive amount rejected", func(t *testing.T) {
		in := base
		in.Amount = dec(t, "0")
		_, err := svc.CreateTemplate(userID, in)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("foreign account rejected", func(t *testing.T) {
		otherUser := createTestUser(t, db, "bruno")
		otherAccount := createTestAccount(t, db, otherUser, "Bruno Checking")
		in := base
		in.AccountID = otherAccount
		_, err := svc.CreateTemplate(userID, in)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("category flow mismatch rejected", func(t *testing.T) {
		in := base
		in.FlowType = models.FlowOutcome
		_, err := svc.CreateTemplate(userID, in)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("bad schedule rejected", func(t *testing.T) {
		in := base
		in.Interval = 0
		_, err := svc.CreateTemplate(userID, in)
		assert.ErrorIs(t, err, ErrInvalidSchedule)
	})
}

func TestSyncMaterializesMonthlyMonthdays(t *testing.T) {
	db := newTestDB(t)
	svc := NewRecurringService(db, NewReconcileService(db))
	userID := createTestUser(t, db, "ana")
	accountID := createTestAccount(t, db, userID, "Checking")
	categoryID := createTestCategory(t, db, userID, "Rent", models.FlowOutcome)

	tpl, err := svc.CreateTemplate(userID, TemplateInput{
		AccountID:  accountID,
		CategoryID: categoryID,
		FlowType:   models.FlowOutcome,
		Amount:     dec(t, "700.50"),
		ScheduleInput: ScheduleInput{
			Frequency:  models.FrequencyMonthly,
			Interval:   1,
			ByMonthday: []int{1, 15},
			StartDate:  "2025-11-01",
		},
	})
	require.NoError(t, err)

	result, err := svc.Sync(userID, "2025-12-16")
	require.NoError(t, err)
	assert.Equal(t, 1, result.TemplatesProcessed)
	assert.Equal(t, 4, result.TransactionsCreated)
	assert.Empty(t, result.Failures)

	rows, err := db.Query(
		"SELECT date FROM transactions WHERE recurring_template_id = ? ORDER BY date", tpl.ID)
	require.NoError(t, err)
	defer rows.Close()
	var dates []string
	for rows.Next() {
		var d string
		require.NoError(t, rows.Scan(&d))
		dates = append(dates, d)
	}
	assert.Equal(t, []string{"2025-11-01", "2025-11-15", "2025-12-01", "2025-12-15"}, dates)

	reloaded, err := getTemplate(db, userID, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01", reloaded.NextRunDate)
	assert.True(t, reloaded.IsActive)

	// Four outcome occurrences of 700.50 land on the cached balance.
	assert.True(t, cachedBalance(t, db, accountID).Equal(dec(t, "-2802")),
		"got %s", cachedBalance(t, db, accountID))
}

func TestSyncIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := NewRecurringService(db, NewReconcileService(db))
	userID := createTestUser(t, db, "ana")
	accountID := createTestAccount(t, db, userID, "Checking")
	categoryID := createTestCategory(t, db, userID, "Salary", models.FlowIncome)

	_, err := svc.CreateTemplate(userID, TemplateInput{
		AccountID:  accountID,
		CategoryID: categoryID,
		FlowType:   models.FlowIncome,
		Amount:     dec(t, "1000"),
		ScheduleInput: ScheduleInput{
			Frequency: models.FrequencyDaily,
			Interval:  1,
			StartDate: "2025-11-01",
		},
	})
	require.NoError(t, err)

	first, err := svc.Sync(userID, "2025-11-05")
	require.NoError(t, err)
	assert.Equal(t, 5, first.TransactionsCreated)

	second, err := svc.Sync(userID, "2025-11-05")
	require.NoError(t, err)
	assert.Equal(t, 0, second.TransactionsCreated)
	assert.Equal(t, 5, countLiveTransactions(t, db, userID))

	// A later asOf only materializes the gap.
	third, err := svc.Sync(userID, "2025-11-07")
	require.NoError(t, err)
	assert.Equal(t, 2, third.TransactionsCreated)
}

func TestSyncRefreshesLinkedBudgetConsumption(t *testing.T) {
	db := newTestDB(t)
	svc := NewRecurringService(db, NewReconcileService(db))
	userID := createTestUser(t, db, "ana")
	accountID := createTestAccount(t, db, userID, "Checking")
	groceries := createTestCategory(t, db, userID, "Groceries", models.FlowOutcome)

	res, err := db.Exec(`INSERT INTO budgets (user_id, name, limit_amount, frequency, interval, start_date)
		VALUES (?, 'Food', '400', 'monthly', 1, '2025-11-01')`, userID)
	require.NoError(t, err)
	budgetID, err := res.LastInsertId()
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO budget_categories (budget_id, category_id) VALUES (?, ?)", budgetID, groceries)
	require.NoError(t, err)

	_, err = svc.CreateTemplate(userID, TemplateInput{
		AccountID:  accountID,
		CategoryID: groceries,
		FlowType:   models.FlowOutcome,
		Amount:     dec(t, "100"),
		ScheduleInput: ScheduleInput{
			Frequency: models.FrequencyWeekly,
			Interval:  1,
			StartDate: "2025-11-03",
		},
	})
	require.NoError(t, err)

	result, err := svc.Sync(userID, "2025-11-17")
	require.NoError(t, err)
	assert.Equal(t, 3, result.TransactionsCreated) // Nov 3, 10, 17

	// The budget watching the template's category is current once Sync returns.
	assert.True(t, cachedConsumption(t, db, budgetID).Equal(dec(t, "300")),
		"got %s", cachedConsumption(t, db, budgetID))
	assert.True(t, cachedBalance(t, db, accountID).Equal(dec(t, "-300")))
}

func TestSyncBeforeStartDateIsNoop(t *testing.T) {
	db := newTestDB(t)
	svc := NewRecurringService(db, NewReconcileService(db))
	userID := createTestUser(t, db, "ana")
	accountID := createTestAccount(t, db, userID, "Checking")
	categoryID := createTestCategory(t, db, userID, "Salary", models.FlowIncome)

	_, err := svc.CreateTemplate(userID, TemplateInput{
		AccountID:  accountID,
		CategoryID: categoryID,
		FlowType:   models.FlowIncome,
		Amount:     dec(t, "1000"),
		ScheduleInput: ScheduleInput{
			Frequency: models.FrequencyMonthly,
			Interval:  1,
			StartDate: "2026-01-01",
		},
	})
	require.NoError(t, err)

	result, err := svc.Sync(userID, "2025-12-31")
	require.NoError(t, err)
	assert.Equal(t, 0, result.TemplatesProcessed)
	assert.Equal(t, 0, countLiveTransactions(t, db, userID))
}

func TestSyncRejectsBadAsOf(t *testing.T) {
	db := newTestDB(t)
	svc := NewRecurringService(db, NewReconcileService(db))
	userID := createTestUser(t, db, "ana")

	_, err := svc.Sync(userID, "16/12/2025")
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestSyncExhaustsTemplateAtEndDate(t *testing.T) {
	db := newTestDB(t)
	svc := NewRecurringService(db, NewReconcileService(db))
	userID := createTestUser(t, db, "ana")
	accountID := createTestAccount(t, db, userID, "Checking")
	categoryID := createTestCategory(t, db, userID, "Gym", models.FlowOutcome)

	tpl, err := svc.CreateTemplate(userID, TemplateInput{
		AccountID:  accountID,
		CategoryID: categoryID,
		FlowType:   models.FlowOutcome,
		Amount:     dec(t, "30"),
		ScheduleInput: ScheduleInput{
			Frequency: models.FrequencyMonthly,
			Interval:  1,
			StartDate: "2025-10-01",
			EndDate:   strPtr("2025-12-01"),
		},
	})
	require.NoError(t, err)

	result, err := svc.Sync(userID, "2026-02-01")
	require.NoError(t, err)
	assert.Equal(t, 3, result.TransactionsCreated) // Oct, Nov, Dec

	reloaded, err := getTemplate(db, userID, tpl.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsActive)
	assert.Equal(t, models.TemplateExhausted, reloaded.State())

	// A further sync changes nothing.
	again, err := svc.Sync(userID, "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 0, again.TransactionsCreated)
}

func TestSyncMaterializesRecurringTransferPairs(t *testing.T) {
	db := newTestDB(t)
	reconciler := NewReconcileService(db)
	recurring := NewRecurringService(db, reconciler)
	pairing := NewPairingService(db, reconciler)

	userID := createTestUser(t, db, "ana")
	checking := createTestAccount(t, db, userID, "Checking")
	savings := createTestAccount(t, db, userID, "Savings")

	outTpl, inTpl, err := pairing.CreateRecurringTransfer(userID, RecurringTransferInput{
		FromAccountID: checking,
		ToAccountID:   savings,
		Amount:        dec(t, "250"),
		Description:   "monthly savings",
		ScheduleInput: ScheduleInput{
			Frequency: models.FrequencyMonthly,
			Interval:  1,
			StartDate: "2025-11-01",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, outTpl.PairedTemplateID)
	require.Equal(t, inTpl.ID, *outTpl.PairedTemplateID)

	result, err := recurring.Sync(userID, "2025-12-15")
	require.NoError(t, err)
	assert.Equal(t, 1, result.TemplatesProcessed, "a pair counts as one unit of work")
	assert.Equal(t, 4, result.TransactionsCreated) // two occurrences, two legs each

	// Every materialized occurrence is a linked pair with symmetric legs.
	rows, err := db.Query(`
		SELECT a.date, a.flow_type, b.flow_type
		FROM transactions a JOIN transactions b ON b.id = a.paired_transaction_id
		WHERE a.recurring_template_id = ? ORDER BY a.date`, outTpl.ID)
	require.NoError(t, err)
	defer rows.Close()
	var pairCount int
	for rows.Next() {
		var date string
		var flowA, flowB models.FlowType
		require.NoError(t, rows.Scan(&date, &flowA, &flowB))
		assert.Equal(t, models.FlowOutcome, flowA)
		assert.Equal(t, models.FlowIncome, flowB)
		pairCount++
	}
	assert.Equal(t, 2, pairCount)

	assert.True(t, cachedBalance(t, db, checking).Equal(dec(t, "-500")))
	assert.True(t, cachedBalance(t, db, savings).Equal(dec(t, "500")))

	// Both cursors moved in lockstep.
	outReloaded, err := getTemplate(db, userID, outTpl.ID)
	require.NoError(t, err)
	inReloaded, err := getTemplate(db, userID, inTpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01", outReloaded.NextRunDate)
	assert.Equal(t, outReloaded.NextRunDate, inReloaded.NextRunDate)
}

func TestSyncIsolatesTemplateFailures(t *testing.T) {
	db := newTestDB(t)
	svc := NewRecurringService(db, NewReconcileService(db))
	userID := createTestUser(t, db, "ana")
	accountID := createTestAccount(t, db, userID, "Checking")
	categoryID := createTestCategory(t, db, userID, "Salary", models.FlowIncome)

	good, err := svc.CreateTemplate(userID, TemplateInput{
		AccountID:  accountID,
		CategoryID: categoryID,
		FlowType:   models.FlowIncome,
		Amount:     dec(t, "1000"),
		ScheduleInput: ScheduleInput{
			Frequency: models.FrequencyMonthly,
			Interval:  1,
			StartDate: "2025-11-01",
		},
	})
	require.NoError(t, err)

	// A row corrupted below the service layer must not block the batch.
	res, err := db.Exec(`
		INSERT INTO recurring_templates
			(user_id, account_id, category_id, flow_type, amount, description, frequency, interval, by_monthday, start_date, next_run_date)
		VALUES (?, ?, ?, 'income', '50', '', 'monthly', 1, 'not,a,day', '2025-11-01', '2025-11-01')`,
		userID, accountID, categoryID)
	require.NoError(t, err)
	brokenID, err := res.LastInsertId()
	require.NoError(t, err)

	result, err := svc.Sync(userID, "2025-11-30")
	require.NoError(t, err)
	assert.Equal(t, 1, result.TemplatesProcessed)
	assert.Equal(t, 1, result.TransactionsCreated)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, brokenID, result.Failures[0].TemplateID)

	reloaded, err := getTemplate(db, userID, good.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-12-01", reloaded.NextRunDate)
}

func TestSyncHealsDanglingTemplatePair(t *testing.T) {
	db := newTestDB(t)
	reconciler := NewReconcileService(db)
	recurring := NewRecurringService(db, reconciler)
	pairing := NewPairingService(db, reconciler)

	userID := createTestUser(t, db, "ana")
	checking := createTestAccount(t, db, userID, "Checking")
	savings := createTestAccount(t, db, userID, "Savings")

	outTpl, inTpl, err := pairing.CreateRecurringTransfer(userID, RecurringTransferInput{
		FromAccountID: checking,
		ToAccountID:   savings,
		Amount:        dec(t, "100"),
		ScheduleInput: ScheduleInput{
			Frequency: models.FrequencyMonthly,
			Interval:  1,
			StartDate: "2025-11-01",
		},
	})
	require.NoError(t, err)

	// Corrupt the pair: soft-delete the income template behind the service's back.
	_, err = db.Exec("UPDATE recurring_templates SET deleted_at = '2025-10-31 00:00:00', is_active = 0 WHERE id = ?", inTpl.ID)
	require.NoError(t, err)

	result, err := recurring.Sync(userID, "2025-11-01")
	require.NoError(t, err)
	assert.Equal(t, 1, result.TransactionsCreated, "survivor materializes single-legged")
	assert.Empty(t, result.Failures)

	reloaded, err := getTemplate(db, userID, outTpl.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.PairedTemplateID, "dangling pair pointer is cleared")
}

func TestSetTemplateActiveMovesPairTogether(t *testing.T) {
	db := newTestDB(t)
	reconciler := NewReconcileService(db)
	recurring := NewRecurringService(db, reconciler)
	pairing := NewPairingService(db, reconciler)

	userID := createTestUser(t, db, "ana")
	checking := createTestAccount(t, db, userID, "Checking")
	savings := createTestAccount(t, db, userID, "Savings")

	outTpl, inTpl, err := pairing.CreateRecurringTransfer(userID, RecurringTransferInput{
		FromAccountID: checking,
		ToAccountID:   savings,
		Amount:        dec(t, "100"),
		ScheduleInput: ScheduleInput{
			Frequency: models.FrequencyMonthly,
			Interval:  1,
			StartDate: "2025-11-01",
		},
	})
	require.NoError(t, err)

	require.NoError(t, recurring.SetTemplateActive(userID, outTpl.ID, false))

	for _, id := range []int64{outTpl.ID, inTpl.ID} {
		tpl, err := getTemplate(db, userID, id)
		require.NoError(t, err)
		assert.False(t, tpl.IsActive)
		assert.Equal(t, models.TemplatePaused, tpl.State())
	}

	// Paused templates are skipped by sync and keep their cursor.
	result, err := recurring.Sync(userID, "2025-12-15")
	require.NoError(t, err)
	assert.Equal(t, 0, result.TransactionsCreated)

	require.NoError(t, recurring.SetTemplateActive(userID, inTpl.ID, true))
	result, err = recurring.Sync(userID, "2025-12-15")
	require.NoError(t, err)
	assert.Equal(t, 4, result.TransactionsCreated, "resume materializes the backlog")
}
