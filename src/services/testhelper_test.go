// backend/src/services/testhelper_test.go
package services

import (
	"database/sql"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/username/centsible/backend/src/logger"
	"github.com/username/centsible/backend/src/models"
	_ "modernc.org/sqlite"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

// newTestDB opens an in-memory database with the real schema and seed data
// applied. One connection max keeps the memory database alive and serializes
// writers the same way production does.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	schema, err := os.ReadFile("../../db/migrations/000001_init_schema.up.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	return db
}

func createTestUser(t *testing.T, db *sql.DB, username string) int64 {
	t.Helper()
	res, err := db.Exec(
		"INSERT INTO users (username, email, password_hash) VALUES (?, ?, 'x')",
		username, username+"@example.com")
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func createTestAccount(t *testing.T, db *sql.DB, userID int64, name string) int64 {
	t.Helper()
	res, err := db.Exec(
		"INSERT INTO accounts (user_id, name, currency, type, cached_balance) VALUES (?, ?, 'EUR', 'bank', '0')",
		userID, name)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func createTestCategory(t *testing.T, db *sql.DB, userID int64, name string, flow models.FlowType) int64 {
	t.Helper()
	res, err := db.Exec(
		"INSERT INTO categories (user_id, name, flow_type) VALUES (?, ?, ?)",
		userID, name, flow)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// seededCategoryID looks up one of the global categories created by the schema
// migration itself.
func seededCategoryID(t *testing.T, db *sql.DB, key string, flow models.FlowType) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(
		"SELECT id FROM categories WHERE user_id IS NULL AND key = ? AND flow_type = ?", key, flow,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func insertTestTransaction(t *testing.T, db *sql.DB, userID, accountID, categoryID int64, flow models.FlowType, amount, date string) int64 {
	t.Helper()
	res, err := db.Exec(
		"INSERT INTO transactions (user_id, account_id, category_id, flow_type, amount, date, description) VALUES (?, ?, ?, ?, ?, ?, '')",
		userID, accountID, categoryID, flow, amount, date)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func cachedBalance(t *testing.T, db *sql.DB, accountID int64) decimal.Decimal {
	t.Helper()
	var raw string
	require.NoError(t, db.QueryRow("SELECT cached_balance FROM accounts WHERE id = ?", accountID).Scan(&raw))
	d, err := decimal.NewFromString(raw)
	require.NoError(t, err)
	return d
}

func cachedConsumption(t *testing.T, db *sql.DB, budgetID int64) decimal.Decimal {
	t.Helper()
	var raw string
	require.NoError(t, db.QueryRow("SELECT cached_consumption FROM budgets WHERE id = ?", budgetID).Scan(&raw))
	d, err := decimal.NewFromString(raw)
	require.NoError(t, err)
	return d
}

func countLiveTransactions(t *testing.T, db *sql.DB, userID int64) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM transactions WHERE user_id = ? AND deleted_at IS NULL", userID).Scan(&n))
	return n
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func strPtr(s string) *string { return &s }
