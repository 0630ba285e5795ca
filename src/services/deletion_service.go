// backend/src/services/deletion_service.go
package services

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/username/centsible/backend/src/logger"
	"github.com/username/centsible/backend/src/models"
)

type deletionService struct {
	db         *sql.DB
	reconciler ReconcileService
}

// NewDeletionService returns the deletion coordinator. Every removal runs in
// one transaction and never leaves a dangling or inconsistent reference.
func NewDeletionService(db *sql.DB, reconciler ReconcileService) DeletionService {
	return &deletionService{db: db, reconciler: reconciler}
}

// DeleteAccountReassign re-points every transaction and recurring template of
// the account to targetAccountID (same owner), then soft-deletes the account.
func (s *deletionService) DeleteAccountReassign(userID, accountID, targetAccountID int64) (*AccountDeletionResult, error) {
	if accountID == targetAccountID {
		return nil, ErrInvalidTarget
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := accountOwned(tx, userID, accountID); err != nil {
		return nil, err
	}
	if err := accountOwned(tx, userID, targetAccountID); err != nil {
		return nil, ErrInvalidTarget
	}

	res, err := tx.Exec(
		"UPDATE transactions SET account_id = ? WHERE account_id = ? AND user_id = ? AND deleted_at IS NULL",
		targetAccountID, accountID, userID)
	if err != nil {
		return nil, fmt.Errorf("reassigning transactions: %w", err)
	}
	txCount, _ := res.RowsAffected()

	res, err = tx.Exec(
		"UPDATE recurring_templates SET account_id = ? WHERE account_id = ? AND user_id = ? AND deleted_at IS NULL",
		targetAccountID, accountID, userID)
	if err != nil {
		return nil, fmt.Errorf("reassigning recurring templates: %w", err)
	}
	tplCount, _ := res.RowsAffected()

	now := currentTimestamp()
	if _, err := tx.Exec("UPDATE accounts SET deleted_at = ?, cached_balance = '0' WHERE id = ?", now, accountID); err != nil {
		return nil, err
	}

	if _, err := s.reconciler.RecomputeAccountBalance(tx, userID, targetAccountID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	logger.L.Info("Account deleted with reassignment", "userID", userID,
		"accountID", accountID, "targetAccountID", targetAccountID,
		"transactionsReassigned", txCount, "templatesReassigned", tplCount)
	return &AccountDeletionResult{
		TransactionsAffected: txCount,
		TemplatesAffected:    tplCount,
		AccountDeleted:       true,
	}, nil
}

// DeleteAccountCascade soft-deletes every transaction and recurring template
// of the account, clears pair pointers on the surviving counter-legs, then
// soft-deletes the account itself.
func (s *deletionService) DeleteAccountCascade(userID, accountID int64) (*AccountDeletionResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := accountOwned(tx, userID, accountID); err != nil {
		return nil, err
	}

	// Counter-accounts of transfers touching this account need their
	// balances refreshed after their legs lose the pairing.
	counterAccounts, err := collectIDs(tx, `
		SELECT DISTINCT other.account_id
		FROM transactions own
		JOIN transactions other ON other.id = own.paired_transaction_id
		WHERE own.account_id = ? AND own.user_id = ? AND other.account_id != ?`,
		accountID, userID, accountID)
	if err != nil {
		return nil, err
	}

	// Budgets watching the categories of the doomed transactions lose
	// consumption; remember the categories before the rows are hidden.
	affectedCategories, err := collectIDs(tx, `
		SELECT DISTINCT category_id FROM transactions
		WHERE account_id = ? AND user_id = ? AND deleted_at IS NULL`,
		accountID, userID)
	if err != nil {
		return nil, err
	}

	// Never leave a pair pointer aimed at a row that is about to be deleted.
	if _, err := tx.Exec(`
		UPDATE transactions SET paired_transaction_id = NULL
		WHERE user_id = ? AND account_id != ?
		  AND paired_transaction_id IN (SELECT id FROM transactions WHERE account_id = ?)`,
		userID, accountID, accountID); err != nil {
		return nil, fmt.Errorf("clearing dangling transaction pairs: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE recurring_templates SET paired_template_id = NULL
		WHERE user_id = ? AND account_id != ?
		  AND paired_template_id IN (SELECT id FROM recurring_templates WHERE account_id = ?)`,
		userID, accountID, accountID); err != nil {
		return nil, fmt.Errorf("clearing dangling template pairs: %w", err)
	}

	now := currentTimestamp()
	res, err := tx.Exec(
		"UPDATE transactions SET deleted_at = ? WHERE account_id = ? AND user_id = ? AND deleted_at IS NULL",
		now, accountID, userID)
	if err != nil {
		return nil, fmt.Errorf("cascading transactions: %w", err)
	}
	txCount, _ := res.RowsAffected()

	res, err = tx.Exec(
		"UPDATE recurring_templates SET deleted_at = ?, is_active = 0 WHERE account_id = ? AND user_id = ? AND deleted_at IS NULL",
		now, accountID, userID)
	if err != nil {
		return nil, fmt.Errorf("cascading recurring templates: %w", err)
	}
	tplCount, _ := res.RowsAffected()

	if _, err := tx.Exec("UPDATE accounts SET deleted_at = ?, cached_balance = '0' WHERE id = ?", now, accountID); err != nil {
		return nil, err
	}

	for _, counter := range counterAccounts {
		if _, err := s.reconciler.RecomputeAccountBalance(tx, userID, counter); err != nil {
			return nil, err
		}
	}
	for _, categoryID := range affectedCategories {
		if err := s.reconciler.RecomputeBudgetsForCategory(tx, userID, categoryID, today()); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	logger.L.Info("Account deleted with cascade", "userID", userID, "accountID", accountID,
		"transactionsDeleted", txCount, "templatesDeleted", tplCount)
	return &AccountDeletionResult{
		TransactionsAffected: txCount,
		TemplatesAffected:    tplCount,
		AccountDeleted:       true,
	}, nil
}

// DeleteCategory re-points referencing transactions and templates to the
// fallback (default: the flow-matching system "general" category), drops the
// budget links, then hard-deletes the category. System categories reject
// deletion unconditionally.
func (s *deletionService) DeleteCategory(userID, categoryID int64, fallbackCategoryID *int64) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var ownerID sql.NullInt64
	var flow models.FlowType
	err = tx.QueryRow("SELECT user_id, flow_type FROM categories WHERE id = ?", categoryID).Scan(&ownerID, &flow)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if !ownerID.Valid {
		return 0, ErrSystemCategoryImmutable
	}
	if ownerID.Int64 != userID {
		return 0, ErrNotFound
	}

	var fallback int64
	if fallbackCategoryID != nil {
		if err := categoryUsable(tx, userID, *fallbackCategoryID, flow); err != nil {
			return 0, err
		}
		if *fallbackCategoryID == categoryID {
			return 0, ErrInvalidTarget
		}
		fallback = *fallbackCategoryID
	} else {
		fallback, err = systemCategoryID(tx, models.CategoryKeyGeneral, flow)
		if err != nil {
			return 0, err
		}
	}

	// Budgets losing this category need their consumption refreshed once the
	// link is gone; remember them before the links are removed.
	unlinkedBudgets, err := collectIDs(tx,
		"SELECT budget_id FROM budget_categories WHERE category_id = ?", categoryID)
	if err != nil {
		return 0, err
	}

	if _, err := tx.Exec("DELETE FROM budget_categories WHERE category_id = ?", categoryID); err != nil {
		return 0, fmt.Errorf("removing budget links: %w", err)
	}

	res, err := tx.Exec(
		"UPDATE transactions SET category_id = ? WHERE category_id = ? AND user_id = ?",
		fallback, categoryID, userID)
	if err != nil {
		return 0, fmt.Errorf("reassigning transactions: %w", err)
	}
	reassigned, _ := res.RowsAffected()

	if _, err := tx.Exec(
		"UPDATE recurring_templates SET category_id = ? WHERE category_id = ? AND user_id = ?",
		fallback, categoryID, userID); err != nil {
		return 0, fmt.Errorf("reassigning recurring templates: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM categories WHERE id = ?", categoryID); err != nil {
		return 0, fmt.Errorf("deleting category: %w", err)
	}

	// Budgets linked to the fallback may now absorb the moved transactions.
	if err := s.reconciler.RecomputeBudgetsForCategory(tx, userID, fallback, today()); err != nil {
		return 0, err
	}
	for _, budgetID := range unlinkedBudgets {
		b, err := loadBudgetCycleFields(tx, userID, budgetID)
		if err != nil {
			return 0, err
		}
		winStart, winEnd, err := b.CycleWindow(mustParseDate(today()))
		if err != nil {
			logger.L.Warn("Skipping budget with invalid cycle definition", "budgetID", budgetID, "error", err)
			continue
		}
		if _, err := s.reconciler.RecomputeBudgetConsumption(tx, userID, budgetID, winStart, winEnd); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logger.L.Info("Category deleted", "userID", userID, "categoryID", categoryID,
		"fallbackCategoryID", fallback, "transactionsReassigned", reassigned)
	return reassigned, nil
}

// DeleteInvoice clears invoice_id on referencing transactions, soft-deletes
// the invoice, and removes the stored file.
func (s *deletionService) DeleteInvoice(userID, invoiceID int64) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var filePath string
	err = tx.QueryRow(
		"SELECT file_path FROM invoices WHERE id = ? AND user_id = ? AND deleted_at IS NULL", invoiceID, userID,
	).Scan(&filePath)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	res, err := tx.Exec(
		"UPDATE transactions SET invoice_id = NULL WHERE invoice_id = ? AND user_id = ?", invoiceID, userID)
	if err != nil {
		return 0, fmt.Errorf("detaching transactions from invoice: %w", err)
	}
	detached, _ := res.RowsAffected()

	if _, err := tx.Exec("UPDATE invoices SET deleted_at = ? WHERE id = ?", currentTimestamp(), invoiceID); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	// File removal happens after commit; a leftover file is recoverable, a
	// removed file with a rolled-back delete is not.
	if filePath != "" {
		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			logger.L.Warn("Failed to remove invoice file", "invoiceID", invoiceID, "path", filePath, "error", err)
		}
	}
	logger.L.Info("Invoice deleted", "userID", userID, "invoiceID", invoiceID, "transactionsDetached", detached)
	return detached, nil
}

// DeleteRecurringTemplate soft-deletes a template. If it is paired the caller
// may delete the counterpart in the same operation; otherwise the counterpart
// keeps running single-legged with its pair pointer cleared. Transactions
// already materialized are never touched.
func (s *deletionService) DeleteRecurringTemplate(userID, templateID int64, alsoDeletePair bool) (*TemplateDeletionResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	tpl, err := getTemplate(tx, userID, templateID)
	if err != nil {
		return nil, err
	}

	now := currentTimestamp()
	result := &TemplateDeletionResult{DeletedAt: now}

	if _, err := tx.Exec(
		"UPDATE recurring_templates SET deleted_at = ?, is_active = 0, paired_template_id = NULL WHERE id = ?",
		now, tpl.ID); err != nil {
		return nil, err
	}

	if tpl.PairedTemplateID != nil {
		if alsoDeletePair {
			if _, err := tx.Exec(
				"UPDATE recurring_templates SET deleted_at = ?, is_active = 0, paired_template_id = NULL WHERE id = ? AND user_id = ?",
				now, *tpl.PairedTemplateID, userID); err != nil {
				return nil, err
			}
			result.PairDeleted = true
		} else {
			if _, err := tx.Exec(
				"UPDATE recurring_templates SET paired_template_id = NULL WHERE id = ? AND user_id = ?",
				*tpl.PairedTemplateID, userID); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	logger.L.Info("Recurring template deleted", "userID", userID, "templateID", templateID, "pairDeleted", result.PairDeleted)
	return result, nil
}

// DeleteBudget removes the category links first, then soft-deletes the
// budget. Historical transactions are never affected.
func (s *deletionService) DeleteBudget(userID, budgetID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRow(
		"SELECT id FROM budgets WHERE id = ? AND user_id = ? AND deleted_at IS NULL", budgetID, userID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM budget_categories WHERE budget_id = ?", budgetID); err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE budgets SET deleted_at = ?, is_active = 0 WHERE id = ?", currentTimestamp(), budgetID); err != nil {
		return err
	}
	return tx.Commit()
}
