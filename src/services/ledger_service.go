// backend/src/services/ledger_service.go
package services

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/username/centsible/backend/src/models"
)

type ledgerService struct {
	db         *sql.DB
	reconciler ReconcileService
}

// NewLedgerService returns the plain-transaction mutation path. Transfer legs
// are rejected here; they belong to the pairing service.
func NewLedgerService(db *sql.DB, reconciler ReconcileService) LedgerService {
	return &ledgerService{db: db, reconciler: reconciler}
}

func today() string {
	return models.FormatDate(time.Now().UTC())
}

func (s *ledgerService) CreateTransaction(userID int64, in TransactionInput) (*models.Transaction, error) {
	if in.Amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if !in.FlowType.Valid() {
		return nil, fmt.Errorf("%w: unknown flow type %q", ErrInvalidRange, in.FlowType)
	}
	if _, err := models.ParseDate(in.Date); err != nil {
		return nil, ErrInvalidRange
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := accountOwned(tx, userID, in.AccountID); err != nil {
		return nil, err
	}
	if err := categoryUsable(tx, userID, in.CategoryID, in.FlowType); err != nil {
		return nil, err
	}
	if in.InvoiceID != nil {
		var id int64
		err := tx.QueryRow(
			"SELECT id FROM invoices WHERE id = ? AND user_id = ? AND deleted_at IS NULL", *in.InvoiceID, userID,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
	}

	res, err := tx.Exec(`
		INSERT INTO transactions (user_id, account_id, category_id, flow_type, amount, date, description, invoice_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, in.AccountID, in.CategoryID, in.FlowType, in.Amount.String(), in.Date, in.Description, in.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("inserting transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if _, err := s.reconciler.RecomputeAccountBalance(tx, userID, in.AccountID); err != nil {
		return nil, err
	}
	if err := s.reconciler.RecomputeBudgetsForCategory(tx, userID, in.CategoryID, today()); err != nil {
		return nil, err
	}

	created, err := getTransaction(tx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

func (s *ledgerService) UpdateTransaction(userID, transactionID int64, upd TransactionUpdate) (*models.Transaction, error) {
	if upd.Amount != nil && upd.Amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if upd.Date != nil {
		if _, err := models.ParseDate(*upd.Date); err != nil {
			return nil, ErrInvalidRange
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	current, err := getTransaction(tx, userID, transactionID)
	if err != nil {
		return nil, err
	}
	if current.PairedTransactionID != nil {
		return nil, ErrPairedTransaction
	}

	if upd.CategoryID != nil {
		// Flow type is fixed; the replacement category must match it.
		if err := categoryUsable(tx, userID, *upd.CategoryID, current.FlowType); err != nil {
			return nil, err
		}
		if _, err := tx.Exec("UPDATE transactions SET category_id = ? WHERE id = ?", *upd.CategoryID, transactionID); err != nil {
			return nil, err
		}
	}
	if upd.Amount != nil {
		if _, err := tx.Exec("UPDATE transactions SET amount = ? WHERE id = ?", upd.Amount.String(), transactionID); err != nil {
			return nil, err
		}
	}
	if upd.Date != nil {
		if _, err := tx.Exec("UPDATE transactions SET date = ? WHERE id = ?", *upd.Date, transactionID); err != nil {
			return nil, err
		}
	}
	if upd.Description != nil {
		if _, err := tx.Exec("UPDATE transactions SET description = ? WHERE id = ?", *upd.Description, transactionID); err != nil {
			return nil, err
		}
	}

	if _, err := s.reconciler.RecomputeAccountBalance(tx, userID, current.AccountID); err != nil {
		return nil, err
	}
	if err := s.reconciler.RecomputeBudgetsForCategory(tx, userID, current.CategoryID, today()); err != nil {
		return nil, err
	}
	if upd.CategoryID != nil && *upd.CategoryID != current.CategoryID {
		if err := s.reconciler.RecomputeBudgetsForCategory(tx, userID, *upd.CategoryID, today()); err != nil {
			return nil, err
		}
	}

	updated, err := getTransaction(tx, userID, transactionID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *ledgerService) DeleteTransaction(userID, transactionID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	current, err := getTransaction(tx, userID, transactionID)
	if err != nil {
		return err
	}
	if current.PairedTransactionID != nil {
		return ErrPairedTransaction
	}

	if _, err := tx.Exec("UPDATE transactions SET deleted_at = ? WHERE id = ?", currentTimestamp(), transactionID); err != nil {
		return err
	}

	if _, err := s.reconciler.RecomputeAccountBalance(tx, userID, current.AccountID); err != nil {
		return err
	}
	if err := s.reconciler.RecomputeBudgetsForCategory(tx, userID, current.CategoryID, today()); err != nil {
		return err
	}
	return tx.Commit()
}
