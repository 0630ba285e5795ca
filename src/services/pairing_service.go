// backend/src/services/pairing_service.go
package services

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/username/centsible/backend/src/logger"
	"github.com/username/centsible/backend/src/models"
)

type pairingService struct {
	db         *sql.DB
	reconciler ReconcileService
}

// NewPairingService returns the pairing manager. It is the only component
// that writes paired_transaction_id / paired_template_id: both legs of a pair
// are always created, mutated and destroyed inside one database transaction.
func NewPairingService(db *sql.DB, reconciler ReconcileService) PairingService {
	return &pairingService{db: db, reconciler: reconciler}
}

func (s *pairingService) CreateTransfer(userID int64, in TransferInput) (*models.Transaction, *models.Transaction, error) {
	if !in.Amount.IsPositive() {
		return nil, nil, ErrInvalidAmount
	}
	if _, err := models.ParseDate(in.Date); err != nil {
		return nil, nil, ErrInvalidRange
	}
	if in.FromAccountID == in.ToAccountID {
		return nil, nil, ErrInvalidAccounts
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	if err := accountOwned(tx, userID, in.FromAccountID); err != nil {
		return nil, nil, ErrInvalidAccounts
	}
	if err := accountOwned(tx, userID, in.ToAccountID); err != nil {
		return nil, nil, ErrInvalidAccounts
	}

	// The source leg is always the outcome; the destination leg mirrors it.
	flowOut := models.FlowOutcome
	flowIn := flowOut.Opposite()
	catOut, err := systemCategoryID(tx, models.CategoryKeyTransfer, flowOut)
	if err != nil {
		return nil, nil, err
	}
	catIn, err := systemCategoryID(tx, models.CategoryKeyTransfer, flowIn)
	if err != nil {
		return nil, nil, err
	}

	res, err := tx.Exec(`
		INSERT INTO transactions (user_id, account_id, category_id, flow_type, amount, date, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, in.FromAccountID, catOut, flowOut, in.Amount.String(), in.Date, in.Description)
	if err != nil {
		return nil, nil, fmt.Errorf("inserting outcome leg: %w", err)
	}
	outID, err := res.LastInsertId()
	if err != nil {
		return nil, nil, err
	}

	res, err = tx.Exec(`
		INSERT INTO transactions (user_id, account_id, category_id, flow_type, amount, date, description, paired_transaction_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, in.ToAccountID, catIn, flowIn, in.Amount.String(), in.Date, in.Description, outID)
	if err != nil {
		return nil, nil, fmt.Errorf("inserting income leg: %w", err)
	}
	inID, err := res.LastInsertId()
	if err != nil {
		return nil, nil, err
	}

	if _, err := tx.Exec("UPDATE transactions SET paired_transaction_id = ? WHERE id = ?", inID, outID); err != nil {
		return nil, nil, fmt.Errorf("linking transfer legs: %w", err)
	}

	if _, err := s.reconciler.RecomputeAccountBalance(tx, userID, in.FromAccountID); err != nil {
		return nil, nil, err
	}
	if _, err := s.reconciler.RecomputeAccountBalance(tx, userID, in.ToAccountID); err != nil {
		return nil, nil, err
	}

	outLeg, err := getTransaction(tx, userID, outID)
	if err != nil {
		return nil, nil, err
	}
	inLeg, err := getTransaction(tx, userID, inID)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	logger.L.Info("Transfer created", "userID", userID, "outLeg", outID, "inLeg", inID, "amount", in.Amount.String())
	return outLeg, inLeg, nil
}

func (s *pairingService) UpdateTransfer(userID, legID int64, upd TransferUpdate) (*models.Transaction, *models.Transaction, error) {
	if upd.Amount != nil && !upd.Amount.IsPositive() {
		return nil, nil, ErrInvalidAmount
	}
	if upd.Date != nil {
		if _, err := models.ParseDate(*upd.Date); err != nil {
			return nil, nil, ErrInvalidRange
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	leg, err := getTransaction(tx, userID, legID)
	if err != nil {
		return nil, nil, err
	}
	if leg.PairedTransactionID == nil {
		return nil, nil, ErrNotATransfer
	}
	pair, err := getTransaction(tx, userID, *leg.PairedTransactionID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, ErrOrphanPair
	}
	if err != nil {
		return nil, nil, err
	}

	// Only amount/date/description are mutable on a transfer; both legs get
	// the identical values.
	for _, id := range []int64{leg.ID, pair.ID} {
		if upd.Amount != nil {
			if _, err := tx.Exec("UPDATE transactions SET amount = ? WHERE id = ?", upd.Amount.String(), id); err != nil {
				return nil, nil, err
			}
		}
		if upd.Date != nil {
			if _, err := tx.Exec("UPDATE transactions SET date = ? WHERE id = ?", *upd.Date, id); err != nil {
				return nil, nil, err
			}
		}
		if upd.Description != nil {
			if _, err := tx.Exec("UPDATE transactions SET description = ? WHERE id = ?", *upd.Description, id); err != nil {
				return nil, nil, err
			}
		}
	}

	if _, err := s.reconciler.RecomputeAccountBalance(tx, userID, leg.AccountID); err != nil {
		return nil, nil, err
	}
	if _, err := s.reconciler.RecomputeAccountBalance(tx, userID, pair.AccountID); err != nil {
		return nil, nil, err
	}

	updatedLeg, err := getTransaction(tx, userID, leg.ID)
	if err != nil {
		return nil, nil, err
	}
	updatedPair, err := getTransaction(tx, userID, pair.ID)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return updatedLeg, updatedPair, nil
}

func (s *pairingService) DeleteTransfer(userID, legID int64) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	leg, err := getTransaction(tx, userID, legID)
	if err != nil {
		return 0, err
	}
	if leg.PairedTransactionID == nil {
		return 0, ErrNotATransfer
	}

	now := currentTimestamp()
	removed := 0

	pair, err := getTransaction(tx, userID, *leg.PairedTransactionID)
	switch {
	case errors.Is(err, ErrNotFound):
		// Corrupted pair: delete what exists and clear the dangling
		// reference instead of failing destructively.
		logger.L.Warn("Deleting orphaned transfer leg, counterpart missing",
			"userID", userID, "legID", leg.ID, "missingPairID", *leg.PairedTransactionID)
		if _, err := tx.Exec(
			"UPDATE transactions SET deleted_at = ?, paired_transaction_id = NULL WHERE id = ?", now, leg.ID); err != nil {
			return 0, err
		}
		removed = 1
	case err != nil:
		return 0, err
	default:
		if _, err := tx.Exec("UPDATE transactions SET deleted_at = ? WHERE id IN (?, ?)", now, leg.ID, pair.ID); err != nil {
			return 0, err
		}
		removed = 2
		if _, err := s.reconciler.RecomputeAccountBalance(tx, userID, pair.AccountID); err != nil {
			return 0, err
		}
	}

	if _, err := s.reconciler.RecomputeAccountBalance(tx, userID, leg.AccountID); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logger.L.Info("Transfer deleted", "userID", userID, "legID", legID, "legsRemoved", removed)
	return removed, nil
}

func (s *pairingService) CreateRecurringTransfer(userID int64, in RecurringTransferInput) (*models.RecurringTemplate, *models.RecurringTemplate, error) {
	if !in.Amount.IsPositive() {
		return nil, nil, ErrInvalidAmount
	}
	if in.FromAccountID == in.ToAccountID {
		return nil, nil, ErrInvalidAccounts
	}
	if err := ValidateScheduleInput(in.ScheduleInput); err != nil {
		return nil, nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	if err := accountOwned(tx, userID, in.FromAccountID); err != nil {
		return nil, nil, ErrInvalidAccounts
	}
	if err := accountOwned(tx, userID, in.ToAccountID); err != nil {
		return nil, nil, ErrInvalidAccounts
	}

	flowOut := models.FlowOutcome
	flowIn := flowOut.Opposite()
	catOut, err := systemCategoryID(tx, models.CategoryKeyTransfer, flowOut)
	if err != nil {
		return nil, nil, err
	}
	catIn, err := systemCategoryID(tx, models.CategoryKeyTransfer, flowIn)
	if err != nil {
		return nil, nil, err
	}

	insert := func(accountID, categoryID int64, flow models.FlowType, pairedID *int64) (int64, error) {
		res, err := tx.Exec(`
			INSERT INTO recurring_templates
				(user_id, account_id, category_id, flow_type, amount, description,
				 frequency, interval, by_weekday, by_monthday, start_date, next_run_date, end_date, paired_template_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			userID, accountID, categoryID, flow, in.Amount.String(), in.Description,
			in.Frequency, in.Interval, models.FormatDaySet(in.ByWeekday), models.FormatDaySet(in.ByMonthday),
			in.StartDate, in.StartDate, in.EndDate, pairedID)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}

	outID, err := insert(in.FromAccountID, catOut, flowOut, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("inserting outcome template: %w", err)
	}
	inID, err := insert(in.ToAccountID, catIn, flowIn, &outID)
	if err != nil {
		return nil, nil, fmt.Errorf("inserting income template: %w", err)
	}
	if _, err := tx.Exec("UPDATE recurring_templates SET paired_template_id = ? WHERE id = ?", inID, outID); err != nil {
		return nil, nil, fmt.Errorf("linking recurring transfer templates: %w", err)
	}

	outTpl, err := getTemplate(tx, userID, outID)
	if err != nil {
		return nil, nil, err
	}
	inTpl, err := getTemplate(tx, userID, inID)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	logger.L.Info("Recurring transfer created", "userID", userID, "outTemplate", outID, "inTemplate", inID)
	return outTpl, inTpl, nil
}

func (s *pairingService) DeleteRecurringTransfer(userID, templateID int64) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	tpl, err := getTemplate(tx, userID, templateID)
	if err != nil {
		return 0, err
	}
	if tpl.PairedTemplateID == nil {
		return 0, ErrNotATransfer
	}

	now := currentTimestamp()
	removed := 0

	pair, err := getTemplate(tx, userID, *tpl.PairedTemplateID)
	switch {
	case errors.Is(err, ErrNotFound):
		logger.L.Warn("Deleting orphaned recurring-transfer template, counterpart missing",
			"userID", userID, "templateID", tpl.ID, "missingPairID", *tpl.PairedTemplateID)
		if _, err := tx.Exec(
			"UPDATE recurring_templates SET deleted_at = ?, is_active = 0, paired_template_id = NULL WHERE id = ?",
			now, tpl.ID); err != nil {
			return 0, err
		}
		removed = 1
	case err != nil:
		return 0, err
	default:
		if _, err := tx.Exec(
			"UPDATE recurring_templates SET deleted_at = ?, is_active = 0 WHERE id IN (?, ?)",
			now, tpl.ID, pair.ID); err != nil {
			return 0, err
		}
		removed = 2
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logger.L.Info("Recurring transfer deleted", "userID", userID, "templateID", templateID, "templatesRemoved", removed)
	return removed, nil
}
