// backend/src/services/recurring_service.go
package services

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/username/centsible/backend/src/logger"
	"github.com/username/centsible/backend/src/models"
)

type recurringService struct {
	db         *sql.DB
	reconciler ReconcileService

	// One mutex per owner. Two Sync calls for the same owner would otherwise
	// read the same stale cursor and double-materialize; this is the one spot
	// that needs true mutual exclusion.
	ownerLocks sync.Map // int64 -> *sync.Mutex
}

// NewRecurringService returns the materializer. It is the only writer of
// next_run_date.
func NewRecurringService(db *sql.DB, reconciler ReconcileService) RecurringService {
	return &recurringService{db: db, reconciler: reconciler}
}

func (s *recurringService) lockOwner(userID int64) func() {
	v, _ := s.ownerLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *recurringService) CreateTemplate(userID int64, in TemplateInput) (*models.RecurringTemplate, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !in.FlowType.Valid() {
		return nil, fmt.Errorf("%w: unknown flow type %q", ErrInvalidSchedule, in.FlowType)
	}
	if err := ValidateScheduleInput(in.ScheduleInput); err != nil {
		return nil, err
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

	res, err := tx.Exec(`
		INSERT INTO recurring_templates
			(user_id, account_id, category_id, flow_type, amount, description,
			 frequency, interval, by_weekday, by_monthday, start_date, next_run_date, end_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, in.AccountID, in.CategoryID, in.FlowType, in.Amount.String(), in.Description,
		in.Frequency, in.Interval, models.FormatDaySet(in.ByWeekday), models.FormatDaySet(in.ByMonthday),
		in.StartDate, in.StartDate, in.EndDate)
	if err != nil {
		return nil, fmt.Errorf("inserting recurring template: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	tpl, err := getTemplate(tx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return tpl, nil
}

// SetTemplateActive pauses or resumes a template. Paired templates move
// together. The cursor is never touched here.
func (s *recurringService) SetTemplateActive(userID, templateID int64, active bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tpl, err := getTemplate(tx, userID, templateID)
	if err != nil {
		return err
	}
	ids := []int64{tpl.ID}
	if tpl.PairedTemplateID != nil {
		ids = append(ids, *tpl.PairedTemplateID)
	}
	for _, id := range ids {
		if _, err := tx.Exec(
			"UPDATE recurring_templates SET is_active = ? WHERE id = ? AND user_id = ? AND deleted_at IS NULL",
			active, id, userID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Sync materializes every due template of one owner up to asOf. Each template
// (or template pair) is one database transaction: it either writes its whole
// occurrence batch plus the advanced cursor, or nothing. Re-running Sync with
// no intervening state change creates zero additional transactions because
// the cursor has already advanced past every due occurrence.
func (s *recurringService) Sync(userID int64, asOf string) (*SyncResult, error) {
	asOfDate, err := models.ParseDate(asOf)
	if err != nil {
		return nil, ErrInvalidRange
	}

	unlock := s.lockOwner(userID)
	defer unlock()

	dueIDs, err := collectIDs(s.db,
		`SELECT id FROM recurring_templates
		 WHERE user_id = ? AND deleted_at IS NULL AND is_active = 1 AND next_run_date <= ?
		 ORDER BY id`, userID, asOf)
	if err != nil {
		return nil, fmt.Errorf("listing due templates: %w", err)
	}

	result := &SyncResult{}
	processed := make(map[int64]bool)

	for _, id := range dueIDs {
		if processed[id] {
			continue
		}
		created, err := s.materializeTemplate(userID, id, asOfDate, processed)
		if err != nil {
			// One template's failure must not abort the batch.
			logger.L.Warn("Template materialization failed", "userID", userID, "templateID", id, "error", err)
			result.Failures = append(result.Failures, TemplateFailure{TemplateID: id, Reason: err.Error()})
			continue
		}
		result.TemplatesProcessed++
		result.TransactionsCreated += created
	}

	logger.L.Info("Recurring sync finished", "userID", userID, "asOf", asOf,
		"templatesProcessed", result.TemplatesProcessed,
		"transactionsCreated", result.TransactionsCreated,
		"failures", len(result.Failures))
	return result, nil
}

// materializeTemplate handles one template (and its paired counterpart, if
// any) inside a single transaction.
func (s *recurringService) materializeTemplate(userID, templateID int64, asOf time.Time, processed map[int64]bool) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	tpl, err := getTemplate(tx, userID, templateID)
	if err != nil {
		return 0, err
	}
	processed[tpl.ID] = true
	if !tpl.IsActive {
		return 0, nil
	}

	sched, err := scheduleFromTemplate(tpl)
	if err != nil {
		return 0, err
	}

	var pair *models.RecurringTemplate
	if tpl.PairedTemplateID != nil {
		pair, err = getTemplate(tx, userID, *tpl.PairedTemplateID)
		if errors.Is(err, ErrNotFound) {
			// Self-heal a corrupted pair: materialize single-legged from
			// here on instead of failing the template forever.
			logger.L.Warn("Paired template missing, clearing dangling reference",
				"userID", userID, "templateID", tpl.ID, "missingPairID", *tpl.PairedTemplateID)
			if _, err := tx.Exec(
				"UPDATE recurring_templates SET paired_template_id = NULL WHERE id = ?", tpl.ID); err != nil {
				return 0, err
			}
			pair = nil
		} else if err != nil {
			return 0, err
		} else {
			processed[pair.ID] = true
		}
	}

	cursor, err := models.ParseDate(tpl.NextRunDate)
	if err != nil {
		return 0, fmt.Errorf("%w: bad cursor %q", ErrInvalidSchedule, tpl.NextRunDate)
	}
	if cursor.After(asOf) {
		return 0, nil
	}

	until := asOf
	if tpl.EndDate != nil {
		end, err := models.ParseDate(*tpl.EndDate)
		if err != nil {
			return 0, fmt.Errorf("%w: bad end_date %q", ErrInvalidSchedule, *tpl.EndDate)
		}
		if end.Before(until) {
			until = end
		}
	}

	occurrences := sched.OccurrencesBetween(cursor, until)

	created := 0
	for _, occ := range occurrences {
		date := models.FormatDate(occ)
		if pair == nil {
			if _, err := insertMaterialized(tx, tpl, date, nil); err != nil {
				return 0, err
			}
			created++
			continue
		}
		// Paired recurring transfer: both legs for every shared occurrence,
		// linked exactly like a direct transfer.
		firstID, err := insertMaterialized(tx, tpl, date, nil)
		if err != nil {
			return 0, err
		}
		secondID, err := insertMaterialized(tx, pair, date, &firstID)
		if err != nil {
			return 0, err
		}
		if _, err := tx.Exec("UPDATE transactions SET paired_transaction_id = ? WHERE id = ?", secondID, firstID); err != nil {
			return 0, err
		}
		created += 2
	}

	newCursor, active := s.advanceCursor(sched, tpl, cursor, occurrences)

	ids := []int64{tpl.ID}
	if pair != nil {
		ids = append(ids, pair.ID)
	}
	for _, id := range ids {
		if _, err := tx.Exec(
			"UPDATE recurring_templates SET next_run_date = ?, is_active = ? WHERE id = ?",
			newCursor, active, id); err != nil {
			return 0, err
		}
	}

	if created > 0 {
		if _, err := s.reconciler.RecomputeAccountBalance(tx, userID, tpl.AccountID); err != nil {
			return 0, err
		}
		if err := s.reconciler.RecomputeBudgetsForCategory(tx, userID, tpl.CategoryID, models.FormatDate(asOf)); err != nil {
			return 0, err
		}
		if pair != nil {
			if _, err := s.reconciler.RecomputeAccountBalance(tx, userID, pair.AccountID); err != nil {
				return 0, err
			}
			if pair.CategoryID != tpl.CategoryID {
				if err := s.reconciler.RecomputeBudgetsForCategory(tx, userID, pair.CategoryID, models.FormatDate(asOf)); err != nil {
					return 0, err
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if !active {
		logger.L.Info("Template exhausted and deactivated", "userID", userID, "templateID", tpl.ID)
	}
	return created, nil
}

// advanceCursor computes the durable new cursor value and whether the
// template stays active. The cursor always lands on the earliest schedule
// date after everything materialized, so a repeated Sync is a no-op.
func (s *recurringService) advanceCursor(sched *Schedule, tpl *models.RecurringTemplate, cursor time.Time, occurrences []time.Time) (string, bool) {
	searchFrom := cursor
	if len(occurrences) > 0 {
		searchFrom = occurrences[len(occurrences)-1].AddDate(0, 0, 1)
	}

	next, ok := sched.NextFrom(searchFrom)
	if !ok {
		// No reachable occurrence at all; park the cursor just past the last
		// materialized date and retire the template.
		return models.FormatDate(searchFrom), false
	}
	if tpl.EndDate != nil && models.FormatDate(next) > *tpl.EndDate {
		return models.FormatDate(next), false
	}
	return models.FormatDate(next), true
}

func insertMaterialized(q Querier, tpl *models.RecurringTemplate, date string, pairedID *int64) (int64, error) {
	res, err := q.Exec(`
		INSERT INTO transactions
			(user_id, account_id, category_id, flow_type, amount, date, description, recurring_template_id, paired_transaction_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tpl.UserID, tpl.AccountID, tpl.CategoryID, tpl.FlowType, tpl.Amount.String(), date,
		tpl.Description, tpl.ID, pairedID)
	if err != nil {
		return 0, fmt.Errorf("materializing template %d for %s: %w", tpl.ID, date, err)
	}
	return res.LastInsertId()
}
