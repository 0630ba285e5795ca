// backend/src/services/scheduler.go
package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/username/centsible/backend/src/logger"
	"github.com/username/centsible/backend/src/models"
)

// SyncScheduler drives the materializer periodically for every owner with
// due templates. It has no delivery guarantee of its own; Sync's idempotency
// makes repeated or overlapping runs harmless.
type SyncScheduler struct {
	db        *sql.DB
	recurring RecurringService
	interval  time.Duration
	runAtBoot bool
}

func NewSyncScheduler(db *sql.DB, recurring RecurringService, interval time.Duration, runAtBoot bool) *SyncScheduler {
	return &SyncScheduler{db: db, recurring: recurring, interval: interval, runAtBoot: runAtBoot}
}

// Run blocks until ctx is cancelled. Call it from its own goroutine.
func (s *SyncScheduler) Run(ctx context.Context) {
	logger.L.Info("Recurring sync scheduler started", "interval", s.interval.String())
	if s.runAtBoot {
		s.tick()
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.L.Info("Recurring sync scheduler stopped")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *SyncScheduler) tick() {
	asOf := models.FormatDate(time.Now().UTC())
	owners, err := collectIDs(s.db, `
		SELECT DISTINCT user_id FROM recurring_templates
		WHERE deleted_at IS NULL AND is_active = 1 AND next_run_date <= ?`, asOf)
	if err != nil {
		logger.L.Error("Scheduler failed to list owners with due templates", "error", err)
		return
	}
	for _, owner := range owners {
		if _, err := s.recurring.Sync(owner, asOf); err != nil {
			// Per-owner failures never stop the batch.
			logger.L.Error("Scheduled sync failed for owner", "userID", owner, "error", err)
		}
	}
	if len(owners) > 0 {
		logger.L.Info("Scheduled recurring sync pass finished", "owners", len(owners), "asOf", asOf)
	}
}
