package models

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// TemplateState is the explicit lifecycle state of a recurring template,
// derived from (is_active, deleted_at, end_date, next_run_date). Transitions
// happen only through the materializer and the deletion coordinator.
type TemplateState string

const (
	TemplateScheduled TemplateState = "scheduled"
	TemplatePaused    TemplateState = "paused"
	TemplateExhausted TemplateState = "exhausted"
	TemplateDeleted   TemplateState = "deleted"
)

// RecurringTemplate describes a transaction that materializes on a schedule.
// NextRunDate is the materializer's cursor and its only mutable scheduling
// field; it always sits between the last materialized occurrence (exclusive)
// and the next date satisfying the schedule (inclusive).
type RecurringTemplate struct {
	ID               int64           `json:"id"`
	UserID           int64           `json:"user_id"`
	AccountID        int64           `json:"account_id"`
	CategoryID       int64           `json:"category_id"`
	FlowType         FlowType        `json:"flow_type"`
	Amount           decimal.Decimal `json:"amount"`
	Description      string          `json:"description"`
	Frequency        Frequency       `json:"frequency"`
	Interval         int             `json:"interval"`
	ByWeekday        *string         `json:"by_weekday,omitempty"`  // CSV of 0-6, Sunday=0
	ByMonthday       *string         `json:"by_monthday,omitempty"` // CSV of 1-31
	StartDate        string          `json:"start_date"`
	NextRunDate      string          `json:"next_run_date"`
	EndDate          *string         `json:"end_date,omitempty"`
	IsActive         bool            `json:"is_active"`
	PairedTemplateID *int64          `json:"paired_template_id,omitempty"`
	DeletedAt        *string         `json:"deleted_at,omitempty"`
	CreatedAt        string          `json:"created_at"`
}

// State derives the explicit lifecycle state.
func (t *RecurringTemplate) State() TemplateState {
	switch {
	case t.DeletedAt != nil:
		return TemplateDeleted
	case !t.IsActive && t.EndDate != nil && *t.EndDate < t.NextRunDate:
		return TemplateExhausted
	case !t.IsActive:
		return TemplatePaused
	default:
		return TemplateScheduled
	}
}

// ParseDaySet parses a CSV day-constraint column ("1,15" etc). A nil or empty
// column means no constraint.
func ParseDaySet(csv *string) ([]int, error) {
	if csv == nil || strings.TrimSpace(*csv) == "" {
		return nil, nil
	}
	parts := strings.Split(*csv, ",")
	days := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		days = append(days, n)
	}
	return days, nil
}

// FormatDaySet renders a day set back into its CSV column form.
func FormatDaySet(days []int) *string {
	if len(days) == 0 {
		return nil
	}
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	s := strings.Join(parts, ",")
	return &s
}
