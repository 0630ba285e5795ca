package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Budget caps outcome spending over its linked categories per cycle.
// CachedConsumption is derived for the current cycle window; the reconciler
// is the only writer of it.
type Budget struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"user_id"`
	Name              string          `json:"name"`
	LimitAmount       decimal.Decimal `json:"limit_amount"`
	Frequency         Frequency       `json:"frequency"`
	Interval          int             `json:"interval"`
	StartDate         string          `json:"start_date"`
	EndDate           *string         `json:"end_date,omitempty"`
	IsActive          bool            `json:"is_active"`
	CachedConsumption decimal.Decimal `json:"cached_consumption"`
	DeletedAt         *string         `json:"deleted_at,omitempty"`
	CreatedAt         string          `json:"created_at"`
}

// BudgetCategory links a budget to a category it measures.
type BudgetCategory struct {
	BudgetID   int64 `json:"budget_id"`
	CategoryID int64 `json:"category_id"`
}

// CycleWindow computes the budget's cycle window containing asOf, as inclusive
// YYYY-MM-DD bounds. Cycles are anchored at StartDate and stepped by
// frequency*interval. For a "once" budget the window runs from StartDate to
// EndDate (or stays open-ended). If asOf is before StartDate the first cycle
// is returned; if EndDate caps the budget the window is clipped to it.
func (b *Budget) CycleWindow(asOf time.Time) (string, string, error) {
	start, err := ParseDate(b.StartDate)
	if err != nil {
		return "", "", err
	}
	interval := b.Interval
	if interval < 1 {
		interval = 1
	}

	var winStart, winEnd time.Time
	switch b.Frequency {
	case FrequencyOnce:
		winStart = start
		if b.EndDate != nil {
			winEnd, err = ParseDate(*b.EndDate)
			if err != nil {
				return "", "", err
			}
		} else {
			// Open-ended one-shot budget: measure everything from the start.
			winEnd = asOf
			if winEnd.Before(winStart) {
				winEnd = winStart
			}
		}
	case FrequencyDaily, FrequencyWeekly:
		step := interval
		if b.Frequency == FrequencyWeekly {
			step = 7 * interval
		}
		days := int(asOf.Sub(start).Hours() / 24)
		k := 0
		if days > 0 {
			k = days / step
		}
		winStart = start.AddDate(0, 0, k*step)
		winEnd = winStart.AddDate(0, 0, step-1)
	case FrequencyMonthly:
		k := monthsBetween(start, asOf) / interval
		if k < 0 {
			k = 0
		}
		winStart = addMonthsClamped(start, k*interval)
		winEnd = addMonthsClamped(start, (k+1)*interval).AddDate(0, 0, -1)
	case FrequencyYearly:
		k := monthsBetween(start, asOf) / (12 * interval)
		if k < 0 {
			k = 0
		}
		winStart = addMonthsClamped(start, k*interval*12)
		winEnd = addMonthsClamped(start, (k+1)*interval*12).AddDate(0, 0, -1)
	default:
		return "", "", fmt.Errorf("unknown budget frequency %q", b.Frequency)
	}

	if b.EndDate != nil {
		end, err := ParseDate(*b.EndDate)
		if err != nil {
			return "", "", err
		}
		if winEnd.After(end) {
			winEnd = end
		}
	}
	return FormatDate(winStart), FormatDate(winEnd), nil
}

// monthsBetween counts whole calendar months from a to b, negative when b
// precedes a's month. Day-of-month is honored so that e.g. Jan 15 -> Feb 14
// is still zero months. The anchor day is clamped to b's month length so a
// month-end anchor (Jan 31) counts Feb 28 as a full elapsed month, matching
// addMonthsClamped.
func monthsBetween(a, b time.Time) int {
	m := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if m > 0 {
		anchor := a.Day()
		if last := lastDayOfMonth(b); anchor > last {
			anchor = last
		}
		if b.Day() < anchor {
			m--
		}
	}
	return m
}

func lastDayOfMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// addMonthsClamped adds months without the time.AddDate overflow (Jan 31 + 1
// month must be Feb 28/29, never Mar 2/3).
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	last := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, 0, 0, 0, 0, t.Location())
}
