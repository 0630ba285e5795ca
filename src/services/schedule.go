// backend/src/services/schedule.go
package services

import (
	"fmt"
	"time"

	"github.com/username/centsible/backend/src/models"
)

// Schedule is the parsed, validated recurrence rule of a template. Occurrence
// dates are anchored at Start: a date occurs when it falls on a period that is
// a whole multiple of Interval away from Start and satisfies the day
// constraint (or the anchor day when no constraint is set).
type Schedule struct {
	Frequency  models.Frequency
	Interval   int
	ByWeekday  []int // 0=Sunday .. 6=Saturday, weekly only
	ByMonthday []int // 1..31, monthly only
	Start      time.Time
}

// ValidateScheduleInput checks a schedule definition before it is stored.
func ValidateScheduleInput(in ScheduleInput) error {
	if !in.Frequency.ValidForTemplate() {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidSchedule, in.Frequency)
	}
	if in.Interval < 1 {
		return fmt.Errorf("%w: interval must be >= 1, got %d", ErrInvalidSchedule, in.Interval)
	}
	if len(in.ByWeekday) > 0 && in.Frequency != models.FrequencyWeekly {
		return fmt.Errorf("%w: by_weekday is only valid with weekly frequency", ErrInvalidSchedule)
	}
	if len(in.ByMonthday) > 0 && in.Frequency != models.FrequencyMonthly {
		return fmt.Errorf("%w: by_monthday is only valid with monthly frequency", ErrInvalidSchedule)
	}
	for _, d := range in.ByWeekday {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: weekday %d out of range 0-6", ErrInvalidSchedule, d)
		}
	}
	for _, d := range in.ByMonthday {
		if d < 1 || d > 31 {
			return fmt.Errorf("%w: monthday %d out of range 1-31", ErrInvalidSchedule, d)
		}
	}
	start, err := models.ParseDate(in.StartDate)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	if in.EndDate != nil {
		end, err := models.ParseDate(*in.EndDate)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		if end.Before(start) {
			return fmt.Errorf("%w: end_date precedes start_date", ErrInvalidSchedule)
		}
	}
	return nil
}

// scheduleFromTemplate builds the recurrence rule out of a stored template row.
func scheduleFromTemplate(t *models.RecurringTemplate) (*Schedule, error) {
	if !t.Frequency.ValidForTemplate() {
		return nil, fmt.Errorf("%w: unknown frequency %q", ErrInvalidSchedule, t.Frequency)
	}
	if t.Interval < 1 {
		return nil, fmt.Errorf("%w: interval must be >= 1, got %d", ErrInvalidSchedule, t.Interval)
	}
	byWeekday, err := models.ParseDaySet(t.ByWeekday)
	if err != nil {
		return nil, fmt.Errorf("%w: bad by_weekday: %v", ErrInvalidSchedule, err)
	}
	byMonthday, err := models.ParseDaySet(t.ByMonthday)
	if err != nil {
		return nil, fmt.Errorf("%w: bad by_monthday: %v", ErrInvalidSchedule, err)
	}
	start, err := models.ParseDate(t.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	return &Schedule{
		Frequency:  t.Frequency,
		Interval:   t.Interval,
		ByWeekday:  byWeekday,
		ByMonthday: byMonthday,
		Start:      start,
	}, nil
}

// Matches reports whether d is an occurrence date of the schedule.
func (s *Schedule) Matches(d time.Time) bool {
	if d.Before(s.Start) {
		return false
	}
	switch s.Frequency {
	case models.FrequencyDaily:
		return daysBetween(s.Start, d)%s.Interval == 0
	case models.FrequencyWeekly:
		weeks := daysBetween(weekStart(s.Start), weekStart(d)) / 7
		if weeks%s.Interval != 0 {
			return false
		}
		if len(s.ByWeekday) > 0 {
			return containsInt(s.ByWeekday, int(d.Weekday()))
		}
		return d.Weekday() == s.Start.Weekday()
	case models.FrequencyMonthly:
		months := (d.Year()-s.Start.Year())*12 + int(d.Month()) - int(s.Start.Month())
		if months%s.Interval != 0 {
			return false
		}
		if len(s.ByMonthday) > 0 {
			return containsInt(s.ByMonthday, d.Day())
		}
		return d.Day() == s.Start.Day()
	case models.FrequencyYearly:
		if (d.Year()-s.Start.Year())%s.Interval != 0 {
			return false
		}
		return d.Month() == s.Start.Month() && d.Day() == s.Start.Day()
	}
	return false
}

// NextFrom returns the first occurrence date >= from. The scan is bounded so
// that a schedule with no reachable occurrence (e.g. Feb 29 yearly with an
// interval that never lands on a leap year) reports ok=false instead of
// looping forever. A month or week whose day constraint has no matching day
// is skipped naturally by the scan.
func (s *Schedule) NextFrom(from time.Time) (time.Time, bool) {
	d := from
	if d.Before(s.Start) {
		d = s.Start
	}
	horizon := s.scanHorizonDays()
	for i := 0; i <= horizon; i++ {
		if s.Matches(d) {
			return d, true
		}
		d = d.AddDate(0, 0, 1)
	}
	return time.Time{}, false
}

// OccurrencesBetween lists every occurrence date in [from, to], in order.
func (s *Schedule) OccurrencesBetween(from, to time.Time) []time.Time {
	var out []time.Time
	cur := from
	for {
		next, ok := s.NextFrom(cur)
		if !ok || next.After(to) {
			return out
		}
		out = append(out, next)
		cur = next.AddDate(0, 0, 1)
	}
}

// scanHorizonDays bounds the day-by-day scan. Eight full periods covers every
// constraint gap that can legitimately occur (leap-day anniversaries included).
func (s *Schedule) scanHorizonDays() int {
	period := 1
	switch s.Frequency {
	case models.FrequencyWeekly:
		period = 7
	case models.FrequencyMonthly:
		period = 31
	case models.FrequencyYearly:
		period = 366
	}
	h := period * s.Interval * 8
	if h < 800 {
		h = 800
	}
	return h
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}

// weekStart truncates to the preceding Sunday, matching the 0=Sunday weekday
// convention of by_weekday.
func weekStart(d time.Time) time.Time {
	return d.AddDate(0, 0, -int(d.Weekday()))
}

func containsInt(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
