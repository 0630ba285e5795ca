package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestBudgetCycleWindow(t *testing.T) {
	cases := []struct {
		name      string
		budget    Budget
		asOf      string
		wantStart string
		wantEnd   string
	}{
		{
			name:      "monthly current cycle",
			budget:    Budget{Frequency: FrequencyMonthly, Interval: 1, StartDate: "2025-01-10"},
			asOf:      "2025-03-20",
			wantStart: "2025-03-10",
			wantEnd:   "2025-04-09",
		},
		{
			name:      "monthly asOf before start returns first cycle",
			budget:    Budget{Frequency: FrequencyMonthly, Interval: 1, StartDate: "2025-06-01"},
			asOf:      "2025-01-15",
			wantStart: "2025-06-01",
			wantEnd:   "2025-06-30",
		},
		{
			name:      "quarterly cycles",
			budget:    Budget{Frequency: FrequencyMonthly, Interval: 3, StartDate: "2025-01-01"},
			asOf:      "2025-05-02",
			wantStart: "2025-04-01",
			wantEnd:   "2025-06-30",
		},
		{
			name:      "monthly anchored on the 31st clamps short months",
			budget:    Budget{Frequency: FrequencyMonthly, Interval: 1, StartDate: "2025-01-31"},
			asOf:      "2025-03-15",
			wantStart: "2025-02-28",
			wantEnd:   "2025-03-30",
		},
		{
			name:      "month-end anchor owns the clamped boundary day",
			budget:    Budget{Frequency: FrequencyMonthly, Interval: 1, StartDate: "2025-01-31"},
			asOf:      "2025-02-28",
			wantStart: "2025-02-28",
			wantEnd:   "2025-03-30",
		},
		{
			name:      "month-end anchor day before the clamped boundary",
			budget:    Budget{Frequency: FrequencyMonthly, Interval: 1, StartDate: "2025-01-31"},
			asOf:      "2025-02-27",
			wantStart: "2025-01-31",
			wantEnd:   "2025-02-27",
		},
		{
			name:      "weekly cycle",
			budget:    Budget{Frequency: FrequencyWeekly, Interval: 1, StartDate: "2025-11-03"},
			asOf:      "2025-11-12",
			wantStart: "2025-11-10",
			wantEnd:   "2025-11-16",
		},
		{
			name:      "daily interval",
			budget:    Budget{Frequency: FrequencyDaily, Interval: 10, StartDate: "2025-11-01"},
			asOf:      "2025-11-15",
			wantStart: "2025-11-11",
			wantEnd:   "2025-11-20",
		},
		{
			name:      "yearly cycle",
			budget:    Budget{Frequency: FrequencyYearly, Interval: 1, StartDate: "2024-07-01"},
			asOf:      "2025-08-15",
			wantStart: "2025-07-01",
			wantEnd:   "2026-06-30",
		},
		{
			name:      "yearly before the anniversary stays in the prior cycle",
			budget:    Budget{Frequency: FrequencyYearly, Interval: 1, StartDate: "2025-06-01"},
			asOf:      "2026-03-01",
			wantStart: "2025-06-01",
			wantEnd:   "2026-05-31",
		},
		{
			name:      "yearly leap-day anchor counts the clamped anniversary",
			budget:    Budget{Frequency: FrequencyYearly, Interval: 1, StartDate: "2024-02-29"},
			asOf:      "2025-02-28",
			wantStart: "2025-02-28",
			wantEnd:   "2026-02-27",
		},
		{
			name:      "once with end date",
			budget:    Budget{Frequency: FrequencyOnce, Interval: 1, StartDate: "2025-01-01", EndDate: strp("2025-12-31")},
			asOf:      "2025-06-01",
			wantStart: "2025-01-01",
			wantEnd:   "2025-12-31",
		},
		{
			name:      "once open-ended runs start through asOf",
			budget:    Budget{Frequency: FrequencyOnce, Interval: 1, StartDate: "2025-01-01"},
			asOf:      "2025-06-01",
			wantStart: "2025-01-01",
			wantEnd:   "2025-06-01",
		},
		{
			name:      "end date clips the window",
			budget:    Budget{Frequency: FrequencyMonthly, Interval: 1, StartDate: "2025-01-01", EndDate: strp("2025-03-15")},
			asOf:      "2025-03-10",
			wantStart: "2025-03-01",
			wantEnd:   "2025-03-15",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, err := tc.budget.CycleWindow(date(t, tc.asOf))
			require.NoError(t, err)
			assert.Equal(t, tc.wantStart, start)
			assert.Equal(t, tc.wantEnd, end)
		})
	}
}

func TestBudgetCycleWindowRejectsUnknownFrequency(t *testing.T) {
	b := Budget{Frequency: "fortnightly", Interval: 1, StartDate: "2025-01-01"}
	_, _, err := b.CycleWindow(date(t, "2025-02-01"))
	assert.Error(t, err)
}

func strp(s string) *string { return &s }
