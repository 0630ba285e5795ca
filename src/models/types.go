package models

import (
	"fmt"
	"time"
)

// DateLayout is the canonical storage format for all ledger dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date string into a UTC time at midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders a time as a YYYY-MM-DD date string.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FlowType marks the direction of a transaction relative to its account.
type FlowType string

const (
	FlowIncome  FlowType = "income"
	FlowOutcome FlowType = "outcome"
)

func (f FlowType) Valid() bool {
	return f == FlowIncome || f == FlowOutcome
}

// Opposite returns the counter flow, used for the second leg of a transfer.
func (f FlowType) Opposite() FlowType {
	if f == FlowIncome {
		return FlowOutcome
	}
	return FlowIncome
}

// Frequency is the repetition unit of recurring templates and budget cycles.
type Frequency string

const (
	FrequencyOnce    Frequency = "once" // budgets only
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// ValidForTemplate reports whether the frequency is allowed on a recurring template.
func (f Frequency) ValidForTemplate() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// ValidForBudget reports whether the frequency is allowed on a budget.
func (f Frequency) ValidForBudget() bool {
	return f == FrequencyOnce || f.ValidForTemplate()
}

// AccountType enumerates the supported account kinds.
type AccountType string

const (
	AccountCash       AccountType = "cash"
	AccountBank       AccountType = "bank"
	AccountCreditCard AccountType = "credit_card"
	AccountLoan       AccountType = "loan"
	AccountRemittance AccountType = "remittance"
	AccountCrypto     AccountType = "crypto"
	AccountInvestment AccountType = "investment"
)

func (a AccountType) Valid() bool {
	switch a {
	case AccountCash, AccountBank, AccountCreditCard, AccountLoan,
		AccountRemittance, AccountCrypto, AccountInvestment:
		return true
	}
	return false
}

// Stable keys of the seeded system categories.
const (
	CategoryKeyInitialBalance = "initial_balance"
	CategoryKeyTransfer       = "transfer"
	CategoryKeyGeneral        = "general"
	CategoryKeyBalanceUpdate  = "balance_update"
)
