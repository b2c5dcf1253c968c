package api

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr bool
	}{
		{"zero", "0", false},
		{"typical", "42.50", false},
		{"maximum", "9999999.99", false},
		{"negative", "-0.01", true},
		{"above maximum", "10000000.00", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAmount(decimal.RequireFromString(tc.amount))
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateAmount(%s) error = %v, wantErr %v", tc.amount, err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestIncomeRuleValidate(t *testing.T) {
	payday := time.Date(2026, 10, 24, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		rule    IncomeRule
		wantErr bool
	}{
		{
			name: "weekly with payday",
			rule: IncomeRule{HouseholdID: "h1", Name: "Salary", Amount: decimal.NewFromInt(1000), Frequency: FrequencyWeekly, NextPayday: &payday},
		},
		{
			name: "irregular without payday",
			rule: IncomeRule{HouseholdID: "h1", Name: "Gigs", Amount: decimal.NewFromInt(50), Frequency: FrequencyIrregular},
		},
		{
			name:    "monthly without payday",
			rule:    IncomeRule{HouseholdID: "h1", Name: "Salary", Amount: decimal.NewFromInt(1000), Frequency: FrequencyMonthly},
			wantErr: true,
		},
		{
			name:    "irregular with payday",
			rule:    IncomeRule{HouseholdID: "h1", Name: "Gigs", Amount: decimal.NewFromInt(50), Frequency: FrequencyIrregular, NextPayday: &payday},
			wantErr: true,
		},
		{
			name:    "yearly is not an income frequency",
			rule:    IncomeRule{HouseholdID: "h1", Name: "Bonus", Amount: decimal.NewFromInt(50), Frequency: FrequencyYearly, NextPayday: &payday},
			wantErr: true,
		},
		{
			name:    "blank name",
			rule:    IncomeRule{HouseholdID: "h1", Name: "  ", Amount: decimal.NewFromInt(50), Frequency: FrequencyIrregular},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rule.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestExpenseRuleValidate(t *testing.T) {
	base := ExpenseRule{
		HouseholdID:    "h1",
		Name:           "Rent",
		Category:       CategoryHousing,
		ExpectedAmount: decimal.NewFromInt(1200),
		DueDay:         1,
		Frequency:      FrequencyMonthly,
	}

	tests := []struct {
		name    string
		mutate  func(r *ExpenseRule)
		wantErr bool
	}{
		{"valid", func(r *ExpenseRule) {}, false},
		{"due day 31", func(r *ExpenseRule) { r.DueDay = 31 }, false},
		{"due day 0", func(r *ExpenseRule) { r.DueDay = 0 }, true},
		{"due day 32", func(r *ExpenseRule) { r.DueDay = 32 }, true},
		{"unknown category", func(r *ExpenseRule) { r.Category = "Boats" }, true},
		{"irregular frequency", func(r *ExpenseRule) { r.Frequency = FrequencyIrregular }, true},
		{"missing household", func(r *ExpenseRule) { r.HouseholdID = "" }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rule := base
			tc.mutate(&rule)
			err := rule.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestIsDomainError(t *testing.T) {
	if !IsDomainError(fmt.Errorf("getting occurrence: %w", ErrNotFound)) {
		t.Error("wrapped ErrNotFound should be a domain error")
	}
	if IsDomainError(errors.New("connection refused")) {
		t.Error("plain error should not be a domain error")
	}
}

func TestSeverityRank(t *testing.T) {
	order := []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("%s should outrank %s", order[i], order[i-1])
		}
	}
}
