package api

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Category is one of the fixed expense categories.
type Category string

const (
	CategoryHousing        Category = "Housing"
	CategoryUtilities      Category = "Utilities"
	CategoryTransportation Category = "Transportation"
	CategoryGroceries      Category = "Groceries"
	CategoryInsurance      Category = "Insurance"
	CategoryDebtPayments   Category = "Debt Payments"
	CategoryHealthcare     Category = "Healthcare"
	CategoryEntertainment  Category = "Entertainment"
	CategoryDiningOut      Category = "Dining Out"
	CategoryClothing       Category = "Clothing"
	CategoryHobbies        Category = "Hobbies"
	CategorySubscriptions  Category = "Subscriptions"
	CategoryShopping       Category = "Shopping"
	CategoryOther          Category = "Other"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryHousing,
	CategoryUtilities,
	CategoryTransportation,
	CategoryGroceries,
	CategoryInsurance,
	CategoryDebtPayments,
	CategoryHealthcare,
	CategoryEntertainment,
	CategoryDiningOut,
	CategoryClothing,
	CategoryHobbies,
	CategorySubscriptions,
	CategoryShopping,
	CategoryOther,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return slices.Contains(Categories, c)
}

// Field limits.
const (
	MaxNameLength    = 100
	MaxNotesLength   = 500
	MaxReceiptLength = 5000
)

// MaxAmount is the largest amount accepted anywhere in the ledger.
var MaxAmount = decimal.RequireFromString("9999999.99")

// ValidateAmount checks that amount is within [0, MaxAmount].
func ValidateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	if amount.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: amount exceeds %s", ErrValidation, MaxAmount.StringFixed(2))
	}
	return nil
}

// ValidateName checks that name is non-blank and within MaxNameLength.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if utf8.RuneCountInString(trimmed) > MaxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrValidation, MaxNameLength)
	}
	return nil
}

// Validate checks an income rule before it is stored.
func (r *IncomeRule) Validate() error {
	if r.HouseholdID == "" {
		return fmt.Errorf("%w: household is required", ErrValidation)
	}
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	if err := ValidateAmount(r.Amount); err != nil {
		return err
	}
	switch r.Frequency {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		if r.NextPayday == nil {
			return fmt.Errorf("%w: next payday is required for %s income", ErrValidation, r.Frequency)
		}
	case FrequencyIrregular:
		if r.NextPayday != nil {
			return fmt.Errorf("%w: irregular income has no next payday", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown income frequency %q", ErrValidation, r.Frequency)
	}
	return nil
}

// Validate checks an expense rule before it is stored.
func (r *ExpenseRule) Validate() error {
	if r.HouseholdID == "" {
		return fmt.Errorf("%w: household is required", ErrValidation)
	}
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	if err := ValidateAmount(r.ExpectedAmount); err != nil {
		return err
	}
	if !r.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrValidation, r.Category)
	}
	if r.DueDay < 1 || r.DueDay > 31 {
		return fmt.Errorf("%w: due day must be between 1 and 31", ErrValidation)
	}
	switch r.Frequency {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyYearly:
	default:
		return fmt.Errorf("%w: unknown expense frequency %q", ErrValidation, r.Frequency)
	}
	return nil
}

// Validate checks a realized expense before it is stored.
func (e *Expense) Validate() error {
	if e.HouseholdID == "" {
		return fmt.Errorf("%w: household is required", ErrValidation)
	}
	if err := ValidateName(e.Name); err != nil {
		return err
	}
	if err := ValidateAmount(e.Amount); err != nil {
		return err
	}
	if !e.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrValidation, e.Category)
	}
	if utf8.RuneCountInString(e.Notes) > MaxNotesLength {
		return fmt.Errorf("%w: notes exceed %d characters", ErrValidation, MaxNotesLength)
	}
	if utf8.RuneCountInString(e.ReceiptText) > MaxReceiptLength {
		return fmt.Errorf("%w: receipt text exceeds %d characters", ErrValidation, MaxReceiptLength)
	}
	return nil
}
