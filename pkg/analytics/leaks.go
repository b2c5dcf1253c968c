package analytics

import (
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeledger/pkg/api"
)

var (
	leakCeiling    = decimal.NewFromInt(100)
	leakCategories = map[api.Category]bool{
		api.CategoryEntertainment: true,
		api.CategorySubscriptions: true,
		api.CategoryHobbies:       true,
		api.CategoryOther:         true,
	}
	monthsPerYear = decimal.NewFromInt(12)

	weeklyPerMonth   = decimal.RequireFromString("4.33")
	biweeklyPerMonth = decimal.RequireFromString("2.17")
)

// Leaks lists small discretionary recurring bills that add up.
type Leaks struct {
	Rules        []api.ExpenseRule `json:"rules"`
	Count        int               `json:"count"`
	MonthlyTotal decimal.Decimal   `json:"monthly_total"`
	YearlyTotal  decimal.Decimal   `json:"yearly_total"`
}

// MoneyLeaks returns active monthly rules under 100 in a discretionary category.
func MoneyLeaks(rules []api.ExpenseRule) Leaks {
	leaks := Leaks{Rules: []api.ExpenseRule{}}
	for _, r := range rules {
		if !r.Active || r.Frequency != api.FrequencyMonthly {
			continue
		}
		if !r.ExpectedAmount.LessThan(leakCeiling) || !leakCategories[r.Category] {
			continue
		}
		leaks.Rules = append(leaks.Rules, r)
		leaks.MonthlyTotal = leaks.MonthlyTotal.Add(r.ExpectedAmount)
	}
	leaks.Count = len(leaks.Rules)
	leaks.YearlyTotal = leaks.MonthlyTotal.Mul(monthsPerYear)
	return leaks
}

// MonthlyIncome converts a recurring amount to its monthly equivalent.
// Irregular income has no projection.
func MonthlyIncome(amount decimal.Decimal, freq api.Frequency) decimal.Decimal {
	switch freq {
	case api.FrequencyWeekly:
		return amount.Mul(weeklyPerMonth)
	case api.FrequencyBiweekly:
		return amount.Mul(biweeklyPerMonth)
	case api.FrequencyMonthly:
		return amount
	default:
		return decimal.Zero
	}
}

// ProjectedMonthlyIncome sums the monthly equivalent of every active rule.
func ProjectedMonthlyIncome(rules []api.IncomeRule) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rules {
		if r.Active {
			total = total.Add(MonthlyIncome(r.Amount, r.Frequency))
		}
	}
	return total
}
