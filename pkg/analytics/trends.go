package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/period"
)

// Direction describes how a category's spending moved.
type Direction string

const (
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionStable Direction = "stable"
	DirectionSpike  Direction = "spike"
)

var (
	trendThreshold = decimal.NewFromInt(20)
	spikeFactor    = decimal.RequireFromString("1.5")
	three          = decimal.NewFromInt(3)
)

// Trend compares a category's spending this month with recent months.
type Trend struct {
	Category  api.Category    `json:"category"`
	ThisMonth decimal.Decimal `json:"this_month"`
	LastMonth decimal.Decimal `json:"last_month"`
	// ThreeMonthAvg averages this month and the two before it.
	ThreeMonthAvg decimal.Decimal `json:"three_month_avg"`
	PercentChange decimal.Decimal `json:"percent_change"`
	Direction     Direction       `json:"direction"`
}

// CategoryTrend computes the spending trend for one category.
func (a *Aggregator) CategoryTrend(ctx context.Context, household string, category api.Category, month time.Month, year int) (Trend, error) {
	if !category.Valid() {
		return Trend{}, fmt.Errorf("%w: unknown category %q", api.ErrValidation, category)
	}

	totals := make([]decimal.Decimal, 3)
	for i := range totals {
		start := a.monthStart(year, month, -i)
		total, err := a.spent(ctx, household, category, start, start.AddDate(0, 1, 0))
		if err != nil {
			return Trend{}, err
		}
		totals[i] = total
	}

	this, last := totals[0], totals[1]
	avg := this.Add(last).Add(totals[2]).Div(three)
	return Trend{
		Category:      category,
		ThisMonth:     this,
		LastMonth:     last,
		ThreeMonthAvg: avg.Round(percentPlaces),
		PercentChange: percentChange(this, last).Round(percentPlaces),
		Direction:     direction(this, last, avg),
	}, nil
}

func percentChange(this, last decimal.Decimal) decimal.Decimal {
	if !last.IsPositive() {
		return decimal.Zero
	}
	return this.Sub(last).Div(last).Mul(hundred)
}

func direction(this, last, avg decimal.Decimal) Direction {
	if this.GreaterThan(avg.Mul(spikeFactor)) {
		return DirectionSpike
	}
	change := percentChange(this, last)
	switch {
	case change.GreaterThan(trendThreshold):
		return DirectionUp
	case change.LessThan(trendThreshold.Neg()):
		return DirectionDown
	default:
		return DirectionStable
	}
}

// CategoryBreakdown splits a month's spending by category.
type CategoryBreakdown struct {
	ByCategory         map[api.Category]decimal.Decimal `json:"by_category"`
	Necessities        decimal.Decimal                  `json:"necessities"`
	Luxuries           decimal.Decimal                  `json:"luxuries"`
	NecessitiesPercent decimal.Decimal                  `json:"necessities_percent"`
	LuxuriesPercent    decimal.Decimal                  `json:"luxuries_percent"`
}

// Breakdown totals the month's expenses by category and separates
// necessities from everything else.
func (a *Aggregator) Breakdown(ctx context.Context, household string, month time.Month, year int) (CategoryBreakdown, error) {
	start, end := period.MonthRange(year, month, a.loc)
	expenses, err := a.expenses(ctx, household, "", start, end)
	if err != nil {
		return CategoryBreakdown{}, err
	}

	b := CategoryBreakdown{ByCategory: make(map[api.Category]decimal.Decimal)}
	for _, e := range expenses {
		b.ByCategory[e.Category] = b.ByCategory[e.Category].Add(e.Amount)
		if necessities[e.Category] {
			b.Necessities = b.Necessities.Add(e.Amount)
		} else {
			b.Luxuries = b.Luxuries.Add(e.Amount)
		}
	}

	if total := b.Necessities.Add(b.Luxuries); total.IsPositive() {
		b.NecessitiesPercent = b.Necessities.Div(total).Mul(hundred).Round(percentPlaces)
		b.LuxuriesPercent = hundred.Sub(b.NecessitiesPercent)
	}
	return b, nil
}

// MonthlySavings is one month of a savings report.
type MonthlySavings struct {
	Year       int             `json:"year"`
	Month      time.Month      `json:"month"`
	Income     decimal.Decimal `json:"income"`
	Expenses   decimal.Decimal `json:"expenses"`
	Difference decimal.Decimal `json:"difference"`
}

// SavingsReport covers the most recent months, oldest first.
type SavingsReport struct {
	Months []MonthlySavings `json:"months"`
	Total  decimal.Decimal  `json:"total"`
	// Trend is "improving" when the latest month saved more than the oldest.
	Trend string `json:"trend"`
}

// SavingsRate reports confirmed income against expenses for the last months
// months up to and including the month containing now.
func (a *Aggregator) SavingsRate(ctx context.Context, household string, now time.Time, months int) (SavingsReport, error) {
	if months <= 0 {
		months = defaultMonths
	}

	local := now.In(a.loc)
	report := SavingsReport{Months: make([]MonthlySavings, 0, months)}
	for i := months - 1; i >= 0; i-- {
		start := a.monthStart(local.Year(), local.Month(), -i)
		end := start.AddDate(0, 1, 0)

		income, err := a.confirmedIncome(ctx, household, start, end)
		if err != nil {
			return SavingsReport{}, err
		}
		spent, err := a.spent(ctx, household, "", start, end)
		if err != nil {
			return SavingsReport{}, err
		}

		diff := income.Sub(spent)
		report.Months = append(report.Months, MonthlySavings{
			Year:       start.Year(),
			Month:      start.Month(),
			Income:     income,
			Expenses:   spent,
			Difference: diff,
		})
		report.Total = report.Total.Add(diff)
	}

	report.Trend = "declining"
	if n := len(report.Months); n > 1 && report.Months[n-1].Difference.GreaterThan(report.Months[0].Difference) {
		report.Trend = "improving"
	}
	return report, nil
}

// YearTotals is one year of monthly spending.
type YearTotals struct {
	Year    int               `json:"year"`
	Total   decimal.Decimal   `json:"total"`
	ByMonth []decimal.Decimal `json:"by_month"`
}

// YearComparison compares spending in year with the year before.
type YearComparison struct {
	Current       YearTotals      `json:"current"`
	Previous      YearTotals      `json:"previous"`
	Difference    decimal.Decimal `json:"difference"`
	PercentChange decimal.Decimal `json:"percent_change"`
}

// CompareYears totals expenses month by month for year and year-1.
func (a *Aggregator) CompareYears(ctx context.Context, household string, year int) (YearComparison, error) {
	current, err := a.yearTotals(ctx, household, year)
	if err != nil {
		return YearComparison{}, err
	}
	previous, err := a.yearTotals(ctx, household, year-1)
	if err != nil {
		return YearComparison{}, err
	}

	return YearComparison{
		Current:       current,
		Previous:      previous,
		Difference:    current.Total.Sub(previous.Total),
		PercentChange: percentChange(current.Total, previous.Total).Round(percentPlaces),
	}, nil
}

func (a *Aggregator) yearTotals(ctx context.Context, household string, year int) (YearTotals, error) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, a.loc)
	expenses, err := a.expenses(ctx, household, "", start, start.AddDate(1, 0, 0))
	if err != nil {
		return YearTotals{}, err
	}

	totals := YearTotals{Year: year, ByMonth: make([]decimal.Decimal, 12)}
	for _, e := range expenses {
		m := e.PaidDate.Month() - 1
		totals.ByMonth[m] = totals.ByMonth[m].Add(e.Amount)
		totals.Total = totals.Total.Add(e.Amount)
	}
	return totals, nil
}
