// Package analytics aggregates the ledger into monthly financial summaries,
// category trends and savings reports.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/period"
)

// SpendingStatus grades expenses as a share of income.
type SpendingStatus string

const (
	StatusHealthy  SpendingStatus = "healthy"
	StatusWarning  SpendingStatus = "warning"
	StatusDanger   SpendingStatus = "danger"
	StatusCritical SpendingStatus = "critical"
)

const (
	percentPlaces = 2
	defaultMonths = 3
)

var (
	hundred      = decimal.NewFromInt(100)
	healthyLimit = decimal.NewFromInt(50)
	warningLimit = decimal.NewFromInt(75)
	dangerLimit  = hundred

	// necessities are the categories counted as essential spending.
	necessities = map[api.Category]bool{
		api.CategoryHousing:        true,
		api.CategoryUtilities:      true,
		api.CategoryTransportation: true,
		api.CategoryGroceries:      true,
		api.CategoryInsurance:      true,
		api.CategoryDebtPayments:   true,
		api.CategoryHealthcare:     true,
	}
)

// Summary is the dashboard view of one month.
type Summary struct {
	HouseholdID string     `json:"household_id"`
	Month       time.Month `json:"month"`
	Year        int        `json:"year"`
	// Income is the confirmed income for the month.
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	// UpcomingBills sums every pending expense occurrence, whatever its month.
	UpcomingBills decimal.Decimal `json:"upcoming_bills"`
	LeftThisMonth decimal.Decimal `json:"left_this_month"`
	AfterBills    decimal.Decimal `json:"after_bills"`
	Percentage    decimal.Decimal `json:"percentage"`
	Status        SpendingStatus  `json:"status"`
	Message       string          `json:"message"`
}

// Config holds aggregator settings.
type Config struct {
	// Location defines month boundaries. Defaults to UTC.
	Location *time.Location
}

// Aggregator computes read-only reports from the store.
type Aggregator struct {
	store  api.Store
	loc    *time.Location
	logger *slog.Logger
}

// New creates an aggregator.
func New(store api.Store, cfg Config, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Aggregator{store: store, loc: cfg.Location, logger: logger}
}

// Summarize builds the month's summary for a household.
func (a *Aggregator) Summarize(ctx context.Context, household string, month time.Month, year int) (Summary, error) {
	if month < time.January || month > time.December {
		return Summary{}, fmt.Errorf("%w: month %d out of range", api.ErrValidation, month)
	}

	start, end := period.MonthRange(year, month, a.loc)

	income, err := a.confirmedIncome(ctx, household, start, end)
	if err != nil {
		return Summary{}, err
	}
	spent, err := a.spent(ctx, household, "", start, end)
	if err != nil {
		return Summary{}, err
	}

	pending, err := a.store.ListOccurrences(ctx, api.OccurrenceFilter{
		HouseholdID: household,
		Kind:        api.KindExpense,
		Statuses:    []api.Status{api.StatusPending},
	})
	if err != nil {
		return Summary{}, fmt.Errorf("listing pending bills: %w", err)
	}
	upcoming := decimal.Zero
	for _, occ := range pending {
		upcoming = upcoming.Add(occ.ExpectedAmount)
	}

	status, pct := Status(spent, income)
	left := income.Sub(spent)

	return Summary{
		HouseholdID:   household,
		Month:         month,
		Year:          year,
		Income:        income,
		Expenses:      spent,
		UpcomingBills: upcoming,
		LeftThisMonth: left,
		AfterBills:    left.Sub(upcoming),
		Percentage:    pct,
		Status:        status,
		Message:       StatusMessage(status, pct),
	}, nil
}

// Status grades expenses against income and returns the percentage spent,
// rounded to two places. No income with any spending is critical; no income
// and no spending is healthy at zero percent.
func Status(expenses, income decimal.Decimal) (SpendingStatus, decimal.Decimal) {
	if !income.IsPositive() {
		if expenses.IsPositive() {
			return StatusCritical, decimal.Zero
		}
		return StatusHealthy, decimal.Zero
	}

	pct := expenses.Div(income).Mul(hundred)
	rounded := pct.Round(percentPlaces)
	switch {
	case pct.LessThanOrEqual(healthyLimit):
		return StatusHealthy, rounded
	case pct.LessThanOrEqual(warningLimit):
		return StatusWarning, rounded
	case pct.LessThanOrEqual(dangerLimit):
		return StatusDanger, rounded
	default:
		return StatusCritical, rounded
	}
}

// StatusMessage renders the dashboard headline for a status.
func StatusMessage(status SpendingStatus, pct decimal.Decimal) string {
	whole := pct.Round(0).IntPart()
	switch status {
	case StatusHealthy:
		return fmt.Sprintf("You're spending %d%% of your income. Keep it up.", whole)
	case StatusWarning:
		return fmt.Sprintf("You're spending %d%% of your income. You're barely saving anything.", whole)
	case StatusDanger:
		return fmt.Sprintf("⚠️ You're spending %d%% of your income. This cannot continue.", whole)
	case StatusCritical:
		return fmt.Sprintf("🔥 YOU'RE BLEEDING MONEY. You're spending %d%% of your income. Cut expenses NOW.", whole)
	default:
		return "Check your spending."
	}
}

func (a *Aggregator) confirmedIncome(ctx context.Context, household string, start, end time.Time) (decimal.Decimal, error) {
	occs, err := a.store.ListOccurrences(ctx, api.OccurrenceFilter{
		HouseholdID:   household,
		Kind:          api.KindIncome,
		Statuses:      []api.Status{api.StatusConfirmed},
		CreatedFrom:   start,
		CreatedBefore: end,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("listing confirmed income: %w", err)
	}
	total := decimal.Zero
	for _, occ := range occs {
		total = total.Add(occ.ExpectedAmount)
	}
	return total, nil
}

func (a *Aggregator) expenses(ctx context.Context, household string, category api.Category, start, end time.Time) ([]api.Expense, error) {
	out, err := a.store.ListExpenses(ctx, api.ExpenseFilter{
		HouseholdID: household,
		Category:    category,
		PaidFrom:    start,
		PaidBefore:  end,
	})
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	return out, nil
}

func (a *Aggregator) spent(ctx context.Context, household string, category api.Category, start, end time.Time) (decimal.Decimal, error) {
	expenses, err := a.expenses(ctx, household, category, start, end)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total, nil
}

// monthStart returns the first of the month offset months away from (year, month).
func (a *Aggregator) monthStart(year int, month time.Month, offset int) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, a.loc).AddDate(0, offset, 0)
}
