package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeledger/pkg/analytics"
	"github.com/ArionMiles/homeledger/pkg/api"
)

// DashboardSummary returns the month's income, spending and status.
func (s *Service) DashboardSummary(ctx context.Context, household string, month time.Month, year int) (analytics.Summary, error) {
	return s.aggregator.Summarize(ctx, household, month, year)
}

// CategoryTrend returns how spending in category moved this month.
func (s *Service) CategoryTrend(ctx context.Context, household string, category api.Category, month time.Month, year int) (analytics.Trend, error) {
	return s.aggregator.CategoryTrend(ctx, household, category, month, year)
}

// Breakdown splits the month's spending by category.
func (s *Service) Breakdown(ctx context.Context, household string, month time.Month, year int) (analytics.CategoryBreakdown, error) {
	return s.aggregator.Breakdown(ctx, household, month, year)
}

// SavingsRate reports savings over the last months months.
func (s *Service) SavingsRate(ctx context.Context, household string, months int) (analytics.SavingsReport, error) {
	return s.aggregator.SavingsRate(ctx, household, s.now(), months)
}

// CompareYears compares spending in year with the year before.
func (s *Service) CompareYears(ctx context.Context, household string, year int) (analytics.YearComparison, error) {
	return s.aggregator.CompareYears(ctx, household, year)
}

// MoneyLeaks lists the household's small discretionary recurring bills.
func (s *Service) MoneyLeaks(ctx context.Context, household string) (analytics.Leaks, error) {
	rules, err := s.ListExpenseRules(ctx, household)
	if err != nil {
		return analytics.Leaks{}, err
	}
	return analytics.MoneyLeaks(rules), nil
}

// ProjectedIncome estimates monthly income from the household's active rules.
func (s *Service) ProjectedIncome(ctx context.Context, household string) (decimal.Decimal, error) {
	rules, err := s.ListIncomeRules(ctx, household)
	if err != nil {
		return decimal.Zero, err
	}
	return analytics.ProjectedMonthlyIncome(rules), nil
}

// Report bundles everything exported for one month.
type Report struct {
	Summary   analytics.Summary           `json:"summary"`
	Breakdown analytics.CategoryBreakdown `json:"breakdown"`
	Expenses  []api.Expense               `json:"expenses"`
}

// MonthlyReport gathers the summary, breakdown and expenses of a month.
func (s *Service) MonthlyReport(ctx context.Context, household string, month time.Month, year int) (Report, error) {
	summary, err := s.DashboardSummary(ctx, household, month, year)
	if err != nil {
		return Report{}, err
	}
	breakdown, err := s.Breakdown(ctx, household, month, year)
	if err != nil {
		return Report{}, err
	}
	expenses, err := s.MonthExpenses(ctx, household, month, year)
	if err != nil {
		return Report{}, err
	}
	return Report{Summary: summary, Breakdown: breakdown, Expenses: expenses}, nil
}

var summarySeverity = map[analytics.SpendingStatus]api.Severity{
	analytics.StatusHealthy:  api.SeverityLow,
	analytics.StatusWarning:  api.SeverityMedium,
	analytics.StatusDanger:   api.SeverityHigh,
	analytics.StatusCritical: api.SeverityCritical,
}

// SendWeeklySummaries notifies every household of its month-to-date numbers.
// It returns how many summaries were sent. Each household is retried on its
// own, so one failing household never resends another's summary. When some
// households were notified and others could not be, the error wraps
// api.ErrPartialRun.
func (s *Service) SendWeeklySummaries(ctx context.Context) (int, error) {
	if s.notifier == nil {
		return 0, nil
	}

	households, err := s.Households(ctx)
	if err != nil {
		return 0, err
	}

	local := s.now().In(s.loc)
	sent := 0
	var errs []error
	for _, household := range households {
		summary, err := s.summarizeWithRetry(ctx, household, local.Month(), local.Year())
		if err != nil {
			s.logger.Warn("failed to summarize household", "household", household, "error", err)
			errs = append(errs, fmt.Errorf("summarizing %s: %w", household, err))
			continue
		}

		err = s.notifier.Notify(ctx, api.Notification{
			HouseholdID: household,
			Type:        api.NotifySummary,
			Severity:    summarySeverity[summary.Status],
			Message: fmt.Sprintf("Weekly summary: $%s spent of $%s confirmed income this month, $%s in bills still pending. %s",
				summary.Expenses.StringFixed(2),
				summary.Income.StringFixed(2),
				summary.UpcomingBills.StringFixed(2),
				summary.Message,
			),
		})
		if err != nil {
			s.logger.Warn("failed to send weekly summary", "household", household, "error", err)
			continue
		}
		sent++
	}

	s.logger.Info("weekly summaries sent", "count", sent, "households", len(households), "failed", len(errs))
	if len(errs) == 0 {
		return sent, nil
	}
	if sent > 0 {
		return sent, fmt.Errorf("%w: %w", api.ErrPartialRun, errors.Join(errs...))
	}
	return sent, errors.Join(errs...)
}

func (s *Service) summarizeWithRetry(ctx context.Context, household string, month time.Month, year int) (analytics.Summary, error) {
	var summary analytics.Summary
	err := retry.Do(
		func() error {
			var err error
			summary, err = s.DashboardSummary(ctx, household, month, year)
			return err
		},
		retry.RetryIf(func(err error) bool {
			return !api.IsDomainError(err) && !errors.Is(err, context.Canceled)
		}),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("summary attempt failed, retrying", "household", household, "attempt", n+1, "error", err)
		}),
		retry.Attempts(s.attempts),
		retry.Delay(s.retryDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	return summary, err
}
