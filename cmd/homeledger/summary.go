package main

import (
	"fmt"
	"log/slog"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/export"
)

// runSummary prints a month's dashboard summary and, on request, trend,
// savings and leak reports.
func runSummary(logger *slog.Logger, args []string) error {
	fs, configPath := newFlags("summary")
	household := fs.String("household", "", "household ID (required)")
	month := fs.Int("month", 0, "month 1-12 (default: current)")
	year := fs.Int("year", 0, "year (default: current)")
	category := fs.String("category", "", "also show the spending trend for this category")
	savings := fs.Int("savings", 0, "also show savings over this many months")
	leaks := fs.Bool("leaks", false, "also list small recurring discretionary bills")
	asJSON := fs.Bool("json", false, "print the summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireHousehold(*household); err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	r, _, _, err := openRunner(ctx, *configPath)
	if err != nil {
		return err
	}
	defer r.Close()

	svc := r.Ledger()
	m, y, err := monthOrCurrent(*month, *year, svc.Now().In(svc.Location()))
	if err != nil {
		return err
	}

	summary, err := svc.DashboardSummary(ctx, *household, m, y)
	if err != nil {
		return err
	}
	if *asJSON {
		return export.JSON(stdout, summary)
	}

	fmt.Printf("=== %s %d (%s) ===\n", m, y, *household)
	fmt.Printf("Income:          $%s\n", summary.Income.StringFixed(2))
	fmt.Printf("Spent:           $%s\n", summary.Expenses.StringFixed(2))
	fmt.Printf("Upcoming bills:  $%s\n", summary.UpcomingBills.StringFixed(2))
	fmt.Printf("Left this month: $%s\n", summary.LeftThisMonth.StringFixed(2))
	fmt.Printf("After bills:     $%s\n", summary.AfterBills.StringFixed(2))
	fmt.Printf("Status:          %s (%s%%)\n", summary.Status, summary.Percentage.StringFixed(2))
	fmt.Printf("                 %s\n", summary.Message)

	if *category != "" {
		trend, err := svc.CategoryTrend(ctx, *household, api.Category(*category), m, y)
		if err != nil {
			return err
		}
		fmt.Println()
		fmt.Printf("%s trend: %s\n", trend.Category, trend.Direction)
		fmt.Printf("  This month:      $%s\n", trend.ThisMonth.StringFixed(2))
		fmt.Printf("  Last month:      $%s\n", trend.LastMonth.StringFixed(2))
		fmt.Printf("  3-month average: $%s\n", trend.ThreeMonthAvg.StringFixed(2))
		fmt.Printf("  Change:          %s%%\n", trend.PercentChange.StringFixed(2))
	}

	if *savings > 0 {
		report, err := svc.SavingsRate(ctx, *household, *savings)
		if err != nil {
			return err
		}
		fmt.Println()
		fmt.Printf("Savings (%s):\n", report.Trend)
		for _, ms := range report.Months {
			fmt.Printf("  %s %d: $%s\n", ms.Month, ms.Year, ms.Difference.StringFixed(2))
		}
		fmt.Printf("  Total: $%s\n", report.Total.StringFixed(2))
	}

	if *leaks {
		l, err := svc.MoneyLeaks(ctx, *household)
		if err != nil {
			return err
		}
		fmt.Println()
		fmt.Printf("Money leaks: %d bills, $%s/month, $%s/year\n",
			l.Count, l.MonthlyTotal.StringFixed(2), l.YearlyTotal.StringFixed(2))
		for _, rule := range l.Rules {
			fmt.Printf("  %s (%s): $%s\n", rule.Name, rule.Category, rule.ExpectedAmount.StringFixed(2))
		}
	}

	return nil
}
