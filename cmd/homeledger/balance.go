package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/export"
	"github.com/ArionMiles/homeledger/pkg/period"
)

// runBalance prints or sets the running balance.
func runBalance(logger *slog.Logger, args []string) error {
	fs, configPath := newFlags("balance")
	household := fs.String("household", "", "household ID (required)")
	set := fs.String("set", "", "set the balance to this amount")
	reason := fs.String("reason", "", "reason recorded with -set")
	history := fs.Bool("history", false, "list the month's balance changes")
	daily := fs.Bool("daily", false, "print the closing balance of each day in the month")
	month := fs.Int("month", 0, "month 1-12 for -history and -daily (default: current)")
	year := fs.Int("year", 0, "year for -history and -daily (default: current)")
	asJSON := fs.Bool("json", false, "print JSON")
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

	if *set != "" {
		amount, err := decimal.NewFromString(*set)
		if err != nil {
			return fmt.Errorf("%w: balance %q is not a number", api.ErrValidation, *set)
		}
		entry, err := svc.AdjustBalance(ctx, *household, amount, *reason)
		if err != nil {
			return err
		}
		fmt.Printf("Balance set to $%s (%s$%s)\n", entry.Balance.StringFixed(2), sign(entry.Change), entry.Change.Abs().StringFixed(2))
		return nil
	}

	m, y, err := monthOrCurrent(*month, *year, svc.Now().In(svc.Location()))
	if err != nil {
		return err
	}

	switch {
	case *daily:
		days, err := svc.DailyBalance(ctx, *household, m, y)
		if err != nil {
			return err
		}
		if *asJSON {
			return export.JSON(stdout, days)
		}
		for _, d := range days {
			fmt.Printf("%s  $%s\n", period.DayKey(d.Date), d.Balance.StringFixed(2))
		}
		return nil

	case *history:
		start, end := period.MonthRange(y, m, svc.Location())
		entries, err := svc.BalanceHistory(ctx, *household, start, end)
		if err != nil {
			return err
		}
		if *asJSON {
			return export.JSON(stdout, entries)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WHEN\tCHANGE\tBALANCE\tTYPE\tREASON")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s%s\t%s\t%s\t%s\n",
				e.CreatedAt.In(svc.Location()).Format("2006-01-02 15:04"),
				sign(e.Change), e.Change.Abs().StringFixed(2),
				e.Balance.StringFixed(2), e.Type, e.Reason)
		}
		return tw.Flush()
	}

	b, err := svc.Balance(ctx, *household)
	if err != nil {
		return err
	}
	if *asJSON {
		return export.JSON(stdout, b)
	}
	fmt.Printf("Balance: $%s\n", b.Amount.StringFixed(2))
	return nil
}

func sign(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-"
	}
	return "+"
}
