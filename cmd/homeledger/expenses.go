package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/period"
)

// runEditExpense changes the name, category, amount or notes of an expense.
func runEditExpense(logger *slog.Logger, args []string) error {
	fs, configPath := newFlags("edit-expense")
	household := fs.String("household", "", "household ID (required)")
	name := fs.String("name", "", "new name")
	category := fs.String("category", "", "new category")
	amount := fs.String("amount", "", "new amount")
	notes := fs.String("notes", "", "new notes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireHousehold(*household); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: expected exactly one expense ID", api.ErrValidation)
	}

	u := api.ExpenseUpdate{ID: fs.Arg(0)}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			u.Name = name
		case "category":
			c := api.Category(*category)
			u.Category = &c
		case "notes":
			u.Notes = notes
		}
	})
	if *amount != "" {
		d, err := parseAmount(*amount)
		if err != nil {
			return err
		}
		u.Amount = &d
	}
	if u.Name == nil && u.Category == nil && u.Amount == nil && u.Notes == nil {
		return fmt.Errorf("%w: nothing to change", api.ErrValidation)
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	r, _, _, err := openRunner(ctx, *configPath)
	if err != nil {
		return err
	}
	defer r.Close()

	e, err := r.Ledger().UpdateExpense(ctx, *household, u)
	if err != nil {
		return err
	}
	fmt.Printf("Updated %q: %s, $%s.\n", e.Name, e.Category, e.Amount.StringFixed(2))
	return nil
}

// runHistory lists every occurrence a rule produced and the payments made
// against it.
func runHistory(logger *slog.Logger, args []string) error {
	fs, configPath := newFlags("history")
	household := fs.String("household", "", "household ID (required)")
	kind := fs.String("kind", string(api.KindExpense), "rule kind: income or expense")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireHousehold(*household); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: expected exactly one rule ID", api.ErrValidation)
	}
	ref := api.RuleRef{Kind: api.Kind(*kind), ID: fs.Arg(0)}

	ctx, cancel := signalContext(logger)
	defer cancel()

	r, _, _, err := openRunner(ctx, *configPath)
	if err != nil {
		return err
	}
	defer r.Close()
	svc := r.Ledger()

	occs, err := svc.RuleHistory(ctx, *household, ref)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PERIOD\tDUE\tEXPECTED\tSTATUS")
	for _, o := range occs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.Period, period.DayKey(o.DueDate), o.ExpectedAmount.StringFixed(2), o.Status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if ref.Kind != api.KindExpense {
		return nil
	}
	payments, err := svc.RulePayments(ctx, *household, ref.ID)
	if err != nil {
		return err
	}
	fmt.Printf("\n%d payments\n", len(payments))
	for _, e := range payments {
		fmt.Printf("  %s  $%s  %s\n", period.DayKey(e.PaidDate), e.Amount.StringFixed(2), e.Status)
	}
	return nil
}
