package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/confirmation"
	"github.com/ArionMiles/homeledger/pkg/export"
	"github.com/ArionMiles/homeledger/pkg/period"
)

// occurrenceFlags parses -config, -household and the occurrence ID argument.
type occurrenceFlags struct {
	fs         *flag.FlagSet
	configPath *string
	household  *string
}

func newOccurrenceFlags(name string) occurrenceFlags {
	fs, configPath := newFlags(name)
	return occurrenceFlags{
		fs:         fs,
		configPath: configPath,
		household:  fs.String("household", "", "household ID (required)"),
	}
}

// parse parses args and returns the single positional occurrence ID.
func (f occurrenceFlags) parse(args []string) (string, error) {
	if err := f.fs.Parse(args); err != nil {
		return "", err
	}
	if err := requireHousehold(*f.household); err != nil {
		return "", err
	}
	if f.fs.NArg() != 1 {
		return "", fmt.Errorf("%w: expected exactly one occurrence ID", api.ErrValidation)
	}
	return f.fs.Arg(0), nil
}

// runPending prints pending and snoozed occurrences.
func runPending(logger *slog.Logger, args []string) error {
	fs, configPath := newFlags("pending")
	household := fs.String("household", "", "household ID (required)")
	asCSV := fs.Bool("csv", false, "write CSV instead of a table")
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

	listing, err := r.Ledger().ListOccurrences(ctx, *household)
	if err != nil {
		return err
	}

	if *asCSV {
		return export.OccurrencesCSV(os.Stdout, append(listing.Pending, listing.Snoozed...))
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDUE\tKIND\tNAME\tEXPECTED\tSTATUS")
	for _, o := range listing.Pending {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			o.ID, period.DayKey(o.DueDate), o.Kind(), o.Name, o.ExpectedAmount.StringFixed(2), o.Status)
	}
	for _, o := range listing.Snoozed {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\tsnoozed until %s\n",
			o.ID, period.DayKey(o.DueDate), o.Kind(), o.Name, o.ExpectedAmount.StringFixed(2), period.DayKey(*o.SnoozeUntil))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d pending, %d snoozed\n", len(listing.Pending), len(listing.Snoozed))
	return nil
}

// runConfirm confirms an occurrence, optionally with the actual amount and date.
func runConfirm(logger *slog.Logger, args []string) error {
	f := newOccurrenceFlags("confirm")
	amount := f.fs.String("amount", "", "actual amount (default: expected amount)")
	date := f.fs.String("date", "", "actual paid or received date, YYYY-MM-DD (default: due date)")
	id, err := f.parse(args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	r, _, _, err := openRunner(ctx, *f.configPath)
	if err != nil {
		return err
	}
	defer r.Close()

	var in confirmation.ConfirmInput
	if *amount != "" {
		d, err := parseAmount(*amount)
		if err != nil {
			return err
		}
		in.ActualAmount = &d
	}
	if *date != "" {
		t, err := parseDate(*date, r.Ledger().Location())
		if err != nil {
			return err
		}
		in.ActualDate = &t
	}

	result, err := r.Ledger().Confirm(ctx, *f.household, id, in)
	if err != nil {
		return err
	}
	switch {
	case !result.Applied:
		fmt.Println("Already settled by another request, nothing changed.")
	case result.Expense != nil:
		fmt.Printf("Confirmed. Recorded %s expense %q for $%s (%s).\n",
			result.Expense.Status, result.Expense.Name, result.Expense.Amount.StringFixed(2), period.DayKey(result.Expense.PaidDate))
	default:
		fmt.Println("Confirmed.")
	}
	return nil
}

// runSnooze hides an occurrence until the given date.
func runSnooze(logger *slog.Logger, args []string) error {
	f := newOccurrenceFlags("snooze")
	until := f.fs.String("until", "", "date to resurface the occurrence, YYYY-MM-DD (required)")
	id, err := f.parse(args)
	if err != nil {
		return err
	}
	if *until == "" {
		return fmt.Errorf("%w: -until is required", api.ErrValidation)
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	r, _, _, err := openRunner(ctx, *f.configPath)
	if err != nil {
		return err
	}
	defer r.Close()

	t, err := parseDate(*until, r.Ledger().Location())
	if err != nil {
		return err
	}
	if err := r.Ledger().Snooze(ctx, *f.household, id, t); err != nil {
		return err
	}
	fmt.Printf("Snoozed until %s.\n", *until)
	return nil
}

// runSkip marks an occurrence as skipped.
func runSkip(logger *slog.Logger, args []string) error {
	f := newOccurrenceFlags("skip")
	id, err := f.parse(args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	r, _, _, err := openRunner(ctx, *f.configPath)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.Ledger().Skip(ctx, *f.household, id); err != nil {
		return err
	}
	fmt.Println("Skipped.")
	return nil
}

// runAmend changes the expected amount of an open occurrence.
func runAmend(logger *slog.Logger, args []string) error {
	f := newOccurrenceFlags("amend")
	amount := f.fs.String("amount", "", "new expected amount (required)")
	id, err := f.parse(args)
	if err != nil {
		return err
	}
	d, err := parseAmount(*amount)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	r, _, _, err := openRunner(ctx, *f.configPath)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.Ledger().Amend(ctx, *f.household, id, d); err != nil {
		return err
	}
	fmt.Printf("Expected amount set to $%s.\n", d.StringFixed(2))
	return nil
}

func parseAmount(value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q is not a number", api.ErrValidation, value)
	}
	return d, nil
}
