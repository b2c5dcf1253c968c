package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ArionMiles/homeledger/pkg/export"
)

var stdout io.Writer = os.Stdout

// runExport writes a month's report to stdout or a file.
func runExport(logger *slog.Logger, args []string) error {
	fs, configPath := newFlags("export")
	household := fs.String("household", "", "household ID (required)")
	month := fs.Int("month", 0, "month 1-12 (default: current)")
	year := fs.Int("year", 0, "year (default: current)")
	format := fs.String("format", export.FormatCSV, "output format: csv or json")
	output := fs.String("o", "", "output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireHousehold(*household); err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	r, _, logger, err := openRunner(ctx, *configPath)
	if err != nil {
		return err
	}
	defer r.Close()

	svc := r.Ledger()
	m, y, err := monthOrCurrent(*month, *year, svc.Now().In(svc.Location()))
	if err != nil {
		return err
	}

	report, err := svc.MonthlyReport(ctx, *household, m, y)
	if err != nil {
		return err
	}

	w := stdout
	if *output != "" {
		f, err := os.OpenFile(*output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("opening output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := export.Write(w, *format, report); err != nil {
		return err
	}
	if *output != "" {
		logger.Info("exported report", "file", *output, "expenses", len(report.Expenses), "format", *format)
	}
	return nil
}
