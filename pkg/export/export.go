// Package export writes ledger data as CSV or JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/ledger"
	"github.com/ArionMiles/homeledger/pkg/period"
)

// Formats accepted by Write.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

var expenseHeaders = []string{"Paid", "Due", "Name", "Category", "Amount", "Status", "Type", "Notes"}

var occurrenceHeaders = []string{"Due", "Kind", "Name", "Expected", "Status", "Snoozed Until", "Period"}

// Write renders report in the named format. CSV output carries the expenses
// only. JSON carries the whole report.
func Write(w io.Writer, format string, report ledger.Report) error {
	switch strings.ToLower(format) {
	case FormatCSV:
		return CSV(w, report.Expenses)
	case FormatJSON:
		return JSON(w, report)
	default:
		return fmt.Errorf("%w: unknown export format %q", api.ErrValidation, format)
	}
}

// CSV writes expenses with a header row. Dates are YYYY-MM-DD and amounts
// have two decimal places.
func CSV(w io.Writer, expenses []api.Expense) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(expenseHeaders); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for _, e := range expenses {
		due := ""
		if e.DueDate != nil {
			due = period.DayKey(*e.DueDate)
		}
		record := []string{
			period.DayKey(e.PaidDate),
			due,
			e.Name,
			string(e.Category),
			e.Amount.StringFixed(2),
			string(e.Status),
			string(e.Type),
			e.Notes,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing csv record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

// OccurrencesCSV writes occurrences awaiting confirmation with a header row.
func OccurrencesCSV(w io.Writer, occurrences []api.Occurrence) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(occurrenceHeaders); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for _, o := range occurrences {
		snoozed := ""
		if o.SnoozeUntil != nil {
			snoozed = period.DayKey(*o.SnoozeUntil)
		}
		record := []string{
			period.DayKey(o.DueDate),
			string(o.Kind()),
			o.Name,
			o.ExpectedAmount.StringFixed(2),
			string(o.Status),
			snoozed,
			o.Period,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing csv record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

// JSON writes v as indented JSON followed by a newline.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	return nil
}
