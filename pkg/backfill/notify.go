package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/period"
)

// notifyCreated sends one notification per rule per sweep, however many
// occurrences the sweep created for it.
func (e *Engine) notifyCreated(ctx context.Context, household string, kind api.Kind, name string, amount decimal.Decimal, created int) {
	if created == 0 || e.notifier == nil {
		return
	}

	n := api.Notification{
		HouseholdID: household,
		Severity:    api.SeverityHigh,
	}
	switch {
	case kind == api.KindIncome && created == 1:
		n.Type = api.NotifyPayday
		n.Message = fmt.Sprintf("Payday! Confirm you received $%s from %s.", amount.StringFixed(2), name)
	case kind == api.KindIncome:
		n.Type = api.NotifyPayday
		n.Message = fmt.Sprintf("%d paydays from %s need confirmation.", created, name)
	case created == 1:
		n.Type = api.NotifyBill
		n.Message = fmt.Sprintf("Is the %s ($%s) paid this month?", name, amount.StringFixed(2))
	default:
		n.Type = api.NotifyBill
		n.Message = fmt.Sprintf("%d bills for %s need confirmation.", created, name)
	}

	if err := e.notifier.Notify(ctx, n); err != nil {
		e.logger.Warn("failed to send notification", "household", household, "error", err)
	}
}

// Overdue sends a reminder for every pending occurrence whose due date is
// more than the configured grace period in the past. Due dates are compared
// as calendar days in the household location. It returns the number of
// reminders sent.
func (e *Engine) Overdue(ctx context.Context, now time.Time) (int, error) {
	local := now.In(e.cfg.Location)
	cutoff := local.Add(-e.cfg.OverdueAfter)

	overdue, err := e.store.ListOccurrences(ctx, api.OccurrenceFilter{
		Statuses:  []api.Status{api.StatusPending},
		DueBefore: cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("listing overdue occurrences: %w", err)
	}
	if e.notifier == nil {
		return 0, nil
	}

	sent := 0
	for _, occ := range overdue {
		days := period.DaysBetween(occ.DueDate, local)
		err := e.notifier.Notify(ctx, api.Notification{
			HouseholdID: occ.HouseholdID,
			Type:        api.NotifyReminder,
			Severity:    api.SeverityHigh,
			Message: fmt.Sprintf("Reminder: %s ($%s) is %d days overdue. Please confirm.",
				occ.Name, occ.ExpectedAmount.StringFixed(2), days),
		})
		if err != nil {
			e.logger.Warn("failed to send reminder", "occurrence", occ.ID, "error", err)
			continue
		}
		sent++
	}

	e.logger.Info("overdue reminders sent", "count", sent, "pending_overdue", len(overdue))
	return sent, nil
}
