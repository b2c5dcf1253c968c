// Package confirmation moves occurrences through their lifecycle:
// pending, then confirmed, skipped or snoozed, and finally archived.
package confirmation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/period"
)

// DefaultArchiveAfter is how long a settled occurrence stays visible before
// the monthly sweep archives it.
const DefaultArchiveAfter = 30 * 24 * time.Hour

var actionable = []api.Status{api.StatusPending, api.StatusSnoozed}

// ConfirmInput carries optional overrides for a confirmation. Nil fields fall
// back to the occurrence's expected amount and due date.
type ConfirmInput struct {
	ActualAmount *decimal.Decimal `json:"actual_amount,omitempty"`
	ActualDate   *time.Time       `json:"actual_date,omitempty"`
}

// Result describes what a confirmation wrote.
type Result struct {
	// Applied is false when another caller settled the occurrence first.
	Applied bool `json:"applied"`
	// Expense is the realized expense for expense occurrences.
	Expense *api.Expense `json:"expense,omitempty"`
}

// Listing is the household's actionable view.
type Listing struct {
	// Pending holds pending occurrences and snoozed ones whose snooze expired.
	Pending []api.Occurrence `json:"pending"`
	// Snoozed holds occurrences still hidden by an active snooze.
	Snoozed []api.Occurrence `json:"snoozed"`
}

// realization is what a confirmed occurrence writes besides its status.
type realization struct {
	expense *api.Expense
	balance *api.BalanceChange
}

// realizer builds the records a confirmed occurrence turns into.
type realizer func(ctx context.Context, occ *api.Occurrence, amount decimal.Decimal, date, now time.Time) (realization, error)

// Config holds state machine settings.
type Config struct {
	// Location is the calendar paid and due dates are expressed in. Defaults to UTC.
	Location *time.Location
}

// Machine applies state transitions through conditional store updates, so
// concurrent callers never double-apply a transition.
type Machine struct {
	store     api.Store
	realizers map[api.Kind]realizer
	loc       *time.Location
	logger    *slog.Logger
}

// New creates a state machine over store.
func New(store api.Store, cfg Config, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	m := &Machine{store: store, loc: cfg.Location, logger: logger}
	m.realizers = map[api.Kind]realizer{
		api.KindIncome:  realizeIncome,
		api.KindExpense: m.realizeExpense,
	}
	return m
}

// Confirm settles an occurrence. Expense occurrences create an Expense, and
// every confirmation moves the household balance, in the same store operation
// as the status change. Confirming an occurrence that a concurrent caller has
// just settled is a successful no-op.
func (m *Machine) Confirm(ctx context.Context, household, id string, in ConfirmInput, now time.Time) (Result, error) {
	occ, err := m.store.GetOccurrence(ctx, household, id)
	if err != nil {
		return Result{}, fmt.Errorf("getting occurrence: %w", err)
	}
	if !slices.Contains(actionable, occ.Status) {
		return Result{}, fmt.Errorf("%w: cannot confirm %s occurrence", api.ErrInvalidStateTransition, occ.Status)
	}

	amount := occ.ExpectedAmount
	if in.ActualAmount != nil {
		amount = *in.ActualAmount
	}
	if err := api.ValidateAmount(amount); err != nil {
		return Result{}, err
	}
	date := occ.DueDate
	if in.ActualDate != nil {
		date = *in.ActualDate
	}
	date = period.DateIn(date, m.loc)

	realize, ok := m.realizers[occ.Kind()]
	if !ok {
		return Result{}, fmt.Errorf("%w: unknown occurrence kind %q", api.ErrValidation, occ.Kind())
	}
	r, err := realize(ctx, occ, amount, date, now)
	if err != nil {
		return Result{}, fmt.Errorf("realizing occurrence: %w", err)
	}

	applied, err := m.store.UpdateOccurrence(ctx, api.OccurrenceUpdate{
		ID:             occ.ID,
		HouseholdID:    household,
		From:           actionable,
		Status:         api.StatusConfirmed,
		ExpectedAmount: &amount,
		UpdatedAt:      now,
		Expense:        r.expense,
		Balance:        r.balance,
	})
	if err != nil {
		return Result{}, fmt.Errorf("confirming occurrence: %w", err)
	}
	if !applied {
		m.logger.Info("occurrence already settled, confirm ignored", "occurrence", id, "household", household)
		return Result{}, nil
	}

	m.logger.Info("confirmed occurrence",
		"occurrence", id,
		"household", household,
		"kind", occ.Kind(),
		"amount", amount.StringFixed(2),
	)
	return Result{Applied: true, Expense: r.expense}, nil
}

func realizeIncome(_ context.Context, occ *api.Occurrence, amount decimal.Decimal, _, now time.Time) (realization, error) {
	return realization{
		balance: &api.BalanceChange{
			HouseholdID:  occ.HouseholdID,
			Delta:        amount,
			Type:         api.BalanceIncome,
			Reason:       "Income: " + occ.Name,
			OccurrenceID: occ.ID,
			At:           now,
		},
	}, nil
}

func (m *Machine) realizeExpense(ctx context.Context, occ *api.Occurrence, amount decimal.Decimal, date, now time.Time) (realization, error) {
	category := api.CategoryOther
	rule, err := m.store.GetExpenseRule(ctx, occ.HouseholdID, occ.Rule.ID)
	switch {
	case err == nil:
		category = rule.Category
	case errors.Is(err, api.ErrNotFound):
		m.logger.Warn("rule for occurrence not found, using default category", "occurrence", occ.ID, "rule", occ.Rule.ID)
	default:
		return realization{}, fmt.Errorf("getting expense rule: %w", err)
	}

	due := period.DateIn(occ.DueDate, m.loc)
	status := api.ExpensePaid
	if IsLate(date, due) {
		status = api.ExpenseLate
	}

	expense := &api.Expense{
		ID:          uuid.NewString(),
		HouseholdID: occ.HouseholdID,
		RuleID:      occ.Rule.ID,
		Name:        occ.Name,
		Category:    category,
		Amount:      amount,
		DueDate:     &due,
		PaidDate:    date,
		Status:      status,
		Type:        api.ExpenseRecurring,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return realization{
		expense: expense,
		balance: &api.BalanceChange{
			HouseholdID:  occ.HouseholdID,
			Delta:        amount.Neg(),
			Type:         api.BalanceExpense,
			Reason:       "Expense: " + occ.Name,
			OccurrenceID: occ.ID,
			At:           now,
		},
	}, nil
}

// IsLate reports whether paid falls on a later calendar day than due.
// Both are compared on their own calendar date.
func IsLate(paid, due time.Time) bool {
	return period.DayKey(paid) > period.DayKey(due)
}

// Snooze hides a pending occurrence until the given time. An occurrence whose
// snooze has already expired may be snoozed again.
func (m *Machine) Snooze(ctx context.Context, household, id string, until, now time.Time) error {
	if !until.After(now) {
		return fmt.Errorf("%w: snooze time must be in the future", api.ErrValidation)
	}

	occ, err := m.store.GetOccurrence(ctx, household, id)
	if err != nil {
		return fmt.Errorf("getting occurrence: %w", err)
	}

	var from api.Status
	switch {
	case occ.Status == api.StatusPending:
		from = api.StatusPending
	case occ.Status == api.StatusSnoozed && expired(occ, now):
		from = api.StatusSnoozed
	default:
		return fmt.Errorf("%w: cannot snooze %s occurrence", api.ErrInvalidStateTransition, occ.Status)
	}

	return m.transition(ctx, "snooze", api.OccurrenceUpdate{
		ID:          id,
		HouseholdID: household,
		From:        []api.Status{from},
		Status:      api.StatusSnoozed,
		SnoozeUntil: &until,
		UpdatedAt:   now,
	})
}

// Skip marks a pending or snoozed occurrence as skipped. No expense is created.
func (m *Machine) Skip(ctx context.Context, household, id string, now time.Time) error {
	return m.transition(ctx, "skip", api.OccurrenceUpdate{
		ID:          id,
		HouseholdID: household,
		From:        actionable,
		Status:      api.StatusSkipped,
		UpdatedAt:   now,
	})
}

// Amend changes the expected amount of an occurrence that is not yet settled.
func (m *Machine) Amend(ctx context.Context, household, id string, amount decimal.Decimal, now time.Time) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", api.ErrValidation)
	}
	if err := api.ValidateAmount(amount); err != nil {
		return err
	}

	return m.transition(ctx, "amend", api.OccurrenceUpdate{
		ID:             id,
		HouseholdID:    household,
		From:           actionable,
		ExpectedAmount: &amount,
		UpdatedAt:      now,
	})
}

func (m *Machine) transition(ctx context.Context, action string, u api.OccurrenceUpdate) error {
	applied, err := m.store.UpdateOccurrence(ctx, u)
	if err != nil {
		return fmt.Errorf("updating occurrence: %w", err)
	}
	if !applied {
		return fmt.Errorf("%w: cannot %s occurrence %s", api.ErrInvalidStateTransition, action, u.ID)
	}
	m.logger.Info("occurrence updated", "action", action, "occurrence", u.ID, "household", u.HouseholdID)
	return nil
}

// List returns the household's actionable occurrences as of now.
func (m *Machine) List(ctx context.Context, household string, now time.Time) (Listing, error) {
	occs, err := m.store.ListOccurrences(ctx, api.OccurrenceFilter{
		HouseholdID: household,
		Statuses:    actionable,
	})
	if err != nil {
		return Listing{}, fmt.Errorf("listing occurrences: %w", err)
	}

	listing := Listing{Pending: []api.Occurrence{}, Snoozed: []api.Occurrence{}}
	for _, occ := range occs {
		if occ.Status == api.StatusSnoozed && !expired(&occ, now) {
			listing.Snoozed = append(listing.Snoozed, occ)
			continue
		}
		listing.Pending = append(listing.Pending, occ)
	}
	return listing, nil
}

func expired(occ *api.Occurrence, now time.Time) bool {
	return occ.SnoozeUntil == nil || !occ.SnoozeUntil.After(now)
}

// Archive moves confirmed and skipped occurrences last touched more than
// olderThan ago to archived. A non-positive olderThan uses DefaultArchiveAfter.
func (m *Machine) Archive(ctx context.Context, now time.Time, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = DefaultArchiveAfter
	}
	n, err := m.store.ArchiveOccurrences(ctx, now.Add(-olderThan), now)
	if err != nil {
		return 0, fmt.Errorf("archiving occurrences: %w", err)
	}
	m.logger.Info("archived settled occurrences", "count", n)
	return n, nil
}
