package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/confirmation"
	"github.com/ArionMiles/homeledger/pkg/period"
)

// RecordExpense stores an expense entered by hand. The status is derived
// from the paid and due dates.
func (s *Service) RecordExpense(ctx context.Context, e *api.Expense) error {
	now := s.now()
	e.ID = uuid.NewString()
	e.Name = strings.TrimSpace(e.Name)
	if e.Type == "" {
		e.Type = api.ExpenseOneTime
	}
	if e.PaidDate.IsZero() {
		e.PaidDate = now
	}
	e.PaidDate = period.DateIn(e.PaidDate, s.loc)

	e.Status = api.ExpensePaid
	if e.DueDate != nil {
		due := period.DateIn(*e.DueDate, s.loc)
		e.DueDate = &due
		if confirmation.IsLate(e.PaidDate, due) {
			e.Status = api.ExpenseLate
		}
	}
	e.CreatedAt = now
	e.UpdatedAt = now

	if err := e.Validate(); err != nil {
		return err
	}
	if err := s.store.CreateExpense(ctx, e); err != nil {
		return fmt.Errorf("recording expense: %w", err)
	}
	return nil
}

// ListExpenses returns the household's expenses matching filter.
func (s *Service) ListExpenses(ctx context.Context, household string, filter api.ExpenseFilter) ([]api.Expense, error) {
	filter.HouseholdID = household
	out, err := s.store.ListExpenses(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	return out, nil
}

// MonthExpenses returns the household's expenses paid in the given month.
func (s *Service) MonthExpenses(ctx context.Context, household string, month time.Month, year int) ([]api.Expense, error) {
	start, end := period.MonthRange(year, month, s.loc)
	return s.ListExpenses(ctx, household, api.ExpenseFilter{PaidFrom: start, PaidBefore: end})
}

// UpdateExpense edits an expense's name, category, amount or notes. Nil
// fields are left alone. The balance is not adjusted.
func (s *Service) UpdateExpense(ctx context.Context, household string, u api.ExpenseUpdate) (*api.Expense, error) {
	e, err := s.store.GetExpense(ctx, household, u.ID)
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}

	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		u.Name = &name
		e.Name = name
	}
	if u.Category != nil {
		e.Category = *u.Category
	}
	if u.Amount != nil {
		if !u.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: amount must be positive", api.ErrValidation)
		}
		amount := u.Amount.Round(2)
		u.Amount = &amount
		e.Amount = amount
	}
	if u.Notes != nil {
		notes := strings.TrimSpace(*u.Notes)
		u.Notes = &notes
		e.Notes = notes
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}

	u.HouseholdID = household
	u.UpdatedAt = s.now()
	updated, err := s.store.UpdateExpense(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("updating expense: %w", err)
	}
	s.logger.Info("updated expense", "expense", updated.ID, "household", household)
	return updated, nil
}
