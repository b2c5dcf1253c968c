package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeledger/pkg/analytics"
	"github.com/ArionMiles/homeledger/pkg/api"
)

// Balance returns the household's running balance. A household that never
// had a balance change reads as zero.
func (s *Service) Balance(ctx context.Context, household string) (api.Balance, error) {
	b, err := s.store.GetBalance(ctx, household)
	if errors.Is(err, api.ErrNotFound) {
		return api.Balance{HouseholdID: household, Amount: decimal.Zero}, nil
	}
	if err != nil {
		return api.Balance{}, fmt.Errorf("getting balance: %w", err)
	}
	return *b, nil
}

// AdjustBalance sets the household balance to amount, recording the
// difference as a manual adjustment.
func (s *Service) AdjustBalance(ctx context.Context, household string, amount decimal.Decimal, reason string) (*api.BalanceEntry, error) {
	if household == "" {
		return nil, fmt.Errorf("%w: household is required", api.ErrValidation)
	}
	if err := api.ValidateAmount(amount.Abs()); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > api.MaxNotesLength {
		return nil, fmt.Errorf("%w: reason exceeds %d characters", api.ErrValidation, api.MaxNotesLength)
	}
	if reason == "" {
		reason = "Manual adjustment"
		if _, err := s.store.GetBalance(ctx, household); errors.Is(err, api.ErrNotFound) {
			reason = "Initial balance"
		}
	}

	amount = amount.Round(2)
	entry, err := s.store.ApplyBalanceChange(ctx, api.BalanceChange{
		HouseholdID: household,
		Set:         &amount,
		Type:        api.BalanceManual,
		Reason:      reason,
		At:          s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("adjusting balance: %w", err)
	}
	s.logger.Info("adjusted balance", "household", household, "balance", entry.Balance.StringFixed(2), "change", entry.Change.StringFixed(2))
	return entry, nil
}

// BalanceHistory returns balance changes in [from, before), oldest first.
// Zero bounds are open.
func (s *Service) BalanceHistory(ctx context.Context, household string, from, before time.Time) ([]api.BalanceEntry, error) {
	out, err := s.store.ListBalanceHistory(ctx, api.BalanceFilter{
		HouseholdID: household,
		From:        from,
		Before:      before,
	})
	if err != nil {
		return nil, fmt.Errorf("listing balance history: %w", err)
	}
	return out, nil
}

// DailyBalance returns the closing balance of each day in the month.
func (s *Service) DailyBalance(ctx context.Context, household string, month time.Month, year int) ([]analytics.DayBalance, error) {
	return s.aggregator.DailyBalance(ctx, household, month, year)
}
