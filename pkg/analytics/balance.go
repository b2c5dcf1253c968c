package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/period"
)

// DayBalance is the closing balance of one calendar day.
type DayBalance struct {
	Date    time.Time       `json:"date"`
	Balance decimal.Decimal `json:"balance"`
}

// DailyBalance returns the closing balance of every day in the month,
// replayed from the household's balance history.
func (a *Aggregator) DailyBalance(ctx context.Context, household string, month time.Month, year int) ([]DayBalance, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("%w: month %d out of range", api.ErrValidation, month)
	}

	start, end := period.MonthRange(year, month, a.loc)
	history, err := a.store.ListBalanceHistory(ctx, api.BalanceFilter{HouseholdID: household, Before: end})
	if err != nil {
		return nil, fmt.Errorf("listing balance history: %w", err)
	}
	return DailyBalances(history, start, end), nil
}

// DailyBalances walks [start, end) one day at a time. Each day closes on the
// balance of the last entry recorded before the next midnight; days before
// the first entry close at zero. history must be ordered oldest first.
func DailyBalances(history []api.BalanceEntry, start, end time.Time) []DayBalance {
	var (
		out     []DayBalance
		running = decimal.Zero
		i       int
	)
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		next := day.AddDate(0, 0, 1)
		for i < len(history) && history[i].CreatedAt.Before(next) {
			running = history[i].Balance
			i++
		}
		out = append(out, DayBalance{Date: day, Balance: running})
	}
	return out
}
