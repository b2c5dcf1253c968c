package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeledger/pkg/api"
)

const balanceHistoryColumns = `id, household_id, balance, change, reason, type, occurrence_id, created_at`

// GetBalance returns the household's current balance.
func (s *Store) GetBalance(ctx context.Context, householdID string) (*api.Balance, error) {
	b := api.Balance{HouseholdID: householdID}
	err := s.pool.QueryRow(ctx,
		`SELECT amount, updated_at FROM balances WHERE household_id = $1`,
		householdID,
	).Scan(&b.Amount, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("balance for %s: %w", householdID, api.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting balance: %w", err)
	}
	return &b, nil
}

// ApplyBalanceChange moves the household balance and records the change in
// one transaction.
func (s *Store) ApplyBalanceChange(ctx context.Context, change api.BalanceChange) (*api.BalanceEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := applyBalance(ctx, tx, change)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return entry, nil
}

// applyBalance locks the household's balance row, creating it at zero first,
// so concurrent changes apply one after another.
func applyBalance(ctx context.Context, tx pgx.Tx, change api.BalanceChange) (*api.BalanceEntry, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO balances (household_id, amount, updated_at) VALUES ($1, 0, $2)
		ON CONFLICT (household_id) DO NOTHING
	`, change.HouseholdID, change.At); err != nil {
		return nil, fmt.Errorf("creating balance: %w", err)
	}

	var current decimal.Decimal
	if err := tx.QueryRow(ctx,
		`SELECT amount FROM balances WHERE household_id = $1 FOR UPDATE`,
		change.HouseholdID,
	).Scan(&current); err != nil {
		return nil, fmt.Errorf("locking balance: %w", err)
	}

	delta := change.Delta
	if change.Set != nil {
		delta = change.Set.Sub(current)
	}
	entry := &api.BalanceEntry{
		ID:           uuid.NewString(),
		HouseholdID:  change.HouseholdID,
		Balance:      current.Add(delta),
		Change:       delta,
		Reason:       change.Reason,
		Type:         change.Type,
		OccurrenceID: change.OccurrenceID,
		CreatedAt:    change.At,
	}

	if _, err := tx.Exec(ctx,
		`UPDATE balances SET amount = $2, updated_at = $3 WHERE household_id = $1`,
		change.HouseholdID, entry.Balance, change.At,
	); err != nil {
		return nil, fmt.Errorf("updating balance: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO balance_history (`+balanceHistoryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		entry.ID,
		entry.HouseholdID,
		entry.Balance,
		entry.Change,
		entry.Reason,
		string(entry.Type),
		nullableString(entry.OccurrenceID),
		entry.CreatedAt,
	); err != nil {
		return nil, wrapWriteErr("inserting balance history", err)
	}
	return entry, nil
}

// ListBalanceHistory returns matching entries oldest first.
func (s *Store) ListBalanceHistory(ctx context.Context, filter api.BalanceFilter) ([]api.BalanceEntry, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.HouseholdID != "" {
		add("household_id = $%d", filter.HouseholdID)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.Before.IsZero() {
		add("created_at < $%d", filter.Before)
	}

	query := `SELECT ` + balanceHistoryColumns + ` FROM balance_history`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing balance history: %w", err)
	}
	defer rows.Close()

	var out []api.BalanceEntry
	for rows.Next() {
		var (
			e            api.BalanceEntry
			typ          string
			occurrenceID *string
		)
		if err := rows.Scan(
			&e.ID,
			&e.HouseholdID,
			&e.Balance,
			&e.Change,
			&e.Reason,
			&typ,
			&occurrenceID,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning balance entry: %w", err)
		}
		e.Type = api.BalanceChangeType(typ)
		if occurrenceID != nil {
			e.OccurrenceID = *occurrenceID
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
