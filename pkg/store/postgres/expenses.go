package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ArionMiles/homeledger/pkg/api"
)

const expenseColumns = `id, household_id, rule_id, name, category, amount, due_date, paid_date, status, type, notes, receipt_text, created_at, updated_at`

// CreateExpense inserts a realized expense, assigning an ID when empty.
func (s *Store) CreateExpense(ctx context.Context, expense *api.Expense) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertExpense(ctx, tx, expense); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func insertExpense(ctx context.Context, tx pgx.Tx, expense *api.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.NewString()
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		expense.ID,
		expense.HouseholdID,
		nullableString(expense.RuleID),
		expense.Name,
		string(expense.Category),
		expense.Amount,
		expense.DueDate,
		expense.PaidDate,
		string(expense.Status),
		string(expense.Type),
		expense.Notes,
		expense.ReceiptText,
		expense.CreatedAt,
		expense.UpdatedAt,
	)
	if err != nil {
		return wrapWriteErr("inserting expense", err)
	}
	return nil
}

// ListExpenses returns matching expenses ordered by paid date.
func (s *Store) ListExpenses(ctx context.Context, filter api.ExpenseFilter) ([]api.Expense, error) {
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
	if filter.Category != "" {
		add("category = $%d", string(filter.Category))
	}
	if filter.RuleID != "" {
		add("rule_id = $%d", filter.RuleID)
	}
	if !filter.PaidFrom.IsZero() {
		add("paid_date >= $%d", filter.PaidFrom)
	}
	if !filter.PaidBefore.IsZero() {
		add("paid_date < $%d", filter.PaidBefore)
	}

	query := `SELECT ` + expenseColumns + ` FROM expenses`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY paid_date, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	defer rows.Close()

	var out []api.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning expense: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// GetExpense returns the household's expense with the given ID.
func (s *Store) GetExpense(ctx context.Context, householdID, id string) (*api.Expense, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = $1 AND household_id = $2`,
		id, householdID,
	)
	e, err := scanExpense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("expense %s: %w", id, api.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	return e, nil
}

// UpdateExpense applies the non-nil fields of u in a single UPDATE.
func (s *Store) UpdateExpense(ctx context.Context, u api.ExpenseUpdate) (*api.Expense, error) {
	var category *string
	if u.Category != nil {
		c := string(*u.Category)
		category = &c
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE expenses SET
			name = COALESCE($3, name),
			category = COALESCE($4, category),
			amount = COALESCE($5::numeric, amount),
			notes = COALESCE($6, notes),
			updated_at = $7
		WHERE id = $1 AND household_id = $2
		RETURNING `+expenseColumns,
		u.ID,
		u.HouseholdID,
		u.Name,
		category,
		u.Amount,
		u.Notes,
		u.UpdatedAt,
	)
	e, err := scanExpense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("expense %s: %w", u.ID, api.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("updating expense: %w", err)
	}
	return e, nil
}

func scanExpense(row pgx.Row) (*api.Expense, error) {
	var (
		e                            api.Expense
		ruleID                       *string
		category, status, expenseTyp string
	)
	if err := row.Scan(
		&e.ID,
		&e.HouseholdID,
		&ruleID,
		&e.Name,
		&category,
		&e.Amount,
		&e.DueDate,
		&e.PaidDate,
		&status,
		&expenseTyp,
		&e.Notes,
		&e.ReceiptText,
		&e.CreatedAt,
		&e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if ruleID != nil {
		e.RuleID = *ruleID
	}
	e.Category = api.Category(category)
	e.Status = api.ExpenseStatus(status)
	e.Type = api.ExpenseType(expenseTyp)
	return &e, nil
}
