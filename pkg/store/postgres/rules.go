package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ArionMiles/homeledger/pkg/api"
)

const incomeRuleColumns = `id, household_id, name, amount, frequency, next_payday, active, created_at, updated_at`

const expenseRuleColumns = `id, household_id, name, category, expected_amount, due_day, frequency, active, auto_prompt, created_at, updated_at`

// CreateIncomeRule inserts a new income rule, assigning an ID when empty.
func (s *Store) CreateIncomeRule(ctx context.Context, rule *api.IncomeRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO income_rules (`+incomeRuleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		rule.ID,
		rule.HouseholdID,
		rule.Name,
		rule.Amount,
		string(rule.Frequency),
		rule.NextPayday,
		rule.Active,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return wrapWriteErr("inserting income rule", err)
	}
	return nil
}

// UpdateIncomeRule replaces the mutable fields of an income rule.
func (s *Store) UpdateIncomeRule(ctx context.Context, rule *api.IncomeRule) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE income_rules
		SET name = $3, amount = $4, frequency = $5, next_payday = $6, active = $7, updated_at = $8
		WHERE id = $1 AND household_id = $2
	`,
		rule.ID,
		rule.HouseholdID,
		rule.Name,
		rule.Amount,
		string(rule.Frequency),
		rule.NextPayday,
		rule.Active,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating income rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("income rule %s: %w", rule.ID, api.ErrNotFound)
	}
	return nil
}

// GetIncomeRule returns the household's income rule with the given ID.
func (s *Store) GetIncomeRule(ctx context.Context, householdID, id string) (*api.IncomeRule, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+incomeRuleColumns+` FROM income_rules WHERE id = $1 AND household_id = $2`,
		id, householdID,
	)
	rule, err := scanIncomeRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("income rule %s: %w", id, api.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting income rule: %w", err)
	}
	return rule, nil
}

// ListIncomeRules returns matching income rules ordered by creation time.
func (s *Store) ListIncomeRules(ctx context.Context, filter api.RuleFilter) ([]api.IncomeRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+incomeRuleColumns+` FROM income_rules
		WHERE ($1 = '' OR household_id = $1) AND (NOT $2 OR active)
		ORDER BY created_at, id
	`, filter.HouseholdID, filter.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("listing income rules: %w", err)
	}
	defer rows.Close()

	var rules []api.IncomeRule
	for rows.Next() {
		rule, err := scanIncomeRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning income rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// CreateExpenseRule inserts a new expense rule, assigning an ID when empty.
func (s *Store) CreateExpenseRule(ctx context.Context, rule *api.ExpenseRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO expense_rules (`+expenseRuleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		rule.ID,
		rule.HouseholdID,
		rule.Name,
		string(rule.Category),
		rule.ExpectedAmount,
		rule.DueDay,
		string(rule.Frequency),
		rule.Active,
		rule.AutoPrompt,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return wrapWriteErr("inserting expense rule", err)
	}
	return nil
}

// UpdateExpenseRule replaces the mutable fields of an expense rule.
func (s *Store) UpdateExpenseRule(ctx context.Context, rule *api.ExpenseRule) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE expense_rules
		SET name = $3, category = $4, expected_amount = $5, due_day = $6, frequency = $7,
			active = $8, auto_prompt = $9, updated_at = $10
		WHERE id = $1 AND household_id = $2
	`,
		rule.ID,
		rule.HouseholdID,
		rule.Name,
		string(rule.Category),
		rule.ExpectedAmount,
		rule.DueDay,
		string(rule.Frequency),
		rule.Active,
		rule.AutoPrompt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating expense rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("expense rule %s: %w", rule.ID, api.ErrNotFound)
	}
	return nil
}

// GetExpenseRule returns the household's expense rule with the given ID.
func (s *Store) GetExpenseRule(ctx context.Context, householdID, id string) (*api.ExpenseRule, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+expenseRuleColumns+` FROM expense_rules WHERE id = $1 AND household_id = $2`,
		id, householdID,
	)
	rule, err := scanExpenseRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("expense rule %s: %w", id, api.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting expense rule: %w", err)
	}
	return rule, nil
}

// ListExpenseRules returns matching expense rules ordered by creation time.
func (s *Store) ListExpenseRules(ctx context.Context, filter api.RuleFilter) ([]api.ExpenseRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+expenseRuleColumns+` FROM expense_rules
		WHERE ($1 = '' OR household_id = $1) AND (NOT $2 OR active)
		ORDER BY created_at, id
	`, filter.HouseholdID, filter.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("listing expense rules: %w", err)
	}
	defer rows.Close()

	var rules []api.ExpenseRule
	for rows.Next() {
		rule, err := scanExpenseRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning expense rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

func scanIncomeRule(row pgx.Row) (*api.IncomeRule, error) {
	var (
		rule      api.IncomeRule
		frequency string
	)
	err := row.Scan(
		&rule.ID,
		&rule.HouseholdID,
		&rule.Name,
		&rule.Amount,
		&frequency,
		&rule.NextPayday,
		&rule.Active,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rule.Frequency = api.Frequency(frequency)
	return &rule, nil
}

func scanExpenseRule(row pgx.Row) (*api.ExpenseRule, error) {
	var (
		rule                api.ExpenseRule
		category, frequency string
	)
	err := row.Scan(
		&rule.ID,
		&rule.HouseholdID,
		&rule.Name,
		&category,
		&rule.ExpectedAmount,
		&rule.DueDay,
		&frequency,
		&rule.Active,
		&rule.AutoPrompt,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rule.Category = api.Category(category)
	rule.Frequency = api.Frequency(frequency)
	return &rule, nil
}
