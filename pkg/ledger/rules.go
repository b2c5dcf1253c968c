package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/period"
)

// CreateIncomeRule validates and stores a new income rule.
func (s *Service) CreateIncomeRule(ctx context.Context, rule *api.IncomeRule) error {
	now := s.now()
	rule.ID = uuid.NewString()
	rule.Name = strings.TrimSpace(rule.Name)
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.normalizePayday(rule)

	if err := rule.Validate(); err != nil {
		return err
	}
	if err := s.store.CreateIncomeRule(ctx, rule); err != nil {
		return fmt.Errorf("creating income rule: %w", err)
	}
	s.logger.Info("created income rule", "rule", rule.ID, "household", rule.HouseholdID, "frequency", rule.Frequency)
	return nil
}

// UpdateIncomeRule replaces an income rule's editable fields. Occurrences
// already generated keep their snapshot.
func (s *Service) UpdateIncomeRule(ctx context.Context, rule *api.IncomeRule) error {
	existing, err := s.store.GetIncomeRule(ctx, rule.HouseholdID, rule.ID)
	if err != nil {
		return fmt.Errorf("getting income rule: %w", err)
	}
	rule.Name = strings.TrimSpace(rule.Name)
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = s.now()
	s.normalizePayday(rule)

	if err := rule.Validate(); err != nil {
		return err
	}
	if err := s.store.UpdateIncomeRule(ctx, rule); err != nil {
		return fmt.Errorf("updating income rule: %w", err)
	}
	return nil
}

// SetIncomeRuleActive pauses or resumes an income rule.
func (s *Service) SetIncomeRuleActive(ctx context.Context, household, id string, active bool) error {
	rule, err := s.store.GetIncomeRule(ctx, household, id)
	if err != nil {
		return fmt.Errorf("getting income rule: %w", err)
	}
	rule.Active = active
	rule.UpdatedAt = s.now()
	if err := s.store.UpdateIncomeRule(ctx, rule); err != nil {
		return fmt.Errorf("updating income rule: %w", err)
	}
	return nil
}

// ListIncomeRules returns the household's income rules.
func (s *Service) ListIncomeRules(ctx context.Context, household string) ([]api.IncomeRule, error) {
	rules, err := s.store.ListIncomeRules(ctx, api.RuleFilter{HouseholdID: household})
	if err != nil {
		return nil, fmt.Errorf("listing income rules: %w", err)
	}
	return rules, nil
}

func (s *Service) normalizePayday(rule *api.IncomeRule) {
	if rule.NextPayday != nil {
		d := period.DateIn(*rule.NextPayday, s.loc)
		rule.NextPayday = &d
	}
}

// CreateExpenseRule validates and stores a new expense rule, then creates the
// current month's occurrence so the bill shows up right away.
func (s *Service) CreateExpenseRule(ctx context.Context, rule *api.ExpenseRule) error {
	now := s.now()
	rule.ID = uuid.NewString()
	rule.Name = strings.TrimSpace(rule.Name)
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := rule.Validate(); err != nil {
		return err
	}
	if err := s.store.CreateExpenseRule(ctx, rule); err != nil {
		return fmt.Errorf("creating expense rule: %w", err)
	}
	s.logger.Info("created expense rule", "rule", rule.ID, "household", rule.HouseholdID, "due_day", rule.DueDay)

	if _, err := s.engine.EnsureCurrent(ctx, *rule, now); err != nil {
		// The next backfill sweep will create it.
		s.logger.Warn("failed to create current occurrence", "rule", rule.ID, "error", err)
	}
	return nil
}

// UpdateExpenseRule replaces an expense rule's editable fields.
func (s *Service) UpdateExpenseRule(ctx context.Context, rule *api.ExpenseRule) error {
	existing, err := s.store.GetExpenseRule(ctx, rule.HouseholdID, rule.ID)
	if err != nil {
		return fmt.Errorf("getting expense rule: %w", err)
	}
	rule.Name = strings.TrimSpace(rule.Name)
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = s.now()

	if err := rule.Validate(); err != nil {
		return err
	}
	if err := s.store.UpdateExpenseRule(ctx, rule); err != nil {
		return fmt.Errorf("updating expense rule: %w", err)
	}
	return nil
}

// SetExpenseRuleActive pauses or resumes an expense rule.
func (s *Service) SetExpenseRuleActive(ctx context.Context, household, id string, active bool) error {
	rule, err := s.store.GetExpenseRule(ctx, household, id)
	if err != nil {
		return fmt.Errorf("getting expense rule: %w", err)
	}
	rule.Active = active
	rule.UpdatedAt = s.now()
	if err := s.store.UpdateExpenseRule(ctx, rule); err != nil {
		return fmt.Errorf("updating expense rule: %w", err)
	}
	return nil
}

// ListExpenseRules returns the household's expense rules.
func (s *Service) ListExpenseRules(ctx context.Context, household string) ([]api.ExpenseRule, error) {
	rules, err := s.store.ListExpenseRules(ctx, api.RuleFilter{HouseholdID: household})
	if err != nil {
		return nil, fmt.Errorf("listing expense rules: %w", err)
	}
	return rules, nil
}

// RuleHistory returns every occurrence the rule produced, including settled
// and archived ones, ordered by due date.
func (s *Service) RuleHistory(ctx context.Context, household string, ref api.RuleRef) ([]api.Occurrence, error) {
	var err error
	switch ref.Kind {
	case api.KindIncome:
		_, err = s.store.GetIncomeRule(ctx, household, ref.ID)
	case api.KindExpense:
		_, err = s.store.GetExpenseRule(ctx, household, ref.ID)
	default:
		return nil, fmt.Errorf("%w: unknown rule kind %q", api.ErrValidation, ref.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("getting rule: %w", err)
	}

	out, err := s.store.ListOccurrences(ctx, api.OccurrenceFilter{HouseholdID: household, Rule: &ref})
	if err != nil {
		return nil, fmt.Errorf("listing rule history: %w", err)
	}
	return out, nil
}

// RulePayments returns the expenses realized from an expense rule.
func (s *Service) RulePayments(ctx context.Context, household, ruleID string) ([]api.Expense, error) {
	return s.ListExpenses(ctx, household, api.ExpenseFilter{RuleID: ruleID})
}
