// Package memory provides an in-process implementation of api.Store.
// It is used by tests and by the daemon when no database is configured.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/period"
)

type periodKey struct {
	kind   api.Kind
	ruleID string
	period string
}

// Store keeps all records in maps guarded by a single RWMutex.
type Store struct {
	mu           sync.RWMutex
	incomeRules  map[string]api.IncomeRule
	expenseRules map[string]api.ExpenseRule
	occurrences  map[string]api.Occurrence
	byPeriod     map[periodKey]string
	expenses     map[string]api.Expense
	balances     map[string]api.Balance
	history      []api.BalanceEntry
}

var _ api.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		incomeRules:  make(map[string]api.IncomeRule),
		expenseRules: make(map[string]api.ExpenseRule),
		occurrences:  make(map[string]api.Occurrence),
		byPeriod:     make(map[periodKey]string),
		expenses:     make(map[string]api.Expense),
		balances:     make(map[string]api.Balance),
	}
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

// CreateIncomeRule stores a new income rule, assigning an ID when empty.
func (s *Store) CreateIncomeRule(_ context.Context, rule *api.IncomeRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ensureID(&rule.ID)
	if _, exists := s.incomeRules[rule.ID]; exists {
		return fmt.Errorf("income rule %s: %w", rule.ID, api.ErrConflictDuplicate)
	}
	s.incomeRules[rule.ID] = cloneIncomeRule(*rule)
	return nil
}

// UpdateIncomeRule replaces a stored income rule.
func (s *Store) UpdateIncomeRule(_ context.Context, rule *api.IncomeRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.incomeRules[rule.ID]
	if !ok || existing.HouseholdID != rule.HouseholdID {
		return fmt.Errorf("income rule %s: %w", rule.ID, api.ErrNotFound)
	}
	s.incomeRules[rule.ID] = cloneIncomeRule(*rule)
	return nil
}

// GetIncomeRule returns the household's income rule with the given ID.
func (s *Store) GetIncomeRule(_ context.Context, householdID, id string) (*api.IncomeRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.incomeRules[id]
	if !ok || rule.HouseholdID != householdID {
		return nil, fmt.Errorf("income rule %s: %w", id, api.ErrNotFound)
	}
	rule = cloneIncomeRule(rule)
	return &rule, nil
}

// ListIncomeRules returns matching income rules ordered by creation time.
func (s *Store) ListIncomeRules(_ context.Context, filter api.RuleFilter) ([]api.IncomeRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []api.IncomeRule
	for _, rule := range s.incomeRules {
		if filter.HouseholdID != "" && rule.HouseholdID != filter.HouseholdID {
			continue
		}
		if filter.ActiveOnly && !rule.Active {
			continue
		}
		out = append(out, cloneIncomeRule(rule))
	}
	sort.Slice(out, func(i, j int) bool { return createdBefore(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID) })
	return out, nil
}

// CreateExpenseRule stores a new expense rule, assigning an ID when empty.
func (s *Store) CreateExpenseRule(_ context.Context, rule *api.ExpenseRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ensureID(&rule.ID)
	if _, exists := s.expenseRules[rule.ID]; exists {
		return fmt.Errorf("expense rule %s: %w", rule.ID, api.ErrConflictDuplicate)
	}
	s.expenseRules[rule.ID] = *rule
	return nil
}

// UpdateExpenseRule replaces a stored expense rule.
func (s *Store) UpdateExpenseRule(_ context.Context, rule *api.ExpenseRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.expenseRules[rule.ID]
	if !ok || existing.HouseholdID != rule.HouseholdID {
		return fmt.Errorf("expense rule %s: %w", rule.ID, api.ErrNotFound)
	}
	s.expenseRules[rule.ID] = *rule
	return nil
}

// GetExpenseRule returns the household's expense rule with the given ID.
func (s *Store) GetExpenseRule(_ context.Context, householdID, id string) (*api.ExpenseRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.expenseRules[id]
	if !ok || rule.HouseholdID != householdID {
		return nil, fmt.Errorf("expense rule %s: %w", id, api.ErrNotFound)
	}
	return &rule, nil
}

// ListExpenseRules returns matching expense rules ordered by creation time.
func (s *Store) ListExpenseRules(_ context.Context, filter api.RuleFilter) ([]api.ExpenseRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []api.ExpenseRule
	for _, rule := range s.expenseRules {
		if filter.HouseholdID != "" && rule.HouseholdID != filter.HouseholdID {
			continue
		}
		if filter.ActiveOnly && !rule.Active {
			continue
		}
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return createdBefore(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID) })
	return out, nil
}

// InsertOccurrenceIfAbsent stores occ unless the rule already has an
// occurrence for occ.Period.
func (s *Store) InsertOccurrenceIfAbsent(_ context.Context, occ *api.Occurrence) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := periodKey{kind: occ.Rule.Kind, ruleID: occ.Rule.ID, period: occ.Period}
	if _, exists := s.byPeriod[key]; exists {
		return false, nil
	}

	ensureID(&occ.ID)
	if _, exists := s.occurrences[occ.ID]; exists {
		return false, fmt.Errorf("occurrence %s: %w", occ.ID, api.ErrConflictDuplicate)
	}
	s.occurrences[occ.ID] = cloneOccurrence(*occ)
	s.byPeriod[key] = occ.ID
	return true, nil
}

// GetOccurrence returns the household's occurrence with the given ID.
func (s *Store) GetOccurrence(_ context.Context, householdID, id string) (*api.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	occ, ok := s.occurrences[id]
	if !ok || occ.HouseholdID != householdID {
		return nil, fmt.Errorf("occurrence %s: %w", id, api.ErrNotFound)
	}
	occ = cloneOccurrence(occ)
	return &occ, nil
}

// ListOccurrences returns matching occurrences ordered by due date.
func (s *Store) ListOccurrences(_ context.Context, filter api.OccurrenceFilter) ([]api.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []api.Occurrence
	for _, occ := range s.occurrences {
		if matchOccurrence(occ, filter) {
			out = append(out, cloneOccurrence(occ))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func matchOccurrence(occ api.Occurrence, f api.OccurrenceFilter) bool {
	switch {
	case f.HouseholdID != "" && occ.HouseholdID != f.HouseholdID:
		return false
	case f.Kind != "" && occ.Rule.Kind != f.Kind:
		return false
	case f.Rule != nil && occ.Rule != *f.Rule:
		return false
	case len(f.Statuses) > 0 && !slices.Contains(f.Statuses, occ.Status):
		return false
	case !f.DueBefore.IsZero() && period.DayKey(occ.DueDate) >= period.DayKey(f.DueBefore):
		return false
	case !f.CreatedFrom.IsZero() && occ.CreatedAt.Before(f.CreatedFrom):
		return false
	case !f.CreatedBefore.IsZero() && !occ.CreatedAt.Before(f.CreatedBefore):
		return false
	}
	return true
}

// UpdateOccurrence applies u when the stored status is one of u.From.
// The optional expense and balance change are applied under the same lock.
func (s *Store) UpdateOccurrence(_ context.Context, u api.OccurrenceUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	occ, ok := s.occurrences[u.ID]
	if !ok || occ.HouseholdID != u.HouseholdID {
		return false, fmt.Errorf("occurrence %s: %w", u.ID, api.ErrNotFound)
	}
	if !slices.Contains(u.From, occ.Status) {
		return false, nil
	}

	if u.Expense != nil {
		ensureID(&u.Expense.ID)
		if _, exists := s.expenses[u.Expense.ID]; exists {
			return false, fmt.Errorf("expense %s: %w", u.Expense.ID, api.ErrConflictDuplicate)
		}
		s.expenses[u.Expense.ID] = *u.Expense
	}
	if u.Balance != nil {
		s.applyBalance(*u.Balance)
	}

	if u.Status != "" {
		occ.Status = u.Status
	}
	switch {
	case u.SnoozeUntil != nil:
		until := *u.SnoozeUntil
		occ.SnoozeUntil = &until
	case u.Status != "" && u.Status != api.StatusSnoozed:
		occ.SnoozeUntil = nil
	}
	if u.ExpectedAmount != nil {
		occ.ExpectedAmount = *u.ExpectedAmount
	}
	occ.UpdatedAt = u.UpdatedAt
	s.occurrences[u.ID] = occ
	return true, nil
}

// ArchiveOccurrences archives confirmed and skipped occurrences last updated before cutoff.
func (s *Store) ArchiveOccurrences(_ context.Context, cutoff, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, occ := range s.occurrences {
		if occ.Status != api.StatusConfirmed && occ.Status != api.StatusSkipped {
			continue
		}
		if !occ.UpdatedAt.Before(cutoff) {
			continue
		}
		occ.Status = api.StatusArchived
		occ.UpdatedAt = now
		s.occurrences[id] = occ
		count++
	}
	return count, nil
}

// CreateExpense stores a realized expense, assigning an ID when empty.
func (s *Store) CreateExpense(_ context.Context, expense *api.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ensureID(&expense.ID)
	if _, exists := s.expenses[expense.ID]; exists {
		return fmt.Errorf("expense %s: %w", expense.ID, api.ErrConflictDuplicate)
	}
	s.expenses[expense.ID] = *expense
	return nil
}

// ListExpenses returns matching expenses ordered by paid date.
func (s *Store) ListExpenses(_ context.Context, filter api.ExpenseFilter) ([]api.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []api.Expense
	for _, e := range s.expenses {
		switch {
		case filter.HouseholdID != "" && e.HouseholdID != filter.HouseholdID:
			continue
		case filter.Category != "" && e.Category != filter.Category:
			continue
		case filter.RuleID != "" && e.RuleID != filter.RuleID:
			continue
		case !filter.PaidFrom.IsZero() && e.PaidDate.Before(filter.PaidFrom):
			continue
		case !filter.PaidBefore.IsZero() && !e.PaidDate.Before(filter.PaidBefore):
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PaidDate.Equal(out[j].PaidDate) {
			return out[i].PaidDate.Before(out[j].PaidDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetExpense returns the household's expense with the given ID.
func (s *Store) GetExpense(_ context.Context, householdID, id string) (*api.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.expenses[id]
	if !ok || e.HouseholdID != householdID {
		return nil, fmt.Errorf("expense %s: %w", id, api.ErrNotFound)
	}
	return &e, nil
}

// UpdateExpense applies the non-nil fields of u.
func (s *Store) UpdateExpense(_ context.Context, u api.ExpenseUpdate) (*api.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[u.ID]
	if !ok || e.HouseholdID != u.HouseholdID {
		return nil, fmt.Errorf("expense %s: %w", u.ID, api.ErrNotFound)
	}
	if u.Name != nil {
		e.Name = *u.Name
	}
	if u.Category != nil {
		e.Category = *u.Category
	}
	if u.Amount != nil {
		e.Amount = *u.Amount
	}
	if u.Notes != nil {
		e.Notes = *u.Notes
	}
	e.UpdatedAt = u.UpdatedAt
	s.expenses[u.ID] = e
	return &e, nil
}

// GetBalance returns the household's current balance.
func (s *Store) GetBalance(_ context.Context, householdID string) (*api.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.balances[householdID]
	if !ok {
		return nil, fmt.Errorf("balance for %s: %w", householdID, api.ErrNotFound)
	}
	return &b, nil
}

// ApplyBalanceChange moves the household balance and records the change.
func (s *Store) ApplyBalanceChange(_ context.Context, change api.BalanceChange) (*api.BalanceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.applyBalance(change)
	return &entry, nil
}

// applyBalance must be called with mu held.
func (s *Store) applyBalance(change api.BalanceChange) api.BalanceEntry {
	current := s.balances[change.HouseholdID].Amount

	delta := change.Delta
	if change.Set != nil {
		delta = change.Set.Sub(current)
	}
	next := current.Add(delta)

	s.balances[change.HouseholdID] = api.Balance{
		HouseholdID: change.HouseholdID,
		Amount:      next,
		UpdatedAt:   change.At,
	}
	entry := api.BalanceEntry{
		ID:           uuid.NewString(),
		HouseholdID:  change.HouseholdID,
		Balance:      next,
		Change:       delta,
		Reason:       change.Reason,
		Type:         change.Type,
		OccurrenceID: change.OccurrenceID,
		CreatedAt:    change.At,
	}
	s.history = append(s.history, entry)
	return entry
}

// ListBalanceHistory returns matching entries oldest first.
func (s *Store) ListBalanceHistory(_ context.Context, filter api.BalanceFilter) ([]api.BalanceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []api.BalanceEntry
	for _, e := range s.history {
		switch {
		case filter.HouseholdID != "" && e.HouseholdID != filter.HouseholdID:
			continue
		case !filter.From.IsZero() && e.CreatedAt.Before(filter.From):
			continue
		case !filter.Before.IsZero() && !e.CreatedAt.Before(filter.Before):
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneIncomeRule(rule api.IncomeRule) api.IncomeRule {
	if rule.NextPayday != nil {
		next := *rule.NextPayday
		rule.NextPayday = &next
	}
	return rule
}

func cloneOccurrence(occ api.Occurrence) api.Occurrence {
	if occ.SnoozeUntil != nil {
		until := *occ.SnoozeUntil
		occ.SnoozeUntil = &until
	}
	return occ
}

func createdBefore(a, b time.Time, idA, idB string) bool {
	if !a.Equal(b) {
		return a.Before(b)
	}
	return idA < idB
}
