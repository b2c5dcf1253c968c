// Package storetest holds behavioral tests shared by every api.Store implementation.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeledger/pkg/api"
)

// Factory returns an empty store for a single subtest.
type Factory func(t *testing.T) api.Store

var base = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

// Run executes the full conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("rules round trip", func(t *testing.T) { testRules(t, newStore(t)) })
	t.Run("rules are scoped to household", func(t *testing.T) { testRuleScoping(t, newStore(t)) })
	t.Run("insert if absent", func(t *testing.T) { testInsertIfAbsent(t, newStore(t)) })
	t.Run("concurrent insert if absent", func(t *testing.T) { testConcurrentInsert(t, newStore(t)) })
	t.Run("list occurrences filters", func(t *testing.T) { testListOccurrences(t, newStore(t)) })
	t.Run("conditional update", func(t *testing.T) { testConditionalUpdate(t, newStore(t)) })
	t.Run("update inserts expense atomically", func(t *testing.T) { testUpdateWithExpense(t, newStore(t)) })
	t.Run("archive", func(t *testing.T) { testArchive(t, newStore(t)) })
	t.Run("expenses", func(t *testing.T) { testExpenses(t, newStore(t)) })
	t.Run("update expense", func(t *testing.T) { testUpdateExpense(t, newStore(t)) })
	t.Run("balance", func(t *testing.T) { testBalance(t, newStore(t)) })
	t.Run("update applies balance atomically", func(t *testing.T) { testUpdateWithBalance(t, newStore(t)) })
}

func expenseRule(household string) *api.ExpenseRule {
	return &api.ExpenseRule{
		HouseholdID:    household,
		Name:           "Internet",
		Category:       api.CategoryUtilities,
		ExpectedAmount: decimal.RequireFromString("59.99"),
		DueDay:         15,
		Frequency:      api.FrequencyMonthly,
		Active:         true,
		AutoPrompt:     true,
		CreatedAt:      base,
		UpdatedAt:      base,
	}
}

func occurrence(rule *api.ExpenseRule, period string, due time.Time) *api.Occurrence {
	return &api.Occurrence{
		HouseholdID:    rule.HouseholdID,
		Rule:           rule.Ref(),
		Period:         period,
		Name:           rule.Name,
		ExpectedAmount: rule.ExpectedAmount,
		DueDate:        due,
		Status:         api.StatusPending,
		CreatedAt:      base,
		UpdatedAt:      base,
	}
}

func mustCreateExpenseRule(t *testing.T, s api.Store, household string) *api.ExpenseRule {
	t.Helper()
	rule := expenseRule(household)
	if err := s.CreateExpenseRule(context.Background(), rule); err != nil {
		t.Fatalf("CreateExpenseRule: %v", err)
	}
	return rule
}

func mustInsert(t *testing.T, s api.Store, occ *api.Occurrence) *api.Occurrence {
	t.Helper()
	created, err := s.InsertOccurrenceIfAbsent(context.Background(), occ)
	if err != nil {
		t.Fatalf("InsertOccurrenceIfAbsent: %v", err)
	}
	if !created {
		t.Fatalf("expected occurrence %s to be created", occ.Period)
	}
	return occ
}

func testRules(t *testing.T, s api.Store) {
	ctx := context.Background()
	payday := time.Date(2026, 10, 24, 0, 0, 0, 0, time.UTC)

	income := &api.IncomeRule{
		HouseholdID: "h1",
		Name:        "Salary",
		Amount:      decimal.RequireFromString("2500.00"),
		Frequency:   api.FrequencyBiweekly,
		NextPayday:  &payday,
		Active:      true,
		CreatedAt:   base,
		UpdatedAt:   base,
	}
	if err := s.CreateIncomeRule(ctx, income); err != nil {
		t.Fatalf("CreateIncomeRule: %v", err)
	}
	if income.ID == "" {
		t.Fatal("expected an ID to be assigned")
	}

	got, err := s.GetIncomeRule(ctx, "h1", income.ID)
	if err != nil {
		t.Fatalf("GetIncomeRule: %v", err)
	}
	if got.Name != "Salary" || !got.Amount.Equal(income.Amount) || got.NextPayday == nil || !got.NextPayday.Equal(payday) {
		t.Errorf("got %+v, want %+v", got, income)
	}

	got.Active = false
	got.UpdatedAt = base.Add(time.Hour)
	if err := s.UpdateIncomeRule(ctx, got); err != nil {
		t.Fatalf("UpdateIncomeRule: %v", err)
	}

	active, err := s.ListIncomeRules(ctx, api.RuleFilter{HouseholdID: "h1", ActiveOnly: true})
	if err != nil {
		t.Fatalf("ListIncomeRules: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("got %d active rules, want 0", len(active))
	}

	expense := mustCreateExpenseRule(t, s, "h1")
	rules, err := s.ListExpenseRules(ctx, api.RuleFilter{ActiveOnly: true})
	if err != nil {
		t.Fatalf("ListExpenseRules: %v", err)
	}
	if len(rules) != 1 || rules[0].ID != expense.ID || rules[0].Category != api.CategoryUtilities {
		t.Errorf("got %+v, want the internet rule", rules)
	}
}

func testRuleScoping(t *testing.T, s api.Store) {
	ctx := context.Background()
	rule := mustCreateExpenseRule(t, s, "h1")

	if _, err := s.GetExpenseRule(ctx, "h2", rule.ID); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other household, got %v", err)
	}

	other := *rule
	other.HouseholdID = "h2"
	if err := s.UpdateExpenseRule(ctx, &other); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("expected ErrNotFound updating across households, got %v", err)
	}
}

func testInsertIfAbsent(t *testing.T, s api.Store) {
	ctx := context.Background()
	rule := mustCreateExpenseRule(t, s, "h1")
	due := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

	first := mustInsert(t, s, occurrence(rule, "2026-10", due))

	created, err := s.InsertOccurrenceIfAbsent(ctx, occurrence(rule, "2026-10", due))
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if created {
		t.Error("second insert for the same period should not create")
	}

	// Dedup spans every status.
	if _, err := s.UpdateOccurrence(ctx, api.OccurrenceUpdate{
		ID: first.ID, HouseholdID: "h1",
		From:   []api.Status{api.StatusPending},
		Status: api.StatusSkipped, UpdatedAt: base,
	}); err != nil {
		t.Fatalf("UpdateOccurrence: %v", err)
	}
	created, err = s.InsertOccurrenceIfAbsent(ctx, occurrence(rule, "2026-10", due))
	if err != nil {
		t.Fatalf("insert after skip: %v", err)
	}
	if created {
		t.Error("skipped period must not be recreated")
	}

	// Another rule may use the same period key.
	other := mustCreateExpenseRule(t, s, "h1")
	mustInsert(t, s, occurrence(other, "2026-10", due))
}

func testConcurrentInsert(t *testing.T, s api.Store) {
	rule := mustCreateExpenseRule(t, s, "h1")
	due := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.InsertOccurrenceIfAbsent(context.Background(), occurrence(rule, "2026-10", due))
			if err != nil {
				t.Errorf("InsertOccurrenceIfAbsent: %v", err)
				return
			}
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("got %d inserts, want exactly 1", created)
	}
}

func testListOccurrences(t *testing.T, s api.Store) {
	ctx := context.Background()
	rule := mustCreateExpenseRule(t, s, "h1")
	other := mustCreateExpenseRule(t, s, "h2")

	sept := mustInsert(t, s, occurrence(rule, "2026-09", time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)))
	oct := occurrence(rule, "2026-10", time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC))
	oct.CreatedAt = base.AddDate(0, 0, 10)
	mustInsert(t, s, oct)
	mustInsert(t, s, occurrence(other, "2026-10", time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)))

	tests := []struct {
		name   string
		filter api.OccurrenceFilter
		want   int
	}{
		{"household", api.OccurrenceFilter{HouseholdID: "h1"}, 2},
		{"all households", api.OccurrenceFilter{}, 3},
		{"kind", api.OccurrenceFilter{HouseholdID: "h1", Kind: api.KindIncome}, 0},
		{"rule", api.OccurrenceFilter{Rule: &api.RuleRef{Kind: api.KindExpense, ID: rule.ID}}, 2},
		{"status", api.OccurrenceFilter{HouseholdID: "h1", Statuses: []api.Status{api.StatusConfirmed}}, 0},
		{"due before", api.OccurrenceFilter{HouseholdID: "h1", DueBefore: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)}, 1},
		{"due before ignores time of day", api.OccurrenceFilter{HouseholdID: "h1", DueBefore: time.Date(2026, 10, 15, 17, 30, 0, 0, time.UTC)}, 1},
		{"due before next morning", api.OccurrenceFilter{HouseholdID: "h1", DueBefore: time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)}, 2},
		{"created range", api.OccurrenceFilter{HouseholdID: "h1", CreatedFrom: base.AddDate(0, 0, 5), CreatedBefore: base.AddDate(0, 0, 20)}, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.ListOccurrences(ctx, tc.filter)
			if err != nil {
				t.Fatalf("ListOccurrences: %v", err)
			}
			if len(got) != tc.want {
				t.Errorf("got %d occurrences, want %d", len(got), tc.want)
			}
		})
	}

	all, err := s.ListOccurrences(ctx, api.OccurrenceFilter{HouseholdID: "h1"})
	if err != nil {
		t.Fatalf("ListOccurrences: %v", err)
	}
	if len(all) == 2 && all[0].ID != sept.ID {
		t.Errorf("expected results ordered by due date, got %s first", all[0].Period)
	}
}

func testConditionalUpdate(t *testing.T, s api.Store) {
	ctx := context.Background()
	rule := mustCreateExpenseRule(t, s, "h1")
	occ := mustInsert(t, s, occurrence(rule, "2026-10", time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)))

	until := base.AddDate(0, 0, 3)
	applied, err := s.UpdateOccurrence(ctx, api.OccurrenceUpdate{
		ID: occ.ID, HouseholdID: "h1",
		From:   []api.Status{api.StatusPending},
		Status: api.StatusSnoozed, SnoozeUntil: &until, UpdatedAt: base.Add(time.Minute),
	})
	if err != nil || !applied {
		t.Fatalf("snooze: applied=%v err=%v", applied, err)
	}

	got, err := s.GetOccurrence(ctx, "h1", occ.ID)
	if err != nil {
		t.Fatalf("GetOccurrence: %v", err)
	}
	if got.Status != api.StatusSnoozed || got.SnoozeUntil == nil || !got.SnoozeUntil.Equal(until) {
		t.Errorf("got status %s snooze %v, want snoozed until %v", got.Status, got.SnoozeUntil, until)
	}

	// Stale precondition.
	applied, err = s.UpdateOccurrence(ctx, api.OccurrenceUpdate{
		ID: occ.ID, HouseholdID: "h1",
		From:   []api.Status{api.StatusPending},
		Status: api.StatusSkipped, UpdatedAt: base.Add(2 * time.Minute),
	})
	if err != nil {
		t.Fatalf("stale update: %v", err)
	}
	if applied {
		t.Error("update with stale precondition should not apply")
	}

	amount := decimal.RequireFromString("64.99")
	applied, err = s.UpdateOccurrence(ctx, api.OccurrenceUpdate{
		ID: occ.ID, HouseholdID: "h1",
		From:           []api.Status{api.StatusPending, api.StatusSnoozed},
		ExpectedAmount: &amount, UpdatedAt: base.Add(3 * time.Minute),
	})
	if err != nil || !applied {
		t.Fatalf("amend: applied=%v err=%v", applied, err)
	}
	got, err = s.GetOccurrence(ctx, "h1", occ.ID)
	if err != nil {
		t.Fatalf("GetOccurrence: %v", err)
	}
	if got.Status != api.StatusSnoozed || !got.ExpectedAmount.Equal(amount) {
		t.Errorf("got status %s amount %s, want snoozed 64.99", got.Status, got.ExpectedAmount)
	}

	if _, err := s.UpdateOccurrence(ctx, api.OccurrenceUpdate{ID: occ.ID, HouseholdID: "h2", From: []api.Status{api.StatusSnoozed}, Status: api.StatusSkipped}); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other household, got %v", err)
	}
}

func testUpdateWithExpense(t *testing.T, s api.Store) {
	ctx := context.Background()
	rule := mustCreateExpenseRule(t, s, "h1")
	due := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	occ := mustInsert(t, s, occurrence(rule, "2026-10", due))

	newExpense := func() *api.Expense {
		return &api.Expense{
			HouseholdID: "h1",
			RuleID:      rule.ID,
			Name:        rule.Name,
			Category:    rule.Category,
			Amount:      decimal.RequireFromString("59.99"),
			DueDate:     &due,
			PaidDate:    due,
			Status:      api.ExpensePaid,
			Type:        api.ExpenseRecurring,
			CreatedAt:   base,
			UpdatedAt:   base,
		}
	}

	confirm := func() (bool, error) {
		return s.UpdateOccurrence(ctx, api.OccurrenceUpdate{
			ID: occ.ID, HouseholdID: "h1",
			From:   []api.Status{api.StatusPending, api.StatusSnoozed},
			Status: api.StatusConfirmed, UpdatedAt: base.Add(time.Hour),
			Expense: newExpense(),
		})
	}

	if applied, err := confirm(); err != nil || !applied {
		t.Fatalf("first confirm: applied=%v err=%v", applied, err)
	}
	if applied, err := confirm(); err != nil || applied {
		t.Fatalf("second confirm: applied=%v err=%v, want not applied", applied, err)
	}

	expenses, err := s.ListExpenses(ctx, api.ExpenseFilter{HouseholdID: "h1"})
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	if len(expenses) != 1 {
		t.Fatalf("got %d expenses, want 1", len(expenses))
	}
	if expenses[0].RuleID != rule.ID || expenses[0].DueDate == nil || !expenses[0].DueDate.Equal(due) {
		t.Errorf("unexpected expense %+v", expenses[0])
	}
}

func testArchive(t *testing.T, s api.Store) {
	ctx := context.Background()
	rule := mustCreateExpenseRule(t, s, "h1")
	now := base.AddDate(0, 2, 0)
	cutoff := now.AddDate(0, 0, -30)

	old := mustInsert(t, s, occurrence(rule, "2026-08", time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)))
	recent := mustInsert(t, s, occurrence(rule, "2026-09", time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)))
	pending := mustInsert(t, s, occurrence(rule, "2026-10", time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)))

	for _, u := range []struct {
		occ    *api.Occurrence
		status api.Status
		at     time.Time
	}{
		{old, api.StatusConfirmed, cutoff.Add(-time.Hour)},
		{recent, api.StatusSkipped, cutoff.Add(time.Hour)},
	} {
		if _, err := s.UpdateOccurrence(ctx, api.OccurrenceUpdate{
			ID: u.occ.ID, HouseholdID: "h1",
			From: []api.Status{api.StatusPending}, Status: u.status, UpdatedAt: u.at,
		}); err != nil {
			t.Fatalf("UpdateOccurrence: %v", err)
		}
	}

	n, err := s.ArchiveOccurrences(ctx, cutoff, now)
	if err != nil {
		t.Fatalf("ArchiveOccurrences: %v", err)
	}
	if n != 1 {
		t.Errorf("archived %d, want 1", n)
	}

	want := map[string]api.Status{old.ID: api.StatusArchived, recent.ID: api.StatusSkipped, pending.ID: api.StatusPending}
	for id, status := range want {
		got, err := s.GetOccurrence(ctx, "h1", id)
		if err != nil {
			t.Fatalf("GetOccurrence: %v", err)
		}
		if got.Status != status {
			t.Errorf("occurrence %s: got %s, want %s", got.Period, got.Status, status)
		}
	}

	if n, _ := s.ArchiveOccurrences(ctx, cutoff, now); n != 0 {
		t.Errorf("second archive changed %d rows, want 0", n)
	}
}

func testExpenses(t *testing.T, s api.Store) {
	ctx := context.Background()
	for i, c := range []api.Category{api.CategoryGroceries, api.CategoryGroceries, api.CategoryDiningOut} {
		e := &api.Expense{
			HouseholdID: "h1",
			Name:        "Shop",
			Category:    c,
			Amount:      decimal.NewFromInt(int64(10 * (i + 1))),
			PaidDate:    time.Date(2026, 9, 29+i, 0, 0, 0, 0, time.UTC),
			Status:      api.ExpensePaid,
			Type:        api.ExpenseOneTime,
			CreatedAt:   base,
			UpdatedAt:   base,
		}
		if err := s.CreateExpense(ctx, e); err != nil {
			t.Fatalf("CreateExpense: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter api.ExpenseFilter
		want   int
	}{
		{"household", api.ExpenseFilter{HouseholdID: "h1"}, 3},
		{"other household", api.ExpenseFilter{HouseholdID: "h2"}, 0},
		{"category", api.ExpenseFilter{HouseholdID: "h1", Category: api.CategoryGroceries}, 2},
		{"september", api.ExpenseFilter{
			HouseholdID: "h1",
			PaidFrom:    time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
			PaidBefore:  time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		}, 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.ListExpenses(ctx, tc.filter)
			if err != nil {
				t.Fatalf("ListExpenses: %v", err)
			}
			if len(got) != tc.want {
				t.Errorf("got %d expenses, want %d", len(got), tc.want)
			}
		})
	}
}

func testUpdateExpense(t *testing.T, s api.Store) {
	ctx := context.Background()
	e := &api.Expense{
		HouseholdID: "h1",
		Name:        "Groceries",
		Category:    api.CategoryGroceries,
		Amount:      decimal.RequireFromString("84.20"),
		PaidDate:    time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC),
		Status:      api.ExpensePaid,
		Type:        api.ExpenseOneTime,
		Notes:       "weekly shop",
		CreatedAt:   base,
		UpdatedAt:   base,
	}
	if err := s.CreateExpense(ctx, e); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	name := "Farmers market"
	amount := decimal.RequireFromString("91.05")
	got, err := s.UpdateExpense(ctx, api.ExpenseUpdate{
		ID:          e.ID,
		HouseholdID: "h1",
		Name:        &name,
		Amount:      &amount,
		UpdatedAt:   base.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	if got.Name != name || !got.Amount.Equal(amount) {
		t.Errorf("got %s %s, want %s %s", got.Name, got.Amount, name, amount)
	}
	if got.Category != api.CategoryGroceries || got.Notes != "weekly shop" || got.Status != api.ExpensePaid {
		t.Errorf("unset fields changed: %+v", got)
	}

	stored, err := s.GetExpense(ctx, "h1", e.ID)
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if stored.Name != name || !stored.UpdatedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("stored %+v", stored)
	}

	if _, err := s.UpdateExpense(ctx, api.ExpenseUpdate{ID: e.ID, HouseholdID: "h2", Name: &name}); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("other household: got %v, want ErrNotFound", err)
	}
	if _, err := s.GetExpense(ctx, "h2", e.ID); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("other household: got %v, want ErrNotFound", err)
	}
}

func testBalance(t *testing.T, s api.Store) {
	ctx := context.Background()

	if _, err := s.GetBalance(ctx, "h1"); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("unset balance: got %v, want ErrNotFound", err)
	}

	set := decimal.RequireFromString("1000.00")
	entry, err := s.ApplyBalanceChange(ctx, api.BalanceChange{
		HouseholdID: "h1",
		Set:         &set,
		Type:        api.BalanceManual,
		Reason:      "Initial balance",
		At:          base,
	})
	if err != nil {
		t.Fatalf("ApplyBalanceChange: %v", err)
	}
	if !entry.Balance.Equal(set) || !entry.Change.Equal(set) {
		t.Errorf("initial entry = %+v", entry)
	}

	entry, err = s.ApplyBalanceChange(ctx, api.BalanceChange{
		HouseholdID: "h1",
		Delta:       decimal.RequireFromString("-59.99"),
		Type:        api.BalanceExpense,
		Reason:      "Expense: Internet",
		At:          base.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("ApplyBalanceChange: %v", err)
	}
	if !entry.Balance.Equal(decimal.RequireFromString("940.01")) {
		t.Errorf("balance after expense = %s, want 940.01", entry.Balance)
	}

	set = decimal.RequireFromString("900")
	entry, err = s.ApplyBalanceChange(ctx, api.BalanceChange{
		HouseholdID: "h1",
		Set:         &set,
		Type:        api.BalanceManual,
		Reason:      "Bank reconcile",
		At:          base.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("ApplyBalanceChange: %v", err)
	}
	if !entry.Change.Equal(decimal.RequireFromString("-40.01")) {
		t.Errorf("manual change = %s, want -40.01", entry.Change)
	}

	b, err := s.GetBalance(ctx, "h1")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if !b.Amount.Equal(set) {
		t.Errorf("balance = %s, want 900", b.Amount)
	}

	history, err := s.ListBalanceHistory(ctx, api.BalanceFilter{HouseholdID: "h1"})
	if err != nil {
		t.Fatalf("ListBalanceHistory: %v", err)
	}
	if len(history) != 3 || history[0].Reason != "Initial balance" || history[2].Type != api.BalanceManual {
		t.Errorf("history = %+v", history)
	}

	ranged, err := s.ListBalanceHistory(ctx, api.BalanceFilter{HouseholdID: "h1", From: base.Add(time.Hour), Before: base.Add(2 * time.Hour)})
	if err != nil {
		t.Fatalf("ListBalanceHistory: %v", err)
	}
	if len(ranged) != 1 || ranged[0].Type != api.BalanceExpense {
		t.Errorf("ranged history = %+v", ranged)
	}

	if other, _ := s.ListBalanceHistory(ctx, api.BalanceFilter{HouseholdID: "h2"}); len(other) != 0 {
		t.Errorf("h2 history = %+v", other)
	}
}

func testUpdateWithBalance(t *testing.T, s api.Store) {
	ctx := context.Background()
	rule := mustCreateExpenseRule(t, s, "h1")
	occ := mustInsert(t, s, occurrence(rule, "2026-10", time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)))

	change := &api.BalanceChange{
		HouseholdID:  "h1",
		Delta:        decimal.RequireFromString("-59.99"),
		Type:         api.BalanceExpense,
		Reason:       "Expense: Internet",
		OccurrenceID: occ.ID,
		At:           base.Add(time.Hour),
	}
	confirm := func() (bool, error) {
		return s.UpdateOccurrence(ctx, api.OccurrenceUpdate{
			ID: occ.ID, HouseholdID: "h1",
			From:   []api.Status{api.StatusPending, api.StatusSnoozed},
			Status: api.StatusConfirmed, UpdatedAt: base.Add(time.Hour),
			Balance: change,
		})
	}

	if applied, err := confirm(); err != nil || !applied {
		t.Fatalf("first confirm: applied=%v err=%v", applied, err)
	}
	if applied, err := confirm(); err != nil || applied {
		t.Fatalf("second confirm: applied=%v err=%v, want not applied", applied, err)
	}

	b, err := s.GetBalance(ctx, "h1")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if !b.Amount.Equal(decimal.RequireFromString("-59.99")) {
		t.Errorf("balance = %s, want -59.99 after one confirm", b.Amount)
	}
	history, err := s.ListBalanceHistory(ctx, api.BalanceFilter{HouseholdID: "h1"})
	if err != nil {
		t.Fatalf("ListBalanceHistory: %v", err)
	}
	if len(history) != 1 || history[0].OccurrenceID != occ.ID {
		t.Errorf("history = %+v", history)
	}
}
