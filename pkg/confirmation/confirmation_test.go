package confirmation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/store/memory"
)

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memory.Store
	machine *Machine
	rule    *api.ExpenseRule
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	rule := &api.ExpenseRule{
		HouseholdID:    "h1",
		Name:           "Internet",
		Category:       api.CategoryUtilities,
		ExpectedAmount: decimal.RequireFromString("40.00"),
		DueDay:         15,
		Frequency:      api.FrequencyMonthly,
		Active:         true,
		AutoPrompt:     true,
		CreatedAt:      now.AddDate(0, -1, 0),
	}
	if err := store.CreateExpenseRule(context.Background(), rule); err != nil {
		t.Fatalf("CreateExpenseRule: %v", err)
	}
	return &fixture{
		store:   store,
		machine: New(store, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil))),
		rule:    rule,
	}
}

func (f *fixture) addOccurrence(t *testing.T, ref api.RuleRef, key string, due time.Time, status api.Status) *api.Occurrence {
	t.Helper()
	occ := &api.Occurrence{
		HouseholdID:    "h1",
		Rule:           ref,
		Period:         key,
		Name:           f.rule.Name,
		ExpectedAmount: f.rule.ExpectedAmount,
		DueDate:        due,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := f.store.InsertOccurrenceIfAbsent(context.Background(), occ); err != nil {
		t.Fatalf("InsertOccurrenceIfAbsent: %v", err)
	}
	return occ
}

func (f *fixture) expenseOccurrence(t *testing.T, status api.Status) *api.Occurrence {
	t.Helper()
	return f.addOccurrence(t, f.rule.Ref(), "2026-10", time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), status)
}

func (f *fixture) expenses(t *testing.T) []api.Expense {
	t.Helper()
	out, err := f.store.ListExpenses(context.Background(), api.ExpenseFilter{HouseholdID: "h1"})
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	return out
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	b, err := f.store.GetBalance(context.Background(), "h1")
	if errors.Is(err, api.ErrNotFound) {
		return decimal.Zero
	}
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	return b.Amount
}

func ptr[T any](v T) *T { return &v }

func TestConfirmCreatesLateExpense(t *testing.T) {
	f := setup(t)
	occ := f.expenseOccurrence(t, api.StatusPending)

	res, err := f.machine.Confirm(context.Background(), "h1", occ.ID, ConfirmInput{
		ActualAmount: ptr(decimal.RequireFromString("42.50")),
		ActualDate:   ptr(time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)),
	}, now)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !res.Applied || res.Expense == nil {
		t.Fatalf("got %+v, want applied with expense", res)
	}

	got := f.expenses(t)
	if len(got) != 1 {
		t.Fatalf("got %d expenses, want 1", len(got))
	}
	e := got[0]
	if !e.Amount.Equal(decimal.RequireFromString("42.50")) {
		t.Errorf("amount = %s, want 42.50", e.Amount)
	}
	if e.Status != api.ExpenseLate || e.Type != api.ExpenseRecurring {
		t.Errorf("status/type = %s/%s, want late/recurring", e.Status, e.Type)
	}
	if e.Category != api.CategoryUtilities || e.RuleID != f.rule.ID {
		t.Errorf("category/rule = %s/%s", e.Category, e.RuleID)
	}

	stored, err := f.store.GetOccurrence(context.Background(), "h1", occ.ID)
	if err != nil {
		t.Fatalf("GetOccurrence: %v", err)
	}
	if stored.Status != api.StatusConfirmed {
		t.Errorf("status = %s, want confirmed", stored.Status)
	}

	if got := f.balance(t); !got.Equal(decimal.RequireFromString("-42.50")) {
		t.Errorf("balance = %s, want -42.50", got)
	}

	_, err = f.machine.Confirm(context.Background(), "h1", occ.ID, ConfirmInput{}, now)
	if !errors.Is(err, api.ErrInvalidStateTransition) {
		t.Errorf("second confirm: got %v, want ErrInvalidStateTransition", err)
	}
	if n := len(f.expenses(t)); n != 1 {
		t.Errorf("second confirm wrote an expense: %d total", n)
	}
	if got := f.balance(t); !got.Equal(decimal.RequireFromString("-42.50")) {
		t.Errorf("second confirm moved balance to %s", got)
	}
}

func TestConfirmWhileSnoozed(t *testing.T) {
	f := setup(t)
	occ := f.expenseOccurrence(t, api.StatusPending)
	ctx := context.Background()

	if err := f.machine.Snooze(ctx, "h1", occ.ID, now.Add(48*time.Hour), now); err != nil {
		t.Fatalf("Snooze: %v", err)
	}

	res, err := f.machine.Confirm(ctx, "h1", occ.ID, ConfirmInput{}, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Confirm during active snooze: %v", err)
	}
	if !res.Applied || res.Expense == nil {
		t.Fatalf("got %+v, want applied with expense", res)
	}

	stored, err := f.store.GetOccurrence(ctx, "h1", occ.ID)
	if err != nil {
		t.Fatalf("GetOccurrence: %v", err)
	}
	if stored.Status != api.StatusConfirmed || stored.SnoozeUntil != nil {
		t.Errorf("got status %s snooze %v, want confirmed without snooze", stored.Status, stored.SnoozeUntil)
	}

	list, err := f.machine.List(ctx, "h1", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list.Pending) != 0 || len(list.Snoozed) != 0 {
		t.Errorf("confirmed occurrence still listed: %+v", list)
	}
}

func TestConfirmDefaultsToExpected(t *testing.T) {
	f := setup(t)
	occ := f.expenseOccurrence(t, api.StatusSnoozed)

	res, err := f.machine.Confirm(context.Background(), "h1", occ.ID, ConfirmInput{}, now)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	e := res.Expense
	if !e.Amount.Equal(occ.ExpectedAmount) || e.Status != api.ExpensePaid || !e.PaidDate.Equal(occ.DueDate) {
		t.Errorf("unexpected expense %+v", e)
	}
}

func TestConfirmIncomeOnlyTransitions(t *testing.T) {
	f := setup(t)
	ref := api.RuleRef{Kind: api.KindIncome, ID: "salary"}
	occ := f.addOccurrence(t, ref, "2026-10-16", time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), api.StatusPending)

	res, err := f.machine.Confirm(context.Background(), "h1", occ.ID, ConfirmInput{
		ActualAmount: ptr(decimal.RequireFromString("1510.25")),
	}, now)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !res.Applied || res.Expense != nil {
		t.Errorf("got %+v, want applied without expense", res)
	}
	if n := len(f.expenses(t)); n != 0 {
		t.Errorf("income confirm created %d expenses", n)
	}

	stored, _ := f.store.GetOccurrence(context.Background(), "h1", occ.ID)
	if !stored.ExpectedAmount.Equal(decimal.RequireFromString("1510.25")) {
		t.Errorf("confirmed amount = %s, want 1510.25", stored.ExpectedAmount)
	}

	if got := f.balance(t); !got.Equal(decimal.RequireFromString("1510.25")) {
		t.Errorf("balance = %s, want 1510.25", got)
	}
	history, err := f.store.ListBalanceHistory(context.Background(), api.BalanceFilter{HouseholdID: "h1"})
	if err != nil {
		t.Fatalf("ListBalanceHistory: %v", err)
	}
	if len(history) != 1 || history[0].Type != api.BalanceIncome || history[0].Reason != "Income: Internet" {
		t.Errorf("history = %+v", history)
	}
}

func TestConfirmMissingRuleFallsBackToOther(t *testing.T) {
	f := setup(t)
	occ := f.addOccurrence(t, api.RuleRef{Kind: api.KindExpense, ID: "deleted"}, "2026-10",
		time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), api.StatusPending)

	res, err := f.machine.Confirm(context.Background(), "h1", occ.ID, ConfirmInput{}, now)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if res.Expense.Category != api.CategoryOther {
		t.Errorf("category = %s, want Other", res.Expense.Category)
	}
}

func TestConfirmRejects(t *testing.T) {
	tests := []struct {
		name    string
		status  api.Status
		input   ConfirmInput
		wantErr error
	}{
		{"already confirmed", api.StatusConfirmed, ConfirmInput{}, api.ErrInvalidStateTransition},
		{"skipped", api.StatusSkipped, ConfirmInput{}, api.ErrInvalidStateTransition},
		{"archived", api.StatusArchived, ConfirmInput{}, api.ErrInvalidStateTransition},
		{"negative amount", api.StatusPending, ConfirmInput{ActualAmount: ptr(decimal.NewFromInt(-1))}, api.ErrValidation},
		{"amount too large", api.StatusPending, ConfirmInput{ActualAmount: ptr(decimal.NewFromInt(10_000_000))}, api.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			occ := f.expenseOccurrence(t, tt.status)
			_, err := f.machine.Confirm(context.Background(), "h1", occ.ID, tt.input, now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
			if n := len(f.expenses(t)); n != 0 {
				t.Errorf("rejected confirm wrote %d expenses", n)
			}
		})
	}
}

func TestConfirmOtherHousehold(t *testing.T) {
	f := setup(t)
	occ := f.expenseOccurrence(t, api.StatusPending)

	_, err := f.machine.Confirm(context.Background(), "h2", occ.ID, ConfirmInput{}, now)
	if !errors.Is(err, api.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestConcurrentConfirmCreatesOneExpense(t *testing.T) {
	f := setup(t)
	occ := f.expenseOccurrence(t, api.StatusPending)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.machine.Confirm(context.Background(), "h1", occ.ID, ConfirmInput{}, now)
			if err != nil && !errors.Is(err, api.ErrInvalidStateTransition) {
				t.Errorf("Confirm: %v", err)
			}
			if res.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if applied != 1 {
		t.Errorf("applied %d times, want 1", applied)
	}
	if n := len(f.expenses(t)); n != 1 {
		t.Errorf("got %d expenses, want 1", n)
	}
	if got := f.balance(t); !got.Equal(decimal.RequireFromString("-40")) {
		t.Errorf("balance = %s, want a single -40 change", got)
	}
}

func TestSnoozeMovesBetweenViews(t *testing.T) {
	f := setup(t)
	occ := f.expenseOccurrence(t, api.StatusPending)
	ctx := context.Background()

	if err := f.machine.Snooze(ctx, "h1", occ.ID, now.Add(-time.Hour), now); !errors.Is(err, api.ErrValidation) {
		t.Fatalf("past snooze: got %v, want ErrValidation", err)
	}

	until := now.Add(24 * time.Hour)
	if err := f.machine.Snooze(ctx, "h1", occ.ID, until, now); err != nil {
		t.Fatalf("Snooze: %v", err)
	}

	list, err := f.machine.List(ctx, "h1", now)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list.Pending) != 0 || len(list.Snoozed) != 1 {
		t.Errorf("while snoozed: pending=%d snoozed=%d", len(list.Pending), len(list.Snoozed))
	}

	later := until.Add(time.Minute)
	list, err = f.machine.List(ctx, "h1", later)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list.Pending) != 1 || len(list.Snoozed) != 0 {
		t.Errorf("after expiry: pending=%d snoozed=%d", len(list.Pending), len(list.Snoozed))
	}
	if list.Pending[0].Status != api.StatusSnoozed {
		t.Errorf("stored status changed to %s", list.Pending[0].Status)
	}

	if err := f.machine.Snooze(ctx, "h1", occ.ID, until, now); !errors.Is(err, api.ErrInvalidStateTransition) {
		t.Errorf("snooze while snoozed: got %v, want ErrInvalidStateTransition", err)
	}
	if err := f.machine.Snooze(ctx, "h1", occ.ID, later.Add(time.Hour), later); err != nil {
		t.Errorf("re-snooze after expiry: %v", err)
	}
}

func TestListOrdersByDueDate(t *testing.T) {
	f := setup(t)
	f.addOccurrence(t, f.rule.Ref(), "2026-10", time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), api.StatusPending)
	f.addOccurrence(t, f.rule.Ref(), "2026-09", time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC), api.StatusPending)
	f.addOccurrence(t, f.rule.Ref(), "2026-08", time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC), api.StatusConfirmed)

	list, err := f.machine.List(context.Background(), "h1", now)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list.Pending) != 2 {
		t.Fatalf("got %d pending, want 2", len(list.Pending))
	}
	if list.Pending[0].Period != "2026-09" {
		t.Errorf("first pending period = %s, want 2026-09", list.Pending[0].Period)
	}
}

func TestSkip(t *testing.T) {
	tests := []struct {
		status  api.Status
		wantErr error
	}{
		{api.StatusPending, nil},
		{api.StatusSnoozed, nil},
		{api.StatusConfirmed, api.ErrInvalidStateTransition},
		{api.StatusArchived, api.ErrInvalidStateTransition},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := setup(t)
			occ := f.expenseOccurrence(t, tt.status)
			err := f.machine.Skip(context.Background(), "h1", occ.ID, now)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			stored, _ := f.store.GetOccurrence(context.Background(), "h1", occ.ID)
			if stored.Status != api.StatusSkipped || stored.SnoozeUntil != nil {
				t.Errorf("got status %s snooze %v", stored.Status, stored.SnoozeUntil)
			}
			if n := len(f.expenses(t)); n != 0 {
				t.Errorf("skip created %d expenses", n)
			}
			if got := f.balance(t); !got.IsZero() {
				t.Errorf("skip moved balance to %s", got)
			}
		})
	}
}

func TestAmend(t *testing.T) {
	tests := []struct {
		name    string
		status  api.Status
		amount  string
		wantErr error
	}{
		{"pending", api.StatusPending, "55.10", nil},
		{"snoozed", api.StatusSnoozed, "55.10", nil},
		{"zero", api.StatusPending, "0", api.ErrValidation},
		{"too large", api.StatusPending, "10000000", api.ErrValidation},
		{"confirmed", api.StatusConfirmed, "55.10", api.ErrInvalidStateTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			occ := f.expenseOccurrence(t, tt.status)
			err := f.machine.Amend(context.Background(), "h1", occ.ID, decimal.RequireFromString(tt.amount), now)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			stored, _ := f.store.GetOccurrence(context.Background(), "h1", occ.ID)
			if !stored.ExpectedAmount.Equal(decimal.RequireFromString(tt.amount)) || stored.Status != tt.status {
				t.Errorf("got amount %s status %s", stored.ExpectedAmount, stored.Status)
			}
		})
	}
}

func TestArchive(t *testing.T) {
	f := setup(t)
	old := f.expenseOccurrence(t, api.StatusConfirmed)
	if _, err := f.store.UpdateOccurrence(context.Background(), api.OccurrenceUpdate{
		ID: old.ID, HouseholdID: "h1", From: []api.Status{api.StatusConfirmed},
		UpdatedAt: now.AddDate(0, 0, -45),
	}); err != nil {
		t.Fatalf("UpdateOccurrence: %v", err)
	}
	f.addOccurrence(t, f.rule.Ref(), "2026-09", time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC), api.StatusSkipped)

	n, err := f.machine.Archive(context.Background(), now, 0)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if n != 1 {
		t.Errorf("archived %d, want 1", n)
	}
	stored, _ := f.store.GetOccurrence(context.Background(), "h1", old.ID)
	if stored.Status != api.StatusArchived {
		t.Errorf("status = %s, want archived", stored.Status)
	}
}

func TestIsLate(t *testing.T) {
	due := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		paid time.Time
		want bool
	}{
		{time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), false},
		{time.Date(2026, 10, 15, 23, 59, 0, 0, time.UTC), false},
		{time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), true},
		{time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		if got := IsLate(tt.paid, due); got != tt.want {
			t.Errorf("IsLate(%v) = %v, want %v", tt.paid, got, tt.want)
		}
	}
}
