package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeledger/pkg/analytics"
	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/confirmation"
	"github.com/ArionMiles/homeledger/pkg/notify"
	"github.com/ArionMiles/homeledger/pkg/store/memory"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newService(t *testing.T, start time.Time) (*Service, *clock, *notify.Memory) {
	t.Helper()
	return newServiceWithStore(t, memory.New(), start)
}

func newServiceWithStore(t *testing.T, store api.Store, start time.Time) (*Service, *clock, *notify.Memory) {
	t.Helper()
	c := &clock{t: start}
	notes := notify.NewMemory()
	svc := New(store, notes, Config{
		Clock:             c.Now,
		SummaryRetryDelay: time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, c, notes
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func rent() *api.ExpenseRule {
	return &api.ExpenseRule{
		HouseholdID:    "h1",
		Name:           "  Rent ",
		Category:       api.CategoryHousing,
		ExpectedAmount: dec("1200"),
		DueDay:         1,
		Frequency:      api.FrequencyMonthly,
		Active:         true,
		AutoPrompt:     true,
	}
}

func TestCreateExpenseRuleCreatesCurrentOccurrence(t *testing.T) {
	svc, _, _ := newService(t, time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	rule := rent()
	if err := svc.CreateExpenseRule(ctx, rule); err != nil {
		t.Fatalf("CreateExpenseRule: %v", err)
	}
	if rule.ID == "" || rule.Name != "Rent" {
		t.Errorf("rule not normalized: %+v", rule)
	}

	list, err := svc.ListOccurrences(ctx, "h1")
	if err != nil {
		t.Fatalf("ListOccurrences: %v", err)
	}
	if len(list.Pending) != 1 || list.Pending[0].Period != "2026-07" {
		t.Errorf("got %+v, want the July occurrence", list.Pending)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	svc, _, _ := newService(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	bad := rent()
	bad.DueDay = 32
	if err := svc.CreateExpenseRule(ctx, bad); !errors.Is(err, api.ErrValidation) {
		t.Errorf("due day 32: got %v", err)
	}

	income := &api.IncomeRule{HouseholdID: "h1", Name: "Salary", Amount: dec("100"), Frequency: api.FrequencyWeekly, Active: true}
	if err := svc.CreateIncomeRule(ctx, income); !errors.Is(err, api.ErrValidation) {
		t.Errorf("weekly without payday: got %v", err)
	}

	rules, _ := svc.ListExpenseRules(ctx, "h1")
	if len(rules) != 0 {
		t.Errorf("invalid rules were stored: %+v", rules)
	}
}

func TestBackfillConfirmAndSummarize(t *testing.T) {
	svc, c, notes := newService(t, time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	rule := rent()
	if err := svc.CreateExpenseRule(ctx, rule); err != nil {
		t.Fatalf("CreateExpenseRule: %v", err)
	}

	c.t = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	result, err := svc.RunBackfill(ctx, nil)
	if err != nil {
		t.Fatalf("RunBackfill: %v", err)
	}
	if result.Created != 3 {
		t.Errorf("created %d, want 3 (Aug, Sep, Oct)", result.Created)
	}
	if got := notes.List("h1"); len(got) != 1 || !strings.Contains(got[0].Message, "3 bills for Rent") {
		t.Errorf("notifications = %+v", got)
	}

	list, err := svc.ListOccurrences(ctx, "h1")
	if err != nil {
		t.Fatalf("ListOccurrences: %v", err)
	}
	if len(list.Pending) != 4 {
		t.Fatalf("got %d pending, want 4", len(list.Pending))
	}

	october := list.Pending[3]
	amount := dec("1250")
	paid := time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC)
	res, err := svc.Confirm(ctx, "h1", october.ID, confirmation.ConfirmInput{ActualAmount: &amount, ActualDate: &paid})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if res.Expense.Status != api.ExpenseLate {
		t.Errorf("expense status = %s, want late", res.Expense.Status)
	}

	if err := svc.Skip(ctx, "h1", list.Pending[0].ID); err != nil {
		t.Fatalf("Skip: %v", err)
	}

	summary, err := svc.DashboardSummary(ctx, "h1", time.October, 2026)
	if err != nil {
		t.Fatalf("DashboardSummary: %v", err)
	}
	if !summary.Expenses.Equal(amount) {
		t.Errorf("expenses = %s, want 1250", summary.Expenses)
	}
	if !summary.UpcomingBills.Equal(dec("2400")) {
		t.Errorf("upcoming = %s, want 2400", summary.UpcomingBills)
	}
	if summary.Status != analytics.StatusCritical {
		t.Errorf("status = %s, want critical with no income", summary.Status)
	}

	again, err := svc.RunBackfill(ctx, nil)
	if err != nil {
		t.Fatalf("RunBackfill: %v", err)
	}
	if again.Created != 0 {
		t.Errorf("second backfill created %d", again.Created)
	}
}

func TestSnoozeThroughService(t *testing.T) {
	svc, c, _ := newService(t, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	if err := svc.CreateExpenseRule(ctx, rent()); err != nil {
		t.Fatalf("CreateExpenseRule: %v", err)
	}
	list, _ := svc.ListOccurrences(ctx, "h1")
	id := list.Pending[0].ID

	if err := svc.Snooze(ctx, "h1", id, c.t); !errors.Is(err, api.ErrValidation) {
		t.Errorf("snooze until now: got %v, want ErrValidation", err)
	}
	if err := svc.Snooze(ctx, "h1", id, c.t.Add(48*time.Hour)); err != nil {
		t.Fatalf("Snooze: %v", err)
	}
	if list, _ = svc.ListOccurrences(ctx, "h1"); len(list.Snoozed) != 1 {
		t.Errorf("want one snoozed, got %+v", list)
	}

	c.t = c.t.Add(72 * time.Hour)
	if list, _ = svc.ListOccurrences(ctx, "h1"); len(list.Pending) != 1 {
		t.Errorf("want expired snooze back in pending, got %+v", list)
	}
}

func TestAmendThroughService(t *testing.T) {
	svc, _, _ := newService(t, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	if err := svc.CreateExpenseRule(ctx, rent()); err != nil {
		t.Fatalf("CreateExpenseRule: %v", err)
	}
	list, _ := svc.ListOccurrences(ctx, "h1")
	id := list.Pending[0].ID

	if err := svc.Amend(ctx, "h1", id, dec("1300")); err != nil {
		t.Fatalf("Amend: %v", err)
	}
	res, err := svc.Confirm(ctx, "h1", id, confirmation.ConfirmInput{})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !res.Expense.Amount.Equal(dec("1300")) {
		t.Errorf("amount = %s, want amended 1300", res.Expense.Amount)
	}
	if err := svc.Amend(ctx, "h1", id, dec("10")); !errors.Is(err, api.ErrInvalidStateTransition) {
		t.Errorf("amend after confirm: got %v", err)
	}
}

func TestRuleEditsKeepSnapshots(t *testing.T) {
	svc, _, _ := newService(t, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	rule := rent()
	if err := svc.CreateExpenseRule(ctx, rule); err != nil {
		t.Fatalf("CreateExpenseRule: %v", err)
	}
	rule.Name = "Mortgage"
	rule.ExpectedAmount = dec("1500")
	if err := svc.UpdateExpenseRule(ctx, rule); err != nil {
		t.Fatalf("UpdateExpenseRule: %v", err)
	}

	list, _ := svc.ListOccurrences(ctx, "h1")
	if occ := list.Pending[0]; occ.Name != "Rent" || !occ.ExpectedAmount.Equal(dec("1200")) {
		t.Errorf("occurrence changed with rule: %+v", occ)
	}
}

func TestPausedRuleIsNotBackfilled(t *testing.T) {
	svc, c, _ := newService(t, time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	rule := rent()
	if err := svc.CreateExpenseRule(ctx, rule); err != nil {
		t.Fatalf("CreateExpenseRule: %v", err)
	}
	if err := svc.SetExpenseRuleActive(ctx, "h1", rule.ID, false); err != nil {
		t.Fatalf("SetExpenseRuleActive: %v", err)
	}

	c.t = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	result, err := svc.RunBackfill(ctx, nil)
	if err != nil {
		t.Fatalf("RunBackfill: %v", err)
	}
	if result.Created != 0 {
		t.Errorf("paused rule backfilled %d occurrences", result.Created)
	}
	if err := svc.SetExpenseRuleActive(ctx, "h2", rule.ID, true); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("other household: got %v, want ErrNotFound", err)
	}
}

func TestRecordExpense(t *testing.T) {
	svc, _, _ := newService(t, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	due := time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC)
	e := &api.Expense{HouseholdID: "h1", Name: "Dentist", Category: api.CategoryHealthcare, Amount: dec("80"), DueDate: &due}
	if err := svc.RecordExpense(ctx, e); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	if e.Status != api.ExpenseLate || e.Type != api.ExpenseOneTime {
		t.Errorf("status/type = %s/%s", e.Status, e.Type)
	}

	bad := &api.Expense{HouseholdID: "h1", Name: "Lunch", Category: "Snacks", Amount: dec("10")}
	if err := svc.RecordExpense(ctx, bad); !errors.Is(err, api.ErrValidation) {
		t.Errorf("unknown category: got %v", err)
	}

	got, err := svc.MonthExpenses(ctx, "h1", time.October, 2026)
	if err != nil {
		t.Fatalf("MonthExpenses: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d expenses, want 1", len(got))
	}
}

func TestSendWeeklySummaries(t *testing.T) {
	svc, _, notes := newService(t, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for _, h := range []string{"h1", "h2"} {
		r := rent()
		r.HouseholdID = h
		if err := svc.CreateExpenseRule(ctx, r); err != nil {
			t.Fatalf("CreateExpenseRule: %v", err)
		}
	}

	sent, err := svc.SendWeeklySummaries(ctx)
	if err != nil {
		t.Fatalf("SendWeeklySummaries: %v", err)
	}
	if sent != 2 {
		t.Errorf("sent %d, want 2", sent)
	}

	got := notes.List("h2")
	if len(got) != 1 || got[0].Type != api.NotifySummary || !strings.Contains(got[0].Message, "$1200.00 in bills still pending") {
		t.Errorf("h2 notifications = %+v", got)
	}
}

// failingExpenses fails ListExpenses for one household. A negative failures
// count fails every call.
type failingExpenses struct {
	*memory.Store
	mu        sync.Mutex
	household string
	failures  int
	calls     int
}

func (f *failingExpenses) ListExpenses(ctx context.Context, filter api.ExpenseFilter) ([]api.Expense, error) {
	f.mu.Lock()
	fail := false
	if filter.HouseholdID == f.household {
		f.calls++
		fail = f.failures != 0
		if f.failures > 0 {
			f.failures--
		}
	}
	f.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset by peer")
	}
	return f.Store.ListExpenses(ctx, filter)
}

func createRentFor(t *testing.T, svc *Service, households ...string) {
	t.Helper()
	for _, h := range households {
		r := rent()
		r.HouseholdID = h
		if err := svc.CreateExpenseRule(context.Background(), r); err != nil {
			t.Fatalf("CreateExpenseRule: %v", err)
		}
	}
}

func TestWeeklySummaryRetriesFailingHousehold(t *testing.T) {
	store := &failingExpenses{Store: memory.New(), household: "h2", failures: 1}
	svc, _, notes := newServiceWithStore(t, store, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	createRentFor(t, svc, "h1", "h2")

	sent, err := svc.SendWeeklySummaries(context.Background())
	if err != nil {
		t.Fatalf("SendWeeklySummaries: %v", err)
	}
	if sent != 2 {
		t.Errorf("sent %d, want 2", sent)
	}
	if store.calls != 2 {
		t.Errorf("h2 summarized %d times, want 2", store.calls)
	}
	for _, h := range []string{"h1", "h2"} {
		if got := notes.List(h); len(got) != 1 {
			t.Errorf("%s got %d summaries, want 1", h, len(got))
		}
	}
}

func TestWeeklySummaryReportsPartialRun(t *testing.T) {
	store := &failingExpenses{Store: memory.New(), household: "h2", failures: -1}
	svc, _, notes := newServiceWithStore(t, store, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	createRentFor(t, svc, "h1", "h2")

	sent, err := svc.SendWeeklySummaries(context.Background())
	if !errors.Is(err, api.ErrPartialRun) {
		t.Fatalf("got %v, want ErrPartialRun", err)
	}
	if sent != 1 {
		t.Errorf("sent %d, want 1", sent)
	}
	if store.calls != DefaultSummaryAttempts {
		t.Errorf("h2 summarized %d times, want %d", store.calls, DefaultSummaryAttempts)
	}
	if got := notes.List("h1"); len(got) != 1 {
		t.Errorf("h1 got %d summaries, want 1", len(got))
	}
	if got := notes.List("h2"); len(got) != 0 {
		t.Errorf("h2 got %d summaries, want 0", len(got))
	}
}

func TestWeeklySummaryFailsWithoutPartialRun(t *testing.T) {
	store := &failingExpenses{Store: memory.New(), household: "h1", failures: -1}
	svc, _, _ := newServiceWithStore(t, store, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	createRentFor(t, svc, "h1")

	sent, err := svc.SendWeeklySummaries(context.Background())
	if err == nil || errors.Is(err, api.ErrPartialRun) {
		t.Fatalf("got %v, want a plain error", err)
	}
	if sent != 0 {
		t.Errorf("sent %d, want 0", sent)
	}
}

func TestMoneyLeaksAndProjectedIncome(t *testing.T) {
	svc, _, _ := newService(t, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	sub := rent()
	sub.Name, sub.Category, sub.ExpectedAmount = "Music", api.CategorySubscriptions, dec("9.99")
	if err := svc.CreateExpenseRule(ctx, sub); err != nil {
		t.Fatalf("CreateExpenseRule: %v", err)
	}
	next := time.Date(2026, 10, 24, 0, 0, 0, 0, time.UTC)
	if err := svc.CreateIncomeRule(ctx, &api.IncomeRule{
		HouseholdID: "h1", Name: "Salary", Amount: dec("1000"),
		Frequency: api.FrequencyBiweekly, NextPayday: &next, Active: true,
	}); err != nil {
		t.Fatalf("CreateIncomeRule: %v", err)
	}

	leaks, err := svc.MoneyLeaks(ctx, "h1")
	if err != nil || leaks.Count != 1 {
		t.Errorf("leaks = %+v, err = %v", leaks, err)
	}
	projected, err := svc.ProjectedIncome(ctx, "h1")
	if err != nil || !projected.Equal(dec("2170")) {
		t.Errorf("projected = %s, err = %v", projected, err)
	}
}
