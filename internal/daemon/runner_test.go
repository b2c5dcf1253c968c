package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/config"
	"github.com/ArionMiles/homeledger/pkg/scheduler"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func memoryConfig() config.Config {
	cfg := config.Default()
	cfg.Timezone = "UTC"
	return cfg
}

func TestNewMemoryStore(t *testing.T) {
	r, err := New(context.Background(), memoryConfig(), quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	ctx := context.Background()
	rule := &api.ExpenseRule{
		HouseholdID:    "h1",
		Name:           "Rent",
		Category:       api.CategoryHousing,
		ExpectedAmount: decimal.RequireFromString("1200"),
		DueDay:         1,
		Frequency:      api.FrequencyMonthly,
		Active:         true,
		AutoPrompt:     true,
	}
	if err := r.Ledger().CreateExpenseRule(ctx, rule); err != nil {
		t.Fatalf("CreateExpenseRule: %v", err)
	}

	listing, err := r.Ledger().ListOccurrences(ctx, "h1")
	if err != nil {
		t.Fatalf("ListOccurrences: %v", err)
	}
	if len(listing.Pending) != 1 {
		t.Errorf("got %d pending, want the current month's occurrence", len(listing.Pending))
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store = "mongo"

	if _, err := New(context.Background(), cfg, quietLogger()); !errors.Is(err, api.ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}

func TestNewGmailWithoutToken(t *testing.T) {
	dir := t.TempDir()
	cfg := memoryConfig()
	cfg.Notifier = config.NotifierGmail
	cfg.NotifyTo = "home@example.com"
	cfg.ClientSecret = filepath.Join(dir, "missing_secret.json")
	cfg.TokenFile = filepath.Join(dir, "token.json")

	if _, err := New(context.Background(), cfg, quietLogger()); err == nil {
		t.Fatal("expected error without client secret")
	}
}

func TestScheduler(t *testing.T) {
	r, err := New(context.Background(), memoryConfig(), quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	sched, err := r.Scheduler()
	if err != nil {
		t.Fatalf("Scheduler: %v", err)
	}
	want := []string{scheduler.JobDaily, scheduler.JobMonthly, scheduler.JobWeekly}
	got := sched.Jobs()
	if len(got) != len(want) {
		t.Fatalf("got jobs %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("job %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r, err := New(context.Background(), memoryConfig(), quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

