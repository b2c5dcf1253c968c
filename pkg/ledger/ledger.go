// Package ledger is the entry point callers use: it ties the rule store,
// backfill engine, confirmation state machine and analytics together behind
// one Service.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeledger/pkg/analytics"
	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/backfill"
	"github.com/ArionMiles/homeledger/pkg/confirmation"
)

// Config holds service settings.
type Config struct {
	// Location is the household calendar. Defaults to UTC.
	Location *time.Location
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
	// Concurrency bounds parallel rule processing during backfill.
	Concurrency int
	// OverdueAfter is the grace period before overdue reminders.
	OverdueAfter time.Duration
	// SummaryAttempts and SummaryRetryDelay control how often one
	// household's weekly summary is retried before it is given up.
	SummaryAttempts   uint
	SummaryRetryDelay time.Duration
}

// Default weekly summary retry settings.
const (
	DefaultSummaryAttempts   = 3
	DefaultSummaryRetryDelay = time.Second
)

// Service exposes every ledger operation. All methods are safe for
// concurrent use.
type Service struct {
	store      api.Store
	notifier   api.Notifier
	engine     *backfill.Engine
	machine    *confirmation.Machine
	aggregator *analytics.Aggregator
	loc        *time.Location
	now        func() time.Time
	attempts   uint
	retryDelay time.Duration
	logger     *slog.Logger
}

// New creates a Service. A nil notifier discards notifications.
func New(store api.Store, notifier api.Notifier, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.SummaryAttempts == 0 {
		cfg.SummaryAttempts = DefaultSummaryAttempts
	}
	if cfg.SummaryRetryDelay <= 0 {
		cfg.SummaryRetryDelay = DefaultSummaryRetryDelay
	}

	return &Service{
		store:    store,
		notifier: notifier,
		engine: backfill.New(store, notifier, backfill.Config{
			Location:     cfg.Location,
			Concurrency:  cfg.Concurrency,
			OverdueAfter: cfg.OverdueAfter,
		}, logger.With("component", "backfill")),
		machine: confirmation.New(store, confirmation.Config{Location: cfg.Location},
			logger.With("component", "confirmation")),
		aggregator: analytics.New(store, analytics.Config{Location: cfg.Location},
			logger.With("component", "analytics")),
		loc:        cfg.Location,
		now:        cfg.Clock,
		attempts:   cfg.SummaryAttempts,
		retryDelay: cfg.SummaryRetryDelay,
		logger:     logger,
	}
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.now()
}

// Location returns the household calendar.
func (s *Service) Location() *time.Location {
	return s.loc
}

// ListOccurrences returns the household's pending and snoozed occurrences.
func (s *Service) ListOccurrences(ctx context.Context, household string) (confirmation.Listing, error) {
	return s.machine.List(ctx, household, s.now())
}

// Confirm settles an occurrence, realizing an expense for bills.
func (s *Service) Confirm(ctx context.Context, household, id string, in confirmation.ConfirmInput) (confirmation.Result, error) {
	return s.machine.Confirm(ctx, household, id, in, s.now())
}

// Snooze hides an occurrence until the given time.
func (s *Service) Snooze(ctx context.Context, household, id string, until time.Time) error {
	return s.machine.Snooze(ctx, household, id, until, s.now())
}

// Skip settles an occurrence without realizing it.
func (s *Service) Skip(ctx context.Context, household, id string) error {
	return s.machine.Skip(ctx, household, id, s.now())
}

// Amend changes the expected amount of an unsettled occurrence.
func (s *Service) Amend(ctx context.Context, household, id string, amount decimal.Decimal) error {
	return s.machine.Amend(ctx, household, id, amount, s.now())
}

// RunBackfill reconciles every active rule. A nil at uses the clock.
func (s *Service) RunBackfill(ctx context.Context, at *time.Time) (backfill.Result, error) {
	now := s.now()
	if at != nil {
		now = *at
	}
	return s.engine.Reconcile(ctx, now)
}

// RemindOverdue notifies households about occurrences past their grace period.
func (s *Service) RemindOverdue(ctx context.Context) (int, error) {
	return s.engine.Overdue(ctx, s.now())
}

// Archive moves settled occurrences older than olderThan out of view.
func (s *Service) Archive(ctx context.Context, olderThan time.Duration) (int, error) {
	return s.machine.Archive(ctx, s.now(), olderThan)
}

// Households returns every household that owns at least one rule.
func (s *Service) Households(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(h string) {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}

	incomes, err := s.store.ListIncomeRules(ctx, api.RuleFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing income rules: %w", err)
	}
	for _, r := range incomes {
		add(r.HouseholdID)
	}
	expenses, err := s.store.ListExpenseRules(ctx, api.RuleFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing expense rules: %w", err)
	}
	for _, r := range expenses {
		add(r.HouseholdID)
	}
	return out, nil
}
