// Package backfill reconciles recurrence rules against the occurrence ledger,
// creating every missing occurrence since each rule was created.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/period"
)

// DefaultConcurrency is the number of rules reconciled in parallel.
const DefaultConcurrency = 4

// DefaultOverdueAfter is how long past its due date a pending occurrence
// waits before a reminder is sent.
const DefaultOverdueAfter = 72 * time.Hour

// Config holds backfill settings.
type Config struct {
	// Location is the calendar used for due dates. Defaults to UTC.
	Location *time.Location
	// Concurrency bounds parallel rule processing. Defaults to DefaultConcurrency.
	Concurrency int
	// OverdueAfter defaults to DefaultOverdueAfter.
	OverdueAfter time.Duration
}

// Result summarizes one reconciliation sweep.
type Result struct {
	// Rules is the number of rules examined.
	Rules int `json:"rules"`
	// Created is the number of occurrences inserted.
	Created int `json:"created"`
	// Failed is the number of rules that hit an error.
	Failed int `json:"failed"`
}

// Engine creates missing occurrences. It is safe to run concurrently with
// itself: the store's insert-if-absent keeps every period unique.
type Engine struct {
	store    api.Store
	notifier api.Notifier
	cfg      Config
	logger   *slog.Logger
}

// New creates a backfill engine.
func New(store api.Store, notifier api.Notifier, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.OverdueAfter <= 0 {
		cfg.OverdueAfter = DefaultOverdueAfter
	}

	return &Engine{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// Reconcile creates every missing occurrence for all active rules as of now.
// A failing rule is logged and counted; the sweep carries on with the rest.
// An error is returned only when the rules themselves cannot be listed.
func (e *Engine) Reconcile(ctx context.Context, now time.Time) (Result, error) {
	incomeRules, err := e.store.ListIncomeRules(ctx, api.RuleFilter{ActiveOnly: true})
	if err != nil {
		return Result{}, fmt.Errorf("listing income rules: %w", err)
	}
	expenseRules, err := e.store.ListExpenseRules(ctx, api.RuleFilter{ActiveOnly: true})
	if err != nil {
		return Result{}, fmt.Errorf("listing expense rules: %w", err)
	}

	e.logger.Info("starting backfill",
		"income_rules", len(incomeRules),
		"expense_rules", len(expenseRules),
		"now", now,
	)

	var (
		mu     sync.Mutex
		result Result
		wg     sync.WaitGroup
		sem    = make(chan struct{}, e.cfg.Concurrency)
	)

	record := func(created int, err error) {
		mu.Lock()
		defer mu.Unlock()
		result.Rules++
		result.Created += created
		if err != nil {
			result.Failed++
		}
	}

	run := func(fn func() (int, error)) {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			record(fn())
		}()
	}

	for _, rule := range incomeRules {
		if rule.NextPayday == nil || rule.Frequency == api.FrequencyIrregular {
			continue
		}
		run(func() (int, error) { return e.processIncomeRule(ctx, rule, now) })
	}
	for _, rule := range expenseRules {
		if !rule.AutoPrompt {
			continue
		}
		run(func() (int, error) { return e.processExpenseRule(ctx, rule, now) })
	}
	wg.Wait()

	e.logger.Info("backfill complete",
		"rules", result.Rules,
		"created", result.Created,
		"failed", result.Failed,
	)
	return result, nil
}

func (e *Engine) processExpenseRule(ctx context.Context, rule api.ExpenseRule, now time.Time) (int, error) {
	logger := e.logger.With("rule", rule.ID, "kind", api.KindExpense, "household", rule.HouseholdID)

	if rule.Frequency != api.FrequencyMonthly {
		logger.Debug("expense rule is not monthly, generating monthly occurrences", "frequency", rule.Frequency)
	}

	created := 0
	for _, due := range period.ExpenseDueDates(rule.DueDay, rule.CreatedAt.In(e.cfg.Location), now.In(e.cfg.Location)) {
		occ := newOccurrence(rule.HouseholdID, rule.Ref(), period.MonthKey(due), rule.Name, rule.ExpectedAmount, due, now)
		ok, err := e.insert(ctx, logger, occ)
		if err != nil {
			logger.Error("failed to backfill expense rule", "period", occ.Period, "error", err)
			e.notifyCreated(ctx, rule.HouseholdID, api.KindExpense, rule.Name, rule.ExpectedAmount, created)
			return created, err
		}
		if ok {
			created++
		}
	}

	e.notifyCreated(ctx, rule.HouseholdID, api.KindExpense, rule.Name, rule.ExpectedAmount, created)
	return created, nil
}

func (e *Engine) processIncomeRule(ctx context.Context, rule api.IncomeRule, now time.Time) (int, error) {
	logger := e.logger.With("rule", rule.ID, "kind", api.KindIncome, "household", rule.HouseholdID)

	dates, err := period.IncomeDates(
		rule.Frequency,
		period.DateIn(*rule.NextPayday, e.cfg.Location),
		rule.CreatedAt.In(e.cfg.Location),
		now.In(e.cfg.Location),
	)
	if err != nil {
		logger.Error("failed to derive paydays", "error", err)
		return 0, err
	}

	created := 0
	for _, payday := range dates {
		occ := newOccurrence(rule.HouseholdID, rule.Ref(), period.DayKey(payday), rule.Name, rule.Amount, payday, now)
		ok, err := e.insert(ctx, logger, occ)
		if err != nil {
			logger.Error("failed to backfill income rule", "period", occ.Period, "error", err)
			e.notifyCreated(ctx, rule.HouseholdID, api.KindIncome, rule.Name, rule.Amount, created)
			return created, err
		}
		if ok {
			created++
		}
	}

	e.notifyCreated(ctx, rule.HouseholdID, api.KindIncome, rule.Name, rule.Amount, created)
	return created, nil
}

// insert treats a duplicate as "already there" so concurrent sweeps are quiet.
func (e *Engine) insert(ctx context.Context, logger *slog.Logger, occ *api.Occurrence) (bool, error) {
	ok, err := e.store.InsertOccurrenceIfAbsent(ctx, occ)
	if errors.Is(err, api.ErrConflictDuplicate) {
		logger.Debug("occurrence already exists", "period", occ.Period)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if ok {
		logger.Debug("created occurrence", "period", occ.Period, "due", occ.DueDate)
	}
	return ok, nil
}

// EnsureCurrent creates the current month's occurrence for a newly created
// expense rule. It reports whether an occurrence was created.
func (e *Engine) EnsureCurrent(ctx context.Context, rule api.ExpenseRule, now time.Time) (bool, error) {
	if !rule.Active || !rule.AutoPrompt {
		return false, nil
	}

	local := now.In(e.cfg.Location)
	due := period.ClampedDate(local.Year(), local.Month(), rule.DueDay, e.cfg.Location)
	occ := newOccurrence(rule.HouseholdID, rule.Ref(), period.MonthKey(due), rule.Name, rule.ExpectedAmount, due, now)

	ok, err := e.insert(ctx, e.logger.With("rule", rule.ID), occ)
	if err != nil {
		return false, fmt.Errorf("creating current occurrence: %w", err)
	}
	return ok, nil
}

func newOccurrence(household string, ref api.RuleRef, key, name string, amount decimal.Decimal, due, now time.Time) *api.Occurrence {
	return &api.Occurrence{
		ID:             uuid.NewString(),
		HouseholdID:    household,
		Rule:           ref,
		Period:         key,
		Name:           name,
		ExpectedAmount: amount,
		DueDate:        due,
		Status:         api.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
