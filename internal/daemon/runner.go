// Package daemon wires configuration into a running homeledger instance.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/client"
	"github.com/ArionMiles/homeledger/pkg/config"
	"github.com/ArionMiles/homeledger/pkg/ledger"
	"github.com/ArionMiles/homeledger/pkg/notify"
	"github.com/ArionMiles/homeledger/pkg/notify/buffered"
	"github.com/ArionMiles/homeledger/pkg/notify/gmail"
	"github.com/ArionMiles/homeledger/pkg/scheduler"
	"github.com/ArionMiles/homeledger/pkg/store/memory"
	"github.com/ArionMiles/homeledger/pkg/store/postgres"
)

// Runner owns the store, notifier and ledger service built from a Config.
// Close must be called to flush notifications and release connections.
type Runner struct {
	cfg     config.Config
	store   api.Store
	service *ledger.Service
	logger  *slog.Logger

	closers  []func()
	stopNote context.CancelFunc
	noteDone sync.WaitGroup
}

// New connects the configured store and notifier. Gmail delivery needs a
// cached OAuth token; run `homeledger setup` first.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	r := &Runner{cfg: cfg, logger: logger}

	r.store, err = r.openStore(ctx)
	if err != nil {
		return nil, err
	}

	notifier, err := r.openNotifier(ctx)
	if err != nil {
		r.Close()
		return nil, err
	}

	r.service = ledger.New(r.store, notifier, ledger.Config{
		Location:          loc,
		OverdueAfter:      cfg.OverdueAfter(),
		SummaryAttempts:   uint(cfg.RetryAttempts),
		SummaryRetryDelay: cfg.RetryDelay(),
	}, logger.With("component", "ledger"))

	return r, nil
}

func (r *Runner) openStore(ctx context.Context) (api.Store, error) {
	switch r.cfg.Store {
	case config.StorePostgres:
		s, err := postgres.New(ctx, postgres.Config{
			Host:     r.cfg.Host,
			Port:     r.cfg.Port,
			Database: r.cfg.Database,
			User:     r.cfg.User,
			Password: r.cfg.Password,
			SSLMode:  r.cfg.SSLMode,
		}, r.logger.With("component", "store", "backend", config.StorePostgres))
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		r.closers = append(r.closers, s.Close)
		return s, nil
	default:
		r.logger.Warn("using in-memory store, data is lost on exit")
		return memory.New(), nil
	}
}

func (r *Runner) openNotifier(ctx context.Context) (api.Notifier, error) {
	logNotifier := notify.NewLog(r.logger.With("component", "notify"))
	if r.cfg.Notifier != config.NotifierGmail {
		return logNotifier, nil
	}

	auth := client.Authenticator{
		SecretPath: r.cfg.ClientSecret,
		TokenPath:  r.cfg.TokenFile,
		Scopes:     gmail.Scopes,
		Logger:     r.logger,
	}
	httpClient, err := auth.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating oauth client: %w", err)
	}

	sender, err := gmail.New(ctx, httpClient, gmail.Config{To: r.cfg.NotifyTo},
		r.logger.With("component", "gmail"))
	if err != nil {
		return nil, fmt.Errorf("creating gmail sender: %w", err)
	}

	queue := buffered.New(sender.Send, buffered.Config{
		BatchSize:     r.cfg.NotifyBatchSize,
		FlushInterval: r.cfg.NotifyFlushInterval(),
	}, r.logger.With("component", "notify_buffer"))

	// Delivery outlives any single command context and stops in Close.
	noteCtx, cancel := context.WithCancel(context.Background())
	r.stopNote = cancel
	r.noteDone.Add(1)
	go func() {
		defer r.noteDone.Done()
		if err := queue.Run(noteCtx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("notification delivery stopped", "error", err)
		}
	}()

	return notify.Multi{logNotifier, queue}, nil
}

// Ledger returns the wired ledger service.
func (r *Runner) Ledger() *ledger.Service {
	return r.service
}

// Scheduler builds the cron scheduler from the configured schedules.
func (r *Runner) Scheduler() (*scheduler.Scheduler, error) {
	loc, err := r.cfg.Location()
	if err != nil {
		return nil, err
	}
	return scheduler.New(r.service, scheduler.Config{
		Location:     loc,
		Daily:        r.cfg.DailySchedule,
		Weekly:       r.cfg.WeeklySchedule,
		Monthly:      r.cfg.MonthlySchedule,
		ArchiveAfter: r.cfg.ArchiveAfter(),
		Attempts:     uint(r.cfg.RetryAttempts),
		RetryDelay:   r.cfg.RetryDelay(),
	}, r.logger.With("component", "scheduler"))
}

// Run catches up with a daily job, then runs the scheduler. It blocks until
// ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	sched, err := r.Scheduler()
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	r.logger.Info("starting homeledger daemon",
		"store", r.cfg.Store,
		"notifier", r.cfg.Notifier,
		"timezone", r.cfg.Timezone,
	)

	if err := sched.RunNow(ctx, scheduler.JobDaily); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("startup backfill failed", "error", err)
	}

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("running scheduler: %w", err)
	}

	r.logger.Info("daemon stopped")
	return nil
}

// Close flushes pending notifications and closes the store.
func (r *Runner) Close() {
	if r.stopNote != nil {
		r.stopNote()
		r.noteDone.Wait()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}
