// Package scheduler runs the ledger's periodic jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/avast/retry-go"
	"github.com/robfig/cron/v3"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/backfill"
)

// Job names.
const (
	JobDaily   = "daily"
	JobWeekly  = "weekly"
	JobMonthly = "monthly"
)

// Default schedules, evaluated in Config.Location.
const (
	DefaultDaily   = "0 8 * * *"
	DefaultWeekly  = "0 20 * * 0"
	DefaultMonthly = "1 0 1 * *"

	DefaultAttempts   = 3
	DefaultRetryDelay = 5 * time.Second
)

// ErrUnknownJob is returned by RunNow for a name that is not scheduled.
var ErrUnknownJob = errors.New("unknown job")

// Ledger is the set of operations the scheduled jobs drive.
type Ledger interface {
	RunBackfill(ctx context.Context, at *time.Time) (backfill.Result, error)
	RemindOverdue(ctx context.Context) (int, error)
	SendWeeklySummaries(ctx context.Context) (int, error)
	Archive(ctx context.Context, olderThan time.Duration) (int, error)
}

// Config holds scheduler settings.
type Config struct {
	// Location is the time zone cron specs are evaluated in. Defaults to UTC.
	Location *time.Location
	Daily    string
	Weekly   string
	Monthly  string
	// ArchiveAfter is passed to Ledger.Archive by the monthly job.
	ArchiveAfter time.Duration
	// Attempts and RetryDelay control retries of infrastructure failures.
	Attempts   uint
	RetryDelay time.Duration
}

// Scheduler owns a cron runner with the daily, weekly and monthly jobs.
type Scheduler struct {
	ledger Ledger
	cfg    Config
	cron   *cron.Cron
	jobs   map[string]func(context.Context) error
	logger *slog.Logger
}

// New validates the schedules and registers every job.
func New(ledger Ledger, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Daily == "" {
		cfg.Daily = DefaultDaily
	}
	if cfg.Weekly == "" {
		cfg.Weekly = DefaultWeekly
	}
	if cfg.Monthly == "" {
		cfg.Monthly = DefaultMonthly
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	cronLogger := cronLog{logger: logger}
	s := &Scheduler{
		ledger: ledger,
		cfg:    cfg,
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		logger: logger,
	}
	s.jobs = map[string]func(context.Context) error{
		JobDaily:   s.daily,
		JobWeekly:  s.weekly,
		JobMonthly: s.monthly,
	}

	specs := map[string]string{
		JobDaily:   cfg.Daily,
		JobWeekly:  cfg.Weekly,
		JobMonthly: cfg.Monthly,
	}
	for _, name := range s.Jobs() {
		if _, err := s.cron.AddJob(specs[name], s.cronJob(name)); err != nil {
			return nil, fmt.Errorf("%w: %s schedule %q: %v", api.ErrValidation, name, specs[name], err)
		}
	}
	return s, nil
}

// Jobs returns the scheduled job names in a stable order.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run starts the cron runner and blocks until ctx is canceled, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("scheduler started",
		"location", s.cfg.Location.String(),
		"daily", s.cfg.Daily,
		"weekly", s.cfg.Weekly,
		"monthly", s.cfg.Monthly,
	)

	<-ctx.Done()
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
	return ctx.Err()
}

// RunNow runs a job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	return s.withRetry(ctx, name, job)
}

// cronJob adapts a job to cron. Scheduled runs get a fresh context.
func (s *Scheduler) cronJob(name string) cron.Job {
	return cron.FuncJob(func() {
		if err := s.withRetry(context.Background(), name, s.jobs[name]); err != nil {
			s.logger.Error("job failed", "job", name, "error", err)
		}
	})
}

// withRetry retries infrastructure failures. Domain errors and partial runs
// are final.
func (s *Scheduler) withRetry(ctx context.Context, name string, job func(context.Context) error) error {
	logger := s.logger.With("job", name)
	start := time.Now()
	logger.Info("job started")

	err := retry.Do(
		func() error { return job(ctx) },
		retry.RetryIf(func(err error) bool {
			return !api.IsDomainError(err) &&
				!errors.Is(err, api.ErrPartialRun) &&
				!errors.Is(err, context.Canceled)
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("job attempt failed, retrying", "attempt", n+1, "error", err)
		}),
		retry.Attempts(s.cfg.Attempts),
		retry.Delay(s.cfg.RetryDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return fmt.Errorf("running %s job: %w", name, err)
	}
	logger.Info("job finished", "duration", time.Since(start))
	return nil
}

func (s *Scheduler) daily(ctx context.Context) error {
	result, err := s.ledger.RunBackfill(ctx, nil)
	if err != nil {
		return err
	}
	s.logger.Info("daily backfill", "created", result.Created, "failed", result.Failed)

	if _, err := s.ledger.RemindOverdue(ctx); err != nil {
		return err
	}
	return nil
}

func (s *Scheduler) weekly(ctx context.Context) error {
	_, err := s.ledger.SendWeeklySummaries(ctx)
	return err
}

func (s *Scheduler) monthly(ctx context.Context) error {
	_, err := s.ledger.Archive(ctx, s.cfg.ArchiveAfter)
	return err
}

// cronLog routes cron's logging through slog.
type cronLog struct {
	logger *slog.Logger
}

func (l cronLog) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLog) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
