package main

import (
	"fmt"
	"log/slog"
	"time"
)

// runDaemon starts the scheduler and blocks until a shutdown signal.
func runDaemon(logger *slog.Logger, args []string) error {
	fs, configPath := newFlags("run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	r, _, _, err := openRunner(ctx, *configPath)
	if err != nil {
		return err
	}
	defer r.Close()

	return r.Run(ctx)
}

// runBackfill runs one backfill sweep, optionally as of a past date.
func runBackfill(logger *slog.Logger, args []string) error {
	fs, configPath := newFlags("backfill")
	at := fs.String("at", "", "sweep as of this date (YYYY-MM-DD) instead of now")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	r, _, _, err := openRunner(ctx, *configPath)
	if err != nil {
		return err
	}
	defer r.Close()

	var when *time.Time
	if *at != "" {
		t, err := parseDate(*at, r.Ledger().Location())
		if err != nil {
			return err
		}
		// End of the given day so occurrences due that day are included.
		t = t.Add(24*time.Hour - time.Second)
		when = &t
	}

	result, err := r.Ledger().RunBackfill(ctx, when)
	if err != nil {
		return fmt.Errorf("running backfill: %w", err)
	}

	overdue, err := r.Ledger().RemindOverdue(ctx)
	if err != nil {
		return fmt.Errorf("sending overdue reminders: %w", err)
	}

	fmt.Printf("Rules examined:      %d\n", result.Rules)
	fmt.Printf("Occurrences created: %d\n", result.Created)
	fmt.Printf("Rules failed:        %d\n", result.Failed)
	fmt.Printf("Overdue reminders:   %d\n", overdue)
	return nil
}
