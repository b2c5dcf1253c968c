// Command homeledger runs the household ledger scheduler and its maintenance
// commands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ArionMiles/homeledger/internal/daemon"
	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/config"
	"github.com/ArionMiles/homeledger/pkg/logging"
)

const usageText = `homeledger - recurring bill and income confirmations

Usage:
  homeledger <command> [flags]

Commands:
  run        Start the scheduler daemon
  backfill   Create any missing occurrences now
  pending    List occurrences awaiting confirmation
  confirm    Confirm an occurrence
  snooze     Hide an occurrence until a date
  skip       Skip an occurrence
  amend      Change an occurrence's expected amount
  history    List the occurrences and payments of one rule
  balance    Show, set or replay the running balance
  edit-expense
             Change an expense's name, category, amount or notes
  summary    Print a month's dashboard summary
  export     Export a month's expenses as CSV or JSON
  setup      Authorize Gmail for notification email
  status     Check configuration, storage and authorization

Every command accepts -config <file>. Settings can also come from
HOMELEDGER_* environment variables. Run 'homeledger <command> -h' for flags.
`

func usage() {
	fmt.Fprint(os.Stderr, usageText)
}

func main() {
	logger := logging.Setup(logging.DefaultConfig())

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	commands := map[string]func(*slog.Logger, []string) error{
		"run":          runDaemon,
		"backfill":     runBackfill,
		"pending":      runPending,
		"confirm":      runConfirm,
		"snooze":       runSnooze,
		"skip":         runSkip,
		"amend":        runAmend,
		"history":      runHistory,
		"balance":      runBalance,
		"edit-expense": runEditExpense,
		"summary":      runSummary,
		"export":       runExport,
		"setup":        runSetup,
		"status":       runStatus,
	}

	name := os.Args[1]
	switch name {
	case "help", "-h", "--help":
		usage()
		return
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		usage()
		os.Exit(2)
	}

	if err := cmd(logger, os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logger.Error("command failed", "command", name, "error", err)
		os.Exit(1)
	}
}

// newFlags returns a flag set with the shared -config flag.
func newFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a JSON config file (default $"+config.PathEnv+")")
	return fs, configPath
}

// loadConfig reads configuration and reinstalls the logger it describes.
func loadConfig(path string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, logging.Setup(cfg.Logging()), nil
}

// openRunner loads configuration and wires the ledger.
func openRunner(ctx context.Context, configPath string) (*daemon.Runner, config.Config, *slog.Logger, error) {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return nil, config.Config{}, nil, err
	}
	r, err := daemon.New(ctx, cfg, logger)
	if err != nil {
		return nil, config.Config{}, nil, err
	}
	return r, cfg, logger, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// parseDate reads a YYYY-MM-DD date in loc.
func parseDate(value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", api.ErrValidation, value)
	}
	return t, nil
}

// monthOrCurrent fills in the current month and year for zero values.
func monthOrCurrent(month, year int, now time.Time) (time.Month, int, error) {
	if month == 0 {
		month = int(now.Month())
	}
	if year == 0 {
		year = now.Year()
	}
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("%w: month must be 1-12, got %d", api.ErrValidation, month)
	}
	return time.Month(month), year, nil
}

func requireHousehold(household string) error {
	if household == "" {
		return fmt.Errorf("%w: -household is required", api.ErrValidation)
	}
	return nil
}
