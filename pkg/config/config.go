// Package config loads homeledger settings from an optional JSON file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // the default zone must resolve on hosts without zoneinfo

	kJson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/logging"
	"github.com/ArionMiles/homeledger/pkg/scheduler"
)

// PathEnv names the environment variable pointing at the JSON config file.
const PathEnv = "HOMELEDGER_CONFIG"

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Notifier backends.
const (
	NotifierLog   = "log"
	NotifierGmail = "gmail"
)

const (
	// ClientSecretFile is the default path to the Google OAuth credentials JSON file.
	ClientSecretFile = "data/client_secret.json"
	// TokenFile is the default path to the cached OAuth token.
	TokenFile = "data/token.json"
)

// Config holds the application configuration. Keys in the JSON file use the
// same names as the environment variables.
type Config struct {
	// Store selects the persistence backend: memory or postgres.
	// Environment variable: HOMELEDGER_STORE
	Store string `koanf:"HOMELEDGER_STORE"`

	PostgresConfig `koanf:",squash"`

	// Timezone is the IANA name of the household calendar.
	// Environment variable: HOMELEDGER_TIMEZONE
	Timezone string `koanf:"HOMELEDGER_TIMEZONE"`

	// Cron specs for the scheduled jobs.
	// Environment variables: HOMELEDGER_DAILY_SCHEDULE, HOMELEDGER_WEEKLY_SCHEDULE,
	// HOMELEDGER_MONTHLY_SCHEDULE
	DailySchedule   string `koanf:"HOMELEDGER_DAILY_SCHEDULE"`
	WeeklySchedule  string `koanf:"HOMELEDGER_WEEKLY_SCHEDULE"`
	MonthlySchedule string `koanf:"HOMELEDGER_MONTHLY_SCHEDULE"`

	// ArchiveAfterDays is how long confirmed and skipped occurrences are kept.
	// Environment variable: HOMELEDGER_ARCHIVE_AFTER_DAYS
	ArchiveAfterDays int `koanf:"HOMELEDGER_ARCHIVE_AFTER_DAYS"`

	// OverdueAfterDays is the grace period before an overdue reminder.
	// Environment variable: HOMELEDGER_OVERDUE_AFTER_DAYS
	OverdueAfterDays int `koanf:"HOMELEDGER_OVERDUE_AFTER_DAYS"`

	// Environment variables: HOMELEDGER_RETRY_ATTEMPTS, HOMELEDGER_RETRY_DELAY_SECONDS
	RetryAttempts     int `koanf:"HOMELEDGER_RETRY_ATTEMPTS"`
	RetryDelaySeconds int `koanf:"HOMELEDGER_RETRY_DELAY_SECONDS"`

	// Notifier selects where notifications go: log or gmail.
	// Environment variable: HOMELEDGER_NOTIFIER
	Notifier string `koanf:"HOMELEDGER_NOTIFIER"`

	// NotifyTo is the recipient of gmail digests.
	// Environment variable: HOMELEDGER_NOTIFY_TO
	NotifyTo string `koanf:"HOMELEDGER_NOTIFY_TO"`

	// Environment variables: HOMELEDGER_CLIENT_SECRET, HOMELEDGER_TOKEN_FILE
	ClientSecret string `koanf:"HOMELEDGER_CLIENT_SECRET"`
	TokenFile    string `koanf:"HOMELEDGER_TOKEN_FILE"`

	// Environment variables: HOMELEDGER_NOTIFY_BATCH_SIZE, HOMELEDGER_NOTIFY_FLUSH_SECONDS
	NotifyBatchSize    int `koanf:"HOMELEDGER_NOTIFY_BATCH_SIZE"`
	NotifyFlushSeconds int `koanf:"HOMELEDGER_NOTIFY_FLUSH_SECONDS"`

	// Environment variables: LOG_LEVEL, LOG_FORMAT
	LogLevel  string `koanf:"LOG_LEVEL"`
	LogFormat string `koanf:"LOG_FORMAT"`
}

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host     string `koanf:"POSTGRES_HOST"`
	Port     int    `koanf:"POSTGRES_PORT"`
	Database string `koanf:"POSTGRES_DB"`
	User     string `koanf:"POSTGRES_USER"`
	Password string `koanf:"POSTGRES_PASSWORD"`
	SSLMode  string `koanf:"POSTGRES_SSLMODE"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Store: StoreMemory,
		PostgresConfig: PostgresConfig{
			Port:    5432,
			SSLMode: "disable",
		},
		Timezone:           "America/New_York",
		DailySchedule:      scheduler.DefaultDaily,
		WeeklySchedule:     scheduler.DefaultWeekly,
		MonthlySchedule:    scheduler.DefaultMonthly,
		ArchiveAfterDays:   30,
		OverdueAfterDays:   3,
		RetryAttempts:      scheduler.DefaultAttempts,
		RetryDelaySeconds:  int(scheduler.DefaultRetryDelay / time.Second),
		Notifier:           NotifierLog,
		ClientSecret:       ClientSecretFile,
		TokenFile:          TokenFile,
		NotifyBatchSize:    10,
		NotifyFlushSeconds: 30,
		LogLevel:           "INFO",
		LogFormat:          "text",
	}
}

// Load reads the JSON file at path, or at $HOMELEDGER_CONFIG when path is
// empty, then applies environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(PathEnv)
	}

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), kJson.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return Config{}, fmt.Errorf("loading config from environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.Notifier = strings.ToLower(strings.TrimSpace(cfg.Notifier))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enum fields and the settings each backend requires.
func (c Config) Validate() error {
	var errs []error

	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Host == "" {
			errs = append(errs, errors.New("POSTGRES_HOST is required for the postgres store"))
		}
		if c.Database == "" {
			errs = append(errs, errors.New("POSTGRES_DB is required for the postgres store"))
		}
		if c.User == "" {
			errs = append(errs, errors.New("POSTGRES_USER is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("HOMELEDGER_STORE must be %s or %s, got %q", StoreMemory, StorePostgres, c.Store))
	}

	switch c.Notifier {
	case NotifierLog:
	case NotifierGmail:
		if c.NotifyTo == "" {
			errs = append(errs, errors.New("HOMELEDGER_NOTIFY_TO is required for the gmail notifier"))
		}
		if c.ClientSecret == "" {
			errs = append(errs, errors.New("HOMELEDGER_CLIENT_SECRET is required for the gmail notifier"))
		}
	default:
		errs = append(errs, fmt.Errorf("HOMELEDGER_NOTIFIER must be %s or %s, got %q", NotifierLog, NotifierGmail, c.Notifier))
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	for name, v := range map[string]int{
		"HOMELEDGER_ARCHIVE_AFTER_DAYS":   c.ArchiveAfterDays,
		"HOMELEDGER_OVERDUE_AFTER_DAYS":   c.OverdueAfterDays,
		"HOMELEDGER_RETRY_ATTEMPTS":       c.RetryAttempts,
		"HOMELEDGER_RETRY_DELAY_SECONDS":  c.RetryDelaySeconds,
		"HOMELEDGER_NOTIFY_BATCH_SIZE":    c.NotifyBatchSize,
		"HOMELEDGER_NOTIFY_FLUSH_SECONDS": c.NotifyFlushSeconds,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", name, v))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", api.ErrValidation, err)
	}
	return nil
}

// Location loads the configured time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("HOMELEDGER_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

// ArchiveAfter returns the archive retention as a duration.
func (c Config) ArchiveAfter() time.Duration { return days(c.ArchiveAfterDays) }

// OverdueAfter returns the overdue grace period as a duration.
func (c Config) OverdueAfter() time.Duration { return days(c.OverdueAfterDays) }

// RetryDelay returns the base delay between job retries.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// NotifyFlushInterval returns how often buffered notifications are sent.
func (c Config) NotifyFlushInterval() time.Duration {
	return time.Duration(c.NotifyFlushSeconds) * time.Second
}

// Logging returns the logging configuration described by LOG_LEVEL and LOG_FORMAT.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(c.LogLevel)
	cfg.JSON = strings.EqualFold(c.LogFormat, "json")
	return cfg
}
