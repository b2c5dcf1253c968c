package postgres

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/store/storetest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestNew_ConnectionFailure tests that New returns an error when the database is unreachable.
func TestNew_ConnectionFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := Config{
		Host:     "nonexistent-host",
		Port:     5432,
		Database: "homeledger",
		User:     "homeledger",
		Password: "password",
	}

	if _, err := New(ctx, cfg, quietLogger()); err == nil {
		t.Error("expected error when connecting to nonexistent host, got nil")
	}
}

// startPostgres runs a disposable PostgreSQL container for the test.
func startPostgres(t *testing.T) string {
	t.Helper()

	if testing.Short() || os.Getenv("HOMELEDGER_SKIP_DOCKER") != "" {
		t.Skip("skipping PostgreSQL integration test")
	}

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("homeledger"),
		tcpostgres.WithUsername("homeledger"),
		tcpostgres.WithPassword("homeledger"),
		tcpostgres.BasicWaitStrategies(),
	)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminating container: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}
	return dsn
}

// TestStore runs the shared store suite against a real database.
func TestStore(t *testing.T) {
	dsn := startPostgres(t)

	store, err := New(context.Background(), Config{DSN: dsn}, quietLogger())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	storetest.Run(t, func(t *testing.T) api.Store {
		t.Helper()
		if _, err := store.pool.Exec(context.Background(),
			`TRUNCATE income_rules, expense_rules, occurrences, expenses`); err != nil {
			t.Fatalf("truncating tables: %v", err)
		}
		return store
	})
}

// TestMigrationsAreRepeatable tests that reconnecting re-applies the schema without error.
func TestMigrationsAreRepeatable(t *testing.T) {
	dsn := startPostgres(t)

	for i := range 2 {
		store, err := New(context.Background(), Config{DSN: dsn}, quietLogger())
		if err != nil {
			t.Fatalf("connection %d: %v", i, err)
		}
		if err := store.Ping(context.Background()); err != nil {
			t.Errorf("ping %d: %v", i, err)
		}
		store.Close()
	}
}
