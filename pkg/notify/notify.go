// Package notify provides api.Notifier implementations.
package notify

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ArionMiles/homeledger/pkg/api"
)

// Log writes every notification to a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a notifier that logs at info level.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Notify implements api.Notifier.
func (l *Log) Notify(ctx context.Context, n api.Notification) error {
	l.logger.InfoContext(ctx, "notification",
		"household", n.HouseholdID,
		"type", n.Type,
		"severity", n.Severity,
		"message", n.Message,
	)
	return nil
}

// Memory keeps notifications per household until they are dismissed.
type Memory struct {
	mu    sync.Mutex
	items map[string][]api.Notification
	now   func() time.Time
}

// NewMemory returns an empty in-memory notifier.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string][]api.Notification),
		now:   time.Now,
	}
}

// Notify implements api.Notifier.
func (m *Memory) Notify(_ context.Context, n api.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[n.HouseholdID] = append(m.items[n.HouseholdID], n)
	return nil
}

// List returns the household's notifications, most urgent first and newest
// first within the same severity.
func (m *Memory) List(householdID string) []api.Notification {
	m.mu.Lock()
	out := slices.Clone(m.items[householdID])
	m.mu.Unlock()

	slices.SortStableFunc(out, func(a, b api.Notification) int {
		if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
			return rb - ra
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// Dismiss removes a notification. It reports whether one was removed.
func (m *Memory) Dismiss(householdID, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.items[householdID]
	i := slices.IndexFunc(items, func(n api.Notification) bool { return n.ID == id })
	if i < 0 {
		return false
	}
	m.items[householdID] = slices.Delete(items, i, i+1)
	return true
}

// Multi fans a notification out to several notifiers and returns the first error.
type Multi []api.Notifier

// Notify implements api.Notifier.
func (m Multi) Notify(ctx context.Context, n api.Notification) error {
	var firstErr error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
