package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/notify/buffered"
)

type fakeGmail struct {
	mu       sync.Mutex
	failures int
	calls    int
	raws     []string
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/users/me/messages/send") {
		http.NotFound(w, r)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.failures > 0 {
		f.failures--
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"code":429,"message":"rate limited"}}`)
		return
	}

	var body struct {
		Raw string `json:"raw"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	raw, err := base64.URLEncoding.DecodeString(body.Raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.raws = append(f.raws, string(raw))

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"id":"msg-1"}`)
}

func newTestSender(t *testing.T, fake *fakeGmail) *Sender {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := New(context.Background(), srv.Client(), Config{
		To:         "family@example.com",
		Attempts:   3,
		RetryDelay: time.Millisecond,
		Endpoint:   srv.URL + "/",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSendGroupsByHousehold(t *testing.T) {
	fake := &fakeGmail{}
	s := newTestSender(t, fake)

	batch := []api.Notification{
		{HouseholdID: "h1", Message: "Is the Rent ($1200.00) paid this month?", Severity: api.SeverityHigh},
		{HouseholdID: "h2", Message: "Payday!", Severity: api.SeverityHigh},
		{HouseholdID: "h1", Message: "Reminder: Internet is 4 days overdue.", Severity: api.SeverityMedium},
	}
	if err := s.Send(context.Background(), batch); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(fake.raws) != 2 {
		t.Fatalf("got %d messages, want 2", len(fake.raws))
	}
	first := fake.raws[0]
	for _, want := range []string{"To: family@example.com", "2 update(s) for h1", "[HIGH] Is the Rent", "[MEDIUM] Reminder"} {
		if !strings.Contains(first, want) {
			t.Errorf("digest missing %q:\n%s", want, first)
		}
	}
}

func TestSendRetriesOnRateLimit(t *testing.T) {
	fake := &fakeGmail{failures: 2}
	s := newTestSender(t, fake)

	if err := s.Send(context.Background(), []api.Notification{{HouseholdID: "h1", Message: "hi"}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if fake.calls != 3 {
		t.Errorf("got %d calls, want 3", fake.calls)
	}
}

func TestSendGivesUpAfterAttempts(t *testing.T) {
	fake := &fakeGmail{failures: 10}
	s := newTestSender(t, fake)

	err := s.Send(context.Background(), []api.Notification{{HouseholdID: "h1", Message: "hi"}})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if fake.calls != 3 {
		t.Errorf("got %d calls, want 3", fake.calls)
	}
}

func TestSendReportsUndeliveredHouseholds(t *testing.T) {
	fake := &fakeGmail{failures: 3}
	s := newTestSender(t, fake)

	batch := []api.Notification{
		{HouseholdID: "h1", Message: "Is the Rent ($1200.00) paid this month?"},
		{HouseholdID: "h2", Message: "Payday!"},
		{HouseholdID: "h1", Message: "Reminder: Internet is 4 days overdue."},
	}
	err := s.Send(context.Background(), batch)

	var partial *buffered.PartialError
	if !errors.As(err, &partial) {
		t.Fatalf("got %v, want *buffered.PartialError", err)
	}
	if len(partial.Undelivered) != 2 {
		t.Fatalf("got %d undelivered, want h1's 2", len(partial.Undelivered))
	}
	for _, n := range partial.Undelivered {
		if n.HouseholdID != "h1" {
			t.Errorf("undelivered notification for %s", n.HouseholdID)
		}
	}
	if len(fake.raws) != 1 || !strings.Contains(fake.raws[0], "for h2") {
		t.Errorf("sent %d digests, want only h2's", len(fake.raws))
	}
}

func TestNewRequiresRecipient(t *testing.T) {
	_, err := New(context.Background(), http.DefaultClient, Config{}, nil)
	if !errors.Is(err, api.ErrValidation) {
		t.Errorf("got %v, want ErrValidation", err)
	}
}
