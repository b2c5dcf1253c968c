package period

import (
	"errors"
	"testing"
	"time"

	"github.com/ArionMiles/homeledger/pkg/api"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestClampedDate(t *testing.T) {
	tests := []struct {
		name  string
		year  int
		month time.Month
		day   int
		want  time.Time
	}{
		{"fits", 2026, time.March, 15, day(2026, 3, 15)},
		{"february clamp", 2026, time.February, 31, day(2026, 2, 28)},
		{"leap february", 2024, time.February, 31, day(2024, 2, 29)},
		{"thirty day month", 2026, time.April, 31, day(2026, 4, 30)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ClampedDate(tc.year, tc.month, tc.day, time.UTC)
			if !got.Equal(tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAddMonthsClampedDoesNotDrift(t *testing.T) {
	anchor := day(2026, 1, 31)
	want := []time.Time{day(2026, 1, 31), day(2026, 2, 28), day(2026, 3, 31), day(2026, 4, 30), day(2026, 5, 31)}

	for i, w := range want {
		if got := AddMonthsClamped(anchor, i); !got.Equal(w) {
			t.Errorf("step %d: got %v, want %v", i, got, w)
		}
	}

	if got := AddMonthsClamped(anchor, -2); !got.Equal(day(2025, 11, 30)) {
		t.Errorf("step -2: got %v, want 2025-11-30", got)
	}
}

func TestExpenseDueDates(t *testing.T) {
	created := time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	dates := ExpenseDueDates(31, created, now)
	want := []time.Time{day(2026, 7, 31), day(2026, 8, 31), day(2026, 9, 30), day(2026, 10, 31)}

	if len(dates) != len(want) {
		t.Fatalf("got %d dates, want %d: %v", len(dates), len(want), dates)
	}
	for i := range want {
		if !dates[i].Equal(want[i]) {
			t.Errorf("date %d: got %v, want %v", i, dates[i], want[i])
		}
		if MonthKey(dates[i]) != want[i].Format("2006-01") {
			t.Errorf("date %d: unexpected key %s", i, MonthKey(dates[i]))
		}
	}
}

func TestExpenseDueDatesSameMonth(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	dates := ExpenseDueDates(5, now.AddDate(0, 0, -2), now)
	if len(dates) != 1 || !dates[0].Equal(day(2026, 10, 5)) {
		t.Errorf("got %v, want [2026-10-05]", dates)
	}
}

func TestIncomeDatesWeekly(t *testing.T) {
	now := time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)
	created := now.AddDate(0, 0, -90)
	next := StartOfDay(now).AddDate(0, 0, 5)

	dates, err := IncomeDates(api.FrequencyWeekly, next, created, now)
	if err != nil {
		t.Fatalf("IncomeDates: %v", err)
	}
	if len(dates) != 13 {
		t.Fatalf("got %d dates, want 13", len(dates))
	}
	for i := 1; i < len(dates); i++ {
		if gap := dates[i].Sub(dates[i-1]); gap != 7*24*time.Hour {
			t.Errorf("gap %d: got %v, want 7 days", i, gap)
		}
	}
	if dates[len(dates)-1].After(now) {
		t.Errorf("last date %v is after now", dates[len(dates)-1])
	}
	if dates[0].Before(StartOfDay(created)) {
		t.Errorf("first date %v is before creation", dates[0])
	}
}

func TestIncomeDatesStaleAnchor(t *testing.T) {
	created := day(2026, 9, 1)
	now := day(2026, 10, 19)
	// The anchor was never advanced past its first payday.
	next := day(2026, 9, 4)

	dates, err := IncomeDates(api.FrequencyBiweekly, next, created, now)
	if err != nil {
		t.Fatalf("IncomeDates: %v", err)
	}
	want := []time.Time{day(2026, 9, 4), day(2026, 9, 18), day(2026, 10, 2), day(2026, 10, 16)}
	if len(dates) != len(want) {
		t.Fatalf("got %v, want %v", dates, want)
	}
	for i := range want {
		if !dates[i].Equal(want[i]) {
			t.Errorf("date %d: got %v, want %v", i, dates[i], want[i])
		}
	}
}

func TestIncomeDatesMonthlyIncludesCreationDay(t *testing.T) {
	created := time.Date(2026, 7, 31, 18, 0, 0, 0, time.UTC)
	now := day(2026, 10, 19)
	next := day(2026, 10, 31)

	dates, err := IncomeDates(api.FrequencyMonthly, next, created, now)
	if err != nil {
		t.Fatalf("IncomeDates: %v", err)
	}
	want := []time.Time{day(2026, 7, 31), day(2026, 8, 31), day(2026, 9, 30)}
	if len(dates) != len(want) {
		t.Fatalf("got %v, want %v", dates, want)
	}
	for i := range want {
		if !dates[i].Equal(want[i]) {
			t.Errorf("date %d: got %v, want %v", i, dates[i], want[i])
		}
	}
}

func TestIncomeDatesIrregular(t *testing.T) {
	_, err := IncomeDates(api.FrequencyIrregular, day(2026, 1, 1), day(2026, 1, 1), day(2026, 2, 1))
	if !errors.Is(err, api.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestDateIn(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	got := DateIn(day(2026, 3, 5), ny)
	if y, m, d := got.Date(); y != 2026 || m != time.March || d != 5 {
		t.Errorf("got %v, want 2026-03-05 in New York", got)
	}
}

func TestDaysBetween(t *testing.T) {
	fixed := time.FixedZone("UTC-5", -5*60*60)
	tests := []struct {
		name     string
		from, to time.Time
		want     int
	}{
		{"same day", day(2026, 10, 19), time.Date(2026, 10, 19, 23, 59, 0, 0, time.UTC), 0},
		{"time of day ignored", day(2026, 10, 15), time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC), 4},
		{"across month", day(2026, 9, 30), day(2026, 10, 2), 2},
		{"each in own location", day(2026, 10, 15), time.Date(2026, 10, 18, 23, 0, 0, 0, fixed), 3},
		{"backwards", day(2026, 10, 19), day(2026, 10, 17), -2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DaysBetween(tc.from, tc.to); got != tc.want {
				t.Errorf("got %d, want %d", got, tc.want)
			}
		})
	}
}
