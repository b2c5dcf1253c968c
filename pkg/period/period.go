// Package period derives occurrence dates and dedup keys from recurrence rules.
//
// All functions work on calendar days in the location of the times they are
// given. Callers convert to the household location first.
package period

import (
	"fmt"
	"time"

	"github.com/ArionMiles/homeledger/pkg/api"
)

const (
	monthKeyLayout = "2006-01"
	dayKeyLayout   = "2006-01-02"
)

// MonthKey returns the YYYY-MM dedup key used for expense occurrences.
func MonthKey(t time.Time) string {
	return t.Format(monthKeyLayout)
}

// DayKey returns the YYYY-MM-DD dedup key used for income occurrences.
func DayKey(t time.Time) string {
	return t.Format(dayKeyLayout)
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DateIn keeps t's calendar date and re-expresses it as midnight in loc.
// Use it for date-only values such as paydays, not for instants.
func DateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DaysBetween returns the number of calendar days from from's date to to's
// date, each read in its own location.
func DaysBetween(from, to time.Time) int {
	a := DateIn(from, time.UTC)
	b := DateIn(to, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// StartOfMonth returns midnight on the first of t's month.
func StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// MonthRange returns the half-open [start, end) range covering month in year.
func MonthRange(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

// DaysIn returns the number of days in month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampedDate returns (year, month, day), moving day back to the last day of
// the month when the month is shorter.
func ClampedDate(year int, month time.Month, day int, loc *time.Location) time.Time {
	if last := DaysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// AddMonthsClamped shifts anchor by n calendar months, keeping the anchor's
// day of month where it exists. Results never drift: each step is computed
// from the anchor, not from the previous result.
func AddMonthsClamped(anchor time.Time, n int) time.Time {
	y, m, d := anchor.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, anchor.Location()).AddDate(0, n, 0)
	return ClampedDate(first.Year(), first.Month(), d, anchor.Location())
}

// ExpenseDueDates returns one due date per calendar month from created's month
// through now's month inclusive, oldest first.
func ExpenseDueDates(dueDay int, created, now time.Time) []time.Time {
	start := StartOfMonth(created)
	end := StartOfMonth(now)

	var dates []time.Time
	for month := start; !month.After(end); month = month.AddDate(0, 1, 0) {
		dates = append(dates, ClampedDate(month.Year(), month.Month(), dueDay, month.Location()))
	}
	return dates
}

// IncomeDates returns every payday d with created <= d <= now, compared as
// calendar days, oldest first. The sequence is anchored on nextPayday and
// extends in both directions, so a stale nextPayday still catches up to now.
func IncomeDates(freq api.Frequency, nextPayday, created, now time.Time) ([]time.Time, error) {
	step, err := stepper(freq, StartOfDay(nextPayday))
	if err != nil {
		return nil, err
	}

	first := StartOfDay(created)
	last := StartOfDay(now)

	k := 0
	for step(k).After(first) {
		k--
	}

	var dates []time.Time
	for d := step(k); !d.After(last); d = step(k) {
		if !d.Before(first) {
			dates = append(dates, d)
		}
		k++
	}
	return dates, nil
}

func stepper(freq api.Frequency, anchor time.Time) (func(k int) time.Time, error) {
	switch freq {
	case api.FrequencyWeekly:
		return func(k int) time.Time { return anchor.AddDate(0, 0, 7*k) }, nil
	case api.FrequencyBiweekly:
		return func(k int) time.Time { return anchor.AddDate(0, 0, 14*k) }, nil
	case api.FrequencyMonthly:
		return func(k int) time.Time { return AddMonthsClamped(anchor, k) }, nil
	default:
		return nil, fmt.Errorf("%w: no payday sequence for %q income", api.ErrValidation, freq)
	}
}
