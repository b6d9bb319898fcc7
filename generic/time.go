package generic

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used on the wire and in SQL.
const DateLayout = "2006-01-02"

// =============================================================================
// DAY BOUNDARIES - All computed in the location of the given time
// =============================================================================

func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last millisecond of t's day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Millisecond)
}

func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// StartOfWeek returns midnight of the most recent `first` weekday at or before t.
func StartOfWeek(t time.Time, first time.Weekday) time.Time {
	day := StartOfDay(t)
	offset := (int(day.Weekday()) - int(first) + 7) % 7
	return day.AddDate(0, 0, -offset)
}

func EndOfWeek(t time.Time, first time.Weekday) time.Time {
	return EndOfDay(StartOfWeek(t, first).AddDate(0, 0, 6))
}

func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func EndOfMonth(t time.Time) time.Time {
	return StartOfMonth(t).AddDate(0, 1, 0).Add(-time.Millisecond)
}

// =============================================================================
// PARSING
// =============================================================================

// ParseDate accepts "2006-01-02" or an RFC3339 timestamp and returns midnight
// of that calendar day in loc. Timestamps are converted to loc first.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(DateLayout, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD or RFC3339)", s)
	}
	return StartOfDay(t.In(loc)), nil
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q (use HH:MM)", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// SinceMidnight returns how far into its day t is.
func SinceMidnight(t time.Time) time.Duration {
	return t.Sub(StartOfDay(t))
}
