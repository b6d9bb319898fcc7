package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - The window a running total is scoped to
// =============================================================================

// Period is an inclusive time window [Start, End].
//
// Examples:
//   - Accrual week: Sunday 00:00:00.000 - Saturday 23:59:59.999
//   - Calendar month: the 1st 00:00 - last day 23:59:59.999
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains returns true if t is within [Start, End].
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// Days returns midnight of every day in the period.
func (p Period) Days() []time.Time {
	var days []time.Time
	for d := StartOfDay(p.Start); !d.After(p.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func (p Period) String() string {
	return "[" + p.Start.Format(DateLayout) + ", " + p.End.Format(DateLayout) + "]"
}

// PeriodType defines how periods are calculated
type PeriodType string

const (
	PeriodWeek          PeriodType = "week"  // WeekStart-anchored, 7 days
	PeriodCalendarMonth PeriodType = "month" // 1st - last day of month
)

// ParsePeriodType maps a query value to a PeriodType; empty means week.
func ParsePeriodType(s string) (PeriodType, error) {
	switch PeriodType(s) {
	case "", PeriodWeek:
		return PeriodWeek, nil
	case PeriodCalendarMonth:
		return PeriodCalendarMonth, nil
	}
	return "", fmt.Errorf("unknown period %q (use week or month)", s)
}

// PeriodConfig defines how to calculate periods
type PeriodConfig struct {
	Type PeriodType

	// For week: which weekday opens the week
	WeekStart time.Weekday
}

// WeeklyPeriods is the Sunday-to-Saturday window the accrual chain runs in.
func WeeklyPeriods() PeriodConfig {
	return PeriodConfig{Type: PeriodWeek, WeekStart: time.Sunday}
}

// PeriodFor returns the period that contains the given date, computed in
// the date's own location.
func (pc PeriodConfig) PeriodFor(date time.Time) Period {
	switch pc.Type {
	case PeriodCalendarMonth:
		return Period{Start: StartOfMonth(date), End: EndOfMonth(date)}
	default:
		return Period{
			Start: StartOfWeek(date, pc.WeekStart),
			End:   EndOfWeek(date, pc.WeekStart),
		}
	}
}
