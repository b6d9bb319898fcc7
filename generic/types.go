/*
Package generic provides the domain-agnostic primitives of the attendance engine.

PURPOSE:
  This package contains the quantities, time windows and error taxonomy that
  the attendance package builds on. Nothing in here knows about children,
  caretakers or records; it only knows about hours, days and periods.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 2.5 hours)
  - HoursBetween: Elapsed time between two instants as an hour Amount

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point drift when
     running totals are chained record after record
  2. Fixed scale: Hour amounts derived from timestamps are rounded to
     HourScale decimal places, which is also the persisted precision

USAGE:
  taken := generic.HoursBetween(arrival, departure) // 2.50 hours
  total := prior.Add(taken)

SEE ALSO:
  - period.go: Week and month windows
  - errors.go: Error taxonomy
  - attendance/accrual.go: The accrual engine using these types
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitHours   Unit = "hours"
	UnitMinutes Unit = "minutes"
)

// HourScale is the number of decimal places kept on hour amounts.
const HourScale = 2

var millisPerHour = decimal.NewFromInt(int64(time.Hour / time.Millisecond))

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

// Hours returns an hour amount rounded to HourScale.
func Hours(value float64) Amount {
	return Amount{Value: decimal.NewFromFloat(value).Round(HourScale), Unit: UnitHours}
}

func ZeroHours() Amount { return Amount{Value: decimal.Zero, Unit: UnitHours} }

// HoursBetween returns the hours elapsed from `from` to `to`, rounded to
// HourScale. Millisecond resolution, matching what the record store keeps.
func HoursBetween(from, to time.Time) Amount {
	ms := decimal.NewFromInt(to.Sub(from).Milliseconds())
	return Amount{Value: ms.Div(millisPerHour).Round(HourScale), Unit: UnitHours}
}

func (a Amount) Zero() Amount              { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Round(places int32) Amount { return Amount{Value: a.Value.Round(places), Unit: a.Unit} }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool       { return a.Value.Equal(b.Value) }
func (a Amount) String() string            { return a.Value.StringFixed(HourScale) }

// Float64 returns the value as a float, for JSON and document stores.
func (a Amount) Float64() float64 {
	f, _ := a.Value.Float64()
	return f
}

// ParseHours parses a decimal string as written by the SQL store.
func ParseHours(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: d, Unit: UnitHours}, nil
}
