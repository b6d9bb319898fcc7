package attendance

import (
	"context"
	"time"

	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/generic"
)

// =============================================================================
// ENGINE - Computes derived hours immediately before a record is written
// =============================================================================

// Engine fills in TakenHours and CumulativeTakenHours.
//
// ALGORITHM:
//  1. Window = the week containing rec.Date (Sunday 00:00 - Saturday 23:59:59.999)
//  2. Prior  = latest other record of the same child in Window, skipping
//     rec's own day and rec itself
//  3. Closed record: Taken = departure - arrival in hours (2 dp),
//     Cumulative = Prior.Cumulative + Taken
//  4. Open record:   Taken = 0, Cumulative = Prior.Cumulative
//
// The engine suspends once, on the prior-record read. Callers that need the
// read and the following write to be atomic hold a ChainLocks entry.
type Engine struct {
	Records RecordStore
	Periods generic.PeriodConfig
}

func NewEngine(records RecordStore) *Engine {
	return &Engine{Records: records, Periods: generic.WeeklyPeriods()}
}

// Window returns the accrual week containing date.
func (e *Engine) Window(date time.Time) generic.Period {
	return e.Periods.PeriodFor(date)
}

// Prepare computes rec's derived fields in place.
func (e *Engine) Prepare(ctx context.Context, rec *Record) error {
	prior, err := e.Records.LatestInWindow(ctx, PriorQuery{
		ChildID:     rec.ChildID,
		Window:      e.Window(rec.Date),
		ExcludeDate: rec.Date,
		ExcludeID:   rec.ID,
	})
	if err != nil {
		return &generic.StorageError{Op: "find prior attendance", Err: err}
	}

	base := generic.ZeroHours()
	if prior != nil {
		base = prior.CumulativeTakenHours
	}
	rec.TakenHours, rec.CumulativeTakenHours = Accrue(base, rec.ArrivalTime, rec.DepartureTime)
	return nil
}

// Accrue is the pure step of the chain: given the predecessor's cumulative
// total and this record's times, it returns this record's taken and
// cumulative hours.
func Accrue(prior generic.Amount, arrival time.Time, departure *time.Time) (taken, cumulative generic.Amount) {
	if arrival.IsZero() || departure == nil {
		return generic.ZeroHours(), prior
	}
	taken = generic.HoursBetween(arrival, *departure)
	return taken, prior.Add(taken).Round(generic.HourScale)
}
