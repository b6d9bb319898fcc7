package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/generic"
)

// Summary aggregates one child's records over a week or a calendar month.
type Summary struct {
	ChildID    ChildID
	PeriodType generic.PeriodType
	Period     generic.Period
	Records    []Record

	DaysPresent    int
	LateDays       int
	AverageArrival string // "HH:MM", empty if no records

	TotalTakenHours generic.Amount

	// CumulativeTakenHours is the chain value of the latest record in the
	// period. Only meaningful for weeks; months span several chains.
	CumulativeTakenHours generic.Amount

	// Allotment is the latest record's weekly cap for a week, and the sum of
	// every record's cap for a month.
	Allotment      generic.Amount
	RemainingHours generic.Amount
	OverAllotment  bool
}

// Summary builds the attendance summary for the period of the given type
// containing date. Reads only; derived fields are taken as stored.
func (s *Service) Summary(ctx context.Context, childID ChildID, date time.Time, pt generic.PeriodType) (Summary, error) {
	child, err := s.Directory.GetChild(ctx, childID)
	if err != nil {
		return Summary{}, s.storageErr("get child", err)
	}
	if child == nil {
		return Summary{}, &generic.NotFoundError{Kind: "child", ID: string(childID)}
	}

	pc := s.Engine.Periods
	pc.Type = pt
	period := pc.PeriodFor(generic.StartOfDay(date.In(s.Location)))

	recs, err := s.List(ctx, Filter{ChildID: childID, From: &period.Start, To: &period.End})
	if err != nil {
		return Summary{}, err
	}
	return summarize(childID, pt, period, recs, s.LateAfter, s.Location), nil
}

func summarize(childID ChildID, pt generic.PeriodType, period generic.Period, recs []Record, lateAfter time.Duration, loc *time.Location) Summary {
	sum := Summary{
		ChildID:              childID,
		PeriodType:           pt,
		Period:               period,
		Records:              recs,
		TotalTakenHours:      generic.ZeroHours(),
		CumulativeTakenHours: generic.ZeroHours(),
		Allotment:            generic.ZeroHours(),
	}

	days := make(map[string]bool)
	var arrivalTotal time.Duration
	var latest *Record
	for i := range recs {
		rec := &recs[i]
		days[rec.Date.Format(generic.DateLayout)] = true

		sinceMidnight := generic.SinceMidnight(rec.ArrivalTime.In(loc))
		arrivalTotal += sinceMidnight
		if sinceMidnight >= lateAfter {
			sum.LateDays++
		}

		sum.TotalTakenHours = sum.TotalTakenHours.Add(rec.TakenHours)
		if pt == generic.PeriodCalendarMonth {
			sum.Allotment = sum.Allotment.Add(rec.Allotment)
		}
		if latest == nil || Later(*rec, *latest) {
			latest = rec
		}
	}
	sum.DaysPresent = len(days)

	if latest != nil {
		sum.CumulativeTakenHours = latest.CumulativeTakenHours
		if pt != generic.PeriodCalendarMonth {
			sum.Allotment = latest.Allotment
		}
		avg := arrivalTotal / time.Duration(len(recs))
		sum.AverageArrival = fmt.Sprintf("%02d:%02d", int(avg.Hours()), int(avg.Minutes())%60)
	}

	sum.RemainingHours = sum.Allotment.Sub(sum.TotalTakenHours)
	sum.OverAllotment = sum.RemainingHours.IsNegative()
	return sum
}
