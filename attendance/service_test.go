package attendance_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/attendance"
	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/generic"
	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/store/memory"
)

// Week of Sunday 2024-03-03 .. Saturday 2024-03-09.
var (
	sun3  = day(3)
	mon4  = day(4)
	tue5  = day(5)
	wed6  = day(6)
	sat9  = day(9)
	sun10 = day(10)
)

func day(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

func at(date time.Time, h, m int) time.Time {
	return date.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func ptr(t time.Time) *time.Time { return &t }

func setup(t *testing.T, opts ...attendance.Option) (*attendance.Service, *memory.Memory) {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	_, err := store.SaveChild(ctx, attendance.Child{ID: "child-1", FirstName: "Aino", LastName: "Virtanen"})
	require.NoError(t, err)
	_, err = store.SaveChild(ctx, attendance.Child{ID: "child-2", FirstName: "Eino", LastName: "Aalto"})
	require.NoError(t, err)
	_, err = store.SaveCaretaker(ctx, attendance.Caretaker{ID: "ct-1", Username: "liisa", Role: attendance.RoleCaretaker})
	require.NoError(t, err)

	opts = append([]attendance.Option{attendance.WithLocation(time.UTC)}, opts...)
	return attendance.NewService(store, store, opts...), store
}

func input(date time.Time, arrive, leave *time.Time) attendance.CreateInput {
	in := attendance.CreateInput{
		ChildID:       "child-1",
		Date:          date,
		DepartureTime: leave,
		CaretakerID:   "ct-1",
		Allotment:     40,
	}
	if arrive != nil {
		in.ArrivalTime = *arrive
	}
	return in
}

func hours(s string) generic.Amount {
	a, err := generic.ParseHours(s)
	if err != nil {
		panic(err)
	}
	return a
}

func assertHours(t *testing.T, want string, got generic.Amount, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, hours(want).Equal(got), append([]any{"want %s, got %s", want, got}, msgAndArgs...)...)
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_HoursComputation(t *testing.T) {
	// GIVEN: Arrival at 08:00 and departure 2h30m later
	svc, _ := setup(t)
	ctx := context.Background()

	// WHEN: The record is created
	rec, err := svc.Create(ctx, input(mon4, ptr(at(mon4, 8, 0)), ptr(at(mon4, 10, 30))))
	require.NoError(t, err)

	// THEN: Taken hours is 2.50 and it opens the week's chain
	assertHours(t, "2.50", rec.TakenHours)
	assertHours(t, "2.50", rec.CumulativeTakenHours)
	assert.Equal(t, attendance.StateClosed, rec.State())
	assert.NotEmpty(t, rec.ID)
	assertHours(t, "40", rec.Allotment)
}

func TestCreate_NoDepartureContributesZero(t *testing.T) {
	// GIVEN: A closed Monday worth 3h
	svc, _ := setup(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, input(mon4, ptr(at(mon4, 8, 0)), ptr(at(mon4, 11, 0))))
	require.NoError(t, err)

	// WHEN: Tuesday is opened with an arrival only
	rec, err := svc.Create(ctx, input(tue5, ptr(at(tue5, 8, 0)), nil))
	require.NoError(t, err)

	// THEN: Nothing is taken yet, and the running total is inherited
	assertHours(t, "0", rec.TakenHours)
	assertHours(t, "3", rec.CumulativeTakenHours)
	assert.Equal(t, attendance.StateOpen, rec.State())
	assert.Nil(t, rec.DepartureTime)
}

func TestCreate_ChainsWithinWeek(t *testing.T) {
	// GIVEN: Monday 3h, nothing else that week
	svc, _ := setup(t)
	ctx := context.Background()
	a, err := svc.Create(ctx, input(mon4, ptr(at(mon4, 8, 0)), ptr(at(mon4, 11, 0))))
	require.NoError(t, err)

	// WHEN: Wednesday 2h is added
	b, err := svc.Create(ctx, input(wed6, ptr(at(wed6, 9, 0)), ptr(at(wed6, 11, 0))))
	require.NoError(t, err)

	// THEN: 3 + 2 = 5, Monday unchanged
	assertHours(t, "3", a.CumulativeTakenHours)
	assertHours(t, "2", b.TakenHours)
	assertHours(t, "5", b.CumulativeTakenHours)

	stored, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assertHours(t, "3", stored.CumulativeTakenHours)
}

func TestCreate_ChainIsPerChild(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, input(mon4, ptr(at(mon4, 8, 0)), ptr(at(mon4, 16, 0))))
	require.NoError(t, err)

	other := input(tue5, ptr(at(tue5, 8, 0)), ptr(at(tue5, 9, 0)))
	other.ChildID = "child-2"
	rec, err := svc.Create(ctx, other)
	require.NoError(t, err)

	assertHours(t, "1", rec.CumulativeTakenHours)
}

func TestCreate_WeekBoundaryIsolation(t *testing.T) {
	// GIVEN: Saturday closes a week with 4h
	svc, _ := setup(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, input(sat9, ptr(at(sat9, 8, 0)), ptr(at(sat9, 12, 0))))
	require.NoError(t, err)

	// WHEN: The next day (Sunday) starts a new week
	rec, err := svc.Create(ctx, input(sun10, ptr(at(sun10, 8, 0)), ptr(at(sun10, 9, 30))))
	require.NoError(t, err)

	// THEN: Nothing carries across
	assertHours(t, "1.5", rec.TakenHours)
	assertHours(t, "1.5", rec.CumulativeTakenHours)
}

func TestCreate_SundayBelongsToFollowingSaturday(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, input(sun3, ptr(at(sun3, 8, 0)), ptr(at(sun3, 10, 0))))
	require.NoError(t, err)

	rec, err := svc.Create(ctx, input(sat9, ptr(at(sat9, 8, 0)), ptr(at(sat9, 9, 0))))
	require.NoError(t, err)

	assertHours(t, "3", rec.CumulativeTakenHours)
}

func TestCreate_SameDayRecordsDoNotChain(t *testing.T) {
	// GIVEN: Monday 3h, and a second Monday record
	svc, _ := setup(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, input(mon4, ptr(at(mon4, 8, 0)), ptr(at(mon4, 11, 0))))
	require.NoError(t, err)

	// WHEN: Another record for the same day is added
	twin, err := svc.Create(ctx, input(mon4, ptr(at(mon4, 13, 0)), ptr(at(mon4, 14, 0))))
	require.NoError(t, err)

	// THEN: The same-day record is skipped as a predecessor
	assertHours(t, "1", twin.CumulativeTakenHours)
}

func TestCreate_PredecessorIsLatestByDateThenInsertion(t *testing.T) {
	// GIVEN: Tuesday inserted before Monday, and two Tuesday records
	svc, _ := setup(t)
	ctx := context.Background()
	tue, err := svc.Create(ctx, input(tue5, ptr(at(tue5, 8, 0)), ptr(at(tue5, 9, 0))))
	require.NoError(t, err)
	mon, err := svc.Create(ctx, input(mon4, ptr(at(mon4, 8, 0)), ptr(at(mon4, 10, 0))))
	require.NoError(t, err)
	tue2, err := svc.Create(ctx, input(tue5, ptr(at(tue5, 12, 0)), ptr(at(tue5, 16, 0))))
	require.NoError(t, err)

	// A back-dated record still chains onto the latest other day in the week.
	assertHours(t, "1", tue.CumulativeTakenHours)
	assertHours(t, "3", mon.CumulativeTakenHours)
	assertHours(t, "7", tue2.CumulativeTakenHours)

	// WHEN: Wednesday is created
	rec, err := svc.Create(ctx, input(wed6, ptr(at(wed6, 8, 0)), ptr(at(wed6, 8, 30))))
	require.NoError(t, err)

	// THEN: It chains onto the later-inserted Tuesday record
	assertHours(t, "7.5", rec.CumulativeTakenHours)
}

func TestCreate_DateNormalizedToMidnight(t *testing.T) {
	svc, _ := setup(t)
	rec, err := svc.Create(context.Background(), input(at(mon4, 14, 20), ptr(at(mon4, 8, 0)), nil))
	require.NoError(t, err)
	assert.Equal(t, mon4, rec.Date)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestCreate_DepartureNotAfterArrival(t *testing.T) {
	tests := []struct {
		name  string
		leave time.Time
	}{
		{"earlier", at(mon4, 7, 0)},
		{"equal", at(mon4, 8, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := setup(t)
			ctx := context.Background()

			_, err := svc.Create(ctx, input(mon4, ptr(at(mon4, 8, 0)), ptr(tt.leave)))

			var verr *generic.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, attendance.MsgDepartureBeforeArrival, verr.Message)

			recs, err := store.List(ctx, attendance.Filter{})
			require.NoError(t, err)
			assert.Empty(t, recs, "nothing persisted")
		})
	}
}

func TestCreate_NonPositiveAllotment(t *testing.T) {
	tests := []struct {
		name      string
		allotment float64
		wantMsg   string
	}{
		{"zero is treated as missing", 0, attendance.MsgMissingFields},
		{"negative", -1, attendance.MsgAllotmentPositive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := setup(t)
			in := input(mon4, ptr(at(mon4, 8, 0)), nil)
			in.Allotment = tt.allotment

			_, err := svc.Create(context.Background(), in)

			var verr *generic.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantMsg, verr.Message)
			assert.Equal(t, "monthHours", verr.Fields[0].Field)

			recs, _ := store.List(context.Background(), attendance.Filter{})
			assert.Empty(t, recs)
		})
	}
}

func TestCreate_MissingFieldsReportedFirst(t *testing.T) {
	// GIVEN: No arrival, an unknown child and a negative allotment
	svc, _ := setup(t)
	in := input(mon4, nil, nil)
	in.ChildID = "nobody"
	in.Allotment = -3

	// WHEN
	_, err := svc.Create(context.Background(), in)

	// THEN: Missing fields win over every later check
	var verr *generic.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, attendance.MsgMissingFields, verr.Message)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "arrivalTime", verr.Fields[0].Field)
}

func TestCreate_UnknownChildOrCaretaker(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	in := input(mon4, ptr(at(mon4, 8, 0)), ptr(at(mon4, 7, 0)))
	in.ChildID = "nobody"
	_, err := svc.Create(ctx, in)
	var nf *generic.NotFoundError
	require.ErrorAs(t, err, &nf, "existence is checked before the departure rule")
	assert.Equal(t, "child", nf.Kind)

	in = input(mon4, ptr(at(mon4, 8, 0)), nil)
	in.CaretakerID = "ghost"
	_, err = svc.Create(ctx, in)
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "caretaker", nf.Kind)
	assert.Equal(t, "ghost", nf.ID)
}

func TestCreate_StorageFailure(t *testing.T) {
	// GIVEN: The prior-record lookup fails
	svc, store := setup(t)
	store.BeforeLatest = func(attendance.PriorQuery) error { return errors.New("connection reset") }

	// WHEN
	_, err := svc.Create(context.Background(), input(mon4, ptr(at(mon4, 8, 0)), nil))

	// THEN: A storage error, and nothing written
	require.Error(t, err)
	assert.True(t, generic.IsStorage(err))
	assert.False(t, generic.IsClientError(err))

	store.BeforeLatest = nil
	recs, _ := store.List(context.Background(), attendance.Filter{})
	assert.Empty(t, recs)
}

func TestCreate_WriteFailure(t *testing.T) {
	svc, store := setup(t)
	store.BeforeWrite = func(attendance.Record) error { return errors.New("disk full") }

	_, err := svc.Create(context.Background(), input(mon4, ptr(at(mon4, 8, 0)), nil))

	var se *generic.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "insert attendance", se.Op)
}

// =============================================================================
// UPDATE
// =============================================================================

func TestUpdate_SetDepartureRecomputes(t *testing.T) {
	// GIVEN: Monday 3h and an open Wednesday inheriting 3
	svc, _ := setup(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, input(mon4, ptr(at(mon4, 8, 0)), ptr(at(mon4, 11, 0))))
	require.NoError(t, err)
	open, err := svc.Create(ctx, input(wed6, ptr(at(wed6, 8, 0)), nil))
	require.NoError(t, err)
	assertHours(t, "0", open.TakenHours)
	assertHours(t, "3", open.CumulativeTakenHours)

	// WHEN: The departure is set
	updated, err := svc.Update(ctx, open.ID, attendance.UpdatePatch{DepartureTime: ptr(at(wed6, 12, 15))})
	require.NoError(t, err)

	// THEN: Hours recomputed against Monday
	assertHours(t, "4.25", updated.TakenHours)
	assertHours(t, "7.25", updated.CumulativeTakenHours)
	assert.Equal(t, open.ID, updated.ID)
	assert.Equal(t, attendance.StateClosed, updated.State())

	stored, err := svc.Get(ctx, open.ID)
	require.NoError(t, err)
	assertHours(t, "7.25", stored.CumulativeTakenHours)
}

func TestUpdate_ExcludesItselfFromChain(t *testing.T) {
	// GIVEN: A single closed record
	svc, _ := setup(t)
	ctx := context.Background()
	rec, err := svc.Create(ctx, input(mon4, ptr(at(mon4, 8, 0)), ptr(at(mon4, 10, 0))))
	require.NoError(t, err)

	// WHEN: Its departure moves later, twice
	_, err = svc.Update(ctx, rec.ID, attendance.UpdatePatch{DepartureTime: ptr(at(mon4, 11, 0))})
	require.NoError(t, err)
	again, err := svc.Update(ctx, rec.ID, attendance.UpdatePatch{DepartureTime: ptr(at(mon4, 11, 0))})
	require.NoError(t, err)

	// THEN: It never adds to its own previous total
	assertHours(t, "3", again.TakenHours)
	assertHours(t, "3", again.CumulativeTakenHours)
}

func TestUpdate_AllotmentOnly(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	rec, err := svc.Create(ctx, input(mon4, ptr(at(mon4, 8, 0)), ptr(at(mon4, 10, 0))))
	require.NoError(t, err)

	newCap := 32.5
	updated, err := svc.Update(ctx, rec.ID, attendance.UpdatePatch{Allotment: &newCap})
	require.NoError(t, err)

	assertHours(t, "32.5", updated.Allotment)
	assertHours(t, "2", updated.TakenHours)
	assert.Equal(t, rec.ArrivalTime, updated.ArrivalTime)
}

func TestUpdate_DoesNotCascadeToLaterRecords(t *testing.T) {
	// GIVEN: Monday 2h, Wednesday 1h (cum 3)
	svc, _ := setup(t)
	ctx := context.Background()
	mon, err := svc.Create(ctx, input(mon4, ptr(at(mon4, 8, 0)), ptr(at(mon4, 10, 0))))
	require.NoError(t, err)
	wed, err := svc.Create(ctx, input(wed6, ptr(at(wed6, 8, 0)), ptr(at(wed6, 9, 0))))
	require.NoError(t, err)

	// WHEN: Monday is extended by an hour
	_, err = svc.Update(ctx, mon.ID, attendance.UpdatePatch{DepartureTime: ptr(at(mon4, 11, 0))})
	require.NoError(t, err)

	// THEN: Wednesday keeps the total it was saved with
	stored, err := svc.Get(ctx, wed.ID)
	require.NoError(t, err)
	assertHours(t, "3", stored.CumulativeTakenHours)
}

func TestUpdate_Errors(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	rec, err := svc.Create(ctx, input(mon4, ptr(at(mon4, 8, 0)), nil))
	require.NoError(t, err)

	_, err = svc.Update(ctx, "missing", attendance.UpdatePatch{DepartureTime: ptr(at(mon4, 9, 0))})
	var nf *generic.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "attendance record", nf.Kind)

	_, err = svc.Update(ctx, rec.ID, attendance.UpdatePatch{DepartureTime: ptr(at(mon4, 8, 0))})
	var verr *generic.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, attendance.MsgDepartureBeforeArrival, verr.Message)

	zero := 0.0
	_, err = svc.Update(ctx, rec.ID, attendance.UpdatePatch{Allotment: &zero})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, attendance.MsgAllotmentPositive, verr.Message)

	stored, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.DepartureTime, "rejected updates leave the record alone")
}

// =============================================================================
// READS
// =============================================================================

func TestGet_IsIdempotent(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	rec, err := svc.Create(ctx, input(mon4, ptr(at(mon4, 8, 0)), ptr(at(mon4, 9, 45))))
	require.NoError(t, err)

	first, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	second, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)

	assert.True(t, first.TakenHours.Equal(second.TakenHours))
	assert.True(t, first.CumulativeTakenHours.Equal(second.CumulativeTakenHours))
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)

	_, err = svc.Get(ctx, "missing")
	assert.True(t, generic.IsNotFound(err))
}

func TestListViews_Enriched(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, input(tue5, ptr(at(tue5, 8, 0)), nil))
	require.NoError(t, err)
	_, err = svc.Create(ctx, input(mon4, ptr(at(mon4, 8, 0)), nil))
	require.NoError(t, err)

	views, err := svc.ListViews(ctx, attendance.Filter{ChildID: "child-1"})
	require.NoError(t, err)
	require.Len(t, views, 2)

	assert.Equal(t, mon4, views[0].Date, "ordered by date")
	require.NotNil(t, views[0].Child)
	assert.Equal(t, "Aino", views[0].Child.FirstName)
	require.NotNil(t, views[0].Caretaker)
	assert.Equal(t, "liisa", views[0].Caretaker.Username)

	from, to := tue5, wed6
	views, err = svc.ListViews(ctx, attendance.Filter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Len(t, views, 1)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestCreate_ConcurrentWritersSerializedPerChain(t *testing.T) {
	// GIVEN: Six days of one week created at once
	svc, store := setup(t)
	ctx := context.Background()
	days := []time.Time{day(3), day(4), day(5), day(6), day(7), day(8)}

	// Count writers between the prior-record read and the insert.
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	store.BeforeLatest = func(attendance.PriorQuery) error {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		return nil
	}
	store.BeforeWrite = func(attendance.Record) error {
		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	}

	// WHEN
	var wg sync.WaitGroup
	errs := make(chan error, len(days))
	for _, d := range days {
		wg.Add(1)
		go func(d time.Time) {
			defer wg.Done()
			_, err := svc.Create(ctx, input(d, ptr(at(d, 8, 0)), ptr(at(d, 9, 0))))
			errs <- err
		}(d)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// THEN: Only one writer at a time was inside the chain
	assert.Equal(t, 1, maxInFlight)
	assert.Equal(t, 0, svc.Locks.Len(), "locks released")

	recs, err := svc.List(ctx, attendance.Filter{ChildID: "child-1"})
	require.NoError(t, err)
	assert.Len(t, recs, len(days))
}

func TestCreate_ChainSerializationCanBeDisabled(t *testing.T) {
	svc, _ := setup(t, attendance.WithChainSerialization(false))
	assert.Nil(t, svc.Locks)

	_, err := svc.Create(context.Background(), input(mon4, ptr(at(mon4, 8, 0)), nil))
	require.NoError(t, err)
}

func TestChainLocks_KeysAreIndependent(t *testing.T) {
	locks := attendance.NewChainLocks()

	unlockA := locks.Lock("child-1", sun3)
	done := make(chan struct{})
	go func() {
		// Different child, same week: must not block.
		unlock := locks.Lock("child-2", sun3)
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another chain blocked")
	}
	assert.Equal(t, 1, locks.Len())
	unlockA()
	assert.Equal(t, 0, locks.Len())
}

func TestChainLocks_SameKeyBlocks(t *testing.T) {
	locks := attendance.NewChainLocks()
	unlock := locks.Lock("child-1", sun3)

	acquired := make(chan struct{})
	go func() {
		u := locks.Lock("child-1", sun3)
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held chain")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-acquired
}
