// Package storetest holds the behaviour every record store must share. Each
// driver's tests call Run with a constructor for a fresh, empty store.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/attendance"
	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/generic"
)

// Store is what every driver implements.
type Store interface {
	attendance.RecordStore
	attendance.DirectoryStore
}

// Run exercises s against the RecordStore and DirectoryStore contracts.
// Dates are in time.UTC; drivers must be constructed with that location.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("UpdateMissing", func(t *testing.T) { testUpdateMissing(t, newStore(t)) })
	t.Run("ListOrderAndFilter", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("LatestInWindow", func(t *testing.T) { testLatestInWindow(t, newStore(t)) })
	t.Run("LatestInWindowExclusions", func(t *testing.T) { testLatestExclusions(t, newStore(t)) })
	t.Run("Directory", func(t *testing.T) { testDirectory(t, newStore(t)) })
}

func day(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

func record(child attendance.ChildID, date time.Time, cumulative float64) attendance.Record {
	return attendance.Record{
		ChildID:              child,
		CaretakerID:          "ct-1",
		Date:                 date,
		ArrivalTime:          date.Add(8 * time.Hour),
		Allotment:            generic.Hours(40),
		TakenHours:           generic.ZeroHours(),
		CumulativeTakenHours: generic.Hours(cumulative),
		CreatedAt:            date.Add(8 * time.Hour),
	}
}

func insert(t *testing.T, s Store, rec attendance.Record) attendance.Record {
	t.Helper()
	saved, err := s.Insert(context.Background(), rec)
	require.NoError(t, err)
	return saved
}

func testInsertAndGet(t *testing.T, s Store) {
	ctx := context.Background()
	leave := day(4).Add(10*time.Hour + 30*time.Minute)
	rec := record("c1", day(4), 2.5)
	rec.DepartureTime = &leave
	rec.TakenHours = generic.Hours(2.5)

	saved := insert(t, s, rec)
	assert.NotEmpty(t, saved.ID)
	assert.Positive(t, saved.Seq)

	got, err := s.Get(ctx, saved.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, attendance.ChildID("c1"), got.ChildID)
	assert.Equal(t, attendance.CaretakerID("ct-1"), got.CaretakerID)
	assert.True(t, got.Date.Equal(day(4)))
	assert.True(t, got.ArrivalTime.Equal(rec.ArrivalTime))
	require.NotNil(t, got.DepartureTime)
	assert.True(t, got.DepartureTime.Equal(leave))
	assert.Equal(t, "2.50", got.TakenHours.String())
	assert.Equal(t, "2.50", got.CumulativeTakenHours.String())
	assert.Equal(t, "40.00", got.Allotment.String())
}

func testGetMissing(t *testing.T, s Store) {
	got, err := s.Get(context.Background(), "000000000000000000000000")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testUpdate(t *testing.T, s Store) {
	ctx := context.Background()
	saved := insert(t, s, record("c1", day(4), 3))

	leave := day(4).Add(12 * time.Hour)
	saved.DepartureTime = &leave
	saved.TakenHours = generic.Hours(4)
	saved.CumulativeTakenHours = generic.Hours(7)
	saved.Allotment = generic.Hours(35)
	saved.UpdatedAt = leave

	updated, err := s.Update(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, updated.ID)
	assert.Equal(t, "7.00", updated.CumulativeTakenHours.String())

	got, err := s.Get(ctx, saved.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DepartureTime)
	assert.True(t, got.DepartureTime.Equal(leave))
	assert.Equal(t, "4.00", got.TakenHours.String())
	assert.Equal(t, "35.00", got.Allotment.String())
	assert.Equal(t, saved.Seq, got.Seq, "seq is fixed at insert")
}

func testUpdateMissing(t *testing.T, s Store) {
	rec := record("c1", day(4), 0)
	rec.ID = "000000000000000000000000"
	_, err := s.Update(context.Background(), rec)
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func testList(t *testing.T, s Store) {
	ctx := context.Background()
	insert(t, s, record("c1", day(5), 0))
	insert(t, s, record("c1", day(4), 0))
	insert(t, s, record("c2", day(4), 0))
	insert(t, s, record("c1", day(12), 0))

	all, err := s.List(ctx, attendance.Filter{ChildID: "c1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].Date.Equal(day(4)))
	assert.True(t, all[1].Date.Equal(day(5)))
	assert.True(t, all[2].Date.Equal(day(12)))

	from, to := day(3), day(9)
	week, err := s.List(ctx, attendance.Filter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Len(t, week, 3)
}

func testLatestInWindow(t *testing.T, s Store) {
	// GIVEN: Two records on Tuesday (inserted in order) and one on Monday
	ctx := context.Background()
	insert(t, s, record("c1", day(4), 2))
	insert(t, s, record("c1", day(5), 5))
	second := insert(t, s, record("c1", day(5), 6))
	insert(t, s, record("c1", day(11), 99)) // next week

	// WHEN: Looking up Wednesday's predecessor
	q := attendance.PriorQuery{
		ChildID:     "c1",
		Window:      generic.WeeklyPeriods().PeriodFor(day(6)),
		ExcludeDate: day(6),
	}
	got, err := s.LatestInWindow(ctx, q)

	// THEN: Latest date wins, ties broken by insertion order
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, "6.00", got.CumulativeTakenHours.String())

	q.ChildID = "c2"
	got, err = s.LatestInWindow(ctx, q)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testLatestExclusions(t *testing.T, s Store) {
	ctx := context.Background()
	mon := insert(t, s, record("c1", day(4), 2))
	wed := insert(t, s, record("c1", day(6), 4))

	// Same calendar day as the record being prepared is skipped.
	got, err := s.LatestInWindow(ctx, attendance.PriorQuery{
		ChildID:     "c1",
		Window:      generic.WeeklyPeriods().PeriodFor(day(6)),
		ExcludeDate: day(6),
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, mon.ID, got.ID)

	// The record itself is skipped even when its day is not excluded.
	got, err = s.LatestInWindow(ctx, attendance.PriorQuery{
		ChildID:     "c1",
		Window:      generic.WeeklyPeriods().PeriodFor(day(6)),
		ExcludeDate: day(7),
		ExcludeID:   wed.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, mon.ID, got.ID)
}

func testDirectory(t *testing.T, s Store) {
	ctx := context.Background()

	child, err := s.SaveChild(ctx, attendance.Child{FirstName: "Aino", LastName: "Virtanen", GroupID: "g1", ParentID: "p1"})
	require.NoError(t, err)
	assert.NotEmpty(t, child.ID)
	_, err = s.SaveChild(ctx, attendance.Child{ID: "c-fixed", FirstName: "Eino", LastName: "Aalto"})
	require.NoError(t, err)

	got, err := s.GetChild(ctx, child.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Aino", got.FirstName)
	assert.Equal(t, "p1", got.ParentID)

	children, err := s.ListChildren(ctx)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "Aalto", children[0].LastName)

	missing, err := s.GetChild(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	ct, err := s.SaveCaretaker(ctx, attendance.Caretaker{ID: "ct-1", Username: "liisa", Role: attendance.RoleCaretaker})
	require.NoError(t, err)
	gotCT, err := s.GetCaretaker(ctx, ct.ID)
	require.NoError(t, err)
	require.NotNil(t, gotCT)
	assert.Equal(t, "liisa", gotCT.Username)
	assert.Equal(t, attendance.RoleCaretaker, gotCT.Role)

	// Saving again replaces.
	ct.Username = "liisa.k"
	_, err = s.SaveCaretaker(ctx, ct)
	require.NoError(t, err)
	cts, err := s.ListCaretakers(ctx)
	require.NoError(t, err)
	require.Len(t, cts, 1)
	assert.Equal(t, "liisa.k", cts[0].Username)

	noCT, err := s.GetCaretaker(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, noCT)
}
