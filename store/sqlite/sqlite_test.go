package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/attendance"
	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/generic"
	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:", WithLocation(time.UTC))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store { return newTestStore(t) })
}

func TestSQLite_DatesStoredInLocation(t *testing.T) {
	// GIVEN: A store in Helsinki time and a record for a Helsinki day
	helsinki, err := time.LoadLocation("Europe/Helsinki")
	require.NoError(t, err)
	s, err := New(":memory:", WithLocation(helsinki))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	// Midnight in Helsinki is the previous evening in UTC.
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, helsinki)
	saved, err := s.Insert(ctx, attendance.Record{
		ChildID: "c1", CaretakerID: "ct", Date: date, ArrivalTime: date.Add(8 * time.Hour),
		Allotment: generic.Hours(40), TakenHours: generic.ZeroHours(), CumulativeTakenHours: generic.ZeroHours(),
	})
	require.NoError(t, err)

	// WHEN: Read back
	got, err := s.Get(ctx, saved.ID)
	require.NoError(t, err)

	// THEN: Still the 4th, at local midnight
	assert.Equal(t, "2024-03-04", got.Date.Format(generic.DateLayout))
	assert.True(t, got.Date.Equal(date))
	assert.Equal(t, helsinki, got.Date.Location())
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kindergarten.db")
	ctx := context.Background()

	s, err := New(path, WithLocation(time.UTC))
	require.NoError(t, err)
	_, err = s.SaveChild(ctx, attendance.Child{ID: "c1", FirstName: "Aino", LastName: "Virtanen"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path, WithLocation(time.UTC))
	require.NoError(t, err)
	defer s.Close()

	child, err := s.GetChild(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, child)
	assert.Equal(t, "Aino", child.FirstName)
}

func TestSQLite_Reset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.SaveChild(ctx, attendance.Child{ID: "c1", FirstName: "A", LastName: "B"})
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))

	children, err := s.ListChildren(ctx)
	require.NoError(t, err)
	assert.Empty(t, children)
}
