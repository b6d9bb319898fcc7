// Package memory provides in-memory RecordStore and DirectoryStore
// implementations (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/attendance"
	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/generic"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	records    map[attendance.RecordID]attendance.Record
	seq        int64
	children   map[attendance.ChildID]attendance.Child
	caretakers map[attendance.CaretakerID]attendance.Caretaker

	// Hooks for tests that need to observe or fail store calls.
	BeforeLatest func(q attendance.PriorQuery) error
	BeforeWrite  func(rec attendance.Record) error
}

var (
	_ attendance.RecordStore    = (*Memory)(nil)
	_ attendance.DirectoryStore = (*Memory)(nil)
)

func New() *Memory {
	return &Memory{
		records:    make(map[attendance.RecordID]attendance.Record),
		children:   make(map[attendance.ChildID]attendance.Child),
		caretakers: make(map[attendance.CaretakerID]attendance.Caretaker),
	}
}

// =============================================================================
// RECORDS
// =============================================================================

func (m *Memory) Insert(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	if m.BeforeWrite != nil {
		if err := m.BeforeWrite(rec); err != nil {
			return attendance.Record{}, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = attendance.RecordID(uuid.NewString())
	}
	m.seq++
	rec.Seq = m.seq
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.UpdatedAt = rec.CreatedAt
	m.records[rec.ID] = copyRecord(rec)
	return rec, nil
}

func (m *Memory) Update(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	if m.BeforeWrite != nil {
		if err := m.BeforeWrite(rec); err != nil {
			return attendance.Record{}, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.records[rec.ID]
	if !ok {
		return attendance.Record{}, generic.ErrNotFound
	}
	existing.DepartureTime = rec.DepartureTime
	existing.Allotment = rec.Allotment
	existing.TakenHours = rec.TakenHours
	existing.CumulativeTakenHours = rec.CumulativeTakenHours
	existing.UpdatedAt = rec.UpdatedAt
	m.records[rec.ID] = copyRecord(existing)
	return existing, nil
}

func (m *Memory) Get(_ context.Context, id attendance.RecordID) (*attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	rec = copyRecord(rec)
	return &rec, nil
}

func (m *Memory) List(_ context.Context, filter attendance.Filter) ([]attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []attendance.Record{}
	for _, rec := range m.records {
		if filter.Match(rec) {
			result = append(result, copyRecord(rec))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return attendance.Later(result[j], result[i])
	})
	return result, nil
}

func (m *Memory) LatestInWindow(_ context.Context, q attendance.PriorQuery) (*attendance.Record, error) {
	if m.BeforeLatest != nil {
		if err := m.BeforeLatest(q); err != nil {
			return nil, err
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *attendance.Record
	for _, rec := range m.records {
		if !q.Match(rec) {
			continue
		}
		if latest == nil || attendance.Later(rec, *latest) {
			r := copyRecord(rec)
			latest = &r
		}
	}
	return latest, nil
}

// copyRecord detaches the departure pointer from the stored value.
func copyRecord(rec attendance.Record) attendance.Record {
	if rec.DepartureTime != nil {
		d := *rec.DepartureTime
		rec.DepartureTime = &d
	}
	return rec
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) SaveChild(_ context.Context, c attendance.Child) (attendance.Child, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = attendance.ChildID(uuid.NewString())
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	m.children[c.ID] = c
	return c, nil
}

func (m *Memory) GetChild(_ context.Context, id attendance.ChildID) (*attendance.Child, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.children[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) ListChildren(_ context.Context) ([]attendance.Child, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]attendance.Child, 0, len(m.children))
	for _, c := range m.children {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].LastName != result[j].LastName {
			return result[i].LastName < result[j].LastName
		}
		return result[i].FirstName < result[j].FirstName
	})
	return result, nil
}

func (m *Memory) SaveCaretaker(_ context.Context, c attendance.Caretaker) (attendance.Caretaker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = attendance.CaretakerID(uuid.NewString())
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	m.caretakers[c.ID] = c
	return c, nil
}

func (m *Memory) GetCaretaker(_ context.Context, id attendance.CaretakerID) (*attendance.Caretaker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.caretakers[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) ListCaretakers(_ context.Context) ([]attendance.Caretaker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]attendance.Caretaker, 0, len(m.caretakers))
	for _, c := range m.caretakers {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}
