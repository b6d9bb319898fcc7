package attendance

import (
	"context"
	"time"

	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/generic"
)

// =============================================================================
// RECORD STORE
// =============================================================================

// RecordStore persists attendance records. Each write is atomic for a single
// record; nothing spans records.
//
// IMPLEMENTATIONS:
//   - store/memory: In-memory, for tests and development
//   - store/sqlite: SQLite
//   - store/mongo:  MongoDB
type RecordStore interface {
	// Insert persists a new record and returns it with ID (if empty), Seq
	// and timestamps assigned.
	Insert(ctx context.Context, rec Record) (Record, error)

	// Update overwrites the departure time, allotment and derived fields of
	// an existing record. Returns generic.ErrNotFound if it doesn't exist.
	Update(ctx context.Context, rec Record) (Record, error)

	// Get returns the record or (nil, nil) if it doesn't exist.
	Get(ctx context.Context, id RecordID) (*Record, error)

	// List returns records matching filter, ordered by date then Seq.
	List(ctx context.Context, filter Filter) ([]Record, error)

	// LatestInWindow returns the chronologically latest record matching q,
	// ordered by date desc then insertion order desc, or (nil, nil).
	LatestInWindow(ctx context.Context, q PriorQuery) (*Record, error)
}

// PriorQuery selects the predecessor of a record in its accrual chain.
type PriorQuery struct {
	ChildID ChildID
	Window  generic.Period

	// Records on ExcludeDate's calendar day and the record ExcludeID are
	// never returned, so a record can't chain onto itself or a same-day twin.
	ExcludeDate time.Time
	ExcludeID   RecordID
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	ChildID ChildID
	From    *time.Time // inclusive, by Date
	To      *time.Time // inclusive, by Date
}

// Match reports whether rec passes the filter. Used by in-process stores.
func (f Filter) Match(rec Record) bool {
	if f.ChildID != "" && rec.ChildID != f.ChildID {
		return false
	}
	if f.From != nil && rec.Date.Before(generic.StartOfDay(*f.From)) {
		return false
	}
	if f.To != nil && rec.Date.After(generic.EndOfDay(*f.To)) {
		return false
	}
	return true
}

// Match reports whether rec is a candidate predecessor. Used by in-process stores.
func (q PriorQuery) Match(rec Record) bool {
	return rec.ChildID == q.ChildID &&
		rec.ID != q.ExcludeID &&
		!generic.SameDay(rec.Date, q.ExcludeDate) &&
		q.Window.Contains(rec.Date)
}

// Later reports whether a sorts after b in chain order (date, then Seq).
func Later(a, b Record) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	return a.Seq > b.Seq
}

// =============================================================================
// DIRECTORY
// =============================================================================

// Directory resolves the children and caretakers records refer to.
type Directory interface {
	// GetChild returns the child or (nil, nil) if it doesn't exist.
	GetChild(ctx context.Context, id ChildID) (*Child, error)

	// GetCaretaker returns the caretaker or (nil, nil) if it doesn't exist.
	GetCaretaker(ctx context.Context, id CaretakerID) (*Caretaker, error)
}

// DirectoryStore is a Directory that can also be written to.
type DirectoryStore interface {
	Directory

	SaveChild(ctx context.Context, c Child) (Child, error)
	ListChildren(ctx context.Context) ([]Child, error)
	SaveCaretaker(ctx context.Context, c Caretaker) (Caretaker, error)
	ListCaretakers(ctx context.Context) ([]Caretaker, error)
}
