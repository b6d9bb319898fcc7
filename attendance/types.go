/*
Package attendance implements the attendance accrual engine.

PURPOSE:
  Tracks when each child arrives and leaves, and keeps two derived numbers
  on every attendance record:

    TakenHours:           hours present for this one record
    CumulativeTakenHours: running total of TakenHours across the child's
                          records in the same Sunday-to-Saturday week

KEY CONCEPTS:
  - Record:        One child's attendance on one calendar day
  - Accrual chain: A child's records within one week, ordered by date then
                   insertion order, each carrying the previous cumulative total
  - Allotment:     The weekly hour cap for the child (persisted as
                   "monthHours" for compatibility with existing clients)

LIFECYCLE:
  A record is created "open" (arrival only) or "closed" (arrival and
  departure). Only the departure time and the allotment may change after
  creation; both derived fields are recomputed by the engine on every
  create and update and are never set by callers.

SEE ALSO:
  - accrual.go: The chain computation
  - service.go: Create/update/read operations
  - store.go:   Persistence interfaces
*/
package attendance

import (
	"time"

	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/generic"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RecordID string
type ChildID string
type CaretakerID string

// =============================================================================
// RECORD
// =============================================================================

type State string

const (
	StateOpen   State = "open"   // arrived, no departure yet
	StateClosed State = "closed" // departure recorded
)

type Record struct {
	ID          RecordID
	ChildID     ChildID
	CaretakerID CaretakerID

	// Date is midnight of the attended day in the service's location.
	Date          time.Time
	ArrivalTime   time.Time
	DepartureTime *time.Time

	// Allotment is the weekly hour cap for the week containing Date.
	Allotment generic.Amount

	// Derived by Engine.Prepare. Never set directly.
	TakenHours           generic.Amount
	CumulativeTakenHours generic.Amount

	// Seq is the store-assigned insertion order, used to break ties between
	// records on the same date.
	Seq int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r Record) State() State {
	if r.DepartureTime == nil {
		return StateOpen
	}
	return StateClosed
}

// =============================================================================
// DIRECTORY ENTRIES
// =============================================================================

type Child struct {
	ID        ChildID
	FirstName string
	LastName  string
	GroupID   string
	ParentID  string
	CreatedAt time.Time
}

type Role string

const (
	RoleManager   Role = "manager"
	RoleCaretaker Role = "caretaker"
	RoleParent    Role = "parent"
	RoleGuest     Role = "guest"
)

func (r Role) Valid() bool {
	switch r {
	case RoleManager, RoleCaretaker, RoleParent, RoleGuest:
		return true
	}
	return false
}

type Caretaker struct {
	ID        CaretakerID
	Username  string
	FirstName string
	LastName  string
	Role      Role
	CreatedAt time.Time
}
