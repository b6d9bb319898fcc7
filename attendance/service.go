package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/generic"
	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/logger"
)

// =============================================================================
// SERVICE - The create/update/read operations exposed to the HTTP layer
// =============================================================================

// Service validates input, runs the Engine and persists the result.
//
// Every create and update is read-prior-then-write. With chain locks
// enabled (the default) both steps run under the (child, week) lock, so
// concurrent writers to one chain see each other's results.
type Service struct {
	Records   RecordStore
	Directory Directory
	Engine    *Engine
	Locks     *ChainLocks // nil disables chain serialization

	Log       logger.Logger
	Location  *time.Location
	LateAfter time.Duration // arrivals at or after this time of day are late

	now func() time.Time
}

type Option func(*Service)

func WithLogger(l logger.Logger) Option { return func(s *Service) { s.Log = l } }

// WithLocation sets the zone calendar days and weeks are computed in.
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.Location = loc } }

func WithLateAfter(d time.Duration) Option { return func(s *Service) { s.LateAfter = d } }

// WithChainSerialization toggles the per-(child, week) lock.
func WithChainSerialization(on bool) Option {
	return func(s *Service) {
		if on {
			s.Locks = NewChainLocks()
		} else {
			s.Locks = nil
		}
	}
}

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(records RecordStore, dir Directory, opts ...Option) *Service {
	s := &Service{
		Records:   records,
		Directory: dir,
		Engine:    NewEngine(records),
		Locks:     NewChainLocks(),
		Log:       logger.Discard(),
		Location:  time.Local,
		LateAfter: 8 * time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates in, computes the derived hours and inserts the record.
//
// Checks run in this order: required fields, allotment sign, child exists,
// caretaker exists, departure after arrival.
func (s *Service) Create(ctx context.Context, in CreateInput) (Record, error) {
	if err := in.Validate(); err != nil {
		return Record{}, err
	}

	child, err := s.Directory.GetChild(ctx, in.ChildID)
	if err != nil {
		return Record{}, s.storageErr("get child", err)
	}
	if child == nil {
		return Record{}, &generic.NotFoundError{Kind: "child", ID: string(in.ChildID)}
	}
	caretaker, err := s.Directory.GetCaretaker(ctx, in.CaretakerID)
	if err != nil {
		return Record{}, s.storageErr("get caretaker", err)
	}
	if caretaker == nil {
		return Record{}, &generic.NotFoundError{Kind: "caretaker", ID: string(in.CaretakerID)}
	}

	if in.DepartureTime != nil && !in.DepartureTime.After(in.ArrivalTime) {
		return Record{}, departureError("departureTime")
	}

	now := s.now()
	rec := Record{
		ChildID:       in.ChildID,
		CaretakerID:   in.CaretakerID,
		Date:          generic.StartOfDay(in.Date.In(s.Location)),
		ArrivalTime:   in.ArrivalTime,
		DepartureTime: in.DepartureTime,
		Allotment:     generic.Hours(in.Allotment),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	defer s.lockChain(rec)()

	if err := s.Engine.Prepare(ctx, &rec); err != nil {
		return Record{}, s.storageErr("prepare attendance", err)
	}
	saved, err := s.Records.Insert(ctx, rec)
	if err != nil {
		return Record{}, s.storageErr("insert attendance", err)
	}

	s.Log.Info("attendance created",
		"id", saved.ID, "child", saved.ChildID, "date", saved.Date.Format(generic.DateLayout),
		"taken", saved.TakenHours, "cumulative", saved.CumulativeTakenHours)
	return saved, nil
}

// Update applies patch to the record and recomputes its derived hours
// against the latest prior record other than itself.
//
// Later records in the same week keep the cumulative total they were saved
// with; only the updated record is recomputed.
func (s *Service) Update(ctx context.Context, id RecordID, patch UpdatePatch) (Record, error) {
	if err := patch.Validate(); err != nil {
		return Record{}, err
	}

	rec, err := s.Records.Get(ctx, id)
	if err != nil {
		return Record{}, s.storageErr("get attendance", err)
	}
	if rec == nil {
		return Record{}, &generic.NotFoundError{Kind: "attendance record", ID: string(id)}
	}

	if patch.DepartureTime != nil {
		if !patch.DepartureTime.After(rec.ArrivalTime) {
			return Record{}, departureError("departureTime")
		}
		rec.DepartureTime = patch.DepartureTime
	}
	if patch.Allotment != nil {
		rec.Allotment = generic.Hours(*patch.Allotment)
	}
	rec.UpdatedAt = s.now()

	defer s.lockChain(*rec)()

	if err := s.Engine.Prepare(ctx, rec); err != nil {
		return Record{}, s.storageErr("prepare attendance", err)
	}
	saved, err := s.Records.Update(ctx, *rec)
	if err != nil {
		if generic.IsNotFound(err) {
			return Record{}, &generic.NotFoundError{Kind: "attendance record", ID: string(id)}
		}
		return Record{}, s.storageErr("update attendance", err)
	}

	s.Log.Info("attendance updated",
		"id", saved.ID, "child", saved.ChildID, "state", saved.State(),
		"taken", saved.TakenHours, "cumulative", saved.CumulativeTakenHours)
	return saved, nil
}

// Get returns the stored record. It never recomputes derived fields.
func (s *Service) Get(ctx context.Context, id RecordID) (Record, error) {
	rec, err := s.Records.Get(ctx, id)
	if err != nil {
		return Record{}, s.storageErr("get attendance", err)
	}
	if rec == nil {
		return Record{}, &generic.NotFoundError{Kind: "attendance record", ID: string(id)}
	}
	return *rec, nil
}

func (s *Service) List(ctx context.Context, filter Filter) ([]Record, error) {
	recs, err := s.Records.List(ctx, filter)
	if err != nil {
		return nil, s.storageErr("list attendance", err)
	}
	return recs, nil
}

// =============================================================================
// READ SIDE - Records enriched with directory display fields
// =============================================================================

// View is a record with its child and caretaker resolved. Either may be nil
// if the directory entry has since been removed.
type View struct {
	Record
	Child     *Child
	Caretaker *Caretaker
}

func (s *Service) GetView(ctx context.Context, id RecordID) (View, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	views, err := s.enrich(ctx, []Record{rec})
	if err != nil {
		return View{}, err
	}
	return views[0], nil
}

func (s *Service) ListViews(ctx context.Context, filter Filter) ([]View, error) {
	recs, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, recs)
}

func (s *Service) enrich(ctx context.Context, recs []Record) ([]View, error) {
	children := make(map[ChildID]*Child)
	caretakers := make(map[CaretakerID]*Caretaker)

	views := make([]View, len(recs))
	for i, rec := range recs {
		child, ok := children[rec.ChildID]
		if !ok {
			c, err := s.Directory.GetChild(ctx, rec.ChildID)
			if err != nil {
				return nil, s.storageErr("get child", err)
			}
			children[rec.ChildID], child = c, c
		}
		caretaker, ok := caretakers[rec.CaretakerID]
		if !ok {
			c, err := s.Directory.GetCaretaker(ctx, rec.CaretakerID)
			if err != nil {
				return nil, s.storageErr("get caretaker", err)
			}
			caretakers[rec.CaretakerID], caretaker = c, c
		}
		views[i] = View{Record: rec, Child: child, Caretaker: caretaker}
	}
	return views, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) lockChain(rec Record) (unlock func()) {
	if s.Locks == nil {
		return func() {}
	}
	return s.Locks.Lock(rec.ChildID, s.Engine.Window(rec.Date).Start)
}

// storageErr passes typed errors through and wraps everything else.
func (s *Service) storageErr(op string, err error) error {
	if generic.IsClientError(err) || generic.IsNotFound(err) {
		return err
	}
	s.Log.Error("storage failure", "op", op, "err", err)
	var se *generic.StorageError
	if errors.As(err, &se) {
		return err
	}
	return &generic.StorageError{Op: op, Err: err}
}
