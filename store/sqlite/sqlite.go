/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements attendance.RecordStore and attendance.DirectoryStore using
  SQLite. Each write is a single statement, so a failed create or update
  leaves nothing behind.

KEY TABLES:
  attendances: One row per attendance record, with derived hours
  children:    Directory of children
  caretakers:  Directory of caretakers (users who record attendance)

COLUMN FORMATS:
  date:                  "YYYY-MM-DD" in the store's location, so week-window
                         range scans are plain string comparisons
  arrival/departure:     RFC3339 (ms) in UTC
  hour amounts:          decimal strings, fixed at two places

INDEXES:
  - idx_attendances_child_date: Prior-record lookup (hot path), matches the
    (date desc, seq desc) ordering of the accrual chain

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Chain-level serialization is the
  caller's job (attendance.ChainLocks).

USAGE:
  store, err := sqlite.New("./data/kindergarten.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - attendance/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/attendance"
	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/generic"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	loc *time.Location
}

var (
	_ attendance.RecordStore    = (*Store)(nil)
	_ attendance.DirectoryStore = (*Store)(nil)
)

type Option func(*Store)

// WithLocation sets the zone record dates are read back in. It must match
// the attendance service's location.
func WithLocation(loc *time.Location) Option { return func(s *Store) { s.loc = loc } }

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	// :memory: databases are per-connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, loc: time.Local}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrating database")
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS children (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		group_id TEXT,
		parent_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS caretakers (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		first_name TEXT,
		last_name TEXT,
		role TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- seq carries insertion order for same-date tie-breaks. child and
	-- caretaker existence is checked by the service, not by foreign keys.
	CREATE TABLE IF NOT EXISTS attendances (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		child_id TEXT NOT NULL,
		caretaker_id TEXT NOT NULL,
		date TEXT NOT NULL,
		arrival_time TEXT NOT NULL,
		departure_time TEXT,
		month_hours TEXT NOT NULL,
		taken_hours TEXT NOT NULL DEFAULT '0.00',
		cumulative_taken_hours TEXT NOT NULL DEFAULT '0.00',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attendances_child_date
		ON attendances(child_id, date DESC, seq DESC);
	CREATE INDEX IF NOT EXISTS idx_attendances_date
		ON attendances(date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset clears all data.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM attendances;
		DELETE FROM children;
		DELETE FROM caretakers;
	`)
	return errors.Wrap(err, "resetting database")
}

// =============================================================================
// RECORD STORE (attendance.RecordStore interface)
// =============================================================================

const recordColumns = `seq, id, child_id, caretaker_id, date, arrival_time, departure_time,
	month_hours, taken_hours, cumulative_taken_hours, created_at, updated_at`

// Insert adds a record.
func (s *Store) Insert(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = attendance.RecordID(uuid.NewString())
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.UpdatedAt = rec.CreatedAt

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO attendances
		(id, child_id, caretaker_id, date, arrival_time, departure_time,
		 month_hours, taken_hours, cumulative_taken_hours, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.ChildID,
		rec.CaretakerID,
		s.formatDate(rec.Date),
		formatTime(rec.ArrivalTime),
		formatTimePtr(rec.DepartureTime),
		rec.Allotment.String(),
		rec.TakenHours.String(),
		rec.CumulativeTakenHours.String(),
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "inserting attendance")
	}
	rec.Seq, err = res.LastInsertId()
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "reading attendance seq")
	}
	return rec, nil
}

// Update overwrites the mutable and derived columns of a record.
func (s *Store) Update(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE attendances
		SET departure_time = ?, month_hours = ?, taken_hours = ?,
		    cumulative_taken_hours = ?, updated_at = ?
		WHERE id = ?
	`,
		formatTimePtr(rec.DepartureTime),
		rec.Allotment.String(),
		rec.TakenHours.String(),
		rec.CumulativeTakenHours.String(),
		formatTime(rec.UpdatedAt),
		rec.ID,
	)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "updating attendance")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "updating attendance")
	}
	if n == 0 {
		return attendance.Record{}, generic.ErrNotFound
	}

	updated, err := s.getLocked(ctx, rec.ID)
	if err != nil {
		return attendance.Record{}, err
	}
	if updated == nil {
		return attendance.Record{}, generic.ErrNotFound
	}
	return *updated, nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id attendance.RecordID) (*attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getLocked(ctx, id)
}

func (s *Store) getLocked(ctx context.Context, id attendance.RecordID) (*attendance.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM attendances WHERE id = ?", id)
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	recs, err := s.scanRecords(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

// List returns records matching filter in chain order.
func (s *Store) List(ctx context.Context, filter attendance.Filter) ([]attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + recordColumns + " FROM attendances WHERE 1=1"
	var args []any
	if filter.ChildID != "" {
		query += " AND child_id = ?"
		args = append(args, filter.ChildID)
	}
	if filter.From != nil {
		query += " AND date >= ?"
		args = append(args, s.formatDate(*filter.From))
	}
	if filter.To != nil {
		query += " AND date <= ?"
		args = append(args, s.formatDate(*filter.To))
	}
	query += " ORDER BY date ASC, seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing attendance")
	}
	recs, err := s.scanRecords(rows)
	if recs == nil && err == nil {
		recs = []attendance.Record{}
	}
	return recs, err
}

// LatestInWindow returns the chain predecessor described by q.
func (s *Store) LatestInWindow(ctx context.Context, q attendance.PriorQuery) (*attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendances
		WHERE child_id = ?
		  AND date >= ? AND date <= ?
		  AND date != ?
		  AND id != ?
		ORDER BY date DESC, seq DESC
		LIMIT 1
	`,
		q.ChildID,
		s.formatDate(q.Window.Start),
		s.formatDate(q.Window.End),
		s.formatDate(q.ExcludeDate),
		q.ExcludeID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying latest attendance")
	}
	recs, err := s.scanRecords(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

func (s *Store) scanRecords(rows *sql.Rows) ([]attendance.Record, error) {
	defer rows.Close()

	var recs []attendance.Record
	for rows.Next() {
		var (
			rec                                 attendance.Record
			date, arrival, createdAt, updatedAt string
			departure                           sql.NullString
			allotment, taken, cumulative        string
		)
		err := rows.Scan(
			&rec.Seq, &rec.ID, &rec.ChildID, &rec.CaretakerID,
			&date, &arrival, &departure,
			&allotment, &taken, &cumulative,
			&createdAt, &updatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "scanning attendance")
		}

		if rec.Date, err = time.ParseInLocation(generic.DateLayout, date, s.loc); err != nil {
			return nil, errors.Wrapf(err, "parsing date of attendance %s", rec.ID)
		}
		if rec.ArrivalTime, err = s.parseTime(arrival); err != nil {
			return nil, errors.Wrapf(err, "parsing arrival of attendance %s", rec.ID)
		}
		if departure.Valid {
			d, err := s.parseTime(departure.String)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing departure of attendance %s", rec.ID)
			}
			rec.DepartureTime = &d
		}
		if rec.Allotment, err = generic.ParseHours(allotment); err != nil {
			return nil, errors.Wrapf(err, "parsing allotment of attendance %s", rec.ID)
		}
		if rec.TakenHours, err = generic.ParseHours(taken); err != nil {
			return nil, errors.Wrapf(err, "parsing taken hours of attendance %s", rec.ID)
		}
		if rec.CumulativeTakenHours, err = generic.ParseHours(cumulative); err != nil {
			return nil, errors.Wrapf(err, "parsing cumulative hours of attendance %s", rec.ID)
		}
		rec.CreatedAt, _ = s.parseTime(createdAt)
		rec.UpdatedAt, _ = s.parseTime(updatedAt)
		recs = append(recs, rec)
	}
	return recs, errors.Wrap(rows.Err(), "iterating attendance")
}

// =============================================================================
// DIRECTORY (attendance.DirectoryStore interface)
// =============================================================================

// SaveChild upserts a child.
func (s *Store) SaveChild(ctx context.Context, c attendance.Child) (attendance.Child, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = attendance.ChildID(uuid.NewString())
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO children (id, first_name, last_name, group_id, parent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			group_id = excluded.group_id,
			parent_id = excluded.parent_id
	`, c.ID, c.FirstName, c.LastName, c.GroupID, c.ParentID, formatTime(c.CreatedAt))
	if err != nil {
		return attendance.Child{}, errors.Wrap(err, "saving child")
	}
	return c, nil
}

// GetChild retrieves a child by ID.
func (s *Store) GetChild(ctx context.Context, id attendance.ChildID) (*attendance.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c attendance.Child
	var groupID, parentID sql.NullString
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, first_name, last_name, group_id, parent_id, created_at FROM children WHERE id = ?",
		id,
	).Scan(&c.ID, &c.FirstName, &c.LastName, &groupID, &parentID, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying child")
	}

	c.GroupID, c.ParentID = groupID.String, parentID.String
	c.CreatedAt, _ = s.parseTime(createdAt)
	return &c, nil
}

// ListChildren returns all children.
func (s *Store) ListChildren(ctx context.Context) ([]attendance.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, first_name, last_name, group_id, parent_id, created_at FROM children ORDER BY last_name, first_name",
	)
	if err != nil {
		return nil, errors.Wrap(err, "listing children")
	}
	defer rows.Close()

	children := []attendance.Child{}
	for rows.Next() {
		var c attendance.Child
		var groupID, parentID sql.NullString
		var createdAt string
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &groupID, &parentID, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scanning child")
		}
		c.GroupID, c.ParentID = groupID.String, parentID.String
		c.CreatedAt, _ = s.parseTime(createdAt)
		children = append(children, c)
	}
	return children, errors.Wrap(rows.Err(), "iterating children")
}

// SaveCaretaker upserts a caretaker.
func (s *Store) SaveCaretaker(ctx context.Context, c attendance.Caretaker) (attendance.Caretaker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = attendance.CaretakerID(uuid.NewString())
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO caretakers (id, username, first_name, last_name, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			role = excluded.role
	`, c.ID, c.Username, c.FirstName, c.LastName, c.Role, formatTime(c.CreatedAt))
	if err != nil {
		return attendance.Caretaker{}, errors.Wrap(err, "saving caretaker")
	}
	return c, nil
}

// GetCaretaker retrieves a caretaker by ID.
func (s *Store) GetCaretaker(ctx context.Context, id attendance.CaretakerID) (*attendance.Caretaker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c attendance.Caretaker
	var firstName, lastName sql.NullString
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, first_name, last_name, role, created_at FROM caretakers WHERE id = ?",
		id,
	).Scan(&c.ID, &c.Username, &firstName, &lastName, &c.Role, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying caretaker")
	}

	c.FirstName, c.LastName = firstName.String, lastName.String
	c.CreatedAt, _ = s.parseTime(createdAt)
	return &c, nil
}

// ListCaretakers returns all caretakers.
func (s *Store) ListCaretakers(ctx context.Context) ([]attendance.Caretaker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, username, first_name, last_name, role, created_at FROM caretakers ORDER BY username",
	)
	if err != nil {
		return nil, errors.Wrap(err, "listing caretakers")
	}
	defer rows.Close()

	caretakers := []attendance.Caretaker{}
	for rows.Next() {
		var c attendance.Caretaker
		var firstName, lastName sql.NullString
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Username, &firstName, &lastName, &c.Role, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scanning caretaker")
		}
		c.FirstName, c.LastName = firstName.String, lastName.String
		c.CreatedAt, _ = s.parseTime(createdAt)
		caretakers = append(caretakers, c)
	}
	return caretakers, errors.Wrap(rows.Err(), "iterating caretakers")
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) formatDate(t time.Time) string {
	return t.In(s.loc).Format(generic.DateLayout)
}

func (s *Store) parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(s.loc), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := formatTime(*t)
	return &v
}
