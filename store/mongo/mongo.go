/*
Package mongo provides a MongoDB-backed implementation of the storage interfaces.

PURPOSE:
  Implements attendance.RecordStore and attendance.DirectoryStore on a
  document database. Field names in the attendances collection are the
  external contract existing consumers read: childId, date, arrivalTime,
  departureTime, caretakerId, monthHours, takenHours, cumulativeTakenHours.

COLLECTIONS:
  attendances: One document per record, _id is an ObjectID
  children:    Directory of children, _id is the child id string
  caretakers:  Directory of caretakers, _id is the caretaker id string
  counters:    Insertion sequence for attendances (tie-break on same date)

INDEXES:
  - {childId: 1, date: -1, seq: -1}: Prior-record lookup (hot path)

SEE ALSO:
  - attendance/store.go: Interface definitions
  - store/sqlite: Relational implementation of the same interfaces
*/
package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/attendance"
	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/generic"
)

const (
	attendancesCollection = "attendances"
	childrenCollection    = "children"
	caretakersCollection  = "caretakers"
	countersCollection    = "counters"
)

// Store implements all storage interfaces using MongoDB.
type Store struct {
	client      *mongo.Client
	db          *mongo.Database
	attendances *mongo.Collection
	children    *mongo.Collection
	caretakers  *mongo.Collection
	counters    *mongo.Collection
	loc         *time.Location
}

var (
	_ attendance.RecordStore    = (*Store)(nil)
	_ attendance.DirectoryStore = (*Store)(nil)
)

type Option func(*Store)

// WithLocation sets the zone record dates are read back in. It must match
// the attendance service's location.
func WithLocation(loc *time.Location) Option { return func(s *Store) { s.loc = loc } }

// Connect dials uri, pings the server and ensures indexes on database.
func Connect(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "pinging mongo")
	}

	db := client.Database(database)
	s := &Store{
		client:      client,
		db:          db,
		attendances: db.Collection(attendancesCollection),
		children:    db.Collection(childrenCollection),
		caretakers:  db.Collection(caretakersCollection),
		counters:    db.Collection(countersCollection),
		loc:         time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.attendances.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "childId", Value: 1}, {Key: "date", Value: -1}, {Key: "seq", Value: -1}},
	})
	return errors.Wrap(err, "creating attendance index")
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes every collection this store owns. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return errors.Wrap(s.db.Drop(ctx), "dropping database")
}

// =============================================================================
// DOCUMENTS
// =============================================================================

type recordDoc struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty"`
	Seq                  int64              `bson:"seq"`
	ChildID              string             `bson:"childId"`
	CaretakerID          string             `bson:"caretakerId"`
	Date                 time.Time          `bson:"date"`
	ArrivalTime          time.Time          `bson:"arrivalTime"`
	DepartureTime        *time.Time         `bson:"departureTime"`
	MonthHours           float64            `bson:"monthHours"`
	TakenHours           float64            `bson:"takenHours"`
	CumulativeTakenHours float64            `bson:"cumulativeTakenHours"`
	CreatedAt            time.Time          `bson:"createdAt"`
	UpdatedAt            time.Time          `bson:"updatedAt"`
}

func (s *Store) toRecord(d recordDoc) attendance.Record {
	rec := attendance.Record{
		ID:                   attendance.RecordID(d.ID.Hex()),
		Seq:                  d.Seq,
		ChildID:              attendance.ChildID(d.ChildID),
		CaretakerID:          attendance.CaretakerID(d.CaretakerID),
		Date:                 generic.StartOfDay(d.Date.In(s.loc)),
		ArrivalTime:          d.ArrivalTime.In(s.loc),
		Allotment:            generic.Hours(d.MonthHours),
		TakenHours:           generic.Hours(d.TakenHours),
		CumulativeTakenHours: generic.Hours(d.CumulativeTakenHours),
		CreatedAt:            d.CreatedAt.In(s.loc),
		UpdatedAt:            d.UpdatedAt.In(s.loc),
	}
	if d.DepartureTime != nil {
		dep := d.DepartureTime.In(s.loc)
		rec.DepartureTime = &dep
	}
	return rec
}

type childDoc struct {
	ID        string    `bson:"_id"`
	FirstName string    `bson:"firstName"`
	LastName  string    `bson:"lastName"`
	GroupID   string    `bson:"groupId,omitempty"`
	ParentID  string    `bson:"parentId,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
}

type caretakerDoc struct {
	ID        string    `bson:"_id"`
	Username  string    `bson:"username"`
	FirstName string    `bson:"firstName,omitempty"`
	LastName  string    `bson:"lastName,omitempty"`
	Role      string    `bson:"role"`
	CreatedAt time.Time `bson:"createdAt"`
}

// =============================================================================
// RECORD STORE (attendance.RecordStore interface)
// =============================================================================

func (s *Store) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": attendancesCollection},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	return counter.Seq, errors.Wrap(err, "incrementing attendance seq")
}

// Insert adds a record. Record IDs are always assigned by the database.
func (s *Store) Insert(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	seq, err := s.nextSeq(ctx)
	if err != nil {
		return attendance.Record{}, err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	doc := recordDoc{
		ID:                   primitive.NewObjectID(),
		Seq:                  seq,
		ChildID:              string(rec.ChildID),
		CaretakerID:          string(rec.CaretakerID),
		Date:                 rec.Date,
		ArrivalTime:          rec.ArrivalTime,
		DepartureTime:        rec.DepartureTime,
		MonthHours:           rec.Allotment.Float64(),
		TakenHours:           rec.TakenHours.Float64(),
		CumulativeTakenHours: rec.CumulativeTakenHours.Float64(),
		CreatedAt:            rec.CreatedAt,
		UpdatedAt:            rec.CreatedAt,
	}
	if _, err := s.attendances.InsertOne(ctx, doc); err != nil {
		return attendance.Record{}, errors.Wrap(err, "inserting attendance")
	}
	return s.toRecord(doc), nil
}

// Update overwrites the mutable and derived fields of a record.
func (s *Store) Update(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	oid, err := primitive.ObjectIDFromHex(string(rec.ID))
	if err != nil {
		return attendance.Record{}, generic.ErrNotFound
	}

	var doc recordDoc
	err = s.attendances.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{
			"departureTime":        rec.DepartureTime,
			"monthHours":           rec.Allotment.Float64(),
			"takenHours":           rec.TakenHours.Float64(),
			"cumulativeTakenHours": rec.CumulativeTakenHours.Float64(),
			"updatedAt":            rec.UpdatedAt,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return attendance.Record{}, generic.ErrNotFound
	}
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "updating attendance")
	}
	return s.toRecord(doc), nil
}

// Get retrieves a record by ID. Malformed IDs are treated as missing.
func (s *Store) Get(ctx context.Context, id attendance.RecordID) (*attendance.Record, error) {
	oid, err := primitive.ObjectIDFromHex(string(id))
	if err != nil {
		return nil, nil
	}

	var doc recordDoc
	err = s.attendances.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	rec := s.toRecord(doc)
	return &rec, nil
}

// List returns records matching filter in chain order.
func (s *Store) List(ctx context.Context, filter attendance.Filter) ([]attendance.Record, error) {
	q := bson.M{}
	if filter.ChildID != "" {
		q["childId"] = string(filter.ChildID)
	}
	date := bson.M{}
	if filter.From != nil {
		date["$gte"] = generic.StartOfDay(filter.From.In(s.loc))
	}
	if filter.To != nil {
		date["$lte"] = generic.EndOfDay(filter.To.In(s.loc))
	}
	if len(date) > 0 {
		q["date"] = date
	}

	cur, err := s.attendances.Find(ctx, q,
		options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "seq", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "listing attendance")
	}
	var docs []recordDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding attendance")
	}

	recs := make([]attendance.Record, len(docs))
	for i, d := range docs {
		recs[i] = s.toRecord(d)
	}
	return recs, nil
}

// LatestInWindow returns the chain predecessor described by q.
func (s *Store) LatestInWindow(ctx context.Context, q attendance.PriorQuery) (*attendance.Record, error) {
	day := generic.StartOfDay(q.ExcludeDate.In(s.loc))
	filter := bson.M{
		"childId": string(q.ChildID),
		"date": bson.M{
			"$gte": q.Window.Start,
			"$lte": q.Window.End,
			"$ne":  day,
		},
	}
	if q.ExcludeID != "" {
		if oid, err := primitive.ObjectIDFromHex(string(q.ExcludeID)); err == nil {
			filter["_id"] = bson.M{"$ne": oid}
		}
	}

	var doc recordDoc
	err := s.attendances.FindOne(ctx, filter,
		options.FindOne().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "seq", Value: -1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying latest attendance")
	}
	rec := s.toRecord(doc)
	return &rec, nil
}

// =============================================================================
// DIRECTORY (attendance.DirectoryStore interface)
// =============================================================================

func (s *Store) SaveChild(ctx context.Context, c attendance.Child) (attendance.Child, error) {
	if c.ID == "" {
		c.ID = attendance.ChildID(primitive.NewObjectID().Hex())
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	doc := childDoc{
		ID:        string(c.ID),
		FirstName: c.FirstName,
		LastName:  c.LastName,
		GroupID:   c.GroupID,
		ParentID:  c.ParentID,
		CreatedAt: c.CreatedAt,
	}
	_, err := s.children.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return attendance.Child{}, errors.Wrap(err, "saving child")
	}
	return c, nil
}

func (s *Store) GetChild(ctx context.Context, id attendance.ChildID) (*attendance.Child, error) {
	var doc childDoc
	err := s.children.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying child")
	}
	c := childFromDoc(doc)
	return &c, nil
}

func (s *Store) ListChildren(ctx context.Context) ([]attendance.Child, error) {
	cur, err := s.children.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "lastName", Value: 1}, {Key: "firstName", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "listing children")
	}
	var docs []childDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding children")
	}
	children := make([]attendance.Child, len(docs))
	for i, d := range docs {
		children[i] = childFromDoc(d)
	}
	return children, nil
}

func childFromDoc(d childDoc) attendance.Child {
	return attendance.Child{
		ID:        attendance.ChildID(d.ID),
		FirstName: d.FirstName,
		LastName:  d.LastName,
		GroupID:   d.GroupID,
		ParentID:  d.ParentID,
		CreatedAt: d.CreatedAt,
	}
}

func (s *Store) SaveCaretaker(ctx context.Context, c attendance.Caretaker) (attendance.Caretaker, error) {
	if c.ID == "" {
		c.ID = attendance.CaretakerID(primitive.NewObjectID().Hex())
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	doc := caretakerDoc{
		ID:        string(c.ID),
		Username:  c.Username,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Role:      string(c.Role),
		CreatedAt: c.CreatedAt,
	}
	_, err := s.caretakers.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return attendance.Caretaker{}, errors.Wrap(err, "saving caretaker")
	}
	return c, nil
}

func (s *Store) GetCaretaker(ctx context.Context, id attendance.CaretakerID) (*attendance.Caretaker, error) {
	var doc caretakerDoc
	err := s.caretakers.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying caretaker")
	}
	c := caretakerFromDoc(doc)
	return &c, nil
}

func (s *Store) ListCaretakers(ctx context.Context) ([]attendance.Caretaker, error) {
	cur, err := s.caretakers.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "username", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "listing caretakers")
	}
	var docs []caretakerDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding caretakers")
	}
	caretakers := make([]attendance.Caretaker, len(docs))
	for i, d := range docs {
		caretakers[i] = caretakerFromDoc(d)
	}
	return caretakers, nil
}

func caretakerFromDoc(d caretakerDoc) attendance.Caretaker {
	return attendance.Caretaker{
		ID:        attendance.CaretakerID(d.ID),
		Username:  d.Username,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Role:      attendance.Role(d.Role),
		CreatedAt: d.CreatedAt,
	}
}
