package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/store/storetest"
)

// Set KINDER_TEST_MONGO_URI (e.g. mongodb://localhost:27017) to run these.
func testURI(t *testing.T) string {
	uri := os.Getenv("KINDER_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("KINDER_TEST_MONGO_URI not set")
	}
	return uri
}

func newTestStore(t *testing.T, uri string) *Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := fmt.Sprintf("kinder_test_%d", time.Now().UnixNano())
	s, err := Connect(ctx, uri, db, WithLocation(time.UTC))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Drop(context.Background())
		_ = s.Close()
	})
	return s
}

func TestMongo_Conformance(t *testing.T) {
	uri := testURI(t)
	storetest.Run(t, func(t *testing.T) storetest.Store { return newTestStore(t, uri) })
}

func TestMongo_MalformedIDIsMissing(t *testing.T) {
	s := newTestStore(t, testURI(t))

	got, err := s.Get(context.Background(), "not-an-object-id")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMongo_ConnectFailsFast(t *testing.T) {
	testURI(t)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := Connect(ctx, "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=200", "x")
	assert.Error(t, err)
}
