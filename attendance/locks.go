package attendance

import (
	"sync"
	"time"
)

// ChainLocks serializes read-modify-write of one accrual chain, keyed by
// (child, week start). Entries are dropped once nobody holds or waits on them.
//
// This only covers writers in the same process. Two server processes sharing
// a database can still compute a cumulative total from a stale predecessor.
type ChainLocks struct {
	mu    sync.Mutex
	locks map[chainKey]*chainLock
}

type chainKey struct {
	child ChildID
	week  int64 // week start, unix seconds
}

type chainLock struct {
	mu   sync.Mutex
	refs int
}

func NewChainLocks() *ChainLocks {
	return &ChainLocks{locks: make(map[chainKey]*chainLock)}
}

// Lock blocks until the chain for (child, weekStart) is free and returns the
// function that releases it.
func (l *ChainLocks) Lock(child ChildID, weekStart time.Time) (unlock func()) {
	k := chainKey{child: child, week: weekStart.Unix()}

	l.mu.Lock()
	cl, ok := l.locks[k]
	if !ok {
		cl = &chainLock{}
		l.locks[k] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()
	return func() {
		cl.mu.Unlock()
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, k)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of chains currently held or awaited.
func (l *ChainLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
