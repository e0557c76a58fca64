// Package snapshot holds the shared last-known-good market snapshot.
package snapshot

import (
	"sync"
	"time"

	"github.com/quotewatch/quotewatchd/internal/market"
	"github.com/quotewatch/quotewatchd/internal/metrics"
)

// Store is the single live snapshot cell. It is replaced wholesale by the
// acquisition loop and read concurrently by any number of API requests.
// The lock guards value copies only; it is never held across IO.
type Store struct {
	mu   sync.RWMutex
	snap market.Snapshot
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Replace swaps in a new snapshot captured at the given time. The records
// slice is copied in, so the caller may keep mutating its own slice.
func (s *Store) Replace(records []market.Record, capturedAt time.Time) {
	next := market.Snapshot{Records: records, CapturedAt: capturedAt}.Clone()

	s.mu.Lock()
	s.snap = next
	s.mu.Unlock()

	metrics.SnapshotRecords.Set(float64(len(records)))
}

// Read returns an independent copy of the current snapshot, so callers never
// observe a torn state during a concurrent Replace.
func (s *Store) Read() market.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Empty reports whether any snapshot has been captured yet.
func (s *Store) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Empty()
}
