package book

import (
	"sync"
	"time"
)

// Store holds the latest quote per venue. One writer per venue, any
// number of readers. Snapshots never interleave fields from different
// updates of the same venue.
type Store struct {
	mu      sync.RWMutex
	quotes  map[Venue]Quote
	lastSeq map[Venue]uint64
}

func NewStore() *Store {
	return &Store{
		quotes:  make(map[Venue]Quote),
		lastSeq: make(map[Venue]uint64),
	}
}

// Update applies a quote if its sequence number is newer than the last
// applied one for its venue. Out-of-order and duplicate updates are
// rejected and Update returns false.
func (s *Store) Update(q Quote) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastSeq[q.Venue]; ok && q.Seq <= last {
		return false
	}
	s.lastSeq[q.Venue] = q.Seq
	s.quotes[q.Venue] = q
	return true
}

// Snapshot returns the latest quote pair. ok is false until both venues
// have delivered a first quote.
func (s *Store) Snapshot() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bp, bpOK := s.quotes[VenueBackpack]
	lt, ltOK := s.quotes[VenueLighter]
	if !bpOK || !ltOK {
		return Snapshot{}, false
	}
	return Snapshot{Backpack: bp, Lighter: lt, TakenAt: time.Now().UTC()}, true
}

// Quote returns the latest quote for a single venue.
func (s *Store) Quote(v Venue) (Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[v]
	return q, ok
}
