package book

import (
	"sync"
	"testing"
	"time"
)

func TestStoreRejectsStaleSequence(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()
	if !store.Update(Quote{Venue: VenueBackpack, Bid: 50000, Ask: 50001, Seq: 10, ReceivedAt: now}) {
		t.Fatalf("first update should apply")
	}
	if store.Update(Quote{Venue: VenueBackpack, Bid: 49000, Ask: 49001, Seq: 9, ReceivedAt: now}) {
		t.Fatalf("older sequence should be rejected")
	}
	if store.Update(Quote{Venue: VenueBackpack, Bid: 49000, Ask: 49001, Seq: 10, ReceivedAt: now}) {
		t.Fatalf("duplicate sequence should be rejected")
	}
	q, ok := store.Quote(VenueBackpack)
	if !ok || q.Bid != 50000 {
		t.Fatalf("expected bid 50000 after stale rejection, got %+v", q)
	}
	if !store.Update(Quote{Venue: VenueBackpack, Bid: 50002, Ask: 50003, Seq: 11, ReceivedAt: now}) {
		t.Fatalf("newer sequence should apply")
	}
}

func TestStoreSequencesIndependentPerVenue(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()
	if !store.Update(Quote{Venue: VenueBackpack, Bid: 1, Ask: 2, Seq: 100, ReceivedAt: now}) {
		t.Fatalf("backpack update should apply")
	}
	if !store.Update(Quote{Venue: VenueLighter, Bid: 1, Ask: 2, Seq: 1, ReceivedAt: now}) {
		t.Fatalf("lighter sequence must not be gated by backpack sequence")
	}
}

func TestSnapshotNotReadyUntilBothVenues(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()
	if _, ok := store.Snapshot(); ok {
		t.Fatalf("empty store should not be ready")
	}
	store.Update(Quote{Venue: VenueLighter, Bid: 1, Ask: 2, Seq: 1, ReceivedAt: now})
	if _, ok := store.Snapshot(); ok {
		t.Fatalf("single venue should not be ready")
	}
	store.Update(Quote{Venue: VenueBackpack, Bid: 1, Ask: 2, Seq: 1, ReceivedAt: now})
	snap, ok := store.Snapshot()
	if !ok {
		t.Fatalf("both venues delivered, snapshot should be ready")
	}
	if snap.Backpack.Venue != VenueBackpack || snap.Lighter.Venue != VenueLighter {
		t.Fatalf("snapshot venues mismatched: %+v", snap)
	}
}

func TestSnapshotNeverTorn(t *testing.T) {
	store := NewStore()
	start := time.Now().UTC()
	store.Update(Quote{Venue: VenueLighter, Bid: 1, Ask: 2, Seq: 1, ReceivedAt: start})

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for seq := uint64(1); ; seq++ {
			select {
			case <-done:
				return
			default:
			}
			// Bid and ask move together; a torn read would observe ask != bid+1.
			store.Update(Quote{Venue: VenueBackpack, Bid: float64(seq), Ask: float64(seq) + 1, Seq: seq, ReceivedAt: start})
		}
	}()

	deadline := time.Now().Add(50 * time.Millisecond)
	for time.Now().Before(deadline) {
		snap, ok := store.Snapshot()
		if !ok {
			continue
		}
		if snap.Backpack.Ask != snap.Backpack.Bid+1 {
			t.Fatalf("torn snapshot: bid=%f ask=%f", snap.Backpack.Bid, snap.Backpack.Ask)
		}
	}
	close(done)
	wg.Wait()
}

func TestSnapshotFreshness(t *testing.T) {
	now := time.Now().UTC()
	snap := Snapshot{
		Backpack: Quote{ReceivedAt: now.Add(-200 * time.Millisecond)},
		Lighter:  Quote{ReceivedAt: now.Add(-2 * time.Second)},
		TakenAt:  now,
	}
	if snap.Fresh(time.Second) {
		t.Fatalf("snapshot with a 2s old quote should be stale at 1s bound")
	}
	snap.Lighter.ReceivedAt = now.Add(-500 * time.Millisecond)
	if !snap.Fresh(time.Second) {
		t.Fatalf("snapshot within bound should be fresh")
	}
	if !snap.Fresh(0) {
		t.Fatalf("zero bound disables the staleness check")
	}
}
