package position

import (
	"math"
	"sync"
	"time"

	"bl-arb-bot/internal/book"
	"bl-arb-bot/internal/venue"
)

// Position is the per-venue net state derived from confirmed fills.
type Position struct {
	Net       float64
	AvgEntry  float64
	UpdatedAt time.Time
}

// Tracker maintains net position per venue and enforces the absolute
// position cap. It is mutated only by confirmed fills, never by
// submission intent.
type Tracker struct {
	mu          sync.RWMutex
	maxPosition float64
	positions   map[book.Venue]Position
}

// New builds a tracker with an absolute per-venue cap. A cap of 0 means
// unlimited.
func New(maxPosition float64) *Tracker {
	return &Tracker{
		maxPosition: maxPosition,
		positions:   make(map[book.Venue]Position),
	}
}

// ApplyFill folds a confirmed fill into the venue's net position using
// signed volume-weighted averaging. Reducing fills keep the entry price;
// fills that flip the sign restart it at the fill price.
func (t *Tracker) ApplyFill(v book.Venue, side venue.Side, qty, price float64, at time.Time) Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos := t.positions[v]
	delta := qty
	if side == venue.SideSell {
		delta = -qty
	}
	next := pos.Net + delta
	switch {
	case pos.Net == 0 || sameSign(pos.Net, delta):
		total := math.Abs(pos.Net) + math.Abs(delta)
		if total > 0 {
			pos.AvgEntry = (math.Abs(pos.Net)*pos.AvgEntry + math.Abs(delta)*price) / total
		}
	case sameSign(pos.Net, next) || next == 0:
		// Pure reduction, entry price unchanged.
	default:
		// Crossed through zero; the residual opens at the fill price.
		pos.AvgEntry = price
	}
	pos.Net = next
	pos.UpdatedAt = at
	t.positions[v] = pos
	return pos
}

// Set seeds a venue's net position, used once at startup from the
// venue's own accounting.
func (t *Tracker) Set(v book.Venue, net float64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos := t.positions[v]
	pos.Net = net
	pos.UpdatedAt = at
	t.positions[v] = pos
}

// Headroom returns the quantity that can still be traded on v in the
// given direction before breaching the cap. Unlimited caps return +Inf.
func (t *Tracker) Headroom(v book.Venue, side venue.Side) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.maxPosition <= 0 {
		return math.Inf(1)
	}
	net := t.positions[v].Net
	var room float64
	if side == venue.SideBuy {
		room = t.maxPosition - net
	} else {
		room = t.maxPosition + net
	}
	if room < 0 {
		return 0
	}
	return room
}

// Get returns the current position for a venue.
func (t *Tracker) Get(v book.Venue) Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.positions[v]
}

// Snapshot returns a copy of all venue positions.
func (t *Tracker) Snapshot() map[book.Venue]Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[book.Venue]Position, len(t.positions))
	for v, pos := range t.positions {
		out[v] = pos
	}
	return out
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
