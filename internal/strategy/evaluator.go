package strategy

import (
	"errors"
	"math"
	"time"

	"bl-arb-bot/internal/book"
	"bl-arb-bot/internal/config"
	"bl-arb-bot/internal/venue"
)

var (
	ErrNotReady   = errors.New("order books not ready")
	ErrStale      = errors.New("quote data stale")
	ErrNoEdge     = errors.New("spread below threshold")
	ErrNoHeadroom = errors.New("position cap exhausted")
)

const minTradableSize = 1e-12

// PositionView is the synchronous risk check consulted before every
// opportunity emission.
type PositionView interface {
	Headroom(v book.Venue, side venue.Side) float64
}

// Evaluator samples the book store and decides whether a tradable spread
// exists. All four error values above mean "skip this tick"; none of
// them is a failure.
type Evaluator struct {
	cfg       config.StrategyConfig
	books     *book.Store
	positions PositionView
}

func NewEvaluator(cfg config.StrategyConfig, books *book.Store, positions PositionView) *Evaluator {
	return &Evaluator{cfg: cfg, books: books, positions: positions}
}

func (e *Evaluator) Evaluate(now time.Time) (Opportunity, error) {
	snap, ok := e.books.Snapshot()
	if !ok {
		return Opportunity{}, ErrNotReady
	}
	if !snap.Fresh(e.cfg.MaxQuoteAge) {
		return Opportunity{}, ErrStale
	}
	long, short := Spreads(snap)
	direction, spread, ok := pickDirection(long, short, e.cfg.LongThreshold, e.cfg.ShortThreshold)
	if !ok {
		return Opportunity{}, ErrNoEdge
	}
	size := e.eligibleSize(direction)
	if size < minTradableSize {
		return Opportunity{}, ErrNoHeadroom
	}
	return Opportunity{
		Direction: direction,
		Spread:    spread,
		SpreadBps: spreadBps(spread, buyPrice(direction, snap)),
		Size:      size,
		Snapshot:  snap,
	}, nil
}

// pickDirection applies both thresholds. When both directions qualify at
// once (crossed or locked books) the larger spread wins; exact ties go
// long.
func pickDirection(long, short, longThreshold, shortThreshold float64) (Direction, float64, bool) {
	longOK := long > longThreshold
	shortOK := short > shortThreshold
	switch {
	case longOK && shortOK:
		if short > long {
			return DirectionShortBackpack, short, true
		}
		return DirectionLongBackpack, long, true
	case longOK:
		return DirectionLongBackpack, long, true
	case shortOK:
		return DirectionShortBackpack, short, true
	default:
		return "", 0, false
	}
}

// eligibleSize clamps the configured order size to the remaining
// headroom on both venues for the trade's direction.
func (e *Evaluator) eligibleSize(d Direction) float64 {
	size := e.cfg.OrderSize
	for _, v := range []book.Venue{book.VenueBackpack, book.VenueLighter} {
		size = math.Min(size, e.positions.Headroom(v, d.SideFor(v)))
	}
	return size
}

func buyPrice(d Direction, snap book.Snapshot) float64 {
	if d == DirectionLongBackpack {
		return snap.Backpack.Ask
	}
	return snap.Lighter.Ask
}

func spreadBps(spread, ref float64) float64 {
	if ref == 0 {
		return 0
	}
	return spread / ref * 10000
}
