package strategy

import (
	"bl-arb-bot/internal/book"
	"bl-arb-bot/internal/venue"
)

type Direction string

const (
	// DirectionLongBackpack buys on Backpack and sells on Lighter.
	DirectionLongBackpack Direction = "LONG_BACKPACK"
	// DirectionShortBackpack sells on Backpack and buys on Lighter.
	DirectionShortBackpack Direction = "SHORT_BACKPACK"
)

func (d Direction) SideFor(v book.Venue) venue.Side {
	if v == book.VenueBackpack {
		if d == DirectionLongBackpack {
			return venue.SideBuy
		}
		return venue.SideSell
	}
	if d == DirectionLongBackpack {
		return venue.SideSell
	}
	return venue.SideBuy
}

// Opportunity is a transient trade signal. It is consumed immediately or
// discarded, never persisted.
type Opportunity struct {
	Direction Direction
	Spread    float64
	SpreadBps float64
	Size      float64
	Snapshot  book.Snapshot
}

// Spreads computes both directional cross-venue spreads.
// long: buy at the Backpack ask, sell at the Lighter bid.
// short: buy at the Lighter ask, sell at the Backpack bid.
func Spreads(snap book.Snapshot) (long, short float64) {
	long = snap.Lighter.Bid - snap.Backpack.Ask
	short = snap.Backpack.Bid - snap.Lighter.Ask
	return long, short
}
