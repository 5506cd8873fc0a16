package book

import "time"

// Venue identifies one of the two trading venues the bot arbitrages.
type Venue string

const (
	VenueBackpack Venue = "backpack"
	VenueLighter  Venue = "lighter"
)

// Quote is the normalized best bid/offer delivered by a venue feed.
// Seq is the venue's monotonically increasing book sequence; updates
// arriving with an older sequence must be dropped, not applied.
type Quote struct {
	Venue      Venue
	Bid        float64
	BidSize    float64
	Ask        float64
	AskSize    float64
	Seq        uint64
	ReceivedAt time.Time
}

func (q Quote) Mid() float64 {
	if q.Bid == 0 || q.Ask == 0 {
		return 0
	}
	return (q.Bid + q.Ask) / 2
}

func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.ReceivedAt)
}

// Snapshot is an immutable pair of the latest quotes from both venues,
// taken atomically.
type Snapshot struct {
	Backpack Quote
	Lighter  Quote
	TakenAt  time.Time
}

// Fresh reports whether both quotes satisfy the staleness bound.
func (s Snapshot) Fresh(maxAge time.Duration) bool {
	if maxAge <= 0 {
		return true
	}
	return s.Backpack.Age(s.TakenAt) <= maxAge && s.Lighter.Age(s.TakenAt) <= maxAge
}
