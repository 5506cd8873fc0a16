package exec

import (
	"fmt"
	"time"

	"bl-arb-bot/internal/book"
	"bl-arb-bot/internal/strategy"
	"bl-arb-bot/internal/venue"
)

type Status string

const (
	StatusPending       Status = "PENDING"
	StatusLeg1Submitted Status = "LEG1_SUBMITTED"
	StatusLeg1Filled    Status = "LEG1_FILLED"
	StatusLeg1Failed    Status = "LEG1_FAILED"
	StatusLeg2Submitted Status = "LEG2_SUBMITTED"
	StatusBothFilled    Status = "BOTH_FILLED"
	StatusLeg2Partial   Status = "LEG2_PARTIAL"
	StatusLeg2Failed    Status = "LEG2_FAILED"
	StatusUnwinding     Status = "UNWINDING"
	StatusUnwound       Status = "UNWOUND"
	StatusUnwindFailed  Status = "UNWIND_FAILED"
)

// Terminal reports whether the attempt can make no further transition.
func (s Status) Terminal() bool {
	switch s {
	case StatusLeg1Failed, StatusBothFilled, StatusUnwound, StatusUnwindFailed:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusPending:       {StatusLeg1Submitted},
	StatusLeg1Submitted: {StatusLeg1Filled, StatusLeg1Failed},
	StatusLeg1Filled:    {StatusLeg2Submitted},
	StatusLeg2Submitted: {StatusBothFilled, StatusLeg2Partial, StatusLeg2Failed},
	StatusLeg2Partial:   {StatusUnwinding},
	StatusLeg2Failed:    {StatusUnwinding},
	StatusUnwinding:     {StatusUnwound, StatusUnwindFailed},
}

func validTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Leg is one side of a hedged trade.
type Leg struct {
	Venue        book.Venue
	Side         venue.Side
	RequestedQty float64
	FilledQty    float64
	AvgPrice     float64
	OrderID      string
	ClientID     string
	Reason       string
}

type Transition struct {
	To Status
	At time.Time
}

// Attempt is one hedged trade cycle. The coordinator owns it until it
// reaches a terminal status, after which it is an immutable record.
type Attempt struct {
	ID          string
	Opportunity strategy.Opportunity
	// Legs in submission order: Legs[0] is placed first and is the
	// venue an unwind is routed to.
	Legs      [2]Leg
	Unwind    *Leg
	Status    Status
	History   []Transition
	StartedAt time.Time
	EndedAt   time.Time
}

func newAttempt(opp strategy.Opportunity, firstVenue book.Venue, now time.Time) *Attempt {
	secondVenue := book.VenueBackpack
	if firstVenue == book.VenueBackpack {
		secondVenue = book.VenueLighter
	}
	a := &Attempt{
		ID:          fmt.Sprintf("arb-%s", now.UTC().Format("20060102T150405.000000000Z")),
		Opportunity: opp,
		Status:      StatusPending,
		StartedAt:   now.UTC(),
	}
	a.Legs[0] = Leg{Venue: firstVenue, Side: opp.Direction.SideFor(firstVenue), RequestedQty: opp.Size}
	a.Legs[1] = Leg{Venue: secondVenue, Side: opp.Direction.SideFor(secondVenue), RequestedQty: opp.Size}
	return a
}

func (a *Attempt) transition(to Status, at time.Time) error {
	if !validTransition(a.Status, to) {
		return fmt.Errorf("invalid transition %s -> %s", a.Status, to)
	}
	a.Status = to
	a.History = append(a.History, Transition{To: to, At: at.UTC()})
	if to.Terminal() {
		a.EndedAt = at.UTC()
	}
	return nil
}
