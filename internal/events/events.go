package events

import "time"

type Type string

const (
	TypeBBOSample   Type = "bbo_sample"
	TypeOpportunity Type = "opportunity"
	TypeAttempt     Type = "attempt"
	TypePosition    Type = "position"
	TypeHalt        Type = "halt"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// Event is one lifecycle notification from the trading core. Exactly one
// payload field is set, matching Type.
type Event struct {
	Type     Type
	Severity Severity
	Time     time.Time

	BBO         *BBOSample
	Opportunity *Opportunity
	Attempt     *Attempt
	Position    *Position
	Halt        *Halt
}

// BBOSample is a periodic snapshot of both books and the derived spreads.
type BBOSample struct {
	Ticker      string
	BackpackBid float64
	BackpackAsk float64
	LighterBid  float64
	LighterAsk  float64
	SpreadLong  float64
	SpreadShort float64
	Signal      string
}

type Opportunity struct {
	Direction string
	Spread    float64
	SpreadBps float64
	Size      float64
}

type Leg struct {
	Venue        string
	Side         string
	RequestedQty float64
	FilledQty    float64
	AvgPrice     float64
	OrderID      string
	Reason       string
}

// Attempt reports one state transition of a hedged execution attempt.
type Attempt struct {
	ID        string
	Direction string
	Status    string
	Terminal  bool
	Reason    string
	Legs      []Leg
	Unwind    *Leg
}

type Position struct {
	Venue    string
	Net      float64
	AvgEntry float64
}

// Halt is emitted when automatic trading stops pending operator action.
type Halt struct {
	AttemptID string
	Reason    string
}
