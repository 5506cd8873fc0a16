package exec

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"bl-arb-bot/internal/book"
	"bl-arb-bot/internal/config"
	"bl-arb-bot/internal/events"
	"bl-arb-bot/internal/metrics"
	"bl-arb-bot/internal/position"
	"bl-arb-bot/internal/strategy"
	"bl-arb-bot/internal/venue"

	"go.uber.org/zap"
)

// ErrInFlight is returned when an attempt is already active. Only one
// attempt may exist per instrument at a time.
var ErrInFlight = errors.New("execution attempt already in flight")

const fillEpsilon = 1e-9

// PositionBook receives confirmed fills from terminal attempts.
type PositionBook interface {
	ApplyFill(v book.Venue, side venue.Side, qty, price float64, at time.Time) position.Position
}

// Journal persists terminal attempts. A nil journal disables persistence.
type Journal interface {
	Record(ctx context.Context, a *Attempt) error
}

// Coordinator drives one hedged attempt at a time through its state
// machine: leg 1 first, leg 2 sized to leg 1's actual fill, and an
// offsetting unwind on leg 1's venue when the hedge breaks.
type Coordinator struct {
	cfg       config.ExecConfig
	firstLeg  book.Venue
	executors map[book.Venue]venue.OrderExecutor
	positions PositionBook
	bus       *events.Bus
	journal   Journal
	metrics   *metrics.Metrics
	log       *zap.Logger

	mu       sync.Mutex
	inFlight atomic.Bool
}

func NewCoordinator(
	cfg config.ExecConfig,
	firstLeg book.Venue,
	executors map[book.Venue]venue.OrderExecutor,
	positions PositionBook,
	bus *events.Bus,
	journal Journal,
	m *metrics.Metrics,
	log *zap.Logger,
) *Coordinator {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Coordinator{
		cfg:       cfg,
		firstLeg:  firstLeg,
		executors: executors,
		positions: positions,
		bus:       bus,
		journal:   journal,
		metrics:   m,
		log:       log,
	}
}

// InFlight reports whether an attempt is currently active. The spread
// evaluator must not emit opportunities while this is true.
func (c *Coordinator) InFlight() bool {
	return c.inFlight.Load()
}

// Execute runs one attempt to a terminal status. The single-flight lock
// is held, and fills are applied to the position book, before Execute
// returns; a caller observing InFlight() == false therefore also sees
// up-to-date positions.
func (c *Coordinator) Execute(ctx context.Context, opp strategy.Opportunity) (*Attempt, error) {
	if !c.mu.TryLock() {
		return nil, ErrInFlight
	}
	defer c.mu.Unlock()
	c.inFlight.Store(true)
	defer c.inFlight.Store(false)

	attempt := newAttempt(opp, c.firstLeg, time.Now())
	c.metrics.AttemptsStarted.Inc()
	c.run(ctx, attempt)
	c.settle(ctx, attempt)
	return attempt, nil
}

func (c *Coordinator) run(ctx context.Context, a *Attempt) {
	leg1 := &a.Legs[0]
	leg2 := &a.Legs[1]

	c.step(a, StatusLeg1Submitted, "")
	if err := c.submit(ctx, a, leg1); err != nil || leg1.FilledQty <= 0 {
		if leg1.Reason == "" {
			leg1.Reason = "no fill"
		}
		c.metrics.AttemptsAborted.Inc()
		c.step(a, StatusLeg1Failed, leg1.Reason)
		return
	}
	c.step(a, StatusLeg1Filled, "")

	// Hedge only what actually executed on leg 1.
	leg2.RequestedQty = leg1.FilledQty
	c.step(a, StatusLeg2Submitted, "")
	err := c.submit(ctx, a, leg2)
	switch {
	case err == nil && leg2.FilledQty >= leg2.RequestedQty-fillEpsilon:
		c.metrics.AttemptsHedged.Inc()
		c.step(a, StatusBothFilled, "")
		return
	case leg2.FilledQty > 0:
		c.step(a, StatusLeg2Partial, leg2.Reason)
	default:
		if leg2.Reason == "" {
			leg2.Reason = "no fill"
		}
		c.step(a, StatusLeg2Failed, leg2.Reason)
	}

	c.unwind(ctx, a)
}

// unwind flattens the unhedged remainder of leg 1 with an offsetting
// market order on leg 1's venue, giving up the captured edge.
func (c *Coordinator) unwind(ctx context.Context, a *Attempt) {
	leg1 := a.Legs[0]
	remainder := leg1.FilledQty - a.Legs[1].FilledQty
	c.step(a, StatusUnwinding, "")
	c.metrics.Unwinds.Inc()
	uw := &Leg{
		Venue:        leg1.Venue,
		Side:         leg1.Side.Opposite(),
		RequestedQty: remainder,
	}
	a.Unwind = uw
	err := c.submit(ctx, a, uw)
	if err == nil && uw.FilledQty >= remainder-fillEpsilon {
		c.step(a, StatusUnwound, "")
		return
	}
	if uw.Reason == "" {
		uw.Reason = "unwind did not fill"
	}
	c.metrics.UnwindFailures.Inc()
	c.step(a, StatusUnwindFailed, uw.Reason)
}

// submit places one market order with a bounded timeout. A timeout is an
// indeterminate outcome, not a failure: the order may have executed on
// the venue despite the lost acknowledgment, so the coordinator queries
// order status before classifying.
func (c *Coordinator) submit(ctx context.Context, a *Attempt, leg *Leg) error {
	leg.ClientID = a.ID + "-" + string(leg.Venue)
	ex, ok := c.executors[leg.Venue]
	if !ok {
		leg.Reason = "no executor for venue"
		return errors.New(leg.Reason)
	}
	legCtx, cancel := context.WithTimeout(ctx, c.cfg.LegTimeout)
	fill, err := ex.PlaceMarketOrder(legCtx, venue.OrderRequest{
		Side:     leg.Side,
		Quantity: leg.RequestedQty,
		ClientID: leg.ClientID,
	})
	cancel()
	if err == nil {
		c.metrics.OrdersPlaced.Inc()
		leg.OrderID = fill.OrderID
		leg.FilledQty = fill.FilledQty
		leg.AvgPrice = fill.AvgPrice
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		fill, resolved := c.resolve(ctx, ex, leg.ClientID)
		if resolved {
			c.metrics.OrdersPlaced.Inc()
			leg.OrderID = fill.OrderID
			leg.FilledQty = fill.FilledQty
			leg.AvgPrice = fill.AvgPrice
			if fill.FilledQty <= 0 {
				leg.Reason = "not filled (resolved after timeout)"
				return venue.ErrRejected
			}
			return nil
		}
		leg.Reason = "outcome unknown after timeout"
		c.metrics.OrdersFailed.Inc()
		c.log.Warn("order outcome unresolved after timeout",
			zap.String("attempt_id", a.ID),
			zap.String("venue", string(leg.Venue)),
			zap.String("client_id", leg.ClientID),
		)
		return err
	}
	c.metrics.OrdersFailed.Inc()
	leg.Reason = err.Error()
	return err
}

// resolve queries order status after a lost acknowledgment. resolved is
// false only when the venue could not be reached at all; a reachable
// venue with no record of the order resolves to a zero fill.
func (c *Coordinator) resolve(ctx context.Context, ex venue.OrderExecutor, clientID string) (venue.Fill, bool) {
	for attempt := 0; attempt < c.cfg.StatusRetries; attempt++ {
		queryCtx, cancel := context.WithTimeout(ctx, c.cfg.LegTimeout)
		fill, known, err := ex.OrderStatus(queryCtx, clientID)
		cancel()
		if err == nil {
			if !known {
				return venue.Fill{}, true
			}
			return fill, true
		}
		select {
		case <-ctx.Done():
			return venue.Fill{}, false
		case <-time.After(c.cfg.StatusInterval):
		}
	}
	return venue.Fill{}, false
}

// settle applies confirmed fills to the position book, journals the
// terminal attempt and emits its position events. Runs exactly once per
// attempt, before the single-flight lock is released.
func (c *Coordinator) settle(ctx context.Context, a *Attempt) {
	now := time.Now().UTC()
	legs := []Leg{a.Legs[0], a.Legs[1]}
	if a.Unwind != nil {
		legs = append(legs, *a.Unwind)
	}
	for _, leg := range legs {
		if leg.FilledQty <= 0 {
			continue
		}
		pos := c.positions.ApplyFill(leg.Venue, leg.Side, leg.FilledQty, leg.AvgPrice, now)
		c.publish(events.Event{
			Type:     events.TypePosition,
			Severity: events.SeverityInfo,
			Time:     now,
			Position: &events.Position{Venue: string(leg.Venue), Net: pos.Net, AvgEntry: pos.AvgEntry},
		})
	}
	if c.journal != nil {
		if err := c.journal.Record(ctx, a); err != nil {
			c.log.Warn("attempt journal write failed", zap.String("attempt_id", a.ID), zap.Error(err))
		}
	}
}

// step advances the state machine and emits exactly one event for the
// transition.
func (c *Coordinator) step(a *Attempt, to Status, reason string) {
	now := time.Now().UTC()
	if err := a.transition(to, now); err != nil {
		// Transitions are driven by the coordinator itself; this firing
		// means a bug in run(), not a market condition.
		c.log.Error("attempt state machine violation", zap.String("attempt_id", a.ID), zap.Error(err))
		return
	}
	severity := events.SeverityInfo
	switch to {
	case StatusLeg1Failed, StatusLeg2Partial, StatusLeg2Failed, StatusUnwinding:
		severity = events.SeverityWarn
	case StatusUnwindFailed:
		severity = events.SeverityCritical
	}
	c.publish(events.Event{
		Type:     events.TypeAttempt,
		Severity: severity,
		Time:     now,
		Attempt:  attemptEvent(a, reason),
	})
}

func (c *Coordinator) publish(e events.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}

func attemptEvent(a *Attempt, reason string) *events.Attempt {
	e := &events.Attempt{
		ID:        a.ID,
		Direction: string(a.Opportunity.Direction),
		Status:    string(a.Status),
		Terminal:  a.Status.Terminal(),
		Reason:    reason,
	}
	for _, leg := range a.Legs {
		e.Legs = append(e.Legs, legEvent(leg))
	}
	if a.Unwind != nil {
		uw := legEvent(*a.Unwind)
		e.Unwind = &uw
	}
	return e
}

func legEvent(leg Leg) events.Leg {
	return events.Leg{
		Venue:        string(leg.Venue),
		Side:         string(leg.Side),
		RequestedQty: leg.RequestedQty,
		FilledQty:    leg.FilledQty,
		AvgPrice:     leg.AvgPrice,
		OrderID:      leg.OrderID,
		Reason:       leg.Reason,
	}
}
