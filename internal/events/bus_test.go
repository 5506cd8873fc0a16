package events

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

type captureSink struct {
	got chan Event
}

func (c *captureSink) Publish(e Event) {
	c.got <- e
}

func TestBusDeliversToSinks(t *testing.T) {
	sink := &captureSink{got: make(chan Event, 8)}
	bus := NewBus(8, zap.NewNop(), sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)

	bus.Publish(Event{Type: TypeOpportunity, Severity: SeverityInfo, Time: time.Now(), Opportunity: &Opportunity{Direction: "LONG_BACKPACK", Spread: 10}})

	select {
	case e := <-sink.got:
		if e.Type != TypeOpportunity || e.Opportunity.Spread != 10 {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}
}

func TestBusDropsWhenFullWithoutBlocking(t *testing.T) {
	bus := NewBus(1, zap.NewNop())
	// Not started: queue can hold one event, the rest must drop.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(Event{Type: TypeBBOSample, BBO: &BBOSample{}})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on full queue")
	}
	if bus.Dropped() != 9 {
		t.Fatalf("expected 9 dropped events, got %d", bus.Dropped())
	}
}
