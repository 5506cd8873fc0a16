package events

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// Sink consumes events. Implementations must not block for long; the
// bus delivers sequentially from a single goroutine.
type Sink interface {
	Publish(Event)
}

// Bus fans events out to sinks without ever blocking the publisher.
// When the queue is full events are dropped and counted.
type Bus struct {
	queue   chan Event
	sinks   []Sink
	log     *zap.Logger
	started atomic.Bool
	dropped atomic.Uint64
}

func NewBus(queueSize int, log *zap.Logger, sinks ...Sink) *Bus {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Bus{
		queue: make(chan Event, queueSize),
		sinks: sinks,
		log:   log,
	}
}

func (b *Bus) Start(ctx context.Context) {
	if b == nil {
		return
	}
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	go b.run(ctx)
}

// Publish enqueues an event, dropping it when the queue is full.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	select {
	case b.queue <- e:
	default:
		if b.dropped.Add(1) == 1 && b.log != nil {
			b.log.Warn("event queue full, dropping events")
		}
	}
}

// Dropped returns the number of events discarded due to backpressure.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Bus) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-b.queue:
			for _, sink := range b.sinks {
				sink.Publish(e)
			}
		}
	}
}
