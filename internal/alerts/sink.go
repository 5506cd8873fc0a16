package alerts

import (
	"context"
	"fmt"
	"time"

	"bl-arb-bot/internal/events"

	"go.uber.org/zap"
)

const sendTimeout = 10 * time.Second

// Sink forwards warn and critical events to Telegram. Info-level noise
// stays in the structured log.
type Sink struct {
	telegram *Telegram
	log      *zap.Logger
}

func NewSink(telegram *Telegram, log *zap.Logger) *Sink {
	return &Sink{telegram: telegram, log: log}
}

func (s *Sink) Publish(e events.Event) {
	if s == nil || !s.telegram.Enabled() {
		return
	}
	if e.Severity != events.SeverityWarn && e.Severity != events.SeverityCritical {
		return
	}
	message := formatEvent(e)
	if message == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := s.telegram.Send(ctx, message); err != nil && s.log != nil {
		s.log.Warn("telegram alert send failed", zap.Error(err))
	}
}

func formatEvent(e events.Event) string {
	switch {
	case e.Type == events.TypeAttempt && e.Attempt != nil:
		a := e.Attempt
		msg := fmt.Sprintf("⚠️ attempt %s: %s (%s)", a.ID, a.Status, a.Direction)
		if a.Reason != "" {
			msg += "\nreason: " + a.Reason
		}
		for i, leg := range a.Legs {
			msg += fmt.Sprintf("\nleg%d %s %s: filled %.8f/%.8f @ %.4f", i+1, leg.Venue, leg.Side, leg.FilledQty, leg.RequestedQty, leg.AvgPrice)
		}
		if a.Unwind != nil {
			msg += fmt.Sprintf("\nunwind %s %s: filled %.8f/%.8f", a.Unwind.Venue, a.Unwind.Side, a.Unwind.FilledQty, a.Unwind.RequestedQty)
		}
		return msg
	case e.Type == events.TypeHalt && e.Halt != nil:
		return fmt.Sprintf("🛑 trading halted: %s\nattempt: %s\nsend /ack to resume", e.Halt.Reason, e.Halt.AttemptID)
	}
	return ""
}
