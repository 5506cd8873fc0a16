package events

import "go.uber.org/zap"

// ZapSink logs every event through the process logger, mapping event
// severity onto log levels.
type ZapSink struct {
	log *zap.Logger
}

func NewZapSink(log *zap.Logger) *ZapSink {
	return &ZapSink{log: log}
}

func (s *ZapSink) Publish(e Event) {
	if s == nil || s.log == nil {
		return
	}
	fields := []zap.Field{zap.Time("at", e.Time)}
	switch e.Type {
	case TypeBBOSample:
		if e.BBO == nil {
			return
		}
		fields = append(fields,
			zap.String("ticker", e.BBO.Ticker),
			zap.Float64("backpack_bid", e.BBO.BackpackBid),
			zap.Float64("backpack_ask", e.BBO.BackpackAsk),
			zap.Float64("lighter_bid", e.BBO.LighterBid),
			zap.Float64("lighter_ask", e.BBO.LighterAsk),
			zap.Float64("spread_long", e.BBO.SpreadLong),
			zap.Float64("spread_short", e.BBO.SpreadShort),
			zap.String("signal", e.BBO.Signal),
		)
	case TypeOpportunity:
		if e.Opportunity == nil {
			return
		}
		fields = append(fields,
			zap.String("direction", e.Opportunity.Direction),
			zap.Float64("spread", e.Opportunity.Spread),
			zap.Float64("spread_bps", e.Opportunity.SpreadBps),
			zap.Float64("size", e.Opportunity.Size),
		)
	case TypeAttempt:
		if e.Attempt == nil {
			return
		}
		fields = append(fields,
			zap.String("attempt_id", e.Attempt.ID),
			zap.String("direction", e.Attempt.Direction),
			zap.String("status", e.Attempt.Status),
			zap.Bool("terminal", e.Attempt.Terminal),
		)
		if e.Attempt.Reason != "" {
			fields = append(fields, zap.String("reason", e.Attempt.Reason))
		}
	case TypePosition:
		if e.Position == nil {
			return
		}
		fields = append(fields,
			zap.String("venue", e.Position.Venue),
			zap.Float64("net", e.Position.Net),
			zap.Float64("avg_entry", e.Position.AvgEntry),
		)
	case TypeHalt:
		if e.Halt == nil {
			return
		}
		fields = append(fields,
			zap.String("attempt_id", e.Halt.AttemptID),
			zap.String("reason", e.Halt.Reason),
		)
	}
	msg := string(e.Type)
	switch e.Severity {
	case SeverityCritical:
		s.log.Error(msg, fields...)
	case SeverityWarn:
		s.log.Warn(msg, fields...)
	default:
		s.log.Info(msg, fields...)
	}
}
