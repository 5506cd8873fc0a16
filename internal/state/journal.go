package state

import (
	"context"
	"time"

	"bl-arb-bot/internal/exec"

	"github.com/vmihailenco/msgpack/v5"
)

// AttemptAppender is the durable sink for terminal attempt records.
type AttemptAppender interface {
	AppendAttempt(ctx context.Context, id string, recordedAt time.Time, payload []byte) error
}

// LegRecord is the persisted form of one leg of an attempt.
type LegRecord struct {
	Venue        string  `msgpack:"venue"`
	Side         string  `msgpack:"side"`
	RequestedQty float64 `msgpack:"requested_qty"`
	FilledQty    float64 `msgpack:"filled_qty"`
	AvgPrice     float64 `msgpack:"avg_price"`
	OrderID      string  `msgpack:"order_id"`
	Reason       string  `msgpack:"reason,omitempty"`
}

type TransitionRecord struct {
	Status string `msgpack:"status"`
	AtMS   int64  `msgpack:"at_ms"`
}

// AttemptRecord is the persisted form of a terminal attempt, written once
// and never updated.
type AttemptRecord struct {
	ID        string             `msgpack:"id"`
	Direction string             `msgpack:"direction"`
	Status    string             `msgpack:"status"`
	Spread    float64            `msgpack:"spread"`
	SpreadBps float64            `msgpack:"spread_bps"`
	Size      float64            `msgpack:"size"`
	Legs      []LegRecord        `msgpack:"legs"`
	Unwind    *LegRecord         `msgpack:"unwind,omitempty"`
	History   []TransitionRecord `msgpack:"history"`
	StartedMS int64              `msgpack:"started_at_ms"`
	EndedMS   int64              `msgpack:"ended_at_ms"`
}

// Journal persists terminal attempts through an AttemptAppender.
type Journal struct {
	appender AttemptAppender
}

func NewJournal(appender AttemptAppender) *Journal {
	return &Journal{appender: appender}
}

func (j *Journal) Record(ctx context.Context, a *exec.Attempt) error {
	if j == nil || j.appender == nil || a == nil {
		return nil
	}
	record := attemptRecord(a)
	payload, err := msgpack.Marshal(record)
	if err != nil {
		return err
	}
	return j.appender.AppendAttempt(ctx, a.ID, time.Now().UTC(), payload)
}

// DecodeAttempt parses a journal payload written by Record.
func DecodeAttempt(payload []byte) (AttemptRecord, error) {
	var record AttemptRecord
	err := msgpack.Unmarshal(payload, &record)
	return record, err
}

func attemptRecord(a *exec.Attempt) AttemptRecord {
	record := AttemptRecord{
		ID:        a.ID,
		Direction: string(a.Opportunity.Direction),
		Status:    string(a.Status),
		Spread:    a.Opportunity.Spread,
		SpreadBps: a.Opportunity.SpreadBps,
		Size:      a.Opportunity.Size,
		StartedMS: a.StartedAt.UnixMilli(),
	}
	if !a.EndedAt.IsZero() {
		record.EndedMS = a.EndedAt.UnixMilli()
	}
	for _, leg := range a.Legs {
		record.Legs = append(record.Legs, legRecord(leg))
	}
	if a.Unwind != nil {
		uw := legRecord(*a.Unwind)
		record.Unwind = &uw
	}
	for _, tr := range a.History {
		record.History = append(record.History, TransitionRecord{Status: string(tr.To), AtMS: tr.At.UnixMilli()})
	}
	return record
}

func legRecord(leg exec.Leg) LegRecord {
	return LegRecord{
		Venue:        string(leg.Venue),
		Side:         string(leg.Side),
		RequestedQty: leg.RequestedQty,
		FilledQty:    leg.FilledQty,
		AvgPrice:     leg.AvgPrice,
		OrderID:      leg.OrderID,
		Reason:       leg.Reason,
	}
}
