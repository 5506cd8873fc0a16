package state

import (
	"context"
	"encoding/json"
	"strings"
)

const HaltKey = "exec:halt"

// Halt is the persisted trading-halt latch. It is set when an unwind
// fails and survives restarts; the bot will not trade again until an
// operator clears it.
type Halt struct {
	Reason      string `json:"reason"`
	AttemptID   string `json:"attempt_id"`
	TriggeredMS int64  `json:"triggered_at_ms"`
}

func LoadHalt(ctx context.Context, store Store) (Halt, bool, error) {
	if store == nil {
		return Halt{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, HaltKey)
	if err != nil {
		return Halt{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return Halt{}, false, nil
	}
	var halt Halt
	if err := json.Unmarshal([]byte(raw), &halt); err != nil {
		return Halt{}, false, err
	}
	return halt, true, nil
}

func SaveHalt(ctx context.Context, store Store, halt Halt) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(halt)
	if err != nil {
		return err
	}
	return store.Set(ctx, HaltKey, string(payload))
}

func ClearHalt(ctx context.Context, store Store) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return store.Delete(ctx, HaltKey)
}
