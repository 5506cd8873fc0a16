package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bl-arb-bot/internal/alerts"
	"bl-arb-bot/internal/state"
	"bl-arb-bot/internal/strategy"

	"go.uber.org/zap"
)

const operatorOffsetKey = "telegram:operator:last_update_id"

const recentAttemptsLimit = 5

type operatorMeta struct {
	UpdateID int64
	UserID   int64
	Username string
	ChatID   int64
	Raw      string
}

type operatorAuditEvent struct {
	UpdateID     int64     `json:"update_id"`
	Time         time.Time `json:"time"`
	Action       string    `json:"action"`
	Command      string    `json:"command"`
	UserID       int64     `json:"user_id"`
	Username     string    `json:"username,omitempty"`
	ChatID       int64     `json:"chat_id"`
	PausedBefore bool      `json:"paused_before"`
	PausedAfter  bool      `json:"paused_after"`
	HaltCleared  bool      `json:"halt_cleared,omitempty"`
}

func (a *App) startOperator(ctx context.Context) {
	if a.cfg == nil || a.telegram == nil || a.log == nil {
		return
	}
	if !a.cfg.Telegram.OperatorEnabled {
		return
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(a.cfg.Telegram.ChatID), 10, 64)
	if err != nil {
		a.log.Warn("telegram operator disabled: invalid chat_id", zap.Error(err))
		return
	}
	pollInterval := a.cfg.Telegram.OperatorPollInterval
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	allowedUsers := make(map[int64]struct{}, len(a.cfg.Telegram.OperatorAllowedUserIDs))
	for _, id := range a.cfg.Telegram.OperatorAllowedUserIDs {
		allowedUsers[id] = struct{}{}
	}
	go a.operatorLoop(ctx, chatID, allowedUsers, pollInterval)
}

func (a *App) operatorLoop(ctx context.Context, chatID int64, allowedUsers map[int64]struct{}, pollInterval time.Duration) {
	offset := a.loadOperatorOffset(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		updates, err := a.telegram.GetUpdates(ctx, offset, pollInterval)
		if err != nil {
			a.logOperatorError(err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		if a.operatorWarned {
			a.log.Info("telegram operator recovered")
			a.operatorWarned = false
		}
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
				a.saveOperatorOffset(ctx, offset)
			}
			a.handleOperatorUpdate(ctx, upd, chatID, allowedUsers)
		}
	}
}

func (a *App) handleOperatorUpdate(ctx context.Context, upd alerts.Update, chatID int64, allowedUsers map[int64]struct{}) {
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	if msg.Chat.ID != chatID {
		return
	}
	if msg.From == nil {
		return
	}
	if len(allowedUsers) > 0 {
		if _, ok := allowedUsers[msg.From.ID]; !ok {
			return
		}
	}
	cmd, _, ok := parseOperatorCommand(msg.Text)
	if !ok {
		return
	}
	meta := operatorMeta{
		UpdateID: upd.UpdateID,
		UserID:   msg.From.ID,
		Username: msg.From.Username,
		ChatID:   msg.Chat.ID,
		Raw:      msg.Text,
	}
	resp, err := a.handleOperatorCommand(ctx, cmd, meta)
	if err != nil {
		resp = fmt.Sprintf("command failed: %v", err)
	}
	if resp == "" {
		return
	}
	if err := a.telegram.Send(ctx, resp); err != nil {
		a.log.Warn("operator response failed", zap.Error(err))
	}
}

func parseOperatorCommand(text string) (string, []string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", nil, false
	}
	if !strings.HasPrefix(trimmed, "/") {
		return "", nil, false
	}
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return "", nil, false
	}
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	return cmd, fields[1:], true
}

func (a *App) handleOperatorCommand(ctx context.Context, cmd string, meta operatorMeta) (string, error) {
	switch cmd {
	case "status":
		return a.operatorStatus(), nil
	case "pause":
		before := a.isPaused()
		after := a.setPaused(true)
		a.auditOperatorEvent(ctx, operatorAuditEvent{
			UpdateID:     meta.UpdateID,
			Time:         time.Now().UTC(),
			Action:       "pause",
			Command:      meta.Raw,
			UserID:       meta.UserID,
			Username:     meta.Username,
			ChatID:       meta.ChatID,
			PausedBefore: before,
			PausedAfter:  after,
		})
		if !before {
			return "trading paused", nil
		}
		return "trading already paused", nil
	case "resume":
		before := a.isPaused()
		after := a.setPaused(false)
		a.auditOperatorEvent(ctx, operatorAuditEvent{
			UpdateID:     meta.UpdateID,
			Time:         time.Now().UTC(),
			Action:       "resume",
			Command:      meta.Raw,
			UserID:       meta.UserID,
			Username:     meta.Username,
			ChatID:       meta.ChatID,
			PausedBefore: before,
			PausedAfter:  after,
		})
		if a.isHalted() {
			return "trading resumed, but a halt latch is active; send /ack to clear it", nil
		}
		if before {
			return "trading resumed", nil
		}
		return "trading already active", nil
	case "ack":
		return a.acknowledgeHalt(ctx, meta)
	case "recent":
		return a.recentAttempts(ctx)
	case "help":
		return operatorHelpText(), nil
	default:
		return operatorHelpText(), nil
	}
}

// acknowledgeHalt clears the persisted halt latch. This is the only way
// trading resumes after a failed unwind.
func (a *App) acknowledgeHalt(ctx context.Context, meta operatorMeta) (string, error) {
	halt := a.haltSnapshot()
	if halt == nil {
		return "no halt latch is active", nil
	}
	if err := state.ClearHalt(ctx, a.store); err != nil {
		return "", fmt.Errorf("clear halt latch: %w", err)
	}
	a.setHalted(nil)
	a.auditOperatorEvent(ctx, operatorAuditEvent{
		UpdateID:    meta.UpdateID,
		Time:        time.Now().UTC(),
		Action:      "ack",
		Command:     meta.Raw,
		UserID:      meta.UserID,
		Username:    meta.Username,
		ChatID:      meta.ChatID,
		HaltCleared: true,
	})
	a.log.Info("halt latch cleared by operator",
		zap.String("attempt_id", halt.AttemptID),
		zap.Int64("user_id", meta.UserID),
	)
	return fmt.Sprintf("halt cleared (attempt %s), trading resumes", halt.AttemptID), nil
}

func (a *App) operatorStatus() string {
	lines := []string{
		fmt.Sprintf("ticker: %s", a.cfg.Strategy.Ticker),
		fmt.Sprintf("paused: %t", a.isPaused()),
	}
	if halt := a.haltSnapshot(); halt != nil {
		lines = append(lines, fmt.Sprintf("halted: true (attempt %s: %s)", halt.AttemptID, halt.Reason))
	} else {
		lines = append(lines, "halted: false")
	}
	lines = append(lines, fmt.Sprintf("attempt_in_flight: %t", a.coordinator.InFlight()))
	for v, pos := range a.positions.Snapshot() {
		lines = append(lines, fmt.Sprintf("%s_position: %.8f (avg entry %.4f)", v, pos.Net, pos.AvgEntry))
	}
	if snap, ok := a.books.Snapshot(); ok {
		long, short := strategy.Spreads(snap)
		lines = append(lines,
			fmt.Sprintf("backpack: bid %.4f ask %.4f mid %.4f", snap.Backpack.Bid, snap.Backpack.Ask, snap.Backpack.Mid()),
			fmt.Sprintf("lighter: bid %.4f ask %.4f mid %.4f", snap.Lighter.Bid, snap.Lighter.Ask, snap.Lighter.Mid()),
			fmt.Sprintf("spread_long: %.4f (threshold %.4f)", long, a.cfg.Strategy.LongThreshold),
			fmt.Sprintf("spread_short: %.4f (threshold %.4f)", short, a.cfg.Strategy.ShortThreshold),
		)
	} else {
		lines = append(lines, "order books: not ready")
	}
	lines = append(lines, fmt.Sprintf("events_dropped: %d", a.bus.Dropped()))
	return strings.Join(lines, "\n")
}

// recentAttempts renders the newest journaled attempts for the operator.
func (a *App) recentAttempts(ctx context.Context) (string, error) {
	payloads, err := a.store.RecentAttempts(ctx, recentAttemptsLimit)
	if err != nil {
		return "", fmt.Errorf("read attempt journal: %w", err)
	}
	if len(payloads) == 0 {
		return "no attempts recorded", nil
	}
	lines := make([]string, 0, len(payloads))
	for _, payload := range payloads {
		record, err := state.DecodeAttempt(payload)
		if err != nil {
			a.log.Warn("attempt journal decode failed", zap.Error(err))
			continue
		}
		line := fmt.Sprintf("%s %s %s spread %.4f size %.6f", record.ID, record.Status, record.Direction, record.Spread, record.Size)
		if record.Unwind != nil && record.Unwind.Reason != "" {
			line += " (" + record.Unwind.Reason + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

func operatorHelpText() string {
	return strings.Join([]string{
		"commands:",
		"/status - current bot status",
		"/recent - last journaled attempts",
		"/pause - pause new attempts",
		"/resume - resume attempts",
		"/ack - clear the halt latch after a failed unwind",
	}, "\n")
}

func (a *App) logOperatorError(err error) {
	if a.log == nil {
		return
	}
	if a.operatorWarned {
		return
	}
	a.operatorWarned = true
	a.log.Warn("telegram operator failed", zap.Error(err))
}

func (a *App) loadOperatorOffset(ctx context.Context) int64 {
	if a.store == nil {
		return 0
	}
	raw, ok, err := a.store.Get(ctx, operatorOffsetKey)
	if err != nil || !ok {
		return 0
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || val < 0 {
		return 0
	}
	return val
}

func (a *App) saveOperatorOffset(ctx context.Context, offset int64) {
	if a.store == nil {
		return
	}
	_ = a.store.Set(ctx, operatorOffsetKey, strconv.FormatInt(offset, 10))
}

func (a *App) auditOperatorEvent(ctx context.Context, event operatorAuditEvent) {
	if a.store == nil {
		return
	}
	key := fmt.Sprintf("ops:audit:%d:%d", time.Now().UTC().UnixNano(), event.UpdateID)
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	_ = a.store.Set(ctx, key, string(payload))
}
