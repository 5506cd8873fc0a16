package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"bl-arb-bot/internal/alerts"
	"bl-arb-bot/internal/book"
	"bl-arb-bot/internal/config"
	"bl-arb-bot/internal/exec"
	"bl-arb-bot/internal/state"
	"bl-arb-bot/internal/strategy"
	"bl-arb-bot/internal/venue"

	"go.uber.org/zap"
)

func TestParseOperatorCommand(t *testing.T) {
	cmd, args, ok := parseOperatorCommand("  /Status backpack  ")
	if !ok || cmd != "status" {
		t.Fatalf("unexpected parse: %q %v", cmd, ok)
	}
	if len(args) != 1 || args[0] != "backpack" {
		t.Fatalf("unexpected args: %v", args)
	}
	if _, _, ok := parseOperatorCommand("hello there"); ok {
		t.Fatalf("non-command text must not parse")
	}
	if _, _, ok := parseOperatorCommand("   "); ok {
		t.Fatalf("blank text must not parse")
	}
}

func TestPauseResumeCommands(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()
	meta := operatorMeta{UpdateID: 1, UserID: 42, ChatID: 100, Raw: "/pause"}

	resp, err := a.handleOperatorCommand(ctx, "pause", meta)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if resp != "trading paused" || !a.isPaused() {
		t.Fatalf("unexpected pause outcome: %q paused=%t", resp, a.isPaused())
	}
	if resp, _ = a.handleOperatorCommand(ctx, "pause", meta); resp != "trading already paused" {
		t.Fatalf("unexpected repeat pause response: %q", resp)
	}
	if resp, _ = a.handleOperatorCommand(ctx, "resume", meta); resp != "trading resumed" || a.isPaused() {
		t.Fatalf("unexpected resume outcome: %q paused=%t", resp, a.isPaused())
	}
	if resp, _ = a.handleOperatorCommand(ctx, "resume", meta); resp != "trading already active" {
		t.Fatalf("unexpected repeat resume response: %q", resp)
	}
}

func TestAckClearsHaltLatch(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()
	halt := state.Halt{Reason: "unwind failed", AttemptID: "arb-9", TriggeredMS: time.Now().UnixMilli()}
	if err := state.SaveHalt(ctx, a.store, halt); err != nil {
		t.Fatalf("save halt: %v", err)
	}
	a.setHalted(&halt)

	resp, err := a.handleOperatorCommand(ctx, "ack", operatorMeta{UpdateID: 2, UserID: 42, Raw: "/ack"})
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !strings.Contains(resp, "arb-9") {
		t.Fatalf("ack response must name the attempt: %q", resp)
	}
	if a.isHalted() {
		t.Fatalf("halt latch must be cleared in memory")
	}
	if _, ok, err := state.LoadHalt(ctx, a.store); err != nil || ok {
		t.Fatalf("halt latch must be cleared in the store: ok=%t err=%v", ok, err)
	}
	if resp, _ = a.handleOperatorCommand(ctx, "ack", operatorMeta{UpdateID: 3, Raw: "/ack"}); resp != "no halt latch is active" {
		t.Fatalf("unexpected second ack response: %q", resp)
	}
}

func TestResumeWarnsAboutActiveHalt(t *testing.T) {
	a := testApp(t)
	a.setPaused(true)
	a.setHalted(&state.Halt{Reason: "unwind failed", AttemptID: "arb-1"})
	resp, err := a.handleOperatorCommand(context.Background(), "resume", operatorMeta{Raw: "/resume"})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !strings.Contains(resp, "/ack") {
		t.Fatalf("resume must point at the halt latch: %q", resp)
	}
}

func TestOperatorStatus(t *testing.T) {
	a := testApp(t)
	a.books.Update(book.Quote{Venue: book.VenueBackpack, Bid: 50000, Ask: 50010, Seq: 1})
	a.books.Update(book.Quote{Venue: book.VenueLighter, Bid: 50020, Ask: 50030, Seq: 1})

	status := a.operatorStatus()
	for _, want := range []string{"paused: false", "halted: false", "spread_long", "spread_short", "backpack: bid 50000", "mid 50005.0000", "mid 50025.0000"} {
		if !strings.Contains(status, want) {
			t.Fatalf("status missing %q:\n%s", want, status)
		}
	}
}

func TestOperatorStatusWithoutBooks(t *testing.T) {
	a := testApp(t)
	if status := a.operatorStatus(); !strings.Contains(status, "order books: not ready") {
		t.Fatalf("status must report missing books:\n%s", status)
	}
}

func TestHandleOperatorUpdateFiltersChatAndUser(t *testing.T) {
	a := testApp(t)
	// Disabled telegram makes Send a no-op, so responses are swallowed.
	a.telegram = alerts.NewTelegram(config.TelegramConfig{}, zap.NewNop())
	ctx := context.Background()
	allowed := map[int64]struct{}{42: {}}

	wrongChat := alerts.Update{UpdateID: 1, Message: &alerts.Message{
		Text: "/pause", Chat: alerts.Chat{ID: 999}, From: &alerts.User{ID: 42},
	}}
	a.handleOperatorUpdate(ctx, wrongChat, 100, allowed)
	if a.isPaused() {
		t.Fatalf("command from the wrong chat must be ignored")
	}

	wrongUser := alerts.Update{UpdateID: 2, Message: &alerts.Message{
		Text: "/pause", Chat: alerts.Chat{ID: 100}, From: &alerts.User{ID: 7},
	}}
	a.handleOperatorUpdate(ctx, wrongUser, 100, allowed)
	if a.isPaused() {
		t.Fatalf("command from a disallowed user must be ignored")
	}

	ok := alerts.Update{UpdateID: 3, Message: &alerts.Message{
		Text: "/pause", Chat: alerts.Chat{ID: 100}, From: &alerts.User{ID: 42},
	}}
	a.handleOperatorUpdate(ctx, ok, 100, allowed)
	if !a.isPaused() {
		t.Fatalf("command from an allowed user must apply")
	}
}

func TestRecentAttemptsCommand(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()

	resp, err := a.handleOperatorCommand(ctx, "recent", operatorMeta{Raw: "/recent"})
	if err != nil {
		t.Fatalf("recent on empty journal: %v", err)
	}
	if resp != "no attempts recorded" {
		t.Fatalf("unexpected empty-journal response: %q", resp)
	}

	journal := state.NewJournal(a.store)
	attempt := &exec.Attempt{
		ID: "arb-7",
		Opportunity: strategy.Opportunity{
			Direction: strategy.DirectionLongBackpack,
			Spread:    12.5,
			Size:      0.001,
		},
		Legs: [2]exec.Leg{
			{Venue: book.VenueLighter, Side: venue.SideSell, RequestedQty: 0.001, FilledQty: 0.001, AvgPrice: 50020},
			{Venue: book.VenueBackpack, Side: venue.SideBuy, RequestedQty: 0.001, FilledQty: 0.001, AvgPrice: 50010},
		},
		Status:    exec.StatusBothFilled,
		StartedAt: time.Now().UTC(),
	}
	if err := journal.Record(ctx, attempt); err != nil {
		t.Fatalf("record attempt: %v", err)
	}

	resp, err = a.handleOperatorCommand(ctx, "recent", operatorMeta{Raw: "/recent"})
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	for _, want := range []string{"arb-7", string(exec.StatusBothFilled), string(strategy.DirectionLongBackpack)} {
		if !strings.Contains(resp, want) {
			t.Fatalf("recent output missing %q:\n%s", want, resp)
		}
	}
}

func TestOperatorOffsetRoundTrip(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()
	if got := a.loadOperatorOffset(ctx); got != 0 {
		t.Fatalf("expected zero offset on fresh store, got %d", got)
	}
	a.saveOperatorOffset(ctx, 1234)
	if got := a.loadOperatorOffset(ctx); got != 1234 {
		t.Fatalf("expected offset 1234, got %d", got)
	}
}
