package sqlite

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Set(ctx, "key", "value"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	val, ok, err := store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok || val != "value" {
		t.Fatalf("unexpected value: %v (ok=%v)", val, ok)
	}
	if err := store.Delete(ctx, "key"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	_, ok, err = store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestAttemptJournalAppend(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	base := time.Now()
	if err := store.AppendAttempt(ctx, "arb-1", base, []byte("first")); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := store.AppendAttempt(ctx, "arb-2", base.Add(time.Second), []byte("second")); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := store.AppendAttempt(ctx, "arb-1", base, []byte("dup")); err == nil {
		t.Fatalf("duplicate attempt id must be rejected")
	}

	payloads, err := store.RecentAttempts(ctx, 10)
	if err != nil {
		t.Fatalf("recent attempts: %v", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(payloads))
	}
	if !bytes.Equal(payloads[0], []byte("second")) {
		t.Fatalf("expected newest first, got %q", payloads[0])
	}

	limited, err := store.RecentAttempts(ctx, 1)
	if err != nil {
		t.Fatalf("recent attempts: %v", err)
	}
	if len(limited) != 1 || !bytes.Equal(limited[0], []byte("second")) {
		t.Fatalf("unexpected limited result: %q", limited)
	}
}
