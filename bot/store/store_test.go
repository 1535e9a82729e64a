package store

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBucketRoundTrip(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	ctx := context.Background()
	b := s.Bucket("echo")

	if _, ok, err := b.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("get missing: ok=%v err=%v", ok, err)
	}
	if err := b.Put(ctx, "greeting", []byte("hello")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := b.Get(ctx, "greeting")
	if err != nil || !ok || string(got) != "hello" {
		t.Fatalf("get: got=%q ok=%v err=%v", got, ok, err)
	}
	if err := b.Delete(ctx, "greeting"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := b.Get(ctx, "greeting"); ok {
		t.Fatalf("value survived delete")
	}
}

func TestBucketsAreIsolated(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	ctx := context.Background()

	if err := s.Bucket("auth").Put(ctx, "pin", []byte("1234")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok, _ := s.Bucket("echo").Get(ctx, "pin"); ok {
		t.Fatalf("key leaked across buckets")
	}
}

func TestMessagesOrderedByTime(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, body := range []string{"first", "second", "third"} {
		m := Message{
			ID:     body,
			RoomID: "!room",
			Sender: "@alice",
			Kind:   "text",
			Body:   body,
			Time:   base.Add(time.Duration(i) * time.Second),
		}
		if err := s.PutMessage(ctx, m); err != nil {
			t.Fatalf("put message: %v", err)
		}
	}
	// A message in another room must not show up in the scan.
	if err := s.PutMessage(ctx, Message{ID: "x", RoomID: "!other", Body: "nope", Time: base}); err != nil {
		t.Fatalf("put message: %v", err)
	}

	got, err := s.Messages(ctx, "!room", 0)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	for i, want := range []string{"first", "second", "third"} {
		if got[i].Body != want {
			t.Fatalf("message %d = %q, want %q", i, got[i].Body, want)
		}
	}

	limited, err := s.Messages(ctx, "!room", 2)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("got %d messages with limit 2", len(limited))
	}
}

func TestStatsCountsRecords(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	ctx := context.Background()

	if err := s.PutMessage(ctx, Message{ID: "a", RoomID: "!r", Body: "hi", Time: time.Now()}); err != nil {
		t.Fatalf("put message: %v", err)
	}
	if err := s.Bucket("echo").Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Messages != 1 {
		t.Fatalf("messages counter = %d, want 1", stats.Messages)
	}
	if stats.Keys < 2 {
		t.Fatalf("keys = %d, want at least 2", stats.Keys)
	}
	if stats.SizeBytes <= 0 {
		t.Fatalf("size = %d, want positive", stats.SizeBytes)
	}
}

func TestHealthyAfterClose(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	ctx := context.Background()

	if err := s.Healthy(ctx); err != nil {
		t.Fatalf("healthy: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Healthy(ctx); err == nil {
		t.Fatalf("healthy succeeded on closed store")
	}
}
