package coordinator

import (
	"testing"
	"time"

	"github.com/bitplane/yt-mpv/internal/logging"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	c := &Coordinator{policy: Policy{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     3 * time.Second,
	}}
	var hint time.Duration
	b := c.backoff(logging.NewNop(), &hint)

	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
	for i, expected := range want {
		got, stop := b.Next()
		if stop {
			t.Fatalf("step %d: unexpected stop", i)
		}
		if got != expected {
			t.Fatalf("step %d: got %v, want %v", i, got, expected)
		}
	}
	if _, stop := b.Next(); !stop {
		t.Fatal("expected backoff to stop after MaxAttempts-1 retries")
	}
}

func TestBackoffHonoursRetryAfterHint(t *testing.T) {
	c := &Coordinator{policy: Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
	}}
	hint := 20 * time.Second
	b := c.backoff(logging.NewNop(), &hint)

	if got, _ := b.Next(); got != 20*time.Second {
		t.Fatalf("expected hint to win, got %v", got)
	}
	if got, _ := b.Next(); got != 2*time.Second {
		t.Fatalf("expected hint to be consumed, got %v", got)
	}
}
