package notifications

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDesktopServicePassesUrgencyAndText(t *testing.T) {
	var gotBinary string
	var gotArgs []string
	svc := &desktopService{
		binary:  "notify-send",
		timeout: time.Second,
		run: func(_ context.Context, binary string, args ...string) error {
			gotBinary = binary
			gotArgs = args
			return nil
		},
	}

	err := svc.Publish(context.Background(), EventArchiveFailed, Payload{"url": "https://example.com/", "reason": "rejected"})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if gotBinary != "notify-send" {
		t.Fatalf("unexpected binary %q", gotBinary)
	}
	want := []string{"--app-name=yt-mpv", "--urgency=critical", "yt-mpv - Archive Failed", "❌ Archive failed: https://example.com/\nrejected"}
	if len(gotArgs) != len(want) {
		t.Fatalf("args = %q, want %q", gotArgs, want)
	}
	for i := range want {
		if gotArgs[i] != want[i] {
			t.Fatalf("arg %d = %q, want %q", i, gotArgs[i], want[i])
		}
	}
}

func TestMultiServiceAggregatesErrors(t *testing.T) {
	failing := &desktopService{
		binary:  "notify-send",
		timeout: time.Second,
		run: func(context.Context, string, ...string) error {
			return errors.New("no display")
		},
	}
	svc := multiService{failing, noopService{}, failing}
	err := svc.Publish(context.Background(), EventTest, nil)
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if got := len(unwrapAll(err)); got != 2 {
		t.Fatalf("expected 2 wrapped errors, got %d (%v)", got, err)
	}
}

func unwrapAll(err error) []error {
	if joined, ok := err.(interface{ WrappedErrors() []error }); ok {
		return joined.WrappedErrors()
	}
	return []error{err}
}

func TestUnknownEventIsIgnored(t *testing.T) {
	called := false
	svc := &desktopService{
		binary:  "notify-send",
		timeout: time.Second,
		run: func(context.Context, string, ...string) error {
			called = true
			return nil
		},
	}
	if err := svc.Publish(context.Background(), Event("bogus"), nil); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if called {
		t.Fatal("expected unknown event to be dropped")
	}
}
