package ledger

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusNotStarted, StatusInProgress, true},
		{StatusInProgress, StatusInProgress, true},
		{StatusInProgress, StatusSucceeded, true},
		{StatusInProgress, StatusFailed, true},
		{StatusFailed, StatusInProgress, true},
		{StatusNotStarted, StatusSucceeded, false},
		{StatusFailed, StatusSucceeded, false},
		{StatusSucceeded, StatusInProgress, false},
		{StatusSucceeded, StatusFailed, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestIsStale(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)
	window := 2 * time.Hour

	fresh := Record{Status: StatusInProgress, LastAttemptAt: now.Add(-time.Hour)}
	if fresh.IsStale(now, window) {
		t.Fatal("expected fresh claim not to be stale")
	}
	old := Record{Status: StatusInProgress, LastAttemptAt: now.Add(-3 * time.Hour)}
	if !old.IsStale(now, window) {
		t.Fatal("expected old claim to be stale")
	}
	if !(Record{Status: StatusInProgress}).IsStale(now, window) {
		t.Fatal("expected claim without timestamp to be stale")
	}
	if (Record{Status: StatusFailed, LastAttemptAt: now.Add(-3 * time.Hour)}).IsStale(now, window) {
		t.Fatal("only in_progress records can be stale")
	}
}

func TestValidateUpdate(t *testing.T) {
	inProgress := &Record{Status: StatusInProgress, Attempts: 2}
	succeeded := &Record{Status: StatusSucceeded, Attempts: 1, RemoteID: "a"}

	cases := []struct {
		name string
		prev *Record
		next Record
		ok   bool
	}{
		{"claim new", nil, Record{Status: StatusInProgress, Attempts: 1}, true},
		{"new failed", nil, Record{Status: StatusFailed, LastError: "x"}, false},
		{"attempts decrease", inProgress, Record{Status: StatusInProgress, Attempts: 1}, false},
		{"fail with reason", inProgress, Record{Status: StatusFailed, Attempts: 2, LastError: "boom"}, true},
		{"error on in progress", inProgress, Record{Status: StatusInProgress, Attempts: 3, LastError: "boom"}, false},
		{"remote id immutable", succeeded, Record{Status: StatusSucceeded, Attempts: 1, RemoteID: "b"}, false},
		{"identity succeeded", succeeded, *succeeded, true},
		{"unknown status", nil, Record{Status: "archived"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateUpdate(tc.prev, tc.next)
			if tc.ok && err != nil {
				t.Fatalf("expected valid update, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}
