package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitplane/yt-mpv/internal/uri"
)

// Status represents the archive lifecycle state of a canonical URL.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

var validStatuses = []Status{StatusNotStarted, StatusInProgress, StatusSucceeded, StatusFailed}

// ParseStatus converts a persisted value into a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, status := range validStatuses {
		if string(status) == normalized {
			return status, true
		}
	}
	return "", false
}

// allowedTransitions lists every legal status change. Identity transitions
// are listed explicitly: in_progress -> in_progress is the per-retry bump.
var allowedTransitions = map[Status][]Status{
	StatusNotStarted: {StatusNotStarted, StatusInProgress},
	StatusInProgress: {StatusInProgress, StatusSucceeded, StatusFailed},
	StatusFailed:     {StatusFailed, StatusInProgress},
	StatusSucceeded:  {StatusSucceeded},
}

// CanTransition reports whether a record may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Record is the archive attempt history for one canonical URL.
type Record struct {
	URL           uri.CanonicalURL
	Status        Status
	Attempts      int
	LastAttemptAt time.Time
	RemoteID      string
	LastError     string
	// Owner is the run ID holding the current in_progress claim.
	Owner     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsStale reports whether an in_progress record has gone without an observed
// completion for at least window.
func (r Record) IsStale(now time.Time, window time.Duration) bool {
	if r.Status != StatusInProgress {
		return false
	}
	if r.LastAttemptAt.IsZero() {
		return true
	}
	return now.Sub(r.LastAttemptAt) >= window
}

// Mutator computes the next record from the current one (nil when absent).
// It may run more than once if the store retries a busy transaction, so it
// must not have side effects. Returning an error aborts the write and the
// error is returned from Upsert unchanged.
type Mutator func(current *Record) (Record, error)

// ErrInvalidTransition is returned when a mutator produces a record that
// violates the lifecycle rules.
var ErrInvalidTransition = errors.New("invalid ledger transition")

func validateUpdate(prev *Record, next Record) error {
	if _, ok := ParseStatus(string(next.Status)); !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next.Status)
	}
	if prev == nil {
		if next.Status != StatusNotStarted && next.Status != StatusInProgress {
			return fmt.Errorf("%w: new record cannot start as %s", ErrInvalidTransition, next.Status)
		}
	} else {
		if !CanTransition(prev.Status, next.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev.Status, next.Status)
		}
		if next.Attempts < prev.Attempts {
			return fmt.Errorf("%w: attempts decreased from %d to %d", ErrInvalidTransition, prev.Attempts, next.Attempts)
		}
		if prev.Status == StatusSucceeded && next.RemoteID != prev.RemoteID {
			return fmt.Errorf("%w: remote id of a succeeded record is immutable", ErrInvalidTransition)
		}
	}
	if next.Attempts < 0 {
		return fmt.Errorf("%w: negative attempts", ErrInvalidTransition)
	}
	if next.Status == StatusSucceeded && strings.TrimSpace(next.RemoteID) == "" {
		return fmt.Errorf("%w: succeeded record requires a remote id", ErrInvalidTransition)
	}
	if next.LastError != "" && next.Status != StatusFailed {
		return fmt.Errorf("%w: last error is only kept on failed records", ErrInvalidTransition)
	}
	return nil
}

// finalize stamps the key and bookkeeping timestamps on a validated record.
func finalize(key uri.CanonicalURL, prev *Record, next Record, now time.Time) Record {
	next.URL = key
	next.UpdatedAt = now
	if prev != nil && !prev.CreatedAt.IsZero() {
		next.CreatedAt = prev.CreatedAt
	} else {
		next.CreatedAt = now
	}
	return next
}
