package coordinator

import "time"

// OutcomeKind is the result of one EnsureArchived call.
type OutcomeKind string

const (
	// AlreadyArchived means the ledger already held a success; nothing was sent.
	AlreadyArchived OutcomeKind = "already_archived"
	// Submitted means this call archived the URL.
	Submitted OutcomeKind = "submitted"
	// InProgress means another run holds a fresh claim on the URL.
	InProgress OutcomeKind = "in_progress"
	// Failed means this call gave up; the URL stays eligible for a later run.
	Failed OutcomeKind = "failed"
)

// Outcome describes what EnsureArchived did.
type Outcome struct {
	Kind     OutcomeKind
	RemoteID string
	Reason   string
	Attempts int
}

// ReasonInterrupted is recorded when the invocation is cancelled mid-attempt.
const ReasonInterrupted = "interrupted"

// Policy holds the retry and staleness settings.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	StaleAfter     time.Duration
	// SubmitTimeout bounds a single Submit call; zero leaves it unbounded.
	SubmitTimeout time.Duration
}
