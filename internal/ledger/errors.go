package ledger

import "fmt"

// ErrorKind classifies ledger failures. Both kinds are fatal to the current
// invocation: a status transition is never silently dropped.
type ErrorKind string

const (
	StorageUnavailable ErrorKind = "storage_unavailable"
	Corrupt            ErrorKind = "corrupt"
)

// Error reports a storage failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ledger %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind implements the classifier interface used by the CLI.
func (e *Error) ErrorKind() string { return string(e.Kind) }

func unavailable(op string, err error) error {
	return &Error{Kind: StorageUnavailable, Op: op, Err: err}
}

func corrupt(op string, err error) error {
	return &Error{Kind: Corrupt, Op: op, Err: err}
}
