package archive

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// TransientKind names a failure that may succeed on retry.
type TransientKind string

const (
	Network     TransientKind = "network"
	Timeout     TransientKind = "timeout"
	RateLimited TransientKind = "rate_limited"
)

// PermanentKind names a failure that will not succeed on retry.
type PermanentKind string

const (
	Rejected      PermanentKind = "rejected"
	QuotaExceeded PermanentKind = "quota_exceeded"
	InvalidURL    PermanentKind = "invalid_url"
)

// TransientError is a submission failure eligible for automatic retry.
type TransientError struct {
	Kind    TransientKind
	Backend string
	Message string
	// RetryAfter is the server-advertised delay, zero when absent.
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	return formatError(e.Backend, string(e.Kind), e.Message, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ErrorKind implements the classifier interface used by the CLI.
func (e *TransientError) ErrorKind() string { return string(e.Kind) }

// PermanentError is a submission failure that must not be retried.
type PermanentError struct {
	Kind    PermanentKind
	Backend string
	Message string
	Err     error
}

func (e *PermanentError) Error() string {
	return formatError(e.Backend, string(e.Kind), e.Message, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// ErrorKind implements the classifier interface used by the CLI.
func (e *PermanentError) ErrorKind() string { return string(e.Kind) }

func formatError(backend, kind, message string, err error) string {
	prefix := kind
	if backend != "" {
		prefix = backend + ": " + kind
	}
	switch {
	case message != "" && err != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, message, err)
	case message != "":
		return fmt.Sprintf("%s: %s", prefix, message)
	case err != nil:
		return fmt.Sprintf("%s: %v", prefix, err)
	default:
		return prefix
	}
}

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

// Classify returns err as a TransientError or PermanentError. Errors that
// carry neither are treated as transient network failures; context errors
// are returned unchanged.
func Classify(backend string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return err
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return &TransientError{Kind: Timeout, Backend: backend, Err: err}
	}
	return &TransientError{Kind: Network, Backend: backend, Err: err}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func transient(backend string, kind TransientKind, message string, err error) *TransientError {
	return &TransientError{Kind: kind, Backend: backend, Message: message, Err: err}
}

func permanent(backend string, kind PermanentKind, message string, err error) *PermanentError {
	return &PermanentError{Kind: kind, Backend: backend, Message: message, Err: err}
}
