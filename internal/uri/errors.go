package uri

import "fmt"

// ParseErrorKind classifies why a handler URI was rejected.
type ParseErrorKind string

const (
	// UnsupportedScheme means the URI does not use a registered scheme.
	UnsupportedScheme ParseErrorKind = "unsupported_scheme"
	// MalformedTarget means the embedded media URL is missing or not an absolute http(s) URL.
	MalformedTarget ParseErrorKind = "malformed_target"
)

// ParseError reports a rejected handler URI. It is a user-input error and is
// never retried.
type ParseError struct {
	Kind   ParseErrorKind
	Input  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse uri: %s", e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// ErrorKind implements the classifier interface used by the CLI.
func (e *ParseError) ErrorKind() string { return string(e.Kind) }

func unsupported(input, scheme string) error {
	return &ParseError{Kind: UnsupportedScheme, Input: input, Reason: fmt.Sprintf("unsupported scheme %q", scheme)}
}

func malformed(input, reason string, err error) error {
	return &ParseError{Kind: MalformedTarget, Input: input, Reason: reason, Err: err}
}
