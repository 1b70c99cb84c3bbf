package main

import (
	"errors"
	"fmt"

	"github.com/bitplane/yt-mpv/internal/ledger"
	"github.com/bitplane/yt-mpv/internal/player"
	"github.com/bitplane/yt-mpv/internal/status"
	"github.com/bitplane/yt-mpv/internal/uri"
)

const (
	exitOK            = 0
	exitNegative      = 1
	exitUsage         = 2
	exitLookupFailed  = 3
	exitParseError    = 4
	exitLaunchError   = 5
	exitLedgerError   = 6
	exitArchiveFailed = 7
)

// exitCoder lets a command choose the process exit status.
type exitCoder interface {
	ExitStatus() int
}

// exitError carries an explicit exit status. A nil err means the command
// already reported its result and nothing more should be printed.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func (e *exitError) ExitStatus() int { return e.code }

func withExitCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

func usageError(format string, args ...any) error {
	return withExitCode(exitUsage, fmt.Errorf(format, args...))
}

func isQuiet(err error) bool {
	var ee *exitError
	return errors.As(err, &ee) && ee.err == nil
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var coder exitCoder
	if errors.As(err, &coder) {
		return coder.ExitStatus()
	}
	var parseErr *uri.ParseError
	if errors.As(err, &parseErr) {
		return exitParseError
	}
	var launchErr *player.LaunchError
	if errors.As(err, &launchErr) {
		return exitLaunchError
	}
	var ledgerErr *ledger.Error
	if errors.As(err, &ledgerErr) {
		return exitLedgerError
	}
	var lookupErr *status.LookupError
	if errors.As(err, &lookupErr) {
		return exitLookupFailed
	}
	return exitNegative
}
