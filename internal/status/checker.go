package status

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bitplane/yt-mpv/internal/archive"
	"github.com/bitplane/yt-mpv/internal/ledger"
	"github.com/bitplane/yt-mpv/internal/logging"
	"github.com/bitplane/yt-mpv/internal/uri"
)

// State is the archive status reported for a URL.
type State string

const (
	Archived    State = "archived"
	InProgress  State = "in_progress"
	NotArchived State = "not_archived"
)

// Source says where the answer came from.
type Source string

const (
	SourceLedger Source = "ledger"
	SourceRemote Source = "remote"
)

// Result is the answer to a status check.
type Result struct {
	State     State
	RemoteID  string
	RemoteURL string
	Source    Source
	// Record is the ledger entry consulted, nil when none existed.
	Record *ledger.Record
}

// LookupError reports that the remote archive could not be queried.
type LookupError struct {
	Backend string
	Err     error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Backend, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// ErrorKind implements the classifier interface used by the CLI.
func (e *LookupError) ErrorKind() string { return "lookup_failed" }

// Checker answers "has this URL been archived?" without changing anything.
type Checker struct {
	store    ledger.Store
	archiver archive.Archiver
	logger   *slog.Logger
}

// New constructs a checker.
func New(store ledger.Store, archiver archive.Archiver, logger *slog.Logger) *Checker {
	return &Checker{
		store:    store,
		archiver: archiver,
		logger:   logging.NewComponentLogger(logger, "status"),
	}
}

// Check consults the ledger first and falls back to the remote archive when
// the ledger knows nothing about url. A Failed record reports NotArchived
// without asking the remote.
func (c *Checker) Check(ctx context.Context, url uri.CanonicalURL) (Result, error) {
	logger := logging.WithContext(ctx, c.logger)
	record, err := c.store.Get(ctx, url)
	if err != nil {
		return Result{}, err
	}
	if record != nil {
		switch record.Status {
		case ledger.StatusSucceeded:
			return Result{
				State:     Archived,
				RemoteID:  record.RemoteID,
				RemoteURL: c.archiver.RemoteURL(record.RemoteID),
				Source:    SourceLedger,
				Record:    record,
			}, nil
		case ledger.StatusInProgress:
			return Result{State: InProgress, Source: SourceLedger, Record: record}, nil
		case ledger.StatusFailed:
			return Result{State: NotArchived, Source: SourceLedger, Record: record}, nil
		}
	}

	logger.Debug("ledger has no answer; querying remote archive", logging.String("backend", c.archiver.Name()))
	remoteID, found, err := c.archiver.Query(ctx, url)
	if err != nil {
		return Result{}, &LookupError{Backend: c.archiver.Name(), Err: err}
	}
	if !found {
		return Result{State: NotArchived, Source: SourceRemote, Record: record}, nil
	}
	return Result{
		State:     Archived,
		RemoteID:  remoteID,
		RemoteURL: c.archiver.RemoteURL(remoteID),
		Source:    SourceRemote,
		Record:    record,
	}, nil
}
