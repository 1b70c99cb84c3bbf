package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/bitplane/yt-mpv/internal/archive"
	"github.com/bitplane/yt-mpv/internal/config"
	"github.com/bitplane/yt-mpv/internal/ledger"
	"github.com/bitplane/yt-mpv/internal/logging"
	"github.com/bitplane/yt-mpv/internal/notifications"
	"github.com/bitplane/yt-mpv/internal/services"
	"github.com/bitplane/yt-mpv/internal/uri"
)

// finalizeTimeout bounds the ledger write made after cancellation.
const finalizeTimeout = 5 * time.Second

var (
	// errClaimHeld aborts a claim when the record is archived or freshly claimed.
	errClaimHeld = errors.New("claim held elsewhere")
	// errClaimLost aborts a retry when this run no longer owns the claim.
	errClaimLost = errors.New("claim lost")
	// errNoChange aborts a completion write that would not change anything.
	errNoChange = errors.New("no change")
)

// Coordinator drives a URL through the archive lifecycle.
type Coordinator struct {
	store    ledger.Store
	archiver archive.Archiver
	notifier notifications.Service
	logger   *slog.Logger
	policy   Policy
	now      func() time.Time
}

// Option configures the coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source (primarily for tests).
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithNotifier sends lifecycle events to svc.
func WithNotifier(svc notifications.Service) Option {
	return func(c *Coordinator) {
		if svc != nil {
			c.notifier = svc
		}
	}
}

// PolicyFromConfig converts the archive config section into a Policy.
func PolicyFromConfig(cfg config.Archive) Policy {
	initial, maximum := cfg.Backoff()
	return Policy{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: initial,
		MaxBackoff:     maximum,
		StaleAfter:     cfg.StaleAfterDuration(),
		SubmitTimeout:  cfg.SubmitTimeoutDuration(),
	}
}

// New constructs a coordinator.
func New(store ledger.Store, archiver archive.Archiver, policy Policy, logger *slog.Logger, opts ...Option) *Coordinator {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	c := &Coordinator{
		store:    store,
		archiver: archiver,
		notifier: notifications.NewService(nil),
		logger:   logging.NewComponentLogger(logger, "coordinator"),
		policy:   policy,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureArchived makes sure url has been archived, submitting it if no
// other run has done so or is doing so. The returned error is only ever a
// ledger failure or the context's error.
func (c *Coordinator) EnsureArchived(ctx context.Context, url uri.CanonicalURL) (Outcome, error) {
	ctx, runID := services.EnsureRunID(ctx)
	ctx = services.WithMediaURL(ctx, string(url))
	logger := logging.WithContext(ctx, c.logger)

	current, err := c.store.Get(ctx, url)
	if err != nil {
		return Outcome{}, err
	}
	if outcome, held := c.heldOutcome(current); held {
		c.report(ctx, logger, url, outcome)
		return outcome, nil
	}

	var observed *ledger.Record
	claimed, err := c.store.Upsert(ctx, url, func(cur *ledger.Record) (ledger.Record, error) {
		observed = cur
		if _, held := c.heldOutcome(cur); held {
			return ledger.Record{}, errClaimHeld
		}
		return c.claim(cur, runID), nil
	})
	if errors.Is(err, errClaimHeld) {
		outcome, _ := c.heldOutcome(observed)
		c.report(ctx, logger, url, outcome)
		return outcome, nil
	}
	if err != nil {
		return Outcome{}, err
	}

	logger.Info("archive claimed",
		logging.String("backend", c.archiver.Name()),
		logging.Int("attempts", claimed.Attempts),
	)
	c.publish(ctx, logger, notifications.EventArchiveStarted, notifications.Payload{"url": string(url)})

	return c.run(ctx, logger, url, runID)
}

// heldOutcome reports whether record blocks a new claim and, if so, the
// outcome to return.
func (c *Coordinator) heldOutcome(record *ledger.Record) (Outcome, bool) {
	if record == nil {
		return Outcome{}, false
	}
	switch record.Status {
	case ledger.StatusSucceeded:
		return Outcome{Kind: AlreadyArchived, RemoteID: record.RemoteID, Attempts: record.Attempts}, true
	case ledger.StatusInProgress:
		if !record.IsStale(c.now(), c.policy.StaleAfter) {
			return Outcome{Kind: InProgress, Attempts: record.Attempts}, true
		}
	}
	return Outcome{}, false
}

func (c *Coordinator) claim(cur *ledger.Record, runID string) ledger.Record {
	next := ledger.Record{}
	if cur != nil {
		next = *cur
	}
	next.Status = ledger.StatusInProgress
	next.Attempts++
	next.LastAttemptAt = c.now()
	next.Owner = runID
	next.LastError = ""
	return next
}

func (c *Coordinator) run(ctx context.Context, logger *slog.Logger, url uri.CanonicalURL, runID string) (Outcome, error) {
	var (
		attempt    int
		remoteID   string
		retryAfter time.Duration
	)

	err := retry.Do(ctx, c.backoff(logger, &retryAfter), func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			_, err := c.store.Upsert(ctx, url, func(cur *ledger.Record) (ledger.Record, error) {
				if cur == nil || cur.Status != ledger.StatusInProgress || cur.Owner != runID {
					return ledger.Record{}, errClaimLost
				}
				return c.claim(cur, runID), nil
			})
			if err != nil {
				return err
			}
		}

		id, err := c.submit(ctx, url)
		if err == nil {
			remoteID = id
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		classified := archive.Classify(c.archiver.Name(), err)
		kind := "unknown"
		var classifier interface{ ErrorKind() string }
		if errors.As(classified, &classifier) {
			kind = classifier.ErrorKind()
		}
		if archive.IsPermanent(classified) {
			logging.WarnWithContext(logger, "archive rejected", "archive.permanent",
				logging.Int("attempt", attempt),
				logging.String("kind", kind),
				logging.Error(classified),
				logging.String(logging.FieldImpact, "url will not be retried by this run"),
				logging.String(logging.FieldErrorHint, "check the url and archive account"),
			)
			return classified
		}
		logging.WarnWithContext(logger, "archive attempt failed", "archive.transient",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", c.policy.MaxAttempts),
			logging.String("kind", kind),
			logging.Error(classified),
			logging.String(logging.FieldImpact, "submission will be retried if attempts remain"),
		)
		var transient *archive.TransientError
		if errors.As(classified, &transient) {
			retryAfter = transient.RetryAfter
		}
		return retry.RetryableError(classified)
	})

	switch {
	case err == nil:
		return c.complete(ctx, logger, url, remoteID)
	case errors.Is(err, errClaimLost):
		return c.lostClaim(ctx, logger, url)
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return c.interrupted(ctx, logger, url, runID)
	}
	var ledgerErr *ledger.Error
	if errors.As(err, &ledgerErr) {
		return Outcome{}, err
	}

	reason := err.Error()
	if !archive.IsPermanent(err) {
		reason = fmt.Sprintf("after %d attempts: %v", attempt, err)
	}
	return c.fail(ctx, logger, url, runID, reason)
}

// submit calls the archiver with the per-attempt timeout applied.
func (c *Coordinator) submit(ctx context.Context, url uri.CanonicalURL) (string, error) {
	submitCtx := services.WithUnit(ctx, "archive")
	if c.policy.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(submitCtx, c.policy.SubmitTimeout)
		defer cancel()
	}
	return c.archiver.Submit(submitCtx, url)
}

// backoff doubles from InitialBackoff up to MaxBackoff and stops after
// MaxAttempts submissions. A server-advertised delay in *hint wins when longer.
func (c *Coordinator) backoff(logger *slog.Logger, hint *time.Duration) retry.Backoff {
	var base retry.Backoff
	if c.policy.InitialBackoff > 0 {
		base = retry.NewExponential(c.policy.InitialBackoff)
		if c.policy.MaxBackoff > 0 {
			base = retry.WithCappedDuration(c.policy.MaxBackoff, base)
		}
	} else {
		base = retry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
	}
	limited := retry.WithMaxRetries(uint64(c.policy.MaxAttempts-1), base)

	return retry.BackoffFunc(func() (time.Duration, bool) {
		next, stop := limited.Next()
		if stop {
			return 0, true
		}
		if *hint > next {
			next = *hint
			if c.policy.MaxBackoff > 0 && next > c.policy.MaxBackoff {
				next = c.policy.MaxBackoff
			}
		}
		*hint = 0
		logger.Info("retrying archive submission", logging.Duration("backoff", next))
		return next, false
	})
}

// complete records a remote id. The write is detached from ctx: once the
// archive service holds a copy, an interrupt must not lose it.
func (c *Coordinator) complete(ctx context.Context, logger *slog.Logger, url uri.CanonicalURL, remoteID string) (Outcome, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	// A run that reclaimed this URL as stale may have failed it meanwhile;
	// Failed cannot go straight to Succeeded, so re-open it first.
	for pass := 0; pass < 2; pass++ {
		var existing *ledger.Record
		record, err := c.store.Upsert(ctx, url, func(cur *ledger.Record) (ledger.Record, error) {
			existing = cur
			if cur != nil && cur.Status == ledger.StatusSucceeded {
				return ledger.Record{}, errNoChange
			}
			next := ledger.Record{}
			if cur != nil {
				next = *cur
			}
			next.LastError = ""
			if next.Status != ledger.StatusInProgress {
				next.Status = ledger.StatusInProgress
				return next, nil
			}
			next.Status = ledger.StatusSucceeded
			next.RemoteID = remoteID
			return next, nil
		})
		if errors.Is(err, errNoChange) {
			outcome := Outcome{Kind: Submitted, RemoteID: existing.RemoteID, Attempts: existing.Attempts}
			c.report(ctx, logger, url, outcome)
			return outcome, nil
		}
		if err != nil {
			return Outcome{}, err
		}
		if record.Status == ledger.StatusSucceeded {
			outcome := Outcome{Kind: Submitted, RemoteID: record.RemoteID, Attempts: record.Attempts}
			c.report(ctx, logger, url, outcome)
			return outcome, nil
		}
	}
	return Outcome{}, fmt.Errorf("record for %s did not settle after submission", url)
}

func (c *Coordinator) fail(ctx context.Context, logger *slog.Logger, url uri.CanonicalURL, runID, reason string) (Outcome, error) {
	var observed *ledger.Record
	record, err := c.store.Upsert(ctx, url, func(cur *ledger.Record) (ledger.Record, error) {
		observed = cur
		if cur == nil || cur.Status != ledger.StatusInProgress || cur.Owner != runID {
			return ledger.Record{}, errNoChange
		}
		next := *cur
		next.Status = ledger.StatusFailed
		next.LastError = reason
		return next, nil
	})
	attempts := record.Attempts
	if errors.Is(err, errNoChange) {
		if observed != nil {
			attempts = observed.Attempts
		}
		logger.Info("claim changed hands before failure was recorded")
	} else if err != nil {
		return Outcome{}, err
	}
	outcome := Outcome{Kind: Failed, Reason: reason, Attempts: attempts}
	c.report(ctx, logger, url, outcome)
	return outcome, nil
}

// interrupted records the cancellation so the URL is immediately eligible
// for retry instead of waiting out the staleness window.
func (c *Coordinator) interrupted(ctx context.Context, logger *slog.Logger, url uri.CanonicalURL, runID string) (Outcome, error) {
	cause := ctx.Err()
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	outcome, err := c.fail(writeCtx, logger, url, runID, ReasonInterrupted)
	if err != nil {
		return Outcome{}, err
	}
	return outcome, cause
}

func (c *Coordinator) lostClaim(ctx context.Context, logger *slog.Logger, url uri.CanonicalURL) (Outcome, error) {
	record, err := c.store.Get(ctx, url)
	if err != nil {
		return Outcome{}, err
	}
	logger.Info("claim taken over by another run")
	if record != nil && record.Status == ledger.StatusSucceeded {
		outcome := Outcome{Kind: AlreadyArchived, RemoteID: record.RemoteID, Attempts: record.Attempts}
		c.report(ctx, logger, url, outcome)
		return outcome, nil
	}
	outcome := Outcome{Kind: InProgress}
	if record != nil {
		outcome.Attempts = record.Attempts
	}
	return outcome, nil
}

func (c *Coordinator) report(ctx context.Context, logger *slog.Logger, url uri.CanonicalURL, outcome Outcome) {
	payload := notifications.Payload{"url": string(url)}
	switch outcome.Kind {
	case AlreadyArchived:
		payload["remoteURL"] = c.archiver.RemoteURL(outcome.RemoteID)
		logger.Info("already archived", logging.String("remote_id", outcome.RemoteID))
		c.publish(ctx, logger, notifications.EventAlreadyArchived, payload)
	case Submitted:
		payload["remoteURL"] = c.archiver.RemoteURL(outcome.RemoteID)
		logger.Info("archive submitted",
			logging.String("remote_id", outcome.RemoteID),
			logging.Int("attempts", outcome.Attempts),
		)
		c.publish(ctx, logger, notifications.EventArchiveCompleted, payload)
	case InProgress:
		logger.Info("archive already in progress elsewhere", logging.Int("attempts", outcome.Attempts))
	case Failed:
		payload["reason"] = outcome.Reason
		logging.ErrorWithContext(logger, "archive failed", "archive.failed",
			logging.String("reason", outcome.Reason),
			logging.Int("attempts", outcome.Attempts),
			logging.String(logging.FieldErrorHint, "run yt-mpv archive <url> to retry"),
		)
		c.publish(ctx, logger, notifications.EventArchiveFailed, payload)
	}
}

func (c *Coordinator) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	if err := c.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(logger, "notification failed", "notification.failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "user was not notified"),
			logging.String(logging.FieldErrorHint, "check notify-send or the ntfy topic"),
		)
	}
}
