package coordinator_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bitplane/yt-mpv/internal/archive"
	"github.com/bitplane/yt-mpv/internal/coordinator"
	"github.com/bitplane/yt-mpv/internal/ledger"
	"github.com/bitplane/yt-mpv/internal/logging"
	"github.com/bitplane/yt-mpv/internal/testsupport"
	"github.com/bitplane/yt-mpv/internal/uri"
)

const mediaURL = uri.CanonicalURL("https://example.com/watch?v=abc123")

func testPolicy() coordinator.Policy {
	return coordinator.Policy{
		MaxAttempts: 3,
		StaleAfter:  2 * time.Hour,
	}
}

func newCoordinator(t *testing.T, fake *testsupport.FakeArchiver, opts ...coordinator.Option) (*coordinator.Coordinator, ledger.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	return coordinator.New(store, fake, testPolicy(), logging.NewNop(), opts...), store
}

func mustGet(t *testing.T, store ledger.Store) *ledger.Record {
	t.Helper()
	record, err := store.Get(context.Background(), mediaURL)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record == nil {
		t.Fatal("expected ledger record")
	}
	return record
}

func TestEnsureArchivedIsIdempotent(t *testing.T) {
	fake := &testsupport.FakeArchiver{}
	coord, store := newCoordinator(t, fake)
	ctx := context.Background()

	first, err := coord.EnsureArchived(ctx, mediaURL)
	if err != nil {
		t.Fatalf("first EnsureArchived failed: %v", err)
	}
	if first.Kind != coordinator.Submitted || first.RemoteID != "remote-1" || first.Attempts != 1 {
		t.Fatalf("unexpected first outcome: %#v", first)
	}

	second, err := coord.EnsureArchived(ctx, mediaURL)
	if err != nil {
		t.Fatalf("second EnsureArchived failed: %v", err)
	}
	if second.Kind != coordinator.AlreadyArchived || second.RemoteID != "remote-1" {
		t.Fatalf("unexpected second outcome: %#v", second)
	}
	if fake.Submits() != 1 {
		t.Fatalf("expected exactly one submission, got %d", fake.Submits())
	}

	record := mustGet(t, store)
	if record.Status != ledger.StatusSucceeded || record.Attempts != 1 {
		t.Fatalf("unexpected record: %#v", record)
	}
}

func TestConcurrentCallsSubmitOnce(t *testing.T) {
	release := make(chan struct{})
	fake := &testsupport.FakeArchiver{
		SubmitFunc: func(ctx context.Context, _ uri.CanonicalURL, _ int) (string, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return "", ctx.Err()
			}
			return "remote-1", nil
		},
	}
	coord, _ := newCoordinator(t, fake)

	const callers = 8
	var wg sync.WaitGroup
	outcomes := make(chan coordinator.Outcome, callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := coord.EnsureArchived(context.Background(), mediaURL)
			if err != nil {
				errs <- err
				return
			}
			outcomes <- outcome
		}()
	}

	// Every caller but the winner returns without waiting on the submission.
	deadline := time.After(10 * time.Second)
	inProgress := 0
	for inProgress < callers-1 {
		select {
		case outcome := <-outcomes:
			if outcome.Kind != coordinator.InProgress {
				t.Fatalf("expected in-progress outcome for losing caller, got %#v", outcome)
			}
			inProgress++
		case err := <-errs:
			t.Fatalf("EnsureArchived failed: %v", err)
		case <-deadline:
			t.Fatalf("timed out waiting for losing callers; %d returned", inProgress)
		}
	}
	close(release)
	wg.Wait()
	close(outcomes)

	winner := <-outcomes
	if winner.Kind != coordinator.Submitted {
		t.Fatalf("expected winner to submit, got %#v", winner)
	}
	if fake.Submits() != 1 {
		t.Fatalf("expected exactly one submission, got %d", fake.Submits())
	}
}

func TestFreshInProgressClaimIsRespected(t *testing.T) {
	fake := &testsupport.FakeArchiver{}
	coord, store := newCoordinator(t, fake)
	testsupport.SeedRecord(t, store, mediaURL, ledger.Record{
		Status:        ledger.StatusInProgress,
		Attempts:      1,
		LastAttemptAt: time.Now().UTC().Add(-10 * time.Minute),
		Owner:         "other-run",
	})

	outcome, err := coord.EnsureArchived(context.Background(), mediaURL)
	if err != nil {
		t.Fatalf("EnsureArchived failed: %v", err)
	}
	if outcome.Kind != coordinator.InProgress {
		t.Fatalf("expected in-progress outcome, got %#v", outcome)
	}
	if fake.Submits() != 0 {
		t.Fatalf("expected no submission, got %d", fake.Submits())
	}
	if record := mustGet(t, store); record.Owner != "other-run" || record.Attempts != 1 {
		t.Fatalf("record should be untouched: %#v", record)
	}
}

func TestStaleClaimIsReclaimedAfterCrash(t *testing.T) {
	fake := &testsupport.FakeArchiver{}
	coord, store := newCoordinator(t, fake)
	testsupport.SeedRecord(t, store, mediaURL, ledger.Record{
		Status:        ledger.StatusInProgress,
		Attempts:      1,
		LastAttemptAt: time.Now().UTC().Add(-3 * time.Hour),
		Owner:         "crashed-run",
	})

	outcome, err := coord.EnsureArchived(context.Background(), mediaURL)
	if err != nil {
		t.Fatalf("EnsureArchived failed: %v", err)
	}
	if outcome.Kind != coordinator.Submitted || outcome.Attempts != 2 {
		t.Fatalf("expected reclaimed submission with 2 attempts, got %#v", outcome)
	}
	if record := mustGet(t, store); record.Status != ledger.StatusSucceeded {
		t.Fatalf("expected succeeded record, got %#v", record)
	}
}

func TestPermanentFailureSkipsRetries(t *testing.T) {
	fake := &testsupport.FakeArchiver{
		SubmitFunc: func(context.Context, uri.CanonicalURL, int) (string, error) {
			return "", &archive.PermanentError{Kind: archive.InvalidURL, Message: "invalid url"}
		},
	}
	coord, store := newCoordinator(t, fake)

	outcome, err := coord.EnsureArchived(context.Background(), mediaURL)
	if err != nil {
		t.Fatalf("EnsureArchived failed: %v", err)
	}
	if outcome.Kind != coordinator.Failed || outcome.Attempts != 1 {
		t.Fatalf("expected failed outcome after one attempt, got %#v", outcome)
	}
	if fake.Submits() != 1 {
		t.Fatalf("expected one submission, got %d", fake.Submits())
	}
	record := mustGet(t, store)
	if record.Status != ledger.StatusFailed || !strings.Contains(record.LastError, "invalid url") {
		t.Fatalf("unexpected record: %#v", record)
	}
	if strings.HasPrefix(record.LastError, "after") {
		t.Fatalf("permanent failure should not read as exhausted retries: %q", record.LastError)
	}
}

func TestTransientFailuresExhaustRetries(t *testing.T) {
	fake := &testsupport.FakeArchiver{
		SubmitFunc: func(context.Context, uri.CanonicalURL, int) (string, error) {
			return "", &archive.TransientError{Kind: archive.Network, Message: "connection reset"}
		},
	}
	coord, store := newCoordinator(t, fake)

	outcome, err := coord.EnsureArchived(context.Background(), mediaURL)
	if err != nil {
		t.Fatalf("EnsureArchived failed: %v", err)
	}
	if outcome.Kind != coordinator.Failed || outcome.Attempts != 3 {
		t.Fatalf("expected failure after 3 attempts, got %#v", outcome)
	}
	if fake.Submits() != 3 {
		t.Fatalf("expected 3 submissions, got %d", fake.Submits())
	}
	record := mustGet(t, store)
	if record.Status != ledger.StatusFailed || record.Attempts != 3 {
		t.Fatalf("unexpected record: %#v", record)
	}
	if !strings.HasPrefix(record.LastError, "after 3 attempts:") {
		t.Fatalf("unexpected last error %q", record.LastError)
	}
}

func TestUnclassifiedErrorsAreRetried(t *testing.T) {
	fake := &testsupport.FakeArchiver{
		SubmitFunc: func(_ context.Context, _ uri.CanonicalURL, call int) (string, error) {
			if call == 1 {
				return "", errors.New("boom")
			}
			return "remote-2", nil
		},
	}
	coord, store := newCoordinator(t, fake)

	outcome, err := coord.EnsureArchived(context.Background(), mediaURL)
	if err != nil {
		t.Fatalf("EnsureArchived failed: %v", err)
	}
	if outcome.Kind != coordinator.Submitted || outcome.RemoteID != "remote-2" || outcome.Attempts != 2 {
		t.Fatalf("unexpected outcome: %#v", outcome)
	}
	if record := mustGet(t, store); record.Attempts != 2 || record.LastError != "" {
		t.Fatalf("unexpected record: %#v", record)
	}
}

func TestFailedRecordIsRetriedByLaterRun(t *testing.T) {
	fake := &testsupport.FakeArchiver{
		SubmitFunc: func(_ context.Context, _ uri.CanonicalURL, call int) (string, error) {
			if call == 1 {
				return "", &archive.PermanentError{Kind: archive.QuotaExceeded}
			}
			return "remote-9", nil
		},
	}
	coord, _ := newCoordinator(t, fake)
	ctx := context.Background()

	if outcome, err := coord.EnsureArchived(ctx, mediaURL); err != nil || outcome.Kind != coordinator.Failed {
		t.Fatalf("expected failure, got %#v (%v)", outcome, err)
	}
	outcome, err := coord.EnsureArchived(ctx, mediaURL)
	if err != nil {
		t.Fatalf("EnsureArchived failed: %v", err)
	}
	if outcome.Kind != coordinator.Submitted || outcome.Attempts != 2 {
		t.Fatalf("expected retry to succeed with 2 attempts, got %#v", outcome)
	}
}

func TestCancellationRecordsInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fake := &testsupport.FakeArchiver{
		SubmitFunc: func(ctx context.Context, _ uri.CanonicalURL, _ int) (string, error) {
			cancel()
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	coord, store := newCoordinator(t, fake)

	outcome, err := coord.EnsureArchived(ctx, mediaURL)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if outcome.Kind != coordinator.Failed || outcome.Reason != coordinator.ReasonInterrupted {
		t.Fatalf("unexpected outcome: %#v", outcome)
	}
	record := mustGet(t, store)
	if record.Status != ledger.StatusFailed || record.LastError != coordinator.ReasonInterrupted {
		t.Fatalf("unexpected record: %#v", record)
	}
}

func TestSuccessIsRecordedAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fake := &testsupport.FakeArchiver{
		SubmitFunc: func(context.Context, uri.CanonicalURL, int) (string, error) {
			cancel()
			return "remote-ok", nil
		},
	}
	coord, store := newCoordinator(t, fake)

	outcome, err := coord.EnsureArchived(ctx, mediaURL)
	if err != nil {
		t.Fatalf("EnsureArchived failed: %v", err)
	}
	if outcome.Kind != coordinator.Submitted || outcome.RemoteID != "remote-ok" {
		t.Fatalf("unexpected outcome: %#v", outcome)
	}
	record := mustGet(t, store)
	if record.Status != ledger.StatusSucceeded || record.RemoteID != "remote-ok" {
		t.Fatalf("remote id lost after interrupt: %#v", record)
	}
}

func TestStalenessUsesInjectedClock(t *testing.T) {
	fake := &testsupport.FakeArchiver{}
	now := time.Now().UTC().Add(5 * time.Hour)
	coord, store := newCoordinator(t, fake, coordinator.WithClock(func() time.Time { return now }))
	testsupport.SeedRecord(t, store, mediaURL, ledger.Record{
		Status:        ledger.StatusInProgress,
		Attempts:      1,
		LastAttemptAt: time.Now().UTC(),
		Owner:         "slow-run",
	})

	outcome, err := coord.EnsureArchived(context.Background(), mediaURL)
	if err != nil {
		t.Fatalf("EnsureArchived failed: %v", err)
	}
	if outcome.Kind != coordinator.Submitted {
		t.Fatalf("expected claim older than the window to be reclaimed, got %#v", outcome)
	}
}
