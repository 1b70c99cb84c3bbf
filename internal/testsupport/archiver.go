package testsupport

import (
	"context"
	"sync"

	"github.com/bitplane/yt-mpv/internal/uri"
)

// FakeArchiver is an in-memory archive.Archiver that records calls.
type FakeArchiver struct {
	// SubmitFunc decides each Submit result. The default returns "remote-1".
	SubmitFunc func(ctx context.Context, url uri.CanonicalURL, call int) (string, error)
	// QueryFunc decides each Query result. The default reports not found.
	QueryFunc func(ctx context.Context, url uri.CanonicalURL) (string, bool, error)

	mu      sync.Mutex
	submits int
	queries int
}

// Name implements archive.Archiver.
func (f *FakeArchiver) Name() string { return "fake" }

// RemoteURL implements archive.Archiver.
func (f *FakeArchiver) RemoteURL(remoteID string) string {
	if remoteID == "" {
		return ""
	}
	return "https://archive.test/" + remoteID
}

// Submit implements archive.Archiver.
func (f *FakeArchiver) Submit(ctx context.Context, url uri.CanonicalURL) (string, error) {
	f.mu.Lock()
	f.submits++
	call := f.submits
	fn := f.SubmitFunc
	f.mu.Unlock()
	if fn == nil {
		return "remote-1", nil
	}
	return fn(ctx, url, call)
}

// Query implements archive.Archiver.
func (f *FakeArchiver) Query(ctx context.Context, url uri.CanonicalURL) (string, bool, error) {
	f.mu.Lock()
	f.queries++
	fn := f.QueryFunc
	f.mu.Unlock()
	if fn == nil {
		return "", false, nil
	}
	return fn(ctx, url)
}

// Submits returns the number of Submit calls.
func (f *FakeArchiver) Submits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

// Queries returns the number of Query calls.
func (f *FakeArchiver) Queries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}
