package testsupport

import (
	"context"
	"testing"

	"github.com/bitplane/yt-mpv/internal/config"
	"github.com/bitplane/yt-mpv/internal/ledger"
	"github.com/bitplane/yt-mpv/internal/uri"
)

// MustOpenLedger opens the ledger configured in cfg and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedRecord writes record for url through the store's mutation path.
func SeedRecord(t testing.TB, store ledger.Store, url uri.CanonicalURL, record ledger.Record) ledger.Record {
	t.Helper()

	written, err := store.Upsert(context.Background(), url, func(*ledger.Record) (ledger.Record, error) {
		return record, nil
	})
	if err != nil {
		t.Fatalf("seed ledger record: %v", err)
	}
	return written
}
