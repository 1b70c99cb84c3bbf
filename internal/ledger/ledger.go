package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/bitplane/yt-mpv/internal/config"
	"github.com/bitplane/yt-mpv/internal/uri"
)

// Store is the durable mapping from canonical URL to archive record.
// Upsert is the only mutation entry point.
type Store interface {
	Get(ctx context.Context, url uri.CanonicalURL) (*Record, error)
	Upsert(ctx context.Context, url uri.CanonicalURL, mutate Mutator) (Record, error)
	List(ctx context.Context) ([]Record, error)
	CheckHealth(ctx context.Context) error
	Close() error
}

// Open opens the ledger selected by cfg.Ledger.Driver.
func Open(cfg *config.Config) (Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, unavailable("open", fmt.Errorf("ensure directories: %w", err))
	}
	switch cfg.Ledger.Driver {
	case "bolt":
		return OpenBolt(cfg.Ledger.Path, time.Duration(cfg.Ledger.LockTimeout)*time.Second)
	case "sqlite", "":
		return OpenSQLite(cfg.Ledger.Path)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Ledger.Driver)
	}
}
