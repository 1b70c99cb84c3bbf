package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/bitplane/yt-mpv/internal/config"
	"github.com/bitplane/yt-mpv/internal/uri"
)

// Archiver is an external archive service.
//
// Submit must be safe to call again for a URL that may already be archived:
// backends check for an existing copy and return its ID instead of
// creating a duplicate. Errors are *TransientError or *PermanentError;
// anything else is treated as a transient network failure.
type Archiver interface {
	Name() string
	Submit(ctx context.Context, url uri.CanonicalURL) (remoteID string, err error)
	Query(ctx context.Context, url uri.CanonicalURL) (remoteID string, found bool, err error)
	RemoteURL(remoteID string) string
}

// New returns the backend selected by cfg.Archive.Backend. progress, when
// non-nil, receives upload progress output.
func New(cfg *config.Config, logger *slog.Logger, progress io.Writer) (Archiver, error) {
	switch cfg.Archive.Backend {
	case backendInternetArchive, "":
		var opts []InternetArchiveOption
		if progress != nil {
			opts = append(opts, WithProgress(progress))
		}
		return NewInternetArchive(cfg, logger, opts...)
	case backendWayback:
		return NewWayback(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}
}
