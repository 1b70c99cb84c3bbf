package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bitplane/yt-mpv/internal/cachedir"
	"github.com/bitplane/yt-mpv/internal/coordinator"
	"github.com/bitplane/yt-mpv/internal/logging"
	"github.com/bitplane/yt-mpv/internal/notifications"
	"github.com/bitplane/yt-mpv/internal/player"
	"github.com/bitplane/yt-mpv/internal/services"
	"github.com/bitplane/yt-mpv/internal/uri"
)

// Parser turns a handler URI into a canonical URL.
type Parser interface {
	Parse(raw string) (uri.CanonicalURL, uri.PlaybackOptions, error)
}

// Launcher starts playback.
type Launcher interface {
	Launch(ctx context.Context, url uri.CanonicalURL, opts uri.PlaybackOptions) (*player.Process, error)
}

// Archiver ensures a URL is archived.
type Archiver interface {
	EnsureArchived(ctx context.Context, url uri.CanonicalURL) (coordinator.Outcome, error)
}

// Result collects the independent outcomes of one dispatch.
type Result struct {
	URL     uri.CanonicalURL
	Options uri.PlaybackOptions

	Process     *player.Process
	PlaybackErr error

	// Archived is false when archiving was switched off for this URI.
	Archived   bool
	Outcome    coordinator.Outcome
	ArchiveErr error
}

// Dispatcher handles one handler invocation: playback and archiving run as
// two independent units sharing nothing but the parsed URL.
type Dispatcher struct {
	parser   Parser
	launcher Launcher
	archiver Archiver
	purger   *cachedir.Purger
	notifier notifications.Service
	logger   *slog.Logger
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithPurger enables the occasional cache purge.
func WithPurger(p *cachedir.Purger) Option {
	return func(d *Dispatcher) { d.purger = p }
}

// WithNotifier reports playback failures through svc.
func WithNotifier(svc notifications.Service) Option {
	return func(d *Dispatcher) {
		if svc != nil {
			d.notifier = svc
		}
	}
}

// New constructs a dispatcher.
func New(parser Parser, launcher Launcher, archiver Archiver, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		parser:   parser,
		launcher: launcher,
		archiver: archiver,
		notifier: notifications.NewService(nil),
		logger:   logging.NewComponentLogger(logger, "dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch parses raw and, when it is valid, starts playback and archiving
// concurrently and waits for both. Only a parse failure is returned as an
// error; unit failures are reported in the Result.
func (d *Dispatcher) Dispatch(ctx context.Context, raw string) (Result, error) {
	url, opts, err := d.parser.Parse(raw)
	if err != nil {
		return Result{}, err
	}
	ctx, _ = services.EnsureRunID(ctx)
	ctx = services.WithMediaURL(ctx, string(url))
	logger := logging.WithContext(ctx, d.logger)
	logger.Info("dispatching", logging.Bool("archive", opts.Archive), logging.Duration("start", opts.Start))

	if d.purger != nil {
		if ran, result, err := d.purger.MaybePurge(ctx); err != nil {
			logging.WarnWithContext(logger, "cache purge failed", "cache.purge",
				logging.Error(err),
				logging.String(logging.FieldImpact, "old downloads stay on disk"),
				logging.String(logging.FieldErrorHint, "run yt-mpv cache clean"),
			)
		} else if ran {
			logger.Debug("cache purged", logging.Int("removed", result.Removed))
		}
	}

	result := Result{URL: url, Options: opts, Archived: opts.Archive}
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		playCtx := services.WithUnit(ctx, "playback")
		result.Process, result.PlaybackErr = d.launcher.Launch(playCtx, url, opts)
		if result.PlaybackErr != nil {
			unitLogger := logging.WithContext(playCtx, d.logger)
			logging.ErrorWithContext(unitLogger, "playback failed", "playback.failed",
				logging.Error(result.PlaybackErr),
				logging.String(logging.FieldErrorHint, "install mpv or set player.binary"),
			)
			if err := d.notifier.Publish(playCtx, notifications.EventPlaybackFailed, notifications.Payload{
				"url":    string(url),
				"reason": result.PlaybackErr.Error(),
			}); err != nil {
				unitLogger.Debug("playback failure notification failed", logging.Error(err))
			}
		}
	}()

	if opts.Archive {
		wg.Add(1)
		go func() {
			defer wg.Done()
			archiveCtx := services.WithUnit(ctx, "archive")
			result.Outcome, result.ArchiveErr = d.archiver.EnsureArchived(archiveCtx, url)
			if result.ArchiveErr != nil {
				logging.ErrorWithContext(logging.WithContext(archiveCtx, d.logger), "archive unit failed", "archive.error",
					logging.Error(result.ArchiveErr),
					logging.String(logging.FieldErrorHint, "run yt-mpv doctor"),
				)
			}
		}()
	}

	wg.Wait()
	return result, nil
}
