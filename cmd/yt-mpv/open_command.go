package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/bitplane/yt-mpv/internal/cachedir"
	"github.com/bitplane/yt-mpv/internal/coordinator"
	"github.com/bitplane/yt-mpv/internal/dispatch"
	"github.com/bitplane/yt-mpv/internal/ledger"
	"github.com/bitplane/yt-mpv/internal/logging"
	"github.com/bitplane/yt-mpv/internal/notifications"
	"github.com/bitplane/yt-mpv/internal/player"
	"github.com/bitplane/yt-mpv/internal/uri"
)

func newOpenCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "open <uri>",
		Short: "Handle a yt-mpv URI: play it and archive it in the background",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpen(cmd, ctx, args[0])
		},
	}
}

// runOpen dispatches a handler URI. The exit status reflects parsing,
// playback and the ledger; archive outcomes are logged and notified.
func runOpen(cmd *cobra.Command, ctx *commandContext, raw string) error {
	cfg := ctx.configValue()
	logger := ctx.loggerFor(cmd.ErrOrStderr())

	_, opts, err := ctx.parser().Parse(raw)
	if err != nil {
		logging.ErrorWithContext(logger, "rejected handler uri", "uri.rejected",
			logging.String("uri", raw),
			logging.Error(err),
		)
		return err
	}

	if cfg.Downloader.SelfUpdate {
		ctx.updateYtDlp(cmd.Context(), logger)
	}

	notifier := ctx.notifier()
	var unit dispatch.Archiver
	var remoteURL func(string) string
	if opts.Archive {
		unit, remoteURL, err = ctx.archiveUnit(logger, notifier)
		if err != nil {
			// Playback still goes ahead; the archive unit reports the failure.
			unit = unavailableArchiver{err: err}
		}
		if closer, ok := unit.(interface{ Close() error }); ok {
			defer closer.Close()
		}
	}

	purger := cachedir.NewPurger(cfg.Paths.CacheDir, cfg.Cache.MaxAgeDays, cfg.Cache.PurgeProbability, logger)
	d := dispatch.New(ctx.parser(), player.New(cfg.Player, logger), unit, logger,
		dispatch.WithPurger(purger),
		dispatch.WithNotifier(notifier),
	)
	result, err := d.Dispatch(cmd.Context(), raw)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if result.Process != nil {
		fmt.Fprintf(out, "Playing %s (pid %d)\n", result.URL, result.Process.PID)
	}
	if result.Archived && result.ArchiveErr == nil {
		fmt.Fprintln(out, describeOutcome(result.Outcome, remoteURL(result.Outcome.RemoteID)))
	}

	switch {
	case result.PlaybackErr != nil:
		return result.PlaybackErr
	case result.ArchiveErr != nil:
		return result.ArchiveErr
	}
	return nil
}

// archivingUnit owns the ledger handle for the lifetime of one dispatch.
type archivingUnit struct {
	*coordinator.Coordinator
	store ledger.Store
}

func (u archivingUnit) Close() error { return u.store.Close() }

func (c *commandContext) archiveUnit(logger *slog.Logger, notifier notifications.Service) (dispatch.Archiver, func(string) string, error) {
	store, err := c.openLedger()
	if err != nil {
		return nil, nil, err
	}
	arch, err := c.archiver(logger, nil)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	coord := coordinator.New(store, arch, coordinator.PolicyFromConfig(c.configValue().Archive), logger,
		coordinator.WithNotifier(notifier),
	)
	return archivingUnit{Coordinator: coord, store: store}, arch.RemoteURL, nil
}

type unavailableArchiver struct {
	err error
}

func (u unavailableArchiver) EnsureArchived(context.Context, uri.CanonicalURL) (coordinator.Outcome, error) {
	return coordinator.Outcome{}, u.err
}

func newPlayCommand(ctx *commandContext) *cobra.Command {
	var (
		start      time.Duration
		playerArgs []string
		update     bool
	)

	cmd := &cobra.Command{
		Use:   "play <url>",
		Short: "Play a URL without archiving it",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := ctx.targetURL(args[0])
			if err != nil {
				return err
			}
			logger := ctx.loggerFor(cmd.ErrOrStderr())
			if update {
				ctx.updateYtDlp(cmd.Context(), logger)
			}
			launcher := player.New(ctx.configValue().Player, logger, player.WithExtraArgs(playerArgs...))
			proc, err := launcher.Launch(cmd.Context(), url, uri.PlaybackOptions{Start: start})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Playing %s (pid %d)\n", url, proc.PID)
			return nil
		},
	}

	cmd.Flags().DurationVar(&start, "start", 0, "Start playback at this offset (e.g. 90s)")
	cmd.Flags().StringArrayVar(&playerArgs, "player-args", nil, "Extra argument for the player, after the configured ones (repeatable)")
	cmd.Flags().BoolVar(&update, "update-ytdlp", false, "Run yt-dlp's self-updater before playing")
	return cmd
}

func describeOutcome(outcome coordinator.Outcome, remoteURL string) string {
	switch outcome.Kind {
	case coordinator.AlreadyArchived:
		return "Already archived: " + remoteURL
	case coordinator.Submitted:
		return "Archived: " + remoteURL
	case coordinator.InProgress:
		return "Archive already in progress in another process"
	case coordinator.Failed:
		return fmt.Sprintf("Archive failed after %d attempt(s): %s", outcome.Attempts, outcome.Reason)
	default:
		return "Archive not attempted"
	}
}
