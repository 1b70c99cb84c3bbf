package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bitplane/yt-mpv/internal/coordinator"
)

func newArchiveCommand(ctx *commandContext) *cobra.Command {
	var (
		noProgress bool
		update     bool
	)

	cmd := &cobra.Command{
		Use:   "archive <url>",
		Short: "Archive a URL in the foreground",
		Long: "Runs the same archive flow as the URI handler and waits for it. Exits 0 when\n" +
			"the URL is archived, 1 when another process is archiving it and 7 when the\n" +
			"attempt failed.",
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := ctx.targetURL(args[0])
			if err != nil {
				return err
			}
			cfg := ctx.configValue()
			logger := ctx.loggerFor(cmd.ErrOrStderr())
			if update {
				ctx.updateYtDlp(cmd.Context(), logger)
			}

			store, err := ctx.openLedger()
			if err != nil {
				return err
			}
			defer store.Close()

			var progress io.Writer
			if !noProgress && shouldColorize(cmd.ErrOrStderr()) {
				progress = cmd.ErrOrStderr()
			}
			arch, err := ctx.archiver(logger, progress)
			if err != nil {
				return err
			}

			coord := coordinator.New(store, arch, coordinator.PolicyFromConfig(cfg.Archive), logger,
				coordinator.WithNotifier(ctx.notifier()),
			)
			outcome, err := coord.EnsureArchived(cmd.Context(), url)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), describeOutcome(outcome, arch.RemoteURL(outcome.RemoteID)))
			switch outcome.Kind {
			case coordinator.InProgress:
				return withExitCode(exitNegative, nil)
			case coordinator.Failed:
				return withExitCode(exitArchiveFailed, nil)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Do not draw an upload progress bar")
	cmd.Flags().BoolVar(&update, "update-ytdlp", false, "Run yt-dlp's self-updater before archiving")
	return cmd
}
