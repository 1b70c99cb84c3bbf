package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bitplane/yt-mpv/internal/status"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check <url>",
		Short: "Report whether a URL has been archived",
		Long: "Prints the archive URL and exits 0 when the URL is archived. Exits 1 when it\n" +
			"is not archived or an archive is still in progress, 3 when the remote\n" +
			"archive could not be queried.",
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := ctx.targetURL(args[0])
			if err != nil {
				return err
			}
			logger := ctx.loggerFor(cmd.ErrOrStderr())

			store, err := ctx.openLedger()
			if err != nil {
				return err
			}
			defer store.Close()
			arch, err := ctx.archiver(logger, nil)
			if err != nil {
				return err
			}

			result, err := status.New(store, arch, logger).Check(cmd.Context(), url)
			if err != nil {
				return err
			}

			switch result.State {
			case status.Archived:
				fmt.Fprintln(cmd.OutOrStdout(), result.RemoteURL)
				return nil
			case status.InProgress:
				fmt.Fprintf(cmd.ErrOrStderr(), "Archive in progress for %s\n", url)
			default:
				msg := fmt.Sprintf("%s not found in %s", url, arch.Name())
				if result.Record != nil && result.Record.LastError != "" {
					msg += fmt.Sprintf(" (last attempt failed: %s)", result.Record.LastError)
				}
				fmt.Fprintln(cmd.ErrOrStderr(), msg)
			}
			return withExitCode(exitNegative, nil)
		},
	}
}
