package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bitplane/yt-mpv/internal/ledger"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the archive ledger",
	}
	ledgerCmd.AddCommand(newLedgerListCommand(ctx))
	ledgerCmd.AddCommand(newLedgerShowCommand(ctx))
	return ledgerCmd
}

func newLedgerListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archive records, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var want ledger.Status
			if statusFilter != "" {
				parsed, ok := ledger.ParseStatus(strings.ReplaceAll(statusFilter, "-", "_"))
				if !ok {
					return usageError("unknown status %q", statusFilter)
				}
				want = parsed
			}

			store, err := ctx.openLedger()
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			shown := records[:0]
			for _, record := range records {
				if want == "" || record.Status == want {
					shown = append(shown, record)
				}
			}
			if len(shown) == 0 {
				fmt.Fprintln(out, "No ledger records")
				return nil
			}
			fmt.Fprintln(out, renderRecords(shown, shouldColorize(out), time.Now()))
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show records with this status (not_started, in_progress, succeeded, failed)")
	return cmd
}

func newLedgerShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <url>",
		Short: "Show the ledger record for a URL",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := ctx.targetURL(args[0])
			if err != nil {
				return err
			}
			store, err := ctx.openLedger()
			if err != nil {
				return err
			}
			defer store.Close()

			record, err := store.Get(cmd.Context(), url)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if record == nil {
				fmt.Fprintf(out, "No ledger record for %s\n", url)
				return withExitCode(exitNegative, nil)
			}
			fmt.Fprintf(out, "URL:          %s\n", record.URL)
			fmt.Fprintf(out, "Status:       %s\n", statusLabel(record.Status))
			fmt.Fprintf(out, "Attempts:     %d\n", record.Attempts)
			if record.RemoteID != "" {
				fmt.Fprintf(out, "Remote ID:    %s\n", record.RemoteID)
			}
			if !record.LastAttemptAt.IsZero() {
				fmt.Fprintf(out, "Last attempt: %s\n", record.LastAttemptAt.Local().Format(time.RFC3339))
			}
			if record.LastError != "" {
				fmt.Fprintf(out, "Last error:   %s\n", record.LastError)
			}
			fmt.Fprintf(out, "Created:      %s\n", record.CreatedAt.Local().Format(time.RFC3339))
			fmt.Fprintf(out, "Updated:      %s\n", record.UpdatedAt.Local().Format(time.RFC3339))
			return nil
		},
	}
}
