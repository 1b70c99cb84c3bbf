package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bitplane/yt-mpv/internal/cachedir"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clean the download cache",
	}

	cacheCmd.AddCommand(newCacheInfoCommand(ctx))
	cacheCmd.AddCommand(newCacheCleanCommand(ctx))

	return cacheCmd
}

func newCacheInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show download cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := cachedir.Info(ctx.configValue().Paths.CacheDir)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), cachedir.Summary(stats, 10, time.Now()))
			return nil
		},
	}
}

func newCacheCleanCommand(ctx *commandContext) *cobra.Command {
	var days int
	var all bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove old downloads from the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			if cmd.Flags().Changed("days") && all {
				return usageError("--days and --all are mutually exclusive")
			}
			if !cmd.Flags().Changed("days") {
				days = cfg.Cache.MaxAgeDays
			}
			if days < 0 {
				return usageError("--days must be >= 0")
			}
			logger := ctx.loggerFor(cmd.ErrOrStderr())
			dir := cfg.Paths.CacheDir

			var (
				result cachedir.Result
				err    error
			)
			if all {
				result, err = cachedir.Clear(cmd.Context(), dir, logger)
			} else {
				result, err = cachedir.Prune(cmd.Context(), dir, time.Duration(days)*24*time.Hour, logger)
			}

			out := cmd.OutOrStdout()
			switch {
			case result.Removed > 0 && all:
				fmt.Fprintf(out, "Removed all %d files (%s)\n", result.Removed, humanize.IBytes(uint64(result.BytesFreed)))
			case result.Removed > 0:
				fmt.Fprintf(out, "Removed %d files (%s)\n", result.Removed, humanize.IBytes(uint64(result.BytesFreed)))
			case all:
				fmt.Fprintln(out, "No cache files found")
			default:
				fmt.Fprintf(out, "No files older than %d days found\n", days)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Remove files older than this many days (default: cache.max_age_days)")
	cmd.Flags().BoolVar(&all, "all", false, "Remove every cached file")
	return cmd
}
