// Package logging assembles structured slog loggers used across yt-mpv.
//
// It owns the console and JSON handlers, level and output plumbing, and
// context-aware helpers that tag log lines with the run ID, the unit of work
// and the canonical media URL. The URI handler is launched by the desktop
// without a terminal, so NewFromConfig writes to the log file and only mirrors
// to stderr for interactive commands.
package logging
