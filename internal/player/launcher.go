package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/bitplane/yt-mpv/internal/config"
	"github.com/bitplane/yt-mpv/internal/logging"
	"github.com/bitplane/yt-mpv/internal/uri"
)

// Process is a handle to a started player.
type Process struct {
	PID    int
	Binary string
	Args   []string
}

// Launcher starts the external media player.
type Launcher struct {
	binary   string
	args     []string
	logger   *slog.Logger
	lookPath func(string) (string, error)
}

// Option configures the launcher.
type Option func(*Launcher)

// WithLookPath overrides binary resolution (primarily for tests).
func WithLookPath(fn func(string) (string, error)) Option {
	return func(l *Launcher) {
		if fn != nil {
			l.lookPath = fn
		}
	}
}

// WithExtraArgs appends arguments after the configured ones.
func WithExtraArgs(args ...string) Option {
	return func(l *Launcher) {
		for _, arg := range args {
			if arg = strings.TrimSpace(arg); arg != "" {
				l.args = append(l.args, arg)
			}
		}
	}
}

// New constructs a launcher for the configured player.
func New(cfg config.Player, logger *slog.Logger, opts ...Option) *Launcher {
	l := &Launcher{
		binary:   strings.TrimSpace(cfg.Binary),
		args:     append([]string(nil), cfg.Args...),
		logger:   logging.NewComponentLogger(logger, "player"),
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Args builds the player argument list for url.
func (l *Launcher) Args(url uri.CanonicalURL, start time.Duration) []string {
	args := append([]string(nil), l.args...)
	if start > 0 {
		args = append(args, fmt.Sprintf("--start=%d", int64(math.Round(start.Seconds()))))
	}
	return append(args, string(url))
}

// Launch starts the player in its own session and returns without waiting
// for it to exit. The child is reaped in the background.
func (l *Launcher) Launch(ctx context.Context, url uri.CanonicalURL, opts uri.PlaybackOptions) (*Process, error) {
	start := opts.Start
	logger := logging.WithContext(ctx, l.logger)
	if l.binary == "" {
		return nil, &LaunchError{Kind: PlayerNotFound, Binary: l.binary, Err: errors.New("no player configured")}
	}
	resolved, err := l.lookPath(l.binary)
	if err != nil {
		return nil, &LaunchError{Kind: PlayerNotFound, Binary: l.binary, Err: err}
	}

	args := l.Args(url, start)
	// Not CommandContext: the player outlives this invocation.
	cmd := exec.Command(resolved, args...) //nolint:gosec
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Env = os.Environ()
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Kind: SpawnFailed, Binary: l.binary, Err: err}
	}

	proc := &Process{PID: cmd.Process.Pid, Binary: resolved, Args: args}
	logger.Info("player started",
		logging.String("binary", resolved),
		logging.Int("pid", proc.PID),
		logging.Duration("start", start),
	)
	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Debug("player exited", logging.Int("pid", proc.PID), logging.Error(err))
			return
		}
		logger.Debug("player exited", logging.Int("pid", proc.PID))
	}()
	return proc, nil
}
