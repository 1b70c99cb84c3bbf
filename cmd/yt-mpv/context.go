package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/bitplane/yt-mpv/internal/archive"
	"github.com/bitplane/yt-mpv/internal/config"
	"github.com/bitplane/yt-mpv/internal/ledger"
	"github.com/bitplane/yt-mpv/internal/logging"
	"github.com/bitplane/yt-mpv/internal/notifications"
	"github.com/bitplane/yt-mpv/internal/uri"
)

// newArchiver builds the configured backend. Tests replace it.
var newArchiver = archive.New

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	if cfg == nil {
		defaults := config.Default()
		return &defaults
	}
	return cfg
}

// loggerFor returns the shared logger. Log lines are mirrored to stderr only
// when it is a terminal; the URI handler runs without one.
func (c *commandContext) loggerFor(stderr io.Writer) *slog.Logger {
	c.loggerOnce.Do(func() {
		logger, err := logging.NewFromConfig(c.configValue(), shouldColorize(stderr))
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging disabled: %v\n", err)
			logger = logging.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) parser() *uri.Parser {
	cfg := c.configValue()
	return uri.NewParser(uri.Options{
		Schemes:        cfg.URI.Schemes,
		LegacySchemes:  cfg.URI.LegacySchemes,
		TrackingParams: cfg.URI.TrackingParams,
	})
}

func (c *commandContext) openLedger() (ledger.Store, error) {
	return ledger.Open(c.configValue())
}

func (c *commandContext) archiver(logger *slog.Logger, progress io.Writer) (archive.Archiver, error) {
	return newArchiver(c.configValue(), logger, progress)
}

// updateYtDlp runs yt-dlp's self-updater. A failure is logged and never
// stops the caller.
func (c *commandContext) updateYtDlp(ctx context.Context, logger *slog.Logger) {
	cfg := c.configValue().Downloader
	downloader, err := archive.NewDownloader(cfg.YtDlpBinary, cfg.Format, cfg.Timeout)
	var status string
	if err == nil {
		status, err = downloader.SelfUpdate(ctx)
	}
	if err != nil {
		logging.WarnWithContext(logger, "yt-dlp update failed", "ytdlp.update_failed",
			logging.String("binary", cfg.YtDlpBinary),
			logging.Error(err),
		)
		return
	}
	logger.Info("yt-dlp updated", logging.String("status", status))
}

func (c *commandContext) notifier() notifications.Service {
	return notifications.NewService(c.configValue())
}

// targetURL accepts either a plain media URL or a handler URI and returns
// the canonical form.
func (c *commandContext) targetURL(raw string) (uri.CanonicalURL, error) {
	p := c.parser()
	if p.Handles(raw) {
		url, _, err := p.Parse(raw)
		return url, err
	}
	return p.Canonicalize(raw)
}
