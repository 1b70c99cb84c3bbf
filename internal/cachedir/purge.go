package cachedir

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/bitplane/yt-mpv/internal/logging"
)

const purgeLockName = ".purge.lock"

// Purger occasionally prunes the cache during normal use. Only one process
// purges at a time; the others skip instead of waiting.
type Purger struct {
	dir         string
	maxAge      time.Duration
	probability float64
	roll        func() float64
	logger      *slog.Logger
}

// NewPurger constructs a purger removing files older than maxAgeDays with
// the given per-call probability.
func NewPurger(dir string, maxAgeDays int, probability float64, logger *slog.Logger) *Purger {
	return &Purger{
		dir:         dir,
		maxAge:      time.Duration(maxAgeDays) * 24 * time.Hour,
		probability: probability,
		roll:        rand.Float64,
		logger:      logging.NewComponentLogger(logger, "cache"),
	}
}

// WithRoll replaces the random source (primarily for tests).
func (p *Purger) WithRoll(roll func() float64) *Purger {
	if roll != nil {
		p.roll = roll
	}
	return p
}

// MaybePurge prunes the cache when the dice say so and no other process is
// already purging. It reports whether a purge ran.
func (p *Purger) MaybePurge(ctx context.Context) (bool, Result, error) {
	if p == nil || p.probability <= 0 || p.roll() >= p.probability {
		return false, Result{}, nil
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return false, Result{}, fmt.Errorf("create cache dir: %w", err)
	}

	lock := flock.New(filepath.Join(p.dir, purgeLockName))
	locked, err := lock.TryLock()
	if err != nil {
		return false, Result{}, fmt.Errorf("acquire purge lock: %w", err)
	}
	if !locked {
		p.logger.Debug("cache purge already running elsewhere")
		return false, Result{}, nil
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			p.logger.Debug("release purge lock", logging.Error(err))
		}
	}()

	result, err := Prune(ctx, p.dir, p.maxAge, p.logger)
	return true, result, err
}
