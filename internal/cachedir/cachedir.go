package cachedir

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"

	"github.com/bitplane/yt-mpv/internal/logging"
)

// File describes one cached download.
type File struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Age returns how long ago the file was last modified.
func (f File) Age(now time.Time) time.Duration {
	return now.Sub(f.ModTime)
}

// Stats summarizes the cache contents.
type Stats struct {
	Dir       string
	Files     []File
	TotalSize int64
}

// Result reports what a cleanup removed.
type Result struct {
	Removed    int
	BytesFreed int64
}

// Scan lists regular files in dir, oldest first. Dotfiles such as the purge
// lock are skipped. A missing directory is empty.
func Scan(dir string) ([]File, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache dir: %w", err)
	}

	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, File{
			Path:    filepath.Join(dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.Before(files[j].ModTime)
	})
	return files, nil
}

// Info collects cache statistics.
func Info(dir string) (Stats, error) {
	files, err := Scan(dir)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Dir: dir, Files: files}
	for _, f := range files {
		stats.TotalSize += f.Size
	}
	return stats, nil
}

// Prune removes files older than maxAge.
func Prune(ctx context.Context, dir string, maxAge time.Duration, logger *slog.Logger) (Result, error) {
	cutoff := time.Now().Add(-maxAge)
	return remove(ctx, dir, logger, func(f File) bool { return f.ModTime.Before(cutoff) })
}

// Clear removes every cached file.
func Clear(ctx context.Context, dir string, logger *slog.Logger) (Result, error) {
	return remove(ctx, dir, logger, func(File) bool { return true })
}

func remove(ctx context.Context, dir string, logger *slog.Logger, match func(File) bool) (Result, error) {
	logger = logging.NewComponentLogger(logger, "cache")
	files, err := Scan(dir)
	if err != nil {
		return Result{}, err
	}

	var (
		result Result
		errs   *multierror.Error
	)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			errs = multierror.Append(errs, err)
			break
		}
		if !match(f) {
			continue
		}
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = multierror.Append(errs, fmt.Errorf("remove %s: %w", f.Path, err))
			continue
		}
		result.Removed++
		result.BytesFreed += f.Size
		logger.Debug("removed cache file", logging.String("path", f.Path))
	}

	if result.Removed > 0 {
		logger.Info("cache cleaned",
			logging.Int("removed", result.Removed),
			logging.String("freed", humanize.IBytes(uint64(result.BytesFreed))),
		)
	}
	if errs != nil {
		errs.ErrorFormat = func(list []error) string {
			parts := make([]string, len(list))
			for i, err := range list {
				parts[i] = err.Error()
			}
			return fmt.Sprintf("%d cache files could not be removed: %s", len(list), strings.Join(parts, "; "))
		}
	}
	return result, errs.ErrorOrNil()
}

// Summary renders stats the way `yt-mpv cache info` prints them, listing at
// most maxFiles of the oldest entries.
func Summary(stats Stats, maxFiles int, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cache directory: %s\n", stats.Dir)
	fmt.Fprintf(&b, "Files: %d\n", len(stats.Files))
	fmt.Fprintf(&b, "Total size: %s\n", humanize.IBytes(uint64(stats.TotalSize)))
	if len(stats.Files) == 0 {
		return b.String()
	}
	b.WriteString("\nOldest files:\n")
	for i, f := range stats.Files {
		if i == maxFiles {
			fmt.Fprintf(&b, "  ... and %d more files\n", len(stats.Files)-maxFiles)
			break
		}
		fmt.Fprintf(&b, "  %s - %s, %s\n", filepath.Base(f.Path), humanize.IBytes(uint64(f.Size)), humanize.RelTime(f.ModTime, now, "old", "from now"))
	}
	return b.String()
}
