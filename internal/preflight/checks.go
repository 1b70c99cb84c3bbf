package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bitplane/yt-mpv/internal/config"
	"github.com/bitplane/yt-mpv/internal/deps"
	"github.com/bitplane/yt-mpv/internal/ledger"
)

// CheckEndpoint verifies that an archive service answers HTTP requests. Any
// response below 500 counts as reachable; authentication is not exercised.
func CheckEndpoint(ctx context.Context, name, endpoint string) Result {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, endpoint, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("request failed (%v)", err)}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Detail: fmt.Sprintf("server error (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", endpoint)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckLedger opens the configured ledger and runs its integrity check.
func CheckLedger(ctx context.Context, cfg *config.Config) Result {
	const name = "Ledger"

	store, err := ledger.Open(cfg)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.Ledger.Path, err)}
	}
	defer store.Close()

	if err := store.CheckHealth(ctx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.Ledger.Path, err)}
	}
	records, err := store.List(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.Ledger.Path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s, %d records)", cfg.Ledger.Path, cfg.Ledger.Driver, len(records))}
}

// CheckCredentials reports whether the selected archive backend has the keys
// it needs. Wayback captures work anonymously, with lower rate limits.
func CheckCredentials(cfg *config.Config) Result {
	const name = "Archive credentials"

	hasKeys := cfg.InternetArchive.AccessKey != "" && cfg.InternetArchive.SecretKey != ""
	switch {
	case hasKeys:
		return Result{Name: name, Passed: true, Detail: "configured"}
	case cfg.Archive.Backend == "wayback":
		return Result{Name: name, Passed: true, Detail: "not configured (anonymous captures)"}
	case cfg.InternetArchive.CredentialsFile != "":
		return Result{Name: name, Detail: fmt.Sprintf("missing; set IA_ACCESS_KEY and IA_SECRET_KEY in %s", cfg.InternetArchive.CredentialsFile)}
	default:
		return Result{Name: name, Detail: "missing; set IA_ACCESS_KEY and IA_SECRET_KEY"}
	}
}

// CheckSystemDeps evaluates the external programs needed for the given config.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "mpv",
			Command:     cfg.Player.Binary,
			Description: "Required for playback",
			VersionArgs: []string{"--version"},
		},
		{
			Name:        "yt-dlp",
			Command:     cfg.Downloader.YtDlpBinary,
			Description: "Required by mpv for streaming and for item uploads",
			VersionArgs: []string{"--version"},
		},
	}
	if cfg.Notifications.Desktop {
		requirements = append(requirements, deps.Requirement{
			Name:        "notify-send",
			Command:     cfg.Notifications.NotifySendBinary,
			Description: "Desktop notifications",
			Optional:    true,
		})
	}
	return deps.CheckBinaries(requirements)
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "request timed out"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Sprintf("cannot resolve %s", dnsErr.Name)
	}
	return err.Error()
}
