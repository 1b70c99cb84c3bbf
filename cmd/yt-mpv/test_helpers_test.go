package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/bitplane/yt-mpv/internal/archive"
	"github.com/bitplane/yt-mpv/internal/config"
	"github.com/bitplane/yt-mpv/internal/ledger"
	"github.com/bitplane/yt-mpv/internal/testsupport"
	"github.com/bitplane/yt-mpv/internal/uri"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	archiver   *testsupport.FakeArchiver
}

func setupCLITestEnv(t *testing.T, mutate ...func(*config.Config)) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("IA_ACCESS_KEY", "")
	t.Setenv("IA_SECRET_KEY", "")
	for _, fn := range mutate {
		fn(cfg)
	}

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	fake := &testsupport.FakeArchiver{}
	previous := newArchiver
	newArchiver = func(*config.Config, *slog.Logger, io.Writer) (archive.Archiver, error) {
		return fake, nil
	}
	t.Cleanup(func() { newArchiver = previous })

	return &cliTestEnv{cfg: cfg, configPath: configPath, archiver: fake}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"--config", e.configPath}, args...), &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

// ledger opens the test ledger; call it only between CLI runs so the bolt
// driver's file lock is free.
func (e *cliTestEnv) ledger(t *testing.T) ledger.Store {
	t.Helper()
	return testsupport.MustOpenLedger(t, e.cfg)
}

func seedSucceeded(t *testing.T, store ledger.Store, url uri.CanonicalURL, remoteID string) {
	t.Helper()
	testsupport.SeedRecord(t, store, url, ledger.Record{Status: ledger.StatusInProgress, Attempts: 1})
	testsupport.SeedRecord(t, store, url, ledger.Record{Status: ledger.StatusSucceeded, Attempts: 1, RemoteID: remoteID})
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func requireCode(t *testing.T, got, want int, stderr string) {
	t.Helper()
	if got != want {
		t.Fatalf("exit code = %d, want %d (stderr: %s)", got, want, stderr)
	}
}
