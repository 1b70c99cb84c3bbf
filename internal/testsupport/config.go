package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bitplane/yt-mpv/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Notifications are disabled and retry backoff is zero so tests never sleep.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.CacheDir = filepath.Join(base, "cache")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Ledger.Path = filepath.Join(base, "data", "ledger.db")
	cfgVal.Ledger.LockTimeout = 2
	cfgVal.Archive.InitialBackoff = 0
	cfgVal.Archive.MaxBackoff = 0
	cfgVal.InternetArchive.Username = "tester"
	cfgVal.InternetArchive.CredentialsFile = ""
	cfgVal.Notifications.Desktop = false
	cfgVal.Cache.PurgeProbability = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithLedgerDriver switches the ledger driver and matching file name.
func WithLedgerDriver(driver string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ledger.Driver = driver
		name := "ledger.db"
		if driver == "bolt" {
			name = "ledger.bolt"
		}
		b.cfg.Ledger.Path = filepath.Join(b.baseDir, "data", name)
	}
}

// WithCredentials sets Internet Archive keys on the test config.
func WithCredentials(access, secret string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.InternetArchive.AccessKey = access
		b.cfg.InternetArchive.SecretKey = secret
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default yt-mpv external
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"mpv", "yt-dlp"}
		}
		for _, name := range names {
			WriteStub(b.t, b.baseDir, name, "#!/bin/sh\nexit 0\n")
		}
	}
}

// WriteStub writes an executable script named name into <baseDir>/bin and
// makes sure that directory is first on PATH for the rest of the test.
func WriteStub(t testing.TB, baseDir, name, script string) string {
	t.Helper()

	binDir := filepath.Join(baseDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(binDir, name)
	if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}

	oldPath := os.Getenv("PATH")
	if entries := filepath.SplitList(oldPath); len(entries) == 0 || entries[0] != binDir {
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			t.Fatalf("set PATH: %v", err)
		}
		t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
	return target
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
