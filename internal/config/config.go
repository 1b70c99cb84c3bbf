package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	CacheDir string `toml:"cache_dir"`
	LogDir   string `toml:"log_dir"`
}

// Ledger selects and configures the archive ledger store.
type Ledger struct {
	Driver      string `toml:"driver"`       // sqlite or bolt
	Path        string `toml:"path"`         // Default: <data_dir>/ledger.db
	LockTimeout int    `toml:"lock_timeout"` // seconds
}

// URI contains the registered handler schemes and canonicalization rules.
type URI struct {
	// Schemes carry the target in a u= or url= query parameter.
	Schemes []string `toml:"schemes"`
	// LegacySchemes map directly onto the target URL scheme, e.g. x-yt-mpvs -> https.
	LegacySchemes  map[string]string `toml:"legacy_schemes"`
	TrackingParams []string          `toml:"tracking_params"`
}

// Player contains configuration for the external media player.
type Player struct {
	Binary string   `toml:"binary"`
	Args   []string `toml:"args"`
}

// Archive contains archive coordination settings shared by all backends.
type Archive struct {
	Backend        string `toml:"backend"` // internetarchive or wayback
	MaxAttempts    int    `toml:"max_attempts"`
	InitialBackoff int    `toml:"initial_backoff"` // seconds
	MaxBackoff     int    `toml:"max_backoff"`     // seconds
	StaleAfter     int    `toml:"stale_after"`     // seconds
	SubmitTimeout  int    `toml:"submit_timeout"`  // seconds, 0 disables
}

// InternetArchive contains archive.org item upload settings.
type InternetArchive struct {
	AccessKey        string `toml:"access_key"`
	SecretKey        string `toml:"secret_key"`
	CredentialsFile  string `toml:"credentials_file"`
	MetadataURL      string `toml:"metadata_url"`
	S3URL            string `toml:"s3_url"`
	DetailsURL       string `toml:"details_url"`
	IdentifierPrefix string `toml:"identifier_prefix"`
	Username         string `toml:"username"`
	Collection       string `toml:"collection"`
	MediaType        string `toml:"mediatype"`
	KeepFiles        bool   `toml:"keep_files"`
	RequestTimeout   int    `toml:"request_timeout"` // seconds, metadata queries only
}

// Wayback contains Save Page Now settings.
type Wayback struct {
	BaseURL         string `toml:"base_url"`
	AvailabilityURL string `toml:"availability_url"`
	PollInterval    int    `toml:"poll_interval"` // seconds
	PollTimeout     int    `toml:"poll_timeout"`  // seconds
	RequestTimeout  int    `toml:"request_timeout"`
}

// Downloader contains yt-dlp settings used before an item upload.
type Downloader struct {
	YtDlpBinary string `toml:"yt_dlp_binary"`
	Format      string `toml:"format"`
	Timeout     int    `toml:"timeout"` // seconds, 0 disables
	SelfUpdate  bool   `toml:"self_update"`
}

// Cache contains download cache housekeeping settings.
type Cache struct {
	MaxAgeDays       int     `toml:"max_age_days"`
	PurgeProbability float64 `toml:"purge_probability"`
}

// Notifications contains desktop and ntfy notification settings.
type Notifications struct {
	Desktop          bool   `toml:"desktop"`
	NotifySendBinary string `toml:"notify_send_binary"`
	NtfyTopic        string `toml:"ntfy_topic"`
	RequestTimeout   int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for yt-mpv.
//
// Configuration sections by subsystem:
//   - Paths: data, cache and log directories
//   - Ledger: archive ledger driver and location
//   - URI: handler schemes and tracking parameter denylist
//   - Player: media player binary and arguments
//   - Archive: retry, backoff and staleness policy
//   - InternetArchive / Wayback: remote archive backends
//   - Downloader: yt-dlp invocation for item uploads
//   - Cache: download cache pruning
//   - Notifications: notify-send and ntfy
//   - Logging: log format and level
type Config struct {
	Paths           Paths           `toml:"paths"`
	Ledger          Ledger          `toml:"ledger"`
	URI             URI             `toml:"uri"`
	Player          Player          `toml:"player"`
	Archive         Archive         `toml:"archive"`
	InternetArchive InternetArchive `toml:"internet_archive"`
	Wayback         Wayback         `toml:"wayback"`
	Downloader      Downloader      `toml:"downloader"`
	Cache           Cache           `toml:"cache"`
	Notifications   Notifications   `toml:"notifications"`
	Logging         Logging         `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/yt-mpv/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("yt-mpv.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data, cache and log directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.CacheDir, c.Paths.LogDir, filepath.Dir(c.Ledger.Path)}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StaleAfterDuration returns the staleness window for in-progress ledger records.
func (a Archive) StaleAfterDuration() time.Duration {
	return time.Duration(a.StaleAfter) * time.Second
}

// Backoff returns the initial and maximum retry delays.
func (a Archive) Backoff() (initial, maximum time.Duration) {
	return time.Duration(a.InitialBackoff) * time.Second, time.Duration(a.MaxBackoff) * time.Second
}

// SubmitTimeoutDuration returns the per-attempt submission timeout, zero when unbounded.
func (a Archive) SubmitTimeoutDuration() time.Duration {
	return time.Duration(a.SubmitTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// ErrConfigExists is returned by CreateSample when the target exists and
// overwrite is false.
var ErrConfigExists = errors.New("config file already exists")

// CreateSample writes the sample configuration to path, creating its
// directory. An existing file is only replaced when overwrite is set.
func CreateSample(path string, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
		return fmt.Errorf("write sample config: %w", err)
	}
	if _, err := file.WriteString(sampleConfig); err != nil {
		_ = file.Close()
		return fmt.Errorf("write sample config: %w", err)
	}
	return file.Close()
}
