package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeLedger(); err != nil {
		return err
	}
	c.normalizeURI()
	c.normalizePlayer()
	c.normalizeArchive()
	if err := c.normalizeInternetArchive(); err != nil {
		return err
	}
	c.normalizeWayback()
	c.normalizeDownloader()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLedger() error {
	c.Ledger.Driver = strings.ToLower(strings.TrimSpace(c.Ledger.Driver))
	if c.Ledger.Driver == "" {
		c.Ledger.Driver = defaultLedgerDriver
	}
	if strings.TrimSpace(c.Ledger.Path) == "" {
		name := defaultLedgerFile
		if c.Ledger.Driver == "bolt" {
			name = "ledger.bolt"
		}
		c.Ledger.Path = filepath.Join(c.Paths.DataDir, name)
	}
	var err error
	if c.Ledger.Path, err = expandPath(c.Ledger.Path); err != nil {
		return fmt.Errorf("ledger.path: %w", err)
	}
	if c.Ledger.LockTimeout <= 0 {
		c.Ledger.LockTimeout = defaultLedgerLockTimeout
	}
	return nil
}

func (c *Config) normalizeURI() {
	c.URI.Schemes = lowerTrimmed(c.URI.Schemes)
	legacy := make(map[string]string, len(c.URI.LegacySchemes))
	for scheme, target := range c.URI.LegacySchemes {
		scheme = strings.ToLower(strings.TrimSpace(scheme))
		target = strings.ToLower(strings.TrimSpace(target))
		if scheme == "" {
			continue
		}
		legacy[scheme] = target
	}
	c.URI.LegacySchemes = legacy
	c.URI.TrackingParams = lowerTrimmed(c.URI.TrackingParams)
}

func (c *Config) normalizePlayer() {
	c.Player.Binary = strings.TrimSpace(c.Player.Binary)
	if c.Player.Binary == "" {
		c.Player.Binary = defaultPlayerBinary
	}
}

func (c *Config) normalizeArchive() {
	c.Archive.Backend = strings.ToLower(strings.TrimSpace(c.Archive.Backend))
	if c.Archive.Backend == "" {
		c.Archive.Backend = defaultArchiveBackend
	}
}

func (c *Config) normalizeInternetArchive() error {
	ia := &c.InternetArchive
	if ia.AccessKey == "" {
		if value, ok := os.LookupEnv("IA_ACCESS_KEY"); ok {
			ia.AccessKey = value
		}
	}
	if ia.SecretKey == "" {
		if value, ok := os.LookupEnv("IA_SECRET_KEY"); ok {
			ia.SecretKey = value
		}
	}

	var err error
	if ia.CredentialsFile, err = expandPath(strings.TrimSpace(ia.CredentialsFile)); err != nil {
		return fmt.Errorf("internet_archive.credentials_file: %w", err)
	}
	if (ia.AccessKey == "" || ia.SecretKey == "") && ia.CredentialsFile != "" {
		values, err := godotenv.Read(ia.CredentialsFile)
		switch {
		case err == nil:
			if ia.AccessKey == "" {
				ia.AccessKey = values["IA_ACCESS_KEY"]
			}
			if ia.SecretKey == "" {
				ia.SecretKey = values["IA_SECRET_KEY"]
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("internet_archive.credentials_file: %w", err)
		}
	}
	ia.AccessKey = strings.TrimSpace(ia.AccessKey)
	ia.SecretKey = strings.TrimSpace(ia.SecretKey)

	ia.MetadataURL = trimURL(ia.MetadataURL, defaultIAMetadataURL)
	ia.S3URL = trimURL(ia.S3URL, defaultIAS3URL)
	ia.DetailsURL = trimURL(ia.DetailsURL, defaultIADetailsURL)
	ia.IdentifierPrefix = strings.TrimSpace(ia.IdentifierPrefix)
	if ia.IdentifierPrefix == "" {
		ia.IdentifierPrefix = defaultIAIdentifierPrefix
	}
	ia.Username = strings.TrimSpace(ia.Username)
	if ia.Username == "" {
		ia.Username = currentUsername()
	}
	if strings.TrimSpace(ia.Collection) == "" {
		ia.Collection = defaultIACollection
	}
	if strings.TrimSpace(ia.MediaType) == "" {
		ia.MediaType = defaultIAMediaType
	}
	if ia.RequestTimeout <= 0 {
		ia.RequestTimeout = defaultIARequestTimeout
	}
	return nil
}

func (c *Config) normalizeWayback() {
	c.Wayback.BaseURL = trimURL(c.Wayback.BaseURL, defaultWaybackBaseURL)
	c.Wayback.AvailabilityURL = trimURL(c.Wayback.AvailabilityURL, defaultWaybackAvailabilityURL)
	if c.Wayback.RequestTimeout <= 0 {
		c.Wayback.RequestTimeout = defaultWaybackRequestTimeout
	}
}

func (c *Config) normalizeDownloader() {
	c.Downloader.YtDlpBinary = strings.TrimSpace(c.Downloader.YtDlpBinary)
	if c.Downloader.YtDlpBinary == "" {
		c.Downloader.YtDlpBinary = defaultYtDlpBinary
	}
	c.Downloader.Format = strings.TrimSpace(c.Downloader.Format)
	if c.Downloader.Format == "" {
		c.Downloader.Format = defaultDownloadFormat
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NotifySendBinary = strings.TrimSpace(c.Notifications.NotifySendBinary)
	if c.Notifications.NotifySendBinary == "" {
		c.Notifications.NotifySendBinary = defaultNotifySendBinary
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lowerTrimmed(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}

func trimURL(value, fallback string) string {
	value = strings.TrimRight(strings.TrimSpace(value), "/")
	if value == "" {
		return fallback
	}
	return value
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && strings.TrimSpace(u.Username) != "" {
		return u.Username
	}
	if value, ok := os.LookupEnv("USER"); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return "anonymous"
}
