package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLedger(); err != nil {
		return err
	}
	if err := c.validateURI(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := c.validateWayback(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLedger() error {
	switch c.Ledger.Driver {
	case "sqlite", "bolt":
	default:
		return fmt.Errorf("ledger.driver must be sqlite or bolt, got %q", c.Ledger.Driver)
	}
	return nil
}

func (c *Config) validateURI() error {
	if len(c.URI.Schemes) == 0 && len(c.URI.LegacySchemes) == 0 {
		return errors.New("uri.schemes must register at least one scheme")
	}
	for scheme, target := range c.URI.LegacySchemes {
		if target != "http" && target != "https" {
			return fmt.Errorf("uri.legacy_schemes.%s must map to http or https, got %q", scheme, target)
		}
	}
	for _, scheme := range c.URI.Schemes {
		if scheme == "http" || scheme == "https" {
			return fmt.Errorf("uri.schemes cannot register %q", scheme)
		}
		if _, ok := c.URI.LegacySchemes[scheme]; ok {
			return fmt.Errorf("scheme %q is registered both as a wrapper and a legacy scheme", scheme)
		}
	}
	return nil
}

func (c *Config) validateArchive() error {
	switch c.Archive.Backend {
	case "internetarchive", "wayback":
	default:
		return fmt.Errorf("archive.backend must be internetarchive or wayback, got %q", c.Archive.Backend)
	}
	if c.Archive.MaxAttempts < 1 {
		return errors.New("archive.max_attempts must be >= 1")
	}
	if c.Archive.InitialBackoff < 0 || c.Archive.MaxBackoff < 0 {
		return errors.New("archive backoff values must be >= 0")
	}
	if c.Archive.MaxBackoff < c.Archive.InitialBackoff {
		return errors.New("archive.max_backoff must be >= archive.initial_backoff")
	}
	if c.Archive.StaleAfter <= 0 {
		return errors.New("archive.stale_after must be positive")
	}
	if c.Archive.SubmitTimeout < 0 {
		return errors.New("archive.submit_timeout must be >= 0")
	}
	if c.Archive.SubmitTimeout > 0 && c.Archive.SubmitTimeout > c.Archive.StaleAfter {
		return errors.New("archive.submit_timeout must not exceed archive.stale_after")
	}
	if strings.TrimSpace(c.InternetArchive.IdentifierPrefix) == "" {
		return errors.New("internet_archive.identifier_prefix must be set")
	}
	return nil
}

func (c *Config) validateWayback() error {
	if c.Wayback.PollInterval <= 0 {
		return errors.New("wayback.poll_interval must be positive")
	}
	if c.Wayback.PollTimeout < c.Wayback.PollInterval {
		return errors.New("wayback.poll_timeout must be >= wayback.poll_interval")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.MaxAgeDays < 1 {
		return errors.New("cache.max_age_days must be >= 1")
	}
	if c.Cache.PurgeProbability < 0 || c.Cache.PurgeProbability > 1 {
		return errors.New("cache.purge_probability must be between 0 and 1")
	}
	return nil
}
