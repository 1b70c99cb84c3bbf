// Package config loads, normalizes, and validates yt-mpv configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// IA_ACCESS_KEY and IA_SECRET_KEY. The Config type centralizes every knob the
// URI handler and CLI need: the ledger location, the registered schemes, the
// player command line and the archive retry policy.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
