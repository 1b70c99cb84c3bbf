package services

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	runIDKey    contextKey = "run_id"
	mediaURLKey contextKey = "media_url"
	unitKey     contextKey = "unit"
)

// NewRunID returns a fresh identifier for one invocation. The same value is
// stamped on log lines and stored as the ledger claim owner.
func NewRunID() string {
	return uuid.NewString()
}

// WithRunID annotates context with the invocation identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the invocation identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// EnsureRunID returns ctx carrying a run ID, generating one when absent.
func EnsureRunID(ctx context.Context) (context.Context, string) {
	if id, ok := RunIDFromContext(ctx); ok {
		return ctx, id
	}
	id := NewRunID()
	return WithRunID(ctx, id), id
}

// WithMediaURL annotates context with the canonical media URL being handled.
func WithMediaURL(ctx context.Context, url string) context.Context {
	if url == "" {
		return ctx
	}
	return context.WithValue(ctx, mediaURLKey, url)
}

// MediaURLFromContext returns the canonical media URL if present.
func MediaURLFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(mediaURLKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithUnit annotates context with the unit of work (playback or archive).
func WithUnit(ctx context.Context, unit string) context.Context {
	if unit == "" {
		return ctx
	}
	return context.WithValue(ctx, unitKey, unit)
}

// UnitFromContext returns the unit of work if present.
func UnitFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(unitKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
