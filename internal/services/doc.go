// Package services holds small cross-cutting helpers shared by the URI
// handler, the archive coordinator and the CLI.
//
// Context helpers stamp the invocation run ID, the canonical media URL and
// the unit of work (playback or archive) so log lines emitted from either
// concurrent unit can be correlated after the fact.
package services
