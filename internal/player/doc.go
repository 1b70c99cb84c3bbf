// Package player starts the external media player for a canonical URL.
//
// The player runs detached and is never waited on by the caller; a failure
// to start it is reported as a LaunchError and never retried.
package player
