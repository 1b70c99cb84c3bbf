// Package dispatch handles a single handler invocation. It parses the URI,
// then starts the player and the archive coordinator side by side. Neither
// unit waits on or cancels the other.
package dispatch
