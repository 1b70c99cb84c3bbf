// Package notifications tells the user how background archive work went.
//
// Events are rendered once and delivered through notify-send on the desktop
// and, when a topic URL is configured, to an ntfy server. Delivery failures
// are returned to the caller, which logs them; they never change an archive
// outcome.
package notifications
