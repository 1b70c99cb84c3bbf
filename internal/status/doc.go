// Package status reports whether a URL has been archived. It reads the
// ledger and, when that has no record, asks the remote archive. It never
// writes.
package status
