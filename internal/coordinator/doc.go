// Package coordinator decides whether a URL needs archiving and drives the
// submission, recording every transition in the ledger.
//
// Claims are taken through a single ledger upsert so concurrent runs, in
// this process or others, converge on one submission. The submission itself
// runs with no ledger lock held. Transient failures are retried with capped
// exponential backoff; permanent ones fail the record at once.
package coordinator
