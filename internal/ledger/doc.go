// Package ledger persists one archive record per canonical media URL and is
// the single point of coordination between concurrent handler invocations.
//
// Two drivers implement Store. The SQLite driver (default) takes a
// BEGIN IMMEDIATE write lock for every Upsert, so a read-modify-write never
// interleaves with another process. The bbolt driver opens the file per
// operation because bbolt holds an exclusive flock for as long as the
// database is open.
//
// Upsert passes the current record to a Mutator and writes whatever it
// returns. Mutators may run more than once when the database is busy, so they
// must not have side effects beyond capturing what they observed. Every write
// is checked against the status transition table; records never move out of
// Succeeded.
//
// Schema changes bump schemaVersion in schema.go. An older file is reported
// as corrupt rather than migrated in place.
package ledger
