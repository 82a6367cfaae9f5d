// Package store implements the durable local cache backing nestsync: an
// SQLite database holding activity records keyed by their stable remote id,
// each with a processed flag, plus cached auth tokens keyed by login.
//
// The upsert contract is insert-or-ignore on id. A record re-fetched from an
// overlapping date window never overwrites the stored row, so processing
// state survives repeated runs. Records are only ever removed by an explicit
// per-student force-clear.
package store
