// Package sync pulls activity feed records into the local store.
//
// A run authenticates against the feed, resolves exactly one student from
// a name filter, and walks the activity pages for a date window. Records
// are inserted idempotently, so overlapping windows accumulate and repeat
// runs change nothing. Videos that have not finished remote transcoding
// are skipped and left for a later run.
package sync
