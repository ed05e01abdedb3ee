// Package upload implements the write paths of the edit table: CSV upload in
// replace or incremental mode, single row edits, CSV export and lookup
// backup/restore.
//
// Every write run holds a per-collection file lock, gets a run ID, optionally
// snapshots the collection, is journaled in the history store and ends with
// a visualization refresh whatever its outcome. User-facing failures are
// returned as *Failure so callers can show Message as an error banner.
package upload
