// Package snapshot keeps local copies of a collection taken right before a
// destructive change.
//
// Snapshots are CSV documents compressed with the snappy framing format and
// named {collection}-{UTC timestamp}.csv.sz. The Manager prunes old
// snapshots per collection, refuses to write when the filesystem is short on
// space, and optionally archives every snapshot to an S3 bucket.
package snapshot
