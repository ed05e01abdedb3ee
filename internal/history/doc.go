// Package history journals kvedit write operations (uploads, row edits,
// backups, restores) in a SQLite database under the state directory so the
// outcome of past runs can be inspected after the banner is gone.
package history
