// Package records converts between CSV files and KV Store records and holds
// the field checks the upload workflow applies before writing.
package records
