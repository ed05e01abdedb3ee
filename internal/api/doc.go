// Package api defines the wire-format types of the kvedit HTTP API. The
// server renders them and the CLI client decodes them, so neither side
// depends on the other's internals.
//
// DTOs use camelCase JSON tags for the browser visualization. Timestamps use
// RFC3339 with milliseconds.
package api
