// Package server exposes the edit table over HTTP for the browser
// visualization and the CLI: paged table reads, row edits, CSV upload and
// download, backup/restore, history, websocket refresh events and
// Prometheus metrics.
//
// Every /api route requires the configured bearer token. Websocket clients
// that cannot set headers may pass it as the token query parameter.
package server
