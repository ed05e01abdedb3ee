// Package services defines shared utilities consumed by the KV Store
// operations, the HTTP API and the CLI.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, collection names and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent run outcomes (failed vs rejected).
package services
