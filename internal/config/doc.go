// Package config loads, normalizes, and validates kvedit configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// KVEDIT_SPLUNK_TOKEN. The Config type centralizes every knob the CLI and the
// HTTP server need, so the splunkd connection, the edited collection and the
// upload policy are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical upload modes, and clear validation errors.
package config
