// Command kvedit views and edits a Splunk KV Store collection: it pages and
// edits rows, uploads CSV files in replace or incremental mode, downloads
// the collection and serves the HTTP API the dashboard table talks to.
package main
