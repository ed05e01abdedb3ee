// Package kvstore wraps the Splunk KV Store REST surface used by kvedit.
//
// The Client speaks the namespaced splunkd endpoints
// (servicesNS/{owner}/{app}/storage/collections/...) with the CSRF and
// session headers the dashboard runtime sends, and exposes the handful of
// operations the table, upload and export flows need: list, fetch, update,
// insert, batch save and delete-all on collection data, schema discovery from
// the collection config, and oneshot search jobs for lookup backup/restore.
//
// Non-2xx responses are returned as *StatusError carrying the Splunk
// messages so callers can log the server's own explanation.
package kvstore
