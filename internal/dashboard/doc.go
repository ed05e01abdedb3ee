// Package dashboard connects kvedit to the browser dashboard hosting the
// editable table.
//
// The Bridge shares one refresh-capable API handle between the toolbar
// RefreshButton and the table operations, Banner carries the transient
// messages the table shows, and Hub pushes refresh and banner events to
// connected browsers over websockets.
package dashboard
