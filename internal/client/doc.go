// Package client is the CLI's view of a running callpanel daemon.
//
// Client wraps the HTTP API and converts responses back into domain types,
// rejecting unknown status values. Heartbeat keeps a lease alive while an
// operator works a filter and stops on its own once the lease is lost.
// ReadModel and Poller give watch-style commands a versioned list snapshot
// that is replaced on every poll rather than patched locally.
package client
