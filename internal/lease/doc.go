// Package lease grants time-limited exclusive access to a record.
//
// A lease is a row keyed by record id. Holders renew it on a heartbeat well
// inside the TTL; anyone may sweep leases whose expiry has passed. Sweeping is
// lazy by default: the workflow engine sweeps at the start of every
// transaction, and an optional background Sweeper does the same on a timer.
package lease
