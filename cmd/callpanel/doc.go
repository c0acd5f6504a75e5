// Command callpanel is the operator CLI for the callpanel daemon.
//
// It lists and inspects records, starts and finishes filters, cancels
// records, keeps a lease alive with `hold`, follows the board with `watch`,
// and runs the daemon itself with `serve`. All record commands go through the
// daemon's HTTP API; the actor identity comes from [client] in the config or
// the --actor-id/--actor-name flags.
package main
