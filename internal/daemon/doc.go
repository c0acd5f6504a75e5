// Package daemon coordinates the long-running callpanel process.
//
// It wires configuration, the record store, the workflow engine and the
// optional lease sweeper into a single lifecycle with flock-based locking to
// prevent multiple instances on one data directory. The HTTP API is served
// with echo: every request gets a correlation id, an optional bearer token
// guards /api/* (except health), and the caller's identity is taken from the
// X-Actor-Id and X-Actor-Name headers.
//
// Keep orchestration and transport here: workflow rules live in the workflow
// package and wire types in api.
package daemon
