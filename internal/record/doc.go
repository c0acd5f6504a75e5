// Package record defines the closed vocabulary of the workflow: record and
// filter statuses, filter indexes, actors, and leases.
//
// Status values are parsed, never cast: anything read from storage or the
// wire passes through ParseStatus / ParseFilterStatus so an unknown string
// surfaces as an error instead of reaching display or transition logic.
package record
