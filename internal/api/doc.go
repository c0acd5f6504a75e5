// Package api defines wire-format types and converters for the HTTP API. It
// translates workflow records, filters and leases into transport-friendly
// DTOs and back again, so the daemon and the client agree on one format.
//
// # Key Types
//
// RecordSummary: one row of the record list with its lease holder, if any.
//
// RecordDetail: a record, its three filters with blocked flags, and the lease.
//
// ErrorBody: the structured failure payload carrying kind, code and, for
// conflicts, the record's status and filter statuses.
//
// # Converters
//
// FromSummary / FromDetail / FromError: domain -> wire.
//
// ToSummary / ToDetail: wire -> domain. Status strings are parsed into the
// closed record enumerations; an unknown value is an error.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Internal errors never carry storage error text across the wire.
package api
