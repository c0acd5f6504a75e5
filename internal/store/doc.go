// Package store persists records, their three filters, and record leases.
//
// SQLite (modernc.org/sqlite) is the default backend; Postgres is reached
// through pgx's database/sql driver. Both share one set of queries written
// with ? placeholders and rebound per dialect. Every workflow operation runs
// through InTx so the record row, the filter row, and the lease row change
// together or not at all.
//
// The leases table is keyed by record_id. Lease acquisition relies on that key
// (INSERT ... ON CONFLICT DO NOTHING) rather than a read followed by a write.
package store
