// Package workflow moves records through their three ordered filters.
//
// The Engine owns every state transition: Create, Start, Renew, Finish and
// Cancel each run as a single store transaction spanning the record row, the
// affected filter rows and the lease row, so a failure leaves none of them
// changed. Every transaction begins with a lease sweep, which keeps expired
// leases from blocking acquisitions or appearing in reads.
//
// The query side (List, Detail, Stats) sweeps and reads inside one
// transaction so callers always see a consistent snapshot. The Sweeper runs
// the same sweep on a timer when configured.
//
// Failures are returned as *Error values classified by Kind and Code; storage
// failures surface as KindInternal with the underlying error kept for logging.
package workflow
