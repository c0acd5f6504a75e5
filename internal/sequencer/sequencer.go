// Package sequencer decides which of a record's three filters may start.
//
// It is a pure predicate over the filter status triple and the record status.
// It knows nothing about leases or actors.
package sequencer

import (
	"strconv"

	"callpanel/internal/record"
)

// Statuses is the (s1, s2, s3) triple of a record's filter statuses.
type Statuses = [record.FilterCount]record.FilterStatus

// eligible applies the ordering rule for a single filter:
// filter 1 needs s1 untouched; filter n>1 needs s(n-1) completed and s(n) untouched.
func eligible(s Statuses, n record.Index) bool {
	if !n.Valid() {
		return false
	}
	if s[n-1] != record.FilterNotStarted {
		return false
	}
	if n == 1 {
		return true
	}
	return s[n-2] == record.FilterCompleted
}

// NextEligible returns the filter that may start next, if any.
func NextEligible(status record.Status, s Statuses) (record.Index, bool) {
	if status.IsTerminal() {
		return 0, false
	}
	for _, n := range record.Indexes {
		if eligible(s, n) {
			return n, true
		}
	}
	return 0, false
}

// IsBlocked reports whether filter n may not start right now: the record is
// terminal, or n is not the next eligible filter.
func IsBlocked(status record.Status, s Statuses, n record.Index) bool {
	next, ok := NextEligible(status, s)
	return !ok || next != n
}

// BlockedSet evaluates IsBlocked for every filter.
func BlockedSet(status record.Status, s Statuses) [record.FilterCount]bool {
	var out [record.FilterCount]bool
	for _, n := range record.Indexes {
		out[n-1] = IsBlocked(status, s, n)
	}
	return out
}

// NextAfterFinish returns the filter that follows n, or false when n is the last.
func NextAfterFinish(n record.Index) (record.Index, bool) {
	if n < record.FilterCount {
		return n + 1, true
	}
	return 0, false
}

// BlockReason explains why filter n is blocked, for operator-facing hints.
func BlockReason(status record.Status, s Statuses, n record.Index) string {
	switch {
	case status.IsTerminal():
		return "record is " + string(status)
	case !n.Valid():
		return "no such filter"
	case s[n-1] == record.FilterInProgress:
		return "filter in progress"
	case s[n-1] != record.FilterNotStarted:
		return "filter already " + string(s[n-1])
	case n > 1 && s[n-2] != record.FilterCompleted:
		return "complete filter " + strconv.Itoa(int(n-1)) + " first"
	case IsBlocked(status, s, n):
		return "another filter is next"
	default:
		return ""
	}
}

