package api

import (
	"fmt"
	"time"

	"callpanel/internal/record"
)

// clockText renders d as m:ss. Minutes are not wrapped into hours.
func clockText(d time.Duration) string {
	total := int(d.Round(time.Second) / time.Second)
	if total < 0 {
		total = -total
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// DueText describes an advisory due time relative to now: "due in m:ss"
// before it and "OVERDUE m:ss" after. A nil due time renders empty.
func DueText(due *time.Time, now time.Time) string {
	if due == nil {
		return ""
	}
	if left := due.Sub(now); left > 0 {
		return "due in " + clockText(left)
	}
	return "OVERDUE " + clockText(now.Sub(*due))
}

// HolderText renders the lease column as "Filter n - name".
func HolderText(l *record.Lease) string {
	if l == nil {
		return ""
	}
	return fmt.Sprintf("Filter %d - %s", l.Filter, l.Owner.Label())
}

// LeaseRemainingText renders the time left on a lease as m:ss.
func LeaseRemainingText(l *record.Lease, now time.Time) string {
	if l == nil {
		return ""
	}
	return clockText(l.Remaining(now))
}

// StatusLabel is the display badge for a record status.
func StatusLabel(status record.Status) string {
	switch status {
	case record.StatusDraft:
		return "Draft"
	case record.StatusInFilter1:
		return "In filter 1"
	case record.StatusInFilter2:
		return "In filter 2"
	case record.StatusInFilter3:
		return "In filter 3"
	case record.StatusDone:
		return "Done"
	case record.StatusCancelled:
		return "Cancelled"
	case record.StatusPaused:
		return "Paused"
	default:
		return string(status)
	}
}

// FilterStatusLabel is the display badge for a filter status.
func FilterStatusLabel(status record.FilterStatus) string {
	switch status {
	case record.FilterNotStarted:
		return "Not started"
	case record.FilterInProgress:
		return "In progress"
	case record.FilterCompleted:
		return "Completed"
	case record.FilterCancelled:
		return "Cancelled"
	case record.FilterPaused:
		return "Paused"
	default:
		return string(status)
	}
}
