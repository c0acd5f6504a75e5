package record

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a record.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusInFilter1 Status = "in_filter_1"
	StatusInFilter2 Status = "in_filter_2"
	StatusInFilter3 Status = "in_filter_3"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
	// StatusPaused is recognised when read back but no transition produces it.
	StatusPaused Status = "paused"
)

var allStatuses = []Status{
	StatusDraft,
	StatusInFilter1,
	StatusInFilter2,
	StatusInFilter3,
	StatusDone,
	StatusCancelled,
	StatusPaused,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns every known record status in display order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a stored or user supplied value into a Status.
func ParseStatus(value string) (Status, error) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := statusSet[normalized]; ok {
		return normalized, nil
	}
	return "", fmt.Errorf("unknown record status %q", value)
}

// IsTerminal reports whether no further start/finish/cancel is permitted.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// ActiveFilter returns the filter a record is currently in, if any.
func (s Status) ActiveFilter() (Index, bool) {
	switch s {
	case StatusInFilter1:
		return 1, true
	case StatusInFilter2:
		return 2, true
	case StatusInFilter3:
		return 3, true
	default:
		return 0, false
	}
}

// InFilterStatus returns the record status for an active filter n.
func InFilterStatus(n Index) Status {
	switch n {
	case 1:
		return StatusInFilter1
	case 2:
		return StatusInFilter2
	case 3:
		return StatusInFilter3
	default:
		panic(fmt.Sprintf("record: no in-filter status for index %d", n))
	}
}

// FilterStatus represents the lifecycle of a single filter step.
type FilterStatus string

const (
	FilterNotStarted FilterStatus = "not_started"
	FilterInProgress FilterStatus = "in_progress"
	FilterCompleted  FilterStatus = "completed"
	FilterCancelled  FilterStatus = "cancelled"
	// FilterPaused is recognised when read back but no transition produces it.
	FilterPaused FilterStatus = "paused"
)

var filterStatusSet = map[FilterStatus]struct{}{
	FilterNotStarted: {},
	FilterInProgress: {},
	FilterCompleted:  {},
	FilterCancelled:  {},
	FilterPaused:     {},
}

// ParseFilterStatus converts a stored value into a FilterStatus.
func ParseFilterStatus(value string) (FilterStatus, error) {
	normalized := FilterStatus(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := filterStatusSet[normalized]; ok {
		return normalized, nil
	}
	return "", fmt.Errorf("unknown filter status %q", value)
}

// Index identifies one of the three ordered filters (1-based).
type Index int

// FilterCount is the fixed number of filters every record carries.
const FilterCount = 3

// Indexes lists every filter index in order.
var Indexes = [FilterCount]Index{1, 2, 3}

// Valid reports whether n is within 1..FilterCount.
func (n Index) Valid() bool {
	return n >= 1 && n <= FilterCount
}

// ParseIndex validates a caller supplied filter number.
func ParseIndex(n int) (Index, error) {
	idx := Index(n)
	if !idx.Valid() {
		return 0, fmt.Errorf("filter index %d out of range 1..%d", n, FilterCount)
	}
	return idx, nil
}

// Actor identifies the agent performing an operation.
type Actor struct {
	ID   string
	Name string
}

// Valid reports whether the actor carries an identifier.
func (a Actor) Valid() bool {
	return strings.TrimSpace(a.ID) != ""
}

// Label returns the display name, falling back to the id.
func (a Actor) Label() string {
	if name := strings.TrimSpace(a.Name); name != "" {
		return name
	}
	return a.ID
}

// Record is a work item progressing through three ordered filters.
type Record struct {
	ID            int64
	Agent         string
	Group         string
	Visibility    string
	Status        Status
	CurrentFilter Index
	NextDueAt     *time.Time
	CancelReason  string
	CancelledBy   string
	CancelledAt   *time.Time
	FinalizedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Filter is one of the three ordered sub-tasks on a record.
type Filter struct {
	RecordID     int64
	N            Index
	Status       FilterStatus
	PerformedBy  *Actor
	StartedAt    *time.Time
	FinishedAt   *time.Time
	NextDueAt    *time.Time
	CancelReason string
}

// Filters holds a record's three filters indexed by n-1.
type Filters [FilterCount]Filter

// Get returns filter n.
func (f *Filters) Get(n Index) *Filter {
	return &f[n-1]
}

// Statuses returns the (s1, s2, s3) triple.
func (f Filters) Statuses() [FilterCount]FilterStatus {
	var out [FilterCount]FilterStatus
	for i := range f {
		out[i] = f[i].Status
	}
	return out
}

// LeaseKindFilter is the only lease kind currently issued.
const LeaseKindFilter = "filter"

// Lease is a time-bounded exclusivity grant on a record.
type Lease struct {
	RecordID   int64
	Kind       string
	Filter     Index
	Owner      Actor
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the lease is past its expiry at now.
func (l Lease) Expired(now time.Time) bool {
	return l.ExpiresAt.Before(now)
}

// Remaining returns the time left before expiry, never negative.
func (l Lease) Remaining(now time.Time) time.Duration {
	if left := l.ExpiresAt.Sub(now); left > 0 {
		return left
	}
	return 0
}

// OwnedBy reports whether actor holds the lease.
func (l Lease) OwnedBy(actor Actor) bool {
	return l.Owner.ID == actor.ID
}
