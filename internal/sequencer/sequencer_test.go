package sequencer_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"callpanel/internal/record"
	"callpanel/internal/sequencer"
)

const (
	ns = record.FilterNotStarted
	ip = record.FilterInProgress
	co = record.FilterCompleted
	ca = record.FilterCancelled
)

var filterStatuses = []record.FilterStatus{ns, ip, co, ca, record.FilterPaused}

func TestIsBlockedTable(t *testing.T) {
	tests := []struct {
		name   string
		status record.Status
		s      sequencer.Statuses
		next   record.Index
	}{
		{name: "fresh record", status: record.StatusDraft, s: sequencer.Statuses{ns, ns, ns}, next: 1},
		{name: "filter one running", status: record.StatusInFilter1, s: sequencer.Statuses{ip, ns, ns}, next: 0},
		{name: "filter one done", status: record.StatusDraft, s: sequencer.Statuses{co, ns, ns}, next: 2},
		{name: "filter two done", status: record.StatusDraft, s: sequencer.Statuses{co, co, ns}, next: 3},
		{name: "all done", status: record.StatusDone, s: sequencer.Statuses{co, co, co}, next: 0},
		{name: "cancelled record", status: record.StatusCancelled, s: sequencer.Statuses{co, ns, ns}, next: 0},
		{name: "filter one cancelled", status: record.StatusCancelled, s: sequencer.Statuses{ca, ns, ns}, next: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, n := range record.Indexes {
				want := n != tt.next
				if got := sequencer.IsBlocked(tt.status, tt.s, n); got != want {
					t.Fatalf("IsBlocked(%d) = %v, want %v", n, got, want)
				}
			}
			next, ok := sequencer.NextEligible(tt.status, tt.s)
			if ok != (tt.next != 0) || next != tt.next {
				t.Fatalf("NextEligible = %d, %v; want %d", next, ok, tt.next)
			}
		})
	}
}

func TestIsBlockedRejectsInvalidIndex(t *testing.T) {
	s := sequencer.Statuses{ns, ns, ns}
	for _, n := range []record.Index{0, 4, -1} {
		if !sequencer.IsBlocked(record.StatusDraft, s, n) {
			t.Fatalf("index %d should be blocked", n)
		}
	}
}

func TestNextAfterFinish(t *testing.T) {
	if next, ok := sequencer.NextAfterFinish(1); !ok || next != 2 {
		t.Fatalf("after 1: %d %v", next, ok)
	}
	if next, ok := sequencer.NextAfterFinish(2); !ok || next != 3 {
		t.Fatalf("after 2: %d %v", next, ok)
	}
	if _, ok := sequencer.NextAfterFinish(3); ok {
		t.Fatal("nothing follows filter 3")
	}
}

func TestBlockReason(t *testing.T) {
	s := sequencer.Statuses{co, ns, ns}
	if got := sequencer.BlockReason(record.StatusDraft, s, 2); got != "" {
		t.Fatalf("eligible filter should have no reason, got %q", got)
	}
	if got := sequencer.BlockReason(record.StatusDraft, s, 3); got != "complete filter 2 first" {
		t.Fatalf("unexpected reason: %q", got)
	}
	if got := sequencer.BlockReason(record.StatusDraft, s, 1); got != "filter already completed" {
		t.Fatalf("unexpected reason: %q", got)
	}
	if got := sequencer.BlockReason(record.StatusDone, s, 2); got != "record is done" {
		t.Fatalf("unexpected reason: %q", got)
	}
}

func TestSequencerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	statuses := record.AllStatuses()
	triple := func(a, b, c int) sequencer.Statuses {
		return sequencer.Statuses{filterStatuses[a], filterStatuses[b], filterStatuses[c]}
	}
	statusGen := gen.IntRange(0, len(statuses)-1)
	filterGen := gen.IntRange(0, len(filterStatuses)-1)

	properties.Property("at most one filter is unblocked", prop.ForAll(
		func(si, a, b, c int) bool {
			set := sequencer.BlockedSet(statuses[si], triple(a, b, c))
			open := 0
			for _, blocked := range set {
				if !blocked {
					open++
				}
			}
			return open <= 1
		},
		statusGen, filterGen, filterGen, filterGen,
	))

	properties.Property("terminal records block every filter", prop.ForAll(
		func(a, b, c int) bool {
			s := triple(a, b, c)
			for _, status := range []record.Status{record.StatusDone, record.StatusCancelled} {
				for _, blocked := range sequencer.BlockedSet(status, s) {
					if !blocked {
						return false
					}
				}
			}
			return true
		},
		filterGen, filterGen, filterGen,
	))

	properties.Property("an unblocked filter is untouched and its predecessor completed", prop.ForAll(
		func(si, a, b, c int) bool {
			s := triple(a, b, c)
			for _, n := range record.Indexes {
				if sequencer.IsBlocked(statuses[si], s, n) {
					continue
				}
				if s[n-1] != ns {
					return false
				}
				if n > 1 && s[n-2] != co {
					return false
				}
			}
			return true
		},
		statusGen, filterGen, filterGen, filterGen,
	))

	properties.Property("blocked filters always have a reason", prop.ForAll(
		func(si, a, b, c int) bool {
			s := triple(a, b, c)
			for _, n := range record.Indexes {
				blocked := sequencer.IsBlocked(statuses[si], s, n)
				reason := sequencer.BlockReason(statuses[si], s, n)
				if blocked != (reason != "") {
					return false
				}
			}
			return true
		},
		statusGen, filterGen, filterGen, filterGen,
	))

	properties.TestingRun(t)
}
