package api

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"callpanel/internal/record"
	"callpanel/internal/workflow"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func sampleDetail() *workflow.Detail {
	started := now.Add(-10 * time.Second)
	due := now.Add(15 * time.Minute)
	alice := record.Actor{ID: "a", Name: "Alice"}
	d := &workflow.Detail{
		Record: record.Record{
			ID: 5, Agent: "ana", Group: "north", Status: record.StatusInFilter1, CurrentFilter: 1,
			NextDueAt: &due, CreatedAt: started, UpdatedAt: started,
		},
		Lease: &record.Lease{
			RecordID: 5, Kind: record.LeaseKindFilter, Filter: 1, Owner: alice,
			AcquiredAt: started, ExpiresAt: started.Add(time.Minute),
		},
		Blocked:      [3]bool{true, true, true},
		BlockReasons: [3]string{"filter in progress", "complete filter 1 first", "complete filter 2 first"},
	}
	for _, n := range record.Indexes {
		d.Filters[n-1] = record.Filter{RecordID: 5, N: n, Status: record.FilterNotStarted}
	}
	d.Filters[0].Status = record.FilterInProgress
	d.Filters[0].PerformedBy = &alice
	d.Filters[0].StartedAt = &started
	return d
}

func TestFromDetail(t *testing.T) {
	dto := FromDetail(sampleDetail(), now)
	if dto.Record.Status != "in_filter_1" || dto.Record.CurrentFilter != 1 {
		t.Fatalf("unexpected record: %#v", dto.Record)
	}
	if len(dto.Filters) != 3 || dto.Filters[0].PerformedBy == nil || dto.Filters[0].PerformedBy.Name != "Alice" {
		t.Fatalf("unexpected filters: %#v", dto.Filters)
	}
	if !dto.Filters[1].Blocked || dto.Filters[1].BlockReason != "complete filter 1 first" {
		t.Fatalf("blocked state lost: %#v", dto.Filters[1])
	}
	if dto.Lease == nil || dto.Lease.RemainingSeconds != 50 || dto.Lease.Owner.ID != "a" {
		t.Fatalf("unexpected lease: %#v", dto.Lease)
	}
	if dto.Record.NextDueAt != "2026-03-02T09:15:00.000Z" {
		t.Fatalf("nextDueAt = %q", dto.Record.NextDueAt)
	}
}

func TestToDetailValidatesStatuses(t *testing.T) {
	dto := FromDetail(sampleDetail(), now)
	back, err := ToDetail(dto)
	if err != nil {
		t.Fatalf("ToDetail: %v", err)
	}
	if back.Record.Status != record.StatusInFilter1 || back.Filters[0].Status != record.FilterInProgress {
		t.Fatalf("unexpected detail: %#v", back)
	}
	if back.Lease == nil || back.Lease.Owner.Name != "Alice" || back.Lease.Filter != 1 {
		t.Fatalf("unexpected lease: %#v", back.Lease)
	}

	bad := dto
	bad.Record.Status = "archived"
	if _, err := ToDetail(bad); err == nil {
		t.Fatal("unknown record status should be rejected")
	}

	bad = FromDetail(sampleDetail(), now)
	bad.Filters[2].Status = "skipped"
	if _, err := ToDetail(bad); err == nil {
		t.Fatal("unknown filter status should be rejected")
	}

	bad = FromDetail(sampleDetail(), now)
	bad.Filters = bad.Filters[:2]
	if _, err := ToDetail(bad); err == nil {
		t.Fatal("missing filter should be rejected")
	}
}

func TestToSummaryRejectsUnknownStatus(t *testing.T) {
	if _, err := ToSummary(RecordSummary{Record: Record{ID: 1, Status: "pending"}}); err == nil {
		t.Fatal("expected error")
	}
	s, err := ToSummary(RecordSummary{Record: Record{ID: 1, Status: "draft", CurrentFilter: 1}})
	if err != nil {
		t.Fatalf("ToSummary: %v", err)
	}
	if s.Record.Status != record.StatusDraft || s.Lease != nil {
		t.Fatalf("unexpected summary: %#v", s)
	}
}

func TestFromErrorHidesInternalDetail(t *testing.T) {
	body := FromError(fmt.Errorf("wrapped: %w", errors.New("pq: relation records does not exist")), now)
	if body.Kind != "internal" || body.Code != "internal" || strings.Contains(body.Message, "relation") {
		t.Fatalf("unexpected body: %#v", body)
	}

	statuses := [3]record.FilterStatus{record.FilterNotStarted, record.FilterNotStarted, record.FilterNotStarted}
	conflict := &workflow.Error{
		Kind:    workflow.KindConflict,
		Code:    workflow.CodeSequenceBlocked,
		Message: "filter 2 is blocked",
		Status:  record.StatusDraft,
		Filters: &statuses,
	}
	body = FromError(fmt.Errorf("start: %w", conflict), now)
	if body.Kind != "conflict" || body.Code != "sequence_blocked" || body.Status != "draft" {
		t.Fatalf("unexpected body: %#v", body)
	}
	if len(body.Filters) != 3 || body.Filters[0] != "not_started" || body.Holder != nil {
		t.Fatalf("unexpected filters: %#v", body)
	}
}

func TestDueText(t *testing.T) {
	tests := []struct {
		offset time.Duration
		want   string
	}{
		{offset: 90 * time.Second, want: "due in 1:30"},
		{offset: 75 * time.Minute, want: "due in 75:00"},
		{offset: -5 * time.Second, want: "OVERDUE 0:05"},
		{offset: 0, want: "OVERDUE 0:00"},
	}
	for _, tt := range tests {
		due := now.Add(tt.offset)
		if got := DueText(&due, now); got != tt.want {
			t.Fatalf("DueText(%s) = %q, want %q", tt.offset, got, tt.want)
		}
	}
	if got := DueText(nil, now); got != "" {
		t.Fatalf("nil due = %q", got)
	}
}

func TestHolderText(t *testing.T) {
	l := &record.Lease{Filter: 2, Owner: record.Actor{ID: "b", Name: "Bob"}, ExpiresAt: now.Add(45 * time.Second)}
	if got := HolderText(l); got != "Filter 2 - Bob" {
		t.Fatalf("HolderText = %q", got)
	}
	if got := LeaseRemainingText(l, now); got != "0:45" {
		t.Fatalf("LeaseRemainingText = %q", got)
	}
	if HolderText(nil) != "" {
		t.Fatal("nil lease should render empty")
	}
}
