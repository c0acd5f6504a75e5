package api

import (
	"errors"
	"fmt"
	"time"

	"callpanel/internal/record"
	"callpanel/internal/workflow"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// FromRecord converts a record to its API representation.
func FromRecord(rec record.Record) Record {
	return Record{
		ID:            rec.ID,
		Agent:         rec.Agent,
		Group:         rec.Group,
		Visibility:    rec.Visibility,
		Status:        string(rec.Status),
		CurrentFilter: int(rec.CurrentFilter),
		NextDueAt:     formatTimePtr(rec.NextDueAt),
		CancelReason:  rec.CancelReason,
		CancelledBy:   rec.CancelledBy,
		CancelledAt:   formatTimePtr(rec.CancelledAt),
		FinalizedAt:   formatTimePtr(rec.FinalizedAt),
		CreatedAt:     formatTime(rec.CreatedAt),
		UpdatedAt:     formatTime(rec.UpdatedAt),
	}
}

// FromLease converts a lease; remaining time is measured against now.
func FromLease(l *record.Lease, now time.Time) *Lease {
	if l == nil {
		return nil
	}
	return &Lease{
		RecordID:         l.RecordID,
		Kind:             l.Kind,
		Filter:           int(l.Filter),
		Owner:            Actor{ID: l.Owner.ID, Name: l.Owner.Name},
		AcquiredAt:       formatTime(l.AcquiredAt),
		ExpiresAt:        formatTime(l.ExpiresAt),
		RemainingSeconds: int(l.Remaining(now).Seconds()),
	}
}

// FromSummary converts a list row.
func FromSummary(s workflow.Summary, now time.Time) RecordSummary {
	return RecordSummary{Record: FromRecord(s.Record), Lease: FromLease(s.Lease, now)}
}

// FromSummaries converts the record list, preserving order.
func FromSummaries(list []workflow.Summary, now time.Time) []RecordSummary {
	out := make([]RecordSummary, 0, len(list))
	for _, s := range list {
		out = append(out, FromSummary(s, now))
	}
	return out
}

// FromDetail converts a record detail.
func FromDetail(d *workflow.Detail, now time.Time) RecordDetail {
	if d == nil {
		return RecordDetail{}
	}
	dto := RecordDetail{
		Record:       FromRecord(d.Record),
		Filters:      make([]Filter, 0, record.FilterCount),
		Lease:        FromLease(d.Lease, now),
		NextEligible: int(d.NextEligible),
	}
	for i, f := range d.Filters {
		item := Filter{
			N:            int(f.N),
			Status:       string(f.Status),
			StartedAt:    formatTimePtr(f.StartedAt),
			FinishedAt:   formatTimePtr(f.FinishedAt),
			NextDueAt:    formatTimePtr(f.NextDueAt),
			CancelReason: f.CancelReason,
			Blocked:      d.Blocked[i],
			BlockReason:  d.BlockReasons[i],
		}
		if f.PerformedBy != nil {
			item.PerformedBy = &Actor{ID: f.PerformedBy.ID, Name: f.PerformedBy.Name}
		}
		dto.Filters = append(dto.Filters, item)
	}
	return dto
}

// FromStats converts status counts, keyed by status string.
func FromStats(s workflow.Stats) StatsResponse {
	counts := make(map[string]int, len(s.ByStatus))
	for status, n := range s.ByStatus {
		counts[string(status)] = n
	}
	return StatsResponse{Counts: counts, Total: s.Total, ActiveLeases: s.ActiveLeases}
}

// FromError converts an engine error into a response body. Internal errors
// keep only a generic message.
func FromError(err error, now time.Time) ErrorBody {
	var wfErr *workflow.Error
	if !errors.As(err, &wfErr) || wfErr.Kind == workflow.KindInternal {
		return ErrorBody{
			Kind:    string(workflow.KindInternal),
			Code:    workflow.CodeInternal,
			Message: "internal error",
		}
	}
	body := ErrorBody{
		Kind:    string(wfErr.Kind),
		Code:    wfErr.Code,
		Message: wfErr.Message,
		Status:  string(wfErr.Status),
		Holder:  FromLease(wfErr.Holder, now),
	}
	if wfErr.Filters != nil {
		body.Filters = make([]string, 0, record.FilterCount)
		for _, s := range wfErr.Filters {
			body.Filters = append(body.Filters, string(s))
		}
	}
	return body
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func parseTimePtr(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := parseTime(value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ParseDueAt parses an optional RFC3339 due time from a request.
func ParseDueAt(value string) (*time.Time, error) {
	due, err := parseTimePtr(value)
	if err != nil {
		return nil, fmt.Errorf("invalid nextDueAt %q: %w", value, err)
	}
	return due, nil
}

// ToRecord converts a wire record back to the domain type. Unknown status
// values are rejected.
func ToRecord(dto Record) (record.Record, error) {
	status, err := record.ParseStatus(dto.Status)
	if err != nil {
		return record.Record{}, fmt.Errorf("record %d: %w", dto.ID, err)
	}
	rec := record.Record{
		ID:            dto.ID,
		Agent:         dto.Agent,
		Group:         dto.Group,
		Visibility:    dto.Visibility,
		Status:        status,
		CurrentFilter: record.Index(dto.CurrentFilter),
		CancelReason:  dto.CancelReason,
		CancelledBy:   dto.CancelledBy,
	}
	fields := []struct {
		raw string
		dst **time.Time
	}{
		{dto.NextDueAt, &rec.NextDueAt},
		{dto.CancelledAt, &rec.CancelledAt},
		{dto.FinalizedAt, &rec.FinalizedAt},
	}
	for _, f := range fields {
		if *f.dst, err = parseTimePtr(f.raw); err != nil {
			return record.Record{}, fmt.Errorf("record %d: %w", dto.ID, err)
		}
	}
	if dto.CreatedAt != "" {
		if rec.CreatedAt, err = parseTime(dto.CreatedAt); err != nil {
			return record.Record{}, fmt.Errorf("record %d: %w", dto.ID, err)
		}
	}
	if dto.UpdatedAt != "" {
		if rec.UpdatedAt, err = parseTime(dto.UpdatedAt); err != nil {
			return record.Record{}, fmt.Errorf("record %d: %w", dto.ID, err)
		}
	}
	return rec, nil
}

// ToLease converts a wire lease back to the domain type.
func ToLease(dto *Lease) (*record.Lease, error) {
	if dto == nil {
		return nil, nil
	}
	n, err := record.ParseIndex(dto.Filter)
	if err != nil {
		return nil, err
	}
	acquired, err := parseTime(dto.AcquiredAt)
	if err != nil {
		return nil, fmt.Errorf("lease acquiredAt: %w", err)
	}
	expires, err := parseTime(dto.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("lease expiresAt: %w", err)
	}
	return &record.Lease{
		RecordID:   dto.RecordID,
		Kind:       dto.Kind,
		Filter:     n,
		Owner:      record.Actor{ID: dto.Owner.ID, Name: dto.Owner.Name},
		AcquiredAt: acquired,
		ExpiresAt:  expires,
	}, nil
}

// ToSummary converts a wire list row back to the domain form.
func ToSummary(dto RecordSummary) (workflow.Summary, error) {
	rec, err := ToRecord(dto.Record)
	if err != nil {
		return workflow.Summary{}, err
	}
	l, err := ToLease(dto.Lease)
	if err != nil {
		return workflow.Summary{}, fmt.Errorf("record %d: %w", dto.ID, err)
	}
	return workflow.Summary{Record: rec, Lease: l}, nil
}

// ToDetail converts a wire detail back to the domain form, validating every
// status value.
func ToDetail(dto RecordDetail) (*workflow.Detail, error) {
	rec, err := ToRecord(dto.Record)
	if err != nil {
		return nil, err
	}
	if len(dto.Filters) != record.FilterCount {
		return nil, fmt.Errorf("record %d: got %d filters, want %d", dto.Record.ID, len(dto.Filters), record.FilterCount)
	}
	detail := &workflow.Detail{Record: rec, NextEligible: record.Index(dto.NextEligible)}
	for _, f := range dto.Filters {
		n, err := record.ParseIndex(f.N)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", rec.ID, err)
		}
		status, err := record.ParseFilterStatus(f.Status)
		if err != nil {
			return nil, fmt.Errorf("record %d filter %d: %w", rec.ID, n, err)
		}
		out := record.Filter{RecordID: rec.ID, N: n, Status: status, CancelReason: f.CancelReason}
		if f.PerformedBy != nil {
			out.PerformedBy = &record.Actor{ID: f.PerformedBy.ID, Name: f.PerformedBy.Name}
		}
		if out.StartedAt, err = parseTimePtr(f.StartedAt); err != nil {
			return nil, err
		}
		if out.FinishedAt, err = parseTimePtr(f.FinishedAt); err != nil {
			return nil, err
		}
		if out.NextDueAt, err = parseTimePtr(f.NextDueAt); err != nil {
			return nil, err
		}
		detail.Filters[n-1] = out
		detail.Blocked[n-1] = f.Blocked
		detail.BlockReasons[n-1] = f.BlockReason
	}
	if detail.Lease, err = ToLease(dto.Lease); err != nil {
		return nil, fmt.Errorf("record %d: %w", rec.ID, err)
	}
	return detail, nil
}
