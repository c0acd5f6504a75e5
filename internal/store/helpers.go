package store

import (
	"database/sql"
	"fmt"
	"time"

	"callpanel/internal/record"
)

// timeLayout is fixed width so stored timestamps order correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		if t2, err2 := time.Parse(time.RFC3339Nano, value); err2 == nil {
			return t2.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}

func parseNullTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

type scanner interface{ Scan(dest ...any) error }

const recordColumns = "id, agent, agent_group, visibility, status, current_filter, next_due_at, cancel_reason, cancelled_by, cancelled_at, finalized_at, created_at, updated_at"

func scanRecord(row scanner) (*record.Record, error) {
	var (
		rec           record.Record
		statusRaw     string
		currentFilter int
		nextDue       sql.NullString
		cancelReason  sql.NullString
		cancelledBy   sql.NullString
		cancelledAt   sql.NullString
		finalizedAt   sql.NullString
		createdRaw    string
		updatedRaw    string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Agent,
		&rec.Group,
		&rec.Visibility,
		&statusRaw,
		&currentFilter,
		&nextDue,
		&cancelReason,
		&cancelledBy,
		&cancelledAt,
		&finalizedAt,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	status, err := record.ParseStatus(statusRaw)
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", rec.ID, err)
	}
	rec.Status = status
	rec.CurrentFilter = record.Index(currentFilter)
	rec.CancelReason = cancelReason.String
	rec.CancelledBy = cancelledBy.String

	if rec.NextDueAt, err = parseNullTime(nextDue); err != nil {
		return nil, err
	}
	if rec.CancelledAt, err = parseNullTime(cancelledAt); err != nil {
		return nil, err
	}
	if rec.FinalizedAt, err = parseNullTime(finalizedAt); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = parseTime(createdRaw); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedRaw); err != nil {
		return nil, err
	}
	return &rec, nil
}

const filterColumns = "record_id, filter_n, status, performed_by_id, performed_by_name, started_at, finished_at, next_due_at, cancel_reason"

func scanFilter(row scanner) (record.Filter, error) {
	var (
		f            record.Filter
		n            int
		statusRaw    string
		byID         sql.NullString
		byName       sql.NullString
		startedAt    sql.NullString
		finishedAt   sql.NullString
		nextDue      sql.NullString
		cancelReason sql.NullString
	)
	if err := row.Scan(&f.RecordID, &n, &statusRaw, &byID, &byName, &startedAt, &finishedAt, &nextDue, &cancelReason); err != nil {
		return f, err
	}
	idx, err := record.ParseIndex(n)
	if err != nil {
		return f, fmt.Errorf("record %d: %w", f.RecordID, err)
	}
	f.N = idx
	if f.Status, err = record.ParseFilterStatus(statusRaw); err != nil {
		return f, fmt.Errorf("record %d filter %d: %w", f.RecordID, n, err)
	}
	if byID.Valid && byID.String != "" {
		f.PerformedBy = &record.Actor{ID: byID.String, Name: byName.String}
	}
	f.CancelReason = cancelReason.String
	if f.StartedAt, err = parseNullTime(startedAt); err != nil {
		return f, err
	}
	if f.FinishedAt, err = parseNullTime(finishedAt); err != nil {
		return f, err
	}
	if f.NextDueAt, err = parseNullTime(nextDue); err != nil {
		return f, err
	}
	return f, nil
}

const leaseColumns = "record_id, kind, filter_n, owner_id, owner_name, acquired_at, expires_at"

func scanLease(row scanner) (*record.Lease, error) {
	var (
		l           record.Lease
		n           int
		acquiredRaw string
		expiresRaw  string
	)
	if err := row.Scan(&l.RecordID, &l.Kind, &n, &l.Owner.ID, &l.Owner.Name, &acquiredRaw, &expiresRaw); err != nil {
		return nil, err
	}
	l.Filter = record.Index(n)
	var err error
	if l.AcquiredAt, err = parseTime(acquiredRaw); err != nil {
		return nil, err
	}
	if l.ExpiresAt, err = parseTime(expiresRaw); err != nil {
		return nil, err
	}
	return &l, nil
}
