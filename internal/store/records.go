package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"callpanel/internal/record"
)

// Tx is a unit of work over records, filters, and leases.
type Tx struct {
	tx      *sql.Tx
	dialect dialect
}

func (t *Tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.rebind(query), args...)
}

func (t *Tx) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.dialect.rebind(query), args...)
}

func (t *Tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.dialect.rebind(query), args...)
}

// InsertRecord stores rec together with its three not_started filters and
// assigns rec.ID. Filter 1 inherits the record's next due time.
func (t *Tx) InsertRecord(ctx context.Context, rec *record.Record) error {
	var id int64
	err := t.queryRow(ctx,
		`INSERT INTO records (agent, agent_group, visibility, status, current_filter, next_due_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		rec.Agent,
		rec.Group,
		rec.Visibility,
		string(rec.Status),
		int(rec.CurrentFilter),
		nullableTime(rec.NextDueAt),
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	rec.ID = id

	for _, n := range record.Indexes {
		var due *time.Time
		if n == 1 {
			due = rec.NextDueAt
		}
		if _, err := t.exec(ctx,
			`INSERT INTO filters (record_id, filter_n, status, next_due_at) VALUES (?, ?, ?, ?)`,
			id, int(n), string(record.FilterNotStarted), nullableTime(due),
		); err != nil {
			return fmt.Errorf("insert filter %d: %w", n, err)
		}
	}
	return nil
}

// GetRecord returns the record or nil when it does not exist.
func (t *Tx) GetRecord(ctx context.Context, id int64) (*record.Record, error) {
	return t.getRecord(ctx, id, "")
}

// LockRecord reads a record that the caller is about to modify. Postgres
// takes a row lock; SQLite already holds the database write lock.
func (t *Tx) LockRecord(ctx context.Context, id int64) (*record.Record, error) {
	return t.getRecord(ctx, id, t.dialect.lockSuffix)
}

func (t *Tx) getRecord(ctx context.Context, id int64, suffix string) (*record.Record, error) {
	row := t.queryRow(ctx, "SELECT "+recordColumns+" FROM records WHERE id = ?"+suffix, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record %d: %w", id, err)
	}
	return rec, nil
}

// Filters returns the three filters of a record.
func (t *Tx) Filters(ctx context.Context, recordID int64) (record.Filters, error) {
	var out record.Filters
	rows, err := t.query(ctx, "SELECT "+filterColumns+" FROM filters WHERE record_id = ? ORDER BY filter_n", recordID)
	if err != nil {
		return out, fmt.Errorf("list filters for record %d: %w", recordID, err)
	}
	defer rows.Close()

	seen := 0
	for rows.Next() {
		f, err := scanFilter(rows)
		if err != nil {
			return out, fmt.Errorf("scan filter: %w", err)
		}
		out[f.N-1] = f
		seen++
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("iterate filters: %w", err)
	}
	if seen != record.FilterCount {
		return out, fmt.Errorf("record %d has %d filters, want %d", recordID, seen, record.FilterCount)
	}
	return out, nil
}

// UpdateRecord persists every mutable column of rec.
func (t *Tx) UpdateRecord(ctx context.Context, rec *record.Record) error {
	res, err := t.exec(ctx,
		`UPDATE records SET status = ?, current_filter = ?, next_due_at = ?, cancel_reason = ?, cancelled_by = ?,
		 cancelled_at = ?, finalized_at = ?, updated_at = ? WHERE id = ?`,
		string(rec.Status),
		int(rec.CurrentFilter),
		nullableTime(rec.NextDueAt),
		nullableString(rec.CancelReason),
		nullableString(rec.CancelledBy),
		nullableTime(rec.CancelledAt),
		nullableTime(rec.FinalizedAt),
		formatTime(rec.UpdatedAt),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update record %d: %w", rec.ID, err)
	}
	return expectOneRow(res, "update record", rec.ID)
}

// UpdateFilter persists every mutable column of f.
func (t *Tx) UpdateFilter(ctx context.Context, f *record.Filter) error {
	var byID, byName any
	if f.PerformedBy != nil {
		byID = nullableString(f.PerformedBy.ID)
		byName = nullableString(f.PerformedBy.Name)
	}
	res, err := t.exec(ctx,
		`UPDATE filters SET status = ?, performed_by_id = ?, performed_by_name = ?, started_at = ?, finished_at = ?,
		 next_due_at = ?, cancel_reason = ? WHERE record_id = ? AND filter_n = ?`,
		string(f.Status),
		byID,
		byName,
		nullableTime(f.StartedAt),
		nullableTime(f.FinishedAt),
		nullableTime(f.NextDueAt),
		nullableString(f.CancelReason),
		f.RecordID,
		int(f.N),
	)
	if err != nil {
		return fmt.Errorf("update filter %d of record %d: %w", f.N, f.RecordID, err)
	}
	return expectOneRow(res, "update filter", f.RecordID)
}

// ListRecords returns every record in creation order.
func (t *Tx) ListRecords(ctx context.Context) ([]*record.Record, error) {
	rows, err := t.query(ctx, "SELECT "+recordColumns+" FROM records ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*record.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// CountByStatus returns the number of records per status.
func (t *Tx) CountByStatus(ctx context.Context) (map[record.Status]int, error) {
	rows, err := t.query(ctx, "SELECT status, COUNT(1) FROM records GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("record stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[record.Status]int)
	for rows.Next() {
		var (
			raw   string
			count int
		)
		if err := rows.Scan(&raw, &count); err != nil {
			return nil, fmt.Errorf("scan record stats: %w", err)
		}
		status, err := record.ParseStatus(raw)
		if err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func expectOneRow(res sql.Result, op string, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %d: rows affected: %w", op, id, err)
	}
	if affected != 1 {
		return fmt.Errorf("%s %d: affected %d rows", op, id, affected)
	}
	return nil
}
