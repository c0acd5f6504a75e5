package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"callpanel/internal/record"
)

// GetLease returns the lease row for a record or nil. Expiry is not checked.
func (t *Tx) GetLease(ctx context.Context, recordID int64) (*record.Lease, error) {
	row := t.queryRow(ctx, "SELECT "+leaseColumns+" FROM leases WHERE record_id = ?", recordID)
	lease, err := scanLease(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lease for record %d: %w", recordID, err)
	}
	return lease, nil
}

// ListLeases returns every lease keyed by record id.
func (t *Tx) ListLeases(ctx context.Context) (map[int64]*record.Lease, error) {
	rows, err := t.query(ctx, "SELECT "+leaseColumns+" FROM leases")
	if err != nil {
		return nil, fmt.Errorf("list leases: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]*record.Lease)
	for rows.Next() {
		lease, err := scanLease(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lease: %w", err)
		}
		out[lease.RecordID] = lease
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leases: %w", err)
	}
	return out, nil
}

// InsertLeaseIfAbsent inserts lease unless the record already has one. The
// unique key on record_id makes the check and the insert one statement; a
// false return means another holder won.
func (t *Tx) InsertLeaseIfAbsent(ctx context.Context, lease record.Lease) (bool, error) {
	res, err := t.exec(ctx,
		`INSERT INTO leases (`+leaseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (record_id) DO NOTHING`,
		lease.RecordID,
		lease.Kind,
		int(lease.Filter),
		lease.Owner.ID,
		lease.Owner.Name,
		formatTime(lease.AcquiredAt),
		formatTime(lease.ExpiresAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert lease for record %d: %w", lease.RecordID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert lease for record %d: rows affected: %w", lease.RecordID, err)
	}
	return affected == 1, nil
}

// ExtendLease moves expires_at when ownerID still holds the lease.
func (t *Tx) ExtendLease(ctx context.Context, recordID int64, ownerID string, expiresAt time.Time) (bool, error) {
	res, err := t.exec(ctx,
		"UPDATE leases SET expires_at = ? WHERE record_id = ? AND owner_id = ?",
		formatTime(expiresAt), recordID, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("extend lease for record %d: %w", recordID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("extend lease for record %d: rows affected: %w", recordID, err)
	}
	return affected == 1, nil
}

// DeleteLease removes a record's lease. Deleting a missing lease is not an error.
func (t *Tx) DeleteLease(ctx context.Context, recordID int64) (bool, error) {
	res, err := t.exec(ctx, "DELETE FROM leases WHERE record_id = ?", recordID)
	if err != nil {
		return false, fmt.Errorf("delete lease for record %d: %w", recordID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete lease for record %d: rows affected: %w", recordID, err)
	}
	return affected > 0, nil
}

// RevertExpiredAttempts rolls back the in-progress filter and record status
// guarded by every lease that expired before now. It must run before
// DeleteExpiredLeases in the same transaction.
func (t *Tx) RevertExpiredAttempts(ctx context.Context, now time.Time) (int64, error) {
	cutoff := formatTime(now)
	if _, err := t.exec(ctx,
		`UPDATE filters SET status = ?, performed_by_id = NULL, performed_by_name = NULL, started_at = NULL
		 WHERE status = ? AND EXISTS (
		     SELECT 1 FROM leases l
		     WHERE l.record_id = filters.record_id AND l.filter_n = filters.filter_n AND l.expires_at < ?)`,
		string(record.FilterNotStarted), string(record.FilterInProgress), cutoff,
	); err != nil {
		return 0, fmt.Errorf("revert expired filters: %w", err)
	}

	res, err := t.exec(ctx,
		`UPDATE records SET status = ?, updated_at = ?
		 WHERE status IN (?, ?, ?) AND EXISTS (
		     SELECT 1 FROM leases l WHERE l.record_id = records.id AND l.expires_at < ?)`,
		string(record.StatusDraft), cutoff,
		string(record.StatusInFilter1), string(record.StatusInFilter2), string(record.StatusInFilter3),
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("revert expired records: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revert expired records: rows affected: %w", err)
	}
	return affected, nil
}

// DeleteExpiredLeases removes every lease whose expires_at is before now.
func (t *Tx) DeleteExpiredLeases(ctx context.Context, now time.Time) (int64, error) {
	res, err := t.exec(ctx, "DELETE FROM leases WHERE expires_at < ?", formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired leases: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired leases: rows affected: %w", err)
	}
	return affected, nil
}
