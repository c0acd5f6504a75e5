package lease

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"callpanel/internal/logging"
	"callpanel/internal/record"
)

// DefaultTTL is the lease lifetime when none is configured.
const DefaultTTL = 60 * time.Second

// DefaultHeartbeat is the recommended renewal cadence for holders.
const DefaultHeartbeat = 25 * time.Second

var (
	// ErrLocked means an unexpired lease already exists for the record.
	ErrLocked = errors.New("record is locked")
	// ErrNotFound means the record holds no live lease.
	ErrNotFound = errors.New("no lease held")
	// ErrNotOwner means the lease belongs to a different actor.
	ErrNotOwner = errors.New("lease held by another actor")
)

// Tx is the slice of the store a Manager needs. *store.Tx satisfies it.
type Tx interface {
	GetLease(ctx context.Context, recordID int64) (*record.Lease, error)
	InsertLeaseIfAbsent(ctx context.Context, lease record.Lease) (bool, error)
	ExtendLease(ctx context.Context, recordID int64, ownerID string, expiresAt time.Time) (bool, error)
	DeleteLease(ctx context.Context, recordID int64) (bool, error)
	RevertExpiredAttempts(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredLeases(ctx context.Context, now time.Time) (int64, error)
}

// Manager applies TTL and ownership rules on top of the lease table. It holds
// no state of its own; every call works inside the caller's transaction.
type Manager struct {
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logging.NewComponentLogger(logger, "lease")
	}
}

// NewManager builds a Manager. A non-positive ttl selects DefaultTTL.
func NewManager(ttl time.Duration, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{ttl: ttl, now: time.Now, logger: logging.NewComponentLogger(nil, "lease")}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the configured lease lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Now returns the manager's notion of the current time, in UTC.
func (m *Manager) Now() time.Time { return m.now().UTC() }

// Acquire grants recordID to owner for filter n. The existence check and the
// insert are one conditional statement, so of two concurrent callers exactly
// one succeeds and the other gets ErrLocked.
func (m *Manager) Acquire(ctx context.Context, tx Tx, recordID int64, n record.Index, owner record.Actor) (record.Lease, error) {
	now := m.Now()
	lease := record.Lease{
		RecordID:   recordID,
		Kind:       record.LeaseKindFilter,
		Filter:     n,
		Owner:      owner,
		AcquiredAt: now,
		ExpiresAt:  now.Add(m.ttl),
	}
	ok, err := tx.InsertLeaseIfAbsent(ctx, lease)
	if err != nil {
		return record.Lease{}, err
	}
	if !ok {
		return record.Lease{}, ErrLocked
	}
	logging.WithContext(ctx, m.logger).Debug("lease acquired",
		logging.RecordID(recordID),
		logging.Filter(int(n)),
		logging.String("owner", owner.ID),
		logging.Time("expires_at", lease.ExpiresAt),
	)
	return lease, nil
}

// Renew pushes expires_at to now+TTL. Ownership never changes.
func (m *Manager) Renew(ctx context.Context, tx Tx, recordID int64, owner record.Actor) (record.Lease, error) {
	now := m.Now()
	current, err := tx.GetLease(ctx, recordID)
	if err != nil {
		return record.Lease{}, err
	}
	if current == nil || current.Expired(now) {
		return record.Lease{}, ErrNotFound
	}
	if !current.OwnedBy(owner) {
		return *current, ErrNotOwner
	}
	expires := now.Add(m.ttl)
	ok, err := tx.ExtendLease(ctx, recordID, owner.ID, expires)
	if err != nil {
		return record.Lease{}, err
	}
	if !ok {
		// The row changed hands between the read and the conditional update.
		return *current, ErrNotOwner
	}
	renewed := *current
	renewed.ExpiresAt = expires
	return renewed, nil
}

// Release deletes the record's lease. Releasing nothing is not an error.
func (m *Manager) Release(ctx context.Context, tx Tx, recordID int64) error {
	_, err := tx.DeleteLease(ctx, recordID)
	return err
}

// Current returns the live lease for a record, or nil.
func (m *Manager) Current(ctx context.Context, tx Tx, recordID int64) (*record.Lease, error) {
	current, err := tx.GetLease(ctx, recordID)
	if err != nil || current == nil {
		return nil, err
	}
	if current.Expired(m.Now()) {
		return nil, nil
	}
	return current, nil
}

// SweepResult reports what a sweep removed.
type SweepResult struct {
	Expired  int64
	Reverted int64
}

// Sweep deletes every lease that expired before now. The attempt each one
// guarded is returned to draft first so no filter is left in progress
// without a holder.
func (m *Manager) Sweep(ctx context.Context, tx Tx) (SweepResult, error) {
	now := m.Now()
	reverted, err := tx.RevertExpiredAttempts(ctx, now)
	if err != nil {
		return SweepResult{}, err
	}
	expired, err := tx.DeleteExpiredLeases(ctx, now)
	if err != nil {
		return SweepResult{}, err
	}
	if expired > 0 {
		logging.WithContext(ctx, m.logger).Info("expired leases swept",
			logging.Int64("expired", expired),
			logging.Int64("reverted", reverted),
		)
	}
	return SweepResult{Expired: expired, Reverted: reverted}, nil
}
