package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"callpanel/internal/lease"
	"callpanel/internal/logging"
	"callpanel/internal/record"
	"callpanel/internal/sequencer"
	"callpanel/internal/store"
)

// Engine applies workflow transitions against the store.
type Engine struct {
	store   *store.Store
	leases  *lease.Manager
	logger  *slog.Logger
	meter   metric.Meter
	metrics *metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logging.NewComponentLogger(logger, "workflow")
	}
}

// WithMeter records metrics on meter instead of the global provider.
func WithMeter(meter metric.Meter) Option {
	return func(e *Engine) {
		e.meter = meter
	}
}

// NewEngine builds an Engine over st, using leases for TTL and clock.
func NewEngine(st *store.Store, leases *lease.Manager, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, errors.New("workflow engine requires a store")
	}
	if leases == nil {
		leases = lease.NewManager(lease.DefaultTTL)
	}
	e := &Engine{
		store:  st,
		leases: leases,
		logger: logging.NewComponentLogger(nil, "workflow"),
	}
	for _, opt := range opts {
		opt(e)
	}
	m, err := newMetrics(e.meter)
	if err != nil {
		return nil, fmt.Errorf("init workflow metrics: %w", err)
	}
	e.metrics = m
	return e, nil
}

// LeaseTTL returns the lease lifetime granted by Start and Renew.
func (e *Engine) LeaseTTL() time.Duration { return e.leases.TTL() }

// Now returns the engine clock in UTC.
func (e *Engine) Now() time.Time { return e.leases.Now() }

// NewRecord describes a record to create.
type NewRecord struct {
	Agent      string
	Group      string
	Visibility string
	NextDueAt  *time.Time
}

// run executes fn in one transaction after sweeping expired leases. Errors
// come back as *Error; internal ones are logged here with full detail.
func (e *Engine) run(ctx context.Context, op string, fn func(tx *store.Tx) error) error {
	started := time.Now()
	var expired int64
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		res, err := e.leases.Sweep(ctx, tx)
		if err != nil {
			return fmt.Errorf("sweep leases: %w", err)
		}
		expired = res.Expired
		return fn(tx)
	})
	e.metrics.record(ctx, op, started, err)
	if err == nil {
		e.metrics.expired(ctx, expired)
		return nil
	}
	wfErr := asEngineError(err)
	logger := logging.WithContext(ctx, e.logger)
	if wfErr.Kind == KindInternal {
		logger.Error("workflow operation failed",
			logging.Operation(op),
			logging.Error(err),
		)
	} else {
		logger.Debug("workflow operation rejected",
			logging.Operation(op),
			logging.String("code", wfErr.Code),
			logging.String("reason", wfErr.Message),
		)
	}
	return wfErr
}

// Create inserts a draft record with three not_started filters.
func (e *Engine) Create(ctx context.Context, in NewRecord) (*Detail, error) {
	agent := strings.TrimSpace(in.Agent)
	if agent == "" {
		return nil, validation(CodeAgentRequired, "agent is required")
	}
	now := e.leases.Now()
	rec := &record.Record{
		Agent:         agent,
		Group:         strings.TrimSpace(in.Group),
		Visibility:    strings.TrimSpace(in.Visibility),
		Status:        record.StatusDraft,
		CurrentFilter: 1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.NextDueAt != nil {
		due := in.NextDueAt.UTC()
		rec.NextDueAt = &due
	}

	var detail *Detail
	err := e.run(ctx, "create", func(tx *store.Tx) error {
		if err := tx.InsertRecord(ctx, rec); err != nil {
			return err
		}
		var err error
		detail, err = e.readDetail(ctx, tx, rec.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	logging.WithContext(logging.WithRecordID(ctx, rec.ID), e.logger).Info("record created",
		logging.String("agent", rec.Agent),
		logging.String("group", rec.Group),
	)
	return detail, nil
}

// Start moves record id into filter n on behalf of actor and grants actor the
// record's lease. Either everything applies or nothing does.
func (e *Engine) Start(ctx context.Context, id int64, n int, actor record.Actor) (*Detail, error) {
	ctx = logging.WithActorID(logging.WithRecordID(ctx, id), actor.ID)
	var detail *Detail
	err := e.run(ctx, "start", func(tx *store.Tx) error {
		idx, err := record.ParseIndex(n)
		if err != nil {
			return validation(CodeBadFilterN, err.Error())
		}
		if !actor.Valid() {
			return validation(CodeActorRequired, "actor id is required")
		}
		rec, filters, err := e.load(ctx, tx, id)
		if err != nil {
			return err
		}

		if rec.Status.IsTerminal() || rec.Status == record.StatusPaused {
			return conflict(CodeCannotStartFromStatus,
				fmt.Sprintf("cannot start a filter on a %s record", rec.Status), rec, filters)
		}
		if active, ok := rec.Status.ActiveFilter(); ok {
			holder, err := e.leases.Current(ctx, tx, id)
			if err != nil {
				return err
			}
			if holder != nil && !holder.OwnedBy(actor) {
				c := conflict(CodeLocked, fmt.Sprintf("record is locked by %s", holder.Owner.Label()), rec, filters)
				c.Holder = holder
				return c
			}
			return conflict(CodeAlreadyInFilter,
				fmt.Sprintf("record is already in filter %d", active), rec, filters)
		}
		if sequencer.IsBlocked(rec.Status, filters.Statuses(), idx) {
			return conflict(CodeSequenceBlocked,
				fmt.Sprintf("filter %d is blocked: %s", idx, sequencer.BlockReason(rec.Status, filters.Statuses(), idx)),
				rec, filters)
		}

		granted, err := e.leases.Acquire(ctx, tx, id, idx, actor)
		if errors.Is(err, lease.ErrLocked) {
			c := conflict(CodeLocked, "record is locked", rec, filters)
			if holder, herr := e.leases.Current(ctx, tx, id); herr == nil && holder != nil {
				c.Holder = holder
				c.Message = fmt.Sprintf("record is locked by %s", holder.Owner.Label())
			}
			return c
		}
		if err != nil {
			return err
		}

		now := granted.AcquiredAt
		rec.Status = record.InFilterStatus(idx)
		rec.CurrentFilter = idx
		rec.UpdatedAt = now
		if err := tx.UpdateRecord(ctx, rec); err != nil {
			return err
		}
		f := filters.Get(idx)
		performer := actor
		f.Status = record.FilterInProgress
		f.PerformedBy = &performer
		f.StartedAt = &now
		f.FinishedAt = nil
		if err := tx.UpdateFilter(ctx, f); err != nil {
			return err
		}

		detail, err = e.readDetail(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	logging.WithContext(ctx, e.logger).Info("filter started",
		logging.Filter(n),
		logging.Time("lease_expires_at", detail.Lease.ExpiresAt),
	)
	return detail, nil
}

// Renew extends the lease actor holds on record id. Record and filter rows
// are not touched.
func (e *Engine) Renew(ctx context.Context, id int64, actor record.Actor) (record.Lease, error) {
	ctx = logging.WithActorID(logging.WithRecordID(ctx, id), actor.ID)
	var renewed record.Lease
	err := e.run(ctx, "renew", func(tx *store.Tx) error {
		if !actor.Valid() {
			return validation(CodeActorRequired, "actor id is required")
		}
		rec, err := tx.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return notFound(id)
		}
		current, err := e.leases.Renew(ctx, tx, id, actor)
		switch {
		case errors.Is(err, lease.ErrNotFound):
			return &Error{Kind: KindNotFound, Code: CodeNoLock, Message: "no lease is held on this record", RecordID: id, Status: rec.Status}
		case errors.Is(err, lease.ErrNotOwner):
			holder := current
			return &Error{
				Kind:     KindForbidden,
				Code:     CodeNotLockOwner,
				Message:  fmt.Sprintf("lease is held by %s", holder.Owner.Label()),
				RecordID: id,
				Status:   rec.Status,
				Holder:   &holder,
			}
		case err != nil:
			return err
		}
		renewed = current
		return nil
	})
	if err != nil {
		return record.Lease{}, err
	}
	return renewed, nil
}

// MaxNextDueMinutes caps the follow-up delay accepted by Finish (one year).
const MaxNextDueMinutes = 365 * 24 * 60

// Finish completes filter n. The record returns to draft pointing at the next
// filter, or becomes done after filter 3. The lease is always released.
// nextDueMinutes, when set, schedules the next filter relative to now.
func (e *Engine) Finish(ctx context.Context, id int64, n int, actor record.Actor, nextDueMinutes *int) (*Detail, error) {
	ctx = logging.WithActorID(logging.WithRecordID(ctx, id), actor.ID)
	var detail *Detail
	err := e.run(ctx, "finish", func(tx *store.Tx) error {
		idx, err := record.ParseIndex(n)
		if err != nil {
			return validation(CodeBadFilterN, err.Error())
		}
		if nextDueMinutes != nil {
			switch {
			case *nextDueMinutes < 0:
				return validation(CodeBadNextDue, "next due minutes must not be negative")
			case *nextDueMinutes > MaxNextDueMinutes:
				return validation(CodeBadNextDue,
					fmt.Sprintf("next due minutes must be at most %d", MaxNextDueMinutes))
			}
		}
		rec, filters, err := e.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if rec.Status != record.InFilterStatus(idx) {
			return conflict(CodeNotInThatFilter,
				fmt.Sprintf("record is %s, not in filter %d", rec.Status, idx), rec, filters)
		}
		holder, err := e.leases.Current(ctx, tx, id)
		if err != nil {
			return err
		}
		if holder == nil {
			return conflict(CodeNoLock, "no lease is held on this record", rec, filters)
		}
		if !holder.OwnedBy(actor) {
			statuses := filters.Statuses()
			return &Error{
				Kind:     KindForbidden,
				Code:     CodeNotLockOwner,
				Message:  fmt.Sprintf("lease is held by %s", holder.Owner.Label()),
				RecordID: id,
				Status:   rec.Status,
				Filters:  &statuses,
				Holder:   holder,
			}
		}

		now := e.leases.Now()
		f := filters.Get(idx)
		f.Status = record.FilterCompleted
		f.FinishedAt = &now
		if err := tx.UpdateFilter(ctx, f); err != nil {
			return err
		}

		if next, ok := sequencer.NextAfterFinish(idx); ok {
			var due *time.Time
			if nextDueMinutes != nil {
				at := now.Add(time.Duration(*nextDueMinutes) * time.Minute)
				due = &at
			}
			rec.Status = record.StatusDraft
			rec.CurrentFilter = next
			rec.NextDueAt = due
			nf := filters.Get(next)
			nf.NextDueAt = due
			if err := tx.UpdateFilter(ctx, nf); err != nil {
				return err
			}
		} else {
			rec.Status = record.StatusDone
			rec.CurrentFilter = idx
			rec.FinalizedAt = &now
		}
		rec.UpdatedAt = now
		if err := tx.UpdateRecord(ctx, rec); err != nil {
			return err
		}
		if err := e.leases.Release(ctx, tx, id); err != nil {
			return err
		}

		detail, err = e.readDetail(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	logging.WithContext(ctx, e.logger).Info("filter finished",
		logging.Filter(n),
		logging.String("status", string(detail.Record.Status)),
	)
	return detail, nil
}

// Cancel ends record id with reason. An active filter is marked cancelled
// too, and any lease is released regardless of who holds it.
func (e *Engine) Cancel(ctx context.Context, id int64, actor record.Actor, reason string) (*Detail, error) {
	ctx = logging.WithActorID(logging.WithRecordID(ctx, id), actor.ID)
	var detail *Detail
	err := e.run(ctx, "cancel", func(tx *store.Tx) error {
		normalized, err := NormalizeReason(reason)
		if err != nil {
			return err
		}
		if !actor.Valid() {
			return validation(CodeActorRequired, "actor id is required")
		}
		rec, filters, err := e.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if rec.Status.IsTerminal() {
			return conflict(CodeCannotCancelFromStatus,
				fmt.Sprintf("record is already %s", rec.Status), rec, filters)
		}

		now := e.leases.Now()
		if active, ok := rec.Status.ActiveFilter(); ok {
			f := filters.Get(active)
			f.Status = record.FilterCancelled
			f.CancelReason = normalized
			f.FinishedAt = &now
			if err := tx.UpdateFilter(ctx, f); err != nil {
				return err
			}
		}
		rec.Status = record.StatusCancelled
		rec.CancelReason = normalized
		rec.CancelledBy = actor.Label()
		rec.CancelledAt = &now
		rec.UpdatedAt = now
		if err := tx.UpdateRecord(ctx, rec); err != nil {
			return err
		}
		if err := e.leases.Release(ctx, tx, id); err != nil {
			return err
		}

		detail, err = e.readDetail(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	logging.WithContext(ctx, e.logger).Info("record cancelled",
		logging.String("reason", detail.Record.CancelReason),
	)
	return detail, nil
}

// Sweep removes expired leases and reclaims the attempts they guarded.
func (e *Engine) Sweep(ctx context.Context) (lease.SweepResult, error) {
	var res lease.SweepResult
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		res, err = e.leases.Sweep(ctx, tx)
		return err
	})
	if err != nil {
		return lease.SweepResult{}, asEngineError(err)
	}
	e.metrics.expired(ctx, res.Expired)
	return res, nil
}

// load reads a record for update along with its filters.
func (e *Engine) load(ctx context.Context, tx *store.Tx, id int64) (*record.Record, record.Filters, error) {
	rec, err := tx.LockRecord(ctx, id)
	if err != nil {
		return nil, record.Filters{}, err
	}
	if rec == nil {
		return nil, record.Filters{}, notFound(id)
	}
	filters, err := tx.Filters(ctx, id)
	if err != nil {
		return nil, record.Filters{}, err
	}
	return rec, filters, nil
}
