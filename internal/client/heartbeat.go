package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"callpanel/internal/logging"
	"callpanel/internal/record"
	"callpanel/internal/workflow"
)

// Renewer extends a lease the caller holds.
type Renewer interface {
	Renew(ctx context.Context, id int64) (record.Lease, error)
}

// ErrLeaseLost is reported by a heartbeat that stopped because the daemon
// no longer recognises the caller as the lease holder.
var ErrLeaseLost = errors.New("lease lost")

// Heartbeat periodically renews one lease until stopped. It stops itself
// when the lease is gone or owned by someone else.
type Heartbeat struct {
	renewer  Renewer
	recordID int64
	interval time.Duration
	logger   *slog.Logger
	onRenew  func(record.Lease)

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	renewed int
}

// HeartbeatOption customizes a Heartbeat.
type HeartbeatOption func(*Heartbeat)

// WithHeartbeatLogger sets the logger used for renewal failures.
func WithHeartbeatLogger(logger *slog.Logger) HeartbeatOption {
	return func(h *Heartbeat) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// OnRenew registers a callback invoked after every successful renewal.
func OnRenew(fn func(record.Lease)) HeartbeatOption {
	return func(h *Heartbeat) {
		h.onRenew = fn
	}
}

// NewHeartbeat creates a heartbeat for recordID that renews every interval.
func NewHeartbeat(renewer Renewer, recordID int64, interval time.Duration, opts ...HeartbeatOption) *Heartbeat {
	h := &Heartbeat{
		renewer:  renewer,
		recordID: recordID,
		interval: interval,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.NewComponentLogger(h.logger, "heartbeat")
	return h
}

// Start launches the renewal loop.
func (h *Heartbeat) Start(ctx context.Context) error {
	if h.interval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done != nil {
		return errors.New("heartbeat already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.loop(runCtx, h.done)
	return nil
}

// Stop cancels the loop and waits for it to exit. No renewal is issued after
// Stop returns. Safe to call more than once and before Start.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when the loop exits, whether stopped or self-stopped.
func (h *Heartbeat) Done() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// Err returns ErrLeaseLost if the heartbeat stopped itself.
func (h *Heartbeat) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Renewals returns the number of successful renewals.
func (h *Heartbeat) Renewals() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.renewed
}

func (h *Heartbeat) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := h.logger.With(logging.RecordID(h.recordID))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}

		l, err := h.renewer.Renew(ctx, h.recordID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if IsCode(err, workflow.CodeNoLock, workflow.CodeNotLockOwner) {
				h.mu.Lock()
				h.err = errors.Join(ErrLeaseLost, err)
				h.mu.Unlock()
				logger.Warn("lease lost; heartbeat stopping", logging.Error(err))
				return
			}
			logger.Warn("lease renewal failed", logging.Error(err))
			continue
		}

		h.mu.Lock()
		h.renewed++
		h.mu.Unlock()
		logger.Debug("lease renewed", logging.Time("expires_at", l.ExpiresAt))
		if h.onRenew != nil {
			h.onRenew(l)
		}
	}
}
