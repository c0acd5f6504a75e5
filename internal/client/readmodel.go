package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"callpanel/internal/logging"
	"callpanel/internal/workflow"
)

// Snapshot is an immutable view of the record list as of one poll.
type Snapshot struct {
	Version   uint64
	FetchedAt time.Time
	Records   []workflow.Summary
}

// Find returns the record with id from the snapshot.
func (s *Snapshot) Find(id int64) (workflow.Summary, bool) {
	if s == nil {
		return workflow.Summary{}, false
	}
	for _, r := range s.Records {
		if r.Record.ID == id {
			return r, true
		}
	}
	return workflow.Summary{}, false
}

// ReadModel holds the latest snapshot. Snapshots are replaced wholesale and
// never edited in place, so readers may keep one as long as they like.
type ReadModel struct {
	mu      sync.RWMutex
	current *Snapshot
}

// NewReadModel returns an empty model at version 0.
func NewReadModel() *ReadModel {
	return &ReadModel{current: &Snapshot{}}
}

// Current returns the latest snapshot.
func (m *ReadModel) Current() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Version returns the latest snapshot version.
func (m *ReadModel) Version() uint64 {
	return m.Current().Version
}

// Replace installs records as the next version and returns it.
func (m *ReadModel) Replace(records []workflow.Summary, fetchedAt time.Time) *Snapshot {
	copied := make([]workflow.Summary, len(records))
	copy(copied, records)

	m.mu.Lock()
	defer m.mu.Unlock()
	next := &Snapshot{
		Version:   m.current.Version + 1,
		FetchedAt: fetchedAt,
		Records:   copied,
	}
	m.current = next
	return next
}

// Lister fetches the record list.
type Lister interface {
	List(ctx context.Context) ([]workflow.Summary, error)
}

// Poller refreshes a ReadModel from a Lister on a fixed interval.
type Poller struct {
	lister   Lister
	model    *ReadModel
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewPoller creates a poller. A nil logger discards output.
func NewPoller(lister Lister, model *ReadModel, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		lister:   lister,
		model:    model,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "poller"),
		now:      time.Now,
	}
}

// Poll fetches once and replaces the model on success. On failure the
// previous snapshot stays current.
func (p *Poller) Poll(ctx context.Context) (*Snapshot, error) {
	records, err := p.lister.List(ctx)
	if err != nil {
		return p.model.Current(), err
	}
	return p.model.Replace(records, p.now()), nil
}

// Run polls immediately and then every interval until ctx is done, calling
// onUpdate with each new snapshot. Fetch errors are passed to onError, if set,
// and polling continues.
func (p *Poller) Run(ctx context.Context, onUpdate func(*Snapshot), onError func(error)) error {
	if p.interval <= 0 {
		return errors.New("poll interval must be positive")
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		snap, err := p.Poll(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			p.logger.Debug("poll failed", logging.Error(err))
			if onError != nil {
				onError(err)
			}
		case onUpdate != nil:
			onUpdate(snap)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
