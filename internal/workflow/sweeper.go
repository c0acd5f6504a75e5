package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"callpanel/internal/logging"
)

// Sweeper periodically removes expired leases so expiry becomes visible
// without waiting for the next request. Requests still sweep on their own.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSweeper creates a sweeper. A non-positive interval disables it.
func NewSweeper(engine *Engine, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		engine:   engine,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "lease-sweeper"),
	}
}

// Enabled reports whether Start will launch a loop.
func (s *Sweeper) Enabled() bool {
	return s != nil && s.interval > 0
}

// Start launches the sweep loop.
func (s *Sweeper) Start(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("lease sweeper already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	go s.loop(runCtx)
	s.logger.Info("lease sweeper started", logging.Duration("interval", s.interval))
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.engine.Sweep(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				s.logger.Warn("lease sweep failed; expired leases remain until the next request",
					logging.Error(err),
				)
			}
		}
	}
}
