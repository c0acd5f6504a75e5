package testsupport

import (
	"testing"

	"callpanel/internal/config"
	"callpanel/internal/lease"
	"callpanel/internal/store"
	"callpanel/internal/workflow"
)

// NewEngine opens a store for cfg and returns an engine whose lease clock is
// driven by clock. A nil clock uses the wall clock.
func NewEngine(t testing.TB, cfg *config.Config, clock *Clock, opts ...workflow.Option) (*workflow.Engine, *store.Store) {
	t.Helper()

	st := MustOpenStore(t, cfg)
	var leaseOpts []lease.Option
	if clock != nil {
		leaseOpts = append(leaseOpts, lease.WithClock(clock.Now))
	}
	engine, err := workflow.NewEngine(st, lease.NewManager(cfg.LeaseTTL(), leaseOpts...), opts...)
	if err != nil {
		t.Fatalf("workflow.NewEngine: %v", err)
	}
	return engine, st
}
