package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"callpanel/internal/api"
	"callpanel/internal/record"
	"callpanel/internal/workflow"
)

type fakeRenewer struct {
	calls atomic.Int32
	mu    sync.Mutex
	errAt map[int32]error
}

func (f *fakeRenewer) Renew(_ context.Context, id int64) (record.Lease, error) {
	n := f.calls.Add(1)
	f.mu.Lock()
	err := f.errAt[n]
	f.mu.Unlock()
	if err != nil {
		return record.Lease{}, err
	}
	return record.Lease{RecordID: id, Filter: 1, ExpiresAt: time.Now().Add(time.Minute)}, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestHeartbeatStopIsDeterministic(t *testing.T) {
	r := &fakeRenewer{}
	renewed := make(chan record.Lease, 16)
	hb := NewHeartbeat(r, 7, 5*time.Millisecond, OnRenew(func(l record.Lease) {
		select {
		case renewed <- l:
		default:
		}
	}))
	if err := hb.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := hb.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}

	waitFor(t, "three renewals", func() bool { return hb.Renewals() >= 3 })
	if l := <-renewed; l.RecordID != 7 {
		t.Fatalf("renewed lease for record %d", l.RecordID)
	}

	hb.Stop()
	after := r.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if got := r.calls.Load(); got != after {
		t.Fatalf("renew called after Stop: %d -> %d", after, got)
	}
	if hb.Err() != nil {
		t.Fatalf("Err after Stop = %v", hb.Err())
	}
	select {
	case <-hb.Done():
	default:
		t.Fatal("Done should be closed after Stop")
	}
	hb.Stop()
}

func TestHeartbeatStopsItselfWhenLeaseLost(t *testing.T) {
	for _, code := range []string{workflow.CodeNoLock, workflow.CodeNotLockOwner} {
		t.Run(code, func(t *testing.T) {
			r := &fakeRenewer{errAt: map[int32]error{
				2: &APIError{StatusCode: 409, Body: api.ErrorBody{Kind: "conflict", Code: code}},
			}}
			hb := NewHeartbeat(r, 1, 5*time.Millisecond)
			if err := hb.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}
			select {
			case <-hb.Done():
			case <-time.After(5 * time.Second):
				t.Fatal("heartbeat did not stop itself")
			}
			if !errors.Is(hb.Err(), ErrLeaseLost) {
				t.Fatalf("Err = %v, want ErrLeaseLost", hb.Err())
			}
			if CodeOf(hb.Err()) != code {
				t.Fatalf("code = %q, want %q", CodeOf(hb.Err()), code)
			}
			if got := r.calls.Load(); got != 2 {
				t.Fatalf("calls = %d, want 2", got)
			}
			hb.Stop()
		})
	}
}

func TestHeartbeatSurvivesTransientErrors(t *testing.T) {
	r := &fakeRenewer{errAt: map[int32]error{
		1: errors.New("connection reset"),
		2: &APIError{StatusCode: 500, Body: api.ErrorBody{Kind: "internal", Code: "internal"}},
	}}
	hb := NewHeartbeat(r, 1, 5*time.Millisecond)
	if err := hb.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer hb.Stop()
	waitFor(t, "a renewal after errors", func() bool { return hb.Renewals() >= 1 })
	if hb.Err() != nil {
		t.Fatalf("Err = %v", hb.Err())
	}
}

func TestHeartbeatStopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hb := NewHeartbeat(&fakeRenewer{}, 1, 5*time.Millisecond)
	if err := hb.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	select {
	case <-hb.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("heartbeat ignored context cancellation")
	}
}

func TestHeartbeatRequiresInterval(t *testing.T) {
	hb := NewHeartbeat(&fakeRenewer{}, 1, 0)
	if err := hb.Start(context.Background()); err == nil {
		t.Fatal("expected error for zero interval")
	}
	hb.Stop()
}
