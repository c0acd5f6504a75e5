package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"callpanel/internal/record"
	"callpanel/internal/workflow"
)

type fakeLister struct {
	mu    sync.Mutex
	pages [][]workflow.Summary
	errs  []error
	calls int
}

func (f *fakeLister) List(context.Context) ([]workflow.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.pages) {
		return f.pages[i], nil
	}
	return f.pages[len(f.pages)-1], nil
}

func summary(id int64, status record.Status) workflow.Summary {
	return workflow.Summary{Record: record.Record{ID: id, Status: status, CurrentFilter: 1}}
}

func TestReadModelReplacesWholesale(t *testing.T) {
	m := NewReadModel()
	if m.Version() != 0 || len(m.Current().Records) != 0 {
		t.Fatalf("unexpected initial model: %#v", m.Current())
	}

	page := []workflow.Summary{summary(1, record.StatusDraft)}
	first := m.Replace(page, time.Unix(100, 0))
	page[0].Record.Status = record.StatusDone
	if first.Records[0].Record.Status != record.StatusDraft {
		t.Fatal("snapshot shares storage with the caller's slice")
	}

	second := m.Replace([]workflow.Summary{summary(2, record.StatusInFilter1)}, time.Unix(200, 0))
	if first.Version != 1 || second.Version != 2 || m.Version() != 2 {
		t.Fatalf("versions = %d, %d, %d", first.Version, second.Version, m.Version())
	}
	if _, ok := first.Find(1); !ok {
		t.Fatal("older snapshot should be unchanged")
	}
	if _, ok := m.Current().Find(1); ok {
		t.Fatal("record 1 should not survive the replacement")
	}
	if got, ok := m.Current().Find(2); !ok || got.Record.Status != record.StatusInFilter1 {
		t.Fatalf("Find(2) = %#v, %v", got, ok)
	}
}

func TestPollerKeepsSnapshotOnError(t *testing.T) {
	lister := &fakeLister{
		pages: [][]workflow.Summary{{summary(1, record.StatusDraft)}},
		errs:  []error{nil, errors.New("daemon down")},
	}
	m := NewReadModel()
	p := NewPoller(lister, m, time.Second, nil)

	snap, err := p.Poll(context.Background())
	if err != nil || snap.Version != 1 {
		t.Fatalf("first poll = %v, %v", snap, err)
	}
	snap, err = p.Poll(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if snap.Version != 1 || m.Version() != 1 {
		t.Fatalf("failed poll changed the model: %d", m.Version())
	}
}

func TestPollerRunDeliversVersions(t *testing.T) {
	lister := &fakeLister{
		pages: [][]workflow.Summary{
			{summary(1, record.StatusDraft)},
			{summary(1, record.StatusInFilter1)},
			{summary(1, record.StatusInFilter1), summary(2, record.StatusDraft)},
		},
		errs: []error{nil, errors.New("blip")},
	}
	m := NewReadModel()
	p := NewPoller(lister, m, 2*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var (
		versions []uint64
		errCount int
	)
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, func(s *Snapshot) {
			versions = append(versions, s.Version)
			if len(versions) == 3 {
				cancel()
			}
		}, func(error) { errCount++ })
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("poller did not deliver three snapshots")
	}
	if len(versions) != 3 || versions[0] != 1 || versions[2] != 3 {
		t.Fatalf("versions = %v", versions)
	}
	if errCount != 1 {
		t.Fatalf("errors = %d, want 1", errCount)
	}
	if len(m.Current().Records) != 2 {
		t.Fatalf("latest snapshot has %d records", len(m.Current().Records))
	}
}

func TestPollerRequiresInterval(t *testing.T) {
	p := NewPoller(&fakeLister{pages: [][]workflow.Summary{nil}}, NewReadModel(), 0, nil)
	if err := p.Run(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error for zero interval")
	}
}
