package workflow

import (
	"context"

	"callpanel/internal/record"
	"callpanel/internal/sequencer"
	"callpanel/internal/store"
)

// Summary is one row of the record list.
type Summary struct {
	Record record.Record
	Lease  *record.Lease
}

// Detail is a record with its filters, live lease and per-filter
// sequencing state.
type Detail struct {
	Record       record.Record
	Filters      record.Filters
	Lease        *record.Lease
	Blocked      [record.FilterCount]bool
	BlockReasons [record.FilterCount]string
	// NextEligible is the filter that may start next, or 0.
	NextEligible record.Index
}

// Stats counts records by status.
type Stats struct {
	ByStatus     map[record.Status]int
	Total        int
	ActiveLeases int
}

// List returns every record in creation order with its live lease, if any.
func (e *Engine) List(ctx context.Context) ([]Summary, error) {
	var out []Summary
	err := e.run(ctx, "list", func(tx *store.Tx) error {
		records, err := tx.ListRecords(ctx)
		if err != nil {
			return err
		}
		leases, err := tx.ListLeases(ctx)
		if err != nil {
			return err
		}
		now := e.leases.Now()
		out = make([]Summary, 0, len(records))
		for _, rec := range records {
			s := Summary{Record: *rec}
			if l, ok := leases[rec.ID]; ok && !l.Expired(now) {
				s.Lease = l
			}
			out = append(out, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Detail returns record id with its filters and lease.
func (e *Engine) Detail(ctx context.Context, id int64) (*Detail, error) {
	var detail *Detail
	err := e.run(ctx, "detail", func(tx *store.Tx) error {
		var err error
		detail, err = e.readDetail(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// Stats returns record counts by status. Every status is present.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByStatus: make(map[record.Status]int, len(record.AllStatuses()))}
	err := e.run(ctx, "stats", func(tx *store.Tx) error {
		counts, err := tx.CountByStatus(ctx)
		if err != nil {
			return err
		}
		for _, status := range record.AllStatuses() {
			stats.ByStatus[status] = counts[status]
			stats.Total += counts[status]
		}
		leases, err := tx.ListLeases(ctx)
		if err != nil {
			return err
		}
		now := e.leases.Now()
		for _, l := range leases {
			if !l.Expired(now) {
				stats.ActiveLeases++
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func (e *Engine) readDetail(ctx context.Context, tx *store.Tx, id int64) (*Detail, error) {
	rec, err := tx.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, notFound(id)
	}
	filters, err := tx.Filters(ctx, id)
	if err != nil {
		return nil, err
	}
	current, err := e.leases.Current(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	statuses := filters.Statuses()
	detail := &Detail{
		Record:  *rec,
		Filters: filters,
		Lease:   current,
		Blocked: sequencer.BlockedSet(rec.Status, statuses),
	}
	for _, n := range record.Indexes {
		detail.BlockReasons[n-1] = sequencer.BlockReason(rec.Status, statuses, n)
	}
	if next, ok := sequencer.NextEligible(rec.Status, statuses); ok {
		detail.NextEligible = next
	}
	return detail, nil
}
