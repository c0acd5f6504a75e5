package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"callpanel/internal/api"
	"callpanel/internal/client"
	"callpanel/internal/record"
	"callpanel/internal/workflow"
)

var recordListHeaders = []string{"ID", "Agent", "Group", "Status", "Filter", "Due", "Holder", "Lease"}

func buildRecordListRows(list []workflow.Summary, now time.Time, colorize bool) [][]string {
	if len(list) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(list))
	for _, s := range list {
		rec := s.Record
		holder := api.HolderText(s.Lease)
		if holder == "" {
			holder = "-"
		}
		remaining := "-"
		if s.Lease != nil {
			remaining = api.LeaseRemainingText(s.Lease, now)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", rec.ID),
			rec.Agent,
			orDash(rec.Group),
			recordBadge(rec.Status, colorize),
			fmt.Sprintf("%d", rec.CurrentFilter),
			dueBadge(api.DueText(rec.NextDueAt, now), colorize),
			holder,
			remaining,
		})
	}
	return rows
}

func renderRecordList(list []workflow.Summary, now time.Time, colorize bool) string {
	rows := buildRecordListRows(list, now, colorize)
	if len(rows) == 0 {
		return "No records\n"
	}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight}
	return renderTable(recordListHeaders, rows, aligns)
}

func buildFilterRows(d *workflow.Detail) [][]string {
	rows := make([][]string, 0, record.FilterCount)
	for i, f := range d.Filters {
		performer := "-"
		if f.PerformedBy != nil {
			performer = f.PerformedBy.Label()
		}
		state := "ready"
		if d.Blocked[i] {
			state = d.BlockReasons[i]
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", f.N),
			api.FilterStatusLabel(f.Status),
			performer,
			formatTimePtr(f.StartedAt),
			formatTimePtr(f.FinishedAt),
			orDash(state),
		})
	}
	return rows
}

func renderDetail(d *workflow.Detail, now time.Time, colorize bool) string {
	var b strings.Builder
	rec := d.Record
	for _, line := range renderSectionHeader(fmt.Sprintf("Record %d", rec.ID), colorize) {
		b.WriteString(line + "\n")
	}

	pairs := [][2]string{
		{"Agent", rec.Agent},
		{"Group", orDash(rec.Group)},
		{"Visibility", orDash(rec.Visibility)},
		{"Status", recordBadge(rec.Status, colorize)},
		{"Current filter", fmt.Sprintf("%d", rec.CurrentFilter)},
		{"Due", dueBadge(api.DueText(rec.NextDueAt, now), colorize)},
	}
	if d.Lease != nil {
		pairs = append(pairs,
			[2]string{"Holder", api.HolderText(d.Lease)},
			[2]string{"Lease remaining", api.LeaseRemainingText(d.Lease, now)},
		)
	}
	if d.NextEligible != 0 {
		pairs = append(pairs, [2]string{"Next filter", fmt.Sprintf("%d", d.NextEligible)})
	}
	if rec.Status == record.StatusCancelled {
		pairs = append(pairs,
			[2]string{"Cancelled by", orDash(rec.CancelledBy)},
			[2]string{"Cancel reason", orDash(rec.CancelReason)},
		)
	}
	b.WriteString(renderKeyValues(pairs))
	b.WriteString(renderTable(
		[]string{"Filter", "Status", "By", "Started", "Finished", "State"},
		buildFilterRows(d),
		[]columnAlignment{alignRight},
	))
	return b.String()
}

func buildStatsRows(counts map[string]int) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, status := range record.AllStatuses() {
		n, ok := counts[string(status)]
		if !ok {
			continue
		}
		rows = append(rows, []string{api.StatusLabel(status), fmt.Sprintf("%d", n)})
	}
	return rows
}

// formatAPIError turns a daemon error into an operator-facing message that
// includes the record state carried by conflicts.
func formatAPIError(err *client.APIError) error {
	body := err.Body
	msg := body.Message
	if body.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, body.Code)
	}
	var extra []string
	if body.Status != "" {
		extra = append(extra, "status "+body.Status)
	}
	if len(body.Filters) > 0 {
		extra = append(extra, "filters "+strings.Join(body.Filters, "/"))
	}
	if body.Holder != nil {
		extra = append(extra, fmt.Sprintf("held by Filter %d - %s", body.Holder.Filter, holderName(body.Holder)))
	}
	if len(extra) > 0 {
		msg += " (" + strings.Join(extra, ", ") + ")"
	}
	return errors.New(msg)
}

func holderName(l *api.Lease) string {
	if name := strings.TrimSpace(l.Owner.Name); name != "" {
		return name
	}
	return l.Owner.ID
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
