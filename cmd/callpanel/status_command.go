package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"callpanel/internal/api"
	"callpanel/internal/client"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, database and record status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := ctx.newClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			status, err := cl.Status(cmd.Context())
			if err != nil {
				if client.IsAPIUnavailable(err) {
					if ctx.jsonOutput() {
						return writeJSON(cmd, api.DaemonStatus{Running: false})
					}
					fmt.Fprintln(out, renderStatusLine("Daemon", statusInfo,
						fmt.Sprintf("Not running (nothing listening at %s)", ctx.apiAddress()), colorize))
					return nil
				}
				return ctx.wrapAPIError(err)
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, status)
			}

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
			fmt.Fprintln(out, renderStatusLine("Lease TTL", statusInfo, fmt.Sprintf("%ds", status.LeaseTTLSeconds), colorize))
			sweep := "Lazy (on access)"
			if status.SweepIntervalSeconds > 0 {
				sweep = fmt.Sprintf("Every %ds", status.SweepIntervalSeconds)
			}
			fmt.Fprintln(out, renderStatusLine("Lease sweep", statusInfo, sweep, colorize))

			db := status.Database
			dbKind, dbMsg := statusOK, fmt.Sprintf("%s %s (schema v%d)", db.Driver, db.Target, db.SchemaVersion)
			switch {
			case db.Error != "":
				dbKind, dbMsg = statusError, db.Error
			case !db.IntegrityCheck:
				dbKind = statusWarn
				dbMsg += ", integrity check failed"
			}
			fmt.Fprintln(out, renderStatusLine("Database", dbKind, dbMsg, colorize))
			fmt.Fprintln(out, renderStatusLine("Active leases", statusInfo, fmt.Sprintf("%d", status.Stats.ActiveLeases), colorize))
			fmt.Fprintln(out, renderStatusLine("Integrity", statusInfo, yesNo(db.IntegrityCheck), colorize))
			fmt.Fprintln(out)

			for _, line := range renderSectionHeader("Records", colorize) {
				fmt.Fprintln(out, line)
			}
			rows := buildStatsRows(status.Stats.Counts)
			rows = append(rows, []string{"Total", fmt.Sprintf("%d", status.Stats.Total)})
			fmt.Fprint(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}
