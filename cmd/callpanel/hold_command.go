package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"callpanel/internal/api"
	"callpanel/internal/client"
	"callpanel/internal/logging"
	"callpanel/internal/record"
)

func newHoldCommand(ctx *commandContext) *cobra.Command {
	var startFilter int
	var holdFor time.Duration

	cmd := &cobra.Command{
		Use:   "hold <id>",
		Short: "Keep your lease on a record alive until interrupted",
		Long: "Renews the lease you hold on a record every lease.heartbeat_seconds until " +
			"interrupted, the --for duration elapses, or the lease is lost. With --start, " +
			"starts the filter first.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cl, err := ctx.newClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if holdFor > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(runCtx, holdFor)
				defer cancel()
			}

			if startFilter != 0 {
				detail, err := cl.Start(runCtx, id, startFilter)
				if err != nil {
					return ctx.wrapAPIError(err)
				}
				fmt.Fprintf(out, "Started filter %d on record %d\n", startFilter, id)
				if detail.Lease != nil {
					fmt.Fprintf(out, "Holding %s\n", api.HolderText(detail.Lease))
				}
			}

			hb := client.NewHeartbeat(cl, id, cfg.HeartbeatInterval(),
				client.WithHeartbeatLogger(logging.NewNop()),
				client.OnRenew(func(l record.Lease) {
					fmt.Fprintf(out, "Renewed lease on record %d until %s\n", id, l.ExpiresAt.Local().Format(time.TimeOnly))
				}),
			)
			if err := hb.Start(runCtx); err != nil {
				return err
			}
			defer hb.Stop()

			select {
			case <-runCtx.Done():
			case <-hb.Done():
			}
			hb.Stop()
			if err := hb.Err(); err != nil {
				var apiErr *client.APIError
				if errors.As(err, &apiErr) {
					return fmt.Errorf("lease on record %d lost: %w", id, formatAPIError(apiErr))
				}
				return fmt.Errorf("lease on record %d lost: %w", id, err)
			}
			fmt.Fprintf(out, "Stopped holding record %d after %d renewal(s)\n", id, hb.Renewals())
			return nil
		},
	}
	cmd.Flags().IntVar(&startFilter, "start", 0, "Start this filter before holding")
	cmd.Flags().DurationVar(&holdFor, "for", 0, "Stop holding after this long (0 = until interrupted)")
	return cmd
}
