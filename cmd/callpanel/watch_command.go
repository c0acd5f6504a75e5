package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"callpanel/internal/client"
	"callpanel/internal/logging"
)

const clearScreen = "\x1b[H\x1b[2J"

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration
	var iterations int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh the record list on an interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cl, err := ctx.newClient()
			if err != nil {
				return err
			}
			if interval <= 0 {
				interval = cfg.PollInterval()
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			runCtx, cancel := context.WithCancel(runCtx)
			defer cancel()

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			model := client.NewReadModel()
			poller := client.NewPoller(cl, model, interval, logging.NewNop())

			shown := 0
			onUpdate := func(snap *client.Snapshot) {
				if colorize {
					fmt.Fprint(out, clearScreen)
				}
				fmt.Fprintf(out, "Version %d, fetched %s\n", snap.Version, snap.FetchedAt.Local().Format(time.TimeOnly))
				fmt.Fprint(out, renderRecordList(snap.Records, time.Now(), colorize))
				shown++
				if iterations > 0 && shown >= iterations {
					cancel()
				}
			}
			onError := func(err error) {
				fmt.Fprintf(cmd.ErrOrStderr(), "refresh failed: %v\n", ctx.wrapAPIError(err))
			}
			return poller.Run(runCtx, onUpdate, onError)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "Refresh interval (default client.poll_interval_seconds)")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "Stop after this many refreshes (0 = until interrupted)")
	return cmd
}
