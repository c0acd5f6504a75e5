package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"callpanel/internal/api"
	"callpanel/internal/client"
	"callpanel/internal/workflow"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List records with their status and lease holder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(cl *client.Client) error {
				list, err := cl.List(cmd.Context())
				if err != nil {
					return err
				}
				now := time.Now()
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.RecordListResponse{Records: api.FromSummaries(list, now)})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderRecordList(list, now, shouldColorize(cmd.OutOrStdout())))
				return nil
			})
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a record with its filters and lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(cl *client.Client) error {
				detail, err := cl.Detail(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printDetail(cmd, ctx, detail)
			})
		},
	}
}

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var req api.CreateRecordRequest
	var dueIn time.Duration

	cmd := &cobra.Command{
		Use:   "create <agent>",
		Short: "Create a draft record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Agent = args[0]
			if dueIn > 0 {
				req.NextDueAt = time.Now().Add(dueIn).UTC().Format(time.RFC3339)
			}
			return ctx.withClient(func(cl *client.Client) error {
				detail, err := cl.Create(cmd.Context(), req)
				if err != nil {
					return err
				}
				if !ctx.jsonOutput() {
					fmt.Fprintf(cmd.OutOrStdout(), "Created record %d\n", detail.Record.ID)
				}
				return printDetail(cmd, ctx, detail)
			})
		},
	}
	cmd.Flags().StringVar(&req.Group, "group", "", "Group the record belongs to")
	cmd.Flags().StringVar(&req.Visibility, "visibility", "", "Visibility scope")
	cmd.Flags().DurationVar(&dueIn, "due-in", 0, "Advisory due time relative to now (e.g. 15m)")
	return cmd
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start <id> <filter>",
		Short: "Start a filter and take the record's lease",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, n, err := parseRecordAndFilter(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(cl *client.Client) error {
				detail, err := cl.Start(cmd.Context(), id, n)
				if err != nil {
					return err
				}
				if !ctx.jsonOutput() {
					fmt.Fprintf(cmd.OutOrStdout(), "Started filter %d on record %d; lease expires %s\n",
						n, id, detail.Lease.ExpiresAt.Local().Format(time.TimeOnly))
					fmt.Fprintln(cmd.OutOrStdout(), "Run `callpanel hold` or `callpanel renew` to keep the lease alive.")
				}
				return printDetail(cmd, ctx, detail)
			})
		},
	}
}

func newFinishCommand(ctx *commandContext) *cobra.Command {
	var nextDue int

	cmd := &cobra.Command{
		Use:   "finish <id> <filter>",
		Short: "Finish a filter you hold",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, n, err := parseRecordAndFilter(args)
			if err != nil {
				return err
			}
			var minutes *int
			if cmd.Flags().Changed("next-due") {
				minutes = &nextDue
			}
			return ctx.withClient(func(cl *client.Client) error {
				detail, err := cl.Finish(cmd.Context(), id, n, minutes)
				if err != nil {
					return err
				}
				if !ctx.jsonOutput() {
					fmt.Fprintf(cmd.OutOrStdout(), "Finished filter %d on record %d\n", n, id)
				}
				return printDetail(cmd, ctx, detail)
			})
		},
	}
	cmd.Flags().IntVar(&nextDue, "next-due", 0, "Minutes until the next filter is due (omit to clear)")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(cl *client.Client) error {
				detail, err := cl.Cancel(cmd.Context(), id, reason)
				if err != nil {
					return err
				}
				if !ctx.jsonOutput() {
					fmt.Fprintf(cmd.OutOrStdout(), "Cancelled record %d\n", id)
				}
				return printDetail(cmd, ctx, detail)
			})
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why the record is cancelled (required)")
	return cmd
}

func newRenewCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "renew <id>",
		Short: "Extend the lease you hold on a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(cl *client.Client) error {
				l, err := cl.Renew(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.LeaseResponse{Lease: *api.FromLease(&l, time.Now())})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Lease on record %d (%s) renewed until %s\n",
					id, api.HolderText(&l), l.ExpiresAt.Local().Format(time.TimeOnly))
				return nil
			})
		},
	}
}

func printDetail(cmd *cobra.Command, ctx *commandContext, detail *workflow.Detail) error {
	now := time.Now()
	if ctx.jsonOutput() {
		return writeJSON(cmd, api.RecordDetailResponse{Detail: api.FromDetail(detail, now)})
	}
	fmt.Fprint(cmd.OutOrStdout(), renderDetail(detail, now, shouldColorize(cmd.OutOrStdout())))
	return nil
}

func parseRecordAndFilter(args []string) (int64, int, error) {
	id, err := parseRecordID(args[0])
	if err != nil {
		return 0, 0, err
	}
	n, err := parseFilter(strings.TrimPrefix(args[1], "f"))
	if err != nil {
		return 0, 0, err
	}
	return id, n, nil
}
