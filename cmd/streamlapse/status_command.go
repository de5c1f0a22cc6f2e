package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"streamlapse/internal/daemon"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDaemon(nil, func(d *daemon.Daemon) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				status := d.Status(cmd.Context())

				fmt.Fprintln(out, "Pipeline")
				for _, check := range status.Stages {
					kind := statusOK
					message := "ready"
					if !check.Ready {
						kind = statusError
						message = check.Detail
					}
					fmt.Fprintln(out, renderStatusLine(check.Name, kind, message, colorize))
				}
				fmt.Fprintln(out, renderStatusLine("lock file", statusInfo, status.LockFilePath, colorize))
				fmt.Fprintln(out, renderStatusLine("queue db", statusInfo, status.QueueDBPath, colorize))

				fmt.Fprintln(out)
				fmt.Fprintln(out, "Queue")
				rows := [][]string{
					{"Pending", fmt.Sprintf("%d", status.Queue.Pending)},
					{"Processing", fmt.Sprintf("%d", status.Queue.Processing)},
					{"Completed", fmt.Sprintf("%d", status.Queue.Completed)},
					{"Failed", fmt.Sprintf("%d", status.Queue.Failed)},
					{"Review", fmt.Sprintf("%d", status.Queue.Review)},
					{"Total", fmt.Sprintf("%d", status.Queue.Total)},
				}
				fmt.Fprint(out, renderTable([]string{"State", "Count"}, rows,
					[]columnAlignment{alignLeft, alignRight}))

				if item := status.LastItem; item != nil {
					fmt.Fprintln(out)
					fmt.Fprintf(out, "Last item: #%d %s (%s)\n", item.ID, strings.TrimSpace(item.Title), item.Status)
					if item.ErrorMessage != "" {
						fmt.Fprintf(out, "  error: %s\n", item.ErrorMessage)
					}
				}
				return nil
			})
		},
	}
}
