package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"streamlapse/internal/daemon"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	notifyCmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification utilities",
	}

	notifyCmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDaemon(nil, func(d *daemon.Daemon) error {
				sent, message, err := d.TestNotification(cmd.Context())
				if message != "" {
					fmt.Fprintln(cmd.OutOrStdout(), message)
				}
				if err != nil {
					return err
				}
				if !sent && message == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "Notification not sent")
				}
				return nil
			})
		},
	})

	return notifyCmd
}
