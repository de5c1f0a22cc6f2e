package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"streamlapse/internal/daemon"
	"streamlapse/internal/logging"
)

const summaryRounding = time.Millisecond

func newRunCommand(ctx *commandContext) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline daemon",
		Long:  "Runs passes on the configured interval until interrupted. With --once a single pass is executed and the command exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}
			logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTarget{
				Dir:     cfg.Paths.LogDir,
				Pattern: "*.log",
				Exclude: []string{filepath.Join(cfg.Paths.LogDir, "streamlapse.log")},
			})

			return ctx.withDaemon(logger, func(d *daemon.Daemon) error {
				if err := d.Start(); err != nil {
					return err
				}
				defer d.Stop()

				runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				if once {
					summary, err := d.RunOnce(runCtx)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(),
						"Pass complete: %d discovered, %d processed, %d failed (%s)\n",
						summary.Discovered, summary.Processed, summary.Failed,
						summary.Duration.Round(summaryRounding))
					return nil
				}

				err := d.Run(runCtx)
				if runCtx.Err() != nil {
					// Interrupted by signal; shut down quietly.
					return nil
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Execute a single pass and exit")
	return cmd
}

// newProcessCommand is shorthand for `run --once` with console-friendly output.
func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Execute a single pipeline pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}
			return ctx.withDaemon(logger, func(d *daemon.Daemon) error {
				if err := d.Start(); err != nil {
					return err
				}
				defer d.Stop()

				runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				summary, err := d.RunOnce(runCtx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"Pass complete: %d discovered, %d processed, %d failed (%s)\n",
					summary.Discovered, summary.Processed, summary.Failed,
					summary.Duration.Round(summaryRounding))
				return nil
			})
		},
	}
}
