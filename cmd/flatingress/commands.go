// cmd/flatingress/commands.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/David-Botos/flat-ingress/pkg/pipeline"
	"github.com/David-Botos/flat-ingress/pkg/store"
)

// withApp opens the connections, runs fn and closes them
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			c.logger.Warn("Failed to close connections", zap.Error(err))
		}
	}()

	return fn(ctx, a)
}

func runCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once and print the result",
		Long: `Run the pipeline once, as a manual trigger.

The run waits for the lock like a scheduled run: it aborts when another
run holds it or a previous run ended in error. Use "reset" to clear an error.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				res, runErr := a.orch.Run(ctx, pipeline.TriggerManual)
				if err := printJSON(cmd, res); err != nil {
					return err
				}
				return runErr
			})
		},
	}
}

func resetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Force the control record back to READY",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				previous, err := a.orch.Reset(ctx)
				if err != nil {
					return err
				}
				if previous == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "No control record; nothing to reset")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Control record reset: %s -> READY\n", previous)
				return nil
			})
		},
	}
}

func statusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the control record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				rec, err := a.orch.Status(ctx)
				if errors.Is(err, store.ErrNotFound) {
					fmt.Fprintln(cmd.OutOrStdout(), "No control record; no run has happened yet")
					return nil
				}
				if err != nil {
					return err
				}
				return printJSON(cmd, rec)
			})
		},
	}
}

func logsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logs [runId]",
		Short: "Show the stage logs of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				logs, err := a.orch.Logs(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, logs)
			})
		},
	}
}

func statsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the last run status with log totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				ov, err := a.orch.Overview(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, ov)
			})
		},
	}
}

func purgeLogsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-logs",
		Short: "Delete stage logs older than LOG_RETENTION_DAYS",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				n, err := a.orch.PurgeLogs(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d stage logs\n", n)
				return nil
			})
		},
	}
}
