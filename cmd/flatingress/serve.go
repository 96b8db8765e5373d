// cmd/flatingress/serve.go
package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/David-Botos/flat-ingress/pkg/api"
	"github.com/David-Botos/flat-ingress/pkg/pipeline"
	"github.com/David-Botos/flat-ingress/pkg/scheduler"
)

var serveAddr string

func serveCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduler and the HTTP API",
		Long: `Start the scheduler and the HTTP API.

The scheduler triggers a run on SCHEDULER_CRON and purges old stage logs on
RETENTION_CRON. Set SCHEDULER_ENABLED=false to serve the API only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if serveAddr != "" {
				c.cfg.HTTP.Addr = serveAddr
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				return c.serve(ctx, a)
			})
		},
	}

	cmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	return cmd
}

func (c *cli) serve(ctx context.Context, a *app) error {
	logger := c.logger
	cfg := c.cfg

	sched := scheduler.New(cfg.Scheduler.Location(), logger)
	if cfg.Scheduler.Enabled {
		if err := sched.Register("pipeline", cfg.Scheduler.CronExpression, scheduledRun(a.orch, logger)); err != nil {
			return err
		}
		if cfg.LogRetentionDays > 0 && cfg.Scheduler.RetentionCron != "" {
			err := sched.Register("log-retention", cfg.Scheduler.RetentionCron, func(ctx context.Context) error {
				_, err := a.orch.PurgeLogs(ctx)
				return err
			})
			if err != nil {
				return err
			}
		}
	}

	server := api.NewServer(a.orch, a.checks, logger,
		api.WithSchedule(sched.Entries),
		api.WithVersion(Version))
	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: server.Handler(),
	}

	group, groupCtx := errgroup.WithContext(ctx)

	if cfg.Scheduler.Enabled {
		group.Go(func() error {
			return sched.Start(groupCtx)
		})
	}

	group.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// scheduledRun treats lock contention as a skipped tick rather than a job failure
func scheduledRun(orch *pipeline.Orchestrator, logger *zap.Logger) scheduler.Job {
	return func(ctx context.Context) error {
		res, err := orch.Run(ctx, pipeline.TriggerScheduled)
		var runErr *pipeline.Error
		if errors.As(err, &runErr) && runErr.Kind == pipeline.KindLockContention {
			logger.Info("Scheduled run skipped, another run holds the lock", zap.String("runId", res.RunID))
			return nil
		}
		return err
	}
}
