package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"

	"github.com/runnable/runnable-api/internal/activity"
	"github.com/runnable/runnable-api/internal/config"
	"github.com/runnable/runnable-api/internal/core"
	"github.com/runnable/runnable-api/internal/db"
	"github.com/runnable/runnable-api/internal/harbourmaster"
	"github.com/runnable/runnable-api/internal/logging"
	"github.com/runnable/runnable-api/internal/metrics"
	"github.com/runnable/runnable-api/internal/workflow"
)

const taskQueue = "runnable-tasks"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("worker"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	corePool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to core database")
	}
	defer corePool.Close()
	metrics.RegisterPgxPoolMetrics(corePool)

	tlsConfig, err := cfg.TemporalTLS()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure temporal TLS")
	}
	dialOpts := temporalclient.Options{HostPort: cfg.TemporalAddress}
	if tlsConfig != nil {
		dialOpts.ConnectionOptions = temporalclient.ConnectionOptions{TLS: tlsConfig}
		logger.Info().Msg("temporal mTLS enabled")
	}
	tc, err := temporalclient.Dial(dialOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	build := harbourmaster.NewClient(cfg.HarbourmasterURL, cfg.HarbourmasterTimeout, logger)
	services := core.NewServices(corePool, tc, build, core.Options{
		DockerRegistry:   cfg.DockerRegistry,
		ContainerTimeout: cfg.ContainerTimeout,
		CleanupRetention: cfg.CleanupRetention,
	}, logger)

	w := worker.New(tc, taskQueue, worker.Options{
		Interceptors: []interceptor.WorkerInterceptor{&workflow.ActivityErrorInterceptor{}},
	})

	// Register activities
	w.RegisterActivity(activity.NewRunnable(services.Cleanup, services.Image, services.User))
	w.RegisterActivity(activity.NewEmail(cfg.SendgridAPIKey, cfg.SendgridHost, cfg.EmailFrom))

	// Register workflows
	w.RegisterWorkflow(workflow.CleanupWorkflow)
	w.RegisterWorkflow(workflow.SyncImagesWorkflow)
	w.RegisterWorkflow(workflow.SendDelistEmailWorkflow)

	if cfg.MetricsAddr != "" {
		metricsSrv := metrics.NewServer(cfg.MetricsAddr)
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics server")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	go func() {
		logger.Info().Str("taskQueue", taskQueue).Msg("starting temporal worker")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("worker failed")
		}
	}()

	// Register cron schedules. Errors for already-existing schedules are
	// ignored so that re-deploys do not fail.
	registerCronSchedules(ctx, tc, taskQueue, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down worker")
	cancel()
}

type cronSchedule struct {
	id       string
	cron     string
	workflow interface{}
	args     []interface{}
}

func registerCronSchedules(ctx context.Context, tc temporalclient.Client, taskQueue string, logger zerolog.Logger) {
	schedules := []cronSchedule{
		{
			id:       "container-cleanup-cron",
			cron:     "15 * * * *",
			workflow: workflow.CleanupWorkflow,
			args:     []interface{}{false},
		},
		{
			id:       "container-purge-cron",
			cron:     "45 3 * * *",
			workflow: workflow.CleanupWorkflow,
			args:     []interface{}{true},
		},
		{
			id:       "image-sync-cron",
			cron:     "*/10 * * * *",
			workflow: workflow.SyncImagesWorkflow,
		},
	}

	scheduleClient := tc.ScheduleClient()

	for _, s := range schedules {
		_, err := scheduleClient.Create(ctx, temporalclient.ScheduleOptions{
			ID: s.id,
			Spec: temporalclient.ScheduleSpec{
				CronExpressions: []string{s.cron},
			},
			Action: &temporalclient.ScheduleWorkflowAction{
				ID:        s.id,
				Workflow:  s.workflow,
				Args:      s.args,
				TaskQueue: taskQueue,
			},
		})
		if err != nil {
			if strings.Contains(err.Error(), "already exists") || strings.Contains(err.Error(), "AlreadyExists") || strings.Contains(err.Error(), "already registered") {
				logger.Info().Str("id", s.id).Msg("cron schedule already exists, skipping")
			} else {
				logger.Fatal().Err(err).Str("id", s.id).Msg("failed to create cron schedule")
			}
		} else {
			logger.Info().Str("id", s.id).Str("cron", s.cron).Msg("created cron schedule")
		}
	}
}
