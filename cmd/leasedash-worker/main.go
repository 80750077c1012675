package main

import (
	"context"
	"os"
	"time"

	"leasedash/internal/cli"
	applog "leasedash/internal/log"
	"leasedash/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting leasedash-worker")

	cfg := cli.LoadAndValidateConfig(logger.Logger)
	if cfg.AMQPURL == "" {
		logger.Info("AMQP_URL not set, snapshots are built and logged only")
	}

	app, err := cli.InitApp(context.Background(), logger, cfg, true)
	if err != nil {
		logger.Error("Failed to initialize application", applog.FieldError, err, applog.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger.Logger, 10*time.Second, func() {
		if err := app.Close(); err != nil {
			logger.Error("Cleanup error", applog.FieldError, err)
		}
	})

	w := worker.NewRefreshWorker(app.Service, cfg.RefreshInterval, cfg.SnapshotPeriod)
	w.Run(ctx)

	cli.WaitForShutdown(ctx, done)
	runs, failures := w.Stats()
	logger.Info("Worker stopped", "runs", runs, "failures", failures)
}
