// Package cli holds the start-up steps shared by cmd/leasedash,
// cmd/leasedash-worker and cmd/leasedash-export.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"leasedash/internal/amqp"
	"leasedash/internal/backend"
	"leasedash/internal/config"
	"leasedash/internal/core"
	"leasedash/internal/loader"
	applog "leasedash/internal/log"
	"leasedash/internal/services"
)

// SetupLogger initializes structured logging at the given LOG_LEVEL and makes
// it the default logger.
func SetupLogger(level string) *applog.Logger {
	return SetupLoggerTo(os.Stdout, level)
}

// SetupLoggerTo is SetupLogger writing to w. Commands that print their result
// on stdout log to stderr instead.
func SetupLoggerTo(w io.Writer, level string) *applog.Logger {
	lvl := applog.ParseLevel(level)
	logger := applog.New(applog.Config{
		Level:     lvl,
		Component: applog.ComponentApp,
		Handler:   slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}),
	})
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *slog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// App bundles the pieces every binary needs.
type App struct {
	Backend *backend.BackendResult
	Loader  *loader.Loader
	Service *services.ReportService
}

// Close releases the publisher and backend resources.
func (a *App) Close() error {
	var errs []error
	if a.Service != nil {
		if err := a.Service.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Backend != nil && a.Backend.Cleanup != nil {
		if err := a.Backend.Cleanup(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close app: %v", errs)
	}
	return nil
}

// InitApp creates the configured backend, the caching loader and the report
// service. When withPublisher is set and AMQP_URL is configured, snapshots
// are published; a broker that cannot be reached only disables publishing.
func InitApp(ctx context.Context, logger *applog.Logger, cfg *config.Config, withPublisher bool) (*App, error) {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, err
	}

	l := loader.New(res.Backend, loader.Options{
		TTL:    cfg.CacheTTL,
		Logger: logger,
	})

	var publisher services.SnapshotPublisher
	if withPublisher && cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without snapshots", "error", err)
		} else {
			logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"routing_key", cfg.AMQPRoutingKey)
			publisher = client
		}
	}

	// An empty summary sheet makes the service derive period totals.
	summarySheet := ""
	if cfg.HasSummarySheet() {
		summarySheet = strings.TrimSpace(cfg.SummarySheetName)
	}
	svc := services.NewReportService(l, services.Options{
		Layout:       core.Layout{PeriodColumn: cfg.PeriodColumn, MonthColumn: cfg.MonthColumn},
		MonthlySheet: cfg.MonthlySheetName,
		SummarySheet: summarySheet,
		Source:       cfg.DataBackend,
	}, publisher)

	logger.Info("Report service ready",
		applog.FieldBackend, cfg.DataBackend,
		applog.FieldTable, cfg.MonthlySheetName,
		"summary_sheet", summarySheet,
		"derived_summary", !cfg.HasSummarySheet(),
		"cache_ttl", cfg.CacheTTL)

	return &App{Backend: res, Loader: l, Service: svc}, nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *slog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
