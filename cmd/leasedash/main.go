package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"leasedash/internal/cache"
	"leasedash/internal/cli"
	apphttp "leasedash/internal/http"
	applog "leasedash/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger.Logger)

	app, err := cli.InitApp(context.Background(), logger, cfg, false)
	if err != nil {
		logger.Error("Failed to initialize application", applog.FieldError, err, applog.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}

	// Expired tables are purged between refreshes so the cache never serves them.
	cacheManager := cache.NewManager(logger.Logger)
	cacheManager.Register(app.Loader)
	cacheManager.StartCleanup(cfg.CacheTTL)

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:            ":" + cfg.Port,
		RefreshInterval: cfg.RefreshInterval,
		Logger:          logger,
		Pinger:          app.Backend.Backend,
		Stats:           app.Loader,
		RefreshLimit:    cfg.RefreshRateLimit,
		TrustedProxies:  cfg.TrustedProxies,
	}, app.Service)
	if err != nil {
		logger.Error("Failed to create HTTP server", applog.FieldError, err)
		os.Exit(1)
	}
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		cacheManager.Stop()
		if err := app.Close(); err != nil {
			logger.Error("Cleanup error", applog.FieldError, err)
		}
	})

	logger.Info("Starting leasedash server",
		"port", cfg.Port,
		applog.FieldBackend, cfg.DataBackend,
		"refresh_interval", cfg.RefreshInterval)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
