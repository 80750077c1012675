package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"leasedash/internal/cli"
	"leasedash/internal/config"
	applog "leasedash/internal/log"
)

var (
	logLevel string
	rootCmd  = &cobra.Command{
		Use:   "leasedash-export",
		Short: "Export leasing dashboard tables and reports",
		Long: `leasedash-export loads one table through the configured data backend
(DATA_BACKEND: memory, sheets or xlsx) and writes it as CSV or XLSX.

Without --out the export goes to stdout. Logs go to stderr.`,
		SilenceUsage: true,
		RunE:         runExport,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); defaults to LOG_LEVEL")

	addExportFlags(rootCmd)
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(periodsCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initApp loads .env and the environment configuration, then builds the
// backend, loader and report service. Publishing is never enabled here.
func initApp(ctx context.Context) (*cli.App, *config.Config, *applog.Logger, error) {
	cli.LoadEnvFile()
	level := logLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	logger := cli.SetupLoggerTo(os.Stderr, level)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}
	app, err := cli.InitApp(ctx, logger, cfg, false)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialize %s backend: %w", cfg.DataBackend, err)
	}
	return app, cfg, logger, nil
}

func closeApp(app *cli.App, logger *applog.Logger) {
	if err := app.Close(); err != nil {
		logger.Error("Cleanup error", applog.FieldError, err)
	}
}
