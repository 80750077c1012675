package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"leasedash/internal/core"
)

// Refresher is the part of the report service the worker drives.
type Refresher interface {
	Refresh()
	PublishSnapshot(ctx context.Context, period string) (core.KPIRecord, error)
}

// RefreshWorker reloads the source on a fixed interval and publishes a
// snapshot of the latest period after every reload.
type RefreshWorker struct {
	service  Refresher
	interval time.Duration
	period   string

	runs     atomic.Int64
	failures atomic.Int64
}

// NewRefreshWorker creates a worker. An empty period means the latest one.
func NewRefreshWorker(service Refresher, interval time.Duration, period string) *RefreshWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &RefreshWorker{service: service, interval: interval, period: period}
}

// Run refreshes once immediately, then every interval until ctx is done.
func (w *RefreshWorker) Run(ctx context.Context) {
	slog.InfoContext(ctx, "Refresh worker started", "interval", w.interval)

	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Refresh worker stopped",
				"runs", w.runs.Load(),
				"failures", w.failures.Load())
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce invalidates cached tables, rebuilds the report and publishes it.
// Errors are logged; the next tick tries again.
func (w *RefreshWorker) RunOnce(ctx context.Context) {
	start := time.Now()
	w.runs.Add(1)
	w.service.Refresh()

	rec, err := w.service.PublishSnapshot(ctx, w.period)
	if err != nil {
		w.failures.Add(1)
		slog.ErrorContext(ctx, "Refresh failed",
			"period", w.period,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return
	}

	slog.InfoContext(ctx, "Refresh completed",
		"period", rec.Period,
		"month", rec.Month,
		"spread", rec.Spread,
		"margin", rec.Margin,
		"renewal_ratio", rec.RenewalRatio,
		"duration_ms", time.Since(start).Milliseconds())
}

// Stats returns how many refreshes ran and how many failed.
func (w *RefreshWorker) Stats() (runs, failures int64) {
	return w.runs.Load(), w.failures.Load()
}
