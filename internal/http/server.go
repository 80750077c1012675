package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"leasedash/internal/core"
	"leasedash/internal/loader"
	applog "leasedash/internal/log"
	"leasedash/internal/middleware/ratelimit"
	"leasedash/internal/middleware/security"
	"leasedash/internal/middleware/trace"
	"leasedash/internal/services"
	"leasedash/internal/sheets"
	appweb "leasedash/web"
)

// Reports is the read side the server renders.
type Reports interface {
	Monthly(ctx context.Context) (*core.Table, error)
	MonthlyExport(ctx context.Context) (*core.Table, error)
	Summary(ctx context.Context) (*core.Table, error)
	Periods(ctx context.Context) ([]string, error)
	ResolvePeriod(ctx context.Context, period string) (string, error)
	Report(ctx context.Context, period string) (core.KPIRecord, error)
	Series(ctx context.Context, period string) ([]core.Series, error)
	Dashboard(ctx context.Context, period string) (services.Dashboard, error)
	Refresh()
}

// LoaderStats exposes cache counters for readiness and metrics.
type LoaderStats interface {
	Stats() loader.Stats
}

// Options configures the server.
type Options struct {
	Addr string
	// RefreshInterval drives the page's meta refresh.
	RefreshInterval time.Duration
	Logger          *applog.Logger
	// Pinger is checked by /readyz when set.
	Pinger sheets.Pinger
	Stats  LoaderStats
	// RefreshLimit caps POST /api/refresh per client and minute.
	RefreshLimit   int
	TrustedProxies []string
	// ReadyTimeout bounds the readiness check.
	ReadyTimeout time.Duration
}

// Server wraps http.Server with the dashboard routes and middleware.
type Server struct {
	http.Server
	templates *template.Template
	reports   Reports
	opts      Options
	logger    *applog.Logger

	tracer   *trace.Middleware
	limiter  *ratelimit.Limiter
	detector *security.Detector

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(opts Options, reports Reports) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = applog.FromContext(context.Background())
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 5 * time.Minute
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 5 * time.Second
	}
	logger := opts.Logger.WithComponent(applog.ComponentHTTP)

	detector, err := security.NewDetector(opts.TrustedProxies...)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		reports:  reports,
		opts:     opts,
		logger:   logger,
		tracer:   trace.NewMiddleware(opts.Logger, detector.ExtractClientIP),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{Limit: opts.RefreshLimit}),
		detector: detector,
	}

	// Parse embedded templates at startup.
	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", applog.FieldError, err)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	api := func(h http.HandlerFunc) http.Handler { return security.NoStore(h) }
	mux.Handle("GET /api/periods", api(s.handlePeriods))
	mux.Handle("GET /api/report", api(s.handleReport))
	mux.Handle("GET /api/series", api(s.handleSeries))
	mux.Handle("GET /api/dashboard", api(s.handleDashboardJSON))
	mux.Handle("GET /api/summary", api(s.handleTable(reports.Summary)))
	mux.Handle("GET /api/monthly", api(s.handleTable(reports.Monthly)))
	mux.Handle("GET /api/metrics", api(s.handleMetrics))
	mux.Handle("GET /export/{file}", api(s.handleExport))

	refresh := s.limiter.Middleware(detector.ExtractClientIP, s.onRateLimited, http.MethodPost)
	mux.Handle("POST /api/refresh", refresh(api(s.handleRefresh)))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Handler = s.tracer.Middleware(detector.Middleware(headers.Middleware(mux)))
	return s, nil
}

// Shutdown stops the rate limiter and the HTTP server. Safe to call twice.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(),
		"Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	writeJSON(w, r, http.StatusTooManyRequests, errorBody{
		Error:     "rate limit exceeded, try again later",
		Status:    http.StatusTooManyRequests,
		RequestID: trace.GetRequestID(r.Context()),
	})
}

var templateFuncs = template.FuncMap{
	"amount":  formatAmount,
	"percent": formatPercent,
}
