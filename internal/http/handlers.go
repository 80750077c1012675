package http

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"leasedash/internal/core"
	"leasedash/internal/export"
	applog "leasedash/internal/log"
	"leasedash/internal/services"
)

// allPeriods asks /api/series for every month instead of one period.
const allPeriods = "all"

type dashboardPage struct {
	services.Dashboard
	RefreshSeconds int
	Charts         []chartView
	Tables         []seriesTable
	Error          string
	Status         int
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded", applog.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	page := dashboardPage{RefreshSeconds: int(s.opts.RefreshInterval.Seconds()), Status: http.StatusOK}
	period, err := s.reports.ResolvePeriod(r.Context(), periodParam(r))
	if err == nil {
		page.Dashboard, err = s.reports.Dashboard(r.Context(), period)
	}
	if err != nil {
		page.Status = errorStatus(err)
		page.Error = err.Error()
		logError(r, applog.OpRender, page.Status, err)
		// The selector still works when only the requested period is bad.
		page.Periods, _ = s.reports.Periods(r.Context())
	} else {
		d := page.Dashboard
		page.Charts = []chartView{
			lineChart("Encours Leasing vs Dette", d.Balances),
			lineChart("Résultat cumulé", d.Cumulative),
			lineChart("Chiffre d'affaires mensuel", d.Revenue),
			barChart("Chiffre d'affaires par période", d.Aggregates, core.ColLeaseRevenue),
		}
		page.Tables = []seriesTable{newSeriesTable("Détail mensuel", d.Balances, d.Cumulative, d.Revenue)}
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "dashboard.html", page); err != nil {
		s.logger.ErrorContext(r.Context(), "Dashboard template execution failed", applog.FieldError, err, "template", "dashboard.html")
		http.Error(w, "failed to render dashboard", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(page.Status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleDashboardJSON(w http.ResponseWriter, r *http.Request) {
	period, err := s.reports.ResolvePeriod(r.Context(), periodParam(r))
	if err != nil {
		writeError(w, r, applog.OpBuild, err)
		return
	}
	d, err := s.reports.Dashboard(r.Context(), period)
	if err != nil {
		writeError(w, r, applog.OpBuild, err)
		return
	}
	writeJSON(w, r, http.StatusOK, d)
}

func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := s.reports.Periods(r.Context())
	if err != nil {
		writeError(w, r, applog.OpLoad, err)
		return
	}
	latest := ""
	if len(periods) > 0 {
		latest = periods[len(periods)-1]
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"periods": periods, "latest": latest})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	period, err := s.reports.ResolvePeriod(r.Context(), periodParam(r))
	if err != nil {
		writeError(w, r, applog.OpBuild, err)
		return
	}
	rec, err := s.reports.Report(r.Context(), period)
	if err != nil {
		writeError(w, r, applog.OpBuild, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	period := periodParam(r)
	if period == allPeriods {
		period = ""
	} else {
		var err error
		if period, err = s.reports.ResolvePeriod(r.Context(), period); err != nil {
			writeError(w, r, applog.OpBuild, err)
			return
		}
	}
	series, err := s.reports.Series(r.Context(), period)
	if err != nil {
		writeError(w, r, applog.OpBuild, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"period": period, "series": series})
}

func (s *Server) handleTable(load func(context.Context) (*core.Table, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := load(r.Context())
		if err != nil {
			writeError(w, r, applog.OpLoad, err)
			return
		}
		writeJSON(w, r, http.StatusOK, newTableView(t))
	}
}

// handleExport serves /export/{monthly|summary}.{csv|xlsx} as an attachment.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	ext := path.Ext(file)
	var load func(context.Context) (*core.Table, error)
	switch strings.TrimSuffix(file, ext) {
	case "monthly":
		load = s.reports.MonthlyExport
	case "summary":
		load = s.reports.Summary
	default:
		http.NotFound(w, r)
		return
	}
	if ext != ".csv" && ext != ".xlsx" {
		http.NotFound(w, r)
		return
	}

	t, err := load(r.Context())
	if err != nil {
		writeError(w, r, applog.OpExport, err)
		return
	}

	var (
		body        []byte
		contentType string
	)
	if ext == ".csv" {
		body, err = export.CSV(t)
		contentType = export.ContentTypeCSV
	} else {
		body, err = export.XLSX(t, t.Name)
		contentType = export.ContentTypeXLSX
	}
	if err != nil {
		writeError(w, r, applog.OpExport, err)
		return
	}

	applog.FromContext(r.Context()).WithComponent(applog.ComponentExport).InfoContext(r.Context(), "Table exported",
		applog.FieldTable, t.Name,
		applog.FieldFormat, strings.TrimPrefix(ext, "."),
		applog.FieldRows, t.Rows())

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": t.Name + ext}))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.reports.Refresh()
	applog.FromContext(r.Context()).WithComponent(applog.ComponentLoader).InfoContext(r.Context(), "Cache invalidated on request",
		applog.FieldOperation, applog.OpInvalidate)
	writeJSON(w, r, http.StatusOK, map[string]any{"refreshed": true})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"http":       s.tracer.GetMetrics(),
		"rate_limit": s.limiter.GetMetrics(),
		"security":   s.detector.GetMetrics(),
	}
	if s.opts.Stats != nil {
		out["loader"] = s.opts.Stats.Stats()
	}
	writeJSON(w, r, http.StatusOK, out)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady pings the source and loads the monthly table.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.ReadyTimeout)
	defer cancel()

	status := map[string]any{"status": "ready"}
	if s.opts.Pinger != nil {
		if err := s.opts.Pinger.Ping(ctx); err != nil {
			s.notReady(w, r, fmt.Errorf("%w: %w", core.ErrSourceUnavailable, err))
			return
		}
	}
	monthly, err := s.reports.Monthly(ctx)
	if err != nil {
		s.notReady(w, r, err)
		return
	}
	status["monthly_rows"] = monthly.Rows()
	if s.opts.Stats != nil {
		status["loader"] = s.opts.Stats.Stats()
	}
	writeJSON(w, r, http.StatusOK, status)
}

func (s *Server) notReady(w http.ResponseWriter, r *http.Request, err error) {
	logError(r, "ready", http.StatusServiceUnavailable, err)
	writeJSON(w, r, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "error": err.Error()})
}
