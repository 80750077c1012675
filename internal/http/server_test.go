package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"leasedash/internal/core"
	"leasedash/internal/loader"
	"leasedash/internal/services"
	"leasedash/internal/sheets/memory"
)

var monthlyGrid = [][]string{
	{"Mois", "Lease_Revenue", "Net_Cashflow", "Cum_Cashflow", "Encours_Leasing", "Encours_Debt", "New_Finance_Renewal"},
	{"11", "100", "10", "10", "500", "490", "0"},
	{"12", "100", "15", "25", "520", "500", "50"},
	{"13", "120", "20", "45", "540", "505", "0"},
	{"14", "130", "30", "75", "560", "510", "10"},
}

type failingSource struct{ err error }

func (f failingSource) FetchTable(context.Context, string) ([][]string, error) { return nil, f.err }
func (f failingSource) Ping(context.Context) error                            { return f.err }

type testEnv struct {
	srv    *Server
	store  *memory.Store
	loader *loader.Loader
}

func newTestServer(t *testing.T, grid [][]string, mutate ...func(*Options)) *testEnv {
	t.Helper()
	store := memory.New(map[string][][]string{"Mensuel": grid})
	l := loader.New(store, loader.Options{TTL: time.Hour})
	svc := services.NewReportService(l, services.Options{
		Layout:       core.DefaultLayout(),
		MonthlySheet: "Mensuel",
		Source:       "memory",
	}, nil)

	opts := Options{Addr: ":0", RefreshInterval: 5 * time.Minute, Pinger: store, Stats: l, RefreshLimit: 5}
	for _, m := range mutate {
		m(&opts)
	}
	srv, err := NewServer(opts, svc)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: store, loader: l}
}

func (e *testEnv) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rr.Body.String(), err)
	}
	return v
}

func TestDashboardPage(t *testing.T) {
	env := newTestServer(t, monthlyGrid)

	rr := env.do(t, http.MethodGet, "/")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{
		`<meta http-equiv="refresh" content="300">`,
		`<option value="Year2" selected>`,
		"Spread Leasing / Dette",
		"50,00",
		"<polyline",
		"/export/monthly.csv",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("dashboard missing %q", want)
		}
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type %q", ct)
	}
}

func TestDashboardPageUnknownPeriod(t *testing.T) {
	env := newTestServer(t, monthlyGrid)

	rr := env.do(t, http.MethodGet, "/?period=Year9")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "period not found") || !strings.Contains(body, `<option value="Year1"`) {
		t.Fatalf("error page should keep the period selector:\n%s", body)
	}
}

func TestUnknownPathIs404(t *testing.T) {
	env := newTestServer(t, monthlyGrid)
	if rr := env.do(t, http.MethodGet, "/nope"); rr.Code != http.StatusNotFound {
		t.Fatalf("status %d", rr.Code)
	}
}

func TestAPIPeriods(t *testing.T) {
	env := newTestServer(t, monthlyGrid)

	rr := env.do(t, http.MethodGet, "/api/periods")
	got := decode[struct {
		Periods []string `json:"periods"`
		Latest  string   `json:"latest"`
	}](t, rr)
	if len(got.Periods) != 2 || got.Latest != "Year2" {
		t.Fatalf("got %+v", got)
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("api responses must not be cached")
	}
}

func TestAPIReport(t *testing.T) {
	env := newTestServer(t, monthlyGrid)

	rec := decode[core.KPIRecord](t, env.do(t, http.MethodGet, "/api/report"))
	if rec.Period != "Year2" || rec.Spread != 50 || rec.Margin != 30.0/130.0 {
		t.Fatalf("latest report = %+v", rec)
	}
	if rec.RenewalRatio != 10.0/250.0 {
		t.Fatalf("renewal ratio = %v", rec.RenewalRatio)
	}

	rec = decode[core.KPIRecord](t, env.do(t, http.MethodGet, "/api/report?period=Year1"))
	if rec.Period != "Year1" || rec.PeriodRevenue != 200 || rec.RenewalRatio != 0.25 {
		t.Fatalf("Year1 report = %+v", rec)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	noDebt := [][]string{
		{"Mois", "Lease_Revenue", "Net_Cashflow", "Cum_Cashflow", "Encours_Leasing"},
		{"1", "100", "20", "20", "500"},
	}

	cases := []struct {
		name   string
		grid   [][]string
		opts   func(*Options)
		target string
		want   int
	}{
		{"unknown period", monthlyGrid, nil, "/api/report?period=Year9", http.StatusNotFound},
		{"missing column", noDebt, nil, "/api/report", http.StatusUnprocessableEntity},
		{"empty table", [][]string{}, nil, "/api/report", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestServer(t, tc.grid)
			rr := env.do(t, http.MethodGet, tc.target)
			if rr.Code != tc.want {
				t.Fatalf("status %d, want %d: %s", rr.Code, tc.want, rr.Body.String())
			}
			body := decode[errorBody](t, rr)
			if body.Status != tc.want || body.Error == "" || body.RequestID == "" {
				t.Fatalf("body = %+v", body)
			}
		})
	}
}

func TestAPISourceUnavailable(t *testing.T) {
	down := failingSource{err: errors.New("connection refused")}
	l := loader.New(down, loader.Options{})
	svc := services.NewReportService(l, services.Options{Layout: core.DefaultLayout(), MonthlySheet: "Mensuel"}, nil)
	srv, err := NewServer(Options{Pinger: down, Stats: l}, svc)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Shutdown(context.Background())

	for target, want := range map[string]int{
		"/api/report": http.StatusBadGateway,
		"/":           http.StatusBadGateway,
		"/readyz":     http.StatusServiceUnavailable,
		"/healthz":    http.StatusOK,
	} {
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		if rr.Code != want {
			t.Fatalf("%s: status %d, want %d", target, rr.Code, want)
		}
	}
}

func TestAPISeries(t *testing.T) {
	env := newTestServer(t, monthlyGrid)

	type seriesResp struct {
		Period string        `json:"period"`
		Series []core.Series `json:"series"`
	}

	latest := decode[seriesResp](t, env.do(t, http.MethodGet, "/api/series"))
	if latest.Period != "Year2" || len(latest.Series) != 3 || len(latest.Series[0].X) != 2 {
		t.Fatalf("latest = %+v", latest)
	}

	all := decode[seriesResp](t, env.do(t, http.MethodGet, "/api/series?period=all"))
	if all.Period != "" || len(all.Series[2].X) != 4 {
		t.Fatalf("all = %+v", all)
	}

	if rr := env.do(t, http.MethodGet, "/api/series?period=Year7"); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown period status %d", rr.Code)
	}
}

func TestAPITables(t *testing.T) {
	env := newTestServer(t, monthlyGrid)

	summary := decode[tableView](t, env.do(t, http.MethodGet, "/api/summary"))
	if len(summary.Rows) != 2 || summary.Rows[1]["Period"] != "Year2" {
		t.Fatalf("summary = %+v", summary)
	}
	if v, ok := summary.Rows[0]["Lease_Revenue"].(float64); !ok || v != 200 {
		t.Fatalf("Year1 revenue = %v", summary.Rows[0]["Lease_Revenue"])
	}

	monthly := decode[tableView](t, env.do(t, http.MethodGet, "/api/monthly"))
	if monthly.Name != "Mensuel" || len(monthly.Rows) != 4 || monthly.Columns[0].Kind != core.Numeric {
		t.Fatalf("monthly = %+v", monthly)
	}
}

func TestExport(t *testing.T) {
	env := newTestServer(t, monthlyGrid)

	rr := env.do(t, http.MethodGet, "/export/monthly.csv")
	if rr.Code != http.StatusOK {
		t.Fatalf("csv status %d", rr.Code)
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("csv content type %q", rr.Header().Get("Content-Type"))
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") || !strings.Contains(cd, "Mensuel.csv") {
		t.Fatalf("content disposition %q", cd)
	}
	if !strings.HasPrefix(rr.Body.String(), "Mois,Lease_Revenue,") {
		t.Fatalf("csv body:\n%s", rr.Body.String())
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if !strings.HasSuffix(lines[0], ",Period") || !strings.HasSuffix(lines[3], ",Year2") {
		t.Fatalf("csv should carry the period label:\n%s", rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/export/monthly.xlsx")
	if rr.Code != http.StatusOK || !strings.HasPrefix(rr.Body.String(), "PK") {
		t.Fatalf("xlsx status %d, %d bytes", rr.Code, rr.Body.Len())
	}

	if rr := env.do(t, http.MethodGet, "/export/summary.csv"); rr.Code != http.StatusOK {
		t.Fatalf("summary csv status %d", rr.Code)
	}
	for _, target := range []string{"/export/monthly.pdf", "/export/other.csv"} {
		if rr := env.do(t, http.MethodGet, target); rr.Code != http.StatusNotFound {
			t.Fatalf("%s: status %d", target, rr.Code)
		}
	}
}

func TestRefreshInvalidatesCache(t *testing.T) {
	env := newTestServer(t, monthlyGrid)

	before := decode[core.KPIRecord](t, env.do(t, http.MethodGet, "/api/report"))

	updated := append([][]string{}, monthlyGrid...)
	updated = append(updated, []string{"15", "200", "40", "115", "600", "520", "0"})
	env.store.Put("Mensuel", updated)

	cached := decode[core.KPIRecord](t, env.do(t, http.MethodGet, "/api/report"))
	if cached.Revenue != before.Revenue {
		t.Fatalf("report changed before refresh: %+v", cached)
	}

	if rr := env.do(t, http.MethodGet, "/api/refresh"); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET refresh status %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/api/refresh"); rr.Code != http.StatusOK {
		t.Fatalf("refresh status %d", rr.Code)
	}

	after := decode[core.KPIRecord](t, env.do(t, http.MethodGet, "/api/report"))
	if after.Revenue != 200 || after.Spread != 80 {
		t.Fatalf("report after refresh = %+v", after)
	}
}

func TestRefreshRateLimited(t *testing.T) {
	env := newTestServer(t, monthlyGrid, func(o *Options) { o.RefreshLimit = 2 })

	for i := 0; i < 2; i++ {
		if rr := env.do(t, http.MethodPost, "/api/refresh"); rr.Code != http.StatusOK {
			t.Fatalf("refresh %d: status %d", i+1, rr.Code)
		}
	}
	rr := env.do(t, http.MethodPost, "/api/refresh")
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("third refresh: status %d, headers %v", rr.Code, rr.Header())
	}
	if rr := env.do(t, http.MethodGet, "/api/report"); rr.Code != http.StatusOK {
		t.Fatalf("reads must not be limited, status %d", rr.Code)
	}
}

func TestReadiness(t *testing.T) {
	env := newTestServer(t, monthlyGrid)

	if rr := env.do(t, http.MethodGet, "/healthz"); rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz %d %q", rr.Code, rr.Body.String())
	}
	rr := env.do(t, http.MethodGet, "/readyz")
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz status %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[struct {
		Status      string       `json:"status"`
		MonthlyRows int          `json:"monthly_rows"`
		Loader      loader.Stats `json:"loader"`
	}](t, rr)
	if got.Status != "ready" || got.MonthlyRows != 4 || got.Loader.Fetches != 1 {
		t.Fatalf("readyz = %+v", got)
	}
}

func TestMiddlewareChain(t *testing.T) {
	env := newTestServer(t, monthlyGrid)

	rr := env.do(t, http.MethodGet, "/api/periods")
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" || rr.Header().Get("Content-Security-Policy") == "" {
		t.Fatalf("missing security headers: %v", rr.Header())
	}

	if rr := env.do(t, "TRACE", "/"); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("TRACE status %d", rr.Code)
	}

	m := decode[map[string]json.RawMessage](t, env.do(t, http.MethodGet, "/api/metrics"))
	for _, key := range []string{"http", "rate_limit", "security", "loader"} {
		if _, ok := m[key]; !ok {
			t.Fatalf("metrics missing %q: %v", key, m)
		}
	}
}

func TestStaticAssets(t *testing.T) {
	env := newTestServer(t, monthlyGrid)

	rr := env.do(t, http.MethodGet, "/static/dashboard.css")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Cache-Control"), "max-age=3600") {
		t.Fatalf("Cache-Control %q", rr.Header().Get("Cache-Control"))
	}
}

func TestShutdownTwice(t *testing.T) {
	env := newTestServer(t, monthlyGrid)
	if err := env.srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := env.srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}
