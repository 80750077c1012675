package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"leasedash/internal/amqp"
	"leasedash/internal/core"
	"leasedash/internal/loader"
	"leasedash/internal/sheets/memory"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*amqp.ReportSnapshotMessage
	err  error
}

func (p *recordingPublisher) PublishSnapshot(_ context.Context, msg *amqp.ReportSnapshotMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

var monthlyGrid = [][]string{
	{"Mois", "Lease_Revenue", "Net_Cashflow", "Cum_Cashflow", "Encours_Leasing", "Encours_Debt", "New_Finance_Renewal"},
	{"11", "100", "10", "10", "500", "490", "0"},
	{"12", "100", "15", "25", "520", "500", "50"},
	{"13", "120", "20", "45", "540", "505", "0"},
	{"14", "130", "30", "75", "560", "510", "10"},
}

func newService(t *testing.T, summary [][]string, pub SnapshotPublisher) *ReportService {
	t.Helper()
	tables := map[string][][]string{"Mensuel": monthlyGrid}
	opts := Options{Layout: core.DefaultLayout(), MonthlySheet: "Mensuel", Source: "memory"}
	if summary != nil {
		tables["Synthese"] = summary
		opts.SummarySheet = "Synthese"
	}
	l := loader.New(memory.New(tables), loader.Options{})
	return NewReportService(l, opts, pub)
}

func TestReportService_MonthlyExport(t *testing.T) {
	s := newService(t, nil, nil)
	ctx := context.Background()

	out, err := s.MonthlyExport(ctx)
	if err != nil {
		t.Fatalf("MonthlyExport: %v", err)
	}
	c, ok := out.Column("Period")
	if !ok || len(c.Texts) != 4 || c.Texts[0] != "Year1" || c.Texts[3] != "Year2" {
		t.Fatalf("period column = %+v", c)
	}

	monthly, err := s.Monthly(ctx)
	if err != nil {
		t.Fatalf("Monthly: %v", err)
	}
	if _, ok := monthly.Column("Period"); ok {
		t.Fatalf("cached monthly table gained the period column")
	}
}

func TestReportService_DerivedSummary(t *testing.T) {
	s := newService(t, nil, nil)
	ctx := context.Background()

	periods, err := s.Periods(ctx)
	if err != nil {
		t.Fatalf("Periods: %v", err)
	}
	if len(periods) != 2 || periods[1] != "Year2" {
		t.Fatalf("periods = %q", periods)
	}

	rec, err := s.Report(ctx, "")
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if rec.Period != "Year2" {
		t.Fatalf("default period = %q, want Year2", rec.Period)
	}
	if rec.Spread != 50 || rec.PeriodRevenue != 250 {
		t.Fatalf("report = %+v", rec)
	}
	if rec.RenewalRatio != 10.0/250.0 {
		t.Fatalf("renewal ratio = %v", rec.RenewalRatio)
	}
}

func TestReportService_SummarySheet(t *testing.T) {
	s := newService(t, [][]string{
		{"Period", "Lease_Revenue", "Net_Cashflow", "New_Finance_Renewal"},
		{"Year1", "1200", "240", "300"},
	}, nil)

	rec, err := s.Report(context.Background(), "Year1")
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if rec.RenewalRatio != 0.25 || rec.PeriodNetCashflow != 240 {
		t.Fatalf("report = %+v", rec)
	}

	if _, err := s.Report(context.Background(), "Year9"); !errors.Is(err, core.ErrPeriodNotFound) {
		t.Fatalf("err = %v, want ErrPeriodNotFound", err)
	}
}

func TestReportService_Dashboard(t *testing.T) {
	s := newService(t, nil, nil)
	d, err := s.Dashboard(context.Background(), "Year1")
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.Period != "Year1" || len(d.Periods) != 2 {
		t.Fatalf("dashboard = %+v", d)
	}
	if len(d.Balances.X) != 2 || len(d.Balances.Lines) != 2 {
		t.Fatalf("balances = %+v", d.Balances)
	}
	if len(d.Cumulative.Lines) != 1 || len(d.Revenue.Lines) != 1 {
		t.Fatalf("series = %+v / %+v", d.Cumulative, d.Revenue)
	}
	if len(d.Aggregates) != 2 {
		t.Fatalf("aggregates = %+v", d.Aggregates)
	}

	series, err := s.Series(context.Background(), "")
	if err != nil || len(series) != 3 || len(series[0].X) != 4 {
		t.Fatalf("Series = %+v, %v", series, err)
	}
}

func TestReportService_ResolvePeriod(t *testing.T) {
	s := newService(t, nil, nil)
	got, err := s.ResolvePeriod(context.Background(), "")
	if err != nil || got != "Year2" {
		t.Fatalf("ResolvePeriod = %q, %v", got, err)
	}
	got, _ = s.ResolvePeriod(context.Background(), "Year1")
	if got != "Year1" {
		t.Fatalf("explicit period changed to %q", got)
	}
	if _, err := s.ResolvePeriod(context.Background(), "Year9"); !errors.Is(err, core.ErrPeriodNotFound) {
		t.Fatalf("err = %v, want ErrPeriodNotFound", err)
	}
}

func TestReportService_SourceErrors(t *testing.T) {
	l := loader.New(memory.New(nil), loader.Options{})
	s := NewReportService(l, Options{Layout: core.DefaultLayout()}, nil)

	if _, err := s.Report(context.Background(), ""); !errors.Is(err, core.ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
}

func TestReportService_PublishSnapshot(t *testing.T) {
	pub := &recordingPublisher{}
	s := newService(t, nil, pub)

	rec, err := s.PublishSnapshot(context.Background(), "")
	if err != nil {
		t.Fatalf("PublishSnapshot: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages", len(pub.msgs))
	}
	if msg := pub.msgs[0]; msg.Period != rec.Period || msg.Source != "memory" || msg.Report != rec {
		t.Fatalf("message = %+v", msg)
	}

	pub.err = errors.New("broker down")
	if _, err := s.PublishSnapshot(context.Background(), ""); err == nil {
		t.Fatal("expected publish error")
	}

	quiet := newService(t, nil, nil)
	if _, err := quiet.PublishSnapshot(context.Background(), "Year1"); err != nil {
		t.Fatalf("without publisher: %v", err)
	}
	if err := quiet.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestReportService_Refresh(t *testing.T) {
	store := memory.New(map[string][][]string{"Mensuel": monthlyGrid})
	l := loader.New(store, loader.Options{})
	s := NewReportService(l, Options{Layout: core.DefaultLayout()}, nil)
	ctx := context.Background()

	if _, err := s.Monthly(ctx); err != nil {
		t.Fatal(err)
	}
	store.Put("Mensuel", monthlyGrid[:3])
	before, _ := s.Monthly(ctx)
	s.Refresh()
	after, _ := s.Monthly(ctx)
	if before.Rows() != 4 || after.Rows() != 2 {
		t.Fatalf("rows before=%d after=%d", before.Rows(), after.Rows())
	}
}
