// Package services orchestrates loading, report building and publishing.
package services

import (
	"context"
	"fmt"
	"slices"

	"leasedash/internal/amqp"
	"leasedash/internal/core"
	applog "leasedash/internal/log"
	"leasedash/internal/sheets"
)

// TableSource is the loader as seen by the service.
type TableSource interface {
	sheets.TableLoader
	Invalidate(name string)
	InvalidateAll()
}

// SnapshotPublisher delivers report snapshots to downstream consumers.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, msg *amqp.ReportSnapshotMessage) error
}

// Options name the tables and columns the service reads.
type Options struct {
	Layout       core.Layout
	MonthlySheet string
	// SummarySheet is optional; when empty period totals are derived from
	// the monthly table.
	SummarySheet string
	// Source labels published snapshots (the backend name).
	Source string
}

// Dashboard is everything the dashboard page renders for one period.
type Dashboard struct {
	Periods    []string               `json:"periods"`
	Period     string                 `json:"period"`
	Report     core.KPIRecord         `json:"report"`
	Balances   core.Series            `json:"balances"`
	Cumulative core.Series            `json:"cumulative"`
	Revenue    core.Series            `json:"revenue"`
	Aggregates []core.PeriodAggregate `json:"aggregates"`
}

type ReportService struct {
	tables    TableSource
	opts      Options
	publisher SnapshotPublisher
}

// NewReportService wires the service. publisher may be nil.
func NewReportService(tables TableSource, opts Options, publisher SnapshotPublisher) *ReportService {
	if opts.MonthlySheet == "" {
		opts.MonthlySheet = "Mensuel"
	}
	return &ReportService{tables: tables, opts: opts, publisher: publisher}
}

func (s *ReportService) Layout() core.Layout { return s.opts.Layout }

// Monthly loads the monthly table.
func (s *ReportService) Monthly(ctx context.Context) (*core.Table, error) {
	return s.tables.Load(ctx, s.opts.MonthlySheet)
}

// MonthlyExport is the monthly table with each row's period label appended,
// as written by the CSV and XLSX exports.
func (s *ReportService) MonthlyExport(ctx context.Context) (*core.Table, error) {
	monthly, err := s.Monthly(ctx)
	if err != nil {
		return nil, err
	}
	return s.opts.Layout.WithPeriodColumn(monthly)
}

// Summary loads the summary sheet, or derives one from the monthly table.
func (s *ReportService) Summary(ctx context.Context) (*core.Table, error) {
	if s.opts.SummarySheet != "" {
		return s.tables.Load(ctx, s.opts.SummarySheet)
	}
	monthly, err := s.Monthly(ctx)
	if err != nil {
		return nil, err
	}
	return s.opts.Layout.DeriveSummary(monthly)
}

// Periods lists the selectable periods in natural order.
func (s *ReportService) Periods(ctx context.Context) ([]string, error) {
	summary, err := s.Summary(ctx)
	if err != nil {
		return nil, err
	}
	return s.opts.Layout.Periods(summary)
}

// ResolvePeriod returns the latest period when period is empty and checks that
// an explicit one exists.
func (s *ReportService) ResolvePeriod(ctx context.Context, period string) (string, error) {
	periods, err := s.Periods(ctx)
	if err != nil {
		return "", err
	}
	if period == "" {
		if len(periods) == 0 {
			return "", fmt.Errorf("%w: no periods available", core.ErrPeriodNotFound)
		}
		return periods[len(periods)-1], nil
	}
	if !slices.Contains(periods, period) {
		return "", fmt.Errorf("%w: %q", core.ErrPeriodNotFound, period)
	}
	return period, nil
}

// Report builds the KPI record for period (latest period when empty).
func (s *ReportService) Report(ctx context.Context, period string) (core.KPIRecord, error) {
	monthly, summary, err := s.tablesFor(ctx)
	if err != nil {
		return core.KPIRecord{}, err
	}
	period, err = s.resolveFrom(summary, period)
	if err != nil {
		return core.KPIRecord{}, err
	}
	return s.opts.Layout.BuildReport(monthly, summary, period)
}

// Series returns the three chart groups for period (all months when empty).
func (s *ReportService) Series(ctx context.Context, period string) ([]core.Series, error) {
	monthly, err := s.Monthly(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Series, 0, 3)
	for _, cols := range [][]string{core.BalanceSeries, core.CumulativeSeries, core.RevenueSeries} {
		series, err := s.opts.Layout.MonthlySeries(monthly, period, cols...)
		if err != nil {
			return nil, err
		}
		out = append(out, series)
	}
	return out, nil
}

// Dashboard assembles the report, chart series and period aggregates.
func (s *ReportService) Dashboard(ctx context.Context, period string) (Dashboard, error) {
	monthly, summary, err := s.tablesFor(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	periods, err := s.opts.Layout.Periods(summary)
	if err != nil {
		return Dashboard{}, err
	}
	period, err = s.resolveFrom(summary, period)
	if err != nil {
		return Dashboard{}, err
	}
	rec, err := s.opts.Layout.BuildReport(monthly, summary, period)
	if err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{Periods: periods, Period: period, Report: rec}
	if d.Balances, err = s.opts.Layout.MonthlySeries(monthly, period, core.BalanceSeries...); err != nil {
		return Dashboard{}, err
	}
	if d.Cumulative, err = s.opts.Layout.MonthlySeries(monthly, period, core.CumulativeSeries...); err != nil {
		return Dashboard{}, err
	}
	if d.Revenue, err = s.opts.Layout.MonthlySeries(monthly, period, core.RevenueSeries...); err != nil {
		return Dashboard{}, err
	}
	if d.Aggregates, err = s.opts.Layout.PeriodAggregates(summary, core.ColLeaseRevenue, core.ColNetCashflow, core.ColNewFinanceRenewal); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

// Refresh drops every cached table so the next read goes to the source.
func (s *ReportService) Refresh() {
	s.tables.InvalidateAll()
}

// PublishSnapshot builds the report for period and hands it to the publisher.
// Without a publisher the report is built and returned but not sent.
func (s *ReportService) PublishSnapshot(ctx context.Context, period string) (core.KPIRecord, error) {
	rec, err := s.Report(ctx, period)
	if err != nil {
		return core.KPIRecord{}, err
	}
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentReport)
	applog.NewStructuredLogger(logger).LogReportBuilt(ctx, rec.Period, rec.Spread, rec.Margin, rec.RenewalRatio)
	if s.publisher == nil {
		logger.DebugContext(ctx, "No publisher configured, skipping snapshot", applog.FieldPeriod, rec.Period)
		return rec, nil
	}
	if err := s.publisher.PublishSnapshot(ctx, amqp.NewReportSnapshotMessage(s.opts.Source, rec)); err != nil {
		return rec, fmt.Errorf("publish snapshot: %w", err)
	}
	return rec, nil
}

// Close releases the publisher when it holds resources.
func (s *ReportService) Close() error {
	if c, ok := s.publisher.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close publisher: %w", err)
		}
	}
	return nil
}

func (s *ReportService) tablesFor(ctx context.Context) (*core.Table, *core.Table, error) {
	monthly, err := s.Monthly(ctx)
	if err != nil {
		return nil, nil, err
	}
	if s.opts.SummarySheet == "" {
		summary, err := s.opts.Layout.DeriveSummary(monthly)
		return monthly, summary, err
	}
	summary, err := s.tables.Load(ctx, s.opts.SummarySheet)
	if err != nil {
		return nil, nil, err
	}
	return monthly, summary, nil
}

func (s *ReportService) resolveFrom(summary *core.Table, period string) (string, error) {
	if period != "" {
		return period, nil
	}
	periods, err := s.opts.Layout.Periods(summary)
	if err != nil {
		return "", err
	}
	if len(periods) == 0 {
		return "", fmt.Errorf("%w: no periods available", core.ErrPeriodNotFound)
	}
	return periods[len(periods)-1], nil
}
