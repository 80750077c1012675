package core

import (
	"fmt"
	"strings"
)

// Financial column names shared by the monthly and summary sheets.
const (
	ColLeaseRevenue      = "Lease_Revenue"
	ColNetCashflow       = "Net_Cashflow"
	ColCumCashflow       = "Cum_Cashflow"
	ColEncoursLeasing    = "Encours_Leasing"
	ColEncoursDebt       = "Encours_Debt"
	ColNewFinanceRenewal = "New_Finance_Renewal"

	DefaultPeriodColumn = "Period"
	DefaultMonthColumn  = "Mois"
)

// MonthlyColumns lists the columns the monthly table must provide.
var MonthlyColumns = []string{ColLeaseRevenue, ColNetCashflow, ColCumCashflow, ColEncoursLeasing, ColEncoursDebt}

// KPIRecord is the flat set of indicators shown on the dashboard. It is
// recomputed on every render and never stored.
type KPIRecord struct {
	Period string `json:"period"`
	Month  string `json:"month,omitempty"`

	// Current month snapshot (last monthly row).
	Revenue        float64 `json:"revenue"`
	NetCashflow    float64 `json:"net_cashflow"`
	CumCashflow    float64 `json:"cum_cashflow"`
	EncoursLeasing float64 `json:"encours_leasing"`
	EncoursDebt    float64 `json:"encours_debt"`
	Spread         float64 `json:"spread"`
	Margin         float64 `json:"margin"`

	// Selected period (summary row).
	PeriodRevenue     float64 `json:"period_revenue"`
	PeriodNetCashflow float64 `json:"period_net_cashflow"`
	NewFinanceRenewal float64 `json:"new_finance_renewal"`
	RenewalRatio      float64 `json:"renewal_ratio"`
}

// Layout names the label columns of the two tables.
type Layout struct {
	PeriodColumn string
	MonthColumn  string
}

// DefaultLayout returns the column names used by the leasing workbook.
func DefaultLayout() Layout {
	return Layout{PeriodColumn: DefaultPeriodColumn, MonthColumn: DefaultMonthColumn}
}

func (l Layout) periodColumn() string {
	if strings.TrimSpace(l.PeriodColumn) == "" {
		return DefaultPeriodColumn
	}
	return l.PeriodColumn
}

func (l Layout) monthColumn() string {
	if strings.TrimSpace(l.MonthColumn) == "" {
		return DefaultMonthColumn
	}
	return l.MonthColumn
}

// BuildReport computes the KPIs with the default layout.
func BuildReport(monthly, summary *Table, period string) (KPIRecord, error) {
	return DefaultLayout().BuildReport(monthly, summary, period)
}

// BuildReport derives the KPIs from the last monthly row and the summary row
// of the requested period. Monthly rows are taken in source order.
func (l Layout) BuildReport(monthly, summary *Table, period string) (KPIRecord, error) {
	if monthly.Rows() == 0 {
		return KPIRecord{}, fmt.Errorf("%w: table %q has no rows", ErrMissingColumn, tableName(monthly))
	}
	cols := make(map[string]Column, len(MonthlyColumns))
	for _, name := range MonthlyColumns {
		c, err := monthly.numericColumn(name)
		if err != nil {
			return KPIRecord{}, err
		}
		cols[name] = c
	}

	periodCol, ok := summary.Column(l.periodColumn())
	if !ok {
		return KPIRecord{}, missingColumn(summary, l.periodColumn())
	}
	summaryRevenue, err := summary.numericColumn(ColLeaseRevenue)
	if err != nil {
		return KPIRecord{}, err
	}

	last := monthly.Rows() - 1
	rec := KPIRecord{
		Period:         period,
		Revenue:        valueOrZero(cols[ColLeaseRevenue], last),
		NetCashflow:    valueOrZero(cols[ColNetCashflow], last),
		CumCashflow:    valueOrZero(cols[ColCumCashflow], last),
		EncoursLeasing: valueOrZero(cols[ColEncoursLeasing], last),
		EncoursDebt:    valueOrZero(cols[ColEncoursDebt], last),
	}
	if mc, ok := monthly.Column(l.monthColumn()); ok {
		rec.Month = mc.String(last)
	}
	rec.Spread = rec.EncoursLeasing - rec.EncoursDebt
	rec.Margin = ratio(rec.NetCashflow, rec.Revenue)

	row, err := selectPeriodRow(summary, periodCol, period)
	if err != nil {
		return KPIRecord{}, err
	}
	rec.PeriodRevenue = valueOrZero(summaryRevenue, row)
	if c, ok := summary.Column(ColNetCashflow); ok {
		rec.PeriodNetCashflow = valueOrZero(c, row)
	}
	if c, ok := summary.Column(ColNewFinanceRenewal); ok {
		rec.NewFinanceRenewal = valueOrZero(c, row)
	}
	rec.RenewalRatio = ratio(rec.NewFinanceRenewal, rec.PeriodRevenue)

	return rec, nil
}

// selectPeriodRow returns the only row labelled period. Zero or several
// matches are both reported as ErrPeriodNotFound.
func selectPeriodRow(summary *Table, periodCol Column, period string) (int, error) {
	want := strings.TrimSpace(period)
	match, count := -1, 0
	for i := 0; i < summary.Rows(); i++ {
		if periodCol.String(i) != want {
			continue
		}
		if match < 0 {
			match = i
		}
		count++
	}
	switch {
	case count == 0:
		return -1, fmt.Errorf("%w: %q in table %q", ErrPeriodNotFound, period, tableName(summary))
	case count > 1:
		return -1, fmt.Errorf("%w: %q appears %d times in table %q", ErrPeriodNotFound, period, count, tableName(summary))
	}
	return match, nil
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
