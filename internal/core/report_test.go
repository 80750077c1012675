package core

import (
	"errors"
	"testing"
)

func mustNormalize(t *testing.T, name string, raw [][]string) *Table {
	t.Helper()
	tbl, err := Normalize(name, raw)
	if err != nil {
		t.Fatalf("normalize %s: %v", name, err)
	}
	return tbl
}

var monthlyHeader = []string{"Mois", "Lease_Revenue", "Net_Cashflow", "Cum_Cashflow", "Encours_Leasing", "Encours_Debt"}

func TestBuildReport_SingleMonth(t *testing.T) {
	monthly := mustNormalize(t, "Mensuel", [][]string{
		monthlyHeader,
		{"1", "100", "20", "20", "500", "480"},
	})
	summary := mustNormalize(t, "Synthese", [][]string{
		{"Period", "Lease_Revenue", "Net_Cashflow", "New_Finance_Renewal"},
		{"Year1", "1200", "240", "300"},
	})

	rec, err := BuildReport(monthly, summary, "Year1")
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if rec.Spread != 20 {
		t.Fatalf("spread = %v, want 20", rec.Spread)
	}
	if rec.Margin != 0.2 {
		t.Fatalf("margin = %v, want 0.2", rec.Margin)
	}
	if rec.RenewalRatio != 0.25 {
		t.Fatalf("renewal ratio = %v, want 0.25", rec.RenewalRatio)
	}
	if rec.Revenue != 100 || rec.CumCashflow != 20 || rec.Month != "1" {
		t.Fatalf("unexpected snapshot: %+v", rec)
	}
	if rec.PeriodRevenue != 1200 || rec.PeriodNetCashflow != 240 || rec.NewFinanceRenewal != 300 {
		t.Fatalf("unexpected period values: %+v", rec)
	}
}

func TestBuildReport_UsesLastRowInSourceOrder(t *testing.T) {
	monthly := mustNormalize(t, "Mensuel", [][]string{
		monthlyHeader,
		{"2", "200", "50", "70", "900", "850"},
		{"1", "100", "20", "20", "500", "480"},
	})
	summary := mustNormalize(t, "Synthese", [][]string{
		{"Period", "Lease_Revenue"},
		{"Year1", "300"},
	})
	rec, err := BuildReport(monthly, summary, "Year1")
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if rec.Month != "1" || rec.Revenue != 100 {
		t.Fatalf("expected the last source row, got %+v", rec)
	}
}

func TestBuildReport_ZeroRevenue(t *testing.T) {
	monthly := mustNormalize(t, "Mensuel", [][]string{
		monthlyHeader,
		{"1", "0", "35", "35", "500", "480"},
	})
	summary := mustNormalize(t, "Synthese", [][]string{
		{"Period", "Lease_Revenue", "New_Finance_Renewal"},
		{"Year1", "0", "300"},
	})
	rec, err := BuildReport(monthly, summary, "Year1")
	if err != nil {
		t.Fatalf("zero revenue must not fail: %v", err)
	}
	if rec.Margin != 0 || rec.RenewalRatio != 0 {
		t.Fatalf("margin=%v renewal=%v, want 0", rec.Margin, rec.RenewalRatio)
	}
}

func TestBuildReport_RenewalDefaultsToZero(t *testing.T) {
	monthly := mustNormalize(t, "Mensuel", [][]string{
		monthlyHeader,
		{"1", "100", "20", "20", "500", "480"},
	})
	summary := mustNormalize(t, "Synthese", [][]string{
		{"Period", "Lease_Revenue"},
		{"Year1", "1200"},
	})
	rec, err := BuildReport(monthly, summary, "Year1")
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if rec.NewFinanceRenewal != 0 || rec.RenewalRatio != 0 {
		t.Fatalf("got %+v", rec)
	}
}

func TestBuildReport_PeriodErrors(t *testing.T) {
	monthly := mustNormalize(t, "Mensuel", [][]string{
		monthlyHeader,
		{"1", "100", "20", "20", "500", "480"},
	})
	summary := mustNormalize(t, "Synthese", [][]string{
		{"Period", "Lease_Revenue", "New_Finance_Renewal"},
		{"Year1", "1200", "300"},
		{"Year1", "1300", "100"},
		{"Year2", "1400", "200"},
	})

	for _, period := range []string{"Year1", "Year3", "", "year2"} {
		_, err := BuildReport(monthly, summary, period)
		if !errors.Is(err, ErrPeriodNotFound) {
			t.Fatalf("period %q: err = %v, want ErrPeriodNotFound", period, err)
		}
	}
	if _, err := BuildReport(monthly, summary, "Year2"); err != nil {
		t.Fatalf("Year2: %v", err)
	}
}

func TestBuildReport_NumericPeriodLabels(t *testing.T) {
	monthly := mustNormalize(t, "Mensuel", [][]string{
		monthlyHeader,
		{"1", "100", "20", "20", "500", "480"},
	})
	summary := mustNormalize(t, "Synthese", [][]string{
		{"Period", "Lease_Revenue"},
		{"2024", "1200"},
		{"2025", "1500"},
	})
	rec, err := BuildReport(monthly, summary, "2025")
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if rec.PeriodRevenue != 1500 {
		t.Fatalf("period revenue = %v", rec.PeriodRevenue)
	}
}

func TestBuildReport_MissingColumns(t *testing.T) {
	good := mustNormalize(t, "Mensuel", [][]string{
		monthlyHeader,
		{"1", "100", "20", "20", "500", "480"},
	})
	summary := mustNormalize(t, "Synthese", [][]string{
		{"Period", "Lease_Revenue"},
		{"Year1", "1200"},
	})

	cases := []struct {
		name             string
		monthly, summary *Table
	}{
		{"monthly without debt", mustNormalize(t, "Mensuel", [][]string{
			{"Mois", "Lease_Revenue", "Net_Cashflow", "Cum_Cashflow", "Encours_Leasing"},
			{"1", "100", "20", "20", "500"},
		}), summary},
		{"monthly revenue not numeric", mustNormalize(t, "Mensuel", [][]string{
			monthlyHeader,
			{"1", "n/a", "20", "20", "500", "480"},
		}), summary},
		{"empty monthly", mustNormalize(t, "Mensuel", [][]string{monthlyHeader}), summary},
		{"summary without period", good, mustNormalize(t, "Synthese", [][]string{
			{"Annee", "Lease_Revenue"},
			{"Year1", "1200"},
		})},
		{"summary without revenue", good, mustNormalize(t, "Synthese", [][]string{
			{"Period", "Net_Cashflow"},
			{"Year1", "240"},
		})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildReport(tc.monthly, tc.summary, "Year1")
			if !errors.Is(err, ErrMissingColumn) {
				t.Fatalf("err = %v, want ErrMissingColumn", err)
			}
		})
	}
}

func TestBuildReport_DoesNotMutateInputs(t *testing.T) {
	monthly := mustNormalize(t, "Mensuel", [][]string{
		monthlyHeader,
		{"1", "100", "20", "20", "500", "480"},
	})
	summary := mustNormalize(t, "Synthese", [][]string{
		{"Period", "Lease_Revenue"},
		{"Year1", "1200"},
	})
	before := monthly.String() + summary.String()
	if _, err := BuildReport(monthly, summary, "Year1"); err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if after := monthly.String() + summary.String(); after != before {
		t.Fatalf("tables changed: %s -> %s", before, after)
	}
	if len(monthly.Columns) != len(monthlyHeader) {
		t.Fatalf("monthly columns = %d", len(monthly.Columns))
	}
}

func TestLayout_CustomPeriodColumn(t *testing.T) {
	monthly := mustNormalize(t, "Mensuel", [][]string{
		monthlyHeader,
		{"1", "100", "20", "20", "500", "480"},
	})
	summary := mustNormalize(t, "Synthese", [][]string{
		{"Année", "Lease_Revenue"},
		{"Year1", "1200"},
	})
	l := Layout{PeriodColumn: "Année"}
	if _, err := l.BuildReport(monthly, summary, "Year1"); err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
}
