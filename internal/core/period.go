package core

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/montanaflynn/stats"
)

// Flow columns are summed over a period, stock columns keep the last value.
var (
	flowColumns  = []string{ColLeaseRevenue, ColNetCashflow, ColNewFinanceRenewal}
	stockColumns = []string{ColCumCashflow, ColEncoursLeasing, ColEncoursDebt}
)

// YearLabel maps a 1-based month index to its contract year: months 1..12 are
// "Year1", 13..24 "Year2", and so on.
func YearLabel(month float64) string {
	q := month / 12
	n := int(q)
	if q != math.Trunc(q) {
		n++
	}
	return "Year" + strconv.Itoa(n)
}

// PeriodLabels returns the period label of every monthly row. When the table
// already carries the period column it is used as is; otherwise labels are
// derived from the month column with YearLabel.
func (l Layout) PeriodLabels(monthly *Table) ([]string, error) {
	labels := make([]string, monthly.Rows())
	if pc, ok := monthly.Column(l.periodColumn()); ok {
		for i := range labels {
			labels[i] = pc.String(i)
		}
		return labels, nil
	}
	mc, err := monthly.numericColumn(l.monthColumn())
	if err != nil {
		return nil, err
	}
	for i := range labels {
		if m, ok := mc.Float(i); ok {
			labels[i] = YearLabel(m)
		}
	}
	return labels, nil
}

// WithPeriodColumn returns a copy of monthly with the period column appended.
// The input table is left untouched; if it already has the column it is
// returned unchanged.
func (l Layout) WithPeriodColumn(monthly *Table) (*Table, error) {
	if _, ok := monthly.Column(l.periodColumn()); ok {
		return monthly, nil
	}
	labels, err := l.PeriodLabels(monthly)
	if err != nil {
		return nil, err
	}
	cols := make([]Column, 0, len(monthly.Columns)+1)
	cols = append(cols, monthly.Columns...)
	cols = append(cols, Column{Name: l.periodColumn(), Kind: Text, Texts: labels})
	return NewTable(monthly.Name, cols), nil
}

// FilterPeriod returns the monthly rows belonging to period, in source order.
// An empty period selects every row.
func (l Layout) FilterPeriod(monthly *Table, period string) (*Table, error) {
	period = strings.TrimSpace(period)
	if period == "" {
		return monthly, nil
	}
	labels, err := l.PeriodLabels(monthly)
	if err != nil {
		return nil, err
	}
	var rows []int
	for i, lbl := range labels {
		if lbl == period {
			rows = append(rows, i)
		}
	}
	return monthly.SelectRows(rows), nil
}

// DeriveSummary groups monthly rows by period label and builds a summary
// table. Flow columns are summed, stock columns keep the last known value of
// the period. Periods appear in the order they are first met.
func (l Layout) DeriveSummary(monthly *Table) (*Table, error) {
	if _, err := monthly.numericColumn(ColLeaseRevenue); err != nil {
		return nil, err
	}
	labels, err := l.PeriodLabels(monthly)
	if err != nil {
		return nil, err
	}

	var order []string
	groups := map[string][]int{}
	for i, lbl := range labels {
		if lbl == "" {
			continue
		}
		if _, seen := groups[lbl]; !seen {
			order = append(order, lbl)
		}
		groups[lbl] = append(groups[lbl], i)
	}

	cols := []Column{{Name: l.periodColumn(), Kind: Text, Texts: order}}
	for _, name := range flowColumns {
		src, ok := monthly.Column(name)
		if !ok || src.Kind != Numeric {
			continue
		}
		values := make([]float64, len(order))
		for gi, lbl := range order {
			values[gi] = sumRows(src, groups[lbl])
		}
		cols = append(cols, Column{Name: name, Kind: Numeric, Numbers: values})
	}
	for _, name := range stockColumns {
		src, ok := monthly.Column(name)
		if !ok || src.Kind != Numeric {
			continue
		}
		values := make([]float64, len(order))
		for gi, lbl := range order {
			values[gi] = lastValue(src, groups[lbl])
		}
		cols = append(cols, Column{Name: name, Kind: Numeric, Numbers: values})
	}
	return NewTable(monthly.Name+" (by period)", cols), nil
}

// Periods lists the distinct period labels of the summary table in natural
// order, so "Year2" sorts before "Year10".
func (l Layout) Periods(summary *Table) ([]string, error) {
	pc, ok := summary.Column(l.periodColumn())
	if !ok {
		return nil, missingColumn(summary, l.periodColumn())
	}
	seen := map[string]struct{}{}
	var out []string
	for i := 0; i < summary.Rows(); i++ {
		lbl := pc.String(i)
		if lbl == "" {
			continue
		}
		if _, dup := seen[lbl]; dup {
			continue
		}
		seen[lbl] = struct{}{}
		out = append(out, lbl)
	}
	sort.SliceStable(out, func(i, j int) bool { return naturalLess(out[i], out[j]) })
	return out, nil
}

// SelectRows returns a new table holding only the given rows.
func (t *Table) SelectRows(rows []int) *Table {
	cols := make([]Column, len(t.Columns))
	for ci, c := range t.Columns {
		nc := Column{Name: c.Name, Kind: c.Kind}
		if c.Kind == Numeric {
			nc.Numbers = make([]float64, len(rows))
			for i, r := range rows {
				nc.Numbers[i] = c.Numbers[r]
			}
		} else {
			nc.Texts = make([]string, len(rows))
			for i, r := range rows {
				nc.Texts[i] = c.Texts[r]
			}
		}
		cols[ci] = nc
	}
	return NewTable(t.Name, cols)
}

func sumRows(c Column, rows []int) float64 {
	data := make(stats.Float64Data, 0, len(rows))
	for _, r := range rows {
		if v, ok := c.Float(r); ok {
			data = append(data, v)
		}
	}
	sum, err := stats.Sum(data)
	if err != nil {
		return math.NaN()
	}
	return sum
}

func lastValue(c Column, rows []int) float64 {
	for i := len(rows) - 1; i >= 0; i-- {
		if v, ok := c.Float(rows[i]); ok {
			return v
		}
	}
	return math.NaN()
}

// naturalLess orders numbers numerically, then labels by text prefix and
// trailing number.
func naturalLess(a, b string) bool {
	fa, okA := ParseNumber(a)
	fb, okB := ParseNumber(b)
	if okA && okB {
		return fa < fb
	}
	if okA != okB {
		return okA
	}
	pa, na := splitTrailingNumber(a)
	pb, nb := splitTrailingNumber(b)
	if pa != pb {
		return pa < pb
	}
	if na != nb {
		return na < nb
	}
	return a < b
}

func splitTrailingNumber(s string) (string, int) {
	i := len(s)
	for i > 0 && unicode.IsDigit(rune(s[i-1])) {
		i--
	}
	if i == len(s) {
		return s, -1
	}
	n, err := strconv.Atoi(s[i:])
	if err != nil {
		return s, -1
	}
	return s[:i], n
}
