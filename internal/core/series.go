package core

import "math"

// Chart groups of the dashboard: outstanding balances, cumulative result and
// monthly revenue.
var (
	BalanceSeries    = []string{ColEncoursLeasing, ColEncoursDebt}
	CumulativeSeries = []string{ColCumCashflow}
	RevenueSeries    = []string{ColLeaseRevenue}
)

type (
	// Line is one named y series. Missing cells are nil so they encode as JSON null.
	Line struct {
		Name   string     `json:"name"`
		Values []*float64 `json:"values"`
	}

	// Series is chart-ready data: a shared x axis and one or more lines.
	Series struct {
		Period string    `json:"period,omitempty"`
		XName  string    `json:"x"`
		X      []float64 `json:"x_values"`
		Lines  []Line    `json:"lines"`
	}

	// PeriodAggregate is one bar group: the period label and its values by column.
	PeriodAggregate struct {
		Period string              `json:"period"`
		Values map[string]*float64 `json:"values"`
	}
)

// MonthlySeries returns the given columns over the months of period (all
// months when period is empty). Rows without a month value are skipped.
func (l Layout) MonthlySeries(monthly *Table, period string, columns ...string) (Series, error) {
	rows, err := l.FilterPeriod(monthly, period)
	if err != nil {
		return Series{}, err
	}
	x, err := rows.numericColumn(l.monthColumn())
	if err != nil {
		return Series{}, err
	}
	ys := make([]Column, len(columns))
	for i, name := range columns {
		c, err := rows.numericColumn(name)
		if err != nil {
			return Series{}, err
		}
		ys[i] = c
	}

	s := Series{Period: period, XName: l.monthColumn(), Lines: make([]Line, len(columns))}
	for i, name := range columns {
		s.Lines[i].Name = name
	}
	for r := 0; r < rows.Rows(); r++ {
		xv, ok := x.Float(r)
		if !ok {
			continue
		}
		s.X = append(s.X, xv)
		for i, c := range ys {
			s.Lines[i].Values = append(s.Lines[i].Values, cell(c, r))
		}
	}
	return s, nil
}

// PeriodAggregates returns one entry per summary row with the requested
// columns. Columns absent from the summary are omitted from Values.
func (l Layout) PeriodAggregates(summary *Table, columns ...string) ([]PeriodAggregate, error) {
	pc, ok := summary.Column(l.periodColumn())
	if !ok {
		return nil, missingColumn(summary, l.periodColumn())
	}
	out := make([]PeriodAggregate, 0, summary.Rows())
	for r := 0; r < summary.Rows(); r++ {
		agg := PeriodAggregate{Period: pc.String(r), Values: map[string]*float64{}}
		for _, name := range columns {
			c, ok := summary.Column(name)
			if !ok || c.Kind != Numeric {
				continue
			}
			agg.Values[name] = cell(c, r)
		}
		out = append(out, agg)
	}
	return out, nil
}

func cell(c Column, r int) *float64 {
	if r >= len(c.Numbers) || math.IsNaN(c.Numbers[r]) {
		return nil
	}
	v := c.Numbers[r]
	return &v
}
