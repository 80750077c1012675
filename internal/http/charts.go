package http

import (
	"math"
	"strconv"
	"strings"

	"leasedash/internal/core"
)

// Chart geometry in SVG user units.
const (
	chartWidth   = 640
	chartHeight  = 220
	chartPadding = 24
)

type (
	chartLine struct {
		Name   string
		Class  string
		Points string
	}

	chartBar struct {
		Label         string
		X, Y, W, H    float64
		Value         string
		LabelX, TextY float64
	}

	// chartView is an inline SVG chart rendered by the dashboard template.
	chartView struct {
		Title    string
		Width    int
		Height   int
		Lines    []chartLine
		Bars     []chartBar
		MinLabel string
		MaxLabel string
		Empty    bool
	}

	// seriesTable is the tabular form of one or more series sharing an x axis.
	seriesTable struct {
		Title   string
		Headers []string
		Rows    [][]string
	}
)

// lineChart scales every line of s into the chart box. Missing values break
// nothing: the point is skipped and the polyline joins its neighbours.
func lineChart(title string, s core.Series) chartView {
	v := chartView{Title: title, Width: chartWidth, Height: chartHeight}
	if len(s.X) == 0 {
		v.Empty = true
		return v
	}

	xMin, xMax := s.X[0], s.X[len(s.X)-1]
	yMin, yMax := math.Inf(1), math.Inf(-1)
	for _, l := range s.Lines {
		for _, y := range l.Values {
			if y == nil {
				continue
			}
			yMin = math.Min(yMin, *y)
			yMax = math.Max(yMax, *y)
		}
	}
	if math.IsInf(yMin, 1) {
		v.Empty = true
		return v
	}
	if yMin > 0 {
		yMin = 0
	}
	v.MinLabel, v.MaxLabel = formatAmount(yMin), formatAmount(yMax)

	for i, l := range s.Lines {
		var pts []string
		for j, y := range l.Values {
			if y == nil || j >= len(s.X) {
				continue
			}
			px := scale(s.X[j], xMin, xMax, chartPadding, chartWidth-chartPadding)
			py := scale(*y, yMin, yMax, chartHeight-chartPadding, chartPadding)
			pts = append(pts, formatCoord(px)+","+formatCoord(py))
		}
		v.Lines = append(v.Lines, chartLine{
			Name:   l.Name,
			Class:  "line-" + strconv.Itoa(i),
			Points: strings.Join(pts, " "),
		})
	}
	return v
}

// barChart draws one bar per period for column.
func barChart(title string, aggs []core.PeriodAggregate, column string) chartView {
	v := chartView{Title: title, Width: chartWidth, Height: chartHeight}
	maxV := 0.0
	for _, a := range aggs {
		if p := a.Values[column]; p != nil {
			maxV = math.Max(maxV, math.Abs(*p))
		}
	}
	if len(aggs) == 0 || maxV == 0 {
		v.Empty = true
		return v
	}
	v.MinLabel, v.MaxLabel = formatAmount(0), formatAmount(maxV)

	slot := float64(chartWidth-2*chartPadding) / float64(len(aggs))
	base := float64(chartHeight - chartPadding)
	for i, a := range aggs {
		val := 0.0
		if p := a.Values[column]; p != nil {
			val = math.Abs(*p)
		}
		h := scale(val, 0, maxV, 0, base-chartPadding)
		x := chartPadding + float64(i)*slot + slot*0.15
		v.Bars = append(v.Bars, chartBar{
			Label:  a.Period,
			X:      round1(x),
			Y:      round1(base - h),
			W:      round1(slot * 0.7),
			H:      round1(h),
			Value:  formatCell(a.Values[column]),
			LabelX: round1(x + slot*0.35),
			TextY:  base + 14,
		})
	}
	return v
}

// newSeriesTable lays the series out as rows of x followed by each line.
func newSeriesTable(title string, series ...core.Series) seriesTable {
	t := seriesTable{Title: title}
	if len(series) == 0 {
		return t
	}
	t.Headers = append(t.Headers, series[0].XName)
	for _, s := range series {
		for _, l := range s.Lines {
			t.Headers = append(t.Headers, l.Name)
		}
	}
	for i, x := range series[0].X {
		row := []string{formatAxis(x)}
		for _, s := range series {
			for _, l := range s.Lines {
				var cell *float64
				if i < len(l.Values) {
					cell = l.Values[i]
				}
				row = append(row, formatCell(cell))
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func scale(v, inMin, inMax, outMin, outMax float64) float64 {
	if inMax == inMin {
		return (outMin + outMax) / 2
	}
	return outMin + (v-inMin)*(outMax-outMin)/(inMax-inMin)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(round1(v), 'f', -1, 64)
}
