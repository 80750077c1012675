package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Normalize converts a raw grid (row 0 is the header) into a Table.
//
// Header names are trimmed, blank headers become "Unnamed_<index>" and
// repeated names are suffixed with a per-name counter (X, X_1, X_2, ...).
// Each column is then coerced to numbers after replacing decimal commas; if
// any non-empty cell fails to parse, the whole column is kept as text.
func Normalize(name string, raw [][]string) (*Table, error) {
	if len(raw) == 0 || len(raw[0]) == 0 {
		return nil, fmt.Errorf("%w: %q has no header row", ErrEmptyTable, name)
	}

	names := HeaderNames(raw[0])
	body := raw[1:]

	columns := make([]Column, len(names))
	for ci, colName := range names {
		cells := make([]string, len(body))
		for ri, row := range body {
			if ci < len(row) {
				cells[ri] = strings.TrimSpace(row[ci])
			}
		}
		columns[ci] = coerceColumn(colName, cells)
	}
	return NewTable(name, columns), nil
}

// HeaderNames builds unique column names from a header row, preserving order.
func HeaderNames(header []string) []string {
	seen := make(map[string]struct{}, len(header))
	counters := make(map[string]int)
	out := make([]string, 0, len(header))

	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Unnamed_%d", i)
		}
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			out = append(out, name)
			continue
		}
		for {
			counters[name]++
			candidate := fmt.Sprintf("%s_%d", name, counters[name])
			if _, taken := seen[candidate]; taken {
				continue
			}
			seen[candidate] = struct{}{}
			out = append(out, candidate)
			break
		}
	}
	return out
}

// ParseNumber parses a cell using either '.' or ',' as decimal separator.
// Empty and non-finite values are rejected.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// coerceColumn tries the all-or-nothing numeric conversion of one column.
// Empty cells are missing values and do not block the conversion, but a
// column made only of empty cells stays textual.
func coerceColumn(name string, cells []string) Column {
	numbers := make([]float64, len(cells))
	filled := 0
	for i, s := range cells {
		if s == "" {
			numbers[i] = math.NaN()
			continue
		}
		f, ok := ParseNumber(s)
		if !ok {
			return Column{Name: name, Kind: Text, Texts: cells}
		}
		numbers[i] = f
		filled++
	}
	if filled == 0 {
		return Column{Name: name, Kind: Text, Texts: cells}
	}
	return Column{Name: name, Kind: Numeric, Numbers: numbers}
}
