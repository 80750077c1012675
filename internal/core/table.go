package core

import (
	"fmt"
	"math"
	"strconv"
)

const (
	Numeric ColumnKind = "numeric"
	Text    ColumnKind = "text"
)

type (
	ColumnKind string

	// Column holds one normalized column. Exactly one of Numbers or Texts is
	// populated, as indicated by Kind. Missing numeric cells are NaN.
	Column struct {
		Name    string
		Kind    ColumnKind
		Numbers []float64
		Texts   []string
	}

	// Table is a normalized sheet: unique column names in sheet order and the
	// same row count for every column. Tables are treated as immutable once
	// built; derived tables are new values.
	Table struct {
		Name    string
		Columns []Column
		index   map[string]int
		rows    int
	}
)

// NewTable builds a table from columns. Column names must already be unique.
func NewTable(name string, columns []Column) *Table {
	t := &Table{Name: name, Columns: columns, index: make(map[string]int, len(columns))}
	for i, c := range columns {
		t.index[c.Name] = i
		if n := c.Len(); n > t.rows {
			t.rows = n
		}
	}
	return t
}

// Len returns the number of values in the column.
func (c Column) Len() int {
	if c.Kind == Numeric {
		return len(c.Numbers)
	}
	return len(c.Texts)
}

// Float returns the numeric value at row i. ok is false for text columns,
// out-of-range rows and missing cells.
func (c Column) Float(i int) (float64, bool) {
	if c.Kind != Numeric || i < 0 || i >= len(c.Numbers) {
		return 0, false
	}
	v := c.Numbers[i]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// String renders the cell at row i as text. Numbers use the shortest
// representation that round-trips; missing cells render as "".
func (c Column) String(i int) string {
	if c.Kind == Numeric {
		if i < 0 || i >= len(c.Numbers) || math.IsNaN(c.Numbers[i]) {
			return ""
		}
		return strconv.FormatFloat(c.Numbers[i], 'f', -1, 64)
	}
	if i < 0 || i >= len(c.Texts) {
		return ""
	}
	return c.Texts[i]
}

// Rows returns the number of data rows (header excluded).
func (t *Table) Rows() int {
	if t == nil {
		return 0
	}
	return t.rows
}

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	if t == nil {
		return Column{}, false
	}
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.Columns[i], true
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// numericColumn returns the named column, failing with ErrMissingColumn when it
// is absent or was kept as text.
func (t *Table) numericColumn(name string) (Column, error) {
	c, ok := t.Column(name)
	if !ok {
		return Column{}, missingColumn(t, name)
	}
	if c.Kind != Numeric {
		return Column{}, notNumeric(t, name)
	}
	return c, nil
}

// valueOrZero reads a numeric cell, treating missing values as 0.
func valueOrZero(c Column, row int) float64 {
	v, _ := c.Float(row)
	return v
}

// String describes the table for logs.
func (t *Table) String() string {
	if t == nil {
		return "<nil table>"
	}
	return fmt.Sprintf("%s (%d rows, %d columns)", tableName(t), t.Rows(), len(t.Columns))
}
