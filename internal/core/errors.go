package core

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable reports a network or auth failure reaching the data source.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrEmptyTable reports a fetched table without a header row.
	ErrEmptyTable = errors.New("empty table")
	// ErrMissingColumn reports a required financial column that is absent or not numeric.
	ErrMissingColumn = errors.New("missing column")
	// ErrPeriodNotFound reports a period absent from, or duplicated in, the summary table.
	ErrPeriodNotFound = errors.New("period not found")
)

func missingColumn(t *Table, name string) error {
	return fmt.Errorf("%w: %q in table %q", ErrMissingColumn, name, tableName(t))
}

func notNumeric(t *Table, name string) error {
	return fmt.Errorf("%w: %q in table %q is not numeric", ErrMissingColumn, name, tableName(t))
}

func tableName(t *Table) string {
	if t == nil || t.Name == "" {
		return "(unnamed)"
	}
	return t.Name
}
