// Package export serializes normalized tables for download.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"leasedash/internal/core"

	"github.com/xuri/excelize/v2"
)

// Excel limit on worksheet names.
const maxSheetName = 31

const (
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// CSV writes the table as comma-separated UTF-8 text: one header row in
// column order, then one line per row. Missing cells are empty.
func CSV(t *core.Table) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("export csv: %w", core.ErrEmptyTable)
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Names()); err != nil {
		return nil, fmt.Errorf("export csv: %w", err)
	}
	record := make([]string, len(t.Columns))
	for row := 0; row < t.Rows(); row++ {
		for i, c := range t.Columns {
			record[i] = c.String(row)
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("export csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("export csv: %w", err)
	}
	return buf.Bytes(), nil
}

// XLSX writes the same grid as a single-sheet workbook. Numeric cells are
// stored as numbers so they stay usable in formulas.
func XLSX(t *core.Table, sheetName string) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("export xlsx: %w", core.ErrEmptyTable)
	}
	sheetName = sheetTitle(sheetName)
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("export xlsx: %w", err)
	}

	header := make([]interface{}, len(t.Columns))
	for i, name := range t.Names() {
		header[i] = name
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("export xlsx: %w", err)
	}
	if len(t.Columns) > 0 {
		bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return nil, fmt.Errorf("export xlsx: %w", err)
		}
		last, _ := excelize.CoordinatesToCellName(len(t.Columns), 1)
		if err := f.SetCellStyle(sheetName, "A1", last, bold); err != nil {
			return nil, fmt.Errorf("export xlsx: %w", err)
		}
	}

	values := make([]interface{}, len(t.Columns))
	for row := 0; row < t.Rows(); row++ {
		for i, c := range t.Columns {
			values[i] = cellValue(c, row)
		}
		cell, err := excelize.CoordinatesToCellName(1, row+2)
		if err != nil {
			return nil, fmt.Errorf("export xlsx: %w", err)
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("export xlsx: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("export xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func cellValue(c core.Column, row int) interface{} {
	if c.Kind == core.Numeric {
		if v, ok := c.Float(row); ok {
			return v
		}
		return nil
	}
	return c.String(row)
}

// sheetTitle makes name acceptable to Excel: no []:*?/\ and at most 31 characters.
func sheetTitle(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, strings.Trim(strings.TrimSpace(name), "'"))
	if runes := []rune(name); len(runes) > maxSheetName {
		name = string(runes[:maxSheetName])
	}
	if name == "" {
		return "Sheet1"
	}
	return name
}
