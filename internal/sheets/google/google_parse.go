package google

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	urlIDPattern  = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)
	bareIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ParseSpreadsheetID accepts a bare spreadsheet ID or any Google Sheets URL
// containing /spreadsheets/d/<id> and returns the ID.
func ParseSpreadsheetID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("missing spreadsheet id")
	}
	if m := urlIDPattern.FindStringSubmatch(s); m != nil {
		return m[1], nil
	}
	if bareIDPattern.MatchString(s) {
		return s, nil
	}
	return "", fmt.Errorf("invalid spreadsheet id or url %q", s)
}

// quoteSheetName turns a worksheet name into an A1 range covering the whole
// sheet. The name is always quoted so that names such as "Q1" or "FY24" are
// not read as cell references.
func quoteSheetName(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// toGrid converts the API value matrix into strings.
func toGrid(values [][]interface{}) [][]string {
	out := make([][]string, 0, len(values))
	for _, row := range values {
		out = append(out, toStrings(row))
	}
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		if v == nil {
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}
