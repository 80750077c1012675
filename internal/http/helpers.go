package http

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"leasedash/internal/core"
	applog "leasedash/internal/log"
	"leasedash/internal/middleware/trace"
)

const maxPeriodLength = 64

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrPeriodNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrMissingColumn):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		// Checked first: source timeouts are also ErrSourceUnavailable.
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrSourceUnavailable):
		return http.StatusBadGateway
	default:
		// ErrEmptyTable lands here: the configured sheet is wrong.
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to encode JSON response", applog.FieldError, err)
	}
}

// writeError logs err with the request logger and writes it as JSON.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := errorStatus(err)
	logError(r, op, status, err)
	writeJSON(w, r, status, errorBody{
		Error:     err.Error(),
		Status:    status,
		RequestID: trace.GetRequestID(r.Context()),
	})
}

func logError(r *http.Request, op string, status int, err error) {
	logger := applog.FromContext(r.Context())
	if status >= 500 {
		fields := applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "")
		fields[applog.FieldStatusCode] = status
		applog.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, op, fields)
		return
	}
	logger.WithComponent(applog.ComponentHTTP).WarnContext(r.Context(), "Request rejected",
		applog.FieldOperation, op, applog.FieldStatusCode, status, applog.FieldError, err)
}

// periodParam reads the period query parameter, capped at maxPeriodLength runes.
func periodParam(r *http.Request) string {
	p := sanitizeInput(r.URL.Query().Get("period"))
	if runes := []rune(p); len(runes) > maxPeriodLength {
		p = string(runes[:maxPeriodLength])
	}
	return p
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}

type (
	columnView struct {
		Name string          `json:"name"`
		Kind core.ColumnKind `json:"kind"`
	}

	// tableView is the JSON form of a normalized table: numbers stay numbers,
	// missing numeric cells are null.
	tableView struct {
		Name    string           `json:"name"`
		Columns []columnView     `json:"columns"`
		Rows    []map[string]any `json:"rows"`
	}
)

func newTableView(t *core.Table) tableView {
	v := tableView{Name: t.Name, Columns: make([]columnView, len(t.Columns)), Rows: make([]map[string]any, t.Rows())}
	for i, c := range t.Columns {
		v.Columns[i] = columnView{Name: c.Name, Kind: c.Kind}
	}
	for r := 0; r < t.Rows(); r++ {
		row := make(map[string]any, len(t.Columns))
		for _, c := range t.Columns {
			if c.Kind == core.Numeric {
				if f, ok := c.Float(r); ok {
					row[c.Name] = f
				} else {
					row[c.Name] = nil
				}
				continue
			}
			row[c.Name] = c.String(r)
		}
		v.Rows[r] = row
	}
	return v
}

// formatAmount renders v with two decimals, a comma decimal separator and
// spaces between thousands, the way the source sheets display money.
func formatAmount(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "–"
	}
	s := strconv.FormatFloat(math.Abs(v), 'f', 2, 64)
	neg := v < 0 && strings.Trim(s, "0.") != ""
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, d := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteString(" ")
		}
		b.WriteRune(d)
	}
	b.WriteByte(',')
	b.WriteString(frac)
	return b.String()
}

// formatPercent renders a ratio as a percentage with one decimal.
func formatPercent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "–"
	}
	return strings.Replace(strconv.FormatFloat(v*100, 'f', 1, 64), ".", ",", 1) + " %"
}

func formatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return formatAmount(*v)
}

func formatAxis(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
