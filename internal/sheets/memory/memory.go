package memory

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	ports "leasedash/internal/sheets"
)

// DemoTable is the worksheet name under which demo data is seeded.
const DemoTable = "Mensuel"

// Store keeps raw grids in memory, keyed by table name.
type Store struct {
	mu     sync.RWMutex
	tables map[string][][]string
}

var (
	_ ports.TableFetcher = (*Store)(nil)
	_ ports.Pinger       = (*Store)(nil)
)

func New(tables map[string][][]string) *Store {
	s := &Store{tables: make(map[string][][]string, len(tables))}
	for name, grid := range tables {
		s.tables[name] = copyGrid(grid)
	}
	return s
}

// NewFromFiles seeds one table per <base>/<name>.csv file. When the directory
// holds no monthly table, DemoMonthly is used instead.
func NewFromFiles(base string) *Store {
	s := New(nil)
	paths, _ := filepath.Glob(filepath.Join(base, "*.csv"))
	for _, p := range paths {
		grid, err := readCSV(p)
		if err != nil {
			slog.Warn("Skipping seed file", "path", p, "error", err)
			continue
		}
		name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		s.Put(name, grid)
	}
	if _, ok := s.tables[DemoTable]; !ok {
		s.Put(DemoTable, DemoMonthly(36))
	}
	return s
}

// Put replaces the grid stored under name.
func (s *Store) Put(name string, grid [][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = copyGrid(grid)
}

// FetchTable returns a copy of the named grid.
func (s *Store) FetchTable(_ context.Context, name string) ([][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grid, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("table %q not found", name)
	}
	return copyGrid(grid), nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Names lists the stored table names.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tables))
	for name := range s.tables {
		out = append(out, name)
	}
	return out
}

func readCSV(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.Comma = sniffDelimiter(data)
	return r.ReadAll()
}

// sniffDelimiter picks ';' for exports that use the comma as decimal mark.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

func copyGrid(in [][]string) [][]string {
	if in == nil {
		return nil
	}
	out := make([][]string, len(in))
	for i, row := range in {
		out[i] = append([]string(nil), row...)
	}
	return out
}

// DemoMonthly builds a deterministic monthly schedule of the given length:
// a leasing book that grows with new financing while the debt amortizes.
// Decimals use a comma, as in the French workbook it imitates.
func DemoMonthly(months int) [][]string {
	grid := [][]string{{"Mois", "Lease_Revenue", "Net_Cashflow", "Cum_Cashflow", "Encours_Leasing", "Encours_Debt", "New_Finance_Renewal"}}
	leasing, debt, cum := 1_000_000.0, 950_000.0, 0.0
	for m := 1; m <= months; m++ {
		revenue := leasing * 0.012
		renewal := 0.0
		if m%6 == 0 {
			renewal = 60_000
		}
		interest := debt * 0.004
		net := revenue - interest - 2_500
		cum += net
		leasing = leasing*0.985 + renewal
		debt = debt*0.982 + renewal*0.9
		grid = append(grid, []string{
			strconv.Itoa(m),
			decimal(revenue),
			decimal(net),
			decimal(cum),
			decimal(leasing),
			decimal(debt),
			decimal(renewal),
		})
	}
	return grid
}

func decimal(v float64) string {
	return strings.Replace(strconv.FormatFloat(v, 'f', 2, 64), ".", ",", 1)
}
