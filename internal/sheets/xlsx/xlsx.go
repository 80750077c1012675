// Package xlsx reads tables from a local Excel workbook, one worksheet per table.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"os"

	ports "leasedash/internal/sheets"

	"github.com/xuri/excelize/v2"
)

type Workbook struct {
	path string
}

var (
	_ ports.TableFetcher = (*Workbook)(nil)
	_ ports.Pinger       = (*Workbook)(nil)
)

// New returns a fetcher for the workbook at path. The file is reopened on
// every fetch so edits are picked up once the loader cache expires.
func New(path string) (*Workbook, error) {
	if path == "" {
		return nil, errors.New("missing XLSX_PATH")
	}
	return &Workbook{path: path}, nil
}

func (w *Workbook) FetchTable(ctx context.Context, name string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", w.path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", name, err)
	}
	return rows, nil
}

// Ping checks that the workbook exists and can be opened.
func (w *Workbook) Ping(ctx context.Context) error {
	if _, err := os.Stat(w.path); err != nil {
		return err
	}
	_, err := w.SheetNames(ctx)
	return err
}

func (w *Workbook) SheetNames(_ context.Context) ([]string, error) {
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", w.path, err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}
