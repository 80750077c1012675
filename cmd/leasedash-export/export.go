package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"leasedash/internal/core"
	"leasedash/internal/export"
	applog "leasedash/internal/log"
)

const (
	formatCSV  = "csv"
	formatXLSX = "xlsx"

	// summaryTable selects the summary, configured or derived from the monthly table.
	summaryTable = "summary"
)

var exportOpts struct {
	table  string
	format string
	out    string
}

func addExportFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&exportOpts.table, "table", "t", "", `sheet to export (default MONTHLY_SHEET_NAME; "summary" for the period summary)`)
	cmd.Flags().StringVarP(&exportOpts.format, "format", "f", formatCSV, "output format: csv or xlsx")
	cmd.Flags().StringVarP(&exportOpts.out, "out", "o", "", "output file (default stdout)")
}

func runExport(cmd *cobra.Command, _ []string) error {
	format := strings.ToLower(exportOpts.format)
	if format != formatCSV && format != formatXLSX {
		return fmt.Errorf("unsupported format %q: use csv or xlsx", exportOpts.format)
	}

	ctx := cmd.Context()
	app, cfg, logger, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(app, logger)

	var t *core.Table
	switch name := exportOpts.table; name {
	case "", cfg.MonthlySheetName:
		t, err = app.Service.MonthlyExport(ctx)
	case summaryTable:
		t, err = app.Service.Summary(ctx)
	default:
		t, err = app.Loader.Load(ctx, name)
	}
	if err != nil {
		return fmt.Errorf("load table: %w", err)
	}

	var data []byte
	if format == formatXLSX {
		data, err = export.XLSX(t, t.Name)
	} else {
		data, err = export.CSV(t)
	}
	if err != nil {
		return err
	}

	if err := writeOutput(cmd.OutOrStdout(), exportOpts.out, data); err != nil {
		return err
	}
	logger.WithComponent(applog.ComponentExport).Info("Table exported",
		applog.FieldTable, t.Name,
		applog.FieldFormat, format,
		applog.FieldRows, t.Rows(),
		"out", outputName(exportOpts.out))
	return nil
}

// writeOutput writes data to path, or to stdout when path is empty.
func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func outputName(path string) string {
	if path == "" || path == "-" {
		return "stdout"
	}
	return path
}
