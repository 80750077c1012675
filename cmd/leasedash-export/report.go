package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func reportCmd() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the KPI report of a period as JSON",
		Long: `Build the KPI report (spread, margin, renewal ratio and the month
snapshot) for one period and print it as JSON. Without --period the latest
period is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, _, logger, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer closeApp(app, logger)

			rec, err := app.Service.Report(ctx, strings.TrimSpace(period))
			if err != nil {
				return fmt.Errorf("build report: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
	cmd.Flags().StringVarP(&period, "period", "p", "", "period label, e.g. Year3 (default latest)")
	return cmd
}

func periodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "periods",
		Short: "List the periods known to the summary, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, _, logger, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer closeApp(app, logger)

			periods, err := app.Service.Periods(ctx)
			if err != nil {
				return err
			}
			for _, p := range periods {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), p); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
