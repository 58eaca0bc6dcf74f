package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/vera/internal/services/report"
)

var (
	reportAsOf   string
	reportFormat string
	reportOut    string
	reportSave   bool
)

var reportCmd = &cobra.Command{
	Use:   "report SYMBOL...",
	Short: "Render risk card reports",
	Long: `Runs the analysis for each symbol and renders the risk card as markdown, HTML or PDF.
With several symbols or without --out, files go to reports.output_dir.`,
	Example: `  vera report AAPL 700 --format html
  vera report ^HSI --format pdf --out hsi.pdf`,
	Args: minArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportAsOf, "as-of", "", "Analysis date YYYY-MM-DD (default today)")
	reportCmd.Flags().StringVar(&reportFormat, "format", "md", "md, html or pdf")
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "Output file for a single symbol")
	reportCmd.Flags().BoolVar(&reportSave, "save", false, "Also persist the snapshots")

	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	asOf, err := parseDateFlag("as-of", reportAsOf)
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(reportFormat)
	if err != nil {
		return usageError{err}
	}
	if reportOut != "" && len(args) > 1 {
		return usageError{fmt.Errorf("--out needs exactly one symbol")}
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	opts, err := a.RunOptions("", reportSave)
	if err != nil {
		return usageError{err}
	}

	ctx := cmd.Context()
	for _, raw := range args {
		data, err := a.Analysis.RunSnapshot(ctx, raw, asOf, opts)
		if err != nil {
			return err
		}

		out := reportOut
		if out == "" {
			out = filepath.Join(config.Reports.OutputDir, reportFileName(data.AssetID, data.AsOfDate, format))
		}
		if err := writeDashboard(cmd.OutOrStdout(), a, data, format, out, false); err != nil {
			return err
		}
	}
	return nil
}

// reportFileName turns US:INDEX:^GSPC into us_index_gspc_2024-06-28.md
func reportFileName(assetID string, asOf time.Time, format report.Format) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ':':
			return '_'
		}
		return -1
	}, strings.ToLower(assetID))
	return name + "_" + asOf.Format(time.DateOnly) + "." + string(format)
}
