package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/vera/internal/app"
	"github.com/ternarybob/vera/internal/models"
	"github.com/ternarybob/vera/internal/services/identity"
	"github.com/ternarybob/vera/internal/services/report"
)

var (
	snapshotAsOf    string
	snapshotNoSave  bool
	snapshotJSON    bool
	snapshotMarket  string
	snapshotType    string
	snapshotFormat  string
	snapshotOut     string
	snapshotNoCache bool
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot SYMBOL",
	Short: "Run the analysis pipeline for one asset",
	Long: `Resolves SYMBOL, runs risk, drawdown, valuation, quality and overlay analysis
as of a date and prints the risk card. The snapshot is saved unless --no-save is set.`,
	Example: `  vera snapshot 700 --market HK
  vera snapshot AAPL --as-of 2024-06-28 --json
  vera snapshot ^GSPC --format pdf --out spx.pdf`,
	Args: exactArgs(1),
	RunE: runSnapshot,
}

func init() {
	snapshotCmd.Flags().StringVar(&snapshotAsOf, "as-of", "", "Analysis date YYYY-MM-DD (default today)")
	snapshotCmd.Flags().BoolVar(&snapshotNoSave, "no-save", false, "Do not persist the snapshot")
	snapshotCmd.Flags().BoolVar(&snapshotNoCache, "no-cache", false, "Bypass the dashboard cache")
	snapshotCmd.Flags().BoolVar(&snapshotJSON, "json", false, "Print the dashboard data as JSON")
	snapshotCmd.Flags().StringVar(&snapshotMarket, "market", "", "Market hint for bare codes (HK, US, CN)")
	snapshotCmd.Flags().StringVar(&snapshotType, "type", "", "Asset type hint (STOCK, ETF, INDEX)")
	snapshotCmd.Flags().StringVar(&snapshotFormat, "format", "md", "Report format: md, html or pdf")
	snapshotCmd.Flags().StringVarP(&snapshotOut, "out", "o", "", "Write the report to a file instead of stdout")

	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	asOf, err := parseDateFlag("as-of", snapshotAsOf)
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(snapshotFormat)
	if err != nil {
		return usageError{err}
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	opts, err := a.RunOptions("", !snapshotNoSave)
	if err != nil {
		return usageError{err}
	}
	opts.UseCache = opts.UseCache && !snapshotNoCache
	opts.Hints = identity.Hints{
		Market:    strings.ToUpper(snapshotMarket),
		AssetType: strings.ToUpper(snapshotType),
	}

	data, err := a.Analysis.RunSnapshot(ctx, args[0], asOf, opts)
	if err != nil {
		return err
	}

	logger.Info().
		Str("asset_id", data.AssetID).
		Str("as_of", data.AsOfDate.Format(time.DateOnly)).
		Str("risk_level", string(data.RiskLevel())).
		Str("snapshot_id", data.SnapshotID).
		Msg("Snapshot complete")

	return writeDashboard(cmd.OutOrStdout(), a, data, format, snapshotOut, snapshotJSON)
}

// writeDashboard prints or writes one dashboard in the requested form
func writeDashboard(w io.Writer, a *app.App, data *models.DashboardData, format report.Format, out string, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}

	if out != "" {
		if err := a.Reports.WriteFile(data, format, out); err != nil {
			return err
		}
		fmt.Fprintf(w, "Report written to %s\n", out)
		return nil
	}

	if format == report.FormatPDF {
		return usageError{fmt.Errorf("pdf output needs --out")}
	}
	body, err := a.Reports.Render(data, format)
	if err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// parseDateFlag parses a YYYY-MM-DD flag; empty means zero time
func parseDateFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, usageError{fmt.Errorf("invalid --%s %q: want YYYY-MM-DD", name, value)}
	}
	return t, nil
}
