package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ternarybob/vera/internal/models"
	"github.com/ternarybob/vera/internal/services/identity"
	"github.com/ternarybob/vera/internal/services/ingest"
)

var (
	ingestMode   string
	ingestSymbol string
	ingestStrict bool
	ingestMarket string
	ingestSource string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Import daily price CSV files",
	Long: `Imports price CSV files. Symbols must already be mapped through the seed data;
unmapped symbols are reported and skipped.`,
	Example: `  vera ingest prices/hk_2024.csv --mode incremental
  vera ingest 0700.csv --symbol HK:STOCK:00700`,
	Args: minArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestMode, "mode", "overwrite", "overwrite or incremental")
	ingestCmd.Flags().StringVar(&ingestSymbol, "symbol", "", "Symbol for files without a symbol column")
	ingestCmd.Flags().BoolVar(&ingestStrict, "strict", false, "Abort on the first unmapped symbol")
	ingestCmd.Flags().StringVar(&ingestMarket, "market", "", "Market hint for bare codes")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "csv", "Source tag stored with each row")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	mode, err := ingest.ParseMode(ingestMode)
	if err != nil {
		return usageError{err}
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	opts := ingest.Options{
		Mode:   mode,
		Symbol: ingestSymbol,
		Strict: ingestStrict,
		Source: ingestSource,
		Hints:  identity.Hints{Market: strings.ToUpper(ingestMarket)},
	}

	var total models.UpsertSummary
	for _, path := range args {
		summary, err := a.Ingest.ImportFile(ctx, path, opts)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		a.Metrics.ObserveImport(summary)
		printSummary(cmd.OutOrStdout(), path, summary)
		total.Add(summary)
	}
	if len(args) > 1 {
		printSummary(cmd.OutOrStdout(), "total", total)
	}
	return nil
}

func printSummary(w io.Writer, label string, s models.UpsertSummary) {
	fmt.Fprintf(w, "%s: inserted=%d updated=%d duplicates=%d skipped=%d errors=%d\n",
		label, s.Inserted, s.Updated, s.Duplicates, s.Skipped, len(s.Errors))
	if len(s.UnmappedSymbols) > 0 {
		fmt.Fprintf(w, "  unmapped: %s\n", strings.Join(s.UnmappedSymbols, ", "))
	}
	for _, e := range s.Errors {
		fmt.Fprintf(w, "  line %d %s: %s\n", e.Line, e.Symbol, e.Message)
	}
}
