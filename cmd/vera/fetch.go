package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ternarybob/vera/internal/services/fetch"
	"github.com/ternarybob/vera/internal/services/identity"
)

var (
	fetchFrom         string
	fetchTo           string
	fetchFundamentals bool
	fetchAdjusted     bool
	fetchMarket       string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch SYMBOL...",
	Short: "Download prices and fundamentals from EODHD",
	Long: `Fetches end-of-day bars for mapped symbols from EODHD and upserts them.
Without --from the download continues after the latest stored bar.
Needs eodhd.api_key or VERA_EODHD_API_KEY.`,
	Example: `  vera fetch HK:STOCK:00700 AAPL --fundamentals
  vera fetch ^GSPC --from 2015-01-01`,
	Args: minArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchFrom, "from", "", "First date YYYY-MM-DD (default: after the latest stored bar)")
	fetchCmd.Flags().StringVar(&fetchTo, "to", "", "Last date YYYY-MM-DD (default today)")
	fetchCmd.Flags().BoolVar(&fetchFundamentals, "fundamentals", false, "Also fetch fundamentals for stocks")
	fetchCmd.Flags().BoolVar(&fetchAdjusted, "adjusted", false, "Store split and dividend adjusted prices")
	fetchCmd.Flags().StringVar(&fetchMarket, "market", "", "Market hint for bare codes")

	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	from, err := parseDateFlag("from", fetchFrom)
	if err != nil {
		return err
	}
	to, err := parseDateFlag("to", fetchTo)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Fetch == nil {
		return usageError{fmt.Errorf("fetch needs an EODHD API key: set eodhd.api_key or VERA_EODHD_API_KEY")}
	}

	ctx := cmd.Context()

	opts := fetch.Options{
		From:         from,
		To:           to,
		Adjusted:     fetchAdjusted,
		Fundamentals: fetchFundamentals,
		Hints:        identity.Hints{Market: strings.ToUpper(fetchMarket)},
	}

	for _, raw := range args {
		res, err := a.Fetch.Fetch(ctx, raw, opts)
		if err != nil {
			return fmt.Errorf("%s: %w", raw, err)
		}
		a.Metrics.ObserveImport(res.Prices)

		printSummary(cmd.OutOrStdout(), fmt.Sprintf("%s (%s, %d bars)", res.AssetID, res.ProviderSymbol, res.Bars), res.Prices)
		if res.Fundamentals != nil {
			printSummary(cmd.OutOrStdout(), res.AssetID+" fundamentals", *res.Fundamentals)
		}
	}
	return nil
}
