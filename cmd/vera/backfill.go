package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	backfillLookback int
	backfillFull     bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill SYMBOL...",
	Short: "Rebuild the drawdown state history from stored prices",
	Args:  minArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillLookback < 0 {
			return usageError{fmt.Errorf("--lookback must not be negative")}
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()

		lookback := backfillLookback
		switch {
		case backfillFull:
			lookback = 0
		case lookback == 0:
			lookback = config.Risk.BackfillLookback
		}

		for _, raw := range args {
			assetID, rows, err := a.Backfill(ctx, raw, lookback)
			if err != nil {
				return fmt.Errorf("%s: %w", raw, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d drawdown rows written\n", assetID, rows)
		}
		return nil
	},
}

func init() {
	backfillCmd.Flags().IntVar(&backfillLookback, "lookback", 0, "Calendar days to rebuild back from the latest bar (default risk.backfill_lookback_days)")
	backfillCmd.Flags().BoolVar(&backfillFull, "full", false, "Rebuild from the first stored bar")
	rootCmd.AddCommand(backfillCmd)
}
