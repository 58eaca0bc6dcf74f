package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/vera/internal/models"
	"github.com/ternarybob/vera/internal/services/identity"
)

var (
	historyLimit int
	purgeYes     bool
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List, inspect and delete saved snapshots",
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the latest snapshot of every asset",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		rows, err := a.Snapshots.LatestPerAsset(cmd.Context())
		if err != nil {
			return err
		}
		return printSnapshots(cmd.OutOrStdout(), rows)
	},
}

var snapshotsHistoryCmd = &cobra.Command{
	Use:   "history SYMBOL",
	Short: "Show the saved snapshots of one asset, newest first",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Resolver.Resolve(cmd.Context(), args[0], identity.Hints{})
		if err != nil {
			return err
		}
		rows, err := a.Snapshots.HistoryForAsset(cmd.Context(), res.CanonicalID, historyLimit)
		if err != nil {
			return err
		}
		return printSnapshots(cmd.OutOrStdout(), rows)
	},
}

var snapshotsShowCmd = &cobra.Command{
	Use:   "show SNAPSHOT_ID",
	Short: "Print one snapshot with its metrics as JSON",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		record, err := a.Snapshots.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	},
}

var snapshotsDeleteCmd = &cobra.Command{
	Use:   "delete SNAPSHOT_ID...",
	Short: "Delete snapshots and their child rows",
	Args:  minArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		for _, id := range args {
			if err := a.Snapshots.Delete(cmd.Context(), id); err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
		}
		return nil
	},
}

var snapshotsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every saved snapshot, keeping assets, prices and drawdown states",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !purgeYes {
			return usageError{fmt.Errorf("purge deletes all snapshots: pass --yes to confirm")}
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Snapshots.DeleteAll(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d snapshots\n", n)
		return nil
	},
}

func init() {
	snapshotsHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum rows (0 for all)")
	snapshotsPurgeCmd.Flags().BoolVar(&purgeYes, "yes", false, "Confirm the purge")

	snapshotsCmd.AddCommand(snapshotsListCmd, snapshotsHistoryCmd, snapshotsShowCmd, snapshotsDeleteCmd, snapshotsPurgeCmd)
	rootCmd.AddCommand(snapshotsCmd)
}

func printSnapshots(w io.Writer, rows []*models.AnalysisSnapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SNAPSHOT\tASSET\tAS OF\tRISK\tVALUATION\tPROFILE\tCREATED")
	for _, s := range rows {
		valuation := s.ValuationStatus
		if valuation == "" {
			valuation = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.SnapshotID, s.AssetID, s.AsOfDate.Format(time.DateOnly), s.RiskLevel,
			valuation, s.RiskProfile, s.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
