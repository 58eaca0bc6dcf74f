package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ternarybob/vera/internal/services/seed"
)

var seedWithDefault bool

var seedCmd = &cobra.Command{
	Use:   "seed [FILE...]",
	Short: "Load asset reference data",
	Long: `Loads assets, symbol mappings, industry classifications and sector proxies.
Without arguments the built-in benchmark seed is applied. Entries are upserted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()

		if len(args) == 0 || seedWithDefault {
			summary, err := a.Seed.LoadDefault(ctx)
			if err != nil {
				return err
			}
			printSeed(cmd.OutOrStdout(), "default", summary)
		}
		for _, path := range args {
			summary, err := a.Seed.LoadFile(ctx, path)
			if err != nil {
				return err
			}
			printSeed(cmd.OutOrStdout(), path, summary)
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedWithDefault, "with-default", false, "Apply the built-in seed before the given files")
	rootCmd.AddCommand(seedCmd)
}

func printSeed(w io.Writer, name string, s seed.Summary) {
	fmt.Fprintf(w, "%s: assets=%d mappings=%d classifications=%d sector_proxies=%d\n",
		name, s.Assets, s.Mappings, s.Classifications, s.SectorProxies)
}
