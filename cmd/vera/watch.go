package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/vera/internal/app"
	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/server"
	"github.com/ternarybob/vera/internal/services/scheduler"
)

var (
	watchSchedule string
	watchOnce     bool
	watchServe    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [SYMBOL...]",
	Short: "Run the watchlist on a cron schedule",
	Long: `Snapshots every watchlist symbol on the [watch] schedule until interrupted.
Symbols given on the command line replace watch.symbols. With watch.fetch_new
new bars are downloaded from EODHD before each snapshot.`,
	Example: `  vera watch
  vera watch 700 AAPL ^GSPC --schedule "0 19 * * 1-5"
  vera watch --once`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", "Cron expression (overrides watch.schedule)")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "Run the watchlist once and exit")
	watchCmd.Flags().BoolVar(&watchServe, "serve", false, "Also serve the HTTP API on server.host:server.port")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	schedule := config.Watch.Schedule
	if watchSchedule != "" {
		schedule = watchSchedule
	}
	if err := common.ValidateSchedule(schedule); err != nil {
		return usageError{err}
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	watchlist, err := a.NewWatchlist(args)
	if err != nil {
		return usageError{err}
	}

	ctx := cmd.Context()

	if watchOnce {
		results, err := watchlist.Run(ctx)
		printWatchResults(cmd.OutOrStdout(), results)
		return err
	}

	sched := scheduler.NewService(logger, a.Metrics)
	if err := sched.RegisterJob(scheduler.WatchlistJobName, schedule,
		fmt.Sprintf("Snapshot %d watchlist symbols", len(watchlist.Symbols())), watchlist.Job()); err != nil {
		return err
	}

	if watchServe {
		config.Server.Enabled = true
	}
	var srv *server.Server
	if config.Server.Enabled {
		srv = startServer(a, sched)
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}

	if config.Watch.RunOnStart {
		// failures are logged and recorded in the job status
		_ = sched.RunNow(scheduler.WatchlistJobName)
	}

	if status, err := sched.GetJobStatus(scheduler.WatchlistJobName); err == nil && status.NextRun != nil {
		logger.Info().
			Str("schedule", schedule).
			Str("next_run", status.NextRun.Format(time.RFC3339)).
			Msg("Watching, press Ctrl+C to stop")
	}

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received")

	sched.Stop()
	stopServer(srv)
	return nil
}

// startServer runs the HTTP API in the background
func startServer(a *app.App, sched *scheduler.Service) *server.Server {
	srv := server.New(a, sched)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()
	return srv
}

func stopServer(srv *server.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown failed")
	}
}

func printWatchResults(w io.Writer, results []scheduler.WatchResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tASSET\tRISK\tACTION\tSNAPSHOT\tERROR")
	for _, r := range results {
		errText := "-"
		if r.Err != nil {
			errText = r.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Symbol, dash(r.AssetID), dash(string(r.RiskLevel)), dash(r.Action), dash(r.SnapshotID), errText)
	}
	tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
