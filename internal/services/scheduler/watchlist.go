package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/metrics"
	"github.com/ternarybob/vera/internal/models"
	"github.com/ternarybob/vera/internal/services/analysis"
	"github.com/ternarybob/vera/internal/services/fetch"
)

// WatchlistJobName is the job name `vera watch` registers
const WatchlistJobName = "watchlist"

// SnapshotRunner runs one snapshot
type SnapshotRunner interface {
	RunSnapshot(ctx context.Context, raw string, asOf time.Time, opts analysis.RunOptions) (*models.DashboardData, error)
}

// Fetcher pulls new provider data before a snapshot
type Fetcher interface {
	Fetch(ctx context.Context, raw string, opts fetch.Options) (*fetch.Result, error)
}

// WatchResult is the outcome of one symbol in a watchlist run
type WatchResult struct {
	Symbol     string
	AssetID    string
	SnapshotID string
	Action     string
	RiskLevel  models.RiskLevel
	Err        error
}

// Watchlist snapshots a fixed list of symbols serially
type Watchlist struct {
	symbols  []string
	runner   SnapshotRunner
	fetcher  Fetcher
	fetchOpt fetch.Options
	runOpt   analysis.RunOptions
	metrics  *metrics.Registry
	logger   arbor.ILogger
	now      func() time.Time
}

// WatchlistOption configures a Watchlist
type WatchlistOption func(*Watchlist)

// WithFetcher fetches new bars for each symbol before its snapshot
func WithFetcher(f Fetcher, opts fetch.Options) WatchlistOption {
	return func(w *Watchlist) {
		w.fetcher = f
		w.fetchOpt = opts
	}
}

// WithMetrics records every snapshot on the registry
func WithMetrics(r *metrics.Registry) WatchlistOption {
	return func(w *Watchlist) {
		w.metrics = r
	}
}

// WithClock overrides the as-of date source
func WithClock(now func() time.Time) WatchlistOption {
	return func(w *Watchlist) {
		w.now = now
	}
}

// NewWatchlist creates a watchlist job body
func NewWatchlist(symbols []string, runner SnapshotRunner, runOpt analysis.RunOptions, logger arbor.ILogger, opts ...WatchlistOption) *Watchlist {
	w := &Watchlist{
		symbols: symbols,
		runner:  runner,
		runOpt:  runOpt,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Symbols returns the watched symbols in run order
func (w *Watchlist) Symbols() []string {
	return w.symbols
}

// Job adapts the watchlist to the scheduler
func (w *Watchlist) Job() JobFunc {
	return func(ctx context.Context) error {
		_, err := w.Run(ctx)
		return err
	}
}

// Run snapshots every symbol in order. A failing symbol is recorded and the
// run continues; the joined failures are returned at the end.
func (w *Watchlist) Run(ctx context.Context) ([]WatchResult, error) {
	asOf := w.now()
	results := make([]WatchResult, 0, len(w.symbols))
	var errs []error

	for _, symbol := range w.symbols {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		result := w.runOne(ctx, symbol, asOf)
		if result.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", symbol, result.Err))
		}
		results = append(results, result)
	}

	w.logger.Info().
		Int("symbols", len(w.symbols)).
		Int("failed", len(errs)).
		Str("as_of", asOf.Format(models.DateLayout)).
		Msg("Watchlist run complete")
	return results, errors.Join(errs...)
}

func (w *Watchlist) runOne(ctx context.Context, symbol string, asOf time.Time) WatchResult {
	result := WatchResult{Symbol: symbol}

	if w.fetcher != nil {
		if _, err := w.fetcher.Fetch(ctx, symbol, w.fetchOpt); err != nil {
			// stale data still yields a snapshot
			w.logger.Warn().Err(err).Str("symbol", symbol).Msg("Fetch failed, using stored prices")
		}
	}

	start := time.Now()
	data, err := w.runner.RunSnapshot(ctx, symbol, asOf, w.runOpt)
	if w.metrics != nil {
		cached := err == nil && w.runOpt.UseCache && data.GeneratedAt.Before(start)
		w.metrics.ObserveSnapshot(data, time.Since(start), cached, err)
	}
	if err != nil {
		result.Err = err
		w.logger.Warn().Err(err).Str("symbol", symbol).Msg("Watchlist snapshot failed")
		return result
	}

	result.AssetID = data.AssetID
	result.SnapshotID = data.SnapshotID
	result.RiskLevel = data.RiskLevel()
	if data.Card != nil {
		result.Action = string(data.Card.Action)
	}
	return result
}
