package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/eodhd"
	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/metrics"
	"github.com/ternarybob/vera/internal/models"
	"github.com/ternarybob/vera/internal/services/analysis"
	"github.com/ternarybob/vera/internal/services/fetch"
	"github.com/ternarybob/vera/internal/services/identity"
	"github.com/ternarybob/vera/internal/services/ingest"
	"github.com/ternarybob/vera/internal/services/market"
	"github.com/ternarybob/vera/internal/services/report"
	"github.com/ternarybob/vera/internal/services/scheduler"
	"github.com/ternarybob/vera/internal/services/seed"
	"github.com/ternarybob/vera/internal/services/snapshot"
	"github.com/ternarybob/vera/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager
	Cache          interfaces.DashboardCache
	Metrics        *metrics.Registry

	Resolver  *identity.Service
	Market    *market.Service
	Analysis  *analysis.Service
	Snapshots *snapshot.Service
	Ingest    *ingest.Service
	Seed      *seed.Service
	Reports   *report.Service

	// Fetch is nil when no EODHD API key is configured
	Fetch *fetch.Service
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewRegistry(),
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.initServices()

	logger.Debug().
		Bool("cache", app.Cache != nil).
		Bool("fetch", app.Fetch != nil).
		Msg("Application initialization complete")
	return app, nil
}

func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "sqlite").
		Str("path", a.Config.Storage.SQLite.Path).
		Msg("Storage layer initialized")

	cache, err := storage.NewDashboardCache(a.Logger, a.Config)
	if err != nil {
		// the cache only saves recomputation
		a.Logger.Warn().Err(err).Msg("Dashboard cache disabled")
		return nil
	}
	a.Cache = cache
	return nil
}

func (a *App) initServices() {
	a.Resolver = identity.NewService(a.StorageManager.AssetStorage(), &a.Config.Identity, a.Logger)
	a.Market = market.NewService(a.StorageManager, a.Resolver, a.Cache, a.Logger)
	a.Analysis = analysis.NewService(a.StorageManager, a.Resolver, a.Cache, a.Config, a.Logger)
	a.Snapshots = a.Analysis.Snapshots()
	a.Ingest = ingest.NewService(a.Market, a.Logger)
	a.Seed = seed.NewService(a.StorageManager.AssetStorage(), a.Logger)
	a.Reports = report.NewService(a.Config.Reports.TemplatesDir, a.Logger)

	if a.Config.EODHD.APIKey != "" {
		client := eodhd.NewClient(a.Config.EODHD.APIKey,
			eodhd.WithBaseURL(a.Config.EODHD.BaseURL),
			eodhd.WithTimeout(common.ParseDuration(a.Config.EODHD.Timeout, eodhd.DefaultTimeout)),
			eodhd.WithRateLimit(a.Config.EODHD.RateLimit),
			eodhd.WithLogger(a.Logger),
			eodhd.WithObserver(a.Metrics.ObserveFetch),
		)
		a.Fetch = fetch.NewService(client, a.Resolver, a.Market, a.StorageManager.PriceStorage(), a.Logger)
	}
}

// RunOptions builds snapshot options from the configured default profile
// and an optional profile override
func (a *App) RunOptions(profile string, save bool) (analysis.RunOptions, error) {
	if profile == "" {
		profile = a.Config.Profile.Default
	}
	p, err := models.ParseRiskProfile(profile, a.Config.Profile.WarningVerbosity)
	if err != nil {
		return analysis.RunOptions{}, err
	}
	return analysis.RunOptions{SaveToDB: save, Profile: p, UseCache: a.Cache != nil}, nil
}

// Backfill rebuilds the drawdown history of one asset from its stored prices
func (a *App) Backfill(ctx context.Context, raw string, lookbackDays int) (string, int, error) {
	res, err := a.Resolver.Resolve(ctx, raw, identity.Hints{})
	if err != nil {
		return "", 0, err
	}
	prices, err := a.Market.LoadPrices(ctx, res.CanonicalID, time.Time{}, time.Now().UTC())
	if err != nil {
		return res.CanonicalID, 0, err
	}
	rows, err := a.Analysis.Drawdown().RunBackfill(ctx, res.CanonicalID, prices, lookbackDays)
	if err != nil {
		return res.CanonicalID, 0, err
	}
	if a.Cache != nil {
		if err := a.Cache.InvalidateAsset(ctx, res.CanonicalID); err != nil {
			a.Logger.Warn().Err(err).Str("asset_id", res.CanonicalID).Msg("Failed to invalidate dashboard cache")
		}
	}
	return res.CanonicalID, rows, nil
}

// NewWatchlist builds the watch job from the [watch] section
func (a *App) NewWatchlist(symbols []string) (*scheduler.Watchlist, error) {
	if len(symbols) == 0 {
		symbols = a.Config.Watch.Symbols
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("watchlist is empty: set [watch] symbols or pass symbols")
	}
	opts, err := a.RunOptions("", a.Config.Watch.SaveToDB)
	if err != nil {
		return nil, err
	}

	watchOpts := []scheduler.WatchlistOption{scheduler.WithMetrics(a.Metrics)}
	if a.Config.Watch.FetchNew {
		if a.Fetch == nil {
			return nil, fmt.Errorf("watch.fetch_new needs an EODHD API key")
		}
		watchOpts = append(watchOpts, scheduler.WithFetcher(
			&observedFetcher{fetch: a.Fetch, metrics: a.Metrics},
			fetch.Options{Fundamentals: a.Config.Watch.FetchFundamentals},
		))
	}
	return scheduler.NewWatchlist(symbols, a.Analysis, opts, a.Logger, watchOpts...), nil
}

// observedFetcher counts the rows each fetch writes
type observedFetcher struct {
	fetch   *fetch.Service
	metrics *metrics.Registry
}

func (f *observedFetcher) Fetch(ctx context.Context, raw string, opts fetch.Options) (*fetch.Result, error) {
	res, err := f.fetch.Fetch(ctx, raw, opts)
	if err == nil {
		f.metrics.ObserveImport(res.Prices)
	}
	return res, err
}

// Close releases the cache and the database
func (a *App) Close() error {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close dashboard cache")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Debug().Msg("Storage closed")
	}
	return nil
}
