package overlay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/models"
	"github.com/ternarybob/vera/internal/signals"
	"github.com/ternarybob/vera/internal/storage/sqlite"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func setupService(t *testing.T) (*Service, interfaces.StorageManager) {
	t.Helper()
	logger := arbor.NewLogger()
	manager, err := sqlite.NewManager(logger, &common.SQLiteConfig{
		Path:         t.TempDir() + "/overlay.db",
		BusyTimeout:  5000,
		QueryTimeout: "5s",
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	return NewService(manager, common.NewDefaultConfig(), logger), manager
}

// series is n daily bars at flat, with the last len(tail) closes replaced by tail
func series(id string, n int, flat float64, tail ...float64) []models.PriceBar {
	bars := make([]models.PriceBar, n)
	for i := range bars {
		bars[i] = models.PriceBar{AssetID: id, TradeDate: start.AddDate(0, 0, i), Close: flat, Source: "test"}
	}
	for i, c := range tail {
		bars[n-len(tail)+i].Close = c
	}
	return bars
}

func writeBars(t *testing.T, manager interfaces.StorageManager, bars []models.PriceBar) {
	t.Helper()
	_, err := manager.PriceStorage().WritePrices(context.Background(), &interfaces.PriceWriteBatch{
		Bars:     bars,
		Conflict: models.ConflictUpsert,
	})
	require.NoError(t, err)
}

func TestResolve_SectorAndMarketBlocks(t *testing.T) {
	svc, manager := setupService(t)
	ctx := context.Background()
	assets := manager.AssetStorage()

	require.NoError(t, assets.UpsertClassification(ctx, &models.Classification{
		AssetID: "US:EQUITY:AAPL", Scheme: "GICS", SectorCode: "45", SectorName: "Information Technology",
		AsOfDate: start, IsActive: true,
	}))
	require.NoError(t, assets.UpsertSectorProxy(ctx, &models.SectorProxy{
		Scheme: "GICS", SectorCode: "45", Market: "US", ProxyETFID: "US:ETF:XLK", MarketIndexID: "US:INDEX:^GSPC",
	}))

	stock := series("US:EQUITY:AAPL", 70, 100)
	writeBars(t, manager, stock)
	writeBars(t, manager, series("US:ETF:XLK", 70, 100))
	writeBars(t, manager, series("US:INDEX:^GSPC", 70, 100, 60, 60, 60, 60, 60))

	asOf := stock[len(stock)-1].TradeDate
	res, targets, err := svc.Resolve(ctx, Subject{
		Asset: &models.Asset{AssetID: "US:EQUITY:AAPL", Market: "US", AssetType: models.AssetTypeEquity},
		Bars:  stock,
		State: models.StateD0,
		Risk:  models.RiskMetrics{PathRisk: models.PathRiskLow, PricePercentile: 1},
	}, asOf)
	require.NoError(t, err)

	assert.Equal(t, "US:ETF:XLK", targets.SectorProxyID)
	assert.Equal(t, "US:INDEX:^GSPC", targets.MarketIndexID)

	require.True(t, res.Sector.Available)
	assert.Equal(t, models.StateD0, res.Sector.State)
	assert.Equal(t, "Information Technology", res.Sector.SectorName)
	require.NotNil(t, res.Individual.RSVsSector)
	assert.InDelta(t, 0, *res.Individual.RSVsSector, 1e-9)
	require.NotNil(t, res.Sector.RSVsMarket)
	assert.InDelta(t, 0.4, *res.Sector.RSVsMarket, 1e-9)

	require.True(t, res.Market.Available)
	assert.Equal(t, models.StateD3, res.Market.State)
	assert.Equal(t, models.AmplificationHigh, res.Market.Amplification)
	assert.Equal(t, models.RegimeSystemicStress, res.Regime)

	codes := make(map[string]models.FlagLevel)
	for _, f := range res.Flags {
		codes[f.Code] = f.Level
	}
	assert.Equal(t, models.FlagInfo, codes[signals.CodeSectorStrongVsMarket])
	assert.Equal(t, models.FlagAlert, codes[signals.CodeSystemicStress])
	assert.Equal(t, models.FlagInfo, codes[signals.CodeResilientVsMarket])
	assert.NotContains(t, codes, signals.CodeMarketCrisis)

	count, err := manager.DrawdownStorage().CountStates(ctx, "US:INDEX:^GSPC")
	require.NoError(t, err)
	assert.Zero(t, count, "benchmarks are replayed, not persisted")
}

func TestResolveTargets_OverridesAndDefaults(t *testing.T) {
	svc, manager := setupService(t)
	ctx := context.Background()

	require.NoError(t, manager.AssetStorage().UpsertSectorProxy(ctx, &models.SectorProxy{
		Scheme: "GICS", SectorCode: models.SectorWildcard, Market: "US", MarketIndexID: "US:INDEX:^NDX",
	}))

	tests := []struct {
		name       string
		asset      *models.Asset
		wantSector string
		wantMarket string
	}{
		{
			name:       "Market-wide proxy row",
			asset:      &models.Asset{AssetID: "US:EQUITY:MSFT", Market: "US"},
			wantMarket: "US:INDEX:^NDX",
		},
		{
			name: "Asset overrides win",
			asset: &models.Asset{AssetID: "US:EQUITY:MSFT", Market: "US",
				SectorProxyID: models.String("US:ETF:IGV"), MarketIndexID: models.String("US:INDEX:^DJI")},
			wantSector: "US:ETF:IGV",
			wantMarket: "US:INDEX:^DJI",
		},
		{
			name:       "Config default when nothing is mapped",
			asset:      &models.Asset{AssetID: "HK:STOCK:00700", Market: "HK"},
			wantMarket: "HK:INDEX:HSI",
		},
		{
			name:       "An index is not its own benchmark",
			asset:      &models.Asset{AssetID: "HK:INDEX:HSI", Market: "HK", AssetType: models.AssetTypeIndex},
			wantMarket: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			targets, err := svc.ResolveTargets(ctx, tt.asset, start)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSector, targets.SectorProxyID)
			assert.Equal(t, tt.wantMarket, targets.MarketIndexID)
		})
	}
}

func TestResolve_MissingBenchmarksDegrade(t *testing.T) {
	svc, _ := setupService(t)
	stock := series("CN:STOCK:600519", 30, 100)

	res, _, err := svc.Resolve(context.Background(), Subject{
		Asset: &models.Asset{AssetID: "CN:STOCK:600519", Market: "CN"},
		Bars:  stock,
		State: models.StateD1,
	}, stock[len(stock)-1].TradeDate)
	require.NoError(t, err)

	assert.False(t, res.Sector.Available)
	assert.False(t, res.Market.Available)
	assert.Equal(t, models.AmplificationLow, res.Market.Amplification)
	assert.Equal(t, models.RegimeHealthyDifferentiation, res.Regime)
	assert.Empty(t, res.Flags)
}
