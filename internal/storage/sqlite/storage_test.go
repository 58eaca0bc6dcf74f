package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/models"
)

// setupTestDB creates a test database and returns cleanup function
func setupTestDB(t *testing.T) (*SQLiteDB, func()) {
	tempDir := t.TempDir()

	config := &common.SQLiteConfig{
		Path:         tempDir + "/test.db",
		BusyTimeout:  5000,
		WALMode:      false,
		QueryTimeout: "5s",
	}

	db, err := NewSQLiteDB(arbor.NewLogger(), config)
	require.NoError(t, err)

	return db, func() { db.Close() }
}

func day(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func bar(assetID, date string, close float64) models.PriceBar {
	return models.PriceBar{
		AssetID: assetID, TradeDate: day(date),
		Open: close, High: close, Low: close, Close: close, Volume: 1000, Source: "test",
	}
}

func TestPriceStorage_WritePoliciesAndLoad(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewPriceStorage(db, arbor.NewLogger())
	ctx := context.Background()
	id := "US:EQUITY:TSLA"

	summary, err := storage.WritePrices(ctx, &interfaces.PriceWriteBatch{
		Assets: []*models.Asset{{AssetID: id, Market: "US", AssetType: models.AssetTypeEquity, Currency: "USD"}},
		Bars:   []models.PriceBar{bar(id, "2024-01-03", 101), bar(id, "2024-01-02", 100)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Inserted)
	assert.Equal(t, 0, summary.Updated)

	// Upsert over an existing date counts as an update
	summary, err = storage.WritePrices(ctx, &interfaces.PriceWriteBatch{
		Bars:     []models.PriceBar{bar(id, "2024-01-03", 105), bar(id, "2024-01-04", 106)},
		Conflict: models.ConflictUpsert,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 1, summary.Updated)

	// Ignore reports duplicates and keeps the stored value
	summary, err = storage.WritePrices(ctx, &interfaces.PriceWriteBatch{
		Bars:     []models.PriceBar{bar(id, "2024-01-03", 999)},
		Conflict: models.ConflictIgnore,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Duplicates)
	assert.Equal(t, 0, summary.Inserted)

	bars, err := storage.LoadPrices(ctx, id, time.Time{}, day("2024-12-31"))
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.True(t, bars[0].TradeDate.Before(bars[1].TradeDate), "bars must be ascending")
	assert.Equal(t, 105.0, bars[1].Close)

	count, err := storage.CountPrices(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	latest, err := storage.LatestPriceDate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-04"), latest)
}

func TestPriceStorage_FailPolicyRollsBackBatch(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewPriceStorage(db, arbor.NewLogger())
	ctx := context.Background()
	id := "HK:STOCK:00700"

	_, err := storage.WritePrices(ctx, &interfaces.PriceWriteBatch{
		Bars: []models.PriceBar{bar(id, "2024-01-02", 300)},
	})
	require.NoError(t, err)

	_, err = storage.WritePrices(ctx, &interfaces.PriceWriteBatch{
		Bars:     []models.PriceBar{bar(id, "2024-01-01", 299), bar(id, "2024-01-02", 301)},
		Conflict: models.ConflictFail,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrTransactionAbort))

	count, err := storage.CountPrices(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "no row of a failed batch may persist")
}

func TestPriceStorage_ReplaceRange(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewPriceStorage(db, arbor.NewLogger())
	ctx := context.Background()
	id := "CN:STOCK:600519"

	_, err := storage.WritePrices(ctx, &interfaces.PriceWriteBatch{
		Bars: []models.PriceBar{bar(id, "2024-01-02", 1), bar(id, "2024-01-03", 2), bar(id, "2024-01-04", 3)},
	})
	require.NoError(t, err)

	summary, err := storage.WritePrices(ctx, &interfaces.PriceWriteBatch{
		Bars:         []models.PriceBar{bar(id, "2024-01-02", 10), bar(id, "2024-01-04", 30)},
		ReplaceRange: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Updated)

	bars, err := storage.LoadPrices(ctx, id, time.Time{}, day("2024-12-31"))
	require.NoError(t, err)
	require.Len(t, bars, 2, "the 2024-01-03 row inside the replaced range is removed")
	assert.Equal(t, 10.0, bars[0].Close)
	assert.Equal(t, 30.0, bars[1].Close)
}

func TestAssetStorage_MappingsAndProxies(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewAssetStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.UpsertAsset(ctx, &models.Asset{
		AssetID: "HK:STOCK:00700", DisplayName: "Tencent", Market: "HK",
		AssetType: models.AssetTypeEquity, Currency: "HKD", IsActive: true,
	}))
	asset, err := storage.GetAsset(ctx, "HK:STOCK:00700")
	require.NoError(t, err)
	assert.Equal(t, "Tencent", asset.DisplayName)
	assert.Nil(t, asset.SectorProxyID)

	_, err = storage.GetAsset(ctx, "HK:STOCK:99999")
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))

	require.NoError(t, storage.UpsertMapping(ctx, &models.SymbolMapping{
		CanonicalID: "HK:STOCK:00700", RawSymbol: "0700.hk", Source: "yahoo", Priority: 10, IsActive: true,
	}))
	require.NoError(t, storage.UpsertMapping(ctx, &models.SymbolMapping{
		CanonicalID: "HK:STOCK:00700", RawSymbol: "0700.HK", Source: "csv", Priority: 20, IsActive: true,
	}))

	mappings, err := storage.FindMappings(ctx, "0700.HK")
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, 10, mappings[0].Priority)

	require.NoError(t, storage.UpsertClassification(ctx, &models.Classification{
		AssetID: "HK:STOCK:00700", Scheme: "GICS", SectorCode: "50", SectorName: "Communication Services",
		AsOfDate: day("2020-01-01"), IsActive: true,
	}))
	require.NoError(t, storage.UpsertClassification(ctx, &models.Classification{
		AssetID: "HK:STOCK:00700", Scheme: "GICS", SectorCode: "45", SectorName: "Information Technology",
		AsOfDate: day("2025-01-01"), IsActive: true,
	}))

	c, err := storage.LatestClassification(ctx, "HK:STOCK:00700", "GICS", day("2024-06-30"))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "50", c.SectorCode, "classification is point-in-time")

	require.NoError(t, storage.UpsertSectorProxy(ctx, &models.SectorProxy{
		Scheme: "GICS", SectorCode: "50", Market: "HK", ProxyETFID: "HK:ETF:03067", MarketIndexID: "HK:INDEX:HSI",
	}))
	p, err := storage.GetSectorProxy(ctx, "GICS", "50", "HK")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "HK:ETF:03067", p.ProxyETFID)

	missing, err := storage.GetSectorProxy(ctx, "GICS", "10", "HK")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFundamentalsStorage_PointInTime(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewFundamentalsStorage(db, arbor.NewLogger())
	ctx := context.Background()
	id := "US:EQUITY:KO"

	rows := []*models.FundamentalsRow{
		{AssetID: id, ReportDate: day("2023-12-31"), RevenueTTM: models.Float(45e9), PayoutRatio: models.Float(0.7)},
		{AssetID: id, ReportDate: day("2024-03-31"), RevenueTTM: models.Float(46e9)},
		{AssetID: id, ReportDate: day("2024-06-30"), RevenueTTM: models.Float(47e9)},
	}
	summary, err := storage.UpsertFundamentals(ctx, rows, models.ConflictUpsert)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Inserted)

	row, err := storage.LoadFundamentalsAt(ctx, id, day("2024-05-01"))
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, day("2024-03-31"), row.ReportDate)
	assert.Nil(t, row.PayoutRatio, "null fields stay null")

	none, err := storage.LoadFundamentalsAt(ctx, id, day("2020-01-01"))
	require.NoError(t, err)
	assert.Nil(t, none)

	history, err := storage.LoadFundamentalsHistory(ctx, id, day("2024-12-31"), 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, day("2024-03-31"), history[0].ReportDate, "history is oldest first")

	summary, err = storage.UpsertFundamentals(ctx, rows[:1], models.ConflictIgnore)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Duplicates)
}

func TestDrawdownStorage_AppendIsMonotonic(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewDrawdownStorage(db, arbor.NewLogger())
	ctx := context.Background()
	id := "US:EQUITY:TSLA"

	row := func(date string, state models.DrawdownState) *models.DrawdownStateRow {
		return &models.DrawdownStateRow{
			AssetID: id, TradeDate: day(date), RawState: state, ConfirmedState: state,
			Close: 100, PeakPriceToDate: 100, ValleyPriceToDate: 100, RecoveryProgress: 1,
		}
	}

	require.NoError(t, storage.AppendStates(ctx, []*models.DrawdownStateRow{
		row("2024-01-02", models.StateD0), row("2024-01-03", models.StateD1),
	}))

	err := storage.AppendStates(ctx, []*models.DrawdownStateRow{row("2024-01-04", models.StateD1), row("2024-01-03", models.StateD2)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrStateMachineContradiction))

	count, err := storage.CountStates(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "a contradictory batch writes nothing")

	latest, err := storage.LatestState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateD1, latest.ConfirmedState)

	before, err := storage.StateOnOrBefore(ctx, id, day("2024-01-02"))
	require.NoError(t, err)
	assert.Equal(t, models.StateD0, before.RawState)
}

func TestDrawdownStorage_ReplaceStates(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewDrawdownStorage(db, arbor.NewLogger())
	ctx := context.Background()
	id := "US:EQUITY:AAPL"

	row := func(date string, close float64) *models.DrawdownStateRow {
		return &models.DrawdownStateRow{
			AssetID: id, TradeDate: day(date), Close: close,
			PeakPriceToDate: 100, ValleyPriceToDate: close, RecoveryProgress: 0,
		}
	}

	require.NoError(t, storage.AppendStates(ctx, []*models.DrawdownStateRow{row("2024-01-05", 90)}))

	rebuilt := []*models.DrawdownStateRow{row("2024-01-02", 100), row("2024-01-03", 95), row("2024-01-04", 92)}
	require.NoError(t, storage.ReplaceStates(ctx, id, rebuilt))

	count, err := storage.CountStates(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	latest, err := storage.LatestState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-04"), latest.TradeDate)

	// Out-of-order rebuild rolls back and leaves the previous history
	err = storage.ReplaceStates(ctx, id, []*models.DrawdownStateRow{row("2024-01-03", 95), row("2024-01-02", 100)})
	assert.True(t, errors.Is(err, interfaces.ErrStateMachineContradiction))

	count, err = storage.CountStates(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func testRecord(id, assetID, asOf string) *models.SnapshotRecord {
	return &models.SnapshotRecord{
		Snapshot: models.AnalysisSnapshot{
			SnapshotID: id, AssetID: assetID, AsOfDate: day(asOf), RiskLevel: models.RiskHigh,
			ValuationAnchor: "PE_TTM", ValuationStatus: "FAIR", RiskCardJSON: `{}`, RiskProfile: "BALANCED",
		},
		Metrics: []models.MetricDetail{
			{MetricKey: "max_drawdown", Value: models.Float(-0.42), Status: "OK"},
			{MetricKey: "pe_ttm", Status: "NO_PE"},
		},
		Overlay: &models.OverlaySnapshot{IndDDState: "D2", MarketDDState: "D1", RegimeLabel: "Systemic Compression"},
		Quality: &models.QualitySnapshot{QualityLevel: "STRONG", FlagsJSON: "[]"},
		BehaviorFlags: []models.BehaviorFlag{
			{Level: models.FlagWarn, Code: "STOCK_WEAK_VS_SECTOR", Message: "Stock weak vs Sector", Source: "OVERLAY"},
		},
	}
}

func TestSnapshotStorage_LifecycleAndCascade(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewSnapshotStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.SaveSnapshot(ctx, testRecord("11111111-1111-1111-1111-111111111111", "HK:STOCK:00700", "2024-01-02")))
	require.NoError(t, storage.SaveSnapshot(ctx, testRecord("22222222-2222-2222-2222-222222222222", "HK:STOCK:00700", "2024-02-02")))
	require.NoError(t, storage.SaveSnapshot(ctx, testRecord("33333333-3333-3333-3333-333333333333", "US:EQUITY:TSLA", "2024-01-15")))

	record, err := storage.GetSnapshot(ctx, "11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	require.Len(t, record.Metrics, 2)
	assert.Nil(t, record.Metrics[1].Value)
	require.NotNil(t, record.Overlay)
	assert.Equal(t, "Systemic Compression", record.Overlay.RegimeLabel)
	require.Len(t, record.BehaviorFlags, 1)
	assert.Nil(t, record.MarketRisk)

	latest, err := storage.LatestPerAsset(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "22222222-2222-2222-2222-222222222222", latest[0].SnapshotID)

	history, err := storage.HistoryForAsset(ctx, "HK:STOCK:00700", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, day("2024-02-02"), history[0].AsOfDate, "history is newest first")

	require.NoError(t, storage.DeleteSnapshot(ctx, "11111111-1111-1111-1111-111111111111"))

	var orphans int
	require.NoError(t, db.DB().Get(&orphans,
		`SELECT COUNT(*) FROM metric_details WHERE snapshot_id = '11111111-1111-1111-1111-111111111111'`))
	assert.Equal(t, 0, orphans, "children are removed by cascade")

	err = storage.DeleteSnapshot(ctx, "11111111-1111-1111-1111-111111111111")
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))

	deleted, err := storage.DeleteAllSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	require.NoError(t, db.DB().Get(&orphans, `SELECT COUNT(*) FROM behavior_flags`))
	assert.Equal(t, 0, orphans)
}

func TestSnapshotStorage_RejectsNonCanonicalAsset(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewSnapshotStorage(db, arbor.NewLogger())
	err := storage.SaveSnapshot(context.Background(), testRecord("44444444-4444-4444-4444-444444444444", "TSLA", "2024-01-02"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrInvalidAssetID))
}

func TestSnapshotStorage_DuplicateIDRollsBackChildren(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewSnapshotStorage(db, arbor.NewLogger())
	ctx := context.Background()

	first := testRecord("55555555-5555-5555-5555-555555555555", "US:EQUITY:TSLA", "2024-01-02")
	require.NoError(t, storage.SaveSnapshot(ctx, first))

	dup := testRecord("55555555-5555-5555-5555-555555555555", "US:EQUITY:TSLA", "2024-01-03")
	err := storage.SaveSnapshot(ctx, dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrTransactionAbort))

	var metrics int
	require.NoError(t, db.DB().Get(&metrics, `SELECT COUNT(*) FROM metric_details`))
	assert.Equal(t, 2, metrics, "the failed save leaves no partial children")
}

func TestSnapshotStorage_AbortKeepsCause(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewSnapshotStorage(db, arbor.NewLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := storage.SaveSnapshot(ctx, testRecord("66666666-6666-6666-6666-666666666666", "US:EQUITY:TSLA", "2024-01-02"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrTransactionAbort))
	assert.True(t, errors.Is(err, context.Canceled), "cause lost: %v", err)

	var n int
	require.NoError(t, db.DB().Get(&n, `SELECT COUNT(*) FROM analysis_snapshots`))
	assert.Equal(t, 0, n)
}
