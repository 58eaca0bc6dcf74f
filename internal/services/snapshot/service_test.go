package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/models"
	"github.com/ternarybob/vera/internal/storage/sqlite"
)

func newTestService(t *testing.T) *Service {
	logger := arbor.NewLogger()
	manager, err := sqlite.NewManager(logger, &common.SQLiteConfig{
		Path:         t.TempDir() + "/snapshot.db",
		BusyTimeout:  5000,
		QueryTimeout: "5s",
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return NewService(manager.SnapshotStorage(), logger)
}

func asOf() time.Time {
	return time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)
}

func equityDashboard() *models.DashboardData {
	return &models.DashboardData{
		AssetID:  "US:EQUITY:AAPL",
		AsOfDate: asOf(),
		Risk: &models.RiskMetrics{
			Status:          models.StatusOK,
			BarCount:        2500,
			MaxDrawdown:     0.38,
			CurrentDrawdown: 0.12,
			Volatility1Y:    0.24,
			PathRisk:        models.PathRiskMid,
		},
		Drawdown: models.NewDrawdownView(&models.DrawdownStateRow{
			AssetID: "US:EQUITY:AAPL", TradeDate: asOf(),
			RawState: models.StateD2, ConfirmedState: models.StateD1, RecoveryProgress: 0.2,
		}),
		Valuation: &models.ValuationResult{
			Anchor:       models.AnchorPETTM,
			StatusKey:    models.ValuationFair,
			Bucket:       "Fair",
			PETTM:        models.Float(28.5),
			PEPercentile: models.Float(0.55),
			Path:         &models.ValuationPath{Type: models.PathValuationKill},
		},
		Quality: &models.QualityResult{
			Status:         models.StatusOK,
			Level:          models.QualityStrong,
			Score:          0.62,
			Flags:          []models.QualityFlag{{Name: "balance_sheet", Value: models.FlagGood}},
			DividendSafety: models.DividendSafety{Level: models.DividendStrong},
			EarningsCycle:  models.EarningsCycle{Phase: models.EarningsStable},
		},
		Overlay: &models.OverlayResult{
			Individual: models.IndividualOverlay{State: models.StateD1, PathRisk: models.PathRiskMid, PositionPct: 0.7},
			Sector:     models.SectorOverlay{Available: true, ProxyID: "US:ETF:XLK", State: models.StateD0},
			Market:     models.MarketOverlay{IndexID: "US:INDEX:^GSPC", Amplification: models.AmplificationLow},
			Regime:     models.RegimeHealthyDifferentiation,
		},
		Card: &models.RiskCard{
			Quadrant:  models.QuadrantChasing,
			Action:    models.ActionHold,
			RiskLevel: models.RiskMedium,
			Flags: []models.BehaviorFlag{
				{Level: models.FlagWarn, Code: "SECTOR_WEAK_VS_MARKET", Source: "overlay"},
				{Level: models.FlagInfo, Code: "STOCK_STRONG_VS_SECTOR", Source: "overlay"},
			},
		},
	}
}

func indexDashboard() *models.DashboardData {
	return &models.DashboardData{
		AssetID:  "US:INDEX:^GSPC",
		AsOfDate: asOf(),
		Risk:     &models.RiskMetrics{Status: models.StatusOK, BarCount: 2500, MaxDrawdown: 0.34, PathRisk: models.PathRiskLow},
		IndexCard: &models.IndexCard{
			Role:        models.IndexRoleMarket,
			State:       models.StateD0,
			StateCode:   "D0",
			PathRisk:    models.PathRiskLow,
			PositionPct: 0.92,
			Conclusion:  "Market benchmark near its highs",
			RiskLevel:   models.RiskLow,
		},
	}
}

func TestBuild_EquityDashboard(t *testing.T) {
	record, err := Build(equityDashboard(), models.RiskProfile{Profile: models.ProfileBalanced})
	require.NoError(t, err)

	assert.Equal(t, models.RiskMedium, record.Snapshot.RiskLevel)
	assert.Equal(t, "PE_TTM", record.Snapshot.ValuationAnchor)
	assert.Equal(t, "FAIR", record.Snapshot.ValuationStatus)
	assert.Equal(t, "BALANCED", record.Snapshot.RiskProfile)
	assert.Nil(t, record.MarketRisk)

	var card models.RiskCard
	require.NoError(t, json.Unmarshal([]byte(record.Snapshot.RiskCardJSON), &card))
	assert.Equal(t, models.ActionHold, card.Action)

	require.NotNil(t, record.Overlay)
	assert.Equal(t, "D1", record.Overlay.IndDDState)
	assert.Equal(t, "D0", record.Overlay.SectorDDState)
	assert.Equal(t, "", record.Overlay.MarketDDState, "unavailable market leaves the state empty")

	require.NotNil(t, record.Quality)
	assert.Equal(t, "E2", record.Quality.EarningsPhase)
	assert.Len(t, record.BehaviorFlags, 2)

	keys := make(map[string]models.MetricDetail)
	for _, m := range record.Metrics {
		keys[m.MetricKey] = m
	}
	assert.Equal(t, "D1", keys["dd_state"].TextValue)
	assert.Equal(t, "D2", keys["dd_raw_state"].TextValue)
	assert.Equal(t, "Valuation Kill", keys["valuation_path"].TextValue)
	require.NotNil(t, keys["max_drawdown"].Value)
	assert.InDelta(t, 0.38, *keys["max_drawdown"].Value, 1e-9)
	assert.Nil(t, keys["pb"].Value)
}

func TestBuild_IndexDashboardLeavesFundamentalsEmpty(t *testing.T) {
	record, err := Build(indexDashboard(), models.RiskProfile{Profile: models.ProfileBalanced})
	require.NoError(t, err)

	assert.Equal(t, models.RiskLow, record.Snapshot.RiskLevel)
	assert.Empty(t, record.Snapshot.ValuationAnchor)
	assert.Empty(t, record.Snapshot.ValuationStatus)
	assert.Nil(t, record.Quality)
	assert.Nil(t, record.Overlay)
	require.NotNil(t, record.MarketRisk)
	assert.Equal(t, "MARKET", record.MarketRisk.IndexRole)
	assert.Equal(t, "D0", record.MarketRisk.DDState)
}

func TestBuild_RejectsNonCanonical(t *testing.T) {
	data := equityDashboard()
	data.AssetID = "AAPL"
	_, err := Build(data, models.RiskProfile{})
	assert.True(t, errors.Is(err, interfaces.ErrInvalidAssetID))

	_, err = Build(nil, models.RiskProfile{})
	assert.True(t, errors.Is(err, interfaces.ErrDataUnavailable))
}

func TestService_Lifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	profile := models.RiskProfile{Profile: models.ProfileConservative}

	first := equityDashboard()
	firstID, err := svc.Save(ctx, first, profile)
	require.NoError(t, err)
	assert.True(t, common.IsSnapshotID(firstID))
	assert.Equal(t, firstID, first.SnapshotID)

	second := equityDashboard()
	second.AsOfDate = asOf().AddDate(0, 0, 3)
	secondID, err := svc.Save(ctx, second, profile)
	require.NoError(t, err)

	_, err = svc.Save(ctx, indexDashboard(), profile)
	require.NoError(t, err)

	record, err := svc.Get(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, "US:EQUITY:AAPL", record.Snapshot.AssetID)
	assert.Len(t, record.BehaviorFlags, 2)
	require.NotNil(t, record.Quality)

	history, err := svc.HistoryForAsset(ctx, "US:EQUITY:AAPL", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, secondID, history[0].SnapshotID, "newest first")

	latest, err := svc.LatestPerAsset(ctx)
	require.NoError(t, err)
	assert.Len(t, latest, 2)

	require.NoError(t, svc.Delete(ctx, firstID))
	_, err = svc.Get(ctx, firstID)
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))
	assert.True(t, errors.Is(svc.Delete(ctx, firstID), interfaces.ErrNotFound))

	n, err := svc.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = svc.Get(ctx, "not-a-uuid")
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))
}

func TestService_SaveRejectsNonCanonicalWithoutWriting(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	data := equityDashboard()
	data.AssetID = "aapl"
	_, err := svc.Save(ctx, data, models.RiskProfile{})
	require.Error(t, err)
	assert.Empty(t, data.SnapshotID)

	latest, err := svc.LatestPerAsset(ctx)
	require.NoError(t, err)
	assert.Empty(t, latest)
}
