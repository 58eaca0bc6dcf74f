package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/models"
)

func asOf() time.Time {
	return time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)
}

func equityDashboard() *models.DashboardData {
	return &models.DashboardData{
		AssetID:     "US:STOCK:AAPL",
		DisplayName: "Apple Inc",
		Currency:    "USD",
		AsOfDate:    asOf(),
		LastClose:   210.62,
		LastDate:    asOf(),
		Risk: &models.RiskMetrics{
			Status:          models.StatusOK,
			MaxDrawdown:     0.38,
			CurrentDrawdown: 0.12,
			Volatility1Y:    0.24,
			RecoveryLabel:   "Recovered",
			PathRisk:        models.PathRiskMid,
		},
		Drawdown: models.NewDrawdownView(&models.DrawdownStateRow{
			AssetID: "US:STOCK:AAPL", TradeDate: asOf(),
			RawState: models.StateD2, ConfirmedState: models.StateD1, RecoveryProgress: 0.2,
		}),
		Valuation: &models.ValuationResult{
			Anchor:       models.AnchorPETTM,
			StatusKey:    models.ValuationFair,
			Bucket:       "Fair",
			PETTM:        models.Float(28.5),
			PEDisplay:    "28.50",
			PEPercentile: models.Float(55),
			Path:         &models.ValuationPath{Type: models.PathValuationKill, PriceChange: -0.2},
		},
		Quality: &models.QualityResult{
			Status:  models.StatusOK,
			Level:   models.QualityStrong,
			Summary: "Balance sheet carries the position",
			Flags:   []models.QualityFlag{{Name: "balance_sheet", Group: "solvency", Value: models.FlagGood}},
		},
		Overlay: &models.OverlayResult{
			Individual: models.IndividualOverlay{State: models.StateD1, PositionPct: 0.7, RSVsSector: models.Float(0.05)},
			Sector:     models.SectorOverlay{Available: true, ProxyID: "US:ETF:XLK", State: models.StateD0},
			Market:     models.MarketOverlay{IndexID: "US:INDEX:^GSPC", Amplification: models.AmplificationLow},
			Regime:     models.RegimeHealthyDifferentiation,
		},
		Card: &models.RiskCard{
			Quadrant:          models.QuadrantChasing,
			Action:            models.ActionHold,
			RiskLevel:         models.RiskMedium,
			OverallConclusion: "Hold and watch the sector",
			Profile:           models.RiskProfile{Profile: models.ProfileBalanced},
			VisibleFlags: []models.BehaviorFlag{
				{Level: models.FlagWarn, Code: "SECTOR_WEAK_VS_MARKET", Message: "Sector lags the market"},
			},
		},
	}
}

func indexDashboard() *models.DashboardData {
	return &models.DashboardData{
		AssetID:     "US:INDEX:^GSPC",
		DisplayName: "S&P 500",
		AsOfDate:    asOf(),
		LastClose:   5460.48,
		LastDate:    asOf(),
		Risk:        &models.RiskMetrics{Status: models.StatusOK, MaxDrawdown: 0.34, PathRisk: models.PathRiskLow},
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

func newTestService(t *testing.T) *Service {
	return NewService(t.TempDir(), arbor.NewLogger())
}

func TestMarkdown_EquityCard(t *testing.T) {
	title, md, err := newTestService(t).Markdown(equityDashboard())
	require.NoError(t, err)

	assert.Equal(t, "Apple Inc risk card 2024-06-28", title)
	assert.Contains(t, md, "# Apple Inc (US:STOCK:AAPL)")
	assert.Contains(t, md, "## Risk card")
	assert.Contains(t, md, "| HOLD |")
	assert.Contains(t, md, "Hold and watch the sector")
	assert.Contains(t, md, "## Valuation (FAIR)")
	assert.Contains(t, md, "| 55.00 |")
	assert.Contains(t, md, "+5.0%")
	assert.Contains(t, md, "US:ETF:XLK")
	assert.NotContains(t, md, "| Market |", "unavailable market row is omitted")
	assert.Contains(t, md, "SECTOR_WEAK_VS_MARKET")
	assert.NotContains(t, md, "Market card")
	assert.Contains(t, md, "## Quality buffer: STRONG")
}

func TestMarkdown_QualityWithoutFundamentals(t *testing.T) {
	data := equityDashboard()
	data.Quality = &models.QualityResult{Status: models.StatusDataUnavailable, Level: models.QualityWeak}

	_, md, err := newTestService(t).Markdown(data)
	require.NoError(t, err)

	assert.Contains(t, md, "## Quality buffer: N/A (DATA_UNAVAILABLE)")
	assert.NotContains(t, md, "Quality buffer: WEAK")
}

func TestMarkdown_IndexCard(t *testing.T) {
	title, md, err := newTestService(t).Markdown(indexDashboard())
	require.NoError(t, err)

	assert.Equal(t, "S&P 500 market card 2024-06-28", title)
	assert.Contains(t, md, "## Market card")
	assert.Contains(t, md, "| MARKET | D0 |")
	assert.Contains(t, md, "Market benchmark near its highs")
	assert.NotContains(t, md, "## Valuation")
	assert.NotContains(t, md, "## Quality")
}

func TestRender_HTML(t *testing.T) {
	out, err := newTestService(t).Render(indexDashboard(), FormatHTML)
	require.NoError(t, err)

	page := string(out)
	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, "<title>S&amp;P 500 market card 2024-06-28</title>")
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "<h2>Market card</h2>")
}

func TestRender_PDF(t *testing.T) {
	for _, data := range []*models.DashboardData{equityDashboard(), indexDashboard()} {
		out, err := newTestService(t).Render(data, FormatPDF)
		require.NoError(t, err, data.AssetID)
		assert.True(t, strings.HasPrefix(string(out), "%PDF"), data.AssetID)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card.md")
	require.NoError(t, newTestService(t).WriteFile(equityDashboard(), FormatMarkdown, path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "US:STOCK:AAPL")
}

func TestRender_TemplateOverride(t *testing.T) {
	dir := t.TempDir()
	override := "type = \"report\"\ntitle = \"custom\"\nbody = \"only {{ .AssetID }}\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index_card.toml"), []byte(override), 0o644))

	out, err := NewService(dir, arbor.NewLogger()).Render(indexDashboard(), FormatMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "only US:INDEX:^GSPC\n", string(out))
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		err  bool
	}{
		{"", FormatMarkdown, false},
		{"markdown", FormatMarkdown, false},
		{"HTML", FormatHTML, false},
		{" pdf ", FormatPDF, false},
		{"docx", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
