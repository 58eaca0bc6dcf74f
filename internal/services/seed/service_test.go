package seed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
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

func setupService(t *testing.T) (*Service, interfaces.AssetStorage) {
	t.Helper()
	logger := arbor.NewLogger()
	manager, err := sqlite.NewManager(logger, &common.SQLiteConfig{
		Path:         t.TempDir() + "/seed.db",
		BusyTimeout:  5000,
		QueryTimeout: "5s",
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return NewService(manager.AssetStorage(), logger), manager.AssetStorage()
}

func TestLoadDefault(t *testing.T) {
	svc, assets := setupService(t)
	ctx := context.Background()

	summary, err := svc.LoadDefault(ctx)
	require.NoError(t, err)
	assert.Positive(t, summary.Assets)
	assert.Positive(t, summary.SectorProxies)

	spx, err := assets.GetAsset(ctx, "US:INDEX:^GSPC")
	require.NoError(t, err)
	assert.Equal(t, models.IndexRoleMarket, spx.IndexRole)
	assert.True(t, spx.IsActive)

	proxy, err := assets.GetSectorProxy(ctx, "GICS", "45", "US")
	require.NoError(t, err)
	require.NotNil(t, proxy)
	assert.Equal(t, "US:ETF:XLK", proxy.ProxyETFID)

	mappings, err := assets.FindMappings(ctx, "^HSI")
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, "HK:INDEX:HSI", mappings[0].CanonicalID)

	again, err := svc.LoadDefault(ctx)
	require.NoError(t, err)
	assert.Equal(t, summary, again, "seeding is repeatable")
}

func TestLoadFile_ClassificationsAndOverrides(t *testing.T) {
	svc, assets := setupService(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
assets:
  - asset_id: hk:stock:00700
    display_name: Tencent
    market: HK
    asset_type: EQUITY
    sector_proxy_id: HK:INDEX:HSTECH
    market_index_id: HK:INDEX:HSI
  - asset_id: US:EQUITY:OLD
    market: US
    asset_type: EQUITY
    is_active: false
classifications:
  - asset_id: HK:STOCK:00700
    scheme: GICS
    sector_code: "50"
    sector_name: Communication Services
    as_of_date: "2020-01-01"
`), 0o644))

	summary, err := svc.LoadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, Summary{Assets: 2, Classifications: 1}, summary)

	tencent, err := assets.GetAsset(ctx, "HK:STOCK:00700")
	require.NoError(t, err)
	assert.Equal(t, "HKD", tencent.Currency)
	require.NotNil(t, tencent.SectorProxyID)
	assert.Equal(t, "HK:INDEX:HSTECH", *tencent.SectorProxyID)

	old, err := assets.GetAsset(ctx, "US:EQUITY:OLD")
	require.NoError(t, err)
	assert.False(t, old.IsActive)
	assert.Equal(t, "OLD", old.DisplayName)

	cls, err := assets.LatestClassification(ctx, "HK:STOCK:00700", "GICS", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, cls)
	assert.Equal(t, "Communication Services", cls.SectorName)
}

func TestParse_Rejects(t *testing.T) {
	svc, _ := setupService(t)

	tests := []struct {
		name string
		yaml string
	}{
		{"bad market", "assets:\n  - {asset_id: 'US:EQUITY:A', market: EU, asset_type: EQUITY}\n"},
		{"non canonical asset", "assets:\n  - {asset_id: 'AAPL', market: US, asset_type: EQUITY}\n"},
		{"mapping without source", "mappings:\n  - {raw_symbol: X, canonical_id: 'US:EQUITY:X'}\n"},
		{"non canonical proxy", "sector_proxies:\n  - {scheme: GICS, sector_code: '45', market: US, proxy_etf_id: XLK}\n"},
		{"not yaml", "assets: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}

	_, err := svc.Parse([]byte("assets:\n  - {asset_id: 'AAPL', market: US, asset_type: EQUITY}\n"))
	assert.True(t, errors.Is(err, interfaces.ErrInvalidAssetID))
}

func TestApply_UnparsedFileReturnsError(t *testing.T) {
	svc, assets := setupService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		file *File
	}{
		{"asset id", &File{Assets: []AssetEntry{{AssetID: "AAPL", Market: "US", AssetType: "EQUITY"}}}},
		{"sector proxy", &File{Assets: []AssetEntry{{AssetID: "US:EQUITY:AAPL", Market: "US", AssetType: "EQUITY", SectorProxyID: "XLK"}}}},
		{"mapping", &File{Mappings: []MappingEntry{{RawSymbol: "AAPL", CanonicalID: "BRK B", Source: "csv"}}}},
		{"classification", &File{Classifications: []ClassificationEntry{{AssetID: "HK:STOCK:", Scheme: "GICS", SectorCode: "45", AsOfDate: "2024-01-02"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { _, err = svc.Apply(ctx, tt.file) })
			require.Error(t, err)
			assert.True(t, errors.Is(err, interfaces.ErrInvalidAssetID))
		})
	}

	_, err := assets.GetAsset(ctx, "US:EQUITY:AAPL")
	assert.Error(t, err, "nothing is written before the invalid proxy id")
}
