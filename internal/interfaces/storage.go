package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/vera/internal/models"
)

// AssetStorage - reference data: assets, symbol mappings, classifications, sector proxies
type AssetStorage interface {
	GetAsset(ctx context.Context, assetID string) (*models.Asset, error)
	UpsertAsset(ctx context.Context, asset *models.Asset) error
	ListAssets(ctx context.Context) ([]*models.Asset, error)
	AssetsByRole(ctx context.Context, market string, role models.IndexRole) ([]*models.Asset, error)

	FindMappings(ctx context.Context, rawSymbol string) ([]*models.SymbolMapping, error)
	MappingsForAsset(ctx context.Context, canonicalID string) ([]*models.SymbolMapping, error)
	UpsertMapping(ctx context.Context, mapping *models.SymbolMapping) error

	LatestClassification(ctx context.Context, assetID, scheme string, asOf time.Time) (*models.Classification, error)
	UpsertClassification(ctx context.Context, c *models.Classification) error

	GetSectorProxy(ctx context.Context, scheme, sectorCode, market string) (*models.SectorProxy, error)
	UpsertSectorProxy(ctx context.Context, p *models.SectorProxy) error
}

// PriceWriteBatch is applied in a single transaction: assets and mappings are
// ensured first, then bars are written under the conflict policy.
// ReplaceRange deletes each asset's existing bars in the batch date range before inserting.
type PriceWriteBatch struct {
	Assets       []*models.Asset
	Mappings     []*models.SymbolMapping
	Bars         []models.PriceBar
	Conflict     models.ConflictPolicy
	ReplaceRange bool
}

// PriceStorage - daily bars
type PriceStorage interface {
	LoadPrices(ctx context.Context, assetID string, start, end time.Time) ([]models.PriceBar, error)
	WritePrices(ctx context.Context, batch *PriceWriteBatch) (models.UpsertSummary, error)
	CountPrices(ctx context.Context, assetID string) (int, error)
	LatestPriceDate(ctx context.Context, assetID string) (time.Time, error)
}

// FundamentalsStorage - point-in-time fundamentals
type FundamentalsStorage interface {
	// LoadFundamentalsAt returns the latest row with report_date <= asOf, or nil when none
	LoadFundamentalsAt(ctx context.Context, assetID string, asOf time.Time) (*models.FundamentalsRow, error)
	// LoadFundamentalsHistory returns up to limit rows with report_date <= asOf, oldest first
	LoadFundamentalsHistory(ctx context.Context, assetID string, asOf time.Time, limit int) ([]*models.FundamentalsRow, error)
	UpsertFundamentals(ctx context.Context, rows []*models.FundamentalsRow, conflict models.ConflictPolicy) (models.UpsertSummary, error)
}

// DrawdownStorage - append-only drawdown state rows
type DrawdownStorage interface {
	LatestState(ctx context.Context, assetID string) (*models.DrawdownStateRow, error)
	StateAt(ctx context.Context, assetID string, tradeDate time.Time) (*models.DrawdownStateRow, error)
	StateOnOrBefore(ctx context.Context, assetID string, tradeDate time.Time) (*models.DrawdownStateRow, error)
	CountStates(ctx context.Context, assetID string) (int, error)
	// AppendStates writes rows in one transaction; rows must be strictly after the latest stored date
	AppendStates(ctx context.Context, rows []*models.DrawdownStateRow) error
	// ReplaceStates swaps the asset's whole history for rows in one transaction
	ReplaceStates(ctx context.Context, assetID string, rows []*models.DrawdownStateRow) error
}

// SnapshotStorage - immutable analysis snapshots and their children
type SnapshotStorage interface {
	SaveSnapshot(ctx context.Context, record *models.SnapshotRecord) error
	GetSnapshot(ctx context.Context, snapshotID string) (*models.SnapshotRecord, error)
	LatestPerAsset(ctx context.Context) ([]*models.AnalysisSnapshot, error)
	HistoryForAsset(ctx context.Context, assetID string, limit int) ([]*models.AnalysisSnapshot, error)
	DeleteSnapshot(ctx context.Context, snapshotID string) error
	DeleteAllSnapshots(ctx context.Context) (int64, error)
}

// DashboardCache - optional process-level cache of computed dashboards
type DashboardCache interface {
	Get(ctx context.Context, key string) (*models.DashboardData, error)
	Put(ctx context.Context, key string, data *models.DashboardData) error
	InvalidateAsset(ctx context.Context, assetID string) error
	Close() error
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	AssetStorage() AssetStorage
	PriceStorage() PriceStorage
	FundamentalsStorage() FundamentalsStorage
	DrawdownStorage() DrawdownStorage
	SnapshotStorage() SnapshotStorage
	Close() error
}
