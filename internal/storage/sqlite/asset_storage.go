package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/models"
)

// AssetStorage implements interfaces.AssetStorage for SQLite
type AssetStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewAssetStorage creates a new AssetStorage instance
func NewAssetStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.AssetStorage {
	return &AssetStorage{
		db:     db,
		logger: logger,
	}
}

type assetRow struct {
	AssetID       string         `db:"asset_id"`
	DisplayName   string         `db:"display_name"`
	Market        string         `db:"market"`
	AssetType     string         `db:"asset_type"`
	IndexRole     string         `db:"index_role"`
	SectorProxyID sql.NullString `db:"sector_proxy_id"`
	MarketIndexID sql.NullString `db:"market_index_id"`
	Currency      string         `db:"currency"`
	IsActive      bool           `db:"is_active"`
}

func (r *assetRow) toModel() *models.Asset {
	a := &models.Asset{
		AssetID:     r.AssetID,
		DisplayName: r.DisplayName,
		Market:      r.Market,
		AssetType:   models.AssetType(r.AssetType),
		IndexRole:   models.IndexRole(r.IndexRole),
		Currency:    r.Currency,
		IsActive:    r.IsActive,
	}
	if r.SectorProxyID.Valid && r.SectorProxyID.String != "" {
		v := r.SectorProxyID.String
		a.SectorProxyID = &v
	}
	if r.MarketIndexID.Valid && r.MarketIndexID.String != "" {
		v := r.MarketIndexID.String
		a.MarketIndexID = &v
	}
	return a
}

const assetColumns = `asset_id, display_name, market, asset_type, index_role, sector_proxy_id, market_index_id, currency, is_active`

// GetAsset returns the asset or interfaces.ErrNotFound
func (s *AssetStorage) GetAsset(ctx context.Context, assetID string) (*models.Asset, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	var row assetRow
	err := s.db.db.GetContext(ctx, &row, `SELECT `+assetColumns+` FROM assets WHERE asset_id = ?`, assetID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("asset %s: %w", assetID, interfaces.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset %s: %w", assetID, err)
	}
	return row.toModel(), nil
}

// UpsertAsset inserts or replaces an asset row
func (s *AssetStorage) UpsertAsset(ctx context.Context, asset *models.Asset) error {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	if err := upsertAsset(ctx, s.db.db, asset); err != nil {
		return fmt.Errorf("failed to upsert asset %s: %w", asset.AssetID, err)
	}
	return nil
}

// execer is satisfied by both *sqlx.DB and *sqlx.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func upsertAsset(ctx context.Context, ex execer, a *models.Asset) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO assets (asset_id, display_name, market, asset_type, index_role, sector_proxy_id, market_index_id, currency, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asset_id) DO UPDATE SET
			display_name = excluded.display_name,
			market = excluded.market,
			asset_type = excluded.asset_type,
			index_role = excluded.index_role,
			sector_proxy_id = excluded.sector_proxy_id,
			market_index_id = excluded.market_index_id,
			currency = excluded.currency,
			is_active = excluded.is_active,
			updated_at = strftime('%s', 'now')`,
		a.AssetID, a.DisplayName, a.Market, string(a.AssetType), string(a.IndexRole),
		nullString(a.SectorProxyID), nullString(a.MarketIndexID), a.Currency, boolToInt(a.IsActive))
	return err
}

// ensureAsset inserts the asset only when it does not exist yet
func ensureAsset(ctx context.Context, ex execer, a *models.Asset) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO assets (asset_id, display_name, market, asset_type, index_role, currency, is_active)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(asset_id) DO NOTHING`,
		a.AssetID, a.DisplayName, a.Market, string(a.AssetType), string(a.IndexRole), a.Currency)
	return err
}

// ListAssets returns all assets ordered by id
func (s *AssetStorage) ListAssets(ctx context.Context) ([]*models.Asset, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	var rows []assetRow
	if err := s.db.db.SelectContext(ctx, &rows, `SELECT `+assetColumns+` FROM assets ORDER BY asset_id`); err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	return assetModels(rows), nil
}

// AssetsByRole returns active assets of a market carrying the given index role
func (s *AssetStorage) AssetsByRole(ctx context.Context, market string, role models.IndexRole) ([]*models.Asset, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	var rows []assetRow
	err := s.db.db.SelectContext(ctx, &rows,
		`SELECT `+assetColumns+` FROM assets WHERE market = ? AND index_role = ? AND is_active = 1 ORDER BY asset_id`,
		market, string(role))
	if err != nil {
		return nil, fmt.Errorf("failed to query assets by role: %w", err)
	}
	return assetModels(rows), nil
}

func assetModels(rows []assetRow) []*models.Asset {
	out := make([]*models.Asset, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out
}

type mappingRow struct {
	ID          int64  `db:"id"`
	CanonicalID string `db:"canonical_id"`
	RawSymbol   string `db:"raw_symbol"`
	Source      string `db:"source"`
	Priority    int    `db:"priority"`
	IsActive    bool   `db:"is_active"`
}

func (r *mappingRow) toModel() *models.SymbolMapping {
	return &models.SymbolMapping{
		ID:          r.ID,
		CanonicalID: r.CanonicalID,
		RawSymbol:   r.RawSymbol,
		Source:      r.Source,
		Priority:    r.Priority,
		IsActive:    r.IsActive,
	}
}

// FindMappings returns active mappings for a raw symbol (case-insensitive), best priority first
func (s *AssetStorage) FindMappings(ctx context.Context, rawSymbol string) ([]*models.SymbolMapping, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	var rows []mappingRow
	err := s.db.db.SelectContext(ctx, &rows, `
		SELECT id, canonical_id, raw_symbol, source, priority, is_active
		FROM symbol_mappings
		WHERE raw_symbol = ? AND is_active = 1
		ORDER BY priority ASC, canonical_id ASC`,
		strings.ToUpper(strings.TrimSpace(rawSymbol)))
	if err != nil {
		return nil, fmt.Errorf("failed to find mappings for %s: %w", rawSymbol, err)
	}
	return mappingModels(rows), nil
}

// MappingsForAsset returns all mappings pointing at a canonical id
func (s *AssetStorage) MappingsForAsset(ctx context.Context, canonicalID string) ([]*models.SymbolMapping, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	var rows []mappingRow
	err := s.db.db.SelectContext(ctx, &rows, `
		SELECT id, canonical_id, raw_symbol, source, priority, is_active
		FROM symbol_mappings
		WHERE canonical_id = ?
		ORDER BY source, priority`, canonicalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings for %s: %w", canonicalID, err)
	}
	return mappingModels(rows), nil
}

// UpsertMapping inserts or updates a mapping keyed by (raw_symbol, source)
func (s *AssetStorage) UpsertMapping(ctx context.Context, m *models.SymbolMapping) error {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO symbol_mappings (canonical_id, raw_symbol, source, priority, is_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(raw_symbol, source) DO UPDATE SET
			canonical_id = excluded.canonical_id,
			priority = excluded.priority,
			is_active = excluded.is_active`,
		m.CanonicalID, strings.ToUpper(strings.TrimSpace(m.RawSymbol)), m.Source, m.Priority, boolToInt(m.IsActive))
	if err != nil {
		return fmt.Errorf("failed to upsert mapping %s/%s: %w", m.RawSymbol, m.Source, err)
	}
	return nil
}

// ensureMapping inserts a mapping unless (raw_symbol, source) is already registered
func ensureMapping(ctx context.Context, ex execer, m *models.SymbolMapping) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO symbol_mappings (canonical_id, raw_symbol, source, priority, is_active)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(raw_symbol, source) DO NOTHING`,
		m.CanonicalID, strings.ToUpper(strings.TrimSpace(m.RawSymbol)), m.Source, m.Priority)
	return err
}

func mappingModels(rows []mappingRow) []*models.SymbolMapping {
	out := make([]*models.SymbolMapping, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out
}

type classificationRow struct {
	AssetID      string `db:"asset_id"`
	Scheme       string `db:"scheme"`
	SectorCode   string `db:"sector_code"`
	SectorName   string `db:"sector_name"`
	IndustryCode string `db:"industry_code"`
	IndustryName string `db:"industry_name"`
	AsOfDate     string `db:"as_of_date"`
	IsActive     bool   `db:"is_active"`
}

// LatestClassification returns the newest active classification on or before asOf,
// or nil when the asset has none under the scheme
func (s *AssetStorage) LatestClassification(ctx context.Context, assetID, scheme string, asOf time.Time) (*models.Classification, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	var row classificationRow
	err := s.db.db.GetContext(ctx, &row, `
		SELECT asset_id, scheme, sector_code, sector_name, industry_code, industry_name, as_of_date, is_active
		FROM asset_classification
		WHERE asset_id = ? AND scheme = ? AND is_active = 1 AND as_of_date <= ?
		ORDER BY as_of_date DESC
		LIMIT 1`, assetID, scheme, formatDate(asOf))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get classification for %s: %w", assetID, err)
	}

	return &models.Classification{
		AssetID:      row.AssetID,
		Scheme:       row.Scheme,
		SectorCode:   row.SectorCode,
		SectorName:   row.SectorName,
		IndustryCode: row.IndustryCode,
		IndustryName: row.IndustryName,
		AsOfDate:     mustParseDate(row.AsOfDate),
		IsActive:     row.IsActive,
	}, nil
}

// UpsertClassification inserts or replaces a classification for (asset, scheme, as_of_date)
func (s *AssetStorage) UpsertClassification(ctx context.Context, c *models.Classification) error {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO asset_classification (asset_id, scheme, sector_code, sector_name, industry_code, industry_name, as_of_date, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asset_id, scheme, as_of_date) DO UPDATE SET
			sector_code = excluded.sector_code,
			sector_name = excluded.sector_name,
			industry_code = excluded.industry_code,
			industry_name = excluded.industry_name,
			is_active = excluded.is_active`,
		c.AssetID, c.Scheme, c.SectorCode, c.SectorName, c.IndustryCode, c.IndustryName,
		formatDate(c.AsOfDate), boolToInt(c.IsActive))
	if err != nil {
		return fmt.Errorf("failed to upsert classification for %s: %w", c.AssetID, err)
	}
	return nil
}

type sectorProxyRow struct {
	Scheme        string `db:"scheme"`
	SectorCode    string `db:"sector_code"`
	Market        string `db:"market"`
	ProxyETFID    string `db:"proxy_etf_id"`
	MarketIndexID string `db:"market_index_id"`
}

// GetSectorProxy returns the exact (scheme, sector, market) row or nil
func (s *AssetStorage) GetSectorProxy(ctx context.Context, scheme, sectorCode, market string) (*models.SectorProxy, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	var row sectorProxyRow
	err := s.db.db.GetContext(ctx, &row, `
		SELECT scheme, sector_code, market, proxy_etf_id, market_index_id
		FROM sector_proxy_map
		WHERE scheme = ? AND sector_code = ? AND market = ?`, scheme, sectorCode, market)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sector proxy %s/%s/%s: %w", scheme, sectorCode, market, err)
	}
	return &models.SectorProxy{
		Scheme:        row.Scheme,
		SectorCode:    row.SectorCode,
		Market:        row.Market,
		ProxyETFID:    row.ProxyETFID,
		MarketIndexID: row.MarketIndexID,
	}, nil
}

// UpsertSectorProxy inserts or replaces a proxy map row
func (s *AssetStorage) UpsertSectorProxy(ctx context.Context, p *models.SectorProxy) error {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO sector_proxy_map (scheme, sector_code, market, proxy_etf_id, market_index_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(scheme, sector_code, market) DO UPDATE SET
			proxy_etf_id = excluded.proxy_etf_id,
			market_index_id = excluded.market_index_id`,
		p.Scheme, p.SectorCode, p.Market, p.ProxyETFID, p.MarketIndexID)
	if err != nil {
		return fmt.Errorf("failed to upsert sector proxy: %w", err)
	}
	return nil
}

func nullString(s *string) interface{} {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
