// -----------------------------------------------------------------------
// Asset reference data - assets, symbol mappings, classifications
// -----------------------------------------------------------------------

package models

import "time"

// AssetType is the stored instrument type
type AssetType string

const (
	AssetTypeEquity AssetType = "EQUITY"
	AssetTypeETF    AssetType = "ETF"
	AssetTypeIndex  AssetType = "INDEX"
	AssetTypeCrypto AssetType = "CRYPTO"
	AssetTypeTrust  AssetType = "TRUST"
)

// IndexRole marks benchmark assets used by the overlay resolver
type IndexRole string

const (
	IndexRoleNone        IndexRole = ""
	IndexRoleMarket      IndexRole = "MARKET"
	IndexRoleGrowthProxy IndexRole = "GROWTH_PROXY"
	IndexRoleValueProxy  IndexRole = "VALUE_PROXY"
	IndexRoleSectorProxy IndexRole = "SECTOR_PROXY"
)

// Asset is a tradable instrument or index keyed by its canonical id.
// SectorProxyID and MarketIndexID override the sector proxy map when set.
type Asset struct {
	AssetID       string    `json:"asset_id" yaml:"asset_id"`
	DisplayName   string    `json:"display_name" yaml:"display_name"`
	Market        string    `json:"market" yaml:"market"`
	AssetType     AssetType `json:"asset_type" yaml:"asset_type"`
	IndexRole     IndexRole `json:"index_role,omitempty" yaml:"index_role"`
	SectorProxyID *string   `json:"sector_proxy_id,omitempty" yaml:"sector_proxy_id"`
	MarketIndexID *string   `json:"market_index_id,omitempty" yaml:"market_index_id"`
	Currency      string    `json:"currency" yaml:"currency"`
	IsActive      bool      `json:"is_active" yaml:"is_active"`
}

// IsIndex reports whether the asset is analysed in index mode
func (a *Asset) IsIndex() bool {
	return a.AssetType == AssetTypeIndex
}

// SymbolMapping links a raw provider symbol to a canonical id.
// (RawSymbol, Source) is unique; lower Priority wins when a raw symbol
// maps to several canonical ids.
type SymbolMapping struct {
	ID          int64  `json:"id"`
	CanonicalID string `json:"canonical_id" yaml:"canonical_id"`
	RawSymbol   string `json:"raw_symbol" yaml:"raw_symbol"`
	Source      string `json:"source" yaml:"source"`
	Priority    int    `json:"priority" yaml:"priority"`
	IsActive    bool   `json:"is_active" yaml:"is_active"`
}

// Classification is a point-in-time sector/industry assignment
type Classification struct {
	AssetID      string    `json:"asset_id" yaml:"asset_id"`
	Scheme       string    `json:"scheme" yaml:"scheme"`
	SectorCode   string    `json:"sector_code" yaml:"sector_code"`
	SectorName   string    `json:"sector_name" yaml:"sector_name"`
	IndustryCode string    `json:"industry_code" yaml:"industry_code"`
	IndustryName string    `json:"industry_name" yaml:"industry_name"`
	AsOfDate     time.Time `json:"as_of_date" yaml:"as_of_date"`
	IsActive     bool      `json:"is_active" yaml:"is_active"`
}

// SectorProxy maps (scheme, sector, market) to the proxy ETF and market index.
// SectorCode "*" is the market-wide fallback row.
type SectorProxy struct {
	Scheme        string `json:"scheme" yaml:"scheme"`
	SectorCode    string `json:"sector_code" yaml:"sector_code"`
	Market        string `json:"market" yaml:"market"`
	ProxyETFID    string `json:"proxy_etf_id" yaml:"proxy_etf_id"`
	MarketIndexID string `json:"market_index_id" yaml:"market_index_id"`
}

// SectorWildcard is the SectorCode of a market-wide proxy row
const SectorWildcard = "*"
