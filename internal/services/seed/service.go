// -----------------------------------------------------------------------
// Package seed loads reference data (assets, symbol mappings,
// classifications and the sector proxy map) from YAML.
// -----------------------------------------------------------------------

package seed

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/models"
)

//go:embed default_seed.yaml
var defaultSeed []byte

// AssetEntry is one asset row. IsActive defaults to true.
type AssetEntry struct {
	AssetID       string `yaml:"asset_id" validate:"required"`
	DisplayName   string `yaml:"display_name"`
	Market        string `yaml:"market" validate:"required,oneof=US HK CN WORLD"`
	AssetType     string `yaml:"asset_type" validate:"required,oneof=EQUITY ETF INDEX CRYPTO TRUST"`
	IndexRole     string `yaml:"index_role" validate:"omitempty,oneof=MARKET GROWTH_PROXY VALUE_PROXY SECTOR_PROXY"`
	SectorProxyID string `yaml:"sector_proxy_id"`
	MarketIndexID string `yaml:"market_index_id"`
	Currency      string `yaml:"currency"`
	IsActive      *bool  `yaml:"is_active"`
}

// MappingEntry is one raw symbol mapping
type MappingEntry struct {
	RawSymbol   string `yaml:"raw_symbol" validate:"required"`
	CanonicalID string `yaml:"canonical_id" validate:"required"`
	Source      string `yaml:"source" validate:"required"`
	Priority    int    `yaml:"priority"`
	IsActive    *bool  `yaml:"is_active"`
}

// ClassificationEntry is one sector assignment; AsOfDate is YYYY-MM-DD
type ClassificationEntry struct {
	AssetID      string `yaml:"asset_id" validate:"required"`
	Scheme       string `yaml:"scheme" validate:"required"`
	SectorCode   string `yaml:"sector_code" validate:"required"`
	SectorName   string `yaml:"sector_name"`
	IndustryCode string `yaml:"industry_code"`
	IndustryName string `yaml:"industry_name"`
	AsOfDate     string `yaml:"as_of_date" validate:"required"`
	IsActive     *bool  `yaml:"is_active"`
}

// File is the seed document
type File struct {
	Assets          []AssetEntry          `yaml:"assets" validate:"dive"`
	Mappings        []MappingEntry        `yaml:"mappings" validate:"dive"`
	Classifications []ClassificationEntry `yaml:"classifications" validate:"dive"`
	SectorProxies   []models.SectorProxy  `yaml:"sector_proxies"`
}

// Summary counts the rows written
type Summary struct {
	Assets          int `json:"assets"`
	Mappings        int `json:"mappings"`
	Classifications int `json:"classifications"`
	SectorProxies   int `json:"sector_proxies"`
}

// Service writes seed files into the reference tables
type Service struct {
	assets   interfaces.AssetStorage
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewService creates a seed loader
func NewService(assets interfaces.AssetStorage, logger arbor.ILogger) *Service {
	return &Service{assets: assets, validate: validator.New(), logger: logger}
}

// Parse decodes and validates a seed document
func (s *Service) Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	if err := s.validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}

	check := func(kind, id string) error {
		if id != "" && !common.IsCanonical(id) {
			return fmt.Errorf("%w: %s %q", interfaces.ErrInvalidAssetID, kind, id)
		}
		return nil
	}
	for _, a := range f.Assets {
		for kind, id := range map[string]string{"asset": a.AssetID, "sector proxy": a.SectorProxyID, "market index": a.MarketIndexID} {
			if err := check(kind, id); err != nil {
				return nil, err
			}
		}
	}
	for _, m := range f.Mappings {
		if err := check("mapping target", m.CanonicalID); err != nil {
			return nil, err
		}
	}
	for _, c := range f.Classifications {
		if err := check("classified asset", c.AssetID); err != nil {
			return nil, err
		}
	}
	for _, p := range f.SectorProxies {
		if err := check("proxy", p.ProxyETFID); err != nil {
			return nil, err
		}
		if err := check("market index", p.MarketIndexID); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

// LoadDefault applies the embedded benchmark seed
func (s *Service) LoadDefault(ctx context.Context) (Summary, error) {
	return s.load(ctx, defaultSeed, "default")
}

// LoadFile applies a seed file
func (s *Service) LoadFile(ctx context.Context, path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read seed %s: %w", path, err)
	}
	return s.load(ctx, data, path)
}

func (s *Service) load(ctx context.Context, data []byte, name string) (Summary, error) {
	f, err := s.Parse(data)
	if err != nil {
		return Summary{}, err
	}
	summary, err := s.Apply(ctx, f)
	if err != nil {
		return summary, err
	}

	s.logger.Info().
		Str("seed", name).
		Int("assets", summary.Assets).
		Int("mappings", summary.Mappings).
		Int("classifications", summary.Classifications).
		Int("sector_proxies", summary.SectorProxies).
		Msg("Seed applied")
	return summary, nil
}

// Apply upserts every entry. Assets go first so later rows can reference them.
// Ids are checked again here so a File built without Parse fails cleanly.
func (s *Service) Apply(ctx context.Context, f *File) (Summary, error) {
	var summary Summary

	for _, a := range f.Assets {
		id, err := common.ParseCanonicalID(a.AssetID)
		if err != nil {
			return summary, fmt.Errorf("asset: %w: %v", interfaces.ErrInvalidAssetID, err)
		}
		asset := &models.Asset{
			AssetID:     id.String(),
			DisplayName: a.DisplayName,
			Market:      strings.ToUpper(a.Market),
			AssetType:   models.AssetType(strings.ToUpper(a.AssetType)),
			IndexRole:   models.IndexRole(strings.ToUpper(a.IndexRole)),
			Currency:    a.Currency,
			IsActive:    active(a.IsActive),
		}
		if asset.DisplayName == "" {
			asset.DisplayName = id.Code
		}
		if asset.Currency == "" {
			asset.Currency = common.MarketCurrency(asset.Market)
		}
		if a.SectorProxyID != "" {
			proxy, err := canonical("sector_proxy_id", a.SectorProxyID)
			if err != nil {
				return summary, err
			}
			asset.SectorProxyID = models.String(proxy)
		}
		if a.MarketIndexID != "" {
			index, err := canonical("market_index_id", a.MarketIndexID)
			if err != nil {
				return summary, err
			}
			asset.MarketIndexID = models.String(index)
		}
		if err := s.assets.UpsertAsset(ctx, asset); err != nil {
			return summary, err
		}
		summary.Assets++
	}

	for _, m := range f.Mappings {
		target, err := canonical("mapping "+m.RawSymbol, m.CanonicalID)
		if err != nil {
			return summary, err
		}
		mapping := &models.SymbolMapping{
			CanonicalID: target,
			RawSymbol:   m.RawSymbol,
			Source:      strings.ToLower(m.Source),
			Priority:    m.Priority,
			IsActive:    active(m.IsActive),
		}
		if err := s.assets.UpsertMapping(ctx, mapping); err != nil {
			return summary, err
		}
		summary.Mappings++
	}

	for _, c := range f.Classifications {
		assetID, err := canonical("classification", c.AssetID)
		if err != nil {
			return summary, err
		}
		asOf, err := time.Parse(models.DateLayout, c.AsOfDate)
		if err != nil {
			return summary, fmt.Errorf("classification %s: invalid as_of_date %q", c.AssetID, c.AsOfDate)
		}
		if err := s.assets.UpsertClassification(ctx, &models.Classification{
			AssetID:      assetID,
			Scheme:       c.Scheme,
			SectorCode:   c.SectorCode,
			SectorName:   c.SectorName,
			IndustryCode: c.IndustryCode,
			IndustryName: c.IndustryName,
			AsOfDate:     asOf,
			IsActive:     active(c.IsActive),
		}); err != nil {
			return summary, err
		}
		summary.Classifications++
	}

	for i := range f.SectorProxies {
		p := f.SectorProxies[i]
		p.Market = strings.ToUpper(p.Market)
		if err := s.assets.UpsertSectorProxy(ctx, &p); err != nil {
			return summary, err
		}
		summary.SectorProxies++
	}
	return summary, nil
}

func canonical(field, raw string) (string, error) {
	id, err := common.ParseCanonicalID(raw)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", field, interfaces.ErrInvalidAssetID, err)
	}
	return id.String(), nil
}

func active(b *bool) bool {
	return b == nil || *b
}
