// -----------------------------------------------------------------------
// Package overlay places an asset's drawdown next to its sector proxy and
// market index. Benchmarks are replayed in memory and never persisted.
// -----------------------------------------------------------------------

package overlay

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/models"
	"github.com/ternarybob/vera/internal/signals"
)

// Subject is the already analysed asset
type Subject struct {
	Asset *models.Asset
	Bars  []models.PriceBar
	State models.DrawdownState
	Risk  models.RiskMetrics
}

// Targets are the benchmark ids chosen for an asset
type Targets struct {
	Scheme         string
	Classification *models.Classification
	SectorProxyID  string
	MarketIndexID  string
	GrowthProxyID  string
	ValueProxyID   string
}

// benchmark is one replayed benchmark series
type benchmark struct {
	id    string
	bars  []models.PriceBar
	state models.DrawdownState
	risk  models.RiskMetrics
}

// Service resolves the three-layer overlay
type Service struct {
	assets  interfaces.AssetStorage
	prices  interfaces.PriceStorage
	config  common.OverlayConfig
	window  int
	risk    *signals.RiskComputer
	machine *signals.DrawdownMachine
	rs      *signals.RSComputer
	regime  *signals.RegimeClassifier
	logger  arbor.ILogger
}

// NewService creates an overlay resolver
func NewService(storage interfaces.StorageManager, config *common.Config, logger arbor.ILogger) *Service {
	return &Service{
		assets:  storage.AssetStorage(),
		prices:  storage.PriceStorage(),
		config:  config.Overlay,
		window:  config.Risk.WindowYears,
		risk:    signals.NewRiskComputer(config.Risk),
		machine: signals.NewDrawdownMachine(config.Drawdown),
		rs:      signals.NewRSComputer(config.Overlay.RSLookback),
		regime:  signals.NewRegimeClassifier(config.Overlay),
		logger:  logger,
	}
}

// ResolveTargets picks the sector proxy and market index. Order: latest
// active classification in the default scheme, the proxy map (sector row,
// then the market-wide row), asset-level overrides, then config defaults.
func (s *Service) ResolveTargets(ctx context.Context, asset *models.Asset, asOf time.Time) (Targets, error) {
	t := Targets{Scheme: s.config.DefaultScheme}

	cls, err := s.assets.LatestClassification(ctx, asset.AssetID, t.Scheme, asOf)
	if err != nil {
		return t, err
	}
	t.Classification = cls

	if cls != nil {
		proxy, err := s.assets.GetSectorProxy(ctx, t.Scheme, cls.SectorCode, asset.Market)
		if err != nil {
			return t, err
		}
		if proxy != nil {
			t.SectorProxyID = proxy.ProxyETFID
			t.MarketIndexID = proxy.MarketIndexID
		}
	}
	if t.MarketIndexID == "" {
		wide, err := s.assets.GetSectorProxy(ctx, t.Scheme, models.SectorWildcard, asset.Market)
		if err != nil {
			return t, err
		}
		if wide != nil {
			t.MarketIndexID = wide.MarketIndexID
		}
	}

	if asset.SectorProxyID != nil && *asset.SectorProxyID != "" {
		t.SectorProxyID = *asset.SectorProxyID
	}
	if asset.MarketIndexID != nil && *asset.MarketIndexID != "" {
		t.MarketIndexID = *asset.MarketIndexID
	}
	if t.MarketIndexID == "" {
		t.MarketIndexID = s.config.MarketIndex[asset.Market]
	}
	t.GrowthProxyID = s.config.GrowthProxy[asset.Market]
	t.ValueProxyID = s.config.ValueProxy[asset.Market]

	// An asset is never its own benchmark
	if t.SectorProxyID == asset.AssetID {
		t.SectorProxyID = ""
	}
	if t.MarketIndexID == asset.AssetID {
		t.MarketIndexID = ""
	}
	return t, nil
}

// Resolve builds the overlay block for the subject as of asOf
func (s *Service) Resolve(ctx context.Context, subject Subject, asOf time.Time) (*models.OverlayResult, Targets, error) {
	targets, err := s.ResolveTargets(ctx, subject.Asset, asOf)
	if err != nil {
		return nil, targets, err
	}

	res := &models.OverlayResult{
		Individual: models.IndividualOverlay{
			State:       subject.State,
			PathRisk:    subject.Risk.PathRisk,
			PositionPct: subject.Risk.PricePercentile,
		},
	}

	sector := s.load(ctx, targets.SectorProxyID, asOf)
	market := s.load(ctx, targets.MarketIndexID, asOf)

	if sector != nil {
		res.Sector = models.SectorOverlay{
			Available:   true,
			ProxyID:     sector.id,
			Scheme:      targets.Scheme,
			State:       sector.state,
			PathRisk:    sector.risk.PathRisk,
			PositionPct: sector.risk.PricePercentile,
		}
		if targets.Classification != nil {
			res.Sector.SectorCode = targets.Classification.SectorCode
			res.Sector.SectorName = targets.Classification.SectorName
		}
		res.Individual.RSVsSector = s.rs.Compute(subject.Bars, sector.bars)
	}

	if market != nil {
		res.Market = models.MarketOverlay{
			Available:    true,
			IndexID:      market.id,
			State:        market.state,
			PathRisk:     market.risk.PathRisk,
			PositionPct:  market.risk.PricePercentile,
			Volatility1Y: market.risk.Volatility1Y,
		}
		if sector != nil {
			res.Sector.RSVsMarket = s.rs.Compute(sector.bars, market.bars)
		}
		if growth := s.load(ctx, targets.GrowthProxyID, asOf); growth != nil {
			res.Market.GrowthProxyID = growth.id
			res.Market.GrowthRS = s.rs.Compute(growth.bars, market.bars)
		}
		if value := s.load(ctx, targets.ValueProxyID, asOf); value != nil {
			res.Market.ValueProxyID = value.id
			res.Market.ValueRS = s.rs.Compute(value.bars, market.bars)
		}
		res.Market.Amplification, _ = s.regime.Amplification(market.state, market.risk.Volatility1Y, market.risk.PricePercentile)
	} else {
		res.Market.Amplification = models.AmplificationLow
	}

	in := signals.RegimeInput{
		IndividualState:  subject.State,
		StockVsSector:    res.Individual.RSVsSector,
		SectorAvailable:  res.Sector.Available,
		SectorState:      res.Sector.State,
		SectorVsMarket:   res.Sector.RSVsMarket,
		MarketAvailable:  res.Market.Available,
		MarketState:      res.Market.State,
		MarketVolatility: res.Market.Volatility1Y,
		MarketPosition:   res.Market.PositionPct,
		GrowthRS:         res.Market.GrowthRS,
		ValueRS:          res.Market.ValueRS,
	}
	res.Regime = s.regime.Classify(in, res.Market.Amplification)
	res.Flags = s.regime.Flags(in, res.Regime)

	s.logger.Debug().
		Str("asset_id", subject.Asset.AssetID).
		Str("sector_proxy", targets.SectorProxyID).
		Str("market_index", targets.MarketIndexID).
		Str("regime", string(res.Regime)).
		Int("flags", len(res.Flags)).
		Msg("Overlay resolved")
	return res, targets, nil
}

// load reads and replays a benchmark. Missing or broken benchmarks degrade to
// nil and are logged; they never fail the overlay.
func (s *Service) load(ctx context.Context, id string, asOf time.Time) *benchmark {
	if id == "" {
		return nil
	}
	bars, err := s.prices.LoadPrices(ctx, id, asOf.AddDate(-s.window, 0, 0), asOf)
	if err != nil {
		s.logger.Warn().Err(err).Str("benchmark", id).Msg("Failed to load benchmark prices")
		return nil
	}
	if len(bars) < 2 {
		s.logger.Debug().Str("benchmark", id).Int("bars", len(bars)).Msg("Benchmark has no usable history")
		return nil
	}

	row, err := s.machine.Final(id, bars)
	if err != nil {
		s.logger.Warn().Err(err).Str("benchmark", id).Msg("Benchmark replay failed")
		return nil
	}
	return &benchmark{
		id:    id,
		bars:  bars,
		state: row.ConfirmedState,
		risk:  s.risk.Compute(bars, asOf),
	}
}
