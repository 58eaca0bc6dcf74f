// -----------------------------------------------------------------------
// Package analysis runs one snapshot: resolve the symbol, load bounded
// history, compute every block, compose the card and optionally persist.
// A block that cannot be computed degrades to a status key; only symbol
// ambiguity, state machine contradictions and failed writes stop a run.
// -----------------------------------------------------------------------

package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/models"
	"github.com/ternarybob/vera/internal/services/drawdown"
	"github.com/ternarybob/vera/internal/services/identity"
	"github.com/ternarybob/vera/internal/services/overlay"
	"github.com/ternarybob/vera/internal/services/riskcard"
	"github.com/ternarybob/vera/internal/services/snapshot"
	"github.com/ternarybob/vera/internal/signals"
	"github.com/ternarybob/vera/internal/storage/badger"
)

// Block names used as BlockStatus keys
const (
	BlockRisk      = "risk"
	BlockDrawdown  = "drawdown"
	BlockValuation = "valuation"
	BlockQuality   = "quality"
	BlockOverlay   = "overlay"
)

// fundamentalsHistoryLimit bounds the quarterly rows read for trend rules
const fundamentalsHistoryLimit = 40

// RunOptions controls a single snapshot run
type RunOptions struct {
	SaveToDB bool
	// Profile with an empty Profile field falls back to the configured default
	Profile  models.RiskProfile
	Hints    identity.Hints
	UseCache bool
}

// Service is the snapshot orchestrator
type Service struct {
	storage   interfaces.StorageManager
	resolver  *identity.Service
	drawdown  *drawdown.Service
	overlay   *overlay.Service
	composer  *riskcard.Composer
	snapshots *snapshot.Service
	cache     interfaces.DashboardCache

	risk      *signals.RiskComputer
	valuation *signals.ValuationComputer
	quality   *signals.QualityComputer
	regime    *signals.RegimeClassifier

	config *common.Config
	logger arbor.ILogger
}

// NewService wires the orchestrator. cache may be nil.
func NewService(
	storage interfaces.StorageManager,
	resolver *identity.Service,
	cache interfaces.DashboardCache,
	config *common.Config,
	logger arbor.ILogger,
) *Service {
	return &Service{
		storage:   storage,
		resolver:  resolver,
		drawdown:  drawdown.NewService(storage.DrawdownStorage(), config, logger),
		overlay:   overlay.NewService(storage, config, logger),
		composer:  riskcard.NewComposer(config.Profile, logger),
		snapshots: snapshot.NewService(storage.SnapshotStorage(), logger),
		cache:     cache,
		risk:      signals.NewRiskComputer(config.Risk),
		valuation: signals.NewValuationComputer(config.Valuation),
		quality:   signals.NewQualityComputer(config.Quality),
		regime:    signals.NewRegimeClassifier(config.Overlay),
		config:    config,
		logger:    logger,
	}
}

// Snapshots exposes the snapshot persister for list and delete commands
func (s *Service) Snapshots() *snapshot.Service {
	return s.snapshots
}

// Drawdown exposes the drawdown service for backfill commands
func (s *Service) Drawdown() *drawdown.Service {
	return s.drawdown
}

// DefaultProfile returns the configured profile
func (s *Service) DefaultProfile() (models.RiskProfile, error) {
	return models.ParseRiskProfile(s.config.Profile.Default, s.config.Profile.WarningVerbosity)
}

// RunSnapshot analyses raw as of asOf. A zero asOf means today (UTC).
func (s *Service) RunSnapshot(ctx context.Context, raw string, asOf time.Time, opts RunOptions) (*models.DashboardData, error) {
	started := time.Now()
	asOf = dateOf(asOf)

	profile := opts.Profile
	if profile.Profile == "" {
		p, err := s.DefaultProfile()
		if err != nil {
			return nil, err
		}
		profile = p
	}

	resolution, err := s.resolver.Resolve(ctx, raw, opts.Hints)
	if err != nil {
		return nil, err
	}
	assetID := resolution.CanonicalID

	cacheKey := badger.CacheKey(assetID, asOf, profile)
	if opts.UseCache && s.cache != nil {
		cached, err := s.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			s.logger.Debug().Str("asset_id", assetID).Str("key", cacheKey).Msg("Dashboard served from cache")
			cached.SnapshotID = ""
			if opts.SaveToDB {
				if _, err := s.snapshots.Save(ctx, cached, profile); err != nil {
					return nil, err
				}
			}
			return cached, nil
		case !errors.Is(err, interfaces.ErrNotFound):
			s.logger.Warn().Err(err).Str("key", cacheKey).Msg("Dashboard cache read failed")
		}
	}

	asset, err := s.asset(ctx, assetID)
	if err != nil {
		return nil, err
	}

	bars, err := s.storage.PriceStorage().LoadPrices(ctx, assetID, time.Time{}, asOf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrDataUnavailable, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no prices for %s on or before %s", interfaces.ErrDataUnavailable,
			assetID, asOf.Format(models.DateLayout))
	}

	last := bars[len(bars)-1]
	data := &models.DashboardData{
		AssetID:     assetID,
		DisplayName: asset.DisplayName,
		Market:      asset.Market,
		AssetType:   asset.AssetType,
		Currency:    asset.Currency,
		AsOfDate:    asOf,
		GeneratedAt: time.Now().UTC(),
		Resolution:  resolution,
		LastClose:   last.Close,
		LastDate:    last.TradeDate,
		BlockStatus: make(map[string]string),
	}
	if data.DisplayName == "" {
		data.DisplayName = assetID
	}

	risk := s.risk.Compute(bars, asOf)
	data.Risk = &risk
	data.BlockStatus[BlockRisk] = risk.Status

	state, err := s.drawdown.StateFor(ctx, assetID, asOf, bars)
	switch {
	case err == nil:
		data.Drawdown = models.NewDrawdownView(state)
		data.BlockStatus[BlockDrawdown] = models.StatusOK
	case errors.Is(err, interfaces.ErrDataUnavailable):
		s.degrade(data, BlockDrawdown, models.StatusDataUnavailable, err)
	default:
		return nil, err
	}

	if asset.IsIndex() {
		s.runIndex(ctx, data, asset, bars)
	} else {
		s.runEquity(ctx, data, asset, bars, profile)
	}

	if opts.SaveToDB {
		if _, err := s.snapshots.Save(ctx, data, profile); err != nil {
			return nil, err
		}
	}

	if opts.UseCache && s.cache != nil {
		if err := s.cache.Put(ctx, cacheKey, data); err != nil {
			s.logger.Warn().Err(err).Str("key", cacheKey).Msg("Dashboard cache write failed")
		}
	}

	s.logger.Info().
		Str("asset_id", assetID).
		Str("as_of", asOf.Format(models.DateLayout)).
		Str("risk_level", string(data.RiskLevel())).
		Str("snapshot_id", data.SnapshotID).
		Dur("elapsed", time.Since(started)).
		Msg("Snapshot complete")
	return data, nil
}

// runEquity computes valuation, quality, overlay and the card
func (s *Service) runEquity(ctx context.Context, data *models.DashboardData, asset *models.Asset, bars []models.PriceBar, profile models.RiskProfile) {
	asOf := data.AsOfDate
	state := models.StateD0
	if data.Drawdown != nil {
		state = data.Drawdown.State
	}

	cls, err := s.storage.AssetStorage().LatestClassification(ctx, asset.AssetID, s.config.Overlay.DefaultScheme, asOf)
	if err != nil {
		s.logger.Warn().Err(err).Str("asset_id", asset.AssetID).Msg("Classification unavailable")
		cls = nil
	}

	fundamentals := s.storage.FundamentalsStorage()
	current, err := fundamentals.LoadFundamentalsAt(ctx, asset.AssetID, asOf)
	if err != nil {
		s.logger.Warn().Err(err).Str("asset_id", asset.AssetID).Msg("Fundamentals unavailable")
		current = nil
	}
	history, err := fundamentals.LoadFundamentalsHistory(ctx, asset.AssetID, asOf, fundamentalsHistoryLimit)
	if err != nil {
		s.logger.Warn().Err(err).Str("asset_id", asset.AssetID).Msg("Fundamentals history unavailable")
		history = nil
	}

	valuation := s.valuation.Compute(signals.ValuationInput{
		Bars:           s.risk.Window(bars, asOf),
		Fundamentals:   current,
		History:        history,
		Classification: cls,
	})
	data.Valuation = &valuation
	data.BlockStatus[BlockValuation] = string(valuation.StatusKey)

	quality := s.quality.Compute(signals.QualityInput{
		History:          history,
		Classification:   cls,
		RecoveryProgress: data.Risk.RecoveryProgress,
	})
	data.Quality = &quality
	data.BlockStatus[BlockQuality] = quality.Status

	ov, _, err := s.overlay.Resolve(ctx, overlay.Subject{Asset: asset, Bars: bars, State: state, Risk: *data.Risk}, asOf)
	if err != nil {
		s.degrade(data, BlockOverlay, models.StatusDataUnavailable, err)
	} else {
		data.Overlay = ov
		data.BlockStatus[BlockOverlay] = models.StatusOK
	}

	data.Card = s.composer.Compose(riskcard.Input{
		Risk:      *data.Risk,
		State:     state,
		Valuation: data.Valuation,
		Quality:   data.Quality,
		Overlay:   data.Overlay,
		Profile:   profile,
	})
}

// asset returns the stored asset, or a skeleton built from the canonical id
// for assets that only exist through their prices
func (s *Service) asset(ctx context.Context, assetID string) (*models.Asset, error) {
	asset, err := s.storage.AssetStorage().GetAsset(ctx, assetID)
	if err == nil {
		return asset, nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, err
	}
	id, perr := common.ParseCanonicalID(assetID)
	if perr != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidAssetID, perr)
	}
	return identity.AssetFromCanonical(id), nil
}

func (s *Service) degrade(data *models.DashboardData, block, status string, err error) {
	data.BlockStatus[block] = status
	s.logger.Warn().
		Err(err).
		Str("asset_id", data.AssetID).
		Str("block", block).
		Str("status", status).
		Msg("Block degraded")
}

func dateOf(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
