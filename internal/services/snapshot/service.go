// -----------------------------------------------------------------------
// Package snapshot turns a dashboard into an immutable snapshot record and
// owns every read and delete of the snapshot tables.
// -----------------------------------------------------------------------

package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/models"
)

// Service persists and reads analysis snapshots
type Service struct {
	storage interfaces.SnapshotStorage
	logger  arbor.ILogger
}

// NewService creates a snapshot service
func NewService(storage interfaces.SnapshotStorage, logger arbor.ILogger) *Service {
	return &Service{storage: storage, logger: logger}
}

// Save builds the record for data, writes it in one transaction and stamps
// data.SnapshotID. Nothing is written when any part fails.
func (s *Service) Save(ctx context.Context, data *models.DashboardData, profile models.RiskProfile) (string, error) {
	record, err := Build(data, profile)
	if err != nil {
		return "", err
	}
	record.Snapshot.SnapshotID = common.NewSnapshotID()
	record.Snapshot.CreatedAt = time.Now().UTC()

	if err := s.storage.SaveSnapshot(ctx, record); err != nil {
		return "", err
	}
	data.SnapshotID = record.Snapshot.SnapshotID

	s.logger.Info().
		Str("snapshot_id", data.SnapshotID).
		Str("asset_id", data.AssetID).
		Str("as_of", data.AsOfDate.Format(models.DateLayout)).
		Int("metrics", len(record.Metrics)).
		Int("flags", len(record.BehaviorFlags)).
		Msg("Snapshot persisted")
	return data.SnapshotID, nil
}

// Get returns a snapshot with its children
func (s *Service) Get(ctx context.Context, snapshotID string) (*models.SnapshotRecord, error) {
	if !common.IsSnapshotID(snapshotID) {
		return nil, fmt.Errorf("snapshot %q: %w", snapshotID, interfaces.ErrNotFound)
	}
	return s.storage.GetSnapshot(ctx, snapshotID)
}

// LatestPerAsset returns the newest snapshot of every asset
func (s *Service) LatestPerAsset(ctx context.Context) ([]*models.AnalysisSnapshot, error) {
	return s.storage.LatestPerAsset(ctx)
}

// HistoryForAsset returns snapshots for one asset, newest first. limit <= 0 returns all.
func (s *Service) HistoryForAsset(ctx context.Context, assetID string, limit int) ([]*models.AnalysisSnapshot, error) {
	return s.storage.HistoryForAsset(ctx, assetID, limit)
}

// Delete removes one snapshot and its children
func (s *Service) Delete(ctx context.Context, snapshotID string) error {
	if err := s.storage.DeleteSnapshot(ctx, snapshotID); err != nil {
		return err
	}
	s.logger.Info().Str("snapshot_id", snapshotID).Msg("Snapshot deleted")
	return nil
}

// DeleteAll clears the snapshot tables, leaving assets, prices and states
func (s *Service) DeleteAll(ctx context.Context) (int64, error) {
	return s.storage.DeleteAllSnapshots(ctx)
}

// Build maps a dashboard onto the snapshot schema. Fundamentals-dependent
// columns stay empty for index-mode dashboards.
func Build(data *models.DashboardData, profile models.RiskProfile) (*models.SnapshotRecord, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: no dashboard to persist", interfaces.ErrDataUnavailable)
	}
	if !common.IsCanonical(data.AssetID) {
		return nil, fmt.Errorf("%w: %q", interfaces.ErrInvalidAssetID, data.AssetID)
	}

	var card interface{} = data.Card
	if data.IsIndex() {
		card = data.IndexCard
	}
	cardJSON, err := json.Marshal(card)
	if err != nil {
		return nil, fmt.Errorf("failed to encode risk card: %w", err)
	}

	record := &models.SnapshotRecord{
		Snapshot: models.AnalysisSnapshot{
			AssetID:      data.AssetID,
			AsOfDate:     data.AsOfDate,
			RiskLevel:    data.RiskLevel(),
			RiskCardJSON: string(cardJSON),
			RiskProfile:  string(profile.Profile),
		},
		Metrics: metrics(data),
	}

	if v := data.Valuation; v != nil {
		record.Snapshot.ValuationAnchor = string(v.Anchor)
		record.Snapshot.ValuationStatus = string(v.StatusKey)
		record.Snapshot.IsValueTrap = v.IsValueTrap
	}

	if o := data.Overlay; o != nil {
		record.Overlay = &models.OverlaySnapshot{
			IndDDState:        o.Individual.State.String(),
			IndPathRisk:       string(o.Individual.PathRisk),
			IndPositionPct:    o.Individual.PositionPct,
			StockVsSectorRS:   o.Individual.RSVsSector,
			SectorProxyID:     o.Sector.ProxyID,
			SectorVsMarketRS:  o.Sector.RSVsMarket,
			MarketIndexID:     o.Market.IndexID,
			MarketPositionPct: o.Market.PositionPct,
			GrowthVsMarketRS:  o.Market.GrowthRS,
			ValueVsMarketRS:   o.Market.ValueRS,
			Amplification:     string(o.Market.Amplification),
			RegimeLabel:       string(o.Regime),
		}
		if o.Sector.Available {
			record.Overlay.SectorDDState = o.Sector.State.String()
		}
		if o.Market.Available {
			record.Overlay.MarketDDState = o.Market.State.String()
		}
	}

	if q := data.Quality; q != nil {
		flagsJSON, err := json.Marshal(q.Flags)
		if err != nil {
			return nil, fmt.Errorf("failed to encode quality flags: %w", err)
		}
		record.Quality = &models.QualitySnapshot{
			QualityLevel:   string(q.Level),
			QualityScore:   q.Score,
			FlagsJSON:      string(flagsJSON),
			DividendSafety: string(q.DividendSafety.Level),
			EarningsPhase:  string(q.EarningsCycle.Phase),
		}
	}

	// Every flag is persisted, whatever the profile shows
	switch {
	case data.Card != nil:
		record.BehaviorFlags = append(record.BehaviorFlags, data.Card.Flags...)
	case data.Overlay != nil:
		record.BehaviorFlags = append(record.BehaviorFlags, data.Overlay.Flags...)
	}

	if ic := data.IndexCard; ic != nil {
		record.MarketRisk = &models.MarketRiskSnapshot{
			IndexRole:   string(ic.Role),
			DDState:     ic.StateCode,
			PathRisk:    string(ic.PathRisk),
			PositionPct: ic.PositionPct,
			Conclusion:  ic.Conclusion,
		}
	}
	return record, nil
}

// metrics flattens the numeric blocks into metric_details rows
func metrics(data *models.DashboardData) []models.MetricDetail {
	var out []models.MetricDetail
	num := func(key string, v *float64, status string) {
		out = append(out, models.MetricDetail{MetricKey: key, Value: v, Status: status})
	}
	text := func(key, v, status string) {
		out = append(out, models.MetricDetail{MetricKey: key, TextValue: v, Status: status})
	}

	if r := data.Risk; r != nil {
		num("max_drawdown", models.Float(r.MaxDrawdown), r.Status)
		num("current_drawdown", models.Float(r.CurrentDrawdown), r.Status)
		num("recovery_progress", models.Float(r.RecoveryProgress), r.Status)
		text("recovery_label", r.RecoveryLabel, r.Status)
		num("volatility_1y", models.Float(r.Volatility1Y), r.Status)
		num("volatility_10y", models.Float(r.Volatility10Y), r.Status)
		num("price_percentile", models.Float(r.PricePercentile), r.Status)
		num("price_percentile_5y", r.PricePercentile5Y, r.Status)
		text("path_risk", string(r.PathRisk), r.Status)
		num("bar_count", models.Float(float64(r.BarCount)), r.Status)
	}

	if d := data.Drawdown; d != nil {
		text("dd_state", d.StateCode, models.StatusOK)
		text("dd_raw_state", d.RawState.String(), models.StatusOK)
		num("transition_progress", models.Float(d.TransitionProgress), models.StatusOK)
		num("progress", models.Float(d.Progress), models.StatusOK)
	}

	if v := data.Valuation; v != nil {
		status := string(v.StatusKey)
		num("pe_ttm", v.PETTM, status)
		num("pe_static", v.PEStatic, status)
		num("pb", v.PB, status)
		num("eps_ttm", v.EPSTTM, status)
		num("pe_percentile", v.PEPercentile, status)
		num("pb_percentile", v.PBPercentile, status)
		text("valuation_bucket", v.Bucket, status)
		if v.Path != nil {
			text("valuation_path", string(v.Path.Type), status)
		}
	}
	return out
}
