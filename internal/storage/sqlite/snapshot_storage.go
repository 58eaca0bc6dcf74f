package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/models"
)

// SnapshotStorage implements interfaces.SnapshotStorage for SQLite
type SnapshotStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewSnapshotStorage creates a new SnapshotStorage instance
func NewSnapshotStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.SnapshotStorage {
	return &SnapshotStorage{
		db:     db,
		logger: logger,
	}
}

type snapshotRow struct {
	SnapshotID      string `db:"snapshot_id"`
	AssetID         string `db:"asset_id"`
	AsOfDate        string `db:"as_of_date"`
	CreatedAt       int64  `db:"created_at"`
	RiskLevel       string `db:"risk_level"`
	ValuationAnchor string `db:"valuation_anchor"`
	ValuationStatus string `db:"valuation_status"`
	IsValueTrap     bool   `db:"is_value_trap"`
	RiskCardJSON    string `db:"risk_card_json"`
	RiskProfile     string `db:"risk_profile"`
}

const snapshotColumns = `snapshot_id, asset_id, as_of_date, created_at, risk_level, valuation_anchor,
	valuation_status, is_value_trap, risk_card_json, risk_profile`

func (r *snapshotRow) toModel() *models.AnalysisSnapshot {
	return &models.AnalysisSnapshot{
		SnapshotID:      r.SnapshotID,
		AssetID:         r.AssetID,
		AsOfDate:        mustParseDate(r.AsOfDate),
		CreatedAt:       time.Unix(0, r.CreatedAt).UTC(),
		RiskLevel:       models.RiskLevel(r.RiskLevel),
		ValuationAnchor: r.ValuationAnchor,
		ValuationStatus: r.ValuationStatus,
		IsValueTrap:     r.IsValueTrap,
		RiskCardJSON:    r.RiskCardJSON,
		RiskProfile:     r.RiskProfile,
	}
}

// SaveSnapshot writes the parent row and all children in one transaction.
// Any failure rolls back every row of the snapshot.
func (s *SnapshotStorage) SaveSnapshot(ctx context.Context, record *models.SnapshotRecord) error {
	snap := &record.Snapshot
	if !common.IsCanonical(snap.AssetID) {
		return fmt.Errorf("%w: %q", interfaces.ErrInvalidAssetID, snap.AssetID)
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	err := s.db.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO analysis_snapshots (`+snapshotColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.SnapshotID, snap.AssetID, formatDate(snap.AsOfDate), snap.CreatedAt.UnixNano(),
			string(snap.RiskLevel), snap.ValuationAnchor, snap.ValuationStatus, boolToInt(snap.IsValueTrap),
			snap.RiskCardJSON, snap.RiskProfile); err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}

		for _, m := range record.Metrics {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO metric_details (snapshot_id, metric_key, value, text_value, status)
				VALUES (?, ?, ?, ?, ?)`,
				snap.SnapshotID, m.MetricKey, nullFloat(m.Value), m.TextValue, m.Status); err != nil {
				return fmt.Errorf("failed to insert metric %s: %w", m.MetricKey, err)
			}
		}

		if o := record.Overlay; o != nil {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO risk_overlay_snapshot (snapshot_id, ind_dd_state, ind_path_risk, ind_position_pct,
					stock_vs_sector_rs_3m, sector_proxy_id, sector_dd_state, sector_vs_market_rs_3m, market_index_id,
					market_dd_state, market_position_pct, growth_vs_market_rs_3m, value_vs_market_rs_3m, amplification, regime_label)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				snap.SnapshotID, o.IndDDState, o.IndPathRisk, o.IndPositionPct, nullFloat(o.StockVsSectorRS),
				o.SectorProxyID, o.SectorDDState, nullFloat(o.SectorVsMarketRS), o.MarketIndexID, o.MarketDDState,
				o.MarketPositionPct, nullFloat(o.GrowthVsMarketRS), nullFloat(o.ValueVsMarketRS),
				o.Amplification, o.RegimeLabel); err != nil {
				return fmt.Errorf("failed to insert overlay snapshot: %w", err)
			}
		}

		if q := record.Quality; q != nil {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO quality_snapshot (snapshot_id, quality_level, quality_score, flags_json, dividend_safety, earnings_phase)
				VALUES (?, ?, ?, ?, ?, ?)`,
				snap.SnapshotID, q.QualityLevel, q.QualityScore, q.FlagsJSON, q.DividendSafety, q.EarningsPhase); err != nil {
				return fmt.Errorf("failed to insert quality snapshot: %w", err)
			}
		}

		for _, f := range record.BehaviorFlags {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO behavior_flags (snapshot_id, level, code, message, source)
				VALUES (?, ?, ?, ?, ?)`,
				snap.SnapshotID, string(f.Level), f.Code, f.Message, f.Source); err != nil {
				return fmt.Errorf("failed to insert behavior flag %s: %w", f.Code, err)
			}
		}

		if mr := record.MarketRisk; mr != nil {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO market_risk_snapshot (snapshot_id, index_role, dd_state, path_risk, position_pct, conclusion)
				VALUES (?, ?, ?, ?, ?, ?)`,
				snap.SnapshotID, mr.IndexRole, mr.DDState, mr.PathRisk, mr.PositionPct, mr.Conclusion); err != nil {
				return fmt.Errorf("failed to insert market risk snapshot: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", interfaces.ErrTransactionAbort, err)
	}

	s.logger.Debug().Str("snapshot_id", snap.SnapshotID).Str("asset_id", snap.AssetID).Msg("Snapshot saved")
	return nil
}

// GetSnapshot returns a snapshot with all children, or interfaces.ErrNotFound
func (s *SnapshotStorage) GetSnapshot(ctx context.Context, snapshotID string) (*models.SnapshotRecord, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	var row snapshotRow
	err := s.db.db.GetContext(ctx, &row, `SELECT `+snapshotColumns+` FROM analysis_snapshots WHERE snapshot_id = ?`, snapshotID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s: %w", snapshotID, interfaces.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s: %w", snapshotID, err)
	}

	record := &models.SnapshotRecord{Snapshot: *row.toModel()}

	var metrics []struct {
		MetricKey string          `db:"metric_key"`
		Value     sql.NullFloat64 `db:"value"`
		TextValue string          `db:"text_value"`
		Status    string          `db:"status"`
	}
	if err := s.db.db.SelectContext(ctx, &metrics, `
		SELECT metric_key, value, text_value, status FROM metric_details WHERE snapshot_id = ? ORDER BY id`, snapshotID); err != nil {
		return nil, fmt.Errorf("failed to load metrics: %w", err)
	}
	for _, m := range metrics {
		record.Metrics = append(record.Metrics, models.MetricDetail{
			MetricKey: m.MetricKey,
			Value:     floatPtr(m.Value),
			TextValue: m.TextValue,
			Status:    m.Status,
		})
	}

	var overlay struct {
		IndDDState        string          `db:"ind_dd_state"`
		IndPathRisk       string          `db:"ind_path_risk"`
		IndPositionPct    float64         `db:"ind_position_pct"`
		StockVsSectorRS   sql.NullFloat64 `db:"stock_vs_sector_rs_3m"`
		SectorProxyID     string          `db:"sector_proxy_id"`
		SectorDDState     string          `db:"sector_dd_state"`
		SectorVsMarketRS  sql.NullFloat64 `db:"sector_vs_market_rs_3m"`
		MarketIndexID     string          `db:"market_index_id"`
		MarketDDState     string          `db:"market_dd_state"`
		MarketPositionPct float64         `db:"market_position_pct"`
		GrowthVsMarketRS  sql.NullFloat64 `db:"growth_vs_market_rs_3m"`
		ValueVsMarketRS   sql.NullFloat64 `db:"value_vs_market_rs_3m"`
		Amplification     string          `db:"amplification"`
		RegimeLabel       string          `db:"regime_label"`
	}
	err = s.db.db.GetContext(ctx, &overlay, `
		SELECT ind_dd_state, ind_path_risk, ind_position_pct, stock_vs_sector_rs_3m, sector_proxy_id, sector_dd_state,
			sector_vs_market_rs_3m, market_index_id, market_dd_state, market_position_pct, growth_vs_market_rs_3m,
			value_vs_market_rs_3m, amplification, regime_label
		FROM risk_overlay_snapshot WHERE snapshot_id = ?`, snapshotID)
	switch {
	case err == nil:
		record.Overlay = &models.OverlaySnapshot{
			IndDDState:        overlay.IndDDState,
			IndPathRisk:       overlay.IndPathRisk,
			IndPositionPct:    overlay.IndPositionPct,
			StockVsSectorRS:   floatPtr(overlay.StockVsSectorRS),
			SectorProxyID:     overlay.SectorProxyID,
			SectorDDState:     overlay.SectorDDState,
			SectorVsMarketRS:  floatPtr(overlay.SectorVsMarketRS),
			MarketIndexID:     overlay.MarketIndexID,
			MarketDDState:     overlay.MarketDDState,
			MarketPositionPct: overlay.MarketPositionPct,
			GrowthVsMarketRS:  floatPtr(overlay.GrowthVsMarketRS),
			ValueVsMarketRS:   floatPtr(overlay.ValueVsMarketRS),
			Amplification:     overlay.Amplification,
			RegimeLabel:       overlay.RegimeLabel,
		}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to load overlay snapshot: %w", err)
	}

	var quality struct {
		QualityLevel   string  `db:"quality_level"`
		QualityScore   float64 `db:"quality_score"`
		FlagsJSON      string  `db:"flags_json"`
		DividendSafety string  `db:"dividend_safety"`
		EarningsPhase  string  `db:"earnings_phase"`
	}
	err = s.db.db.GetContext(ctx, &quality, `
		SELECT quality_level, quality_score, flags_json, dividend_safety, earnings_phase
		FROM quality_snapshot WHERE snapshot_id = ?`, snapshotID)
	switch {
	case err == nil:
		record.Quality = &models.QualitySnapshot{
			QualityLevel:   quality.QualityLevel,
			QualityScore:   quality.QualityScore,
			FlagsJSON:      quality.FlagsJSON,
			DividendSafety: quality.DividendSafety,
			EarningsPhase:  quality.EarningsPhase,
		}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to load quality snapshot: %w", err)
	}

	var flags []struct {
		Level   string `db:"level"`
		Code    string `db:"code"`
		Message string `db:"message"`
		Source  string `db:"source"`
	}
	if err := s.db.db.SelectContext(ctx, &flags, `
		SELECT level, code, message, source FROM behavior_flags WHERE snapshot_id = ? ORDER BY id`, snapshotID); err != nil {
		return nil, fmt.Errorf("failed to load behavior flags: %w", err)
	}
	for _, f := range flags {
		record.BehaviorFlags = append(record.BehaviorFlags, models.BehaviorFlag{
			Level:   models.FlagLevel(f.Level),
			Code:    f.Code,
			Message: f.Message,
			Source:  f.Source,
		})
	}

	var market models.MarketRiskSnapshot
	err = s.db.db.QueryRowxContext(ctx, `
		SELECT index_role, dd_state, path_risk, position_pct, conclusion
		FROM market_risk_snapshot WHERE snapshot_id = ?`, snapshotID).
		Scan(&market.IndexRole, &market.DDState, &market.PathRisk, &market.PositionPct, &market.Conclusion)
	switch {
	case err == nil:
		record.MarketRisk = &market
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to load market risk snapshot: %w", err)
	}

	return record, nil
}

// LatestPerAsset returns the most recent snapshot of every asset (by as_of_date, then created_at)
func (s *SnapshotStorage) LatestPerAsset(ctx context.Context) ([]*models.AnalysisSnapshot, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	var rows []snapshotRow
	err := s.db.db.SelectContext(ctx, &rows, `
		SELECT `+snapshotColumns+` FROM (
			SELECT `+snapshotColumns+`,
				ROW_NUMBER() OVER (PARTITION BY asset_id ORDER BY as_of_date DESC, created_at DESC) AS rn
			FROM analysis_snapshots
		) WHERE rn = 1
		ORDER BY asset_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest snapshots: %w", err)
	}
	return snapshotModels(rows), nil
}

// HistoryForAsset returns an asset's snapshots newest first
func (s *SnapshotStorage) HistoryForAsset(ctx context.Context, assetID string, limit int) ([]*models.AnalysisSnapshot, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = -1
	}

	var rows []snapshotRow
	err := s.db.db.SelectContext(ctx, &rows, `
		SELECT `+snapshotColumns+` FROM analysis_snapshots
		WHERE asset_id = ?
		ORDER BY as_of_date DESC, created_at DESC
		LIMIT ?`, assetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots for %s: %w", assetID, err)
	}
	return snapshotModels(rows), nil
}

// DeleteSnapshot removes a snapshot; children go with it through ON DELETE CASCADE
func (s *SnapshotStorage) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	res, err := s.db.db.ExecContext(ctx, `DELETE FROM analysis_snapshots WHERE snapshot_id = ?`, snapshotID)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", snapshotID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("snapshot %s: %w", snapshotID, interfaces.ErrNotFound)
	}
	return nil
}

// DeleteAllSnapshots clears the snapshot tables only; prices and state rows are untouched
func (s *SnapshotStorage) DeleteAllSnapshots(ctx context.Context) (int64, error) {
	var deleted int64
	err := s.db.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM analysis_snapshots`)
		if err != nil {
			return fmt.Errorf("failed to delete snapshots: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info().Int64("deleted", deleted).Msg("All snapshots deleted")
	return deleted, nil
}

func snapshotModels(rows []snapshotRow) []*models.AnalysisSnapshot {
	out := make([]*models.AnalysisSnapshot, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out
}
