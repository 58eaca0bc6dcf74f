package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/models"
)

// DrawdownStorage implements interfaces.DrawdownStorage for SQLite
type DrawdownStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewDrawdownStorage creates a new DrawdownStorage instance
func NewDrawdownStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.DrawdownStorage {
	return &DrawdownStorage{
		db:     db,
		logger: logger,
	}
}

type drawdownRow struct {
	AssetID              string  `db:"asset_id"`
	TradeDate            string  `db:"trade_date"`
	RawState             string  `db:"raw_state"`
	ConfirmedState       string  `db:"confirmed_state"`
	ConfirmDaysRemaining int     `db:"confirm_days_remaining"`
	TransitionProgress   float64 `db:"transition_progress"`
	Close                float64 `db:"close"`
	PeakPriceToDate      float64 `db:"peak_price_to_date"`
	ValleyPriceToDate    float64 `db:"valley_price_to_date"`
	CurrentDrawdown      float64 `db:"current_drawdown"`
	RecoveryProgress     float64 `db:"recovery_progress"`
}

const drawdownColumns = `asset_id, trade_date, raw_state, confirmed_state, confirm_days_remaining, transition_progress,
	close, peak_price_to_date, valley_price_to_date, current_drawdown, recovery_progress`

func (r *drawdownRow) toModel() (*models.DrawdownStateRow, error) {
	raw, err := models.ParseDrawdownState(r.RawState)
	if err != nil {
		return nil, err
	}
	confirmed, err := models.ParseDrawdownState(r.ConfirmedState)
	if err != nil {
		return nil, err
	}
	date, err := parseDate(r.TradeDate)
	if err != nil {
		return nil, err
	}
	return &models.DrawdownStateRow{
		AssetID:              r.AssetID,
		TradeDate:            date,
		RawState:             raw,
		ConfirmedState:       confirmed,
		ConfirmDaysRemaining: r.ConfirmDaysRemaining,
		TransitionProgress:   r.TransitionProgress,
		Close:                r.Close,
		PeakPriceToDate:      r.PeakPriceToDate,
		ValleyPriceToDate:    r.ValleyPriceToDate,
		CurrentDrawdown:      r.CurrentDrawdown,
		RecoveryProgress:     r.RecoveryProgress,
	}, nil
}

func (s *DrawdownStorage) getOne(ctx context.Context, query string, args ...interface{}) (*models.DrawdownStateRow, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	var row drawdownRow
	err := s.db.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read drawdown state: %w", err)
	}
	return row.toModel()
}

// LatestState returns the newest row for the asset, or nil
func (s *DrawdownStorage) LatestState(ctx context.Context, assetID string) (*models.DrawdownStateRow, error) {
	return s.getOne(ctx, `SELECT `+drawdownColumns+` FROM drawdown_state_history
		WHERE asset_id = ? ORDER BY trade_date DESC LIMIT 1`, assetID)
}

// StateAt returns the row for an exact date, or nil
func (s *DrawdownStorage) StateAt(ctx context.Context, assetID string, tradeDate time.Time) (*models.DrawdownStateRow, error) {
	return s.getOne(ctx, `SELECT `+drawdownColumns+` FROM drawdown_state_history
		WHERE asset_id = ? AND trade_date = ?`, assetID, formatDate(tradeDate))
}

// StateOnOrBefore returns the newest row on or before the date, or nil
func (s *DrawdownStorage) StateOnOrBefore(ctx context.Context, assetID string, tradeDate time.Time) (*models.DrawdownStateRow, error) {
	return s.getOne(ctx, `SELECT `+drawdownColumns+` FROM drawdown_state_history
		WHERE asset_id = ? AND trade_date <= ? ORDER BY trade_date DESC LIMIT 1`, assetID, formatDate(tradeDate))
}

// CountStates returns the number of stored rows for the asset
func (s *DrawdownStorage) CountStates(ctx context.Context, assetID string) (int, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	var n int
	if err := s.db.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM drawdown_state_history WHERE asset_id = ?`, assetID); err != nil {
		return 0, fmt.Errorf("failed to count drawdown states for %s: %w", assetID, err)
	}
	return n, nil
}

// AppendStates writes rows in one transaction. Every row must be strictly
// later than the asset's latest stored row and than the previous row in the slice.
func (s *DrawdownStorage) AppendStates(ctx context.Context, rows []*models.DrawdownStateRow) error {
	if len(rows) == 0 {
		return nil
	}

	return s.db.inTx(ctx, func(tx *sqlx.Tx) error {
		latest := make(map[string]string)
		for _, r := range rows {
			date := formatDate(r.TradeDate)

			last, seen := latest[r.AssetID]
			if !seen {
				var stored sql.NullString
				if err := tx.GetContext(ctx, &stored,
					`SELECT MAX(trade_date) FROM drawdown_state_history WHERE asset_id = ?`, r.AssetID); err != nil {
					return fmt.Errorf("failed to read latest drawdown date: %w", err)
				}
				last = stored.String
			}
			if last != "" && date <= last {
				return fmt.Errorf("%w: %s row for %s is not after %s",
					interfaces.ErrStateMachineContradiction, r.AssetID, date, last)
			}

			if err := insertDrawdown(ctx, tx, r); err != nil {
				return err
			}
			latest[r.AssetID] = date
		}
		return nil
	})
}

// ReplaceStates deletes the asset's rows and writes the rebuilt history in
// one transaction, so readers never see a partially rebuilt series
func (s *DrawdownStorage) ReplaceStates(ctx context.Context, assetID string, rows []*models.DrawdownStateRow) error {
	return s.db.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM drawdown_state_history WHERE asset_id = ?`, assetID); err != nil {
			return fmt.Errorf("failed to clear drawdown states for %s: %w", assetID, err)
		}

		last := ""
		for _, r := range rows {
			date := formatDate(r.TradeDate)
			if r.AssetID != assetID {
				return fmt.Errorf("%w: row for %s in rebuild of %s", interfaces.ErrStateMachineContradiction, r.AssetID, assetID)
			}
			if last != "" && date <= last {
				return fmt.Errorf("%w: %s row for %s is not after %s",
					interfaces.ErrStateMachineContradiction, assetID, date, last)
			}
			if err := insertDrawdown(ctx, tx, r); err != nil {
				return err
			}
			last = date
		}

		s.logger.Debug().Str("asset_id", assetID).Int("rows", len(rows)).Msg("Drawdown history rebuilt")
		return nil
	})
}

func insertDrawdown(ctx context.Context, tx *sqlx.Tx, r *models.DrawdownStateRow) error {
	date := formatDate(r.TradeDate)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO drawdown_state_history (`+drawdownColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.AssetID, date, r.RawState.String(), r.ConfirmedState.String(), r.ConfirmDaysRemaining,
		r.TransitionProgress, r.Close, r.PeakPriceToDate, r.ValleyPriceToDate, r.CurrentDrawdown, r.RecoveryProgress)
	if err != nil {
		return fmt.Errorf("failed to write drawdown state %s %s: %w", r.AssetID, date, err)
	}
	return nil
}
