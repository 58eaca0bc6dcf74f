package drawdown

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/models"
	"github.com/ternarybob/vera/internal/signals"
)

// Service persists the drawdown state machine. It is the only writer of
// drawdown_state_history.
type Service struct {
	storage         interfaces.DrawdownStorage
	machine         *signals.DrawdownMachine
	backfillMinRows int
	logger          arbor.ILogger
}

// NewService creates a drawdown state service
func NewService(storage interfaces.DrawdownStorage, config *common.Config, logger arbor.ILogger) *Service {
	return &Service{
		storage:         storage,
		machine:         signals.NewDrawdownMachine(config.Drawdown),
		backfillMinRows: config.Risk.BackfillMinRows,
		logger:          logger,
	}
}

// Machine exposes the pure state machine for in-memory replays
func (s *Service) Machine() *signals.DrawdownMachine {
	return s.machine
}

// UpdateState makes sure a row exists for tradeDate and returns it. prices
// are the asset's bars up to tradeDate, ascending. A stored row for the date
// is returned unchanged. With fewer than the backfill minimum stored the
// history is rebuilt from prices; otherwise every bar after the latest stored
// row up to tradeDate is appended in one transaction.
func (s *Service) UpdateState(ctx context.Context, assetID string, tradeDate time.Time, prices []models.PriceBar) (*models.DrawdownStateRow, error) {
	bars, err := series(assetID, prices, tradeDate)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 || !bars[len(bars)-1].TradeDate.Equal(tradeDate) {
		return nil, fmt.Errorf("%w: no close for %s on %s", interfaces.ErrDataUnavailable, assetID, tradeDate.Format(models.DateLayout))
	}

	existing, err := s.storage.StateAt(ctx, assetID, tradeDate)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	count, err := s.storage.CountStates(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if count < s.backfillMinRows {
		s.logger.Info().Str("asset_id", assetID).Int("stored", count).Msg("Drawdown history short, running backfill")
		if _, err := s.RunBackfill(ctx, assetID, bars, 0); err != nil {
			return nil, err
		}
		return s.storage.StateAt(ctx, assetID, tradeDate)
	}

	latest, err := s.storage.LatestState(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if latest != nil && !tradeDate.After(latest.TradeDate) {
		return nil, fmt.Errorf("%w: %s is before the latest stored state %s for %s", interfaces.ErrStateMachineContradiction,
			tradeDate.Format(models.DateLayout), latest.TradeDate.Format(models.DateLayout), assetID)
	}

	var gap []models.PriceBar
	for _, b := range bars {
		if latest == nil || b.TradeDate.After(latest.TradeDate) {
			gap = append(gap, b)
		}
	}

	rows, err := s.machine.Replay(assetID, latest, gap)
	if err != nil {
		return nil, err
	}
	if err := s.storage.AppendStates(ctx, rows); err != nil {
		return nil, err
	}

	row := rows[len(rows)-1]
	s.logger.Debug().
		Str("asset_id", assetID).
		Str("date", tradeDate.Format(models.DateLayout)).
		Str("raw", row.RawState.String()).
		Str("confirmed", row.ConfirmedState.String()).
		Int("appended", len(rows)).
		Msg("Drawdown state updated")
	return row, nil
}

// RunBackfill rebuilds the asset's history from prices. lookbackDays limits
// the replay to calendar days before the last bar; zero replays everything.
// Returns the number of rows written.
func (s *Service) RunBackfill(ctx context.Context, assetID string, prices []models.PriceBar, lookbackDays int) (int, error) {
	if len(prices) == 0 {
		return 0, fmt.Errorf("%w: no prices to backfill %s", interfaces.ErrDataUnavailable, assetID)
	}
	bars, err := series(assetID, prices, prices[len(prices)-1].TradeDate)
	if err != nil {
		return 0, err
	}
	if lookbackDays > 0 {
		from := bars[len(bars)-1].TradeDate.AddDate(0, 0, -lookbackDays)
		for i, b := range bars {
			if !b.TradeDate.Before(from) {
				bars = bars[i:]
				break
			}
		}
	}

	rows, err := s.machine.Replay(assetID, nil, bars)
	if err != nil {
		return 0, err
	}
	if err := s.storage.ReplaceStates(ctx, assetID, rows); err != nil {
		return 0, err
	}

	s.logger.Info().
		Str("asset_id", assetID).
		Int("rows", len(rows)).
		Str("from", bars[0].TradeDate.Format(models.DateLayout)).
		Str("to", bars[len(bars)-1].TradeDate.Format(models.DateLayout)).
		Msg("Drawdown backfill complete")
	return len(rows), nil
}

// StateFor returns the state at asOf. A stored row is returned as is; an
// as-of before the latest stored row is replayed in memory so history is
// never rewritten; otherwise the state is brought forward and persisted.
func (s *Service) StateFor(ctx context.Context, assetID string, asOf time.Time, prices []models.PriceBar) (*models.DrawdownStateRow, error) {
	bars, err := series(assetID, prices, asOf)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no prices for %s on or before %s", interfaces.ErrDataUnavailable, assetID, asOf.Format(models.DateLayout))
	}
	day := bars[len(bars)-1].TradeDate

	stored, err := s.storage.StateAt(ctx, assetID, day)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return stored, nil
	}

	latest, err := s.storage.LatestState(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if latest != nil && day.Before(latest.TradeDate) {
		return s.machine.Final(assetID, bars)
	}
	return s.UpdateState(ctx, assetID, day, bars)
}

// Replay runs the machine over bars without persisting, for benchmark assets
func (s *Service) Replay(assetID string, prices []models.PriceBar, asOf time.Time) (*models.DrawdownStateRow, error) {
	bars, err := series(assetID, prices, asOf)
	if err != nil {
		return nil, err
	}
	return s.machine.Final(assetID, bars)
}

// series returns bars on or before asOf after checking that dates strictly
// increase and closes are positive
func series(assetID string, prices []models.PriceBar, asOf time.Time) ([]models.PriceBar, error) {
	out := make([]models.PriceBar, 0, len(prices))
	for i, b := range prices {
		if i > 0 && !b.TradeDate.After(prices[i-1].TradeDate) {
			return nil, fmt.Errorf("%w: prices for %s not ascending at %s", interfaces.ErrStateMachineContradiction,
				assetID, b.TradeDate.Format(models.DateLayout))
		}
		if b.TradeDate.After(asOf) {
			break
		}
		if b.Close <= 0 {
			return nil, fmt.Errorf("%w: non-positive close for %s on %s", interfaces.ErrStateMachineContradiction,
				assetID, b.TradeDate.Format(models.DateLayout))
		}
		out = append(out, b)
	}
	return out, nil
}
