package signals

import (
	"fmt"
	"math"
	"time"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/models"
)

// DrawdownMachine classifies each trading day into D0..D6 and confirms
// transitions with hysteresis. It is pure: persistence lives in the
// drawdown service.
type DrawdownMachine struct {
	config common.DrawdownConfig
}

// NewDrawdownMachine creates a state machine over the configured bands
func NewDrawdownMachine(config common.DrawdownConfig) *DrawdownMachine {
	return &DrawdownMachine{config: config}
}

// BandState maps a drawdown depth (positive fraction) to its band
func (m *DrawdownMachine) BandState(depth float64) models.DrawdownState {
	state := models.StateD0
	for _, edge := range m.config.Bands {
		if depth >= edge {
			state++
		}
	}
	if state > models.StateD6 {
		state = models.StateD6
	}
	return state
}

// RawState classifies one day. Once the episode valley reached D5 or deeper
// and recovery passed the rebound threshold, the state stays one level above
// the valley state: D4 is the first rebound leg from D5, D5 the mid-recovery from D6.
func (m *DrawdownMachine) RawState(depth, valleyDepth, recovery float64) models.DrawdownState {
	base := m.BandState(depth)
	valley := m.BandState(valleyDepth)
	if valley >= models.StateD5 && recovery >= m.config.ReboundRecovery {
		if rebound := valley - 1; rebound > base {
			return rebound
		}
	}
	return base
}

// Step computes the row for tradeDate from the previous row (nil on the first
// day). Dates must be strictly increasing and closes positive.
func (m *DrawdownMachine) Step(assetID string, prev *models.DrawdownStateRow, tradeDate time.Time, close float64) (*models.DrawdownStateRow, error) {
	if close <= 0 || math.IsNaN(close) {
		return nil, fmt.Errorf("%w: non-positive close %.4f for %s on %s",
			interfaces.ErrStateMachineContradiction, close, assetID, tradeDate.Format(models.DateLayout))
	}
	if prev != nil && !tradeDate.After(prev.TradeDate) {
		return nil, fmt.Errorf("%w: %s on %s is not after %s", interfaces.ErrStateMachineContradiction,
			assetID, tradeDate.Format(models.DateLayout), prev.TradeDate.Format(models.DateLayout))
	}

	row := &models.DrawdownStateRow{
		AssetID:   assetID,
		TradeDate: tradeDate,
		Close:     close,
	}

	// A new peak starts a new episode and resets the valley
	if prev == nil || close >= prev.PeakPriceToDate {
		row.PeakPriceToDate = close
		row.ValleyPriceToDate = close
	} else {
		row.PeakPriceToDate = prev.PeakPriceToDate
		row.ValleyPriceToDate = math.Min(prev.ValleyPriceToDate, close)
	}

	peak, valley := row.PeakPriceToDate, row.ValleyPriceToDate
	row.CurrentDrawdown = close/peak - 1
	row.RecoveryProgress = 1
	if peak > valley {
		row.RecoveryProgress = clamp((close-valley)/(peak-valley), 0, 1)
	}

	row.RawState = m.RawState(1-close/peak, 1-valley/peak, row.RecoveryProgress)

	if prev == nil {
		row.ConfirmedState = row.RawState
		return row, nil
	}

	row.ConfirmedState = prev.ConfirmedState
	if row.RawState == row.ConfirmedState {
		return row, nil
	}

	deeper := row.RawState > row.ConfirmedState
	window := m.config.ExitDays
	if deeper {
		window = m.config.EnterDays
	}

	// Count consecutive days on the same side of the confirmed state
	k := 1
	if prev.Pending() && (prev.RawState > prev.ConfirmedState) == deeper {
		k = int(math.Round(prev.TransitionProgress*float64(window))) + 1
	}

	if k >= window {
		row.ConfirmedState = row.RawState
		return row, nil
	}
	row.ConfirmDaysRemaining = window - k
	row.TransitionProgress = float64(k) / float64(window)
	return row, nil
}

// Replay runs the machine over ascending bars starting from prev (nil for a
// fresh history) and returns one row per bar. Nothing is persisted.
func (m *DrawdownMachine) Replay(assetID string, prev *models.DrawdownStateRow, bars []models.PriceBar) ([]*models.DrawdownStateRow, error) {
	rows := make([]*models.DrawdownStateRow, 0, len(bars))
	for _, b := range bars {
		row, err := m.Step(assetID, prev, b.TradeDate, b.Close)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
		prev = row
	}
	return rows, nil
}

// Final replays bars and returns the last row, or nil for an empty series
func (m *DrawdownMachine) Final(assetID string, bars []models.PriceBar) (*models.DrawdownStateRow, error) {
	rows, err := m.Replay(assetID, nil, bars)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[len(rows)-1], nil
}
