package models

import (
	"fmt"
	"time"
)

// DrawdownState is the lifecycle level D0 (normal) .. D6 (deep crisis)
type DrawdownState int

const (
	StateD0 DrawdownState = iota
	StateD1
	StateD2
	StateD3
	StateD4
	StateD5
	StateD6
)

var drawdownLabels = [...]string{
	"Normal volatility",
	"Pullback",
	"Correction",
	"Bear-market onset",
	"Bear territory / early rebound",
	"Deep crisis / mid-recovery",
	"Capitulation",
}

// String returns the D-code
func (s DrawdownState) String() string {
	return fmt.Sprintf("D%d", int(s))
}

// Label returns the human-readable state description
func (s DrawdownState) Label() string {
	if s < StateD0 || s > StateD6 {
		return "Unknown"
	}
	return drawdownLabels[s]
}

// ParseDrawdownState parses "D0".."D6"
func ParseDrawdownState(code string) (DrawdownState, error) {
	var n int
	if _, err := fmt.Sscanf(code, "D%d", &n); err != nil || n < 0 || n > 6 {
		return StateD0, fmt.Errorf("invalid drawdown state %q", code)
	}
	return DrawdownState(n), nil
}

// DrawdownStateRow is one persisted day of the state machine.
// ConfirmedState only moves after the hysteresis window completes.
type DrawdownStateRow struct {
	AssetID              string        `json:"asset_id"`
	TradeDate            time.Time     `json:"trade_date"`
	RawState             DrawdownState `json:"raw_state"`
	ConfirmedState       DrawdownState `json:"confirmed_state"`
	ConfirmDaysRemaining int           `json:"confirm_days_remaining"`
	TransitionProgress   float64       `json:"transition_progress"`
	Close                float64       `json:"close"`
	PeakPriceToDate      float64       `json:"peak_price_to_date"`
	ValleyPriceToDate    float64       `json:"valley_price_to_date"`
	CurrentDrawdown      float64       `json:"current_drawdown"`
	RecoveryProgress     float64       `json:"recovery_progress"`
}

// Progress is the remaining distance to recover: 1 - recovery progress
func (r *DrawdownStateRow) Progress() float64 {
	return 1 - r.RecoveryProgress
}

// Pending reports whether a transition is being confirmed
func (r *DrawdownStateRow) Pending() bool {
	return r.RawState != r.ConfirmedState
}

// DrawdownView is the drawdown block of the dashboard
type DrawdownView struct {
	State                DrawdownState `json:"state"`
	StateCode            string        `json:"state_code"`
	Label                string        `json:"label"`
	RawState             DrawdownState `json:"raw_state"`
	ConfirmDaysRemaining int           `json:"confirm_days_remaining"`
	TransitionProgress   float64       `json:"transition_progress"`
	Progress             float64       `json:"progress"`
	CurrentDrawdown      float64       `json:"current_drawdown"`
	AsOf                 time.Time     `json:"as_of"`
}

// NewDrawdownView builds the dashboard view of a state row
func NewDrawdownView(row *DrawdownStateRow) *DrawdownView {
	return &DrawdownView{
		State:                row.ConfirmedState,
		StateCode:            row.ConfirmedState.String(),
		Label:                row.ConfirmedState.Label(),
		RawState:             row.RawState,
		ConfirmDaysRemaining: row.ConfirmDaysRemaining,
		TransitionProgress:   row.TransitionProgress,
		Progress:             row.Progress(),
		CurrentDrawdown:      row.CurrentDrawdown,
		AsOf:                 row.TradeDate,
	}
}
