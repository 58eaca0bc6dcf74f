package signals

import (
	"errors"
	"testing"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/models"
)

func testMachine() *DrawdownMachine {
	return NewDrawdownMachine(common.NewDefaultConfig().Drawdown)
}

func TestDrawdownMachine_BandState(t *testing.T) {
	m := testMachine()

	tests := []struct {
		depth float64
		want  models.DrawdownState
	}{
		{0, models.StateD0},
		{0.05, models.StateD0},
		{0.10, models.StateD1},
		{0.25, models.StateD2},
		{0.35, models.StateD3},
		{0.50, models.StateD4},
		{0.65, models.StateD5},
		{0.90, models.StateD6},
	}

	for _, tt := range tests {
		if got := m.BandState(tt.depth); got != tt.want {
			t.Errorf("BandState(%v) = %s, want %s", tt.depth, got, tt.want)
		}
	}
}

func TestDrawdownMachine_RawStateRebound(t *testing.T) {
	m := testMachine()

	tests := []struct {
		name     string
		depth    float64
		valley   float64
		recovery float64
		want     models.DrawdownState
	}{
		{"Early rebound from D5 holds D4", 0.40, 0.65, 0.385, models.StateD4},
		{"Recovery below threshold uses band", 0.40, 0.65, 0.20, models.StateD3},
		{"Valley only D4 uses band", 0.40, 0.50, 0.50, models.StateD3},
		{"Mid-recovery from D6 holds D5", 0.35, 0.85, 0.60, models.StateD5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.RawState(tt.depth, tt.valley, tt.recovery); got != tt.want {
				t.Errorf("RawState = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDrawdownMachine_EnterHysteresis(t *testing.T) {
	m := testMachine()
	rows, err := m.Replay("US:STOCK:TEST", nil, barsFrom(100, 85, 85, 85))
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	want := []struct {
		raw       models.DrawdownState
		confirmed models.DrawdownState
		remaining int
	}{
		{models.StateD0, models.StateD0, 0},
		{models.StateD1, models.StateD0, 2},
		{models.StateD1, models.StateD0, 1},
		{models.StateD1, models.StateD1, 0},
	}

	for i, w := range want {
		r := rows[i]
		if r.RawState != w.raw || r.ConfirmedState != w.confirmed || r.ConfirmDaysRemaining != w.remaining {
			t.Errorf("day %d: raw=%s confirmed=%s remaining=%d, want raw=%s confirmed=%s remaining=%d",
				i, r.RawState, r.ConfirmedState, r.ConfirmDaysRemaining, w.raw, w.confirmed, w.remaining)
		}
	}
	if rows[3].TransitionProgress != 0 {
		t.Errorf("confirmed row TransitionProgress = %v, want 0", rows[3].TransitionProgress)
	}
}

func TestDrawdownMachine_FlickerResetsCount(t *testing.T) {
	m := testMachine()
	rows, err := m.Replay("US:STOCK:TEST", nil, barsFrom(100, 85, 85, 95, 85, 85))
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	if rows[3].Pending() {
		t.Error("a day back inside the confirmed band should clear the pending transition")
	}
	last := rows[5]
	if last.ConfirmedState != models.StateD0 {
		t.Errorf("ConfirmedState = %s, want D0 after a reset count", last.ConfirmedState)
	}
	if last.ConfirmDaysRemaining != 1 {
		t.Errorf("ConfirmDaysRemaining = %d, want 1", last.ConfirmDaysRemaining)
	}
}

func TestDrawdownMachine_ExitHysteresis(t *testing.T) {
	m := testMachine()
	rows, err := m.Replay("US:STOCK:TEST", nil, barsFrom(100, 85, 85, 85, 95, 95, 95, 95, 95))
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	for i := 4; i < 8; i++ {
		if rows[i].ConfirmedState != models.StateD1 {
			t.Errorf("day %d: ConfirmedState = %s, want D1 while exit confirms", i, rows[i].ConfirmedState)
		}
	}
	if rows[8].ConfirmedState != models.StateD0 {
		t.Errorf("day 8: ConfirmedState = %s, want D0 after 5 days", rows[8].ConfirmedState)
	}
}

func TestDrawdownMachine_NewPeakResetsValley(t *testing.T) {
	m := testMachine()
	rows, err := m.Replay("US:STOCK:TEST", nil, barsFrom(100, 70, 120, 110))
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	last := rows[3]
	if last.PeakPriceToDate != 120 || last.ValleyPriceToDate != 110 {
		t.Errorf("peak=%v valley=%v, want 120 and 110", last.PeakPriceToDate, last.ValleyPriceToDate)
	}
	if !near(last.CurrentDrawdown, 110.0/120-1) {
		t.Errorf("CurrentDrawdown = %v, want %v", last.CurrentDrawdown, 110.0/120-1)
	}
}

func TestDrawdownMachine_Contradictions(t *testing.T) {
	m := testMachine()
	prev, err := m.Step("US:STOCK:TEST", nil, day(1), 100)
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	tests := []struct {
		name  string
		date  int
		close float64
	}{
		{"Same date", 1, 100},
		{"Earlier date", 0, 100},
		{"Zero close", 2, 0},
		{"Negative close", 2, -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Step("US:STOCK:TEST", prev, day(tt.date), tt.close)
			if !errors.Is(err, interfaces.ErrStateMachineContradiction) {
				t.Errorf("err = %v, want ErrStateMachineContradiction", err)
			}
		})
	}
}

func TestDrawdownMachine_FinalMatchesReplay(t *testing.T) {
	m := testMachine()
	bars := barsFrom(100, 90, 70, 60, 65, 80)

	rows, err := m.Replay("US:STOCK:TEST", nil, bars)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	final, err := m.Final("US:STOCK:TEST", bars)
	if err != nil {
		t.Fatalf("Final failed: %v", err)
	}
	if *final != *rows[len(rows)-1] {
		t.Errorf("Final = %+v, want %+v", final, rows[len(rows)-1])
	}

	empty, err := m.Final("US:STOCK:TEST", nil)
	if err != nil || empty != nil {
		t.Errorf("Final(nil) = %v, %v; want nil, nil", empty, err)
	}
}
