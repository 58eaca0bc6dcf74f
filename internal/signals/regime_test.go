package signals

import (
	"testing"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/models"
)

func TestRSComputer_Compute(t *testing.T) {
	computer := NewRSComputer(2)

	subject := barsFrom(100, 105, 110)
	bench := barsFrom(100, 100, 105)

	rs := computer.Compute(subject, bench)
	if rs == nil {
		t.Fatal("RS = nil, want a value")
	}
	if !near(*rs, 0.05) {
		t.Errorf("RS = %v, want 0.05", *rs)
	}

	// Benchmark missing a day leaves too few common dates
	gappy := []models.PriceBar{bench[0], bench[2]}
	if got := computer.Compute(subject, gappy); got != nil {
		t.Errorf("RS with gaps = %v, want nil", *got)
	}

	if got := computer.Compute(subject, nil); got != nil {
		t.Errorf("RS without benchmark = %v, want nil", *got)
	}
}

func TestRegimeClassifier_Amplification(t *testing.T) {
	c := NewRegimeClassifier(common.NewDefaultConfig().Overlay)

	tests := []struct {
		name     string
		state    models.DrawdownState
		vol      float64
		position float64
		want     models.Amplification
		points   int
	}{
		{"Calm market", models.StateD0, 0.15, 0.5, models.AmplificationLow, 0},
		{"Pullback only", models.StateD1, 0.15, 0.5, models.AmplificationLow, 1},
		{"Elevated vol near lows", models.StateD0, 0.25, 0.1, models.AmplificationMid, 2},
		{"Bear market with stress vol", models.StateD3, 0.35, 0.5, models.AmplificationHigh, 4},
		{"Everything at once", models.StateD4, 0.40, 0.05, models.AmplificationHigh, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, points := c.Amplification(tt.state, tt.vol, tt.position)
			if got != tt.want || points != tt.points {
				t.Errorf("Amplification = %s (%d), want %s (%d)", got, points, tt.want, tt.points)
			}
		})
	}
}

func TestRegimeClassifier_Classify(t *testing.T) {
	c := NewRegimeClassifier(common.NewDefaultConfig().Overlay)

	tests := []struct {
		name string
		in   RegimeInput
		amp  models.Amplification
		want models.RegimeLabel
	}{
		{
			name: "Market in bear territory",
			in:   RegimeInput{MarketAvailable: true, MarketState: models.StateD4},
			amp:  models.AmplificationMid,
			want: models.RegimeSystemicStress,
		},
		{
			name: "High amplification alone",
			in:   RegimeInput{MarketAvailable: true, MarketState: models.StateD0},
			amp:  models.AmplificationHigh,
			want: models.RegimeSystemicStress,
		},
		{
			name: "Market correction",
			in:   RegimeInput{MarketAvailable: true, MarketState: models.StateD2},
			amp:  models.AmplificationLow,
			want: models.RegimeSystemicCompression,
		},
		{
			name: "Styles moving together",
			in: RegimeInput{MarketAvailable: true, MarketState: models.StateD0,
				GrowthRS: models.Float(0.05), ValueRS: models.Float(0.04)},
			amp:  models.AmplificationMid,
			want: models.RegimeSystemicCompression,
		},
		{
			name: "Styles dispersed",
			in: RegimeInput{MarketAvailable: true, MarketState: models.StateD0,
				GrowthRS: models.Float(0.10), ValueRS: models.Float(-0.05)},
			amp:  models.AmplificationMid,
			want: models.RegimeHealthyDifferentiation,
		},
		{
			name: "No market data",
			in:   RegimeInput{},
			amp:  models.AmplificationLow,
			want: models.RegimeHealthyDifferentiation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.in, tt.amp); got != tt.want {
				t.Errorf("Classify = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRegimeClassifier_Flags(t *testing.T) {
	c := NewRegimeClassifier(common.NewDefaultConfig().Overlay)

	tests := []struct {
		name   string
		in     RegimeInput
		regime models.RegimeLabel
		want   map[string]models.FlagLevel
	}{
		{
			name: "Resilient stock in a crisis",
			in: RegimeInput{
				IndividualState: models.StateD0,
				StockVsSector:   models.Float(-0.15),
				MarketAvailable: true,
				MarketState:     models.StateD4,
			},
			regime: models.RegimeSystemicStress,
			want: map[string]models.FlagLevel{
				CodeStockWeakVsSector: models.FlagWarn,
				CodeMarketCrisis:      models.FlagAlert,
				CodeSystemicStress:    models.FlagAlert,
				CodeResilientVsMarket: models.FlagInfo,
			},
		},
		{
			name: "Sector-wide drawdown",
			in: RegimeInput{
				IndividualState: models.StateD3,
				SectorAvailable: true,
				SectorState:     models.StateD3,
				SectorVsMarket:  models.Float(0.12),
				MarketAvailable: true,
				MarketState:     models.StateD1,
			},
			regime: models.RegimeSystemicCompression,
			want: map[string]models.FlagLevel{
				CodeSectorStrongVsMarket: models.FlagInfo,
				CodeSystemicCompression:  models.FlagWarn,
				CodeSectorWideDrawdown:   models.FlagWarn,
			},
		},
		{
			name:   "Quiet",
			in:     RegimeInput{StockVsSector: models.Float(0.02), MarketAvailable: true},
			regime: models.RegimeHealthyDifferentiation,
			want:   map[string]models.FlagLevel{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := c.Flags(tt.in, tt.regime)
			if len(flags) != len(tt.want) {
				t.Errorf("got %d flags, want %d: %+v", len(flags), len(tt.want), flags)
			}
			for _, f := range flags {
				level, ok := tt.want[f.Code]
				if !ok {
					t.Errorf("unexpected flag %s", f.Code)
					continue
				}
				if f.Level != level {
					t.Errorf("%s level = %s, want %s", f.Code, f.Level, level)
				}
				if f.Source != SourceOverlay {
					t.Errorf("%s source = %s, want %s", f.Code, f.Source, SourceOverlay)
				}
			}
		})
	}
}
