package riskcard

import (
	"strings"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/models"
)

func newTestComposer() *Composer {
	return NewComposer(common.NewDefaultConfig().Profile, arbor.NewLogger())
}

func balanced() models.RiskProfile {
	return models.RiskProfile{Profile: models.ProfileBalanced, WarningVerbosity: models.VerbosityDetailed}
}

func TestComposer_Quadrants(t *testing.T) {
	c := newTestComposer()

	tests := []struct {
		name     string
		position float64
		path     models.PathRisk
		state    models.DrawdownState
		want     models.Quadrant
	}{
		{"High and calm", 0.9, models.PathRiskLow, models.StateD0, models.QuadrantChasing},
		{"High and volatile", 0.9, models.PathRiskHigh, models.StateD0, models.QuadrantBubble},
		{"Low in a bear market", 0.1, models.PathRiskMid, models.StateD3, models.QuadrantPanic},
		{"Low and calm", 0.3, models.PathRiskMid, models.StateD1, models.QuadrantStable},
		{"Boundary counts as high", 0.6, models.PathRiskLow, models.StateD0, models.QuadrantChasing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := c.Compose(Input{
				Risk:    models.RiskMetrics{PricePercentile: tt.position, PathRisk: tt.path},
				State:   tt.state,
				Profile: balanced(),
			})
			if card.Quadrant != tt.want {
				t.Errorf("Quadrant = %s, want %s", card.Quadrant, tt.want)
			}
			if card.QuadrantLabel == "" {
				t.Error("QuadrantLabel is empty")
			}
		})
	}
}

func TestComposer_Actions(t *testing.T) {
	c := newTestComposer()

	tests := []struct {
		name     string
		position float64
		path     models.PathRisk
		state    models.DrawdownState
		status   models.ValuationStatus
		quality  models.QualityLevel
		trap     bool
		want     models.ActionCode
	}{
		{"Extreme crisis", 0.05, models.PathRiskHigh, models.StateD6, models.ValuationUndervalued, models.QualityStrong, false, models.ActionCrisisReview},
		{"Deep drawdown on a weak name", 0.05, models.PathRiskHigh, models.StateD5, models.ValuationUndervalued, models.QualityWeak, false, models.ActionCrisisReview},
		{"Deep drawdown without quality grade", 0.05, models.PathRiskHigh, models.StateD5, models.ValuationUndervalued, "", false, models.ActionCrisisReview},
		{"HK value in deep drawdown at D5", 0.15, models.PathRiskHigh, models.StateD5, models.ValuationUndervalued, models.QualityStrong, false, models.ActionDCAFull},
		{"HK value in deep drawdown at D4", 0.15, models.PathRiskHigh, models.StateD4, models.ValuationUndervalued, models.QualityStrong, false, models.ActionDCAFull},
		{"Growth bubble, overvalued", 0.95, models.PathRiskHigh, models.StateD0, models.ValuationOvervalued, models.QualityModerate, false, models.ActionTrim},
		{"Crypto bubble without PE", 0.97, models.PathRiskHigh, models.StateD0, models.ValuationNoPE, "", false, models.ActionTrim},
		{"Bubble with short PE history", 0.92, models.PathRiskHigh, models.StateD0, models.ValuationInsufficientHistory, models.QualityStrong, false, models.ActionTrim},
		{"Value trap in deep drawdown", 0.15, models.PathRiskHigh, models.StateD4, models.ValuationUndervalued, models.QualityStrong, true, models.ActionWatch},
		{"Weak buffer in bear market", 0.1, models.PathRiskHigh, models.StateD3, models.ValuationFair, models.QualityWeak, false, models.ActionAvoid},
		{"Extreme valuation at the top", 0.95, models.PathRiskLow, models.StateD0, models.ValuationExtreme, models.QualityStrong, false, models.ActionTrim},
		{"Bubble, fairly valued", 0.9, models.PathRiskHigh, models.StateD0, models.ValuationFair, models.QualityModerate, false, models.ActionWatch},
		{"Panic on a strong cheap name", 0.1, models.PathRiskHigh, models.StateD3, models.ValuationUndervalued, models.QualityStrong, false, models.ActionDCAFull},
		{"Panic on a moderate fair name", 0.1, models.PathRiskHigh, models.StateD3, models.ValuationFair, models.QualityModerate, false, models.ActionDCASmall},
		{"Panic on a value trap", 0.1, models.PathRiskHigh, models.StateD3, models.ValuationUndervalued, models.QualityStrong, true, models.ActionWatch},
		{"Panic without valuation", 0.1, models.PathRiskHigh, models.StateD3, models.ValuationNoPE, models.QualityStrong, false, models.ActionWatch},
		{"Stable and cheap", 0.3, models.PathRiskLow, models.StateD1, models.ValuationUndervalued, models.QualityModerate, false, models.ActionDCASmall},
		{"Stable and fair", 0.3, models.PathRiskLow, models.StateD0, models.ValuationFair, models.QualityModerate, false, models.ActionHold},
		{"Chasing an overvalued name", 0.8, models.PathRiskLow, models.StateD0, models.ValuationOvervalued, models.QualityStrong, false, models.ActionWatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := c.Compose(Input{
				Risk:      models.RiskMetrics{PricePercentile: tt.position, PathRisk: tt.path},
				State:     tt.state,
				Valuation: &models.ValuationResult{StatusKey: tt.status, IsValueTrap: tt.trap, ValueTrapReason: "test"},
				Quality:   &models.QualityResult{Status: models.StatusOK, Level: tt.quality},
				Profile:   balanced(),
			})
			if card.Action != tt.want {
				t.Errorf("Action = %s, want %s (quadrant %s)", card.Action, tt.want, card.Quadrant)
			}
			if card.BehaviorSuggestion == "" {
				t.Error("BehaviorSuggestion is empty")
			}
		})
	}
}

func TestComposer_InteractionFlags(t *testing.T) {
	c := newTestComposer()

	card := c.Compose(Input{
		Risk:      models.RiskMetrics{PricePercentile: 0.1, PathRisk: models.PathRiskHigh},
		State:     models.StateD3,
		Valuation: &models.ValuationResult{StatusKey: models.ValuationUndervalued, Bucket: "Low"},
		Quality:   &models.QualityResult{Status: models.StatusOK, Level: models.QualityWeak},
		Overlay: &models.OverlayResult{Flags: []models.BehaviorFlag{
			{Level: models.FlagInfo, Code: "SECTOR_STRONG_VS_MARKET", Source: "overlay"},
		}},
		Profile: balanced(),
	})

	codes := make([]string, len(card.Flags))
	for i, f := range card.Flags {
		codes[i] = f.Code
	}
	want := []string{CodeWeakBufferSevereDrawdown, CodePossibleValueTrap, "SECTOR_STRONG_VS_MARKET"}
	if strings.Join(codes, ",") != strings.Join(want, ",") {
		t.Errorf("flags = %v, want %v (most severe first)", codes, want)
	}
	if card.RiskLevel != models.RiskHigh {
		t.Errorf("RiskLevel = %s, want HIGH", card.RiskLevel)
	}
}

func TestComposer_ProfileOnlyChangesPresentation(t *testing.T) {
	c := newTestComposer()
	in := Input{
		Risk:      models.RiskMetrics{PricePercentile: 0.1, PathRisk: models.PathRiskHigh, Volatility1Y: 0.4},
		State:     models.StateD4,
		Valuation: &models.ValuationResult{StatusKey: models.ValuationFair, Bucket: "Mid"},
		Quality:   &models.QualityResult{Status: models.StatusOK, Level: models.QualityModerate},
		Overlay: &models.OverlayResult{Flags: []models.BehaviorFlag{
			{Level: models.FlagAlert, Code: "SYSTEMIC_STRESS", Source: "overlay"},
			{Level: models.FlagWarn, Code: "STOCK_WEAK_VS_SECTOR", Source: "overlay"},
			{Level: models.FlagInfo, Code: "RESILIENT_VS_MARKET", Source: "overlay"},
		}},
	}

	tests := []struct {
		verbosity   models.Verbosity
		wantVisible int
	}{
		{models.VerbosityMinimal, 1},
		{models.VerbosityNormal, 2},
		{models.VerbosityDetailed, 3},
	}

	for _, tt := range tests {
		t.Run(string(tt.verbosity), func(t *testing.T) {
			in.Profile = models.RiskProfile{Profile: models.ProfileBalanced, WarningVerbosity: tt.verbosity}
			card := c.Compose(in)
			if len(card.Flags) != 3 {
				t.Errorf("len(Flags) = %d, want 3 regardless of verbosity", len(card.Flags))
			}
			if len(card.VisibleFlags) != tt.wantVisible {
				t.Errorf("len(VisibleFlags) = %d, want %d", len(card.VisibleFlags), tt.wantVisible)
			}
			if card.Action != models.ActionDCASmall {
				t.Errorf("Action = %s, want DCA_SMALL", card.Action)
			}
		})
	}

	conservative := c.Compose(Input{
		Risk: in.Risk, State: in.State, Valuation: in.Valuation, Quality: in.Quality,
		Profile: models.RiskProfile{Profile: models.ProfileConservative, WarningVerbosity: models.VerbosityDetailed},
	})
	aggressive := c.Compose(Input{
		Risk: in.Risk, State: in.State, Valuation: in.Valuation, Quality: in.Quality,
		Profile: models.RiskProfile{Profile: models.ProfileAggressive, WarningVerbosity: models.VerbosityNormal},
	})
	if len(conservative.BehaviorSuggestion) <= len(aggressive.BehaviorSuggestion) {
		t.Errorf("conservative suggestion %q should carry more caveats than %q",
			conservative.BehaviorSuggestion, aggressive.BehaviorSuggestion)
	}
	if conservative.Action != aggressive.Action {
		t.Errorf("profile changed the action: %s vs %s", conservative.Action, aggressive.Action)
	}
}

func TestComposer_CognitiveWarnings(t *testing.T) {
	tests := []struct {
		name  string
		state models.DrawdownState
		vol   float64
		want  string
	}{
		{"Calm top", models.StateD0, 0.2, ""},
		{"Volatile top", models.StateD0, 0.6, "Extreme top"},
		{"Bear rebound", models.StateD4, 0.35, "Double-bottom"},
		{"Correction", models.StateD2, 0.6, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cognitiveWarning(tt.state, tt.vol)
			if tt.want == "" && got != "" {
				t.Errorf("cognitiveWarning = %q, want none", got)
			}
			if tt.want != "" && !strings.HasPrefix(got, tt.want) {
				t.Errorf("cognitiveWarning = %q, want prefix %q", got, tt.want)
			}
		})
	}
}

func TestComposer_MissingFundamentalsAreNotWeak(t *testing.T) {
	c := newTestComposer()

	card := c.Compose(Input{
		Risk:      models.RiskMetrics{PricePercentile: 0.1, PathRisk: models.PathRiskHigh},
		State:     models.StateD3,
		Valuation: &models.ValuationResult{StatusKey: models.ValuationUndervalued, Bucket: "Low"},
		Quality:   &models.QualityResult{Status: models.StatusDataUnavailable, Level: models.QualityWeak},
		Profile:   balanced(),
	})
	if card.Action == models.ActionAvoid {
		t.Errorf("Action = AVOID from missing fundamentals")
	}
	if card.Action != models.ActionWatch {
		t.Errorf("Action = %s, want WATCH", card.Action)
	}
	for _, f := range card.Flags {
		if f.Code == CodeWeakBufferSevereDrawdown || f.Code == CodePossibleValueTrap {
			t.Errorf("unexpected flag %s without fundamentals", f.Code)
		}
	}
	if strings.Contains(card.OverallConclusion, "Quality buffer") {
		t.Errorf("OverallConclusion grades quality: %q", card.OverallConclusion)
	}
}

func TestComposer_ConclusionWithoutFundamentals(t *testing.T) {
	c := newTestComposer()

	card := c.Compose(Input{
		Risk:    models.RiskMetrics{PricePercentile: 0.5, PathRisk: models.PathRiskMid},
		State:   models.StateD1,
		Profile: balanced(),
	})
	if !strings.Contains(card.OverallConclusion, "Valuation unavailable") {
		t.Errorf("OverallConclusion = %q", card.OverallConclusion)
	}
	if card.Action != models.ActionHold {
		t.Errorf("Action = %s, want HOLD", card.Action)
	}
	if card.RiskLevel != models.RiskMedium {
		t.Errorf("RiskLevel = %s, want MEDIUM", card.RiskLevel)
	}
}
