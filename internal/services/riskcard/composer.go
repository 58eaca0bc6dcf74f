// -----------------------------------------------------------------------
// Package riskcard combines the computed blocks into the 2x2 risk quadrant,
// a behaviour action and the flag list. The risk profile only changes
// phrasing and flag visibility; every flag is kept on the card.
// -----------------------------------------------------------------------

package riskcard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/models"
)

// Interaction flag codes
const (
	CodeWeakBufferSevereDrawdown = "WEAK_BUFFER_SEVERE_DRAWDOWN"
	CodePossibleValueTrap        = "POSSIBLE_VALUE_TRAP"
	CodeValueTrapRules           = "VALUE_TRAP"
)

// Flag sources
const (
	SourceInteraction = "interaction"
	SourceValuation   = "valuation"
)

// Input is everything the composer reads. Valuation, Quality and Overlay
// may be nil when their block degraded.
type Input struct {
	Risk      models.RiskMetrics
	State     models.DrawdownState
	Valuation *models.ValuationResult
	Quality   *models.QualityResult
	Overlay   *models.OverlayResult
	Profile   models.RiskProfile
}

// Composer builds risk cards
type Composer struct {
	highPosition float64
	logger       arbor.ILogger
}

// NewComposer creates a risk card composer
func NewComposer(config common.ProfileConfig, logger arbor.ILogger) *Composer {
	high := config.HighPosition
	if high <= 0 {
		high = 0.6
	}
	return &Composer{highPosition: high, logger: logger}
}

// Compose assembles the card
func (c *Composer) Compose(in Input) *models.RiskCard {
	position := in.Risk.PricePercentile
	if in.Overlay != nil {
		position = in.Overlay.Individual.PositionPct
	}

	card := &models.RiskCard{
		PositionHigh: position >= c.highPosition,
		Fragile:      in.Risk.PathRisk == models.PathRiskHigh || in.State >= models.StateD3,
		Profile:      in.Profile,
	}
	card.Quadrant = quadrant(card.PositionHigh, card.Fragile)
	card.QuadrantLabel = card.Quadrant.Label()

	status := valuationStatus(in.Valuation)
	quality := qualityLevel(in.Quality)

	card.Action = action(card.Quadrant, in.State, status, quality, in.Valuation != nil && in.Valuation.IsValueTrap)
	card.BehaviorSuggestion = suggestion(card.Action, in.Profile.Profile)
	card.CognitiveWarning = cognitiveWarning(in.State, in.Risk.Volatility1Y)

	card.Flags = flags(in, status, quality)
	card.VisibleFlags = visible(card.Flags, in.Profile.WarningVerbosity)
	card.RiskLevel = riskLevel(in.State, card.Fragile, in.Risk.PathRisk, card.Flags)
	card.OverallConclusion = conclusion(in, card, status, quality)

	c.logger.Debug().
		Str("quadrant", string(card.Quadrant)).
		Str("action", string(card.Action)).
		Str("risk_level", string(card.RiskLevel)).
		Int("flags", len(card.Flags)).
		Int("visible", len(card.VisibleFlags)).
		Msg("Risk card composed")
	return card
}

func quadrant(high, fragile bool) models.Quadrant {
	switch {
	case high && fragile:
		return models.QuadrantBubble
	case high:
		return models.QuadrantChasing
	case fragile:
		return models.QuadrantPanic
	}
	return models.QuadrantStable
}

func valuationStatus(v *models.ValuationResult) models.ValuationStatus {
	if v == nil {
		return ""
	}
	return v.StatusKey
}

// qualityLevel is "" unless the block was graded from real fundamentals
func qualityLevel(q *models.QualityResult) models.QualityLevel {
	if q == nil || q.Status != models.StatusOK {
		return ""
	}
	return q.Level
}

func graded(status models.ValuationStatus) bool {
	switch status {
	case models.ValuationUndervalued, models.ValuationFair, models.ValuationOvervalued, models.ValuationExtreme:
		return true
	}
	return false
}

// action picks the first matching rule. D5 only escalates to a crisis
// review when nothing in the fundamentals argues otherwise.
func action(q models.Quadrant, state models.DrawdownState, status models.ValuationStatus, quality models.QualityLevel, trap bool) models.ActionCode {
	var a models.ActionCode
	switch {
	case state >= models.StateD6:
		a = models.ActionCrisisReview
	case state == models.StateD5 && (quality == models.QualityWeak || quality == ""):
		a = models.ActionCrisisReview
	case quality == models.QualityWeak && state >= models.StateD3:
		a = models.ActionAvoid
	case status == models.ValuationExtreme && (q == models.QuadrantBubble || q == models.QuadrantChasing):
		a = models.ActionTrim
	case q == models.QuadrantBubble:
		// Ungraded valuation gives no reason to stay in a fragile peak
		if status == models.ValuationOvervalued || !graded(status) {
			a = models.ActionTrim
		} else {
			a = models.ActionWatch
		}
	case q == models.QuadrantPanic:
		switch {
		case quality == models.QualityStrong && status == models.ValuationUndervalued:
			a = models.ActionDCAFull
		case quality != models.QualityWeak && quality != "" &&
			(status == models.ValuationUndervalued || status == models.ValuationFair):
			a = models.ActionDCASmall
		default:
			a = models.ActionWatch
		}
	case q == models.QuadrantStable:
		if status == models.ValuationUndervalued && quality != models.QualityWeak && quality != "" {
			a = models.ActionDCASmall
		} else {
			a = models.ActionHold
		}
	default:
		if status == models.ValuationOvervalued {
			a = models.ActionWatch
		} else {
			a = models.ActionHold
		}
	}

	// Never average into a flagged value trap
	if trap && (a == models.ActionDCAFull || a == models.ActionDCASmall) {
		a = models.ActionWatch
	}
	return a
}

var suggestions = map[models.ActionCode]string{
	models.ActionHold:         "Hold the position and keep following the plan.",
	models.ActionWatch:        "Watch without adding until the picture clears.",
	models.ActionDCASmall:     "Accumulate in small, scheduled tranches.",
	models.ActionDCAFull:      "Accumulate on the planned schedule at full size.",
	models.ActionTrim:         "Trim toward target weight and lock in part of the gain.",
	models.ActionAvoid:        "Avoid new exposure; the fundamentals do not cushion this drawdown.",
	models.ActionCrisisReview: "Review the thesis from scratch before any further action.",
}

func suggestion(a models.ActionCode, p models.Profile) string {
	s := suggestions[a]
	switch p {
	case models.ProfileConservative:
		switch a {
		case models.ActionDCAFull, models.ActionDCASmall:
			s += " Keep tranches small and confirm the drawdown has stabilised first."
		case models.ActionHold, models.ActionWatch:
			s += " Re-check position size against your risk budget."
		}
	case models.ProfileAggressive:
		if i := strings.Index(s, ";"); i > 0 {
			s = s[:i] + "."
		}
	}
	return s
}

// cognitiveWarning flags state and volatility combinations that mislead
func cognitiveWarning(state models.DrawdownState, vol float64) string {
	switch {
	case state == models.StateD0 && vol > 0.5:
		return "Extreme top with high volatility: calm prices at a peak can reverse sharply."
	case state == models.StateD4 && vol > 0.3:
		return "Double-bottom risk: early rebounds in bear territory often retest the low."
	case state >= models.StateD5 && vol > 0.5:
		return "Capitulation volatility: daily swings say little about the bottom."
	}
	return ""
}

// flags merges overlay flags with the interaction rules, most severe first
func flags(in Input, status models.ValuationStatus, quality models.QualityLevel) []models.BehaviorFlag {
	var out []models.BehaviorFlag
	if in.Overlay != nil {
		out = append(out, in.Overlay.Flags...)
	}

	if quality == models.QualityWeak && in.State >= models.StateD3 {
		out = append(out, models.BehaviorFlag{
			Level:   models.FlagAlert,
			Code:    CodeWeakBufferSevereDrawdown,
			Message: fmt.Sprintf("Weak buffer in severe drawdown (%s)", in.State),
			Source:  SourceInteraction,
		})
	}
	if status == models.ValuationUndervalued && quality == models.QualityWeak {
		out = append(out, models.BehaviorFlag{
			Level:   models.FlagWarn,
			Code:    CodePossibleValueTrap,
			Message: "Possible value trap: cheap multiple on weak fundamentals",
			Source:  SourceInteraction,
		})
	}
	if in.Valuation != nil && in.Valuation.IsValueTrap {
		out = append(out, models.BehaviorFlag{
			Level:   models.FlagWarn,
			Code:    CodeValueTrapRules,
			Message: "Value trap signals: " + in.Valuation.ValueTrapReason,
			Source:  SourceValuation,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Level.Severity() > out[j].Level.Severity()
	})
	return out
}

func visible(all []models.BehaviorFlag, v models.Verbosity) []models.BehaviorFlag {
	floor := v.MinSeverity()
	out := make([]models.BehaviorFlag, 0, len(all))
	for _, f := range all {
		if f.Level.Severity() >= floor {
			out = append(out, f)
		}
	}
	return out
}

func riskLevel(state models.DrawdownState, fragile bool, path models.PathRisk, all []models.BehaviorFlag) models.RiskLevel {
	worst := 0
	for _, f := range all {
		if s := f.Level.Severity(); s > worst {
			worst = s
		}
	}
	switch {
	case state >= models.StateD4 || worst >= models.FlagAlert.Severity():
		return models.RiskHigh
	case !fragile && path == models.PathRiskLow && worst < models.FlagWarn.Severity():
		return models.RiskLow
	}
	return models.RiskMedium
}

// conclusion is the one narrative field on the card
func conclusion(in Input, card *models.RiskCard, status models.ValuationStatus, quality models.QualityLevel) string {
	parts := []string{
		fmt.Sprintf("%s quadrant (%s position, %s structure) in %s %s.",
			card.QuadrantLabel, highLow(card.PositionHigh), fragility(card.Fragile), in.State, strings.ToLower(in.State.Label())),
	}

	switch {
	case in.Valuation == nil:
		parts = append(parts, "Valuation unavailable.")
	case in.Valuation.Bucket == "N/A":
		parts = append(parts, fmt.Sprintf("Valuation not graded (%s).", status))
	default:
		parts = append(parts, fmt.Sprintf("Valuation %s vs own history.", strings.ToLower(in.Valuation.Bucket)))
	}
	if quality != "" {
		parts = append(parts, fmt.Sprintf("Quality buffer %s.", strings.ToLower(string(quality))))
	}
	if in.Overlay != nil && in.Overlay.Market.Available {
		parts = append(parts, fmt.Sprintf("Market regime: %s.", in.Overlay.Regime))
	}
	parts = append(parts, fmt.Sprintf("Stance: %s.", card.Action))
	return strings.Join(parts, " ")
}

func highLow(high bool) string {
	if high {
		return "high"
	}
	return "low"
}

func fragility(fragile bool) string {
	if fragile {
		return "fragile"
	}
	return "stable"
}
