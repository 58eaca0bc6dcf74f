package models

import (
	"fmt"
	"strings"
	"time"
)

// Profile is the investor risk profile
type Profile string

const (
	ProfileConservative Profile = "CONSERVATIVE"
	ProfileBalanced     Profile = "BALANCED"
	ProfileAggressive   Profile = "AGGRESSIVE"
)

// Verbosity controls which flag levels are shown
type Verbosity string

const (
	VerbosityMinimal  Verbosity = "MINIMAL"
	VerbosityNormal   Verbosity = "NORMAL"
	VerbosityDetailed Verbosity = "DETAILED"
)

// RiskProfile only changes presentation, never raw metrics
type RiskProfile struct {
	Profile          Profile   `json:"profile"`
	WarningVerbosity Verbosity `json:"warning_verbosity"`
}

// ParseRiskProfile parses a profile name and optional verbosity.
// An empty verbosity picks the profile default.
func ParseRiskProfile(profile, verbosity string) (RiskProfile, error) {
	p := Profile(strings.ToUpper(strings.TrimSpace(profile)))
	switch p {
	case "":
		p = ProfileBalanced
	case ProfileConservative, ProfileBalanced, ProfileAggressive:
	default:
		return RiskProfile{}, fmt.Errorf("unknown risk profile %q", profile)
	}

	v := Verbosity(strings.ToUpper(strings.TrimSpace(verbosity)))
	switch v {
	case "":
		v = p.DefaultVerbosity()
	case VerbosityMinimal, VerbosityNormal, VerbosityDetailed:
	default:
		return RiskProfile{}, fmt.Errorf("unknown warning verbosity %q", verbosity)
	}

	return RiskProfile{Profile: p, WarningVerbosity: v}, nil
}

// DefaultVerbosity hides INFO flags for aggressive investors
func (p Profile) DefaultVerbosity() Verbosity {
	if p == ProfileAggressive {
		return VerbosityNormal
	}
	return VerbosityDetailed
}

// MinSeverity is the lowest flag severity shown at this verbosity
func (v Verbosity) MinSeverity() int {
	switch v {
	case VerbosityMinimal:
		return FlagAlert.Severity()
	case VerbosityNormal:
		return FlagWarn.Severity()
	default:
		return FlagInfo.Severity()
	}
}

// Quadrant is the position x fragility quadrant
type Quadrant string

const (
	QuadrantChasing Quadrant = "Q1"
	QuadrantBubble  Quadrant = "Q2"
	QuadrantPanic   Quadrant = "Q3"
	QuadrantStable  Quadrant = "Q4"
)

var quadrantLabels = map[Quadrant]string{
	QuadrantChasing: "Chasing",
	QuadrantBubble:  "Bubble",
	QuadrantPanic:   "Panic",
	QuadrantStable:  "Stable",
}

// Label returns the quadrant name
func (q Quadrant) Label() string {
	return quadrantLabels[q]
}

// ActionCode is the behaviour-oriented action
type ActionCode string

const (
	ActionHold         ActionCode = "HOLD"
	ActionWatch        ActionCode = "WATCH"
	ActionDCASmall     ActionCode = "DCA_SMALL"
	ActionDCAFull      ActionCode = "DCA_FULL"
	ActionTrim         ActionCode = "TRIM"
	ActionAvoid        ActionCode = "AVOID"
	ActionCrisisReview ActionCode = "CRISIS_REVIEW"
)

// RiskLevel is the coarse risk grade stored on the snapshot
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// RiskCard is the composed card
type RiskCard struct {
	Quadrant           Quadrant       `json:"quadrant"`
	QuadrantLabel      string         `json:"quadrant_label"`
	PositionHigh       bool           `json:"position_high"`
	Fragile            bool           `json:"fragile"`
	Action             ActionCode     `json:"action"`
	BehaviorSuggestion string         `json:"behavior_suggestion"`
	CognitiveWarning   string         `json:"cognitive_warning,omitempty"`
	Flags              []BehaviorFlag `json:"flags"`
	VisibleFlags       []BehaviorFlag `json:"visible_flags"`
	OverallConclusion  string         `json:"overall_conclusion"`
	RiskLevel          RiskLevel      `json:"risk_level"`
	Profile            RiskProfile    `json:"profile"`
}

// IndexCard is the reduced card produced in index mode
type IndexCard struct {
	Role        IndexRole     `json:"role"`
	State       DrawdownState `json:"state"`
	StateCode   string        `json:"state_code"`
	PathRisk    PathRisk      `json:"path_risk"`
	PositionPct float64       `json:"position_pct"`
	Conclusion  string        `json:"conclusion"`
	RiskLevel   RiskLevel     `json:"risk_level"`
}

// Resolution records how the raw symbol became a canonical id
type Resolution struct {
	RawSymbol   string `json:"raw_symbol"`
	CanonicalID string `json:"canonical_id"`
	Path        string `json:"path"`
	Note        string `json:"note,omitempty"`
}

// DashboardData is the full result of one snapshot run
type DashboardData struct {
	SnapshotID  string     `json:"snapshot_id,omitempty"`
	AssetID     string     `json:"asset_id"`
	DisplayName string     `json:"display_name"`
	Market      string     `json:"market"`
	AssetType   AssetType  `json:"asset_type"`
	Currency    string     `json:"currency"`
	AsOfDate    time.Time  `json:"as_of_date"`
	GeneratedAt time.Time  `json:"generated_at"`
	Resolution  Resolution `json:"resolution"`

	LastClose float64   `json:"last_close"`
	LastDate  time.Time `json:"last_date"`

	Risk      *RiskMetrics     `json:"risk,omitempty"`
	Drawdown  *DrawdownView    `json:"drawdown,omitempty"`
	Valuation *ValuationResult `json:"valuation,omitempty"`
	Quality   *QualityResult   `json:"quality,omitempty"`
	Overlay   *OverlayResult   `json:"overlay,omitempty"`
	Card      *RiskCard        `json:"card,omitempty"`
	IndexCard *IndexCard       `json:"index_card,omitempty"`

	// BlockStatus carries the status key of every block, e.g. "valuation": "NO_PE"
	BlockStatus map[string]string `json:"block_status"`
}

// IsIndex reports whether the dashboard was produced in index mode
func (d *DashboardData) IsIndex() bool {
	return d.IndexCard != nil
}

// RiskLevel returns the card or index card risk level
func (d *DashboardData) RiskLevel() RiskLevel {
	switch {
	case d.Card != nil:
		return d.Card.RiskLevel
	case d.IndexCard != nil:
		return d.IndexCard.RiskLevel
	}
	return RiskMedium
}
