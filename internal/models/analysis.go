// -----------------------------------------------------------------------
// Analysis results - the blocks composed into a risk card
// -----------------------------------------------------------------------

package models

import "time"

// Block status keys used when a block degrades
const (
	StatusOK                  = "OK"
	StatusInsufficientHistory = "INSUFFICIENT_HISTORY"
	StatusDataUnavailable     = "DATA_UNAVAILABLE"
	StatusNotApplicable       = "NOT_APPLICABLE"
)

// PathRisk grades how violent the price path has been
type PathRisk string

const (
	PathRiskLow  PathRisk = "LOW"
	PathRiskMid  PathRisk = "MID"
	PathRiskHigh PathRisk = "HIGH"
)

// RiskMetrics summarises drawdown, recovery and volatility over the window
type RiskMetrics struct {
	Status      string    `json:"status"`
	BarCount    int       `json:"bar_count"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	LastClose   float64   `json:"last_close"`

	MaxDrawdown    float64   `json:"max_drawdown"`
	MDDPeakDate    time.Time `json:"mdd_peak_date"`
	MDDValleyDate  time.Time `json:"mdd_valley_date"`
	MDDPeakPrice   float64   `json:"mdd_peak_price"`
	MDDValleyPrice float64   `json:"mdd_valley_price"`

	CurrentDrawdown  float64 `json:"current_drawdown"`
	RecoveryProgress float64 `json:"recovery_progress"`
	RecoveredNewHigh bool    `json:"recovered_new_high"`
	RecoveryLabel    string  `json:"recovery_label"`

	Volatility1Y  float64 `json:"volatility_1y"`
	Volatility10Y float64 `json:"volatility_10y"`

	PricePercentile   float64  `json:"price_percentile"`
	PricePercentile5Y *float64 `json:"price_percentile_5y,omitempty"`

	AllTimeHigh     float64   `json:"all_time_high"`
	AllTimeHighDate time.Time `json:"all_time_high_date"`
	HasNewHigh      bool      `json:"has_new_high"`

	PathRisk PathRisk `json:"path_risk"`
}

// Insufficient reports whether downstream consumers should degrade
func (m *RiskMetrics) Insufficient() bool {
	return m == nil || m.Status == StatusInsufficientHistory
}

// ValuationAnchor is the multiple driving the valuation bucket
type ValuationAnchor string

const (
	AnchorPETTM ValuationAnchor = "PE_TTM"
	AnchorPB    ValuationAnchor = "PB"
)

// ValuationStatus is the stable status key of the valuation block
type ValuationStatus string

const (
	ValuationNoPE                ValuationStatus = "NO_PE"
	ValuationNoPB                ValuationStatus = "NO_PB"
	ValuationInsufficientHistory ValuationStatus = "INSUFFICIENT_HISTORY"
	ValuationUndervalued         ValuationStatus = "UNDERVALUED"
	ValuationFair                ValuationStatus = "FAIR"
	ValuationOvervalued          ValuationStatus = "OVERVALUED"
	ValuationExtreme             ValuationStatus = "EXTREME"
)

// ValuationPathType explains where a drawdown came from
type ValuationPathType string

const (
	PathNormal        ValuationPathType = "Normal"
	PathValuationKill ValuationPathType = "Valuation Kill"
	PathEarningsKill  ValuationPathType = "Earnings Kill"
	PathMixed         ValuationPathType = "Mixed"
)

// ValuationPath compares the current (price, PE, EPS) with the historical peak
type ValuationPath struct {
	Type        ValuationPathType `json:"type"`
	PeakDate    time.Time         `json:"peak_date"`
	PeakPrice   float64           `json:"peak_price"`
	PeakPE      float64           `json:"peak_pe"`
	PriceChange float64           `json:"price_change"`
	PEChange    float64           `json:"pe_change"`
	EPSChange   float64           `json:"eps_change"`
}

// ValuationPoint is one chart point of valuation history
type ValuationPoint struct {
	Date  time.Time `json:"date"`
	PETTM *float64  `json:"pe_ttm,omitempty"`
	PB    *float64  `json:"pb,omitempty"`
}

// ValuationBands are the anchor values at the bucket boundaries
type ValuationBands struct {
	P20 float64 `json:"p20"`
	P60 float64 `json:"p60"`
	P80 float64 `json:"p80"`
}

// ValuationResult is the valuation block
type ValuationResult struct {
	Anchor       ValuationAnchor `json:"anchor"`
	StatusKey    ValuationStatus `json:"status_key"`
	Bucket       string          `json:"bucket"`
	Color        string          `json:"color"`
	PETTM        *float64        `json:"pe_ttm,omitempty"`
	PEStatic     *float64        `json:"pe_static,omitempty"`
	PEDisplay    string          `json:"pe_display"`
	PB           *float64        `json:"pb,omitempty"`
	EPSTTM       *float64        `json:"eps_ttm,omitempty"`
	PEPercentile *float64        `json:"pe_percentile,omitempty"`
	PBPercentile *float64        `json:"pb_percentile,omitempty"`
	HistoryCount int             `json:"history_count"`

	IsValueTrap     bool   `json:"is_value_trap"`
	ValueTrapReason string `json:"value_trap_reason,omitempty"`

	Path    *ValuationPath   `json:"path,omitempty"`
	History []ValuationPoint `json:"history,omitempty"`
	Bands   *ValuationBands  `json:"bands,omitempty"`
}

// AnchorPercentile returns the percentile of the anchor multiple
func (v *ValuationResult) AnchorPercentile() *float64 {
	if v.Anchor == AnchorPB {
		return v.PBPercentile
	}
	return v.PEPercentile
}

// FlagValue is the outcome of one quality flag
type FlagValue string

const (
	FlagGood    FlagValue = "GOOD"
	FlagNeutral FlagValue = "NEUTRAL"
	FlagBad     FlagValue = "BAD"
	FlagUnknown FlagValue = "UNKNOWN"
)

// QualityFlag is one of the nine quality flags
type QualityFlag struct {
	Name   string    `json:"name"`
	Group  string    `json:"group"`
	Value  FlagValue `json:"value"`
	Weight float64   `json:"weight"`
	Detail string    `json:"detail,omitempty"`
}

// QualityLevel is the aggregated quality buffer
type QualityLevel string

const (
	QualityStrong   QualityLevel = "STRONG"
	QualityModerate QualityLevel = "MODERATE"
	QualityWeak     QualityLevel = "WEAK"
)

// DividendSafetyLevel grades dividend sustainability
type DividendSafetyLevel string

const (
	DividendStrong  DividendSafetyLevel = "STRONG"
	DividendMedium  DividendSafetyLevel = "MEDIUM"
	DividendWeak    DividendSafetyLevel = "WEAK"
	DividendUnknown DividendSafetyLevel = "UNKNOWN"
)

// DividendSafety is the dividend sub-engine result
type DividendSafety struct {
	Level DividendSafetyLevel `json:"level"`
	Score int                 `json:"score"`
	Cuts  int                 `json:"cuts"`
	Notes []string            `json:"notes,omitempty"`
}

// EarningsPhase is the earnings cycle position E1..E6
type EarningsPhase string

const (
	EarningsGrowth   EarningsPhase = "E1"
	EarningsStable   EarningsPhase = "E2"
	EarningsSlowing  EarningsPhase = "E3"
	EarningsDecline  EarningsPhase = "E4"
	EarningsLoss     EarningsPhase = "E5"
	EarningsRecovery EarningsPhase = "E6"
	EarningsUnknown  EarningsPhase = "UNKNOWN"
)

var earningsLabels = map[EarningsPhase]string{
	EarningsGrowth:   "Growth",
	EarningsStable:   "Stable",
	EarningsSlowing:  "Slowing",
	EarningsDecline:  "Decline",
	EarningsLoss:     "Loss",
	EarningsRecovery: "Recovery",
	EarningsUnknown:  "Unknown",
}

// Label returns the phase name
func (p EarningsPhase) Label() string {
	return earningsLabels[p]
}

// EarningsCycle is the earnings sub-engine result
type EarningsCycle struct {
	Phase     EarningsPhase `json:"phase"`
	Label     string        `json:"label"`
	Slope     float64       `json:"slope"`
	Curvature float64       `json:"curvature"`
	Periods   int           `json:"periods"`
}

// QualityResult is the quality buffer block
type QualityResult struct {
	Status         string         `json:"status"`
	Level          QualityLevel   `json:"level"`
	Score          float64        `json:"score"`
	Coverage       float64        `json:"coverage"`
	Flags          []QualityFlag  `json:"flags"`
	DividendSafety DividendSafety `json:"dividend_safety"`
	EarningsCycle  EarningsCycle  `json:"earnings_cycle"`
	Summary        string         `json:"summary"`
}

// FlagLevel is the severity of a behavior flag
type FlagLevel string

const (
	FlagAlert FlagLevel = "ALERT"
	FlagWarn  FlagLevel = "WARN"
	FlagInfo  FlagLevel = "INFO"
)

// Severity orders flag levels, higher is more severe
func (l FlagLevel) Severity() int {
	switch l {
	case FlagAlert:
		return 3
	case FlagWarn:
		return 2
	case FlagInfo:
		return 1
	}
	return 0
}

// BehaviorFlag is a rule outcome surfaced on the card
type BehaviorFlag struct {
	Level   FlagLevel `json:"level"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Source  string    `json:"source"`
}

// Amplification grades how much the market amplifies individual risk
type Amplification string

const (
	AmplificationLow  Amplification = "LOW"
	AmplificationMid  Amplification = "MID"
	AmplificationHigh Amplification = "HIGH"
)

// RegimeLabel is the market regime inferred by the overlay
type RegimeLabel string

const (
	RegimeHealthyDifferentiation RegimeLabel = "Healthy Differentiation"
	RegimeSystemicCompression    RegimeLabel = "Systemic Compression"
	RegimeSystemicStress         RegimeLabel = "Systemic Stress"
)

// IndividualOverlay is the asset's own block
type IndividualOverlay struct {
	State       DrawdownState `json:"state"`
	PathRisk    PathRisk      `json:"path_risk"`
	PositionPct float64       `json:"position_pct"`
	RSVsSector  *float64      `json:"rs_vs_sector_3m,omitempty"`
}

// SectorOverlay is the sector proxy block
type SectorOverlay struct {
	Available   bool          `json:"available"`
	ProxyID     string        `json:"proxy_id,omitempty"`
	Scheme      string        `json:"scheme,omitempty"`
	SectorCode  string        `json:"sector_code,omitempty"`
	SectorName  string        `json:"sector_name,omitempty"`
	State       DrawdownState `json:"state"`
	PathRisk    PathRisk      `json:"path_risk,omitempty"`
	PositionPct float64       `json:"position_pct"`
	RSVsMarket  *float64      `json:"rs_vs_market_3m,omitempty"`
}

// MarketOverlay is the market index block
type MarketOverlay struct {
	Available     bool          `json:"available"`
	IndexID       string        `json:"index_id,omitempty"`
	State         DrawdownState `json:"state"`
	PathRisk      PathRisk      `json:"path_risk,omitempty"`
	PositionPct   float64       `json:"position_pct"`
	Volatility1Y  float64       `json:"volatility_1y"`
	GrowthProxyID string        `json:"growth_proxy_id,omitempty"`
	ValueProxyID  string        `json:"value_proxy_id,omitempty"`
	GrowthRS      *float64      `json:"growth_vs_market_rs_3m,omitempty"`
	ValueRS       *float64      `json:"value_vs_market_rs_3m,omitempty"`
	Amplification Amplification `json:"amplification"`
}

// OverlayResult is the three-layer overlay block
type OverlayResult struct {
	Individual IndividualOverlay `json:"individual"`
	Sector     SectorOverlay     `json:"sector"`
	Market     MarketOverlay     `json:"market"`
	Regime     RegimeLabel       `json:"regime"`
	Flags      []BehaviorFlag    `json:"flags"`
}
