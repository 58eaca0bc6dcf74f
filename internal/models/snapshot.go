package models

import "time"

// AnalysisSnapshot is the immutable parent row of a persisted analysis
type AnalysisSnapshot struct {
	SnapshotID      string    `json:"snapshot_id"`
	AssetID         string    `json:"asset_id"`
	AsOfDate        time.Time `json:"as_of_date"`
	CreatedAt       time.Time `json:"created_at"`
	RiskLevel       RiskLevel `json:"risk_level"`
	ValuationAnchor string    `json:"valuation_anchor,omitempty"`
	ValuationStatus string    `json:"valuation_status,omitempty"`
	IsValueTrap     bool      `json:"is_value_trap"`
	RiskCardJSON    string    `json:"risk_card_json"`
	RiskProfile     string    `json:"risk_profile"`
}

// MetricDetail is one numeric or textual metric of a snapshot
type MetricDetail struct {
	MetricKey string   `json:"metric_key"`
	Value     *float64 `json:"value,omitempty"`
	TextValue string   `json:"text_value,omitempty"`
	Status    string   `json:"status"`
}

// OverlaySnapshot is the risk_overlay_snapshot child row
type OverlaySnapshot struct {
	IndDDState        string   `json:"ind_dd_state"`
	IndPathRisk       string   `json:"ind_path_risk"`
	IndPositionPct    float64  `json:"ind_position_pct"`
	StockVsSectorRS   *float64 `json:"stock_vs_sector_rs_3m,omitempty"`
	SectorProxyID     string   `json:"sector_proxy_id"`
	SectorDDState     string   `json:"sector_dd_state"`
	SectorVsMarketRS  *float64 `json:"sector_vs_market_rs_3m,omitempty"`
	MarketIndexID     string   `json:"market_index_id"`
	MarketDDState     string   `json:"market_dd_state"`
	MarketPositionPct float64  `json:"market_position_pct"`
	GrowthVsMarketRS  *float64 `json:"growth_vs_market_rs_3m,omitempty"`
	ValueVsMarketRS   *float64 `json:"value_vs_market_rs_3m,omitempty"`
	Amplification     string   `json:"amplification"`
	RegimeLabel       string   `json:"regime_label"`
}

// QualitySnapshot is the quality_snapshot child row
type QualitySnapshot struct {
	QualityLevel   string  `json:"quality_level"`
	QualityScore   float64 `json:"quality_score"`
	FlagsJSON      string  `json:"flags_json"`
	DividendSafety string  `json:"dividend_safety"`
	EarningsPhase  string  `json:"earnings_phase"`
}

// MarketRiskSnapshot is the market_risk_snapshot child row (index mode)
type MarketRiskSnapshot struct {
	IndexRole   string  `json:"index_role"`
	DDState     string  `json:"dd_state"`
	PathRisk    string  `json:"path_risk"`
	PositionPct float64 `json:"position_pct"`
	Conclusion  string  `json:"conclusion"`
}

// SnapshotRecord is a parent row with all of its children, written and read as a unit
type SnapshotRecord struct {
	Snapshot      AnalysisSnapshot    `json:"snapshot"`
	Metrics       []MetricDetail      `json:"metrics"`
	Overlay       *OverlaySnapshot    `json:"overlay,omitempty"`
	Quality       *QualitySnapshot    `json:"quality,omitempty"`
	BehaviorFlags []BehaviorFlag      `json:"behavior_flags"`
	MarketRisk    *MarketRiskSnapshot `json:"market_risk,omitempty"`
}
