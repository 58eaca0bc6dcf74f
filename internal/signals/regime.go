package signals

import (
	"fmt"
	"math"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/models"
)

// Overlay flag codes
const (
	CodeStockWeakVsSector    = "STOCK_WEAK_VS_SECTOR"
	CodeStockStrongVsSector  = "STOCK_STRONG_VS_SECTOR"
	CodeSectorWeakVsMarket   = "SECTOR_WEAK_VS_MARKET"
	CodeSectorStrongVsMarket = "SECTOR_STRONG_VS_MARKET"
	CodeMarketCrisis         = "MARKET_CRISIS"
	CodeSystemicStress       = "SYSTEMIC_STRESS"
	CodeSystemicCompression  = "SYSTEMIC_COMPRESSION"
	CodeResilientVsMarket    = "RESILIENT_VS_MARKET"
	CodeSectorWideDrawdown   = "SECTOR_WIDE_DRAWDOWN"
)

// SourceOverlay tags flags raised by the overlay rule set
const SourceOverlay = "overlay"

// RegimeInput is what the regime classifier and overlay rules read
type RegimeInput struct {
	IndividualState  models.DrawdownState
	StockVsSector    *float64
	SectorAvailable  bool
	SectorState      models.DrawdownState
	SectorVsMarket   *float64
	MarketAvailable  bool
	MarketState      models.DrawdownState
	MarketVolatility float64
	MarketPosition   float64
	GrowthRS         *float64
	ValueRS          *float64
}

// RegimeClassifier derives amplification, the market regime and overlay flags
type RegimeClassifier struct {
	config common.OverlayConfig
}

// NewRegimeClassifier creates a new regime classifier
func NewRegimeClassifier(config common.OverlayConfig) *RegimeClassifier {
	return &RegimeClassifier{config: config}
}

// Amplification scores how much the market amplifies individual risk:
//
//	market state >= D3: +2, D1..D2: +1
//	volatility > stress: +2, > elevated: +1
//	position < 0.2 or > 0.9: +1
//
// MID at amplification_mid points, HIGH at amplification_high.
func (c *RegimeClassifier) Amplification(state models.DrawdownState, vol, position float64) (models.Amplification, int) {
	points := 0
	switch {
	case state >= models.StateD3:
		points += 2
	case state >= models.StateD1:
		points++
	}
	switch {
	case vol > c.config.StressVolatility:
		points += 2
	case vol > c.config.ElevatedVolatility:
		points++
	}
	if position < 0.2 || position > 0.9 {
		points++
	}

	switch {
	case points >= c.config.AmplificationHigh:
		return models.AmplificationHigh, points
	case points >= c.config.AmplificationMid:
		return models.AmplificationMid, points
	}
	return models.AmplificationLow, points
}

// Classify labels the market regime
func (c *RegimeClassifier) Classify(in RegimeInput, amp models.Amplification) models.RegimeLabel {
	if !in.MarketAvailable {
		return models.RegimeHealthyDifferentiation
	}
	switch {
	case in.MarketState >= models.StateD3 || amp == models.AmplificationHigh:
		return models.RegimeSystemicStress
	case in.MarketState >= models.StateD1:
		return models.RegimeSystemicCompression
	case amp == models.AmplificationMid && in.GrowthRS != nil && in.ValueRS != nil &&
		math.Abs(*in.GrowthRS-*in.ValueRS) < c.config.CompressionSpread:
		// styles moving together: dispersion has collapsed
		return models.RegimeSystemicCompression
	}
	return models.RegimeHealthyDifferentiation
}

// Flags runs the overlay rule set
func (c *RegimeClassifier) Flags(in RegimeInput, regime models.RegimeLabel) []models.BehaviorFlag {
	var flags []models.BehaviorFlag
	add := func(level models.FlagLevel, code, msg string) {
		flags = append(flags, models.BehaviorFlag{Level: level, Code: code, Message: msg, Source: SourceOverlay})
	}

	if in.StockVsSector != nil {
		switch {
		case *in.StockVsSector < c.config.RSWeak:
			add(models.FlagWarn, CodeStockWeakVsSector, fmt.Sprintf("Stock weak vs sector (RS_3m %+.1f%%)", *in.StockVsSector*100))
		case *in.StockVsSector > c.config.RSStrong:
			add(models.FlagInfo, CodeStockStrongVsSector, fmt.Sprintf("Stock strong vs sector (RS_3m %+.1f%%)", *in.StockVsSector*100))
		}
	}
	if in.SectorVsMarket != nil {
		switch {
		case *in.SectorVsMarket < c.config.RSWeak:
			add(models.FlagWarn, CodeSectorWeakVsMarket, fmt.Sprintf("Sector weak vs market (RS_3m %+.1f%%)", *in.SectorVsMarket*100))
		case *in.SectorVsMarket > c.config.RSStrong:
			add(models.FlagInfo, CodeSectorStrongVsMarket, fmt.Sprintf("Sector strong vs market (RS_3m %+.1f%%)", *in.SectorVsMarket*100))
		}
	}

	if in.MarketAvailable && in.MarketState >= models.StateD4 {
		add(models.FlagAlert, CodeMarketCrisis, fmt.Sprintf("Market in crisis (%s), reduce sizing", in.MarketState))
	}
	switch regime {
	case models.RegimeSystemicStress:
		add(models.FlagAlert, CodeSystemicStress, "Systemic stress: correlations rise, diversification weakens")
	case models.RegimeSystemicCompression:
		add(models.FlagWarn, CodeSystemicCompression, "Systemic compression: market-wide pullback drives prices")
	}

	if in.MarketAvailable && in.MarketState >= models.StateD3 && in.IndividualState <= models.StateD1 {
		add(models.FlagInfo, CodeResilientVsMarket, "Holding up while the market is in drawdown")
	}
	if in.SectorAvailable && in.SectorState >= models.StateD3 && in.IndividualState >= models.StateD3 {
		add(models.FlagWarn, CodeSectorWideDrawdown, "Drawdown is sector-wide, not company-specific")
	}
	return flags
}
