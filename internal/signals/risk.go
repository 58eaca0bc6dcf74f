package signals

import (
	"fmt"
	"time"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/models"
)

// RiskComputer computes drawdown, recovery, volatility and path risk over
// the lookback window ending at the as-of date
type RiskComputer struct {
	config common.RiskConfig
}

// NewRiskComputer creates a new risk computer
func NewRiskComputer(config common.RiskConfig) *RiskComputer {
	return &RiskComputer{config: config}
}

// Window returns the bars inside the lookback window ending at asOf
func (c *RiskComputer) Window(bars []models.PriceBar, asOf time.Time) []models.PriceBar {
	bars = upTo(bars, asOf)
	if len(bars) == 0 {
		return bars
	}
	end := bars[len(bars)-1].TradeDate
	return since(bars, end.AddDate(-c.config.WindowYears, 0, 0))
}

// Compute calculates risk metrics. Bars must be ascending; only bars on or
// before asOf are used.
func (c *RiskComputer) Compute(bars []models.PriceBar, asOf time.Time) models.RiskMetrics {
	window := c.Window(bars, asOf)

	m := models.RiskMetrics{
		Status:   models.StatusOK,
		BarCount: len(window),
	}
	if len(window) < c.config.MinBars {
		m.Status = models.StatusInsufficientHistory
	}
	if len(window) == 0 {
		m.PathRisk = models.PathRiskMid
		return m
	}

	last := window[len(window)-1]
	m.WindowStart = window[0].TradeDate
	m.WindowEnd = last.TradeDate
	m.LastClose = last.Close

	// Running peak and the deepest peak-to-valley episode
	peak := window[0]
	m.MDDPeakDate, m.MDDValleyDate = peak.TradeDate, peak.TradeDate
	m.MDDPeakPrice, m.MDDValleyPrice = peak.Close, peak.Close
	for _, b := range window {
		if b.Close >= peak.Close {
			peak = b
		}
		if peak.Close <= 0 {
			continue
		}
		dd := b.Close/peak.Close - 1
		if dd < m.MaxDrawdown {
			m.MaxDrawdown = dd
			m.MDDPeakDate = peak.TradeDate
			m.MDDPeakPrice = peak.Close
			m.MDDValleyDate = b.TradeDate
			m.MDDValleyPrice = b.Close
		}
	}

	m.AllTimeHigh = peak.Close
	m.AllTimeHighDate = peak.TradeDate
	if peak.Close > 0 {
		m.CurrentDrawdown = last.Close/peak.Close - 1
	}
	m.HasNewHigh = last.Close >= peak.Close

	m.RecoveryProgress, m.RecoveredNewHigh = recovery(last.Close, m.MDDPeakPrice, m.MDDValleyPrice)
	if m.RecoveredNewHigh {
		m.RecoveryLabel = "100%+"
	} else {
		m.RecoveryLabel = fmt.Sprintf("%.0f%%", m.RecoveryProgress*100)
	}

	prices := closes(window)
	year := prices
	if n := c.config.TradingDaysYear + 1; len(year) > n {
		year = year[len(year)-n:]
	}
	m.Volatility1Y = annualisedVolatility(year, c.config.TradingDaysYear)
	m.Volatility10Y = annualisedVolatility(prices, c.config.TradingDaysYear)

	m.PricePercentile = percentileRank(last.Close, prices)
	if five := since(window, last.TradeDate.AddDate(-5, 0, 0)); len(five) > 1 {
		p := percentileRank(last.Close, closes(five))
		m.PricePercentile5Y = &p
	}

	m.PathRisk = c.PathRisk(m.Volatility1Y, -m.CurrentDrawdown)
	return m
}

// PathRisk grades volatility and current drawdown depth (positive fraction)
func (c *RiskComputer) PathRisk(vol1y, depth float64) models.PathRisk {
	switch {
	case vol1y > c.config.HighVolatility || depth > c.config.HighDrawdown:
		return models.PathRiskHigh
	case vol1y < c.config.LowVolatility && depth < c.config.LowDrawdown:
		return models.PathRiskLow
	default:
		return models.PathRiskMid
	}
}

// recovery returns (close - valley) / (peak - valley) clamped to [0, 1] and
// whether close has passed the peak. No drawdown counts as fully recovered.
func recovery(close, peak, valley float64) (float64, bool) {
	if peak <= valley {
		return 1, close >= peak
	}
	if close > peak {
		return 1, true
	}
	return clamp((close-valley)/(peak-valley), 0, 1), false
}
