package signals

import (
	"fmt"
	"math"
	"strings"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/models"
)

// maxHistoryPoints bounds the chart series carried on the valuation block
const maxHistoryPoints = 520

// ValuationInput is everything the valuation engine reads for one asset.
// Bars are the risk window ending at the as-of date; History is oldest first.
type ValuationInput struct {
	Bars           []models.PriceBar
	Fundamentals   *models.FundamentalsRow
	History        []*models.FundamentalsRow
	Classification *models.Classification
}

// ValuationComputer places the current multiple within the asset's own history
type ValuationComputer struct {
	config common.ValuationConfig
	trap   *ValueTrapDetector
}

// NewValuationComputer creates a new valuation computer
func NewValuationComputer(config common.ValuationConfig) *ValuationComputer {
	return &ValuationComputer{
		config: config,
		trap:   NewValueTrapDetector(config),
	}
}

// Anchor picks PB for banks and insurers, PE TTM otherwise
func (c *ValuationComputer) Anchor(cls *models.Classification) models.ValuationAnchor {
	if cls == nil {
		return models.AnchorPETTM
	}
	fields := strings.ToLower(strings.Join([]string{cls.SectorCode, cls.SectorName, cls.IndustryCode, cls.IndustryName}, "|"))
	for _, kw := range c.config.PBKeywords {
		if kw != "" && strings.Contains(fields, strings.ToLower(kw)) {
			return models.AnchorPB
		}
	}
	return models.AnchorPETTM
}

// Compute builds the valuation block
func (c *ValuationComputer) Compute(in ValuationInput) models.ValuationResult {
	res := models.ValuationResult{Anchor: c.Anchor(in.Classification)}

	var peSeries, pbSeries []float64
	for _, b := range in.Bars {
		if b.PETTM != nil && *b.PETTM > 0 {
			peSeries = append(peSeries, *b.PETTM)
		}
		if b.PB != nil && *b.PB > 0 {
			pbSeries = append(pbSeries, *b.PB)
		}
	}
	res.History = valuationHistory(in.Bars)

	if len(in.Bars) > 0 {
		last := in.Bars[len(in.Bars)-1]
		res.PETTM = currentPETTM(last, in.Fundamentals)
		res.PEStatic = last.PE
		res.PB = currentPB(last, in.Fundamentals)
		res.EPSTTM = currentEPS(last, in.Fundamentals)
	}
	res.PEDisplay = c.peDisplay(res.PETTM, res.PEStatic)

	if res.PETTM != nil && *res.PETTM > 0 && len(peSeries) > 0 {
		p := round(percentileRank(*res.PETTM, peSeries)*100, 1)
		res.PEPercentile = &p
	}
	if res.PB != nil && *res.PB > 0 && len(pbSeries) > 0 {
		p := round(percentileRank(*res.PB, pbSeries)*100, 1)
		res.PBPercentile = &p
	}

	series := peSeries
	if res.Anchor == models.AnchorPB {
		series = pbSeries
	}
	res.HistoryCount = len(series)

	switch {
	case res.PETTM == nil || *res.PETTM <= 0:
		res.StatusKey = models.ValuationNoPE
		res.PEPercentile = nil
	case res.Anchor == models.AnchorPB && (res.PB == nil || *res.PB <= 0):
		res.StatusKey = models.ValuationNoPB
	case len(series) < c.config.MinHistory:
		res.StatusKey = models.ValuationInsufficientHistory
	default:
		res.StatusKey = c.bucket(*res.AnchorPercentile())
		res.Bands = &models.ValuationBands{
			P20: round(quantile(series, c.config.UndervaluedMax/100), 2),
			P60: round(quantile(series, c.config.FairMax/100), 2),
			P80: round(quantile(series, c.config.OvervaluedMax/100), 2),
		}
	}
	res.Bucket, res.Color = bucketDisplay(res.StatusKey)

	res.Path = c.path(in.Bars)
	res.IsValueTrap, res.ValueTrapReason = c.trap.Detect(in.History)
	return res
}

func (c *ValuationComputer) bucket(percentile float64) models.ValuationStatus {
	switch {
	case percentile <= c.config.UndervaluedMax:
		return models.ValuationUndervalued
	case percentile <= c.config.FairMax:
		return models.ValuationFair
	case percentile <= c.config.OvervaluedMax:
		return models.ValuationOvervalued
	default:
		return models.ValuationExtreme
	}
}

func bucketDisplay(status models.ValuationStatus) (string, string) {
	switch status {
	case models.ValuationUndervalued:
		return "Low", "green"
	case models.ValuationFair:
		return "Mid", "gray"
	case models.ValuationOvervalued:
		return "High", "orange"
	case models.ValuationExtreme:
		return "Extreme", "red"
	}
	return "N/A", "neutral"
}

// peDisplay shows static PE in parentheses only when it differs materially from TTM
func (c *ValuationComputer) peDisplay(ttm, static *float64) string {
	if ttm == nil || *ttm <= 0 {
		return "N/A"
	}
	if static != nil && *static > 0 && math.Abs(*static / *ttm - 1) > c.config.StaticPEDivergence {
		return fmt.Sprintf("%.1f (%.1f)", *ttm, *static)
	}
	return fmt.Sprintf("%.1f", *ttm)
}

// path compares today's (price, PE, EPS) with the window's price peak
func (c *ValuationComputer) path(bars []models.PriceBar) *models.ValuationPath {
	if len(bars) < 2 {
		return nil
	}
	last := bars[len(bars)-1]
	peak := bars[0]
	for _, b := range bars {
		if b.Close > peak.Close {
			peak = b
		}
	}

	p := &models.ValuationPath{
		Type:        models.PathNormal,
		PeakDate:    peak.TradeDate,
		PeakPrice:   peak.Close,
		PriceChange: round(pctChange(peak.Close, last.Close), 4),
	}
	if peak.PETTM != nil {
		p.PeakPE = *peak.PETTM
	}
	if p.PriceChange > -0.10 {
		return p
	}
	if peak.PETTM == nil || *peak.PETTM <= 0 || last.PETTM == nil || *last.PETTM <= 0 {
		return p
	}

	// price = PE x EPS, so the drawdown splits into a multiple and an earnings leg
	peakEPS := peak.Close / *peak.PETTM
	lastEPS := last.Close / *last.PETTM
	p.PEChange = round(pctChange(*peak.PETTM, *last.PETTM), 4)
	p.EPSChange = round(pctChange(peakEPS, lastEPS), 4)

	switch {
	case p.PEChange < p.EPSChange-c.config.KillMargin:
		p.Type = models.PathValuationKill
	case p.EPSChange < p.PEChange-c.config.KillMargin:
		p.Type = models.PathEarningsKill
	default:
		p.Type = models.PathMixed
	}
	return p
}

func currentPETTM(last models.PriceBar, f *models.FundamentalsRow) *float64 {
	if last.PETTM != nil {
		return last.PETTM
	}
	if f == nil {
		return nil
	}
	if f.EPSTTM != nil && *f.EPSTTM != 0 {
		return models.Float(round(last.Close / *f.EPSTTM, 2))
	}
	if f.NetIncomeTTM != nil && f.SharesOutstanding != nil && *f.NetIncomeTTM != 0 {
		return models.Float(round(last.Close**f.SharesOutstanding / *f.NetIncomeTTM, 2))
	}
	return nil
}

func currentPB(last models.PriceBar, f *models.FundamentalsRow) *float64 {
	if last.PB != nil {
		return last.PB
	}
	if f == nil || f.SharesOutstanding == nil || *f.SharesOutstanding <= 0 {
		return nil
	}
	eq := f.Equity()
	if eq == nil || *eq <= 0 {
		return nil
	}
	return models.Float(round(last.Close/(*eq / *f.SharesOutstanding), 2))
}

func currentEPS(last models.PriceBar, f *models.FundamentalsRow) *float64 {
	if last.EPS != nil {
		return last.EPS
	}
	if f != nil && f.EPSTTM != nil {
		return f.EPSTTM
	}
	if last.PETTM != nil && *last.PETTM != 0 {
		return models.Float(round(last.Close / *last.PETTM, 4))
	}
	return nil
}

// valuationHistory samples bars carrying a multiple into at most maxHistoryPoints points
func valuationHistory(bars []models.PriceBar) []models.ValuationPoint {
	var points []models.ValuationPoint
	for _, b := range bars {
		if b.PETTM == nil && b.PB == nil {
			continue
		}
		points = append(points, models.ValuationPoint{Date: b.TradeDate, PETTM: b.PETTM, PB: b.PB})
	}
	if len(points) <= maxHistoryPoints {
		return points
	}

	step := int(math.Ceil(float64(len(points)) / maxHistoryPoints))
	sampled := make([]models.ValuationPoint, 0, maxHistoryPoints+1)
	for i := 0; i < len(points); i += step {
		sampled = append(sampled, points[i])
	}
	if last := points[len(points)-1]; !sampled[len(sampled)-1].Date.Equal(last.Date) {
		sampled = append(sampled, last)
	}
	return sampled
}
