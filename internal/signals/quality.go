package signals

import (
	"fmt"
	"strings"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/models"
)

// Quality flag names
const (
	FlagRevenueStability     = "revenue_stability"
	FlagCyclicality          = "cyclicality"
	FlagMoatProxy            = "moat_proxy"
	FlagBalanceSheet         = "balance_sheet"
	FlagCashflowCoverage     = "cashflow_coverage"
	FlagLeverageRisk         = "leverage_risk"
	FlagPayoutConsistency    = "payout_consistency"
	FlagDilutionRisk         = "dilution_risk"
	FlagRegulatoryDependence = "regulatory_dependence"
)

// Flag groups
const (
	GroupBusiness   = "business"
	GroupFinancial  = "financial"
	GroupGovernance = "governance"
)

// QualityInput is the fundamentals history (oldest first) plus context
type QualityInput struct {
	History          []*models.FundamentalsRow
	Classification   *models.Classification
	RecoveryProgress float64
}

// QualityComputer assesses the fundamentals buffer of a business
type QualityComputer struct {
	config   common.QualityConfig
	dividend *DividendSafetyComputer
	earnings *EarningsCycleClassifier
}

// NewQualityComputer creates a new quality computer
func NewQualityComputer(config common.QualityConfig) *QualityComputer {
	return &QualityComputer{
		config:   config,
		dividend: NewDividendSafetyComputer(),
		earnings: NewEarningsCycleClassifier(),
	}
}

// Compute evaluates the nine flags and aggregates them. Missing inputs make a
// flag UNKNOWN, which scores like BAD so missing data never upgrades a level.
func (c *QualityComputer) Compute(in QualityInput) models.QualityResult {
	history := in.History
	if n := c.config.HistoryPeriods; n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}

	res := models.QualityResult{Status: models.StatusOK}
	if len(history) == 0 {
		res.Status = models.StatusDataUnavailable
	}

	var latest *models.FundamentalsRow
	if len(history) > 0 {
		latest = history[len(history)-1]
	}

	res.Flags = []models.QualityFlag{
		c.flag(FlagRevenueStability, GroupBusiness, revenueStability(history)),
		c.flag(FlagCyclicality, GroupBusiness, c.cyclicality(history, in.Classification)),
		c.flag(FlagMoatProxy, GroupBusiness, moatProxy(latest)),
		c.flag(FlagBalanceSheet, GroupFinancial, balanceSheet(latest)),
		c.flag(FlagCashflowCoverage, GroupFinancial, cashflowCoverage(latest)),
		c.flag(FlagLeverageRisk, GroupFinancial, leverageRisk(latest)),
		c.flag(FlagPayoutConsistency, GroupGovernance, payoutConsistency(history)),
		c.flag(FlagDilutionRisk, GroupGovernance, dilutionRisk(history)),
		c.flag(FlagRegulatoryDependence, GroupGovernance, c.regulatoryDependence(in.Classification)),
	}

	var weighted, total float64
	known := 0
	counts := make(map[models.FlagValue]int)
	for _, f := range res.Flags {
		weighted += f.Weight * flagScore(f.Value)
		total += f.Weight
		counts[f.Value]++
		if f.Value != models.FlagUnknown {
			known++
		}
	}
	if total > 0 {
		res.Score = round(weighted/total, 3)
	}
	res.Coverage = round(float64(known)/float64(len(res.Flags)), 3)

	switch {
	case res.Score >= c.config.StrongMin:
		res.Level = models.QualityStrong
	case res.Score >= c.config.ModerateMin:
		res.Level = models.QualityModerate
	default:
		res.Level = models.QualityWeak
	}

	res.DividendSafety = c.dividend.Compute(history, in.RecoveryProgress)
	res.EarningsCycle = c.earnings.Classify(epsSeries(history))
	res.Summary = fmt.Sprintf("%s buffer: %d good, %d neutral, %d bad, %d unknown",
		res.Level, counts[models.FlagGood], counts[models.FlagNeutral], counts[models.FlagBad], counts[models.FlagUnknown])
	return res
}

type flagResult struct {
	value  models.FlagValue
	detail string
}

func (c *QualityComputer) flag(name, group string, r flagResult) models.QualityFlag {
	weight, ok := c.config.Weights[name]
	if !ok {
		weight = 1
	}
	return models.QualityFlag{Name: name, Group: group, Value: r.value, Weight: weight, Detail: r.detail}
}

func flagScore(v models.FlagValue) float64 {
	switch v {
	case models.FlagGood:
		return 1
	case models.FlagNeutral:
		return 0
	}
	return -1
}

func unknown(detail string) flagResult {
	return flagResult{value: models.FlagUnknown, detail: detail}
}

// revenueStability looks at period-over-period revenue changes
func revenueStability(history []*models.FundamentalsRow) flagResult {
	revenue := series(history, func(f *models.FundamentalsRow) *float64 { return f.RevenueTTM })
	if len(revenue) < 3 {
		return unknown("fewer than 3 revenue periods")
	}
	changes := changesOf(revenue)
	drops := 0
	for _, ch := range changes {
		if ch < -0.10 {
			drops++
		}
	}
	sd := stddev(changes)
	switch {
	case drops == 0 && sd < 0.15:
		return flagResult{models.FlagGood, fmt.Sprintf("no revenue drop >10%%, change sd %.2f", sd)}
	case drops >= 2:
		return flagResult{models.FlagBad, fmt.Sprintf("%d revenue drops >10%%", drops)}
	}
	return flagResult{models.FlagNeutral, fmt.Sprintf("%d revenue drop, change sd %.2f", drops, sd)}
}

func (c *QualityComputer) cyclicality(history []*models.FundamentalsRow, cls *models.Classification) flagResult {
	if cls != nil && matchesAny(cls, c.config.CyclicalSectors) {
		return flagResult{models.FlagBad, "cyclical sector " + cls.SectorName}
	}
	revenue := series(history, func(f *models.FundamentalsRow) *float64 { return f.RevenueTTM })
	if len(revenue) >= 3 && stddev(changesOf(revenue)) > 0.25 {
		return flagResult{models.FlagBad, "revenue swings exceed 25%"}
	}
	if cls != nil {
		return flagResult{models.FlagGood, "non-cyclical sector " + cls.SectorName}
	}
	if len(revenue) >= 3 {
		return flagResult{models.FlagNeutral, "sector unknown, revenue steady"}
	}
	return unknown("no classification or revenue history")
}

// moatProxy uses margin and return on equity as a pricing-power proxy
func moatProxy(f *models.FundamentalsRow) flagResult {
	if f == nil {
		return unknown("no fundamentals")
	}
	margin := f.NetMargin()
	roe := f.ReturnOnEquity()
	if margin == nil && roe == nil {
		return unknown("no margin or ROE")
	}
	switch {
	case margin != nil && roe != nil && *margin >= 0.15 && *roe >= 0.15:
		return flagResult{models.FlagGood, fmt.Sprintf("net margin %.0f%%, ROE %.0f%%", *margin*100, *roe*100)}
	case (margin != nil && *margin < 0.05) || (roe != nil && *roe < 0.08):
		return flagResult{models.FlagBad, "thin margin or low ROE"}
	}
	return flagResult{models.FlagNeutral, "average profitability"}
}

func balanceSheet(f *models.FundamentalsRow) flagResult {
	if f == nil {
		return unknown("no fundamentals")
	}
	if f.NetDebt != nil && *f.NetDebt <= 0 {
		return flagResult{models.FlagGood, "net cash"}
	}
	var liabRatio *float64
	if f.TotalAssets != nil && f.TotalLiabilities != nil && *f.TotalAssets > 0 {
		liabRatio = models.Float(*f.TotalLiabilities / *f.TotalAssets)
	}
	if f.CurrentRatio == nil && liabRatio == nil {
		return unknown("no liquidity or liability data")
	}
	switch {
	case (f.CurrentRatio != nil && *f.CurrentRatio < 1) || (liabRatio != nil && *liabRatio > 0.8):
		return flagResult{models.FlagBad, "weak liquidity or high liabilities"}
	case f.CurrentRatio != nil && *f.CurrentRatio >= 1.5 && (liabRatio == nil || *liabRatio < 0.5):
		return flagResult{models.FlagGood, fmt.Sprintf("current ratio %.2f", *f.CurrentRatio)}
	}
	return flagResult{models.FlagNeutral, "adequate balance sheet"}
}

func cashflowCoverage(f *models.FundamentalsRow) flagResult {
	if f == nil {
		return unknown("no fundamentals")
	}
	if f.OperatingCashflowTTM == nil && f.FreeCashflowTTM == nil && f.InterestCoverage == nil {
		return unknown("no cash flow data")
	}
	switch {
	case (f.OperatingCashflowTTM != nil && *f.OperatingCashflowTTM < 0) ||
		(f.FreeCashflowTTM != nil && *f.FreeCashflowTTM < 0) ||
		(f.InterestCoverage != nil && *f.InterestCoverage < 2):
		return flagResult{models.FlagBad, "negative cash flow or thin interest cover"}
	case f.OperatingCashflowTTM != nil && f.NetIncomeTTM != nil && *f.NetIncomeTTM > 0 &&
		*f.OperatingCashflowTTM >= *f.NetIncomeTTM && (f.FreeCashflowTTM == nil || *f.FreeCashflowTTM > 0):
		return flagResult{models.FlagGood, "operating cash flow covers earnings"}
	}
	return flagResult{models.FlagNeutral, "partial cash coverage"}
}

func leverageRisk(f *models.FundamentalsRow) flagResult {
	if f == nil {
		return unknown("no fundamentals")
	}
	lev := f.Leverage()
	if lev == nil {
		return unknown("no debt/equity")
	}
	switch {
	case *lev < 0.5:
		return flagResult{models.FlagGood, fmt.Sprintf("debt/equity %.2f", *lev)}
	case *lev > 1.5:
		return flagResult{models.FlagBad, fmt.Sprintf("debt/equity %.2f", *lev)}
	}
	return flagResult{models.FlagNeutral, fmt.Sprintf("debt/equity %.2f", *lev)}
}

func payoutConsistency(history []*models.FundamentalsRow) flagResult {
	if len(history) == 0 {
		return unknown("no fundamentals")
	}
	latest := history[len(history)-1]
	dps := series(history, func(f *models.FundamentalsRow) *float64 { return f.DPS })
	if len(dps) == 0 && latest.PayoutRatio == nil {
		return unknown("no payout data")
	}
	if latest.PayoutRatio != nil && *latest.PayoutRatio > 1 {
		return flagResult{models.FlagBad, fmt.Sprintf("payout ratio %.0f%%", *latest.PayoutRatio*100)}
	}
	if len(dps) == 0 || maxOf(dps) <= 0 {
		return flagResult{models.FlagNeutral, "no dividend paid"}
	}
	switch cuts := dividendCuts(dps); {
	case cuts == 0:
		return flagResult{models.FlagGood, "no dividend cuts"}
	case cuts >= 2:
		return flagResult{models.FlagBad, fmt.Sprintf("%d dividend cuts", cuts)}
	}
	return flagResult{models.FlagNeutral, "one dividend cut"}
}

func dilutionRisk(history []*models.FundamentalsRow) flagResult {
	shares := series(history, func(f *models.FundamentalsRow) *float64 { return f.SharesOutstanding })
	if len(shares) >= 2 && shares[0] > 0 {
		change := shares[len(shares)-1]/shares[0] - 1
		switch {
		case change > 0.10:
			return flagResult{models.FlagBad, fmt.Sprintf("share count up %.0f%%", change*100)}
		case change <= 0.02:
			return flagResult{models.FlagGood, fmt.Sprintf("share count change %.1f%%", change*100)}
		}
		return flagResult{models.FlagNeutral, fmt.Sprintf("share count up %.1f%%", change*100)}
	}
	if len(history) > 0 {
		if b := history[len(history)-1].BuybackRatio; b != nil && *b > 0 {
			return flagResult{models.FlagGood, "active buybacks"}
		}
	}
	return unknown("no share count history")
}

func (c *QualityComputer) regulatoryDependence(cls *models.Classification) flagResult {
	if cls == nil {
		return unknown("no classification")
	}
	if matchesAny(cls, c.config.RegulatedSectors) {
		return flagResult{models.FlagNeutral, "regulated sector " + cls.SectorName}
	}
	return flagResult{models.FlagGood, "no material regulatory dependence"}
}

func matchesAny(cls *models.Classification, names []string) bool {
	fields := strings.ToLower(cls.SectorName + "|" + cls.SectorCode + "|" + cls.IndustryName)
	for _, n := range names {
		if n != "" && strings.Contains(fields, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func changesOf(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			out = append(out, pctChange(values[i-1], values[i]))
		}
	}
	return out
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// dividendCuts counts period-over-period DPS drops of more than 5%
func dividendCuts(dps []float64) int {
	cuts := 0
	for i := 1; i < len(dps); i++ {
		if dps[i-1] > 0 && dps[i] < dps[i-1]*0.95 {
			cuts++
		}
	}
	return cuts
}
