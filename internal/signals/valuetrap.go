package signals

import (
	"fmt"
	"strings"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/models"
)

// ValueTrapDetector flags cheap-looking assets whose fundamentals are deteriorating
type ValueTrapDetector struct {
	config common.ValuationConfig
}

// NewValueTrapDetector creates a new value trap detector
func NewValueTrapDetector(config common.ValuationConfig) *ValueTrapDetector {
	return &ValueTrapDetector{config: config}
}

// Detect evaluates the rule set over fundamentals history (oldest first).
// Any triggered rule makes the asset a value trap; reasons are joined.
func (d *ValueTrapDetector) Detect(history []*models.FundamentalsRow) (bool, string) {
	if len(history) == 0 {
		return false, ""
	}
	latest := history[len(history)-1]
	n := d.config.TrapDeclinePeriods

	var reasons []string

	roe := latest.ReturnOnEquity()
	lev := latest.Leverage()
	if roe != nil && lev != nil && *roe < d.config.TrapLowROE && *lev > d.config.TrapHighLeverage {
		reasons = append(reasons, fmt.Sprintf("low ROE %.1f%% with debt/equity %.2f", *roe*100, *lev))
	}

	if eps := epsSeries(history); declining(eps, n) {
		yields := series(history, func(f *models.FundamentalsRow) *float64 { return f.DividendYield })
		switch {
		case latest.DividendYield != nil && *latest.DividendYield > d.config.TrapHighYield:
			reasons = append(reasons, fmt.Sprintf("EPS falling %d periods while dividend yield is %.1f%%", n, *latest.DividendYield*100))
		case rising(yields, n):
			reasons = append(reasons, fmt.Sprintf("EPS falling %d periods while dividend yield rises", n))
		}
	}

	if latest.FreeCashflowTTM != nil && *latest.FreeCashflowTTM < 0 && len(history) > 1 {
		prev := history[len(history)-2]
		if latest.TotalDebt != nil && prev.TotalDebt != nil && *latest.TotalDebt > *prev.TotalDebt {
			reasons = append(reasons, "negative free cash flow funded by rising debt")
		}
	}

	roes := make([]float64, 0, len(history))
	for _, f := range history {
		if r := f.ReturnOnEquity(); r != nil {
			roes = append(roes, *r)
		}
	}
	if declining(roes, n) {
		reasons = append(reasons, fmt.Sprintf("ROE declining %d periods", n))
	}

	return len(reasons) > 0, strings.Join(reasons, "; ")
}

// epsSeries prefers reported EPS, then net income per share, then net income
func epsSeries(history []*models.FundamentalsRow) []float64 {
	if eps := series(history, func(f *models.FundamentalsRow) *float64 { return f.EPSTTM }); len(eps) == len(history) {
		return eps
	}
	perShare := series(history, func(f *models.FundamentalsRow) *float64 {
		if f.NetIncomeTTM == nil || f.SharesOutstanding == nil || *f.SharesOutstanding <= 0 {
			return nil
		}
		return models.Float(*f.NetIncomeTTM / *f.SharesOutstanding)
	})
	if len(perShare) == len(history) {
		return perShare
	}
	return series(history, func(f *models.FundamentalsRow) *float64 { return f.NetIncomeTTM })
}

// series collects the non-nil values of one field, oldest first
func series(history []*models.FundamentalsRow, field func(*models.FundamentalsRow) *float64) []float64 {
	out := make([]float64, 0, len(history))
	for _, f := range history {
		if v := field(f); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// declining reports whether the last n steps of values all fell
func declining(values []float64, n int) bool {
	if n <= 0 || len(values) < n+1 {
		return false
	}
	tail := values[len(values)-n-1:]
	for i := 1; i < len(tail); i++ {
		if tail[i] >= tail[i-1] {
			return false
		}
	}
	return true
}

// rising reports whether the last n steps of values all rose
func rising(values []float64, n int) bool {
	if n <= 0 || len(values) < n+1 {
		return false
	}
	tail := values[len(values)-n-1:]
	for i := 1; i < len(tail); i++ {
		if tail[i] <= tail[i-1] {
			return false
		}
	}
	return true
}
