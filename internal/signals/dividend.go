package signals

import (
	"fmt"

	"github.com/ternarybob/vera/internal/models"
)

// DividendSafetyComputer grades whether a dividend is sustainable
type DividendSafetyComputer struct{}

// NewDividendSafetyComputer creates a new dividend safety computer
func NewDividendSafetyComputer() *DividendSafetyComputer {
	return &DividendSafetyComputer{}
}

// Compute scores payout cover, DPS stability over 5 years, cuts over 10 years
// and price recovery. An asset without dividend data is UNKNOWN.
func (c *DividendSafetyComputer) Compute(history []*models.FundamentalsRow, recoveryProgress float64) models.DividendSafety {
	if len(history) == 0 {
		return models.DividendSafety{Level: models.DividendUnknown, Notes: []string{"no fundamentals"}}
	}
	latest := history[len(history)-1]

	dps10 := series(within(history, 10), func(f *models.FundamentalsRow) *float64 { return f.DPS })
	dps5 := series(within(history, 5), func(f *models.FundamentalsRow) *float64 { return f.DPS })
	payout := latest.PayoutRatio

	paysDividend := (len(dps10) > 0 && maxOf(dps10) > 0) ||
		(payout != nil && *payout > 0) ||
		(latest.DividendYield != nil && *latest.DividendYield > 0)
	if !paysDividend {
		return models.DividendSafety{Level: models.DividendUnknown, Notes: []string{"no dividend history"}}
	}

	res := models.DividendSafety{}

	if payout != nil {
		switch {
		case *payout < 0.6:
			res.Score += 2
			res.Notes = append(res.Notes, fmt.Sprintf("payout %.0f%% well covered", *payout*100))
		case *payout < 0.9:
			res.Score++
			res.Notes = append(res.Notes, fmt.Sprintf("payout %.0f%% covered", *payout*100))
		case *payout > 1:
			res.Score--
			res.Notes = append(res.Notes, fmt.Sprintf("payout %.0f%% exceeds earnings", *payout*100))
		default:
			res.Notes = append(res.Notes, fmt.Sprintf("payout %.0f%% stretched", *payout*100))
		}
	}

	if len(dps5) >= 2 {
		if mean := avg(dps5); mean > 0 {
			cv := stddev(dps5) / mean
			if cv < 0.15 {
				res.Score++
				res.Notes = append(res.Notes, "stable DPS over 5y")
			} else {
				res.Notes = append(res.Notes, fmt.Sprintf("DPS variation %.0f%% over 5y", cv*100))
			}
		}
	}

	if len(dps10) >= 2 {
		res.Cuts = dividendCuts(dps10)
		switch res.Cuts {
		case 0:
			res.Score += 2
			res.Notes = append(res.Notes, "no cuts in 10y")
		case 1:
			res.Score++
			res.Notes = append(res.Notes, "one cut in 10y")
		default:
			res.Notes = append(res.Notes, fmt.Sprintf("%d cuts in 10y", res.Cuts))
		}
	}

	if recoveryProgress >= 0.5 {
		res.Score++
		res.Notes = append(res.Notes, fmt.Sprintf("price recovered %.0f%%", recoveryProgress*100))
	}

	switch {
	case res.Score >= 5:
		res.Level = models.DividendStrong
	case res.Score >= 3:
		res.Level = models.DividendMedium
	default:
		res.Level = models.DividendWeak
	}
	return res
}

// within returns the rows reported in the last n years of the history
func within(history []*models.FundamentalsRow, years int) []*models.FundamentalsRow {
	if len(history) == 0 {
		return nil
	}
	from := history[len(history)-1].ReportDate.AddDate(-years, 0, 0)
	for i, f := range history {
		if f.ReportDate.After(from) {
			return history[i:]
		}
	}
	return nil
}
