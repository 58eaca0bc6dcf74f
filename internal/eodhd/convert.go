package eodhd

import (
	"fmt"
	"math"
	"time"

	"github.com/ternarybob/vera/internal/models"
)

// Source is the provenance tag written on fetched rows
const Source = "eodhd"

// PriceRows converts bars into raw rows for symbol. Bars without a positive
// close are dropped. When adjusted is set, OHLC are scaled by the
// adjusted/close ratio of each bar.
func PriceRows(symbol string, bars EODResponse, adjusted bool) []models.RawPriceRow {
	rows := make([]models.RawPriceRow, 0, len(bars))
	for i, b := range bars {
		if b.Date.IsZero() || b.Close <= 0 {
			continue
		}
		factor := 1.0
		if adjusted && b.AdjustedClose > 0 {
			factor = b.AdjustedClose / b.Close
		}
		rows = append(rows, models.RawPriceRow{
			RawSymbol: symbol,
			TradeDate: b.Date,
			Open:      positive(b.Open * factor),
			High:      positive(b.High * factor),
			Low:       positive(b.Low * factor),
			Close:     b.Close * factor,
			Volume:    math.Max(b.Volume, 0),
			Source:    Source,
			Line:      i + 1,
		})
	}
	return rows
}

func positive(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return models.Float(v)
}

// Statement fields read from the quarterly statements
const (
	fieldTotalAssets        = "totalAssets"
	fieldTotalLiabilities   = "totalLiab"
	fieldTotalDebt          = "shortLongTermDebtTotal"
	fieldCash               = "cash"
	fieldNetDebt            = "netDebt"
	fieldEquity             = "totalStockholderEquity"
	fieldCurrentAssets      = "totalCurrentAssets"
	fieldCurrentLiabilities = "totalCurrentLiabilities"
	fieldShares             = "commonStockSharesOutstanding"
	fieldRevenue            = "totalRevenue"
	fieldNetIncome          = "netIncome"
	fieldEBIT               = "ebit"
	fieldInterestExpense    = "interestExpense"
	fieldOperatingCashflow  = "totalCashFromOperatingActivities"
	fieldFreeCashflow       = "freeCashFlow"
	fieldBuyback            = "salePurchaseOfStock"
	fieldDividendsPaid      = "dividendsPaid"
)

// FundamentalsRow builds one fundamentals period from the latest quarterly
// statements. Flow items are summed over four quarters; the highlights fill
// in what the statements lack.
func FundamentalsRow(assetID string, f *FundamentalsResponse) (*models.FundamentalsRow, error) {
	if f == nil {
		return nil, fmt.Errorf("no fundamentals for %s", assetID)
	}

	var bs, cf, is *FinancialStatement
	if f.Financials != nil {
		bs, cf, is = f.Financials.BalanceSheet, f.Financials.CashFlow, f.Financials.IncomeStatement
	}

	period := ""
	if periods := bs.Periods(); len(periods) > 0 {
		period = periods[0]
	} else if f.Highlights != nil {
		period = f.Highlights.MostRecentQuarter
	}
	reportDate, err := time.Parse("2006-01-02", period)
	if err != nil {
		return nil, fmt.Errorf("no report date in fundamentals for %s", assetID)
	}

	row := &models.FundamentalsRow{
		AssetID:    assetID,
		ReportDate: reportDate,

		TotalAssets:      bs.Value(period, fieldTotalAssets),
		TotalLiabilities: bs.Value(period, fieldTotalLiabilities),
		TotalDebt:        bs.Value(period, fieldTotalDebt),
		Cash:             bs.Value(period, fieldCash),
		NetDebt:          bs.Value(period, fieldNetDebt),

		RevenueTTM:           is.SumLast(period, fieldRevenue, 4),
		NetIncomeTTM:         is.SumLast(period, fieldNetIncome, 4),
		OperatingCashflowTTM: cf.SumLast(period, fieldOperatingCashflow, 4),
		FreeCashflowTTM:      cf.SumLast(period, fieldFreeCashflow, 4),
		SharesOutstanding:    bs.Value(period, fieldShares),
	}
	if f.General != nil {
		row.Currency = f.General.CurrencyCode
	}

	if equity := bs.Value(period, fieldEquity); equity != nil && *equity > 0 {
		if row.TotalDebt != nil {
			row.DebtToEquity = models.Float(*row.TotalDebt / *equity)
		}
		if row.NetIncomeTTM != nil {
			row.ROE = models.Float(*row.NetIncomeTTM / *equity)
		}
	}
	if ca, cl := bs.Value(period, fieldCurrentAssets), bs.Value(period, fieldCurrentLiabilities); ca != nil && cl != nil && *cl > 0 {
		row.CurrentRatio = models.Float(*ca / *cl)
	}
	if ebit, interest := is.SumLast(period, fieldEBIT, 4), is.SumLast(period, fieldInterestExpense, 4); ebit != nil && interest != nil && *interest != 0 {
		row.InterestCoverage = models.Float(*ebit / math.Abs(*interest))
	}
	if buyback := cf.SumLast(period, fieldBuyback, 4); buyback != nil && row.NetIncomeTTM != nil && *row.NetIncomeTTM > 0 {
		// negative cash flow on stock purchases is a buyback
		row.BuybackRatio = models.Float(-*buyback / *row.NetIncomeTTM)
	}
	if sd := f.SplitsDividends; sd != nil && sd.PayoutRatio > 0 {
		row.PayoutRatio = models.Float(sd.PayoutRatio)
	} else if paid := cf.SumLast(period, fieldDividendsPaid, 4); paid != nil && row.NetIncomeTTM != nil && *row.NetIncomeTTM > 0 {
		row.PayoutRatio = models.Float(math.Abs(*paid) / *row.NetIncomeTTM)
	}

	if h := f.Highlights; h != nil {
		if row.RevenueTTM == nil && h.RevenueTTM > 0 {
			row.RevenueTTM = models.Float(h.RevenueTTM)
		}
		if h.DilutedEpsTTM != 0 {
			row.EPSTTM = models.Float(h.DilutedEpsTTM)
		} else if h.EarningsShare != 0 {
			row.EPSTTM = models.Float(h.EarningsShare)
		}
		if h.DividendYield > 0 {
			row.DividendYield = models.Float(h.DividendYield)
		}
		if h.DividendShare > 0 {
			row.DPS = models.Float(h.DividendShare)
		}
		if row.ROE == nil && h.ReturnOnEquityTTM != 0 {
			row.ROE = models.Float(h.ReturnOnEquityTTM)
		}
	}
	if row.SharesOutstanding == nil && f.SharesStats != nil && f.SharesStats.SharesOutstanding > 0 {
		row.SharesOutstanding = models.Float(f.SharesStats.SharesOutstanding)
	}
	return row, nil
}
