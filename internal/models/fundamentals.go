package models

import "time"

// FundamentalsRow is a reported fundamentals period. Every numeric field is
// optional; consumers degrade when a value is missing.
type FundamentalsRow struct {
	AssetID    string    `json:"asset_id"`
	ReportDate time.Time `json:"report_date"`

	RevenueTTM           *float64 `json:"revenue_ttm,omitempty"`
	NetIncomeTTM         *float64 `json:"net_income_ttm,omitempty"`
	OperatingCashflowTTM *float64 `json:"operating_cashflow_ttm,omitempty"`
	FreeCashflowTTM      *float64 `json:"free_cashflow_ttm,omitempty"`

	TotalAssets      *float64 `json:"total_assets,omitempty"`
	TotalLiabilities *float64 `json:"total_liabilities,omitempty"`
	TotalDebt        *float64 `json:"total_debt,omitempty"`
	Cash             *float64 `json:"cash,omitempty"`
	NetDebt          *float64 `json:"net_debt,omitempty"`
	DebtToEquity     *float64 `json:"debt_to_equity,omitempty"`
	InterestCoverage *float64 `json:"interest_coverage,omitempty"`
	CurrentRatio     *float64 `json:"current_ratio,omitempty"`

	DividendYield *float64 `json:"dividend_yield,omitempty"`
	PayoutRatio   *float64 `json:"payout_ratio,omitempty"`
	BuybackRatio  *float64 `json:"buyback_ratio,omitempty"`

	EPSTTM            *float64 `json:"eps_ttm,omitempty"`
	DPS               *float64 `json:"dps,omitempty"`
	SharesOutstanding *float64 `json:"shares_outstanding,omitempty"`
	ROE               *float64 `json:"roe,omitempty"`

	Currency string `json:"currency"`
}

// Equity returns total assets less total liabilities when both are known
func (f *FundamentalsRow) Equity() *float64 {
	if f.TotalAssets == nil || f.TotalLiabilities == nil {
		return nil
	}
	return Float(*f.TotalAssets - *f.TotalLiabilities)
}

// ReturnOnEquity prefers the reported ROE, otherwise net income over equity
func (f *FundamentalsRow) ReturnOnEquity() *float64 {
	if f.ROE != nil {
		return f.ROE
	}
	eq := f.Equity()
	if f.NetIncomeTTM == nil || eq == nil || *eq <= 0 {
		return nil
	}
	return Float(*f.NetIncomeTTM / *eq)
}

// Leverage prefers reported debt/equity, otherwise total debt over equity
func (f *FundamentalsRow) Leverage() *float64 {
	if f.DebtToEquity != nil {
		return f.DebtToEquity
	}
	eq := f.Equity()
	if f.TotalDebt == nil || eq == nil || *eq <= 0 {
		return nil
	}
	return Float(*f.TotalDebt / *eq)
}

// NetMargin returns net income over revenue
func (f *FundamentalsRow) NetMargin() *float64 {
	if f.NetIncomeTTM == nil || f.RevenueTTM == nil || *f.RevenueTTM == 0 {
		return nil
	}
	return Float(*f.NetIncomeTTM / *f.RevenueTTM)
}
