package eodhd

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// EODData represents a single day's end-of-day price data.
type EODData struct {
	Date          time.Time `json:"-"`
	DateStr       string    `json:"date"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	AdjustedClose float64   `json:"adjusted_close"`
	Volume        float64   `json:"volume"`
}

// EODResponse is a slice of EODData.
type EODResponse []EODData

// FundamentalsResponse holds the parts of /fundamentals used for the
// fundamentals row. Unknown sections are ignored by the decoder.
type FundamentalsResponse struct {
	General         *GeneralInfo     `json:"General"`
	Highlights      *Highlights      `json:"Highlights"`
	SharesStats     *SharesStats     `json:"SharesStats"`
	SplitsDividends *SplitsDividends `json:"SplitsDividends"`
	Financials      *Financials      `json:"Financials"`
}

// GeneralInfo contains general company information.
type GeneralInfo struct {
	Code         string `json:"Code"`
	Type         string `json:"Type"`
	Name         string `json:"Name"`
	Exchange     string `json:"Exchange"`
	CurrencyCode string `json:"CurrencyCode"`
	CountryISO   string `json:"CountryISO"`
	Sector       string `json:"Sector"`
	Industry     string `json:"Industry"`
	GicSector    string `json:"GicSector"`
	GicGroup     string `json:"GicGroup"`
	GicIndustry  string `json:"GicIndustry"`
}

// Highlights contains key financial highlights.
type Highlights struct {
	MarketCapitalization float64 `json:"MarketCapitalization"`
	PERatio              float64 `json:"PERatio"`
	BookValue            float64 `json:"BookValue"`
	DividendShare        float64 `json:"DividendShare"`
	DividendYield        float64 `json:"DividendYield"`
	EarningsShare        float64 `json:"EarningsShare"`
	MostRecentQuarter    string  `json:"MostRecentQuarter"`
	ReturnOnEquityTTM    float64 `json:"ReturnOnEquityTTM"`
	RevenueTTM           float64 `json:"RevenueTTM"`
	DilutedEpsTTM        float64 `json:"DilutedEpsTTM"`
}

// SharesStats contains share count data.
type SharesStats struct {
	SharesOutstanding float64 `json:"SharesOutstanding"`
}

// SplitsDividends contains dividend policy data.
type SplitsDividends struct {
	ForwardAnnualDividendRate  float64 `json:"ForwardAnnualDividendRate"`
	ForwardAnnualDividendYield float64 `json:"ForwardAnnualDividendYield"`
	PayoutRatio                float64 `json:"PayoutRatio"`
}

// Financials contains financial statements.
type Financials struct {
	BalanceSheet    *FinancialStatement `json:"Balance_Sheet"`
	CashFlow        *FinancialStatement `json:"Cash_Flow"`
	IncomeStatement *FinancialStatement `json:"Income_Statement"`
}

// FinancialStatement holds periods keyed by report date. EODHD sends
// numbers as strings, numbers or null.
type FinancialStatement struct {
	Currency  string                       `json:"currency_symbol"`
	Quarterly map[string]map[string]Number `json:"quarterly"`
	Yearly    map[string]map[string]Number `json:"yearly"`
}

// Number is a statement value that may be absent
type Number struct {
	Value *float64
}

// UnmarshalJSON accepts "123.4", 123.4, null and non-numeric strings (as absent)
func (n *Number) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		n.Value = nil
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Statement rows mix dates and labels in with the numbers
		var raw interface{}
		if jsonErr := json.Unmarshal(data, &raw); jsonErr != nil {
			return jsonErr
		}
		n.Value = nil
		return nil
	}
	n.Value = &v
	return nil
}

// Periods returns the quarterly report dates, newest first
func (s *FinancialStatement) Periods() []string {
	if s == nil {
		return nil
	}
	dates := make([]string, 0, len(s.Quarterly))
	for d := range s.Quarterly {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates
}

// Value returns a field of one quarterly period
func (s *FinancialStatement) Value(period, field string) *float64 {
	if s == nil {
		return nil
	}
	return s.Quarterly[period][field].Value
}

// SumLast adds field over the newest n quarters ending at or before period.
// It returns nil unless all n quarters carry the field.
func (s *FinancialStatement) SumLast(period, field string, n int) *float64 {
	total := 0.0
	count := 0
	for _, d := range s.Periods() {
		if d > period {
			continue
		}
		v := s.Value(d, field)
		if v == nil {
			return nil
		}
		total += *v
		count++
		if count == n {
			return &total
		}
	}
	return nil
}
