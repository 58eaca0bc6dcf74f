package models

import "time"

// DateLayout is the storage and CLI format for trade, report and as-of dates
const DateLayout = "2006-01-02"

// PriceBar is one daily bar for a canonical asset. Valuation columns are
// optional and travel with the bar when the provider supplies them.
type PriceBar struct {
	AssetID       string    `json:"asset_id"`
	TradeDate     time.Time `json:"trade_date"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	Volume        float64   `json:"volume"`
	PE            *float64  `json:"pe,omitempty"`
	PETTM         *float64  `json:"pe_ttm,omitempty"`
	PB            *float64  `json:"pb,omitempty"`
	PS            *float64  `json:"ps,omitempty"`
	EPS           *float64  `json:"eps,omitempty"`
	DividendYield *float64  `json:"dividend_yield,omitempty"`
	Source        string    `json:"source"`
}

// RawPriceRow is a bar keyed by a provider or file symbol, before resolution.
// Line is the 1-based source line for error reporting (0 when not file based).
type RawPriceRow struct {
	RawSymbol     string
	TradeDate     time.Time
	Open          *float64
	High          *float64
	Low           *float64
	Close         float64 `validate:"gt=0"`
	Volume        float64 `validate:"gte=0"`
	PE            *float64
	PETTM         *float64
	PB            *float64
	PS            *float64
	EPS           *float64
	DividendYield *float64
	Source        string
	Line          int
}

// DedupPolicy decides which row survives when a batch repeats (asset, date)
type DedupPolicy string

const (
	DedupKeepLast         DedupPolicy = "keep_last"
	DedupKeepFirst        DedupPolicy = "keep_first"
	DedupDeleteThenInsert DedupPolicy = "delete_then_insert"
)

// ConflictPolicy decides what happens when a row already exists in the store
type ConflictPolicy string

const (
	ConflictUpsert ConflictPolicy = "upsert"
	ConflictIgnore ConflictPolicy = "ignore"
	ConflictFail   ConflictPolicy = "fail"
)

// RowError describes a rejected input row
type RowError struct {
	Line    int    `json:"line,omitempty"`
	Symbol  string `json:"symbol,omitempty"`
	Message string `json:"message"`
}

// UpsertSummary reports the outcome of a price or fundamentals write batch
type UpsertSummary struct {
	Inserted        int        `json:"inserted"`
	Updated         int        `json:"updated"`
	Skipped         int        `json:"skipped"`
	Duplicates      int        `json:"duplicates"`
	UnmappedSymbols []string   `json:"unmapped_symbols"`
	Errors          []RowError `json:"errors"`
}

// Add merges another summary into s
func (s *UpsertSummary) Add(other UpsertSummary) {
	s.Inserted += other.Inserted
	s.Updated += other.Updated
	s.Skipped += other.Skipped
	s.Duplicates += other.Duplicates
	s.UnmappedSymbols = append(s.UnmappedSymbols, other.UnmappedSymbols...)
	s.Errors = append(s.Errors, other.Errors...)
}

// Float returns a pointer to v, for optional numeric fields
func Float(v float64) *float64 {
	return &v
}

// String returns a pointer to v, for optional text fields
func String(v string) *string {
	return &v
}

// Deref returns *p or fallback when p is nil
func Deref(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}
