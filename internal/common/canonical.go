// Package common provides shared utilities across the application.
package common

import (
	"fmt"
	"regexp"
	"strings"
)

// CanonicalID is a parsed asset identifier.
// Format: MARKET:TYPE:CODE (e.g., "HK:STOCK:00700", "US:EQUITY:TSLA")
type CanonicalID struct {
	// Market is one of US, HK, CN, WORLD
	Market string
	// Type is the identifier type token (STOCK, EQUITY, ETF, INDEX, CRYPTO, TRUST)
	Type string
	// Code is the market-local code, upper-cased
	Code string
}

var canonicalPattern = regexp.MustCompile(`(?i)^(US|HK|CN|WORLD):(STOCK|EQUITY|ETF|INDEX|CRYPTO|TRUST):([^\s:]+)$`)

// Known markets
const (
	MarketUS    = "US"
	MarketHK    = "HK"
	MarketCN    = "CN"
	MarketWorld = "WORLD"
)

// TypeTokenToAssetType maps identifier type tokens to stored asset types.
// STOCK and EQUITY are synonyms; HK and CN ids conventionally use STOCK.
var TypeTokenToAssetType = map[string]string{
	"STOCK":  "EQUITY",
	"EQUITY": "EQUITY",
	"ETF":    "ETF",
	"INDEX":  "INDEX",
	"CRYPTO": "CRYPTO",
	"TRUST":  "TRUST",
}

// IsCanonical reports whether s already has the canonical shape (case-insensitive).
func IsCanonical(s string) bool {
	return canonicalPattern.MatchString(strings.TrimSpace(s))
}

// ParseCanonicalID parses a canonical identifier, normalising case.
func ParseCanonicalID(s string) (CanonicalID, error) {
	m := canonicalPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return CanonicalID{}, fmt.Errorf("not a canonical asset id: %q", s)
	}
	return CanonicalID{
		Market: strings.ToUpper(m[1]),
		Type:   strings.ToUpper(m[2]),
		Code:   strings.ToUpper(m[3]),
	}, nil
}

// MustCanonical is ParseCanonicalID for ids known to be valid (tests, constants).
func MustCanonical(s string) CanonicalID {
	id, err := ParseCanonicalID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the canonical MARKET:TYPE:CODE form.
func (c CanonicalID) String() string {
	if c.Market == "" || c.Type == "" || c.Code == "" {
		return ""
	}
	return c.Market + ":" + c.Type + ":" + c.Code
}

// AssetType returns the stored asset type for the identifier's type token.
func (c CanonicalID) AssetType() string {
	if t, ok := TypeTokenToAssetType[c.Type]; ok {
		return t
	}
	return "EQUITY"
}

// IsIndex reports whether the identifier denotes an index.
func (c CanonicalID) IsIndex() bool {
	return c.Type == "INDEX"
}

// MarketCurrency returns the default quote currency of a market.
func MarketCurrency(market string) string {
	switch market {
	case MarketHK:
		return "HKD"
	case MarketCN:
		return "CNY"
	default:
		return "USD"
	}
}
