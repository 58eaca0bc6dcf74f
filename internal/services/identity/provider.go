package identity

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ternarybob/vera/internal/common"
)

// Supported providers
const (
	ProviderYahoo  = "yahoo"
	ProviderXueqiu = "xueqiu"
	ProviderEODHD  = "eodhd"
)

// xueqiuIndexCodes are the xueqiu names of US indices
var xueqiuIndexCodes = map[string]string{
	"^GSPC": ".INX",
	"^IXIC": ".IXIC",
	"^DJI":  ".DJI",
	"^NDX":  ".NDX",
}

// ToProviderSymbol returns the symbol a provider expects for a canonical id.
// A stored mapping with source == provider wins over the derived form.
func (s *Service) ToProviderSymbol(ctx context.Context, canonicalID, provider string) (string, error) {
	id, err := common.ParseCanonicalID(canonicalID)
	if err != nil {
		return "", err
	}
	provider = strings.ToLower(strings.TrimSpace(provider))

	mappings, err := s.assets.MappingsForAsset(ctx, id.String())
	if err != nil {
		return "", err
	}
	best := -1
	for i, m := range mappings {
		if !m.IsActive || m.Source != provider {
			continue
		}
		if best < 0 || m.Priority < mappings[best].Priority {
			best = i
		}
	}
	if best >= 0 {
		return mappings[best].RawSymbol, nil
	}

	return DeriveProviderSymbol(id, provider)
}

// DeriveProviderSymbol computes a provider symbol from the canonical id alone
func DeriveProviderSymbol(id common.CanonicalID, provider string) (string, error) {
	switch provider {
	case ProviderYahoo:
		return yahooSymbol(id), nil
	case ProviderXueqiu:
		return xueqiuSymbol(id), nil
	case ProviderEODHD:
		return eodhdSymbol(id), nil
	}
	return "", fmt.Errorf("unsupported provider %q", provider)
}

func yahooSymbol(id common.CanonicalID) string {
	switch id.Market {
	case common.MarketHK:
		if id.IsIndex() {
			return "^" + id.Code
		}
		return hkShortCode(id.Code) + ".HK"
	case common.MarketCN:
		if cnExchange(id) == "SH" {
			return id.Code + ".SS"
		}
		return id.Code + ".SZ"
	}
	return id.Code
}

func xueqiuSymbol(id common.CanonicalID) string {
	switch id.Market {
	case common.MarketHK:
		return id.Code
	case common.MarketCN:
		return cnExchange(id) + id.Code
	case common.MarketUS:
		if id.IsIndex() {
			if code, ok := xueqiuIndexCodes[id.Code]; ok {
				return code
			}
			return "." + strings.TrimPrefix(id.Code, "^")
		}
	}
	return id.Code
}

func eodhdSymbol(id common.CanonicalID) string {
	if id.IsIndex() {
		return strings.TrimPrefix(id.Code, "^") + ".INDX"
	}
	switch id.Market {
	case common.MarketHK:
		return hkShortCode(id.Code) + ".HK"
	case common.MarketCN:
		if cnExchange(id) == "SH" {
			return id.Code + ".SHG"
		}
		return id.Code + ".SHE"
	case common.MarketWorld:
		return id.Code + ".CC"
	}
	return id.Code + ".US"
}

// hkShortCode renders a 5-digit HK code in the 4-digit provider form: 00700 -> 0700
func hkShortCode(code string) string {
	n, err := strconv.Atoi(code)
	if err != nil {
		return code
	}
	return fmt.Sprintf("%04d", n)
}

// cnExchange returns SH or SZ for an A-share code
func cnExchange(id common.CanonicalID) string {
	if id.IsIndex() {
		if strings.HasPrefix(id.Code, "399") {
			return "SZ"
		}
		return "SH"
	}
	if hasAnyPrefix(id.Code, "5", "6", "9") {
		return "SH"
	}
	return "SZ"
}
