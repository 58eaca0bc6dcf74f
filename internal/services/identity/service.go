// -----------------------------------------------------------------------
// Package identity resolves raw provider and file symbols to canonical
// asset ids (MARKET:TYPE:CODE) and derives provider symbols back from them.
// -----------------------------------------------------------------------

package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/models"
)

// Resolution paths
const (
	PathCanonical = "canonical"
	PathMapping   = "mapping"
	PathHeuristic = "heuristic"
)

// DefaultMappingPriority is used for mappings registered by writes
const DefaultMappingPriority = 100

// Hints narrow resolution when a raw symbol is ambiguous
type Hints struct {
	Market    string
	AssetType string
}

// Service implements symbol resolution over the asset reference tables
type Service struct {
	assets   interfaces.AssetStorage
	config   *common.IdentityConfig
	logger   arbor.ILogger
	patterns map[string]*regexp.Regexp
}

// NewService creates a resolver with the symbol heuristics compiled once
func NewService(assets interfaces.AssetStorage, config *common.IdentityConfig, logger arbor.ILogger) *Service {
	return &Service{
		assets: assets,
		config: config,
		logger: logger,
		patterns: map[string]*regexp.Regexp{
			// 700.HK, 0700.HK, 00700.HK
			"hk_suffix": regexp.MustCompile(`^(\d{1,5})\.HK$`),
			// 0700, 00700
			"hk_numeric": regexp.MustCompile(`^(\d{4,5})$`),
			// 600519.SS, 600519.SH, 000001.SZ
			"cn_suffix": regexp.MustCompile(`^(\d{6})\.(SS|SH|SZ)$`),
			// SH600519, SZ000001
			"cn_prefix":  regexp.MustCompile(`^(SH|SZ)(\d{6})$`),
			"cn_numeric": regexp.MustCompile(`^(\d{6})$`),
			// ^GSPC, ^HSI
			"index": regexp.MustCompile(`^\^[A-Z0-9.]+$`),
			// BTC-USD, ETH-USDT
			"crypto": regexp.MustCompile(`^([A-Z0-9]{2,10})-USDT?$`),
			// TSLA.US
			"us_suffix": regexp.MustCompile(`^([A-Z0-9.\-]+)\.US$`),
			// AAPL, BRK.B, BF-B
			"us_ticker": regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]*$`),
		},
	}
}

// Resolve maps a raw symbol to its canonical id: canonical form first, then
// stored mappings, then heuristics (unless strict_unknown is set).
func (s *Service) Resolve(ctx context.Context, raw string, hints Hints) (models.Resolution, error) {
	return s.resolve(ctx, raw, hints, !s.config.StrictUnknown)
}

// ResolveMapped is Resolve without heuristics: a symbol with no canonical form
// and no mapping returns ErrUnknownSymbol. File ingest uses it so unknown
// symbols are reported rather than guessed.
func (s *Service) ResolveMapped(ctx context.Context, raw string, hints Hints) (models.Resolution, error) {
	return s.resolve(ctx, raw, hints, false)
}

func (s *Service) resolve(ctx context.Context, raw string, hints Hints, heuristics bool) (models.Resolution, error) {
	symbol := strings.ToUpper(strings.TrimSpace(raw))
	res := models.Resolution{RawSymbol: raw}
	if symbol == "" {
		return res, fmt.Errorf("empty symbol: %w", interfaces.ErrUnknownSymbol)
	}

	if common.IsCanonical(symbol) {
		id, err := common.ParseCanonicalID(symbol)
		if err != nil {
			return res, err
		}
		res.CanonicalID = id.String()
		res.Path = PathCanonical
		return res, nil
	}

	mapped, note, err := s.lookupMapping(ctx, symbol, hints)
	if err != nil {
		return res, err
	}
	if mapped != "" {
		res.CanonicalID = mapped
		res.Path = PathMapping
		res.Note = note
		return res, nil
	}

	if !heuristics {
		return res, fmt.Errorf("%s has no mapping: %w", symbol, interfaces.ErrUnknownSymbol)
	}

	id, ok := s.heuristic(symbol, hints)
	if !ok {
		return res, fmt.Errorf("%q is not a recognisable ticker: %w", raw, interfaces.ErrUnknownSymbol)
	}
	res.CanonicalID = id.String()
	res.Path = PathHeuristic

	s.logger.Debug().
		Str("raw", raw).
		Str("canonical_id", res.CanonicalID).
		Msg("Symbol resolved by heuristic")
	return res, nil
}

// lookupMapping returns the mapped canonical id, a fallback note, or "" when unmapped
func (s *Service) lookupMapping(ctx context.Context, symbol string, hints Hints) (string, string, error) {
	mappings, err := s.assets.FindMappings(ctx, symbol)
	if err != nil {
		return "", "", err
	}

	// Mappings arrive best priority first; keep the first row of each canonical id
	var candidates []string
	seen := make(map[string]bool)
	for _, m := range mappings {
		id, err := common.ParseCanonicalID(m.CanonicalID)
		if err != nil {
			s.logger.Warn().Str("mapping", m.CanonicalID).Msg("Skipping mapping with malformed canonical id")
			continue
		}
		if !matchesHints(id, hints) || seen[id.String()] {
			continue
		}
		seen[id.String()] = true
		candidates = append(candidates, id.String())
	}

	switch len(candidates) {
	case 0:
		return "", "", nil
	case 1:
		return candidates[0], "", nil
	}

	if s.config.StrictAmbiguous {
		return "", "", fmt.Errorf("%s maps to %s: %w", symbol, strings.Join(candidates, ", "), interfaces.ErrAmbiguousSymbol)
	}

	note := fmt.Sprintf("ambiguous symbol %s: chose %s by priority over %s",
		symbol, candidates[0], strings.Join(candidates[1:], ", "))
	s.logger.Warn().Str("symbol", symbol).Str("chosen", candidates[0]).Msg("Ambiguous symbol resolved by priority")
	return candidates[0], note, nil
}

func matchesHints(id common.CanonicalID, hints Hints) bool {
	if hints.Market != "" && !strings.EqualFold(hints.Market, id.Market) {
		return false
	}
	if hints.AssetType != "" {
		want := strings.ToUpper(hints.AssetType)
		if t, ok := common.TypeTokenToAssetType[want]; ok {
			want = t
		}
		if want != id.AssetType() {
			return false
		}
	}
	return true
}

// heuristic guesses a canonical id from the symbol's shape. It reports false
// when the symbol could never form a valid id, so results always re-resolve
// to themselves.
func (s *Service) heuristic(symbol string, hints Hints) (common.CanonicalID, bool) {
	hintType := strings.ToUpper(hints.AssetType)

	if m := s.patterns["hk_suffix"].FindStringSubmatch(symbol); m != nil {
		return s.hongKong(m[1]), true
	}
	if m := s.patterns["cn_suffix"].FindStringSubmatch(symbol); m != nil {
		return chinaA(m[1], m[2], hintType), true
	}
	if m := s.patterns["cn_prefix"].FindStringSubmatch(symbol); m != nil {
		return chinaA(m[2], m[1], hintType), true
	}
	if m := s.patterns["cn_numeric"].FindStringSubmatch(symbol); m != nil {
		return chinaA(m[1], "", hintType), true
	}
	if m := s.patterns["hk_numeric"].FindStringSubmatch(symbol); m != nil {
		return s.hongKong(m[1]), true
	}
	if s.patterns["index"].MatchString(symbol) {
		return common.CanonicalID{Market: common.MarketUS, Type: "INDEX", Code: symbol}, true
	}
	if s.patterns["crypto"].MatchString(symbol) {
		return common.CanonicalID{Market: common.MarketWorld, Type: "CRYPTO", Code: symbol}, true
	}
	if m := s.patterns["us_suffix"].FindStringSubmatch(symbol); m != nil {
		symbol = m[1]
	}
	if !s.patterns["us_ticker"].MatchString(symbol) {
		return common.CanonicalID{}, false
	}

	typ := "EQUITY"
	switch hintType {
	case "ETF", "INDEX", "TRUST":
		typ = hintType
	}
	return common.CanonicalID{Market: common.MarketUS, Type: typ, Code: symbol}, true
}

func (s *Service) hongKong(digits string) common.CanonicalID {
	n, _ := strconv.Atoi(digits)
	typ := "STOCK"
	for _, r := range s.config.HKETFRanges {
		if len(r) == 2 && n >= r[0] && n <= r[1] {
			typ = "ETF"
			break
		}
	}
	return common.CanonicalID{Market: common.MarketHK, Type: typ, Code: fmt.Sprintf("%05d", n)}
}

// chinaA classifies a 6-digit A-share code. exchange is SS/SH/SZ or empty.
func chinaA(code, exchange, hintType string) common.CanonicalID {
	shanghai := exchange == "SS" || exchange == "SH"

	typ := "STOCK"
	switch {
	case hintType == "INDEX",
		shanghai && strings.HasPrefix(code, "000"),
		strings.HasPrefix(code, "399"):
		typ = "INDEX"
	case hasAnyPrefix(code, "51", "56", "58", "15"):
		typ = "ETF"
	}
	return common.CanonicalID{Market: common.MarketCN, Type: typ, Code: code}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// EnsureMapping registers the asset derived from canonicalID (when missing)
// and the (raw, source) mapping. Existing rows are left untouched.
func (s *Service) EnsureMapping(ctx context.Context, canonicalID, raw, source string) error {
	id, err := common.ParseCanonicalID(canonicalID)
	if err != nil {
		return fmt.Errorf("%w: %s", interfaces.ErrInvalidAssetID, canonicalID)
	}

	if _, err := s.assets.GetAsset(ctx, id.String()); err != nil {
		if !errors.Is(err, interfaces.ErrNotFound) {
			return err
		}
		if err := s.assets.UpsertAsset(ctx, AssetFromCanonical(id)); err != nil {
			return err
		}
	}

	mapping := MappingFor(id, raw, source)
	if mapping == nil {
		return nil
	}
	existing, err := s.assets.FindMappings(ctx, mapping.RawSymbol)
	if err != nil {
		return err
	}
	for _, m := range existing {
		if m.Source == mapping.Source {
			return nil
		}
	}
	return s.assets.UpsertMapping(ctx, mapping)
}

// AssetFromCanonical derives a minimal asset row from a canonical id
func AssetFromCanonical(id common.CanonicalID) *models.Asset {
	return &models.Asset{
		AssetID:     id.String(),
		DisplayName: id.Code,
		Market:      id.Market,
		AssetType:   models.AssetType(id.AssetType()),
		Currency:    common.MarketCurrency(id.Market),
		IsActive:    true,
	}
}

// MappingFor builds the mapping row for a raw symbol, or nil when the raw
// symbol already is the canonical id
func MappingFor(id common.CanonicalID, raw, source string) *models.SymbolMapping {
	symbol := strings.ToUpper(strings.TrimSpace(raw))
	if symbol == "" || symbol == id.String() {
		return nil
	}
	if source == "" {
		source = "manual"
	}
	return &models.SymbolMapping{
		CanonicalID: id.String(),
		RawSymbol:   symbol,
		Source:      source,
		Priority:    DefaultMappingPriority,
		IsActive:    true,
	}
}
