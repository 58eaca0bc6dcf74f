// -----------------------------------------------------------------------
// Package market is the price and fundamentals store facade. Every write
// goes through canonical resolution before it reaches storage.
// -----------------------------------------------------------------------

package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/models"
	"github.com/ternarybob/vera/internal/services/identity"
)

// ResolveMode controls how raw symbols are resolved before a write
type ResolveMode int

const (
	// ResolveHeuristic uses the full resolver, heuristics included
	ResolveHeuristic ResolveMode = iota
	// ResolveMappedOnly reports symbols without a mapping and skips their rows
	ResolveMappedOnly
	// ResolveStrict fails the whole call on the first unmapped symbol
	ResolveStrict
)

// UpsertOptions configures a price write
type UpsertOptions struct {
	Dedup    models.DedupPolicy
	Conflict models.ConflictPolicy
	Resolve  ResolveMode
	Hints    identity.Hints
}

// DefaultUpsertOptions keeps the last duplicate and updates existing rows
func DefaultUpsertOptions() UpsertOptions {
	return UpsertOptions{Dedup: models.DedupKeepLast, Conflict: models.ConflictUpsert}
}

// Service implements load and write operations on prices and fundamentals
type Service struct {
	storage  interfaces.StorageManager
	resolver *identity.Service
	cache    interfaces.DashboardCache
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewService creates a market data service. cache may be nil.
func NewService(storage interfaces.StorageManager, resolver *identity.Service, cache interfaces.DashboardCache, logger arbor.ILogger) *Service {
	return &Service{
		storage:  storage,
		resolver: resolver,
		cache:    cache,
		validate: validator.New(),
		logger:   logger,
	}
}

// LoadPrices returns bars for the asset in [start, end], ascending. A zero
// start means no lower bound.
func (s *Service) LoadPrices(ctx context.Context, assetID string, start, end time.Time) ([]models.PriceBar, error) {
	return s.storage.PriceStorage().LoadPrices(ctx, assetID, start, end)
}

// LoadFundamentalsAt returns the latest fundamentals reported on or before asOf, or nil
func (s *Service) LoadFundamentalsAt(ctx context.Context, assetID string, asOf time.Time) (*models.FundamentalsRow, error) {
	return s.storage.FundamentalsStorage().LoadFundamentalsAt(ctx, assetID, asOf)
}

// LoadFundamentalsHistory returns up to limit periods on or before asOf, oldest first
func (s *Service) LoadFundamentalsHistory(ctx context.Context, assetID string, asOf time.Time, limit int) ([]*models.FundamentalsRow, error) {
	return s.storage.FundamentalsStorage().LoadFundamentalsHistory(ctx, assetID, asOf, limit)
}

type resolvedSymbol struct {
	id       common.CanonicalID
	unmapped bool
}

// UpsertPrices resolves every raw symbol, applies the dedup policy inside the
// batch and writes the result in a single transaction under the conflict policy.
func (s *Service) UpsertPrices(ctx context.Context, rows []models.RawPriceRow, opts UpsertOptions) (models.UpsertSummary, error) {
	var summary models.UpsertSummary
	if opts.Dedup == "" {
		opts.Dedup = models.DedupKeepLast
	}
	if opts.Conflict == "" {
		opts.Conflict = models.ConflictUpsert
	}

	resolved, err := s.resolveSymbols(ctx, rows, opts, &summary)
	if err != nil {
		return models.UpsertSummary{}, err
	}

	batch := &interfaces.PriceWriteBatch{
		Conflict:     opts.Conflict,
		ReplaceRange: opts.Dedup == models.DedupDeleteThenInsert,
	}
	seenAsset := make(map[string]bool)
	seenMapping := make(map[string]bool)
	byKey := make(map[string]int)

	for i := range rows {
		row := &rows[i]
		sym := resolved[normalise(row.RawSymbol)]
		if sym == nil || sym.unmapped {
			summary.Skipped++
			continue
		}
		if err := s.validateRow(row); err != nil {
			summary.Skipped++
			summary.Errors = append(summary.Errors, models.RowError{Line: row.Line, Symbol: row.RawSymbol, Message: err.Error()})
			continue
		}

		bar := toBar(sym.id, row)
		key := bar.AssetID + "|" + bar.TradeDate.Format(models.DateLayout)
		if idx, dup := byKey[key]; dup {
			summary.Duplicates++
			if opts.Dedup != models.DedupKeepFirst {
				batch.Bars[idx] = bar
			}
		} else {
			byKey[key] = len(batch.Bars)
			batch.Bars = append(batch.Bars, bar)
		}

		assetID := sym.id.String()
		if !seenAsset[assetID] {
			seenAsset[assetID] = true
			batch.Assets = append(batch.Assets, identity.AssetFromCanonical(sym.id))
		}
		if m := identity.MappingFor(sym.id, row.RawSymbol, providerSource(row.Source)); m != nil {
			mk := m.RawSymbol + "|" + m.Source
			if !seenMapping[mk] {
				seenMapping[mk] = true
				batch.Mappings = append(batch.Mappings, m)
			}
		}
	}

	if len(batch.Bars) == 0 {
		return summary, nil
	}

	sort.SliceStable(batch.Bars, func(i, j int) bool {
		if batch.Bars[i].AssetID != batch.Bars[j].AssetID {
			return batch.Bars[i].AssetID < batch.Bars[j].AssetID
		}
		return batch.Bars[i].TradeDate.Before(batch.Bars[j].TradeDate)
	})

	written, err := s.storage.PriceStorage().WritePrices(ctx, batch)
	if err != nil {
		return models.UpsertSummary{}, err
	}
	summary.Add(written)

	for assetID := range seenAsset {
		s.invalidate(ctx, assetID)
	}

	s.logger.Info().
		Int("inserted", summary.Inserted).
		Int("updated", summary.Updated).
		Int("skipped", summary.Skipped).
		Int("duplicates", summary.Duplicates).
		Int("unmapped", len(summary.UnmappedSymbols)).
		Msg("Prices upserted")
	return summary, nil
}

func (s *Service) resolveSymbols(ctx context.Context, rows []models.RawPriceRow, opts UpsertOptions, summary *models.UpsertSummary) (map[string]*resolvedSymbol, error) {
	resolved := make(map[string]*resolvedSymbol)
	for i := range rows {
		key := normalise(rows[i].RawSymbol)
		if _, done := resolved[key]; done {
			continue
		}

		var res models.Resolution
		var err error
		if opts.Resolve == ResolveHeuristic {
			res, err = s.resolver.Resolve(ctx, rows[i].RawSymbol, opts.Hints)
		} else {
			res, err = s.resolver.ResolveMapped(ctx, rows[i].RawSymbol, opts.Hints)
		}

		switch {
		case err == nil:
			resolved[key] = &resolvedSymbol{id: common.MustCanonical(res.CanonicalID)}
		case errors.Is(err, interfaces.ErrUnknownSymbol) && opts.Resolve != ResolveStrict:
			resolved[key] = &resolvedSymbol{unmapped: true}
			summary.UnmappedSymbols = append(summary.UnmappedSymbols, key)
			s.logger.Warn().Str("symbol", key).Msg("Unmapped symbol skipped")
		default:
			return nil, fmt.Errorf("failed to resolve %s: %w", rows[i].RawSymbol, err)
		}
	}
	sort.Strings(summary.UnmappedSymbols)
	return resolved, nil
}

func (s *Service) validateRow(row *models.RawPriceRow) error {
	if row.TradeDate.IsZero() {
		return fmt.Errorf("missing trade date")
	}
	if err := s.validate.Struct(row); err != nil {
		return fmt.Errorf("invalid row: %w", err)
	}
	return nil
}

// toBar converts a validated raw row; missing OHLC fields default to close
func toBar(id common.CanonicalID, row *models.RawPriceRow) models.PriceBar {
	source := row.Source
	if source == "" {
		source = "manual"
	}
	if raw := normalise(row.RawSymbol); raw != id.Code && raw != id.String() {
		source = source + ";raw=" + strings.TrimSpace(row.RawSymbol)
	}

	return models.PriceBar{
		AssetID:       id.String(),
		TradeDate:     row.TradeDate,
		Open:          models.Deref(row.Open, row.Close),
		High:          models.Deref(row.High, row.Close),
		Low:           models.Deref(row.Low, row.Close),
		Close:         row.Close,
		Volume:        row.Volume,
		PE:            row.PE,
		PETTM:         row.PETTM,
		PB:            row.PB,
		PS:            row.PS,
		EPS:           row.EPS,
		DividendYield: row.DividendYield,
		Source:        source,
	}
}

// providerSource strips any provenance suffix: "csv;file=x" -> "csv"
func providerSource(source string) string {
	if i := strings.IndexByte(source, ';'); i >= 0 {
		source = source[:i]
	}
	return strings.ToLower(strings.TrimSpace(source))
}

func normalise(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// UpsertFundamentals resolves each row's asset id and writes the rows in one transaction
func (s *Service) UpsertFundamentals(ctx context.Context, rows []*models.FundamentalsRow, conflict models.ConflictPolicy, source string) (models.UpsertSummary, error) {
	if conflict == "" {
		conflict = models.ConflictUpsert
	}

	assets := make(map[string]bool)
	for _, row := range rows {
		res, err := s.resolver.Resolve(ctx, row.AssetID, identity.Hints{})
		if err != nil {
			return models.UpsertSummary{}, fmt.Errorf("failed to resolve %s: %w", row.AssetID, err)
		}
		if !assets[res.CanonicalID] {
			if err := s.resolver.EnsureMapping(ctx, res.CanonicalID, row.AssetID, providerSource(source)); err != nil {
				return models.UpsertSummary{}, err
			}
			assets[res.CanonicalID] = true
		}
		row.AssetID = res.CanonicalID
	}

	summary, err := s.storage.FundamentalsStorage().UpsertFundamentals(ctx, rows, conflict)
	if err != nil {
		return models.UpsertSummary{}, err
	}
	for assetID := range assets {
		s.invalidate(ctx, assetID)
	}
	return summary, nil
}

func (s *Service) invalidate(ctx context.Context, assetID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAsset(ctx, assetID); err != nil {
		s.logger.Warn().Err(err).Str("asset_id", assetID).Msg("Failed to invalidate dashboard cache")
	}
}
