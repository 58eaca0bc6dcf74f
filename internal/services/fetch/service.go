// Package fetch pulls daily bars and fundamentals from EODHD into the
// market data store.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/eodhd"
	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/models"
	"github.com/ternarybob/vera/internal/services/identity"
	"github.com/ternarybob/vera/internal/services/market"
)

// Provider is the subset of the EODHD client the fetcher uses
type Provider interface {
	GetEOD(ctx context.Context, symbol string, opts ...eodhd.QueryOption) (eodhd.EODResponse, error)
	GetFundamentals(ctx context.Context, symbol string) (*eodhd.FundamentalsResponse, error)
}

// Options controls one fetch
type Options struct {
	// From and To bound the bars requested. A zero From continues after the
	// latest stored bar, or requests full history when there is none.
	From, To     time.Time
	Adjusted     bool
	Fundamentals bool
	Hints        identity.Hints
}

// Result reports what one fetch wrote
type Result struct {
	AssetID        string                `json:"asset_id"`
	ProviderSymbol string                `json:"provider_symbol"`
	Bars           int                   `json:"bars"`
	Prices         models.UpsertSummary  `json:"prices"`
	Fundamentals   *models.UpsertSummary `json:"fundamentals,omitempty"`
}

// Service fetches provider data for one asset at a time
type Service struct {
	provider Provider
	resolver *identity.Service
	market   *market.Service
	prices   interfaces.PriceStorage
	logger   arbor.ILogger
}

// NewService creates a fetcher
func NewService(provider Provider, resolver *identity.Service, market *market.Service, prices interfaces.PriceStorage, logger arbor.ILogger) *Service {
	return &Service{
		provider: provider,
		resolver: resolver,
		market:   market,
		prices:   prices,
		logger:   logger,
	}
}

// Fetch resolves raw, downloads its bars (and fundamentals for equities) and
// upserts them.
func (s *Service) Fetch(ctx context.Context, raw string, opts Options) (*Result, error) {
	res, err := s.resolver.Resolve(ctx, raw, opts.Hints)
	if err != nil {
		return nil, err
	}
	id := common.MustCanonical(res.CanonicalID)

	symbol, err := s.resolver.ToProviderSymbol(ctx, id.String(), identity.ProviderEODHD)
	if err != nil {
		return nil, err
	}
	result := &Result{AssetID: id.String(), ProviderSymbol: symbol}

	from := opts.From
	if from.IsZero() {
		latest, err := s.prices.LatestPriceDate(ctx, id.String())
		switch {
		case err == nil:
			from = latest.AddDate(0, 0, 1)
		case !errors.Is(err, interfaces.ErrNotFound):
			return nil, err
		}
	}
	if !opts.To.IsZero() && !from.IsZero() && from.After(opts.To) {
		s.logger.Info().Str("asset_id", id.String()).Msg("Prices already current")
		return result, nil
	}

	bars, err := s.provider.GetEOD(ctx, symbol, eodhd.WithDateRange(from, opts.To))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", symbol, err)
	}
	result.Bars = len(bars)

	rows := eodhd.PriceRows(id.String(), bars, opts.Adjusted)
	if len(rows) > 0 {
		result.Prices, err = s.market.UpsertPrices(ctx, rows, market.UpsertOptions{
			Dedup:    models.DedupKeepLast,
			Conflict: models.ConflictUpsert,
			Resolve:  market.ResolveHeuristic,
			Hints:    opts.Hints,
		})
		if err != nil {
			return nil, err
		}
	}

	if opts.Fundamentals && hasFundamentals(id) {
		summary, err := s.fetchFundamentals(ctx, id, symbol)
		if err != nil {
			// bars are already stored; a missing fundamentals feed degrades valuation only
			s.logger.Warn().Err(err).Str("asset_id", id.String()).Msg("Fundamentals not fetched")
		} else {
			result.Fundamentals = &summary
		}
	}

	s.logger.Info().
		Str("asset_id", id.String()).
		Str("provider_symbol", symbol).
		Int("bars", result.Bars).
		Int("inserted", result.Prices.Inserted).
		Int("updated", result.Prices.Updated).
		Msg("Fetch complete")
	return result, nil
}

func (s *Service) fetchFundamentals(ctx context.Context, id common.CanonicalID, symbol string) (models.UpsertSummary, error) {
	resp, err := s.provider.GetFundamentals(ctx, symbol)
	if err != nil {
		return models.UpsertSummary{}, fmt.Errorf("%w: %v", interfaces.ErrDataUnavailable, err)
	}
	row, err := eodhd.FundamentalsRow(id.String(), resp)
	if err != nil {
		return models.UpsertSummary{}, fmt.Errorf("%w: %v", interfaces.ErrDataUnavailable, err)
	}
	return s.market.UpsertFundamentals(ctx, []*models.FundamentalsRow{row}, models.ConflictUpsert, eodhd.Source)
}

func hasFundamentals(id common.CanonicalID) bool {
	return id.Type == "STOCK" || id.Type == "EQUITY"
}
