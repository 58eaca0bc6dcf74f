// -----------------------------------------------------------------------
// Package ingest loads price CSV files into the store through the market
// service. Unknown symbols are reported and skipped, never registered.
// -----------------------------------------------------------------------

package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/models"
	"github.com/ternarybob/vera/internal/services/identity"
	"github.com/ternarybob/vera/internal/services/market"
)

// Mode selects how existing rows are treated
type Mode string

const (
	// ModeOverwrite upserts: existing (asset, date) rows are replaced
	ModeOverwrite Mode = "overwrite"
	// ModeIncremental inserts only: existing rows are counted as duplicates
	ModeIncremental Mode = "incremental"
)

// ParseMode parses a mode name, defaulting to overwrite
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeOverwrite:
		return ModeOverwrite, nil
	case ModeIncremental:
		return ModeIncremental, nil
	}
	return "", fmt.Errorf("unknown ingest mode %q (overwrite, incremental)", s)
}

// Options configures one import
type Options struct {
	Mode Mode
	// Symbol is used for files without a symbol column
	Symbol string
	// Strict stops the import on the first unmapped symbol
	Strict bool
	Source string
	Hints  identity.Hints
}

// Service imports CSV files
type Service struct {
	market *market.Service
	logger arbor.ILogger
}

// NewService creates an ingest service
func NewService(market *market.Service, logger arbor.ILogger) *Service {
	return &Service{market: market, logger: logger}
}

// ImportFile imports one CSV file
func (s *Service) ImportFile(ctx context.Context, path string, opts Options) (models.UpsertSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.UpsertSummary{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if opts.Source == "" {
		opts.Source = "csv;file=" + filepath.Base(path)
	}
	return s.Import(ctx, f, opts)
}

// Import parses r and writes the rows in one batch
func (s *Service) Import(ctx context.Context, r io.Reader, opts Options) (models.UpsertSummary, error) {
	if opts.Mode == "" {
		opts.Mode = ModeOverwrite
	}
	if opts.Source == "" {
		opts.Source = "csv"
	}

	rows, rowErrors, err := ParseCSV(r, opts.Symbol, opts.Source)
	if err != nil {
		return models.UpsertSummary{}, err
	}

	upsert := market.UpsertOptions{
		Dedup:    models.DedupKeepLast,
		Conflict: models.ConflictUpsert,
		Resolve:  market.ResolveMappedOnly,
		Hints:    opts.Hints,
	}
	if opts.Mode == ModeIncremental {
		upsert.Conflict = models.ConflictIgnore
	}
	if opts.Strict {
		upsert.Resolve = market.ResolveStrict
	}

	summary, err := s.market.UpsertPrices(ctx, rows, upsert)
	if err != nil {
		return models.UpsertSummary{}, err
	}
	summary.Skipped += len(rowErrors)
	summary.Errors = append(rowErrors, summary.Errors...)

	s.logger.Info().
		Str("source", opts.Source).
		Str("mode", string(opts.Mode)).
		Int("rows", len(rows)).
		Int("inserted", summary.Inserted).
		Int("updated", summary.Updated).
		Int("skipped", summary.Skipped).
		Int("duplicates", summary.Duplicates).
		Int("unmapped", len(summary.UnmappedSymbols)).
		Int("errors", len(summary.Errors)).
		Msg("CSV import complete")
	return summary, nil
}
