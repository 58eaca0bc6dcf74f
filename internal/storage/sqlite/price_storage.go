package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/models"
)

// PriceStorage implements interfaces.PriceStorage for SQLite
type PriceStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewPriceStorage creates a new PriceStorage instance
func NewPriceStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.PriceStorage {
	return &PriceStorage{
		db:     db,
		logger: logger,
	}
}

type priceRow struct {
	AssetID       string          `db:"asset_id"`
	TradeDate     string          `db:"trade_date"`
	Open          float64         `db:"open"`
	High          float64         `db:"high"`
	Low           float64         `db:"low"`
	Close         float64         `db:"close"`
	Volume        float64         `db:"volume"`
	PE            sql.NullFloat64 `db:"pe"`
	PETTM         sql.NullFloat64 `db:"pe_ttm"`
	PB            sql.NullFloat64 `db:"pb"`
	PS            sql.NullFloat64 `db:"ps"`
	EPS           sql.NullFloat64 `db:"eps"`
	DividendYield sql.NullFloat64 `db:"dividend_yield"`
	Source        string          `db:"source"`
}

func (r *priceRow) toModel() (models.PriceBar, error) {
	date, err := parseDate(r.TradeDate)
	if err != nil {
		return models.PriceBar{}, fmt.Errorf("bad trade_date %q for %s: %w", r.TradeDate, r.AssetID, err)
	}
	return models.PriceBar{
		AssetID:       r.AssetID,
		TradeDate:     date,
		Open:          r.Open,
		High:          r.High,
		Low:           r.Low,
		Close:         r.Close,
		Volume:        r.Volume,
		PE:            floatPtr(r.PE),
		PETTM:         floatPtr(r.PETTM),
		PB:            floatPtr(r.PB),
		PS:            floatPtr(r.PS),
		EPS:           floatPtr(r.EPS),
		DividendYield: floatPtr(r.DividendYield),
		Source:        r.Source,
	}, nil
}

// LoadPrices returns bars in [start, end] ascending by trade date.
// A zero start means no lower bound. The primary key keeps one row per date.
func (s *PriceStorage) LoadPrices(ctx context.Context, assetID string, start, end time.Time) ([]models.PriceBar, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	lower := "0000-01-01"
	if !start.IsZero() {
		lower = formatDate(start)
	}

	var rows []priceRow
	err := s.db.db.SelectContext(ctx, &rows, `
		SELECT asset_id, trade_date, open, high, low, close, volume, pe, pe_ttm, pb, ps, eps, dividend_yield, source
		FROM vera_prices_daily
		WHERE asset_id = ? AND trade_date >= ? AND trade_date <= ?
		ORDER BY trade_date ASC`, assetID, lower, formatDate(end))
	if err != nil {
		return nil, fmt.Errorf("failed to load prices for %s: %w", assetID, err)
	}

	bars := make([]models.PriceBar, 0, len(rows))
	for i := range rows {
		bar, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// CountPrices returns the number of stored bars for an asset
func (s *PriceStorage) CountPrices(ctx context.Context, assetID string) (int, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	var n int
	if err := s.db.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM vera_prices_daily WHERE asset_id = ?`, assetID); err != nil {
		return 0, fmt.Errorf("failed to count prices for %s: %w", assetID, err)
	}
	return n, nil
}

// LatestPriceDate returns the newest trade date or interfaces.ErrNotFound
func (s *PriceStorage) LatestPriceDate(ctx context.Context, assetID string) (time.Time, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	var latest sql.NullString
	if err := s.db.db.GetContext(ctx, &latest, `SELECT MAX(trade_date) FROM vera_prices_daily WHERE asset_id = ?`, assetID); err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest price date for %s: %w", assetID, err)
	}
	if !latest.Valid {
		return time.Time{}, fmt.Errorf("prices for %s: %w", assetID, interfaces.ErrNotFound)
	}
	return parseDate(latest.String)
}

// WritePrices applies a batch in one transaction. With ConflictFail any
// existing (asset, date) aborts the whole batch.
func (s *PriceStorage) WritePrices(ctx context.Context, batch *interfaces.PriceWriteBatch) (models.UpsertSummary, error) {
	var summary models.UpsertSummary

	err := s.db.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, a := range batch.Assets {
			if err := ensureAsset(ctx, tx, a); err != nil {
				return fmt.Errorf("failed to ensure asset %s: %w", a.AssetID, err)
			}
		}
		for _, m := range batch.Mappings {
			if err := ensureMapping(ctx, tx, m); err != nil {
				return fmt.Errorf("failed to ensure mapping %s/%s: %w", m.RawSymbol, m.Source, err)
			}
		}

		existing, err := existingDates(ctx, tx, batch.Bars)
		if err != nil {
			return err
		}

		if batch.ReplaceRange {
			if err := deleteRanges(ctx, tx, batch.Bars); err != nil {
				return err
			}
		}

		for i := range batch.Bars {
			bar := &batch.Bars[i]
			key := bar.AssetID + "|" + formatDate(bar.TradeDate)
			exists := existing[key]

			switch {
			case batch.ReplaceRange:
				if err := insertPrice(ctx, tx, bar, ""); err != nil {
					return err
				}
			case !exists:
				if err := insertPrice(ctx, tx, bar, ""); err != nil {
					return err
				}
			case batch.Conflict == models.ConflictIgnore:
				summary.Duplicates++
				summary.Skipped++
				continue
			case batch.Conflict == models.ConflictFail:
				return fmt.Errorf("%w: price for %s on %s already exists",
					interfaces.ErrTransactionAbort, bar.AssetID, formatDate(bar.TradeDate))
			default:
				if err := insertPrice(ctx, tx, bar, priceUpsertClause); err != nil {
					return err
				}
			}

			if exists {
				summary.Updated++
			} else {
				summary.Inserted++
				existing[key] = true
			}
		}
		return nil
	})
	if err != nil {
		return models.UpsertSummary{}, err
	}

	s.logger.Debug().
		Int("inserted", summary.Inserted).
		Int("updated", summary.Updated).
		Int("duplicates", summary.Duplicates).
		Msg("Price batch written")
	return summary, nil
}

const priceUpsertClause = `
	ON CONFLICT(asset_id, trade_date) DO UPDATE SET
		open = excluded.open,
		high = excluded.high,
		low = excluded.low,
		close = excluded.close,
		volume = excluded.volume,
		pe = excluded.pe,
		pe_ttm = excluded.pe_ttm,
		pb = excluded.pb,
		ps = excluded.ps,
		eps = excluded.eps,
		dividend_yield = excluded.dividend_yield,
		source = excluded.source,
		updated_at = strftime('%s', 'now')`

func insertPrice(ctx context.Context, tx *sqlx.Tx, b *models.PriceBar, conflictClause string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO vera_prices_daily (asset_id, trade_date, open, high, low, close, volume, pe, pe_ttm, pb, ps, eps, dividend_yield, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`+conflictClause,
		b.AssetID, formatDate(b.TradeDate), b.Open, b.High, b.Low, b.Close, b.Volume,
		nullFloat(b.PE), nullFloat(b.PETTM), nullFloat(b.PB), nullFloat(b.PS), nullFloat(b.EPS),
		nullFloat(b.DividendYield), b.Source)
	if err != nil {
		return fmt.Errorf("failed to write price %s %s: %w", b.AssetID, formatDate(b.TradeDate), err)
	}
	return nil
}

type dateRange struct {
	from, to string
}

func batchRanges(bars []models.PriceBar) map[string]*dateRange {
	ranges := make(map[string]*dateRange)
	for i := range bars {
		d := formatDate(bars[i].TradeDate)
		r, ok := ranges[bars[i].AssetID]
		if !ok {
			ranges[bars[i].AssetID] = &dateRange{from: d, to: d}
			continue
		}
		if d < r.from {
			r.from = d
		}
		if d > r.to {
			r.to = d
		}
	}
	return ranges
}

func existingDates(ctx context.Context, tx *sqlx.Tx, bars []models.PriceBar) (map[string]bool, error) {
	existing := make(map[string]bool)
	for assetID, r := range batchRanges(bars) {
		var dates []string
		err := tx.SelectContext(ctx, &dates, `
			SELECT trade_date FROM vera_prices_daily
			WHERE asset_id = ? AND trade_date >= ? AND trade_date <= ?`, assetID, r.from, r.to)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to read existing dates for %s: %w", assetID, err)
		}
		for _, d := range dates {
			existing[assetID+"|"+d] = true
		}
	}
	return existing, nil
}

func deleteRanges(ctx context.Context, tx *sqlx.Tx, bars []models.PriceBar) error {
	for assetID, r := range batchRanges(bars) {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vera_prices_daily WHERE asset_id = ? AND trade_date >= ? AND trade_date <= ?`,
			assetID, r.from, r.to); err != nil {
			return fmt.Errorf("failed to clear range for %s: %w", assetID, err)
		}
	}
	return nil
}
