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

// FundamentalsStorage implements interfaces.FundamentalsStorage for SQLite
type FundamentalsStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewFundamentalsStorage creates a new FundamentalsStorage instance
func NewFundamentalsStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.FundamentalsStorage {
	return &FundamentalsStorage{
		db:     db,
		logger: logger,
	}
}

type fundamentalsRow struct {
	AssetID              string          `db:"asset_id"`
	ReportDate           string          `db:"report_date"`
	RevenueTTM           sql.NullFloat64 `db:"revenue_ttm"`
	NetIncomeTTM         sql.NullFloat64 `db:"net_income_ttm"`
	OperatingCashflowTTM sql.NullFloat64 `db:"operating_cashflow_ttm"`
	FreeCashflowTTM      sql.NullFloat64 `db:"free_cashflow_ttm"`
	TotalAssets          sql.NullFloat64 `db:"total_assets"`
	TotalLiabilities     sql.NullFloat64 `db:"total_liabilities"`
	TotalDebt            sql.NullFloat64 `db:"total_debt"`
	Cash                 sql.NullFloat64 `db:"cash"`
	NetDebt              sql.NullFloat64 `db:"net_debt"`
	DebtToEquity         sql.NullFloat64 `db:"debt_to_equity"`
	InterestCoverage     sql.NullFloat64 `db:"interest_coverage"`
	CurrentRatio         sql.NullFloat64 `db:"current_ratio"`
	DividendYield        sql.NullFloat64 `db:"dividend_yield"`
	PayoutRatio          sql.NullFloat64 `db:"payout_ratio"`
	BuybackRatio         sql.NullFloat64 `db:"buyback_ratio"`
	EPSTTM               sql.NullFloat64 `db:"eps_ttm"`
	DPS                  sql.NullFloat64 `db:"dps"`
	SharesOutstanding    sql.NullFloat64 `db:"shares_outstanding"`
	ROE                  sql.NullFloat64 `db:"roe"`
	Currency             string          `db:"currency"`
}

const fundamentalsColumns = `asset_id, report_date, revenue_ttm, net_income_ttm, operating_cashflow_ttm, free_cashflow_ttm,
	total_assets, total_liabilities, total_debt, cash, net_debt, debt_to_equity, interest_coverage, current_ratio,
	dividend_yield, payout_ratio, buyback_ratio, eps_ttm, dps, shares_outstanding, roe, currency`

func (r *fundamentalsRow) toModel() *models.FundamentalsRow {
	return &models.FundamentalsRow{
		AssetID:              r.AssetID,
		ReportDate:           mustParseDate(r.ReportDate),
		RevenueTTM:           floatPtr(r.RevenueTTM),
		NetIncomeTTM:         floatPtr(r.NetIncomeTTM),
		OperatingCashflowTTM: floatPtr(r.OperatingCashflowTTM),
		FreeCashflowTTM:      floatPtr(r.FreeCashflowTTM),
		TotalAssets:          floatPtr(r.TotalAssets),
		TotalLiabilities:     floatPtr(r.TotalLiabilities),
		TotalDebt:            floatPtr(r.TotalDebt),
		Cash:                 floatPtr(r.Cash),
		NetDebt:              floatPtr(r.NetDebt),
		DebtToEquity:         floatPtr(r.DebtToEquity),
		InterestCoverage:     floatPtr(r.InterestCoverage),
		CurrentRatio:         floatPtr(r.CurrentRatio),
		DividendYield:        floatPtr(r.DividendYield),
		PayoutRatio:          floatPtr(r.PayoutRatio),
		BuybackRatio:         floatPtr(r.BuybackRatio),
		EPSTTM:               floatPtr(r.EPSTTM),
		DPS:                  floatPtr(r.DPS),
		SharesOutstanding:    floatPtr(r.SharesOutstanding),
		ROE:                  floatPtr(r.ROE),
		Currency:             r.Currency,
	}
}

// LoadFundamentalsAt returns the latest row with report_date <= asOf, or nil
func (s *FundamentalsStorage) LoadFundamentalsAt(ctx context.Context, assetID string, asOf time.Time) (*models.FundamentalsRow, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	var row fundamentalsRow
	err := s.db.db.GetContext(ctx, &row, `
		SELECT `+fundamentalsColumns+`
		FROM financial_fundamentals
		WHERE asset_id = ? AND report_date <= ?
		ORDER BY report_date DESC
		LIMIT 1`, assetID, formatDate(asOf))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load fundamentals for %s: %w", assetID, err)
	}
	return row.toModel(), nil
}

// LoadFundamentalsHistory returns up to limit rows on or before asOf, oldest first
func (s *FundamentalsStorage) LoadFundamentalsHistory(ctx context.Context, assetID string, asOf time.Time, limit int) ([]*models.FundamentalsRow, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 40
	}

	var rows []fundamentalsRow
	err := s.db.db.SelectContext(ctx, &rows, `
		SELECT `+fundamentalsColumns+`
		FROM financial_fundamentals
		WHERE asset_id = ? AND report_date <= ?
		ORDER BY report_date DESC
		LIMIT ?`, assetID, formatDate(asOf), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load fundamentals history for %s: %w", assetID, err)
	}

	out := make([]*models.FundamentalsRow, len(rows))
	for i := range rows {
		out[len(rows)-1-i] = rows[i].toModel()
	}
	return out, nil
}

// UpsertFundamentals writes rows in one transaction under the conflict policy
func (s *FundamentalsStorage) UpsertFundamentals(ctx context.Context, rows []*models.FundamentalsRow, conflict models.ConflictPolicy) (models.UpsertSummary, error) {
	var summary models.UpsertSummary

	err := s.db.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, f := range rows {
			var n int
			if err := tx.GetContext(ctx, &n,
				`SELECT COUNT(*) FROM financial_fundamentals WHERE asset_id = ? AND report_date = ?`,
				f.AssetID, formatDate(f.ReportDate)); err != nil {
				return fmt.Errorf("failed to check fundamentals %s: %w", f.AssetID, err)
			}
			exists := n > 0

			clause := ""
			switch {
			case !exists:
			case conflict == models.ConflictIgnore:
				summary.Duplicates++
				summary.Skipped++
				continue
			case conflict == models.ConflictFail:
				return fmt.Errorf("%w: fundamentals for %s on %s already exist",
					interfaces.ErrTransactionAbort, f.AssetID, formatDate(f.ReportDate))
			default:
				clause = fundamentalsUpsertClause
			}

			if err := insertFundamentals(ctx, tx, f, clause); err != nil {
				return err
			}
			if exists {
				summary.Updated++
			} else {
				summary.Inserted++
			}
		}
		return nil
	})
	if err != nil {
		return models.UpsertSummary{}, err
	}
	return summary, nil
}

const fundamentalsUpsertClause = `
	ON CONFLICT(asset_id, report_date) DO UPDATE SET
		revenue_ttm = excluded.revenue_ttm,
		net_income_ttm = excluded.net_income_ttm,
		operating_cashflow_ttm = excluded.operating_cashflow_ttm,
		free_cashflow_ttm = excluded.free_cashflow_ttm,
		total_assets = excluded.total_assets,
		total_liabilities = excluded.total_liabilities,
		total_debt = excluded.total_debt,
		cash = excluded.cash,
		net_debt = excluded.net_debt,
		debt_to_equity = excluded.debt_to_equity,
		interest_coverage = excluded.interest_coverage,
		current_ratio = excluded.current_ratio,
		dividend_yield = excluded.dividend_yield,
		payout_ratio = excluded.payout_ratio,
		buyback_ratio = excluded.buyback_ratio,
		eps_ttm = excluded.eps_ttm,
		dps = excluded.dps,
		shares_outstanding = excluded.shares_outstanding,
		roe = excluded.roe,
		currency = excluded.currency,
		updated_at = strftime('%s', 'now')`

func insertFundamentals(ctx context.Context, tx *sqlx.Tx, f *models.FundamentalsRow, clause string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO financial_fundamentals (`+fundamentalsColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`+clause,
		f.AssetID, formatDate(f.ReportDate),
		nullFloat(f.RevenueTTM), nullFloat(f.NetIncomeTTM), nullFloat(f.OperatingCashflowTTM), nullFloat(f.FreeCashflowTTM),
		nullFloat(f.TotalAssets), nullFloat(f.TotalLiabilities), nullFloat(f.TotalDebt), nullFloat(f.Cash),
		nullFloat(f.NetDebt), nullFloat(f.DebtToEquity), nullFloat(f.InterestCoverage), nullFloat(f.CurrentRatio),
		nullFloat(f.DividendYield), nullFloat(f.PayoutRatio), nullFloat(f.BuybackRatio),
		nullFloat(f.EPSTTM), nullFloat(f.DPS), nullFloat(f.SharesOutstanding), nullFloat(f.ROE),
		f.Currency)
	if err != nil {
		return fmt.Errorf("failed to write fundamentals %s %s: %w", f.AssetID, formatDate(f.ReportDate), err)
	}
	return nil
}
