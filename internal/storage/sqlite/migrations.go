package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// migrate runs database migrations
func (s *SQLiteDB) migrate() error {
	ctx := context.Background()

	if err := s.createMigrationsTable(ctx); err != nil {
		return err
	}

	migrations := []migration{
		{version: 1, name: "reference_data", up: migrateV1},
		{version: 2, name: "prices_and_fundamentals", up: migrateV2},
		{version: 3, name: "drawdown_state", up: migrateV3},
		{version: 4, name: "analysis_snapshots", up: migrateV4},
	}

	for _, m := range migrations {
		if err := s.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}

	return nil
}

type migration struct {
	version int
	name    string
	up      func(context.Context, *sqlx.Tx) error
}

func (s *SQLiteDB) createMigrationsTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *SQLiteDB) runMigration(ctx context.Context, m migration) error {
	var count int
	if err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.version); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := m.up(ctx, tx); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, strftime('%s', 'now'))",
			m.version, m.name)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Debug().Int("version", m.version).Str("name", m.name).Msg("Applied migration")
	return nil
}

func execAll(ctx context.Context, tx *sqlx.Tx, queries []string) error {
	for _, q := range queries {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("%w\nquery: %s", err, q)
		}
	}
	return nil
}

// migrateV1 creates assets, symbol mappings, classifications and the sector proxy map
func migrateV1(ctx context.Context, tx *sqlx.Tx) error {
	return execAll(ctx, tx, []string{
		`CREATE TABLE IF NOT EXISTS assets (
			asset_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			market TEXT NOT NULL,
			asset_type TEXT NOT NULL,
			index_role TEXT NOT NULL DEFAULT '',
			sector_proxy_id TEXT,
			market_index_id TEXT,
			currency TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER DEFAULT (strftime('%s', 'now')),
			updated_at INTEGER DEFAULT (strftime('%s', 'now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_market_role ON assets(market, index_role)`,

		`CREATE TABLE IF NOT EXISTS symbol_mappings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			canonical_id TEXT NOT NULL,
			raw_symbol TEXT NOT NULL,
			source TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 100,
			is_active INTEGER NOT NULL DEFAULT 1,
			UNIQUE (raw_symbol, source)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_symbol_mappings_raw ON symbol_mappings(raw_symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_symbol_mappings_canonical ON symbol_mappings(canonical_id)`,

		`CREATE TABLE IF NOT EXISTS asset_classification (
			asset_id TEXT NOT NULL,
			scheme TEXT NOT NULL,
			sector_code TEXT NOT NULL DEFAULT '',
			sector_name TEXT NOT NULL DEFAULT '',
			industry_code TEXT NOT NULL DEFAULT '',
			industry_name TEXT NOT NULL DEFAULT '',
			as_of_date TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (asset_id, scheme, as_of_date)
		)`,

		`CREATE TABLE IF NOT EXISTS sector_proxy_map (
			scheme TEXT NOT NULL,
			sector_code TEXT NOT NULL,
			market TEXT NOT NULL,
			proxy_etf_id TEXT NOT NULL DEFAULT '',
			market_index_id TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (scheme, sector_code, market)
		)`,
	})
}

// migrateV2 creates daily prices and fundamentals
func migrateV2(ctx context.Context, tx *sqlx.Tx) error {
	return execAll(ctx, tx, []string{
		`CREATE TABLE IF NOT EXISTS vera_prices_daily (
			asset_id TEXT NOT NULL,
			trade_date TEXT NOT NULL,
			open REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			close REAL NOT NULL,
			volume REAL NOT NULL DEFAULT 0,
			pe REAL,
			pe_ttm REAL,
			pb REAL,
			ps REAL,
			eps REAL,
			dividend_yield REAL,
			source TEXT NOT NULL DEFAULT '',
			updated_at INTEGER DEFAULT (strftime('%s', 'now')),
			PRIMARY KEY (asset_id, trade_date)
		)`,

		`CREATE TABLE IF NOT EXISTS financial_fundamentals (
			asset_id TEXT NOT NULL,
			report_date TEXT NOT NULL,
			revenue_ttm REAL,
			net_income_ttm REAL,
			operating_cashflow_ttm REAL,
			free_cashflow_ttm REAL,
			total_assets REAL,
			total_liabilities REAL,
			total_debt REAL,
			cash REAL,
			net_debt REAL,
			debt_to_equity REAL,
			interest_coverage REAL,
			current_ratio REAL,
			dividend_yield REAL,
			payout_ratio REAL,
			buyback_ratio REAL,
			eps_ttm REAL,
			dps REAL,
			shares_outstanding REAL,
			roe REAL,
			currency TEXT NOT NULL DEFAULT '',
			updated_at INTEGER DEFAULT (strftime('%s', 'now')),
			PRIMARY KEY (asset_id, report_date)
		)`,
	})
}

// migrateV3 creates the append-only drawdown state table
func migrateV3(ctx context.Context, tx *sqlx.Tx) error {
	return execAll(ctx, tx, []string{
		`CREATE TABLE IF NOT EXISTS drawdown_state_history (
			asset_id TEXT NOT NULL,
			trade_date TEXT NOT NULL,
			raw_state TEXT NOT NULL,
			confirmed_state TEXT NOT NULL,
			confirm_days_remaining INTEGER NOT NULL DEFAULT 0,
			transition_progress REAL NOT NULL DEFAULT 0,
			close REAL NOT NULL,
			peak_price_to_date REAL NOT NULL,
			valley_price_to_date REAL NOT NULL,
			current_drawdown REAL NOT NULL,
			recovery_progress REAL NOT NULL,
			created_at INTEGER DEFAULT (strftime('%s', 'now')),
			PRIMARY KEY (asset_id, trade_date)
		)`,
	})
}

// migrateV4 creates analysis snapshots and their child tables
func migrateV4(ctx context.Context, tx *sqlx.Tx) error {
	return execAll(ctx, tx, []string{
		`CREATE TABLE IF NOT EXISTS analysis_snapshots (
			snapshot_id TEXT PRIMARY KEY,
			asset_id TEXT NOT NULL,
			as_of_date TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			risk_level TEXT NOT NULL,
			valuation_anchor TEXT NOT NULL DEFAULT '',
			valuation_status TEXT NOT NULL DEFAULT '',
			is_value_trap INTEGER NOT NULL DEFAULT 0,
			risk_card_json TEXT NOT NULL,
			risk_profile TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_asset ON analysis_snapshots(asset_id, as_of_date, created_at)`,

		`CREATE TABLE IF NOT EXISTS metric_details (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			snapshot_id TEXT NOT NULL,
			metric_key TEXT NOT NULL,
			value REAL,
			text_value TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (snapshot_id) REFERENCES analysis_snapshots(snapshot_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metric_details_snapshot ON metric_details(snapshot_id)`,

		`CREATE TABLE IF NOT EXISTS risk_overlay_snapshot (
			snapshot_id TEXT PRIMARY KEY,
			ind_dd_state TEXT NOT NULL DEFAULT '',
			ind_path_risk TEXT NOT NULL DEFAULT '',
			ind_position_pct REAL NOT NULL DEFAULT 0,
			stock_vs_sector_rs_3m REAL,
			sector_proxy_id TEXT NOT NULL DEFAULT '',
			sector_dd_state TEXT NOT NULL DEFAULT '',
			sector_vs_market_rs_3m REAL,
			market_index_id TEXT NOT NULL DEFAULT '',
			market_dd_state TEXT NOT NULL DEFAULT '',
			market_position_pct REAL NOT NULL DEFAULT 0,
			growth_vs_market_rs_3m REAL,
			value_vs_market_rs_3m REAL,
			amplification TEXT NOT NULL DEFAULT '',
			regime_label TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (snapshot_id) REFERENCES analysis_snapshots(snapshot_id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS quality_snapshot (
			snapshot_id TEXT PRIMARY KEY,
			quality_level TEXT NOT NULL,
			quality_score REAL NOT NULL DEFAULT 0,
			flags_json TEXT NOT NULL DEFAULT '[]',
			dividend_safety TEXT NOT NULL DEFAULT '',
			earnings_phase TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (snapshot_id) REFERENCES analysis_snapshots(snapshot_id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS behavior_flags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			snapshot_id TEXT NOT NULL,
			level TEXT NOT NULL,
			code TEXT NOT NULL,
			message TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (snapshot_id) REFERENCES analysis_snapshots(snapshot_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_behavior_flags_snapshot ON behavior_flags(snapshot_id)`,

		`CREATE TABLE IF NOT EXISTS market_risk_snapshot (
			snapshot_id TEXT PRIMARY KEY,
			index_role TEXT NOT NULL DEFAULT '',
			dd_state TEXT NOT NULL DEFAULT '',
			path_risk TEXT NOT NULL DEFAULT '',
			position_pct REAL NOT NULL DEFAULT 0,
			conclusion TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (snapshot_id) REFERENCES analysis_snapshots(snapshot_id) ON DELETE CASCADE
		)`,
	})
}
