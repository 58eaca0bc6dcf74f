package sqlite

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/interfaces"
)

// Manager implements the StorageManager interface
type Manager struct {
	db           *SQLiteDB
	asset        interfaces.AssetStorage
	price        interfaces.PriceStorage
	fundamentals interfaces.FundamentalsStorage
	drawdown     interfaces.DrawdownStorage
	snapshot     interfaces.SnapshotStorage
	logger       arbor.ILogger
}

// NewManager creates a new SQLite storage manager
func NewManager(logger arbor.ILogger, config *common.SQLiteConfig) (interfaces.StorageManager, error) {
	db, err := NewSQLiteDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:           db,
		asset:        NewAssetStorage(db, logger),
		price:        NewPriceStorage(db, logger),
		fundamentals: NewFundamentalsStorage(db, logger),
		drawdown:     NewDrawdownStorage(db, logger),
		snapshot:     NewSnapshotStorage(db, logger),
		logger:       logger,
	}, nil
}

// AssetStorage returns the reference data storage
func (m *Manager) AssetStorage() interfaces.AssetStorage {
	return m.asset
}

// PriceStorage returns the daily price storage
func (m *Manager) PriceStorage() interfaces.PriceStorage {
	return m.price
}

// FundamentalsStorage returns the fundamentals storage
func (m *Manager) FundamentalsStorage() interfaces.FundamentalsStorage {
	return m.fundamentals
}

// DrawdownStorage returns the drawdown state storage
func (m *Manager) DrawdownStorage() interfaces.DrawdownStorage {
	return m.drawdown
}

// SnapshotStorage returns the snapshot storage
func (m *Manager) SnapshotStorage() interfaces.SnapshotStorage {
	return m.snapshot
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
