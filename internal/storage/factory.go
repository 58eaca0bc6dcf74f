package storage

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/storage/badger"
	"github.com/ternarybob/vera/internal/storage/sqlite"
)

// NewStorageManager creates the SQLite-backed storage manager from config
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	return sqlite.NewManager(logger, &config.Storage.SQLite)
}

// NewDashboardCache opens the Badger dashboard cache, or returns nil when disabled
func NewDashboardCache(logger arbor.ILogger, config *common.Config) (interfaces.DashboardCache, error) {
	if !config.Storage.Badger.Enabled {
		return nil, nil
	}
	db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, err
	}
	return badger.NewDashboardCache(db, logger), nil
}
