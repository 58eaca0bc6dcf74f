package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/models"
)

// dashboardEntry is the stored form of a cached dashboard. The payload is JSON
// so cached entries read back exactly as the CLI prints them.
type dashboardEntry struct {
	Key      string
	AssetID  string `badgerhold:"index"`
	Payload  []byte
	CachedAt time.Time
}

// DashboardCache implements interfaces.DashboardCache on badgerhold
type DashboardCache struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDashboardCache creates a dashboard cache over an open store
func NewDashboardCache(db *BadgerDB, logger arbor.ILogger) interfaces.DashboardCache {
	return &DashboardCache{
		db:     db,
		logger: logger,
	}
}

// Get returns a cached dashboard or interfaces.ErrNotFound
func (c *DashboardCache) Get(ctx context.Context, key string) (*models.DashboardData, error) {
	var entry dashboardEntry
	err := c.db.Store().Get(key, &entry)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}

	var data models.DashboardData
	if err := json.Unmarshal(entry.Payload, &data); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	return &data, nil
}

// Put stores a dashboard under key, replacing any previous entry
func (c *DashboardCache) Put(ctx context.Context, key string, data *models.DashboardData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode dashboard: %w", err)
	}

	entry := dashboardEntry{
		Key:      key,
		AssetID:  data.AssetID,
		Payload:  payload,
		CachedAt: time.Now().UTC(),
	}
	if err := c.db.Store().Upsert(key, &entry); err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	return nil
}

// InvalidateAsset drops every cached dashboard of an asset
func (c *DashboardCache) InvalidateAsset(ctx context.Context, assetID string) error {
	err := c.db.Store().DeleteMatching(&dashboardEntry{}, badgerhold.Where("AssetID").Eq(assetID).Index("AssetID"))
	if err != nil {
		return fmt.Errorf("failed to invalidate cache for %s: %w", assetID, err)
	}
	c.logger.Debug().Str("asset_id", assetID).Msg("Dashboard cache invalidated")
	return nil
}

// Close closes the underlying store
func (c *DashboardCache) Close() error {
	return c.db.Close()
}

// CacheKey builds the cache key of a dashboard
func CacheKey(assetID string, asOf time.Time, profile models.RiskProfile) string {
	return fmt.Sprintf("%s|%s|%s|%s", assetID, asOf.Format(models.DateLayout), profile.Profile, profile.WarningVerbosity)
}
