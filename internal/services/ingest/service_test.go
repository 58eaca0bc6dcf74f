package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/services/identity"
	"github.com/ternarybob/vera/internal/services/market"
	"github.com/ternarybob/vera/internal/storage/sqlite"
)

const pricesCSV = `date,symbol,close,pe_ttm
2024-01-02,US:EQUITY:TSLA,100,50
2024-01-03,US:EQUITY:TSLA,101,51
2024-01-04,US:EQUITY:TSLA,102,52
2024-01-02,UNKNOWNCO,5,
`

func setupService(t *testing.T) (*Service, interfaces.StorageManager) {
	t.Helper()
	logger := arbor.NewLogger()
	config := common.NewDefaultConfig()
	manager, err := sqlite.NewManager(logger, &common.SQLiteConfig{
		Path:         t.TempDir() + "/ingest.db",
		BusyTimeout:  5000,
		QueryTimeout: "5s",
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	resolver := identity.NewService(manager.AssetStorage(), &config.Identity, logger)
	return NewService(market.NewService(manager, resolver, nil, logger), logger), manager
}

func countBars(t *testing.T, manager interfaces.StorageManager, id string) int {
	t.Helper()
	bars, err := manager.PriceStorage().LoadPrices(context.Background(), id, time.Time{}, time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return len(bars)
}

func TestImport_OverwriteIsIdempotent(t *testing.T) {
	svc, manager := setupService(t)
	ctx := context.Background()

	first, err := svc.Import(ctx, strings.NewReader(pricesCSV), Options{Mode: ModeOverwrite})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Inserted)
	assert.Equal(t, []string{"UNKNOWNCO"}, first.UnmappedSymbols)
	assert.Equal(t, 1, first.Skipped)

	second, err := svc.Import(ctx, strings.NewReader(pricesCSV), Options{Mode: ModeOverwrite})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 3, second.Updated)
	assert.Equal(t, 3, countBars(t, manager, "US:EQUITY:TSLA"))

	_, err = manager.AssetStorage().GetAsset(ctx, "US:EQUITY:UNKNOWNCO")
	assert.True(t, errors.Is(err, interfaces.ErrNotFound), "unknown symbols are not registered")
}

func TestImport_IncrementalReportsDuplicates(t *testing.T) {
	svc, manager := setupService(t)
	ctx := context.Background()

	_, err := svc.Import(ctx, strings.NewReader(pricesCSV), Options{Mode: ModeIncremental})
	require.NoError(t, err)

	second, err := svc.Import(ctx, strings.NewReader(pricesCSV), Options{Mode: ModeIncremental})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 3, second.Duplicates)
	assert.Equal(t, 3, countBars(t, manager, "US:EQUITY:TSLA"))
}

func TestImport_StrictStopsOnUnknownSymbol(t *testing.T) {
	svc, manager := setupService(t)

	_, err := svc.Import(context.Background(), strings.NewReader(pricesCSV), Options{Strict: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrUnknownSymbol))
	assert.Zero(t, countBars(t, manager, "US:EQUITY:TSLA"), "nothing is written")
}

func TestImportFile_SymbolFlagAndRowErrors(t *testing.T) {
	svc, manager := setupService(t)

	path := filepath.Join(t.TempDir(), "00700.csv")
	require.NoError(t, os.WriteFile(path, []byte("date,close\n2024-01-02,300\nbad,301\n2024-01-03,302\n"), 0o644))

	summary, err := svc.ImportFile(context.Background(), path, Options{Symbol: "HK:STOCK:00700"})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Inserted)
	assert.Equal(t, 1, summary.Skipped)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, 3, summary.Errors[0].Line)
	assert.Equal(t, 2, countBars(t, manager, "HK:STOCK:00700"))
}
