package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/interfaces"
	"github.com/ternarybob/vera/internal/models"
	"github.com/ternarybob/vera/internal/services/analysis"
	"github.com/ternarybob/vera/internal/services/identity"
	"github.com/ternarybob/vera/internal/services/report"
	"github.com/ternarybob/vera/internal/services/scheduler"
)

// mockRunner implements SnapshotRunner for testing
type mockRunner struct {
	runFunc func(ctx context.Context, raw string, asOf time.Time, opts analysis.RunOptions) (*models.DashboardData, error)
}

func (m *mockRunner) RunSnapshot(ctx context.Context, raw string, asOf time.Time, opts analysis.RunOptions) (*models.DashboardData, error) {
	return m.runFunc(ctx, raw, asOf, opts)
}

// mockRenderer implements Renderer for testing
type mockRenderer struct{}

func (mockRenderer) Render(data *models.DashboardData, format report.Format) ([]byte, error) {
	return []byte(fmt.Sprintf("%s as %s", data.AssetID, format)), nil
}

// mockSnapshots implements SnapshotStore for testing
type mockSnapshots struct {
	rows    []*models.AnalysisSnapshot
	deleted []string
}

func (m *mockSnapshots) Get(ctx context.Context, id string) (*models.SnapshotRecord, error) {
	for _, s := range m.rows {
		if s.SnapshotID == id {
			return &models.SnapshotRecord{Snapshot: *s}, nil
		}
	}
	return nil, fmt.Errorf("snapshot %s: %w", id, interfaces.ErrNotFound)
}

func (m *mockSnapshots) LatestPerAsset(ctx context.Context) ([]*models.AnalysisSnapshot, error) {
	return m.rows, nil
}

func (m *mockSnapshots) HistoryForAsset(ctx context.Context, assetID string, limit int) ([]*models.AnalysisSnapshot, error) {
	var out []*models.AnalysisSnapshot
	for _, s := range m.rows {
		if s.AssetID == assetID && (limit == 0 || len(out) < limit) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSnapshots) Delete(ctx context.Context, id string) error {
	if _, err := m.Get(ctx, id); err != nil {
		return err
	}
	m.deleted = append(m.deleted, id)
	return nil
}

// mockResolver implements SymbolResolver for testing
type mockResolver struct{}

func (mockResolver) Resolve(ctx context.Context, raw string, hints identity.Hints) (models.Resolution, error) {
	switch raw {
	case "AAPL":
		return models.Resolution{RawSymbol: raw, CanonicalID: "US:STOCK:AAPL"}, nil
	case "700":
		return models.Resolution{}, fmt.Errorf("700: %w", interfaces.ErrAmbiguousSymbol)
	}
	return models.Resolution{}, fmt.Errorf("%s: %w", raw, interfaces.ErrUnknownSymbol)
}

func testOptions(profile string, save bool) (analysis.RunOptions, error) {
	p, err := models.ParseRiskProfile(profile, "")
	if err != nil {
		return analysis.RunOptions{}, err
	}
	return analysis.RunOptions{Profile: p, SaveToDB: save}, nil
}

func newAssetHandler(runner *mockRunner) *AssetHandler {
	return NewAssetHandler(runner, mockRenderer{}, testOptions, arbor.NewLogger())
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{interfaces.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("x: %w", interfaces.ErrUnknownSymbol), http.StatusNotFound},
		{interfaces.ErrAmbiguousSymbol, http.StatusConflict},
		{interfaces.ErrInvalidAssetID, http.StatusBadRequest},
		{interfaces.ErrInsufficientHistory, http.StatusUnprocessableEntity},
		{interfaces.ErrDataUnavailable, http.StatusUnprocessableEntity},
		{fmt.Errorf("disk"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestDashboardHandler_PassesQuery(t *testing.T) {
	var gotAsOf time.Time
	var gotOpts analysis.RunOptions
	runner := &mockRunner{runFunc: func(ctx context.Context, raw string, asOf time.Time, opts analysis.RunOptions) (*models.DashboardData, error) {
		gotAsOf, gotOpts = asOf, opts
		return &models.DashboardData{AssetID: "HK:STOCK:00700", AsOfDate: asOf}, nil
	}}
	h := newAssetHandler(runner)

	req := httptest.NewRequest(http.MethodGet, "/api/assets/700/dashboard?as_of=2024-06-28&profile=aggressive&save=true&market=hk", nil)
	rec := httptest.NewRecorder()
	h.DashboardHandler(rec, req, "700")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HK:STOCK:00700", decode(t, rec)["asset_id"])
	assert.Equal(t, time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC), gotAsOf)
	assert.True(t, gotOpts.SaveToDB)
	assert.Equal(t, models.ProfileAggressive, gotOpts.Profile.Profile)
	assert.Equal(t, "HK", gotOpts.Hints.Market)
}

func TestDashboardHandler_Errors(t *testing.T) {
	runner := &mockRunner{runFunc: func(ctx context.Context, raw string, asOf time.Time, opts analysis.RunOptions) (*models.DashboardData, error) {
		return nil, fmt.Errorf("%s: %w", raw, interfaces.ErrAmbiguousSymbol)
	}}
	h := newAssetHandler(runner)

	rec := httptest.NewRecorder()
	h.DashboardHandler(rec, httptest.NewRequest(http.MethodGet, "/api/assets/700/dashboard", nil), "700")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "error", decode(t, rec)["status"])

	rec = httptest.NewRecorder()
	h.DashboardHandler(rec, httptest.NewRequest(http.MethodGet, "/x?as_of=28-06-2024", nil), "700")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.DashboardHandler(rec, httptest.NewRequest(http.MethodGet, "/x?profile=yolo", nil), "700")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.DashboardHandler(rec, httptest.NewRequest(http.MethodPost, "/x", nil), "700")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestReportHandler_ContentTypes(t *testing.T) {
	runner := &mockRunner{runFunc: func(ctx context.Context, raw string, asOf time.Time, opts analysis.RunOptions) (*models.DashboardData, error) {
		return &models.DashboardData{AssetID: "US:INDEX:^GSPC"}, nil
	}}
	h := newAssetHandler(runner)

	tests := []struct {
		query string
		ct    string
	}{
		{"", "text/markdown; charset=utf-8"},
		{"?format=html", "text/html; charset=utf-8"},
		{"?format=pdf", "application/pdf"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ReportHandler(rec, httptest.NewRequest(http.MethodGet, "/x"+tt.query, nil), "^GSPC")
		require.Equal(t, http.StatusOK, rec.Code, tt.query)
		assert.Equal(t, tt.ct, rec.Header().Get("Content-Type"))
	}

	rec := httptest.NewRecorder()
	h.ReportHandler(rec, httptest.NewRequest(http.MethodGet, "/x?format=docx", nil), "^GSPC")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSnapshotHandler(t *testing.T) {
	store := &mockSnapshots{rows: []*models.AnalysisSnapshot{
		{SnapshotID: "a1", AssetID: "US:STOCK:AAPL", RiskLevel: models.RiskLow},
		{SnapshotID: "h1", AssetID: "HK:STOCK:00700", RiskLevel: models.RiskHigh},
	}}
	h := NewSnapshotHandler(store, mockResolver{}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.ListHandler(rec, httptest.NewRequest(http.MethodGet, "/api/snapshots", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["count"])

	rec = httptest.NewRecorder()
	h.GetHandler(rec, httptest.NewRequest(http.MethodGet, "/api/snapshots/h1", nil), "h1")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.GetHandler(rec, httptest.NewRequest(http.MethodGet, "/api/snapshots/zz", nil), "zz")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.HistoryHandler(rec, httptest.NewRequest(http.MethodGet, "/api/assets/AAPL/history", nil), "AAPL")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "US:STOCK:AAPL", body["asset_id"])
	assert.EqualValues(t, 1, body["count"])

	rec = httptest.NewRecorder()
	h.HistoryHandler(rec, httptest.NewRequest(http.MethodGet, "/api/assets/700/history", nil), "700")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	h.DeleteHandler(rec, httptest.NewRequest(http.MethodDelete, "/api/snapshots/a1", nil), "a1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a1"}, store.deleted)
}

// mockScheduler implements JobScheduler for testing
type mockScheduler struct {
	mu      sync.Mutex
	running bool
	busy    bool
	ran     chan string
}

func (m *mockScheduler) IsRunning() bool { return m.running }

func (m *mockScheduler) RunNow(name string) error {
	m.ran <- name
	return nil
}

func (m *mockScheduler) GetJobStatus(name string) (*scheduler.JobStatus, error) {
	if name != scheduler.WatchlistJobName {
		return nil, fmt.Errorf("job %s: %w", name, interfaces.ErrNotFound)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &scheduler.JobStatus{Name: name, IsRunning: m.busy}, nil
}

func (m *mockScheduler) GetAllJobStatuses() []*scheduler.JobStatus {
	s, _ := m.GetJobStatus(scheduler.WatchlistJobName)
	return []*scheduler.JobStatus{s}
}

func TestSchedulerHandler(t *testing.T) {
	sched := &mockScheduler{running: true, ran: make(chan string, 1)}
	h := NewSchedulerHandler(sched, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.ListJobsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["running"])

	rec = httptest.NewRecorder()
	h.RunJobHandler(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/watchlist/run", nil), scheduler.WatchlistJobName)
	require.Equal(t, http.StatusAccepted, rec.Code)
	select {
	case name := <-sched.ran:
		assert.Equal(t, scheduler.WatchlistJobName, name)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not started")
	}

	rec = httptest.NewRecorder()
	h.RunJobHandler(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/nope/run", nil), "nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	sched.mu.Lock()
	sched.busy = true
	sched.mu.Unlock()
	rec = httptest.NewRecorder()
	h.RunJobHandler(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/watchlist/run", nil), scheduler.WatchlistJobName)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatusHandler(t *testing.T) {
	h := NewStatusHandler(nil, true, false)

	rec := httptest.NewRecorder()
	h.GetStatusHandler(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["cache_enabled"])
	assert.Equal(t, false, body["scheduler_running"])

	rec = httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	stopped := NewStatusHandler(&mockScheduler{}, false, false)
	rec = httptest.NewRecorder()
	stopped.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
