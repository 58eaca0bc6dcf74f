package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/app"
	"github.com/ternarybob/vera/internal/common"
	"github.com/ternarybob/vera/internal/services/scheduler"
)

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "vera.db")
	cfg.Server.Port = 0

	a, err := app.New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRoutes_WithoutScheduler(t *testing.T) {
	h := New(newTestApp(t), nil).Handler()

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/healthz").Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/status").Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/metrics").Code)

	rec := serve(h, http.MethodGet, "/api/snapshots")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"snapshots":[],"count":0}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/api/snapshots/not-a-snapshot").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, http.MethodPut, "/api/snapshots/abc").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/api/assets/AAPL/unknown").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/api/jobs").Code)

	pre := serve(h, http.MethodOptions, "/api/snapshots")
	assert.Equal(t, http.StatusOK, pre.Code)
	assert.Equal(t, "*", pre.Header().Get("Access-Control-Allow-Origin"))
}

func TestRoutes_MetricsDisabled(t *testing.T) {
	a := newTestApp(t)
	a.Config.Metrics.Enabled = false
	h := New(a, nil).Handler()

	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/metrics").Code)
}

func TestRoutes_Jobs(t *testing.T) {
	a := newTestApp(t)
	sched := scheduler.NewService(a.Logger, a.Metrics)
	require.NoError(t, sched.RegisterJob("noop", "0 0 * * *", "does nothing", func(ctx context.Context) error { return nil }))

	h := New(a, sched).Handler()

	rec := serve(h, http.MethodGet, "/api/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"noop"`)

	// stopped scheduler fails the health probe
	assert.Equal(t, http.StatusServiceUnavailable, serve(h, http.MethodGet, "/healthz").Code)

	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, http.MethodGet, "/api/jobs/noop/run").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodPost, "/api/jobs/missing/run").Code)
}

func TestRouteGroup(t *testing.T) {
	tests := map[string]string{
		"/healthz":                           "/healthz",
		"/metrics":                           "/metrics",
		"/api/status":                        "/api/status",
		"/api/snapshots":                     "/api/snapshots",
		"/api/snapshots/8f2c":                "/api/snapshots/item",
		"/api/assets/US:INDEX:^GSPC/report":  "/api/assets/report",
		"/api/assets/HK:STOCK:00700/history": "/api/assets/history",
		"/api/jobs/watchlist/run":            "/api/jobs/run",
		"/":                                  "/",
	}
	for path, want := range tests {
		assert.Equal(t, want, routeGroup(path), path)
	}
}

func TestMiddleware_CountsRequests(t *testing.T) {
	a := newTestApp(t)
	h := New(a, nil).Handler()

	serve(h, http.MethodGet, "/api/snapshots")
	serve(h, http.MethodGet, "/api/snapshots/missing")

	body := serve(h, http.MethodGet, "/metrics").Body.String()
	assert.Contains(t, body, `vera_http_requests_total{code="200",route="/api/snapshots"} 1`)
	assert.Contains(t, body, `vera_http_requests_total{code="404",route="/api/snapshots/item"} 1`)
}
