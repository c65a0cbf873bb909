package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rollup/internal/observability"
	"github.com/odyssey-erp/odyssey-rollup/internal/reconcile"
	reconcilehttp "github.com/odyssey-erp/odyssey-rollup/internal/reconcile/http"
	"github.com/odyssey-erp/odyssey-rollup/internal/rollup"
	"github.com/odyssey-erp/odyssey-rollup/jobs"
)

type summaryOnly struct{}

func (summaryOnly) Rollup(context.Context, reconcile.Query) (reconcile.Report, error) {
	return reconcile.Report{}, nil
}

func (summaryOnly) Summary(context.Context, reconcile.SummaryQuery) (reconcile.Summary, error) {
	return reconcile.Summary{SnapshotID: "snap-9", Totals: rollup.Totals{Revenue: 42}}, nil
}

func (summaryOnly) Invalidate(context.Context) error { return nil }

func newTestApp(t *testing.T) (http.Handler, *observability.Metrics) {
	t.Helper()
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	t.Cleanup(RefreshTestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{
		Logger:        logger,
		Config:        &Config{AppEnv: "development"},
		Metrics:       metrics,
		RollupHandler: reconcilehttp.NewHandler(logger, summaryOnly{}, 0),
	})
	return router, metrics
}

func TestRouterHealthz(t *testing.T) {
	router, _ := newTestApp(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("X-Frame-Options"))
}

func TestRouterMountsRollupsAndMetrics(t *testing.T) {
	router, _ := newTestApp(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/rollups/summary", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "snap-9")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, `route="/rollups/summary"`), body)
}

func TestInTestModeFollowsEnvironment(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	assert.False(t, InTestMode())
}

func TestRouterMountsJobHealthWhenConfigured(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	t.Cleanup(RefreshTestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(RouterParams{
		Logger:        logger,
		Config:        &Config{},
		RollupHandler: reconcilehttp.NewHandler(logger, summaryOnly{}, 0),
		JobHandler:    jobs.NewHandler(nil, logger),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
