package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/settlement/internal/drilldown"
	"github.com/odyssey-erp/settlement/internal/observability"
	"github.com/odyssey-erp/settlement/internal/settlement"
	settlementhttp "github.com/odyssey-erp/settlement/internal/settlement/http"
	"github.com/odyssey-erp/settlement/jobs"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SETTLEMENT_BACKEND", " Remote ")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, BackendRemote, cfg.SettlementBackend)
	assert.Equal(t, 8, cfg.SettlementFanOutLimit)
	assert.Equal(t, 93, cfg.SettlementMaxDailySpan)
	assert.Equal(t, 30*time.Minute, cfg.DashboardSessionTTL)
	assert.Equal(t, 10, cfg.DashboardDefaultPageSize)
	assert.False(t, cfg.IsProduction())
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			SettlementBackend:        BackendPostgres,
			PGDSN:                    "postgres://localhost/settlement",
			SettlementFanOutLimit:    4,
			SettlementMaxDailySpan:   93,
			DashboardDefaultPageSize: 10,
		}
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "postgres", mutate: func(*Config) {}, ok: true},
		{name: "unknown backend", mutate: func(c *Config) { c.SettlementBackend = "grpc" }},
		{name: "postgres without dsn", mutate: func(c *Config) { c.PGDSN = "" }},
		{name: "remote without url", mutate: func(c *Config) { c.SettlementBackend = BackendRemote }},
		{name: "zero fan-out", mutate: func(c *Config) { c.SettlementFanOutLimit = 0 }},
		{name: "zero daily span", mutate: func(c *Config) { c.SettlementMaxDailySpan = 0 }},
		{name: "zero page size", mutate: func(c *Config) { c.DashboardDefaultPageSize = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNewLoggerHonoursLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.Int("seller_id", 4))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "settlement", entry["service"])
	assert.EqualValues(t, 4, entry["seller_id"])
}

func TestRefreshTestMode(t *testing.T) {
	t.Setenv(TestModeEnv, "true")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(TestModeEnv, "nope")
	RefreshTestMode()
	assert.False(t, InTestMode())
}

type emptyFetcher struct{}

func (emptyFetcher) Fetch(context.Context, settlement.FetchParams) (settlement.FetchResult, error) {
	return settlement.FetchResult{Records: []settlement.Record{}}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	registry := drilldown.NewRegistry(func(sellerID int64) *drilldown.Controller {
		return drilldown.NewController(sellerID, emptyFetcher{})
	}, time.Minute, nil)
	return NewRouter(RouterParams{
		Config:            &Config{AppEnv: "production", AppRequestTimeout: time.Second},
		SettlementHandler: settlementhttp.NewHandler(nil, emptyFetcher{}, registry, nil),
		JobHandler:        jobs.NewHandler(nil, nil),
		Metrics:           observability.NewMetrics(),
	})
}

func TestRouterServesHealthAndSecurityHeaders(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouterMountsSettlementJobsAndMetrics(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/sellers/5/settlements?period=monthly", "/jobs/health", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Forwarded-Proto", "https")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRouterRedirectsPlainHTTPInProduction(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
}
