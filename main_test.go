package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"utmtracker/api/config"
	"utmtracker/api/metrics"
	"utmtracker/api/store"
	"utmtracker/api/tracking"
)

func newTestRouter(t *testing.T, origins []string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Server.AllowedOrigins = origins

	events, err := store.NewMemoryEventStore("", zerolog.Nop())
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	sessions := tracking.NewSessionTracker(cfg.Session.Timeout, cfg.Session.MaxEntries)
	limiter := tracking.NewRateLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	m := metrics.New(reg)
	metrics.RegisterGauges(reg, sessions.Len, limiter.Clients)

	return NewRouter(cfg, RouterDeps{
		Limiter:    limiter,
		Normalizer: tracking.NewNormalizer(sessions, zerolog.Nop()),
		Events:     events,
		Metrics:    m,
		Gatherer:   reg,
		Logger:     zerolog.Nop(),
	})
}

func TestCORSPreflightReflectsOrigin(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/track", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://shop.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCORSRestrictedOrigins(t *testing.T) {
	r := newTestRouter(t, []string{"https://allowed.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://allowed.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://allowed.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOptionsWithoutOrigin(t *testing.T) {
	r := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/track", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRouterTrackAndMetrics(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/track?utm_source=tiktok&utm_medium=paid&utm_campaign=launch", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.True(t, strings.Contains(body, `tracking_events_total{outcome="accepted"} 1`), body)
	assert.Contains(t, body, `tracking_events_platform_total{platform="TikTok"} 1`)
	assert.Contains(t, body, "tracking_active_sessions 1")
	assert.Contains(t, body, `http_requests_total{handler="/track",method="GET",status="200"} 1`)
}

func TestOpenEventStoreFallback(t *testing.T) {
	cfg := config.Default().Store
	cfg.Backend = "postgres"
	cfg.PostgresURL = "postgres://nobody@127.0.0.1:1/events?sslmode=disable&connect_timeout=1"

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, _, err := openEventStore(ctx, cfg, zerolog.Nop())
	require.Error(t, err)

	cfg.Fallback = true
	events, closeFn, err := openEventStore(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()
	assert.Equal(t, "memory", events.Name())
}
