package container

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jamesprial/biteme-gateway/config"
	internalconfig "github.com/jamesprial/biteme-gateway/internal/config"
	"github.com/jamesprial/biteme-gateway/internal/logging"
	"github.com/jamesprial/biteme-gateway/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backendServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			_, _ = w.Write([]byte(`{"status":"healthy"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"path":       r.URL.Path,
			"request_id": r.Header.Get(middleware.HeaderRequestID),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	srv := backendServer(t)
	cfg := config.Default()
	cfg.Auth.JWTSecret = "container-secret"
	cfg.ClientURL = "http://localhost:5173"
	cfg.Services = []config.ServiceConfig{
		{Name: "auth", BaseURL: srv.URL},
		{Name: "meals", BaseURL: srv.URL},
		{Name: "ai", BaseURL: srv.URL},
	}
	return cfg
}

func newContainer(t *testing.T, cfg *config.Config) *Container {
	t.Helper()
	c := New()
	c.SetLogger(logging.NewNoOpLogger())
	c.SetConfigLoader(internalconfig.NewMemoryLoader(cfg))
	require.NoError(t, c.Initialize())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestInitialize_Errors(t *testing.T) {
	c := New()
	assert.EqualError(t, c.Initialize(), "config loader not set")

	cfg := config.Default()
	cfg.Routes[0].Service = "missing"
	c.SetConfigLoader(internalconfig.NewMemoryLoader(cfg))
	err := c.Initialize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestInitialize_DefaultLogger(t *testing.T) {
	c := New()
	c.SetConfigLoader(internalconfig.NewMemoryLoader(testConfig(t)))
	require.NoError(t, c.Initialize())
	defer c.Close()

	assert.NotNil(t, c.Logger())
	assert.Len(t, c.Registry().URLs(), 3)
	assert.True(t, c.Registry().IsHealthy("meals"))
}

func TestBuildHandler_PanicsBeforeInitialize(t *testing.T) {
	assert.Panics(t, func() { New().BuildHandler() })
}

func TestBuildHandler_EndToEnd(t *testing.T) {
	c := newContainer(t, testConfig(t))
	h := c.BuildHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@b.c"}`))
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set(middleware.HeaderRequestID, "trace-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "trace-1", rec.Header().Get(middleware.HeaderRequestID))
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.JSONEq(t, `{"path":"/api/auth/login","request_id":"trace-1"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/meals", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	services := c.MetricsSnapshot()["services"]
	assert.NotEmpty(t, services)
}

func TestBuildHandler_BackendHeadersNotDuplicated(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			_, _ = w.Write([]byte(`{"status":"healthy"}`))
			return
		}
		w.Header().Set("Access-Control-Allow-Origin", "http://localhost:5173")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(backend.Close)

	cfg := testConfig(t)
	for i := range cfg.Services {
		cfg.Services[i].BaseURL = backend.URL
	}
	h := newContainer(t, cfg).BuildHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@b.c"}`))
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"http://localhost:5173"}, rec.Header().Values("Access-Control-Allow-Origin"))
	assert.Equal(t, []string{"true"}, rec.Header().Values("Access-Control-Allow-Credentials"))
	assert.Equal(t, []string{"SAMEORIGIN"}, rec.Header().Values("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"), "gateway headers the backend omits are kept")
}

func TestBuildHandler_Preflight(t *testing.T) {
	h := newContainer(t, testConfig(t)).BuildHandler()

	req := httptest.NewRequest(http.MethodOptions, "/api/meals", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestBuildHandler_BodyLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxBodyBytes = 8
	h := newContainer(t, cfg).BuildHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"too":"large"}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMetricsHandler(t *testing.T) {
	cfg := testConfig(t)
	c := newContainer(t, cfg)
	require.NotNil(t, c.MetricsHandler())

	rec := httptest.NewRecorder()
	c.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics?format=json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	cfg = testConfig(t)
	cfg.Metrics.Enabled = false
	assert.Nil(t, newContainer(t, cfg).MetricsHandler())
}

func TestInitialize_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis = &config.RedisConfig{Address: mr.Addr(), KeyPrefix: "test:"}
	cfg.RateLimits[config.ClassAuth] = config.RateLimitPolicy{Window: time.Minute, Max: 1, Message: "auth limited"}

	c := newContainer(t, cfg)
	assert.Nil(t, c.memoryStore)
	h := c.BuildHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	keys := mr.Keys()
	assert.Contains(t, keys, "test:auth:192.0.2.1")
	assert.Contains(t, keys, "test:global:192.0.2.1")
}

func TestStartBackground_AndClose(t *testing.T) {
	c := newContainer(t, testConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.StartBackground(ctx)
	c.StartBackground(ctx)

	require.Eventually(t, func() bool {
		d, ok := c.registry.Lookup("meals")
		return ok && d.LastHealthCheck != nil
	}, 2*time.Second, 10*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- c.Close() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop background tasks")
	}
	assert.NoError(t, c.Close(), "Close is idempotent")
}
