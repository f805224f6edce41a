package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jamesprial/biteme-gateway/config"
	"github.com/jamesprial/biteme-gateway/internal/interfaces"
	"github.com/jamesprial/biteme-gateway/internal/logging"
	"github.com/jamesprial/biteme-gateway/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContainer struct {
	cfg        *config.Config
	reg        *registry.Registry
	handler    http.Handler
	metrics    http.Handler
	started    atomic.Int32
	closed     atomic.Int32
	background context.Context
}

func (f *fakeContainer) Config() *config.Config               { return f.cfg }
func (f *fakeContainer) Logger() interfaces.Logger            { return logging.NewNoOpLogger() }
func (f *fakeContainer) Registry() interfaces.ServiceRegistry { return f.reg }
func (f *fakeContainer) BuildHandler() http.Handler           { return f.handler }
func (f *fakeContainer) MetricsHandler() http.Handler         { return f.metrics }
func (f *fakeContainer) MetricsSnapshot() map[string]any      { return map[string]any{} }
func (f *fakeContainer) Close() error                         { f.closed.Add(1); return nil }
func (f *fakeContainer) StartBackground(ctx context.Context)  { f.started.Add(1); f.background = ctx }

func newFakeContainer() *fakeContainer {
	cfg := config.Default()
	reg := registry.New(time.Second, nil)
	reg.Register("auth", "http://localhost:3001")
	reg.Register("meals", "http://localhost:3002")
	return &fakeContainer{
		cfg: cfg,
		reg: reg,
		handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("metrics"))
		}),
	}
}

func TestService_Health(t *testing.T) {
	svc := NewService(newFakeContainer())
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"status": "healthy",
		"service": "api-gateway",
		"timestamp": "2024-05-01T12:00:00Z",
		"services": {"auth": "http://localhost:3001", "meals": "http://localhost:3002"}
	}`, rec.Body.String())
}

func TestService_ServicesStatus(t *testing.T) {
	fc := newFakeContainer()
	svc := NewService(fc)

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/services", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Len(t, status, 2)
	assert.Equal(t, "http://localhost:3002", status["meals"]["url"])
	assert.Equal(t, true, status["meals"]["isHealthy"])
	assert.Nil(t, status["meals"]["lastHealthCheck"])
	assert.Equal(t, float64(0), status["meals"]["consecutiveFailures"])
}

func TestService_Routing(t *testing.T) {
	fc := newFakeContainer()
	svc := NewService(fc)
	h := svc.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "metrics", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/meals", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	fc.cfg.Metrics.Enabled = false
	rec = httptest.NewRecorder()
	NewService(fc).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code, "disabled metrics fall through to the pipeline")
}

func TestServicesHandler_UnknownRegistry(t *testing.T) {
	rec := httptest.NewRecorder()
	ServicesHandler(staticRegistry{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/services", nil))
	assert.JSONEq(t, `{}`, rec.Body.String())
}

type staticRegistry struct{}

func (staticRegistry) IsHealthy(string) bool            { return true }
func (staticRegistry) ServiceURL(string) (string, bool) { return "", false }
func (staticRegistry) URLs() map[string]string          { return map[string]string{} }

func TestService_StartStop(t *testing.T) {
	fc := newFakeContainer()
	fc.cfg.ListenPort = freePort(t)
	svc := NewService(fc)

	require.NoError(t, svc.Start())
	assert.Equal(t, int32(1), fc.started.Load())

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:" + itoa(fc.cfg.ListenPort) + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, svc.Stop())
	assert.Equal(t, int32(1), fc.closed.Load())
	assert.Error(t, fc.background.Err(), "background context is cancelled on stop")
}

func TestService_StartPortInUse(t *testing.T) {
	ln, err := listenLocal()
	require.NoError(t, err)
	defer ln.Close()

	fc := newFakeContainer()
	fc.cfg.ListenPort = portOf(ln)
	err = NewService(fc).Start()
	assert.Error(t, err)
}

func TestService_StopWithoutStart(t *testing.T) {
	assert.NoError(t, NewService(newFakeContainer()).Stop())
}
