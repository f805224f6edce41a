package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jamesprial/biteme-gateway/config"
	"github.com/jamesprial/biteme-gateway/internal/auth"
	"github.com/jamesprial/biteme-gateway/internal/gateway"
	"github.com/jamesprial/biteme-gateway/internal/interfaces"
	"github.com/jamesprial/biteme-gateway/internal/logging"
	"github.com/jamesprial/biteme-gateway/internal/metrics"
	"github.com/jamesprial/biteme-gateway/internal/middleware"
	"github.com/jamesprial/biteme-gateway/internal/proxy"
	"github.com/jamesprial/biteme-gateway/internal/ratelimit"
	"github.com/jamesprial/biteme-gateway/internal/registry"
	"github.com/redis/go-redis/v9"
)

const cleanupInterval = 5 * time.Minute

var _ interfaces.Container = (*Container)(nil)

// Container holds all application dependencies
type Container struct {
	configLoader interfaces.ConfigLoader
	logger       interfaces.Logger
	config       *config.Config

	registry      *registry.Registry
	consul        *registry.ConsulSource
	redis         *redis.Client
	memoryStore   *ratelimit.MemoryStore
	limiter       *ratelimit.Limiter
	burst         *ratelimit.BurstLimiter
	verifier      *auth.Verifier
	authenticator *auth.Authenticator
	routes        *proxy.Table
	forwarder     *proxy.Forwarder
	collector     *metrics.Collector
	transport     http.RoundTripper

	stop      chan struct{}
	stopOnce  sync.Once
	startOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a new dependency injection container
func New() *Container {
	return &Container{stop: make(chan struct{})}
}

// SetConfigLoader sets the configuration loader
func (c *Container) SetConfigLoader(loader interfaces.ConfigLoader) {
	c.configLoader = loader
}

// SetLogger sets the logger implementation
func (c *Container) SetLogger(logger interfaces.Logger) {
	c.logger = logger
}

// SetTransport overrides the transport used for proxied requests. It must be
// called before Initialize.
func (c *Container) SetTransport(t http.RoundTripper) {
	c.transport = t
}

// Logger returns the logger
func (c *Container) Logger() interfaces.Logger {
	return c.logger
}

// Config returns the loaded configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Registry returns the service registry
func (c *Container) Registry() interfaces.ServiceRegistry {
	return c.registry
}

// MetricsCollector returns the metrics collector instance
func (c *Container) MetricsCollector() *metrics.Collector {
	return c.collector
}

// MetricsHandler implements interfaces.Container.MetricsHandler
func (c *Container) MetricsHandler() http.Handler {
	if c.config == nil || !c.config.Metrics.Enabled || c.collector == nil {
		return nil
	}
	return metrics.Handler(c.collector)
}

// MetricsSnapshot implements interfaces.Container.MetricsSnapshot
func (c *Container) MetricsSnapshot() map[string]any {
	if c.collector == nil {
		return map[string]any{}
	}
	return c.collector.Snapshot()
}

// Initialize loads configuration and sets up all dependencies
func (c *Container) Initialize() error {
	if c.configLoader == nil {
		return fmt.Errorf("config loader not set")
	}

	cfg, err := c.configLoader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	c.config = cfg

	if c.logger == nil {
		logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		c.logger = logger
	}

	c.collector = metrics.NewCollector()

	c.registry = registry.New(cfg.Health.Timeout, c.logger)
	c.registry.SetObserver(c.collector)
	names := make([]string, 0, len(cfg.Services))
	for _, svc := range cfg.Services {
		c.registry.Register(svc.Name, svc.BaseURL)
		names = append(names, svc.Name)
	}

	if cfg.Consul != nil && cfg.Consul.Address != "" {
		c.consul, err = registry.NewConsulSource(cfg.Consul, c.registry, names, c.logger)
		if err != nil {
			return err
		}
	}

	var store ratelimit.Store
	if cfg.Redis != nil && cfg.Redis.Address != "" {
		c.redis, err = ratelimit.NewRedisClient(cfg.Redis)
		if err != nil {
			return err
		}
		store = ratelimit.NewRedisStore(c.redis, cfg.Redis.KeyPrefix)
		c.logger.Info("Using redis rate limit store", map[string]any{"address": cfg.Redis.Address})
	} else {
		c.memoryStore = ratelimit.NewMemoryStore(c.logger)
		store = c.memoryStore
	}
	c.limiter = ratelimit.NewLimiter(store, cfg.RateLimits, c.logger)

	if cfg.Burst.RequestsPerSecond > 0 && cfg.Burst.Burst > 0 {
		c.burst = ratelimit.NewBurstLimiter(cfg.Burst.RequestsPerSecond, cfg.Burst.Burst, cfg.Burst.TTL, c.logger)
	}

	c.verifier = auth.NewVerifier(cfg.Auth, c.registry, c.logger)
	c.verifier.SetFallbackRecorder(c.collector)
	c.authenticator = auth.NewAuthenticator(c.verifier, c.logger)

	c.routes, err = proxy.NewTable(cfg.Routes, cfg.ProxyTimeout)
	if err != nil {
		return fmt.Errorf("failed to build route table: %w", err)
	}
	c.forwarder = proxy.NewForwarder(c.transport, c.logger)

	return nil
}

// BuildHandler creates the complete middleware chain
func (c *Container) BuildHandler() http.Handler {
	if c.routes == nil {
		panic("container not initialized")
	}

	opts := gateway.PipelineOptions{
		Routes:        c.routes,
		Limiter:       c.limiter,
		Authenticator: c.authenticator,
		Registry:      c.registry,
		Forwarder:     c.forwarder,
		Recorder:      c.collector,
		Logger:        c.logger,
		TrustProxy:    c.config.TrustProxy,
	}
	if c.burst != nil {
		opts.Burst = c.burst
	}

	tls := c.config.TLS != nil && c.config.TLS.Enabled

	// request id -> access log -> metrics -> recovery -> security -> cors -> validation -> pipeline
	return middleware.Chain(gateway.NewPipeline(opts),
		middleware.RequestID,
		middleware.AccessLog(c.logger, c.config.TrustProxy),
		metrics.Middleware(c.collector),
		middleware.Recovery(c.logger, c.config.IsProduction()),
		middleware.SecurityHeaders(tls),
		middleware.CORS(c.config.ClientURL),
		middleware.NewRequestValidationMiddleware(c.config.MaxBodyBytes),
	)
}

// StartBackground implements interfaces.Container.StartBackground. Only the
// first call has an effect.
func (c *Container) StartBackground(ctx context.Context) {
	if c.registry == nil {
		return
	}
	c.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		c.goRun(func() {
			<-c.stop
			cancel()
		})

		c.goRun(func() { c.registry.Run(ctx, c.config.Health.Interval) })
		if c.consul != nil {
			c.goRun(func() { c.consul.Run(ctx) })
		}
		if c.memoryStore != nil {
			c.goRun(func() { c.memoryStore.StartCleanup(cleanupInterval, c.stop) })
		}
		if c.burst != nil {
			c.goRun(func() { c.burst.StartCleanup(cleanupInterval, c.stop) })
		}

		c.logger.Info("Background tasks started", map[string]any{
			"health_interval": c.config.Health.Interval.String(),
			"consul":          c.consul != nil,
		})
	})
}

func (c *Container) goRun(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// Close implements interfaces.Container.Close
func (c *Container) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()

	var errs []error
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	if s, ok := c.logger.(interface{ Sync() error }); ok {
		// Sync on a terminal stderr returns EINVAL
		_ = s.Sync()
	}
	return errors.Join(errs...)
}
