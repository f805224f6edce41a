package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jamesprial/biteme-gateway/internal/interfaces"
	"github.com/jamesprial/biteme-gateway/internal/registry"
	"github.com/jamesprial/biteme-gateway/internal/utils"
)

// ServiceName identifies the gateway in health responses.
const ServiceName = "api-gateway"

const shutdownTimeout = 30 * time.Second

// StatusSource reports the full registry view of every service.
type StatusSource interface {
	Status() map[string]registry.ServiceDescriptor
}

var _ interfaces.Gateway = (*Service)(nil)

// Service implements interfaces.Gateway using dependency injection
type Service struct {
	container interfaces.Container
	server    *http.Server
	logger    interfaces.Logger
	cancel    context.CancelFunc
	now       func() time.Time
}

// NewService creates a new gateway service with dependency injection
func NewService(container interfaces.Container) *Service {
	return &Service{
		container: container,
		logger:    container.Logger(),
		now:       time.Now,
	}
}

// Handler returns the gateway mux: health and metrics endpoints plus the
// proxy pipeline for everything else.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/health", s.HealthHandler())
	mux.Handle("/health/services", ServicesHandler(s.container.Registry()))

	cfg := s.container.Config()
	if h := s.container.MetricsHandler(); h != nil && cfg != nil && cfg.Metrics.Enabled {
		endpoint := cfg.Metrics.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		mux.Handle(endpoint, h)
		if s.logger != nil {
			s.logger.Info("Registered metrics endpoint", map[string]any{"endpoint": endpoint})
		}
	}

	mux.Handle("/", s.container.BuildHandler())
	return mux
}

// Start implements interfaces.Gateway.Start
func (s *Service) Start() error {
	cfg := s.container.Config()
	if cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}

	listenAddr := fmt.Sprintf(":%d", cfg.ListenPort)
	s.server = &http.Server{
		Addr:              listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.container.StartBackground(ctx)

	if s.logger != nil {
		s.logger.Info("Starting BiteMe gateway", map[string]any{
			"listen_addr": listenAddr,
			"environment": cfg.Environment,
			"services":    s.container.Registry().URLs(),
		})
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.TLS != nil && cfg.TLS.Enabled {
			if s.logger != nil {
				s.logger.Info("Starting HTTPS server", map[string]any{
					"cert_file": cfg.TLS.CertFile,
					"key_file":  cfg.TLS.KeyFile,
				})
			}
			err = s.server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		cancel()
		return fmt.Errorf("failed to start server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop implements interfaces.Gateway.Stop. In-flight requests get up to 30s
// to finish before connections are closed.
func (s *Service) Stop() error {
	if s.server == nil {
		return nil
	}

	if s.logger != nil {
		s.logger.Info("Stopping BiteMe gateway", map[string]any{})
		s.logger.Info("Final metrics before shutdown", s.container.MetricsSnapshot())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.server.SetKeepAlivesEnabled(false)
	shutdownErr := s.server.Shutdown(ctx)

	if s.cancel != nil {
		s.cancel()
	}
	closeErr := s.container.Close()

	if s.logger != nil {
		if shutdownErr != nil {
			s.logger.Error("Error during graceful shutdown", map[string]any{"error": shutdownErr.Error()})
		} else {
			s.logger.Info("Graceful shutdown completed", map[string]any{})
		}
	}

	return errors.Join(shutdownErr, closeErr)
}

// Health implements interfaces.Gateway.Health
func (s *Service) Health() map[string]any {
	services := map[string]string{}
	if reg := s.container.Registry(); reg != nil {
		services = reg.URLs()
	}
	return map[string]any{
		"status":    "healthy",
		"service":   ServiceName,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"services":  services,
	}
}

// HealthHandler serves Health as JSON.
func (s *Service) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := utils.WriteJSON(w, http.StatusOK, s.Health()); err != nil && s.logger != nil {
			s.logger.Error("Failed to encode health response", map[string]any{"error": err.Error()})
		}
	})
}

// ServicesHandler serves the registry status of every service. Registries
// that cannot report status produce an empty object.
func ServicesHandler(reg interfaces.ServiceRegistry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := map[string]registry.ServiceDescriptor{}
		if src, ok := reg.(StatusSource); ok {
			status = src.Status()
		}
		_ = utils.WriteJSON(w, http.StatusOK, status)
	})
}
