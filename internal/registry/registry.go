// Package registry tracks backend services and their health.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jamesprial/biteme-gateway/internal/interfaces"
	"golang.org/x/sync/errgroup"
)

const (
	healthPath      = "/health"
	healthyStatus   = "healthy"
	maxHealthBody   = 64 << 10
	defaultTimeout  = 5 * time.Second
	defaultInterval = 30 * time.Second
)

// ServiceDescriptor is the registry's view of one backend.
type ServiceDescriptor struct {
	Name                string     `json:"-"`
	BaseURL             string     `json:"url"`
	RegisteredAt        time.Time  `json:"registeredAt"`
	LastHealthCheck     *time.Time `json:"lastHealthCheck"`
	IsHealthy           bool       `json:"isHealthy"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
}

// HealthResult is the settled outcome of one health check.
type HealthResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// HealthObserver is notified after every recorded health check.
type HealthObserver interface {
	ObserveServiceHealth(name string, healthy bool, consecutiveFailures int)
}

// Registry holds service descriptors. Descriptors change only through
// Register and recorded health checks.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*ServiceDescriptor

	client   *http.Client
	timeout  time.Duration
	logger   interfaces.Logger
	observer HealthObserver
	now      func() time.Time
}

// New creates an empty registry. timeout bounds each health probe.
func New(timeout time.Duration, logger interfaces.Logger) *Registry {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Registry{
		services: make(map[string]*ServiceDescriptor),
		client:   &http.Client{},
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// SetHTTPClient replaces the client used for health probes.
func (r *Registry) SetHTTPClient(c *http.Client) {
	r.client = c
}

// SetObserver registers a health observer.
func (r *Registry) SetObserver(o HealthObserver) {
	r.observer = o
}

// Register adds a service or updates its base URL. New entries, and entries
// whose URL changed, start healthy until a check says otherwise.
func (r *Registry) Register(name, baseURL string) {
	baseURL = strings.TrimRight(baseURL, "/")

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.services[name]; ok {
		if existing.BaseURL == baseURL {
			return
		}
		existing.BaseURL = baseURL
		existing.IsHealthy = true
		existing.ConsecutiveFailures = 0
		existing.LastHealthCheck = nil
		r.log("info", "Service address updated", map[string]any{"name": name, "url": baseURL})
		return
	}

	r.services[name] = &ServiceDescriptor{
		Name:         name,
		BaseURL:      baseURL,
		RegisteredAt: r.now(),
		IsHealthy:    true,
	}
	r.log("info", "Service registered", map[string]any{"name": name, "url": baseURL})
}

// Lookup returns a copy of the named descriptor.
func (r *Registry) Lookup(name string) (ServiceDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.services[name]
	if !ok {
		return ServiceDescriptor{}, false
	}
	return d.snapshot(), true
}

// ServiceURL returns the base URL of a registered service.
func (r *Registry) ServiceURL(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.services[name]
	if !ok {
		return "", false
	}
	return d.BaseURL, true
}

// IsHealthy reports the last recorded health. Unknown services are unhealthy.
func (r *Registry) IsHealthy(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.services[name]
	return ok && d.IsHealthy
}

// Names returns the registered service names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// URLs returns name -> base URL for every registered service.
func (r *Registry) URLs() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.services))
	for name, d := range r.services {
		out[name] = d.BaseURL
	}
	return out
}

// Status returns a copy of every descriptor keyed by name.
func (r *Registry) Status() map[string]ServiceDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]ServiceDescriptor, len(r.services))
	for name, d := range r.services {
		out[name] = d.snapshot()
	}
	return out
}

// CheckHealth probes {baseURL}/health and records the outcome. A service is
// healthy only when it answers 200 with {"status":"healthy"}.
func (r *Registry) CheckHealth(ctx context.Context, name string) bool {
	healthy, _ := r.checkHealth(ctx, name)
	return healthy
}

func (r *Registry) checkHealth(ctx context.Context, name string) (bool, error) {
	baseURL, ok := r.ServiceURL(name)
	if !ok {
		return false, fmt.Errorf("service %q not registered", name)
	}

	err := r.probe(ctx, baseURL)
	r.record(name, baseURL, err == nil)
	if err != nil {
		r.log("debug", "Health check failed", map[string]any{"name": name, "error": err.Error()})
	}
	return err == nil, err
}

type healthResponse struct {
	Status string `json:"status"`
}

func (r *Registry) probe(ctx context.Context, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+healthPath, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned status %d", resp.StatusCode)
	}

	var body healthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxHealthBody)).Decode(&body); err != nil {
		return fmt.Errorf("invalid health response: %w", err)
	}
	if body.Status != healthyStatus {
		return fmt.Errorf("service reported status %q", body.Status)
	}
	return nil
}

// record applies a check outcome unless the service moved while the probe
// was in flight.
func (r *Registry) record(name, probedURL string, healthy bool) {
	r.mu.Lock()
	d, ok := r.services[name]
	if !ok || d.BaseURL != probedURL {
		r.mu.Unlock()
		return
	}

	now := r.now()
	d.LastHealthCheck = &now
	wasHealthy := d.IsHealthy
	if healthy {
		d.IsHealthy = true
		d.ConsecutiveFailures = 0
	} else {
		d.IsHealthy = false
		d.ConsecutiveFailures++
	}
	failures := d.ConsecutiveFailures
	r.mu.Unlock()

	if wasHealthy != healthy {
		level := "info"
		msg := "Service recovered"
		if !healthy {
			level = "warn"
			msg = "Service marked unhealthy"
		}
		r.log(level, msg, map[string]any{"name": name, "consecutive_failures": failures})
	}

	if r.observer != nil {
		r.observer.ObserveServiceHealth(name, healthy, failures)
	}
}

// GetAllHealth checks every service concurrently. A check that fails or
// panics is reported unhealthy and never aborts the others.
func (r *Registry) GetAllHealth(ctx context.Context) []HealthResult {
	names := r.Names()
	results := make([]HealthResult, len(names))

	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					if url, ok := r.ServiceURL(name); ok {
						r.record(name, url, false)
					}
					r.log("error", "Health check panicked", map[string]any{"name": name, "panic": fmt.Sprint(rec)})
					results[i] = HealthResult{Name: name, Error: fmt.Sprintf("panic: %v", rec)}
				}
			}()

			healthy, err := r.checkHealth(ctx, name)
			results[i] = HealthResult{Name: name, Healthy: healthy}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Run polls every service immediately and then on each interval until ctx
// is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultInterval
	}

	r.GetAllHealth(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.GetAllHealth(ctx)
		}
	}
}

func (d *ServiceDescriptor) snapshot() ServiceDescriptor {
	out := *d
	if d.LastHealthCheck != nil {
		t := *d.LastHealthCheck
		out.LastHealthCheck = &t
	}
	return out
}

func (r *Registry) log(level, msg string, fields map[string]any) {
	if r.logger == nil {
		return
	}
	switch level {
	case "debug":
		r.logger.Debug(msg, fields)
	case "warn":
		r.logger.Warn(msg, fields)
	case "error":
		r.logger.Error(msg, fields)
	default:
		r.logger.Info(msg, fields)
	}
}
