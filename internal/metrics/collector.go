package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ServiceMetrics holds aggregated request counts for one backend service.
type ServiceMetrics struct {
	TotalRequests      int64         `json:"totalRequests"`
	SuccessfulRequests int64         `json:"successfulRequests"`
	FailedRequests     int64         `json:"failedRequests"`
	PerStatus          map[int]int64 `json:"perStatus"`
}

// Collector aggregates gateway metrics and exposes them to Prometheus.
type Collector struct {
	mu            sync.Mutex
	services      map[string]*ServiceMetrics
	rateLimited   map[string]int64
	authFallbacks map[string]int64

	RequestLatency  *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	RateLimited     *prometheus.CounterVec
	AuthFallbacks   *prometheus.CounterVec
	ServiceHealthy  *prometheus.GaugeVec
	ServiceFailures *prometheus.GaugeVec
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.RequestLatency.Collect(ch)
	c.RequestsTotal.Collect(ch)
	c.RateLimited.Collect(ch)
	c.AuthFallbacks.Collect(ch)
	c.ServiceHealthy.Collect(ch)
	c.ServiceFailures.Collect(ch)
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		services:      make(map[string]*ServiceMetrics),
		rateLimited:   make(map[string]int64),
		authFallbacks: make(map[string]int64),
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_request_duration_seconds",
				Help:    "Request latency in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1, 3, 5, 10, 30, 60},
			},
			[]string{"service", "method"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Requests handled by the gateway",
			},
			[]string{"service", "status"},
		),
		RateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_rate_limited_total",
				Help: "Requests rejected by a rate limit",
			},
			[]string{"class"},
		),
		AuthFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_auth_fallback_total",
				Help: "Remote token verifications by outcome",
			},
			[]string{"outcome"},
		),
		ServiceHealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_service_healthy",
				Help: "1 when the last health check of a service passed",
			},
			[]string{"service"},
		),
		ServiceFailures: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_service_consecutive_failures",
				Help: "Consecutive failed health checks per service",
			},
			[]string{"service"},
		),
	}
}

// RecordRequest records a completed request.
func (c *Collector) RecordRequest(service, method string, statusCode int, duration time.Duration) {
	c.mu.Lock()
	sm, ok := c.services[service]
	if !ok {
		sm = &ServiceMetrics{PerStatus: make(map[int]int64)}
		c.services[service] = sm
	}
	sm.TotalRequests++
	if statusCode >= 200 && statusCode < 400 {
		sm.SuccessfulRequests++
	} else {
		sm.FailedRequests++
	}
	sm.PerStatus[statusCode]++
	c.mu.Unlock()

	c.RequestsTotal.WithLabelValues(service, strconv.Itoa(statusCode)).Inc()
	c.RequestLatency.WithLabelValues(service, method).Observe(duration.Seconds())
}

// RecordRateLimited counts a request rejected by class.
func (c *Collector) RecordRateLimited(class string) {
	c.mu.Lock()
	c.rateLimited[class]++
	c.mu.Unlock()

	c.RateLimited.WithLabelValues(class).Inc()
}

// RecordAuthFallback counts a remote verification outcome.
func (c *Collector) RecordAuthFallback(outcome string) {
	c.mu.Lock()
	c.authFallbacks[outcome]++
	c.mu.Unlock()

	c.AuthFallbacks.WithLabelValues(outcome).Inc()
}

// ObserveServiceHealth records the latest health check of a service.
func (c *Collector) ObserveServiceHealth(name string, healthy bool, consecutiveFailures int) {
	v := 0.0
	if healthy {
		v = 1
	}
	c.ServiceHealthy.WithLabelValues(name).Set(v)
	c.ServiceFailures.WithLabelValues(name).Set(float64(consecutiveFailures))
}

// Snapshot returns a copy of the aggregated counters.
func (c *Collector) Snapshot() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	services := make(map[string]ServiceMetrics, len(c.services))
	for name, sm := range c.services {
		perStatus := make(map[int]int64, len(sm.PerStatus))
		for code, n := range sm.PerStatus {
			perStatus[code] = n
		}
		copied := *sm
		copied.PerStatus = perStatus
		services[name] = copied
	}

	rateLimited := make(map[string]int64, len(c.rateLimited))
	for k, v := range c.rateLimited {
		rateLimited[k] = v
	}
	fallbacks := make(map[string]int64, len(c.authFallbacks))
	for k, v := range c.authFallbacks {
		fallbacks[k] = v
	}

	return map[string]any{
		"services":       services,
		"rate_limited":   rateLimited,
		"auth_fallbacks": fallbacks,
	}
}
