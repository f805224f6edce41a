// Package gateway runs the per-request pipeline and the HTTP server around it.
package gateway

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/jamesprial/biteme-gateway/config"
	"github.com/jamesprial/biteme-gateway/internal/auth"
	"github.com/jamesprial/biteme-gateway/internal/interfaces"
	"github.com/jamesprial/biteme-gateway/internal/logging"
	"github.com/jamesprial/biteme-gateway/internal/metrics"
	"github.com/jamesprial/biteme-gateway/internal/middleware"
	"github.com/jamesprial/biteme-gateway/internal/proxy"
	"github.com/jamesprial/biteme-gateway/internal/ratelimit"
	"github.com/jamesprial/biteme-gateway/internal/utils"
)

// BurstClass labels requests rejected by the per-client token bucket.
const BurstClass = "burst"

const burstMessage = "Too many requests, please slow down"

// BurstGuard admits or rejects a request for a client key.
type BurstGuard interface {
	Allow(key string) bool
}

// RateLimitRecorder counts rejected requests per class.
type RateLimitRecorder interface {
	RecordRateLimited(class string)
}

// PipelineOptions holds the collaborators of a Pipeline. Burst and Recorder
// are optional.
type PipelineOptions struct {
	Routes        *proxy.Table
	Limiter       interfaces.RateLimiter
	Burst         BurstGuard
	Authenticator *auth.Authenticator
	Registry      interfaces.ServiceRegistry
	Forwarder     *proxy.Forwarder
	Recorder      RateLimitRecorder
	Logger        interfaces.Logger
	TrustProxy    bool
}

// Pipeline takes every proxied request through rate limiting, routing,
// authentication, the health gate and forwarding. Each stage either passes an
// explicit value to the next or answers the request.
type Pipeline struct {
	routes     *proxy.Table
	limiter    interfaces.RateLimiter
	burst      BurstGuard
	auth       *auth.Authenticator
	registry   interfaces.ServiceRegistry
	forwarder  *proxy.Forwarder
	recorder   RateLimitRecorder
	logger     interfaces.Logger
	trustProxy bool
}

// NewPipeline creates a pipeline from opts.
func NewPipeline(opts PipelineOptions) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Pipeline{
		routes:     opts.Routes,
		limiter:    opts.Limiter,
		burst:      opts.Burst,
		auth:       opts.Authenticator,
		registry:   opts.Registry,
		forwarder:  opts.Forwarder,
		recorder:   opts.Recorder,
		logger:     logger,
		trustProxy: opts.TrustProxy,
	}
}

func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	client := utils.ClientIP(r, p.trustProxy)

	if p.burst != nil && !p.burst.Allow(client) {
		p.rejectRate(w, r, interfaces.RateDecision{Class: BurstClass, Message: burstMessage})
		return
	}
	if !p.admit(w, r, client, config.ClassGlobal) {
		return
	}

	route, ok := p.routes.Match(r.URL.Path)
	if !ok {
		errRouteNotFound.Write(w)
		return
	}
	metrics.SetService(r.Context(), route.Service)

	if route.RateClass != "" && !p.admit(w, r, client, route.RateClass) {
		return
	}

	var id *interfaces.Identity
	if route.RequireAuth && !route.IsPublic(r.URL.Path) {
		var err error
		id, err = p.auth.Authenticate(r)
		if err != nil {
			authError(err).Write(w)
			return
		}
		r = r.WithContext(auth.WithIdentity(r.Context(), id))
	}

	baseURL, ok := p.registry.ServiceURL(route.Service)
	if !ok || !p.registry.IsHealthy(route.Service) {
		p.fail(w, r, route, proxy.Unavailable(route.Service))
		return
	}

	rec := utils.NewStatusRecorder(w)
	if err := p.forwarder.Forward(rec, r, route, baseURL, id); err != nil {
		var fe *proxy.ForwardError
		if !errors.As(err, &fe) {
			fe = proxy.Classify(route.Service, err, r.Context())
		}
		if rec.Written() {
			p.logger.Error("Backend failed after response started", map[string]any{
				"service":    route.Service,
				"path":       r.URL.Path,
				"error":      err.Error(),
				"request_id": middleware.RequestIDFromContext(r.Context()),
			})
			return
		}
		p.fail(rec, r, route, fe)
	}
}

// admit checks one rate class and sets the X-RateLimit headers. It answers
// 429 and returns false when the request is over budget. Classes without a
// policy are skipped.
func (p *Pipeline) admit(w http.ResponseWriter, r *http.Request, client, class string) bool {
	decision, err := p.limiter.Allow(r.Context(), client, class)
	if err != nil {
		if !errors.Is(err, ratelimit.ErrUnknownClass) || class != config.ClassGlobal {
			p.logger.Warn("Rate limit check skipped", map[string]any{
				"class": class,
				"error": err.Error(),
			})
		}
		return true
	}

	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

	if decision.Allowed {
		return true
	}
	p.rejectRate(w, r, decision)
	return false
}

func (p *Pipeline) rejectRate(w http.ResponseWriter, r *http.Request, decision interfaces.RateDecision) {
	retry := 1
	if !decision.ResetAt.IsZero() {
		if secs := int(math.Ceil(time.Until(decision.ResetAt).Seconds())); secs > retry {
			retry = secs
		}
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))

	if p.recorder != nil {
		p.recorder.RecordRateLimited(decision.Class)
	}
	p.logger.Info("Request rate limited", map[string]any{
		"class":      decision.Class,
		"path":       r.URL.Path,
		"request_id": middleware.RequestIDFromContext(r.Context()),
	})
	rateLimitError(decision.Message).Write(w)
}

// fail answers a classified forwarding failure. A closed client gets nothing.
func (p *Pipeline) fail(w http.ResponseWriter, r *http.Request, route *proxy.Route, fe *proxy.ForwardError) {
	fields := map[string]any{
		"service":    route.Service,
		"method":     r.Method,
		"path":       r.URL.Path,
		"kind":       string(fe.Kind),
		"request_id": middleware.RequestIDFromContext(r.Context()),
	}
	if fe.Err != nil {
		fields["error"] = fe.Err.Error()
	}

	gerr := forwardError(fe, routeLabel(route))
	if gerr == nil {
		p.logger.Info("Client closed request before backend responded", fields)
		return
	}

	if gerr.Status == http.StatusBadGateway {
		p.logger.Error("Proxy error", fields)
	} else {
		p.logger.Warn("Backend request failed", fields)
	}
	gerr.Write(w)
}
