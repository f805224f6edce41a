package interfaces

import (
	"context"
	"net/http"
	"time"

	"github.com/jamesprial/biteme-gateway/config"
)

// ConfigLoader handles loading configuration from various sources
type ConfigLoader interface {
	Load() (*config.Config, error)
}

// Role is the authorization role carried by a verified token
type Role string

const (
	RoleUser         Role = "user"
	RoleAdmin        Role = "admin"
	RoleNutritionist Role = "nutritionist"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleNutritionist:
		return true
	}
	return false
}

// Identity is the caller derived from a verified bearer token.
// It is never persisted by the gateway.
type Identity struct {
	SubjectID string `json:"userId"`
	Role      Role   `json:"role"`
}

// TokenVerifier validates bearer tokens
type TokenVerifier interface {
	// Verify returns the identity for a token, trying local verification
	// before the identity service
	Verify(ctx context.Context, token string) (*Identity, error)
}

// ServiceRegistry exposes the health and address of backend services
type ServiceRegistry interface {
	// IsHealthy reports the last recorded health of a service
	IsHealthy(name string) bool

	// ServiceURL returns the base URL of a registered service
	ServiceURL(name string) (string, bool)

	// URLs returns name -> base URL for every registered service
	URLs() map[string]string
}

// RateDecision is the outcome of a rate limit check
type RateDecision struct {
	Allowed   bool
	Class     string
	Limit     int
	Remaining int
	ResetAt   time.Time
	Message   string
}

// RateLimiter enforces fixed-window request budgets per key and route class
type RateLimiter interface {
	Allow(ctx context.Context, key, class string) (RateDecision, error)
}

// Gateway represents the main gateway service
type Gateway interface {
	// Start begins serving HTTP requests
	Start() error

	// Stop gracefully shuts down the gateway
	Stop() error

	// Health returns the health status of the gateway
	Health() map[string]any
}

// Logger provides structured logging
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// Container holds application dependencies and provides dependency injection
type Container interface {
	// Config returns the loaded configuration
	Config() *config.Config

	// Logger returns the logger instance
	Logger() Logger

	// Registry returns the service registry
	Registry() ServiceRegistry

	// BuildHandler creates the complete middleware chain
	BuildHandler() http.Handler

	// MetricsHandler serves the metrics endpoint, or is nil when metrics are disabled
	MetricsHandler() http.Handler

	// MetricsSnapshot returns the aggregated request counters
	MetricsSnapshot() map[string]any

	// StartBackground launches the health monitor and other periodic tasks
	StartBackground(ctx context.Context)

	// Close stops background tasks and releases external connections
	Close() error
}
