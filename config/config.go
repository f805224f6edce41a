package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Rate classes known to the gateway. Routes may also declare custom classes
// as long as a matching policy exists in RateLimits.
const (
	ClassGlobal = "global"
	ClassAuth   = "auth"
	ClassMeals  = "meals"
	ClassAI     = "ai"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

type Config struct {
	ListenPort   int                        `yaml:"listen_port"`
	Environment  string                     `yaml:"environment"`
	LogLevel     string                     `yaml:"log_level"`
	LogFormat    string                     `yaml:"log_format"`
	ClientURL    string                     `yaml:"client_url"`
	TrustProxy   bool                       `yaml:"trust_proxy"`
	MaxBodyBytes int64                      `yaml:"max_body_bytes"`
	ProxyTimeout time.Duration              `yaml:"proxy_timeout"`
	Auth         AuthConfig                 `yaml:"auth"`
	Services     []ServiceConfig            `yaml:"services"`
	Routes       []RouteConfig              `yaml:"routes"`
	RateLimits   map[string]RateLimitPolicy `yaml:"rate_limits"`
	Burst        BurstConfig                `yaml:"burst"`
	Health       HealthConfig               `yaml:"health"`
	Redis        *RedisConfig               `yaml:"redis"`
	Consul       *ConsulConfig              `yaml:"consul"`
	TLS          *TLSConfig                 `yaml:"tls"`
	Metrics      MetricsConfig              `yaml:"metrics"`
}

// AuthConfig controls token verification. VerifyService names the registered
// service whose VerifyPath endpoint is used for the remote fallback.
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	VerifyService string        `yaml:"verify_service"`
	VerifyPath    string        `yaml:"verify_path"`
	VerifyTimeout time.Duration `yaml:"verify_timeout"`
}

type ServiceConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
}

// RouteConfig describes one proxied path prefix.
type RouteConfig struct {
	PathPrefix  string        `yaml:"path_prefix"`
	Service     string        `yaml:"service"`
	Rewrite     RewriteConfig `yaml:"rewrite"`
	Timeout     time.Duration `yaml:"timeout"`
	RateClass   string        `yaml:"rate_class"`
	RequireAuth bool          `yaml:"require_auth"`
	PublicPaths []string      `yaml:"public_paths"`
}

// RewriteConfig replaces the From prefix of the request path with To.
// An empty From leaves the path untouched.
type RewriteConfig struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type RateLimitPolicy struct {
	Window  time.Duration `yaml:"window"`
	Max     int           `yaml:"max"`
	Message string        `yaml:"message"`
}

type BurstConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	TTL               time.Duration `yaml:"ttl"`
}

type HealthConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type ConsulConfig struct {
	Address         string        `yaml:"address"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the configuration of the stock three-service deployment.
func Default() *Config {
	return &Config{
		ListenPort:   3000,
		Environment:  EnvDevelopment,
		LogLevel:     "info",
		LogFormat:    "text",
		ClientURL:    "http://localhost:3000",
		MaxBodyBytes: 50 * 1024 * 1024,
		ProxyTimeout: 30 * time.Second,
		Auth: AuthConfig{
			VerifyService: "auth",
			VerifyPath:    "/api/auth/verify",
			VerifyTimeout: 5 * time.Second,
		},
		Services: []ServiceConfig{
			{Name: "auth", BaseURL: "http://localhost:3001"},
			{Name: "meals", BaseURL: "http://localhost:3002"},
			{Name: "ai", BaseURL: "http://localhost:3003"},
		},
		Routes: []RouteConfig{
			{
				PathPrefix:  "/api/auth",
				Service:     "auth",
				Rewrite:     RewriteConfig{From: "/api/auth", To: "/api/auth"},
				RateClass:   ClassAuth,
				RequireAuth: true,
				PublicPaths: []string{"/api/auth/login", "/api/auth/register", "/api/auth/google"},
			},
			{
				PathPrefix:  "/api/meals/nutrition",
				Service:     "meals",
				Rewrite:     RewriteConfig{From: "/api/meals/nutrition", To: "/api/nutrition"},
				RateClass:   ClassMeals,
				RequireAuth: true,
			},
			{
				PathPrefix:  "/api/meals",
				Service:     "meals",
				Rewrite:     RewriteConfig{From: "/api/meals", To: "/api/meals"},
				RateClass:   ClassMeals,
				RequireAuth: true,
			},
			{
				PathPrefix:  "/api/ai",
				Service:     "ai",
				Rewrite:     RewriteConfig{From: "/api/ai", To: "/api/ai"},
				Timeout:     60 * time.Second,
				RateClass:   ClassAI,
				RequireAuth: true,
			},
		},
		RateLimits: map[string]RateLimitPolicy{
			ClassGlobal: {Window: 15 * time.Minute, Max: 1000, Message: "Too many requests, please try again later"},
			ClassAuth:   {Window: 15 * time.Minute, Max: 10, Message: "Too many authentication requests, please try again later"},
			ClassMeals:  {Window: 15 * time.Minute, Max: 100, Message: "Too many meal requests, please try again later"},
			ClassAI:     {Window: 15 * time.Minute, Max: 20, Message: "Too many AI requests, please try again later"},
		},
		Burst: BurstConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			TTL:               time.Hour,
		},
		Health: HealthConfig{
			Interval: 30 * time.Second,
			Timeout:  5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

// Load reads a YAML file on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default. Lists in the document replace the
// defaults entirely; rate limit policies are merged by class name.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// IsProduction reports whether error details must be hidden from clients.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

// Service returns the service entry with the given name.
func (c *Config) Service(name string) (ServiceConfig, bool) {
	for _, s := range c.Services {
		if s.Name == name {
			return s, true
		}
	}
	return ServiceConfig{}, false
}

// Validate checks cross references between routes, services and rate classes.
func (c *Config) Validate() error {
	var errs []error

	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid listen_port %d", c.ListenPort))
	}

	seen := make(map[string]bool, len(c.Services))
	for _, s := range c.Services {
		if s.Name == "" {
			errs = append(errs, errors.New("service with empty name"))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("duplicate service %q", s.Name))
		}
		seen[s.Name] = true
		if s.BaseURL == "" {
			errs = append(errs, fmt.Errorf("service %q has no base_url", s.Name))
		}
	}

	for _, r := range c.Routes {
		if !strings.HasPrefix(r.PathPrefix, "/") {
			errs = append(errs, fmt.Errorf("route prefix %q must start with /", r.PathPrefix))
		}
		if !seen[r.Service] {
			errs = append(errs, fmt.Errorf("route %q targets unknown service %q", r.PathPrefix, r.Service))
		}
		if r.RateClass != "" {
			if _, ok := c.RateLimits[r.RateClass]; !ok {
				errs = append(errs, fmt.Errorf("route %q uses unknown rate class %q", r.PathPrefix, r.RateClass))
			}
		}
	}

	for class, p := range c.RateLimits {
		if p.Window <= 0 || p.Max <= 0 {
			errs = append(errs, fmt.Errorf("rate class %q needs a positive window and max", class))
		}
	}

	if c.Auth.VerifyService != "" && !seen[c.Auth.VerifyService] {
		errs = append(errs, fmt.Errorf("auth verify_service %q is not a registered service", c.Auth.VerifyService))
	}

	return errors.Join(errs...)
}
