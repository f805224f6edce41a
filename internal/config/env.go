package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/jamesprial/biteme-gateway/config"
	"github.com/jamesprial/biteme-gateway/internal/interfaces"
	"github.com/spf13/viper"
)

// EnvLoader overlays environment variables on top of another loader.
//
// Recognised variables:
//
//	GATEWAY_PORT, GATEWAY_ENV, LOG_LEVEL, LOG_FORMAT, CLIENT_URL, JWT_SECRET,
//	REDIS_URL, CONSUL_ADDR, <NAME>_SERVICE_URL,
//	RATE_LIMIT_<CLASS>_MAX, RATE_LIMIT_<CLASS>_WINDOW_MS
type EnvLoader struct {
	base interfaces.ConfigLoader
	v    *viper.Viper
}

// NewEnvLoader wraps base with an environment overlay
func NewEnvLoader(base interfaces.ConfigLoader) *EnvLoader {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return &EnvLoader{base: base, v: v}
}

// Load implements interfaces.ConfigLoader
func (e *EnvLoader) Load() (*config.Config, error) {
	cfg, err := e.base.Load()
	if err != nil {
		return nil, err
	}

	if e.isSet("GATEWAY_PORT") {
		cfg.ListenPort = e.v.GetInt("GATEWAY_PORT")
	}
	if e.isSet("GATEWAY_ENV") {
		cfg.Environment = e.v.GetString("GATEWAY_ENV")
	}
	if e.isSet("LOG_LEVEL") {
		cfg.LogLevel = strings.ToLower(e.v.GetString("LOG_LEVEL"))
	}
	if e.isSet("LOG_FORMAT") {
		cfg.LogFormat = strings.ToLower(e.v.GetString("LOG_FORMAT"))
	}
	if e.isSet("CLIENT_URL") {
		cfg.ClientURL = e.v.GetString("CLIENT_URL")
	}
	if e.isSet("JWT_SECRET") {
		cfg.Auth.JWTSecret = e.v.GetString("JWT_SECRET")
	}
	if e.isSet("REDIS_URL") {
		if cfg.Redis == nil {
			cfg.Redis = &config.RedisConfig{}
		}
		cfg.Redis.Address = e.v.GetString("REDIS_URL")
	}
	if e.isSet("CONSUL_ADDR") {
		if cfg.Consul == nil {
			cfg.Consul = &config.ConsulConfig{RefreshInterval: 30 * time.Second}
		}
		cfg.Consul.Address = e.v.GetString("CONSUL_ADDR")
	}

	for i, svc := range cfg.Services {
		key := envName(svc.Name) + "_SERVICE_URL"
		if e.isSet(key) {
			cfg.Services[i].BaseURL = e.v.GetString(key)
		}
	}

	for class, policy := range cfg.RateLimits {
		prefix := "RATE_LIMIT_" + envName(class)
		if e.isSet(prefix + "_MAX") {
			policy.Max = e.v.GetInt(prefix + "_MAX")
		}
		if e.isSet(prefix + "_WINDOW_MS") {
			ms := e.v.GetInt64(prefix + "_WINDOW_MS")
			if ms <= 0 {
				return nil, fmt.Errorf("%s_WINDOW_MS must be positive", prefix)
			}
			policy.Window = time.Duration(ms) * time.Millisecond
		}
		cfg.RateLimits[class] = policy
	}

	return cfg, nil
}

func (e *EnvLoader) isSet(key string) bool {
	return e.v.IsSet(key) && e.v.GetString(key) != ""
}

func envName(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}
