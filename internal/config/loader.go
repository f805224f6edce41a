package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/jamesprial/biteme-gateway/config"
)

// FileLoader loads configuration from a YAML file
type FileLoader struct {
	filePath string
	optional bool
}

// NewFileLoader creates a new file-based configuration loader
func NewFileLoader(filePath string) *FileLoader {
	return &FileLoader{
		filePath: filePath,
	}
}

// NewOptionalFileLoader behaves like NewFileLoader but falls back to the
// built-in defaults when the file does not exist
func NewOptionalFileLoader(filePath string) *FileLoader {
	return &FileLoader{
		filePath: filePath,
		optional: true,
	}
}

// Load implements interfaces.ConfigLoader
func (f *FileLoader) Load() (*config.Config, error) {
	data, err := os.ReadFile(f.filePath)
	if err != nil {
		if f.optional && errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, err
	}

	return config.Parse(data)
}

// MemoryLoader loads configuration from memory (useful for testing)
type MemoryLoader struct {
	config *config.Config
}

// NewMemoryLoader creates a new in-memory configuration loader
func NewMemoryLoader(cfg *config.Config) *MemoryLoader {
	return &MemoryLoader{
		config: cfg,
	}
}

// Load implements interfaces.ConfigLoader
func (m *MemoryLoader) Load() (*config.Config, error) {
	// Return a copy to prevent modification
	return clone(m.config), nil
}

func clone(src *config.Config) *config.Config {
	dst := *src

	dst.Services = append([]config.ServiceConfig(nil), src.Services...)

	dst.Routes = make([]config.RouteConfig, len(src.Routes))
	for i, r := range src.Routes {
		r.PublicPaths = append([]string(nil), r.PublicPaths...)
		dst.Routes[i] = r
	}

	dst.RateLimits = make(map[string]config.RateLimitPolicy, len(src.RateLimits))
	for k, v := range src.RateLimits {
		dst.RateLimits[k] = v
	}

	if src.Redis != nil {
		r := *src.Redis
		dst.Redis = &r
	}
	if src.Consul != nil {
		c := *src.Consul
		dst.Consul = &c
	}
	if src.TLS != nil {
		t := *src.TLS
		dst.TLS = &t
	}

	return &dst
}
