package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/jamesprial/biteme-gateway/config"
	"github.com/jamesprial/biteme-gateway/internal/interfaces"
)

// ConsulSource refreshes registry base URLs from passing Consul instances.
// Services Consul does not know keep their configured address.
type ConsulSource struct {
	client   *consulapi.Client
	registry *Registry
	services []string
	interval time.Duration
	logger   interfaces.Logger
}

// NewConsulClient builds a Consul API client for addr ("host:port" or a URL).
func NewConsulClient(addr string) (*consulapi.Client, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	return consulapi.NewClient(cfg)
}

// NewConsulSource creates a source that keeps the named services current.
func NewConsulSource(cfg *config.ConsulConfig, reg *Registry, services []string, logger interfaces.Logger) (*ConsulSource, error) {
	client, err := NewConsulClient(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &ConsulSource{
		client:   client,
		registry: reg,
		services: services,
		interval: interval,
		logger:   logger,
	}, nil
}

// Sync looks up every service once and registers the most recently modified
// passing instance.
func (c *ConsulSource) Sync(ctx context.Context) error {
	var errs []error

	for _, svc := range c.services {
		opts := (&consulapi.QueryOptions{}).WithContext(ctx)
		entries, _, err := c.client.Health().Service(svc, "", true, opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("consul lookup %q: %w", svc, err))
			continue
		}
		if len(entries) == 0 {
			if c.logger != nil {
				c.logger.Warn("Service has no passing instances in consul", map[string]any{"name": svc})
			}
			continue
		}

		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Service.ModifyIndex > entries[j].Service.ModifyIndex
		})

		url, ok := instanceURL(entries[0])
		if !ok {
			continue
		}
		c.registry.Register(svc, url)
	}

	return errors.Join(errs...)
}

// Run syncs immediately and then on every refresh interval until ctx is done.
func (c *ConsulSource) Run(ctx context.Context) {
	c.syncAndLog(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.syncAndLog(ctx)
		}
	}
}

func (c *ConsulSource) syncAndLog(ctx context.Context) {
	if err := c.Sync(ctx); err != nil && ctx.Err() == nil && c.logger != nil {
		c.logger.Error("Consul sync failed", map[string]any{"error": err.Error()})
	}
}

func instanceURL(e *consulapi.ServiceEntry) (string, bool) {
	if e == nil || e.Service == nil {
		return "", false
	}
	addr := e.Service.Address
	if addr == "" && e.Node != nil {
		addr = e.Node.Address
	}
	if addr == "" {
		return "", false
	}

	scheme := "http"
	if s, ok := e.Service.Meta["scheme"]; ok && s != "" {
		scheme = s
	}
	return scheme + "://" + net.JoinHostPort(addr, strconv.Itoa(e.Service.Port)), true
}
