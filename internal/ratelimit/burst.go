package ratelimit

import (
	"sync"
	"time"

	"github.com/jamesprial/biteme-gateway/internal/interfaces"
	"golang.org/x/time/rate"
)

// BurstLimiter is a per-client token bucket that absorbs request floods before
// they reach the fixed windows. Idle clients are forgotten after ttl.
type BurstLimiter struct {
	mu         sync.Mutex
	clients    map[string]*rate.Limiter
	lastAccess map[string]time.Time
	limit      rate.Limit
	burst      int
	ttl        time.Duration
	logger     interfaces.Logger
	now        func() time.Time
}

// NewBurstLimiter creates a limiter refilling rps tokens per second.
func NewBurstLimiter(rps float64, burst int, ttl time.Duration, logger interfaces.Logger) *BurstLimiter {
	return &BurstLimiter{
		clients:    make(map[string]*rate.Limiter),
		lastAccess: make(map[string]time.Time),
		limit:      rate.Limit(rps),
		burst:      burst,
		ttl:        ttl,
		logger:     logger,
		now:        time.Now,
	}
}

// Allow takes one token for key.
func (b *BurstLimiter) Allow(key string) bool {
	b.mu.Lock()
	now := b.now()
	limiter, ok := b.clients[key]
	if !ok {
		limiter = rate.NewLimiter(b.limit, b.burst)
		b.clients[key] = limiter
	}
	b.lastAccess[key] = now
	b.mu.Unlock()

	if limiter.AllowN(now, 1) {
		return true
	}
	if b.logger != nil {
		b.logger.Warn("Burst limit exceeded", map[string]any{"client": key})
	}
	return false
}

// StartCleanup removes idle clients on every interval until stop is closed.
func (b *BurstLimiter) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.cleanup()
		case <-stop:
			return
		}
	}
}

func (b *BurstLimiter) cleanup() int {
	b.mu.Lock()
	now := b.now()
	removed := 0
	for key, last := range b.lastAccess {
		if now.Sub(last) > b.ttl {
			delete(b.lastAccess, key)
			delete(b.clients, key)
			removed++
		}
	}
	b.mu.Unlock()

	if b.logger != nil && removed > 0 {
		b.logger.Debug("Cleaned up inactive burst limiter entries", map[string]any{
			"cleaned_count": removed,
		})
	}
	return removed
}
