package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jamesprial/biteme-gateway/internal/interfaces"
)

type window struct {
	start  time.Time
	length time.Duration
	count  int64
}

// MemoryStore keeps windows in process memory. It is the default store for a
// single gateway instance.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	logger  interfaces.Logger
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(logger interfaces.Logger) *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*window),
		logger:  logger,
		now:     time.Now,
	}
}

// Incr implements Store.
func (m *MemoryStore) Incr(_ context.Context, key string, length time.Duration) (int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || now.Sub(w.start) >= w.length || w.length != length {
		w = &window{start: now, length: length}
		m.windows[key] = w
	}
	w.count++

	return w.count, w.start.Add(w.length), nil
}

// Len returns the number of tracked windows.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// Cleanup drops windows that have elapsed.
func (m *MemoryStore) Cleanup() int {
	m.mu.Lock()
	now := m.now()
	removed := 0
	for key, w := range m.windows {
		if now.Sub(w.start) >= w.length {
			delete(m.windows, key)
			removed++
		}
	}
	m.mu.Unlock()

	if m.logger != nil && removed > 0 {
		m.logger.Debug("Cleaned up expired rate limit windows", map[string]any{
			"cleaned_count": removed,
		})
	}
	return removed
}

// StartCleanup runs Cleanup on every interval until stop is closed.
func (m *MemoryStore) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Cleanup()
		case <-stop:
			return
		}
	}
}
