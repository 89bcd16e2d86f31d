package enrich

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// LimiterManager keeps one token bucket per data source name so a burst
// against one provider cannot starve another.
type LimiterManager struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewLimiterManager creates a manager applying rps/burst per source name.
func NewLimiterManager(rps float64, burst int) *LimiterManager {
	return &LimiterManager{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (m *LimiterManager) limiter(name string) *rate.Limiter {
	m.mu.RLock()
	l, ok := m.limiters[name]
	m.mu.RUnlock()
	if ok {
		return l
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.limiters[name]; ok {
		return l
	}
	l = rate.NewLimiter(rate.Limit(m.rps), m.burst)
	m.limiters[name] = l
	return l
}

// Wait blocks until the named source may issue a request or ctx is done.
func (m *LimiterManager) Wait(ctx context.Context, name string) error {
	return m.limiter(name).Wait(ctx)
}

// Allow reports without blocking whether the named source may issue a request.
func (m *LimiterManager) Allow(name string) bool {
	return m.limiter(name).Allow()
}
