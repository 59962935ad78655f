package gate

import (
	"context"
	"sync"
	"time"
)

// State is the outcome of a rate limit check.
type State int

const (
	Deny State = iota
	Allow
)

// Request describes one rate-limited hit.
type Request struct {
	Key    string
	Limit  uint64
	Window time.Duration
}

// Result is the outcome of a rate limit check.
type Result struct {
	State         State
	TotalRequests uint64
	ExpiresAt     time.Time
}

// Strategy is the contract for rate limiting backends.
type Strategy interface {
	Execute(ctx context.Context, r *Request) (*Result, error)
}

type clientWindow struct {
	count   uint64
	resetAt time.Time
}

type memoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*clientWindow
	now     func() time.Time
}

var _ Strategy = (*memoryLimiter)(nil)

// NewMemoryLimiter creates an in-process fixed window rate limiter. Window
// boundaries are computed at first-seen time per key, not aligned to clock
// ticks.
func NewMemoryLimiter(now func() time.Time) Strategy {
	if now == nil {
		now = time.Now
	}
	return &memoryLimiter{windows: map[string]*clientWindow{}, now: now}
}

func (m *memoryLimiter) Execute(_ context.Context, r *Request) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[r.Key]
	if !ok || now.After(w.resetAt) {
		w = &clientWindow{count: 0, resetAt: now.Add(r.Window)}
		m.windows[r.Key] = w
	}

	if w.count >= r.Limit {
		return &Result{State: Deny, TotalRequests: w.count, ExpiresAt: w.resetAt}, nil
	}
	w.count++
	return &Result{State: Allow, TotalRequests: w.count, ExpiresAt: w.resetAt}, nil
}

// Sweep evicts expired windows. It returns the number of entries removed so
// callers can log eviction activity.
func (m *memoryLimiter) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, w := range m.windows {
		if now.After(w.resetAt) {
			delete(m.windows, key)
			removed++
		}
	}
	return removed
}

// StartSweeper runs a periodic Sweep on the strategy when it supports one,
// until ctx is cancelled. interval <= 0 disables sweeping.
func StartSweeper(ctx context.Context, s Strategy, interval time.Duration) {
	sweeper, ok := s.(interface{ Sweep() int })
	if !ok || interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				sweeper.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}
