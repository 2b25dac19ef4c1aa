// Package limiter throttles capsule creation per owner.
package limiter

import (
	"context"
	"sync"
	"time"
)

// Limiter counts actions per key within a fixed window.
type Limiter interface {
	// Allow records one attempt for key and reports whether it is within quota.
	// When it is not, retryAfter tells when the window resets.
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
}

// Unlimited allows everything.
type Unlimited struct{}

// Allow always returns true.
func (Unlimited) Allow(context.Context, string) (bool, time.Duration, error) { return true, 0, nil }

// Memory is an in-process fixed-window limiter.
type Memory struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	now    func() time.Time
	slots  map[string]slot
	swept  time.Time
}

type slot struct {
	start time.Time
	count int
}

// NewMemory allows max attempts per key per window.
func NewMemory(window time.Duration, max int) *Memory {
	return &Memory{window: window, max: max, now: time.Now, slots: make(map[string]slot)}
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if now.Sub(m.swept) >= m.window {
		m.sweep(now)
	}
	s, ok := m.slots[key]
	if !ok || now.Sub(s.start) >= m.window {
		s = slot{start: now}
	}
	s.count++
	m.slots[key] = s
	if s.count > m.max {
		return false, s.start.Add(m.window).Sub(now), nil
	}
	return true, 0, nil
}

// sweep drops slots whose window has ended. Runs at most once per window.
func (m *Memory) sweep(now time.Time) {
	for k, s := range m.slots {
		if now.Sub(s.start) >= m.window {
			delete(m.slots, k)
		}
	}
	m.swept = now
}
