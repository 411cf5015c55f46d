package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket refills continuously at rate tokens per second up to capacity.
type TokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	rate       float64
	lastRefill time.Time
}

// NewTokenBucket creates a full bucket.
func NewTokenBucket(rate float64, capacity int, now time.Time) *TokenBucket {
	return &TokenBucket{
		tokens:     float64(capacity),
		capacity:   float64(capacity),
		rate:       rate,
		lastRefill: now,
	}
}

// Allow consumes a token if one is available at now.
func (tb *TokenBucket) Allow(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if elapsed := now.Sub(tb.lastRefill); elapsed > 0 {
		tb.tokens += elapsed.Seconds() * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastRefill = now
	}

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *TokenBucket) idleSince() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastRefill
}

// Memory is a per-key token bucket limiter. Buckets idle for longer than
// two windows are swept.
type Memory struct {
	limit Limit
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*TokenBucket

	stop chan struct{}
	once sync.Once
}

// NewMemory creates an in-process limiter and starts its sweeper.
func NewMemory(limit Limit) *Memory {
	m := &Memory{
		limit:   limit,
		now:     time.Now,
		buckets: make(map[string]*TokenBucket),
		stop:    make(chan struct{}),
	}
	if !limit.Disabled() {
		go m.sweep(limit.Window)
	}
	return m
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	if m.limit.Disabled() {
		return true, nil
	}
	now := m.now()

	m.mu.Lock()
	b, ok := m.buckets[key]
	if !ok {
		rate := float64(m.limit.Requests) / m.limit.Window.Seconds()
		b = NewTokenBucket(rate, m.limit.Requests, now)
		m.buckets[key] = b
	}
	m.mu.Unlock()

	return b.Allow(now), nil
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// Cleanup drops buckets untouched since before cutoff.
func (m *Memory) Cleanup(cutoff time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, b := range m.buckets {
		if b.idleSince().Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}

func (m *Memory) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Cleanup(m.now().Add(-2 * m.limit.Window))
		}
	}
}

// Close stops the sweeper.
func (m *Memory) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}

var _ Limiter = (*Memory)(nil)
