// Package ratelimit limits API requests per client key, in memory for a
// single replica or in Redis when replicas share a budget.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Close() error
}

// Limit is a request budget over a window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// PerMinute returns a Limit of n requests per minute.
func PerMinute(n int) Limit {
	return Limit{Requests: n, Window: time.Minute}
}

// Disabled reports whether the limit lets everything through.
func (l Limit) Disabled() bool {
	return l.Requests <= 0 || l.Window <= 0
}
