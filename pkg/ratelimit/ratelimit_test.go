package ratelimit

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"
)

func TestTokenBucket(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	tb := NewTokenBucket(1, 2, start)

	if !tb.Allow(start) || !tb.Allow(start) {
		t.Fatal("expected burst of 2")
	}
	if tb.Allow(start) {
		t.Fatal("expected bucket to be empty")
	}
	if tb.Allow(start.Add(500 * time.Millisecond)) {
		t.Fatal("half a token should not be enough")
	}
	if !tb.Allow(start.Add(time.Second)) {
		t.Fatal("expected refill after 1s")
	}
	if !tb.Allow(start.Add(time.Hour)) || !tb.Allow(start.Add(time.Hour)) {
		t.Fatal("expected refill to capacity")
	}
	if tb.Allow(start.Add(time.Hour)) {
		t.Fatal("refill must not exceed capacity")
	}
}

func TestMemoryPerKey(t *testing.T) {
	m := NewMemory(PerMinute(3))
	defer m.Close()

	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, _ := m.Allow(ctx, "a"); !ok {
			t.Fatalf("request %d for a should pass", i)
		}
	}
	if ok, _ := m.Allow(ctx, "a"); ok {
		t.Fatal("4th request for a should be limited")
	}
	if ok, _ := m.Allow(ctx, "b"); !ok {
		t.Fatal("b has its own budget")
	}

	now = now.Add(20 * time.Second)
	if ok, _ := m.Allow(ctx, "a"); !ok {
		t.Fatal("a should get one token back after 20s")
	}
}

func TestMemoryDisabled(t *testing.T) {
	m := NewMemory(PerMinute(0))
	defer m.Close()
	for i := 0; i < 100; i++ {
		if ok, err := m.Allow(context.Background(), "k"); !ok || err != nil {
			t.Fatalf("disabled limiter rejected request: %v", err)
		}
	}
	if m.Len() != 0 {
		t.Error("disabled limiter should not track keys")
	}
}

func TestMemoryCleanup(t *testing.T) {
	m := NewMemory(PerMinute(10))
	defer m.Close()

	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }
	m.Allow(context.Background(), "old")
	now = now.Add(5 * time.Minute)
	m.Allow(context.Background(), "new")

	m.Cleanup(now.Add(-2 * time.Minute))
	if m.Len() != 1 {
		t.Errorf("expected 1 bucket after cleanup, got %d", m.Len())
	}
}

func TestMemoryConcurrent(t *testing.T) {
	m := NewMemory(Limit{Requests: 50, Window: time.Hour})
	defer m.Close()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.Allow(context.Background(), "shared"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("expected exactly 50 allowed, got %d", allowed)
	}
}

func TestMemoryCloseIdempotent(t *testing.T) {
	m := NewMemory(PerMinute(1))
	m.Close()
	m.Close()
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	r, err := NewRedis(ctx, "redis://"+addr+"/0", Limit{Requests: 2, Window: time.Minute}, nil)
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer r.Close()
	r.prefix = fmt.Sprintf("mindwell:test:%d:", time.Now().UnixNano())

	for i := 0; i < 2; i++ {
		if ok, err := r.Allow(ctx, "k"); !ok || err != nil {
			t.Fatalf("request %d should pass: %v", i, err)
		}
	}
	if ok, _ := r.Allow(ctx, "k"); ok {
		t.Fatal("3rd request should be limited")
	}
}

func TestNewRedisBadURL(t *testing.T) {
	if _, err := NewRedis(context.Background(), "not-a-url", PerMinute(1), nil); err == nil {
		t.Error("expected parse error")
	}
}
