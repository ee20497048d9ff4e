// Package ratelimit provides keyed token buckets for per-caller request
// limits. Buckets refill continuously at the per-minute quota and allow a
// burst of the full quota, so a caller can spend a minute's budget at once
// and earns it back over the following minute.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultMaxKeys = 10000

// Limiter hands out one token bucket per key, usually a user id or a
// client IP. A zero or negative quota disables the limiter entirely.
type Limiter struct {
	perMinute int
	burst     int
	logger    *slog.Logger

	mu      sync.RWMutex
	buckets map[string]*rate.Limiter
	maxKeys int

	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(perMinute int, logger *slog.Logger) *Limiter {
	return &Limiter{
		perMinute: perMinute,
		burst:     perMinute,
		logger:    logger.With("component", "ratelimit"),
		buckets:   make(map[string]*rate.Limiter),
		maxKeys:   defaultMaxKeys,
		stopCh:    make(chan struct{}),
	}
}

// Allow consumes one token from the key's bucket. When denied, the second
// return value is how long the caller should wait before retrying.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if l.perMinute <= 0 {
		return true, 0
	}
	res := l.bucket(key).Reserve()
	if !res.OK() {
		return false, time.Minute
	}
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return false, delay
	}
	return true, 0
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Double-check after acquiring the write lock.
	if b, ok := l.buckets[key]; ok {
		return b
	}
	if len(l.buckets) >= l.maxKeys {
		l.pruneLocked()
	}
	b = rate.NewLimiter(rate.Limit(float64(l.perMinute)/60.0), l.burst)
	l.buckets[key] = b
	return b
}

// Start launches the periodic prune of idle buckets.
func (l *Limiter) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stopCh:
				return
			case <-ticker.C:
				l.prune()
			}
		}
	}()
}

// Stop terminates the prune loop.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *Limiter) prune() {
	l.mu.Lock()
	l.pruneLocked()
	l.mu.Unlock()
}

// pruneLocked drops buckets sitting near full capacity, which marks keys
// with no recent traffic. A pruned key that comes back simply gets a
// fresh bucket.
func (l *Limiter) pruneLocked() {
	threshold := float64(l.burst) * 0.9
	removed := 0
	for key, b := range l.buckets {
		if b.Tokens() >= threshold {
			delete(l.buckets, key)
			removed++
		}
	}
	if removed > 0 {
		l.logger.Debug("Pruned idle rate-limit buckets", "removed", removed, "remaining", len(l.buckets))
	}
}
