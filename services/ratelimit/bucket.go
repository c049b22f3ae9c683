package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket smooths bursts: each key refills limit tokens per window, up to burst.
type TokenBucket struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	entries map[string]*bucketEntry
}

type bucketEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

var _ Limiter = (*TokenBucket)(nil) // interface compliance check

func NewTokenBucket(limit int, window time.Duration, burst int) *TokenBucket {
	return &TokenBucket{
		rps:     rate.Limit(float64(limit) / window.Seconds()),
		burst:   burst,
		idleTTL: 15 * time.Minute,
		entries: make(map[string]*bucketEntry),
	}
}

func (tb *TokenBucket) get(key string, now time.Time) *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if ent, ok := tb.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}
	lim := rate.NewLimiter(tb.rps, tb.burst)
	tb.entries[key] = &bucketEntry{lim: lim, lastSeen: now}
	return lim
}

func (tb *TokenBucket) Allow(_ context.Context, key string) (Decision, error) {
	now := nowFunc()
	lim := tb.get(key, now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return Decision{Limit: tb.burst, RetryAfter: time.Second}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Limit: tb.burst, RetryAfter: delay}, nil
	}
	remaining := int(math.Floor(lim.TokensAt(now)))
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Limit: tb.burst, Remaining: remaining}, nil
}

// Cleanup drops keys idle for longer than the idle TTL.
func (tb *TokenBucket) Cleanup() {
	cutoff := nowFunc().Add(-tb.idleTTL)

	tb.mu.Lock()
	defer tb.mu.Unlock()
	for k, ent := range tb.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(tb.entries, k)
		}
	}
}

// StartJanitor drops idle keys every idle TTL until ctx is done.
func (tb *TokenBucket) StartJanitor(ctx context.Context) {
	t := time.NewTicker(tb.idleTTL)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				tb.Cleanup()
			}
		}
	}()
}
