package ratelimit

import (
	"context"
	"sync"
	"time"
)

// FixedWindow allows limit requests per key in each window, counting in memory.
type FixedWindow struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	entries map[string]*windowEntry
}

type windowEntry struct {
	start time.Time
	count int
}

var _ Limiter = (*FixedWindow)(nil) // interface compliance check

func NewFixedWindow(limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{limit: limit, window: window, entries: make(map[string]*windowEntry)}
}

func (fw *FixedWindow) Allow(_ context.Context, key string) (Decision, error) {
	now := nowFunc()
	start := windowStart(now, fw.window)

	fw.mu.Lock()
	defer fw.mu.Unlock()

	ent, ok := fw.entries[key]
	if !ok || !ent.start.Equal(start) {
		ent = &windowEntry{start: start}
		fw.entries[key] = ent
	}
	ent.count++
	return decide(ent.count, fw.limit, start.Add(fw.window), now), nil
}

// Cleanup drops the keys whose window is over.
func (fw *FixedWindow) Cleanup() {
	current := windowStart(nowFunc(), fw.window)

	fw.mu.Lock()
	defer fw.mu.Unlock()
	for k, ent := range fw.entries {
		if ent.start.Before(current) {
			delete(fw.entries, k)
		}
	}
}

func (fw *FixedWindow) size() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.entries)
}

// StartJanitor cleans stale keys every window until ctx is done.
func (fw *FixedWindow) StartJanitor(ctx context.Context) {
	t := time.NewTicker(fw.window)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				fw.Cleanup()
			}
		}
	}()
}
