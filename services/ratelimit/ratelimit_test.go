package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freezeTime(t *testing.T, now time.Time) func(time.Duration) {
	t.Helper()
	current := now
	nowFunc = func() time.Time { return current }
	t.Cleanup(func() { nowFunc = time.Now })
	return func(d time.Duration) { current = current.Add(d) }
}

func TestFixedWindow_Allow(t *testing.T) {
	advance := freezeTime(t, time.Date(2026, 3, 1, 10, 0, 10, 0, time.UTC))
	ctx := context.Background()
	fw := NewFixedWindow(3, time.Minute)

	for i := 2; i >= 0; i-- {
		d, err := fw.Allow(ctx, "login:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, i, d.Remaining)
	}

	d, err := fw.Allow(ctx, "login:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 50*time.Second, d.RetryAfter)

	// other keys have their own window
	d, _ = fw.Allow(ctx, "login:5.6.7.8")
	assert.True(t, d.Allowed)

	// next window
	advance(50 * time.Second)
	d, _ = fw.Allow(ctx, "login:1.2.3.4")
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining)
}

func TestFixedWindow_Cleanup(t *testing.T) {
	advance := freezeTime(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	fw := NewFixedWindow(1, time.Minute)

	_, _ = fw.Allow(ctx, "a")
	_, _ = fw.Allow(ctx, "b")
	fw.Cleanup()
	assert.Equal(t, 2, fw.size())

	advance(time.Minute)
	_, _ = fw.Allow(ctx, "b")
	fw.Cleanup()
	assert.Equal(t, 1, fw.size())
}

func TestTokenBucket_Allow(t *testing.T) {
	advance := freezeTime(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	tb := NewTokenBucket(60, time.Minute, 2) // 1 token/s

	d, _ := tb.Allow(ctx, "k")
	assert.True(t, d.Allowed)
	d, _ = tb.Allow(ctx, "k")
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, _ = tb.Allow(ctx, "k")
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Second, d.RetryAfter)

	advance(time.Second)
	d, _ = tb.Allow(ctx, "k")
	assert.True(t, d.Allowed)
}

func TestRedisFixedWindow_Allow(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	rdb, err := NewRedisClient(url)
	require.NoError(t, err)
	defer rdb.Close()

	ctx := context.Background()
	rw := NewRedisFixedWindow(rdb, "test:ratelimit:", 2, time.Minute)
	key := uuid.New().String()

	d, err := rw.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	d, _ = rw.Allow(ctx, key)
	assert.True(t, d.Allowed)
	d, _ = rw.Allow(ctx, key)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}
