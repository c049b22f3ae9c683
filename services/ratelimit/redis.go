package ratelimit

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisFixedWindow is a FixedWindow shared by every instance using the same redis.
type RedisFixedWindow struct {
	rdb    redis.Cmdable
	prefix string
	limit  int
	window time.Duration
}

var _ Limiter = (*RedisFixedWindow)(nil) // interface compliance check

func NewRedisFixedWindow(rdb redis.Cmdable, prefix string, limit int, window time.Duration) *RedisFixedWindow {
	return &RedisFixedWindow{rdb: rdb, prefix: strings.Trim(prefix, ":"), limit: limit, window: window}
}

func (rw *RedisFixedWindow) key(key string, start time.Time) string {
	return rw.prefix + ":" + key + ":" + strconv.FormatInt(start.UnixNano()/int64(time.Millisecond), 10)
}

func (rw *RedisFixedWindow) Allow(ctx context.Context, key string) (Decision, error) {
	now := nowFunc()
	start := windowStart(now, rw.window)

	pipe := rw.rdb.Pipeline()
	incr := pipe.Incr(ctx, rw.key(key, start))
	// the key outlives its window a little so late requests still land in it
	pipe.PExpire(ctx, rw.key(key, start), rw.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, errors.Wrap(err, "redis rate limit")
	}
	return decide(int(incr.Val()), rw.limit, start.Add(rw.window), now), nil
}

// NewRedisClient connects to the redis instance at url, e.g. redis://localhost:6379/0.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis url")
	}
	return redis.NewClient(opts), nil
}
