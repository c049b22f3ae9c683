package echoapi

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/services/ratelimit"
)

// Rate limit rules
const (
	ruleLogin    = "login"
	rulePassword = "password"
	ruleDebrief  = "debrief"
	ruleForum    = "forum"
	ruleWebhook  = "webhook"
)

// LimiterFactory builds the limiter of a rule allowing limit requests per window.
type LimiterFactory func(rule string, limit int, window time.Duration) ratelimit.Limiter

// rateLimits hands out the middleware of each rule.
type rateLimits struct {
	enabled bool
	limits  map[string]int
	window  time.Duration
	factory LimiterFactory
	logger  core.Logger
	ctx     context.Context
}

func newRateLimits(ctx context.Context, conf *core.Config, factory LimiterFactory, logger core.Logger) *rateLimits {
	rc := conf.RateLimit
	rl := &rateLimits{
		enabled: rc.Enabled,
		limits: map[string]int{
			ruleLogin:    rc.Login,
			rulePassword: rc.Password,
			ruleDebrief:  rc.Debrief,
			ruleForum:    rc.Forum,
			ruleWebhook:  rc.Webhook,
		},
		window:  rc.Window,
		factory: factory,
		logger:  logger,
		ctx:     ctx,
	}
	if rl.factory == nil {
		rl.factory = rl.memoryLimiter
	}
	return rl
}

// memoryLimiter keeps counters in process. The webhook rule uses a token bucket so Paddle retries may burst.
func (rl *rateLimits) memoryLimiter(rule string, limit int, window time.Duration) ratelimit.Limiter {
	if rule == ruleWebhook {
		tb := ratelimit.NewTokenBucket(limit, window, limit)
		tb.StartJanitor(rl.ctx)
		return tb
	}
	fw := ratelimit.NewFixedWindow(limit, window)
	fw.StartJanitor(rl.ctx)
	return fw
}

// For returns the middleware enforcing rule. It is a no-op when rate limiting is disabled.
func (rl *rateLimits) For(rule string) echo.MiddlewareFunc {
	limit := rl.limits[rule]
	if !rl.enabled || limit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return rateLimitMiddleware(rule, rl.factory(rule, limit, rl.window), rl.logger)
}

// rateLimitMiddleware keys requests by rule and authenticated user, or client IP for anonymous requests.
// Limiter failures let the request through.
func rateLimitMiddleware(rule string, limiter ratelimit.Limiter, logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			key := rule + ":ip:" + ctx.RealIP()
			if claims, err := getContextClaims(ctx); err == nil && claims.Subject != "" {
				key = rule + ":user:" + claims.Subject
			}

			d, err := limiter.Allow(ctx.Request().Context(), key)
			if err != nil {
				logger.Warn("rate limiter failed: "+err.Error(), rule)
				return next(ctx)
			}

			h := ctx.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				h.Set("Retry-After", strconv.Itoa(secs))
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}
