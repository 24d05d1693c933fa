package server

import (
	"errors"
	"strconv"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/Brownie44l1/nbhttp/internal/response"
)

// RateLimitConfig allows Requests per Window for each client IP
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// RateLimiter implements a fixed window limiter per client IP
type RateLimiter struct {
	buckets *xsync.MapOf[string, bucket]
	rate    int
	window  time.Duration
	now     func() time.Time
}

type bucket struct {
	tokens    int
	lastReset time.Time
}

var ErrInvalidRateLimit = errors.New("rate limit needs positive requests and window")

func NewRateLimiter(cfg RateLimitConfig, clock func() time.Time) (*RateLimiter, error) {
	if cfg.Requests <= 0 || cfg.Window <= 0 {
		return nil, ErrInvalidRateLimit
	}
	if clock == nil {
		clock = time.Now
	}
	return &RateLimiter{
		buckets: xsync.NewMapOf[string, bucket](),
		rate:    cfg.Requests,
		window:  cfg.Window,
		now:     clock,
	}, nil
}

// Allow checks if a request from the given IP should be allowed
func (rl *RateLimiter) Allow(ip string) bool {
	now := rl.now()
	allowed := false

	rl.buckets.Compute(ip, func(b bucket, loaded bool) (bucket, bool) {
		if !loaded || now.Sub(b.lastReset) >= rl.window {
			allowed = true
			return bucket{tokens: rl.rate - 1, lastReset: now}, false
		}
		if b.tokens > 0 {
			b.tokens--
			allowed = true
		}
		return b, false
	})

	return allowed
}

// Sweep removes buckets idle for more than two windows
func (rl *RateLimiter) Sweep(now time.Time) {
	rl.buckets.Range(func(ip string, b bucket) bool {
		if now.Sub(b.lastReset) > rl.window*2 {
			rl.buckets.Delete(ip)
		}
		return true
	})
}

func (*RateLimiter) Name() string { return "rate-limit" }

func (rl *RateLimiter) Intercept(ctx *Context, next Handler) {
	if !rl.Allow(ctx.ClientIP()) {
		ctx.Response.Header().Set("Retry-After", strconv.Itoa(max(1, int(rl.window.Seconds()))))
		ctx.Error(response.StatusTooManyRequests, "Rate limit exceeded")
		return
	}
	next.ServeHTTP(ctx)
}
