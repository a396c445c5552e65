package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/platinummonkey/cura/pkg/httputil"
)

// Limiter decides whether another request for key is allowed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate per key
	RequestsPerMinute int
	// BurstSize allows temporary bursts above the rate
	BurstSize int
	// MaxKeys bounds how many clients are tracked at once
	MaxKeys int
}

// DefaultRateLimitConfig limits login attempts per client
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
		MaxKeys:           1024,
	}
}

func (c RateLimitConfig) limit() rate.Limit {
	return rate.Limit(float64(c.RequestsPerMinute) / 60.0)
}

// RateLimiter is a per-key token bucket kept in process memory. Idle keys are dropped once
// their bucket would have refilled.
type RateLimiter struct {
	config  RateLimitConfig
	clock   clockwork.Clock
	buckets *expirable.LRU[string, *rate.Limiter]
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimitConfig, clock clockwork.Clock) *RateLimiter {
	if config.MaxKeys <= 0 {
		config.MaxKeys = DefaultRateLimitConfig().MaxKeys
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	// a bucket left alone this long is full again, so forgetting it changes nothing
	refill := time.Minute
	if config.RequestsPerMinute > 0 {
		refill = time.Duration(float64(config.BurstSize) / float64(config.limit()) * float64(time.Second))
		if refill < time.Minute {
			refill = time.Minute
		}
	}

	return &RateLimiter{
		config:  config,
		clock:   clock,
		buckets: expirable.NewLRU[string, *rate.Limiter](config.MaxKeys, nil, refill),
	}
}

// Allow checks if a request is allowed for the given key
func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, error) {
	b, ok := rl.buckets.Get(key)
	if !ok {
		b = rate.NewLimiter(rl.config.limit(), rl.config.BurstSize)
		rl.buckets.Add(key, b)
	}
	return b.AllowN(rl.clock.Now(), 1), nil
}

// Tracked returns how many keys currently hold a bucket
func (rl *RateLimiter) Tracked() int {
	return rl.buckets.Len()
}

// RateLimit rejects requests over limit with 429. Requests are keyed by client address.
// Limiter errors fail open.
func RateLimit(limiter Limiter, config RateLimitConfig, log *logrus.Logger) func(http.Handler) http.Handler {
	retryAfter := 60
	if config.RequestsPerMinute > 0 {
		retryAfter = int(math.Ceil(60.0 / float64(config.RequestsPerMinute)))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + ClientIP(r)
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				httputil.Logger(r.Context(), log).WithError(err).Warn("Rate limiter unavailable, allowing request")
				allowed = true
			}
			if !allowed {
				httputil.Logger(r.Context(), log).WithField("client", key).Warn("Rate limit exceeded")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				httputil.WriteErrorCode(w, http.StatusTooManyRequests, "rate_limited",
					"too many attempts, please wait before trying again")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP or the remote host
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
