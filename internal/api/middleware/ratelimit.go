package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/phonebook/contacts-api/internal/pkg/config"
	"github.com/phonebook/contacts-api/internal/pkg/metrics"
)

// tokenBucket refills capacity-bounded tokens per elapsed interval and
// takes one per request. Returns {allowed, remaining, retry_after_ms}.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil or last_refill == nil then
	tokens = capacity
	last_refill = now_ms
end

local elapsed = math.max(0, now_ms - last_refill)
local intervals = math.floor(elapsed / interval_ms)
if intervals > 0 then
	tokens = math.min(capacity, tokens + (intervals * refill_tokens))
	last_refill = last_refill + (intervals * interval_ms)
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
	allowed = 1
	tokens = tokens - 1
else
	retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)

return { allowed, tokens, retry_after_ms }
`)

// RateLimit applies a per-user, per-route token bucket kept in Redis. It is a
// pass-through when disabled or when no Redis client is configured. Redis
// failures let the request through.
func RateLimit(cfg config.RateLimitConfig, rdb *redis.Client, log zerolog.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	ttl := bucketTTL(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg.Prefix, c)
			res, err := tokenBucket.Run(c.Request().Context(), rdb, []string{key},
				time.Now().UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				int64(ttl/time.Second),
			).Int64Slice()
			if err != nil || len(res) != 3 {
				log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable, allowing request")
				return next(c)
			}

			allowed, remaining, retryMs := res[0] == 1, res[1], res[2]
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !allowed {
				secs := int(math.Ceil(float64(retryMs) / 1000.0))
				h.Set("Retry-After", strconv.Itoa(secs))
				metrics.RateLimitedTotal.Inc()
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

// bucketTTL keeps an idle bucket long enough to refill completely.
func bucketTTL(cfg config.RateLimitConfig) time.Duration {
	intervals := (cfg.Capacity + cfg.RefillTokens - 1) / cfg.RefillTokens
	ttl := time.Duration(intervals) * cfg.RefillInterval
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl.Round(time.Second)
}

// rateKey is <prefix>:user:<user_id>:route:<METHOD path>. Anonymous
// callers are keyed by IP.
func rateKey(prefix string, c echo.Context) string {
	who := "anon:" + c.RealIP()
	if uid, ok := c.Get("user_id").(string); ok && uid != "" {
		who = "user:" + uid
	}
	route := c.Request().Method + " " + c.Path()
	return strings.Join([]string{prefix, who, fmt.Sprintf("route:%s", route)}, ":")
}
