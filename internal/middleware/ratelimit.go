package middleware

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/iliyamo/tour-booking/internal/apperr"
	"github.com/iliyamo/tour-booking/internal/config"
	"github.com/iliyamo/tour-booking/internal/logger"
)

// MsgRateLimited is the 429 message of the /api limiter.
const MsgRateLimited = "Too many requests from this IP, please try again in an hour!"

// NewTokenBucket limits requests per key (client IP by default) with a
// token bucket kept in Redis, so every instance shares the budget.  Without
// Redis, or while Redis errors, an in-process limiter with the same
// capacity and refill rate takes over.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return func(c echo.Context) error { return next(c) } }
	}
	local := newMemoryLimiter(cfg)
	if rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				key := buildRateKey(cfg, c)
				allowed, remaining, retry := local.allow(key, time.Now())
				return finish(c, next, cfg, key, allowed, remaining, retry)
			}
		}
	}

	limiterScript := redis.NewScript(`
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

        if interval_ms > 0 and refill_tokens > 0 then
            local elapsed = math.max(0, now_ms - last_refill)
            local intervals = math.floor(elapsed / interval_ms)
            if intervals > 0 then
                tokens = math.min(capacity, tokens + (intervals * refill_tokens))
                last_refill = last_refill + (intervals * interval_ms)
            end
        end

        local allowed = 0
        local retry_after_ms = 0
        if tokens > 0 then
            allowed = 1
            tokens = tokens - 1
        else
            local until_next = interval_ms - (now_ms - last_refill)
            if until_next < 0 then until_next = 0 end
            retry_after_ms = until_next
        end

        redis.call('HMSET', key, 'tokens', tokens, 'last_refill_ms', last_refill, 'capacity', capacity)
        redis.call('EXPIRE', key, ttl_seconds)

        return { allowed, tokens, retry_after_ms }
    `)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			now := time.Now()

			args := []interface{}{
				now.UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				int64(cfg.TTL / time.Second),
			}

			ctx := c.Request().Context()
			vals, err := limiterScript.Run(ctx, rdb, []string{key}, args...).Result()
			if err != nil {
				if cfg.Debug {
					logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("ratelimit: redis error, using local limiter")
				}
				allowed, remaining, retry := local.allow(key, now)
				return finish(c, next, cfg, key, allowed, remaining, retry)
			}

			allowed := false
			remaining := int64(0)
			retryMs := int64(0)

			if arr, ok := vals.([]interface{}); ok && len(arr) == 3 {
				if i, ok := arr[0].(int64); ok {
					allowed = i == 1
				} else {
					allowed = fmt.Sprint(arr[0]) == "1"
				}
				remaining = asInt64(arr[1])
				retryMs = asInt64(arr[2])
			} else {
				if cfg.Debug {
					logger.Ctx(ctx).Warn().Str("key", key).Interface("result", vals).Msg("ratelimit: unexpected script result")
				}
				return next(c)
			}
			return finish(c, next, cfg, key, allowed, remaining, time.Duration(retryMs)*time.Millisecond)
		}
	}
}

// finish writes the rate limit headers and either continues or fails with
// a RateLimited error carrying Retry-After.
func finish(c echo.Context, next echo.HandlerFunc, cfg config.RateLimitConfig, key string, allowed bool, remaining int64, retry time.Duration) error {
	c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
	c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

	if !allowed {
		secs := int(math.Ceil(retry.Seconds()))
		if secs < 0 {
			secs = 0
		}
		c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
		if cfg.Debug {
			logger.Ctx(c.Request().Context()).Info().Str("key", key).Int64("remaining", remaining).Dur("retry", retry).Msg("ratelimit: block")
		}
		return apperr.New(apperr.RateLimited, MsgRateLimited)
	}

	if cfg.Debug {
		c.Response().Header().Set("X-RateLimit-Key", key)
	}
	return next(c)
}

// memoryLimiter keeps one x/time/rate limiter per key.  Keys idle for
// longer than the configured TTL are swept at most once a minute.
type memoryLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
}

type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

func newMemoryLimiter(cfg config.RateLimitConfig) *memoryLimiter {
	return &memoryLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(cfg.RefillTokens) / cfg.RefillInterval.Seconds()),
		burst:    cfg.Capacity,
		ttl:      cfg.TTL,
	}
}

func (m *memoryLimiter) allow(key string, now time.Time) (bool, int64, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.lastSweep) > time.Minute {
		for k, v := range m.visitors {
			if now.Sub(v.seen) > m.ttl {
				delete(m.visitors, k)
			}
		}
		m.lastSweep = now
	}

	v, ok := m.visitors[key]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(m.limit, m.burst)}
		m.visitors[key] = v
	}
	v.seen = now

	r := v.lim.ReserveN(now, 1)
	if !r.OK() {
		return false, 0, m.ttl
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, 0, d
	}
	remaining := int64(v.lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return true, remaining, 0
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case float32:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	parts := []string{cfg.Prefix}
	strategy := strings.ToLower(cfg.KeyStrategy)
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := userID(c)
	route := c.Request().Method + " " + c.Path()

	switch strategy {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", uid)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}
