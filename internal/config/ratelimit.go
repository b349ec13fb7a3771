package config

import "time"

// RateLimitConfig configures the token bucket on /api.  The defaults allow
// RATE_LIMIT_MAX (100) requests per RATE_LIMIT_WINDOW (1h) per client IP,
// refilled in one step at the end of the window.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string // ip, user or ip_user
	Prefix         string
	Debug          bool
}

func loadRateLimit() RateLimitConfig {
	limit := envInt("RATE_LIMIT_MAX", 100)
	if limit < 1 {
		limit = 1
	}
	window := envDur("RATE_LIMIT_WINDOW", time.Hour)
	if window <= 0 {
		window = time.Hour
	}
	return RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       limit,
		RefillTokens:   limit,
		RefillInterval: window,
		// buckets outlive one full window so an idle client cannot reset early
		TTL:         2 * window,
		KeyStrategy: getenv("RATE_LIMIT_KEY_STRATEGY", "ip"),
		Prefix:      getenv("RATE_LIMIT_PREFIX", "rl"),
		Debug:       envBool("RATE_LIMIT_DEBUG", false),
	}
}
