package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE", "root:<password>@tcp(localhost:3306)/<dbname>")
	t.Setenv("DATABASE_PASSWORD", "s3cret")
	t.Setenv("DATABASE_NAME", "natours")
	t.Setenv("JWT_SECRET", "dev-secret")
	t.Setenv("JWT_EXPIRES_IN", "")
	t.Setenv("BCRYPT_COST", "")
	t.Setenv("MAIL_DRIVER", "")
	t.Setenv("APP_BASE_URL", "")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "root:s3cret@tcp(localhost:3306)/natours", cfg.DatabaseDSN)
	assert.Equal(t, 90*24*time.Hour, cfg.JWTExpiresIn)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, "log", cfg.Mail.Driver)
	assert.Equal(t, "usd", cfg.Stripe.Currency)
	assert.False(t, cfg.IsProduction())
}

func TestLoadReportsAllMissing(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATABASE", "")
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE")
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadClampsBcryptOutsideTests(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("BCRYPT_COST", "4")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.BcryptCost)

	t.Setenv("APP_ENV", "test")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.BcryptCost)
}

func TestLoadProductionNeedsLongSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("MAIL_DRIVER", "log")
	_, err := Load()
	require.Error(t, err)
}

func TestParseLifetime(t *testing.T) {
	d, err := parseLifetime("7d")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)

	d, err = parseLifetime("90m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	_, err = parseLifetime("soon")
	assert.Error(t, err)
}

func TestLoadProductionNeedsBaseURL(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("MAIL_DRIVER", "log")
	t.Setenv("JWT_SECRET", "a-production-secret-of-32-chars!!")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_BASE_URL")

	t.Setenv("APP_BASE_URL", "https://natours.example/")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://natours.example", cfg.BaseURL)
}

func TestRateLimitAndCacheDefaults(t *testing.T) {
	setBaseEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	rl := cfg.RateLimit
	assert.True(t, rl.Enabled)
	assert.Equal(t, 100, rl.Capacity)
	assert.Equal(t, 100, rl.RefillTokens)
	assert.Equal(t, time.Hour, rl.RefillInterval)
	assert.Equal(t, 2*time.Hour, rl.TTL)
	assert.Equal(t, "ip", rl.KeyStrategy)

	assert.Equal(t, "tours-cache", cfg.Cache.Prefix)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestRateLimitWindowFromEnv(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("RATE_LIMIT_MAX", "20")
	t.Setenv("RATE_LIMIT_WINDOW", "15m")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.RateLimit.Capacity)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.RefillInterval)
	assert.Equal(t, 30*time.Minute, cfg.RateLimit.TTL)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
}
