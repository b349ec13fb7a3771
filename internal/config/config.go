package config // package config loads application configuration from environment variables

import (
	"fmt"
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environments recognised by APP_ENV.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// minBcryptCost is enforced outside of tests.
const minBcryptCost = 12

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  A Config is built once in main and passed by
// value; nothing mutates it afterwards.
type Config struct {
	Env     string // application environment (development, production, test)
	Port    string // HTTP port to listen on
	BaseURL string // public base URL of emailed links and checkout redirects; required in production

	DatabaseDSN string // MySQL DSN with placeholders already substituted

	JWTSecret       string        // secret used to sign JWTs
	JWTExpiresIn    time.Duration // session token lifetime
	CookieExpiresIn time.Duration // lifetime of the jwt cookie
	BcryptCost      int           // bcrypt cost for password hashing

	Mail   MailConfig
	Stripe StripeConfig

	AMQPURL string // RabbitMQ URL; empty dispatches jobs in-process

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig

	LogLevel  string
	LogFormat string
	LogDir    string // directory of the booking log
}

// MailConfig selects and configures the outgoing mail driver.
type MailConfig struct {
	Driver   string // smtp, mailersend or log
	From     string
	FromName string
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
	APIKey   string // MailerSend API key
}

// StripeConfig holds the payment provider credentials.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

// IsProduction reports whether the service runs in production mode.
func (c Config) IsProduction() bool { return c.Env == EnvProduction }

// Load reads configuration values from the environment and returns a
// Config.  config.env and .env are loaded first when present; variables
// already set in the process environment win.  Every missing required
// variable is listed in the returned error.
func Load() (Config, error) {
	_ = godotenv.Load("config.env")
	_ = godotenv.Load(".env")

	var missing []string
	must := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	env := strings.ToLower(getenv("APP_ENV", EnvDevelopment))
	cfg := Config{
		Env:       env,
		Port:      getenv("APP_PORT", getenv("PORT", "3000")),
		BaseURL:   strings.TrimRight(os.Getenv("APP_BASE_URL"), "/"),
		JWTSecret: must("JWT_SECRET"),
		AMQPURL:   firstNonEmpty(os.Getenv("RABBITMQ_URL"), os.Getenv("AMQP_URL")),
		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", ""),
		LogDir:    getenv("LOG_DIR", "logs"),
	}

	if env == EnvProduction && cfg.BaseURL == "" {
		// links in mails and checkout redirects must not follow the Host header
		missing = append(missing, "APP_BASE_URL")
	}

	cfg.DatabaseDSN = ExpandDSN(must("DATABASE"), os.Getenv("DATABASE_PASSWORD"), os.Getenv("DATABASE_NAME"))

	ttl, err := parseLifetime(getenv("JWT_EXPIRES_IN", "90d"))
	if err != nil {
		return Config{}, fmt.Errorf("JWT_EXPIRES_IN: %w", err)
	}
	cfg.JWTExpiresIn = ttl
	cfg.CookieExpiresIn = time.Duration(envInt("JWT_COOKIE_EXPIRES_IN", 90)) * 24 * time.Hour

	cfg.BcryptCost = envInt("BCRYPT_COST", minBcryptCost)
	if env != EnvTest && cfg.BcryptCost < minBcryptCost {
		cfg.BcryptCost = minBcryptCost
	}

	defaultDriver := "log"
	if env == EnvProduction {
		defaultDriver = "mailersend"
	}
	cfg.Mail = MailConfig{
		Driver:   strings.ToLower(getenv("MAIL_DRIVER", defaultDriver)),
		From:     getenv("EMAIL_FROM", "hello@natours.io"),
		FromName: getenv("EMAIL_FROM_NAME", "Natours"),
		Host:     os.Getenv("EMAIL_HOST"),
		Port:     envInt("EMAIL_PORT", 587),
		Username: os.Getenv("EMAIL_USERNAME"),
		Password: os.Getenv("EMAIL_PASSWORD"),
		TLS:      envBool("EMAIL_TLS", false),
		APIKey:   os.Getenv("MAILERSEND_API_KEY"),
	}
	switch cfg.Mail.Driver {
	case "smtp":
		if cfg.Mail.Host == "" {
			missing = append(missing, "EMAIL_HOST")
		}
	case "mailersend":
		if cfg.Mail.APIKey == "" {
			missing = append(missing, "MAILERSEND_API_KEY")
		}
	case "log":
	default:
		return Config{}, fmt.Errorf("MAIL_DRIVER: unknown driver %q", cfg.Mail.Driver)
	}

	cfg.Stripe = StripeConfig{
		SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Currency:      strings.ToLower(getenv("STRIPE_CURRENCY", "usd")),
	}

	cfg.Redis = loadRedis()
	cfg.RateLimit = loadRateLimit()
	cfg.Cache = loadCache()

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if env == EnvProduction && len(cfg.JWTSecret) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	return cfg, nil
}

// ExpandDSN substitutes the <password> and <dbname> placeholders of a DSN.
func ExpandDSN(dsn, password, name string) string {
	dsn = strings.ReplaceAll(dsn, "<password>", password)
	return strings.ReplaceAll(dsn, "<dbname>", name)
}

// parseLifetime accepts a Go duration ("72h") or a day count ("90d").
func parseLifetime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid lifetime %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid lifetime %q", s)
	}
	return d, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(getenv(key, "")); err == nil {
		return n
	}
	return def
}

func envBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(getenv(key, "")); err == nil {
		return b
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(getenv(key, "")); err == nil {
		return d
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
