package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	SessionCookieName   string
	SessionCookieSecure bool

	SnowflakeNode int64

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Realtime  RealtimeConfig
	Bootstrap BootstrapConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

type RateLimitConfig struct {
	Enabled              bool
	IncomingWebhookRate  float64
	IncomingWebhookBurst int
}

// WebhookConfig holds the env defaults for outbound delivery. The hot-reloaded
// policy file overrides them at runtime.
type WebhookConfig struct {
	Timeout           time.Duration
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxConcurrency    int
	ResponseBodyLimit int64
	InboundBodyLimit  int64
	PolicyPaths       []string
}

type RealtimeConfig struct {
	Addr             string
	BufferSize       int
	SubscriberBuffer int
	Heartbeat        time.Duration
	AllowedOrigins   []string
}

type BootstrapConfig struct {
	Demo bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	cookieSecure := environment == "production"
	if !cookieSecure {
		cookieSecure = getenvBool("SESSION_COOKIE_SECURE", false)
	}

	return Config{
		AppName:             getenv("APP_SERVICE", "workspace"),
		AppVersion:          getenv("APP_VERSION", "0.1.0"),
		Environment:         environment,
		HTTPAddr:            getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:        getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:              getenv("DATABASE_TYPE", "postgres"),
		DBHost:              getenv("DATABASE_HOST", "localhost"),
		DBPort:              getenv("DATABASE_PORT", "5432"),
		DBName:              getenv("DATABASE_NAME", "workspace"),
		DBUser:              getenv("DATABASE_USER", "postgres"),
		DBPassword:          getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:           getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:       getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:       getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime:   getenvInt("DATABASE_CONN_MAX_LIFETIME_SECONDS", 1800),
		DBConnMaxIdleTime:   getenvInt("DATABASE_CONN_MAX_IDLE_TIME_SECONDS", 300),
		SessionCookieName:   getenv("SESSION_COOKIE_NAME", "session"),
		SessionCookieSecure: cookieSecure,
		SnowflakeNode:       getenvInt64("SNOWFLAKE_NODE", 1),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:              getenvBool("RATE_LIMIT_ENABLED", true),
			IncomingWebhookRate:  getenvFloat("RATE_LIMIT_INCOMING_WEBHOOK_RATE", 5),
			IncomingWebhookBurst: getenvInt("RATE_LIMIT_INCOMING_WEBHOOK_BURST", 20),
		},
		Webhook: WebhookConfig{
			Timeout:           getenvDuration("WEBHOOK_TIMEOUT", 5*time.Second),
			MaxAttempts:       getenvInt("WEBHOOK_MAX_ATTEMPTS", 3),
			InitialBackoff:    getenvDuration("WEBHOOK_INITIAL_BACKOFF", 250*time.Millisecond),
			MaxConcurrency:    getenvInt("WEBHOOK_MAX_CONCURRENCY", 4),
			ResponseBodyLimit: int64(getenvInt("WEBHOOK_RESPONSE_BODY_LIMIT", 4096)),
			InboundBodyLimit:  int64(getenvInt("WEBHOOK_INBOUND_BODY_LIMIT", 1<<20)),
			PolicyPaths:       splitList(getenv("WEBHOOK_POLICY_PATHS", "/etc/workspace,.")),
		},
		Realtime: RealtimeConfig{
			Addr:             getenv("REALTIME_ADDR", ":8081"),
			BufferSize:       getenvInt("REALTIME_BUFFER_SIZE", 50),
			SubscriberBuffer: getenvInt("REALTIME_SUBSCRIBER_BUFFER", 16),
			Heartbeat:        getenvDuration("REALTIME_HEARTBEAT", 15*time.Second),
			AllowedOrigins:   splitList(getenv("REALTIME_ALLOWED_ORIGINS", "")),
		},
		Bootstrap: BootstrapConfig{
			Demo: getenvBool("BOOTSTRAP_DEMO", false),
		},
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
