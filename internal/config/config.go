package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

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

	HTTPAddr string

	SeedDemo bool

	RateLimit RateLimitConfig

	Events EventsConfig

	Scheduler SchedulerConfig

	CloudMetrics CloudMetricsConfig
}

// CloudMetricsConfig controls pushing engine counters to a remote
// prometheus endpoint.
type CloudMetricsConfig struct {
	Enabled         bool
	Exporter        string
	Endpoint        string
	AuthToken       string
	IntervalSeconds int
}

// RateLimitConfig controls the redis token bucket guarding usage ingestion.
type RateLimitConfig struct {
	Enabled              bool
	RedisAddr            string
	RedisPassword        string
	ConsumePerSecond     float64
	ConsumeBurst         int
	SubscriptionPerSec   float64
	SubscriptionBurst    int
	IdempotencyLockTTLMS int
}

// EventsConfig controls outbox dispatch. Without a redis address the
// dispatcher delivers to the structured log stream.
type EventsConfig struct {
	RedisAddr     string
	RedisPassword string
	Channel       string
}

// SchedulerConfig controls the periodic sweep jobs.
type SchedulerConfig struct {
	Enabled         bool
	IntervalSeconds int
	BatchSize       int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "revora"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "revora"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 25)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 1800)),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		SeedDemo: getenvBool("SEED_DEMO", false),

		RateLimit: RateLimitConfig{
			Enabled:              getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:            strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword:        getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			ConsumePerSecond:     getenvFloat("RATE_LIMIT_CONSUME_RATE", 200),
			ConsumeBurst:         int(getenvInt64("RATE_LIMIT_CONSUME_BURST", 400)),
			SubscriptionPerSec:   getenvFloat("RATE_LIMIT_SUBSCRIPTION_RATE", 50),
			SubscriptionBurst:    int(getenvInt64("RATE_LIMIT_SUBSCRIPTION_BURST", 100)),
			IdempotencyLockTTLMS: int(getenvInt64("RATE_LIMIT_IDEMPOTENCY_LOCK_TTL_MS", 5000)),
		},

		Events: EventsConfig{
			RedisAddr:     strings.TrimSpace(getenv("EVENTS_REDIS_ADDR", "")),
			RedisPassword: getenv("EVENTS_REDIS_PASSWORD", ""),
			Channel:       strings.TrimSpace(getenv("EVENTS_CHANNEL", "revora.events")),
		},

		Scheduler: SchedulerConfig{
			Enabled:         getenvBool("SCHEDULER_ENABLED", true),
			IntervalSeconds: int(getenvInt64("SCHEDULER_INTERVAL_SECONDS", 300)),
			BatchSize:       int(getenvInt64("SCHEDULER_BATCH_SIZE", 200)),
		},

		CloudMetrics: CloudMetricsConfig{
			Enabled:         getenvBool("CLOUD_METRICS_ENABLED", false),
			Exporter:        getenv("CLOUD_METRICS_EXPORTER", "prometheus_remote_write"),
			Endpoint:        strings.TrimSpace(getenv("CLOUD_METRICS_ENDPOINT", "")),
			AuthToken:       getenv("CLOUD_METRICS_AUTH_TOKEN", ""),
			IntervalSeconds: int(getenvInt64("CLOUD_METRICS_INTERVAL_SECONDS", 900)),
		},
	}
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
