package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds everything read from the environment at startup.
type Config struct {
	Port        string
	Environment string

	RedisURL string

	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUUID         string

	// Defaults applied when a queue is created without explicit values.
	DefaultAverageWaitTime int
	DefaultMeetingDuration int
	DefaultMaxQueueLength  int

	PositionUpdateInterval time.Duration
	StatsCacheTTL          time.Duration

	EnableMetrics   bool
	MetricsInterval time.Duration

	RateLimitPerMinute int
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUUID:         getEnv("PUBNUB_UUID", "qsmart-server"),

		DefaultAverageWaitTime: getEnvAsInt("DEFAULT_AVERAGE_WAIT_TIME", 10),
		DefaultMeetingDuration: getEnvAsInt("DEFAULT_MEETING_DURATION", 10),
		DefaultMaxQueueLength:  getEnvAsInt("DEFAULT_MAX_QUEUE_LENGTH", 50),

		PositionUpdateInterval: getEnvAsDuration("POSITION_UPDATE_INTERVAL", 15*time.Second),
		StatsCacheTTL:          getEnvAsDuration("STATS_CACHE_TTL", 30*time.Second),

		EnableMetrics:   getEnvAsBool("ENABLE_METRICS", true),
		MetricsInterval: getEnvAsDuration("METRICS_INTERVAL", 30*time.Second),

		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
