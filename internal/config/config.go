package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	SQLitePath  string
	LogLevel    string

	AdminAPIKey string

	DemoIdentifiers  []string
	WaiverBundlePath string

	StorageTimeout      time.Duration
	VerifyRetryAttempts int

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RedisAddr              string
	RedisPassword          string
	RedisDB                int

	ImportFeedPath        string
	ImportIntervalMinutes int

	OtelEnabled      bool
	OtelEndpoint     string
	OtelServiceName  string
	OtelSamplingRate float64
}

func FromEnv() Config {
	return Config{
		HTTPAddr:    envDefault("HTTP_ADDR", ":8080"),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		SQLitePath:  envDefault("SQLITE_PATH", "veritag.db"),
		LogLevel:    envDefault("LOG_LEVEL", "info"),

		AdminAPIKey: os.Getenv("ADMIN_API_KEY"),

		DemoIdentifiers:  splitList(os.Getenv("DEMO_IDENTIFIERS")),
		WaiverBundlePath: os.Getenv("WAIVER_BUNDLE_PATH"),

		StorageTimeout:      time.Duration(envIntDefault("STORAGE_TIMEOUT_MS", 5000)) * time.Millisecond,
		VerifyRetryAttempts: envIntDefault("VERIFY_RETRY_ATTEMPTS", 3),

		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envIntDefault("REDIS_DB", 0),

		ImportFeedPath:        os.Getenv("IMPORT_FEED_PATH"),
		ImportIntervalMinutes: envIntDefault("IMPORT_INTERVAL_MINUTES", 60),

		OtelEnabled:      envBoolDefault("OTEL_ENABLED", false),
		OtelEndpoint:     envDefault("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:  envDefault("OTEL_SERVICE_NAME", "veritag"),
		OtelSamplingRate: envFloatDefault("OTEL_SAMPLING_RATE", 1.0),
	}
}

func envDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
