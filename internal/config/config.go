// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the ledgerpulse engine.
type Config struct {
	// XRPL WebSocket endpoints, tried in rotation
	WSURLs []string

	// REST fallback endpoint
	RESTURL string

	// Window and classification
	WindowLength   time.Duration
	WhaleThreshold uint64

	// Cadences and timeouts
	PublishInterval time.Duration
	PollInterval    time.Duration
	ConnectTimeout  time.Duration
	LivenessTimeout time.Duration
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration

	// MaxImmediateRetries bounds push reconnect attempts before falling back to polling
	MaxImmediateRetries int

	// Decoding
	StrictAddresses bool

	// Publishing
	RecentEventsLimit int
	MaxPendingWhales  int

	// HTTP server (WebSocket, stats, metrics)
	HTTPAddr string

	// Kafka whale sink (disabled when empty)
	KafkaBrokers    []string
	KafkaWhaleTopic string

	// Redis stats sink (disabled when empty)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string

	// UI
	EnableTUI bool

	// Logging
	LogLevel string
	LogFile  string // used while the TUI owns the terminal
}

// Load reads configuration from environment variables with fallback to .env file.
// Priority order: Environment variables > .env file > hardcoded defaults
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		WSURLs:  getEnvList("XRPL_WS_URLS", []string{"wss://xrplcluster.com", "wss://s1.ripple.com", "wss://s2.ripple.com"}),
		RESTURL: getEnv("XRPL_REST_URL", "https://api.xrpscan.com/api/v1/payments?limit=100"),

		WindowLength:   time.Duration(getEnvInt("WINDOW_LENGTH_SECONDS", 300)) * time.Second,
		WhaleThreshold: getEnvUint("WHALE_THRESHOLD", 1_000_000_000_000),

		PublishInterval: getEnvMillis("PUBLISH_INTERVAL_MS", 1000),
		PollInterval:    getEnvMillis("POLL_INTERVAL_MS", 60000),
		ConnectTimeout:  getEnvMillis("CONNECT_TIMEOUT_MS", 10000),
		LivenessTimeout: getEnvMillis("LIVENESS_TIMEOUT_MS", 30000),
		InitialBackoff:  getEnvMillis("INITIAL_BACKOFF_MS", 1000),
		MaxBackoff:      getEnvMillis("MAX_BACKOFF_MS", 60000),

		MaxImmediateRetries: getEnvInt("MAX_IMMEDIATE_RETRIES", 3),

		StrictAddresses: getEnvBool("STRICT_ADDRESSES", true),

		RecentEventsLimit: getEnvInt("RECENT_EVENTS_LIMIT", 50),
		MaxPendingWhales:  getEnvInt("MAX_PENDING_WHALES", 256),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		KafkaBrokers:    getEnvList("KAFKA_BROKERS", nil),
		KafkaWhaleTopic: getEnv("KAFKA_WHALE_TOPIC", "xrpl.whales"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisChannel:  getEnv("REDIS_CHANNEL", "xrpl:stats"),

		EnableTUI: getEnvBool("ENABLE_TUI", false),

		LogLevel: getEnv("LOG_LEVEL", "INFO"),
		LogFile:  getEnv("LOG_FILE", "ledgerpulse.log"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if len(c.WSURLs) == 0 {
		return fmt.Errorf("XRPL_WS_URLS is required")
	}

	if c.WindowLength < time.Second {
		return fmt.Errorf("WINDOW_LENGTH_SECONDS must be at least 1")
	}

	if c.WhaleThreshold == 0 {
		return fmt.Errorf("WHALE_THRESHOLD must be positive")
	}

	if c.PublishInterval <= 0 {
		return fmt.Errorf("PUBLISH_INTERVAL_MS must be positive")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}

	if c.ConnectTimeout <= 0 || c.LivenessTimeout <= 0 {
		return fmt.Errorf("CONNECT_TIMEOUT_MS and LIVENESS_TIMEOUT_MS must be positive")
	}

	if c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("MAX_BACKOFF_MS must be >= INITIAL_BACKOFF_MS > 0")
	}

	if c.MaxImmediateRetries < 0 {
		return fmt.Errorf("MAX_IMMEDIATE_RETRIES must not be negative")
	}

	if c.RecentEventsLimit < 0 || c.MaxPendingWhales < 1 {
		return fmt.Errorf("RECENT_EVENTS_LIMIT must be >= 0 and MAX_PENDING_WHALES >= 1")
	}

	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}

	if len(c.KafkaBrokers) > 0 && c.KafkaWhaleTopic == "" {
		return fmt.Errorf("KAFKA_WHALE_TOPIC is required when KAFKA_BROKERS is set")
	}

	return nil
}

// MaskedRedisPassword returns the Redis password with most characters hidden for logging.
func (c *Config) MaskedRedisPassword() string {
	return maskSecret(c.RedisPassword)
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvUint retrieves an environment variable as an unsigned integer or returns a default.
func getEnvUint(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if uintVal, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uintVal
		}
	}
	return defaultValue
}

// getEnvMillis retrieves an environment variable in milliseconds as a duration.
func getEnvMillis(key string, defaultMillis int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMillis)) * time.Millisecond
}

// getEnvBool retrieves an environment variable as a boolean or returns a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvList retrieves a comma-separated environment variable as a list.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
