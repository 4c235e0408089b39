package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrInvalidPort        = errors.New("invalid port")
	ErrInvalidTimeouts    = errors.New("ping timeout must exceed ping interval")
	ErrInvalidMessageSize = errors.New("max message size must be positive")
	ErrInvalidQueueSize   = errors.New("send queue size must be positive")
	ErrRedisRequired      = errors.New("REDIS_HOST is required when a Redis-backed feature is enabled")
)

// Config holds all configuration for the application
type Config struct {
	// Common
	Environment string
	LogLevel    string

	// Redis
	Redis RedisConfig

	// Services
	Relay    RelayConfig
	Presence PresenceConfig
	Archive  ArchiveConfig
	API      APIConfig
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// RelayConfig holds websocket gateway configuration
type RelayConfig struct {
	Port           int
	AllowedOrigins []string
	PingInterval   time.Duration
	PingTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	MaxConnections int
	SendQueueSize  int
	JWTSecret      string
	// RejectUnregisteredSenders drops sendMessage events from connections
	// that connected without an identity instead of forwarding an empty senderId.
	RejectUnregisteredSenders bool
}

// PresenceConfig holds the Redis presence mirror configuration
type PresenceConfig struct {
	MirrorEnabled bool
	SetKey        string
	Channel       string
	QueueSize     int
}

// ArchiveConfig holds the relayed-message archive configuration
type ArchiveConfig struct {
	Enabled bool
	Stream  string
}

// APIConfig holds REST API configuration
type APIConfig struct {
	RateLimitRPS int
	// TrustForwardedFor keys rate limiting on X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that sets those headers.
	TrustForwardedFor bool
}

// Load loads configuration from environment variables
// It automatically loads .env file if it exists in the current directory
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 2),
		},
		Relay: RelayConfig{
			Port:                      getEnvAsInt("RELAY_PORT", 5000),
			AllowedOrigins:            getEnvAsStringSlice("RELAY_ALLOWED_ORIGINS", []string{"https://localhost:3000"}),
			PingInterval:              getEnvAsDuration("RELAY_PING_INTERVAL", 5*time.Second),
			PingTimeout:               getEnvAsDuration("RELAY_PING_TIMEOUT", 10*time.Second),
			WriteTimeout:              getEnvAsDuration("RELAY_WRITE_TIMEOUT", 10*time.Second),
			MaxMessageSize:            getEnvAsInt64("RELAY_MAX_MESSAGE_SIZE", 1_000_000),
			MaxConnections:            getEnvAsInt("RELAY_MAX_CONNECTIONS", 10000),
			SendQueueSize:             getEnvAsInt("RELAY_SEND_QUEUE_SIZE", 256),
			JWTSecret:                 getEnv("RELAY_JWT_SECRET", ""),
			RejectUnregisteredSenders: getEnvAsBool("RELAY_REJECT_UNREGISTERED_SENDERS", false),
		},
		Presence: PresenceConfig{
			MirrorEnabled: getEnvAsBool("PRESENCE_MIRROR_ENABLED", false),
			SetKey:        getEnv("PRESENCE_SET_KEY", "chat:presence:online"),
			Channel:       getEnv("PRESENCE_CHANNEL", "chat:presence:events"),
			QueueSize:     getEnvAsInt("PRESENCE_QUEUE_SIZE", 1024),
		},
		Archive: ArchiveConfig{
			Enabled: getEnvAsBool("ARCHIVE_ENABLED", false),
			Stream:  getEnv("ARCHIVE_STREAM", "chat.messages"),
		},
		API: APIConfig{
			RateLimitRPS:      getEnvAsInt("API_RATE_LIMIT_RPS", 50),
			TrustForwardedFor: getEnvAsBool("API_TRUST_FORWARDED_FOR", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Relay.Port <= 0 || c.Relay.Port > 65535 {
		return fmt.Errorf("%w: RELAY_PORT=%d", ErrInvalidPort, c.Relay.Port)
	}
	if c.Relay.PingTimeout <= c.Relay.PingInterval {
		return ErrInvalidTimeouts
	}
	if c.Relay.MaxMessageSize <= 0 {
		return ErrInvalidMessageSize
	}
	if c.Relay.SendQueueSize <= 0 {
		return ErrInvalidQueueSize
	}
	if c.RedisRequired() && c.Redis.Host == "" {
		return ErrRedisRequired
	}
	return nil
}

// RedisRequired reports whether any enabled feature needs a Redis connection
func (c *Config) RedisRequired() bool {
	return c.Presence.MirrorEnabled || c.Archive.Enabled
}

// OriginAllowed reports whether a cross-origin websocket handshake may proceed.
// An empty origin (non-browser client) is always accepted; "*" allows any origin.
func (c RelayConfig) OriginAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Split by comma and trim spaces
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
