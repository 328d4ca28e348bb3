package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Token allocator backends.
const (
	AllocatorPostgres = "postgres"
	AllocatorRedis    = "redis"
	AllocatorMemory   = "memory"
)

// Token partition policies.
const (
	PartitionPerClass = "per_class"
	PartitionShared   = "shared"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	JWTSecret  string
	SessionTTL time.Duration

	// Queue policies
	TokenAllocator       string
	TokenPartition       string
	PatientMergeOnRebook bool
	DefaultTimezone      string

	CORSAllowedOrigins    []string
	BookingRateLimitRPS   float64
	BookingRateLimitBurst int
}

// Load reads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		JWTSecret:  getEnv("JWT_SECRET", ""),
		SessionTTL: getEnvAsDuration("SESSION_TTL", 24*time.Hour),

		TokenAllocator:       strings.ToLower(strings.TrimSpace(getEnv("TOKEN_ALLOCATOR", ""))),
		TokenPartition:       strings.ToLower(strings.TrimSpace(getEnv("TOKEN_PARTITION", PartitionPerClass))),
		PatientMergeOnRebook: getEnvAsBool("PATIENT_MERGE_ON_REBOOK", true),
		DefaultTimezone:      getEnv("DEFAULT_TIMEZONE", "UTC"),

		CORSAllowedOrigins:    getEnvAsList("CORS_ALLOWED_ORIGINS"),
		BookingRateLimitRPS:   getEnvAsFloat("BOOKING_RATE_LIMIT_RPS", 2),
		BookingRateLimitBurst: getEnvAsInt("BOOKING_RATE_LIMIT_BURST", 5),
	}
	if cfg.TokenAllocator == "" {
		cfg.TokenAllocator = AllocatorMemory
		if cfg.DatabaseURL != "" {
			cfg.TokenAllocator = AllocatorPostgres
		}
	}
	return cfg
}

// Validate rejects combinations the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.TokenAllocator {
	case AllocatorMemory:
	case AllocatorPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("TOKEN_ALLOCATOR=postgres requires DATABASE_URL"))
		}
	case AllocatorRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("TOKEN_ALLOCATOR=redis requires REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown TOKEN_ALLOCATOR %q", c.TokenAllocator))
	}
	switch c.TokenPartition {
	case PartitionPerClass, PartitionShared:
	default:
		errs = append(errs, fmt.Errorf("unknown TOKEN_PARTITION %q", c.TokenPartition))
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid DEFAULT_TIMEZONE %q: %w", c.DefaultTimezone, err))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
