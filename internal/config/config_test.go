package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "REDIS_ADDR", "TOKEN_ALLOCATOR",
		"TOKEN_PARTITION", "PATIENT_MERGE_ON_REBOOK", "DEFAULT_TIMEZONE", "SESSION_TTL",
		"CORS_ALLOWED_ORIGINS", "BOOKING_RATE_LIMIT_RPS", "BOOKING_RATE_LIMIT_BURST",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.TokenAllocator != AllocatorMemory {
		t.Fatalf("expected memory allocator without a database, got %s", cfg.TokenAllocator)
	}
	if cfg.TokenPartition != PartitionPerClass {
		t.Fatalf("expected per_class partition, got %s", cfg.TokenPartition)
	}
	if !cfg.PatientMergeOnRebook {
		t.Fatalf("expected patient merge enabled by default")
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("expected default session ttl, got %s", cfg.SessionTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("TOKEN_PARTITION", "SHARED")
	t.Setenv("PATIENT_MERGE_ON_REBOOK", "false")
	t.Setenv("DEFAULT_TIMEZONE", "Asia/Kolkata")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("BOOKING_RATE_LIMIT_RPS", "0.5")

	cfg := Load()
	if cfg.Port != "9090" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.TokenAllocator != AllocatorPostgres {
		t.Fatalf("expected postgres allocator when DATABASE_URL is set, got %s", cfg.TokenAllocator)
	}
	if cfg.TokenPartition != PartitionShared {
		t.Fatalf("expected shared partition, got %s", cfg.TokenPartition)
	}
	if cfg.PatientMergeOnRebook {
		t.Fatalf("expected patient merge disabled")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", cfg.CORSAllowedOrigins)
	}
	if cfg.BookingRateLimitRPS != 0.5 {
		t.Fatalf("expected 0.5 rps, got %v", cfg.BookingRateLimitRPS)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config: %v", err)
	}
}

func TestValidateRejectsBadPolicies(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown allocator", Config{TokenAllocator: "etcd", TokenPartition: PartitionShared, DefaultTimezone: "UTC", SessionTTL: time.Hour}},
		{"redis without addr", Config{TokenAllocator: AllocatorRedis, TokenPartition: PartitionShared, DefaultTimezone: "UTC", SessionTTL: time.Hour}},
		{"unknown partition", Config{TokenAllocator: AllocatorMemory, TokenPartition: "daily", DefaultTimezone: "UTC", SessionTTL: time.Hour}},
		{"bad timezone", Config{TokenAllocator: AllocatorMemory, TokenPartition: PartitionShared, DefaultTimezone: "Mars/Olympus", SessionTTL: time.Hour}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
