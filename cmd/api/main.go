package main

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/caretoken/internal/api/router"
	"github.com/wolfman30/caretoken/internal/audit"
	"github.com/wolfman30/caretoken/internal/auth"
	"github.com/wolfman30/caretoken/internal/clinic"
	appconfig "github.com/wolfman30/caretoken/internal/config"
	"github.com/wolfman30/caretoken/internal/doctors"
	httpmiddleware "github.com/wolfman30/caretoken/internal/http/middleware"
	"github.com/wolfman30/caretoken/internal/observability/metrics"
	"github.com/wolfman30/caretoken/internal/queue"
	"github.com/wolfman30/caretoken/pkg/logging"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting caretoken API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"allocator", cfg.TokenAllocator,
		"partition", cfg.TokenPartition,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	}
	redisClient := connectRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	handler, err := buildHandler(ctx, cfg, pool, redisClient, logger)
	if err != nil {
		logger.Error("failed to build API", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// buildHandler wires repositories, services and the router. A nil pool selects
// in-memory repositories; a nil Redis client disables clinic settings and
// cross-instance live updates.
func buildHandler(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *logging.Logger) (http.Handler, error) {
	metricsHandler, queueMetrics := setupMetrics()

	defaultLoc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("load default timezone: %w", err)
	}

	var (
		doctorRepo    doctors.Repository
		queueRepo     queue.Repository
		auditLog      audit.Log
		locator       doctors.Locator = clinic.FixedLocation{Loc: defaultLoc}
		broker        queue.Broker    = queue.NewLocalBroker()
		clinicHandler *clinic.Handler
		checks        = map[string]router.HealthCheck{}
	)
	if pool != nil {
		doctorRepo = doctors.NewPostgresRepository(pool)
		queueRepo = queue.NewPostgresRepository(pool)
		auditLog = audit.NewSQLLog(openAuditDB(pool))
		checks["postgres"] = pool.Ping
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory repositories")
		doctorRepo = doctors.NewInMemoryRepository()
		queueRepo = queue.NewInMemoryRepository()
		auditLog = audit.NewMemoryLog()
	}
	if redisClient != nil {
		store := clinic.NewStore(redisClient, cfg.DefaultTimezone)
		locator = store
		clinicHandler = clinic.NewHandler(store, logger)
		broker = queue.NewRedisBroker(redisClient, logger)
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	allocator, err := buildAllocator(cfg.TokenAllocator, pool, redisClient, queueRepo)
	if err != nil {
		return nil, err
	}

	doctorSvc := doctors.NewService(doctorRepo, locator, logger)
	queueSvc := queue.NewService(queueRepo, allocator, doctorSvc, queue.Options{
		Policy:        queue.Policy{Partition: cfg.TokenPartition},
		MergeOnRebook: cfg.PatientMergeOnRebook,
		Backend:       cfg.TokenAllocator,
	}, logger,
		queue.WithAuditLog(auditLog),
		queue.WithBroker(broker),
		queue.WithMetrics(queueMetrics),
	)

	secret, err := sessionSecret(cfg, logger)
	if err != nil {
		return nil, err
	}
	sessions := auth.NewSessions(secret, cfg.SessionTTL, redisClient, logger)

	return router.New(&router.Config{
		Logger:             logger,
		Sessions:           sessions,
		AuthHandler:        auth.NewHandler(sessions, logger),
		DoctorsHandler:     doctors.NewHandler(doctorSvc, logger),
		QueueHandler:       queue.NewHandler(queueSvc, logger),
		ClinicHandler:      clinicHandler,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		BookingLimiter:     httpmiddleware.NewRateLimiter(ctx, cfg.BookingRateLimitRPS, cfg.BookingRateLimitBurst),
		HealthChecks:       checks,
	}), nil
}

func buildAllocator(backend string, pool *pgxpool.Pool, redisClient *redis.Client, seeder queue.Seeder) (queue.Allocator, error) {
	switch backend {
	case appconfig.AllocatorPostgres:
		if pool == nil {
			return nil, errors.New("postgres token allocator requires DATABASE_URL")
		}
		return queue.NewPostgresAllocator(pool), nil
	case appconfig.AllocatorRedis:
		if redisClient == nil {
			return nil, errors.New("redis token allocator requires a reachable REDIS_ADDR")
		}
		return queue.NewRedisAllocator(redisClient, seeder), nil
	case appconfig.AllocatorMemory, "":
		return queue.NewMemoryAllocator(seeder), nil
	}
	return nil, fmt.Errorf("unknown token allocator %q", backend)
}

func setupMetrics() (http.Handler, *metrics.QueueMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewQueueMetrics(reg)
}

func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if databaseURL == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	return pool
}

func openAuditDB(pool *pgxpool.Pool) *sql.DB {
	return stdlib.OpenDBFromPool(pool)
}

// connectRedis returns nil when Redis is not configured or unreachable so
// optional features degrade instead of blocking startup.
func connectRedis(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable; clinic settings and shared live updates disabled", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

func sessionSecret(cfg *appconfig.Config, logger *logging.Logger) (string, error) {
	if cfg.JWTSecret != "" {
		return cfg.JWTSecret, nil
	}
	if cfg.Env != "development" {
		return "", errors.New("JWT_SECRET is required outside development")
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	logger.Warn("JWT_SECRET not set; using an ephemeral development secret")
	return hex.EncodeToString(buf), nil
}
