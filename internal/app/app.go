// Package app provides shared application setup and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Ireoluwatomide/swift-track-relay/internal/config"
	"github.com/Ireoluwatomide/swift-track-relay/internal/observability"
	"github.com/Ireoluwatomide/swift-track-relay/migrations"
)

// Services holds the external dependencies of the relay.
type Services struct {
	Config  *config.Config
	Redis   *redis.Client
	Pool    *pgxpool.Pool // nil when the history sink is disabled
	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	// MetricsHandler serves /metrics when the provider exposes one.
	MetricsHandler http.Handler

	metricsProvider observability.MetricsProvider
	tracingProvider observability.TracingProvider
}

// Close closes all services gracefully.
func (s *Services) Close(ctx context.Context) {
	if s.metricsProvider != nil {
		_ = s.metricsProvider.Close(ctx)
	}
	if s.tracingProvider != nil {
		_ = s.tracingProvider.Shutdown(ctx)
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// Init connects everything the relay needs. Postgres is only dialed when
// the history sink is configured.
func Init(ctx context.Context, cfg *config.Config) (*Services, error) {
	redisClient, err := ConnectRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var pool *pgxpool.Pool
	if cfg.History.DatabaseURL != "" {
		if err := RunMigrations(cfg.History.DatabaseURL); err != nil {
			_ = redisClient.Close()
			return nil, err
		}
		pool, err = ConnectPostgres(ctx, cfg)
		if err != nil {
			_ = redisClient.Close()
			return nil, err
		}
	}

	metricsProvider, metrics, err := NewMetricsProvider(ctx, cfg)
	if err != nil {
		_ = redisClient.Close()
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}

	tracingProvider, tracer, err := NewTracer(ctx, cfg)
	if err != nil {
		_ = metricsProvider.Close(ctx)
		_ = redisClient.Close()
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}

	services := &Services{
		Config:          cfg,
		Redis:           redisClient,
		Pool:            pool,
		Metrics:         metrics,
		Tracer:          tracer,
		metricsProvider: metricsProvider,
		tracingProvider: tracingProvider,
	}
	if h, ok := metricsProvider.(interface{ Handler() http.Handler }); ok {
		services.MetricsHandler = h.Handler()
	}
	return services, nil
}

// ConnectRedis connects to Redis with the provided configuration.
func ConnectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.URL,
		PoolSize:     cfg.Redis.PoolSize,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// ConnectPostgres connects to the history database.
func ConnectPostgres(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.History.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid history database URL: %w", err)
	}

	poolConfig.MaxConns = cfg.History.MaxConns
	poolConfig.MinConns = cfg.History.MinConns
	poolConfig.MaxConnLifetime = cfg.History.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return pool, nil
}

// RunMigrations applies the embedded schema migrations to the history
// database.
func RunMigrations(databaseURL string) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// NewMetricsProvider creates a metrics provider based on configuration.
func NewMetricsProvider(ctx context.Context, cfg *config.Config) (observability.MetricsProvider, *observability.Metrics, error) {
	provider, err := observability.NewMetricsProviderByName(ctx, cfg.Metrics.Provider, observability.MetricsConfig{
		ServiceName:    cfg.Metrics.ServiceName,
		ServiceVersion: cfg.Metrics.ServiceVersion,
		Environment:    cfg.Metrics.Environment,
		Endpoint:       cfg.Metrics.Endpoint,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	metrics := observability.NewMetrics(provider, cfg.Metrics.ServiceName)
	return provider, metrics, nil
}

// NewTracer creates a tracing provider based on configuration. Only the
// OTLP providers export traces; everything else gets the noop tracer.
func NewTracer(ctx context.Context, cfg *config.Config) (observability.TracingProvider, *observability.Tracer, error) {
	name := ""
	if (cfg.Metrics.Provider == "otel" || cfg.Metrics.Provider == "otlp") && cfg.Metrics.Endpoint != "" {
		name = cfg.Metrics.Provider
	}
	provider, err := observability.NewTracingProviderByName(ctx, name, observability.MetricsConfig{
		ServiceName:    cfg.Metrics.ServiceName,
		ServiceVersion: cfg.Metrics.ServiceVersion,
		Environment:    cfg.Metrics.Environment,
		Endpoint:       cfg.Metrics.Endpoint,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	return provider, observability.NewTracer(provider, cfg.Metrics.ServiceName), nil
}

// WaitForShutdown blocks until SIGINT or SIGTERM is received.
func WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}
