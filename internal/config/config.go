package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	// MinSigningKeyLength is the minimum required length for the token
	// signing key.
	MinSigningKeyLength = 32

	// DefaultRingSize is the number of samples retained per delivery for
	// replay-on-subscribe.
	DefaultRingSize = 50

	// DefaultSkewThreshold is how far ahead of server time a client-reported
	// timestamp may be before the server-received time is substituted.
	DefaultSkewThreshold = 120 * time.Second

	// DefaultQueueDepth is the per-customer outbound queue depth.
	DefaultQueueDepth = 8

	// DefaultSendTimeout bounds a single outbound transport write.
	DefaultSendTimeout = 2 * time.Second

	// DefaultStaleTimeout is the silence interval after which a connection
	// becomes Stale.
	DefaultStaleTimeout = 30 * time.Second

	// DefaultCloseTimeout is the total silence interval after which a
	// connection is Closed and evicted.
	DefaultCloseTimeout = 90 * time.Second

	// DefaultStreamTTL is the inactivity interval after which an abandoned
	// stream is evicted.
	DefaultStreamTTL = 30 * time.Minute
)

// Config holds all relay configuration.
type Config struct {
	Stream    StreamConfig
	Lifecycle LifecycleConfig
	Dispatch  DispatchConfig
	Ingest    IngestConfig
	Redis     RedisConfig
	History   HistoryConfig
	API       APIConfig
	Auth      AuthConfig
	Metrics   MetricsConfig
}

// StreamConfig holds location stream configuration.
type StreamConfig struct {
	RingSize      int
	SkewThreshold time.Duration
	TTL           time.Duration
}

// LifecycleConfig holds connection lifecycle configuration.
type LifecycleConfig struct {
	StaleTimeout  time.Duration
	CloseTimeout  time.Duration
	CheckInterval time.Duration
}

// DispatchConfig holds fan-out dispatcher configuration.
type DispatchConfig struct {
	QueueDepth  int
	SendTimeout time.Duration
}

// IngestConfig holds ingestion gateway configuration.
type IngestConfig struct {
	// MinReportInterval is the floor between accepted reports from one
	// driver connection. Zero disables coalescing.
	MinReportInterval time.Duration
}

// RedisConfig holds Redis configuration for the snapshot store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SnapshotTTL  time.Duration
}

// HistoryConfig holds the optional durable history sink configuration.
// The sink is disabled when DatabaseURL is empty.
type HistoryConfig struct {
	DatabaseURL     string
	BufferSize      int
	BatchSize       int
	FlushInterval   time.Duration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	Retention       time.Duration
	PruneInterval   time.Duration
}

// APIConfig holds API server configuration.
type APIConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// AuthConfig holds token authorization configuration.
type AuthConfig struct {
	SigningKey string
	TokenTTL   time.Duration

	// AdminKey guards the delivery admin routes. Empty disables them.
	AdminKey string

	// AllowUnknownDeliveries lets connections attach to delivery IDs the
	// ordering system never registered. Useful in development.
	AllowUnknownDeliveries bool
}

// MetricsConfig holds metrics provider configuration.
type MetricsConfig struct {
	Provider       string
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
}

// Validation errors.
var (
	ErrSigningKeyRequired = errors.New("SIGNING_KEY environment variable is required")
	ErrSigningKeyTooShort = fmt.Errorf("SIGNING_KEY must be at least %d characters", MinSigningKeyLength)
	ErrRingSizeInvalid    = errors.New("STREAM_RING_SIZE must be positive")
	ErrQueueDepthInvalid  = errors.New("DISPATCH_QUEUE_DEPTH must be positive")
	ErrTimeoutOrder       = errors.New("LIFECYCLE_CLOSE_TIMEOUT must exceed LIFECYCLE_STALE_TIMEOUT")
)

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	cfg.Stream.RingSize = getEnvInt("STREAM_RING_SIZE", DefaultRingSize)
	cfg.Stream.SkewThreshold = getEnvDuration("STREAM_SKEW_THRESHOLD", DefaultSkewThreshold)
	cfg.Stream.TTL = getEnvDuration("STREAM_TTL", DefaultStreamTTL)
	if cfg.Stream.RingSize <= 0 {
		return nil, ErrRingSizeInvalid
	}

	cfg.Lifecycle.StaleTimeout = getEnvDuration("LIFECYCLE_STALE_TIMEOUT", DefaultStaleTimeout)
	cfg.Lifecycle.CloseTimeout = getEnvDuration("LIFECYCLE_CLOSE_TIMEOUT", DefaultCloseTimeout)
	cfg.Lifecycle.CheckInterval = getEnvDuration("LIFECYCLE_CHECK_INTERVAL", 5*time.Second)
	if cfg.Lifecycle.CloseTimeout <= cfg.Lifecycle.StaleTimeout {
		return nil, ErrTimeoutOrder
	}

	cfg.Dispatch.QueueDepth = getEnvInt("DISPATCH_QUEUE_DEPTH", DefaultQueueDepth)
	cfg.Dispatch.SendTimeout = getEnvDuration("DISPATCH_SEND_TIMEOUT", DefaultSendTimeout)
	if cfg.Dispatch.QueueDepth <= 0 {
		return nil, ErrQueueDepthInvalid
	}

	cfg.Ingest.MinReportInterval = getEnvDuration("INGEST_MIN_REPORT_INTERVAL", 0)

	cfg.Redis.URL = getEnv("REDIS_URL", "localhost:6379")
	cfg.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", 100)
	cfg.Redis.ReadTimeout = getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second)
	cfg.Redis.WriteTimeout = getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second)
	cfg.Redis.SnapshotTTL = getEnvDuration("SNAPSHOT_TTL", 24*time.Hour)

	// History sink is optional; disabled when no database URL is set.
	cfg.History.DatabaseURL = os.Getenv("HISTORY_DATABASE_URL")
	cfg.History.BufferSize = getEnvInt("HISTORY_BUFFER_SIZE", 256)
	cfg.History.BatchSize = getEnvInt("HISTORY_BATCH_SIZE", 50)
	cfg.History.FlushInterval = getEnvDuration("HISTORY_FLUSH_INTERVAL", 1*time.Second)
	cfg.History.MaxConns = int32(getEnvInt("HISTORY_MAX_CONNS", 10))
	cfg.History.MinConns = int32(getEnvInt("HISTORY_MIN_CONNS", 1))
	cfg.History.MaxConnLifetime = getEnvDuration("HISTORY_MAX_CONN_LIFETIME", 1*time.Hour)
	cfg.History.Retention = getEnvDuration("HISTORY_RETENTION", 30*24*time.Hour)
	cfg.History.PruneInterval = getEnvDuration("HISTORY_PRUNE_INTERVAL", 1*time.Hour)

	cfg.API.Addr = getEnv("API_ADDR", ":8080")
	cfg.API.ReadTimeout = getEnvDuration("API_READ_TIMEOUT", 15*time.Second)
	cfg.API.WriteTimeout = getEnvDuration("API_WRITE_TIMEOUT", 15*time.Second)
	cfg.API.IdleTimeout = getEnvDuration("API_IDLE_TIMEOUT", 60*time.Second)
	cfg.API.ShutdownTimeout = getEnvDuration("API_SHUTDOWN_TIMEOUT", 30*time.Second)

	// Signing key - REQUIRED, no default
	cfg.Auth.SigningKey = os.Getenv("SIGNING_KEY")
	if cfg.Auth.SigningKey == "" {
		return nil, ErrSigningKeyRequired
	}
	if len(cfg.Auth.SigningKey) < MinSigningKeyLength {
		return nil, ErrSigningKeyTooShort
	}
	cfg.Auth.TokenTTL = getEnvDuration("TOKEN_TTL", 12*time.Hour)
	cfg.Auth.AdminKey = os.Getenv("ADMIN_KEY")
	cfg.Auth.AllowUnknownDeliveries = getEnvBool("ALLOW_UNKNOWN_DELIVERIES", false)

	cfg.Metrics.Provider = getEnv("METRICS_PROVIDER", "prometheus")
	cfg.Metrics.ServiceName = getEnv("METRICS_SERVICE_NAME", "swift-track-relay")
	cfg.Metrics.ServiceVersion = getEnv("METRICS_SERVICE_VERSION", "dev")
	cfg.Metrics.Environment = getEnv("METRICS_ENVIRONMENT", "development")
	cfg.Metrics.Endpoint = os.Getenv("METRICS_ENDPOINT")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
