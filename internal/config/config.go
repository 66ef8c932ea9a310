// Package config loads FluxPay's process configuration from the
// environment via viper, replacing the teacher's lib-common/config
// helper (not a fetchable dependency) with a plain Viper setup in the
// same shape: one env-backed Viper instance, one typed struct of
// defaulted getters.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// KafkaConfig holds the event bus's broker settings.
type KafkaConfig struct {
	Brokers     []string
	GroupPrefix string
}

// RedisConfig holds the idempotency gate's fast-tier cache settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PGVendorConfig holds the payment gateway adapter's shared-secret and
// resilience-wrapper knobs (spec §4.4).
type PGVendorConfig struct {
	WebhookSecret       string
	ConnectTimeout      time.Duration
	ReadTimeout         time.Duration
	TotalTimeout        time.Duration
	BulkheadLimit       int
	BreakerFailureRatio float64
	BreakerMinRequests  uint32
	BreakerOpenDuration time.Duration
	RetryMaxElapsed     time.Duration
}

// SagaConfig holds the saga engine's crash-recovery claim lease.
type SagaConfig struct {
	LeaseDuration time.Duration
	ClaimInterval time.Duration
}

// OutboxConfig holds the transactional outbox publisher/janitor knobs.
type OutboxConfig struct {
	PollInterval    time.Duration
	BatchSize       int
	MaxRetries      int
	SweepInterval   time.Duration
	ProcessingLease time.Duration
	CleanupInterval time.Duration
	PublishedTTL    time.Duration
}

// IdempotencyConfig holds the idempotency TTL setting loaded from the
// environment. It is not passed to the gate: idempotency.Middleware always
// uses idempotency.DefaultTTL.
type IdempotencyConfig struct {
	TTL time.Duration
}

// Config is the top-level, fully-resolved configuration for the FluxPay
// engine process.
type Config struct {
	Port        string
	AppEnv      string
	DB          DatabaseConfig
	Kafka       KafkaConfig
	Redis       RedisConfig
	PGVendor    PGVendorConfig
	Saga        SagaConfig
	Outbox      OutboxConfig
	Idempotency IdempotencyConfig
}

// Load reads configuration from the environment (and an optional .env
// file in the working directory), falling back to development-friendly
// defaults for anything unset.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // absent .env is fine; env vars and defaults still apply

	setDefaults(v)

	return &Config{
		Port:   v.GetString("SERVICE_PORT"),
		AppEnv: v.GetString("APP_ENV"),
		DB: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Kafka: KafkaConfig{
			Brokers:     strings.Split(v.GetString("KAFKA_BROKERS"), ","),
			GroupPrefix: v.GetString("KAFKA_GROUP_PREFIX"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		PGVendor: PGVendorConfig{
			WebhookSecret:       v.GetString("PG_WEBHOOK_SECRET"),
			ConnectTimeout:      v.GetDuration("PG_CONNECT_TIMEOUT"),
			ReadTimeout:         v.GetDuration("PG_READ_TIMEOUT"),
			TotalTimeout:        v.GetDuration("PG_TOTAL_TIMEOUT"),
			BulkheadLimit:       v.GetInt("PG_BULKHEAD_LIMIT"),
			BreakerFailureRatio: v.GetFloat64("PG_BREAKER_FAILURE_RATIO"),
			BreakerMinRequests:  uint32(v.GetUint("PG_BREAKER_MIN_REQUESTS")),
			BreakerOpenDuration: v.GetDuration("PG_BREAKER_OPEN_DURATION"),
			RetryMaxElapsed:     v.GetDuration("PG_RETRY_MAX_ELAPSED"),
		},
		Saga: SagaConfig{
			LeaseDuration: v.GetDuration("SAGA_LEASE_DURATION"),
			ClaimInterval: v.GetDuration("SAGA_CLAIM_INTERVAL"),
		},
		Outbox: OutboxConfig{
			PollInterval:    v.GetDuration("OUTBOX_POLL_INTERVAL"),
			BatchSize:       v.GetInt("OUTBOX_BATCH_SIZE"),
			MaxRetries:      v.GetInt("OUTBOX_MAX_RETRIES"),
			SweepInterval:   v.GetDuration("OUTBOX_SWEEP_INTERVAL"),
			ProcessingLease: v.GetDuration("OUTBOX_PROCESSING_LEASE"),
			CleanupInterval: v.GetDuration("OUTBOX_CLEANUP_INTERVAL"),
			PublishedTTL:    v.GetDuration("OUTBOX_PUBLISHED_TTL"),
		},
		Idempotency: IdempotencyConfig{
			TTL: v.GetDuration("IDEMPOTENCY_TTL"),
		},
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVICE_PORT", ":8080")
	v.SetDefault("APP_ENV", "development")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "fluxpay")
	v.SetDefault("DB_PASSWORD", "fluxpay")
	v.SetDefault("DB_NAME", "fluxpay")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_GROUP_PREFIX", "fluxpay-")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("PG_WEBHOOK_SECRET", "dev-pg-webhook-secret")
	v.SetDefault("PG_CONNECT_TIMEOUT", 3*time.Second)
	v.SetDefault("PG_READ_TIMEOUT", 10*time.Second)
	v.SetDefault("PG_TOTAL_TIMEOUT", 15*time.Second)
	v.SetDefault("PG_BULKHEAD_LIMIT", 50)
	v.SetDefault("PG_BREAKER_FAILURE_RATIO", 0.5)
	v.SetDefault("PG_BREAKER_MIN_REQUESTS", 10)
	v.SetDefault("PG_BREAKER_OPEN_DURATION", 30*time.Second)
	v.SetDefault("PG_RETRY_MAX_ELAPSED", 7*time.Second)

	v.SetDefault("SAGA_LEASE_DURATION", 30*time.Second)
	v.SetDefault("SAGA_CLAIM_INTERVAL", 2*time.Second)

	v.SetDefault("OUTBOX_POLL_INTERVAL", 100*time.Millisecond)
	v.SetDefault("OUTBOX_BATCH_SIZE", 100)
	v.SetDefault("OUTBOX_MAX_RETRIES", 3)
	v.SetDefault("OUTBOX_SWEEP_INTERVAL", 5*time.Second)
	v.SetDefault("OUTBOX_PROCESSING_LEASE", 30*time.Second)
	v.SetDefault("OUTBOX_CLEANUP_INTERVAL", time.Hour)
	v.SetDefault("OUTBOX_PUBLISHED_TTL", 7*24*time.Hour)

	v.SetDefault("IDEMPOTENCY_TTL", 24*time.Hour)
}
