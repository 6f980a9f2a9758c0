// Package config builds runtime configuration from environment variables so
// main stays lean. Every value has a development default; production
// overrides them.
package config

import (
	"os"
	"strings"
	"time"
)

// Config is the full server configuration.
type Config struct {
	Addr          string
	JWTSigningKey string

	// APIKeyHash is the bcrypt hash of the service-to-service API key.
	// Empty disables API-key auth.
	APIKeyHash string

	PostgresURL string
	Redis       RedisConfig
	Kafka       KafkaConfig

	SnapshotCacheTTL time.Duration
}

// RedisConfig tunes the snapshot cache client. An empty URL disables the
// cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig points the audit export relay at its brokers. No brokers
// disables the relay.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// FromEnv reads configuration from the environment with dev defaults.
func FromEnv() Config {
	cfg := Config{
		Addr:          envOr("FLEETLEDGER_ADDR", ":8080"),
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		APIKeyHash:    os.Getenv("API_KEY_BCRYPT_HASH"),
		PostgresURL:   os.Getenv("POSTGRES_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			AuditTopic: envOr("AUDIT_EXPORT_TOPIC", "fleetledger.audit"),
		},
		SnapshotCacheTTL: 5 * time.Minute,
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
