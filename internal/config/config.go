package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Ledger   LedgerConfig
	Auth     AuthConfig
	Store    StoreConfig
}

type ServerConfig struct {
	Port        string
	ReadTimeout time.Duration
	IdleTimeout time.Duration
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	Exchange   string
	Usage      string
	Expiration string
	Reversal   string
}

// LedgerConfig holds the accounting knobs of the ticket ledger.
type LedgerConfig struct {
	// ValidityDays is the lifetime of a ticket batch from issuance.
	ValidityDays int
	// PointThreshold is the balance multiple that awards one point when
	// crossed by an exchange.
	PointThreshold int
	// SweepInterval is how often the background sweeper runs.
	SweepInterval time.Duration
	// LockTTL bounds how long a per-account lock may be held.
	LockTTL time.Duration
}

// Validity returns the batch lifetime as a duration.
func (c LedgerConfig) Validity() time.Duration {
	return time.Duration(c.ValidityDays) * 24 * time.Hour
}

type AuthConfig struct {
	OIDCIssuer string
	Enabled    bool
}

// StoreConfig selects the persistence backend: "mysql" or "memory".
type StoreConfig struct {
	Backend      string
	SnapshotPath string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", ":8085"),
			ReadTimeout: 15 * time.Second,
			IdleTimeout: 60 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:          getEnv("MYSQL_DSN", "ecotiket:ecotiket@tcp(localhost:3306)/ecotiket?parseTime=true"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_ADDR", "localhost:9092")},
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				Exchange:   getEnv("KAFKA_TOPIC_EXCHANGE", "ecotiket.ledger.exchange"),
				Usage:      getEnv("KAFKA_TOPIC_USAGE", "ecotiket.ledger.usage"),
				Expiration: getEnv("KAFKA_TOPIC_EXPIRATION", "ecotiket.ledger.expiration"),
				Reversal:   getEnv("KAFKA_TOPIC_REVERSAL", "ecotiket.ledger.reversal"),
			},
		},
		Ledger: LedgerConfig{
			ValidityDays:   getEnvInt("LEDGER_VALIDITY_DAYS", 30),
			PointThreshold: getEnvInt("LEDGER_POINT_THRESHOLD", 10),
			SweepInterval:  time.Duration(getEnvInt("LEDGER_SWEEP_INTERVAL_MINUTES", 60)) * time.Minute,
			LockTTL:        time.Duration(getEnvInt("LEDGER_LOCK_TTL_SECONDS", 30)) * time.Second,
		},
		Auth: AuthConfig{
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
			Enabled:    getEnvBool("AUTH_ENABLED", true),
		},
		Store: StoreConfig{
			Backend:      getEnv("STORE_BACKEND", "mysql"),
			SnapshotPath: getEnv("STORE_SNAPSHOT_PATH", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
