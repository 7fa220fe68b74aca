package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the migrator.
type Config struct {
	Desk      DeskConfig
	Zendesk   ZendeskConfig
	Migration MigrationConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	Status    StatusConfig
	Logger    LoggerConfig
}

// DeskConfig holds source site connection values.
type DeskConfig struct {
	Site     string
	Email    string
	Password string
}

// ZendeskConfig holds destination site connection values.
type ZendeskConfig struct {
	Site    string
	Email   string
	Token   string
	AgentID string
}

// MigrationConfig controls engine-level behavior.
type MigrationConfig struct {
	Workers            int
	MaxRetries         int
	DefaultWaitSeconds int
	BatchSize          int
	PageSize           int
}

// RedisConfig holds resolver cache connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PostgresConfig holds journal connection values.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// StatusConfig controls the optional progress endpoint.
type StatusConfig struct {
	Enabled bool
	Addr    string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		Desk: DeskConfig{
			Site:     os.Getenv("DESK_SITE"),
			Email:    os.Getenv("DESK_EMAIL"),
			Password: os.Getenv("DESK_PASSWORD"),
		},
		Zendesk: ZendeskConfig{
			Site:    os.Getenv("ZENDESK_SITE"),
			Email:   os.Getenv("ZENDESK_EMAIL"),
			Token:   os.Getenv("ZENDESK_TOKEN"),
			AgentID: os.Getenv("ZENDESK_AGENT_ID"),
		},
		Migration: MigrationConfig{
			Workers:            getEnvAsInt("MIGRATE_WORKERS", 8),
			MaxRetries:         getEnvAsInt("MIGRATE_MAX_RETRIES", 5),
			DefaultWaitSeconds: getEnvAsInt("MIGRATE_DEFAULT_WAIT_SECONDS", 30),
			BatchSize:          getEnvAsInt("MIGRATE_BATCH_SIZE", 100),
			PageSize:           100,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Postgres: PostgresConfig{
			DSN:      os.Getenv("POSTGRES_DSN"),
			MaxConns: int32(getEnvAsInt("POSTGRES_MAX_CONNS", 4)),
			MinConns: int32(getEnvAsInt("POSTGRES_MIN_CONNS", 1)),
		},
		Status: StatusConfig{
			Enabled: getEnvAsBool("STATUS_ENABLED", false),
			Addr:    getEnv("STATUS_ADDR", "127.0.0.1:8090"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if cfg.Desk.Site == "" {
		return nil, fmt.Errorf("DESK_SITE is required")
	}
	if cfg.Zendesk.Site == "" {
		return nil, fmt.Errorf("ZENDESK_SITE is required")
	}
	if cfg.Zendesk.AgentID == "" {
		return nil, fmt.Errorf("ZENDESK_AGENT_ID is required")
	}

	return cfg, nil
}

// DefaultWait returns the fallback backoff duration for retries.
func (m MigrationConfig) DefaultWait() time.Duration {
	return time.Duration(m.DefaultWaitSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
