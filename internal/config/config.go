package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	SLA        SLAConfig
	Automation AutomationConfig
	Webhook    WebhookConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// SLAConfig tunes the deadline and breach sweep.
type SLAConfig struct {
	SweepIntervalSeconds int
	SweepBatchSize       int
	WarningRatio         float64
	ConflictRetryLimit   int
}

// AutomationConfig tunes the rule engine and its scheduled pass.
type AutomationConfig struct {
	ScheduleCadenceSeconds int
	MaxChainDepth          int
	DedupeTTLMinutes       int
}

// WebhookConfig parameterizes outbound webhook dispatch.
type WebhookConfig struct {
	SigningSecret   string
	TokenTTLSeconds int
	TimeoutSeconds  int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	warningRatio, err := strconv.ParseFloat(getEnv("SLA_WARNING_RATIO", "0.8"), 64)
	if err != nil || warningRatio <= 0 || warningRatio >= 1 {
		return nil, fmt.Errorf("invalid SLA_WARNING_RATIO: must be in (0,1)")
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "sla-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		SLA: SLAConfig{
			SweepIntervalSeconds: getEnvAsInt("SLA_SWEEP_INTERVAL_SECONDS", 60),
			SweepBatchSize:       getEnvAsInt("SLA_SWEEP_BATCH_SIZE", 200),
			WarningRatio:         warningRatio,
			ConflictRetryLimit:   getEnvAsInt("SLA_CONFLICT_RETRY_LIMIT", 3),
		},
		Automation: AutomationConfig{
			ScheduleCadenceSeconds: getEnvAsInt("AUTOMATION_SCHEDULE_CADENCE_SECONDS", 300),
			MaxChainDepth:          getEnvAsInt("AUTOMATION_MAX_CHAIN_DEPTH", 5),
			DedupeTTLMinutes:       getEnvAsInt("AUTOMATION_DEDUPE_TTL_MINUTES", 120),
		},
		Webhook: WebhookConfig{
			SigningSecret:   getEnv("WEBHOOK_SIGNING_SECRET", "dev-secret"),
			TokenTTLSeconds: getEnvAsInt("WEBHOOK_TOKEN_TTL_SECONDS", 300),
			TimeoutSeconds:  getEnvAsInt("WEBHOOK_TIMEOUT_SECONDS", 10),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SweepInterval returns the sweep cadence as a duration.
func (s SLAConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// ScheduleCadence returns the scheduled-trigger cadence as a duration.
func (a AutomationConfig) ScheduleCadence() time.Duration {
	return time.Duration(a.ScheduleCadenceSeconds) * time.Second
}

// DedupeTTL returns the redis fast-path dedupe TTL.
func (a AutomationConfig) DedupeTTL() time.Duration {
	return time.Duration(a.DedupeTTLMinutes) * time.Minute
}

// TokenTTL returns the webhook token lifetime.
func (w WebhookConfig) TokenTTL() time.Duration {
	return time.Duration(w.TokenTTLSeconds) * time.Second
}

// Timeout returns the webhook dispatch timeout.
func (w WebhookConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
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
