package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Sweeper      SweeperConfig
	Fanout       FanoutConfig
	Realtime     RealtimeConfig
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

// AuthConfig defines token verification parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig configures the outbound mailer.
type NotificationConfig struct {
	EmailFrom     string
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	RatePerSecond float64
	Burst         int
}

// SweeperConfig configures the overdue sweep job.
type SweeperConfig struct {
	Enabled          bool
	Schedule         string
	Timezone         string
	AlertConcurrency int
	LockTTLSeconds   int
}

// FanoutConfig selects the real-time pub/sub driver.
type FanoutConfig struct {
	Driver      string
	NATSURL     string
	TopicPrefix string
}

// RealtimeConfig configures the websocket gateway listener.
type RealtimeConfig struct {
	Enabled        bool
	Addr           string
	OriginPatterns []string
}

// Fanout drivers.
const (
	FanoutDriverRedis  = "redis"
	FanoutDriverNATS   = "nats"
	FanoutDriverMemory = "memory"
)

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "pqrs-service"),
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
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			EmailFrom:     getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			SMTPHost:      os.Getenv("NOTIFY_SMTP_HOST"),
			SMTPPort:      getEnvAsInt("NOTIFY_SMTP_PORT", 587),
			SMTPUsername:  os.Getenv("NOTIFY_SMTP_USERNAME"),
			SMTPPassword:  os.Getenv("NOTIFY_SMTP_PASSWORD"),
			RatePerSecond: getEnvAsFloat("NOTIFY_RATE_PER_SECOND", 5),
			Burst:         getEnvAsInt("NOTIFY_BURST", 5),
		},
		Sweeper: SweeperConfig{
			Enabled:          getEnvAsBool("SWEEPER_ENABLED", true),
			Schedule:         getEnv("SWEEPER_SCHEDULE", "0 0 * * *"),
			Timezone:         getEnv("SWEEPER_TIMEZONE", "America/Bogota"),
			AlertConcurrency: getEnvAsInt("SWEEPER_ALERT_CONCURRENCY", 4),
			LockTTLSeconds:   getEnvAsInt("SWEEPER_LOCK_TTL_SECONDS", 3600),
		},
		Fanout: FanoutConfig{
			Driver:      strings.ToLower(getEnv("FANOUT_DRIVER", FanoutDriverRedis)),
			NATSURL:     getEnv("NATS_URL", "nats://127.0.0.1:4222"),
			TopicPrefix: getEnv("FANOUT_TOPIC_PREFIX", "pqrs"),
		},
		Realtime: RealtimeConfig{
			Enabled:        getEnvAsBool("REALTIME_ENABLED", true),
			Addr:           getEnv("REALTIME_ADDR", "0.0.0.0:8081"),
			OriginPatterns: getEnvAsList("REALTIME_ORIGIN_PATTERNS"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Fanout.Driver {
	case FanoutDriverRedis, FanoutDriverNATS, FanoutDriverMemory:
	default:
		return fmt.Errorf("invalid FANOUT_DRIVER %q", c.Fanout.Driver)
	}
	if _, err := c.Sweeper.Location(); err != nil {
		return fmt.Errorf("invalid SWEEPER_TIMEZONE: %w", err)
	}
	if c.Sweeper.AlertConcurrency <= 0 {
		return fmt.Errorf("SWEEPER_ALERT_CONCURRENCY must be positive")
	}
	return nil
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

// Location resolves the sweep timezone.
func (s SweeperConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

// LockTTL returns how long a sweep lock is held.
func (s SweeperConfig) LockTTL() time.Duration {
	if s.LockTTLSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(s.LockTTLSeconds) * time.Second
}

// SMTPAddr returns host:port of the mail relay, empty when unset.
func (n NotificationConfig) SMTPAddr() string {
	if n.SMTPHost == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", n.SMTPHost, n.SMTPPort)
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

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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
