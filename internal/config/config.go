package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the IdeaHub gateway.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Auth      AuthConfig
}

type ServerConfig struct {
	Port          int
	Env           string
	LogLevel      slog.Level
	CORSOrigin    string
	MaxBodyBytes  int64
	MigrationsDir string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type RateLimitConfig struct {
	Backend string
	IPRate  float64
	IPBurst int
}

type AuthConfig struct {
	KeyPrefix string
	CacheTTL  time.Duration
}

// Rate limit counter backends.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

var validBackends = map[string]bool{
	BackendRedis:    true,
	BackendPostgres: true,
	BackendMemory:   true,
}

// Load reads configuration from environment variables (and a .env file when
// present) and returns a validated Config.
func Load() (*Config, error) {
	// A missing .env is the normal case in containers.
	_ = godotenv.Load()

	level, err := parseLevel(envString("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:          envInt("IDEAHUB_PORT", 8080),
			Env:           envString("IDEAHUB_ENV", "development"),
			LogLevel:      level,
			CORSOrigin:    envString("CORS_ALLOWED_ORIGIN", "*"),
			MaxBodyBytes:  int64(envInt("MAX_BODY_BYTES", 12<<20)),
			MigrationsDir: envString("MIGRATIONS_DIR", "migrations"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		RateLimit: RateLimitConfig{
			Backend: strings.ToLower(envString("RATE_LIMIT_BACKEND", BackendRedis)),
			IPRate:  envFloat("IP_RATE_LIMIT_RPS", 0),
			IPBurst: envInt("IP_RATE_LIMIT_BURST", 20),
		},
		Auth: AuthConfig{
			KeyPrefix: envString("API_KEY_PREFIX", "iah_"),
			CacheTTL:  envDuration("AUTH_CACHE_TTL", 30*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadCLI reads the subset of configuration the key management tool needs:
// the database and the API key format. Redis and server settings are ignored.
func LoadCLI() (DatabaseConfig, AuthConfig, error) {
	_ = godotenv.Load()

	db := DatabaseConfig{
		URL:             os.Getenv("DATABASE_URL"),
		MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 4),
		MaxIdleConns:    0,
		ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
	}
	authCfg := AuthConfig{KeyPrefix: envString("API_KEY_PREFIX", "iah_")}

	if err := validateDatabaseURL(db.URL); err != nil {
		return DatabaseConfig{}, AuthConfig{}, err
	}
	return db, authCfg, nil
}

func validateDatabaseURL(u string) error {
	if u == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if !strings.HasPrefix(u, "postgres://") && !strings.HasPrefix(u, "postgresql://") {
		return fmt.Errorf("DATABASE_URL must start with postgres:// or postgresql://")
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("IDEAHUB_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if err := validateDatabaseURL(c.Database.URL); err != nil {
		return err
	}

	if !validBackends[c.RateLimit.Backend] {
		return fmt.Errorf("RATE_LIMIT_BACKEND must be one of redis, postgres, memory; got %q", c.RateLimit.Backend)
	}
	if c.RateLimit.Backend == BackendRedis && c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required when RATE_LIMIT_BACKEND is redis")
	}
	if c.RateLimit.IPRate < 0 {
		return fmt.Errorf("IP_RATE_LIMIT_RPS must not be negative")
	}
	if c.RateLimit.IPRate > 0 && c.RateLimit.IPBurst <= 0 {
		return fmt.Errorf("IP_RATE_LIMIT_BURST must be positive when IP_RATE_LIMIT_RPS is set")
	}

	if c.Auth.KeyPrefix == "" {
		return fmt.Errorf("API_KEY_PREFIX must not be empty")
	}
	if c.Auth.CacheTTL < 0 {
		return fmt.Errorf("AUTH_CACHE_TTL must not be negative")
	}

	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive")
	}

	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", s)
	}
	return l, nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
