package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config captures service configuration. FromEnv keeps main lean; every field
// has a development default so the server boots with no environment at all.
type Config struct {
	Addr string

	// PublicBaseURL is the https origin embedded in emailed links.
	PublicBaseURL string
	// AppScheme is the mobile deep-link scheme mirrored by /auth-callback.
	AppScheme string

	JWTSigningKey string
	JWTIssuer     string

	RecoveryLinkTTL time.Duration
	VerifyLinkTTL   time.Duration
	AccessTokenTTL  time.Duration

	Redis    RedisConfig
	Postgres PostgresConfig

	LogLevel slog.Level
}

// RedisConfig configures the optional Redis backing for single-use token
// marks. An empty URL selects the in-memory store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the optional Postgres user store. An empty URL
// selects the in-memory store.
type PostgresConfig struct {
	URL string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:            getenv("LINKGATE_ADDR", ":8080"),
		PublicBaseURL:   getenv("LINKGATE_PUBLIC_BASE_URL", "http://localhost:8080"),
		AppScheme:       getenv("LINKGATE_APP_SCHEME", "committed"),
		JWTSigningKey:   getenv("LINKGATE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:       getenv("LINKGATE_JWT_ISSUER", "linkgate"),
		RecoveryLinkTTL: getduration("LINKGATE_RECOVERY_LINK_TTL", time.Hour),
		VerifyLinkTTL:   getduration("LINKGATE_VERIFY_LINK_TTL", 24*time.Hour),
		AccessTokenTTL:  getduration("LINKGATE_ACCESS_TOKEN_TTL", time.Hour),
		Redis: RedisConfig{
			URL:          os.Getenv("LINKGATE_REDIS_URL"),
			PoolSize:     getint("LINKGATE_REDIS_POOL_SIZE", 10),
			MinIdleConns: getint("LINKGATE_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getduration("LINKGATE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getduration("LINKGATE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getduration("LINKGATE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("LINKGATE_POSTGRES_URL"),
		},
		LogLevel: slog.LevelInfo,
	}

	if os.Getenv("LINKGATE_LOG_DEBUG") == "true" {
		cfg.LogLevel = slog.LevelDebug
	}

	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
