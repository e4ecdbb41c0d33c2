package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type TMDBConfig struct {
	Disabled       bool
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	MaxRetryWait   time.Duration
	RPS            float64
	// Circuit-breaker settings.
	CBMaxRequests      uint32
	CBInterval         time.Duration
	CBTimeout          time.Duration
	CBFailureThreshold uint32
}

type Config struct {
	GRPCAddr    string
	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	TMDB            TMDBConfig
	ExternalPages   int
	ExternalTimeout time.Duration

	DefaultPageSize int
	MaxPageSize     int

	RedisURL         string
	ExternalCacheTTL time.Duration
	NATSURL          string
	JWTSecret        string
	RateLimitRPM     int
}

// Load reads the catalog settings from the environment.
func Load() (Config, error) {
	cfg := Config{
		GRPCAddr:    envString("GRPC_ADDR", ":9092"),
		StoreDriver: strings.ToLower(envString("STORE_DRIVER", DriverPostgres)),
		DatabaseURL: envString("DATABASE_URL", ""),
		SQLitePath:  envString("SQLITE_PATH", "catalog.db"),
		TMDB: TMDBConfig{
			Disabled:           envBool("EXTERNAL_CATALOG_DISABLED", false),
			BaseURL:            envString("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
			APIKey:             envString("TMDB_API_KEY", ""),
			Timeout:            envDuration("TMDB_TIMEOUT", 5*time.Second),
			MaxRetries:         envInt("TMDB_MAX_RETRIES", 2),
			RetryBaseDelay:     envDuration("TMDB_RETRY_BASE_DELAY", 300*time.Millisecond),
			MaxRetryWait:       envDuration("TMDB_MAX_RETRY_WAIT", 2*time.Second),
			RPS:                envFloat("TMDB_RPS", 4),
			CBMaxRequests:      uint32(envInt("CB_MAX_REQUESTS", 5)),
			CBInterval:         envDuration("CB_INTERVAL", 60*time.Second),
			CBTimeout:          envDuration("CB_TIMEOUT", 30*time.Second),
			CBFailureThreshold: uint32(envInt("CB_FAILURE_THRESHOLD", 5)),
		},
		ExternalPages:    envInt("EXTERNAL_PAGES", 1),
		ExternalTimeout:  envDuration("EXTERNAL_TIMEOUT", 10*time.Second),
		DefaultPageSize:  envInt("DEFAULT_PAGE_SIZE", 20),
		MaxPageSize:      envInt("MAX_PAGE_SIZE", 100),
		RedisURL:         envString("REDIS_URL", ""),
		ExternalCacheTTL: envDuration("EXTERNAL_CACHE_TTL", 10*time.Minute),
		NATSURL:          envString("NATS_URL", ""),
		JWTSecret:        envString("JWT_SECRET", ""),
		RateLimitRPM:     envInt("RATE_LIMIT_RPM", 120),
	}

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("DATABASE_URL is required for the postgres store")
		}
	case DriverSQLite, DriverMemory:
	default:
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if !cfg.TMDB.Disabled && cfg.TMDB.APIKey == "" {
		return Config{}, errors.New("TMDB_API_KEY is required unless EXTERNAL_CATALOG_DISABLED=true")
	}
	if cfg.ExternalPages < 1 {
		cfg.ExternalPages = 1
	}
	if cfg.MaxPageSize < 1 {
		cfg.MaxPageSize = 100
	}
	if cfg.DefaultPageSize < 1 || cfg.DefaultPageSize > cfg.MaxPageSize {
		return Config{}, fmt.Errorf("DEFAULT_PAGE_SIZE must be between 1 and %d", cfg.MaxPageSize)
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
