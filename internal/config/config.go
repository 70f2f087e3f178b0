// Package config loads service settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr          = ":8080"
	defaultGRPCAddr          = ":9090"
	defaultCallTimeout       = 5 * time.Second
	defaultLockTTL           = 2 * time.Minute
	defaultPrivilegedRoutine = "delete_oauth_user_complete"
	defaultRateBurst         = 5
	defaultRatePerSec        = 1
)

// Config holds everything cmd/api needs.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	// Backend selects "postgres" (default when a DSN is set) or "memory".
	Backend   string
	PGDSN     string
	JWTSecret string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Resources         []Resource
	CallTimeout       time.Duration
	LockTTL           time.Duration
	PrivilegedRoutine string

	LogLevel  string
	LogFormat string

	RateBurst  int
	RatePerSec int
}

// Load reads .env (when present in the working directory or at envFile) and then the
// process environment. Variables already set in the environment win over .env.
func Load(envFile string) (Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		HTTPAddr:          get("HTTP_ADDR", defaultHTTPAddr),
		GRPCAddr:          get("GRPC_ADDR", defaultGRPCAddr),
		PGDSN:             get("PROMOSUITE_PG_DSN", ""),
		JWTSecret:         get("PROMOSUITE_JWT_SECRET", ""),
		RedisAddr:         get("REDIS_ADDR", ""),
		RedisPassword:     getenv("REDIS_PASSWORD"),
		PrivilegedRoutine: get("PRIVILEGED_ROUTINE", defaultPrivilegedRoutine),
		LogLevel:          get("LOG_LEVEL", "info"),
		LogFormat:         get("LOG_FORMAT", "json"),
	}

	cfg.Backend = strings.ToLower(get("DELETION_BACKEND", ""))
	if cfg.Backend == "" {
		cfg.Backend = "memory"
		if cfg.PGDSN != "" {
			cfg.Backend = "postgres"
		}
	}

	var err error
	if cfg.RedisDB, err = intVar(getenv, "REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.CallTimeout, err = durationVar(getenv, "DELETION_CALL_TIMEOUT", defaultCallTimeout); err != nil {
		return Config{}, err
	}
	if cfg.LockTTL, err = durationVar(getenv, "DELETION_LOCK_TTL", defaultLockTTL); err != nil {
		return Config{}, err
	}
	if cfg.RateBurst, err = intVar(getenv, "RATE_LIMIT_BURST", defaultRateBurst); err != nil {
		return Config{}, err
	}
	if cfg.RatePerSec, err = intVar(getenv, "RATE_LIMIT_PER_SEC", defaultRatePerSec); err != nil {
		return Config{}, err
	}
	if cfg.Resources, err = LoadResources(getenv("DELETION_RESOURCES_FILE")); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Backend {
	case "postgres":
		if c.PGDSN == "" {
			return errors.New("PROMOSUITE_PG_DSN is required for the postgres backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown DELETION_BACKEND %q", c.Backend)
	}
	if c.JWTSecret == "" {
		return errors.New("PROMOSUITE_JWT_SECRET is required")
	}
	if c.CallTimeout <= 0 {
		return errors.New("DELETION_CALL_TIMEOUT must be positive")
	}
	if c.LockTTL <= 0 {
		return errors.New("DELETION_LOCK_TTL must be positive")
	}
	if c.RateBurst <= 0 || c.RatePerSec <= 0 {
		return errors.New("rate limit settings must be positive")
	}
	return nil
}

func intVar(getenv func(string) string, key string, def int) (int, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func durationVar(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
