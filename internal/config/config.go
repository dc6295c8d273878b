// Package config reads service settings from the environment. Values from an
// optional .env file are applied first and never override variables that are
// already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	Port        string
	LogLevel    string

	// Storage
	DBMaxConns   int
	QueryTimeout time.Duration

	// Paging defaults
	HistoryDefaultLimit int
	RowsDefaultLimit    int

	// Plugin notifications
	TriggerRetryMax     int
	TriggerRetryBackoff time.Duration
	TriggerRPCTimeout   time.Duration
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration

	ShutdownTimeout time.Duration
}

// Load reads the .env file named by ENV_FILE (default ".env", missing file
// ignored) and then the environment.
func Load() (Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	dbURL, err := getEnvRequired("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}

	return Config{
		DatabaseURL:         dbURL,
		Port:                getEnv("PORT", "8080"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DBMaxConns:          getEnvInt("DB_MAX_CONNS", 10),
		QueryTimeout:        getEnvDuration("QUERY_TIMEOUT", 5*time.Second),
		HistoryDefaultLimit: getEnvInt("HISTORY_DEFAULT_LIMIT", 50),
		RowsDefaultLimit:    getEnvInt("ROWS_DEFAULT_LIMIT", 100),
		TriggerRetryMax:     getEnvInt("TRIGGER_RETRY_MAX", 3),
		TriggerRetryBackoff: getEnvDuration("TRIGGER_RETRY_BACKOFF", 100*time.Millisecond),
		TriggerRPCTimeout:   getEnvDuration("TRIGGER_RPC_TIMEOUT", 5*time.Second),
		BreakerMaxFailures:  getEnvInt("BREAKER_MAX_FAILURES", 5),
		BreakerResetTimeout: getEnvDuration("BREAKER_RESET_TIMEOUT", 30*time.Second),
		ShutdownTimeout:     getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}, nil
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvRequired(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is not set", key)
	}
	return v, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return n
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return d
	}
	return fallback
}
