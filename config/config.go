/*
Package config loads server configuration from the environment.

SOURCES (later wins):
  1. Built-in defaults
  2. .env file in the working directory (optional)
  3. Process environment
  4. Command-line flags (-port, -db), applied by cmd/server

KEYS:
  APP_PORT                        HTTP port (8080)
  DATABASE_PATH                   SQLite path, ":memory:" allowed (payroll.db)
  LOG_LEVEL                       debug|info|warn|error (info)
  PAYROLL_CHUNK_SIZE              Employees per chunk (50)
  PAYROLL_WORKERS                 Concurrent employees per chunk (4)
  PAYROLL_MAX_RETRIES             Transient-I/O retries per chunk (3)
  PAYROLL_RETRY_INITIAL_INTERVAL  First backoff interval (200ms)
  PAYROLL_RECOVERY_INTERVAL       Scheduler recovery sweep (5m)
  CORS_ALLOWED_ORIGINS            Comma separated origins
*/
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

type Config struct {
	App     AppConfig
	Payroll PayrollConfig
}

// AppConfig holds HTTP and process settings.
type AppConfig struct {
	Port               int
	DatabasePath       string
	LogLevel           string
	CORSAllowedOrigins []string
}

// PayrollConfig holds calculation job tuning.
type PayrollConfig struct {
	ChunkSize            int
	Workers              int
	MaxRetries           int
	RetryInitialInterval time.Duration
	RecoveryInterval     time.Duration
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	var err error

	if cfg.App.Port, err = getInt("APP_PORT", 8080); err != nil {
		return nil, err
	}
	cfg.App.DatabasePath = getEnv("DATABASE_PATH", "payroll.db")
	cfg.App.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.App.CORSAllowedOrigins = getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"})

	if cfg.Payroll.ChunkSize, err = getInt("PAYROLL_CHUNK_SIZE", 50); err != nil {
		return nil, err
	}
	if cfg.Payroll.Workers, err = getInt("PAYROLL_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.Payroll.MaxRetries, err = getInt("PAYROLL_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.Payroll.RetryInitialInterval, err = getDuration("PAYROLL_RETRY_INITIAL_INTERVAL", 200*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.Payroll.RecoveryInterval, err = getDuration("PAYROLL_RECOVERY_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

// Validate rejects non-positive sizes and intervals.
func (c *Config) Validate() error {
	switch {
	case c.App.Port <= 0 || c.App.Port > 65535:
		return fmt.Errorf("invalid APP_PORT: %d", c.App.Port)
	case c.App.DatabasePath == "":
		return errors.New("DATABASE_PATH must not be empty")
	case c.Payroll.ChunkSize <= 0:
		return fmt.Errorf("PAYROLL_CHUNK_SIZE must be positive, got %d", c.Payroll.ChunkSize)
	case c.Payroll.Workers <= 0:
		return fmt.Errorf("PAYROLL_WORKERS must be positive, got %d", c.Payroll.Workers)
	case c.Payroll.MaxRetries <= 0:
		return fmt.Errorf("PAYROLL_MAX_RETRIES must be positive, got %d", c.Payroll.MaxRetries)
	case c.Payroll.RetryInitialInterval <= 0:
		return errors.New("PAYROLL_RETRY_INITIAL_INTERVAL must be positive")
	case c.Payroll.RecoveryInterval <= 0:
		return errors.New("PAYROLL_RECOVERY_INTERVAL must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvSlice(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
