// Package config loads gateway configuration from environment variables
// with documented defaults and validated ranges.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"nlsql/internal/core/port"
)

type Config struct {
	// Transport is "stdio" or "http".
	Transport  string
	ListenAddr string
	LogLevel   slog.Level
	Debug      bool

	// Default database connection, used when connect_database is called
	// without explicit parameters.
	Database port.ConnConfig

	DBMaxConns     int
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration

	CacheEnabled bool
	CacheURL     string
	CacheTTL     time.Duration

	MaxRows         int
	MaxSchemaTables int
	HistoryLimit    int

	LLMAPIKey  string
	LLMModel   string
	LLMBaseURL string

	AuthEnabled   bool
	AdminPassword string

	HTTPRateLimit float64
}

func Load() (*Config, error) {
	cfg := &Config{
		Transport:  "stdio",
		ListenAddr: ":8080",
		Database: port.ConnConfig{
			Host:     "localhost",
			Port:     5432,
			Username: "postgres",
			Database: "nlsql_db",
			Backend:  port.BackendPostgres,
		},
		DBMaxConns:      5,
		ConnectTimeout:  10 * time.Second,
		QueryTimeout:    30 * time.Second,
		CacheEnabled:    true,
		CacheURL:        "redis://localhost:6379",
		CacheTTL:        5 * time.Minute,
		MaxRows:         1000,
		MaxSchemaTables: 10,
		HistoryLimit:    50,
		LLMModel:        "gpt-4o-mini",
		AdminPassword:   "admin",
		HTTPRateLimit:   120,
	}

	if v := os.Getenv("TRANSPORT"); v != "" {
		switch v {
		case "stdio", "http":
			cfg.Transport = v
		default:
			return nil, fmt.Errorf("invalid TRANSPORT value %q: must be stdio or http", v)
		}
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	}
	if v := os.Getenv("DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DEBUG value %q: %w", v, err)
		}
		cfg.Debug = b
	}

	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 65535 {
			return nil, fmt.Errorf("invalid DB_PORT value %q: must be 1-65535", v)
		}
		cfg.Database.Port = n
	}
	if v := os.Getenv("DB_USERNAME"); v != "" {
		cfg.Database.Username = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("DB_TYPE"); v != "" {
		backend := port.Backend(strings.ToLower(v))
		switch backend {
		case port.BackendPostgres, port.BackendMySQL, port.BackendSQLite:
			cfg.Database.Backend = backend
		default:
			return nil, fmt.Errorf("invalid DB_TYPE value %q: must be postgresql, mysql, or sqlite", v)
		}
	}
	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid DB_MAX_CONNS value %q: must be a positive integer", v)
		}
		cfg.DBMaxConns = n
	}
	if v := os.Getenv("CONNECT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid CONNECT_TIMEOUT value %q", v)
		}
		cfg.ConnectTimeout = d
	}
	if v := os.Getenv("QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid QUERY_TIMEOUT value %q", v)
		}
		cfg.QueryTimeout = d
	}

	if v := os.Getenv("CACHE_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CACHE_ENABLED value %q: %w", v, err)
		}
		cfg.CacheEnabled = b
	}
	if v := os.Getenv("CACHE_REDIS_URL"); v != "" {
		cfg.CacheURL = v
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 86400 {
			return nil, fmt.Errorf("invalid CACHE_TTL value %q: must be 1-86400 seconds", v)
		}
		cfg.CacheTTL = time.Duration(n) * time.Second
	}

	if v := os.Getenv("MAX_ROWS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_ROWS value %q: must be a positive integer", v)
		}
		cfg.MaxRows = n
	}
	if v := os.Getenv("MAX_SCHEMA_TABLES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_SCHEMA_TABLES value %q: must be a positive integer", v)
		}
		cfg.MaxSchemaTables = n
	}
	if v := os.Getenv("HISTORY_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid HISTORY_LIMIT value %q: must be a positive integer", v)
		}
		cfg.HistoryLimit = n
	}

	cfg.LLMAPIKey = os.Getenv("LLM_API_KEY")
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}
	cfg.LLMBaseURL = os.Getenv("LLM_BASE_URL")

	if v := os.Getenv("AUTH_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid AUTH_ENABLED value %q: %w", v, err)
		}
		cfg.AuthEnabled = b
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		cfg.AdminPassword = v
	}

	if v := os.Getenv("HTTP_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid HTTP_RATE_LIMIT value %q: must be a positive number", v)
		}
		cfg.HTTPRateLimit = f
	}

	return cfg, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}
