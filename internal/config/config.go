// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends.
const (
	BackendJSON     = "json"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Error reports a missing or invalid configuration value.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	StorageBackend   string
	StoragePath      string
	DatabaseURL      string
	PollInterval     time.Duration
	FetchTimeout     time.Duration
	FetchConcurrency int
	DefaultFeeds     []string
	LogLevel         string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		token = os.Getenv("BOT_TOKEN")
	}
	if token == "" {
		return nil, &Error{Key: "TELEGRAM_BOT_TOKEN", Reason: "is required"}
	}

	backend := strings.ToLower(os.Getenv("STORAGE_BACKEND"))
	if backend == "" {
		backend = BackendJSON
	}

	storagePath := os.Getenv("STORAGE_PATH")
	switch backend {
	case BackendJSON:
		if storagePath == "" {
			storagePath = "./data/state.json"
		}
	case BackendSQLite:
		if storagePath == "" {
			storagePath = "./data/state.db"
		}
	case BackendPostgres, BackendMemory:
	default:
		return nil, &Error{Key: "STORAGE_BACKEND", Reason: fmt.Sprintf("unknown backend %q", backend)}
	}

	dbURL := os.Getenv("DATABASE_URL")
	if backend == BackendPostgres && dbURL == "" {
		return nil, &Error{Key: "DATABASE_URL", Reason: "is required for the postgres backend"}
	}

	interval, err := positiveInt("POLL_INTERVAL_SECONDS", 300)
	if err != nil {
		return nil, err
	}
	timeout, err := positiveInt("FETCH_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	concurrency, err := positiveInt("FETCH_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}

	var feeds []string
	if raw := os.Getenv("DEFAULT_FEEDS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			feeds = append(feeds, s)
		}
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return &Config{
		TelegramBotToken: token,
		StorageBackend:   backend,
		StoragePath:      storagePath,
		DatabaseURL:      dbURL,
		PollInterval:     time.Duration(interval) * time.Second,
		FetchTimeout:     time.Duration(timeout) * time.Second,
		FetchConcurrency: concurrency,
		DefaultFeeds:     feeds,
		LogLevel:         logLevel,
	}, nil
}

func positiveInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &Error{Key: key, Reason: fmt.Sprintf("invalid integer %q", raw)}
	}
	if n <= 0 {
		return 0, &Error{Key: key, Reason: "must be positive"}
	}
	return n, nil
}
