package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

type Config struct {
	Environment string `mapstructure:"ENV"`
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`

	Storage    string `mapstructure:"STORAGE"`
	DBDSN      string `mapstructure:"DB_DSN"`
	SQLitePath string `mapstructure:"SQLITE_PATH"`

	TelegramToken string `mapstructure:"TELEGRAM_TOKEN"`
	AMQPURL       string `mapstructure:"AMQP_URL"`

	OutboxFlushInterval time.Duration `mapstructure:"OUTBOX_FLUSH_INTERVAL"`
	NotifyRetryAttempts int           `mapstructure:"NOTIFY_RETRY_ATTEMPTS"`
	NotifyRetryBase     time.Duration `mapstructure:"NOTIFY_RETRY_BASE"`
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	} else {
		log.Println("Loaded configuration from .env file")
	}

	return FromEnv(os.Getenv)
}

// FromEnv собирает конфиг из источника переменных окружения
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Environment:   getenv("ENV"),
		HTTPAddr:      getenv("HTTP_ADDR"),
		Storage:       getenv("STORAGE"),
		DBDSN:         getenv("DB_DSN"),
		SQLitePath:    getenv("SQLITE_PATH"),
		TelegramToken: getenv("TELEGRAM_TOKEN"),
		AMQPURL:       getenv("AMQP_URL"),
	}

	// Дефолтные значения
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.Storage == "" {
		cfg.Storage = StorageMemory
	}

	var err error
	if cfg.OutboxFlushInterval, err = durationOr(getenv("OUTBOX_FLUSH_INTERVAL"), 30*time.Second); err != nil {
		return nil, fmt.Errorf("OUTBOX_FLUSH_INTERVAL: %w", err)
	}
	if cfg.NotifyRetryBase, err = durationOr(getenv("NOTIFY_RETRY_BASE"), 200*time.Millisecond); err != nil {
		return nil, fmt.Errorf("NOTIFY_RETRY_BASE: %w", err)
	}
	cfg.NotifyRetryAttempts = 5
	if raw := getenv("NOTIFY_RETRY_ATTEMPTS"); raw != "" {
		if cfg.NotifyRetryAttempts, err = strconv.Atoi(raw); err != nil || cfg.NotifyRetryAttempts < 0 {
			return nil, fmt.Errorf("NOTIFY_RETRY_ATTEMPTS must be a non-negative integer, got %q", raw)
		}
	}

	// Проверяем обязательные поля
	switch cfg.Storage {
	case StorageMemory:
	case StoragePostgres:
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("DB_DSN is required for postgres storage")
		}
	case StorageSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("SQLITE_PATH is required for sqlite storage")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE %q", cfg.Storage)
	}

	return cfg, nil
}

func durationOr(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", raw)
	}
	return d, nil
}
