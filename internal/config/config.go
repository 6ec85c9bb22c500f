// Package config reads runtime settings from the environment and holds the
// domain constants shared by the services.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Database holds PostgreSQL connection settings.
type Database struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     string
	SSLMode  string
}

// DSN renders the settings in the key=value form expected by the postgres driver.
func (d Database) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode)
}

// Redis holds the optional Redis connection. An empty Addr disables Redis.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Auth holds bearer token settings.
type Auth struct {
	Secret    string
	Issuer    string
	TokenTTL  time.Duration
	DevTokens bool
}

// Classifier holds serving settings for the categorizer.
type Classifier struct {
	ModelPath       string
	KeywordFallback bool
	MinConfidence   float64
}

// Telegram holds the ops notifier settings. An empty token disables it.
type Telegram struct {
	BotToken string
	ChatID   int64
}

// Config is the full runtime configuration.
type Config struct {
	HTTPAddr      string
	StorageDriver string
	Database      Database
	Redis         Redis
	Auth          Auth
	Classifier    Classifier
	Telegram      Telegram
	LocalesDir    string
	Locale        string
}

// LoadDotEnv loads a .env file when present. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", DriverPostgres)),
		Database: Database{
			Host:     getEnv("DB_HOST", "localhost"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "civicdesk"),
			Port:     getEnv("DB_PORT", "5432"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: Redis{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Auth: Auth{
			Secret: os.Getenv("JWT_SECRET"),
			Issuer: getEnv("JWT_ISSUER", "civicdesk"),
		},
		Classifier: Classifier{
			ModelPath: os.Getenv("MODEL_PATH"),
		},
		Telegram: Telegram{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		},
		LocalesDir: getEnv("LOCALES_DIR", "locales"),
		Locale:     getEnv("LOCALE", "en"),
	}

	var err error
	if cfg.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Auth.TokenTTL, err = getDuration("JWT_TTL", DefaultTokenTTL); err != nil {
		return nil, err
	}
	if cfg.Auth.DevTokens, err = getBool("DEV_TOKENS", false); err != nil {
		return nil, err
	}
	if cfg.Classifier.KeywordFallback, err = getBool("KEYWORD_FALLBACK", true); err != nil {
		return nil, err
	}
	if cfg.Classifier.MinConfidence, err = getFloat("MIN_CONFIDENCE", DefaultMinConfidence); err != nil {
		return nil, err
	}
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		if cfg.Telegram.ChatID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.StorageDriver != DriverPostgres && c.StorageDriver != DriverMemory {
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, c.StorageDriver)
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Classifier.MinConfidence < 0 || c.Classifier.MinConfidence > 1 {
		return fmt.Errorf("MIN_CONFIDENCE must be within [0, 1], got %v", c.Classifier.MinConfidence)
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
