package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Alias1177/Guardian/internal/alert"
	"github.com/Alias1177/Guardian/internal/anomaly"
	"github.com/Alias1177/Guardian/internal/database"
	"github.com/Alias1177/Guardian/internal/guardian"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"` // console or json

	EMAAlpha        float64 `env:"EMA_ALPHA" envDefault:"0.1"`
	MinCount        int     `env:"MIN_COUNT" envDefault:"50"`
	MaxSpike        float64 `env:"MAX_SPIKE" envDefault:"2.0"`
	DropThreshold   float64 `env:"DROP_THRESHOLD" envDefault:"0.5"`
	ZScoreThreshold float64 `env:"ZSCORE_THRESHOLD" envDefault:"2.5"`
	MLThreshold     float64 `env:"ML_THRESHOLD" envDefault:"0.7"`
	MLEnabled       bool    `env:"ML_ENABLED" envDefault:"true"`
	MLTimeoutMS     int     `env:"ML_TIMEOUT_MS" envDefault:"200"`

	RateLimitSeconds      int `env:"RATE_LIMIT_SECONDS" envDefault:"60"`
	ChannelTimeoutSeconds int `env:"CHANNEL_TIMEOUT_SECONDS" envDefault:"10"`

	WebhookURL       string  `env:"WEBHOOK_URL"`
	TelegramBotToken string  `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatIDs  []int64 `env:"TELEGRAM_CHAT_IDS"` // comma separated; also the bot allow-list

	DBHost     string `env:"DB_HOST"` // empty disables the audit channel
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"guardian"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"guardian"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
}

// Load initializes configuration from environment variables
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	var cfg Config

	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getEnvWithDefault("LOG_FORMAT", "console")

	cfg.EMAAlpha = getEnvFloatWithDefault("EMA_ALPHA", 0.1)
	cfg.MinCount = getEnvIntWithDefault("MIN_COUNT", 50)
	cfg.MaxSpike = getEnvFloatWithDefault("MAX_SPIKE", 2.0)
	cfg.DropThreshold = getEnvFloatWithDefault("DROP_THRESHOLD", 0.5)
	cfg.ZScoreThreshold = getEnvFloatWithDefault("ZSCORE_THRESHOLD", 2.5)
	cfg.MLThreshold = getEnvFloatWithDefault("ML_THRESHOLD", 0.7)
	cfg.MLEnabled = getEnvBoolWithDefault("ML_ENABLED", true)
	cfg.MLTimeoutMS = getEnvIntWithDefault("ML_TIMEOUT_MS", 200)

	cfg.RateLimitSeconds = getEnvIntWithDefault("RATE_LIMIT_SECONDS", 60)
	cfg.ChannelTimeoutSeconds = getEnvIntWithDefault("CHANNEL_TIMEOUT_SECONDS", 10)

	cfg.WebhookURL = os.Getenv("WEBHOOK_URL")
	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramChatIDs = getEnvInt64List("TELEGRAM_CHAT_IDS")

	cfg.DBHost = os.Getenv("DB_HOST")
	cfg.DBPort = getEnvWithDefault("DB_PORT", "5432")
	cfg.DBUser = getEnvWithDefault("DB_USER", "guardian")
	cfg.DBPassword = os.Getenv("DB_PASSWORD")
	cfg.DBName = getEnvWithDefault("DB_NAME", "guardian")
	cfg.DBSSLMode = getEnvWithDefault("DB_SSLMODE", "disable")

	cfg.MetricsAddr = getEnvWithDefault("METRICS_ADDR", ":9090")

	return &cfg, nil
}

// DetectorConfig applies the thresholds to the detector defaults
func (c *Config) DetectorConfig() anomaly.Config {
	d := anomaly.DefaultConfig()
	d.Tracker.Alpha = c.EMAAlpha
	d.Rules.MinCount = int64(c.MinCount)
	d.Rules.MaxSpike = c.MaxSpike
	d.Rules.DropThreshold = c.DropThreshold
	d.Rules.ZScoreThreshold = c.ZScoreThreshold
	d.Classifier.MLThreshold = c.MLThreshold
	return d
}

func (c *Config) RouterConfig() alert.Config {
	r := alert.DefaultConfig()
	r.RateLimitWindow = time.Duration(c.RateLimitSeconds) * time.Second
	r.ChannelTimeout = time.Duration(c.ChannelTimeoutSeconds) * time.Second
	return r
}

func (c *Config) ServiceConfig() guardian.Config {
	s := guardian.DefaultConfig()
	s.Detector = c.DetectorConfig()
	s.Router = c.RouterConfig()
	return s
}

func (c *Config) MLTimeout() time.Duration {
	return time.Duration(c.MLTimeoutMS) * time.Millisecond
}

// DatabaseEnabled reports whether alerts should also be written to PostgreSQL
func (c *Config) DatabaseEnabled() bool {
	return c.DBHost != ""
}

func (c *Config) DBParams() database.ConnectionParams {
	return database.ConnectionParams{
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPassword,
		DBName:   c.DBName,
		SSLMode:  c.DBSSLMode,
	}
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt64List(key string) []int64 {
	var out []int64
	for _, part := range strings.Split(os.Getenv(key), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Warn().Str("key", key).Str("value", part).Msg("Skipping invalid ID")
			continue
		}
		out = append(out, id)
	}
	return out
}
