// Package config loads runtime settings from ZALOGA_* environment variables
// and an optional .env file.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "ZALOGA"

// Config holds all runtime configuration.
type Config struct {
	// Server
	Addr        string `mapstructure:"ADDR"`
	DBPath      string `mapstructure:"DB_PATH"`
	LogPath     string `mapstructure:"LOG_PATH"`
	MaxUploadMB int64  `mapstructure:"MAX_UPLOAD_MB"`

	// Auth
	AdminEmail string        `mapstructure:"ADMIN_EMAIL"`
	JWTSecret  string        `mapstructure:"JWT_SECRET"` // empty: use the secret stored in the database
	TokenTTL   time.Duration `mapstructure:"TOKEN_TTL"`

	// SMTP (notifications are only logged when SMTP_HOST is empty)
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUser     string `mapstructure:"SMTP_USER"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	// Redis notification queue, disabled when REDIS_URL is empty
	RedisURL      string `mapstructure:"REDIS_URL"`
	NotifyWorkers int    `mapstructure:"NOTIFY_WORKERS"`

	// Expiry
	SweepInterval  time.Duration `mapstructure:"SWEEP_INTERVAL"`
	NotifyCooldown time.Duration `mapstructure:"NOTIFY_COOLDOWN"`
	ExpiringDays   int           `mapstructure:"EXPIRING_DAYS"`

	// Barcodes
	BarcodeWidth    int   `mapstructure:"BARCODE_WIDTH"`
	BarcodeMin      int64 `mapstructure:"BARCODE_MIN"`
	BarcodeMax      int64 `mapstructure:"BARCODE_MAX"`
	BarcodeAttempts int   `mapstructure:"BARCODE_ATTEMPTS"`
}

// Load reads configuration from the environment and, if present, ./.env.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("ADDR", ":8080")
	v.SetDefault("DB_PATH", "zaloga.sqlite3")
	v.SetDefault("LOG_PATH", "")
	v.SetDefault("MAX_UPLOAD_MB", 10)
	v.SetDefault("ADMIN_EMAIL", "admin@localhost")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("TOKEN_TTL", "168h")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "zaloga@localhost")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("SWEEP_INTERVAL", "24h")
	v.SetDefault("NOTIFY_COOLDOWN", "0s")
	v.SetDefault("EXPIRING_DAYS", 7)
	v.SetDefault("BARCODE_WIDTH", 13)
	v.SetDefault("BARCODE_MIN", int64(1_000_000_000_000))
	v.SetDefault("BARCODE_MAX", int64(9_999_999_999_999))
	v.SetDefault("BARCODE_ATTEMPTS", 64)

	// A missing .env file is fine.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading .env: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	if c.NotifyCooldown < 0 {
		return fmt.Errorf("NOTIFY_COOLDOWN must not be negative, got %s", c.NotifyCooldown)
	}
	if c.ExpiringDays < 0 {
		return fmt.Errorf("EXPIRING_DAYS must not be negative, got %d", c.ExpiringDays)
	}
	return nil
}
