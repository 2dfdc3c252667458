package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	WhatsApp  WhatsAppConfig
	Scheduler SchedulerConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port         string
	WebhookToken string
}

// DatabaseConfig selects the GORM dialect and its connection parameters.
type DatabaseConfig struct {
	Driver   string // postgres or sqlite
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	Path     string // sqlite file
	LogLevel string
}

// WhatsAppConfig holds defaults for the WAHA gateway. The provider credentials live in
// the waha_configs table; the WAHA_* values only seed that table when it is empty.
type WhatsAppConfig struct {
	DefaultCountryCode string
	ChatSuffix         string
	RequestTimeout     time.Duration
	SeedBaseURL        string
	SeedSessionID      string
	SeedAPIKey         string
}

// SchedulerConfig holds the sweep and retention settings.
type SchedulerConfig struct {
	Enabled              bool
	SweepSchedule        string
	RetentionSchedule    string
	ReminderLeadDays     int
	MessageRetentionDays int
	Timezone             string
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
		}
	} else {
		// missing .env is fine, the environment may already be populated
		_ = godotenv.Load()
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			WebhookToken: getEnv("WEBHOOK_TOKEN", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "sqlite"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "escalafin"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Path:     getEnv("DB_PATH", "./escalafin.db"),
			LogLevel: getEnv("DB_LOG_LEVEL", "warn"),
		},
		WhatsApp: WhatsAppConfig{
			DefaultCountryCode: getEnv("WHATSAPP_DEFAULT_COUNTRY_CODE", "52"),
			ChatSuffix:         getEnv("WHATSAPP_CHAT_SUFFIX", "@c.us"),
			RequestTimeout:     getDuration("WAHA_TIMEOUT", 15*time.Second),
			SeedBaseURL:        getEnv("WAHA_BASE_URL", ""),
			SeedSessionID:      getEnv("WAHA_SESSION", "default"),
			SeedAPIKey:         getEnv("WAHA_API_KEY", ""),
		},
		Scheduler: SchedulerConfig{
			Enabled:              getBool("SCHEDULER_ENABLED", true),
			SweepSchedule:        getEnv("SWEEP_CRON_SCHEDULE", "*/5 * * * *"),
			RetentionSchedule:    getEnv("RETENTION_CRON_SCHEDULE", "30 3 * * *"),
			ReminderLeadDays:     getInt("REMINDER_LEAD_DAYS", 3),
			MessageRetentionDays: getInt("MESSAGE_RETENTION_DAYS", 0),
			Timezone:             getEnv("TIMEZONE", "America/Mexico_City"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("PORT must be provided")
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" || c.Database.Name == "" {
			return errors.New("DB_HOST and DB_NAME must be provided for postgres")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("DB_PATH must be provided for sqlite")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	if c.WhatsApp.DefaultCountryCode == "" {
		return errors.New("WHATSAPP_DEFAULT_COUNTRY_CODE must not be empty")
	}
	if c.WhatsApp.ChatSuffix == "" {
		return errors.New("WHATSAPP_CHAT_SUFFIX must not be empty")
	}

	if c.Scheduler.ReminderLeadDays < 0 {
		return errors.New("REMINDER_LEAD_DAYS must not be negative")
	}
	if c.Scheduler.MessageRetentionDays < 0 {
		return errors.New("MESSAGE_RETENTION_DAYS must not be negative")
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Scheduler.Timezone, err)
	}

	return nil
}

// Location returns the scheduler time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
